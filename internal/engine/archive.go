package engine

import (
	"context"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"fixengine/internal/archiver"
	"fixengine/internal/config"
	"fixengine/internal/telemetry"
)

const archiveUploadTimeout = 30 * time.Second

// newArchiver builds an S3-backed Archiver from ArchiverConfig, or returns
// nil if archiving isn't enabled. Failures are logged rather than returned:
// cold archival supplements the logstore, it never blocks the engine from
// running without it.
func newArchiver(cfg config.ArchiverConfig) *archiver.Archiver {
	if !cfg.Enabled {
		return nil
	}

	ctx := context.Background()
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(cfg.Region))
	if err != nil {
		telemetry.Warn("engine: load AWS config for archiver, continuing without cold archival", "error", err)
		return nil
	}

	a, err := archiver.New(ctx, archiver.Config{
		Client:    s3.NewFromConfig(awsCfg),
		Bucket:    cfg.Bucket,
		KeyPrefix: cfg.Prefix,
	})
	if err != nil {
		telemetry.Warn("engine: archiver unavailable, continuing without cold archival", "error", err)
		return nil
	}
	return a
}

// archiveOnReset ships the session's current log segment to cold storage
// at EOD, covering the sequence range [1, priorOut) that's about to start
// being overwritten by the new day's numbering. It runs in the background:
// a slow or failing upload must never hold up the reset that triggered it.
func (e *Engine) archiveOnReset(entry *sessionEntry, priorOut int64) {
	if e.archiver == nil || entry.log == nil {
		return
	}
	path := entry.log.Path()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveUploadTimeout)
		defer cancel()
		if err := e.archiver.ArchiveSegment(ctx, entry.id, 1, priorOut, path); err != nil {
			telemetry.Warn("engine: EOD cold archive failed", "session_id", entry.id, "error", err)
		}
	}()
}
