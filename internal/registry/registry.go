// Package registry persists each session's config and sequence-number
// checkpoint so the engine can rediscover and resume its sessions across a
// process restart, the way pkg/metadata.MetadataStore lets the teacher's
// filesystem server survive restarts without losing its handle table. The
// log segments in internal/logstore stay the durable record of what was
// actually sent and received; this package only remembers enough to resume
// numbering correctly and to recreate sessions on startup without a static
// config file listing every one of them.
package registry

import (
	"context"
	"errors"
	"time"

	"fixengine/internal/config"
)

// ErrNotFound is returned by Get when no record exists for a session id.
var ErrNotFound = errors.New("registry: session not found")

// Checkpoint is the sequence-number state that must survive a restart:
// the next outgoing MsgSeqNum, the next expected incoming one, and the
// calendar date (in the session's schedule timezone) its EOD reset last
// ran, so a restart on the same trading day doesn't fire it twice.
type Checkpoint struct {
	OutgoingSeq         int64
	ExpectedIncomingSeq int64
	LastResetDate       string // "2006-01-02" in the session's schedule timezone
}

// SessionRecord bundles one session's provisioning config with its latest
// sequence-number checkpoint.
type SessionRecord struct {
	SessionID  string
	Config     config.SessionConfig
	Checkpoint Checkpoint
	UpdatedAt  time.Time
}

// Store is the pluggable session registry backend: badger (embedded,
// default) or gorm/sql (Postgres or SQLite), selected by
// config.RegistryConfig.Backend.
type Store interface {
	// Put creates or replaces the record for rec.SessionID.
	Put(ctx context.Context, rec SessionRecord) error

	// Get returns ErrNotFound if no record exists for sessionID.
	Get(ctx context.Context, sessionID string) (SessionRecord, error)

	// List returns every stored record, in no particular order.
	List(ctx context.Context) ([]SessionRecord, error)

	// Delete removes sessionID's record. Deleting an absent record is not
	// an error.
	Delete(ctx context.Context, sessionID string) error

	// Healthcheck reports whether the backend is reachable and usable.
	Healthcheck(ctx context.Context) error

	Close() error
}

// Open constructs the Store selected by cfg.Backend.
func Open(cfg config.RegistryConfig) (Store, error) {
	switch cfg.Backend {
	case "badger", "":
		return openBadger(cfg)
	case "sql":
		return openGorm(cfg)
	default:
		return nil, errors.New("registry: unknown backend " + cfg.Backend)
	}
}
