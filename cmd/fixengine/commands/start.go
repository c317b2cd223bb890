package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fixengine/internal/config"
	"fixengine/internal/dictionary"
	"fixengine/internal/engine"
	"fixengine/internal/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the FIX session engine",
	Long: `Start the FIX session engine with the specified configuration.

Loads every session pre-provisioned in the config file's sessions list and
every session discovered in the durable registry (if one is configured),
then runs in the foreground until interrupted.

Examples:
  # Start with default config location
  fixengine start

  # Start with custom config file
  fixengine start --config /etc/fixengine/config.yaml

  # Override log level via environment variable
  FIXENGINE_LOGGING_LEVEL=DEBUG fixengine start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := telemetry.Init(telemetry.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	watcher, err := dictionary.NewWatcher(cfg.Dictionary.BaseDir, cfg.Dictionary.RootFile, cfg.Dictionary.WatchForChanges)
	if err != nil {
		return fmt.Errorf("load FIX dictionary: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	e := engine.New(cfg, watcher.Current())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restored, err := e.LoadSessions(ctx)
	if err != nil {
		return fmt.Errorf("load sessions from registry: %w", err)
	}
	for _, id := range restored {
		telemetry.Info("session restored from registry", "session_id", id)
	}

	for _, sc := range cfg.Sessions {
		id, err := e.CreateSession(sc)
		if err != nil {
			telemetry.Warn("failed to create pre-provisioned session", "error", err)
			continue
		}
		telemetry.Info("session created from config", "session_id", id)
	}

	e.Start()
	for _, sc := range cfg.Sessions {
		if sc.ConnectionType == "initiator" {
			if err := e.Connect(sc.SessionID()); err != nil {
				telemetry.Warn("initial connect failed", "session_id", sc.SessionID(), "error", err)
			}
		}
	}

	cmd.Println("fixengine started. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	signal.Stop(sigChan)

	telemetry.Info("shutdown signal received, stopping engine")
	e.Stop()
	telemetry.Info("engine stopped")
	return nil
}
