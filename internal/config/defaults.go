package config

import (
	"strings"
	"time"

	"fixengine/internal/bytesize"
)

// DefaultConfig returns an EngineConfig populated entirely with defaults.
// Used when no config file is found.
func DefaultConfig() *EngineConfig {
	cfg := &EngineConfig{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero-valued fields with sensible defaults. Explicit
// values from file/env are preserved.
func ApplyDefaults(cfg *EngineConfig) {
	applyLoggingDefaults(&cfg.Logging)
	applyDictionaryDefaults(&cfg.Dictionary)
	applyLogStoreDefaults(&cfg.LogStore)
	applyPoolDefaults(&cfg.Pool)
	applyRegistryDefaults(&cfg.Registry)
	applyNetworkDefaults(&cfg.Network)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	for i := range cfg.Sessions {
		applySessionDefaults(&cfg.Sessions[i])
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyDictionaryDefaults(cfg *DictionaryConfig) {
	if cfg.RootFile == "" {
		cfg.RootFile = "FIX44.xml"
	}
}

func applyLogStoreDefaults(cfg *LogStoreConfig) {
	if cfg.SegmentSize == 0 {
		cfg.SegmentSize = 64 * bytesize.MiB
	}
	if cfg.TailerPollInterval == 0 {
		cfg.TailerPollInterval = 50 * time.Millisecond
	}
}

func applyPoolDefaults(cfg *PoolConfig) {
	if cfg.Capacity == 0 {
		cfg.Capacity = 4096
	}
	if cfg.MessageSize == 0 {
		cfg.MessageSize = 4 * bytesize.KiB
	}
	if cfg.RingCapacity == 0 {
		cfg.RingCapacity = 1024
	}
	if cfg.Backpressure == "" {
		cfg.Backpressure = "SYNC_FALLBACK"
	}
}

func applyRegistryDefaults(cfg *RegistryConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "badger"
	}
	if cfg.Backend == "badger" && cfg.Path == "" {
		cfg.Path = "/var/lib/fixengine/registry"
	}
	if cfg.Backend == "sql" && cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
}

func applyNetworkDefaults(cfg *NetworkConfig) {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 8 * bytesize.KiB
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "UTC"
	}
}
