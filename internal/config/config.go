// Package config loads and validates engine configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (FIXENGINE_*)
//  2. Configuration file (YAML; the CLI's --config flag selects which one)
//  3. Default values (lowest priority)
//
// The engine itself never reads a config file: callers load an EngineConfig
// here and pass the already-decoded struct into internal/engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"fixengine/internal/bytesize"
)

// EngineConfig is the top-level configuration for a running engine process.
type EngineConfig struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout bounds graceful shutdown: draining in-flight frames,
	// sending logout acknowledgements, and flushing log segments.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	Dictionary DictionaryConfig `mapstructure:"dictionary" yaml:"dictionary"`
	LogStore   LogStoreConfig   `mapstructure:"log_store" yaml:"log_store"`
	Pool       PoolConfig       `mapstructure:"pool" yaml:"pool"`
	Registry   RegistryConfig   `mapstructure:"registry" yaml:"registry"`
	Archiver   ArchiverConfig   `mapstructure:"archiver" yaml:"archiver"`
	Network    NetworkConfig    `mapstructure:"network" yaml:"network"`

	// Sessions lists the FIX sessions this engine owns. Additional sessions
	// can be created at runtime via the admin surface; these are the ones
	// pre-provisioned at startup.
	Sessions []SessionConfig `mapstructure:"sessions" yaml:"sessions"`
}

// LoggingConfig controls telemetry output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// DictionaryConfig locates the FIX data dictionary XML documents.
type DictionaryConfig struct {
	// BaseDir is the directory RootFile is resolved against, and the
	// fallback for <import> paths not found relative to the importing
	// document's own directory.
	BaseDir string `mapstructure:"base_dir" validate:"required" yaml:"base_dir"`

	// RootFile is the entry-point XML document within BaseDir.
	RootFile string `mapstructure:"root_file" validate:"required" yaml:"root_file"`

	// WatchForChanges enables fsnotify-driven hot-reload when RootFile
	// changes; files it imports are not watched.
	WatchForChanges bool `mapstructure:"watch_for_changes" yaml:"watch_for_changes"`
}

// LogStoreConfig configures the append-only per-stream message log.
type LogStoreConfig struct {
	// Path is the directory holding one mmap-backed segment file per stream.
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// SegmentSize is the initial size of a new log segment; segments grow
	// by doubling when exhausted. Supports human-readable sizes ("64MB").
	SegmentSize bytesize.ByteSize `mapstructure:"segment_size" yaml:"segment_size"`

	// TailerPollInterval is how long the multi-stream tailer parks between
	// polls when no new entries are available.
	TailerPollInterval time.Duration `mapstructure:"tailer_poll_interval" yaml:"tailer_poll_interval"`
}

// PoolConfig sizes the bounded message pool and ring buffers.
type PoolConfig struct {
	// Capacity is the number of pooled message buffers.
	Capacity int `mapstructure:"capacity" validate:"omitempty,min=1" yaml:"capacity"`

	// MessageSize is the fixed capacity of each pooled buffer.
	MessageSize bytesize.ByteSize `mapstructure:"message_size" yaml:"message_size"`

	// RingCapacity is the number of slots in each session's SPSC ring buffer.
	// Must be a power of two.
	RingCapacity int `mapstructure:"ring_capacity" validate:"omitempty,min=2" yaml:"ring_capacity"`

	// Backpressure selects what happens when a ring buffer is full:
	// SYNC_FALLBACK, BLOCK, or DROP_AND_RESEND.
	Backpressure string `mapstructure:"backpressure" validate:"omitempty,oneof=SYNC_FALLBACK BLOCK DROP_AND_RESEND" yaml:"backpressure"`
}

// RegistryConfig selects the session registry backend.
type RegistryConfig struct {
	// Backend is "badger" or "sql".
	Backend string `mapstructure:"backend" validate:"required,oneof=badger sql" yaml:"backend"`

	// Path is the badger data directory, used when Backend is "badger".
	Path string `mapstructure:"path" yaml:"path"`

	// DSN is the SQL data source name, used when Backend is "sql".
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// Driver selects the SQL driver: "postgres" or "sqlite".
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=postgres sqlite" yaml:"driver"`

	// MigrationsPath is the directory of golang-migrate SQL migrations,
	// used when Backend is "sql".
	MigrationsPath string `mapstructure:"migrations_path" yaml:"migrations_path"`
}

// ArchiverConfig controls cold-archival of sealed log segments to S3.
type ArchiverConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Bucket  string `mapstructure:"bucket" validate:"required_if=Enabled true" yaml:"bucket"`
	Prefix  string `mapstructure:"prefix" yaml:"prefix"`
	Region  string `mapstructure:"region" yaml:"region"`
}

// NetworkConfig configures the acceptor listeners.
type NetworkConfig struct {
	// Ports is the set of TCP ports the engine accepts connections on.
	Ports []int `mapstructure:"ports" validate:"omitempty,dive,min=1,max=65535" yaml:"ports"`

	// ReadTimeout bounds how long the acceptor waits for a complete frame.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// MaxMessageSize is the largest frame the acceptor accepts before
	// treating the connection as malformed and disconnecting it.
	MaxMessageSize bytesize.ByteSize `mapstructure:"max_message_size" yaml:"max_message_size"`
}

// SessionConfig describes one pre-provisioned FIX session.
type SessionConfig struct {
	SenderCompID string `mapstructure:"sender_comp_id" validate:"required" yaml:"sender_comp_id"`
	TargetCompID string `mapstructure:"target_comp_id" validate:"required" yaml:"target_comp_id"`
	Qualifier    string `mapstructure:"qualifier" yaml:"qualifier,omitempty"`

	// ConnectionType is "acceptor" or "initiator".
	ConnectionType string `mapstructure:"connection_type" validate:"required,oneof=acceptor initiator" yaml:"connection_type"`

	// Port is the TCP port this session listens on (acceptor) or connects
	// to (initiator).
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// TargetHost is the remote host to dial, used when ConnectionType is
	// "initiator".
	TargetHost string `mapstructure:"target_host" yaml:"target_host,omitempty"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"required,gt=0" yaml:"heartbeat_interval"`

	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
}

// SessionID derives the engine's registry key for this session: the
// SenderCompID/TargetCompID pair, plus Qualifier when set to distinguish
// multiple sessions sharing the same CompID pair (e.g. separate order and
// drop-copy sessions to the same counterparty).
func (c SessionConfig) SessionID() string {
	if c.Qualifier == "" {
		return c.SenderCompID + "-" + c.TargetCompID
	}
	return c.SenderCompID + "-" + c.TargetCompID + "-" + c.Qualifier
}

// ScheduleConfig defines a session's trading window and EOD reset time.
type ScheduleConfig struct {
	// Timezone is an IANA zone name (e.g. "America/New_York").
	Timezone string `mapstructure:"timezone" validate:"required" yaml:"timezone"`

	// StartTime and EndTime are "HH:MM:SS" local times. EndTime before
	// StartTime denotes an overnight window that rolls past midnight.
	StartTime string `mapstructure:"start_time" validate:"required" yaml:"start_time"`
	EndTime   string `mapstructure:"end_time" validate:"required" yaml:"end_time"`

	// ResetTime is the local time of day sequence numbers reset, independent
	// of the trading window.
	ResetTime string `mapstructure:"reset_time" yaml:"reset_time"`

	// Days restricts the window to a set of weekdays, named by their
	// three-letter English abbreviation ("Sun", "Mon", ...). Empty means
	// every day. For an overnight window (EndTime before StartTime) a day
	// in the set permits that day's leg to start at StartTime and run
	// through EndTime the following calendar day, regardless of whether
	// the following day is itself in the set — membership is tested
	// against the leg's start day, per the trading-window schedule's
	// startDay semantics.
	Days []string `mapstructure:"days" validate:"omitempty,dive,oneof=Sun Mon Tue Wed Thu Fri Sat" yaml:"days,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*EngineConfig, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !found {
		cfg := DefaultConfig()
		return cfg, nil
	}

	var cfg EngineConfig
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, failing with instructions if the file is
// missing.
func MustLoad(configPath string) (*EngineConfig, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"create a config file there, or specify a custom one:\n"+
				"  fixengine <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML format.
func SaveConfig(cfg *EngineConfig, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("FIXENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fixengine")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "fixengine")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
