// Package config provides configuration management for the heap-dump analysis service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	APM       APMConfig       `mapstructure:"apm"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

// AnalysisConfig holds the tunables for the C1-C5 heap analysis pipeline
// that spec.md leaves as constants or open questions, exposed here as
// operator-configurable knobs.
type AnalysisConfig struct {
	// Version tags persisted AnalysisReport rows so a schema/algorithm
	// change can be told apart from a stale cached report.
	Version string `mapstructure:"version"`

	// DataDir is where built indexes (and their sibling directories, one
	// per dump) are persisted for reuse across process restarts.
	DataDir string `mapstructure:"data_dir"`

	// MaxWorker is loaded (default 5) but not read by the scheduler; the
	// number of AnalysisJobs run at once is Scheduler.WorkerCount.
	MaxWorker int `mapstructure:"max_worker"`

	// IndexedThresholdBytes is loaded (default 2 GiB) but not passed to
	// internal/heap: AUTO parsing mode always compares the dump size with
	// heap.DefaultIndexedThresholdBytes (also 2 GiB).
	IndexedThresholdBytes int64 `mapstructure:"indexed_threshold_bytes"`

	// MmapSegmentSize is the window size the mapped reader maps at a time
	// (§4.1). Must be a multiple of the OS page size.
	MmapSegmentSize int64 `mapstructure:"mmap_segment_size"`

	// StagnationPatience is validated (must be at least 1) but not passed
	// to internal/heap: the dominator engine always uses
	// heap.DefaultStagnationPatience (20) non-improving passes.
	StagnationPatience int `mapstructure:"stagnation_patience"`

	// InboundIndexEnabled makes Open build the inbound-reference index for
	// every job (a job can also ask for it through its own options).
	// Without it, InboundRefs reports FeatureNotEnabled (§7).
	InboundIndexEnabled bool `mapstructure:"inbound_index_enabled"`

	// HugeArrayWarnElements is loaded (default 1,000,000) but no component
	// reads it; no array is flagged or rejected by size.
	HugeArrayWarnElements int64 `mapstructure:"huge_array_warn_elements"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite, postgres, or mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// APMConfig holds APM callback configuration.
type APMConfig struct {
	URL           string `mapstructure:"url"`
	RequestYunAPI bool   `mapstructure:"request_yunapi"`
	Enabled       bool   `mapstructure:"enabled"`
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	PollInterval  int `mapstructure:"poll_interval"` // in seconds
	WorkerCount   int `mapstructure:"worker_count"`
	PrioritySlots int `mapstructure:"priority_slots"`
	JobBatchSize  int `mapstructure:"job_batch_size"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Determine config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/heapdump-analysis")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Check if it's a "file not found" error (either viper's type or os error)
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, use defaults
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			// File specified but doesn't exist, use defaults
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Allow environment variables to override config
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from an io.Reader (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Analysis defaults
	v.SetDefault("analysis.version", "1.0.0")
	v.SetDefault("analysis.data_dir", "./data")
	v.SetDefault("analysis.max_worker", 5)
	v.SetDefault("analysis.indexed_threshold_bytes", int64(2)<<30)   // 2 GiB, §4.3
	v.SetDefault("analysis.mmap_segment_size", int64(256)<<20)       // 256 MiB, §4.1
	v.SetDefault("analysis.stagnation_patience", 20)                 // §4.4
	v.SetDefault("analysis.inbound_index_enabled", false)
	v.SetDefault("analysis.huge_array_warn_elements", int64(1000000))

	// Database defaults
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "./data/heapdump-analysis.db")
	v.SetDefault("database.max_conns", 10)

	// Storage defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	// Scheduler defaults
	v.SetDefault("scheduler.poll_interval", 2)
	v.SetDefault("scheduler.worker_count", 5)
	v.SetDefault("scheduler.priority_slots", 2)
	v.SetDefault("scheduler.job_batch_size", 10)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "./logs")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite":
		if c.Database.Database == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	case "postgres", "mysql":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	// Storage config validation is delegated to the storage package.

	if c.Scheduler.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	if c.Analysis.StagnationPatience < 1 {
		return fmt.Errorf("analysis.stagnation_patience must be at least 1")
	}
	if c.Analysis.MmapSegmentSize < 0 {
		return fmt.Errorf("analysis.mmap_segment_size must not be negative")
	}

	return nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if c.Analysis.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Analysis.DataDir, 0755)
}

// IndexDirFor returns the per-dump index sibling directory under DataDir.
func (c *Config) IndexDirFor(jobUUID string) string {
	return filepath.Join(c.Analysis.DataDir, jobUUID)
}
