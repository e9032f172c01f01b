package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree for the BSE Direct NFCAST feed
// ingestion pipeline, loaded from YAML with environment-variable overrides.
type Config struct {
	Multicast    MulticastConfig `yaml:"multicast"`
	BufferSize   int             `yaml:"buffer_size"`
	Timeout      time.Duration   `yaml:"timeout"`
	TokenFile    string          `yaml:"token_file"`
	// OutputJSON and OutputCSV are directory paths: the sink writes one
	// dated file per day into each, not a single fixed file.
	OutputJSON   string          `yaml:"output_json"`
	OutputCSV    string          `yaml:"output_csv"`
	LoggingLevel string          `yaml:"logging_level"`
	Logging      LoggingConfig   `yaml:"logging"`
	Sink         SinkConfig      `yaml:"sink"`
}

// MulticastConfig identifies the BSE multicast group to join.
type MulticastConfig struct {
	IP        string `yaml:"ip"`
	Port      int    `yaml:"port"`
	Interface string `yaml:"interface"`
}

// LoggingConfig configures the structured logger and its optional
// CloudWatch publish path.
type LoggingConfig struct {
	Format     string           `yaml:"format"`
	Output     string           `yaml:"output"`
	MaxAge     int              `yaml:"max_age"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

// CloudWatchConfig enables publishing pipeline-stage metrics to CloudWatch.
type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

// SinkConfig wraps the required JSON/CSV daily writers' archival
// supplement. Disabled by default and additive only: the required daily
// writers function independently of it.
type SinkConfig struct {
	Archive ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig configures the optional S3/Parquet mirror of rotated-away
// daily output files.
type ArchiveConfig struct {
	S3      S3ArchiveConfig      `yaml:"s3"`
	Parquet ParquetArchiveConfig `yaml:"parquet"`
}

// S3ArchiveConfig configures upload of rotated daily files to S3.
type S3ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Region  string `yaml:"region"`
	// AccessKeyID/SecretAccessKey are optional static credentials for
	// deployments that archive from a host with no IAM role attached
	// (the feed appliance is often on-prem, not EC2). Left blank, the
	// archiver falls back to the AWS SDK's default credential chain.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// ParquetArchiveConfig configures the optional Parquet mirror of quotes.
type ParquetArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// LoadConfig reads and validates the YAML configuration at path, then
// applies BSEFEED_* environment variable overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Config{
		BufferSize:   65536,
		Timeout:      time.Second,
		LoggingLevel: "info",
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides follows the same override idiom as logger/logger.go's
// LOG_LEVEL handling: each recognized variable present (BSEFEED_MULTICAST_IP,
// BSEFEED_MULTICAST_PORT, BSEFEED_TOKEN_FILE, BSEFEED_OUTPUT_JSON,
// BSEFEED_OUTPUT_CSV, BSEFEED_LOGGING_LEVEL, BSEFEED_S3_BUCKET, and
// AWS_REGION when CloudWatch is enabled) overrides the matching YAML key
// regardless of the value already loaded from file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BSEFEED_MULTICAST_IP"); v != "" {
		cfg.Multicast.IP = strings.TrimSpace(v)
	}
	if v := os.Getenv("BSEFEED_MULTICAST_PORT"); v != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Multicast.Port = port
		}
	}
	if v := os.Getenv("BSEFEED_TOKEN_FILE"); v != "" {
		cfg.TokenFile = strings.TrimSpace(v)
	}
	if v := os.Getenv("BSEFEED_OUTPUT_JSON"); v != "" {
		cfg.OutputJSON = strings.TrimSpace(v)
	}
	if v := os.Getenv("BSEFEED_OUTPUT_CSV"); v != "" {
		cfg.OutputCSV = strings.TrimSpace(v)
	}
	if v := os.Getenv("BSEFEED_LOGGING_LEVEL"); v != "" {
		cfg.LoggingLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_REGION"); v != "" && cfg.Logging.CloudWatch.Enabled {
		cfg.Logging.CloudWatch.Region = strings.TrimSpace(v)
	}
	if v := os.Getenv("BSEFEED_S3_BUCKET"); v != "" {
		cfg.Sink.Archive.S3.Bucket = strings.TrimSpace(v)
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Multicast.IP == "" {
		return fmt.Errorf("multicast.ip is required")
	}
	if cfg.Multicast.Port <= 0 {
		return fmt.Errorf("multicast.port must be greater than 0")
	}
	if cfg.Multicast.Interface == "" && IsProductionLike(AppEnvironment()) {
		return fmt.Errorf("multicast.interface is required in production-like environments")
	}
	if cfg.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be greater than 0")
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	if cfg.TokenFile == "" {
		return fmt.Errorf("token_file is required")
	}
	if cfg.OutputJSON == "" {
		return fmt.Errorf("output_json is required")
	}
	if cfg.OutputCSV == "" {
		return fmt.Errorf("output_csv is required")
	}

	if cfg.Sink.Archive.S3.Enabled {
		if cfg.Sink.Archive.S3.Bucket == "" {
			return fmt.Errorf("sink.archive.s3.bucket is required when S3 archiving is enabled")
		}
		if cfg.Sink.Archive.S3.Region == "" {
			return fmt.Errorf("sink.archive.s3.region is required when S3 archiving is enabled")
		}
		if !isValidS3Bucket(cfg.Sink.Archive.S3.Bucket) {
			return fmt.Errorf("sink.archive.s3.bucket '%s' is invalid", cfg.Sink.Archive.S3.Bucket)
		}
	}

	if cfg.Sink.Archive.Parquet.Enabled && cfg.Sink.Archive.Parquet.Dir == "" {
		return fmt.Errorf("sink.archive.parquet.dir is required when Parquet archiving is enabled")
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

// EnsureOutputDirs creates the configured JSON/CSV sink directories and,
// when enabled, the Parquet archive directory.
func EnsureOutputDirs(cfg *Config) error {
	dirs := []string{cfg.OutputJSON, cfg.OutputCSV}
	if cfg.Sink.Archive.Parquet.Enabled && cfg.Sink.Archive.Parquet.Dir != "" {
		dirs = append(dirs, cfg.Sink.Archive.Parquet.Dir)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory '%s': %w", dir, err)
		}
	}
	return nil
}
