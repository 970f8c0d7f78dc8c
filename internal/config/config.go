package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/gateway/pkg/utils"
)

// Driver kinds
const (
	DriverFS = "fs"
	DriverS3 = "s3"
)

// Cache backends
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// minPartSize is the smallest part S3 accepts for any part but the last.
const minPartSize = 5 * 1024 * 1024

// Configuration represents the complete application configuration
type Configuration struct {
	Server     ServerConfig        `yaml:"server"`
	Storage    StorageConfig       `yaml:"storage"`
	Cache      CacheConfig         `yaml:"cache"`
	Logging    utils.LoggingConfig `yaml:"logging"`
	Monitoring MonitoringConfig    `yaml:"monitoring"`
	Info       InfoConfig          `yaml:"info"`
}

// ServerConfig represents the RPC listener settings
type ServerConfig struct {
	Address         string        `yaml:"address"`
	AuthToken       string        `yaml:"auth_token"`
	MaxMessageMB    int           `yaml:"max_message_mb"`
	Version         string        `yaml:"version"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects and configures the storage driver
type StorageConfig struct {
	Driver string   `yaml:"driver"`
	FS     FSConfig `yaml:"fs"`
	S3     S3Config `yaml:"s3"`
}

// FSConfig represents filesystem driver settings
type FSConfig struct {
	Root      string `yaml:"root"`
	ChunkSize string `yaml:"chunk_size"`
	Workers   int    `yaml:"workers"`
}

// S3Config represents object store driver settings
type S3Config struct {
	Endpoint        string        `yaml:"endpoint"`
	Region          string        `yaml:"region"`
	Bucket          string        `yaml:"bucket"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	SessionToken    string        `yaml:"session_token"`
	ForcePathStyle  bool          `yaml:"force_path_style"`
	MaxRetries      int           `yaml:"max_retries"`
	PartSize        string        `yaml:"part_size"`
	PresignTTL      time.Duration `yaml:"presign_ttl"`
	Retry           RetryConfig   `yaml:"retry"`
}

// RetryConfig represents retry settings
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// CacheConfig represents cache tier settings
type CacheConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	Backend        string               `yaml:"backend"`
	RedisURL       string               `yaml:"redis_url"`
	KeyPrefix      string               `yaml:"key_prefix"`
	MetaTTL        time.Duration        `yaml:"meta_ttl"`
	DataTTL        time.Duration        `yaml:"data_ttl"`
	MaxFileSize    string               `yaml:"max_file_size"`
	MemoryMaxSize  string               `yaml:"memory_max_size"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig represents circuit breaker settings
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// MonitoringConfig represents the ops HTTP endpoint settings
type MonitoringConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
}

// InfoConfig describes the instance for the Info service
type InfoConfig struct {
	AppName    string            `yaml:"app_name"`
	InstanceID string            `yaml:"instance_id"`
	Host       string            `yaml:"host"`
	Labels     map[string]string `yaml:"labels"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "localhost"
	}

	return &Configuration{
		Server: ServerConfig{
			Address:         "0.0.0.0:50070",
			MaxMessageMB:    64,
			Version:         "1.0.0",
			ShutdownTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			Driver: DriverFS,
			FS: FSConfig{
				Root:      "/tmp/ytstorage_data",
				ChunkSize: "1MiB",
				Workers:   32,
			},
			S3: S3Config{
				Endpoint:       "http://127.0.0.1:9000",
				Region:         "us-east-1",
				Bucket:         "yurtube-bucket",
				ForcePathStyle: true,
				MaxRetries:     3,
				PartSize:       "5MiB",
				PresignTTL:     time.Hour,
				Retry: RetryConfig{
					MaxAttempts: 3,
					BaseDelay:   200 * time.Millisecond,
					MaxDelay:    2 * time.Second,
				},
			},
		},
		Cache: CacheConfig{
			Enabled:       true,
			Backend:       CacheBackendRedis,
			RedisURL:      "redis://localhost:6379/0",
			KeyPrefix:     "ytstorage:",
			MetaTTL:       600 * time.Second,
			DataTTL:       3600 * time.Second,
			MaxFileSize:   "1MiB",
			MemoryMaxSize: "256MiB",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Timeout:          30 * time.Second,
			},
		},
		Logging: utils.DefaultLoggingConfig(),
		Monitoring: MonitoringConfig{
			Enabled:   true,
			Address:   "0.0.0.0:8080",
			Namespace: "gateway",
		},
		Info: InfoConfig{
			AppName:    "YTStorage",
			InstanceID: hostname,
			Host:       "127.0.0.1:50070",
			Labels:     map[string]string{},
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file (if
// any), then a .env file in the working directory (if present), then the
// process environment. The result is validated.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()

	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given files into the environment
// without overriding variables that are already set. Missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to stat env file %s: %w", f, err)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	// Server
	if val := os.Getenv("STORAGE_REMOTE_ADDRESS"); val != "" {
		c.Server.Address = val
	}
	if val, ok := os.LookupEnv("STORAGE_REMOTE_TOKEN"); ok {
		c.Server.AuthToken = val
	}
	if val := os.Getenv("STORAGE_GRPC_MAX_MSG_MB"); val != "" {
		mb, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid STORAGE_GRPC_MAX_MSG_MB: %w", err)
		}
		c.Server.MaxMessageMB = mb
	}
	if val := os.Getenv("VERSION"); val != "" {
		c.Server.Version = val
	}

	// Storage
	if val := os.Getenv("DRIVER_KIND"); val != "" {
		c.Storage.Driver = strings.ToLower(val)
	}
	if val := os.Getenv("APP_STORAGE_FS_ROOT"); val != "" {
		c.Storage.FS.Root = val
	}
	if val := os.Getenv("S3_ENDPOINT_URL"); val != "" {
		c.Storage.S3.Endpoint = val
	}
	if val := os.Getenv("S3_ACCESS_KEY_ID"); val != "" {
		c.Storage.S3.AccessKeyID = val
	}
	if val := os.Getenv("S3_SECRET_ACCESS_KEY"); val != "" {
		c.Storage.S3.SecretAccessKey = val
	}
	if val := os.Getenv("S3_BUCKET_NAME"); val != "" {
		c.Storage.S3.Bucket = val
	}
	if val := os.Getenv("S3_REGION_NAME"); val != "" {
		c.Storage.S3.Region = val
	}

	// Cache
	if val := os.Getenv("USE_REDIS_CACHE"); val != "" {
		c.Cache.Enabled = parseBool(val)
	}
	if val := os.Getenv("CACHE_BACKEND"); val != "" {
		c.Cache.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("REDIS_URL"); val != "" {
		c.Cache.RedisURL = val
	}
	if val := os.Getenv("CACHE_TTL_META"); val != "" {
		ttl, err := parseSeconds(val)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL_META: %w", err)
		}
		c.Cache.MetaTTL = ttl
	}
	if val := os.Getenv("CACHE_TTL_DATA"); val != "" {
		ttl, err := parseSeconds(val)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL_DATA: %w", err)
		}
		c.Cache.DataTTL = ttl
	}
	if val := os.Getenv("CACHE_MAX_FILE_SIZE"); val != "" {
		c.Cache.MaxFileSize = val
	}

	// Logging and monitoring
	if val := os.Getenv("GATEWAY_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("GATEWAY_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
	if val := os.Getenv("GATEWAY_LOG_FILE"); val != "" {
		c.Logging.File = val
	}
	if val := os.Getenv("GATEWAY_OPS_ADDRESS"); val != "" {
		c.Monitoring.Address = val
	}
	if val := os.Getenv("HOSTNAME"); val != "" {
		c.Info.InstanceID = val
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address must not be empty")
	}
	if c.Server.MaxMessageMB <= 0 {
		return fmt.Errorf("max_message_mb must be greater than 0")
	}

	switch c.Storage.Driver {
	case DriverFS:
		if c.Storage.FS.Root == "" {
			return fmt.Errorf("fs root must not be empty")
		}
		if c.Storage.FS.Workers <= 0 {
			return fmt.Errorf("fs workers must be greater than 0")
		}
		if _, err := c.ChunkSize(); err != nil {
			return err
		}
	case DriverS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket must not be empty")
		}
		partSize, err := c.PartSize()
		if err != nil {
			return err
		}
		if partSize < minPartSize {
			return fmt.Errorf("s3 part_size must be at least 5MiB, got %s", c.Storage.S3.PartSize)
		}
	default:
		return fmt.Errorf("unknown driver kind: %q (must be one of: %s, %s)", c.Storage.Driver, DriverFS, DriverS3)
	}

	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case CacheBackendRedis:
			if c.Cache.RedisURL == "" {
				return fmt.Errorf("redis_url must not be empty when the redis cache is enabled")
			}
		case CacheBackendMemory:
			if _, err := parseSize("memory_max_size", c.Cache.MemoryMaxSize); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown cache backend: %q", c.Cache.Backend)
		}
		if c.Cache.MetaTTL <= 0 || c.Cache.DataTTL <= 0 {
			return fmt.Errorf("cache TTLs must be greater than 0")
		}
		if _, err := c.CacheMaxFileSize(); err != nil {
			return err
		}
	}

	if _, err := utils.ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log_level: %s (must be one of: DEBUG, INFO, WARN, ERROR)", c.Logging.Level)
	}

	return nil
}

// ChunkSize returns the filesystem write chunk size in bytes
func (c *Configuration) ChunkSize() (int, error) {
	n, err := parseSize("chunk_size", c.Storage.FS.ChunkSize)
	return int(n), err
}

// PartSize returns the multipart part threshold in bytes
func (c *Configuration) PartSize() (int64, error) {
	return parseSize("part_size", c.Storage.S3.PartSize)
}

// CacheMaxFileSize returns the data cache ceiling in bytes
func (c *Configuration) CacheMaxFileSize() (int64, error) {
	return parseSize("max_file_size", c.Cache.MaxFileSize)
}

// CacheMemoryMaxSize returns the in-memory cache capacity in bytes
func (c *Configuration) CacheMemoryMaxSize() (int64, error) {
	return parseSize("memory_max_size", c.Cache.MemoryMaxSize)
}

// MaxMessageBytes returns the gRPC message size limit in bytes
func (c *Configuration) MaxMessageBytes() int {
	return c.Server.MaxMessageMB * 1024 * 1024
}

func parseSize(name, val string) (int64, error) {
	n, err := units.RAMInBytes(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, val, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", name)
	}
	return n, nil
}

// parseSeconds accepts a bare integer number of seconds or a Go duration.
func parseSeconds(val string) (time.Duration, error) {
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(val)
}

func parseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
