package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	DB        DBConfig        `yaml:"db"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	Workers   WorkersConfig   `yaml:"workers"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	Root string `yaml:"root"`
}

type CacheConfig struct {
	MaxBytes              int64         `yaml:"max_bytes"`
	PressureCheckInterval time.Duration `yaml:"pressure_check_interval"`
	HeapLimitBytes        uint64        `yaml:"heap_limit_bytes"`
}

type SessionsConfig struct {
	MaxRetained int    `yaml:"max_retained"`
	ResetPolicy string `yaml:"reset_policy"`
	DefaultName string `yaml:"default_name"`
}

type ThumbnailConfig struct {
	Width   int `yaml:"width"`
	Height  int `yaml:"height"`
	Quality int `yaml:"quality"`
}

type WorkersConfig struct {
	IOLimit int `yaml:"io_limit"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		DB: DBConfig{
			Path: "fieldcam.db",
		},
		Storage: StorageConfig{
			Root: "artifacts",
		},
		Cache: CacheConfig{
			MaxBytes:              64 << 20,
			PressureCheckInterval: 30 * time.Second,
			HeapLimitBytes:        512 << 20,
		},
		Sessions: SessionsConfig{
			MaxRetained: 20,
			ResetPolicy: "session",
			DefaultName: "Inspection",
		},
		Thumbnail: ThumbnailConfig{
			Width:   320,
			Height:  240,
			Quality: 85,
		},
		Workers: WorkersConfig{
			IOLimit: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("FIELDCAM_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("FIELDCAM_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if err := envInt("FIELDCAM_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if mode := os.Getenv("FIELDCAM_TRANSPORT_MODE"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if dbPath := os.Getenv("FIELDCAM_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if root := os.Getenv("FIELDCAM_STORAGE_ROOT"); root != "" {
		cfg.Storage.Root = root
	}
	if v := os.Getenv("FIELDCAM_CACHE_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid FIELDCAM_CACHE_MAX_BYTES: %w", err)
		}
		cfg.Cache.MaxBytes = n
	}
	if v := os.Getenv("FIELDCAM_CACHE_PRESSURE_CHECK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FIELDCAM_CACHE_PRESSURE_CHECK_INTERVAL: %w", err)
		}
		cfg.Cache.PressureCheckInterval = d
	}
	if v := os.Getenv("FIELDCAM_CACHE_HEAP_LIMIT_BYTES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid FIELDCAM_CACHE_HEAP_LIMIT_BYTES: %w", err)
		}
		cfg.Cache.HeapLimitBytes = n
	}
	if err := envInt("FIELDCAM_SESSIONS_MAX_RETAINED", &cfg.Sessions.MaxRetained); err != nil {
		return err
	}
	if policy := os.Getenv("FIELDCAM_SESSIONS_RESET_POLICY"); policy != "" {
		cfg.Sessions.ResetPolicy = policy
	}
	if name := os.Getenv("FIELDCAM_SESSIONS_DEFAULT_NAME"); name != "" {
		cfg.Sessions.DefaultName = name
	}
	if err := envInt("FIELDCAM_THUMBNAIL_WIDTH", &cfg.Thumbnail.Width); err != nil {
		return err
	}
	if err := envInt("FIELDCAM_THUMBNAIL_HEIGHT", &cfg.Thumbnail.Height); err != nil {
		return err
	}
	if err := envInt("FIELDCAM_THUMBNAIL_QUALITY", &cfg.Thumbnail.Quality); err != nil {
		return err
	}
	if err := envInt("FIELDCAM_WORKERS_IO_LIMIT", &cfg.Workers.IOLimit); err != nil {
		return err
	}
	if level := os.Getenv("FIELDCAM_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Transport.Mode {
	case "http", "stdio":
	default:
		errs = append(errs, fmt.Errorf("transport.mode must be http or stdio, got %q", c.Transport.Mode))
	}
	if c.DB.Path == "" {
		errs = append(errs, errors.New("db.path is required"))
	}
	if c.Storage.Root == "" {
		errs = append(errs, errors.New("storage.root is required"))
	}
	if c.Cache.MaxBytes < 0 {
		errs = append(errs, errors.New("cache.max_bytes must not be negative"))
	}
	if c.Sessions.MaxRetained < 1 {
		errs = append(errs, errors.New("sessions.max_retained must be at least 1"))
	}
	if c.Thumbnail.Width <= 0 || c.Thumbnail.Height <= 0 {
		errs = append(errs, errors.New("thumbnail width and height must be positive"))
	}
	if c.Thumbnail.Quality < 1 || c.Thumbnail.Quality > 100 {
		errs = append(errs, errors.New("thumbnail.quality must be between 1 and 100"))
	}
	if c.Workers.IOLimit < 1 {
		errs = append(errs, errors.New("workers.io_limit must be at least 1"))
	}
	return errors.Join(errs...)
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
