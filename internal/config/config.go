package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"rvslideshow/internal/playback"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Library  LibraryConfig  `yaml:"library"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Playback PlaybackConfig `yaml:"playback"`
	Audio    AudioConfig    `yaml:"audio"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LibraryConfig struct {
	Path          string        `yaml:"path"`
	Name          string        `yaml:"name"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
	PosterDir     string        `yaml:"poster_dir"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig bounds the in-memory cache of served media bytes.
type CacheConfig struct {
	Capacity int   `yaml:"capacity"`
	MaxSize  int64 `yaml:"max_size"` // bytes
}

type PlaybackConfig struct {
	// Session holds the defaults a start request or the play command
	// overrides.
	Session playback.Config `yaml:"session"`

	OutputDir string `yaml:"output_dir"`
	LockFile  string `yaml:"lock_file"`
	WakeLock  bool   `yaml:"wake_lock"`

	// SourceURL points play at a remote server instead of the local
	// library.
	SourceURL     string        `yaml:"source_url"`
	SourceTimeout time.Duration `yaml:"source_timeout"`
}

type AudioConfig struct {
	Enabled  bool   `yaml:"enabled"`
	MusicDir string `yaml:"music_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         6540,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
		},
		Library: LibraryConfig{
			Path:          "",
			Name:          "Media Library",
			Watch:         true,
			WatchDebounce: 2 * time.Second,
			PosterDir:     "data/posters",
		},
		Database: DatabaseConfig{
			Path: "data/library.db",
		},
		Cache: CacheConfig{
			Capacity: 256,
			MaxSize:  256 * 1024 * 1024, // 256 MB
		},
		Playback: PlaybackConfig{
			Session: playback.Config{
				CadenceMs:            int(playback.DefaultCadence / time.Millisecond),
				WindowSize:           playback.DefaultWindowSize,
				MuteMusicDuringVideo: true,
			},
			OutputDir:     "data/display",
			LockFile:      "data/display.lock",
			WakeLock:      true,
			SourceTimeout: 30 * time.Second,
		},
		Audio: AudioConfig{
			Enabled:  true,
			MusicDir: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads a YAML file over the defaults. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive")
	}
	if c.Playback.Session.CadenceMs < 0 {
		return fmt.Errorf("playback.session.cadence_ms must not be negative")
	}
	if c.Playback.Session.WindowSize < 0 {
		return fmt.Errorf("playback.session.window_size must not be negative")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
