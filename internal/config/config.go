package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// PathEnv overrides the config file location.
const PathEnv = "SCENESYNC_CONFIG"

// DefaultPath is used when PathEnv is unset.
const DefaultPath = "config/server.toml"

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Network   NetworkConfig   `toml:"network"`
	Scene     SceneConfig     `toml:"scene"`
	Journal   JournalConfig   `toml:"journal"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type ServerConfig struct {
	Name      string `toml:"name" env:"SCENESYNC_SERVER_NAME"`
	StartTime int64  // set at boot, not from config
}

type DatabaseConfig struct {
	// DSN selects the backend: postgres:// URLs use pgx, anything else is a
	// SQLite file path.
	DSN             string        `toml:"dsn" env:"SCENESYNC_DATABASE_DSN"`
	MaxOpenConns    int           `toml:"max_open_conns" env:"SCENESYNC_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	SaveInterval    time.Duration `toml:"save_interval" env:"SCENESYNC_DATABASE_SAVE_INTERVAL"`
}

type NetworkConfig struct {
	BindAddress        string        `toml:"bind_address" env:"SCENESYNC_BIND_ADDRESS"`
	Path               string        `toml:"path"`
	TickRate           time.Duration `toml:"tick_rate" env:"SCENESYNC_TICK_RATE"`
	InputPoll          time.Duration `toml:"input_poll"` // 0 disables polling between ticks
	InQueueSize        int           `toml:"in_queue_size"`
	OutQueueSize       int           `toml:"out_queue_size"`
	MaxMessagesPerTick int           `toml:"max_messages_per_tick"`
	MaxMessageBytes    int64         `toml:"max_message_bytes"`
	WriteTimeout       time.Duration `toml:"write_timeout"`
	ReadTimeout        time.Duration `toml:"read_timeout"`
	MessagesPerSecond  float64       `toml:"messages_per_second" env:"SCENESYNC_MESSAGES_PER_SECOND"`
	Burst              int           `toml:"burst"`
}

type SceneConfig struct {
	Table         string        `toml:"table" env:"SCENESYNC_SCENE_TABLE"`
	ScriptsDir    string        `toml:"scripts_dir" env:"SCENESYNC_SCRIPTS_DIR"`
	SettleDelay   time.Duration `toml:"settle_delay" env:"SCENESYNC_SETTLE_DELAY"`
	ParkPosition  [3]float64    `toml:"park_position"`
	SpawnEnabled  bool          `toml:"spawn_enabled" env:"SCENESYNC_SPAWN_ENABLED"`
	SpawnInterval time.Duration `toml:"spawn_interval"`
	BallLifetime  time.Duration `toml:"ball_lifetime"`
	SpawnWidth    float64       `toml:"spawn_width"`
	SpawnHeight   float64       `toml:"spawn_height"`
	BallRadius    float64       `toml:"ball_radius"`
	BallMass      float64       `toml:"ball_mass"`
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled" env:"SCENESYNC_JOURNAL_ENABLED"`
	Dir     string `toml:"dir" env:"SCENESYNC_JOURNAL_DIR"`
}

type LoggingConfig struct {
	Level  string `toml:"level" env:"SCENESYNC_LOG_LEVEL"`
	Format string `toml:"format" env:"SCENESYNC_LOG_FORMAT"` // "json" or "console"
}

type TelemetryConfig struct {
	// Endpoint is the OTLP/HTTP collector host:port. Empty disables tracing.
	Endpoint    string `toml:"endpoint" env:"SCENESYNC_OTLP_ENDPOINT"`
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name"`
}

// Load reads the TOML file at path over the defaults, then applies
// SCENESYNC_* environment overrides. A missing file is not an error: the
// defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

// PathFromEnv returns the config path to load.
func PathFromEnv() string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultPath
}

func (c *Config) validate() error {
	if c.Network.TickRate <= 0 {
		return fmt.Errorf("config: network.tick_rate must be positive, got %s", c.Network.TickRate)
	}
	if p := c.Network.InputPoll; p < 0 || (p > 0 && p >= c.Network.TickRate) {
		return fmt.Errorf("config: network.input_poll must be 0 or shorter than tick_rate, got %s", p)
	}
	if c.Network.InQueueSize <= 0 || c.Network.OutQueueSize <= 0 {
		return fmt.Errorf("config: network queue sizes must be positive")
	}
	if c.Scene.SettleDelay <= 0 {
		return fmt.Errorf("config: scene.settle_delay must be positive, got %s", c.Scene.SettleDelay)
	}
	if c.Scene.SpawnEnabled && c.Scene.SpawnInterval <= 0 {
		return fmt.Errorf("config: scene.spawn_interval must be positive when spawning")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "scenesync",
		},
		Database: DatabaseConfig{
			DSN:             "data/scenesync.db",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			SaveInterval:    5 * time.Second,
		},
		Network: NetworkConfig{
			BindAddress:        "0.0.0.0:7010",
			Path:               "/ws",
			TickRate:           50 * time.Millisecond,
			InputPoll:          10 * time.Millisecond,
			InQueueSize:        128,
			OutQueueSize:       256,
			MaxMessagesPerTick: 32,
			MaxMessageBytes:    64 << 10,
			WriteTimeout:       10 * time.Second,
			ReadTimeout:        60 * time.Second,
			MessagesPerSecond:  60,
			Burst:              120,
		},
		Scene: SceneConfig{
			Table:         "data/yaml/scene.yaml",
			ScriptsDir:    "scripts",
			SettleDelay:   time.Second,
			ParkPosition:  [3]float64{0, -10, 0},
			SpawnEnabled:  true,
			SpawnInterval: time.Second,
			BallLifetime:  10 * time.Second,
			SpawnWidth:    1.8,
			SpawnHeight:   3,
			BallRadius:    0.1,
			BallMass:      3,
		},
		Journal: JournalConfig{
			Enabled: true,
			Dir:     "data/journal",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "scenesync",
		},
	}
}
