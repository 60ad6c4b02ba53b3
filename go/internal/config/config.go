package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// History drivers
const (
	HistoryDisabled = ""
	HistorySQLite   = "sqlite"
	HistoryPostgres = "postgres"
)

// Config is the gateway process configuration
type Config struct {
	Port     string `yaml:"port" env:"PORT"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	Game      GameConfig      `yaml:"game"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	CORS      CORSConfig      `yaml:"cors"`
	Journal   JournalConfig   `yaml:"journal"`
	History   HistoryConfig   `yaml:"history"`
	Database  DatabaseConfig  `yaml:"database"`
}

type GameConfig struct {
	DefaultDurationSeconds int           `yaml:"default_duration_seconds" env:"GAME_DEFAULT_DURATION_SECONDS"`
	TickInterval           time.Duration `yaml:"tick_interval" env:"GAME_TICK_INTERVAL"`
	PreserveDisplayOnReset bool          `yaml:"preserve_display_on_reset" env:"GAME_PRESERVE_DISPLAY_ON_RESET"`
}

type WebSocketConfig struct {
	MaxMessageSize int64         `yaml:"max_message_size" env:"WS_MAX_MESSAGE_SIZE"`
	SendBuffer     int           `yaml:"send_buffer" env:"WS_SEND_BUFFER"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WS_WRITE_TIMEOUT"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"WS_READ_TIMEOUT"`
	PingInterval   time.Duration `yaml:"ping_interval" env:"WS_PING_INTERVAL"`
	CommandRate    float64       `yaml:"command_rate" env:"WS_COMMAND_RATE"`
	CommandBurst   int           `yaml:"command_burst" env:"WS_COMMAND_BURST"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// JournalConfig enables the JetStream journal when URL is set
type JournalConfig struct {
	URL           string `yaml:"nats_url" env:"NATS_URL"`
	Stream        string `yaml:"stream" env:"NATS_STREAM"`
	SubjectPrefix string `yaml:"subject_prefix" env:"NATS_SUBJECT_PREFIX"`
	IncludeTicks  bool   `yaml:"include_ticks" env:"JOURNAL_INCLUDE_TICKS"`
}

func (j JournalConfig) Enabled() bool {
	return j.URL != ""
}

type HistoryConfig struct {
	Driver     string `yaml:"driver" env:"HISTORY_DRIVER"`
	SQLitePath string `yaml:"sqlite_path" env:"HISTORY_SQLITE_PATH"`
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Database string `yaml:"name" env:"DB_NAME"`
	SSLMode  string `yaml:"sslmode" env:"DB_SSLMODE"`
}

// DSN returns the Postgres connection URL.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		Port:     "8080",
		LogLevel: "info",
		Game: GameConfig{
			DefaultDurationSeconds: 3600,
			TickInterval:           time.Second,
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			SendBuffer:     256,
			WriteTimeout:   10 * time.Second,
			ReadTimeout:    60 * time.Second,
			PingInterval:   30 * time.Second,
			CommandRate:    20,
			CommandBurst:   40,
		},
		CORS: CORSConfig{AllowedOrigins: []string{"*"}},
		Journal: JournalConfig{
			Stream:        "GAME_EVENTS",
			SubjectPrefix: "game.events",
		},
		History: HistoryConfig{SQLitePath: "data/history.db"},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "escaperoom",
			SSLMode:  "disable",
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and then the environment.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.History.Driver = strings.ToLower(strings.TrimSpace(cfg.History.Driver))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.Game.DefaultDurationSeconds <= 0 {
		errs = append(errs, fmt.Errorf("default duration must be positive, got %d", c.Game.DefaultDurationSeconds))
	}
	if c.Game.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %s", c.Game.TickInterval))
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("websocket max message size must be positive"))
	}
	if c.WebSocket.SendBuffer < 1 {
		errs = append(errs, errors.New("websocket send buffer must be at least 1"))
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		errs = append(errs, fmt.Errorf("ping interval %s must be positive and shorter than read timeout %s",
			c.WebSocket.PingInterval, c.WebSocket.ReadTimeout))
	}
	if c.WebSocket.CommandRate <= 0 || c.WebSocket.CommandBurst < 1 {
		errs = append(errs, errors.New("command rate and burst must be positive"))
	}

	switch c.History.Driver {
	case HistoryDisabled, HistoryPostgres:
	case HistorySQLite:
		if c.History.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite history needs a path"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown history driver %q", c.History.Driver))
	}

	if c.Journal.Enabled() && (c.Journal.Stream == "" || c.Journal.SubjectPrefix == "") {
		errs = append(errs, errors.New("journal needs a stream and subject prefix"))
	}

	return errors.Join(errs...)
}
