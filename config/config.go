package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Inventory   InventoryConfig   `yaml:"inventory"`
	Booking     BookingConfig     `yaml:"booking"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Storage     StorageConfig     `yaml:"storage"`
	Worker      WorkerConfig      `yaml:"worker"`
	Log         LogConfig         `yaml:"log"`
}

// Duration accepts Go duration strings ("30s", "5m") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
	GinMode    string `yaml:"gin_mode"`
}

type DatabaseConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	User         string   `yaml:"user"`
	Password     string   `yaml:"password"`
	Name         string   `yaml:"name"`
	SSLMode      string   `yaml:"ssl_mode"`
	QueryTimeout Duration `yaml:"query_timeout"`
	AutoMigrate  bool     `yaml:"auto_migrate"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type InventoryConfig struct {
	BaseURL              string   `yaml:"base_url"`
	Timeout              Duration `yaml:"timeout"`
	MaxRetries           int      `yaml:"max_retries"`
	RetryInitialInterval Duration `yaml:"retry_initial_interval"`
}

type BookingConfig struct {
	ReservationTimeout Duration `yaml:"reservation_timeout"`
}

type IdempotencyConfig struct {
	// Backend is one of postgres, redis, memory.
	Backend  string   `yaml:"backend"`
	// RedisTTL bounds how long a claimed key lives in Redis. Zero keeps keys
	// forever and leaves eviction to the Redis deployment.
	RedisTTL Duration `yaml:"redis_ttl"`
}

type StorageConfig struct {
	// Driver is one of postgres, memory.
	Driver string `yaml:"driver"`
}

type WorkerConfig struct {
	SweepInterval Duration `yaml:"sweep_interval"`
	BatchSize     int      `yaml:"batch_size"`
	// Embedded runs the expiry sweeper inside the API process. Always on for
	// memory storage, which a separate worker cannot see.
	Embedded bool `yaml:"embedded"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used for any key missing from the file.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address: ":8080",
			GinMode: "release",
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "postgres",
			Name:         "bookings",
			SSLMode:      "disable",
			QueryTimeout: Duration(5 * time.Second),
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Kafka: KafkaConfig{
			BookingEventsTopic: "booking-events",
			NotificationsTopic: "booking-notifications",
			GroupID:            "booking-notifier",
		},
		Inventory: InventoryConfig{
			BaseURL:              "http://localhost:3000",
			Timeout:              Duration(3 * time.Second),
			MaxRetries:           2,
			RetryInitialInterval: Duration(200 * time.Millisecond),
		},
		Booking: BookingConfig{
			ReservationTimeout: Duration(5 * time.Minute),
		},
		Idempotency: IdempotencyConfig{
			Backend: "postgres",
		},
		Storage: StorageConfig{
			Driver: "postgres",
		},
		Worker: WorkerConfig{
			SweepInterval: Duration(30 * time.Second),
			BatchSize:     100,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Idempotency.Backend {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("unknown idempotency backend %q", c.Idempotency.Backend)
	}
	if c.Idempotency.Backend == "postgres" && c.Storage.Driver != "postgres" {
		return fmt.Errorf("postgres idempotency backend requires postgres storage")
	}
	if c.Booking.ReservationTimeout <= 0 {
		return fmt.Errorf("booking.reservation_timeout must be positive")
	}
	if c.Worker.SweepInterval <= 0 {
		return fmt.Errorf("worker.sweep_interval must be positive")
	}
	if c.Inventory.BaseURL == "" {
		return fmt.Errorf("inventory.base_url is required")
	}
	return nil
}
