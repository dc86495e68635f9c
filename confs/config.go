package confs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the server. Values come from defaults, then an optional
// YAML file named by SIGNAGE_CONFIG, then environment variables.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json | console

	HTTP struct {
		Addr         string   `yaml:"addr"`
		AllowOrigins []string `yaml:"allow_origins"`
	} `yaml:"http"`

	Database DatabaseConfig `yaml:"database"`

	Dispatch struct {
		Workers         int           `yaml:"workers"`          // Shared delivery workers across all device lanes
		QueueSize       int           `yaml:"queue_size"`       // Pending lane drains before Submit blocks
		SweepInterval   time.Duration `yaml:"sweep_interval"`   // Periodic re-evaluation of open lanes
		AttemptTimeout  time.Duration `yaml:"attempt_timeout"`  // Deadline for a single transport hand-off
		DeliveryTimeout time.Duration `yaml:"delivery_timeout"` // Max time in delivering before failed
		StaleAfter      time.Duration `yaml:"stale_after"`      // Queued commands older than this are flagged stale
	} `yaml:"dispatch"`

	Push struct {
		ProgressTimeout time.Duration `yaml:"progress_timeout"` // Max silence from a transferring device
	} `yaml:"push"`

	Status struct {
		GraceWindow     time.Duration `yaml:"grace_window"`     // Terminal items stay visible this long per viewer
		Retention       time.Duration `yaml:"retention"`        // Terminal records are deleted after this
		ViewerTTL       time.Duration `yaml:"viewer_ttl"`       // Idle viewer state is dropped after this
		JanitorInterval time.Duration `yaml:"janitor_interval"` // How often retention runs
	} `yaml:"status"`

	Mailbox struct {
		PollGrace time.Duration `yaml:"poll_grace"` // A polling device counts as reachable this long
	} `yaml:"mailbox"`

	MQTT struct {
		Broker      string `yaml:"broker"` // Empty disables the MQTT transport
		ClientID    string `yaml:"client_id"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
		QOS         int    `yaml:"qos"`
	} `yaml:"mqtt"`

	Storage struct {
		Endpoint  string        `yaml:"endpoint"` // Empty falls back to BaseURL
		AccessKey string        `yaml:"access_key"`
		SecretKey string        `yaml:"secret_key"`
		Bucket    string        `yaml:"bucket"`
		UseSSL    bool          `yaml:"use_ssl"`
		URLExpiry time.Duration `yaml:"url_expiry"`
		BaseURL   string        `yaml:"base_url"`
	} `yaml:"storage"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres | mysql | sqlite
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	Path     string `yaml:"path"` // sqlite file
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	var cfg Config
	cfg.LogLevel = "info"
	cfg.LogFormat = "json"
	cfg.HTTP.Addr = "0.0.0.0:3536"
	cfg.Database.Driver = "postgres"
	cfg.Database.Path = "data/signage.db"
	cfg.Dispatch.Workers = 16
	cfg.Dispatch.QueueSize = 256
	cfg.Dispatch.SweepInterval = 5 * time.Second
	cfg.Dispatch.AttemptTimeout = 10 * time.Second
	cfg.Dispatch.DeliveryTimeout = 60 * time.Second
	cfg.Dispatch.StaleAfter = 30 * time.Minute
	cfg.Push.ProgressTimeout = 2 * time.Minute
	cfg.Status.GraceWindow = 5 * time.Second
	cfg.Status.Retention = 24 * time.Hour
	cfg.Status.ViewerTTL = 30 * time.Minute
	cfg.Status.JanitorInterval = time.Minute
	cfg.Mailbox.PollGrace = 30 * time.Second
	cfg.MQTT.ClientID = "signage-server"
	cfg.MQTT.TopicPrefix = "signage"
	cfg.MQTT.QOS = 1
	cfg.Storage.Bucket = "content"
	cfg.Storage.URLExpiry = 24 * time.Hour
	return cfg
}

// LoadConfig loads environment variables from a .env file if present, then builds the
// configuration.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("SIGNAGE_CONFIG"); path != "" {
		if err := readYaml(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Dispatch.Workers <= 0 {
		return errors.New("dispatch.workers must be positive")
	}
	if c.Dispatch.SweepInterval <= 0 || c.Status.JanitorInterval <= 0 {
		return errors.New("sweep and janitor intervals must be positive")
	}
	if c.Dispatch.DeliveryTimeout <= 0 || c.Push.ProgressTimeout <= 0 {
		return errors.New("delivery and progress timeouts must be positive")
	}
	if c.Status.GraceWindow <= 0 {
		return errors.New("status.grace_window must be positive")
	}
	if c.Status.Retention < c.Status.GraceWindow {
		return errors.New("status.retention must not be shorter than status.grace_window")
	}
	if c.MQTT.QOS < 0 || c.MQTT.QOS > 2 {
		return fmt.Errorf("invalid mqtt.qos %d", c.MQTT.QOS)
	}
	return nil
}

func readYaml(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	envString("LOG_LEVEL", &cfg.LogLevel)
	envString("LOG_FORMAT", &cfg.LogFormat)
	envString("HTTP_ADDR", &cfg.HTTP.Addr)
	if v := os.Getenv("HTTP_ALLOW_ORIGINS"); v != "" {
		cfg.HTTP.AllowOrigins = strings.Split(v, ",")
	}

	envString("DB_DRIVER", &cfg.Database.Driver)
	envString("DB_URL", &cfg.Database.URL)
	envString("DB_HOST", &cfg.Database.Host)
	envString("DB_PORT", &cfg.Database.Port)
	envString("DB_USER", &cfg.Database.User)
	envString("DB_PASSWORD", &cfg.Database.Password)
	envString("DB_NAME", &cfg.Database.Name)
	envString("DB_SSLMODE", &cfg.Database.SSLMode)
	envString("DB_PATH", &cfg.Database.Path)

	envString("MQTT_BROKER", &cfg.MQTT.Broker)
	envString("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	envString("MQTT_USERNAME", &cfg.MQTT.Username)
	envString("MQTT_PASSWORD", &cfg.MQTT.Password)
	envString("MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)

	envString("STORAGE_ENDPOINT", &cfg.Storage.Endpoint)
	envString("STORAGE_ACCESS_KEY", &cfg.Storage.AccessKey)
	envString("STORAGE_SECRET_KEY", &cfg.Storage.SecretKey)
	envString("STORAGE_BUCKET", &cfg.Storage.Bucket)
	envString("STORAGE_BASE_URL", &cfg.Storage.BaseURL)

	ints := []struct {
		key string
		dst *int
	}{
		{"DISPATCH_WORKERS", &cfg.Dispatch.Workers},
		{"DISPATCH_QUEUE_SIZE", &cfg.Dispatch.QueueSize},
		{"MQTT_QOS", &cfg.MQTT.QOS},
	}
	for _, e := range ints {
		if err := envInt(e.key, e.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"DISPATCH_SWEEP_INTERVAL", &cfg.Dispatch.SweepInterval},
		{"DISPATCH_ATTEMPT_TIMEOUT", &cfg.Dispatch.AttemptTimeout},
		{"DISPATCH_DELIVERY_TIMEOUT", &cfg.Dispatch.DeliveryTimeout},
		{"DISPATCH_STALE_AFTER", &cfg.Dispatch.StaleAfter},
		{"PUSH_PROGRESS_TIMEOUT", &cfg.Push.ProgressTimeout},
		{"STATUS_GRACE_WINDOW", &cfg.Status.GraceWindow},
		{"STATUS_RETENTION", &cfg.Status.Retention},
		{"STATUS_VIEWER_TTL", &cfg.Status.ViewerTTL},
		{"STATUS_JANITOR_INTERVAL", &cfg.Status.JanitorInterval},
		{"MAILBOX_POLL_GRACE", &cfg.Mailbox.PollGrace},
		{"STORAGE_URL_EXPIRY", &cfg.Storage.URLExpiry},
	}
	for _, e := range durations {
		if err := envDuration(e.key, e.dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("STORAGE_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid STORAGE_USE_SSL: %w", err)
		}
		cfg.Storage.UseSSL = b
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
