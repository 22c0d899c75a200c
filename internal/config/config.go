package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hamed0406/pingbase/internal/domain"
)

type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type Config struct {
	Addr      string // API bind address, e.g., "127.0.0.1:8080" (Windows) or ":8080" (Docker)
	LogDir    string
	LogLevel  string
	LogStderr bool
	// DatabaseURL selects the store: empty is in-memory, postgres:// is
	// Postgres, anything else is a SQLite file (optionally "sqlite:" prefixed).
	DatabaseURL string

	Tick                 time.Duration
	BatchSize            int
	SkipOverlappingTicks bool
	RetryAttempts        int
	RetryBackoff         time.Duration

	MinCheckInterval     time.Duration
	MaxCheckInterval     time.Duration
	DefaultCheckInterval time.Duration
	DefaultTimeoutMS     int

	SMTP SMTP

	KafkaBrokers []string
	KafkaTopic   string

	PublicAPIKeys  []string
	AdminAPIKeys   []string
	AllowedOrigins []string
	ShutdownGrace  time.Duration
}

// Limits returns the registry bounds derived from the config.
func (c Config) Limits() domain.Limits {
	lim := domain.Limits{
		MinInterval:      c.MinCheckInterval,
		MaxInterval:      c.MaxCheckInterval,
		DefaultInterval:  c.DefaultCheckInterval,
		DefaultTimeoutMS: c.DefaultTimeoutMS,
	}
	if lim.MaxInterval < lim.MinInterval {
		lim.MaxInterval = lim.MinInterval
	}
	if lim.DefaultInterval < lim.MinInterval || lim.DefaultInterval > lim.MaxInterval {
		lim.DefaultInterval = time.Duration(domain.ClampInterval(int(lim.DefaultInterval/time.Second), lim)) * time.Second
	}
	return lim
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_addr", "127.0.0.1:8080")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_stderr", false)
	v.SetDefault("database_url", "")

	v.SetDefault("tick_interval", "10s")
	v.SetDefault("batch_size", 10)
	v.SetDefault("skip_overlapping_ticks", false)
	v.SetDefault("retry_attempts", 1)
	v.SetDefault("retry_backoff_ms", 300)

	v.SetDefault("min_check_interval", "30s")
	v.SetDefault("max_check_interval", "3600s")
	v.SetDefault("default_check_interval", "60s")
	v.SetDefault("default_timeout_ms", 10000)

	v.SetDefault("smtp_host", "")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("smtp_user", "")
	v.SetDefault("smtp_pass", "")
	v.SetDefault("email_from", "alerts@pingbase.io")

	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "pingbase-events")

	v.SetDefault("public_api_keys", "")
	v.SetDefault("admin_api_keys", "")
	v.SetDefault("allowed_origins", "")
	v.SetDefault("shutdown_grace", "10s")
}

// Load reads defaults, an optional pingbase.yaml (./config or .), and the
// environment, which wins over the file.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	v.SetConfigName("pingbase")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}
	return fromViper(v), nil
}

// FromEnv is Load without a config file.
func FromEnv() Config {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Addr:      str(v, "api_addr", "127.0.0.1:8080"),
		LogDir:    str(v, "log_dir", "logs"),
		LogLevel:  strings.ToLower(str(v, "log_level", "info")),
		LogStderr: v.GetBool("log_stderr"),

		DatabaseURL: strings.TrimSpace(v.GetString("database_url")),

		Tick:                 duration(v, "tick_interval", 10*time.Second),
		BatchSize:            positive(v, "batch_size", 10),
		SkipOverlappingTicks: v.GetBool("skip_overlapping_ticks"),
		RetryAttempts:        positive(v, "retry_attempts", 1),
		RetryBackoff:         time.Duration(nonNegative(v, "retry_backoff_ms", 300)) * time.Millisecond,

		MinCheckInterval:     duration(v, "min_check_interval", 30*time.Second),
		MaxCheckInterval:     duration(v, "max_check_interval", 3600*time.Second),
		DefaultCheckInterval: duration(v, "default_check_interval", 60*time.Second),
		DefaultTimeoutMS:     positive(v, "default_timeout_ms", 10000),

		SMTP: SMTP{
			Host:     v.GetString("smtp_host"),
			Port:     positive(v, "smtp_port", 587),
			User:     v.GetString("smtp_user"),
			Password: v.GetString("smtp_pass"),
			From:     str(v, "email_from", "alerts@pingbase.io"),
		},

		KafkaBrokers: list(v, "kafka_brokers"),
		KafkaTopic:   str(v, "kafka_topic", "pingbase-events"),

		PublicAPIKeys:  list(v, "public_api_keys"),
		AdminAPIKeys:   list(v, "admin_api_keys"),
		AllowedOrigins: list(v, "allowed_origins"),
		ShutdownGrace:  duration(v, "shutdown_grace", 10*time.Second),
	}
}

func str(v *viper.Viper, key, def string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return def
}

func positive(v *viper.Viper, key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func nonNegative(v *viper.Viper, key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// duration accepts Go durations ("45s", "2m") or bare seconds ("45").
func duration(v *viper.Viper, key string, def time.Duration) time.Duration {
	s := strings.TrimSpace(v.GetString(key))
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return def
		}
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// list splits comma separated values; YAML sequences work too.
func list(v *viper.Viper, key string) []string {
	var out []string
	for _, part := range v.GetStringSlice(key) {
		for _, s := range strings.Split(part, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
