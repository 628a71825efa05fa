package config

import (
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the errdigest server.
// It is built once at startup and passed explicitly to each component.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Intake       IntakeConfig
	Subscription SubscriptionConfig
	SMTP         SMTPConfig
	Report       ReportConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	AdminTokenHash string
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MaxRetries      int
}

type RedisConfig struct {
	URL string
}

// IntakeConfig controls the error report intake path.
type IntakeConfig struct {
	// DayStartingHour is the UTC hour at which the logical report day rolls over.
	DayStartingHour int
	// LogInterval is the dedup window per error signature.
	LogInterval    time.Duration
	RateLimit      int
	AllowedOrigins []string
}

// SubscriptionConfig controls who may manage subscriptions by email.
type SubscriptionConfig struct {
	SenderEmail      string   `yaml:"sender_email"`
	OnlyDomain       string   `yaml:"only_domain"`
	WhiteList        []string `yaml:"white_list"`
	AllowedClientIDs []string `yaml:"allowed_client_ids"`
	AdminEmails      []string `yaml:"admin_emails"`
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

type ReportConfig struct {
	Schedule   string   `yaml:"schedule"`
	ClientIDs  []string `yaml:"client_ids"`
	MaxResults int      `yaml:"max_results"`
}

// fileOverlay is the optional YAML file referenced by ERRDIGEST_CONFIG_FILE.
// Values present in the file replace the environment values.
type fileOverlay struct {
	Subscription *SubscriptionConfig `yaml:"subscription"`
	Report       *ReportConfig       `yaml:"report"`
}

const (
	DefaultReportSchedule = "0 1 * * *"

	// ScheduleOff disables scheduled reports, in the environment or the file.
	ScheduleOff = "off"
)

var validDrivers = map[string]bool{
	"postgres": true,
	"sqlite":   true,
}

// Load reads configuration from environment variables (and the optional YAML
// overlay file) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("ERRDIGEST_PORT", 8080),
			Env:            envString("ERRDIGEST_ENV", "development"),
			AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		},
		Database: DatabaseConfig{
			Driver:          envString("STORE_DRIVER", "postgres"),
			URL:             os.Getenv("DATABASE_URL"),
			SQLitePath:      envString("SQLITE_PATH", "errdigest.db"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MaxRetries:      envInt("STORE_MAX_RETRIES", 3),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Intake: IntakeConfig{
			DayStartingHour: envInt("DAY_STARTING_HOUR", 0),
			LogInterval:     envDuration("DEDUP_LOG_INTERVAL", 3*time.Second),
			RateLimit:       envInt("INTAKE_RATE_LIMIT", 600),
			AllowedOrigins:  envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Subscription: SubscriptionConfig{
			SenderEmail:      os.Getenv("SUBSCRIBE_EMAIL"),
			OnlyDomain:       os.Getenv("SUBSCRIBE_ONLY_DOMAIN"),
			WhiteList:        envList("SUBSCRIBE_WHITELIST", nil),
			AllowedClientIDs: envList("ALLOWED_CLIENT_IDS", nil),
			AdminEmails:      envList("ADMIN_EMAILS", nil),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     envInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		Report: ReportConfig{
			Schedule:   envOptional("REPORT_SCHEDULE", DefaultReportSchedule),
			ClientIDs:  envList("REPORT_CLIENT_IDS", nil),
			MaxResults: envInt("REPORT_MAX_RESULTS", 1000),
		},
	}

	if path := os.Getenv("ERRDIGEST_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Report.Schedule), ScheduleOff) {
		cfg.Report.Schedule = ""
	}

	if len(cfg.Report.ClientIDs) == 0 {
		cfg.Report.ClientIDs = cfg.Subscription.AllowedClientIDs
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if s := overlay.Subscription; s != nil {
		if s.SenderEmail != "" {
			c.Subscription.SenderEmail = s.SenderEmail
		}
		if s.OnlyDomain != "" {
			c.Subscription.OnlyDomain = s.OnlyDomain
		}
		if s.WhiteList != nil {
			c.Subscription.WhiteList = s.WhiteList
		}
		if s.AllowedClientIDs != nil {
			c.Subscription.AllowedClientIDs = s.AllowedClientIDs
		}
		if s.AdminEmails != nil {
			c.Subscription.AdminEmails = s.AdminEmails
		}
	}
	if r := overlay.Report; r != nil {
		if r.Schedule != "" {
			c.Report.Schedule = r.Schedule
		}
		if r.ClientIDs != nil {
			c.Report.ClientIDs = r.ClientIDs
		}
		if r.MaxResults > 0 {
			c.Report.MaxResults = r.MaxResults
		}
	}
	return nil
}

func (c *Config) validate() error {
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("STORE_DRIVER must be one of postgres, sqlite; got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
	}
	if c.Database.MaxRetries < 0 {
		return fmt.Errorf("STORE_MAX_RETRIES must not be negative, got %d", c.Database.MaxRetries)
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Intake.DayStartingHour < 0 || c.Intake.DayStartingHour > 23 {
		return fmt.Errorf("DAY_STARTING_HOUR must be between 0 and 23, got %d", c.Intake.DayStartingHour)
	}
	if c.Intake.LogInterval <= 0 {
		return fmt.Errorf("DEDUP_LOG_INTERVAL must be positive, got %s", c.Intake.LogInterval)
	}

	if c.Subscription.SenderEmail == "" {
		return fmt.Errorf("SUBSCRIBE_EMAIL is required")
	}
	if _, err := mail.ParseAddress(c.Subscription.SenderEmail); err != nil {
		return fmt.Errorf("SUBSCRIBE_EMAIL must be a valid address, got %q", c.Subscription.SenderEmail)
	}

	if c.Report.MaxResults <= 0 {
		return fmt.Errorf("REPORT_MAX_RESULTS must be positive, got %d", c.Report.MaxResults)
	}

	return nil
}

// SMTPEnabled reports whether outbound mail should go through SMTP.
func (c *Config) SMTPEnabled() bool {
	return c.SMTP.Host != ""
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envOptional is envString, except that a variable set to "" yields "".
func envOptional(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
