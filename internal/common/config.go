package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/specto/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	InfoCar     InfoCarConfig   `toml:"infocar"`
	Captcha     CaptchaConfig   `toml:"captcha"`
	Search      SearchConfig    `toml:"search"`
	Watcher     WatcherConfig   `toml:"watcher"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Notify      NotifyConfig    `toml:"notify"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// InfoCarConfig holds the account credentials and client tuning for the
// scheduling service.
type InfoCarConfig struct {
	BaseURL        string        `toml:"base_url"`
	Username       string        `toml:"username" validate:"required"`
	Password       string        `toml:"password" validate:"required"`
	ReservationID  string        `toml:"reservation_id"`  // optional pin; newest reservation when empty
	RequestTimeout Duration      `toml:"request_timeout"` // per-call HTTP timeout
	RateLimit      float64       `toml:"rate_limit"`      // API requests per second
}

// CaptchaConfig holds the verification-solving service configuration.
type CaptchaConfig struct {
	APIKey     string  `toml:"api_key" validate:"required"`
	BaseURL    string  `toml:"base_url"`
	MinBalance float64 `toml:"min_balance"` // warn threshold for balance checks
}

// SearchConfig is the user-facing date/hour window the watcher hunts inside.
type SearchConfig struct {
	DateFrom string `toml:"date_from" validate:"required"` // YYYY-MM-DD
	DateTo   string `toml:"date_to" validate:"required"`   // YYYY-MM-DD
	HourFrom string `toml:"hour_from" validate:"required"` // HH:MM
	HourTo   string `toml:"hour_to" validate:"required"`   // HH:MM
}

// WatcherConfig tunes the polling loop. Defaults match the cadence the
// service tolerates; lower intervals risk rejection.
type WatcherConfig struct {
	AutoStart     bool          `toml:"auto_start"`     // start polling right after login
	PollInterval  Duration `toml:"poll_interval"`  // steady-state pause between cycles
	RetryAttempts int      `toml:"retry_attempts"` // attempts per cycle, first try included
	RetryDelay    Duration `toml:"retry_delay"`    // pause between retry attempts
	ExamType      string        `toml:"exam_type"`      // "practiceExams" or "theoryExams"
	Category      string        `toml:"category"`       // licence category, e.g. "B"
}

// SchedulerConfig drives the cron housekeeping jobs.
type SchedulerConfig struct {
	Enabled         bool   `toml:"enabled"`
	BalanceSchedule string `toml:"balance_schedule"` // cron expression for captcha balance checks
	SummarySchedule string `toml:"summary_schedule"` // cron expression for stats summary logging
}

// NotifyConfig configures match/reschedule notifications.
type NotifyConfig struct {
	WebhookURL string `toml:"webhook_url"` // optional; JSON POST target
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in specto.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		InfoCar: InfoCarConfig{
			BaseURL:        "https://info-car.pl",
			RequestTimeout: Duration(30 * time.Second),
			RateLimit:      1,
		},
		Captcha: CaptchaConfig{
			BaseURL:    "https://api.capmonster.cloud",
			MinBalance: 0.5,
		},
		Watcher: WatcherConfig{
			AutoStart:     true,
			PollInterval:  Duration(15 * time.Second),
			RetryAttempts: 5,
			RetryDelay:    Duration(3 * time.Second),
			ExamType:      "practiceExams",
			Category:      "B",
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			BalanceSchedule: "*/30 * * * *", // every 30 minutes
			SummarySchedule: "0 * * * *",    // hourly
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SPECTO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("SPECTO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SPECTO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("SPECTO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// Account credentials (preferred over putting secrets in the file)
	if username := os.Getenv("SPECTO_INFOCAR_USERNAME"); username != "" {
		config.InfoCar.Username = username
	}
	if password := os.Getenv("SPECTO_INFOCAR_PASSWORD"); password != "" {
		config.InfoCar.Password = password
	}
	if baseURL := os.Getenv("SPECTO_INFOCAR_BASE_URL"); baseURL != "" {
		config.InfoCar.BaseURL = baseURL
	}
	if apiKey := os.Getenv("SPECTO_CAPTCHA_API_KEY"); apiKey != "" {
		config.Captcha.APIKey = apiKey
	}

	// Search window
	if dateFrom := os.Getenv("SPECTO_SEARCH_DATE_FROM"); dateFrom != "" {
		config.Search.DateFrom = dateFrom
	}
	if dateTo := os.Getenv("SPECTO_SEARCH_DATE_TO"); dateTo != "" {
		config.Search.DateTo = dateTo
	}
	if hourFrom := os.Getenv("SPECTO_SEARCH_HOUR_FROM"); hourFrom != "" {
		config.Search.HourFrom = hourFrom
	}
	if hourTo := os.Getenv("SPECTO_SEARCH_HOUR_TO"); hourTo != "" {
		config.Search.HourTo = hourTo
	}

	// Watcher tuning
	if interval := os.Getenv("SPECTO_WATCHER_POLL_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Watcher.PollInterval = Duration(d)
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks required fields and the search window invariants before
// anything touches the network.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	window, err := c.SearchWindow()
	if err != nil {
		return err
	}
	if err := window.Validate(); err != nil {
		return fmt.Errorf("invalid search window: %w", err)
	}

	if c.Watcher.RetryAttempts < 1 {
		return fmt.Errorf("watcher retry_attempts must be at least 1")
	}
	if c.Watcher.PollInterval <= 0 {
		return fmt.Errorf("watcher poll_interval must be positive")
	}

	return nil
}

// SearchWindow parses the configured window strings.
func (c *Config) SearchWindow() (models.SearchWindow, error) {
	return models.ParseSearchWindow(
		c.Search.DateFrom, c.Search.DateTo,
		c.Search.HourFrom, c.Search.HourTo,
	)
}
