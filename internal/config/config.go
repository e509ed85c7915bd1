package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Kafka struct {
		Brokers     []string
		Topic       string
		GroupID     string
		EventsTopic string
	}
	DB struct {
		DSN string
	}
	Jira struct {
		BaseURL          string
		Username         string
		Token            string
		Projects         []string
		StoryPointsField string
		DefaultJQL       string
	}
	Telegram struct {
		BotToken      string
		RatePerSecond int
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		FromName   string
	}
	API struct {
		Port     string
		BasePath string
	}
	Notification struct {
		QueueSize  int
		MaxWorkers int
	}
	Logging struct {
		Dir   string
		Level string
	}
	Driver struct {
		QueueSpec     string
		AttentionSpec string
		Timezone      string
	}
	EngineFile string
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Kafka settings
	cfg.Kafka.Brokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.Kafka.Topic = getenv("KAFKA_TOPIC", "tracker.item-events")
	cfg.Kafka.GroupID = getenv("KAFKA_GROUP_ID", "reminder-service")
	cfg.Kafka.EventsTopic = getenv("KAFKA_EVENTS_TOPIC", "reminder.delivery-events")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// Jira settings
	cfg.Jira.BaseURL = os.Getenv("JIRA_BASE_URL")
	cfg.Jira.Username = os.Getenv("JIRA_USERNAME")
	cfg.Jira.Token = os.Getenv("JIRA_TOKEN")
	cfg.Jira.Projects = splitList(os.Getenv("JIRA_PROJECTS"))
	cfg.Jira.StoryPointsField = getenv("JIRA_STORY_POINTS_FIELD", "customfield_10016")
	cfg.Jira.DefaultJQL = getenv("JIRA_DEFAULT_JQL", "resolution = Unresolved ORDER BY updated ASC")

	// Telegram settings
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.RatePerSecond = atoi("TELEGRAM_RATE_PER_SECOND", 25)

	// Email settings
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	cfg.Email.SMTPPort = atoi("EMAIL_SMTP_PORT", 0)
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Notification worker settings
	cfg.Notification.QueueSize = atoi("QUEUE_SIZE", 0)
	cfg.Notification.MaxWorkers = atoi("MAX_WORKERS", 0)

	cfg.Logging.Dir = getenv("LOG_DIR", "logs")
	cfg.Logging.Level = getenv("LOG_LEVEL", "info")

	cfg.Driver.QueueSpec = getenv("DRIVER_QUEUE_SPEC", "@every 1m")
	cfg.Driver.AttentionSpec = getenv("DRIVER_ATTENTION_SPEC", "0 9 * * MON-FRI")
	cfg.Driver.Timezone = getenv("DRIVER_TZ", "UTC")

	cfg.EngineFile = os.Getenv("ENGINE_CONFIG_FILE")

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v1"
	}
	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 500
	}
	if cfg.Notification.MaxWorkers == 0 {
		cfg.Notification.MaxWorkers = 10
	}

	return cfg, nil
}

// LoadEngine returns the default engine configuration, overlaid with the JSON
// file at path when one is given.
func LoadEngine(path string) (Engine, error) {
	eng := DefaultEngine()
	if path == "" {
		return eng, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Engine{}, fmt.Errorf("read engine config %s: %w", path, err)
	}
	return eng.Apply(data)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitList(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Location resolves the driver timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Driver.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
