package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	goyaml "gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values come from built-in
// defaults, then an optional YAML file pointed to by CONFIG_PATH, then
// environment variables (a .env file is honored when present).
type Config struct {
	BotToken       string   `yaml:"bot_token"`
	AnnounceChatID int64    `yaml:"announce_chat_id"`
	ChatIDsFile    string   `yaml:"chat_ids_file"`
	Timezone       string   `yaml:"timezone"`
	DepartmentID   int64    `yaml:"department_id"`
	FetchLimit     int      `yaml:"fetch_limit"`
	SendTimes      []string `yaml:"send_times"`
	LogLevel       string   `yaml:"log_level"`

	DB     DBConfig     `yaml:"db"`
	Tables TablesConfig `yaml:"tables"`
}

// DBConfig holds connection settings for the external helpdesk database.
// The bot only ever reads from it.
type DBConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// TablesConfig allows renaming the helpdesk tables without code changes.
// Names are validated as safe SQL identifiers.
type TablesConfig struct {
	Tickets       string `yaml:"tickets"`
	Users         string `yaml:"users"`
	Buildings     string `yaml:"buildings"`
	Categories    string `yaml:"categories"`
	Subcategories string `yaml:"subcategories"`
}

// ClockTime is one wall-clock broadcast slot parsed from "HH:MM".
type ClockTime struct {
	Hour   int
	Minute int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ChatIDsFile:  "chat_ids.json",
		Timezone:     "Asia/Almaty",
		DepartmentID: 33,
		FetchLimit:   1000,
		SendTimes:    []string{"08:30", "12:00", "15:00", "17:25"},
		LogLevel:     "info",
		DB: DBConfig{
			Host:         "localhost",
			Port:         3306,
			User:         "root",
			MaxOpenConns: 5,
		},
		Tables: TablesConfig{
			Tickets:       "tickets",
			Users:         "users",
			Buildings:     "buildings",
			Categories:    "categories",
			Subcategories: "subcategories",
		},
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := goyaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.BotToken = getEnv("BOT_TOKEN", cfg.BotToken)
	cfg.AnnounceChatID = getEnvAsInt64("ANNOUNCE_CHAT_ID", cfg.AnnounceChatID)
	cfg.ChatIDsFile = getEnv("CHAT_IDS_FILE", cfg.ChatIDsFile)
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)
	cfg.DepartmentID = getEnvAsInt64("DEPARTMENT_ID", cfg.DepartmentID)
	cfg.FetchLimit = getEnvAsInt("FETCH_LIMIT", cfg.FetchLimit)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	if v := os.Getenv("SEND_TIMES"); v != "" {
		cfg.SendTimes = splitCSV(v)
	}

	cfg.DB.Host = getEnv("DB_HOST", cfg.DB.Host)
	cfg.DB.Port = getEnvAsInt("DB_PORT", cfg.DB.Port)
	cfg.DB.User = getEnv("DB_USER", cfg.DB.User)
	cfg.DB.Password = getEnv("DB_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = getEnv("DB_NAME", cfg.DB.Name)
	cfg.DB.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", cfg.DB.MaxOpenConns)

	cfg.Tables.Tickets = getEnv("TICKETS_TABLE_NAME", cfg.Tables.Tickets)
	cfg.Tables.Users = getEnv("USERS_TABLE_NAME", cfg.Tables.Users)
	cfg.Tables.Buildings = getEnv("BUILDINGS_TABLE_NAME", cfg.Tables.Buildings)
	cfg.Tables.Categories = getEnv("CATEGORIES_TABLE_NAME", cfg.Tables.Categories)
	cfg.Tables.Subcategories = getEnv("SUBCATEGORIES_TABLE_NAME", cfg.Tables.Subcategories)

	return cfg, nil
}

var identRx = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Validate checks everything that must stop the process at startup:
// missing secrets, unsafe table identifiers, unparseable send times.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.DB.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	tables := []struct{ kind, name string }{
		{"tickets", c.Tables.Tickets},
		{"users", c.Tables.Users},
		{"buildings", c.Tables.Buildings},
		{"categories", c.Tables.Categories},
		{"subcategories", c.Tables.Subcategories},
	}
	for _, t := range tables {
		if !identRx.MatchString(t.name) {
			return fmt.Errorf("%s table name %q contains invalid characters, allowed: letters, digits, underscore", t.kind, t.name)
		}
	}
	if c.FetchLimit <= 0 {
		return fmt.Errorf("fetch_limit must be positive, got %d", c.FetchLimit)
	}
	if len(c.SendTimes) == 0 {
		return fmt.Errorf("send_times must not be empty")
	}
	if _, err := c.ClockTimes(); err != nil {
		return err
	}
	return nil
}

// ClockTimes parses the configured send times.
func (c *Config) ClockTimes() ([]ClockTime, error) {
	out := make([]ClockTime, 0, len(c.SendTimes))
	for _, s := range c.SendTimes {
		ct, err := ParseClock(s)
		if err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, nil
}

// ParseClock parses a "HH:MM" wall-clock value.
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return ClockTime{}, fmt.Errorf("bad send time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
