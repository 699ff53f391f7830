package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultDogAPIURL  = "https://dog.ceo/api"
	DefaultDiskAPIURL = "https://cloud-api.yandex.net"
	DefaultTimeout    = 10 * time.Second
)

var ErrMissingToken = errors.New("YADISK_TOKEN is not set")

type Config struct {
	DiskToken      string
	DogAPIURL      string
	DiskAPIURL     string
	Timeout        time.Duration
	JournalPath    string
	TelegramToken  string
	TelegramChatID int64
	LogLevel       slog.Level
}

// Load reads envFile into the process environment (a missing file is fine) and
// builds a Config from it.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		err := godotenv.Load(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("unable to load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DiskToken:     strings.TrimSpace(getenv("YADISK_TOKEN")),
		DogAPIURL:     valueOr(getenv("DOG_API_URL"), DefaultDogAPIURL),
		DiskAPIURL:    valueOr(getenv("DISK_API_URL"), DefaultDiskAPIURL),
		Timeout:       DefaultTimeout,
		JournalPath:   getenv("JOURNAL_PATH"),
		TelegramToken: getenv("TELEGRAM_TOKEN"),
		LogLevel:      slog.LevelInfo,
	}

	if v := getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT %q: %w", v, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT %q: must be positive", v)
		}
		cfg.Timeout = d
	}

	if v := getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", v, err)
		}
		cfg.TelegramChatID = id
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		lvl, err := ParseLevel(v)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = lvl
	}

	return cfg, nil
}

// Validate checks the settings needed to talk to the disk API.
func (c *Config) Validate() error {
	if c.DiskToken == "" {
		return ErrMissingToken
	}
	if c.DogAPIURL == "" || c.DiskAPIURL == "" {
		return errors.New("api base urls must not be empty")
	}
	return nil
}

// TelegramEnabled reports whether run summaries should be sent.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

func valueOr(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return strings.TrimRight(v, "/")
}
