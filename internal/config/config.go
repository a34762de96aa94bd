// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the root application configuration.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Speech     SpeechConfig     `yaml:"speech"`
	Display    DisplayConfig    `yaml:"display"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// StorageConfig holds where the history lives.
type StorageConfig struct {
	// DBPath "" keeps history in memory only.
	DBPath     string `yaml:"db_path"     env:"NEWSCHAT_DB"          env-default:"~/.newschat/newschat.db"`
	HistoryKey string `yaml:"history_key" env:"NEWSCHAT_HISTORY_KEY" env-default:"historial"`
	TimeLayout string `yaml:"time_layout" env:"NEWSCHAT_TIME_LAYOUT" env-default:"2/1/2006, 15:04:05"`
}

// ClassifierConfig holds the remote classifier settings.
type ClassifierConfig struct {
	// URL "" selects the offline mock classifier.
	URL             string        `yaml:"url"              env:"NEWSCHAT_CLASSIFIER_URL"`
	Timeout         time.Duration `yaml:"timeout"          env:"NEWSCHAT_CLASSIFIER_TIMEOUT"  env-default:"30s"`
	FetchArticles   bool          `yaml:"fetch_articles"   env:"NEWSCHAT_FETCH_ARTICLES"      env-default:"true"`
	ArticleMaxRunes int           `yaml:"article_max_runes" env:"NEWSCHAT_ARTICLE_MAX_RUNES"  env-default:"10000"`
	PositiveVerdict string        `yaml:"positive_verdict" env:"NEWSCHAT_POSITIVE_VERDICT"    env-default:"Verdadera"`
}

// SpeechConfig holds the external speech commands.
type SpeechConfig struct {
	SpeakCommand  string `yaml:"speak_command"  env:"NEWSCHAT_SPEAK_COMMAND"`
	ListenCommand string `yaml:"listen_command" env:"NEWSCHAT_LISTEN_COMMAND"`
}

// DisplayConfig holds presentation constants.
type DisplayConfig struct {
	TitleLength int `yaml:"title_length" env:"NEWSCHAT_TITLE_LENGTH" env-default:"25"`
	BarWidth    int `yaml:"bar_width"    env:"NEWSCHAT_BAR_WIDTH"    env-default:"20"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"NEWSCHAT_ADDR"             env-default:":8080"`
	AllowedOrigins  string        `yaml:"allowed_origins"  env:"NEWSCHAT_ALLOWED_ORIGINS"  env-default:"*"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"NEWSCHAT_READ_TIMEOUT"     env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"NEWSCHAT_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// Load reads configuration from an optional .env file, an optional YAML file
// and the environment. Priority: ENV > YAML > defaults.
// The YAML path comes from CONFIG_PATH; when unset, ./newschat.yaml is used
// if it exists.
func Load() (*Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./newschat.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize expands paths and validates the result.
func (c *Config) Normalize() error {
	if strings.HasPrefix(c.Storage.DBPath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("config: resolve home dir: %w", err)
		}
		c.Storage.DBPath = filepath.Join(home, c.Storage.DBPath[2:])
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("config: validate: %w", err)
	}
	return nil
}

// Validate checks that all settings are usable.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Storage.HistoryKey) == "" {
		errs = append(errs, errors.New("NEWSCHAT_HISTORY_KEY cannot be empty"))
	}
	if strings.TrimSpace(c.Storage.TimeLayout) == "" {
		errs = append(errs, errors.New("NEWSCHAT_TIME_LAYOUT cannot be empty"))
	}
	if c.Classifier.URL != "" {
		u, err := url.Parse(c.Classifier.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("NEWSCHAT_CLASSIFIER_URL must be an http(s) URL, got %q", c.Classifier.URL))
		}
	}
	if c.Classifier.Timeout <= 0 {
		errs = append(errs, errors.New("NEWSCHAT_CLASSIFIER_TIMEOUT must be > 0"))
	}
	if strings.TrimSpace(c.Classifier.PositiveVerdict) == "" {
		errs = append(errs, errors.New("NEWSCHAT_POSITIVE_VERDICT cannot be empty"))
	}
	if c.Display.TitleLength <= 0 {
		errs = append(errs, errors.New("NEWSCHAT_TITLE_LENGTH must be > 0"))
	}
	if c.Display.BarWidth <= 0 {
		errs = append(errs, errors.New("NEWSCHAT_BAR_WIDTH must be > 0"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("NEWSCHAT_ADDR cannot be empty"))
	}

	return errors.Join(errs...)
}

// UseMockClassifier reports whether no remote classifier is configured.
func (c *Config) UseMockClassifier() bool {
	return c.Classifier.URL == ""
}

// Origins splits the allowed origins list.
func (c ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
