// Package config holds all configuration for the krakbit client and backend.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the single source of truth loaded at process start.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Client    ClientConfig    `mapstructure:"client"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Trending  TrendingConfig  `mapstructure:"trending"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Carousel  CarouselConfig  `mapstructure:"carousel"`
}

// GeneralConfig contains process-wide settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains backend HTTP/WebSocket settings.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// ClientConfig tells the session client where the backend lives.
type ClientConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// WebSocketURL derives the stream endpoint from the configured server URL.
func (c ClientConfig) WebSocketURL() string {
	url := strings.TrimRight(c.ServerURL, "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/ws"
}

// ProvidersConfig groups the external model providers.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig configures the completion provider used for generation and
// follow-up answering.
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// TrendingConfig configures the trending feed source and its cache.
type TrendingConfig struct {
	SourceURL string        `mapstructure:"source_url"`
	CacheKey  string        `mapstructure:"cache_key"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// DatabasesConfig groups backing stores. Both are optional: without Redis the
// trending cache is skipped, without Postgres the archive is disabled.
type DatabasesConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string, or "" when not configured.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	if p.Host == "" || p.DBName == "" {
		return ""
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// ScheduleConfig enables unattended digest generation on a cron schedule.
type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
	Query   string `mapstructure:"query"`
}

// CarouselConfig tunes the client's visible window.
type CarouselConfig struct {
	WindowSize int `mapstructure:"window_size"`
}

func (c CarouselConfig) Validate() error {
	if c.WindowSize < 0 {
		return fmt.Errorf("carousel.window_size cannot be negative")
	}
	return nil
}

// Load reads configuration from the given file, or searches the usual
// locations when path is empty. Environment variables prefixed KRAKBIT_
// override file values. Missing files are fine; defaults apply.
func Load(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.listen", ":8000")
	viper.SetDefault("server.cors_origins", []string{"*"})
	viper.SetDefault("client.server_url", "http://localhost:8000")
	viper.SetDefault("client.request_timeout", 30*time.Second)
	viper.SetDefault("providers.openai.model", "gpt-4o")
	viper.SetDefault("providers.openai.max_tokens", 4096)
	viper.SetDefault("providers.openai.temperature", 0.2)
	viper.SetDefault("providers.openai.timeout", 2*time.Minute)
	viper.SetDefault("trending.cache_key", "krakbit:trending")
	viper.SetDefault("trending.cache_ttl", 5*time.Minute)
	viper.SetDefault("schedule.cron", "@daily")
	viper.SetDefault("carousel.window_size", 4)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("KRAKBIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if err := config.Carousel.Validate(); err != nil {
		panic(err)
	}
	return &config
}
