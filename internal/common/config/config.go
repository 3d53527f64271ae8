// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App            AppConfig            `mapstructure:"app"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Store          StoreConfig          `mapstructure:"store"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	APIs           APIsConfig           `mapstructure:"apis"`
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StoreConfig selects the interaction/product store backend.
type StoreConfig struct {
	// Backend is "postgres" or "elasticsearch".
	Backend string `mapstructure:"backend"`
	// Index names used by the Elasticsearch backend.
	InteractionsIndex string `mapstructure:"interactions_index"`
	ProductsIndex     string `mapstructure:"products_index"`
}

// RecommendationConfig holds engine tuning that is environment-dependent.
// Blend weights and similarity thresholds are algorithm constants, not config.
type RecommendationConfig struct {
	DefaultLimit     int `mapstructure:"default_limit"`
	ResultTTL        int `mapstructure:"result_ttl"`         // seconds
	ProfileTTL       int `mapstructure:"profile_ttl"`        // seconds
	HistoryTTL       int `mapstructure:"history_ttl"`        // seconds
	ExplanationTTL   int `mapstructure:"explanation_ttl"`    // seconds
	LocalSweepPeriod int `mapstructure:"local_sweep_period"` // seconds
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	GenAI struct {
		BaseURL     string  `mapstructure:"base_url"`
		APIKey      string  `mapstructure:"api_key"`
		Timeout     int     `mapstructure:"timeout"` // milliseconds
		MaxTokens   int     `mapstructure:"max_tokens"`
		Temperature float64 `mapstructure:"temperature"`
	} `mapstructure:"genai"`
}

// ServerConfig holds the HTTP listen settings for the wiring binary.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
