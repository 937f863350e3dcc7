package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server      ServerConfig
	Discord     DiscordConfig
	JWT         JWTConfig
	Store       StoreConfig
	Leaderboard LeaderboardConfig
	RateLimit   RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DiscordConfig holds the OAuth client registration used for the code exchange.
type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenURL     string
	APIBaseURL   string
}

type JWTConfig struct {
	Secret string
}

// StoreConfig points at the partitioned table store. URI scheme selects the
// backend: redis://, rediss://, mongodb://, mongodb+srv:// or memory://.
type StoreConfig struct {
	URI      string
	Table    string
	Database string
	Timeout  time.Duration
}

type LeaderboardConfig struct {
	ConditionalCommit bool
	MaxAttempts       int
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// Required configuration keys. Missing keys are reported by Missing and leave
// the dependent component unwired; they never stop the process.
const (
	KeyDiscordClientID     = "DISCORD_CLIENT_ID"
	KeyDiscordClientSecret = "DISCORD_CLIENT_SECRET"
	KeyDiscordRedirectURI  = "DISCORD_REDIRECT_URI"
	KeyJWTSecret           = "JWT_SECRET"
	KeyHighscoreDatabase   = "HIGHSCORE_DATABASE"
)

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "7071")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("DISCORD_TOKEN_URL", "https://discord.com/api/oauth2/token")
	v.SetDefault("DISCORD_API_BASE_URL", "https://discord.com/api")
	v.SetDefault("HIGHSCORE_TABLE", "Highscores")
	v.SetDefault("HIGHSCORE_DATABASE_NAME", "browserbird")
	v.SetDefault("STORE_TIMEOUT", 10)
	v.SetDefault("LEADERBOARD_CONDITIONAL_COMMIT", false)
	v.SetDefault("LEADERBOARD_MAX_ATTEMPTS", 5)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Discord: DiscordConfig{
			ClientID:     v.GetString(KeyDiscordClientID),
			ClientSecret: os.Getenv(KeyDiscordClientSecret),
			RedirectURI:  v.GetString(KeyDiscordRedirectURI),
			TokenURL:     v.GetString("DISCORD_TOKEN_URL"),
			APIBaseURL:   v.GetString("DISCORD_API_BASE_URL"),
		},
		JWT: JWTConfig{
			Secret: os.Getenv(KeyJWTSecret),
		},
		Store: StoreConfig{
			URI:      v.GetString(KeyHighscoreDatabase),
			Table:    v.GetString("HIGHSCORE_TABLE"),
			Database: v.GetString("HIGHSCORE_DATABASE_NAME"),
			Timeout:  time.Duration(v.GetInt("STORE_TIMEOUT")) * time.Second,
		},
		Leaderboard: LeaderboardConfig{
			ConditionalCommit: v.GetBool("LEADERBOARD_CONDITIONAL_COMMIT"),
			MaxAttempts:       v.GetInt("LEADERBOARD_MAX_ATTEMPTS"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	return cfg, nil
}

// DiscordConfigured reports whether every key needed for the code exchange is set.
func (c *Config) DiscordConfigured() bool {
	return c.Discord.ClientID != "" && c.Discord.ClientSecret != "" && c.Discord.RedirectURI != ""
}

// Missing returns the required keys that have no value.
func (c *Config) Missing() []string {
	var out []string
	if c.Discord.ClientID == "" {
		out = append(out, KeyDiscordClientID)
	}
	if c.Discord.ClientSecret == "" {
		out = append(out, KeyDiscordClientSecret)
	}
	if c.Discord.RedirectURI == "" {
		out = append(out, KeyDiscordRedirectURI)
	}
	if c.JWT.Secret == "" {
		out = append(out, KeyJWTSecret)
	}
	if c.Store.URI == "" {
		out = append(out, KeyHighscoreDatabase)
	}
	return out
}
