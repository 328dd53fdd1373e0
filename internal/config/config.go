// Package config provides functionality for loading and accessing application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Environment is the current running environment (development, staging, production)
	Environment string `mapstructure:"environment"`

	// Telegram configuration
	Telegram struct {
		// Token is the bot token issued by BotFather
		Token string `mapstructure:"token" validate:"required"`
		// APIURL is the Bot API base URL
		APIURL string `mapstructure:"api_url" validate:"required,url"`
		// PollTimeout is the long-poll timeout for getUpdates
		PollTimeout time.Duration `mapstructure:"poll_timeout"`
		// StorageChatID is the chat used to park uploads before they are
		// attached to inline messages
		StorageChatID int64 `mapstructure:"storage_chat_id" validate:"required"`
	} `mapstructure:"telegram"`

	// Providers configuration
	Providers struct {
		// Spotify OAuth application credentials
		Spotify struct {
			ClientID     string `mapstructure:"client_id"`
			ClientSecret string `mapstructure:"client_secret"`
			// RedirectURL is the OAuth callback URL registered with Spotify
			RedirectURL string `mapstructure:"redirect_url"`
		} `mapstructure:"spotify"`

		// LastFM API credentials
		LastFM struct {
			APIKey string `mapstructure:"api_key"`
		} `mapstructure:"lastfm"`
	} `mapstructure:"providers"`

	// Resolver configuration
	Resolver struct {
		// YouTubeAPIKey is the API key for YouTube Data API search
		YouTubeAPIKey string `mapstructure:"youtube_api_key"`
		// ScoreThreshold is the minimum fuzzy-match score for accepting a
		// search candidate
		ScoreThreshold float64 `mapstructure:"score_threshold" validate:"gte=0,lte=1"`
		// MaxCandidates is how many search results are scored
		MaxCandidates int `mapstructure:"max_candidates" validate:"min=1,max=25"`
		// MaxDuration is the longest acceptable audio duration in seconds
		MaxDuration int `mapstructure:"max_duration"`
	} `mapstructure:"resolver"`

	// Fulfillment configuration
	Fulfillment struct {
		// ResolveTimeout bounds a single resolve+download+upload chain
		ResolveTimeout time.Duration `mapstructure:"resolve_timeout"`
		// PerTrackLock serializes concurrent fulfillments of the same
		// provider track; disabled, racing selections may both download
		PerTrackLock bool `mapstructure:"per_track_lock"`
		// DrainTimeout bounds waiting for in-flight fulfillments at shutdown
		DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	} `mapstructure:"fulfillment"`

	// Cache configuration
	Cache struct {
		// QueryCapacity is the bound on live inline-query results
		QueryCapacity int `mapstructure:"query_capacity" validate:"min=1"`
		// RecentsTTL is how long provider recently-played listings are reused
		RecentsTTL time.Duration `mapstructure:"recents_ttl"`
		// CoverVariants bounds cached placeholder cover uploads
		CoverVariants int `mapstructure:"cover_variants" validate:"min=1"`
	} `mapstructure:"cache"`

	// Auth configuration for the account-linking flow
	Auth struct {
		// StateSecret signs the OAuth state tokens carrying the chat user ID
		StateSecret string `mapstructure:"state_secret" validate:"required,min=16"`
		// StateExpiry is how long a generated link remains usable
		StateExpiry time.Duration `mapstructure:"state_expiry"`
	} `mapstructure:"auth"`

	// Database configuration
	Database struct {
		// MongoDB configuration
		MongoDB struct {
			// URI is the MongoDB connection URI
			URI string `mapstructure:"uri" validate:"required"`
			// Database is the MongoDB database name
			Database string `mapstructure:"database" validate:"required"`
			// Timeout is the MongoDB operation timeout
			Timeout time.Duration `mapstructure:"timeout"`
			// MaxPoolSize is the maximum number of connections in the connection pool
			MaxPoolSize uint64 `mapstructure:"max_pool_size"`
		} `mapstructure:"mongodb"`

		// Redis configuration
		Redis struct {
			// Address is the Redis server address
			Address string `mapstructure:"address" validate:"required"`
			// Username is the Redis username
			Username string `mapstructure:"username"`
			// Password is the Redis password
			Password string `mapstructure:"password"`
			// Database is the Redis database index
			Database int `mapstructure:"database"`
			// DialTimeout is the timeout for establishing new connections
			DialTimeout time.Duration `mapstructure:"dial_timeout"`
			// ReadTimeout is the timeout for Redis reads
			ReadTimeout time.Duration `mapstructure:"read_timeout"`
			// WriteTimeout is the timeout for Redis writes
			WriteTimeout time.Duration `mapstructure:"write_timeout"`
		} `mapstructure:"redis"`
	} `mapstructure:"database"`

	// Server configuration for the linking/metrics HTTP surface
	Server struct {
		// Port is the HTTP server port
		Port int `mapstructure:"port" validate:"min=1,max=65535"`
		// Host is the HTTP server host
		Host string `mapstructure:"host"`
		// ReadTimeout is the maximum duration for reading the entire request
		ReadTimeout time.Duration `mapstructure:"read_timeout"`
		// WriteTimeout is the maximum duration before timing out writes of the response
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`

	// Logging configuration
	Logging struct {
		// Level is the logging level
		Level string `mapstructure:"level" validate:"oneof=debug info warn error fatal"`
		// OutputPaths is the list of output paths for logs
		OutputPaths []string `mapstructure:"output_paths"`
		// ErrorOutputPaths is the list of output paths for error logs
		ErrorOutputPaths []string `mapstructure:"error_output_paths"`
	} `mapstructure:"logging"`
}

// LoadConfig loads the configuration from file and environment variables.
// It looks for a configuration file in the following locations:
// 1. Path specified in the CONFIG_FILE environment variable
// 2. ./configs directory
// 3. /etc/nowplaying directory
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("bot")
	v.SetConfigType("yaml")

	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/nowplaying")
	}

	// A missing file is fine; environment variables and defaults still apply
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Override with environment variables (NOWPLAYING_TELEGRAM_TOKEN etc.)
	v.SetEnvPrefix("NOWPLAYING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Environment = env

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets the default values for the configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", "50s")

	v.SetDefault("resolver.score_threshold", 0.85)
	v.SetDefault("resolver.max_candidates", 5)
	v.SetDefault("resolver.max_duration", 1200) // 20 minutes

	v.SetDefault("fulfillment.resolve_timeout", "120s")
	v.SetDefault("fulfillment.per_track_lock", true)
	v.SetDefault("fulfillment.drain_timeout", "30s")

	v.SetDefault("cache.query_capacity", 100)
	v.SetDefault("cache.recents_ttl", "30s")
	v.SetDefault("cache.cover_variants", 32)

	v.SetDefault("auth.state_expiry", "15m")

	v.SetDefault("database.mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("database.mongodb.database", "nowplaying")
	v.SetDefault("database.mongodb.timeout", "10s")
	v.SetDefault("database.mongodb.max_pool_size", 50)

	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("database.redis.database", 0)
	v.SetDefault("database.redis.dial_timeout", "5s")
	v.SetDefault("database.redis.read_timeout", "3s")
	v.SetDefault("database.redis.write_timeout", "3s")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return err
	}

	// At least one provider must be usable, otherwise inline queries can
	// never return anything
	spotify := config.Providers.Spotify.ClientID != "" && config.Providers.Spotify.ClientSecret != ""
	lastfm := config.Providers.LastFM.APIKey != ""
	if !spotify && !lastfm {
		return fmt.Errorf("at least one provider (spotify or lastfm) must be configured")
	}

	if spotify && config.Providers.Spotify.RedirectURL == "" {
		return fmt.Errorf("providers.spotify.redirect_url must be set when Spotify is configured")
	}

	if config.Resolver.YouTubeAPIKey == "" {
		return fmt.Errorf("resolver.youtube_api_key must be set")
	}

	return nil
}
