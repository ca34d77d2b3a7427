package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       App       `mapstructure:"app"`
	Database  Database  `mapstructure:"database"`
	Processor Processor `mapstructure:"processor"`
	Feed      Feed      `mapstructure:"feed"`
	Fetcher   Fetcher   `mapstructure:"fetcher"`
	Scorer    Scorer    `mapstructure:"scorer"`
	Agent     Agent     `mapstructure:"agent"`
	Hero      Hero      `mapstructure:"hero"`
	Server    Server    `mapstructure:"server"`
	Logging   Logging   `mapstructure:"logging"`
}

// App holds general application configuration.
type App struct {
	Debug      bool   `mapstructure:"debug"`
	ConfigFile string `mapstructure:"config_file"`
}

// Database holds Postgres connection configuration.
type Database struct {
	ConnectionString string `mapstructure:"connection_string"`
	MaxConnections   int    `mapstructure:"max_connections"`
	IdleConnections  int    `mapstructure:"idle_connections"`
}

// Processor holds C7 worker-pool configuration.
type Processor struct {
	Parallelism     int `mapstructure:"parallelism"`
	MaxAttempts     int `mapstructure:"max_attempts"`
	EmptyPollLimit  int `mapstructure:"empty_poll_limit"`
	StuckTimeoutMs  int `mapstructure:"stuck_timeout_ms"`
	RunDeadlineMs   int `mapstructure:"run_deadline_ms"`
	MinTextBytes    int `mapstructure:"min_text_bytes"`
	RelevanceThresh int `mapstructure:"relevance_threshold"`
}

// Feed holds C9 agent-feed worker-pool configuration.
type Feed struct {
	Parallelism    int `mapstructure:"parallelism"`
	MaxAttempts    int `mapstructure:"max_attempts"`
	StuckTimeoutMs int `mapstructure:"stuck_timeout_ms"`
}

// Fetcher holds C2 HTTP fetch configuration.
type Fetcher struct {
	TimeoutMs      int    `mapstructure:"timeout_ms"`
	MaxBodyBytes   int64  `mapstructure:"max_body_bytes"`
	UserAgent      string `mapstructure:"user_agent"`
	MinHostSpacing int    `mapstructure:"min_host_spacing_ms"`
	CheckRobots    bool   `mapstructure:"check_robots"`
}

// Scorer holds C6 LLM relevance scorer configuration.
type Scorer struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// Agent holds the C9 AgentService collaborator's connection details.
// Endpoint empty means no AgentService is wired: C9 still claims and
// drains the feed queue; an item whose content is missing is marked failed
// (CONTENT_MISSING), one whose agent memory already exists is marked done,
// and every other item is marked failed, since there is nowhere to hand
// the packed memory payload to.
type Agent struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	ID       string `mapstructure:"id"`
}

// Hero holds the C10 EnrichmentService collaborator's connection
// details. Endpoint empty disables hero enrichment entirely (C10 is
// never constructed).
type Hero struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Workers  int    `mapstructure:"workers"`
	QueueCap int    `mapstructure:"queue_cap"`
}

// Server holds the C11/§6 HTTP operational surface configuration.
type Server struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Logging holds logging configuration.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads configuration from environment, optional .env file, and an
// optional config file, applying defaults and validating the result.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("discovery")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it with defaults if needed.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

func setDefaults() {
	viper.SetDefault("app.debug", false)

	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.idle_connections", 5)

	viper.SetDefault("processor.parallelism", 8)
	viper.SetDefault("processor.max_attempts", 3)
	viper.SetDefault("processor.empty_poll_limit", 3)
	viper.SetDefault("processor.stuck_timeout_ms", 10*60*1000)
	viper.SetDefault("processor.run_deadline_ms", 30*60*1000)
	viper.SetDefault("processor.min_text_bytes", 500)
	viper.SetDefault("processor.relevance_threshold", 60)

	viper.SetDefault("feed.parallelism", 4)
	viper.SetDefault("feed.max_attempts", 5)
	viper.SetDefault("feed.stuck_timeout_ms", 5*60*1000)

	viper.SetDefault("fetcher.timeout_ms", 15000)
	viper.SetDefault("fetcher.max_body_bytes", 10*1024*1024)
	viper.SetDefault("fetcher.user_agent", "WikipediaCitationDiscoveryBot/1.0 (+https://example.org/bot)")
	viper.SetDefault("fetcher.min_host_spacing_ms", 500)
	viper.SetDefault("fetcher.check_robots", true)

	viper.SetDefault("scorer.model", "gemini-flash-lite-latest")

	viper.SetDefault("agent.id", "discovery-engine")

	viper.SetDefault("hero.workers", 2)
	viper.SetDefault("hero.queue_cap", 64)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.shutdown_timeout", "10s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

func bindEnvironmentVariables() {
	bindEnvKeys("database.connection_string", []string{"DATABASE_URL", "DB_CONNECTION_STRING"})
	bindEnvKeys("processor.parallelism", []string{"PROCESSOR_PARALLELISM"})
	bindEnvKeys("processor.max_attempts", []string{"MAX_ATTEMPTS"})
	bindEnvKeys("processor.run_deadline_ms", []string{"RUN_DEADLINE_MS"})
	bindEnvKeys("processor.min_text_bytes", []string{"MIN_TEXT_BYTES"})
	bindEnvKeys("processor.relevance_threshold", []string{"RELEVANCE_THRESHOLD"})
	bindEnvKeys("feed.parallelism", []string{"FEED_PARALLELISM"})
	bindEnvKeys("fetcher.timeout_ms", []string{"FETCH_TIMEOUT_MS"})
	bindEnvKeys("fetcher.min_host_spacing_ms", []string{"PER_HOST_MIN_SPACING_MS"})
	bindEnvKeys("scorer.api_key", []string{"SCORER_KEY", "GEMINI_API_KEY"})
	bindEnvKeys("agent.endpoint", []string{"AGENT_ENDPOINT"})
	bindEnvKeys("agent.api_key", []string{"AGENT_API_KEY"})
	bindEnvKeys("hero.endpoint", []string{"HERO_ENDPOINT"})
	bindEnvKeys("hero.api_key", []string{"HERO_API_KEY"})
}

func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

func validateConfig(config *Config) error {
	var errs []string

	if config.Database.ConnectionString == "" {
		errs = append(errs, "database connection string is required. Set DATABASE_URL")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Reset clears the global configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viper.Reset()
}

// RunDeadline returns the configured run deadline as a time.Duration.
func (c Processor) RunDeadline() time.Duration {
	return time.Duration(c.RunDeadlineMs) * time.Millisecond
}

// StuckTimeout returns the configured scanning-claim stuck timeout.
func (c Processor) StuckTimeout() time.Duration {
	return time.Duration(c.StuckTimeoutMs) * time.Millisecond
}

// StuckTimeout returns the configured feed-queue processing stuck timeout.
func (c Feed) StuckTimeout() time.Duration {
	return time.Duration(c.StuckTimeoutMs) * time.Millisecond
}
