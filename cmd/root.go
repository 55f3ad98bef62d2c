package cmd

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "volmatch"
)

// Config is the worker configuration, unmarshalled from the YAML config
// file. Defaults cover the matching policy; the file only needs the
// connection URLs.
type Config struct {
	DatabaseURL string `mapstructure:"database-url"`
	RedisURL    string `mapstructure:"redis-url"`

	Matching *MatchingConfig `mapstructure:"matching"`
	Geocoder *GeocoderConfig `mapstructure:"geocoder"`
	Push     *PushConfig     `mapstructure:"push"`
	AI       *AIConfig       `mapstructure:"ai"`
}

type MatchingConfig struct {
	RadiusKm           float64 `mapstructure:"radius-km"`
	TopK               int     `mapstructure:"top-k"`
	WeeklyCap          int     `mapstructure:"weekly-cap"`
	NotifyBudget       int     `mapstructure:"notify-budget"`
	RelevanceThreshold float64 `mapstructure:"relevance-threshold"`
	RunTimeoutSeconds  int     `mapstructure:"run-timeout-seconds"`
	ResetSchedule      string  `mapstructure:"reset-schedule"`
}

type GeocoderConfig struct {
	BaseURL   string `mapstructure:"base-url"`
	UserAgent string `mapstructure:"user-agent"`
}

type PushConfig struct {
	BaseURL   string `mapstructure:"base-url"`
	TokenFile string `mapstructure:"token-file"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "volmatch matches registered volunteers to approved organizational needs and notifies them by push",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("database-url", "DATABASE_URL"); err != nil {
		log.Fatalf("binding DATABASE_URL environment variable: %v", err)
	}
	if err := viper.BindEnv("redis-url", "REDIS_URL"); err != nil {
		log.Fatalf("binding REDIS_URL environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("push.token-file", "PUSH_TOKEN_FILE"); err != nil {
		log.Fatalf("binding PUSH_TOKEN_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is volmatch.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// The config file is optional: every required value can come from the
	// environment.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}
	applyDefaults(config)

	return config, nil
}

// Matching policy defaults. The weekly cap and per-need budget protect
// members from notification fatigue; the radius keeps matches reachable.
const (
	defaultRadiusKm           = 30.0
	defaultTopK               = 20
	defaultWeeklyCap          = 3
	defaultNotifyBudget       = 5
	defaultRelevanceThreshold = 0.6
	defaultRunTimeoutSeconds  = 10
	defaultResetSchedule      = "0 0 * * 1" // Monday midnight
)

func applyDefaults(config *Config) {
	if config.Matching == nil {
		config.Matching = &MatchingConfig{}
	}
	m := config.Matching
	if m.RadiusKm <= 0 {
		m.RadiusKm = defaultRadiusKm
	}
	if m.TopK <= 0 {
		m.TopK = defaultTopK
	}
	if m.WeeklyCap <= 0 {
		m.WeeklyCap = defaultWeeklyCap
	}
	if m.NotifyBudget <= 0 {
		m.NotifyBudget = defaultNotifyBudget
	}
	if m.RelevanceThreshold <= 0 {
		m.RelevanceThreshold = defaultRelevanceThreshold
	}
	if m.RunTimeoutSeconds <= 0 {
		m.RunTimeoutSeconds = defaultRunTimeoutSeconds
	}
	if m.ResetSchedule == "" {
		m.ResetSchedule = defaultResetSchedule
	}
}
