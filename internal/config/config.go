package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Partner  Partner  `mapstructure:"partner"`
	Wallet   Wallet   `mapstructure:"wallet"`
	Monitor  Monitor  `mapstructure:"monitor"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Partner holds the configuration for the exchange partner API.
type Partner struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Sandbox        bool    `mapstructure:"sandbox"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// ConfirmationThreshold is the confirmation count at which this partner
	// considers a deposit final.
	ConfirmationThreshold int      `mapstructure:"confirmation_threshold"`
	SupportedCurrencies   []string `mapstructure:"supported_currencies"`
}

// Wallet holds the configuration for the wallet-side delegate.
type Wallet struct {
	ExplorerURL string `mapstructure:"explorer_url"`
	// WebsocketURL is the push notification endpoint for address
	// subscriptions.
	WebsocketURL string `mapstructure:"websocket_url"`
	// Addresses seed the reservable receive-address pool.
	Addresses []string `mapstructure:"addresses"`
}

// Monitor holds the configuration for the trade sync loop.
type Monitor struct {
	// PollInterval is the sweep period in seconds.
	PollInterval int `mapstructure:"poll_interval"`
}

// Server holds the configuration for the status web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("partner.rate_limit", 20)      // requests per second
	viper.SetDefault("partner.rate_limit_burst", 5) // burst size
	viper.SetDefault("partner.confirmation_threshold", 6)
	viper.SetDefault("partner.supported_currencies", []string{"BTC", "EUR", "USD", "GBP", "DKK"})
	viper.SetDefault("monitor.poll_interval", 60)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
