package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/spf13/viper"
)

// Config is the tunable surface of the process. Every knob has a default so
// the bot runs from a bare environment with just a token; a config.yaml or
// environment variables override per deployment.
type Config struct {
	App struct {
		Port        string `mapstructure:"port"`
		Environment string `mapstructure:"environment"`
	} `mapstructure:"app"`

	Logging struct {
		Level          string `mapstructure:"level"`
		EnableTelegram bool   `mapstructure:"enable_telegram"`
	} `mapstructure:"logging"`

	Marketplace struct {
		APIURL         string  `mapstructure:"api_url"`
		RequestsPerSec float64 `mapstructure:"requests_per_sec"`
		Burst          int     `mapstructure:"burst"`
		MaxRetries     int     `mapstructure:"max_retries"`
		BaseDelayMS    int     `mapstructure:"base_delay_ms"`
	} `mapstructure:"marketplace"`

	Alerts struct {
		CheckIntervalSeconds int `mapstructure:"check_interval_seconds"`
	} `mapstructure:"alerts"`

	Collections struct {
		PollIntervalMinutes int `mapstructure:"poll_interval_minutes"`
	} `mapstructure:"collections"`

	Sales struct {
		WindowSeconds       int `mapstructure:"window_seconds"`
		CronIntervalSeconds int `mapstructure:"cron_interval_seconds"`
		Limit               int `mapstructure:"limit"`
		MessageDelayMS      int `mapstructure:"message_delay_ms"`
	} `mapstructure:"sales"`

	Watch struct {
		CollectionSymbol string `mapstructure:"collection_symbol"`
		ChatID           int64  `mapstructure:"chat_id"`
	} `mapstructure:"watch"`
}

var (
	globalConfig *Config
	configLock   sync.RWMutex
)

func setDefaults() {
	viper.SetDefault("app.port", "8080")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.enable_telegram", false)
	viper.SetDefault("marketplace.api_url", "https://api-mainnet.magiceden.dev/v2")
	viper.SetDefault("marketplace.requests_per_sec", 2.0)
	viper.SetDefault("marketplace.burst", 4)
	viper.SetDefault("marketplace.max_retries", 3)
	viper.SetDefault("marketplace.base_delay_ms", 500)
	viper.SetDefault("alerts.check_interval_seconds", 30)
	viper.SetDefault("collections.poll_interval_minutes", 5)
	viper.SetDefault("sales.window_seconds", 60)
	viper.SetDefault("sales.cron_interval_seconds", 60)
	viper.SetDefault("sales.limit", 5)
	viper.SetDefault("sales.message_delay_ms", 300)
	viper.SetDefault("watch.collection_symbol", "")
	viper.SetDefault("watch.chat_id", 0)
}

func bindEnv() {
	viper.BindEnv("app.port", "PORT")
	viper.BindEnv("app.environment", "APP_ENV")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.enable_telegram", "ENABLE_TELEGRAM_LOGS")
	viper.BindEnv("marketplace.api_url", "MARKETPLACE_API_URL")
	viper.BindEnv("marketplace.requests_per_sec", "MARKETPLACE_RPS")
	viper.BindEnv("marketplace.burst", "MARKETPLACE_BURST")
	viper.BindEnv("marketplace.max_retries", "FETCH_MAX_RETRIES")
	viper.BindEnv("marketplace.base_delay_ms", "FETCH_BASE_DELAY_MS")
	viper.BindEnv("alerts.check_interval_seconds", "ALERT_CHECK_INTERVAL_SECONDS")
	viper.BindEnv("collections.poll_interval_minutes", "COLLECTION_POLL_INTERVAL_MINUTES")
	viper.BindEnv("sales.window_seconds", "SALE_WINDOW_SECONDS")
	viper.BindEnv("sales.cron_interval_seconds", "SALE_CRON_INTERVAL_SECONDS")
	viper.BindEnv("sales.limit", "SALE_LIMIT")
	viper.BindEnv("sales.message_delay_ms", "SALE_MESSAGE_DELAY_MS")
	viper.BindEnv("watch.collection_symbol", "WATCH_COLLECTION_SYMBOL")
	viper.BindEnv("watch.chat_id", "WATCH_CHAT_ID")
}

func validate(cfg *Config) error {
	if cfg.Marketplace.APIURL == "" {
		return fmt.Errorf("marketplace.api_url must not be empty")
	}
	if cfg.Marketplace.MaxRetries < 1 {
		return fmt.Errorf("marketplace.max_retries must be >= 1, got %d", cfg.Marketplace.MaxRetries)
	}
	if cfg.Marketplace.RequestsPerSec <= 0 {
		return fmt.Errorf("marketplace.requests_per_sec must be > 0, got %f", cfg.Marketplace.RequestsPerSec)
	}
	if cfg.Marketplace.Burst < 1 {
		return fmt.Errorf("marketplace.burst must be >= 1, got %d", cfg.Marketplace.Burst)
	}
	if cfg.Alerts.CheckIntervalSeconds < 1 {
		return fmt.Errorf("alerts.check_interval_seconds must be >= 1, got %d", cfg.Alerts.CheckIntervalSeconds)
	}
	if cfg.Collections.PollIntervalMinutes < 1 {
		return fmt.Errorf("collections.poll_interval_minutes must be >= 1, got %d", cfg.Collections.PollIntervalMinutes)
	}
	if cfg.Sales.WindowSeconds < 1 {
		return fmt.Errorf("sales.window_seconds must be >= 1, got %d", cfg.Sales.WindowSeconds)
	}
	if cfg.Sales.CronIntervalSeconds < 1 {
		return fmt.Errorf("sales.cron_interval_seconds must be >= 1, got %d", cfg.Sales.CronIntervalSeconds)
	}
	if cfg.Sales.Limit < 1 {
		return fmt.Errorf("sales.limit must be >= 1, got %d", cfg.Sales.Limit)
	}
	return nil
}

// LoadConfig reads the optional config file at path plus environment
// overrides into a validated Config.
func LoadConfig(path string) (*Config, error) {
	setDefaults()
	bindEnv()
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			log.Printf("INFO: no readable config file at %s, using env and defaults: %v", path, err)
		} else {
			log.Printf("INFO: loaded configuration file %s", path)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// SetGlobalConfig publishes the loaded configuration for packages that are
// not on the constructor-injection path.
func SetGlobalConfig(cfg *Config) {
	configLock.Lock()
	defer configLock.Unlock()
	globalConfig = cfg
}

func GetGlobalConfig() *Config {
	configLock.RLock()
	defer configLock.RUnlock()
	return globalConfig
}
