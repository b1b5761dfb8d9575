package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	// Shared secret between the messaging bot and this gateway. The bot
	// sends it on every request; the gateway echoes it back on outbound
	// notifications so the bot can authenticate us too.
	APISecret     string `env:"API_SECRET,required"`
	BotWebhookURL string `env:"BOT_WEBHOOK_URL,required"`

	ProviderBaseURL            string `env:"PROVIDER_BASE_URL" envDefault:"https://api.safaricom.co.ke"`
	ProviderShortcode          string `env:"PROVIDER_SHORTCODE,required"`
	ProviderPasskey            string `env:"PROVIDER_PASSKEY,required"`
	ProviderConsumerKey        string `env:"PROVIDER_CONSUMER_KEY,required"`
	ProviderConsumerSecret     string `env:"PROVIDER_CONSUMER_SECRET,required"`
	ProviderInitiatorName      string `env:"PROVIDER_INITIATOR_NAME"`
	ProviderSecurityCredential string `env:"PROVIDER_SECURITY_CREDENTIAL"`
	CallbackURL                string `env:"CALLBACK_URL,required"`

	StoreTimeoutS int `env:"STORE_TIMEOUT_S" envDefault:"10"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
