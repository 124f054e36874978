package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	APIKey         string        `mapstructure:"API_KEY"`
	WebhookSecret  string        `mapstructure:"WEBHOOK_SECRET"`
	FMCSABaseURL   string        `mapstructure:"FMCSA_BASE_URL"`
	FMCSAWebKey    string        `mapstructure:"FMCSA_WEB_KEY"`
	VerifyTimeout  time.Duration `mapstructure:"VERIFY_TIMEOUT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("FMCSA_BASE_URL", "https://mobile.fmcsa.dot.gov")
	v.SetDefault("VERIFY_TIMEOUT", "8s")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
