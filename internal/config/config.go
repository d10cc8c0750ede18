package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                 string        `mapstructure:"ENV"`
	Port                string        `mapstructure:"PORT"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	AdminKey            string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed         string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	CallTimeout         time.Duration `mapstructure:"CALL_TIMEOUT"`
	ResurfaceAfter      time.Duration `mapstructure:"RESURFACE_AFTER"`
	BackendURL          string        `mapstructure:"BACKEND_URL"`
	BackendToken        string        `mapstructure:"BACKEND_TOKEN"`
	RealtimeURL         string        `mapstructure:"REALTIME_URL"`
	StateFile           string        `mapstructure:"STATE_FILE"`
	RespondersFile      string        `mapstructure:"RESPONDERS_FILE"`
	FirebaseCredentials string        `mapstructure:"FIREBASE_CREDENTIALS"`
	SimulatorInterval   time.Duration `mapstructure:"SIMULATOR_INTERVAL"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	NominatimURL        string        `mapstructure:"NOMINATIM_URL"`
	Campus              string        `mapstructure:"CAMPUS"`
	JWTSecret           string        `mapstructure:"JWT_SECRET"`
	TokenTTL            time.Duration `mapstructure:"TOKEN_TTL"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("CALL_TIMEOUT", "90s")
	v.SetDefault("RESURFACE_AFTER", "15s")
	v.SetDefault("BACKEND_URL", "")
	v.SetDefault("BACKEND_TOKEN", "")
	v.SetDefault("REALTIME_URL", "")
	v.SetDefault("STATE_FILE", "data/sos-unifio-state.json")
	v.SetDefault("RESPONDERS_FILE", "")
	v.SetDefault("FIREBASE_CREDENTIALS", "")
	v.SetDefault("SIMULATOR_INTERVAL", "0s")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("NOMINATIM_URL", "")
	v.SetDefault("CAMPUS", "UNIFIO, Ourinhos")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TOKEN_TTL", "12h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
