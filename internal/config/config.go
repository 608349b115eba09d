// Package config loads application settings from a .env file and the
// process environment. Environment variables win over the file, and the
// file wins over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Passcode  PasscodeConfig
	Argon2    Argon2Config
	Google    GoogleConfig
	SMTP      SMTPConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port        string
	FrontendURL string
}

type StoreConfig struct {
	Driver string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr is the host:port pair handed to the Redis client.
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type JWTConfig struct {
	SecretKey string
	Expiry    time.Duration
	Issuer    string
}

type PasscodeConfig struct {
	TTL             time.Duration
	MaxAttempts     int
	DeliveryTimeout time.Duration
}

type Argon2Config struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength uint32
}

type GoogleConfig struct {
	ClientID string
}

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	ImplicitTLS bool
}

// Enabled reports whether enough is set to deliver mail. A username
// without a password is treated as unconfigured.
func (c SMTPConfig) Enabled() bool {
	if c.Host == "" {
		return false
	}
	return c.Username == "" || c.Password != ""
}

type RateLimitConfig struct {
	Window  time.Duration
	AuthMax int
	APIMax  int
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"server.port":               "PORT",
	"server.frontend_url":       "FRONTEND_URL",
	"store.driver":              "STORE_DRIVER",
	"database.host":             "DATABASE_HOST",
	"database.port":             "DATABASE_PORT",
	"database.user":             "DATABASE_USER",
	"database.password":         "DATABASE_PASSWORD",
	"database.name":             "DATABASE_NAME",
	"database.ssl_mode":         "DATABASE_SSL_MODE",
	"database.max_open_conns":   "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":   "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_life":    "DATABASE_CONN_MAX_LIFETIME",
	"redis.host":                "REDIS_HOST",
	"redis.port":                "REDIS_PORT",
	"redis.password":            "REDIS_PASSWORD",
	"redis.db":                  "REDIS_DB",
	"jwt.secret_key":            "JWT_SECRET_KEY",
	"jwt.expiry":                "JWT_EXPIRY",
	"jwt.issuer":                "JWT_ISSUER",
	"passcode.ttl":              "OTP_TTL",
	"passcode.max_attempts":     "OTP_MAX_ATTEMPTS",
	"passcode.delivery_timeout": "OTP_DELIVERY_TIMEOUT",
	"argon2.time":               "ARGON2_TIME",
	"argon2.memory":             "ARGON2_MEMORY",
	"argon2.threads":            "ARGON2_THREADS",
	"argon2.key_length":         "ARGON2_KEY_LENGTH",
	"argon2.salt_length":        "ARGON2_SALT_LENGTH",
	"google.client_id":          "GOOGLE_CLIENT_ID",
	"smtp.host":                 "SMTP_HOST",
	"smtp.port":                 "SMTP_PORT",
	"smtp.username":             "SMTP_USERNAME",
	"smtp.password":             "SMTP_PASSWORD",
	"smtp.from":                 "SMTP_FROM",
	"smtp.implicit_tls":         "SMTP_IMPLICIT_TLS",
	"rate_limit.window":         "RATE_LIMIT_WINDOW",
	"rate_limit.auth_max":       "RATE_LIMIT_AUTH_MAX",
	"rate_limit.api_max":        "RATE_LIMIT_API_MAX",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.frontend_url", "http://localhost:5173")
	v.SetDefault("store.driver", StoreDriverPostgres)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "expense_tracker")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_life", 5*time.Minute)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.expiry", time.Hour)
	v.SetDefault("jwt.issuer", "expense-tracker")

	v.SetDefault("passcode.ttl", 10*time.Minute)
	v.SetDefault("passcode.max_attempts", 5)
	v.SetDefault("passcode.delivery_timeout", 10*time.Second)

	v.SetDefault("argon2.time", 1)
	v.SetDefault("argon2.memory", 64*1024)
	v.SetDefault("argon2.threads", 2)
	v.SetDefault("argon2.key_length", 32)
	v.SetDefault("argon2.salt_length", 16)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "no-reply@expense-tracker.local")
	v.SetDefault("smtp.implicit_tls", false)

	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.auth_max", 20)
	v.SetDefault("rate_limit.api_max", 300)
}

// Load reads envFile (skipped when empty or missing) and the environment.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			log.Printf("Config file not found, using defaults: %v", err)
		}
	}

	for key, env := range envBindings {
		// .env entries are keyed by their lowercased variable name.
		if fromFile := v.Get(strings.ToLower(env)); fromFile != nil {
			v.SetDefault(key, fromFile)
		}
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			FrontendURL: v.GetString("server.frontend_url"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(v.GetString("store.driver")),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_life"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			SecretKey: v.GetString("jwt.secret_key"),
			Expiry:    v.GetDuration("jwt.expiry"),
			Issuer:    v.GetString("jwt.issuer"),
		},
		Passcode: PasscodeConfig{
			TTL:             v.GetDuration("passcode.ttl"),
			MaxAttempts:     v.GetInt("passcode.max_attempts"),
			DeliveryTimeout: v.GetDuration("passcode.delivery_timeout"),
		},
		Argon2: Argon2Config{
			Time:       v.GetUint32("argon2.time"),
			Memory:     v.GetUint32("argon2.memory"),
			Threads:    v.GetUint8("argon2.threads"),
			KeyLength:  v.GetUint32("argon2.key_length"),
			SaltLength: v.GetUint32("argon2.salt_length"),
		},
		Google: GoogleConfig{
			ClientID: v.GetString("google.client_id"),
		},
		SMTP: SMTPConfig{
			Host:        v.GetString("smtp.host"),
			Port:        v.GetInt("smtp.port"),
			Username:    v.GetString("smtp.username"),
			Password:    v.GetString("smtp.password"),
			From:        v.GetString("smtp.from"),
			ImplicitTLS: v.GetBool("smtp.implicit_tls"),
		},
		RateLimit: RateLimitConfig{
			Window:  v.GetDuration("rate_limit.window"),
			AuthMax: v.GetInt("rate_limit.auth_max"),
			APIMax:  v.GetInt("rate_limit.api_max"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY is required"))
	}
	if c.JWT.Expiry <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRY must be positive"))
	}
	if c.Store.Driver != StoreDriverPostgres && c.Store.Driver != StoreDriverMemory {
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory))
	}
	if c.Passcode.TTL <= 0 || c.Passcode.MaxAttempts < 1 {
		errs = append(errs, errors.New("OTP_TTL and OTP_MAX_ATTEMPTS must be positive"))
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.AuthMax < 1 || c.RateLimit.APIMax < 1 {
		errs = append(errs, errors.New("rate limit window and maxima must be positive"))
	}
	return errors.Join(errs...)
}
