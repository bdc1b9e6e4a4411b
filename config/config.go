package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/owlfacerec/owlface/internal"
)

// We're bootstrapping so avoid any imports from other packages
var log = logrus.New()

const envPrefix = "OWLFACE"

// legacyEnv maps config keys to the unprefixed environment variables understood by
// earlier deployments. The prefixed OWLFACE_* variable always wins.
var legacyEnv = map[string]string{
	"server.host":             "HOST",
	"server.port":             "PORT",
	"log.level":               "LOG_LEVEL",
	"store.postgres.user":     "POSTGRES_USER",
	"store.postgres.password": "POSTGRES_PASSWORD",
	"store.postgres.host":     "POSTGRES_HOST",
	"store.postgres.port":     "POSTGRES_PORT",
	"store.postgres.database": "POSTGRES_DB",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.max_request_body_size", 10<<20)
	v.SetDefault("server.shutdown_timeout", 10)

	v.SetDefault("log.level", "info")

	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.user", "postgres")
	v.SetDefault("store.postgres.password", "postgres")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.database", "owlfacerec")
	v.SetDefault("store.postgres.sslmode", "disable")
	v.SetDefault("store.postgres.max_open_conns", 0)

	v.SetDefault("embedding.dimensions", 512)

	v.SetDefault("inference.server_url", "http://localhost:8000")
	v.SetDefault("inference.model_name", "arcfaceresnet100-8")
	v.SetDefault("inference.input_name", "data")
	v.SetDefault("inference.output_name", "")
	v.SetDefault("inference.timeout", 30)
	v.SetDefault("inference.retry_max", 3)
	v.SetDefault("inference.check_ready", true)

	v.SetDefault("preprocessing.size", 112)
	v.SetDefault("preprocessing.channel_order", "bgr")
	v.SetDefault("preprocessing.mean", 127.5)
	v.SetDefault("preprocessing.scale", 128.0)
	v.SetDefault("preprocessing.max_pixels", 40_000_000)

	v.SetDefault("search.default_threshold", 0.7)
	v.SetDefault("search.default_limit", 10)
	v.SetDefault("search.workers", 0)
	v.SetDefault("search.min_chunk_size", 256)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", AppName)
}

// LoadConfig loads the config file and ENV variables into a Config struct.
// When configFile is empty a config.yaml in the working directory is used if present;
// otherwise defaults and the environment apply.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, err
		}
		log.Debug("no config file found, using defaults and environment")
	}

	// Environment variables take precedence over config file
	loadDotEnv()

	for key, env := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the config against its validate tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// loadDotEnv loads environment variables from .env file
func loadDotEnv() {
	err := godotenv.Load()
	if err != nil {
		log.Debug(".env file not found or unable to load")
	}
}

// SetLogLevel sets the log level based on the config file. Defaults to INFO if not set or invalid
func SetLogLevel(cfg *Config) {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	internal.SetLogLevel(level)
	log.Info("Log level set to: ", level)
}

// ConnString returns the DSN if set, or one assembled from the individual parts.
func (c PostgresConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}

// Addr is the listen address of the HTTP server.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
