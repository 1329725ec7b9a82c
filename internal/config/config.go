// Package config contains the knobs and defaults of the JSON:API server.
//
// Values are read, in order of precedence, from command-line flags,
// environment variables prefixed with JSONAPI_ and a config.yaml file
// found in /etc/jsonapi, $HOME/.jsonapi or the working directory.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEngine          = "sqlite"
	DefaultURI             = "jsonapi.db"
	DefaultAddr            = "0.0.0.0:8080"
	DefaultBaseURL         = "http://localhost:8080/api"
	DefaultPageLimit       = 10
	DefaultShutdownTimeout = 10 * time.Second
)

// Engines lists the supported datastore engines.
var Engines = []string{"sqlite", "postgres", "mysql"}

// DatastoreConfig selects and tunes the database.
type DatastoreConfig struct {
	// Engine is one of Engines.
	Engine string `mapstructure:"engine"`

	// URI is the driver DSN; for sqlite a file path.
	URI string `mapstructure:"uri"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// HTTPConfig configures the listener and the links written into documents.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`

	// BaseURL is the public URL of the API root. Its path is the route
	// prefix and every link in a document starts with it.
	BaseURL string `mapstructure:"base_url"`

	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	CORSAllowedHeaders []string      `mapstructure:"cors_allowed_headers"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	// Format is "text" or "json".
	Format string `mapstructure:"format"`

	// Level is one of "none", "debug", "info", "warn" or "error".
	Level string `mapstructure:"level"`
}

// Config is the full server configuration.
type Config struct {
	// Schema is the path of a YAML or CUE resource schema. Empty selects
	// the built-in blog model.
	Schema string `mapstructure:"schema"`

	// PageLimit is the page size when page[limit] is absent.
	PageLimit int `mapstructure:"page_limit"`

	Datastore DatastoreConfig `mapstructure:"datastore"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		PageLimit: DefaultPageLimit,
		Datastore: DatastoreConfig{
			Engine:       DefaultEngine,
			URI:          DefaultURI,
			MaxOpenConns: 30,
			MaxIdleConns: 10,
		},
		HTTP: HTTPConfig{
			Addr:               DefaultAddr,
			BaseURL:            DefaultBaseURL,
			CORSAllowedOrigins: []string{},
			CORSAllowedHeaders: []string{},
			ShutdownTimeout:    DefaultShutdownTimeout,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Verify checks the configuration for values the server cannot run with.
func (cfg *Config) Verify() error {
	if !slices.Contains(Engines, cfg.Datastore.Engine) {
		return fmt.Errorf("config 'datastore.engine' must be one of %v", Engines)
	}
	if cfg.Datastore.URI == "" {
		return errors.New("config 'datastore.uri' must be set")
	}

	u, err := url.Parse(cfg.HTTP.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config 'http.base_url' must be an absolute URL, got %q", cfg.HTTP.BaseURL)
	}

	if cfg.PageLimit < 1 {
		return fmt.Errorf("config 'page_limit' must be at least 1, got %d", cfg.PageLimit)
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return errors.New("config 'log.format' must be one of ['text', 'json']")
	}
	if !slices.Contains([]string{"none", "debug", "info", "warn", "error"}, cfg.Log.Level) {
		return errors.New("config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error']")
	}
	return nil
}

// NewViper returns a viper instance with the search paths, the JSONAPI_
// environment prefix and every default registered.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range []string{"/etc/jsonapi", "$HOME/.jsonapi", "."} {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("JSONAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("schema", def.Schema)
	v.SetDefault("page_limit", def.PageLimit)
	v.SetDefault("datastore.engine", def.Datastore.Engine)
	v.SetDefault("datastore.uri", def.Datastore.URI)
	v.SetDefault("datastore.max_open_conns", def.Datastore.MaxOpenConns)
	v.SetDefault("datastore.max_idle_conns", def.Datastore.MaxIdleConns)
	v.SetDefault("datastore.conn_max_lifetime", def.Datastore.ConnMaxLifetime)
	v.SetDefault("http.addr", def.HTTP.Addr)
	v.SetDefault("http.base_url", def.HTTP.BaseURL)
	v.SetDefault("http.cors_allowed_origins", def.HTTP.CORSAllowedOrigins)
	v.SetDefault("http.cors_allowed_headers", def.HTTP.CORSAllowedHeaders)
	v.SetDefault("http.shutdown_timeout", def.HTTP.ShutdownTimeout)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.level", def.Log.Level)
	return v
}

// Read loads the configuration from v. A missing config file is not an
// error; defaults apply.
func Read(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// MustBindPFlag binds a config key to a flag and panics if binding fails.
func MustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}
