package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

// BreakerConfig holds the circuit breaker settings applied to every
// dependency unless overridden per entry. Durations are strings so the
// file can say "30s" instead of nanoseconds.
type BreakerConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	Timeout          string `mapstructure:"timeout"`
	SuccessThreshold int    `mapstructure:"success_threshold"`
	ExcludedStatuses []int  `mapstructure:"excluded_statuses"`
}

type TransportConfig struct {
	RequestTimeout      string   `mapstructure:"request_timeout"`
	MaxRetries          int      `mapstructure:"max_retries"`
	BackoffFactor       string   `mapstructure:"backoff_factor"`
	MaxBackoff          string   `mapstructure:"max_backoff"`
	Jitter              bool     `mapstructure:"jitter"`
	RetryMethods        []string `mapstructure:"retry_methods"`
	MaxIdleConns        int      `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int      `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     string   `mapstructure:"idle_conn_timeout"`
}

// DependencyConfig describes one downstream service. Zero-valued breaker
// fields inherit the defaults from the breaker section.
type DependencyConfig struct {
	URL              string `mapstructure:"url"`
	FailureThreshold int    `mapstructure:"failure_threshold"`
	Timeout          string `mapstructure:"timeout"`
	SuccessThreshold int    `mapstructure:"success_threshold"`
	ExcludedStatuses []int  `mapstructure:"excluded_statuses"`
}

type MetricsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type HealthCheckConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type Config struct {
	Server       ServerConfig                `mapstructure:"server"`
	Logging      LoggingConfig               `mapstructure:"logging"`
	Breaker      BreakerConfig               `mapstructure:"breaker"`
	Transport    TransportConfig             `mapstructure:"transport"`
	Dependencies map[string]DependencyConfig `mapstructure:"dependencies"`
	Metrics      MetricsConfig               `mapstructure:"metrics"`
	HealthCheck  HealthCheckConfig           `mapstructure:"health_check"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")

	viper.SetDefault("logging.level", LogLevelInfo)
	viper.SetDefault("logging.add_source", false)

	viper.SetDefault("breaker.failure_threshold", 5)
	viper.SetDefault("breaker.timeout", "30s")
	viper.SetDefault("breaker.success_threshold", 2)
	viper.SetDefault("breaker.excluded_statuses", []int{400, 401, 402, 403, 404, 409, 422})

	viper.SetDefault("transport.request_timeout", "10s")
	viper.SetDefault("transport.max_retries", 3)
	viper.SetDefault("transport.backoff_factor", "500ms")
	viper.SetDefault("transport.max_backoff", "30s")
	viper.SetDefault("transport.jitter", false)
	viper.SetDefault("transport.retry_methods", []string{"GET", "HEAD", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("transport.max_idle_conns", 100)
	viper.SetDefault("transport.max_idle_conns_per_host", 20)
	viper.SetDefault("transport.idle_conn_timeout", "90s")

	viper.SetDefault("dependencies.users.url", "http://localhost:5001")
	viper.SetDefault("dependencies.rooms.url", "http://localhost:5002")
	viper.SetDefault("dependencies.bookings.url", "http://localhost:5003")
	viper.SetDefault("dependencies.reviews.url", "http://localhost:5004")

	viper.SetDefault("metrics.buffer_size", 1024)

	viper.SetDefault("health_check.enabled", true)
	viper.SetDefault("health_check.interval", "15s")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// BreakerFor returns the breaker settings for a dependency with its
// overrides merged onto the defaults.
func (c *Config) BreakerFor(name string) BreakerConfig {
	merged := c.Breaker
	dep, ok := c.Dependencies[name]
	if !ok {
		return merged
	}
	if dep.FailureThreshold > 0 {
		merged.FailureThreshold = dep.FailureThreshold
	}
	if dep.Timeout != "" {
		merged.Timeout = dep.Timeout
	}
	if dep.SuccessThreshold > 0 {
		merged.SuccessThreshold = dep.SuccessThreshold
	}
	if len(dep.ExcludedStatuses) > 0 {
		merged.ExcludedStatuses = dep.ExcludedStatuses
	}
	return merged
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Breaker,
			validation.Required,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.FailureThreshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&bc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&bc.SuccessThreshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&bc.ExcludedStatuses,
						validation.Each(validation.By(validateStatusCode)),
					),
				)
			}),
		),
		validation.Field(&c.Transport,
			validation.Required,
			validation.By(func(value interface{}) error {
				tc, ok := value.(TransportConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a TransportConfig")
				}
				return validation.ValidateStruct(&tc,
					validation.Field(&tc.RequestTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&tc.MaxRetries,
						validation.Min(0),
					),
					validation.Field(&tc.BackoffFactor,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&tc.MaxBackoff,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&tc.RetryMethods,
						validation.Each(validation.By(validateRetryMethod)),
					),
					validation.Field(&tc.MaxIdleConns,
						validation.Min(1),
					),
					validation.Field(&tc.MaxIdleConnsPerHost,
						validation.Min(1),
					),
					validation.Field(&tc.IdleConnTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Dependencies,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateDependencyConfig)),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.BufferSize,
						validation.Min(1),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return validation.NewError("validation_empty_url", "service URL cannot be empty")
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

func validateStatusCode(value interface{}) error {
	code, ok := value.(int)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be an integer")
	}

	if code < 100 || code > 599 {
		return validation.NewError("validation_invalid_status", "must be a valid HTTP status code")
	}

	return nil
}

func validateRetryMethod(value interface{}) error {
	method, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	switch strings.ToUpper(method) {
	case "GET", "HEAD", "POST", "PUT", "DELETE", "PATCH", "OPTIONS":
		return nil
	}

	return validation.NewError("validation_invalid_method", "must be a standard HTTP method")
}

func validateDependencyConfig(value interface{}) error {
	dep, ok := value.(DependencyConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a DependencyConfig")
	}

	if err := validateServerURL(dep.URL); err != nil {
		return err
	}

	if dep.FailureThreshold < 0 {
		return validation.NewError("validation_invalid_threshold", "failure threshold cannot be negative")
	}

	if dep.SuccessThreshold < 0 {
		return validation.NewError("validation_invalid_threshold", "success threshold cannot be negative")
	}

	if dep.Timeout != "" {
		if err := validateDuration(dep.Timeout); err != nil {
			return err
		}
	}

	for _, status := range dep.ExcludedStatuses {
		if err := validateStatusCode(status); err != nil {
			return err
		}
	}

	return nil
}
