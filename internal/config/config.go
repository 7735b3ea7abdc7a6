package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every config key when read from the environment
const EnvPrefix = "VIDRELAY"

// Config holds all configuration for the application. It is built once at
// startup and treated as read-only afterwards.
type Config struct {
	Environment string
	Server      ServerConfig
	Auth        AuthConfig
	Extractor   ExtractorConfig
	Relay       RelayConfig
	RateLimit   RateLimitConfig
	Redis       RedisConfig
	Metrics     MetricsConfig
	Tracing     TracingConfig
	Logging     LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For is
	// honoured when resolving the client IP. Empty trusts none.
	TrustedProxies []string
}

// AuthConfig holds the shared-secret settings
type AuthConfig struct {
	APIKey string
	// AllowAnonymous lets every request through when no APIKey is set.
	// Intended for local development and tests only.
	AllowAnonymous bool
}

// ExtractorConfig holds yt-dlp settings
type ExtractorConfig struct {
	Path          string
	Timeout       time.Duration
	MaxConcurrent int
	UpdateOnStart bool
}

// RelayConfig holds outbound media fetch settings
type RelayConfig struct {
	ConnectTimeout        time.Duration
	ResponseHeaderTimeout time.Duration
	UserAgent             string
	BufferSize            int
}

// RateLimitConfig holds request rate limiting settings
type RateLimitConfig struct {
	Enabled           bool
	Backend           string // memory, redis
	RequestsPerSecond int
	Burst             int
	Limit             int64
	Window            time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// MetricsConfig holds prometheus exporter configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds Jaeger configuration
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// LoggingConfig mirrors logging.Config
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// APIKeyConfigured reports whether a non-blank shared secret is set
func (c *Config) APIKeyConfigured() bool {
	return strings.TrimSpace(c.Auth.APIKey) != ""
}

// Load reads configuration from an optional YAML file and environment variables
func Load(configPath string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), configPath)
}

// LoadFs is Load against an explicit filesystem
func LoadFs(fs afero.Fs, configPath string) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if !c.APIKeyConfigured() && !c.Auth.AllowAnonymous {
		errs = append(errs, errors.New("auth.apiKey is not set; set API_KEY or enable auth.allowAnonymous for test mode"))
	}
	if c.Extractor.Path == "" {
		errs = append(errs, errors.New("extractor.path must not be empty"))
	}
	if c.Extractor.MaxConcurrent < 0 {
		errs = append(errs, errors.New("extractor.maxConcurrent must not be negative"))
	}
	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case "memory", "redis":
		default:
			errs = append(errs, fmt.Errorf("unknown rateLimit.backend %q", c.RateLimit.Backend))
		}
	}

	return errors.Join(errs...)
}

// bindLegacyEnv keeps the plain variable names deployments already use
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port": {EnvPrefix + "_SERVER_PORT", "PORT"},
		"auth.apiKey": {EnvPrefix + "_AUTH_APIKEY", "API_KEY"},
		"environment": {EnvPrefix + "_ENVIRONMENT", "APP_ENV", "NODE_ENV"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "0s") // streams may run for a long time
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.trustedProxies", []string{})

	// Auth defaults
	v.SetDefault("auth.apiKey", "")
	v.SetDefault("auth.allowAnonymous", false)

	// Extractor defaults
	v.SetDefault("extractor.path", "yt-dlp")
	v.SetDefault("extractor.timeout", "2m")
	v.SetDefault("extractor.maxConcurrent", 0)
	v.SetDefault("extractor.updateOnStart", true)

	// Relay defaults
	v.SetDefault("relay.connectTimeout", "10s")
	v.SetDefault("relay.responseHeaderTimeout", "30s")
	v.SetDefault("relay.userAgent", "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0")
	v.SetDefault("relay.bufferSize", 32*1024)

	// Rate limit defaults
	v.SetDefault("rateLimit.enabled", false)
	v.SetDefault("rateLimit.backend", "memory")
	v.SetDefault("rateLimit.requestsPerSecond", 5)
	v.SetDefault("rateLimit.burst", 10)
	v.SetDefault("rateLimit.limit", 120)
	v.SetDefault("rateLimit.window", "1m")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "vidrelay")
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}
