package internal

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// CORS policies.
const (
	CORSPolicyPermissive = "permissive"
	CORSPolicyAllowlist  = "allowlist"
)

// DefaultPort is used when neither the config file nor PORT sets one.
const DefaultPort = 3000

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	CORS    CORSConfig        `yaml:"cors"`
	Search  SearchConfig      `yaml:"search"`
	Metrics MetricsConfig     `yaml:"metrics"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.CORS.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}

// ApplyEnv overlays process environment values onto the configuration.
// lookup has the signature of os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("PORT"); ok {
		// Non-numeric values leave the configured port in place.
		if port, err := strconv.Atoi(v); err == nil {
			c.App.HTTP.Port = port
		}
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err == nil {
			c.App.LogLevel = level
		}
	}
	if v, ok := lookup("API_BASE_URL"); ok && v != "" {
		c.Search.BaseURL = v
	}
	if v, ok := lookup("API_KEY_NAME"); ok && v != "" {
		c.Search.APIKeyName = v
	}
	if v, ok := lookup("API_KEY_VALUE"); ok && v != "" {
		c.Search.APIKeyValue = v
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ShutdownTimeout, validation.Required, validation.Min(time.Second)),
	)
}

// CORSConfig holds the cross-origin policy.
//
// Policy selects how origins are matched:
//   - "permissive" (default): any origin, Access-Control-Allow-Origin: * on every response.
//   - "allowlist": only origins listed in AllowedOrigins are echoed back.
type CORSConfig struct {
	Policy           string   `yaml:"policy"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	ExposedHeaders   []string `yaml:"exposed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"`
}

// Validate validates the CORS configuration.
func (c *CORSConfig) Validate() error {
	if c.Policy == "" {
		c.Policy = CORSPolicyPermissive
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Policy, validation.Required, validation.In(CORSPolicyPermissive, CORSPolicyAllowlist)),
		validation.Field(&c.AllowedOrigins,
			validation.When(c.Policy == CORSPolicyAllowlist, validation.Required),
			validation.Each(validation.Required)),
		validation.Field(&c.AllowedMethods, validation.Required),
		validation.Field(&c.MaxAge, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.Policy == CORSPolicyPermissive && c.AllowCredentials {
		return fmt.Errorf("cors: allow_credentials cannot be combined with the %q policy", CORSPolicyPermissive)
	}
	return nil
}

// AllowsAnyOrigin reports whether the policy admits every origin.
func (c *CORSConfig) AllowsAnyOrigin() bool {
	return c.Policy == CORSPolicyPermissive
}

// SearchConfig describes the upstream search API.
//
// BaseURL may be left empty; the server still starts and the search route
// answers 503 until it is configured.
type SearchConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKeyName       string        `yaml:"api_key_name"`
	APIKeyValue      string        `yaml:"api_key_value"`
	QueryParam       string        `yaml:"query_param"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRequestBytes  int64         `yaml:"max_request_bytes"`
	MaxResponseBytes int64         `yaml:"max_response_bytes"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, is.URL),
		validation.Field(&c.QueryParam, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxRequestBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.MaxResponseBytes, validation.Required, validation.Min(int64(1))),
	); err != nil {
		return err
	}
	if c.APIKeyValue != "" && c.APIKeyName == "" {
		return fmt.Errorf("search: api_key_value is set but api_key_name is empty")
	}
	return nil
}

// Configured reports whether an upstream base URL is set.
func (c *SearchConfig) Configured() bool {
	return c.BaseURL != ""
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the metrics configuration.
func (c *MetricsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:            DefaultPort,
				ShutdownTimeout: 10 * time.Second,
			},
		},
		CORS: CORSConfig{
			Policy: CORSPolicyPermissive,
			AllowedMethods: []string{
				http.MethodGet, http.MethodHead, http.MethodPut,
				http.MethodPatch, http.MethodPost, http.MethodDelete,
			},
			AllowedHeaders: []string{"*"},
		},
		Search: SearchConfig{
			QueryParam:       "q",
			Timeout:          30 * time.Second,
			MaxRequestBytes:  1 << 20,
			MaxResponseBytes: 10 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
