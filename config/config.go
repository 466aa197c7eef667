// Package config provides YAML configuration parsing for heartbeat.
//
// This package enables running heartbeat as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//
//	log:
//	  level: info
//	  format: json
//
//	monitor:
//	  interval: 5m
//	  probe_timeout: 10s
//	  warmup_attempts: 10
//	  warmup_delay: 5s
//
//	store:
//	  driver: postgres
//	  dsn: ${HEARTBEAT_DSN}
//
//	users:
//	  - id: alice
//	    apis:
//	      - id: orders
//	        url: https://orders.example.com/health
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// minInterval is the minimum allowed sleep between monitoring cycles.
// This prevents accidental DoS of endpoints with overly aggressive polling.
const minInterval = 1 * time.Second

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Log levels and formats.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

func init() {
	// name invalid fields by their YAML keys
	validation.ErrorTag = "yaml"
}

// Config is the root configuration structure for heartbeat.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	Log     LogConfig     `yaml:"log"`
	Monitor MonitorConfig `yaml:"monitor"`
	Store   StoreConfig   `yaml:"store"`

	// Users are seeded into the store before monitoring starts. A user whose
	// id already exists in the store is skipped, so seeding never changes
	// an existing document.
	Users []UserConfig `yaml:"users"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Format is json or console. Defaults to json.
	Format string `yaml:"format"`

	// Outputs are zap output paths. Defaults to stdout.
	// Values support environment variable substitution.
	Outputs []string `yaml:"outputs"`
}

// MonitorConfig configures warm-up and the regular loop.
type MonitorConfig struct {
	// Interval is the sleep between monitoring cycles. Defaults to 5m.
	Interval Duration `yaml:"interval"`

	// ProbeTimeout bounds each probe. Defaults to 10s.
	ProbeTimeout Duration `yaml:"probe_timeout"`

	// WarmupAttempts is the number of warm-up probes per endpoint.
	// Defaults to 10.
	WarmupAttempts int `yaml:"warmup_attempts"`

	// WarmupDelay is the wait between warm-up probes. Defaults to 5s; an
	// explicit 0s disables the wait.
	WarmupDelay Duration `yaml:"warmup_delay"`

	// MaxConcurrency bounds probes and writes in flight. Defaults to 50.
	MaxConcurrency int `yaml:"max_concurrency"`

	// SkipWarmup starts the regular loop immediately.
	SkipWarmup bool `yaml:"skip_warmup"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	// Driver is memory, sqlite or postgres. Defaults to memory.
	Driver string `yaml:"driver"`

	// DSN is the SQLite file path or the PostgreSQL connection string.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	DSN string `yaml:"dsn"`
}

// UserConfig is a user document to seed.
type UserConfig struct {
	ID   string           `yaml:"id"`
	APIs []EndpointConfig `yaml:"apis"`
}

// EndpointConfig is one endpoint of a seeded user.
type EndpointConfig struct {
	ID string `yaml:"id"`

	// URL supports environment variable substitution.
	URL string `yaml:"url"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns a Config with every default applied and no users.
func Default() Config {
	return Config{
		Port: 8080,
		Log: LogConfig{
			Level:   LogLevelInfo,
			Format:  LogFormatJSON,
			Outputs: []string{"stdout"},
		},
		Monitor: MonitorConfig{
			Interval:       Duration(300 * time.Second),
			ProbeTimeout:   Duration(10 * time.Second),
			WarmupAttempts: 10,
			WarmupDelay:    Duration(5 * time.Second),
			MaxConcurrency: 50,
		},
		Store: StoreConfig{Driver: DriverMemory},
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Keys missing from data keep their [Default] values. Environment variables
// are expanded in the store DSN, log outputs and endpoint URLs.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expand() error {
	dsn, err := expandEnvVars(c.Store.DSN)
	if err != nil {
		return fmt.Errorf("store.dsn: %w", err)
	}
	c.Store.DSN = dsn

	for i, out := range c.Log.Outputs {
		expanded, err := expandEnvVars(out)
		if err != nil {
			return fmt.Errorf("log.outputs[%d]: %w", i, err)
		}
		c.Log.Outputs[i] = expanded
	}

	for i := range c.Users {
		u := &c.Users[i]
		for j := range u.APIs {
			expanded, err := expandEnvVars(u.APIs[j].URL)
			if err != nil {
				return fmt.Errorf("users[%d] (%s): apis[%d]: url: %w", i, u.ID, j, err)
			}
			u.APIs[j].URL = expanded
		}
	}
	return nil
}

// Validate checks every section. Errors name the offending YAML key.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Log),
		validation.Field(&c.Monitor),
		validation.Field(&c.Store),
		validation.Field(&c.Users, validation.By(uniqueUserIDs)),
	)
}

// Validate checks the log section.
func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level,
			validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
		),
		validation.Field(&l.Format,
			validation.Required,
			validation.In(LogFormatJSON, LogFormatConsole),
		),
		validation.Field(&l.Outputs, validation.Each(validation.Required)),
	)
}

// Validate checks the monitor section.
func (m MonitorConfig) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Interval, validation.By(durationAtLeast(minInterval))),
		validation.Field(&m.ProbeTimeout, validation.By(durationAtLeast(time.Millisecond))),
		validation.Field(&m.WarmupAttempts, validation.Required, validation.Min(1)),
		validation.Field(&m.WarmupDelay, validation.By(durationAtLeast(0))),
		validation.Field(&m.MaxConcurrency, validation.Required, validation.Min(1)),
	)
}

// Validate checks the store section.
func (s StoreConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver,
			validation.Required,
			validation.In(DriverMemory, DriverSQLite, DriverPostgres),
		),
		validation.Field(&s.DSN,
			validation.When(s.Driver == DriverSQLite || s.Driver == DriverPostgres, validation.Required),
		),
	)
}

// Validate checks one seeded user.
func (u UserConfig) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.ID, validation.Required),
		validation.Field(&u.APIs, validation.By(uniqueEndpointIDs)),
	)
}

// Validate checks one seeded endpoint.
func (e EndpointConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.URL, validation.Required, validation.By(validateEndpointURL)),
	)
}

func durationAtLeast(min time.Duration) validation.RuleFunc {
	return func(value interface{}) error {
		d, ok := value.(Duration)
		if !ok {
			return validation.NewError("validation_invalid_type", "must be a duration")
		}
		if d.Duration() < min {
			return validation.NewError("validation_duration_too_small",
				fmt.Sprintf("must be at least %s", min))
		}
		return nil
	}
}

func validateEndpointURL(value interface{}) error {
	raw, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if raw == "" {
		return nil
	}

	parsedURL, err := url.Parse(raw)
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

func uniqueUserIDs(value interface{}) error {
	users, _ := value.([]UserConfig)
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		if _, exists := seen[u.ID]; exists {
			return validation.NewError("validation_duplicate_id", fmt.Sprintf("duplicate user id %q", u.ID))
		}
		seen[u.ID] = struct{}{}
	}
	return nil
}

func uniqueEndpointIDs(value interface{}) error {
	apis, _ := value.([]EndpointConfig)
	seen := make(map[string]struct{}, len(apis))
	for _, e := range apis {
		if e.ID == "" {
			continue
		}
		if _, exists := seen[e.ID]; exists {
			return validation.NewError("validation_duplicate_id", fmt.Sprintf("duplicate endpoint id %q", e.ID))
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}
