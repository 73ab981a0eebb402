package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/googlearchive/science-journal-ios/catalog"
	"github.com/googlearchive/science-journal-ios/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SJ"

// Config is the configuration of the catalog tooling and server.
type Config struct {
	Catalog CatalogConfig `json:"catalog"`
	Log     LogConfig     `json:"log"`
	HTTP    HTTPConfig    `json:"http"`
	NATS    NATSConfig    `json:"nats"`
}

// CatalogConfig selects where message types come from.
type CatalogConfig struct {
	Package       string `json:"package"`                  // protobuf package of the bundle
	DescriptorSet string `json:"descriptor_set,omitempty"` // protoc --descriptor_set_out file
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// HTTPConfig configures the catalog server.
type HTTPConfig struct {
	Addr            string   `json:"addr"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	ConvertRate     float64  `json:"convert_rate,omitempty"` // conversions/s, 0 default, <0 unlimited
}

// NATSConfig configures manifest publication. An empty URL disables it.
type NATSConfig struct {
	URL      string   `json:"url,omitempty"`
	Bucket   string   `json:"bucket"`
	Timeout  Duration `json:"timeout"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	Token    string   `json:"token,omitempty"`
}

// Enabled reports whether a NATS URL is configured.
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// Duration is a time.Duration written as a Go duration string in JSON.
type Duration time.Duration

// MarshalJSON encodes d as a duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string ("5s") or integer nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer nanoseconds: %s", data)
	}
	*d = Duration(n)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Package: catalog.DefaultPackage,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		NATS: NATSConfig{
			Bucket:  "SJ_CATALOG",
			Timeout: Duration(5 * time.Second),
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Catalog.Package == "" {
		return invalid("catalog.package is required")
	}
	for _, part := range strings.Split(c.Catalog.Package, ".") {
		if !isIdentifier(part) {
			return invalid("catalog.package %q is not a protobuf package name", c.Catalog.Package)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return invalid("log.format %q must be json or text", c.Log.Format)
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr is required")
	}
	if c.HTTP.ShutdownTimeout < 0 {
		return invalid("http.shutdown_timeout must not be negative")
	}

	if c.NATS.Enabled() {
		if !strings.Contains(c.NATS.URL, "://") {
			return invalid("nats.url %q must include a scheme", c.NATS.URL)
		}
		if c.NATS.Bucket == "" {
			return invalid("nats.bucket is required when nats.url is set")
		}
		if c.NATS.Timeout <= 0 {
			return invalid("nats.timeout must be positive")
		}
	}

	return nil
}

func invalid(format string, args ...any) error {
	return errors.WrapFatal(
		fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"Config", "Validate", "config validation")
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// String returns a JSON representation of the config with secrets redacted
func (c *Config) String() string {
	redacted := *c
	if redacted.NATS.Password != "" {
		redacted.NATS.Password = "***"
	}
	if redacted.NATS.Token != "" {
		redacted.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(redacted, "", "  ")
	return string(data)
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: true,
		envPrefix:  EnvPrefix,
		lookupEnv:  os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges the defaults, every file layer in order, and the environment.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := l.loadRawJSON(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		cfg, err = mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapFatal(
				fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, path, err), "Loader", "Load", "merge layer")
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "environment overrides")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadRawJSON loads configuration from a JSON file as a map
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	// Validate JSON depth to prevent DoS
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON structure: %v", errors.ErrInvalidConfig, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return raw, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies SJ_* environment variables on top of the file layers.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"CATALOG_PACKAGE", &cfg.Catalog.Package},
		{"DESCRIPTOR_SET", &cfg.Catalog.DescriptorSet},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
		{"HTTP_ADDR", &cfg.HTTP.Addr},
		{"NATS_URL", &cfg.NATS.URL},
		{"NATS_BUCKET", &cfg.NATS.Bucket},
		{"NATS_USERNAME", &cfg.NATS.Username},
		{"NATS_PASSWORD", &cfg.NATS.Password},
		{"NATS_TOKEN", &cfg.NATS.Token},
	}
	for _, s := range strs {
		val, ok, err := l.env(s.name)
		if err != nil {
			return err
		}
		if ok {
			*s.dst = val
		}
	}

	durations := []struct {
		name string
		dst  *Duration
	}{
		{"HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout},
		{"NATS_TIMEOUT", &cfg.NATS.Timeout},
	}
	for _, d := range durations {
		val, ok, err := l.env(d.name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		parsed, err := parseDuration(val)
		if err != nil {
			return fmt.Errorf("%w: %s_%s: %v", errors.ErrInvalidConfig, l.envPrefix, d.name, err)
		}
		*d.dst = Duration(parsed)
	}

	return nil
}

func (l *Loader) env(name string) (string, bool, error) {
	key := l.envPrefix + "_" + name
	val, ok := l.lookupEnv(key)
	if !ok || val == "" {
		return "", false, nil
	}
	if err := validateEnvVar(key, val); err != nil {
		return "", false, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return val, true, nil
}

// parseDuration accepts Go duration strings and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}
