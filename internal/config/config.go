package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultLogLevel        = "info"
	defaultLogFormat       = "line"
	defaultCoreAddress     = "http://127.0.0.1:11626"
	defaultCoreTimeout     = 5 * time.Second
	defaultPort            = 9473
	defaultSelfMetricsPath = "/exporter/metrics"
	defaultNamespace       = "stellar_core"
	defaultPprofListen     = "127.0.0.1:6060"
	defaultLogMaxSizeMB    = 100
	defaultLogMaxBackups   = 5
	defaultLogMaxAgeDays   = 30
)

// Duration wraps time.Duration for TOML parsing.
// Params: text duration string (e.g. "5s", "1m").
// Returns: parse error on invalid duration.
type Duration struct {
	time.Duration
}

// UnmarshalText parses TOML duration values.
// Params: text is raw duration bytes from TOML.
// Returns: error when value is not a valid Go duration.
func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Duration = 0
		return nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}

	d.Duration = parsed
	return nil
}

// Config represents the root exporter configuration.
// Params: TOML document sections.
// Returns: validated runtime configuration.
type Config struct {
	Core    CoreConfig    `toml:"core"`
	Server  ServerConfig  `toml:"server"`
	Metrics MetricsConfig `toml:"metrics"`
	Log     LogConfig     `toml:"log"`
	Pprof   PprofConfig   `toml:"pprof"`
}

// CoreConfig points at the stellar-core admin HTTP endpoint.
type CoreConfig struct {
	Address string   `toml:"address"`
	Timeout Duration `toml:"timeout"`
}

// ServerConfig defines the exporter HTTP endpoint.
// Params: listen address, self-metrics path (empty disables) and strict failure mode.
// Returns: server runtime settings.
type ServerConfig struct {
	Listen          string  `toml:"listen"`
	SelfMetricsPath *string `toml:"self_metrics_path"`
	Strict          *bool   `toml:"strict"`
}

// SelfMetricsEndpoint returns the exporter self-metrics path, empty when disabled.
func (s ServerConfig) SelfMetricsEndpoint() string {
	if s.SelfMetricsPath == nil {
		return ""
	}
	return *s.SelfMetricsPath
}

// StrictMode reports whether one failed phase fails the whole scrape.
func (s ServerConfig) StrictMode() bool {
	return s.Strict == nil || *s.Strict
}

// MetricsConfig controls naming and selection of node metrics.
type MetricsConfig struct {
	Namespace string   `toml:"namespace"`
	Filter    []string `toml:"filter"`
	Drop      []string `toml:"drop"`
}

// PprofConfig defines optional runtime pprof HTTP endpoint.
// Params: enabled flag and listen address in host:port format.
// Returns: pprof runtime settings.
type PprofConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// LogConfig contains console/file logging configuration.
// Params: console and file sink options.
// Returns: logger sink settings.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Rotation fields apply to the file sink only.
type LogSinkConfig struct {
	Enabled    bool   `toml:"enabled"`
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Overrides carries command-line/environment values that take precedence over the file.
// Zero values leave the file setting untouched.
type Overrides struct {
	CoreAddress string
	Port        int
}

// Default returns a validated configuration without reading any file.
func Default() (*Config, error) {
	var cfg Config
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads, expands, validates, and returns config from path.
// Params: path to TOML config file or directory with *.toml files; empty path means defaults.
// Returns: validated config pointer or error.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}

	raw, err := readConfigSource(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("decode TOML %q: %w", path, err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Apply overlays non-zero overrides and re-validates.
// Params: o command-line/environment overrides.
// Returns: validation error for invalid override values.
func (c *Config) Apply(o Overrides) error {
	if address := strings.TrimSpace(o.CoreAddress); address != "" {
		c.Core.Address = address
	}
	if o.Port != 0 {
		host := ""
		if existing, _, err := net.SplitHostPort(c.Server.Listen); err == nil {
			host = existing
		}
		c.Server.Listen = net.JoinHostPort(host, strconv.Itoa(o.Port))
	}
	return c.validate()
}

// readConfigSource reads one TOML file or concatenates *.toml files from directory.
// Params: path to config file or directory.
// Returns: raw TOML bytes or error.
func readConfigSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %q: %w", path, err)
	}

	if !info.IsDir() {
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", path, readErr)
		}
		return raw, nil
	}

	return readConfigDir(path)
}

// readConfigDir concatenates config snippets from one directory in file name order.
func readConfigDir(path string) ([]byte, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read config dir %q: %w", path, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".toml") {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("read config dir %q: no *.toml files", path)
	}

	var builder strings.Builder
	for _, name := range files {
		filePath := filepath.Join(path, name)
		raw, readErr := os.ReadFile(filePath)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", filePath, readErr)
		}
		builder.Write(raw)
		if len(raw) == 0 || raw[len(raw)-1] != '\n' {
			builder.WriteByte('\n')
		}
		builder.WriteByte('\n')
	}

	return []byte(builder.String()), nil
}

// applyDefaults fills defaults for optional configuration fields.
// Params: receiver config pointer.
// Returns: always nil; kept for symmetry with validate.
func (c *Config) applyDefaults() error {
	c.Log.Console.Level = lowerOrDefault(c.Log.Console.Level, defaultLogLevel)
	c.Log.Console.Format = lowerOrDefault(c.Log.Console.Format, defaultLogFormat)
	c.Log.File.Level = lowerOrDefault(c.Log.File.Level, defaultLogLevel)
	c.Log.File.Format = lowerOrDefault(c.Log.File.Format, "json")

	if !c.Log.Console.Enabled && !c.Log.File.Enabled {
		c.Log.Console.Enabled = true
	}
	if c.Log.File.MaxSizeMB <= 0 {
		c.Log.File.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Log.File.MaxBackups <= 0 {
		c.Log.File.MaxBackups = defaultLogMaxBackups
	}
	if c.Log.File.MaxAgeDays <= 0 {
		c.Log.File.MaxAgeDays = defaultLogMaxAgeDays
	}

	if strings.TrimSpace(c.Core.Address) == "" {
		c.Core.Address = defaultCoreAddress
	}
	c.Core.Address = strings.TrimRight(strings.TrimSpace(c.Core.Address), "/")
	if c.Core.Timeout.Duration <= 0 {
		c.Core.Timeout.Duration = defaultCoreTimeout
	}

	if strings.TrimSpace(c.Server.Listen) == "" {
		c.Server.Listen = ":" + strconv.Itoa(defaultPort)
	}
	selfMetricsPath := defaultSelfMetricsPath
	if c.Server.SelfMetricsPath != nil {
		selfMetricsPath = strings.TrimSpace(*c.Server.SelfMetricsPath)
	}
	c.Server.SelfMetricsPath = &selfMetricsPath

	if strings.TrimSpace(c.Metrics.Namespace) == "" {
		c.Metrics.Namespace = defaultNamespace
	}

	if c.Pprof.Enabled && strings.TrimSpace(c.Pprof.Listen) == "" {
		c.Pprof.Listen = defaultPprofListen
	}

	return nil
}

// validate checks config consistency and required fields.
// Params: receiver config pointer.
// Returns: validation error for invalid or incomplete config.
func (c *Config) validate() error {
	if err := validateCoreConfig("core", c.Core); err != nil {
		return err
	}
	if err := validateServerConfig("server", c.Server); err != nil {
		return err
	}
	if err := validateMetricsConfig("metrics", c.Metrics); err != nil {
		return err
	}
	if err := validateSink("log.console", c.Log.Console, false); err != nil {
		return err
	}
	if err := validateSink("log.file", c.Log.File, true); err != nil {
		return err
	}
	if err := validatePprofConfig("pprof", c.Pprof); err != nil {
		return err
	}
	return nil
}

// validateCoreConfig validates node endpoint settings.
func validateCoreConfig(path string, cfg CoreConfig) error {
	parsed, err := url.Parse(cfg.Address)
	if err != nil {
		return fmt.Errorf("%s.address: %w", path, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s.address must use http or https scheme, got %q", path, cfg.Address)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s.address must include host, got %q", path, cfg.Address)
	}
	if cfg.Timeout.Duration <= 0 {
		return fmt.Errorf("%s.timeout must be > 0", path)
	}
	return nil
}

// validateServerConfig validates the exporter listen endpoint and self-metrics path.
func validateServerConfig(path string, cfg ServerConfig) error {
	if _, port, err := net.SplitHostPort(cfg.Listen); err != nil {
		return fmt.Errorf("%s.listen must be host:port: %w", path, err)
	} else if n, convErr := strconv.Atoi(port); convErr != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("%s.listen has invalid port %q", path, port)
	}
	if selfPath := cfg.SelfMetricsEndpoint(); selfPath != "" {
		if !strings.HasPrefix(selfPath, "/") {
			return fmt.Errorf("%s.self_metrics_path must start with '/'", path)
		}
		if selfPath == "/" {
			return fmt.Errorf("%s.self_metrics_path cannot be the root path", path)
		}
	}
	return nil
}

// validateMetricsConfig validates namespace characters.
func validateMetricsConfig(path string, cfg MetricsConfig) error {
	namespace := strings.TrimSpace(cfg.Namespace)
	for idx, ch := range namespace {
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9' && idx > 0:
		default:
			return fmt.Errorf("%s.namespace %q must match [a-zA-Z_][a-zA-Z0-9_]*", path, cfg.Namespace)
		}
	}
	return nil
}

// validateSink validates one logging sink configuration.
// Params: name is sink path for errors; sink is sink config; requirePath means path required when enabled.
// Returns: validation error or nil.
func validateSink(name string, sink LogSinkConfig, requirePath bool) error {
	if sink.Enabled && requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required when sink is enabled", name)
	}

	if err := validateLogLevel(sink.Level); err != nil {
		return fmt.Errorf("%s.level: %w", name, err)
	}
	if err := validateLogFormat(sink.Format); err != nil {
		return fmt.Errorf("%s.format: %w", name, err)
	}

	return nil
}

// validateLogLevel validates known log levels.
func validateLogLevel(level string) error {
	switch strings.TrimSpace(strings.ToLower(level)) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", level)
	}
}

// validateLogFormat validates supported sink formats.
func validateLogFormat(format string) error {
	switch strings.TrimSpace(strings.ToLower(format)) {
	case "line", "json":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", format)
	}
}

// validatePprofConfig validates optional pprof endpoint settings.
// Params: path is config path prefix; cfg pprof section.
// Returns: validation error for invalid listen endpoint.
func validatePprofConfig(path string, cfg PprofConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("%s.listen cannot be empty when enabled", path)
	}
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		return fmt.Errorf("%s.listen must be host:port: %w", path, err)
	}
	return nil
}

// lowerOrDefault returns a trimmed lower-case value or default fallback.
func lowerOrDefault(value, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return fallback
	}
	return normalized
}
