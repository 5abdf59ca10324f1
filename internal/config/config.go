// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/sqlchat/internal/backend"
	"github.com/jeranaias/sqlchat/internal/offline"
	"github.com/jeranaias/sqlchat/internal/render"
	"github.com/jeranaias/sqlchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete sqlchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Backend BackendConfig `toml:"backend" json:"backend"`
	Render  RenderConfig  `toml:"render" json:"render"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Server  ServerConfig  `toml:"server" json:"server"`
	Demo    DemoConfig    `toml:"demo" json:"demo"`
}

// BackendConfig configures the chat backend connection.
type BackendConfig struct {
	URL                string `toml:"url" json:"url"`
	SystemPrompt       string `toml:"system_prompt" json:"system_prompt"`
	TimeoutSecs        int    `toml:"timeout_secs" json:"timeout_secs"`
	ConnectTimeoutSecs int    `toml:"connect_timeout_secs" json:"connect_timeout_secs"`
}

// RenderConfig configures markdown rendering.
type RenderConfig struct {
	HardWraps      bool              `toml:"hard_wraps" json:"hard_wraps"`
	GFM            bool              `toml:"gfm" json:"gfm"`
	HighlightStyle string            `toml:"highlight_style" json:"highlight_style"`
	Sanitize       bool              `toml:"sanitize" json:"sanitize"`
	Aliases        map[string]string `toml:"aliases" json:"aliases,omitempty"`
	Macros         map[string]string `toml:"macros" json:"macros,omitempty"`
}

// StorageConfig selects where chats are persisted.
type StorageConfig struct {
	// Driver is "file" (one JSON document) or "sqlite".
	Driver string `toml:"driver" json:"driver"`
	// Path is a directory for the file driver and a database file for
	// sqlite. Empty means a location under the config directory.
	Path string `toml:"path" json:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `toml:"addr" json:"addr"`
	RateLimit   float64  `toml:"rate_limit" json:"rate_limit"`
	RateBurst   int      `toml:"rate_burst" json:"rate_burst"`
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins"`
}

// DemoConfig configures the offline demo responder.
type DemoConfig struct {
	Enabled    bool `toml:"enabled" json:"enabled"`
	MinDelayMs int  `toml:"min_delay_ms" json:"min_delay_ms"`
	MaxDelayMs int  `toml:"max_delay_ms" json:"max_delay_ms"`
	ShowQuery  bool `toml:"show_query" json:"show_query"`
}

// Storage drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// CurrentVersion is written into new config files.
const CurrentVersion = "1"

// Default returns a Config with all default values.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Backend: BackendConfig{
			URL:                backend.DefaultBaseURL,
			SystemPrompt:       backend.DefaultSystemPrompt,
			TimeoutSecs:        0,
			ConnectTimeoutSecs: int(backend.DefaultConnectTimeout / time.Second),
		},
		Render: RenderConfig{
			HardWraps:      true,
			GFM:            true,
			HighlightStyle: render.DefaultHighlightStyle,
		},
		Storage: StorageConfig{
			Driver: DriverFile,
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:8787",
			RateLimit:   10,
			RateBurst:   20,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Demo: DemoConfig{
			MinDelayMs: 50,
			MaxDelayMs: 150,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the sqlchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".sqlchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ActivePath returns the config file Load would read, or "" when neither
// file exists.
func ActivePath() string {
	for _, fn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		p, err := fn()
		if err != nil {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.sqlchat/config.toml, then config.json,
// then defaults. Environment overrides are applied last.
//
// A file that exists but cannot be parsed is reported alongside the
// defaults, so callers can warn and carry on.
func Load() (*Config, error) {
	if path := ActivePath(); path != "" {
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		var verr ValidateErrors
		if errors.As(err, &verr) {
			return nil, err
		}
		def, derr := finish(Default())
		if derr != nil {
			return nil, derr
		}
		return def, err
	}
	return finish(Default())
}

// LoadFromPath loads configuration from a specific file. Files ending in
// .json are decoded as JSON, anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg and fills missing values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg, func(key ...string) bool { return md.IsDefined(key...) })
	return nil
}

// LoadJSON decodes a JSON file into cfg and fills missing values.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	var raw map[string]map[string]json.RawMessage
	_ = json.Unmarshal(data, &raw)
	fillDefaults(cfg, func(key ...string) bool {
		if len(key) != 2 {
			return false
		}
		_, ok := raw[key[0]][key[1]]
		return ok
	})
	return nil
}

// fillDefaults fills in missing values with defaults. Booleans default to
// true for some keys, so defined reports whether the file set a key at all.
func fillDefaults(cfg *Config, defined func(key ...string) bool) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	// Backend
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = defaults.Backend.URL
	}
	if cfg.Backend.SystemPrompt == "" {
		cfg.Backend.SystemPrompt = defaults.Backend.SystemPrompt
	}
	if cfg.Backend.ConnectTimeoutSecs == 0 {
		cfg.Backend.ConnectTimeoutSecs = defaults.Backend.ConnectTimeoutSecs
	}

	// Render
	if !defined("render", "hard_wraps") {
		cfg.Render.HardWraps = defaults.Render.HardWraps
	}
	if !defined("render", "gfm") {
		cfg.Render.GFM = defaults.Render.GFM
	}
	if cfg.Render.HighlightStyle == "" {
		cfg.Render.HighlightStyle = defaults.Render.HighlightStyle
	}

	// Storage
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaults.Storage.Driver
	}

	// Server
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaults.Server.Addr
	}
	if !defined("server", "rate_limit") {
		cfg.Server.RateLimit = defaults.Server.RateLimit
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = defaults.Server.RateBurst
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}

	// Demo
	if !defined("demo", "min_delay_ms") {
		cfg.Demo.MinDelayMs = defaults.Demo.MinDelayMs
	}
	if !defined("demo", "max_delay_ms") {
		cfg.Demo.MaxDelayMs = defaults.Demo.MaxDelayMs
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration as TOML with a short header.
func SaveTOML(cfg *Config, path string) error {
	var sb strings.Builder
	sb.WriteString("# sqlchat configuration file\n")
	sb.WriteString("# Environment variables (SQLCHAT_*) override these values.\n\n")

	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Validate checks every section and returns ValidateErrors if anything is
// out of range.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if err := offline.ValidateBackendURL(c.Backend.URL); err != nil {
		add("backend.url", err.Error())
	}
	if c.Backend.TimeoutSecs < 0 {
		add("backend.timeout_secs", "must not be negative")
	}
	if c.Backend.ConnectTimeoutSecs < 0 {
		add("backend.connect_timeout_secs", "must not be negative")
	}

	switch c.Storage.Driver {
	case DriverFile, DriverSQLite:
	default:
		add("storage.driver", fmt.Sprintf("must be %q or %q, got %q", DriverFile, DriverSQLite, c.Storage.Driver))
	}

	if c.Server.Addr == "" {
		add("server.addr", "must not be empty")
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must not be negative")
	}
	if c.Server.RateBurst < 0 {
		add("server.rate_burst", "must not be negative")
	}

	if c.Demo.MinDelayMs < 0 || c.Demo.MaxDelayMs < 0 {
		add("demo", "delays must not be negative")
	} else if c.Demo.MaxDelayMs < c.Demo.MinDelayMs {
		add("demo.max_delay_ms", "must be at least min_delay_ms")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - SQLCHAT_BACKEND_URL: overrides backend.url
//   - SQLCHAT_SHOW_QUERY: "1" or "true" asks for the generated SQL
//   - SQLCHAT_STORAGE: overrides storage.driver
//   - SQLCHAT_ADDR: overrides server.addr
//   - SQLCHAT_DEMO: "1" or "true" starts in demo mode
func (c *Config) ApplyEnvOverrides() {
	if url := os.Getenv("SQLCHAT_BACKEND_URL"); url != "" {
		c.Backend.URL = url
	}
	if v := os.Getenv("SQLCHAT_SHOW_QUERY"); v != "" {
		c.Demo.ShowQuery = parseBool(v)
	}
	if driver := os.Getenv("SQLCHAT_STORAGE"); driver != "" {
		c.Storage.Driver = strings.ToLower(driver)
	}
	if addr := os.Getenv("SQLCHAT_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if v := os.Getenv("SQLCHAT_DEMO"); v != "" {
		c.Demo.Enabled = parseBool(v)
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes"
}

// =============================================================================
// COMPONENT SETTINGS
// =============================================================================

// BackendClientConfig converts the [backend] section for backend.NewClientWithConfig.
func (c *Config) BackendClientConfig() *backend.Config {
	return &backend.Config{
		BaseURL:        c.Backend.URL,
		SystemPrompt:   c.Backend.SystemPrompt,
		Timeout:        time.Duration(c.Backend.TimeoutSecs) * time.Second,
		ConnectTimeout: time.Duration(c.Backend.ConnectTimeoutSecs) * time.Second,
	}
}

// RenderOptions converts the [render] section to renderer options. Extra
// options (an error hook, say) are appended after the configured ones.
func (c *Config) RenderOptions(extra ...render.Option) []render.Option {
	opts := []render.Option{
		render.WithHardWraps(c.Render.HardWraps),
		render.WithGFM(c.Render.GFM),
		render.WithHighlightStyle(c.Render.HighlightStyle),
		render.WithAliases(c.Render.Aliases),
		render.WithMacros(c.Render.Macros),
	}
	if c.Render.Sanitize {
		opts = append(opts, render.WithSanitizer(render.SanitizedPolicy()))
	}
	return append(opts, extra...)
}

// DemoPacing converts the [demo] delays.
func (c *Config) DemoPacing() offline.Pacing {
	return offline.Pacing{
		Min: time.Duration(c.Demo.MinDelayMs) * time.Millisecond,
		Max: time.Duration(c.Demo.MaxDelayMs) * time.Millisecond,
	}
}

// StoragePath resolves storage.path, defaulting to chats/ or chats.db
// under the config directory.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if c.Storage.Driver == DriverSQLite {
		return filepath.Join(dir, "chats.db"), nil
	}
	return filepath.Join(dir, "chats"), nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value using dot notation (e.g. "server.addr").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a scalar value using dot notation. String values are converted
// to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// fieldByTag finds a struct field by its toml tag.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("toml") == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func setFieldValue(field reflect.Value, value interface{}) error {
	if s, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(s)
			return nil
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(n)
			return nil
		case reflect.Float64:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(f)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(s))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, item := range strings.Split(s, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every scalar key in dot notation, in declaration order.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type.Kind() != reflect.Struct {
			keys = append(keys, f.Tag.Get("toml"))
			continue
		}
		for j := 0; j < f.Type.NumField(); j++ {
			sub := f.Type.Field(j)
			if sub.Type.Kind() == reflect.Map {
				continue
			}
			keys = append(keys, f.Tag.Get("toml")+"."+sub.Tag.Get("toml"))
		}
	}
	return keys
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Render.Aliases = cloneMap(c.Render.Aliases)
	clone.Render.Macros = cloneMap(c.Render.Macros)
	if c.Server.CORSOrigins != nil {
		clone.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	}
	return &clone
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the config as indented JSON for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance, loading it on first
// access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	SetGlobal(cfg)
	return cfg, nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
