package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the root configuration for ticketrelay. It is built once at
// startup and handed to each component constructor.
type Config struct {
	General    GeneralConfig             `json:"general"`
	Gateway    GatewayConfig             `json:"gateway"`
	Store      StoreConfig               `json:"store"`
	Classifier ClassifierConfig          `json:"classifier"`
	Providers  map[string]ProviderConfig `json:"providers"`
	Relay      RelayConfig               `json:"relay"`
	Audit      AuditConfig               `json:"audit"`
	Metrics    MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"` // optional log file path
}

type GatewayConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Path      string `json:"path"`
	ReadLimit int64  `json:"readLimit"` // max inbound frame size in bytes
}

// Addr returns the listen address.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

type StoreConfig struct {
	APIBase  string   `json:"apiBase"`
	APIKey   string   `json:"apiKey"`
	BaseID   string   `json:"baseId"`
	Table    string   `json:"table"`
	Timeout  Duration `json:"timeout"`
	CacheTTL Duration `json:"schemaCacheTTL"` // 0 = fetch the schema for every message
}

type ClassifierConfig struct {
	Mode      string `json:"mode"` // "rules" | "model"
	Provider  string `json:"provider"`
	RulesFile string `json:"rulesFile,omitempty"`
}

type ProviderConfig struct {
	Enabled      bool   `json:"enabled"`
	APIBase      string `json:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty"`
}

type RelayConfig struct {
	Token          string   `json:"token"`
	GatewayURL     string   `json:"gatewayUrl"`
	TargetThreadID int      `json:"targetThreadId"`
	ReconnectDelay Duration `json:"reconnectDelay"`
	PollTimeout    int      `json:"pollTimeoutSeconds"`
	Replies        bool     `json:"replies"`     // answer the sender in-thread
	MetricsAddr    string   `json:"metricsAddr"` // status and metrics listener, empty = off
}

type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// envOverlay names the environment variables that override file values.
// It is seeded from the loaded config, so unset variables change nothing.
type envOverlay struct {
	LogLevel           string   `envconfig:"LOG_LEVEL"`
	LogFile            string   `envconfig:"LOG_FILE"`
	Host               string   `envconfig:"HOST"`
	Port               int      `envconfig:"PORT"`
	StoreAPIKey        string   `envconfig:"AIRTABLE_API_KEY"`
	StoreBaseID        string   `envconfig:"AIRTABLE_BASE_ID"`
	StoreTable         string   `envconfig:"AIRTABLE_TABLE_NAME"`
	SchemaCacheTTL     Duration `envconfig:"SCHEMA_CACHE_TTL"`
	ClassifierMode     string   `envconfig:"CLASSIFIER_MODE"`
	ClassifierProvider string   `envconfig:"CLASSIFIER_PROVIDER"`
	RulesFile          string   `envconfig:"CLASSIFIER_RULES_FILE"`
	TelegramToken      string   `envconfig:"TELEGRAM_BOT_TOKEN"`
	GatewayURL         string   `envconfig:"GATEWAY_URL"`
	TargetThreadID     int      `envconfig:"TARGET_THREAD_ID"`
	ReconnectDelay     Duration `envconfig:"RECONNECT_DELAY"`
	RelayMetricsAddr   string   `envconfig:"RELAY_METRICS_ADDR"`
	AuditDBPath        string   `envconfig:"AUDIT_DB_PATH"`
	GeminiKey          string   `envconfig:"GEMINI_API_KEY"`
	OpenAIKey          string   `envconfig:"OPENAI_API_KEY"`
}

// Duration is a time.Duration that reads "5s" style strings from JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or nanoseconds: %s", string(data))
	}
	*d = Duration(n)
	return nil
}

// Decode lets envconfig parse "5s" style values.
func (d *Duration) Decode(value string) error {
	v, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func DefaultConfigPath() string {
	return "ticketrelay.json"
}

// Load builds the configuration: defaults, then the optional JSON file at
// path, then .env and process environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(ExpandPath(path))
		switch {
		case errors.Is(err, fs.ErrNotExist) && path == DefaultConfigPath():
			// The default file is optional.
		case err != nil:
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		default:
			// Substitute environment variables: ${VAR} and ${VAR:-default}
			data = []byte(ExpandEnvVars(string(data)))
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot load .env: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)
	cfg.Classifier.RulesFile = ExpandPath(cfg.Classifier.RulesFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	ov := envOverlay{
		LogLevel:           cfg.General.LogLevel,
		LogFile:            cfg.General.LogFile,
		Host:               cfg.Gateway.Host,
		Port:               cfg.Gateway.Port,
		StoreAPIKey:        cfg.Store.APIKey,
		StoreBaseID:        cfg.Store.BaseID,
		StoreTable:         cfg.Store.Table,
		SchemaCacheTTL:     cfg.Store.CacheTTL,
		ClassifierMode:     cfg.Classifier.Mode,
		ClassifierProvider: cfg.Classifier.Provider,
		RulesFile:          cfg.Classifier.RulesFile,
		TelegramToken:      cfg.Relay.Token,
		GatewayURL:         cfg.Relay.GatewayURL,
		TargetThreadID:     cfg.Relay.TargetThreadID,
		ReconnectDelay:     cfg.Relay.ReconnectDelay,
		RelayMetricsAddr:   cfg.Relay.MetricsAddr,
		AuditDBPath:        cfg.Audit.DBPath,
	}
	if err := envconfig.Process("", &ov); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	cfg.General.LogLevel = ov.LogLevel
	cfg.General.LogFile = ov.LogFile
	cfg.Gateway.Host = ov.Host
	cfg.Gateway.Port = ov.Port
	cfg.Store.APIKey = ov.StoreAPIKey
	cfg.Store.BaseID = ov.StoreBaseID
	cfg.Store.Table = ov.StoreTable
	cfg.Store.CacheTTL = ov.SchemaCacheTTL
	cfg.Classifier.Mode = ov.ClassifierMode
	cfg.Classifier.Provider = ov.ClassifierProvider
	cfg.Classifier.RulesFile = ov.RulesFile
	cfg.Relay.Token = ov.TelegramToken
	cfg.Relay.GatewayURL = ov.GatewayURL
	cfg.Relay.TargetThreadID = ov.TargetThreadID
	cfg.Relay.ReconnectDelay = ov.ReconnectDelay
	cfg.Relay.MetricsAddr = ov.RelayMetricsAddr
	cfg.Audit.DBPath = ov.AuditDBPath

	if ov.GeminiKey != "" {
		setProviderKey(cfg, "gemini", ov.GeminiKey)
	}
	if ov.OpenAIKey != "" {
		setProviderKey(cfg, "openai", ov.OpenAIKey)
	}
	return nil
}

func setProviderKey(cfg *Config, name, key string) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	pc := cfg.Providers[name]
	pc.APIKey = key
	pc.Enabled = true
	cfg.Providers[name] = pc
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create config directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Gateway.Path, "/") {
		errs = append(errs, "gateway.path must start with /")
	}
	if cfg.Gateway.ReadLimit < 0 {
		errs = append(errs, "gateway.readLimit must be >= 0")
	}

	if cfg.Store.Timeout < 0 {
		errs = append(errs, "store.timeout must be >= 0")
	}
	if cfg.Store.CacheTTL < 0 {
		errs = append(errs, "store.schemaCacheTTL must be >= 0")
	}

	switch cfg.Classifier.Mode {
	case "rules":
	case "model":
		pc, ok := cfg.Providers[cfg.Classifier.Provider]
		if !ok {
			errs = append(errs, fmt.Sprintf("classifier.provider references unknown provider: %s", cfg.Classifier.Provider))
		} else if !pc.Enabled {
			errs = append(errs, fmt.Sprintf("classifier.provider %s is disabled", cfg.Classifier.Provider))
		}
	default:
		errs = append(errs, "classifier.mode must be one of: rules, model")
	}

	if cfg.Relay.ReconnectDelay < 0 {
		errs = append(errs, "relay.reconnectDelay must be >= 0")
	}
	if cfg.Relay.PollTimeout < 0 {
		errs = append(errs, "relay.pollTimeoutSeconds must be >= 0")
	}

	if cfg.Audit.Enabled && cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.dbPath is required when audit is enabled")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RequireStore reports missing store credentials. Only the gateway and the
// schema command need them, so Validate does not.
func (c *Config) RequireStore() error {
	var missing []string
	if c.Store.APIKey == "" {
		missing = append(missing, "AIRTABLE_API_KEY")
	}
	if c.Store.BaseID == "" {
		missing = append(missing, "AIRTABLE_BASE_ID")
	}
	if c.Store.Table == "" {
		missing = append(missing, "AIRTABLE_TABLE_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing store configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireRelay reports missing relay settings.
func (c *Config) RequireRelay() error {
	if c.Relay.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is missing")
	}
	if c.Relay.GatewayURL == "" {
		return errors.New("relay.gatewayUrl is missing")
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
