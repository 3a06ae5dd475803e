package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	SchemaVersion       = 1
	DefaultGraphVersion = "v25.0"
	DefaultAIModel      = "gemini-1.5-flash"
	DefaultReportWindow = "yesterday"
	DefaultReportLimit  = 3

	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"

	// EnvConfigPath overrides DefaultPath when set.
	EnvConfigPath = "ADSROCKET_CONFIG"
)

type Profile struct {
	GraphVersion string         `yaml:"graph_version"`
	AccountID    string         `yaml:"account_id"`
	TokenRef     string         `yaml:"token_ref"`
	AppSecretRef string         `yaml:"app_secret_ref,omitempty"`
	Telegram     TelegramConfig `yaml:"telegram,omitempty"`
	AI           AIConfig       `yaml:"ai,omitempty"`
}

type TelegramConfig struct {
	ChatID   string `yaml:"chat_id,omitempty"`
	TokenRef string `yaml:"token_ref,omitempty"`
	// WebhookSecret is compared against X-Telegram-Bot-Api-Secret-Token.
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
}

type AIConfig struct {
	Model     string `yaml:"model,omitempty"`
	APIKeyRef string `yaml:"api_key_ref,omitempty"`
}

type CacheConfig struct {
	Backend   string `yaml:"backend,omitempty"`
	RedisAddr string `yaml:"redis_addr,omitempty"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

type GraphConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`
}

type ReportConfig struct {
	Window string `yaml:"window,omitempty"`
	Limit  int    `yaml:"limit,omitempty"`
}

type Config struct {
	SchemaVersion  int                `yaml:"schema_version"`
	DefaultProfile string             `yaml:"default_profile,omitempty"`
	Profiles       map[string]Profile `yaml:"profiles"`
	Cache          CacheConfig        `yaml:"cache,omitempty"`
	Database       DatabaseConfig     `yaml:"database,omitempty"`
	Log            LogConfig          `yaml:"log,omitempty"`
	Graph          GraphConfig        `yaml:"graph,omitempty"`
	Report         ReportConfig       `yaml:"report,omitempty"`
}

func DefaultPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv(EnvConfigPath)); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home directory: %w", err)
	}
	return filepath.Join(home, ".adsrocket", "config.yaml"), nil
}

func New() *Config {
	return &Config{
		SchemaVersion: SchemaVersion,
		Profiles:      map[string]Profile{},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: config file does not exist at %s", os.ErrNotExist, path)
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadOrCreate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg = New()
	if err := Save(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory for %s: %w", path, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Chmod(0o600); err != nil {
		tmpFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), path); err != nil {
		return fmt.Errorf("replace config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported config schema_version=%d (expected %d)", c.SchemaVersion, SchemaVersion)
	}
	if c.Profiles == nil {
		return errors.New("config profiles map is required")
	}
	for name, profile := range c.Profiles {
		if err := validateProfile(name, profile); err != nil {
			return err
		}
	}
	if c.DefaultProfile != "" {
		if _, ok := c.Profiles[c.DefaultProfile]; !ok {
			return fmt.Errorf("default_profile %q does not exist", c.DefaultProfile)
		}
	}
	switch c.Cache.Backend {
	case "", CacheBackendMemory:
	case CacheBackendRedis:
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			return errors.New("cache.redis_addr is required when cache.backend is redis")
		}
	default:
		return fmt.Errorf("unsupported cache.backend %q", c.Cache.Backend)
	}
	if c.Graph.RequestsPerSecond < 0 || c.Graph.Burst < 0 {
		return errors.New("graph pacing values must be non-negative")
	}
	if c.Report.Limit < 0 {
		return errors.New("report.limit must be non-negative")
	}
	return nil
}

func (c *Config) ResolveProfile(name string) (string, Profile, error) {
	if c == nil {
		return "", Profile{}, errors.New("config is nil")
	}
	if name == "" {
		name = c.DefaultProfile
	}
	if name == "" {
		return "", Profile{}, errors.New("profile is required and default_profile is not configured")
	}
	profile, ok := c.Profiles[name]
	if !ok {
		return "", Profile{}, fmt.Errorf("profile %q does not exist", name)
	}
	return name, profile, nil
}

func (c *Config) UpsertProfile(name string, profile Profile) error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Profiles == nil {
		c.Profiles = map[string]Profile{}
	}
	profile = applyProfileDefaults(profile)
	if err := validateProfile(name, profile); err != nil {
		return err
	}

	c.Profiles[name] = profile
	if c.DefaultProfile == "" {
		c.DefaultProfile = name
	}
	return nil
}

// ReportWindow returns the configured daily report window, or yesterday.
func (c *Config) ReportWindow() string {
	if c == nil || strings.TrimSpace(c.Report.Window) == "" {
		return DefaultReportWindow
	}
	return strings.TrimSpace(c.Report.Window)
}

func (c *Config) ReportLimit() int {
	if c == nil || c.Report.Limit <= 0 {
		return DefaultReportLimit
	}
	return c.Report.Limit
}

func applyProfileDefaults(profile Profile) Profile {
	if profile.GraphVersion == "" {
		profile.GraphVersion = DefaultGraphVersion
	}
	profile.AccountID = NormalizeAccountID(profile.AccountID)
	if profile.AI.APIKeyRef != "" && profile.AI.Model == "" {
		profile.AI.Model = DefaultAIModel
	}
	return profile
}

// NormalizeAccountID strips the act_ prefix Graph uses for ad accounts.
func NormalizeAccountID(accountID string) string {
	return strings.TrimPrefix(strings.TrimSpace(accountID), "act_")
}

func validateProfile(name string, profile Profile) error {
	if name == "" {
		return errors.New("profile name cannot be empty")
	}
	if profile.GraphVersion == "" {
		return fmt.Errorf("profile %q graph_version is required", name)
	}
	if profile.TokenRef == "" {
		return fmt.Errorf("profile %q token_ref is required", name)
	}
	if profile.Telegram.ChatID != "" && profile.Telegram.TokenRef == "" {
		return fmt.Errorf("profile %q telegram.token_ref is required when telegram.chat_id is set", name)
	}
	return nil
}
