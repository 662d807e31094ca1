// Package core contains the business logic of staffdesk: reference search,
// note composition, field catalogs and layouts, history rendering, record
// normalization and the record page loader.
package core

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/valter-silva-au/staffdesk/pkg/models"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the configuration file looked up in the base directory.
const ConfigFileName = ".staffdesk.yaml"

// ConfigurationManager loads and validates the staffdesk configuration.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files and STAFFDESK_* environment overrides.
type viperConfigManager struct {
	// basePath is the directory where .staffdesk.yaml and .env reside.
	basePath string
}

// NewConfigurationManager creates a new ConfigurationManager that reads
// configuration files relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultGlobalConfig returns a GlobalConfig populated with sensible defaults.
func DefaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		API: models.APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Search: models.SearchConfig{
			Limit:    10,
			MinChars: 2,
		},
		Store: models.StoreConfig{
			Backend: models.StoreBackendFile,
		},
		Log: models.LogConfig{
			Level: "warn",
			Mode:  "dev",
		},
	}
}

// LoadGlobalConfig reads .staffdesk.yaml from the base path using Viper.
// A .env file in the base path or working directory is loaded first so its
// STAFFDESK_* variables take part in the override. If the config file does
// not exist, defaults plus environment overrides are returned.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	for _, envFile := range []string{filepath.Join(cm.basePath, ".env"), ".env"} {
		if _, err := os.Stat(envFile); err == nil {
			// Existing environment variables win over .env entries.
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("loading %s: %w", envFile, err)
			}
		}
	}

	v := viper.New()
	v.SetConfigName(".staffdesk")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("STAFFDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.token", cfg.API.Token)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("search.limit", cfg.Search.Limit)
	v.SetDefault("search.min_chars", cfg.Search.MinChars)
	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.redis_url", cfg.Store.RedisURL)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.mode", cfg.Log.Mode)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	cfg.API.BaseURL = v.GetString("api.base_url")
	cfg.API.Token = v.GetString("api.token")
	cfg.API.Timeout = v.GetDuration("api.timeout")
	cfg.Search.MinChars = v.GetInt("search.min_chars")
	cfg.Store.Backend = v.GetString("store.backend")
	cfg.Store.RedisURL = v.GetString("store.redis_url")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Mode = v.GetString("log.mode")

	// Use IsSet to distinguish "not set" (use default 10) from "explicitly set to 0".
	if v.IsSet("search.limit") {
		cfg.Search.Limit = v.GetInt("search.limit")
	}

	actions := v.GetStringMapStringSlice("note_actions")
	if len(actions) > 0 {
		cfg.NoteActions = make(map[models.EntityType][]string, len(actions))
		for k, list := range actions {
			t, err := models.ParseEntityType(k)
			if err != nil {
				return nil, fmt.Errorf("note_actions: %w", err)
			}
			cfg.NoteActions[t] = list
		}
	}

	return cfg, nil
}

// ValidateConfig checks the configuration for invalid values and returns a
// single error listing every problem found.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	return validateGlobalConfig(cfg)
}

// configFile is the on-disk shape written by InitConfigFile. Durations are
// written as strings so the file stays readable.
type configFile struct {
	API struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`
	Search      models.SearchConfig            `yaml:"search"`
	Store       models.StoreConfig             `yaml:"store"`
	Log         models.LogConfig               `yaml:"log"`
	NoteActions map[models.EntityType][]string `yaml:"note_actions"`
}

// InitConfigFile writes a .staffdesk.yaml holding the default settings into
// basePath. baseURL overrides the default API address when non-empty. An
// existing file is left untouched and created is false.
func InitConfigFile(basePath, baseURL string) (path string, created bool, err error) {
	path = filepath.Join(basePath, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}

	def := DefaultGlobalConfig()
	if baseURL != "" {
		def.API.BaseURL = baseURL
	}
	if err := validateGlobalConfig(def); err != nil {
		return path, false, err
	}

	var out configFile
	out.API.BaseURL = def.API.BaseURL
	out.API.Timeout = def.API.Timeout.String()
	out.Search = def.Search
	out.Store = def.Store
	out.Log = def.Log
	out.NoteActions = models.DefaultNoteActions

	data, err := yaml.Marshal(&out)
	if err != nil {
		return path, false, fmt.Errorf("encoding %s: %w", ConfigFileName, err)
	}
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return path, false, fmt.Errorf("creating %s: %w", basePath, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return path, false, fmt.Errorf("writing %s: %w", path, err)
	}
	return path, true, nil
}

// validateGlobalConfig checks a GlobalConfig for invalid field values.
func validateGlobalConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("global configuration is nil")
	}

	var errs []string

	if cfg.API.BaseURL == "" {
		errs = append(errs, "api.base_url must not be empty")
	} else if u, err := url.Parse(cfg.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api.base_url %q must be an absolute URL", cfg.API.BaseURL))
	}

	if cfg.API.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("api.timeout must be non-negative, got %s", cfg.API.Timeout))
	}

	if cfg.Search.Limit < 1 {
		errs = append(errs, fmt.Sprintf("search.limit must be at least 1, got %d", cfg.Search.Limit))
	}

	if cfg.Search.MinChars < 1 {
		errs = append(errs, fmt.Sprintf("search.min_chars must be at least 1, got %d", cfg.Search.MinChars))
	}

	switch cfg.Store.Backend {
	case models.StoreBackendFile:
	case models.StoreBackendRedis:
		if cfg.Store.RedisURL == "" {
			errs = append(errs, "store.redis_url is required when store.backend is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf(
			"store.backend %q is invalid, must be one of: file, redis",
			cfg.Store.Backend,
		))
	}

	for t, list := range cfg.NoteActions {
		if len(list) == 0 {
			errs = append(errs, fmt.Sprintf("note_actions.%s must list at least one action", t))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("global config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// NoteActions returns the action options for notes on records of type t.
func NoteActions(cfg *models.GlobalConfig, t models.EntityType) []string {
	if cfg != nil {
		if list, ok := cfg.NoteActions[t]; ok && len(list) > 0 {
			return list
		}
	}
	if list, ok := models.DefaultNoteActions[t]; ok {
		return list
	}
	return []string{"General"}
}
