package models

import "time"

// Store backends for field layouts.
const (
	StoreBackendFile  = "file"
	StoreBackendRedis = "redis"
)

// APIConfig holds the CRM API connection settings.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Token   string        `yaml:"token" mapstructure:"token"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SearchConfig tunes the reference typeahead.
type SearchConfig struct {
	Limit    int `yaml:"limit" mapstructure:"limit"`
	MinChars int `yaml:"min_chars" mapstructure:"min_chars"`
}

// StoreConfig selects where panel layouts are persisted.
type StoreConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"`
	RedisURL string `yaml:"redis_url,omitempty" mapstructure:"redis_url"`
}

// LogConfig configures the diagnostic logger.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	Mode  string `yaml:"mode" mapstructure:"mode"`
}

// GlobalConfig holds the settings read from .staffdesk.yaml via Viper.
type GlobalConfig struct {
	API    APIConfig    `yaml:"api" mapstructure:"api"`
	Search SearchConfig `yaml:"search" mapstructure:"search"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`

	// NoteActions maps an entity type to the action options offered when
	// adding a note to a record of that type.
	NoteActions map[EntityType][]string `yaml:"note_actions,omitempty" mapstructure:"note_actions"`
}

// DefaultNoteActions are offered when the configuration does not override them.
var DefaultNoteActions = map[EntityType][]string{
	EntityJob:           {"Follow-up", "Client Update", "Interview Scheduled", "Submission", "General"},
	EntityHiringManager: {"Follow-up", "Client Visit", "Interview Feedback", "Call", "General"},
	EntityTask:          {"Follow-up", "Status Update", "General"},
	EntityJobSeeker:     {"Follow-up", "Screening Call", "Interview Scheduled", "General"},
}
