package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main Piper configuration
type Config struct {
	// Gateway server
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Interview engine
	Interview InterviewConfig `json:"interview" mapstructure:"interview"`

	// Speech recognition
	Transcribe TranscribeConfig `json:"transcribe" mapstructure:"transcribe"`

	// Speech synthesis
	Speech SpeechConfig `json:"speech" mapstructure:"speech"`

	// Session lifecycle
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory (transcript archive, audio output)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// GatewayConfig holds websocket gateway configuration
type GatewayConfig struct {
	Port int    `json:"port" mapstructure:"port"`
	Host string `json:"host" mapstructure:"host"`
}

// InterviewConfig holds question-generation configuration
type InterviewConfig struct {
	Provider     string  `json:"provider" mapstructure:"provider"` // openai, anthropic, scripted
	APIKey       string  `json:"api_key" mapstructure:"api_key"`
	Model        string  `json:"model" mapstructure:"model"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	MaxQuestions int     `json:"max_questions" mapstructure:"max_questions"`
	MaxRetries   int     `json:"max_retries" mapstructure:"max_retries"`
}

// TranscribeConfig holds speech-recognition configuration
type TranscribeConfig struct {
	APIKey          string `json:"api_key" mapstructure:"api_key"`
	Model           string `json:"model" mapstructure:"model"`
	Language        string `json:"language" mapstructure:"language"`
	SampleRate      int    `json:"sample_rate" mapstructure:"sample_rate"`
	SilenceMs       int    `json:"silence_ms" mapstructure:"silence_ms"`
	MaxRestartTries int    `json:"max_restart_tries" mapstructure:"max_restart_tries"`
}

// SpeechConfig holds speech-synthesis configuration
type SpeechConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	Voice     string `json:"voice" mapstructure:"voice"`
	OutputDir string `json:"output_dir" mapstructure:"output_dir"`
}

// SessionConfig holds session lifecycle configuration
type SessionConfig struct {
	TTL          time.Duration `json:"ttl" mapstructure:"ttl"`
	ReapInterval time.Duration `json:"reap_interval" mapstructure:"reap_interval"`
	GracePeriod  time.Duration `json:"grace_period" mapstructure:"grace_period"`
	ArchiveDir   string        `json:"archive_dir" mapstructure:"archive_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Interview: InterviewConfig{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			Temperature:  0.3,
			MaxQuestions: 5,
			MaxRetries:   2,
		},
		Transcribe: TranscribeConfig{
			Model:           "nova-2",
			Language:        "en-US",
			SampleRate:      16000,
			SilenceMs:       2000,
			MaxRestartTries: 1,
		},
		Speech: SpeechConfig{
			Enabled: false,
			Voice:   "aura-2-thalia-en",
		},
		Session: SessionConfig{
			TTL:          5 * time.Minute,
			ReapInterval: 30 * time.Second,
			GracePeriod:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}

	switch c.Interview.Provider {
	case "openai", "anthropic":
		if c.Interview.APIKey == "" {
			return fmt.Errorf("interview provider %s requires an api_key", c.Interview.Provider)
		}
	case "scripted":
		// offline provider, no credentials
	default:
		return fmt.Errorf("invalid interview provider %s (must be: openai, anthropic, scripted)", c.Interview.Provider)
	}

	if c.Interview.MaxQuestions <= 0 {
		return fmt.Errorf("interview max_questions must be positive")
	}

	if c.Transcribe.APIKey == "" {
		return fmt.Errorf("transcribe api_key is required")
	}
	if c.Transcribe.SampleRate <= 0 {
		return fmt.Errorf("transcribe sample_rate must be positive")
	}
	if c.Transcribe.SilenceMs <= 0 {
		return fmt.Errorf("transcribe silence_ms must be positive")
	}

	if c.Speech.Enabled && c.Speech.APIKey == "" {
		return fmt.Errorf("speech api_key is required when synthesis is enabled")
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.Session.ReapInterval <= 0 {
		return fmt.Errorf("session reap_interval must be positive")
	}

	return nil
}
