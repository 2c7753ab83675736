// Package config provides the configuration structure for voicebox.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Default values applied to fields left empty in the configuration file.
const (
	defaultBaseDir            = "."
	defaultVoicesDir          = "voices"
	defaultRegistryFile       = "voices.json"
	defaultModelServiceURL    = "http://127.0.0.1:8000"
	defaultModelTimeout       = 300
	defaultLanguage           = "es"
	defaultSpeed              = 1.0
	defaultTranscriptionModel = "whisper-1"
	defaultServerAddr         = ":7860"
	defaultUploadLimitMB      = 50
	defaultNATSURL            = "nats://127.0.0.1:4222"
	defaultSynthesisSubject   = "voicebox.synthesize"
	defaultAudioBucket        = "VOICEBOX_AUDIO"
	envOpenAIAPIKey           = "OPENAI_API_KEY"
)

// Speed bounds accepted by the synthesis orchestrator.
const (
	MinSpeed = 0.3
	MaxSpeed = 2.0
)

var (
	// ErrInvalidTimeout indicates a negative model timeout.
	ErrInvalidTimeout = errors.New("model timeout_seconds must be non-negative")
	// ErrInvalidSpeed indicates a default speed outside the accepted range.
	ErrInvalidSpeed = errors.New("model default_speed out of range")
	// ErrInvalidUploadLimit indicates a non-positive upload limit.
	ErrInvalidUploadLimit = errors.New("server upload_limit_mb must be positive")
	// ErrVoicesDirEscapes indicates a voices directory outside the base directory.
	ErrVoicesDirEscapes = errors.New("paths voices_dir must be inside base_dir")
)

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseDir      string `toml:"base_dir"`
	VoicesDir    string `toml:"voices_dir"`
	RegistryFile string `toml:"registry_file"`
	BaseLogsDir  string `toml:"base_logs_dir"`
}

// ModelConfig describes the text-to-speech model service.
type ModelConfig struct {
	ServiceURL     string  `toml:"service_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Language       string  `toml:"language"`
	DefaultSpeed   float64 `toml:"default_speed"`
}

// TranscriptionConfig describes the OpenAI-compatible transcription endpoint.
type TranscriptionConfig struct {
	BaseURL  string `toml:"base_url"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// ServerConfig holds the HTTP adapter settings.
type ServerConfig struct {
	Addr          string `toml:"addr"`
	UploadLimitMB int    `toml:"upload_limit_mb"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	SynthesisSubject       string `toml:"synthesis_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// Config is the root configuration structure.
type Config struct {
	Paths         PathsConfig         `toml:"paths"`
	Model         ModelConfig         `toml:"model"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Server        ServerConfig        `toml:"server"`
	NATS          NATSConfig          `toml:"nats"`
}

// Load loads the configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile loads the configuration from an explicit TOML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return cfg, nil
}

// ApplyDefaults fills every empty field with its default value.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Paths.BaseDir, defaultBaseDir)
	setDefault(&c.Paths.VoicesDir, defaultVoicesDir)
	setDefault(&c.Paths.RegistryFile, defaultRegistryFile)
	setDefault(&c.Paths.BaseLogsDir, os.TempDir())

	setDefault(&c.Model.ServiceURL, defaultModelServiceURL)
	setDefault(&c.Model.Language, defaultLanguage)

	if c.Model.TimeoutSeconds == 0 {
		c.Model.TimeoutSeconds = defaultModelTimeout
	}

	if c.Model.DefaultSpeed == 0 {
		c.Model.DefaultSpeed = defaultSpeed
	}

	setDefault(&c.Transcription.Model, defaultTranscriptionModel)
	setDefault(&c.Transcription.Language, c.Model.Language)
	setDefault(&c.Transcription.APIKey, os.Getenv(envOpenAIAPIKey))

	setDefault(&c.Server.Addr, defaultServerAddr)

	if c.Server.UploadLimitMB == 0 {
		c.Server.UploadLimitMB = defaultUploadLimitMB
	}

	setDefault(&c.NATS.URL, defaultNATSURL)
	setDefault(&c.NATS.SynthesisSubject, defaultSynthesisSubject)
	setDefault(&c.NATS.AudioObjectStoreBucket, defaultAudioBucket)
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if c.Model.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTimeout, c.Model.TimeoutSeconds)
	}

	if !(c.Model.DefaultSpeed >= MinSpeed && c.Model.DefaultSpeed <= MaxSpeed) {
		return fmt.Errorf("%w: got %.2f, want %.1f-%.1f",
			ErrInvalidSpeed, c.Model.DefaultSpeed, MinSpeed, MaxSpeed)
	}

	if c.Server.UploadLimitMB < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidUploadLimit, c.Server.UploadLimitMB)
	}

	rel, err := filepath.Rel(c.Paths.BaseDir, c.VoicesPath())
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrVoicesDirEscapes, c.Paths.VoicesDir)
	}

	return nil
}

// VoicesPath returns the directory holding reference clips and the registry.
func (c *Config) VoicesPath() string {
	if filepath.IsAbs(c.Paths.VoicesDir) {
		return c.Paths.VoicesDir
	}

	return filepath.Join(c.Paths.BaseDir, c.Paths.VoicesDir)
}

// RegistryPath returns the location of the voice registry document.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.VoicesPath(), c.Paths.RegistryFile)
}

// ModelTimeout returns the HTTP timeout for model service calls.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutSeconds) * time.Second
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
