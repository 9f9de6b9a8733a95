// Package config provides the configuration schema and loader for the
// blurry voice assistant.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// AudioBackend selects which device library drives capture and playback.
type AudioBackend string

const (
	AudioBackendMiniaudio AudioBackend = "miniaudio"
	AudioBackendPortaudio AudioBackend = "portaudio"
)

// IsValid reports whether b is a recognised audio backend.
func (b AudioBackend) IsValid() bool {
	return b == AudioBackendMiniaudio || b == AudioBackendPortaudio
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Audio    AudioConfig    `yaml:"audio"`
	WakeWord WakeWordConfig `yaml:"wake_word"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SessionConfig holds live service settings. Empty fields fall back to the
// session defaults; the API key additionally falls back to the
// GEMINI_API_KEY environment variable.
type SessionConfig struct {
	APIKey            string `yaml:"api_key"`
	Endpoint          string `yaml:"endpoint"`
	Model             string `yaml:"model"`
	VoiceName         string `yaml:"voice_name"`
	SystemInstruction string `yaml:"system_instruction"`
}

// AudioConfig selects and tunes the audio device backend.
type AudioConfig struct {
	// Backend picks the device library. Defaults to miniaudio.
	Backend AudioBackend `yaml:"backend"`

	// BufferSize is the portaudio frame buffer size in samples. Ignored by
	// the miniaudio backend.
	BufferSize int `yaml:"buffer_size"`
}

// WakeWordConfig controls idle listening.
type WakeWordConfig struct {
	Enabled bool `yaml:"enabled"`

	// Phrases overrides the default wake phrase list. Matched as substrings
	// of lowercased transcripts.
	Phrases []string `yaml:"phrases"`
}

// HistoryConfig controls conversation persistence.
type HistoryConfig struct {
	// BackendURL points at a history service. When empty, conversations are
	// only kept in the local file.
	BackendURL string `yaml:"backend_url"`

	// LocalPath overrides the local fallback file location.
	LocalPath string `yaml:"local_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level LogLevel `yaml:"level"`
}
