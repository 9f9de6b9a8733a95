package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			cfg = &Config{}
		} else {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Audio:    AudioConfig{Backend: AudioBackendMiniaudio},
		WakeWord: WakeWordConfig{Enabled: true},
		Logging:  LoggingConfig{Level: LogInfo},
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Logging.Level != "" && !cfg.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}

	if cfg.Audio.Backend != "" && !cfg.Audio.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: miniaudio, portaudio", cfg.Audio.Backend))
	}
	if cfg.Audio.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("audio.buffer_size %d must not be negative", cfg.Audio.BufferSize))
	}

	for i, phrase := range cfg.WakeWord.Phrases {
		if strings.TrimSpace(phrase) == "" {
			errs = append(errs, fmt.Errorf("wake_word.phrases[%d] is empty", i))
		}
	}

	if cfg.History.BackendURL != "" &&
		!strings.HasPrefix(cfg.History.BackendURL, "http://") &&
		!strings.HasPrefix(cfg.History.BackendURL, "https://") {
		errs = append(errs, fmt.Errorf("history.backend_url %q must start with http:// or https://", cfg.History.BackendURL))
	}

	return errors.Join(errs...)
}
