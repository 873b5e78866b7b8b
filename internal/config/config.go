// Package config manages persistent user preferences for the media engine.
// Settings are stored as JSON at os.UserConfigDir()/deskmedia/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Config holds all persistent user preferences for the voice/screen engines.
type Config struct {
	DeviceID         string  `json:"device_id"`
	InputDeviceName  string  `json:"input_device_name"`
	OutputDeviceName string  `json:"output_device_name"`
	MasterVolume     float32 `json:"master_volume"`
	MicGain          float32 `json:"mic_gain"`
	Muted            bool    `json:"muted"`
	Deafened         bool    `json:"deafened"`
}

// Default returns a Config populated with sensible defaults and a freshly
// stamped device id, so every install reports a stable identifier across
// restarts without the user ever seeing or choosing it.
func Default() Config {
	return Config{
		DeviceID:     uuid.NewString(),
		MasterVolume: 1.0,
		MicGain:      1.0,
	}
}

// Path returns the absolute path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "deskmedia", "config.json"), nil
}

// Load reads the config file and returns it. If the file is missing or
// unreadable, the default config is returned — never an error.
func Load() Config {
	path, err := Path()
	if err != nil {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default()
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
	}
	return cfg
}

// Save writes cfg to disk, creating the directory if needed.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
