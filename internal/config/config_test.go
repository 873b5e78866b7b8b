package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"deskmedia/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.MasterVolume != 1.0 {
		t.Errorf("expected master volume 1.0, got %v", cfg.MasterVolume)
	}
	if cfg.MicGain != 1.0 {
		t.Errorf("expected mic gain 1.0, got %v", cfg.MicGain)
	}
	if cfg.Muted || cfg.Deafened {
		t.Error("expected muted/deafened false by default")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg := config.Config{
		InputDeviceName:  "USB Mic",
		OutputDeviceName: "Speakers",
		MasterVolume:     0.75,
		MicGain:          1.5,
		Muted:            true,
		Deafened:         false,
	}

	if err := config.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := config.Load()
	if loaded.InputDeviceName != cfg.InputDeviceName {
		t.Errorf("input device: want %q got %q", cfg.InputDeviceName, loaded.InputDeviceName)
	}
	if loaded.OutputDeviceName != cfg.OutputDeviceName {
		t.Errorf("output device: want %q got %q", cfg.OutputDeviceName, loaded.OutputDeviceName)
	}
	if loaded.MasterVolume != cfg.MasterVolume {
		t.Errorf("master volume: want %v got %v", cfg.MasterVolume, loaded.MasterVolume)
	}
	if loaded.MicGain != cfg.MicGain {
		t.Errorf("mic gain: want %v got %v", cfg.MicGain, loaded.MicGain)
	}
	if loaded.Muted != cfg.Muted {
		t.Errorf("muted: want %v got %v", cfg.Muted, loaded.Muted)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := config.Load()
	if cfg.MasterVolume != 1.0 {
		t.Error("expected default master volume from defaults")
	}
}

func TestDefaultStampsUniqueDeviceID(t *testing.T) {
	a := config.Default()
	b := config.Default()
	if a.DeviceID == "" || b.DeviceID == "" {
		t.Fatal("expected a non-empty device id")
	}
	if a.DeviceID == b.DeviceID {
		t.Fatal("expected distinct device ids across calls")
	}
}

func TestLoadBackfillsMissingDeviceID(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := filepath.Join(dir, "deskmedia", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	// Simulate a config file saved before device_id existed.
	if err := os.WriteFile(path, []byte(`{"master_volume":1,"mic_gain":1}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Load()
	if cfg.DeviceID == "" {
		t.Error("expected Load to backfill a device id for a pre-existing config file")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := filepath.Join(dir, "deskmedia", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not json {{{"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Load()
	if cfg.MasterVolume != 1.0 {
		t.Errorf("expected default master volume on corrupt file, got %v", cfg.MasterVolume)
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if err := config.Save(config.Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, "deskmedia", "config.json")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}
