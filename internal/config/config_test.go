package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MIDI.Tempo != 100 || cfg.Match.Threshold != 0.70 {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
dpi = 300
merge_threshold = 0.4

[staff]
width_slack = 150

[match]
threshold = 0.8
workers = 2

[templates]
dir = "/opt/templates"

[midi]
tempo = 120

[model]
fixed = "Eighth-Note"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DPI != 300 || cfg.MergeThreshold != 0.4 {
		t.Errorf("top-level values not loaded: %+v", cfg)
	}
	if cfg.Staff.WidthSlack != 150 {
		t.Errorf("staff.width_slack: got %v", cfg.Staff.WidthSlack)
	}
	if cfg.Staff.BlockSize != 15 {
		t.Errorf("unset staff.block_size should keep its default, got %d", cfg.Staff.BlockSize)
	}
	if cfg.Match.Threshold != 0.8 || cfg.Match.Workers != 2 || cfg.Match.ScaleStep != 0.03 {
		t.Errorf("match section: %+v", cfg.Match)
	}
	if cfg.Templates.Dir != "/opt/templates" || cfg.Templates.Notes != "note" {
		t.Errorf("templates section: %+v", cfg.Templates)
	}
	if cfg.MIDI.Tempo != 120 || cfg.MIDI.Velocity != 100 {
		t.Errorf("midi section: %+v", cfg.MIDI)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, "tempo = 90\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "tempo") {
		t.Errorf("expected unknown key error naming tempo, got %v", err)
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := writeConfig(t, "[staff\nblock_size = ")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SHEET_MIDI_TEMPLATES": "/tmp/t",
		"SHEET_MIDI_THRESHOLD": "0.65",
		"SHEET_MIDI_TEMPO":     "90",
		"SHEET_MIDI_LOG_LEVEL": "DEBUG",
		"SHEET_MIDI_OCR":       "true",
		"SHEET_MIDI_DURATION":  "Quarter-Note",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.Templates.Dir != "/tmp/t" {
		t.Errorf("templates dir: got %q", cfg.Templates.Dir)
	}
	if cfg.Match.Threshold != 0.65 {
		t.Errorf("threshold: got %v", cfg.Match.Threshold)
	}
	if cfg.MIDI.Tempo != 90 {
		t.Errorf("tempo: got %v", cfg.MIDI.Tempo)
	}
	if !cfg.Debug() {
		t.Error("LOG_LEVEL=DEBUG should enable debug")
	}
	if !cfg.OCR.Enabled {
		t.Error("OCR should be enabled")
	}
	if cfg.Model.Fixed != "Quarter-Note" {
		t.Errorf("fixed duration: got %q", cfg.Model.Fixed)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config should validate: %v", err)
	}
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{"SHEET_MIDI_DPI": "high"}))
	if err == nil || !strings.Contains(err.Error(), "SHEET_MIDI_DPI") {
		t.Errorf("expected error naming the variable, got %v", err)
	}
}

func TestApplyEnv_Untouched(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(envMap(nil)); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.Templates != Default().Templates || cfg.MIDI != Default().MIDI {
		t.Error("empty environment should change nothing")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"even block size", func(c *Config) { c.Staff.BlockSize = 14 }, "block_size"},
		{"zero threshold", func(c *Config) { c.Match.Threshold = 0 }, "match.threshold"},
		{"threshold above one", func(c *Config) { c.Templates.FlatThreshold = 1.2 }, "flat_threshold"},
		{"zero step", func(c *Config) { c.Match.ScaleStep = 0 }, "scale_step"},
		{"empty sweep", func(c *Config) { c.Match.ScaleMax = 0.2 }, "scale range"},
		{"merge threshold one", func(c *Config) { c.MergeThreshold = 1 }, "merge_threshold"},
		{"no template dir", func(c *Config) { c.Templates.Dir = "" }, "templates.dir"},
		{"bad fixed label", func(c *Config) { c.Model.Fixed = "Half-Note" }, "model.fixed"},
		{"model without labels", func(c *Config) { c.Model.Path = "m.onnx" }, "model.labels"},
		{"bad tempo", func(c *Config) { c.MIDI.Tempo = -5 }, "tempo"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"negative dpi", func(c *Config) { c.DPI = -1 }, "dpi"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q should mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Match.Threshold = 0
	cfg.Templates.Dir = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "match.threshold") || !strings.Contains(err.Error(), "templates.dir") {
		t.Errorf("expected both problems reported, got %v", err)
	}
}

func TestStaffParams_DPI(t *testing.T) {
	cfg := Default()
	cfg.DPI = 300
	if p := cfg.StaffParams(); p.WidthSlack != 200 {
		t.Errorf("width slack at 300 DPI: got %v", p.WidthSlack)
	}
	cfg.DPI = 0
	if p := cfg.StaffParams(); p.WidthSlack != 100 {
		t.Errorf("width slack without DPI: got %v", p.WidthSlack)
	}
}

func TestMatchParams_Threshold(t *testing.T) {
	cfg := Default()
	p := cfg.MatchParams(0.9)
	if p.Threshold != 0.9 || cfg.Match.Threshold != 0.70 {
		t.Errorf("MatchParams should copy: got %v, config %v", p.Threshold, cfg.Match.Threshold)
	}
}
