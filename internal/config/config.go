// Package config holds the tunable parameters of a conversion.
//
// Values are layered: built-in defaults, then a TOML file, then SHEET_MIDI_*
// environment variables, then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ironsheep/sheet-music-mcp/internal/classify"
	"github.com/ironsheep/sheet-music-mcp/internal/detection"
	"github.com/ironsheep/sheet-music-mcp/internal/midi"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SHEET_MIDI_"

// Templates locates the glyph template sets.
type Templates struct {
	// Dir holds one subdirectory per set.
	Dir string `toml:"dir"`

	Notes  string `toml:"notes"`
	Sharps string `toml:"sharps"`
	Flats  string `toml:"flats"`

	// SharpThreshold and FlatThreshold replace Match.Threshold for the
	// accidental sets.
	SharpThreshold float32 `toml:"sharp_threshold"`
	FlatThreshold  float32 `toml:"flat_threshold"`
}

// Path returns the directory of a named set.
func (t Templates) Path(set string) string {
	return filepath.Join(t.Dir, set)
}

// Model locates the duration classifier.
type Model struct {
	Path   string `toml:"path"`
	Labels string `toml:"labels"`

	// Fixed, when set to a class label, skips the model and gives every
	// note that duration.
	Fixed string `toml:"fixed"`
}

// OCR controls title recognition.
type OCR struct {
	Enabled  bool   `toml:"enabled"`
	Language string `toml:"language"`
}

// Config is the complete conversion configuration.
type Config struct {
	// DPI of the input scans. Zero keeps the staff slack values as given.
	DPI float64 `toml:"dpi"`

	Staff detection.StaffParams `toml:"staff"`
	Lines detection.LineParams  `toml:"lines"`
	Match detection.MatchParams `toml:"match"`

	// MergeThreshold is the overlap ratio above which detections fuse.
	MergeThreshold float64 `toml:"merge_threshold"`

	Templates Templates    `toml:"templates"`
	Model     Model        `toml:"model"`
	MIDI      midi.Options `toml:"midi"`
	OCR       OCR          `toml:"ocr"`

	// HistoryPath is the SQLite database recording conversions. Empty
	// disables history.
	HistoryPath string `toml:"history_path"`

	// OutputDir receives .mid files. Empty writes next to the input.
	OutputDir string `toml:"output_dir"`

	// LogLevel is "info" or "debug".
	LogLevel string `toml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Staff:          detection.DefaultStaffParams(),
		Lines:          detection.DefaultLineParams(),
		Match:          detection.DefaultMatchParams(0.70),
		MergeThreshold: 0.5,
		Templates: Templates{
			Dir:            "resources/templates",
			Notes:          "note",
			Sharps:         "sharp",
			Flats:          "flat",
			SharpThreshold: 0.70,
			FlatThreshold:  0.77,
		},
		MIDI:     midi.DefaultOptions(),
		OCR:      OCR{Language: "eng"},
		LogLevel: "info",
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "sheet-midi", "config.toml")
}

// Load reads a TOML file over the defaults. An empty path returns the
// defaults. Keys the file sets that Config does not know are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// LoadDefault loads DefaultPath if it exists and the defaults otherwise.
func LoadDefault() (Config, error) {
	path := DefaultPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// ApplyEnv overrides fields from SHEET_MIDI_* variables found by lookup.
// Pass os.LookupEnv for the process environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	float := func(name string, bits int, set func(float64)) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), bits)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		set(f)
		return nil
	}

	str("TEMPLATES", &c.Templates.Dir)
	str("MODEL", &c.Model.Path)
	str("LABELS", &c.Model.Labels)
	str("DURATION", &c.Model.Fixed)
	str("HISTORY", &c.HistoryPath)
	str("OUTPUT_DIR", &c.OutputDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("OCR_LANG", &c.OCR.Language)

	if v, ok := lookup(EnvPrefix + "OCR"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sOCR: %w", EnvPrefix, err)
		}
		c.OCR.Enabled = b
	}

	if err := float("THRESHOLD", 32, func(f float64) { c.Match.Threshold = float32(f) }); err != nil {
		return err
	}
	if err := float("DPI", 64, func(f float64) { c.DPI = f }); err != nil {
		return err
	}
	if err := float("TEMPO", 64, func(f float64) { c.MIDI.Tempo = f }); err != nil {
		return err
	}
	return float("MERGE_THRESHOLD", 64, func(f float64) { c.MergeThreshold = f })
}

// Debug reports whether debug logging is requested.
func (c Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// StaffParams returns the segmentation parameters rescaled for DPI.
func (c Config) StaffParams() detection.StaffParams {
	return c.Staff.WithDPI(c.DPI)
}

// MatchParams returns the sweep parameters with the given threshold.
func (c Config) MatchParams(threshold float32) detection.MatchParams {
	p := c.Match
	p.Threshold = threshold
	return p
}

// Validate checks ranges and cross-field consistency.
func (c Config) Validate() error {
	var errs []error

	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.DPI >= 0, "dpi must not be negative, got %v", c.DPI)

	check(c.Staff.BlockSize >= 3 && c.Staff.BlockSize%2 == 1,
		"staff.block_size must be odd and at least 3, got %d", c.Staff.BlockSize)
	check(c.Staff.KernelWidth > 0 && c.Staff.KernelHeight > 0,
		"staff kernel must be positive, got %dx%d", c.Staff.KernelWidth, c.Staff.KernelHeight)
	check(c.Staff.Iterations >= 0, "staff.iterations must not be negative, got %d", c.Staff.Iterations)
	check(c.Lines.KernelDivisor > 0, "lines.kernel_divisor must be positive, got %d", c.Lines.KernelDivisor)

	thresholds := []struct {
		name  string
		value float32
	}{
		{"match.threshold", c.Match.Threshold},
		{"templates.sharp_threshold", c.Templates.SharpThreshold},
		{"templates.flat_threshold", c.Templates.FlatThreshold},
	}
	for _, th := range thresholds {
		check(th.value > 0 && th.value <= 1, "%s must be in (0, 1], got %v", th.name, th.value)
	}
	check(c.Match.ScaleStep > 0, "match.scale_step must be positive, got %v", c.Match.ScaleStep)
	check(len(c.Match.Scales()) > 0, "match scale range %.2f..%.2f is empty", c.Match.ScaleMin, c.Match.ScaleMax)
	check(c.Match.Workers >= 0, "match.workers must not be negative, got %d", c.Match.Workers)
	check(c.MergeThreshold >= 0 && c.MergeThreshold < 1,
		"merge_threshold must be in [0, 1), got %v", c.MergeThreshold)

	check(c.Templates.Dir != "", "templates.dir is required")
	check(c.Templates.Notes != "", "templates.notes is required")

	if c.Model.Fixed != "" {
		_, err := classify.ParseLabel(c.Model.Fixed)
		check(err == nil, "model.fixed: %v", err)
	}
	check(c.Model.Path == "" || c.Model.Labels != "", "model.labels is required with model.path")

	if err := c.MIDI.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("midi: %w", err))
	}

	level := strings.ToLower(c.LogLevel)
	check(level == "" || level == "info" || level == "debug", "log_level must be info or debug, got %q", c.LogLevel)

	return errors.Join(errs...)
}
