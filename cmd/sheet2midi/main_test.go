package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/sheet-music-mcp/internal/store"
)

func newWhitePage(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func drawDisk(img *image.Gray, cx, cy, radius int) {
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= radius*radius {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
}

func writePNG(t *testing.T, path string, img image.Image) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// setupWorkspace writes templates, a config file and one score page, and
// returns the config path and the page path.
func setupWorkspace(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	tmpl := newWhitePage(40, 40)
	drawDisk(tmpl, 20, 20, 16)
	writePNG(t, filepath.Join(dir, "templates", "note", "quarter.png"), tmpl)

	page := newWhitePage(700, 300)
	for y := 100; y <= 180; y += 20 {
		for x := 50; x < 650; x++ {
			page.SetGray(x, y, color.Gray{Y: 0})
		}
	}
	drawDisk(page, 150, 140, 8)
	drawDisk(page, 250, 130, 8)
	pagePath := writePNG(t, filepath.Join(dir, "score.png"), page)

	cfg := `[templates]
dir = "` + filepath.ToSlash(filepath.Join(dir, "templates")) + `"

[staff]
iterations = 20

[match]
threshold = 0.8
`
	cfgPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return cfgPath, pagePath
}

func TestRun(t *testing.T) {
	cfgPath, pagePath := setupWorkspace(t)
	dir := filepath.Dir(pagePath)
	historyPath := filepath.Join(dir, "history.db")
	overlayPath := filepath.Join(dir, "overlay.png")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-config", cfgPath,
		"-duration", "Eighth-Note",
		"-history", historyPath,
		"-overlay", overlayPath,
		pagePath,
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}

	midPath := filepath.Join(dir, "score.mid")
	data, err := os.ReadFile(midPath)
	if err != nil || !bytes.HasPrefix(data, []byte("MThd")) {
		t.Fatalf("expected a MIDI file at %s: %v", midPath, err)
	}
	if _, err := os.Stat(overlayPath); err != nil {
		t.Errorf("overlay not written: %v", err)
	}
	if !strings.Contains(stdout.String(), "2 notes on 1 staffs") {
		t.Errorf("stdout: %q", stdout.String())
	}

	history, err := store.Open(historyPath)
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	defer history.Close()
	runs, err := history.Recent(0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Output != midPath || runs[0].Notes != 2 {
		t.Errorf("history: %+v", runs)
	}
}

func TestRun_ExitCodes(t *testing.T) {
	cfgPath, pagePath := setupWorkspace(t)
	dir := filepath.Dir(pagePath)
	blank := writePNG(t, filepath.Join(dir, "blank.png"), newWhitePage(200, 200))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no inputs", []string{"-config", cfgPath}, 2},
		{"unknown flag", []string{"-bogus"}, 2},
		{"help", []string{"-h"}, 0},
		{"output with two inputs", []string{"-config", cfgPath, "-o", "x.mid", pagePath, pagePath}, 2},
		{"empty page", []string{"-config", cfgPath, blank}, 1},
		{"missing file", []string{"-config", cfgPath, filepath.Join(dir, "missing.png")}, 1},
		{"bad config value", []string{"-config", cfgPath, "-threshold", "3", pagePath}, 1},
		{"unknown duration", []string{"-config", cfgPath, "-duration", "Whole-Note", pagePath}, 1},
		{"missing templates", []string{"-config", cfgPath, "-templates", filepath.Join(dir, "none"), pagePath}, 1},
		{"explicit output", []string{"-config", cfgPath, "-o", filepath.Join(dir, "out.mid"), pagePath}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := run(context.Background(), tc.args, &stdout, &stderr); got != tc.want {
				t.Errorf("exit code: got %d, want %d (stderr: %s)", got, tc.want, stderr.String())
			}
		})
	}
}

func TestBuildConfig_Precedence(t *testing.T) {
	cfgPath, _ := setupWorkspace(t)

	o, fs, err := parseFlags([]string{"-config", cfgPath, "-tempo", "90", "-v"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	env := map[string]string{
		"SHEET_MIDI_TEMPO": "120",
		"SHEET_MIDI_DPI":   "300",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := buildConfig(o, fs, lookup)
	if err != nil {
		t.Fatalf("buildConfig failed: %v", err)
	}
	if cfg.MIDI.Tempo != 90 {
		t.Errorf("flag should override env: tempo %v", cfg.MIDI.Tempo)
	}
	if cfg.DPI != 300 {
		t.Errorf("env should override file: dpi %v", cfg.DPI)
	}
	if cfg.Staff.Iterations != 20 {
		t.Errorf("file should override defaults: iterations %d", cfg.Staff.Iterations)
	}
	if !cfg.Debug() {
		t.Error("-v should enable debug logging")
	}
}
