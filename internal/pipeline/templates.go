package pipeline

import (
	"errors"
	"fmt"
	"os"

	"github.com/ironsheep/sheet-music-mcp/internal/config"
	"github.com/ironsheep/sheet-music-mcp/internal/detection"
	"github.com/ironsheep/sheet-music-mcp/internal/imaging"
)

// Templates are the glyph sets matched on every staff. Notes is required;
// Sharps and Flats may be nil.
type Templates struct {
	Notes  *detection.TemplateSet
	Sharps *detection.TemplateSet
	Flats  *detection.TemplateSet
}

// LoadTemplates reads the sets named in cfg. A missing accidental directory
// leaves that set nil.
func LoadTemplates(cache *imaging.ImageCache, cfg config.Templates) (*Templates, error) {
	notes, err := loadSet(cache, cfg.Notes, cfg.Path(cfg.Notes))
	if err != nil {
		return nil, err
	}
	t := &Templates{Notes: notes}

	for _, acc := range []struct {
		name string
		dst  **detection.TemplateSet
	}{
		{cfg.Sharps, &t.Sharps},
		{cfg.Flats, &t.Flats},
	} {
		if acc.name == "" {
			continue
		}
		dir := cfg.Path(acc.name)
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			continue
		}
		set, err := loadSet(cache, acc.name, dir)
		if err != nil {
			t.Close()
			return nil, err
		}
		*acc.dst = set
	}
	return t, nil
}

func loadSet(cache *imaging.ImageCache, name, dir string) (*detection.TemplateSet, error) {
	loaded, err := imaging.LoadTemplates(cache, dir)
	if err != nil {
		return nil, fmt.Errorf("template set %s: %w", name, err)
	}
	return detection.NewTemplateSet(name, loaded)
}

// Close releases every set.
func (t *Templates) Close() {
	if t == nil {
		return
	}
	t.Notes.Close()
	t.Sharps.Close()
	t.Flats.Close()
}
