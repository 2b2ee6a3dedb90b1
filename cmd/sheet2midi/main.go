// Command sheet2midi converts scanned sheet music pages into MIDI files.
//
// Usage:
//
//	sheet2midi [options] page.png [page2.png ...]
//
// Settings come from the config file, then SHEET_MIDI_* variables, then
// flags. Each page is written next to its input as <name>.mid unless -o or
// output_dir says otherwise.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"

	"github.com/ironsheep/sheet-music-mcp/internal/classify"
	"github.com/ironsheep/sheet-music-mcp/internal/config"
	"github.com/ironsheep/sheet-music-mcp/internal/imaging"
	"github.com/ironsheep/sheet-music-mcp/internal/midi"
	"github.com/ironsheep/sheet-music-mcp/internal/pipeline"
	"github.com/ironsheep/sheet-music-mcp/internal/store"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
)

// options are the command line flags. Empty or zero values mean "not set"
// except where flag.Visit says otherwise.
type options struct {
	configPath string
	templates  string
	model      string
	labels     string
	duration   string
	threshold  float64
	tempo      float64
	dpi        float64
	output     string
	overlay    string
	history    string
	ocr        bool
	jsonOut    bool
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	o := &options{}
	fs := flag.NewFlagSet("sheet2midi", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Config file (default: user config dir)")
	fs.StringVar(&o.templates, "templates", "", "Template root directory")
	fs.StringVar(&o.model, "model", "", "Duration classifier model (ONNX/TF)")
	fs.StringVar(&o.labels, "labels", "", "Class label file for -model")
	fs.StringVar(&o.duration, "duration", "", "Assign one duration to every note: "+strings.Join(classify.Labels(), ", "))
	fs.Float64Var(&o.threshold, "threshold", 0, "Note head match threshold (0-1]")
	fs.Float64Var(&o.tempo, "tempo", 0, "Tempo in BPM")
	fs.Float64Var(&o.dpi, "dpi", 0, "Scan resolution used to rescale segmentation slack")
	fs.StringVar(&o.output, "o", "", "MIDI output path (single input only)")
	fs.StringVar(&o.overlay, "overlay", "", "Save a debug overlay PNG to this path (single input only)")
	fs.StringVar(&o.history, "history", "", "SQLite file to record conversions in")
	fs.BoolVar(&o.ocr, "ocr", false, "Recognize the title with Tesseract and name the track")
	fs.BoolVar(&o.jsonOut, "json", false, "Print the conversion result as JSON")
	fs.BoolVar(&o.verbose, "v", false, "Verbose output")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sheet2midi [options] page.png [page2.png ...]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return o, fs, nil
}

// buildConfig layers defaults, the config file, the environment and the
// flags that were explicitly set.
func buildConfig(o *options, fs *flag.FlagSet, lookup func(string) (string, bool)) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "templates":
			cfg.Templates.Dir = o.templates
		case "model":
			cfg.Model.Path = o.model
		case "labels":
			cfg.Model.Labels = o.labels
		case "duration":
			cfg.Model.Fixed = o.duration
		case "threshold":
			cfg.Match.Threshold = float32(o.threshold)
		case "tempo":
			cfg.MIDI.Tempo = o.tempo
		case "dpi":
			cfg.DPI = o.dpi
		case "history":
			cfg.HistoryPath = o.history
		case "ocr":
			cfg.OCR.Enabled = o.ocr
		case "v":
			if o.verbose {
				cfg.LogLevel = "debug"
			}
		}
	})
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, fs, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	inputs := fs.Args()
	if len(inputs) == 0 {
		fs.Usage()
		return 2
	}
	if len(inputs) > 1 && (o.output != "" || o.overlay != "") {
		red.Fprintln(stderr, "-o and -overlay take a single input")
		return 2
	}

	cfg, err := buildConfig(o, fs, os.LookupEnv)
	if err != nil {
		red.Fprintf(stderr, "Config error: %v\n", err)
		return 1
	}

	logger := log.New(stderr, "", log.Ldate|log.Ltime|log.Lshortfile)

	templates, err := pipeline.LoadTemplates(imaging.NewImageCache(), cfg.Templates)
	if err != nil {
		red.Fprintf(stderr, "Error loading templates: %v\n", err)
		return 1
	}
	defer templates.Close()

	classifier, closeClassifier, err := pipeline.NewClassifier(cfg.Model)
	if err != nil {
		red.Fprintf(stderr, "Error loading classifier: %v\n", err)
		return 1
	}
	defer closeClassifier()

	convOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	if classifier != nil {
		convOpts = append(convOpts, pipeline.WithClassifier(classifier))
	} else {
		yellow.Fprintln(stderr, "Warning: no classifier configured, every note gets the default duration")
	}
	if cfg.OCR.Enabled {
		convOpts = append(convOpts, pipeline.WithTitle(pipeline.OCRTitle(cfg.OCR.Language)))
	}
	conv, err := pipeline.New(cfg, templates, convOpts...)
	if err != nil {
		red.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var history *store.History
	if cfg.HistoryPath != "" {
		history, err = store.Open(cfg.HistoryPath)
		if err != nil {
			red.Fprintf(stderr, "Error opening history: %v\n", err)
			return 1
		}
		defer history.Close()
	}

	code := 0
	for _, input := range inputs {
		output := o.output
		if output == "" {
			output = pipeline.OutputPath(input, cfg.OutputDir)
		}
		if err := convertPage(ctx, conv, cfg, history, input, output, o, stdout, stderr); err != nil {
			red.Fprintf(stderr, "%s: %v\n", input, err)
			code = 1
			if ctx.Err() != nil {
				break
			}
		}
	}
	return code
}

func convertPage(ctx context.Context, conv *pipeline.Converter, cfg config.Config, history *store.History,
	input, output string, o *options, stdout, stderr io.Writer) error {

	if o.verbose {
		fmt.Fprintf(stdout, "Converting: %s\n", input)
	}
	result, err := conv.ConvertFile(ctx, input)
	if err != nil {
		if history != nil {
			_, _ = history.Record(store.Run{Input: input, Error: err.Error()})
		}
		return err
	}

	for _, p := range result.Problems {
		yellow.Fprintf(stderr, "Warning: %s: %v\n", input, p)
	}
	if dropped := result.Dropped(); dropped > 0 {
		yellow.Fprintf(stderr, "Warning: %s: %d symbols outside the pitch table were dropped\n", input, dropped)
	}

	opts := cfg.MIDI
	opts.TrackName = result.Title
	if err := midi.WriteFile(output, result.Notes, opts); err != nil {
		return err
	}

	if o.overlay != "" {
		page, err := imaging.LoadFile(input)
		if err != nil {
			return err
		}
		if err := imaging.SaveOverlay(o.overlay, page, result.Layers()); err != nil {
			return err
		}
	}

	if history != nil {
		if _, err := history.Record(result.Run(output)); err != nil {
			yellow.Fprintf(stderr, "Warning: failed to record history: %v\n", err)
		}
	}

	if o.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	}

	green.Fprintf(stdout, "%s -> %s: %d notes on %d staffs", input, output, len(result.Notes), len(result.Staffs))
	if result.Title != "" {
		fmt.Fprintf(stdout, " (%q)", result.Title)
	}
	fmt.Fprintln(stdout)
	return nil
}
