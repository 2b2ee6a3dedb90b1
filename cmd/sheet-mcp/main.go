package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ironsheep/sheet-music-mcp/internal/config"
	"github.com/ironsheep/sheet-music-mcp/internal/server"
	"github.com/ironsheep/sheet-music-mcp/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run starts the server and returns the process exit code. Deferred closes
// run before main exits.
func run(args []string) int {
	// Handle --version and -v flags
	if len(args) > 0 {
		switch args[0] {
		case "--version", "-v", "version":
			fmt.Printf("sheet-music-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return 0
		case "--help", "-h", "help":
			fmt.Println("sheet-music-mcp - MCP server for converting sheet music scans to MIDI")
			fmt.Println()
			fmt.Println("Usage: sheet-music-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  SHEET_MIDI_CONFIG=path       Config file (default: user config dir)")
			fmt.Println("  SHEET_MIDI_TEMPLATES=dir     Template root directory")
			fmt.Println("  SHEET_MIDI_HISTORY=path      SQLite conversion history")
			fmt.Println("  SHEET_MIDI_LOG_LEVEL=debug   Enable debug logging")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return 0
		}
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := loadConfig()
	if err != nil {
		log.Printf("Config error: %v", err)
		return 1
	}

	if cfg.Debug() {
		log.Printf("Sheet Music MCP Server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
		log.Printf("Templates: %s", cfg.Templates.Dir)
	}

	server.Version = Version
	opts := []server.Option{server.WithLogger(log.Default())}
	if cfg.HistoryPath != "" {
		history, err := store.Open(cfg.HistoryPath)
		if err != nil {
			log.Printf("History error: %v", err)
			return 1
		}
		defer history.Close()
		opts = append(opts, server.WithHistory(history))
	}

	srv := server.New(cfg, opts...)
	defer srv.Close()
	if err := srv.Run(); err != nil {
		log.Printf("Server error: %v", err)
		return 1
	}
	return 0
}

func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if path := os.Getenv(config.EnvPrefix + "CONFIG"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
