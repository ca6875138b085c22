package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into dispatch, quality, selection, behavior, and utility.
// The config file and .env overlay are applied before flags so that flags win.

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// version is shown in --version and help; override at build time with -ldflags "-X main.version=...".
var version = "1.0.0-dev"

// ParseFlags parses args (normally os.Args[1:]) into cfg. On --help or
// --version it prints and exits. On error it returns non-nil (e.g. unknown
// flag, missing positional args).
func ParseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("shrinkwrap", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs) }

	var (
		configFile  string
		envFile     string
		showHelp    bool
		showVersion bool
		encoders    string
		languages   string
	)

	// Dispatch.
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Parallel worker count")
	fs.IntVar(&cfg.Workers, "w", cfg.Workers, "Same as --workers")
	fs.BoolVar(&cfg.RandomOrder, "random-order", false, "Shuffle the work list before processing")
	fs.BoolVar(&cfg.IncludeExcludedDirs, "include-excluded-dirs", false, "Descend into normally excluded directories")

	// Quality.
	fs.BoolVar(&cfg.ManualMode, "manual", false, "Skip the quality search; use the fixed manual CRF")
	fs.IntVar(&cfg.ManualCRF, "manual-crf", cfg.ManualCRF, "Fixed quality parameter for manual mode")
	fs.IntVar(&cfg.CRFCeiling, "crf-ceiling", cfg.CRFCeiling, "Absolute quality parameter ceiling")
	fs.StringVar(&encoders, "encoders", "", "Comma-separated candidate encoders (overrides config file)")

	// Selection.
	fs.StringVar(&languages, "languages", "", "Comma-separated audio/subtitle language allow-list")
	fs.BoolVar(&cfg.AllowNoAudio, "allow-no-audio", false, "Permit video-only output when no suitable audio exists")

	// Behavior.
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Preview decisions; do not encode or move files")
	fs.BoolVar(&cfg.DryRun, "d", false, "Same as --dry-run")
	fs.BoolVar(&cfg.NoRename, "no-rename", false, "Suppress output filename sanitation")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&cfg.Verbose, "v", false, "Same as --verbose")

	// Utility.
	fs.StringVar(&configFile, "config", "", "YAML config file path")
	fs.StringVar(&envFile, "env-file", "", ".env file path")
	fs.BoolVar(&cfg.CheckOnly, "check", false, "Run external tool diagnostics and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&showHelp, "h", false, "Same as --help")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		os.Exit(0)
	}
	if showVersion {
		fmt.Fprintln(os.Stdout, "shrinkwrap v"+version)
		os.Exit(0)
	}

	// Config file and env are lower precedence than flags, so re-parse flags
	// on top of the overlaid config.
	if configFile != "" || envFile != "" {
		if err := LoadFile(cfg, configFile); err != nil {
			return err
		}
		if err := LoadEnv(cfg, envFile); err != nil {
			return err
		}
		if err := fs.Parse(args); err != nil {
			return err
		}
	}

	if encoders != "" {
		cfg.Encoders = splitCSV(encoders)
	}
	if languages != "" {
		cfg.LanguageAllowList = splitCSV(languages)
	}

	return parsePositionalArgs(fs, cfg)
}

// parsePositionalArgs sets InputRoot and OutputRoot from the two positional
// args when not in CheckOnly mode.
func parsePositionalArgs(fs *flag.FlagSet, cfg *Config) error {
	rest := fs.Args()
	if cfg.CheckOnly {
		return nil
	}
	if len(rest) != 2 {
		return fmt.Errorf("need exactly input_root and output_root, got %d args", len(rest))
	}
	cfg.InputRoot = NormalizeDirArg(rest[0])
	cfg.OutputRoot = NormalizeDirArg(rest[1])
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `shrinkwrap v%s - crash-safe batch transcoder

Usage:
  shrinkwrap [flags] <input_root> <output_root>
  shrinkwrap --check

Flags:
`, version)
	fs.PrintDefaults()
}
