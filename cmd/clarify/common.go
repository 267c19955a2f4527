package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/five82/clarify/internal/config"
	"github.com/five82/clarify/internal/discovery"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/reporter"
	"github.com/five82/clarify/internal/util"
)

// commonArgs holds the flags shared by photo and video.
type commonArgs struct {
	inputPath  string
	outputPath string
	logDir     string
	configFile string
	profile    string
	verbose    bool
	noLog      bool
	json       bool

	sharpness  int
	denoise    int
	brightness float64
	contrast   float64
}

func (a *commonArgs) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&a.inputPath, "input", "i", "", "input file or directory")
	f.StringVarP(&a.outputPath, "output", "o", "", "output directory, or a filename for a single input")
	f.StringVarP(&a.logDir, "log-dir", "l", "", "log directory (defaults to OUTPUT/logs)")
	f.StringVarP(&a.configFile, "config", "c", "", "YAML config file")
	f.StringVarP(&a.profile, "profile", "p", "", "enhancement profile (soft-clean, strong-sharp, night-boost)")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	f.BoolVar(&a.noLog, "no-log", false, "disable log file creation")
	f.BoolVar(&a.json, "json", false, "emit NDJSON progress events on stdout")

	defaults := config.NewConfig("", "", "").Params
	f.IntVar(&a.sharpness, "sharpness", defaults.Sharpness, "sharpening strength (0-100)")
	f.IntVar(&a.denoise, "denoise", defaults.Denoise, "noise reduction strength (0-100)")
	f.Float64Var(&a.brightness, "brightness", defaults.Brightness, "brightness shift (-0.5 to 0.5)")
	f.Float64Var(&a.contrast, "contrast", defaults.Contrast, "contrast multiplier (0.5 to 1.8)")

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
}

// run is the resolved state of one CLI invocation.
type run struct {
	cfg      *config.Config
	files    []string
	override string
	rep      reporter.Reporter
	log      *logging.RunLog
}

func (r *run) Close() {
	if r.log != nil {
		_ = r.log.Close()
	}
}

// prepare resolves paths, discovers inputs, sets up logging and builds the
// config. Precedence is defaults, then profile, then config file, then
// explicitly set flags.
func (a *commonArgs) prepare(cmd *cobra.Command, find func(string) (*discovery.Result, error), outputExts ...string) (*run, error) {
	inputPath, err := filepath.Abs(a.inputPath)
	if err != nil {
		return nil, fmt.Errorf("invalid input path: %w", err)
	}
	inputInfo, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("input path does not exist: %s", inputPath)
	}

	outputPath, err := filepath.Abs(a.outputPath)
	if err != nil {
		return nil, fmt.Errorf("invalid output path: %w", err)
	}
	out, err := util.ResolveOutputArg(inputPath, outputPath, outputExts...)
	if err != nil {
		if errors.Is(err, os.ErrInvalid) {
			return nil, fmt.Errorf("unsupported output extension %q", filepath.Ext(outputPath))
		}
		return nil, err
	}
	if err := util.EnsureDirectory(out.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	logDir := a.logDir
	if logDir == "" {
		logDir = filepath.Join(out.OutputDir, "logs")
	}
	runLog, err := logging.Setup(logDir, a.verbose, a.noLog)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	if runLog != nil {
		logging.SetGlobal(runLog.Logger())
	}
	r := &run{log: runLog, override: out.FilenameOverride}

	if inputInfo.IsDir() {
		res, err := find(inputPath)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.files = res.Files
		runLog.Info("Discovered %d files in %s", len(r.files), inputPath)
	} else {
		r.files = []string{inputPath}
		runLog.Info("Processing single file: %s", inputPath)
	}

	cfg := config.NewConfig(inputPath, out.OutputDir, logDir)
	if err := a.applyConfig(cmd, cfg); err != nil {
		r.Close()
		return nil, err
	}
	r.cfg = cfg

	var front reporter.Reporter = reporter.NewTerminalReporter()
	if a.json {
		front = reporter.NewJSONReporter()
	}
	if runLog != nil {
		r.rep = reporter.NewCompositeReporter(front, reporter.NewLogReporter(runLog.Logger()))
	} else {
		r.rep = front
	}
	return r, nil
}

func (a *commonArgs) applyConfig(cmd *cobra.Command, cfg *config.Config) error {
	if a.profile != "" {
		p, err := config.ParseProfile(a.profile)
		if err != nil {
			return err
		}
		cfg.ApplyProfile(p)
	}
	if a.configFile != "" {
		if err := cfg.LoadFile(a.configFile); err != nil {
			return err
		}
	}

	f := cmd.Flags()
	if f.Changed("sharpness") {
		cfg.Params.Sharpness = a.sharpness
	}
	if f.Changed("denoise") {
		cfg.Params.Denoise = a.denoise
	}
	if f.Changed("brightness") {
		cfg.Params.Brightness = a.brightness
	}
	if f.Changed("contrast") {
		cfg.Params.Contrast = a.contrast
	}
	return nil
}
