package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/five82/clarify/internal/config"
	"github.com/five82/clarify/internal/discovery"
	"github.com/five82/clarify/internal/processing"
)

func newPhotoCmd() *cobra.Command {
	var (
		common  commonArgs
		model   string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "photo",
		Short: "Enhance photos",
		Long: `Enhance a photo or every photo in a directory.

Outputs are written as <name>_enhanced with the input's extension (PNG for
formats that cannot be written back). Existing outputs are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := common.prepare(cmd, discovery.FindImageFiles, ".png", ".jpg", ".jpeg")
			if err != nil {
				return err
			}
			defer r.Close()

			if cmd.Flags().Changed("model") {
				r.cfg.ModelPath = model
			}
			if cmd.Flags().Changed("workers") {
				r.cfg.Workers = workers
			}
			if err := r.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			r.log.Info("Params: %s", r.cfg.Params)
			r.log.Info("Workers: %d", r.cfg.Workers)

			results, err := processing.ProcessPhotos(cmd.Context(), r.cfg, r.files, r.rep, processing.PhotoOptions{
				TargetOverride: r.override,
			})
			if err != nil {
				return err
			}
			return failedCount(len(results), countPhotoFailures(results))
		},
	}

	common.register(cmd)
	cmd.Flags().StringVar(&model, "model", "", "external enhancement model executable")
	cmd.Flags().IntVar(&workers, "workers", config.NewConfig("", "", "").Workers, "photos processed in parallel")
	return cmd
}

func newVideoCmd() *cobra.Command {
	var (
		common     commonArgs
		crf        string
		preset     uint8
		maxEdge    int
		intervalMs int
		tempDir    string
		responsive bool
	)

	cmd := &cobra.Command{
		Use:   "video",
		Short: "Enhance videos and re-encode them to AV1",
		Long: `Enhance a video or every video in a directory.

Frames are sampled at a fixed interval, enhanced, scaled to fit the long-edge
cap and encoded with SVT-AV1. AAC audio is passed through unchanged; other
audio codecs produce a video-only output. Outputs are written as
<name>_enhanced.mp4 and existing outputs are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := common.prepare(cmd, discovery.FindVideoFiles, ".mp4")
			if err != nil {
				return err
			}
			defer r.Close()

			f := cmd.Flags()
			if f.Changed("crf") {
				sd, hd, uhd, err := config.ParseCRF(crf)
				if err != nil {
					return err
				}
				r.cfg.CRFSD, r.cfg.CRFHD, r.cfg.CRFUHD = sd, hd, uhd
			}
			if f.Changed("preset") {
				r.cfg.SVTAV1Preset = preset
			}
			if f.Changed("max-edge") {
				r.cfg.MaxLongEdge = maxEdge
			}
			if f.Changed("interval-ms") {
				r.cfg.FrameIntervalMs = intervalMs
			}
			if f.Changed("temp-dir") {
				r.cfg.TempDir = tempDir
			}
			if f.Changed("responsive") {
				r.cfg.ResponsiveEncoding = responsive
			}
			if err := r.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			r.log.Info("Output directory: %s", r.cfg.OutputDir)
			r.log.Info("Params: %s", r.cfg.Params)
			r.log.Info("CRF: SD=%d, HD=%d, UHD=%d", r.cfg.CRFSD, r.cfg.CRFHD, r.cfg.CRFUHD)
			r.log.Info("SVT-AV1 preset: %d", r.cfg.SVTAV1Preset)
			r.log.Info("Sampling: every %dms, long edge %d", r.cfg.FrameIntervalMs, r.cfg.MaxLongEdge)
			r.log.Info("Responsive encoding: %v", r.cfg.ResponsiveEncoding)

			results, err := processing.ProcessVideos(cmd.Context(), r.cfg, r.files, r.rep, processing.VideoOptions{
				TargetOverride: r.override,
			})
			if err != nil {
				return err
			}
			return failedCount(len(results), countVideoFailures(results))
		},
	}

	common.register(cmd)
	f := cmd.Flags()
	f.StringVar(&crf, "crf", "", fmt.Sprintf("CRF as one value or sd,hd,uhd (default %d,%d,%d)", config.DefaultCRFSD, config.DefaultCRFHD, config.DefaultCRFUHD))
	f.Uint8Var(&preset, "preset", config.DefaultSVTAV1Preset, "SVT-AV1 preset (0-13, lower is slower)")
	f.IntVar(&maxEdge, "max-edge", config.DefaultMaxLongEdge, "maximum long edge of the output in pixels")
	f.IntVar(&intervalMs, "interval-ms", config.DefaultFrameIntervalMs, "milliseconds between sampled frames")
	f.StringVar(&tempDir, "temp-dir", "", "directory for work files (defaults to the output directory)")
	f.BoolVar(&responsive, "responsive", false, "run ffmpeg at lower priority with fewer threads")
	return cmd
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List enhancement profiles",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROFILE\tDESCRIPTION\tPARAMS")
			for _, p := range config.Profiles() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p, p.Description(), p.Params())
			}
			_ = w.Flush()
		},
	}
}

func countPhotoFailures(results []processing.PhotoResult) int {
	n := 0
	for _, r := range results {
		if r.Status == processing.StatusFailed {
			n++
		}
	}
	return n
}

func countVideoFailures(results []processing.VideoResult) int {
	n := 0
	for _, r := range results {
		if r.Status == processing.StatusFailed {
			n++
		}
	}
	return n
}

// failedCount turns per-file failures into a non-zero exit.
func failedCount(total, failed int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d files failed", failed, total)
}
