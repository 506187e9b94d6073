package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hevcbatch/internal/config"
	"hevcbatch/internal/ffmpeg"
	"hevcbatch/internal/history"
	"hevcbatch/internal/jobs"
	"hevcbatch/internal/ntfy"
	"hevcbatch/internal/scan"
	"hevcbatch/internal/sysload"
)

var (
	flagMode        string
	flagQuality     int
	flagCRF         int
	flagPreset      string
	flagBitDepth    int
	flagHDR         bool
	flagAudio       string
	flagConcurrency int
	flagOutputDir   string
	flagDryRun      bool
	flagForce       bool
)

var runCmd = &cobra.Command{
	Use:   "run [path...]",
	Short: "Convert H.264 videos under the given files or directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBatch,
}

func init() {
	runCmd.Flags().StringVar(&flagMode, "mode", "", "encoder mode: hardware, software or auto")
	runCmd.Flags().IntVar(&flagQuality, "quality", 0, "hardware encoder quality (1-100)")
	runCmd.Flags().IntVar(&flagCRF, "crf", 0, "software CRF (0-51)")
	runCmd.Flags().StringVar(&flagPreset, "preset", "", "x265 preset")
	runCmd.Flags().IntVar(&flagBitDepth, "bit-depth", 0, "output bit depth (8 or 10)")
	runCmd.Flags().BoolVar(&flagHDR, "hdr", false, "signal HDR (BT.2020 PQ, 10-bit only)")
	runCmd.Flags().StringVar(&flagAudio, "audio", "", "audio handling: copy, aac or none")
	runCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "max concurrent conversions")
	runCmd.Flags().StringVar(&flagOutputDir, "output-dir", "", "directory for converted files (default: next to source)")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "estimate savings without converting")
	runCmd.Flags().BoolVar(&flagForce, "force", false, "convert even if history says already done")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logrus.WithField("component", "cli")

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(cfg)

	prober := ffmpeg.NewProber(cfg.FFprobePath)
	candidates, err := discover(cmd.Context(), prober, args)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("Nothing to convert.")
		return nil
	}

	if flagDryRun {
		printEstimates(candidates)
		return nil
	}

	var store *history.Store
	if cfg.HistoryFile != "" {
		store, err = history.Open(cfg.HistoryFile)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer store.Close()

		if !flagForce {
			candidates = filterConverted(store, candidates, log)
			if len(candidates) == 0 {
				fmt.Println("Everything already converted.")
				return nil
			}
		}
	}

	executor := ffmpeg.NewExecutor(cfg.FFmpegPath)
	orch := jobs.New(cfg.MaxConcurrent, prober, executor)

	guard := sysload.New(cfg.Throttle, diskPathFor(candidates[0].Path))
	if guard.Enabled() {
		orch.SetResourceGuard(guard)
	}

	bar := progressbar.NewOptions(len(candidates),
		progressbar.OptionSetDescription("converting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	orch.OnCompletion(func(res jobs.Result) {
		_ = bar.Add(1)
		if store != nil {
			if err := store.Record(res); err != nil {
				log.WithError(err).Warn("failed to record result")
			}
		}
		if res.Status == jobs.StatusFailed {
			log.WithField("input", res.InputPath).Errorf("conversion failed: %s", firstLine(res.Error))
		}
	})

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		req := buildRequest(cfg, c.Path)
		ids = append(ids, orch.Submit(req))
	}

	// Ctrl-C cancels the batch but still waits for a clean report
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Warn("interrupt received, cancelling remaining tasks")
		for _, id := range ids {
			_ = orch.Cancel(id)
		}
	}()

	report := orch.WaitForBatch()
	_ = bar.Finish()
	printReport(report)

	client := ntfy.NewClient(cfg.Ntfy.Server, cfg.Ntfy.Topic, cfg.Ntfy.Token)
	if client.IsConfigured() {
		msg := fmt.Sprintf("%d succeeded, %d failed, %d cancelled, %s saved",
			report.Succeeded, report.Failed, report.Cancelled,
			FormatBytes(report.TotalSpaceSaved))
		if err := client.Send(cmd.Context(), "hevcbatch: batch finished", msg); err != nil {
			log.WithError(err).Warn("failed to send notification")
		}
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", report.Failed, report.Submitted)
	}
	return nil
}

func applyFlagOverrides(cfg *config.Config) {
	if flagMode != "" {
		cfg.Defaults.Mode = flagMode
	}
	if flagQuality != 0 {
		cfg.Defaults.Quality = flagQuality
	}
	if flagCRF != 0 {
		cfg.Defaults.CRF = flagCRF
	}
	if flagPreset != "" {
		cfg.Defaults.Preset = flagPreset
	}
	if flagBitDepth != 0 {
		cfg.Defaults.BitDepth = flagBitDepth
	}
	if flagAudio != "" {
		cfg.Defaults.Audio = flagAudio
	}
	if flagConcurrency > 0 {
		cfg.MaxConcurrent = flagConcurrency
	}
}

// discover expands the argument list into conversion candidates: files are
// probed directly, directories are scanned recursively
func discover(ctx context.Context, prober *ffmpeg.Prober, paths []string) ([]scan.Candidate, error) {
	scanner := scan.New(prober)
	var all []scan.Candidate

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", path, err)
		}

		if info.IsDir() {
			found, err := scanner.Find(ctx, path)
			if err != nil {
				return nil, fmt.Errorf("scan of %s failed: %w", path, err)
			}
			all = append(all, found...)
			continue
		}

		probe, err := prober.Probe(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("probe of %s failed: %w", path, err)
		}
		all = append(all, scan.Candidate{Path: path, Probe: probe})
	}

	return all, nil
}

func filterConverted(store *history.Store, candidates []scan.Candidate, log *logrus.Entry) []scan.Candidate {
	kept := candidates[:0]
	for _, c := range candidates {
		done, err := store.WasConverted(c.Path)
		if err != nil {
			log.WithError(err).Warn("history lookup failed")
			done = false
		}
		if done {
			log.WithField("file", c.Path).Debug("already converted, skipping")
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func buildRequest(cfg *config.Config, inputPath string) ffmpeg.Request {
	return ffmpeg.Request{
		InputPath:  inputPath,
		OutputPath: buildOutputPath(inputPath, flagOutputDir),
		Mode:       ffmpeg.Mode(cfg.Defaults.Mode),
		Quality:    cfg.Defaults.Quality,
		CRF:        cfg.Defaults.CRF,
		Preset:     cfg.Defaults.Preset,
		BitDepth:   cfg.Defaults.BitDepth,
		HDR:        flagHDR,
		Audio:      ffmpeg.AudioMode(cfg.Defaults.Audio),
	}
}

func diskPathFor(inputPath string) string {
	if flagOutputDir != "" {
		return flagOutputDir
	}
	return filepath.Dir(inputPath)
}

func printEstimates(candidates []scan.Candidate) {
	var totalCurrent, totalSaved int64
	for _, c := range candidates {
		est := ffmpeg.EstimateConversion(c.Probe)
		totalCurrent += est.CurrentSize
		totalSaved += est.SpaceSaved
		fmt.Printf("%-60s %10s -> %10s (save %s)\n",
			truncatePath(c.Path, 60),
			FormatBytes(est.CurrentSize),
			FormatBytes(est.EstimatedSize),
			FormatBytes(est.SpaceSaved))
	}
	fmt.Printf("\n%d files, %s total, estimated savings %s\n",
		len(candidates), FormatBytes(totalCurrent), FormatBytes(totalSaved))
}

func printReport(report jobs.Report) {
	fmt.Printf("\nBatch finished: %d submitted, %d succeeded, %d failed, %d cancelled\n",
		report.Submitted, report.Succeeded, report.Failed, report.Cancelled)
	fmt.Printf("Space saved: %s\n", FormatBytes(report.TotalSpaceSaved))

	for _, res := range report.Results {
		if res.Status != jobs.StatusFailed {
			continue
		}
		fmt.Printf("  FAILED %s: %s\n", res.InputPath, firstLine(res.Error))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncatePath(path string, max int) string {
	if len(path) <= max {
		return path
	}
	return "..." + path[len(path)-max+3:]
}
