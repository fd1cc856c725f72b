package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pkgcheck/config"
	"pkgcheck/filtering"
	"pkgcheck/inventory"
	"pkgcheck/logger"
	"pkgcheck/metadata"
	"pkgcheck/output"
	"pkgcheck/scanner"
	"pkgcheck/systeminfo"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		logger.Fatalf("Scan failed: %v", err)
	}
}

func handleSignals(cancelFunc context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	handleSignalEvent(cancelFunc, sigChan)
}

func handleSignalEvent(cancelFunc context.CancelFunc, sigChan <-chan os.Signal) {
	<-sigChan
	logger.Info("Interrupt signal received. Shutting down...")
	cancelFunc()
}

// app holds what one invocation needs to publish results.
type app struct {
	cfg     *config.Config
	orch    *inventory.Orchestrator
	table   *output.Table
	host    *systeminfo.HostInfo
	header  output.Header
	started time.Time
	elapsed time.Duration
	ready   bool
}

func run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	mode, err := resolveMode(cfg)
	if err != nil {
		return err
	}

	holder := filtering.NewHolder()
	info, err := cfg.Filters()
	if err != nil {
		return err
	}
	if err := holder.Set(info); err != nil {
		return err
	}

	extractor := metadata.New(metadata.Options{
		HashAlgorithms: cfg.HashAlgorithms,
		FuzzyHash:      cfg.FuzzyHash,
		MaxBytes:       cfg.MetadataMaxBytes,
	})
	collector := scanner.NewCollector(extractor, scanner.Options{
		Concurrency:       cfg.ConcurrencyLevel,
		MaxFilesPerSecond: cfg.MaxFilesPerSecond,
		ScratchDir:        cfg.ScratchDir,
	})

	a := &app{
		cfg:   cfg,
		table: output.NewTable(stdout, colorFor(stdout, cfg.NoColor)),
		header: output.Header{
			Root: cfg.Path,
			Mode: string(mode),
		},
	}
	if cfg.CollectHostInfo {
		a.host = systeminfo.GetHostInfo()
	}

	queue := inventory.NewQueue(0)
	defer queue.Close()
	progress := output.NewConsoleProgress(stderr, cfg.ShowProgress && isTerminal(stderr))
	a.orch = inventory.New(collector, holder, queue, inventory.Options{
		Progress: progress,
		OnUpdate: func() {
			if !a.ready {
				return
			}
			if err := a.publish(); err != nil {
				logger.Warnf("Failed to publish results: %v", err)
			}
		},
	})
	defer a.orch.Close()

	a.started = time.Now()
	a.header.Started = a.started.UTC().Format(time.RFC3339)
	task, err := a.orch.Rescan(ctx, cfg.Path, mode)
	if err != nil {
		return err
	}
	if err := queue.RunUntil(ctx, task.Done()); err != nil {
		// Let the cancelled task post its outcome so the scratch directory
		// is gone before returning.
		task.Cancel()
		queue.RunUntil(context.Background(), task.Done())
		progress.Finish()
		return err
	}
	progress.Finish()
	if err := task.Err(); err != nil {
		return err
	}
	a.elapsed = time.Since(a.started)
	a.ready = true
	if err := a.publish(); err != nil {
		return err
	}

	if !cfg.Watch {
		return nil
	}
	logger.Infof("Watching %s for filter changes", cfg.FilterFile)
	go func() {
		if err := filtering.Watch(ctx, cfg.FilterFile, holder, cfg.FilterOverlay); err != nil {
			logger.Errorf("Filter watch stopped: %v", err)
		}
	}()
	if err := queue.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func resolveMode(cfg *config.Config) (scanner.Mode, error) {
	if cfg.Mode == config.ModeAuto {
		return scanner.DetectMode(cfg.Path)
	}
	return scanner.ParseMode(cfg.Mode)
}

// publish prints the current view and rewrites the report file.
func (a *app) publish() error {
	visible := a.orch.Visible()
	status := a.orch.Status()
	if err := a.table.Render(visible, status.String()); err != nil {
		return err
	}

	end := a.started.Add(a.elapsed)
	summary := output.Summary{
		Status: status.String(),
		Metrics: output.Metrics{
			StartTime:   a.started.UTC().Format(time.RFC3339),
			EndTime:     end.UTC().Format(time.RFC3339),
			DurationMS:  a.elapsed.Milliseconds(),
			TotalFiles:  status.Total,
			Shown:       status.Shown,
			Hidden:      status.Hidden,
			Highlighted: status.Highlighted,
		},
	}
	if a.cfg.OutputFileName == "" && a.cfg.OtelEndpoint == "" && !a.cfg.OtelFromEnv {
		return nil
	}
	w, err := output.New(a.cfg, a.host, a.header)
	if err != nil {
		return err
	}
	for _, r := range visible {
		if err := w.WriteRecord(r); err != nil {
			w.Close(summary)
			return err
		}
	}
	if err := w.Close(summary); err != nil {
		return err
	}
	if a.cfg.OutputFileName != "" {
		logger.Infof("Report written to %s", a.cfg.OutputFileName)
	}
	return nil
}

func colorFor(w io.Writer, noColor bool) bool {
	f, ok := w.(*os.File)
	return ok && output.ColorEnabled(f, noColor)
}

func isTerminal(w io.Writer) bool {
	return colorFor(w, false)
}
