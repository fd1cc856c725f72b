package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"pkgcheck/logger"
	"pkgcheck/metadata"

	"golang.org/x/time/rate"
)

type Options struct {
	// Concurrency bounds parallel metadata extraction. Zero means NumCPU.
	Concurrency int
	// MaxFilesPerSecond throttles metadata extraction. Zero disables it.
	MaxFilesPerSecond int
	// ScratchDir is where archives are extracted. Empty means os.TempDir.
	ScratchDir string
}

// Collector discovers candidate binaries and reads their metadata.
type Collector struct {
	extractor metadata.Extractor
	opts      Options
}

func NewCollector(extractor metadata.Extractor, opts Options) *Collector {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return &Collector{extractor: extractor, opts: opts}
}

// Collect returns a record for every .dll/.exe under root. In archive mode
// root is a zip file that is extracted to a private scratch directory first;
// that directory is gone when Collect returns. On error no records are
// returned.
func (c *Collector) Collect(ctx context.Context, root string, mode Mode, progress Progress) ([]FileRecord, error) {
	if progress == nil {
		progress = NopProgress
	}
	switch mode {
	case ModeDirectory:
		return c.collectDirectory(ctx, root, progress)
	case ModeArchive:
		var records []FileRecord
		err := withScratchDir(c.opts.ScratchDir, func(dir string) error {
			if err := extractArchive(ctx, root, dir, progress); err != nil {
				return err
			}
			var err error
			records, err = c.collectDirectory(ctx, dir, progress)
			return err
		})
		if err != nil {
			return nil, err
		}
		return records, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
}

func (c *Collector) collectDirectory(ctx context.Context, root string, progress Progress) ([]FileRecord, error) {
	paths, err := c.search(ctx, root, progress)
	if err != nil {
		return nil, err
	}
	logger.Debugf("Found %d candidate files under %s", len(paths), root)
	return c.collectInfo(ctx, root, paths, progress)
}

func (c *Collector) search(ctx context.Context, root string, progress Progress) ([]string, error) {
	progress.Phase(PhaseSearch)
	progress.Indeterminate()
	return findCandidates(ctx, root)
}

func (c *Collector) collectInfo(ctx context.Context, root string, paths []string, progress Progress) ([]FileRecord, error) {
	progress.Phase(PhaseCollect)

	records := make([]FileRecord, len(paths))
	if len(paths) == 0 {
		return records, nil
	}

	var limiter *rate.Limiter
	if c.opts.MaxFilesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.opts.MaxFilesPerSecond), c.opts.MaxFilesPerSecond)
	}

	jobs := make(chan int)
	doneCh := make(chan struct{}, c.opts.Concurrency)
	var wg sync.WaitGroup
	for range c.opts.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				records[i] = c.describe(root, paths[i])
				doneCh <- struct{}{}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range paths {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(doneCh)
	}()

	// Progress is reported from this goroutine only, so it stays monotonic.
	processed := 0
	for range doneCh {
		processed++
		progress.Percent(percent(processed, len(paths)))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Collector) describe(root, path string) FileRecord {
	md := c.extractor.Extract(path)
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return FileRecord{
		FilePath:       filepath.ToSlash(rel),
		FileVersion:    md.FileVersion,
		ProductVersion: md.ProductVersion,
		Signature:      md.Signature,
		Hashes:         md.Hashes,
		FuzzyHash:      md.FuzzyHash,
	}
}
