package filtering

import (
	"context"
	"fmt"
	"path/filepath"

	"pkgcheck/logger"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads path into h whenever the file is written or replaced, until
// ctx is done. If overlay is non-nil it is applied to each freshly loaded
// configuration before it is installed. Reload failures are logged and the
// previous configuration is kept.
func Watch(ctx context.Context, path string, h *Holder, overlay func(*Info) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not start filter watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	// Watch the directory so saves that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("could not watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			reload(abs, h, overlay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("Filter watcher error: %v", err)
		}
	}
}

func reload(path string, h *Holder, overlay func(*Info) error) {
	info, err := LoadFile(path)
	if err != nil {
		logger.Warnf("Ignoring filter file change: %v", err)
		return
	}
	if overlay != nil {
		if err := overlay(&info); err != nil {
			logger.Warnf("Ignoring filter file change: %v", err)
			return
		}
	}
	if err := h.Set(info); err != nil {
		logger.Warnf("Ignoring filter file change: %v", err)
		return
	}
	logger.Infof("Reloaded filters from %s", path)
}
