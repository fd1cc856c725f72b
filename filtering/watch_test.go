package filtering

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkgcheck/logger"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	logger.Init("error")
	dir := t.TempDir()
	path := filepath.Join(dir, "filters.json")
	if err := os.WriteFile(path, []byte(`{}`), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	h := NewHolder()
	updated := make(chan *Info, 4)
	h.Subscribe(func(info *Info) {
		select {
		case updated <- info:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, h, nil) }()

	deadline := time.After(5 * time.Second)
	body := []byte(`{"file_path":{"include":["*test*"]}}`)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for got := false; !got; {
		select {
		case info := <-updated:
			if len(info.FilePath.Include) == 1 && info.FilePath.Include[0] == "*test*" {
				got = true
			}
		case <-tick.C:
			// Rewrite until the watcher is registered and sees a change.
			if err := os.WriteFile(path, body, 0600); err != nil {
				t.Fatalf("write: %v", err)
			}
		case <-deadline:
			t.Fatal("watcher did not reload the filter file")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
