package scanner

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"pkgcheck/logger"
	"pkgcheck/metadata"

	"github.com/google/go-cmp/cmp"
)

func init() {
	logger.Init("error")
}

type stubExtractor struct{}

func (stubExtractor) Extract(path string) metadata.Metadata {
	return metadata.Metadata{FileVersion: "1.0", ProductVersion: "2.0", Signature: "Signer " + filepath.Base(path)}
}

type recordingProgress struct {
	mu     sync.Mutex
	events []string
	values map[string][]int
	phase  string
}

func newRecordingProgress() *recordingProgress {
	return &recordingProgress{values: map[string][]int{}}
}

func (p *recordingProgress) Phase(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = label
	p.events = append(p.events, label)
}

func (p *recordingProgress) Percent(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[p.phase] = append(p.values[p.phase], v)
}

func (p *recordingProgress) Indeterminate() {}

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip entry: %v", err)
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	f.Close()
}

func paths(records []FileRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.FilePath
	}
	sort.Strings(out)
	return out
}

func TestCollectDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app.exe"), "x")
	writeFile(t, filepath.Join(root, "lib", "core.DLL"), "x")
	writeFile(t, filepath.Join(root, "lib", "deep", "more", "x.dll"), "x")
	writeFile(t, filepath.Join(root, "notes.txt"), "x")
	writeFile(t, filepath.Join(root, "dllfile"), "x")

	c := NewCollector(stubExtractor{}, Options{Concurrency: 2})
	records, err := c.Collect(context.Background(), root, ModeDirectory, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := []string{"app.exe", "lib/core.DLL", "lib/deep/more/x.dll"}
	if diff := cmp.Diff(want, paths(records)); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	for _, r := range records {
		if r.FileVersion != "1.0" || r.ProductVersion != "2.0" || r.Highlighted {
			t.Fatalf("unexpected record %+v", r)
		}
	}
}

func TestCollectEmptyDirectory(t *testing.T) {
	c := NewCollector(stubExtractor{}, Options{})
	records, err := c.Collect(context.Background(), t.TempDir(), ModeDirectory, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestCollectMissingRoot(t *testing.T) {
	c := NewCollector(stubExtractor{}, Options{})
	_, err := c.Collect(context.Background(), filepath.Join(t.TempDir(), "missing"), ModeDirectory, nil)
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestCollectRootIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a.dll")
	writeFile(t, file, "x")
	c := NewCollector(stubExtractor{}, Options{})
	if _, err := c.Collect(context.Background(), file, ModeDirectory, nil); err == nil {
		t.Fatal("expected error when root is a file")
	}
}

func TestCollectArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pkg.zip")
	writeZip(t, archive, map[string]string{
		"a/b.dll":    "binary",
		"readme.txt": "text",
	})
	scratch := t.TempDir()

	progress := newRecordingProgress()
	c := NewCollector(stubExtractor{}, Options{ScratchDir: scratch})
	records, err := c.Collect(context.Background(), archive, ModeArchive, progress)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if diff := cmp.Diff([]string{"a/b.dll"}, paths(records)); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	if records[0].Signature != "Signer b.dll" {
		t.Fatalf("unexpected signature %q", records[0].Signature)
	}

	wantPhases := []string{PhaseUnzip, PhaseSearch, PhaseCollect}
	if diff := cmp.Diff(wantPhases, progress.events); diff != "" {
		t.Fatalf("phases mismatch (-want +got):\n%s", diff)
	}
	assertScratchEmpty(t, scratch)
}

func TestCollectCorruptArchiveCleansUp(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "broken.zip")
	writeFile(t, archive, "this is not a zip")
	scratch := t.TempDir()

	c := NewCollector(stubExtractor{}, Options{ScratchDir: scratch})
	records, err := c.Collect(context.Background(), archive, ModeArchive, nil)
	if err == nil {
		t.Fatal("expected error for corrupt archive")
	}
	if records != nil {
		t.Fatalf("expected no records, got %v", records)
	}
	assertScratchEmpty(t, scratch)
}

func TestCollectArchiveRejectsEscapingEntry(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, map[string]string{"../../evil.dll": "x"})
	scratch := t.TempDir()

	c := NewCollector(stubExtractor{}, Options{ScratchDir: scratch})
	_, err := c.Collect(context.Background(), archive, ModeArchive, nil)
	if !errors.Is(err, ErrUnsafeEntry) {
		t.Fatalf("expected ErrUnsafeEntry, got %v", err)
	}
	assertScratchEmpty(t, scratch)
}

func TestCollectProgressMonotonic(t *testing.T) {
	root := t.TempDir()
	for i := range 25 {
		writeFile(t, filepath.Join(root, "d", string(rune('a'+i))+".dll"), "x")
	}
	progress := newRecordingProgress()
	c := NewCollector(stubExtractor{}, Options{Concurrency: 4})
	if _, err := c.Collect(context.Background(), root, ModeDirectory, progress); err != nil {
		t.Fatalf("collect: %v", err)
	}
	values := progress.values[PhaseCollect]
	if len(values) != 25 {
		t.Fatalf("expected 25 updates, got %d", len(values))
	}
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			t.Fatalf("progress went backwards: %v", values)
		}
	}
	if values[len(values)-1] != 100 {
		t.Fatalf("expected final 100, got %d", values[len(values)-1])
	}
}

func TestCollectCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.dll"), "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCollector(stubExtractor{}, Options{})
	if _, err := c.Collect(ctx, root, ModeDirectory, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCollectUnsupportedMode(t *testing.T) {
	c := NewCollector(stubExtractor{}, Options{})
	if _, err := c.Collect(context.Background(), t.TempDir(), Mode("tarball"), nil); !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
}

func assertScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read scratch: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch directory not cleaned up: %v", entries)
	}
}
