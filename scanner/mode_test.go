package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pkgcheck/filtering"
)

func TestParseMode(t *testing.T) {
	for _, in := range []string{"directory", "Archive", " directory "} {
		if _, err := ParseMode(in); err != nil {
			t.Fatalf("ParseMode(%q): %v", in, err)
		}
	}
	if _, err := ParseMode("tar"); !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
}

func TestDetectMode(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "pkg.ZIP")
	other := filepath.Join(dir, "pkg.tar")
	os.WriteFile(zipPath, nil, 0o644)
	os.WriteFile(other, nil, 0o644)

	if m, err := DetectMode(dir); err != nil || m != ModeDirectory {
		t.Fatalf("dir: got %q, %v", m, err)
	}
	if m, err := DetectMode(zipPath); err != nil || m != ModeArchive {
		t.Fatalf("zip: got %q, %v", m, err)
	}
	if _, err := DetectMode(other); !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
	if _, err := DetectMode(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestEntryPath(t *testing.T) {
	dest := t.TempDir()
	got, err := entryPath(`a\b.dll`, dest)
	if err != nil {
		t.Fatalf("entryPath: %v", err)
	}
	if want := filepath.Join(dest, "a", "b.dll"); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	for _, name := range []string{"../x.dll", "/abs/x.dll", `..\x.dll`} {
		if _, err := entryPath(name, dest); !errors.Is(err, ErrUnsafeEntry) {
			t.Fatalf("%q: expected ErrUnsafeEntry, got %v", name, err)
		}
	}
}

func TestIsCandidate(t *testing.T) {
	cases := map[string]bool{
		"a.dll": true, "A.DLL": true, "setup.Exe": true,
		"a.dll.bak": false, "dll": false, "readme.txt": false,
	}
	for name, want := range cases {
		if got := isCandidate(name); got != want {
			t.Errorf("isCandidate(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestRecordValue(t *testing.T) {
	r := FileRecord{FilePath: "a/b.dll", FileVersion: "1", ProductVersion: "2", Signature: "S"}
	want := map[filtering.Field]string{
		filtering.FilePath:       "a/b.dll",
		filtering.FileVersion:    "1",
		filtering.ProductVersion: "2",
		filtering.Signature:      "S",
	}
	for f, v := range want {
		if got := r.Value(f); got != v {
			t.Errorf("Value(%s) = %q, want %q", f, got, v)
		}
	}
}
