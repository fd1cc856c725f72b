package scanner

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pkgcheck/logger"

	"github.com/google/uuid"
)

// ErrUnsafeEntry marks an archive entry whose path would land outside the
// scratch directory.
var ErrUnsafeEntry = errors.New("archive entry escapes extraction root")

const scratchPrefix = "pkgcheck-"

// withScratchDir creates a uniquely named directory under base, runs fn and
// removes the directory whatever fn returns.
func withScratchDir(base string, fn func(dir string) error) error {
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, scratchPrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return fmt.Errorf("could not create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warnf("Failed to remove scratch directory %s: %v", dir, err)
		}
	}()
	return fn(dir)
}

// extractArchive writes every candidate entry of the zip at path under dest,
// preserving the entry's directory structure. Any write failure aborts.
func extractArchive(ctx context.Context, path, dest string, progress Progress) error {
	progress.Phase(PhaseUnzip)

	r, err := zip.OpenReader(path)
	if errors.Is(err, zip.ErrInsecurePath) {
		r.Close()
		return fmt.Errorf("%w: %s", ErrUnsafeEntry, path)
	}
	if err != nil {
		return fmt.Errorf("could not open archive %s: %w", path, err)
	}
	defer r.Close()

	total := len(r.File)
	extracted := 0
	for i, entry := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.FileInfo().IsDir() && isCandidate(entry.Name) {
			if err := extractEntry(entry, dest); err != nil {
				return err
			}
			extracted++
		}
		progress.Percent(percent(i+1, total))
	}
	logger.Debugf("Extracted %d of %d archive entries from %s", extracted, total, path)
	return nil
}

// entryPath maps an archive entry name to a path below dest. Backslash
// separators are treated like forward slashes.
func entryPath(name, dest string) (string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeEntry, name)
	}
	return filepath.Join(dest, rel), nil
}

func extractEntry(entry *zip.File, dest string) error {
	target, err := entryPath(entry.Name, dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("could not create directory for %s: %w", entry.Name, err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("could not read archive entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", target, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("could not extract %s: %w", entry.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("could not extract %s: %w", entry.Name, err)
	}
	return nil
}
