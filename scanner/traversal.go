package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pkgcheck/logger"
)

var candidateExtensions = []string{".dll", ".exe"}

func isCandidate(name string) bool {
	for _, ext := range candidateExtensions {
		if len(name) >= len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext) {
			return true
		}
	}
	return false
}

// findCandidates lists every .dll and .exe below root, depth first with an
// explicit stack of directories. A root that is missing, unreadable or not a
// directory is an error; deeper directories that cannot be read are logged
// and skipped.
func findCandidates(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("could not read scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", root)
	}

	var found []string
	pending := []string{root}
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			if dir == root {
				return nil, fmt.Errorf("could not read scan root: %w", err)
			}
			logger.Warnf("Failed to read directory %s: %v", dir, err)
			continue
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			switch {
			case entry.IsDir():
				pending = append(pending, path)
			case isCandidate(entry.Name()):
				found = append(found, path)
			}
		}
	}
	return found, nil
}
