package scanner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mode selects how a scan root is interpreted.
type Mode string

const (
	ModeDirectory Mode = "directory"
	ModeArchive   Mode = "archive"
)

var ErrUnsupportedMode = errors.New("unsupported scan mode")

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDirectory:
		return ModeDirectory, nil
	case ModeArchive:
		return ModeArchive, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
}

// DetectMode picks archive mode for a regular file with a .zip extension and
// directory mode for a directory.
func DetectMode(root string) (Mode, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return ModeDirectory, nil
	}
	if strings.EqualFold(filepath.Ext(root), ".zip") {
		return ModeArchive, nil
	}
	return "", fmt.Errorf("%w: %s is neither a directory nor a .zip archive", ErrUnsupportedMode, root)
}
