// Package metadata reads version resources, the signer identity and optional
// digests from PE binaries. Every failure is recovered locally: the affected
// field is left empty.
package metadata

import (
	"os"

	"pkgcheck/logger"
)

// DefaultMaxBytes caps the size of binaries handed to the PE parser.
const DefaultMaxBytes int64 = 300 * 1024 * 1024

// Metadata is everything extracted for one binary.
type Metadata struct {
	FileVersion    string
	ProductVersion string
	Signature      string
	Hashes         map[string]string
	FuzzyHash      string
}

// Extractor produces metadata for a file path. Implementations never fail;
// unreadable fields are empty.
type Extractor interface {
	Extract(path string) Metadata
}

type Options struct {
	HashAlgorithms []string
	FuzzyHash      bool
	// MaxBytes skips PE parsing for larger files. Zero means unlimited.
	MaxBytes int64
}

// PEExtractor is safe for concurrent use.
type PEExtractor struct {
	opts    Options
	modules []module
}

func New(opts Options) *PEExtractor {
	return &PEExtractor{opts: opts, modules: buildModules(opts)}
}

func (e *PEExtractor) Extract(path string) Metadata {
	var md Metadata
	fc := newFileContext(path, e.opts)
	defer fc.close()

	if info, err := os.Stat(path); err == nil {
		fc.size = info.Size()
	} else {
		logger.Debugf("Failed to stat %s: %v", path, err)
		return md
	}

	for _, m := range e.modules {
		if err := m.Collect(fc, &md); err != nil {
			logger.Debugf("Metadata module %s failed for %s: %v", m.Name(), path, err)
		}
	}
	return md
}
