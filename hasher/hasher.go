package hasher

import (
	"bufio"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
	"sync"

	"pkgcheck/logger"

	"github.com/cespare/xxhash/v2"
	"github.com/glaslos/tlsh"
	"lukechampine.com/blake3"
)

const (
	hashBufferSmallSize      = 32 * 1024
	hashBufferLargeSize      = 128 * 1024
	hashLargeBufferThreshold = 256 * 1024

	// tlsh needs at least this much input to produce a digest.
	fuzzyMinInput = 50
)

var hashBufferSmallPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSmallSize)
		return &buf
	},
}

var hashBufferLargePool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferLargeSize)
		return &buf
	},
}

// Supported lists the accepted algorithm names.
var Supported = []string{"md5", "sha1", "sha256", "blake3", "xxhash"}

func newHash(algo string) (hash.Hash, bool) {
	switch algo {
	case "md5":
		return md5.New(), true
	case "sha1":
		return sha1.New(), true
	case "sha256":
		return sha256.New(), true
	case "blake3":
		return blake3.New(32, nil), true
	case "xxhash":
		return xxhash.New(), true
	}
	return nil, false
}

// IsSupported reports whether algo names a known hash algorithm.
func IsSupported(algo string) bool {
	_, ok := newHash(strings.ToLower(algo))
	return ok
}

// ComputeHashes reads path once and returns a hex digest per algorithm.
// Unknown algorithms are skipped. A read failure yields an empty map.
func ComputeHashes(path string, algorithms []string) map[string]string {
	hashes := make(map[string]string, len(algorithms))
	if len(algorithms) == 0 {
		return hashes
	}

	file, err := os.Open(path)
	if err != nil {
		logger.Debugf("Failed to open file for hashing %s: %v", path, err)
		return hashes
	}
	defer file.Close()

	type hasherEntry struct {
		name string
		h    hash.Hash
	}
	hashers := make([]hasherEntry, 0, len(algorithms))
	seen := make(map[string]struct{}, len(algorithms))
	for _, algo := range algorithms {
		algo = strings.ToLower(algo)
		if _, ok := seen[algo]; ok {
			continue
		}
		h, ok := newHash(algo)
		if !ok {
			logger.Warnf("Unsupported hash algorithm: %s", algo)
			continue
		}
		seen[algo] = struct{}{}
		hashers = append(hashers, hasherEntry{name: algo, h: h})
	}
	if len(hashers) == 0 {
		return hashes
	}

	bufferPool := &hashBufferSmallPool
	if info, statErr := file.Stat(); statErr == nil && info.Size() >= hashLargeBufferThreshold {
		bufferPool = &hashBufferLargePool
	}
	bufferPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufferPtr)
	buffer := *bufferPtr
	for {
		n, readErr := file.Read(buffer)
		if n > 0 {
			chunk := buffer[:n]
			for i := range hashers {
				_, _ = hashers[i].h.Write(chunk)
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				logger.Debugf("Failed to compute hashes for %s: %v", path, readErr)
				return map[string]string{}
			}
			break
		}
	}

	for i := range hashers {
		hashes[hashers[i].name] = hex.EncodeToString(hashers[i].h.Sum(nil))
	}
	return hashes
}

// ComputeFuzzy returns the TLSH digest of path.
func ComputeFuzzy(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() < fuzzyMinInput {
		return "", fmt.Errorf("file too small for tlsh: %d bytes", info.Size())
	}
	digest, err := tlsh.HashReader(bufio.NewReader(f))
	if err != nil {
		return "", err
	}
	return digest.String(), nil
}
