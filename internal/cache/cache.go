// Package cache persists per-function analysis results keyed by a
// fingerprint of the function's own instruction stream, so a second run
// over an unchanged function can skip definiteinit entirely.
package cache

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"diaudit/internal/air"
	"diaudit/internal/source"
)

// Fingerprint identifies one function by the SHA-256 of its textual IR
// dump, the same rendering air.DumpModule produces.
type Fingerprint [32]byte

// ComputeFingerprint hashes fn's current instruction stream.
func ComputeFingerprint(fn *air.Function, interner *source.Interner) (Fingerprint, error) {
	var buf bytes.Buffer
	if err := air.DumpFunc(&buf, fn, interner); err != nil {
		return Fingerprint{}, err
	}
	return sha256.Sum256(buf.Bytes()), nil
}

const schemaVersion uint16 = 1

// Payload is what gets cached per function: just the counters, not the
// diagnostics themselves, since a diagnostic's source.Span is only valid
// against the FileSet of the run that produced it.
type Payload struct {
	Schema              uint16
	NumLoadsPromoted    int
	NumAssignsRewritten int
	NumDiagnostics      int
}

// DiskCache is a msgpack-serialized, fingerprint-keyed cache on disk, one
// file per function.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// Open initializes a disk cache rooted at dir, creating it if absent.
func Open(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) pathFor(key Fingerprint) string {
	return filepath.Join(c.dir, fmt.Sprintf("%x.mp", key))
}

// Put writes payload under key, atomically replacing any prior entry.
func (c *DiskCache) Put(key Fingerprint, payload Payload) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	payload.Schema = schemaVersion
	p := c.pathFor(key)
	f, err := os.CreateTemp(c.dir, "tmp-*")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := msgpack.NewEncoder(f).Encode(&payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, p)
}

// Get reads the cached payload for key, reporting false if no entry
// exists or it was written under an older schema version.
func (c *DiskCache) Get(key Fingerprint) (Payload, bool, error) {
	if c == nil {
		return Payload{}, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Payload{}, false, nil
		}
		return Payload{}, false, err
	}
	defer f.Close()

	var payload Payload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return Payload{}, false, err
	}
	if payload.Schema != schemaVersion {
		return Payload{}, false, nil
	}
	return payload, true, nil
}
