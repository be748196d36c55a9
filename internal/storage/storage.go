// Package storage implements the pluggable key-value persistence layer:
// load/save/close over opaque named byte blobs. The default
// implementation is a directory of files written via the
// temp-file+fsync+rename pattern, gzip-framing any key ending in
// ".bin", with a cross-process directory lock guarding against two
// instances pointed at the same directory. An alternate SQLite backend
// (modernc.org/sqlite, pure Go, no cgo) is also provided for hosts that
// prefer a single-file store.
package storage

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/patronlib/librarystack/pkg/liberr"
)

// Backend is the engine's persistence contract: three operations over
// opaque key/byte-slice pairs. The engine never interprets key names
// except to decide on gzip framing (keys ending in ".bin").
type Backend interface {
	// Load returns every stored key/value pair. A missing store (first
	// run) returns an empty, non-nil map and a nil error.
	Load() (map[string][]byte, error)

	// Save persists the given snapshot, replacing any prior contents for
	// the included keys. Keys absent from snapshot are left untouched.
	Save(snapshot map[string][]byte) error

	// Close releases any held resources (file locks, handles).
	Close() error
}

// FileBackend stores one file per key under a directory, using
// temp-file+fsync+rename writes and gzip-compressing keys ending in
// ".bin".
type FileBackend struct {
	dir    string
	logger *slog.Logger

	mu   sync.Mutex
	lock *flock.Flock
}

// FileBackendOption configures a FileBackend.
type FileBackendOption func(*FileBackend)

// WithLogger attaches a logger; nil installs a discard logger.
func WithLogger(logger *slog.Logger) FileBackendOption {
	return func(fb *FileBackend) {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		fb.logger = logger
	}
}

// NewFileBackend creates a file-backed store rooted at dir, acquiring an
// exclusive cross-process lock on dir so two instances never write the
// same snapshot concurrently.
func NewFileBackend(dir string, opts ...FileBackendOption) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}

	fb := &FileBackend{
		dir:    dir,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(fb)
	}

	fb.lock = flock.New(filepath.Join(dir, ".library.lock"))
	locked, err := fb.lock.TryLock()
	if err != nil {
		return nil, liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}
	if !locked {
		return nil, liberr.New(liberr.KindStorageIO, liberr.CodeStorageIO,
			"storage directory is locked by another process", nil).
			WithDetail("dir", dir)
	}

	return fb, nil
}

// Load reads every file under dir except subdirectories and the *.lock
// file, gunzipping keys ending in ".bin". A corrupt (gzip decode
// failure) file is skipped and logged as a warning rather than
// failing the whole load; the engine never partial-restores from a
// damaged stream.
func (fb *FileBackend) Load() (map[string][]byte, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	out := make(map[string][]byte)
	entries, err := os.ReadDir(fb.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) == ".lock" {
			continue
		}
		name := entry.Name()
		raw, err := os.ReadFile(filepath.Join(fb.dir, name))
		if err != nil {
			fb.logger.Warn("storage: failed reading key file", "key", name, "error", err)
			continue
		}

		if filepath.Ext(name) == ".bin" {
			decoded, err := gunzip(raw)
			if err != nil {
				fb.logger.Warn("storage: corrupt gzip stream, treating as empty", "key", name, "error", err)
				continue
			}
			out[name] = decoded
			continue
		}
		out[name] = raw
	}
	return out, nil
}

// Save writes every key in snapshot to its own file via
// temp-file+fsync+rename, gzipping keys ending in ".bin".
func (fb *FileBackend) Save(snapshot map[string][]byte) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		payload := snapshot[key]
		if filepath.Ext(key) == ".bin" {
			var err error
			payload, err = gzipBytes(payload)
			if err != nil {
				return liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
			}
		}
		if err := fb.writeAtomic(key, payload); err != nil {
			return err
		}
	}
	return nil
}

func (fb *FileBackend) writeAtomic(key string, payload []byte) error {
	finalPath := filepath.Join(fb.dir, key)
	tmpPath := finalPath + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}

	if _, err := file.Write(payload); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}
	return nil
}

// Close releases the directory lock.
func (fb *FileBackend) Close() error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.lock == nil {
		return nil
	}
	if err := fb.lock.Unlock(); err != nil {
		return liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
