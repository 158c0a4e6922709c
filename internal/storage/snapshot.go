package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"aeronav/internal/catalog"
)

// ErrNoSnapshot is returned when no snapshot exists for a key.
var ErrNoSnapshot = errors.New("no snapshot")

// SnapshotDir stores catalogs as zstd-compressed msgpack files, one per
// cache key.
type SnapshotDir struct {
	dir string
}

// NewSnapshotDir creates the directory if needed.
func NewSnapshotDir(dir string) (*SnapshotDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &SnapshotDir{dir: dir}, nil
}

var keyReplacer = strings.NewReplacer(":", "_", ",", "_", "/", "_", " ", "_")

// Path returns the file holding the snapshot of key.
func (s *SnapshotDir) Path(key string) string {
	return filepath.Join(s.dir, keyReplacer.Replace(key)+".msgpack.zst")
}

// Save writes c atomically: readers never observe a partial file.
func (s *SnapshotDir) Save(key string, c *catalog.Catalog) error {
	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	zw, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = tmp.Close()
		return err
	}
	if err := msgpack.NewEncoder(zw).Encode(c); err != nil {
		_ = zw.Close()
		_ = tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	} else if err := zw.Close(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), s.Path(key)); err != nil {
		return fmt.Errorf("install snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot of key, returning ErrNoSnapshot when absent.
func (s *SnapshotDir) Load(key string) (*catalog.Catalog, error) {
	return ReadSnapshot(s.Path(key))
}

// ReadSnapshot reads one snapshot file.
func ReadSnapshot(path string) (*catalog.Catalog, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	} else if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var c catalog.Catalog
	if err := msgpack.NewDecoder(zr).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", filepath.Base(path), err)
	}
	return &c, nil
}
