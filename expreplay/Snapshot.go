package expreplay

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/rlroute/timestep"
)

// DefaultSnapshotFile is the file name used by a FileSnapshotter when
// none is given
const DefaultSnapshotFile = "experiences.bin"

// Snapshot is the full content of a Store in insertion order
type Snapshot struct {
	Transitions []timestep.Transition
	Weights     []float64
}

// Snapshotter saves and loads Snapshots. Load returns an error
// wrapping ErrNoSnapshot if no Snapshot has been saved.
type Snapshotter interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// encode encodes a Snapshot as gob bytes
func encode(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

// decode decodes a Snapshot from gob bytes
func decode(data []byte) (*Snapshot, error) {
	snap := &Snapshot{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(snap); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return snap, nil
}

// FileSnapshotter saves Snapshots to a single file on disk
type FileSnapshotter struct {
	path string
}

// NewFileSnapshotter returns a FileSnapshotter writing to path. If
// path is a directory, the snapshot is written to DefaultSnapshotFile
// in that directory.
func NewFileSnapshotter(path string) *FileSnapshotter {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultSnapshotFile)
	}
	return &FileSnapshotter{path: path}
}

// Path returns the file that the FileSnapshotter writes to
func (f *FileSnapshotter) Path() string {
	return f.path
}

// Save implements the Snapshotter interface. The snapshot is written
// to a temporary file first so that a crash never leaves a partially
// written snapshot behind.
func (f *FileSnapshotter) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encode(snap)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Load implements the Snapshotter interface
func (f *FileSnapshotter) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load: %w: %v", ErrNoSnapshot, f.path)
	} else if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	snap, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return snap, nil
}
