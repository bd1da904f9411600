// Package checkpointer saves and loads the networks of a learner
package checkpointer

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/samuelfneumann/rlroute/network"
)

// Extension is the file extension of saved networks
const Extension = ".bin"

// Checkpointer checkpoints named networks after training episodes
type Checkpointer interface {
	Checkpoint(episode int, networks map[string]network.NeuralNet) error
}

// Dir saves each network in its own gob file <dir>/<name>.bin,
// overwriting any previous checkpoint of the network
type Dir struct {
	path string
}

// NewDir returns a new Dir checkpointer saving to the directory path
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

// Path returns the file in which the network name is saved
func (d *Dir) Path(name string) string {
	return filepath.Join(d.path, name+Extension)
}

// Checkpoint saves all networks regardless of the episode
func (d *Dir) Checkpoint(_ int, networks map[string]network.NeuralNet) error {
	return d.Save(networks)
}

// Save saves all networks
func (d *Dir) Save(networks map[string]network.NeuralNet) error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("save: could not create checkpoint directory: %w",
			err)
	}

	for _, name := range names(networks) {
		if err := d.save(name, networks[name]); err != nil {
			return fmt.Errorf("save: %v: %w", name, err)
		}
	}
	return nil
}

func (d *Dir) save(name string, net network.NeuralNet) error {
	tmp, err := os.CreateTemp(d.path, name+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(net); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), d.Path(name))
}

// Load loads every network that has a checkpoint and returns the names
// of the networks loaded. Networks without a checkpoint are left
// unchanged.
func (d *Dir) Load(networks map[string]network.NeuralNet) ([]string,
	error) {
	var loaded []string
	for _, name := range names(networks) {
		f, err := os.Open(d.Path(name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return loaded, fmt.Errorf("load: %v: %w", name, err)
		}

		err = gob.NewDecoder(f).Decode(networks[name])
		f.Close()
		if err != nil {
			return loaded, fmt.Errorf("load: %v: %w", name, err)
		}
		loaded = append(loaded, name)
	}
	return loaded, nil
}

func names(networks map[string]network.NeuralNet) []string {
	out := make([]string, 0, len(networks))
	for name := range networks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
