// Package checkpoint implements saving and restoring of network
// weights and scalar training state.
//
// A Snapshot is a plain container of values: loading one never touches
// a live network, and restoring is a separate, explicit step that
// validates the snapshot against the destination network. Load returns
// its error rather than panicking so that callers can treat a missing
// or corrupt checkpoint as a fresh start.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"deeprl/network"
)

// Snapshot holds the serializable state of a network or a scalar. A
// network snapshot stores one tensor per learnable, in the network's
// learnable order.
type Snapshot struct {
	Weights []*tensor.Dense
	Scalar  float64
}

// Take returns a Snapshot of the argument network's current weights
func Take(net network.NeuralNet) (*Snapshot, error) {
	learnables := net.Learnables()
	weights := make([]*tensor.Dense, len(learnables))
	for i, node := range learnables {
		value, ok := node.Value().(*tensor.Dense)
		if !ok {
			return nil, fmt.Errorf("take: learnable %v does not hold a "+
				"dense tensor", node.Name())
		}
		clone, ok := value.Clone().(*tensor.Dense)
		if !ok {
			return nil, fmt.Errorf("take: could not clone learnable %v",
				node.Name())
		}
		weights[i] = clone
	}
	return &Snapshot{Weights: weights}, nil
}

// Save writes a Snapshot of the argument network's weights to path
func Save(path string, net network.NeuralNet) error {
	snapshot, err := Take(net)
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return write(path, snapshot)
}

// SaveScalar writes a Snapshot holding a single scalar to path
func SaveScalar(path string, value float64) error {
	return write(path, &Snapshot{Scalar: value})
}

// Load reads a Snapshot from path. The snapshot is returned as data
// only; apply it to a network with Restore.
func Load(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load: could not open %v: %v", path, err)
	}
	defer file.Close()

	var snapshot Snapshot
	if err := gob.NewDecoder(file).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("load: could not decode %v: %v", path,
			err)
	}
	return &snapshot, nil
}

// Restore sets the argument network's weights from a Snapshot. The
// snapshot must hold one tensor per learnable, each with the shape of
// the corresponding learnable.
func Restore(net network.NeuralNet, snapshot *Snapshot) error {
	learnables := net.Learnables()
	if len(snapshot.Weights) != len(learnables) {
		return fmt.Errorf("restore: invalid number of weight tensors "+
			"\n\twant(%v)\n\thave(%v)", len(learnables),
			len(snapshot.Weights))
	}

	for i, node := range learnables {
		saved := snapshot.Weights[i]
		if !node.Shape().Eq(saved.Shape()) {
			return fmt.Errorf("restore: invalid shape for learnable %v "+
				"\n\twant(%v)\n\thave(%v)", node.Name(), node.Shape(),
				saved.Shape())
		}
		clone, ok := saved.Clone().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("restore: could not clone saved weights "+
				"for learnable %v", node.Name())
		}
		if err := G.Let(node, clone); err != nil {
			return fmt.Errorf("restore: could not set learnable %v: %v",
				node.Name(), err)
		}
	}
	return nil
}

func write(path string, snapshot *Snapshot) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("write: could not create %v: %v", dir, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write: could not create %v: %v", path, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(snapshot); err != nil {
		return fmt.Errorf("write: could not encode snapshot: %v", err)
	}
	return nil
}
