package checkpoint

import (
	"path/filepath"
	"testing"

	G "gorgonia.org/gorgonia"

	"deeprl/network"
)

func newTestNet(t *testing.T, init G.InitWFn) network.NeuralNet {
	t.Helper()

	net, err := network.NewMultiHeadMLP(3, 1, 2, G.NewGraph(),
		[]int{4}, []bool{true}, init,
		[]*network.Activation{network.ReLU()})
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}
	return net
}

func weights(net network.NeuralNet) [][]float64 {
	learnables := net.Learnables()
	out := make([][]float64, len(learnables))
	for i, node := range learnables {
		data := node.Value().Data().([]float64)
		out[i] = append([]float64{}, data...)
	}
	return out
}

func TestSaveLoadRestoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "net.bin")

	source := newTestNet(t, G.GlorotU(1.0))
	if err := Save(path, source); err != nil {
		t.Fatalf("could not save network: %v", err)
	}

	snapshot, err := Load(path)
	if err != nil {
		t.Fatalf("could not load snapshot: %v", err)
	}

	dest := newTestNet(t, G.Zeroes())
	if err := Restore(dest, snapshot); err != nil {
		t.Fatalf("could not restore snapshot: %v", err)
	}

	want := weights(source)
	have := weights(dest)
	for i := range want {
		for j := range want[i] {
			if want[i][j] != have[i][j] {
				t.Fatalf("restored weights differ at learnable %d "+
					"\n\twant(%v)\n\thave(%v)", i, want[i][j],
					have[i][j])
			}
		}
	}
}

// Restoring must not alias the snapshot: later updates to the network
// should leave the loaded snapshot intact
func TestRestoreCopiesWeights(t *testing.T) {
	source := newTestNet(t, G.GlorotU(1.0))
	snapshot, err := Take(source)
	if err != nil {
		t.Fatalf("could not take snapshot: %v", err)
	}
	saved := append([]float64{},
		snapshot.Weights[0].Data().([]float64)...)

	dest := newTestNet(t, G.Zeroes())
	if err := Restore(dest, snapshot); err != nil {
		t.Fatalf("could not restore snapshot: %v", err)
	}

	destData := dest.Learnables()[0].Value().Data().([]float64)
	destData[0] = 12345.0

	snapData := snapshot.Weights[0].Data().([]float64)
	for i := range saved {
		if snapData[i] != saved[i] {
			t.Fatal("mutating the network changed the snapshot")
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(),
		"does-not-exist.bin")); err == nil {
		t.Error("expected error for missing checkpoint file")
	}
}

func TestRestoreWrongArchitecture(t *testing.T) {
	source := newTestNet(t, G.GlorotU(1.0))
	snapshot, err := Take(source)
	if err != nil {
		t.Fatalf("could not take snapshot: %v", err)
	}

	other, err := network.NewMultiHeadMLP(3, 1, 2, G.NewGraph(),
		[]int{7}, []bool{true}, G.Zeroes(),
		[]*network.Activation{network.ReLU()})
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}

	if err := Restore(other, snapshot); err == nil {
		t.Error("expected error restoring to a different architecture")
	}
}

func TestScalarRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alpha.bin")

	const want = -0.75
	if err := SaveScalar(path, want); err != nil {
		t.Fatalf("could not save scalar: %v", err)
	}

	snapshot, err := Load(path)
	if err != nil {
		t.Fatalf("could not load scalar: %v", err)
	}
	if snapshot.Scalar != want {
		t.Errorf("wrong scalar value \n\twant(%v)\n\thave(%v)", want,
			snapshot.Scalar)
	}
}
