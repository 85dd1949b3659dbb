package network

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
)

const tolerance float64 = 1e-8

// newTestMLP returns a small MLP for testing weight synchronization
func newTestMLP(t *testing.T, init G.InitWFn) NeuralNet {
	net, err := NewMultiHeadMLP(3, 2, 2, G.NewGraph(), []int{4},
		[]bool{true}, init, []*Activation{ReLU()})
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}
	return net
}

// snapshot copies the current learnable weight values of a network
func snapshot(net NeuralNet) [][]float64 {
	var values [][]float64
	for _, node := range net.Learnables() {
		data := node.Value().Data().([]float64)
		values = append(values, append([]float64{}, data...))
	}
	return values
}

func TestSetCopiesWeights(t *testing.T) {
	source := newTestMLP(t, G.GlorotU(1.0))
	dest := newTestMLP(t, G.GlorotU(1.0))

	if err := Set(dest, source); err != nil {
		t.Fatalf("could not set weights: %v", err)
	}

	want := snapshot(source)
	have := snapshot(dest)
	for i := range want {
		for j := range want[i] {
			if want[i][j] != have[i][j] {
				t.Errorf("weights not copied at learnable %v index %v "+
					"\n\twant(%v) \n\thave(%v)", i, j, want[i][j],
					have[i][j])
			}
		}
	}
}

func TestPolyakFullCopy(t *testing.T) {
	source := newTestMLP(t, G.GlorotU(1.0))
	dest := newTestMLP(t, G.GlorotU(1.0))

	if err := Polyak(dest, source, 1.0); err != nil {
		t.Fatalf("could not average weights: %v", err)
	}

	want := snapshot(source)
	have := snapshot(dest)
	for i := range want {
		for j := range want[i] {
			if math.Abs(want[i][j]-have[i][j]) > tolerance {
				t.Errorf("tau = 1 should copy source exactly at "+
					"learnable %v index %v \n\twant(%v) \n\thave(%v)",
					i, j, want[i][j], have[i][j])
			}
		}
	}
}

func TestPolyakNoOp(t *testing.T) {
	source := newTestMLP(t, G.GlorotU(1.0))
	dest := newTestMLP(t, G.GlorotU(1.0))
	before := snapshot(dest)

	if err := Polyak(dest, source, 0.0); err != nil {
		t.Fatalf("could not average weights: %v", err)
	}

	after := snapshot(dest)
	for i := range before {
		for j := range before[i] {
			if math.Abs(before[i][j]-after[i][j]) > tolerance {
				t.Errorf("tau = 0 should leave dest unchanged at "+
					"learnable %v index %v \n\twant(%v) \n\thave(%v)",
					i, j, before[i][j], after[i][j])
			}
		}
	}
}

func TestPolyakConvexCombination(t *testing.T) {
	source := newTestMLP(t, G.GlorotU(1.0))
	dest := newTestMLP(t, G.GlorotU(1.0))

	sourceVals := snapshot(source)
	destVals := snapshot(dest)

	tau := 0.25
	if err := Polyak(dest, source, tau); err != nil {
		t.Fatalf("could not average weights: %v", err)
	}

	have := snapshot(dest)
	for i := range have {
		for j := range have[i] {
			want := tau*sourceVals[i][j] + (1-tau)*destVals[i][j]
			if math.Abs(want-have[i][j]) > tolerance {
				t.Errorf("incorrect average at learnable %v index %v "+
					"\n\twant(%v) \n\thave(%v)", i, j, want, have[i][j])
			}
		}
	}
}

// TestPolyakLeavesSourceUnchanged ensures that averaging writes only
// the destination network.
func TestPolyakLeavesSourceUnchanged(t *testing.T) {
	source := newTestMLP(t, G.GlorotU(1.0))
	dest := newTestMLP(t, G.GlorotU(1.0))
	before := snapshot(source)

	if err := Polyak(dest, source, 0.5); err != nil {
		t.Fatalf("could not average weights: %v", err)
	}

	after := snapshot(source)
	for i := range before {
		for j := range before[i] {
			if before[i][j] != after[i][j] {
				t.Errorf("source weights changed at learnable %v "+
					"index %v \n\twant(%v) \n\thave(%v)", i, j,
					before[i][j], after[i][j])
			}
		}
	}
}

func TestQMLPForwardShape(t *testing.T) {
	batch := 4
	net, err := NewQMLP(3, 2, batch, G.NewGraph(), []int{8},
		[]bool{true}, G.GlorotU(1.0), []*Activation{ReLU()}, "Critic")
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}

	states := make([]float64, 3*batch)
	actions := make([]float64, 2*batch)
	for i := range states {
		states[i] = float64(i) * 0.1
	}
	for i := range actions {
		actions[i] = float64(i) * -0.1
	}

	if err := net.SetInput(states); err != nil {
		t.Fatalf("could not set states: %v", err)
	}
	if err := net.SetActions(actions); err != nil {
		t.Fatalf("could not set actions: %v", err)
	}

	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run forward pass: %v", err)
	}

	shape := net.Output()[0].Shape()
	if shape[0] != batch || shape[1] != 1 {
		t.Errorf("incorrect output shape \n\twant(%v, 1) \n\thave(%v)",
			batch, shape)
	}
}

func TestGaussianMLPPredictsMeanAndLogStd(t *testing.T) {
	net, err := NewGaussianMLP(3, 1, 2, G.NewGraph(), []int{8},
		[]bool{true}, G.GlorotU(1.0), []*Activation{TanH()}, "Policy")
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}

	if len(net.Prediction()) != 2 {
		t.Fatalf("incorrect number of output heads \n\twant(2) "+
			"\n\thave(%v)", len(net.Prediction()))
	}

	if err := net.SetInput([]float64{0.1, -0.2, 0.3}); err != nil {
		t.Fatalf("could not set input: %v", err)
	}

	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run forward pass: %v", err)
	}

	for head, output := range net.Output() {
		shape := output.Shape()
		if shape[0] != 1 || shape[1] != 2 {
			t.Errorf("incorrect shape for head %v \n\twant(1, 2) "+
				"\n\thave(%v)", head, shape)
		}
		for _, v := range output.Data().([]float64) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("head %v produced non-finite output %v", head, v)
			}
		}
	}
}
