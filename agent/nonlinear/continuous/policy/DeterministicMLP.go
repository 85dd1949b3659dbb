package policy

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"

	"deeprl/environment"
	"deeprl/network"
	"deeprl/timestep"
	"deeprl/utils/floatutils"
)

// DeterministicMLP implements a deterministic policy over bounded
// continuous actions, parameterized by a network.MultiHeadMLP. The
// network output is squashed and rescaled in-graph:
//
//	action := tanh(MLP(state)) ⊙ scale + bias
//
// so that actions always respect the environment's bounds.
//
// In training mode, action selection perturbs the deterministic action
// with independent Gaussian noise in each dimension and clips the
// result back to the action bounds. Evaluation mode returns the
// deterministic action unchanged.
type DeterministicMLP struct {
	vm  G.VM
	net network.NeuralNet

	actions    *G.Node
	actionsVal G.Value

	noise      distuv.Normal
	actionDims int
	batchSize  int
	scale      float64
	bias       float64

	eval bool
}

// NewDeterministicMLP returns a new DeterministicMLP policy selecting
// actions from the argument environment. The explorationStdDev
// parameter sets the standard deviation of the Gaussian noise added
// to actions in training mode; a value of 0 disables exploration.
func NewDeterministicMLP(env environment.Environment, batchSize int,
	hiddenSizes []int, biases []bool, activations []*network.Activation,
	init G.InitWFn, explorationStdDev float64,
	seed uint64) (*DeterministicMLP, error) {
	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("newdeterministicmlp: actions must be " +
			"continuous")
	}
	if explorationStdDev < 0 {
		return nil, fmt.Errorf("newdeterministicmlp: exploration "+
			"standard deviation must be non-negative \n\thave(%v)",
			explorationStdDev)
	}

	scale, bias, err := actionScaleBias(env)
	if err != nil {
		return nil, fmt.Errorf("newdeterministicmlp: %v", err)
	}

	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()

	net, err := network.NewMultiHeadMLP(features, batchSize, actionDims,
		G.NewGraph(), hiddenSizes, biases, init, activations)
	if err != nil {
		return nil, fmt.Errorf("newdeterministicmlp: could not create "+
			"network: %v", err)
	}

	return deterministicFromNetwork(net, actionDims, batchSize, scale,
		bias, explorationStdDev, seed)
}

func deterministicFromNetwork(net network.NeuralNet, actionDims,
	batchSize int, scale, bias, explorationStdDev float64,
	seed uint64) (*DeterministicMLP, error) {
	squashed := G.Must(G.Tanh(net.Prediction()[0]))
	scaleNode := G.NewConstant(scale, G.WithName("ActorScale"))
	actions := G.Must(G.HadamardProd(scaleNode, squashed))
	if bias != 0 {
		biasNode := G.NewConstant(bias, G.WithName("ActorBias"))
		actions = G.Must(G.Add(actions, biasNode))
	}

	noise := distuv.Normal{
		Mu:    0.0,
		Sigma: explorationStdDev,
		Src:   rand.NewSource(seed),
	}

	pol := &DeterministicMLP{
		net:        net,
		actions:    actions,
		noise:      noise,
		actionDims: actionDims,
		batchSize:  batchSize,
		scale:      scale,
		bias:       bias,
	}
	G.Read(pol.actions, &pol.actionsVal)

	if batchSize == 1 {
		pol.vm = G.NewTapeMachine(net.Graph())
	}

	return pol, nil
}

// CloneWithBatch clones a DeterministicMLP policy into a fresh graph
// with a new batch size. Network weights are copied, not shared.
func (d *DeterministicMLP) CloneWithBatch(batchSize int,
	seed uint64) (*DeterministicMLP, error) {
	net, err := d.net.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not clone "+
			"network: %v", err)
	}

	return deterministicFromNetwork(net, d.actionDims, batchSize,
		d.scale, d.bias, d.noise.Sigma, seed)
}

// SelectAction selects and returns an action at the argument timestep
func (d *DeterministicMLP) SelectAction(t timestep.TimeStep) *mat.VecDense {
	if d.batchSize != 1 {
		panic(fmt.Sprintf("selectaction: action selection requires a "+
			"policy with batch size 1 \n\twant(1) \n\thave(%v)",
			d.batchSize))
	}

	obs := t.Observation.RawVector().Data
	if err := d.net.SetInput(obs); err != nil {
		panic(fmt.Sprintf("selectaction: cannot set input: %v", err))
	}

	if err := d.vm.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: could not run policy VM: %v",
			err))
	}
	defer d.vm.Reset()

	action := make([]float64, d.actionDims)
	copy(action, d.actionsVal.Data().([]float64))

	if !d.eval && d.noise.Sigma > 0 {
		lower := d.bias - d.scale
		upper := d.bias + d.scale
		for i := range action {
			action[i] = floatutils.Clip(action[i]+d.noise.Rand(),
				lower, upper)
		}
	}

	return mat.NewVecDense(d.actionDims, action)
}

// RandomAction returns an action drawn from the exploration noise
// distribution N(0, explorationStdDev) in each dimension, perturbed by
// the same exploration noise added to learned actions and clipped to
// the action bounds. The policy network is ignored. Warmup periods use
// this before the actor has learned anything.
func (d *DeterministicMLP) RandomAction() *mat.VecDense {
	lower := d.bias - d.scale
	upper := d.bias + d.scale

	action := make([]float64, d.actionDims)
	for i := range action {
		action[i] = floatutils.Clip(d.noise.Rand()+d.noise.Rand(),
			lower, upper)
	}
	return mat.NewVecDense(d.actionDims, action)
}

// Actions returns the node holding the bounded deterministic actions,
// of shape (batch, action dimensions)
func (d *DeterministicMLP) Actions() *G.Node {
	return d.actions
}

// ActionsVal returns the value of the node returned by Actions after
// a VM run
func (d *DeterministicMLP) ActionsVal() G.Value {
	return d.actionsVal
}

// Network returns the network of the DeterministicMLP
func (d *DeterministicMLP) Network() network.NeuralNet {
	return d.net
}

// Scale returns the half-width of the action bounds
func (d *DeterministicMLP) Scale() float64 {
	return d.scale
}

// Eval sets the policy to evaluation mode
func (d *DeterministicMLP) Eval() { d.eval = true }

// Train sets the policy to training mode
func (d *DeterministicMLP) Train() { d.eval = false }

// IsEval indicates whether the policy is in evaluation mode
func (d *DeterministicMLP) IsEval() bool { return d.eval }

// Close releases the policy's VM, if any
func (d *DeterministicMLP) Close() error {
	if d.vm == nil {
		return nil
	}
	return d.vm.Close()
}
