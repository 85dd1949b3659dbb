package policy

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"deeprl/environment"
	"deeprl/network"
	"deeprl/timestep"
	"deeprl/utils/floatutils"
	"deeprl/utils/op"
)

// GaussianMLP implements an unbounded Gaussian policy parameterized by
// a network.GaussianMLP. The network predicts the mean and log
// standard deviation of a diagonal Gaussian over actions.
//
// Actions are selected by sampling from the standard normal
// ɛ ~ N(0, 1) and computing action := μ + σ ⊙ ɛ, clipped to the
// environment's action bounds.
//
// Given a number of continuous actions in a number of states, the
// GaussianMLP can calculate the log probability of selecting each of
// these actions in each corresponding state, which is needed for
// constructing policy gradients.
type GaussianMLP struct {
	vm  G.VM
	net network.NeuralNet

	actions    *G.Node
	logPdfNode *G.Node
	logPdfVal  G.Value

	entropyNode *G.Node
	entropyVal  G.Value

	normal     distmv.Rander
	actionDims int
	batchSize  int
	lower      float64
	upper      float64

	meanVal   G.Value
	stddevVal G.Value

	eval bool
}

// NewGaussianMLP returns a new GaussianMLP policy selecting actions
// from the argument environment.
//
// The policy can be a batch policy when batchSize > 1. In such a case,
// the log probability of actions can be computed for a batch of
// actions, but actions cannot be selected on each timestep with
// SelectAction. Only when batchSize = 1 can actions be selected at
// each timestep.
func NewGaussianMLP(env environment.Environment, batchSize int,
	hiddenSizes []int, biases []bool, activations []*network.Activation,
	init G.InitWFn, seed uint64) (*GaussianMLP, error) {
	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("newgaussianmlp: actions must be " +
			"continuous")
	}

	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()

	net, err := network.NewGaussianMLP(features, batchSize, actionDims,
		G.NewGraph(), hiddenSizes, biases, init, activations, "Policy")
	if err != nil {
		return nil, fmt.Errorf("newgaussianmlp: could not create "+
			"network: %v", err)
	}
	g := net.Graph()

	// Offset the standard deviation for numerical stability
	mean := net.Prediction()[0]
	offset := G.NewConstant(stdOffset)
	std := G.Must(G.Exp(net.Prediction()[1]))
	std = G.Must(G.Add(offset, std))

	// Log probability of externally given actions
	actions := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithName("InputActions"),
		G.WithShape(batchSize, actionDims),
		G.WithInit(G.Zeroes()),
	)
	logPdfNode := op.GaussianLogPdf(mean, std, actions)
	entropyNode := op.GaussianEntropy(std)

	// Standard normal for action selection
	means := make([]float64, actionDims)
	stds := mat.NewDiagDense(actionDims, floatutils.Ones(actionDims))
	source := rand.NewSource(seed)
	normal, ok := distmv.NewNormal(means, stds, source)
	if !ok {
		return nil, fmt.Errorf("newgaussianmlp: could not create " +
			"standard normal for action selection")
	}

	pol := &GaussianMLP{
		net: net,

		actions:     actions,
		logPdfNode:  logPdfNode,
		entropyNode: entropyNode,

		normal:     normal,
		actionDims: actionDims,
		batchSize:  batchSize,
		lower:      env.ActionSpec().LowerBound.AtVec(0),
		upper:      env.ActionSpec().UpperBound.AtVec(0),
	}

	G.Read(pol.logPdfNode, &pol.logPdfVal)
	G.Read(pol.entropyNode, &pol.entropyVal)
	G.Read(mean, &pol.meanVal)
	G.Read(std, &pol.stddevVal)

	// Action selection requires a batch size of 1
	if batchSize == 1 {
		pol.vm = G.NewTapeMachine(g)
	}

	return pol, nil
}

// LogPdfOf sets the state and action inputs of the policy's
// computational graph to the argument states and actions so that when
// a VM of the policy's graph is run, the log probability of actions
// taken in states will be computed and stored in the node returned by
// LogPdfNode.
//
// This function does not return log PDF values itself: the log PDF is
// generally needed inside a loss function, and a separate, external
// VM computes it together with the loss.
func (g *GaussianMLP) LogPdfOf(states, actions []float64) (*G.Node,
	error) {
	if err := g.net.SetInput(states); err != nil {
		return nil, fmt.Errorf("logpdfof: could not set states: %v", err)
	}

	actionsTensor := tensor.NewDense(tensor.Float64,
		[]int{g.batchSize, g.actionDims},
		tensor.WithBacking(actions),
	)
	if err := G.Let(g.actions, actionsTensor); err != nil {
		return nil, fmt.Errorf("logpdfof: could not set actions: %v", err)
	}

	return g.LogPdfNode(), nil
}

// SelectAction selects and returns an action at the argument timestep.
// In evaluation mode the distribution mean is returned.
func (c *GaussianMLP) SelectAction(t timestep.TimeStep) *mat.VecDense {
	if c.batchSize != 1 {
		panic(fmt.Sprintf("selectaction: action selection requires a "+
			"policy with batch size 1 \n\twant(1) \n\thave(%v)",
			c.batchSize))
	}

	obs := t.Observation.RawVector().Data
	if err := c.net.SetInput(obs); err != nil {
		panic(fmt.Sprintf("selectaction: cannot set input: %v", err))
	}

	if err := c.vm.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: could not run policy VM: %v",
			err))
	}
	defer c.vm.Reset()

	action := mat.NewVecDense(c.actionDims,
		append([]float64{}, c.meanVal.Data().([]float64)...))
	if !c.eval {
		stddev := mat.NewVecDense(c.actionDims,
			append([]float64{}, c.stddevVal.Data().([]float64)...))
		eps := mat.NewVecDense(c.actionDims, c.normal.Rand(nil))
		stddev.MulElemVec(stddev, eps)
		action.AddVec(action, stddev)
	}

	for i := 0; i < c.actionDims; i++ {
		action.SetVec(i, floatutils.Clip(action.AtVec(i), c.lower,
			c.upper))
	}

	return action
}

// LogPdfNode returns the node that will hold the log probability of
// actions when the computational graph is run
func (c *GaussianMLP) LogPdfNode() *G.Node {
	return c.logPdfNode
}

// LogPdfVal returns the value of the node returned by LogPdfNode
func (c *GaussianMLP) LogPdfVal() G.Value {
	return c.logPdfVal
}

// EntropyNode returns the node holding the per-sample entropy of the
// policy's action distribution
func (c *GaussianMLP) EntropyNode() *G.Node {
	return c.entropyNode
}

// EntropyVal returns the value of the node returned by EntropyNode
func (c *GaussianMLP) EntropyVal() G.Value {
	return c.entropyVal
}

// Network returns the network of the GaussianMLP
func (g *GaussianMLP) Network() network.NeuralNet {
	return g.net
}

// Eval sets the policy to evaluation mode
func (c *GaussianMLP) Eval() { c.eval = true }

// Train sets the policy to training mode
func (c *GaussianMLP) Train() { c.eval = false }

// IsEval indicates whether the policy is in evaluation mode
func (c *GaussianMLP) IsEval() bool { return c.eval }

// Close releases the policy's VM, if any
func (c *GaussianMLP) Close() error {
	if c.vm == nil {
		return nil
	}
	return c.vm.Close()
}
