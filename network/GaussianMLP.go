package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// gaussianMLP implements an MLP predicting the parameters of a
// diagonal Gaussian distribution over continuous actions. A shared
// trunk of hidden layers feeds two linear heads, one predicting the
// mean and one the log standard deviation of each action dimension.
type gaussianMLP struct {
	g      *G.ExprGraph
	trunk  []Layer
	mean   Layer
	logStd Layer

	input      *G.Node
	numActions int
	numInputs  int
	batchSize  int
	prefix     string

	learnables G.Nodes
	model      []G.ValueGrad

	meanNode   *G.Node
	logStdNode *G.Node
	meanVal    G.Value
	logStdVal  G.Value
}

// NewGaussianMLP returns a network predicting the mean and log
// standard deviation of a Gaussian policy over actions actions. The
// trunk has len(hiddenSizes) hidden layers; both heads are linear
// layers with bias units and no activation, taking the final hidden
// layer as input. Prediction()[0] is the mean node and Prediction()[1]
// the log standard deviation node, each of shape (batch, actions).
func NewGaussianMLP(features, batch, actions int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, prefix string) (NeuralNet, error) {
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName(prefix+"input"), G.WithInit(G.Zeroes()))

	return newGaussianMLPFromInput(input, actions, g, hiddenSizes, biases,
		init, activations, prefix)
}

func newGaussianMLPFromInput(input *G.Node, actions int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, prefix string) (NeuralNet, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newgaussianmlp: invalid number of "+
			"activations \n\twant(%d) \n\thave(%d)", len(hiddenSizes),
			len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("newgaussianmlp: invalid number of "+
			"biases \n\twant(%d) \n\thave(%d)", len(hiddenSizes),
			len(biases))
	}
	if len(hiddenSizes) == 0 {
		return nil, fmt.Errorf("newgaussianmlp: gaussian networks " +
			"require at least one hidden layer")
	}
	if !input.IsMatrix() {
		return nil, fmt.Errorf("newgaussianmlp: input must be a matrix")
	}

	batch := input.Shape()[0]
	features := input.Shape()[1]

	trunk, err := addFCLayers(g, features, hiddenSizes, biases,
		activations, init, prefix)
	if err != nil {
		return nil, fmt.Errorf("newgaussianmlp: %v", err)
	}

	trunkOut := hiddenSizes[len(hiddenSizes)-1]
	mean := newFCLayer(g, trunkOut, actions, Identity(), init,
		prefix+"Mean", 0)
	logStd := newFCLayer(g, trunkOut, actions, Identity(), init,
		prefix+"LogStd", 0)

	net := gaussianMLP{
		g:          g,
		trunk:      trunk,
		mean:       mean,
		logStd:     logStd,
		input:      input,
		numActions: actions,
		numInputs:  features,
		batchSize:  batch,
		prefix:     prefix,
	}
	if err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("newgaussianmlp: could not compute "+
			"forward pass: %v", err)
	}

	return &net, nil
}

// fwd performs the forward pass through the trunk and both heads
func (e *gaussianMLP) fwd(input *G.Node) error {
	pred := input
	var err error
	for i, l := range e.trunk {
		if pred, err = l.fwd(pred); err != nil {
			return fmt.Errorf("fwd: could not compute forward pass of "+
				"layer %v: %v", i, err)
		}
	}

	if e.meanNode, err = e.mean.fwd(pred); err != nil {
		return fmt.Errorf("fwd: could not compute mean head: %v", err)
	}
	if e.logStdNode, err = e.logStd.fwd(pred); err != nil {
		return fmt.Errorf("fwd: could not compute log std head: %v", err)
	}

	G.Read(e.meanNode, &e.meanVal)
	G.Read(e.logStdNode, &e.logStdVal)

	return nil
}

// Graph returns the computational graph of the gaussianMLP
func (e *gaussianMLP) Graph() *G.ExprGraph {
	return e.g
}

// CloneWithBatch clones a gaussianMLP into a fresh graph with a new
// input batch size
func (e *gaussianMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()
	input := G.NewMatrix(graph, tensor.Float64,
		G.WithShape(batchSize, e.numInputs),
		G.WithName(e.prefix+"input"), G.WithInit(G.Zeroes()))

	return e.cloneWithInputTo(input, graph)
}

func (e *gaussianMLP) cloneWithInputTo(input *G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	if input.Graph() != graph {
		return nil, fmt.Errorf("clonewithinputto: input node not in " +
			"target graph")
	}

	trunk := make([]Layer, len(e.trunk))
	for i := range e.trunk {
		trunk[i] = e.trunk[i].CloneTo(graph)
	}

	net := gaussianMLP{
		g:          graph,
		trunk:      trunk,
		mean:       e.mean.CloneTo(graph),
		logStd:     e.logStd.CloneTo(graph),
		input:      input,
		numActions: e.numActions,
		numInputs:  e.numInputs,
		batchSize:  input.Shape()[0],
		prefix:     e.prefix,
	}
	if err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("clonewithinputto: could not clone: %v",
			err)
	}

	return &net, nil
}

// BatchSize returns the batch size of inputs to the network
func (e *gaussianMLP) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single observation
// vector that the network takes as input.
func (e *gaussianMLP) Features() int {
	return e.numInputs
}

// Outputs returns the number of action dimensions the network predicts
// distribution parameters for
func (e *gaussianMLP) Outputs() int {
	return e.numActions
}

// SetInput sets the value of the input node before running the forward
// pass.
func (e *gaussianMLP) SetInput(input []float64) error {
	if len(input) != e.numInputs*e.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs"+
			"\n\twant(%v)\n\thave(%v)", e.numInputs*e.batchSize,
			len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Learnables returns the learnable nodes in a gaussianMLP
func (e *gaussianMLP) Learnables() G.Nodes {
	if e.learnables == nil {
		layers := append([]Layer{}, e.trunk...)
		layers = append(layers, e.mean, e.logStd)
		e.learnables = layerLearnables(layers)
	}
	return e.learnables
}

// Model returns the learnable nodes with their gradients
func (e *gaussianMLP) Model() []G.ValueGrad {
	if e.model == nil {
		e.model = layerModel(e.Learnables())
	}
	return e.model
}

// Output returns the predicted mean and log standard deviation values
// after a VM run
func (e *gaussianMLP) Output() []G.Value {
	return []G.Value{e.meanVal, e.logStdVal}
}

// Prediction returns the mean node followed by the log standard
// deviation node
func (e *gaussianMLP) Prediction() []*G.Node {
	return []*G.Node{e.meanNode, e.logStdNode}
}
