package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ActionValue is a NeuralNet predicting action values for continuous
// actions. The action input is a separate node from the state input,
// and the network can be cloned into an existing graph with externally
// provided input nodes, so that a differentiable action node can be
// routed into a copy of the network inside a policy-improvement graph.
type ActionValue interface {
	NeuralNet

	// SetActions sets the value of the action input node
	SetActions([]float64) error

	// ActionDims returns the number of action dimensions
	ActionDims() int

	// CloneWithInputsTo clones the network into graph using state and
	// action as its input nodes
	CloneWithInputsTo(state, action *G.Node,
		graph *G.ExprGraph) (NeuralNet, error)
}

// qMLP implements an action-value MLP for continuous actions. The
// network takes a batch of states and a batch of actions as separate
// inputs, concatenates them along the feature dimension, and predicts
// a single action value per row.
type qMLP struct {
	g       *G.ExprGraph
	layers  []Layer
	state   *G.Node
	action  *G.Node
	obsDim  int
	actDim  int
	batch   int
	prefix  string
	hiddens []int

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewQMLP returns an action-value network predicting Q(s, a) for
// continuous-action agents. The state input has obsDim features and
// the action input actDim features. A final linear layer with a single
// output unit is always appended to the hidden layers. Weight node
// names carry prefix so that multiple critics may share a graph.
func NewQMLP(obsDim, actDim, batch int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, prefix string) (ActionValue, error) {
	state := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, obsDim),
		G.WithName(prefix+"state"), G.WithInit(G.Zeroes()))
	action := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, actDim),
		G.WithName(prefix+"action"), G.WithInit(G.Zeroes()))

	net, err := newQMLPFromInputs(state, action, g, hiddenSizes, biases,
		init, activations, prefix)
	if err != nil {
		return nil, err
	}
	return net.(ActionValue), nil
}

// newQMLPFromInputs builds a qMLP whose state and action inputs are
// specific graph nodes. The actor's policy-improvement graph uses this
// to route a differentiable action node into a copy of the critic.
func newQMLPFromInputs(state, action *G.Node, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, prefix string) (NeuralNet, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newqmlp: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("newqmlp: invalid number of biases"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(biases))
	}
	if !state.IsMatrix() || !action.IsMatrix() {
		return nil, fmt.Errorf("newqmlp: state and action inputs must " +
			"be matrices")
	}
	if state.Shape()[0] != action.Shape()[0] {
		return nil, fmt.Errorf("newqmlp: state and action inputs must "+
			"share a batch size \n\twant(%v) \n\thave(%v)",
			state.Shape()[0], action.Shape()[0])
	}

	obsDim := state.Shape()[1]
	actDim := action.Shape()[1]

	hiddenSizes = append(hiddenSizes, 1)
	biases = append(biases, true)
	activations = append(activations, Identity())

	layers, err := addFCLayers(g, obsDim+actDim, hiddenSizes, biases,
		activations, init, prefix)
	if err != nil {
		return nil, fmt.Errorf("newqmlp: %v", err)
	}

	net := qMLP{
		g:       g,
		layers:  layers,
		state:   state,
		action:  action,
		obsDim:  obsDim,
		actDim:  actDim,
		batch:   state.Shape()[0],
		prefix:  prefix,
		hiddens: hiddenSizes,
	}
	if err := net.fwd(); err != nil {
		return nil, fmt.Errorf("newqmlp: could not compute forward "+
			"pass: %v", err)
	}

	return &net, nil
}

// fwd performs the forward pass on the concatenated state-action input
func (q *qMLP) fwd() error {
	pred, err := G.Concat(1, q.state, q.action)
	if err != nil {
		return fmt.Errorf("fwd: could not concatenate state and "+
			"action inputs: %v", err)
	}

	for i, l := range q.layers {
		if pred, err = l.fwd(pred); err != nil {
			return fmt.Errorf("fwd: could not compute forward pass of "+
				"layer %v: %v", i, err)
		}
	}

	q.prediction = pred
	G.Read(q.prediction, &q.predVal)

	return nil
}

// Graph returns the computational graph of the qMLP
func (q *qMLP) Graph() *G.ExprGraph {
	return q.g
}

// CloneWithBatch clones a qMLP into a fresh graph with a new input
// batch size
func (q *qMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()
	state := G.NewMatrix(graph, tensor.Float64,
		G.WithShape(batchSize, q.obsDim), G.WithName(q.prefix+"state"),
		G.WithInit(G.Zeroes()))
	action := G.NewMatrix(graph, tensor.Float64,
		G.WithShape(batchSize, q.actDim), G.WithName(q.prefix+"action"),
		G.WithInit(G.Zeroes()))

	return q.CloneWithInputsTo(state, action, graph)
}

// CloneWithInputsTo clones a qMLP into graph, using state and action as
// its input nodes. Layer weights are cloned, so updating the clone does
// not disturb the original.
func (q *qMLP) CloneWithInputsTo(state, action *G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	if state.Graph() != graph || action.Graph() != graph {
		return nil, fmt.Errorf("clonewithinputsto: input nodes not in " +
			"target graph")
	}

	l := make([]Layer, len(q.layers))
	for i := range q.layers {
		l[i] = q.layers[i].CloneTo(graph)
	}

	net := qMLP{
		g:       graph,
		layers:  l,
		state:   state,
		action:  action,
		obsDim:  q.obsDim,
		actDim:  q.actDim,
		batch:   state.Shape()[0],
		prefix:  q.prefix,
		hiddens: q.hiddens,
	}
	if err := net.fwd(); err != nil {
		return nil, fmt.Errorf("clonewithinputsto: could not clone: %v",
			err)
	}

	return &net, nil
}

// BatchSize returns the batch size of inputs to the network
func (q *qMLP) BatchSize() int {
	return q.batch
}

// Features returns the number of features in a single state observation
func (q *qMLP) Features() int {
	return q.obsDim
}

// ActionDims returns the number of action dimensions the network takes
// as input
func (q *qMLP) ActionDims() int {
	return q.actDim
}

// SetInput sets the value of the state input node
func (q *qMLP) SetInput(input []float64) error {
	if len(input) != q.obsDim*q.batch {
		return fmt.Errorf("setinput: invalid number of inputs"+
			"\n\twant(%v)\n\thave(%v)", q.obsDim*q.batch, len(input))
	}
	states := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(q.batch, q.obsDim),
	)
	return G.Let(q.state, states)
}

// SetActions sets the value of the action input node
func (q *qMLP) SetActions(actions []float64) error {
	if len(actions) != q.actDim*q.batch {
		return fmt.Errorf("setactions: invalid number of actions"+
			"\n\twant(%v)\n\thave(%v)", q.actDim*q.batch, len(actions))
	}
	a := tensor.New(
		tensor.WithBacking(actions),
		tensor.WithShape(q.batch, q.actDim),
	)
	return G.Let(q.action, a)
}

// Learnables returns the learnable nodes in a qMLP
func (q *qMLP) Learnables() G.Nodes {
	if q.learnables == nil {
		q.learnables = layerLearnables(q.layers)
	}
	return q.learnables
}

// Model returns the learnable nodes with their gradients
func (q *qMLP) Model() []G.ValueGrad {
	if q.model == nil {
		q.model = layerModel(q.Learnables())
	}
	return q.model
}

// Output returns the predicted action values after a VM run
func (q *qMLP) Output() []G.Value {
	return []G.Value{q.predVal}
}

// Prediction returns the node storing the predicted action values,
// shaped (batch, 1)
func (q *qMLP) Prediction() []*G.Node {
	return []*G.Node{q.prediction}
}
