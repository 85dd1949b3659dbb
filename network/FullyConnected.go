package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer implements a single layer of a neural network
type Layer interface {
	fwd(*G.Node) (*G.Node, error)
	CloneTo(g *G.ExprGraph) Layer

	Activation() *Activation
	Bias() *G.Node
	Weights() *G.Node
}

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// newFCLayer returns a new fully connected layer with weights of shape
// (features, units) and a bias of shape (units). The weight and bias
// node names are prefixed so that layers of separate networks on the
// same graph do not collide.
func newFCLayer(g *G.ExprGraph, features, units int, act *Activation,
	init G.InitWFn, prefix string, layer int) *fcLayer {
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(features, units),
		G.WithName(fmt.Sprintf("%vL%dW", prefix, layer)),
		G.WithInit(init),
	)
	bias := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(units),
		G.WithName(fmt.Sprintf("%vL%dB", prefix, layer)),
		G.WithInit(G.Zeroes()),
	)

	return &fcLayer{
		weights: weights,
		bias:    bias,
		act:     act,
	}
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	if f.Weights() != nil {
		x = G.Must(G.Mul(x, f.Weights()))
	}
	if f.Bias() != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, f.Bias(), nil, []byte{0}))
	}
	if f.Activation() == nil || f.Activation().IsNil() ||
		f.Activation().IsIdentity() {
		return x, nil
	}
	return f.Activation().fwd(x)
}

// CloneTo clones an fcLayer to a new computational graph
func (f *fcLayer) CloneTo(g *G.ExprGraph) Layer {
	var newWeights, newBias *G.Node

	if f.Weights() != nil {
		newWeights = f.Weights().CloneTo(g)
	}
	if f.Bias() != nil {
		newBias = f.Bias().CloneTo(g)
	}

	return &fcLayer{
		weights: newWeights,
		bias:    newBias,
		act:     f.act,
	}
}

func (f *fcLayer) Activation() *Activation {
	return f.act
}

func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

func (f *fcLayer) Weights() *G.Node {
	return f.weights
}

// addFCLayers adds fully connected hidden layers to the computational
// graph g, returning the layers. The final hidden layer has
// hiddenSizes[len(hiddenSizes)-1] units.
func addFCLayers(g *G.ExprGraph, features int, hiddenSizes []int,
	biases []bool, activations []*Activation, init G.InitWFn,
	prefix string) ([]Layer, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("addfclayers: must have one activation "+
			"per hidden layer \n\twant(%v) \n\thave(%v)",
			len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("addfclayers: must specify whether each "+
			"hidden layer should have a bias \n\twant(%v) \n\thave(%v)",
			len(hiddenSizes), len(biases))
	}

	layers := make([]Layer, 0, len(hiddenSizes))
	in := features
	for i, units := range hiddenSizes {
		layer := newFCLayer(g, in, units, activations[i], init, prefix, i)
		if !biases[i] {
			layer.bias = nil
		}
		layers = append(layers, layer)
		in = units
	}

	return layers, nil
}
