// Package network implements neural network function approximators.
//
// Networks in this package are black-box differentiable functions:
// they expose a forward contract (SetInput + Prediction/Output), the
// learnable parameters needed for a gradient-update contract
// (Learnables/Model, optimized by an external gorgonia Solver), and
// cloning for constructing lagged or differently-batched copies of a
// network. Online parameters are written only by Solvers; target
// copies are written only through Set and Polyak.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet implements a neural network function approximator
type NeuralNet interface {
	// Graph returns the computational graph the network is built in
	Graph() *G.ExprGraph

	// CloneWithBatch clones the network into a fresh graph with a new
	// input batch size. Weights are copied, not shared.
	CloneWithBatch(int) (NeuralNet, error)

	// BatchSize returns the number of rows in one network input
	BatchSize() int

	// Features returns the number of features in a single input row
	Features() int

	// SetInput sets the value of the network's input node before a VM
	// run. The input is batchSize*features values in row major order.
	SetInput([]float64) error

	// Learnables returns the nodes holding learnable parameters
	Learnables() G.Nodes

	// Model returns the learnable nodes with their gradients, for
	// passing to a Solver
	Model() []G.ValueGrad

	// Output returns the values of the output nodes after a VM run
	Output() []G.Value

	// Prediction returns the nodes holding the network outputs
	Prediction() []*G.Node
}

// Set sets the weights of dest to be equal to the weights of source.
// Networks must share an architecture.
func Set(dest, source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: networks have different numbers of "+
			"learnables \n\twant(%v)\n\thave(%v)", len(nodes),
			len(sourceNodes))
	}

	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Polyak sets the weights of dest to an exponential average between
// its existing weights and the weights of source:
//
//	dest ← tau*source + (1-tau)*dest
//
// With tau = 1, Polyak is an exact copy; with tau = 0 it leaves dest
// unchanged. Target networks are written only through this function
// (or Set), never by a Solver, so their parameters are always a convex
// combination of their previous value and the online network's value.
func Polyak(dest, source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("polyak: networks have different numbers of "+
			"learnables \n\twant(%v)\n\thave(%v)", len(nodes),
			len(sourceNodes))
	}

	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		newWeights, err := weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		if err := G.Let(nodes[i], newWeights); err != nil {
			return err
		}
	}
	return nil
}
