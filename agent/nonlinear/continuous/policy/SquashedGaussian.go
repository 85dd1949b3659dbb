// Package policy implements policies for continuous-action agents
// using neural network function approximation.
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

// For stability, the standard deviation of the Gaussian distribution
// should be offset from 0.
const stdOffset float64 = 1e-3

// SquashedGaussian implements a tanh-squashed Gaussian policy over
// bounded continuous actions, parameterized by a network.GaussianMLP.
//
// The network predicts the mean μ and log standard deviation of a
// diagonal Gaussian. Actions are sampled with the reparameterization
// trick: the policy's graph takes standard normal noise ɛ as an
// explicit input node and computes
//
//	x      := μ + σ ⊙ ɛ
//	action := tanh(x) ⊙ scale + bias
//
// where scale and bias map the (-1, 1) image of tanh onto the
// environment's action bounds. The log density of the bounded action
// is the Gaussian log density of x minus the change-of-variables
// correction Σ_d log(scale·(1 − tanh(x)_d²) + 1e-6), computed in the
// same graph so that it stays differentiable with respect to the
// network weights.
//
// A policy with batch size 1 selects actions on each timestep. A
// policy with a larger batch size exposes its action and log density
// nodes for use inside external loss graphs and cannot select
// actions.
type SquashedGaussian struct {
	vm  G.VM
	net network.NeuralNet

	noise   *G.Node
	actions *G.Node
	logProb *G.Node

	actionsVal G.Value
	logProbVal G.Value
	meanVal    G.Value

	normal     distmv.Rander
	actionDims int
	batchSize  int
	scale      float64
	bias       float64

	eval bool
}

// NewSquashedGaussian returns a new SquashedGaussian policy selecting
// actions from the argument environment. The policy network has
// hidden layers of sizes hiddenSizes feeding separate linear mean and
// log standard deviation heads. The init parameter determines the
// weight initialization scheme and seed the seed of the policy's
// noise sampler.
func NewSquashedGaussian(env environment.Environment, batchSize int,
	hiddenSizes []int, biases []bool, activations []*network.Activation,
	init G.InitWFn, seed uint64) (*SquashedGaussian, error) {
	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("newsquashedgaussian: actions must be " +
			"continuous")
	}

	scale, bias, err := actionScaleBias(env)
	if err != nil {
		return nil, fmt.Errorf("newsquashedgaussian: %v", err)
	}

	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()

	net, err := network.NewGaussianMLP(features, batchSize, actionDims,
		G.NewGraph(), hiddenSizes, biases, init, activations, "Policy")
	if err != nil {
		return nil, fmt.Errorf("newsquashedgaussian: could not create "+
			"network: %v", err)
	}

	pol, err := fromNetwork(net, actionDims, batchSize, scale, bias, seed)
	if err != nil {
		return nil, fmt.Errorf("newsquashedgaussian: %v", err)
	}
	return pol, nil
}

// fromNetwork builds the sampling and log density graph nodes on top
// of an existing GaussianMLP
func fromNetwork(net network.NeuralNet, actionDims, batchSize int,
	scale, bias float64, seed uint64) (*SquashedGaussian, error) {
	g := net.Graph()

	mean := net.Prediction()[0]
	logStd := net.Prediction()[1]

	// Offset the standard deviation for numerical stability
	offset := G.NewConstant(stdOffset)
	std := G.Must(G.Exp(logStd))
	std = G.Must(G.Add(offset, std))

	noise := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithName("PolicyNoise"),
		G.WithShape(batchSize, actionDims),
		G.WithInit(G.Zeroes()),
	)

	// Reparameterized sample and its bounded image
	x := G.Must(G.HadamardProd(std, noise))
	x = G.Must(G.Add(mean, x))
	squashed := G.Must(G.Tanh(x))

	scaleNode := G.NewConstant(scale, G.WithName("PolicyScale"))
	actions := G.Must(G.HadamardProd(scaleNode, squashed))
	if bias != 0 {
		biasNode := G.NewConstant(bias, G.WithName("PolicyBias"))
		actions = G.Must(G.Add(actions, biasNode))
	}

	logProb := op.GaussianLogPdf(mean, std, x)
	correction := op.TanhCorrection(squashed, scale)
	logProb = G.Must(G.Sub(logProb, correction))

	// Standard normal for drawing the noise input
	means := make([]float64, actionDims)
	stds := mat.NewDiagDense(actionDims, floatutils.Ones(actionDims))
	source := rand.NewSource(seed)
	normal, ok := distmv.NewNormal(means, stds, source)
	if !ok {
		return nil, fmt.Errorf("could not create standard normal for " +
			"action sampling")
	}

	pol := &SquashedGaussian{
		net:        net,
		noise:      noise,
		actions:    actions,
		logProb:    logProb,
		normal:     normal,
		actionDims: actionDims,
		batchSize:  batchSize,
		scale:      scale,
		bias:       bias,
	}

	G.Read(pol.actions, &pol.actionsVal)
	G.Read(pol.logProb, &pol.logProbVal)
	G.Read(mean, &pol.meanVal)

	// Action selection requires a batch size of 1
	if batchSize == 1 {
		pol.vm = G.NewTapeMachine(g)
	}

	return pol, nil
}

// CloneWithBatch clones a SquashedGaussian policy into a fresh graph
// with a new batch size. Network weights are copied, not shared.
func (s *SquashedGaussian) CloneWithBatch(batchSize int,
	seed uint64) (*SquashedGaussian, error) {
	net, err := s.net.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not clone "+
			"network: %v", err)
	}

	return fromNetwork(net, s.actionDims, batchSize, s.scale, s.bias, seed)
}

// SelectAction selects and returns an action at the argument timestep.
// In evaluation mode the noise is zeroed, so the action is the bounded
// image of the distribution mean.
func (s *SquashedGaussian) SelectAction(t timestep.TimeStep) *mat.VecDense {
	if s.batchSize != 1 {
		panic(fmt.Sprintf("selectaction: action selection requires a "+
			"policy with batch size 1 \n\twant(1) \n\thave(%v)",
			s.batchSize))
	}

	obs := t.Observation.RawVector().Data
	if err := s.net.SetInput(obs); err != nil {
		panic(fmt.Sprintf("selectaction: cannot set input: %v", err))
	}

	var noise []float64
	if s.eval {
		noise = make([]float64, s.actionDims)
	} else {
		noise = s.normal.Rand(nil)
	}
	if err := s.SetNoise(noise); err != nil {
		panic(fmt.Sprintf("selectaction: cannot set noise: %v", err))
	}

	if err := s.vm.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: could not run policy VM: %v",
			err))
	}
	defer s.vm.Reset()

	action := make([]float64, s.actionDims)
	copy(action, s.actionsVal.Data().([]float64))
	return mat.NewVecDense(s.actionDims, action)
}

// SampleNoise draws one standard normal noise vector per batch row,
// returning the draws flattened in row major order
func (s *SquashedGaussian) SampleNoise() []float64 {
	noise := make([]float64, s.batchSize*s.actionDims)
	for i := 0; i < s.batchSize; i++ {
		copy(noise[i*s.actionDims:(i+1)*s.actionDims], s.normal.Rand(nil))
	}
	return noise
}

// SetNoise sets the value of the policy's noise input node
func (s *SquashedGaussian) SetNoise(noise []float64) error {
	if len(noise) != s.batchSize*s.actionDims {
		return fmt.Errorf("setnoise: invalid number of noise values"+
			"\n\twant(%v)\n\thave(%v)", s.batchSize*s.actionDims,
			len(noise))
	}
	noiseTensor := tensor.New(
		tensor.WithBacking(noise),
		tensor.WithShape(s.batchSize, s.actionDims),
	)
	return G.Let(s.noise, noiseTensor)
}

// Actions returns the node holding the bounded sampled actions, of
// shape (batch, action dimensions)
func (s *SquashedGaussian) Actions() *G.Node {
	return s.actions
}

// LogProb returns the node holding the log density of the sampled
// actions, a vector with one entry per batch row
func (s *SquashedGaussian) LogProb() *G.Node {
	return s.logProb
}

// LogProbVal returns the value of the node returned by LogProb after
// a VM run
func (s *SquashedGaussian) LogProbVal() G.Value {
	return s.logProbVal
}

// ActionsVal returns the value of the node returned by Actions after
// a VM run
func (s *SquashedGaussian) ActionsVal() G.Value {
	return s.actionsVal
}

// Network returns the network of the SquashedGaussian
func (s *SquashedGaussian) Network() network.NeuralNet {
	return s.net
}

// ActionDims returns the number of action dimensions
func (s *SquashedGaussian) ActionDims() int {
	return s.actionDims
}

// Scale returns the half-width of the action bounds
func (s *SquashedGaussian) Scale() float64 {
	return s.scale
}

// Eval sets the policy to evaluation mode
func (s *SquashedGaussian) Eval() { s.eval = true }

// Train sets the policy to training mode
func (s *SquashedGaussian) Train() { s.eval = false }

// IsEval indicates whether the policy is in evaluation mode
func (s *SquashedGaussian) IsEval() bool { return s.eval }

// Close releases the policy's VM, if any
func (s *SquashedGaussian) Close() error {
	if s.vm == nil {
		return nil
	}
	return s.vm.Close()
}

// actionScaleBias computes the affine map taking the (-1, 1) image of
// tanh onto an environment's action bounds. All action dimensions must
// share the same bounds.
func actionScaleBias(env environment.Environment) (float64, float64,
	error) {
	spec := env.ActionSpec()
	lower := spec.LowerBound
	upper := spec.UpperBound

	scale := (upper.AtVec(0) - lower.AtVec(0)) / 2.0
	bias := (upper.AtVec(0) + lower.AtVec(0)) / 2.0
	for i := 1; i < lower.Len(); i++ {
		s := (upper.AtVec(i) - lower.AtVec(i)) / 2.0
		b := (upper.AtVec(i) + lower.AtVec(i)) / 2.0
		if s != scale || b != bias {
			return 0, 0, fmt.Errorf("actionscalebias: action bounds " +
				"must be identical across dimensions")
		}
	}
	if scale <= 0 {
		return 0, 0, fmt.Errorf("actionscalebias: action bounds must "+
			"have positive width \n\thave(%v)", scale*2)
	}

	return scale, bias, nil
}
