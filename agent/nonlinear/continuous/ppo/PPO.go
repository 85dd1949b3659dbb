// Package ppo implements the Proximal Policy Optimization algorithm
// for continuous action spaces.
//
// PPO is an on-policy algorithm: the agent collects an epoch of
// experience with its current Gaussian policy, computes GAE(λ)
// advantages and rewards-to-go, and then takes several gradient steps
// on a clipped surrogate objective that penalizes moving the policy
// too far from the one that collected the data.
package ppo

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"deeprl/agent/nonlinear/continuous/policy"
	"deeprl/buffer/gae"
	"deeprl/checkpoint"
	"deeprl/environment"
	"deeprl/network"
	ts "deeprl/timestep"
	"deeprl/utils/op"
)

// PPO implements the Proximal Policy Optimization algorithm with
// generalized advantage estimation. The actor loss is the clipped
// surrogate objective
//
//	-mean(min(ρ·Â, clip(ρ, 1-ε, 1+ε)·Â)) - c·mean(entropy)
//
// where the importance ratio ρ is computed in-graph from the current
// policy's log density minus the stored behaviour log density.
//
// When an epoch of data ends mid-episode, the rest of that episode is
// optionally played out with the updated policy and its data
// discarded, so that every epoch starts at the beginning of an
// episode.
type PPO struct {
	// Batch-1 policy for action selection; also computes the log
	// density of each selected action for the buffer
	behaviour   *policy.GaussianMLP
	behaviourVM G.VM

	// Epoch-sized policy on which the surrogate loss is built
	trainPolicy  *policy.GaussianMLP
	oldLogProb   *G.Node // Input node: log densities at collection time
	advantages   *G.Node // Input node: normalized GAE(λ) advantages
	policyVM     G.VM
	policySolver G.Solver

	// State value function and its epoch-sized training copy
	valueFn        network.NeuralNet
	valueVM        G.VM
	trainValueFn   network.NeuralNet
	valueTargets   *G.Node
	trainValueVM   G.VM
	valueSolver    G.Solver
	valueGradSteps int

	policyEpochs int

	buffer           *gae.Buffer
	epochLength      int
	currentEpochStep int
	completedEpochs  int

	// When true, the current episode is being played out only to reach
	// its end: the epoch is already full and the data is discarded
	finishingEpisode        bool
	finishEpisodeOnEpochEnd bool

	prevStep   ts.TimeStep
	actionDims int

	eval bool
}

// New creates and returns a new PPO agent
func New(env environment.Environment, config Config,
	seed int64) (*PPO, error) {
	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("ppo: cannot use non-continuous actions")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()
	epochLength := config.EpochLength
	init := config.InitWFn.InitWFn()

	buffer := gae.New(features, actionDims, epochLength, config.Lambda,
		config.Gamma)

	// Behaviour policy and an external VM for computing the log
	// density of selected actions
	behaviour, err := policy.NewGaussianMLP(env, 1, config.PolicyLayers,
		config.PolicyBiases, config.PolicyActivations, init,
		uint64(seed))
	if err != nil {
		return nil, fmt.Errorf("ppo: could not create behaviour "+
			"policy: %v", err)
	}
	behaviourVM := G.NewTapeMachine(behaviour.Network().Graph())

	// Training policy and the clipped surrogate objective
	trainPolicy, err := policy.NewGaussianMLP(env, epochLength,
		config.PolicyLayers, config.PolicyBiases,
		config.PolicyActivations, init, uint64(seed)+1)
	if err != nil {
		return nil, fmt.Errorf("ppo: could not create training "+
			"policy: %v", err)
	}
	gPolicy := trainPolicy.Network().Graph()

	oldLogProb := G.NewVector(gPolicy, tensor.Float64,
		G.WithShape(epochLength), G.WithName("OldLogProb"))
	advantages := G.NewVector(gPolicy, tensor.Float64,
		G.WithShape(epochLength), G.WithName("Advantages"))

	ratio := G.Must(G.Sub(trainPolicy.LogPdfNode(), oldLogProb))
	ratio = G.Must(G.Exp(ratio))

	clipped, err := op.Clip(ratio, 1-config.Epsilon, 1+config.Epsilon)
	if err != nil {
		return nil, fmt.Errorf("ppo: could not clip importance "+
			"ratios: %v", err)
	}

	surrogate, err := op.Min(
		G.Must(G.HadamardProd(ratio, advantages)),
		G.Must(G.HadamardProd(clipped, advantages)),
	)
	if err != nil {
		return nil, fmt.Errorf("ppo: could not compute surrogate "+
			"objective: %v", err)
	}

	policyLoss := G.Must(G.Neg(G.Must(G.Mean(surrogate))))
	if config.EntropyCoeff > 0 {
		bonus := G.Must(G.Mean(trainPolicy.EntropyNode()))
		coeff := G.NewConstant(config.EntropyCoeff,
			G.WithName("EntropyCoeff"))
		bonus = G.Must(G.HadamardProd(coeff, bonus))
		policyLoss = G.Must(G.Sub(policyLoss, bonus))
	}

	policyLearnables := trainPolicy.Network().Learnables()
	if _, err := G.Grad(policyLoss, policyLearnables...); err != nil {
		return nil, fmt.Errorf("ppo: could not compute policy "+
			"gradient: %v", err)
	}
	policyVM := G.NewTapeMachine(gPolicy,
		G.BindDualValues(policyLearnables...))

	// State value function for bootstrapping rewards-to-go
	valueFn, err := network.NewMultiHeadMLP(features, 1, 1,
		G.NewGraph(), config.ValueFnLayers, config.ValueFnBiases, init,
		config.ValueFnActivations)
	if err != nil {
		return nil, fmt.Errorf("ppo: could not create value "+
			"function: %v", err)
	}
	valueVM := G.NewTapeMachine(valueFn.Graph())

	// Epoch-sized value function regressed on rewards-to-go
	trainValueFn, err := valueFn.CloneWithBatch(epochLength)
	if err != nil {
		return nil, fmt.Errorf("ppo: could not create training value "+
			"function: %v", err)
	}

	valueTargets := G.NewMatrix(trainValueFn.Graph(), tensor.Float64,
		G.WithShape(trainValueFn.Prediction()[0].Shape()...),
		G.WithName("ValueTargets"))

	valueLoss := G.Must(G.Sub(trainValueFn.Prediction()[0], valueTargets))
	valueLoss = G.Must(G.Square(valueLoss))
	valueLoss = G.Must(G.Mean(valueLoss))

	if _, err := G.Grad(valueLoss,
		trainValueFn.Learnables()...); err != nil {
		return nil, fmt.Errorf("ppo: could not compute value function "+
			"gradient: %v", err)
	}
	trainValueVM := G.NewTapeMachine(trainValueFn.Graph(),
		G.BindDualValues(trainValueFn.Learnables()...))

	return &PPO{
		behaviour:   behaviour,
		behaviourVM: behaviourVM,

		trainPolicy:  trainPolicy,
		oldLogProb:   oldLogProb,
		advantages:   advantages,
		policyVM:     policyVM,
		policySolver: config.PolicySolver.Solver,

		valueFn:        valueFn,
		valueVM:        valueVM,
		trainValueFn:   trainValueFn,
		valueTargets:   valueTargets,
		trainValueVM:   trainValueVM,
		valueSolver:    config.ValueFnSolver.Solver,
		valueGradSteps: config.ValueGradSteps,

		policyEpochs: config.PolicyEpochs,

		buffer:      buffer,
		epochLength: epochLength,

		finishEpisodeOnEpochEnd: config.FinishEpisodeOnEpochEnd,

		actionDims: actionDims,
	}, nil
}

// ObserveFirst observes and records the first episodic timestep
func (p *PPO) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observefirst: timestep is not first "+
			"(number %d)", t.Number)
	}
	p.prevStep = t
	return nil
}

// Observe observes and records any timestep other than the first
// timestep. The transition is stored in the epoch buffer together with
// the value estimate of the previous state and the log density of the
// action; when the episode or epoch ends, the current trajectory's
// advantages are computed.
func (p *PPO) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if p.finishingEpisode {
		p.prevStep = nextStep
		return nil
	}
	if action.Len() != p.actionDims {
		return fmt.Errorf("observe: invalid action dimensions "+
			"\n\twant(%v)\n\thave(%v)", p.actionDims, action.Len())
	}

	obs := p.prevStep.Observation.RawVector().Data
	value, err := p.stateValue(obs)
	if err != nil {
		return fmt.Errorf("observe: could not estimate state value: %v",
			err)
	}

	act := action.(*mat.VecDense).RawVector().Data
	logProb, err := p.actionLogProb(obs, act)
	if err != nil {
		return fmt.Errorf("observe: could not compute action log "+
			"density: %v", err)
	}

	if err := p.buffer.Store(obs, act, nextStep.Reward, value,
		logProb); err != nil {
		return fmt.Errorf("observe: could not store transition: %v", err)
	}

	p.prevStep = nextStep
	p.currentEpochStep++

	epochDone := p.currentEpochStep == p.epochLength
	if nextStep.TerminalEnd() {
		p.buffer.FinishPath(0.0)
	} else if nextStep.Last() || epochDone {
		// The trajectory was cut off, so bootstrap with the value
		// estimate of the state it was cut off at
		lastVal, err := p.stateValue(nextStep.Observation.RawVector().Data)
		if err != nil {
			return fmt.Errorf("observe: could not estimate cutoff "+
				"state value: %v", err)
		}
		p.buffer.FinishPath(lastVal)
		p.finishingEpisode = epochDone && !nextStep.Last() &&
			p.finishEpisodeOnEpochEnd
	}

	return nil
}

// Step updates the weights of the agent. Step is a no-op until a full
// epoch of experience has been collected; it then takes policyEpochs
// gradient steps on the clipped surrogate objective and valueGradSteps
// on the value function loss, and empties the buffer.
func (p *PPO) Step() error {
	if p.currentEpochStep < p.epochLength || p.eval {
		return nil
	}

	obs, act, adv, ret, oldLp, err := p.buffer.Get()
	if err != nil {
		return fmt.Errorf("step: could not drain buffer: %v", err)
	}
	p.currentEpochStep = 0
	p.completedEpochs++

	if err := p.updatePolicy(obs, act, adv, oldLp); err != nil {
		return fmt.Errorf("step: %v", err)
	}
	if err := p.updateValueFn(obs, ret); err != nil {
		return fmt.Errorf("step: %v", err)
	}

	// The behaviour policy collects the next epoch with the new weights
	if err := network.Set(p.behaviour.Network(),
		p.trainPolicy.Network()); err != nil {
		return fmt.Errorf("step: could not update behaviour policy: %v",
			err)
	}
	if err := network.Set(p.valueFn, p.trainValueFn); err != nil {
		return fmt.Errorf("step: could not update value function: %v",
			err)
	}

	return nil
}

// updatePolicy takes policyEpochs gradient steps on the clipped
// surrogate objective
func (p *PPO) updatePolicy(obs, act, adv, oldLp []float64) error {
	advTensor := tensor.New(tensor.WithBacking(adv),
		tensor.WithShape(p.epochLength))
	if err := G.Let(p.advantages, advTensor); err != nil {
		return fmt.Errorf("could not set advantages: %v", err)
	}

	oldLpTensor := tensor.New(tensor.WithBacking(oldLp),
		tensor.WithShape(p.epochLength))
	if err := G.Let(p.oldLogProb, oldLpTensor); err != nil {
		return fmt.Errorf("could not set behaviour log densities: %v",
			err)
	}

	for i := 0; i < p.policyEpochs; i++ {
		if _, err := p.trainPolicy.LogPdfOf(obs, act); err != nil {
			return fmt.Errorf("could not set surrogate inputs: %v", err)
		}
		if err := p.policyVM.RunAll(); err != nil {
			return fmt.Errorf("could not run policy update: %v", err)
		}
		if err := p.policySolver.Step(
			p.trainPolicy.Network().Model()); err != nil {
			return fmt.Errorf("could not step policy solver: %v", err)
		}
		p.policyVM.Reset()
	}
	return nil
}

// updateValueFn takes valueGradSteps gradient steps on the value
// function's MSE toward the rewards-to-go
func (p *PPO) updateValueFn(obs, ret []float64) error {
	if err := p.trainValueFn.SetInput(obs); err != nil {
		return fmt.Errorf("could not set value function states: %v", err)
	}

	targets := tensor.New(tensor.WithBacking(ret),
		tensor.WithShape(p.valueTargets.Shape()...))
	if err := G.Let(p.valueTargets, targets); err != nil {
		return fmt.Errorf("could not set value targets: %v", err)
	}

	for i := 0; i < p.valueGradSteps; i++ {
		if err := p.trainValueVM.RunAll(); err != nil {
			return fmt.Errorf("could not run value function update: %v",
				err)
		}
		if err := p.valueSolver.Step(p.trainValueFn.Model()); err != nil {
			return fmt.Errorf("could not step value solver: %v", err)
		}
		p.trainValueVM.Reset()
	}
	return nil
}

// stateValue runs the value function on a single state observation
func (p *PPO) stateValue(obs []float64) (float64, error) {
	if err := p.valueFn.SetInput(obs); err != nil {
		return 0, err
	}
	if err := p.valueVM.RunAll(); err != nil {
		return 0, err
	}
	defer p.valueVM.Reset()

	value := p.valueFn.Output()[0].Data().([]float64)
	if len(value) != 1 {
		return 0, fmt.Errorf("multiple values predicted for a single "+
			"state \n\twant(1)\n\thave(%v)", len(value))
	}
	return value[0], nil
}

// actionLogProb computes the log density of a single action in a
// single state under the behaviour policy
func (p *PPO) actionLogProb(obs, action []float64) (float64, error) {
	if _, err := p.behaviour.LogPdfOf(obs, action); err != nil {
		return 0, err
	}
	if err := p.behaviourVM.RunAll(); err != nil {
		return 0, err
	}
	defer p.behaviourVM.Reset()

	logProb := p.behaviour.LogPdfVal().Data().([]float64)
	if len(logProb) != 1 {
		return 0, fmt.Errorf("multiple log densities computed for a "+
			"single action \n\twant(1)\n\thave(%v)", len(logProb))
	}
	return logProb[0], nil
}

// SelectAction returns an action selected by the behaviour policy at
// the argument timestep
func (p *PPO) SelectAction(t ts.TimeStep) *mat.VecDense {
	return p.behaviour.SelectAction(t)
}

// EndEpisode performs cleanup at the end of an episode. If the
// previous epoch filled mid-episode, the discarded tail of that
// episode has now been played out and recording may resume.
func (p *PPO) EndEpisode() {
	p.finishingEpisode = false
}

// CompletedEpochs returns the number of epochs of data the agent has
// updated on
func (p *PPO) CompletedEpochs() int { return p.completedEpochs }

// Eval sets the agent into evaluation mode, where the policy mean is
// used for action selection
func (p *PPO) Eval() { p.eval = true; p.behaviour.Eval() }

// Train sets the agent into training mode
func (p *PPO) Train() { p.eval = false; p.behaviour.Train() }

// IsEval indicates whether the agent is in evaluation mode
func (p *PPO) IsEval() bool { return p.eval }

// Save writes the weights of the actor and the value function to
// files in dir
func (p *PPO) Save(dir string) error {
	if err := checkpoint.Save(filepath.Join(dir, "actor.bin"),
		p.trainPolicy.Network()); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := checkpoint.Save(filepath.Join(dir, "valueFn.bin"),
		p.trainValueFn); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Load restores the agent's weights from files previously written by
// Save. If any file is missing or unreadable, a warning is printed and
// the agent keeps its current (freshly initialized) weights.
func (p *PPO) Load(dir string) error {
	actorSnap, err := checkpoint.Load(filepath.Join(dir, "actor.bin"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load checkpoint, "+
			"starting fresh: %v\n", err)
		return nil
	}
	valueSnap, err := checkpoint.Load(filepath.Join(dir, "valueFn.bin"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load checkpoint, "+
			"starting fresh: %v\n", err)
		return nil
	}

	if err := checkpoint.Restore(p.trainPolicy.Network(),
		actorSnap); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	if err := checkpoint.Restore(p.trainValueFn, valueSnap); err != nil {
		return fmt.Errorf("load: %v", err)
	}

	// Action selection and bootstrapping use the restored weights
	if err := network.Set(p.behaviour.Network(),
		p.trainPolicy.Network()); err != nil {
		return fmt.Errorf("load: could not update behaviour policy: %v",
			err)
	}
	if err := network.Set(p.valueFn, p.trainValueFn); err != nil {
		return fmt.Errorf("load: could not update value function: %v",
			err)
	}
	return nil
}

// Close releases all VMs held by the agent
func (p *PPO) Close() error {
	vms := []G.VM{p.behaviourVM, p.policyVM, p.valueVM, p.trainValueVM}
	for _, vm := range vms {
		if err := vm.Close(); err != nil {
			return err
		}
	}
	return p.behaviour.Close()
}
