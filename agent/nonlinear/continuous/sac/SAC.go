// Package sac implements the Soft Actor-Critic algorithm for
// continuous action spaces.
//
// SAC learns a tanh-squashed Gaussian policy together with twin
// action-value critics. The critics regress toward an entropy
// regularized bootstrap target computed from target copies of the
// critics, the policy maximizes the entropy regularized minimum of
// the critics, and the entropy temperature α may itself be adjusted
// so that the policy's entropy tracks a target value.
package sac

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"deeprl/agent/nonlinear/continuous/policy"
	"deeprl/checkpoint"
	"deeprl/environment"
	"deeprl/expreplay"
	"deeprl/network"
	ts "deeprl/timestep"
	"deeprl/utils/op"
)

// SAC implements the Soft Actor-Critic algorithm. The agent spreads
// its computation over separate expression graphs:
//
//   - a batch-1 policy graph for selecting actions
//   - a batch-B policy graph for sampling next-state actions and their
//     log densities when computing critic targets
//   - a critic graph holding both online critics and their joint loss
//   - one graph per target critic, run forward only
//   - an actor graph holding a batch-B policy, read-only copies of
//     both critics, and the policy loss
//   - a scalar graph for the entropy temperature
//
// Values cross between graphs as []float64, never as shared nodes, so
// no gradient flows between the stages of an update.
type SAC struct {
	// Action selection
	behaviour *policy.SquashedGaussian

	// Samples a' ~ π(·|s') for critic targets
	sampler   *policy.SquashedGaussian
	samplerVM G.VM

	// Online critics and their joint loss
	q1            network.ActionValue
	q2            network.ActionValue
	criticTarget  *G.Node  // Input node holding the bootstrap targets
	criticLossVal *G.Value // Joint loss value read at each critic step
	criticVM      G.VM
	criticSolver  G.Solver

	// Target critics, updated only by Polyak averaging
	targetQ1   network.NeuralNet
	targetQ2   network.NeuralNet
	targetQ1VM G.VM
	targetQ2VM G.VM

	// Actor graph
	actor       *policy.SquashedGaussian
	actorQ1     network.NeuralNet // Read-only critic copies
	actorQ2     network.NeuralNet
	actorAlpha  *G.Node // Input node holding the current temperature
	actorVM     G.VM
	actorSolver G.Solver

	// Entropy temperature
	logAlpha      *G.Node
	entropyGap    *G.Node // Input node: mean log π + target entropy
	alphaVM       G.VM
	alphaSolver   G.Solver
	learnAlpha    bool
	alpha         float64
	targetEntropy float64

	// Target network update schedule
	tau                  float64
	targetUpdateInterval int
	gradientSteps        int

	replay     expreplay.ExperienceReplayer
	discount   float64
	batchSize  int
	actionDims int
	features   int

	prevStep ts.TimeStep

	eval bool
}

// New creates and returns a new SAC agent
func New(env environment.Environment, config Config,
	seed int64) (*SAC, error) {
	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("sac: cannot use non-continuous actions")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.InitialAlpha <= 0 && config.LearnAlpha {
		return nil, fmt.Errorf("sac: a learned temperature requires a " +
			"positive initial value")
	}

	batchSize := config.BatchSize()
	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()
	init := config.InitWFn.InitWFn()

	// Behaviour policy for selecting actions
	behaviour, err := policy.NewSquashedGaussian(env, 1,
		config.PolicyLayers, config.PolicyBiases,
		config.PolicyActivations, init, uint64(seed))
	if err != nil {
		return nil, fmt.Errorf("sac: could not create behaviour "+
			"policy: %v", err)
	}

	// Next-state action sampler for critic targets
	sampler, err := behaviour.CloneWithBatch(batchSize, uint64(seed)+1)
	if err != nil {
		return nil, fmt.Errorf("sac: could not create next-state "+
			"sampler: %v", err)
	}
	samplerVM := G.NewTapeMachine(sampler.Network().Graph())

	// Online critics share a graph so that one solver can update both
	gCritic := G.NewGraph()
	q1, err := network.NewQMLP(features, actionDims, batchSize, gCritic,
		config.CriticLayers, config.CriticBiases, init,
		config.CriticActivations, "Q1")
	if err != nil {
		return nil, fmt.Errorf("sac: could not create first critic: %v",
			err)
	}
	q2, err := network.NewQMLP(features, actionDims, batchSize, gCritic,
		config.CriticLayers, config.CriticBiases, init,
		config.CriticActivations, "Q2")
	if err != nil {
		return nil, fmt.Errorf("sac: could not create second critic: %v",
			err)
	}

	criticTarget := G.NewVector(gCritic, tensor.Float64,
		G.WithShape(batchSize), G.WithName("CriticTarget"))

	loss1 := G.Must(G.Ravel(q1.Prediction()[0]))
	loss1 = G.Must(G.Sub(loss1, criticTarget))
	loss1 = G.Must(G.Square(loss1))
	loss1 = G.Must(G.Mean(loss1))

	loss2 := G.Must(G.Ravel(q2.Prediction()[0]))
	loss2 = G.Must(G.Sub(loss2, criticTarget))
	loss2 = G.Must(G.Square(loss2))
	loss2 = G.Must(G.Mean(loss2))

	criticLoss := G.Must(G.Add(loss1, loss2))
	criticLossVal := new(G.Value)
	G.Read(criticLoss, criticLossVal)

	criticLearnables := make(G.Nodes, 0,
		len(q1.Learnables())+len(q2.Learnables()))
	criticLearnables = append(criticLearnables, q1.Learnables()...)
	criticLearnables = append(criticLearnables, q2.Learnables()...)
	if _, err := G.Grad(criticLoss, criticLearnables...); err != nil {
		return nil, fmt.Errorf("sac: could not compute critic "+
			"gradient: %v", err)
	}
	criticVM := G.NewTapeMachine(gCritic,
		G.BindDualValues(criticLearnables...))

	// Target critics start as exact copies of the online critics
	targetQ1, err := q1.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("sac: could not create first target "+
			"critic: %v", err)
	}
	targetQ2, err := q2.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("sac: could not create second target "+
			"critic: %v", err)
	}
	targetQ1VM := G.NewTapeMachine(targetQ1.Graph())
	targetQ2VM := G.NewTapeMachine(targetQ2.Graph())

	// Actor graph: a batch policy feeding read-only critic copies
	actor, err := behaviour.CloneWithBatch(batchSize, uint64(seed)+2)
	if err != nil {
		return nil, fmt.Errorf("sac: could not create actor: %v", err)
	}
	gActor := actor.Network().Graph()

	criticState := G.NewMatrix(gActor, tensor.Float64,
		G.WithShape(batchSize, features), G.WithName("CriticState"),
		G.WithInit(G.Zeroes()))
	actorQ1, err := q1.CloneWithInputsTo(criticState, actor.Actions(),
		gActor)
	if err != nil {
		return nil, fmt.Errorf("sac: could not embed first critic in "+
			"actor graph: %v", err)
	}
	actorQ2, err := q2.CloneWithInputsTo(criticState, actor.Actions(),
		gActor)
	if err != nil {
		return nil, fmt.Errorf("sac: could not embed second critic in "+
			"actor graph: %v", err)
	}

	minQ, err := op.Min(actorQ1.Prediction()[0], actorQ2.Prediction()[0])
	if err != nil {
		return nil, fmt.Errorf("sac: could not compute minimum critic "+
			"value: %v", err)
	}
	minQ = G.Must(G.Ravel(minQ))

	actorAlpha := G.NewScalar(gActor, tensor.Float64,
		G.WithName("Alpha"))
	actorLoss := G.Must(G.HadamardProd(actorAlpha, actor.LogProb()))
	actorLoss = G.Must(G.Sub(actorLoss, minQ))
	actorLoss = G.Must(G.Mean(actorLoss))

	actorLearnables := actor.Network().Learnables()
	if _, err := G.Grad(actorLoss, actorLearnables...); err != nil {
		return nil, fmt.Errorf("sac: could not compute actor "+
			"gradient: %v", err)
	}
	actorVM := G.NewTapeMachine(gActor,
		G.BindDualValues(actorLearnables...))

	// Entropy temperature graph: loss = -logα · (mean log π + H̄)
	targetEntropy := config.TargetEntropy
	if targetEntropy == 0 {
		targetEntropy = -float64(actionDims)
	}

	var logAlpha, entropyGap *G.Node
	var alphaVM G.VM
	var alphaSolver G.Solver
	if config.LearnAlpha {
		gAlpha := G.NewGraph()
		logAlpha = G.NewScalar(gAlpha, tensor.Float64,
			G.WithName("LogAlpha"),
			G.WithValue(math.Log(config.InitialAlpha)))
		entropyGap = G.NewScalar(gAlpha, tensor.Float64,
			G.WithName("EntropyGap"))

		alphaLoss := G.Must(G.Mul(logAlpha, entropyGap))
		alphaLoss = G.Must(G.Neg(alphaLoss))
		if _, err := G.Grad(alphaLoss, logAlpha); err != nil {
			return nil, fmt.Errorf("sac: could not compute temperature "+
				"gradient: %v", err)
		}
		alphaVM = G.NewTapeMachine(gAlpha, G.BindDualValues(logAlpha))
		alphaSolver = config.AlphaSolver.Solver
	}

	// Replay buffer. Sampling is gated on one full batch being stored.
	minCapacity := config.ExpReplay.MinReplayCapacity
	if minCapacity < batchSize {
		minCapacity = batchSize
	}
	replay, err := expreplay.New(minCapacity,
		config.ExpReplay.MaxReplayCapacity, features, actionDims,
		batchSize, seed)
	if err != nil {
		return nil, fmt.Errorf("sac: could not create experience "+
			"replay buffer: %v", err)
	}

	return &SAC{
		behaviour: behaviour,

		sampler:   sampler,
		samplerVM: samplerVM,

		q1:            q1,
		q2:            q2,
		criticTarget:  criticTarget,
		criticLossVal: criticLossVal,
		criticVM:      criticVM,
		criticSolver:  config.CriticSolver.Solver,

		targetQ1:   targetQ1,
		targetQ2:   targetQ2,
		targetQ1VM: targetQ1VM,
		targetQ2VM: targetQ2VM,

		actor:       actor,
		actorQ1:     actorQ1,
		actorQ2:     actorQ2,
		actorAlpha:  actorAlpha,
		actorVM:     actorVM,
		actorSolver: config.PolicySolver.Solver,

		logAlpha:      logAlpha,
		entropyGap:    entropyGap,
		alphaVM:       alphaVM,
		alphaSolver:   alphaSolver,
		learnAlpha:    config.LearnAlpha,
		alpha:         config.InitialAlpha,
		targetEntropy: targetEntropy,

		tau:                  config.Tau,
		targetUpdateInterval: config.TargetUpdateInterval,

		replay:     replay,
		discount:   env.DiscountSpec().UpperBound.AtVec(0),
		batchSize:  batchSize,
		actionDims: actionDims,
		features:   features,
	}, nil
}

// ObserveFirst observes and records the first episodic timestep
func (s *SAC) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observefirst: timestep is not first "+
			"(number %d)", t.Number)
	}
	s.prevStep = t
	return nil
}

// Observe observes and records any timestep other than the first
// timestep, storing the induced transition in the replay buffer
func (s *SAC) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if action.Len() != s.actionDims {
		return fmt.Errorf("observe: invalid action dimensions "+
			"\n\twant(%v)\n\thave(%v)", s.actionDims, action.Len())
	}

	transition := ts.NewTransition(s.prevStep, action, nextStep)
	if err := s.replay.Add(transition); err != nil {
		return fmt.Errorf("observe: could not add to replay buffer: %v",
			err)
	}

	s.prevStep = nextStep
	return nil
}

// Step updates the weights of the agent. The update runs the critics,
// the actor, the temperature, and finally the target networks; each
// stage consumes only values computed before it. If the replay buffer
// does not yet hold a full batch, Step is a no-op.
func (s *SAC) Step() error {
	states, actions, rewards, nextStates, dones, err := s.replay.Sample()
	if expreplay.IsEmptyBuffer(err) ||
		expreplay.IsInsufficientSamples(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("step: could not sample from replay "+
			"buffer: %v", err)
	}

	targets, err := s.criticTargets(rewards, nextStates, dones)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}
	if err := s.updateCritics(states, actions, targets); err != nil {
		return fmt.Errorf("step: %v", err)
	}

	meanLogPi, err := s.updateActor(states)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	if s.learnAlpha {
		if err := s.updateAlpha(meanLogPi); err != nil {
			return fmt.Errorf("step: %v", err)
		}
	}

	s.gradientSteps++
	if s.gradientSteps%s.targetUpdateInterval == 0 {
		if err := network.Polyak(s.targetQ1, s.q1, s.tau); err != nil {
			return fmt.Errorf("step: could not update first target "+
				"critic: %v", err)
		}
		if err := network.Polyak(s.targetQ2, s.q2, s.tau); err != nil {
			return fmt.Errorf("step: could not update second target "+
				"critic: %v", err)
		}
	}

	return nil
}

// criticTargets computes the entropy regularized bootstrap target
//
//	y = r + γ(1 - done)(min(Q1'(s', a'), Q2'(s', a')) - α log π(a'|s'))
//
// with a' ~ π(·|s'). The sampler and target critics live in their own
// graphs, so no gradient is tracked through the target.
func (s *SAC) criticTargets(rewards, nextStates,
	dones []float64) ([]float64, error) {
	if err := s.sampler.Network().SetInput(nextStates); err != nil {
		return nil, fmt.Errorf("could not set sampler states: %v", err)
	}
	if err := s.sampler.SetNoise(s.sampler.SampleNoise()); err != nil {
		return nil, fmt.Errorf("could not set sampler noise: %v", err)
	}
	if err := s.samplerVM.RunAll(); err != nil {
		return nil, fmt.Errorf("could not sample next actions: %v", err)
	}
	nextActions := append([]float64{},
		s.sampler.ActionsVal().Data().([]float64)...)
	nextLogProb := append([]float64{},
		s.sampler.LogProbVal().Data().([]float64)...)
	s.samplerVM.Reset()

	q1Vals, err := s.targetCriticValues(s.targetQ1, s.targetQ1VM,
		nextStates, nextActions)
	if err != nil {
		return nil, fmt.Errorf("could not run first target critic: %v",
			err)
	}
	q2Vals, err := s.targetCriticValues(s.targetQ2, s.targetQ2VM,
		nextStates, nextActions)
	if err != nil {
		return nil, fmt.Errorf("could not run second target critic: %v",
			err)
	}

	targets := make([]float64, s.batchSize)
	for i := range targets {
		next := math.Min(q1Vals[i], q2Vals[i]) - s.alpha*nextLogProb[i]
		targets[i] = rewards[i] + s.discount*(1-dones[i])*next
	}
	return targets, nil
}

// targetCriticValues runs a target critic forward on a batch of
// state-action pairs
func (s *SAC) targetCriticValues(net network.NeuralNet, vm G.VM,
	states, actions []float64) ([]float64, error) {
	if err := net.SetInput(states); err != nil {
		return nil, err
	}
	if err := net.(network.ActionValue).SetActions(actions); err != nil {
		return nil, err
	}
	if err := vm.RunAll(); err != nil {
		return nil, err
	}
	defer vm.Reset()

	return append([]float64{}, net.Output()[0].Data().([]float64)...), nil
}

// updateCritics takes one gradient step on both critics' joint MSE
// toward the bootstrap targets
func (s *SAC) updateCritics(states, actions, targets []float64) error {
	if err := s.q1.SetInput(states); err != nil {
		return fmt.Errorf("could not set critic states: %v", err)
	}
	if err := s.q1.SetActions(actions); err != nil {
		return fmt.Errorf("could not set critic actions: %v", err)
	}
	if err := s.q2.SetInput(states); err != nil {
		return fmt.Errorf("could not set critic states: %v", err)
	}
	if err := s.q2.SetActions(actions); err != nil {
		return fmt.Errorf("could not set critic actions: %v", err)
	}

	targetTensor := tensor.New(tensor.WithBacking(targets),
		tensor.WithShape(s.batchSize))
	if err := G.Let(s.criticTarget, targetTensor); err != nil {
		return fmt.Errorf("could not set critic targets: %v", err)
	}

	if err := s.criticVM.RunAll(); err != nil {
		return fmt.Errorf("could not run critic update: %v", err)
	}
	defer s.criticVM.Reset()

	model := make([]G.ValueGrad, 0, len(s.q1.Model())+len(s.q2.Model()))
	model = append(model, s.q1.Model()...)
	model = append(model, s.q2.Model()...)
	if err := s.criticSolver.Step(model); err != nil {
		return fmt.Errorf("could not step critic solver: %v", err)
	}
	return nil
}

// updateActor takes one gradient step on the policy loss
// mean(α log π(a|s) - min(Q1(s, a), Q2(s, a))) with a ~ π(·|s), and
// returns the mean log density of the sampled actions
func (s *SAC) updateActor(states []float64) (float64, error) {
	// The critic copies in the actor graph hold last step's weights
	if err := network.Set(s.actorQ1, s.q1); err != nil {
		return 0, fmt.Errorf("could not refresh first critic copy: %v",
			err)
	}
	if err := network.Set(s.actorQ2, s.q2); err != nil {
		return 0, fmt.Errorf("could not refresh second critic copy: %v",
			err)
	}

	if err := s.actor.Network().SetInput(states); err != nil {
		return 0, fmt.Errorf("could not set actor states: %v", err)
	}
	if err := s.actorQ1.SetInput(states); err != nil {
		return 0, fmt.Errorf("could not set critic copy states: %v", err)
	}
	if err := s.actor.SetNoise(s.actor.SampleNoise()); err != nil {
		return 0, fmt.Errorf("could not set actor noise: %v", err)
	}
	if err := G.Let(s.actorAlpha, s.alpha); err != nil {
		return 0, fmt.Errorf("could not set temperature: %v", err)
	}

	if err := s.actorVM.RunAll(); err != nil {
		return 0, fmt.Errorf("could not run actor update: %v", err)
	}
	logProb := append([]float64{},
		s.actor.LogProbVal().Data().([]float64)...)
	s.actorVM.Reset()

	if err := s.actorSolver.Step(s.actor.Network().Model()); err != nil {
		return 0, fmt.Errorf("could not step actor solver: %v", err)
	}

	// Propagate the new actor weights to the action-selection and
	// next-state sampling policies
	if err := network.Set(s.behaviour.Network(),
		s.actor.Network()); err != nil {
		return 0, fmt.Errorf("could not update behaviour policy: %v", err)
	}
	if err := network.Set(s.sampler.Network(),
		s.actor.Network()); err != nil {
		return 0, fmt.Errorf("could not update sampler policy: %v", err)
	}

	return stat.Mean(logProb, nil), nil
}

// updateAlpha takes one gradient step on the temperature loss
// -logα · (mean log π + H̄) and refreshes the cached temperature
func (s *SAC) updateAlpha(meanLogPi float64) error {
	if err := G.Let(s.entropyGap,
		meanLogPi+s.targetEntropy); err != nil {
		return fmt.Errorf("could not set entropy gap: %v", err)
	}

	if err := s.alphaVM.RunAll(); err != nil {
		return fmt.Errorf("could not run temperature update: %v", err)
	}
	defer s.alphaVM.Reset()

	model := []G.ValueGrad{s.logAlpha}
	if err := s.alphaSolver.Step(model); err != nil {
		return fmt.Errorf("could not step temperature solver: %v", err)
	}

	s.alpha = math.Exp(s.logAlpha.Value().Data().(float64))
	return nil
}

// SelectAction returns an action selected by the behaviour policy at
// the argument timestep
func (s *SAC) SelectAction(t ts.TimeStep) *mat.VecDense {
	return s.behaviour.SelectAction(t)
}

// EndEpisode performs cleanup at the end of an episode
func (s *SAC) EndEpisode() {}

// Eval sets the agent into evaluation mode, where the policy mean is
// used for action selection
func (s *SAC) Eval() { s.eval = true; s.behaviour.Eval() }

// Train sets the agent into training mode
func (s *SAC) Train() { s.eval = false; s.behaviour.Train() }

// IsEval indicates whether the agent is in evaluation mode
func (s *SAC) IsEval() bool { return s.eval }

// Alpha returns the current entropy temperature
func (s *SAC) Alpha() float64 { return s.alpha }

// TargetEntropy returns the entropy value the policy is regularized
// toward when the temperature is learned
func (s *SAC) TargetEntropy() float64 { return s.targetEntropy }

// CriticLoss returns the joint critic loss computed by the most recent
// gradient step, evaluated before the solver applied that step. Before
// the first critic step the loss is NaN.
func (s *SAC) CriticLoss() float64 {
	if s.criticLossVal == nil || *s.criticLossVal == nil {
		return math.NaN()
	}
	return (*s.criticLossVal).Data().(float64)
}

// Save writes the weights of the actor, both critics, both target
// critics, and the entropy temperature to files in dir
func (s *SAC) Save(dir string) error {
	nets := []struct {
		name string
		net  network.NeuralNet
	}{
		{"actor.bin", s.actor.Network()},
		{"critic1.bin", s.q1},
		{"critic2.bin", s.q2},
		{"targetCritic1.bin", s.targetQ1},
		{"targetCritic2.bin", s.targetQ2},
	}
	for _, save := range nets {
		path := filepath.Join(dir, save.name)
		if err := checkpoint.Save(path, save.net); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}

	path := filepath.Join(dir, "logAlpha.bin")
	if err := checkpoint.SaveScalar(path, math.Log(s.alpha)); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Load restores the agent's weights from files previously written by
// Save. If any file is missing or unreadable, a warning is printed and
// the agent keeps its current (freshly initialized) weights.
func (s *SAC) Load(dir string) error {
	names := []string{"actor.bin", "critic1.bin", "critic2.bin",
		"targetCritic1.bin", "targetCritic2.bin"}
	snapshots := make([]*checkpoint.Snapshot, len(names))
	for i, name := range names {
		snapshot, err := checkpoint.Load(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load "+
				"checkpoint, starting fresh: %v\n", err)
			return nil
		}
		snapshots[i] = snapshot
	}
	alphaSnap, err := checkpoint.Load(filepath.Join(dir, "logAlpha.bin"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load checkpoint, "+
			"starting fresh: %v\n", err)
		return nil
	}

	dests := []network.NeuralNet{s.actor.Network(), s.q1, s.q2,
		s.targetQ1, s.targetQ2}
	for i, dest := range dests {
		if err := checkpoint.Restore(dest, snapshots[i]); err != nil {
			return fmt.Errorf("load: %v", err)
		}
	}

	s.alpha = math.Exp(alphaSnap.Scalar)
	if s.learnAlpha {
		if err := G.Let(s.logAlpha, alphaSnap.Scalar); err != nil {
			return fmt.Errorf("load: could not set temperature: %v", err)
		}
	}

	// Action selection and next-state sampling use the restored actor
	if err := network.Set(s.behaviour.Network(),
		s.actor.Network()); err != nil {
		return fmt.Errorf("load: could not update behaviour policy: %v",
			err)
	}
	if err := network.Set(s.sampler.Network(),
		s.actor.Network()); err != nil {
		return fmt.Errorf("load: could not update sampler policy: %v",
			err)
	}
	return nil
}

// Close releases all VMs held by the agent
func (s *SAC) Close() error {
	vms := []G.VM{s.samplerVM, s.criticVM, s.targetQ1VM, s.targetQ2VM,
		s.actorVM, s.alphaVM}
	for _, vm := range vms {
		if vm == nil {
			continue
		}
		if err := vm.Close(); err != nil {
			return err
		}
	}
	return s.behaviour.Close()
}
