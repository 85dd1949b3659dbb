// Package td3 implements the Twin Delayed Deep Deterministic policy
// gradient algorithm for continuous action spaces.
//
// TD3 learns a deterministic tanh-squashed policy together with twin
// action-value critics. Critic targets bootstrap from the minimum of
// target copies of both critics evaluated at a smoothed target action,
// and the actor and target networks are updated only every few critic
// updates.
package td3

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"deeprl/agent/nonlinear/continuous/policy"
	"deeprl/checkpoint"
	"deeprl/environment"
	"deeprl/expreplay"
	"deeprl/network"
	ts "deeprl/timestep"
	"deeprl/utils/floatutils"
)

// Sampling from the replay buffer is gated until the buffer holds this
// many batches of transitions
const minBatchesBeforeUpdate int = 10

// TD3 implements the Twin Delayed Deep Deterministic policy gradient
// algorithm. Like SAC, the agent spreads its computation over separate
// expression graphs, with values crossing between graphs as []float64
// so that no gradient flows between the stages of an update.
type TD3 struct {
	// Action selection
	behaviour *policy.DeterministicMLP

	// Target actor, producing the actions bootstrapped through when
	// computing critic targets
	targetActor   *policy.DeterministicMLP
	targetActorVM G.VM

	// Online critics and their joint loss
	q1           network.ActionValue
	q2           network.ActionValue
	criticTarget *G.Node
	criticVM     G.VM
	criticSolver G.Solver

	// Target critics, updated only by Polyak averaging
	targetQ1   network.NeuralNet
	targetQ2   network.NeuralNet
	targetQ1VM G.VM
	targetQ2VM G.VM

	// Actor graph: a batch policy feeding a read-only copy of the
	// first critic
	actor       *policy.DeterministicMLP
	actorQ1     network.NeuralNet
	actorVM     G.VM
	actorSolver G.Solver

	// Target policy smoothing noise
	smoothing     distuv.Normal
	smoothingClip float64

	policyDelay   int
	tau           float64
	gradientSteps int

	warmupSteps int
	stepsTaken  int

	replay     expreplay.ExperienceReplayer
	discount   float64
	batchSize  int
	actionDims int

	lowerBound []float64
	upperBound []float64

	prevStep ts.TimeStep

	eval bool
}

// New creates and returns a new TD3 agent
func New(env environment.Environment, config Config,
	seed int64) (*TD3, error) {
	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("td3: cannot use non-continuous actions")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	batchSize := config.BatchSize()
	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()
	init := config.InitWFn.InitWFn()

	// Behaviour policy for selecting actions
	behaviour, err := policy.NewDeterministicMLP(env, 1,
		config.PolicyLayers, config.PolicyBiases,
		config.PolicyActivations, init, config.ExplorationStdDev,
		uint64(seed))
	if err != nil {
		return nil, fmt.Errorf("td3: could not create behaviour "+
			"policy: %v", err)
	}

	// Target actor starts as an exact copy of the behaviour policy
	targetActor, err := behaviour.CloneWithBatch(batchSize,
		uint64(seed)+1)
	if err != nil {
		return nil, fmt.Errorf("td3: could not create target actor: %v",
			err)
	}
	targetActorVM := G.NewTapeMachine(targetActor.Network().Graph())

	// Online critics share a graph so that one solver can update both
	gCritic := G.NewGraph()
	q1, err := network.NewQMLP(features, actionDims, batchSize, gCritic,
		config.CriticLayers, config.CriticBiases, init,
		config.CriticActivations, "Q1")
	if err != nil {
		return nil, fmt.Errorf("td3: could not create first critic: %v",
			err)
	}
	q2, err := network.NewQMLP(features, actionDims, batchSize, gCritic,
		config.CriticLayers, config.CriticBiases, init,
		config.CriticActivations, "Q2")
	if err != nil {
		return nil, fmt.Errorf("td3: could not create second critic: %v",
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

	criticLearnables := make(G.Nodes, 0,
		len(q1.Learnables())+len(q2.Learnables()))
	criticLearnables = append(criticLearnables, q1.Learnables()...)
	criticLearnables = append(criticLearnables, q2.Learnables()...)
	if _, err := G.Grad(criticLoss, criticLearnables...); err != nil {
		return nil, fmt.Errorf("td3: could not compute critic "+
			"gradient: %v", err)
	}
	criticVM := G.NewTapeMachine(gCritic,
		G.BindDualValues(criticLearnables...))

	// Target critics start as exact copies of the online critics
	targetQ1, err := q1.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("td3: could not create first target "+
			"critic: %v", err)
	}
	targetQ2, err := q2.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("td3: could not create second target "+
			"critic: %v", err)
	}
	targetQ1VM := G.NewTapeMachine(targetQ1.Graph())
	targetQ2VM := G.NewTapeMachine(targetQ2.Graph())

	// Actor graph: the policy loss is the negated mean of the first
	// critic evaluated at the policy's actions
	actor, err := behaviour.CloneWithBatch(batchSize, uint64(seed)+2)
	if err != nil {
		return nil, fmt.Errorf("td3: could not create actor: %v", err)
	}
	gActor := actor.Network().Graph()

	criticState := G.NewMatrix(gActor, tensor.Float64,
		G.WithShape(batchSize, features), G.WithName("CriticState"),
		G.WithInit(G.Zeroes()))
	actorQ1, err := q1.CloneWithInputsTo(criticState, actor.Actions(),
		gActor)
	if err != nil {
		return nil, fmt.Errorf("td3: could not embed critic in actor "+
			"graph: %v", err)
	}

	actorLoss := G.Must(G.Mean(G.Must(G.Ravel(actorQ1.Prediction()[0]))))
	actorLoss = G.Must(G.Neg(actorLoss))

	actorLearnables := actor.Network().Learnables()
	if _, err := G.Grad(actorLoss, actorLearnables...); err != nil {
		return nil, fmt.Errorf("td3: could not compute actor "+
			"gradient: %v", err)
	}
	actorVM := G.NewTapeMachine(gActor,
		G.BindDualValues(actorLearnables...))

	smoothing := distuv.Normal{
		Mu:    0.0,
		Sigma: config.TargetSmoothingStdDev,
		Src:   rand.NewSource(uint64(seed) + 3),
	}

	// Action bounds for clipping smoothed target actions
	spec := env.ActionSpec()
	lowerBound := make([]float64, actionDims)
	upperBound := make([]float64, actionDims)
	for i := 0; i < actionDims; i++ {
		lowerBound[i] = spec.LowerBound.AtVec(i)
		upperBound[i] = spec.UpperBound.AtVec(i)
	}

	minCapacity := config.ExpReplay.MinReplayCapacity
	if gate := minBatchesBeforeUpdate * batchSize; minCapacity < gate {
		minCapacity = gate
	}
	replay, err := expreplay.New(minCapacity,
		config.ExpReplay.MaxReplayCapacity, features, actionDims,
		batchSize, seed)
	if err != nil {
		return nil, fmt.Errorf("td3: could not create experience "+
			"replay buffer: %v", err)
	}

	return &TD3{
		behaviour: behaviour,

		targetActor:   targetActor,
		targetActorVM: targetActorVM,

		q1:           q1,
		q2:           q2,
		criticTarget: criticTarget,
		criticVM:     criticVM,
		criticSolver: config.CriticSolver.Solver,

		targetQ1:   targetQ1,
		targetQ2:   targetQ2,
		targetQ1VM: targetQ1VM,
		targetQ2VM: targetQ2VM,

		actor:       actor,
		actorQ1:     actorQ1,
		actorVM:     actorVM,
		actorSolver: config.PolicySolver.Solver,

		smoothing:     smoothing,
		smoothingClip: config.TargetSmoothingClip,

		policyDelay: config.PolicyDelay,
		tau:         config.Tau,

		warmupSteps: config.WarmupSteps,

		replay:     replay,
		discount:   env.DiscountSpec().UpperBound.AtVec(0),
		batchSize:  batchSize,
		actionDims: actionDims,

		lowerBound: lowerBound,
		upperBound: upperBound,
	}, nil
}

// ObserveFirst observes and records the first episodic timestep
func (t *TD3) ObserveFirst(step ts.TimeStep) error {
	if !step.First() {
		return fmt.Errorf("observefirst: timestep is not first "+
			"(number %d)", step.Number)
	}
	t.prevStep = step
	return nil
}

// Observe observes and records any timestep other than the first
// timestep, storing the induced transition in the replay buffer
func (t *TD3) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if action.Len() != t.actionDims {
		return fmt.Errorf("observe: invalid action dimensions "+
			"\n\twant(%v)\n\thave(%v)", t.actionDims, action.Len())
	}

	transition := ts.NewTransition(t.prevStep, action, nextStep)
	if err := t.replay.Add(transition); err != nil {
		return fmt.Errorf("observe: could not add to replay buffer: %v",
			err)
	}

	t.prevStep = nextStep
	t.stepsTaken++
	return nil
}

// Step updates the weights of the agent. Every step updates both
// critics; the actor and the target networks are updated only on every
// policyDelay'th gradient step. If the replay buffer does not yet hold
// enough transitions, Step is a no-op.
func (t *TD3) Step() error {
	states, actions, rewards, nextStates, dones, err := t.replay.Sample()
	if expreplay.IsEmptyBuffer(err) ||
		expreplay.IsInsufficientSamples(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("step: could not sample from replay "+
			"buffer: %v", err)
	}

	targets, err := t.criticTargets(rewards, nextStates, dones)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}
	if err := t.updateCritics(states, actions, targets); err != nil {
		return fmt.Errorf("step: %v", err)
	}

	t.gradientSteps++
	if t.gradientSteps%t.policyDelay != 0 {
		return nil
	}

	if err := t.updateActor(states); err != nil {
		return fmt.Errorf("step: %v", err)
	}

	if err := network.Polyak(t.targetQ1, t.q1, t.tau); err != nil {
		return fmt.Errorf("step: could not update first target "+
			"critic: %v", err)
	}
	if err := network.Polyak(t.targetQ2, t.q2, t.tau); err != nil {
		return fmt.Errorf("step: could not update second target "+
			"critic: %v", err)
	}
	if err := network.Polyak(t.targetActor.Network(),
		t.actor.Network(), t.tau); err != nil {
		return fmt.Errorf("step: could not update target actor: %v", err)
	}

	return nil
}

// criticTargets computes the bootstrap target
//
//	y = r + γ(1 - done) min(Q1'(s', ã), Q2'(s', ã))
//
// where ã is the target actor's action at s' perturbed by clipped
// Gaussian smoothing noise and clipped to the action bounds. A single
// noise draw perturbs every element of the batch.
func (t *TD3) criticTargets(rewards, nextStates,
	dones []float64) ([]float64, error) {
	if err := t.targetActor.Network().SetInput(nextStates); err != nil {
		return nil, fmt.Errorf("could not set target actor states: %v",
			err)
	}
	if err := t.targetActorVM.RunAll(); err != nil {
		return nil, fmt.Errorf("could not run target actor: %v", err)
	}
	nextActions := append([]float64{},
		t.targetActor.ActionsVal().Data().([]float64)...)
	t.targetActorVM.Reset()

	noise := floatutils.Clip(t.smoothing.Rand(), -t.smoothingClip,
		t.smoothingClip)
	for i := range nextActions {
		dim := i % t.actionDims
		nextActions[i] = floatutils.Clip(nextActions[i]+noise,
			t.lowerBound[dim], t.upperBound[dim])
	}

	q1Vals, err := t.targetCriticValues(t.targetQ1, t.targetQ1VM,
		nextStates, nextActions)
	if err != nil {
		return nil, fmt.Errorf("could not run first target critic: %v",
			err)
	}
	q2Vals, err := t.targetCriticValues(t.targetQ2, t.targetQ2VM,
		nextStates, nextActions)
	if err != nil {
		return nil, fmt.Errorf("could not run second target critic: %v",
			err)
	}

	targets := make([]float64, t.batchSize)
	for i := range targets {
		next := math.Min(q1Vals[i], q2Vals[i])
		targets[i] = rewards[i] + t.discount*(1-dones[i])*next
	}
	return targets, nil
}

// targetCriticValues runs a target critic forward on a batch of
// state-action pairs
func (t *TD3) targetCriticValues(net network.NeuralNet, vm G.VM,
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
func (t *TD3) updateCritics(states, actions, targets []float64) error {
	if err := t.q1.SetInput(states); err != nil {
		return fmt.Errorf("could not set critic states: %v", err)
	}
	if err := t.q1.SetActions(actions); err != nil {
		return fmt.Errorf("could not set critic actions: %v", err)
	}
	if err := t.q2.SetInput(states); err != nil {
		return fmt.Errorf("could not set critic states: %v", err)
	}
	if err := t.q2.SetActions(actions); err != nil {
		return fmt.Errorf("could not set critic actions: %v", err)
	}

	targetTensor := tensor.New(tensor.WithBacking(targets),
		tensor.WithShape(t.batchSize))
	if err := G.Let(t.criticTarget, targetTensor); err != nil {
		return fmt.Errorf("could not set critic targets: %v", err)
	}

	if err := t.criticVM.RunAll(); err != nil {
		return fmt.Errorf("could not run critic update: %v", err)
	}
	defer t.criticVM.Reset()

	model := make([]G.ValueGrad, 0, len(t.q1.Model())+len(t.q2.Model()))
	model = append(model, t.q1.Model()...)
	model = append(model, t.q2.Model()...)
	if err := t.criticSolver.Step(model); err != nil {
		return fmt.Errorf("could not step critic solver: %v", err)
	}
	return nil
}

// updateActor takes one gradient step on the policy loss
// -mean(Q1(s, π(s))) and propagates the new weights to the behaviour
// policy
func (t *TD3) updateActor(states []float64) error {
	// The critic copy in the actor graph holds last step's weights
	if err := network.Set(t.actorQ1, t.q1); err != nil {
		return fmt.Errorf("could not refresh critic copy: %v", err)
	}

	if err := t.actor.Network().SetInput(states); err != nil {
		return fmt.Errorf("could not set actor states: %v", err)
	}
	if err := t.actorQ1.SetInput(states); err != nil {
		return fmt.Errorf("could not set critic copy states: %v", err)
	}

	if err := t.actorVM.RunAll(); err != nil {
		return fmt.Errorf("could not run actor update: %v", err)
	}
	t.actorVM.Reset()

	if err := t.actorSolver.Step(t.actor.Network().Model()); err != nil {
		return fmt.Errorf("could not step actor solver: %v", err)
	}

	if err := network.Set(t.behaviour.Network(),
		t.actor.Network()); err != nil {
		return fmt.Errorf("could not update behaviour policy: %v", err)
	}
	return nil
}

// SelectAction returns an action at the argument timestep. During the
// warmup period in training mode, actions are drawn from the
// exploration noise distribution without consulting the actor;
// afterward the behaviour policy selects actions with exploration
// noise.
func (t *TD3) SelectAction(step ts.TimeStep) *mat.VecDense {
	if !t.eval && t.stepsTaken < t.warmupSteps {
		return t.behaviour.RandomAction()
	}
	return t.behaviour.SelectAction(step)
}

// EndEpisode performs cleanup at the end of an episode
func (t *TD3) EndEpisode() {}

// Eval sets the agent into evaluation mode, where actions are selected
// without exploration noise
func (t *TD3) Eval() { t.eval = true; t.behaviour.Eval() }

// Train sets the agent into training mode
func (t *TD3) Train() { t.eval = false; t.behaviour.Train() }

// IsEval indicates whether the agent is in evaluation mode
func (t *TD3) IsEval() bool { return t.eval }

// Save writes the weights of the actor, target actor, both critics,
// and both target critics to files in dir
func (t *TD3) Save(dir string) error {
	nets := []struct {
		name string
		net  network.NeuralNet
	}{
		{"actor.bin", t.actor.Network()},
		{"targetActor.bin", t.targetActor.Network()},
		{"critic1.bin", t.q1},
		{"critic2.bin", t.q2},
		{"targetCritic1.bin", t.targetQ1},
		{"targetCritic2.bin", t.targetQ2},
	}
	for _, save := range nets {
		path := filepath.Join(dir, save.name)
		if err := checkpoint.Save(path, save.net); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}
	return nil
}

// Load restores the agent's weights from files previously written by
// Save. If any file is missing or unreadable, a warning is printed and
// the agent keeps its current (freshly initialized) weights.
func (t *TD3) Load(dir string) error {
	names := []string{"actor.bin", "targetActor.bin", "critic1.bin",
		"critic2.bin", "targetCritic1.bin", "targetCritic2.bin"}
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

	dests := []network.NeuralNet{t.actor.Network(),
		t.targetActor.Network(), t.q1, t.q2, t.targetQ1, t.targetQ2}
	for i, dest := range dests {
		if err := checkpoint.Restore(dest, snapshots[i]); err != nil {
			return fmt.Errorf("load: %v", err)
		}
	}

	// Action selection uses the restored actor
	if err := network.Set(t.behaviour.Network(),
		t.actor.Network()); err != nil {
		return fmt.Errorf("load: could not update behaviour policy: %v",
			err)
	}
	return nil
}

// Close releases all VMs held by the agent
func (t *TD3) Close() error {
	vms := []G.VM{t.targetActorVM, t.criticVM, t.targetQ1VM,
		t.targetQ2VM, t.actorVM}
	for _, vm := range vms {
		if err := vm.Close(); err != nil {
			return err
		}
	}
	return t.behaviour.Close()
}
