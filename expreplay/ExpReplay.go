// Package expreplay implements experience replay buffers for storing
// and sampling environment transitions.
package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"

	"deeprl/timestep"
)

// Config implements a specific configuration of an ExperienceReplayer
type Config struct {
	BatchSize         int
	MaxReplayCapacity int
	MinReplayCapacity int
}

// Create creates and returns the ExperienceReplayer with the specified
// Config.
func (c Config) Create(featureSize, actionSize int,
	seed int64) (ExperienceReplayer, error) {
	return New(c.MinReplayCapacity, c.MaxReplayCapacity, featureSize,
		actionSize, c.BatchSize, seed)
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer
	Add(t timestep.Transition) error

	// Sample samples a batch of experience from the buffer, returning
	// the batch of states, actions, rewards, next states, and done
	// flags as flattened []float64 in row major order
	Sample() ([]float64, []float64, []float64, []float64, []float64,
		error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int

	// Insertions returns the total number of transitions added over
	// the buffer's lifetime, which may exceed MaxCapacity()
	Insertions() int
}

// cache implements a concrete ExperienceReplayer as a circular buffer.
// Transitions are stored in parallel arrays at index count mod
// maxCapacity, so once the buffer is full each insertion overwrites
// the oldest stored transition.
type cache struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	nextStateCache []float64
	doneCache      []float64

	// count is the total number of insertions ever made, never the
	// number of retained transitions
	count int

	rng *rand.Rand

	batchSize   int
	minCapacity int
	maxCapacity int
	featureSize int
	actionSize  int
}

// New creates and returns a new ExperienceReplayer storing at most
// maxCapacity transitions and refusing to sample until minCapacity
// transitions have been stored. The featureSize and actionSize
// parameters define the size of the state feature and action vectors.
// Batches of batchSize transitions are sampled uniformly at random
// with replacement.
//
// Pixel observations should be flattened before adding to the buffer.
func New(minCapacity, maxCapacity, featureSize, actionSize, batchSize int,
	seed int64) (ExperienceReplayer, error) {
	if minCapacity <= 0 {
		return &cache{}, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < 1 {
		return &cache{}, fmt.Errorf("new: maxCapacity must be >= 1")
	}
	if maxCapacity < minCapacity {
		return &cache{}, fmt.Errorf("new: cannot have minCapacity(%v) "+
			"> maxCapacity(%v)", minCapacity, maxCapacity)
	}
	if batchSize < 1 {
		return &cache{}, fmt.Errorf("new: batchSize must be >= 1")
	}
	if maxCapacity < batchSize {
		return &cache{}, fmt.Errorf("new: cannot have batch size(%v) > "+
			"max buffer capacity (%v)", batchSize, maxCapacity)
	}
	if featureSize <= 0 || actionSize <= 0 {
		return &cache{}, fmt.Errorf("new: feature and action sizes "+
			"must be > 0 \n\thave(%v, %v)", featureSize, actionSize)
	}

	return &cache{
		stateCache:     make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		rewardCache:    make([]float64, maxCapacity),
		nextStateCache: make([]float64, maxCapacity*featureSize),
		doneCache:      make([]float64, maxCapacity),

		rng: rand.New(rand.NewSource(uint64(seed))),

		batchSize:   batchSize,
		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		featureSize: featureSize,
		actionSize:  actionSize,
	}, nil
}

// String returns the string representation of the cache
func (c *cache) String() string {
	baseStr := "Capacity: %v/%v \nStates: %v \nActions: %v " +
		"\nRewards: %v \nNext States: %v \nDones: %v"
	return fmt.Sprintf(baseStr, c.Capacity(), c.maxCapacity,
		c.stateCache, c.actionCache, c.rewardCache, c.nextStateCache,
		c.doneCache)
}

// BatchSize returns the number of samples sampled using Sample() -
// a.k.a the batch size
func (c *cache) BatchSize() int {
	return c.batchSize
}

// Add adds a transition to the cache, overwriting the oldest stored
// transition once the cache is full
func (c *cache) Add(t timestep.Transition) error {
	if t.State.Len() != c.featureSize ||
		t.NextState.Len() != c.featureSize {
		return fmt.Errorf("add: invalid feature size "+
			"\n\twant(%v)\n\thave(%v)", c.featureSize, t.State.Len())
	}
	if t.Action.Len() != c.actionSize {
		return fmt.Errorf("add: invalid action size "+
			"\n\twant(%v)\n\thave(%v)", c.actionSize, t.Action.Len())
	}

	index := c.count % c.maxCapacity

	stateInd := index * c.featureSize
	for i := 0; i < c.featureSize; i++ {
		c.stateCache[stateInd+i] = t.State.AtVec(i)
		c.nextStateCache[stateInd+i] = t.NextState.AtVec(i)
	}

	actionInd := index * c.actionSize
	for i := 0; i < c.actionSize; i++ {
		c.actionCache[actionInd+i] = t.Action.AtVec(i)
	}

	c.rewardCache[index] = t.Reward
	if t.Done {
		c.doneCache[index] = 1.0
	} else {
		c.doneCache[index] = 0.0
	}

	c.count++
	return nil
}

// Sample samples and returns a batch of transitions from the replay
// buffer. Indices are drawn uniformly at random with replacement from
// the stored transitions.
func (c *cache) Sample() ([]float64, []float64, []float64, []float64,
	[]float64, error) {
	if c.Capacity() == 0 {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errEmptyCache,
		}
		return nil, nil, nil, nil, nil, err
	}
	if c.Capacity() < c.MinCapacity() {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
		return nil, nil, nil, nil, nil, err
	}

	indices := make([]int, c.batchSize)
	for i := range indices {
		indices[i] = c.rng.Intn(c.Capacity())
	}

	stateBatch := make([]float64, c.batchSize*c.featureSize)
	nextStateBatch := make([]float64, c.batchSize*c.featureSize)
	for i, index := range indices {
		batchStartInd := i * c.featureSize
		expStartInd := index * c.featureSize
		copy(stateBatch[batchStartInd:batchStartInd+c.featureSize],
			c.stateCache[expStartInd:expStartInd+c.featureSize],
		)
		copy(nextStateBatch[batchStartInd:batchStartInd+c.featureSize],
			c.nextStateCache[expStartInd:expStartInd+c.featureSize],
		)
	}

	actionBatch := make([]float64, c.batchSize*c.actionSize)
	for i, index := range indices {
		batchStartInd := i * c.actionSize
		expStartInd := index * c.actionSize
		copy(actionBatch[batchStartInd:batchStartInd+c.actionSize],
			c.actionCache[expStartInd:expStartInd+c.actionSize],
		)
	}

	rewardBatch := make([]float64, c.batchSize)
	doneBatch := make([]float64, c.batchSize)
	for i, index := range indices {
		rewardBatch[i] = c.rewardCache[index]
		doneBatch[i] = c.doneCache[index]
	}

	return stateBatch, actionBatch, rewardBatch, nextStateBatch,
		doneBatch, nil
}

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (c *cache) Capacity() int {
	if c.count < c.maxCapacity {
		return c.count
	}
	return c.maxCapacity
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (c *cache) MaxCapacity() int {
	return c.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (c *cache) MinCapacity() int {
	return c.minCapacity
}

// Insertions returns the total number of transitions ever added
func (c *cache) Insertions() int {
	return c.count
}
