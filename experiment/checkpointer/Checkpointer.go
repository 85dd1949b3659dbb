package checkpointer

import ts "deeprl/timestep"

// Saveable is an object that can save its state to a directory, such
// as an agent saving its network weights.
type Saveable interface {
	Save(dir string) error
}

// Checkpointer checkpoints/saves Saveable objects based on
// timestep.TimeSteps
type Checkpointer interface {
	Checkpoint(ts.TimeStep) error
}
