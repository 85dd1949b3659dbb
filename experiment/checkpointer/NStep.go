package checkpointer

import ts "deeprl/timestep"

// nStep implements checkpointing every N steps
type nStep struct {
	interval int
	object   Saveable // Object to save

	// dir returns the directory in which to save the next checkpoint.
	//
	// If each checkpoint should be saved in a separate directory with
	// each directory having an incremented number as a suffix (e.g.
	// checkpoint1, checkpoint2, ..., checkpointK), then simply use the
	// static function DirEnumerator, which will return a function
	// that will enumerate directory names.
	//
	// Otherwise, if each checkpoint should be saved in a separate
	// directory, but the directory name does not matter, use the
	// static function DirTimer to generate the required naming
	// function. For example:
	//
	// n := NewNStep(10, object, DirTimer("checkpoint"))
	dir func() string
}

// NewNStep returns a checkpointer that checkpoints every n steps.
func NewNStep(n int, object Saveable, dir func() string) Checkpointer {
	return &nStep{
		interval: n,
		object:   object,
		dir:      dir,
	}
}

// Checkpoint checkpoints the Checkpointer's tracked object by calling
// its Save() method
func (n *nStep) Checkpoint(t ts.TimeStep) error {
	if t.Number%n.interval == 0 {
		return n.object.Save(n.dir())
	}
	return nil
}
