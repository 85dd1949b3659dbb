package checkpointer

import (
	"errors"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	ts "deeprl/timestep"
)

// recorder is a Saveable that records the directories it was asked to
// save to
type recorder struct {
	dirs []string
	err  error
}

func (r *recorder) Save(dir string) error {
	if r.err != nil {
		return r.err
	}
	r.dirs = append(r.dirs, dir)
	return nil
}

func step(number int) ts.TimeStep {
	obs := mat.NewVecDense(1, []float64{0.0})
	return ts.New(ts.Mid, 0.0, 1.0, obs, number)
}

func TestNStepCheckpointsAtInterval(t *testing.T) {
	rec := &recorder{}
	check := NewNStep(3, rec, DirEnumerator(0, "check"))

	for i := 1; i <= 7; i++ {
		if err := check.Checkpoint(step(i)); err != nil {
			t.Fatalf("could not checkpoint: %v", err)
		}
	}

	want := []string{"check1", "check2"}
	if len(rec.dirs) != len(want) {
		t.Fatalf("expected %v checkpoints, got %v", len(want), len(rec.dirs))
	}
	for i := range want {
		if rec.dirs[i] != want[i] {
			t.Errorf("checkpoint %v: expected dir %v, got %v", i, want[i],
				rec.dirs[i])
		}
	}
}

func TestNStepPropagatesSaveError(t *testing.T) {
	rec := &recorder{err: errors.New("disk full")}
	check := NewNStep(1, rec, DirEnumerator(0, "check"))

	if err := check.Checkpoint(step(1)); err == nil {
		t.Error("expected checkpoint to propagate the save error")
	}
}

func TestDirEnumerator(t *testing.T) {
	dir := DirEnumerator(4, "agent")

	for _, want := range []string{"agent5", "agent6", "agent7"} {
		if got := dir(); got != want {
			t.Errorf("expected dir %v, got %v", want, got)
		}
	}
}

func TestDirTimer(t *testing.T) {
	dir := DirTimer("agent")

	name := dir()
	if !strings.HasPrefix(name, "agent-") || len(name) <= len("agent-") {
		t.Errorf("expected a timestamped dir with prefix agent-, got %v",
			name)
	}
}
