package expreplay

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"deeprl/timestep"
)

const (
	testFeatures int = 2
	testActions  int = 1
)

// testTransition returns a transition whose fields are all derived
// from id, so that sampled rows can be traced back to an insertion
func testTransition(id float64) timestep.Transition {
	return timestep.Transition{
		State:     mat.NewVecDense(testFeatures, []float64{id, id + 0.5}),
		Action:    mat.NewVecDense(testActions, []float64{id * 2}),
		Reward:    id * 10,
		NextState: mat.NewVecDense(testFeatures, []float64{id + 1, id + 1.5}),
		Done:      false,
	}
}

func newTestBuffer(t *testing.T, minCapacity, maxCapacity,
	batchSize int) ExperienceReplayer {
	buffer, err := New(minCapacity, maxCapacity, testFeatures,
		testActions, batchSize, 42)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}
	return buffer
}

func TestSampleEmptyBuffer(t *testing.T) {
	buffer := newTestBuffer(t, 1, 10, 1)

	_, _, _, _, _, err := buffer.Sample()
	if err == nil {
		t.Fatal("expected error when sampling an empty buffer")
	}
	if !IsEmptyBuffer(err) {
		t.Errorf("expected empty buffer error, got: %v", err)
	}
}

func TestSampleBelowMinCapacity(t *testing.T) {
	buffer := newTestBuffer(t, 3, 10, 1)

	if err := buffer.Add(testTransition(1)); err != nil {
		t.Fatalf("could not add transition: %v", err)
	}

	_, _, _, _, _, err := buffer.Sample()
	if err == nil {
		t.Fatal("expected error when sampling below minimum capacity")
	}
	if !IsInsufficientSamples(err) {
		t.Errorf("expected insufficient samples error, got: %v", err)
	}
	if IsEmptyBuffer(err) {
		t.Error("non-empty buffer reported as empty")
	}
}

func TestAddInvalidDimensions(t *testing.T) {
	buffer := newTestBuffer(t, 1, 10, 1)

	badState := timestep.Transition{
		State:     mat.NewVecDense(testFeatures+1, nil),
		Action:    mat.NewVecDense(testActions, nil),
		NextState: mat.NewVecDense(testFeatures+1, nil),
	}
	if err := buffer.Add(badState); err == nil {
		t.Error("expected error when adding transition with wrong " +
			"state size")
	}

	badAction := timestep.Transition{
		State:     mat.NewVecDense(testFeatures, nil),
		Action:    mat.NewVecDense(testActions+2, nil),
		NextState: mat.NewVecDense(testFeatures, nil),
	}
	if err := buffer.Add(badAction); err == nil {
		t.Error("expected error when adding transition with wrong " +
			"action size")
	}
}

// TestSampleRowAlignment checks that every sampled row is one of the
// stored transitions with all of its fields intact, never a mix of
// fields from different transitions.
func TestSampleRowAlignment(t *testing.T) {
	buffer := newTestBuffer(t, 1, 10, 4)

	stored := make(map[float64]timestep.Transition)
	for i := 1; i <= 6; i++ {
		transition := testTransition(float64(i))
		stored[transition.Reward] = transition
		if err := buffer.Add(transition); err != nil {
			t.Fatalf("could not add transition: %v", err)
		}
	}

	states, actions, rewards, nextStates, dones, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}

	if len(states) != 4*testFeatures || len(actions) != 4*testActions ||
		len(rewards) != 4 || len(nextStates) != 4*testFeatures ||
		len(dones) != 4 {
		t.Fatalf("incorrect batch dimensions: %v %v %v %v %v",
			len(states), len(actions), len(rewards), len(nextStates),
			len(dones))
	}

	for i := 0; i < 4; i++ {
		transition, ok := stored[rewards[i]]
		if !ok {
			t.Fatalf("sampled reward %v was never stored", rewards[i])
		}

		for j := 0; j < testFeatures; j++ {
			if states[i*testFeatures+j] != transition.State.AtVec(j) {
				t.Errorf("row %v state misaligned with reward %v",
					i, rewards[i])
			}
			if nextStates[i*testFeatures+j] !=
				transition.NextState.AtVec(j) {
				t.Errorf("row %v next state misaligned with reward %v",
					i, rewards[i])
			}
		}
		for j := 0; j < testActions; j++ {
			if actions[i*testActions+j] != transition.Action.AtVec(j) {
				t.Errorf("row %v action misaligned with reward %v",
					i, rewards[i])
			}
		}
		if dones[i] != 0.0 {
			t.Errorf("row %v done flag incorrect \n\twant(0)"+
				"\n\thave(%v)", i, dones[i])
		}
	}
}

// TestOverwriteOldest fills a buffer of capacity 5 with 7 transitions
// and checks that only the 5 most recent remain sampleable.
func TestOverwriteOldest(t *testing.T) {
	buffer := newTestBuffer(t, 1, 5, 8)

	for i := 1; i <= 7; i++ {
		if err := buffer.Add(testTransition(float64(i))); err != nil {
			t.Fatalf("could not add transition: %v", err)
		}
	}

	if buffer.Capacity() != 5 {
		t.Errorf("incorrect capacity \n\twant(5) \n\thave(%v)",
			buffer.Capacity())
	}
	if buffer.Insertions() != 7 {
		t.Errorf("incorrect insertion count \n\twant(7) \n\thave(%v)",
			buffer.Insertions())
	}

	// Rewards 10 and 20 belong to the two evicted transitions
	for trial := 0; trial < 10; trial++ {
		_, _, rewards, _, _, err := buffer.Sample()
		if err != nil {
			t.Fatalf("could not sample: %v", err)
		}
		for _, r := range rewards {
			if r == 10.0 || r == 20.0 {
				t.Fatalf("sampled evicted transition with reward %v", r)
			}
			if r < 30.0 || r > 70.0 {
				t.Fatalf("sampled reward %v was never stored", r)
			}
		}
	}
}

func TestDoneFlagStored(t *testing.T) {
	buffer := newTestBuffer(t, 1, 1, 1)

	transition := testTransition(1)
	transition.Done = true
	if err := buffer.Add(transition); err != nil {
		t.Fatalf("could not add transition: %v", err)
	}

	_, _, _, _, dones, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}
	if dones[0] != 1.0 {
		t.Errorf("done flag not stored \n\twant(1) \n\thave(%v)",
			dones[0])
	}
}

func TestNewInvalidArguments(t *testing.T) {
	if _, err := New(0, 10, testFeatures, testActions, 1, 1); err == nil {
		t.Error("expected error for minCapacity = 0")
	}
	if _, err := New(1, 0, testFeatures, testActions, 1, 1); err == nil {
		t.Error("expected error for maxCapacity = 0")
	}
	if _, err := New(5, 3, testFeatures, testActions, 1, 1); err == nil {
		t.Error("expected error for minCapacity > maxCapacity")
	}
	if _, err := New(1, 4, testFeatures, testActions, 8, 1); err == nil {
		t.Error("expected error for batch size > capacity")
	}
}
