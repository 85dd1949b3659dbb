package solver

import G "gorgonia.org/gorgonia"

// VanillaConfig describes plain stochastic gradient descent with an
// optional gradient clip
type VanillaConfig struct {
	StepSize float64
	Batch    int
	Clip     float64 // <= 0 if no clipping
}

// NewVanilla returns a stochastic gradient descent solver. Gradients
// are clipped to [-clip, clip] componentwise unless clip <= 0.
func NewVanilla(stepSize float64, batchSize int,
	clip float64) (*Solver, error) {
	vanilla := VanillaConfig{
		StepSize: stepSize,
		Batch:    int(batchSize),
		Clip:     clip,
	}

	return newSolver(Vanilla, vanilla)
}

// Create returns the Gorgonia VanillaSolver described by the
// configuration
func (v VanillaConfig) Create() G.Solver {
	var solver G.Solver

	if v.Clip <= 0 {
		solver = G.NewVanillaSolver(
			G.WithLearnRate(v.StepSize),
			G.WithBatchSize(float64(v.Batch)),
		)
	} else {
		solver = G.NewVanillaSolver(
			G.WithLearnRate(v.StepSize),
			G.WithBatchSize(float64(v.Batch)),
			G.WithClip(v.Clip),
		)
	}
	return solver
}

// ValidType returns whether the Config can create a Solver of the
// argument type
func (v VanillaConfig) ValidType(t Type) bool {
	return t == Vanilla
}
