package initwfn

import G "gorgonia.org/gorgonia"

// GaussianConfig describes an initializer that samples weights from a
// normal distribution with the given mean and standard deviation
type GaussianConfig struct {
	Mean, StdDev float64
}

// NewGaussian returns a Gaussian weight initializer
func NewGaussian(mean, stddev float64) (*InitWFn, error) {
	config := GaussianConfig{
		Mean:   mean,
		StdDev: stddev,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by the
// configuration
func (u GaussianConfig) Type() Type {
	return Gaussian
}

// Create returns the Gorgonia InitWFn described by the configuration
func (u GaussianConfig) Create() G.InitWFn {
	return G.Gaussian(u.Mean, u.StdDev)
}
