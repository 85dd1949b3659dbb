package initwfn

import G "gorgonia.org/gorgonia"

// UniformConfig describes an initializer that samples weights
// uniformly from the interval [Low, High)
type UniformConfig struct {
	Low, High float64
}

// NewUniform returns a uniform weight initializer
func NewUniform(low, high float64) (*InitWFn, error) {
	config := UniformConfig{
		Low:  low,
		High: high,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by the
// configuration
func (u UniformConfig) Type() Type {
	return Uniform
}

// Create returns the Gorgonia InitWFn described by the configuration
func (u UniformConfig) Create() G.InitWFn {
	return G.Uniform(u.Low, u.High)
}
