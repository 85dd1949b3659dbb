package initwfn

import G "gorgonia.org/gorgonia"

// HeUConfig describes He uniform initialization with a given gain. He
// initialization is the usual choice for the ReLU networks in this
// module.
type HeUConfig struct {
	Gain float64
}

// NewHeU returns a He uniform weight initializer
func NewHeU(gain float64) (*InitWFn, error) {
	config := HeUConfig{
		Gain: gain,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by the
// configuration
func (h HeUConfig) Type() Type {
	return HeU
}

// Create returns the Gorgonia InitWFn described by the configuration
func (h HeUConfig) Create() G.InitWFn {
	return G.HeU(h.Gain)
}

// HeNConfig describes He normal initialization with a given gain
type HeNConfig struct {
	Gain float64
}

// NewHeN returns a He normal weight initializer
func NewHeN(gain float64) (*InitWFn, error) {
	config := HeNConfig{
		Gain: gain,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by the
// configuration
func (h HeNConfig) Type() Type {
	return HeN
}

// Create returns the Gorgonia InitWFn described by the configuration
func (h HeNConfig) Create() G.InitWFn {
	return G.HeN(h.Gain)
}
