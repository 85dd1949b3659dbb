package initwfn

import G "gorgonia.org/gorgonia"

// ZeroesConfig describes an initializer that sets every weight to 0.
// Zero initialization is mostly useful in tests, where network outputs
// then have known values.
type ZeroesConfig struct{}

// NewZeroes returns a weight initializer that zeroes all weights
func NewZeroes() (*InitWFn, error) {
	config := ZeroesConfig{}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by the
// configuration
func (z ZeroesConfig) Type() Type {
	return Zeroes
}

// Create returns the Gorgonia InitWFn described by the configuration
func (z ZeroesConfig) Create() G.InitWFn {
	return G.Zeroes()
}

// OnesConfig describes an initializer that sets every weight to 1
type OnesConfig struct{}

// NewOnes returns a weight initializer that sets all weights to 1
func NewOnes() (*InitWFn, error) {
	config := OnesConfig{}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by the
// configuration
func (o OnesConfig) Type() Type {
	return Ones
}

// Create returns the Gorgonia InitWFn described by the configuration
func (o OnesConfig) Create() G.InitWFn {
	return G.Ones()
}

// ConstantConfig describes an initializer that sets every weight to a
// fixed value
type ConstantConfig struct {
	Value float64
}

// NewConstant returns a weight initializer that sets all weights to
// value
func NewConstant(value float64) (*InitWFn, error) {
	config := ConstantConfig{value}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by the
// configuration
func (c ConstantConfig) Type() Type {
	return Constant
}

// Create returns the Gorgonia InitWFn described by the configuration
func (c ConstantConfig) Create() G.InitWFn {
	return G.ValuesOf(c.Value)
}
