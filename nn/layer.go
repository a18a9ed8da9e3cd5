package nn

import (
	"fmt"

	"mlp-mnist/tensor"
)

// Layer defines the interface that all neural network layers must implement.
type Layer interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	ZeroGrad()
	Name() string
}

// --- Activation Layers ---

// Activation wraps a parameter-free element-wise function as a Layer.
type Activation struct {
	name string
	fn   func(*tensor.Tensor) (*tensor.Tensor, error)
}

func (a *Activation) Forward(input *tensor.Tensor) (*tensor.Tensor, error) { return a.fn(input) }
func (a *Activation) Parameters() []*tensor.Tensor                         { return []*tensor.Tensor{} }
func (a *Activation) ZeroGrad()                                            {}
func (a *Activation) Name() string                                         { return a.name }

func NewRELU() *Activation    { return &Activation{name: "ReLU", fn: RELU} }
func NewSigmoid() *Activation { return &Activation{name: "Sigmoid", fn: Sigmoid} }
func NewTanh() *Activation    { return &Activation{name: "Tanh", fn: Tanh} }

// NewActivation resolves an activation by its config name.
func NewActivation(name string) (*Activation, error) {
	switch name {
	case "", "relu":
		return NewRELU(), nil
	case "sigmoid":
		return NewSigmoid(), nil
	case "tanh":
		return NewTanh(), nil
	default:
		return nil, fmt.Errorf("unknown activation %q (want relu, sigmoid or tanh)", name)
	}
}
