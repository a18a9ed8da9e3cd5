package nn

import (
	"fmt"
	"strings"

	"mlp-mnist/tensor"
)

// Sequential is a container for layers arranged in a sequential order.
type Sequential struct {
	layers []Layer
}

func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{layers: append([]Layer{}, layers...)}
}

// Add appends a layer to the end of the model.
func (s *Sequential) Add(layer Layer) {
	s.layers = append(s.layers, layer)
}

// Forward feeds x through every layer in order.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	for i, layer := range s.layers {
		x, err = layer.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, layer.Name(), err)
		}
	}
	return x, nil
}

// Parameters collects the parameters of all layers, in layer order.
func (s *Sequential) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{}
	for _, layer := range s.layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}

func (s *Sequential) ZeroGrad() {
	for _, layer := range s.layers {
		layer.ZeroGrad()
	}
}

func (s *Sequential) Layers() []Layer {
	return s.layers
}

// Name lists the contained layers, e.g. "Sequential(Flatten, Linear(784->50), ReLU)".
func (s *Sequential) Name() string {
	names := make([]string, len(s.layers))
	for i, l := range s.layers {
		names[i] = l.Name()
	}
	return "Sequential(" + strings.Join(names, ", ") + ")"
}
