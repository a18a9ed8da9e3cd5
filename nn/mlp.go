package nn

import (
	"fmt"
	"math/rand"
)

// MLPConfig sizes the three dense layers of the classifier.
type MLPConfig struct {
	NumFeatures int
	NumHidden1  int
	NumHidden2  int
	NumClasses  int
	Activation  string // relu (default), sigmoid or tanh
}

// NewMLP builds Flatten -> Linear -> act -> Linear -> act -> Linear.
// the last layer emits raw logits; CrossEntropyLoss applies the softmax.
func NewMLP(cfg MLPConfig, random *rand.Rand) (*Sequential, error) {
	dims := []int{cfg.NumFeatures, cfg.NumHidden1, cfg.NumHidden2, cfg.NumClasses}
	model := NewSequential(NewFlatten())

	for i := 0; i < len(dims)-1; i++ {
		linear, err := NewLinear(dims[i], dims[i+1], random)
		if err != nil {
			return nil, fmt.Errorf("mlp layer %d: %w", i+1, err)
		}
		model.Add(linear)
		if i == len(dims)-2 {
			break
		}
		act, err := NewActivation(cfg.Activation)
		if err != nil {
			return nil, fmt.Errorf("mlp layer %d: %w", i+1, err)
		}
		model.Add(act)
	}
	return model, nil
}
