package optimizer

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"mlp-mnist/tensor"
)

// common method all optimizers must utilize
type Optimizer interface {
	Step() error
	ZeroGrad()
	Parameters() []*tensor.Tensor // return the parameters managed by the optimizer
}

// SGD : plain Stochastic Gradient Descent, no momentum or weight decay.
type SGD struct {
	learningRate float64
	parameters   []*tensor.Tensor
}

// NewSGD takes the model parameters (tensors with RequiresGrad=true) and a learning rate.
// parameters that do not require grad are dropped.
func NewSGD(parameters []*tensor.Tensor, learningRate float64) (*SGD, error) {
	if learningRate <= 0 {
		return nil, fmt.Errorf("optimizer: learning rate must be positive, got %f", learningRate)
	}

	validParams := []*tensor.Tensor{}
	for _, p := range parameters {
		if p != nil && p.RequiresGrad {
			validParams = append(validParams, p)
		}
	}
	if len(validParams) == 0 {
		return nil, fmt.Errorf("optimizer: no parameters requiring gradients provided")
	}

	return &SGD{
		learningRate: learningRate,
		parameters:   validParams,
	}, nil
}

// Step applies parameter = parameter - learning_rate * gradient.
func (s *SGD) Step() error {
	for i, p := range s.parameters {
		if p.Grad == nil {
			// parameter did not take part in the forward pass that produced the loss
			continue
		}
		if !tensor.IsSameSize(p, p.Grad) {
			return fmt.Errorf("optimizer: gradient size mismatch for parameter %d: grad shape %v, parameter shape %v",
				i, p.Grad.GetShape(), p.GetShape())
		}

		floats.AddScaled(p.GetData(), -s.learningRate, p.Grad.GetData())
	}
	return nil
}

// sets the gradients of all managed params to zero
func (s *SGD) ZeroGrad() {
	for _, p := range s.parameters {
		p.ZeroGrad()
	}
}

func (s *SGD) Parameters() []*tensor.Tensor {
	return s.parameters
}

func (s *SGD) LearningRate() float64 {
	return s.learningRate
}
