package nn

import (
	"fmt"
	"math"
	"math/rand"

	"mlp-mnist/tensor"
)

// linear dense layer: output = input @ weight + bias
type Linear struct {
	weight *tensor.Tensor // Shape: [inputDimensions, outputDimensions]
	bias   *tensor.Tensor // Shape: [outputDimensions]
}

// NewLinear creates a Linear layer with weights and biases drawn from U(-1/sqrt(in), 1/sqrt(in)).
// both are parameters, so RequiresGrad is set. pass the same seeded random to get the same model twice.
func NewLinear(inputDimensions, outputDimensions int, random *rand.Rand) (*Linear, error) {
	if inputDimensions <= 0 || outputDimensions <= 0 {
		return nil, fmt.Errorf("linear layer dimensions must be positive, got input %d, output %d", inputDimensions, outputDimensions)
	}
	if random == nil {
		return nil, fmt.Errorf("linear layer needs a random source for initialization")
	}

	bound := 1 / math.Sqrt(float64(inputDimensions))
	uniform := func(n int) []float64 {
		data := make([]float64, n)
		for i := range data {
			data[i] = (2*random.Float64() - 1) * bound
		}
		return data
	}

	weights, err := tensor.NewTensor([]int{inputDimensions, outputDimensions}, uniform(inputDimensions*outputDimensions))
	if err != nil {
		return nil, fmt.Errorf("linear layer failed to create weight tensor: %w", err)
	}
	weights.RequiresGrad = true

	bias, err := tensor.NewTensor([]int{outputDimensions}, uniform(outputDimensions))
	if err != nil {
		return nil, fmt.Errorf("linear layer failed to create bias tensor: %w", err)
	}
	bias.RequiresGrad = true

	return &Linear{weight: weights, bias: bias}, nil
}

// Forward takes [batch_size, input_dimensions] and returns [batch_size, output_dimensions].
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	inputShape := input.GetShape()
	if len(inputShape) != 2 {
		return nil, fmt.Errorf("linear layer expects 2D input tensor [batch_size, input_dimensions], got shape %v", inputShape)
	}
	if want := l.weight.GetShape()[0]; inputShape[1] != want {
		return nil, fmt.Errorf("linear layer input dimension mismatch: input %d, weight expected %d", inputShape[1], want)
	}

	step, err := tensor.MatMulTensor(input, l.weight)
	if err != nil {
		return nil, fmt.Errorf("linear layer matmul failed: %w", err)
	}
	output, err := tensor.AddRowVector(step, l.bias)
	if err != nil {
		return nil, fmt.Errorf("linear layer bias addition failed: %w", err)
	}
	return output, nil
}

// Parameters returns weight then bias. the optimizer and the inspector rely on that order.
func (l *Linear) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{l.weight, l.bias}
}

func (l *Linear) ZeroGrad() {
	l.weight.ZeroGrad()
	l.bias.ZeroGrad()
}

func (l *Linear) Name() string {
	s := l.weight.GetShape()
	return fmt.Sprintf("Linear(%d->%d)", s[0], s[1])
}

// Weight and Bias expose the parameter tensors, mostly for tests and inspection.
func (l *Linear) Weight() *tensor.Tensor { return l.weight }
func (l *Linear) Bias() *tensor.Tensor   { return l.bias }
