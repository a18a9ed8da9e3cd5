package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"mlp-mnist/tensor"
)

// elementwise builds out = f(t) with backward dL/dx_i = dL/dy_i * dy_i/dx_i,
// where deriv gets both the input and the output value.
func elementwise(t *tensor.Tensor, op string, f func(x float64) float64, deriv func(x, y float64) float64) (*tensor.Tensor, error) {
	tData := t.GetData()
	outData := make([]float64, len(tData))
	for i, v := range tData {
		outData[i] = f(v)
	}

	out, err := tensor.NewTensor(t.GetShape(), outData)
	if err != nil {
		return nil, fmt.Errorf("%s failed to create output tensor: %w", op, err)
	}
	y := out.GetData()

	tensor.Track(out, op, func(grad *tensor.Tensor) error {
		gradData := grad.GetData()
		gradDataForT := make([]float64, len(gradData))
		for i := range gradDataForT {
			gradDataForT[i] = gradData[i] * deriv(tData[i], y[i])
		}
		g, err := tensor.NewTensor(t.GetShape(), gradDataForT)
		if err != nil {
			return fmt.Errorf("%s backward: %w", op, err)
		}
		return t.AccumulateGrad(g)
	}, t)
	return out, nil
}

// you definitely know RELU if you're reading this: out = max(0, t)
func RELU(t *tensor.Tensor) (*tensor.Tensor, error) {
	return elementwise(t, "relu",
		func(x float64) float64 { return math.Max(0, x) },
		// gradient of RELU is 1 if input > 0, else 0
		func(x, _ float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		})
}

// we apply element wise sigmoid : out = 1 / (1 + exp(-t))
func Sigmoid(t *tensor.Tensor) (*tensor.Tensor, error) {
	return elementwise(t, "sigmoid",
		func(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) },
		func(_, y float64) float64 { return y * (1 - y) })
}

// element wise hyperbolic tangent : out = tanh(t)
func Tanh(t *tensor.Tensor) (*tensor.Tensor, error) {
	return elementwise(t, "tanh", math.Tanh,
		func(_, y float64) float64 { return 1 - y*y })
}

// Softmax normalizes each row of a [B, C] tensor into probabilities.
// Softmax(x)_i = exp(x_i - max) / sum_j(exp(x_j - max))
//
// backward is the standalone Jacobian product. training goes through CrossEntropyLoss,
// which folds softmax into the much simpler (p - onehot) gradient.
func Softmax(t *tensor.Tensor) (*tensor.Tensor, error) {
	shape := t.GetShape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("softmax expects a 2D tensor [batch, classes], got %v", shape)
	}
	rows, cols := shape[0], shape[1]
	tData := t.GetData()
	outData := make([]float64, len(tData))

	for r := 0; r < rows; r++ {
		softmaxRow(outData[r*cols:(r+1)*cols], tData[r*cols:(r+1)*cols])
	}

	out, err := tensor.NewTensor(shape, outData)
	if err != nil {
		return nil, fmt.Errorf("softmax failed to create output tensor: %w", err)
	}
	y := out.GetData()

	tensor.Track(out, "softmax", func(grad *tensor.Tensor) error {
		// dL/dx_j = y_j * (dL/dy_j - sum_i(dL/dy_i * y_i)), per row
		gradData := grad.GetData()
		gradDataForT := make([]float64, len(gradData))
		for r := 0; r < rows; r++ {
			lo, hi := r*cols, (r+1)*cols
			dot := 0.0
			for i := lo; i < hi; i++ {
				dot += gradData[i] * y[i]
			}
			for i := lo; i < hi; i++ {
				gradDataForT[i] = y[i] * (gradData[i] - dot)
			}
		}
		g, err := tensor.NewTensor(shape, gradDataForT)
		if err != nil {
			return fmt.Errorf("softmax backward: %w", err)
		}
		return t.AccumulateGrad(g)
	}, t)
	return out, nil
}

// softmaxRow writes the stable softmax of logits into dst.
func softmaxRow(dst, logits []float64) {
	maxv := floats.Max(logits)
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - maxv)
		dst[i] = e
		sum += e
	}
	// sum >= 1 because the max term contributes exp(0)
	floats.Scale(1/sum, dst)
}
