package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// denseData returns the backing slice of a freshly computed gonum result.
// results of Mul on a zero Dense are contiguous, so stride == cols.
func denseData(m *mat.Dense) []float64 {
	return m.RawMatrix().Data
}

// MatMulTensor performs [M, K] @ [K, N] -> [M, N].
// for the Linear layer this is input [B, I] @ weight [I, O].
func MatMulTensor(t1 *Tensor, t2 *Tensor) (*Tensor, error) {
	if len(t1.shape) != 2 || len(t2.shape) != 2 {
		return nil, fmt.Errorf("matmul only supports 2D tensors ([M, K] @ [K, N]) currently, got %v and %v", t1.shape, t2.shape)
	}
	m, k := t1.shape[0], t1.shape[1]
	kw, n := t2.shape[0], t2.shape[1]
	if k != kw {
		return nil, fmt.Errorf("matmul incompatible shapes: inner dimensions mismatch %v and %v (%d != %d)", t1.shape, t2.shape, k, kw)
	}

	a := mat.NewDense(m, k, t1.data)
	b := mat.NewDense(k, n, t2.data)
	var c mat.Dense
	c.Mul(a, b)
	out := wrap([]int{m, n}, denseData(&c))

	Track(out, "matmul", func(grad *Tensor) error {
		if len(grad.shape) != 2 || grad.shape[0] != m || grad.shape[1] != n {
			return fmt.Errorf("matmul backward: got gradient shape %v, expected [%d %d]", grad.shape, m, n)
		}
		dy := mat.NewDense(m, n, grad.data)

		// dL/dX = dL/dO @ W.T
		if t1.RequiresGrad {
			var dx mat.Dense
			dx.Mul(dy, b.T())
			if err := t1.AccumulateGrad(wrap(t1.shape, denseData(&dx))); err != nil {
				return fmt.Errorf("matmul backward: %w", err)
			}
		}
		// dL/dW = X.T @ dL/dO
		if t2.RequiresGrad {
			var dw mat.Dense
			dw.Mul(a.T(), dy)
			if err := t2.AccumulateGrad(wrap(t2.shape, denseData(&dw))); err != nil {
				return fmt.Errorf("matmul backward: %w", err)
			}
		}
		return nil
	}, t1, t2)
	return out, nil
}

// AddRowVector adds v [N] to every row of x [B, N]. the gradient for v is the column sum.
func AddRowVector(x *Tensor, v *Tensor) (*Tensor, error) {
	if len(x.shape) != 2 {
		return nil, fmt.Errorf("add row vector expects a 2D input, got %v", x.shape)
	}
	rows, cols := x.shape[0], x.shape[1]
	if len(v.shape) != 1 || v.shape[0] != cols {
		return nil, fmt.Errorf("add row vector: vector shape %v, expected [%d]", v.shape, cols)
	}

	outData := make([]float64, len(x.data))
	for r := 0; r < rows; r++ {
		row := outData[r*cols : (r+1)*cols]
		floats.AddTo(row, x.data[r*cols:(r+1)*cols], v.data)
	}
	out := wrap(x.shape, outData)

	Track(out, "add_row_vector", func(grad *Tensor) error {
		if x.RequiresGrad {
			g := make([]float64, len(grad.data))
			copy(g, grad.data)
			if err := x.AccumulateGrad(wrap(x.shape, g)); err != nil {
				return fmt.Errorf("add row vector backward: %w", err)
			}
		}
		if v.RequiresGrad {
			g := make([]float64, cols)
			for r := 0; r < rows; r++ {
				floats.Add(g, grad.data[r*cols:(r+1)*cols])
			}
			if err := v.AccumulateGrad(wrap(v.shape, g)); err != nil {
				return fmt.Errorf("add row vector backward: %w", err)
			}
		}
		return nil
	}, x, v)
	return out, nil
}

// ArgMaxRows returns the column index of the largest value in each row of a [B, N] tensor.
// ties go to the lowest index.
func ArgMaxRows(t *Tensor) ([]int, error) {
	if len(t.shape) != 2 {
		return nil, fmt.Errorf("argmax expects a 2D tensor, got %v", t.shape)
	}
	rows, cols := t.shape[0], t.shape[1]
	out := make([]int, rows)
	for r := 0; r < rows; r++ {
		out[r] = floats.MaxIdx(t.data[r*cols : (r+1)*cols])
	}
	return out, nil
}
