package tensor

import (
	"fmt"
)

// NOTE: most functions here are self-explanatory. the autograd bits are the ones worth reading:
// every op that sees a tracked input records its parents and a BackwardFunc, and the
// BackwardFunc only accumulates into the parents' Grad. walking the graph is autograd.Backward's job.

// Tensor is a dense row-major float64 tensor with an optional reverse-mode graph node.
type Tensor struct {
	shape        []int
	data         []float64
	Grad         *Tensor
	RequiresGrad bool
	Parents      []*Tensor
	Operation    string
	BackwardFunc func(grad *Tensor) error
}

// utility function to check if two tensors have the same shape
func IsSameSize(a, b *Tensor) bool {
	if len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return true
}

// builds a new tensor with the given shape and data. empty data allocates zeros.
func NewTensor(shape []int, data []float64) (*Tensor, error) {
	total := 1
	for _, dim := range shape {
		if dim <= 0 {
			return nil, fmt.Errorf("shape %v contains non-positive dimension", shape)
		}
		total *= dim
	}
	if len(data) > 0 && total != len(data) {
		return nil, fmt.Errorf("shape %v implies %d elements but data has length %d", shape, total, len(data))
	}
	if len(data) == 0 {
		data = make([]float64, total)
	}

	return &Tensor{
		shape: append([]int{}, shape...),
		data:  append([]float64{}, data...),
	}, nil
}

// wrap takes ownership of data without copying. callers guarantee len(data) matches shape.
func wrap(shape []int, data []float64) *Tensor {
	return &Tensor{shape: append([]int{}, shape...), data: data}
}

// clones a tensor (data and shape only, no graph)
func CloneTensor(t *Tensor) *Tensor {
	clonedData := make([]float64, len(t.data))
	copy(clonedData, t.data)
	return &Tensor{
		data:         clonedData,
		shape:        append([]int{}, t.shape...),
		RequiresGrad: t.RequiresGrad,
	}
}

// returns the number of elements in a tensor
func Numel(t *Tensor) int {
	if t == nil {
		return 0
	}
	if len(t.shape) == 0 {
		return len(t.data)
	}
	n := 1
	for _, s := range t.shape {
		if s <= 0 {
			return 0
		}
		n *= s
	}
	return n
}

// GetData and GetShape expose the backing slices. the optimizer writes through GetData.
func (t *Tensor) GetData() []float64 {
	return t.data
}

func (t *Tensor) GetShape() []int {
	return t.shape
}

// Item returns the single value of a one-element tensor.
func (t *Tensor) Item() (float64, error) {
	if len(t.data) != 1 {
		return 0, fmt.Errorf("item requires a one-element tensor, got shape %v", t.shape)
	}
	return t.data[0], nil
}

// returns a tensor with all elements set to 1
func OnesLike(t *Tensor) (*Tensor, error) {
	out, err := NewTensor(t.shape, nil)
	if err != nil {
		return nil, err
	}
	for i := range out.data {
		out.data[i] = 1
	}
	return out, nil
}

// returns a tensor of zeros with the shape of t
func ZerosLike(t *Tensor) (*Tensor, error) {
	return NewTensor(t.shape, nil)
}

// AccumulateGrad adds g into t.Grad, allocating it on first use.
func (t *Tensor) AccumulateGrad(g *Tensor) error {
	if !IsSameSize(t, g) {
		return fmt.Errorf("gradient shape %v does not match tensor shape %v (op=%q)", g.shape, t.shape, t.Operation)
	}
	if t.Grad == nil {
		t.Grad = CloneTensor(g)
		t.Grad.RequiresGrad = false
		return nil
	}
	for i := range t.Grad.data {
		t.Grad.data[i] += g.data[i]
	}
	return nil
}

// sets the gradient of a tensor to zero
func (t *Tensor) ZeroGrad() {
	if t.Grad != nil {
		for i := range t.Grad.data {
			t.Grad.data[i] = 0
		}
		return
	}
	if t.RequiresGrad {
		t.Grad = wrap(t.shape, make([]float64, Numel(t)))
	}
}

// Track links out to its parents when any of them is tracked and grad mode is on.
func Track(out *Tensor, op string, backward func(grad *Tensor) error, parents ...*Tensor) {
	if !IsGradEnabled() {
		return
	}
	tracked := false
	for _, p := range parents {
		if p.RequiresGrad {
			tracked = true
			break
		}
	}
	if !tracked {
		return
	}
	out.RequiresGrad = true
	out.Parents = parents
	out.Operation = op
	out.BackwardFunc = backward
}

// adds two tensors
func AddTensor(t1 *Tensor, t2 *Tensor) (*Tensor, error) {
	if !IsSameSize(t1, t2) {
		return nil, fmt.Errorf("tensors of shape %v and %v have different sizes for addition", t1.shape, t2.shape)
	}

	outData := make([]float64, len(t1.data))
	for i := range t1.data {
		outData[i] = t1.data[i] + t2.data[i]
	}
	out := wrap(t1.shape, outData)

	Track(out, "add", func(grad *Tensor) error {
		for _, p := range []*Tensor{t1, t2} {
			if !p.RequiresGrad {
				continue
			}
			if err := p.AccumulateGrad(grad); err != nil {
				return fmt.Errorf("add backward: %w", err)
			}
		}
		return nil
	}, t1, t2)
	return out, nil
}

// multiplies two tensors element-wise
func MulTensor(t1 *Tensor, t2 *Tensor) (*Tensor, error) {
	if !IsSameSize(t1, t2) {
		return nil, fmt.Errorf("tensors of shape %v and %v have different sizes for multiplication", t1.shape, t2.shape)
	}

	outData := make([]float64, len(t1.data))
	for i := range t1.data {
		outData[i] = t1.data[i] * t2.data[i]
	}
	out := wrap(t1.shape, outData)

	Track(out, "mul", func(grad *Tensor) error {
		if t1.RequiresGrad {
			g := make([]float64, len(grad.data))
			for i := range g {
				g[i] = grad.data[i] * t2.data[i]
			}
			if err := t1.AccumulateGrad(wrap(t1.shape, g)); err != nil {
				return fmt.Errorf("mul backward: %w", err)
			}
		}
		if t2.RequiresGrad {
			g := make([]float64, len(grad.data))
			for i := range g {
				g[i] = grad.data[i] * t1.data[i]
			}
			if err := t2.AccumulateGrad(wrap(t2.shape, g)); err != nil {
				return fmt.Errorf("mul backward: %w", err)
			}
		}
		return nil
	}, t1, t2)
	return out, nil
}

// reshapes the given tensor to the given shape
func Reshape(t *Tensor, newShape []int) (*Tensor, error) {
	reshapedNumel := 1
	for _, dim := range newShape {
		if dim <= 0 {
			return nil, fmt.Errorf("newShape %v contains non-positive dimension", newShape)
		}
		reshapedNumel *= dim
	}
	if Numel(t) != reshapedNumel {
		return nil, fmt.Errorf("cannot reshape tensor with %d elements to shape %v (requires %d elements)", Numel(t), newShape, reshapedNumel)
	}

	outData := make([]float64, len(t.data))
	copy(outData, t.data)
	out := wrap(newShape, outData)

	Track(out, "reshape", func(grad *Tensor) error {
		g := make([]float64, len(grad.data))
		copy(g, grad.data)
		return t.AccumulateGrad(wrap(t.shape, g))
	}, t)
	return out, nil
}

// transposes a 2D tensor [M, N] -> [N, M]
func Transpose(t *Tensor) (*Tensor, error) {
	if len(t.shape) != 2 {
		return nil, fmt.Errorf("transpose only supports 2D tensors currently, got %v", t.shape)
	}
	m, n := t.shape[0], t.shape[1]
	outData := make([]float64, m*n)
	for r := 0; r < m; r++ {
		for c := 0; c < n; c++ {
			outData[c*m+r] = t.data[r*n+c]
		}
	}
	out := wrap([]int{n, m}, outData)

	Track(out, "transpose", func(grad *Tensor) error {
		// grad(transpose) = transpose(grad)
		g := make([]float64, m*n)
		for r := 0; r < n; r++ {
			for c := 0; c < m; c++ {
				g[c*n+r] = grad.data[r*m+c]
			}
		}
		return t.AccumulateGrad(wrap(t.shape, g))
	}, t)
	return out, nil
}

// prints the tensor in readable format
func PrintTensor(t *Tensor) {
	if t == nil {
		fmt.Println("<nil tensor>")
		return
	}
	fmt.Printf("Tensor(shape=%v, data=%v, requires_grad=%v", t.shape, t.data, t.RequiresGrad)
	if t.Grad != nil {
		fmt.Printf(", grad_data=%v (shape=%v)", t.Grad.data, t.Grad.shape)
	}
	if t.Operation != "" {
		fmt.Printf(", op=%s", t.Operation)
	}
	fmt.Println(")")
}
