package autograd

import (
	"errors"
	"testing"

	"mlp-mnist/tensor"
)

func leaf(t *testing.T, data ...float64) *tensor.Tensor {
	t.Helper()
	x, err := tensor.NewTensor([]int{1, len(data)}, data)
	if err != nil {
		t.Fatal(err)
	}
	x.RequiresGrad = true
	return x
}

func TestBackwardDiamond(t *testing.T) {
	// y = (x*x) * (x*x) for a scalar x, through one shared node: dy/dx = 4x^3
	x := leaf(t, 3)
	sq, err := tensor.MulTensor(x, x)
	if err != nil {
		t.Fatal(err)
	}
	y, err := tensor.MulTensor(sq, sq)
	if err != nil {
		t.Fatal(err)
	}
	if err := Backward(y); err != nil {
		t.Fatalf("Backward: %v", err)
	}
	if got := x.Grad.GetData()[0]; got != 108 {
		t.Fatalf("dy/dx = %v, want 108", got)
	}
	// the shared node's BackwardFunc ran once, with both contributions summed
	if got := sq.Grad.GetData()[0]; got != 18 {
		t.Fatalf("dy/dsq = %v, want 18", got)
	}
}

func TestBackwardErrors(t *testing.T) {
	if err := Backward(nil); err == nil {
		t.Fatal("expected error for nil root")
	}

	plain, _ := tensor.NewTensor([]int{1}, []float64{1})
	if err := Backward(plain); err == nil {
		t.Fatal("expected error for untracked root")
	}

	x := leaf(t, 1, 2)
	y, err := tensor.AddTensor(x, x)
	if err != nil {
		t.Fatal(err)
	}
	if err := Backward(y); err == nil {
		t.Fatal("expected error for implicit gradient on non-scalar root")
	}
}

func TestNoGrad(t *testing.T) {
	x := leaf(t, 1, 2)
	var out *tensor.Tensor
	err := NoGrad(func() error {
		var err error
		out, err = tensor.AddTensor(x, x)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.RequiresGrad {
		t.Fatal("output recorded a graph under NoGrad")
	}
	if !tensor.IsGradEnabled() {
		t.Fatal("grad mode not restored")
	}

	boom := errors.New("boom")
	if err := NoGrad(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("NoGrad returned %v, want %v", err, boom)
	}
	if !tensor.IsGradEnabled() {
		t.Fatal("grad mode not restored after an error")
	}
}
