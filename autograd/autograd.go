package autograd

import (
	"fmt"

	"mlp-mnist/tensor"
)

// Backward runs reverse-mode differentiation from root.
// root.Grad is seeded with ones when it is unset, which only makes sense for a scalar loss.
// nodes are visited once each in reverse topological order of tensor.Tensor.Parents,
// so a BackwardFunc always sees the fully accumulated gradient of its output.
func Backward(root *tensor.Tensor) error {
	if root == nil {
		return fmt.Errorf("autograd: backward called on nil tensor")
	}
	if !root.RequiresGrad {
		return fmt.Errorf("autograd: root tensor (op=%q) does not require grad", root.Operation)
	}

	if root.Grad == nil {
		if tensor.Numel(root) != 1 {
			return fmt.Errorf("autograd: implicit gradient needs a scalar root, got shape %v", root.GetShape())
		}
		ones, err := tensor.OnesLike(root)
		if err != nil {
			return fmt.Errorf("autograd: seeding root gradient: %w", err)
		}
		root.Grad = ones
	}

	for _, node := range reverseTopo(root) {
		if node.BackwardFunc == nil || node.Grad == nil {
			// leaves, or branches that never received a gradient
			continue
		}
		if err := node.BackwardFunc(node.Grad); err != nil {
			return fmt.Errorf("autograd: backward through %q: %w", node.Operation, err)
		}
	}
	return nil
}

// reverseTopo orders the tracked graph under root so every node precedes its parents.
func reverseTopo(root *tensor.Tensor) []*tensor.Tensor {
	visited := make(map[*tensor.Tensor]bool)
	var topo []*tensor.Tensor

	// iterative dfs; deep graphs would otherwise recurse once per op
	type frame struct {
		t    *tensor.Tensor
		next int
	}
	stack := []frame{{t: root}}
	visited[root] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.t.RequiresGrad && top.next < len(top.t.Parents) {
			p := top.t.Parents[top.next]
			top.next++
			if p != nil && !visited[p] {
				visited[p] = true
				stack = append(stack, frame{t: p})
			}
			continue
		}
		topo = append(topo, top.t)
		stack = stack[:len(stack)-1]
	}

	for i, j := 0, len(topo)-1; i < j; i, j = i+1, j-1 {
		topo[i], topo[j] = topo[j], topo[i]
	}
	return topo
}

// NoGrad runs fn with graph recording switched off, the way evaluation passes should run.
func NoGrad(fn func() error) error {
	prev := tensor.IsGradEnabled()
	tensor.SetGradEnabled(false)
	defer tensor.SetGradEnabled(prev)
	return fn()
}
