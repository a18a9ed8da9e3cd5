// Package dataset provides labeled image datasets and a minibatch loader over them.
package dataset

import (
	"fmt"
)

// Sample is one image scaled to [0, 1] with its class label.
type Sample struct {
	Pixels []float64 // C*H*W values, row-major
	Label  int
}

// Dataset is an indexable collection of equally shaped samples.
type Dataset interface {
	Len() int
	Get(i int) (Sample, error)
	Shape() []int // per-sample shape, [C, H, W]
}

// InMemory holds float pixels and labels for every sample.
type InMemory struct {
	shape  []int
	pixels []float64
	labels []int
}

// NewInMemory builds a dataset of len(labels) samples of the given shape.
func NewInMemory(shape []int, pixels []float64, labels []int) (*InMemory, error) {
	size := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("dataset: sample shape %v contains non-positive dimension", shape)
		}
		size *= d
	}
	if len(pixels) != size*len(labels) {
		return nil, fmt.Errorf("dataset: %d labels of shape %v need %d pixels, got %d", len(labels), shape, size*len(labels), len(pixels))
	}
	return &InMemory{
		shape:  append([]int{}, shape...),
		pixels: pixels,
		labels: labels,
	}, nil
}

func (d *InMemory) Len() int     { return len(d.labels) }
func (d *InMemory) Shape() []int { return d.shape }

func (d *InMemory) Get(i int) (Sample, error) {
	if i < 0 || i >= len(d.labels) {
		return Sample{}, fmt.Errorf("dataset: index %d out of range [0, %d)", i, len(d.labels))
	}
	size := len(d.pixels) / len(d.labels)
	return Sample{Pixels: d.pixels[i*size : (i+1)*size], Label: d.labels[i]}, nil
}

// SubsetDataset views a parent dataset through a list of indices.
type SubsetDataset struct {
	parent  Dataset
	indices []int
}

// Subset restricts ds to indices. every index is checked up front.
func Subset(ds Dataset, indices []int) (*SubsetDataset, error) {
	n := ds.Len()
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("dataset: subset index %d out of range [0, %d)", idx, n)
		}
	}
	return &SubsetDataset{parent: ds, indices: append([]int{}, indices...)}, nil
}

func (s *SubsetDataset) Len() int     { return len(s.indices) }
func (s *SubsetDataset) Shape() []int { return s.parent.Shape() }

func (s *SubsetDataset) Get(i int) (Sample, error) {
	if i < 0 || i >= len(s.indices) {
		return Sample{}, fmt.Errorf("dataset: subset index %d out of range [0, %d)", i, len(s.indices))
	}
	return s.parent.Get(s.indices[i])
}

// Range returns lo, lo+1, ..., hi-1.
func Range(lo, hi int) []int {
	if hi <= lo {
		return []int{}
	}
	out := make([]int, hi-lo)
	for i := range out {
		out[i] = lo + i
	}
	return out
}

// Split carves ds into a training range [0, trainSize) and a validation range after it.
// validSize 0 means the validation range runs to the end of ds.
func Split(ds Dataset, trainSize, validSize int) (train, valid *SubsetDataset, err error) {
	n := ds.Len()
	if trainSize <= 0 || validSize < 0 {
		return nil, nil, fmt.Errorf("dataset: invalid split sizes train=%d validation=%d", trainSize, validSize)
	}
	validEnd := n
	if validSize > 0 {
		validEnd = trainSize + validSize
	}
	if trainSize >= n || validEnd > n {
		return nil, nil, fmt.Errorf("dataset: split %d train + %d validation does not fit %d samples", trainSize, validEnd-trainSize, n)
	}
	if train, err = Subset(ds, Range(0, trainSize)); err != nil {
		return nil, nil, err
	}
	if valid, err = Subset(ds, Range(trainSize, validEnd)); err != nil {
		return nil, nil, err
	}
	return train, valid, nil
}
