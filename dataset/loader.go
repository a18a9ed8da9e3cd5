package dataset

import (
	"fmt"
	"math/rand"

	"mlp-mnist/tensor"
)

// Batch is a minibatch of images [B, C, H, W] and their labels.
type Batch struct {
	Images *tensor.Tensor
	Labels []int
}

// Loader splits a dataset into minibatches, optionally reshuffled every epoch.
type Loader struct {
	ds        Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

// NewLoader needs rng only when shuffle is set.
func NewLoader(ds Dataset, batchSize int, shuffle bool, rng *rand.Rand) (*Loader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("loader: batch size must be > 0 (got %d)", batchSize)
	}
	if shuffle && rng == nil {
		return nil, fmt.Errorf("loader: shuffling needs a random source")
	}
	return &Loader{ds: ds, batchSize: batchSize, shuffle: shuffle, rng: rng}, nil
}

// Len is the number of batches per epoch; the last one may be short.
func (l *Loader) Len() int {
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

func (l *Loader) BatchSize() int   { return l.batchSize }
func (l *Loader) Dataset() Dataset { return l.ds }

// ForEach runs one epoch, calling fn with each batch index and batch.
// an error from fn stops the epoch and is returned as is.
func (l *Loader) ForEach(fn func(batchIdx int, b Batch) error) error {
	n := l.ds.Len()
	order := Range(0, n)
	if l.shuffle {
		order = l.rng.Perm(n)
	}

	for batchIdx := 0; batchIdx < l.Len(); batchIdx++ {
		start := batchIdx * l.batchSize
		end := start + l.batchSize
		if end > n {
			end = n
		}
		b, err := l.collate(order[start:end])
		if err != nil {
			return fmt.Errorf("loader: batch %d: %w", batchIdx, err)
		}
		if err := fn(batchIdx, b); err != nil {
			return err
		}
	}
	return nil
}

// collate stacks the samples at indices into one image tensor.
func (l *Loader) collate(indices []int) (Batch, error) {
	sampleShape := l.ds.Shape()
	size := 1
	for _, d := range sampleShape {
		size *= d
	}

	pixels := make([]float64, len(indices)*size)
	labels := make([]int, len(indices))
	for j, idx := range indices {
		s, err := l.ds.Get(idx)
		if err != nil {
			return Batch{}, err
		}
		if len(s.Pixels) != size {
			return Batch{}, fmt.Errorf("sample %d has %d pixels, expected %d", idx, len(s.Pixels), size)
		}
		copy(pixels[j*size:(j+1)*size], s.Pixels)
		labels[j] = s.Label
	}

	images, err := tensor.NewTensor(append([]int{len(indices)}, sampleShape...), pixels)
	if err != nil {
		return Batch{}, err
	}
	return Batch{Images: images, Labels: labels}, nil
}
