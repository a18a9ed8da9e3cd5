package nn

import (
	"fmt"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"

	"mlp-mnist/tensor"
)

// LossWorkers bounds the goroutines CrossEntropyLoss uses to fill its gradient.
// the trainer sets it from the detected device.
var LossWorkers = runtime.NumCPU()

// gradients smaller than this are filled on the calling goroutine
const parallelLossMin = 1 << 14

func lossWorkers(entries int) int {
	if entries < parallelLossMin || LossWorkers < 1 {
		return 1
	}
	return LossWorkers
}

// CrossEntropyLoss computes the mean cross-entropy between logits [batch_size, num_classes]
// and 0-indexed class targets:
//
//	loss_i = logsumexp(logits_i) - logits_i[target_i]
//
// the gradient w.r.t. logits is (softmax(logits) - onehot(target)) / batch_size.
func CrossEntropyLoss(logits *tensor.Tensor, targets []int) (*tensor.Tensor, error) {
	batchSize := len(targets)
	if batchSize == 0 {
		// loss, gradient = 0, 0
		return tensor.NewTensor([]int{1}, []float64{0})
	}

	shape := logits.GetShape()
	if len(shape) != 2 || shape[0] != batchSize {
		return nil, fmt.Errorf("cross_entropy_loss: logits shape %v does not match %d targets", shape, batchSize)
	}
	numClasses := shape[1]

	logitsData := logits.GetData()
	probsData := make([]float64, len(logitsData))
	lossSum := 0.0

	for i := 0; i < batchSize; i++ {
		targetIndex := targets[i]
		if targetIndex < 0 || targetIndex >= numClasses {
			return nil, fmt.Errorf("cross_entropy_loss: target index %d out of bounds for batch item %d with %d classes", targetIndex, i, numClasses)
		}
		row := logitsData[i*numClasses : (i+1)*numClasses]
		softmaxRow(probsData[i*numClasses:(i+1)*numClasses], row)
		lossSum += floats.LogSumExp(row) - row[targetIndex]
	}

	lossTensor, err := tensor.NewTensor([]int{1}, []float64{lossSum / float64(batchSize)})
	if err != nil {
		return nil, fmt.Errorf("cross_entropy_loss: failed to create output tensor for mean loss: %w", err)
	}

	tensor.Track(lossTensor, "cross_entropy_loss", func(grad *tensor.Tensor) error {
		scale := grad.GetData()[0] / float64(batchSize)
		gradDataForLogits := make([]float64, len(logitsData))

		fill := func(start, end int) {
			for item := start; item < end; item++ {
				base := item * numClasses
				for j := 0; j < numClasses; j++ {
					g := probsData[base+j]
					if j == targets[item] {
						g -= 1
					}
					gradDataForLogits[base+j] = g * scale
				}
			}
		}

		workers := lossWorkers(len(logitsData))
		if workers == 1 {
			fill(0, batchSize)
		} else {
			jobsPerGo := (batchSize + workers - 1) / workers
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				start, end := w*jobsPerGo, (w+1)*jobsPerGo
				if end > batchSize {
					end = batchSize
				}
				if start >= end {
					break
				}
				wg.Add(1)
				go func(start, end int) {
					defer wg.Done()
					fill(start, end)
				}(start, end)
			}
			wg.Wait()
		}

		g, err := tensor.NewTensor(shape, gradDataForLogits)
		if err != nil {
			return fmt.Errorf("cross_entropy_loss backward: %w", err)
		}
		return logits.AccumulateGrad(g)
	}, logits)

	return lossTensor, nil
}
