// Package trainer runs the fixed-epoch minibatch SGD loop and evaluates classifiers.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"mlp-mnist/autograd"
	"mlp-mnist/dataset"
	"mlp-mnist/nn"
	"mlp-mnist/optimizer"
	"mlp-mnist/tensor"
)

// Model is what the loop needs from a network; *nn.Sequential satisfies it.
type Model interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	ZeroGrad()
}

// Observer receives progress as training runs, e.g. a live dashboard.
type Observer interface {
	OnBatch(p BatchProgress)
	OnEpoch(p EpochProgress)
}

type BatchProgress struct {
	Epoch, Epochs     int // 1-based
	Batch, Batches    int // 0-based batch index
	Loss              float64
	EpochStart, Start time.Time
}

type EpochProgress struct {
	Epoch, Epochs      int
	TrainAcc, ValidAcc float64
	Elapsed            time.Duration
}

// Options wires a training run together.
type Options struct {
	Model       Model
	Optimizer   optimizer.Optimizer
	TrainLoader *dataset.Loader
	ValidLoader *dataset.Loader
	Epochs      int
	LogEvery    int       // print batch loss when batchIdx % LogEvery == 0; default 50
	Out         io.Writer // progress text; default os.Stdout
	Observer    Observer  // optional
}

func (o *Options) validate() error {
	if o.Model == nil || o.Optimizer == nil {
		return errors.New("trainer: model and optimizer are required")
	}
	if o.TrainLoader == nil || o.ValidLoader == nil {
		return errors.New("trainer: train and validation loaders are required")
	}
	if o.Epochs <= 0 {
		return fmt.Errorf("trainer: epochs must be > 0 (got %d)", o.Epochs)
	}
	if o.LogEvery <= 0 {
		o.LogEvery = 50
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	return nil
}

// TrainModel runs forward -> loss -> zero grad -> backward -> step for every minibatch,
// then measures train and validation accuracy at the end of each epoch.
// cancelling ctx stops between batches, in training or evaluation, and returns the history
// so far with ctx.Err().
func TrainModel(ctx context.Context, opts Options) (*History, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	history := &History{}
	batches := opts.TrainLoader.Len()

	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		epochStart := time.Now()

		err := opts.TrainLoader.ForEach(func(batchIdx int, b dataset.Batch) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			loss, err := trainStep(opts.Model, opts.Optimizer, b)
			if err != nil {
				return fmt.Errorf("trainer: epoch %d, batch %d: %w", epoch, batchIdx, err)
			}
			history.MinibatchLoss = append(history.MinibatchLoss, loss)

			if batchIdx%opts.LogEvery == 0 {
				fmt.Fprintf(opts.Out, "Epoch: %03d/%03d | Batch %04d/%04d | Loss: %.4f\n",
					epoch, opts.Epochs, batchIdx, batches, loss)
			}
			if opts.Observer != nil {
				opts.Observer.OnBatch(BatchProgress{
					Epoch: epoch, Epochs: opts.Epochs,
					Batch: batchIdx, Batches: batches,
					Loss: loss, EpochStart: epochStart, Start: start,
				})
			}
			return nil
		})
		if err != nil {
			return history, err
		}

		trainAcc, err := ComputeAccuracy(ctx, opts.Model, opts.TrainLoader)
		if err != nil {
			return history, fmt.Errorf("trainer: epoch %d train accuracy: %w", epoch, err)
		}
		validAcc, err := ComputeAccuracy(ctx, opts.Model, opts.ValidLoader)
		if err != nil {
			return history, fmt.Errorf("trainer: epoch %d validation accuracy: %w", epoch, err)
		}
		// a cancel that lands after the last evaluation batch still ends the run
		if err := ctx.Err(); err != nil {
			return history, err
		}
		fmt.Fprintf(opts.Out, "Epoch: %03d/%03d | Train: %.2f%% | Validation: %.2f%%\n",
			epoch, opts.Epochs, trainAcc, validAcc)
		history.TrainAcc = append(history.TrainAcc, trainAcc)
		history.ValidAcc = append(history.ValidAcc, validAcc)

		elapsed := time.Since(start)
		fmt.Fprintf(opts.Out, "Time elapsed: %.2f min\n", elapsed.Minutes())
		if opts.Observer != nil {
			opts.Observer.OnEpoch(EpochProgress{
				Epoch: epoch, Epochs: opts.Epochs,
				TrainAcc: trainAcc, ValidAcc: validAcc, Elapsed: elapsed,
			})
		}
	}

	fmt.Fprintf(opts.Out, "Total Training Time: %.2f min\n", time.Since(start).Minutes())
	return history, nil
}

// trainStep does one SGD update and returns the minibatch loss.
func trainStep(model Model, opt optimizer.Optimizer, b dataset.Batch) (float64, error) {
	logits, err := model.Forward(b.Images)
	if err != nil {
		return 0, fmt.Errorf("forward pass failed: %w", err)
	}
	loss, err := nn.CrossEntropyLoss(logits, b.Labels)
	if err != nil {
		return 0, fmt.Errorf("loss calculation failed: %w", err)
	}
	value, err := loss.Item()
	if err != nil {
		return 0, err
	}

	opt.ZeroGrad()
	if err := autograd.Backward(loss); err != nil {
		return 0, fmt.Errorf("backward pass failed: %w", err)
	}
	if err := opt.Step(); err != nil {
		return 0, fmt.Errorf("optimizer step failed: %w", err)
	}
	return value, nil
}

var errStop = errors.New("stop")

// PrintBatchShapes prints the shapes of the first batch, a quick sanity check of the loader.
func PrintBatchShapes(w io.Writer, loader *dataset.Loader) error {
	err := loader.ForEach(func(_ int, b dataset.Batch) error {
		fmt.Fprintln(w, "Image batch dimensions:", b.Images.GetShape())
		fmt.Fprintln(w, "Image label dimensions:", []int{len(b.Labels)})
		return errStop
	})
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}
