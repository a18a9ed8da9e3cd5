package trainer

import (
	"context"
	"errors"
	"fmt"

	"mlp-mnist/autograd"
	"mlp-mnist/dataset"
	"mlp-mnist/nn"
	"mlp-mnist/tensor"
)

// ComputeAccuracy returns the percentage of samples whose argmax logit matches the label.
// it runs without recording a graph and stops between batches once ctx is done.
func ComputeAccuracy(ctx context.Context, model Model, loader *dataset.Loader) (float64, error) {
	correct, total := 0, 0
	err := autograd.NoGrad(func() error {
		return loader.ForEach(func(_ int, b dataset.Batch) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			logits, err := model.Forward(b.Images)
			if err != nil {
				return err
			}
			predicted, err := tensor.ArgMaxRows(logits)
			if err != nil {
				return err
			}
			for i, p := range predicted {
				if p == b.Labels[i] {
					correct++
				}
			}
			total += len(b.Labels)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, errors.New("accuracy of an empty dataset is undefined")
	}
	return float64(correct) / float64(total) * 100, nil
}

// Prediction is the most likely class and its softmax probability.
type Prediction struct {
	Label       int
	Probability float64
}

// Predict classifies a batch of images.
func Predict(model Model, images *tensor.Tensor) ([]Prediction, error) {
	var out []Prediction
	err := autograd.NoGrad(func() error {
		logits, err := model.Forward(images)
		if err != nil {
			return err
		}
		probs, err := nn.Softmax(logits)
		if err != nil {
			return err
		}
		labels, err := tensor.ArgMaxRows(probs)
		if err != nil {
			return err
		}
		classes := probs.GetShape()[1]
		data := probs.GetData()
		out = make([]Prediction, len(labels))
		for i, l := range labels {
			out[i] = Prediction{Label: l, Probability: data[i*classes+l]}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return out, nil
}
