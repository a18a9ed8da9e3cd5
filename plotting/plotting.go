// Package plotting renders the training curves with gonum/plot.
package plotting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"mlp-mnist/trainer"
)

// file names, without extension, of the two figures
const (
	LossFile     = "plot_training_loss"
	AccuracyFile = "plot_acc_training_validation"
)

// zoomAfter is the iteration from which the loss y-range is clipped once there are more points.
const zoomAfter = 1000

var (
	width  = 8 * vg.Inch
	height = 5 * vg.Inch
)

// TrainingLoss plots every minibatch loss plus its running average over averaging iterations.
// the x axis counts iterations; every tenth epoch boundary gets a second label line.
func TrainingLoss(loss []float64, numEpochs, iterPerEpoch, averaging int) (*plot.Plot, error) {
	if len(loss) == 0 {
		return nil, errors.New("plotting: no loss values")
	}

	p := plot.New()
	p.X.Label.Text = "Iterations"
	p.Y.Label.Text = "Loss"
	p.Legend.Top = true

	raw, err := plotter.NewLine(series(loss, 0))
	if err != nil {
		return nil, fmt.Errorf("plotting: minibatch loss: %w", err)
	}
	raw.Color = plotutil.Color(0)
	p.Add(raw)
	p.Legend.Add("Minibatch Loss", raw)

	if avg := trainer.RunningAverage(loss, averaging); len(avg) > 0 {
		// np.convolve(mode="valid") output starts at x=0
		line, err := plotter.NewLine(series(avg, 0))
		if err != nil {
			return nil, fmt.Errorf("plotting: running average: %w", err)
		}
		line.Color = plotutil.Color(1)
		p.Add(line)
		p.Legend.Add("Running Average", line)
	}

	if len(loss) > zoomAfter {
		p.Y.Min = 0
		p.Y.Max = floats.Max(loss[zoomAfter:]) * 1.5
	}
	if iterPerEpoch > 0 && numEpochs > 0 {
		p.X.Tick.Marker = epochTicks{iterPerEpoch: iterPerEpoch, numEpochs: numEpochs, every: 10}
	}
	return p, nil
}

// Accuracy plots train and validation accuracy per epoch, epochs numbered from 1.
func Accuracy(train, valid []float64) (*plot.Plot, error) {
	if len(train) == 0 {
		return nil, errors.New("plotting: no accuracy values")
	}
	if len(valid) != len(train) {
		return nil, fmt.Errorf("plotting: %d training but %d validation accuracies", len(train), len(valid))
	}

	p := plot.New()
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Accuracy"
	p.Legend.Top = true
	p.Legend.Left = false

	if err := plotutil.AddLines(p,
		"Training", series(train, 1),
		"Validation", series(valid, 1),
	); err != nil {
		return nil, fmt.Errorf("plotting: accuracy: %w", err)
	}
	return p, nil
}

// SaveIn writes p to resultsDir/name.format and returns the path.
// an empty resultsDir means the caller did not ask for files; nothing is written.
func SaveIn(p *plot.Plot, resultsDir, name, format string) (string, error) {
	if resultsDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return "", fmt.Errorf("plotting: create %s: %w", resultsDir, err)
	}
	path := filepath.Join(resultsDir, name+"."+format)
	if err := p.Save(width, height, path); err != nil {
		return "", fmt.Errorf("plotting: save %s: %w", path, err)
	}
	return path, nil
}

// series turns ys into points with x starting at first.
func series(ys []float64, first int) plotter.XYs {
	pts := make(plotter.XYs, len(ys))
	for i, y := range ys {
		pts[i].X = float64(first + i)
		pts[i].Y = y
	}
	return pts
}
