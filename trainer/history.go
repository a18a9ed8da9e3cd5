package trainer

import "gonum.org/v1/gonum/floats"

// History is what a training run leaves behind for plotting.
type History struct {
	MinibatchLoss []float64 // one per optimizer step
	TrainAcc      []float64 // one per epoch, percent
	ValidAcc      []float64
}

// RunningAverage is the valid-mode moving average of values over window steps:
// len(values)-window+1 points, none when there are fewer values than the window.
func RunningAverage(values []float64, window int) []float64 {
	if window <= 0 || len(values) < window {
		return []float64{}
	}
	out := make([]float64, len(values)-window+1)
	sum := floats.Sum(values[:window])
	out[0] = sum / float64(window)
	for i := 1; i < len(out); i++ {
		sum += values[i+window-1] - values[i-1]
		out[i] = sum / float64(window)
	}
	return out
}
