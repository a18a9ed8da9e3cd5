package trainer

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"mlp-mnist/dataset"
	"mlp-mnist/nn"
	"mlp-mnist/optimizer"
	"mlp-mnist/tensor"
)

// patterns builds n samples of two fixed 1x2x2 patterns, label = i%2.
func patterns(t *testing.T, n int) dataset.Dataset {
	t.Helper()
	var pixels []float64
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i] = i % 2
		if labels[i] == 0 {
			pixels = append(pixels, 1, 0, 1, 0)
		} else {
			pixels = append(pixels, 0, 1, 0, 1)
		}
	}
	ds, err := dataset.NewInMemory([]int{1, 2, 2}, pixels, labels)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func loader(t *testing.T, ds dataset.Dataset, batchSize int, seed int64) *dataset.Loader {
	t.Helper()
	l, err := dataset.NewLoader(ds, batchSize, true, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatal(err)
	}
	return l
}

// firstPixelModel predicts class 0 when the first pixel is lit.
type firstPixelModel struct{}

func (firstPixelModel) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	shape := x.GetShape()
	size := tensor.Numel(x) / shape[0]
	data := x.GetData()
	out := make([]float64, 0, 2*shape[0])
	for i := 0; i < shape[0]; i++ {
		out = append(out, data[i*size], data[i*size+1])
	}
	return tensor.NewTensor([]int{shape[0], 2}, out)
}
func (firstPixelModel) Parameters() []*tensor.Tensor { return nil }
func (firstPixelModel) ZeroGrad()                    {}

type countingObserver struct {
	batches, epochs int
	last            EpochProgress
}

func (c *countingObserver) OnBatch(BatchProgress)   { c.batches++ }
func (c *countingObserver) OnEpoch(p EpochProgress) { c.epochs++; c.last = p }

func newOptions(t *testing.T, epochs int) (Options, *bytes.Buffer) {
	t.Helper()
	random := rand.New(rand.NewSource(123))
	model, err := nn.NewMLP(nn.MLPConfig{NumFeatures: 4, NumHidden1: 16, NumHidden2: 8, NumClasses: 2}, random)
	if err != nil {
		t.Fatal(err)
	}
	sgd, err := optimizer.NewSGD(model.Parameters(), 0.5)
	if err != nil {
		t.Fatal(err)
	}
	out := &bytes.Buffer{}
	return Options{
		Model:       model,
		Optimizer:   sgd,
		TrainLoader: loader(t, patterns(t, 8), 3, 1),
		ValidLoader: loader(t, patterns(t, 6), 3, 2),
		Epochs:      epochs,
		LogEvery:    2,
		Out:         out,
	}, out
}

func TestTrainModelLearnsSeparablePatterns(t *testing.T) {
	opts, out := newOptions(t, 60)
	obs := &countingObserver{}
	opts.Observer = obs

	history, err := TrainModel(context.Background(), opts)
	if err != nil {
		t.Fatalf("TrainModel: %v", err)
	}

	// 8 samples in batches of 3: 3 steps per epoch
	if len(history.MinibatchLoss) != 60*3 {
		t.Fatalf("recorded %d losses, want %d", len(history.MinibatchLoss), 60*3)
	}
	if len(history.TrainAcc) != 60 || len(history.ValidAcc) != 60 {
		t.Fatalf("recorded %d/%d accuracies, want 60", len(history.TrainAcc), len(history.ValidAcc))
	}
	if obs.batches != 180 || obs.epochs != 60 || obs.last.Epoch != 60 {
		t.Fatalf("observer saw %d batches, %d epochs (last %+v)", obs.batches, obs.epochs, obs.last)
	}

	first, last := history.MinibatchLoss[0], history.MinibatchLoss[len(history.MinibatchLoss)-1]
	if !(last < first) {
		t.Fatalf("loss did not decrease: first %.4f, last %.4f", first, last)
	}
	if acc := history.ValidAcc[len(history.ValidAcc)-1]; acc != 100 {
		t.Fatalf("final validation accuracy %.2f%%, want 100%%", acc)
	}

	text := out.String()
	for _, want := range []string{
		"Epoch: 001/060 | Batch 0000/0003 | Loss: ",
		"Epoch: 001/060 | Batch 0002/0003 | Loss: ",
		"Epoch: 060/060 | Train: 100.00% | Validation: 100.00%",
		"Time elapsed: ",
		"Total Training Time: ",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output is missing %q:\n%s", want, text[:min(len(text), 600)])
		}
	}
	if strings.Contains(text, "Batch 0001/0003") {
		t.Fatal("batch 1 should not be logged with LogEvery=2")
	}
}

func TestTrainModelCancelled(t *testing.T) {
	opts, _ := newOptions(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	history, err := TrainModel(ctx, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if history == nil || len(history.MinibatchLoss) != 0 {
		t.Fatalf("unexpected history %+v", history)
	}
}

// cancelOnEval cancels the run from inside the first forward pass made with grad disabled.
type cancelOnEval struct {
	Model
	cancel       context.CancelFunc
	evalForwards int
}

func (m *cancelOnEval) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if !tensor.IsGradEnabled() {
		m.evalForwards++
		m.cancel()
	}
	return m.Model.Forward(x)
}

func TestTrainModelCancelledDuringEvaluation(t *testing.T) {
	opts, out := newOptions(t, 3)
	opts.ValidLoader = loader(t, patterns(t, 300), 3, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	model := &cancelOnEval{Model: opts.Model, cancel: cancel}
	opts.Model = model

	history, err := TrainModel(ctx, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if model.evalForwards != 1 {
		t.Fatalf("%d evaluation batches ran, want evaluation to stop after the cancelling one", model.evalForwards)
	}
	if len(history.MinibatchLoss) != 3 || len(history.TrainAcc) != 0 || len(history.ValidAcc) != 0 {
		t.Fatalf("history %d losses, %d/%d accuracies; want only the first epoch's losses",
			len(history.MinibatchLoss), len(history.TrainAcc), len(history.ValidAcc))
	}
	if strings.Contains(out.String(), "Total Training Time") {
		t.Fatal("a cancelled run should not report completion")
	}
}

func TestComputeAccuracyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ComputeAccuracy(ctx, firstPixelModel{}, loader(t, patterns(t, 4), 2, 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestTrainModelValidatesOptions(t *testing.T) {
	opts, _ := newOptions(t, 0)
	if _, err := TrainModel(context.Background(), opts); err == nil {
		t.Fatal("expected error for zero epochs")
	}
	if _, err := TrainModel(context.Background(), Options{Epochs: 1}); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestComputeAccuracy(t *testing.T) {
	acc, err := ComputeAccuracy(context.Background(), firstPixelModel{}, loader(t, patterns(t, 7), 2, 3))
	if err != nil {
		t.Fatal(err)
	}
	if acc != 100 {
		t.Fatalf("accuracy = %v, want 100", acc)
	}

	// swap labels: every prediction is now wrong
	ds, _ := dataset.NewInMemory([]int{1, 2, 2}, []float64{1, 0, 1, 0, 0, 1, 0, 1}, []int{1, 0})
	acc, err = ComputeAccuracy(context.Background(), firstPixelModel{}, loader(t, ds, 5, 1))
	if err != nil || acc != 0 {
		t.Fatalf("accuracy = %v (err %v), want 0", acc, err)
	}

	empty, _ := dataset.NewInMemory([]int{1, 2, 2}, nil, nil)
	if _, err := ComputeAccuracy(context.Background(), firstPixelModel{}, loader(t, empty, 5, 1)); err == nil {
		t.Fatal("expected error for an empty dataset")
	}
}

func TestPredict(t *testing.T) {
	images, _ := tensor.NewTensor([]int{2, 1, 2, 2}, []float64{1, 0, 1, 0, 0, 1, 0, 1})
	preds, err := Predict(firstPixelModel{}, images)
	if err != nil {
		t.Fatal(err)
	}
	p := 1 / (1 + math.Exp(-1))
	if len(preds) != 2 || preds[0].Label != 0 || preds[1].Label != 1 {
		t.Fatalf("predictions %+v", preds)
	}
	if math.Abs(preds[0].Probability-p) > 1e-9 {
		t.Fatalf("probability %v, want %v", preds[0].Probability, p)
	}
}

func TestPrintBatchShapes(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintBatchShapes(&buf, loader(t, patterns(t, 7), 5, 1)); err != nil {
		t.Fatal(err)
	}
	want := "Image batch dimensions: [5 1 2 2]\nImage label dimensions: [5]\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestRunningAverage(t *testing.T) {
	got := RunningAverage([]float64{1, 2, 3, 4, 5}, 2)
	want := []float64{1.5, 2.5, 3.5, 4.5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if got := RunningAverage([]float64{1, 2}, 3); len(got) != 0 {
		t.Fatalf("window longer than input: %v", got)
	}
	if got := RunningAverage([]float64{4, 6}, 2); len(got) != 1 || got[0] != 5 {
		t.Fatalf("window equal to input: %v", got)
	}
}
