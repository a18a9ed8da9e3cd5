package utility

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"mlp-mnist/trainer"
)

// TrainingDashboard is a termui view of a training run. it satisfies trainer.Observer.
type TrainingDashboard struct {
	grid *ui.Grid

	lossPlot     *widgets.Plot
	accuracyPlot *widgets.Plot

	progressGauge *widgets.Gauge
	progressList  *widgets.List
	systemList    *widgets.List
	logParagraph  *widgets.Paragraph

	fullLossData  []float64
	trainAccData  []float64
	validAccData  []float64
	runningLoss   float64
	batchesInLoss int
	renderMutex   sync.Mutex

	quit chan struct{}
}

var _ trainer.Observer = (*TrainingDashboard)(nil)

// NewTrainingDashboard takes over the terminal; call Listen to handle keys and Close when done.
func NewTrainingDashboard(learningRate float64, batchSize, epochs int, device string) (*TrainingDashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	// termui plots need at least two points per series
	d := &TrainingDashboard{
		quit:         make(chan struct{}),
		fullLossData: []float64{0, 0},
		trainAccData: []float64{0, 0},
		validAccData: []float64{0, 0},
	}

	d.lossPlot = widgets.NewPlot()
	d.lossPlot.Title = "Minibatch Loss"
	d.lossPlot.Data = [][]float64{d.fullLossData}
	d.lossPlot.LineColors[0] = ui.ColorRed

	d.accuracyPlot = widgets.NewPlot()
	d.accuracyPlot.Title = "Accuracy (%) train=green valid=blue"
	d.accuracyPlot.Data = [][]float64{d.trainAccData, d.validAccData}
	d.accuracyPlot.LineColors = []ui.Color{ui.ColorGreen, ui.ColorBlue}

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Epoch Progress"
	d.progressGauge.BarColor = ui.ColorBlue
	d.systemList = widgets.NewList()
	d.systemList.Title = "System & Timing"
	d.progressList = widgets.NewList()
	d.progressList.Title = "Training Status"
	hyperParamList := widgets.NewList()
	hyperParamList.Title = "Hyperparameters"
	hyperParamList.Rows = []string{
		fmt.Sprintf("Epochs: %d", epochs),
		fmt.Sprintf("Batch Size: %d", batchSize),
		fmt.Sprintf("Learn Rate: %.4f", learningRate),
		fmt.Sprintf("Device: %s", device),
	}
	d.logParagraph = widgets.NewParagraph()
	d.logParagraph.Title = "Event Log"

	d.grid = ui.NewGrid()
	termWidth, termHeight := ui.TerminalDimensions()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	d.grid.Set(
		ui.NewRow(0.4, ui.NewCol(0.5, d.lossPlot), ui.NewCol(0.5, d.accuracyPlot)),
		ui.NewRow(0.3, ui.NewCol(0.34, d.progressList), ui.NewCol(0.33, d.systemList), ui.NewCol(0.33, hyperParamList)),
		ui.NewRow(0.3, ui.NewCol(1.0, ui.NewRow(0.4, d.progressGauge), ui.NewRow(0.6, d.logParagraph))),
	)

	return d, nil
}

// OnBatch records the loss and refreshes the status panels.
func (d *TrainingDashboard) OnBatch(p trainer.BatchProgress) {
	d.renderMutex.Lock()
	defer d.renderMutex.Unlock()

	d.fullLossData = append(d.fullLossData, p.Loss)
	if p.Batch == 0 {
		d.runningLoss, d.batchesInLoss = 0, 0
	}
	d.runningLoss += p.Loss
	d.batchesInLoss++

	d.progressList.Rows = []string{
		fmt.Sprintf("Epoch: %d / %d", p.Epoch, p.Epochs),
		fmt.Sprintf("Batch: %d / %d", p.Batch+1, p.Batches),
		fmt.Sprintf("Avg Loss: %.4f", d.runningLoss/float64(d.batchesInLoss)),
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	epochElapsed := time.Since(p.EpochStart).Round(time.Second)
	totalElapsed := time.Since(p.Start).Round(time.Second)
	done := p.Batch + 1
	timePerBatch := time.Since(p.EpochStart) / time.Duration(done)
	eta := (timePerBatch * time.Duration(p.Batches-done)).Round(time.Second)
	d.systemList.Rows = []string{
		fmt.Sprintf("Epoch Time: %v", epochElapsed),
		fmt.Sprintf("Total Time: %v", totalElapsed),
		fmt.Sprintf("ETA (Epoch): %v", eta),
		"---",
		fmt.Sprintf("Heap Alloc: %d MiB", memStats.Alloc/1024/1024),
		fmt.Sprintf("Goroutines: %d", runtime.NumGoroutine()),
	}
	d.progressGauge.Percent = done * 100 / p.Batches

	d.lossPlot.Data[0] = Downsample(d.fullLossData, d.lossPlot.Inner.Dx())
	ui.Render(d.grid)
}

// OnEpoch appends the epoch's accuracies and re-renders the plots.
func (d *TrainingDashboard) OnEpoch(p trainer.EpochProgress) {
	d.renderMutex.Lock()
	defer d.renderMutex.Unlock()

	d.trainAccData = append(d.trainAccData, p.TrainAcc)
	d.validAccData = append(d.validAccData, p.ValidAcc)
	width := d.accuracyPlot.Inner.Dx()
	d.accuracyPlot.Data = [][]float64{Downsample(d.trainAccData, width), Downsample(d.validAccData, width)}
	d.logParagraph.Text = fmt.Sprintf("epoch %d/%d: train %.2f%% | validation %.2f%% | %.2f min",
		p.Epoch, p.Epochs, p.TrainAcc, p.ValidAcc, p.Elapsed.Minutes())

	ui.Render(d.grid)
}

// Log prints a message to the event log panel.
func (d *TrainingDashboard) Log(message string) {
	d.renderMutex.Lock()
	defer d.renderMutex.Unlock()
	d.logParagraph.Text = message
	ui.Render(d.grid)
}

// Close restores the terminal.
func (d *TrainingDashboard) Close() { ui.Close() }

// Listen consumes terminal events until the user presses q or Ctrl-C, then calls cancel.
// termui keeps the terminal in raw mode, so Ctrl-C arrives here as a key event rather than SIGINT.
func (d *TrainingDashboard) Listen(cancel context.CancelFunc) {
	go d.handleEvents(ui.PollEvents(), cancel)
}

func (d *TrainingDashboard) handleEvents(events <-chan ui.Event, cancel context.CancelFunc) {
	for e := range events {
		if e.Type == ui.KeyboardEvent && (e.ID == "q" || e.ID == "<C-c>") {
			cancel()
			close(d.quit)
			return
		}
	}
}

// Wait blocks until Listen has seen q or Ctrl-C.
func (d *TrainingDashboard) Wait() { <-d.quit }

// Downsample averages data into targetWidth bins so a long series fits its widget.
func Downsample(data []float64, targetWidth int) []float64 {
	if targetWidth <= 0 || len(data) <= targetWidth {
		return data
	}

	downsampled := make([]float64, targetWidth)
	binSize := float64(len(data)) / float64(targetWidth)

	for i := 0; i < targetWidth; i++ {
		start := int(float64(i) * binSize)
		end := int(float64(i+1) * binSize)
		if end > len(data) {
			end = len(data)
		}

		bin := data[start:end]
		if len(bin) == 0 {
			if i > 0 {
				downsampled[i] = downsampled[i-1]
			}
			continue
		}

		var sum float64
		for _, v := range bin {
			sum += v
		}
		downsampled[i] = sum / float64(len(bin))
	}
	return downsampled
}
