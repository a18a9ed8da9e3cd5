package utility

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	ui "github.com/gizak/termui/v3"

	"mlp-mnist/nn"
)

func TestModelInspector(t *testing.T) {
	model, err := nn.NewMLP(nn.MLPConfig{NumFeatures: 784, NumHidden1: 50, NumHidden2: 20, NumClasses: 10}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	mi := NewModelInspector(model)

	total, trainable := mi.CountParameters()
	if total != 40480 || trainable != 40480 {
		t.Fatalf("CountParameters = %d, %d; want 40480, 40480", total, trainable)
	}

	var buf bytes.Buffer
	if err := mi.Summary(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"--- Model Summary ---",
		"Linear(784->50)",
		"[784 50]",
		"Bias",
		"Flatten",
		"Total Parameters: 40480",
		"Trainable Parameters: 40480",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary is missing %q:\n%s", want, out)
		}
	}
	// 6 layers, three of them with weight and bias rows
	rows := strings.Count(out, "\n")
	if rows != 1+2+9+4 {
		t.Fatalf("summary has %d lines:\n%s", rows, out)
	}
}

func TestDownsample(t *testing.T) {
	tests := []struct {
		name  string
		data  []float64
		width int
		want  []float64
	}{
		{"fits already", []float64{1, 2, 3}, 5, []float64{1, 2, 3}},
		{"no width", []float64{1, 2, 3}, 0, []float64{1, 2, 3}},
		{"even bins", []float64{1, 3, 5, 7}, 2, []float64{2, 6}},
		{"uneven bins", []float64{1, 2, 3, 4, 5}, 2, []float64{1.5, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Downsample(tt.data, tt.width)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestDashboardQuitKeys(t *testing.T) {
	for _, key := range []string{"q", "<C-c>"} {
		t.Run(key, func(t *testing.T) {
			d := &TrainingDashboard{quit: make(chan struct{})}
			events := make(chan ui.Event, 3)
			events <- ui.Event{Type: ui.ResizeEvent, ID: "<Resize>"}
			events <- ui.Event{Type: ui.KeyboardEvent, ID: "x"}
			events <- ui.Event{Type: ui.KeyboardEvent, ID: key}

			cancelled := false
			d.handleEvents(events, func() { cancelled = true })
			if !cancelled {
				t.Fatal("training context was not cancelled")
			}
			d.Wait()
		})
	}
}

func TestDashboardOtherKeysKeepRunning(t *testing.T) {
	d := &TrainingDashboard{quit: make(chan struct{})}
	events := make(chan ui.Event, 2)
	events <- ui.Event{Type: ui.KeyboardEvent, ID: "a"}
	events <- ui.Event{Type: ui.MouseEvent, ID: "<MouseLeft>"}
	close(events)

	cancelled := false
	d.handleEvents(events, func() { cancelled = true })
	if cancelled {
		t.Fatal("only q and Ctrl-C should cancel")
	}
	select {
	case <-d.quit:
		t.Fatal("Wait should still block")
	default:
	}
}
