package dataset

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
)

// toy builds n 1x2x2 samples whose pixels all equal i/10 and whose label is i%3.
func toy(t *testing.T, n int) *InMemory {
	t.Helper()
	pixels := make([]float64, 0, n*4)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		v := float64(i) / 10
		pixels = append(pixels, v, v, v, v)
		labels[i] = i % 3
	}
	ds, err := NewInMemory([]int{1, 2, 2}, pixels, labels)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestInMemory(t *testing.T) {
	if _, err := NewInMemory([]int{1, 2, 2}, make([]float64, 7), []int{0, 1}); err == nil {
		t.Fatal("expected pixel count mismatch")
	}
	ds := toy(t, 4)
	s, err := ds.Get(2)
	if err != nil {
		t.Fatal(err)
	}
	if s.Label != 2 || s.Pixels[0] != 0.2 || len(s.Pixels) != 4 {
		t.Fatalf("Get(2) = %+v", s)
	}
	if _, err := ds.Get(4); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestSubset(t *testing.T) {
	ds := toy(t, 10)
	sub, err := Subset(ds, Range(7, 10))
	if err != nil {
		t.Fatal(err)
	}
	if sub.Len() != 3 {
		t.Fatalf("Len() = %d", sub.Len())
	}
	s, err := sub.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Pixels[0] != 0.7 || s.Label != 1 {
		t.Fatalf("subset Get(0) = %+v, want parent sample 7", s)
	}
	if _, err := Subset(ds, []int{3, 10}); err == nil {
		t.Fatal("expected out of range index error")
	}
	if got := Range(5, 5); len(got) != 0 {
		t.Fatalf("Range(5, 5) = %v", got)
	}
}

func TestLoaderBatches(t *testing.T) {
	ds := toy(t, 7)
	loader, err := NewLoader(ds, 3, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if loader.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", loader.Len())
	}

	var sizes []int
	var labels []int
	err = loader.ForEach(func(i int, b Batch) error {
		shape := b.Images.GetShape()
		if len(shape) != 4 || shape[1] != 1 || shape[2] != 2 || shape[3] != 2 || shape[0] != len(b.Labels) {
			t.Fatalf("batch %d shape %v with %d labels", i, shape, len(b.Labels))
		}
		sizes = append(sizes, shape[0])
		labels = append(labels, b.Labels...)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sizes) != 3 || sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 1 {
		t.Fatalf("batch sizes %v, want [3 3 1]", sizes)
	}
	want := []int{0, 1, 2, 0, 1, 2, 0}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("unshuffled labels %v, want %v", labels, want)
		}
	}
}

func TestLoaderShuffle(t *testing.T) {
	epoch := func(seed int64) [][]float64 {
		ds := toy(t, 10)
		loader, err := NewLoader(ds, 4, true, rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatal(err)
		}
		var epochs [][]float64
		for e := 0; e < 2; e++ {
			var order []float64
			_ = loader.ForEach(func(_ int, b Batch) error {
				data := b.Images.GetData()
				for j := 0; j < len(b.Labels); j++ {
					order = append(order, data[j*4])
				}
				return nil
			})
			epochs = append(epochs, order)
		}
		return epochs
	}

	a, b := epoch(123), epoch(123)
	for e := range a {
		for i := range a[e] {
			if a[e][i] != b[e][i] {
				t.Fatal("same seed must give the same batch order")
			}
		}
	}

	seen := append([]float64{}, a[0]...)
	sort.Float64s(seen)
	for i, v := range seen {
		if v != float64(i)/10 {
			t.Fatalf("epoch is not a permutation: %v", a[0])
		}
	}

	same := true
	for i := range a[0] {
		if a[0][i] != a[1][i] {
			same = false
		}
	}
	if same {
		t.Fatal("each epoch should draw a fresh permutation")
	}
}

func TestLoaderStopsOnError(t *testing.T) {
	loader, err := NewLoader(toy(t, 9), 2, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	stop := errors.New("stop")
	calls := 0
	err = loader.ForEach(func(int, Batch) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("ForEach returned %v after %d calls", err, calls)
	}

	if _, err := NewLoader(toy(t, 2), 0, false, nil); err == nil {
		t.Fatal("expected batch size error")
	}
	if _, err := NewLoader(toy(t, 2), 1, true, nil); err == nil {
		t.Fatal("expected missing random source error")
	}
}

func TestSplit(t *testing.T) {
	ds := toy(t, 10)
	tests := []struct {
		name                 string
		trainSize, validSize int
		wantTrain, wantValid []int // first and last parent index of each side
		wantErr              bool
	}{
		{name: "rest for validation", trainSize: 4, validSize: 0, wantTrain: []int{0, 3}, wantValid: []int{4, 9}},
		{name: "validation capped", trainSize: 4, validSize: 3, wantTrain: []int{0, 3}, wantValid: []int{4, 6}},
		{name: "validation up to the end", trainSize: 2, validSize: 8, wantTrain: []int{0, 1}, wantValid: []int{2, 9}},
		{name: "validation does not fit", trainSize: 4, validSize: 7, wantErr: true},
		{name: "train takes everything", trainSize: 10, validSize: 0, wantErr: true},
		{name: "empty train", trainSize: 0, validSize: 0, wantErr: true},
		{name: "negative validation", trainSize: 2, validSize: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			train, valid, err := Split(ds, tt.trainSize, tt.validSize)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			for _, side := range []struct {
				name string
				ds   *SubsetDataset
				want []int
			}{{"train", train, tt.wantTrain}, {"validation", valid, tt.wantValid}} {
				if side.ds.Len() != side.want[1]-side.want[0]+1 {
					t.Fatalf("%s Len() = %d, want %d", side.name, side.ds.Len(), side.want[1]-side.want[0]+1)
				}
				first, _ := side.ds.Get(0)
				last, _ := side.ds.Get(side.ds.Len() - 1)
				// toy pixels encode the parent index as i/10
				if first.Pixels[0] != float64(side.want[0])/10 || last.Pixels[0] != float64(side.want[1])/10 {
					t.Fatalf("%s spans %v..%v, want parent indices %v", side.name, first.Pixels[0], last.Pixels[0], side.want)
				}
			}
		})
	}
}
