package plotting

import (
	"fmt"

	"gonum.org/v1/plot"
)

// epochTicks labels iteration positions e*iterPerEpoch with both the iteration and the epoch,
// standing in for a twin epoch axis under the iteration axis.
type epochTicks struct {
	iterPerEpoch int
	numEpochs    int
	every        int
}

func (t epochTicks) Ticks(min, max float64) []plot.Tick {
	every := t.every
	if every <= 0 {
		every = 1
	}
	// short runs would otherwise get a single labelled tick
	for every > 1 && t.numEpochs/every < 2 {
		every /= 2
	}

	var ticks []plot.Tick
	for e := 0; e <= t.numEpochs; e++ {
		pos := float64(e * t.iterPerEpoch)
		if pos < min || pos > max {
			continue
		}
		if e%every == 0 {
			ticks = append(ticks, plot.Tick{Value: pos, Label: fmt.Sprintf("%d\nepoch %d", e*t.iterPerEpoch, e)})
		} else {
			ticks = append(ticks, plot.Tick{Value: pos})
		}
	}
	return ticks
}
