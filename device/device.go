// Package device picks where the numeric work runs and describes it.
package device

import (
	"fmt"
	"log"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Device describes the compute target handed to the trainer.
type Device struct {
	Kind     string // always "cpu"; tensor kernels are host-only
	Brand    string
	Cores    int
	Workers  int
	Features []string
}

// simd features worth reporting; gonum's assembly kernels use these
var reported = []cpuid.FeatureID{cpuid.SSE2, cpuid.AVX, cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F, cpuid.ASIMD}

// Detect resolves a requested device name ("auto", "cpu" or "cuda").
// cuda falls back to the cpu with a notice, mirroring "cuda if available else cpu".
func Detect(requested string) (Device, error) {
	switch strings.ToLower(requested) {
	case "", "auto", "cpu":
	case "cuda", "gpu":
		log.Printf("device %q requested but tensor kernels run on the host; falling back to cpu", requested)
	default:
		return Device{}, fmt.Errorf("device: unknown device %q (want auto, cpu or cuda)", requested)
	}

	d := Device{
		Kind:  "cpu",
		Brand: strings.TrimSpace(cpuid.CPU.BrandName),
		Cores: cpuid.CPU.LogicalCores,
	}
	if d.Brand == "" {
		d.Brand = runtime.GOARCH
	}
	if d.Cores <= 0 {
		d.Cores = runtime.NumCPU()
	}
	d.Workers = d.Cores

	for _, f := range reported {
		if cpuid.CPU.Supports(f) {
			d.Features = append(d.Features, f.String())
		}
	}
	return d, nil
}

func (d Device) String() string {
	features := "none"
	if len(d.Features) > 0 {
		features = strings.Join(d.Features, ",")
	}
	return fmt.Sprintf("%s (%s, %d logical cores, simd=%s)", d.Kind, d.Brand, d.Cores, features)
}
