package utility

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"mlp-mnist/nn"
	"mlp-mnist/tensor"
)

// provides utility functions to analyze and log details of a model.
type ModelInspector struct {
	model *nn.Sequential
}

func NewModelInspector(model *nn.Sequential) *ModelInspector {
	return &ModelInspector{model: model}
}

// Summary writes one row per parameter tensor, then the totals.
func (mi *ModelInspector) Summary(w io.Writer) error {
	fmt.Fprintln(w, "--- Model Summary ---")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Layer (Type)\tParameter\tShape\tParam #")
	fmt.Fprintln(tw, "------------\t---------\t-----\t-------")

	for _, layer := range mi.model.Layers() {
		params := layer.Parameters()
		if len(params) == 0 {
			fmt.Fprintf(tw, "%s\t-\t-\t0\n", layer.Name())
			continue
		}
		for i, p := range params {
			name := layer.Name()
			if i > 0 {
				name = ""
			}
			fmt.Fprintf(tw, "%s\t%s\t%v\t%d\n", name, paramName(i), p.GetShape(), tensor.Numel(p))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	total, trainable := mi.CountParameters()
	rule := strings.Repeat("-", 34)
	_, err := fmt.Fprintf(w, "%s\nTotal Parameters: %d\nTrainable Parameters: %d\n%s\n", rule, total, trainable, rule)
	return err
}

// layers list weight before bias
func paramName(i int) string {
	switch i {
	case 0:
		return "Weight"
	case 1:
		return "Bias"
	default:
		return fmt.Sprintf("Param%d", i)
	}
}

// parameter counts for the model.
func (mi *ModelInspector) CountParameters() (total int64, trainable int64) {
	for _, p := range mi.model.Parameters() {
		numel := int64(tensor.Numel(p))
		total += numel
		if p.RequiresGrad {
			trainable += numel
		}
	}
	return total, trainable
}
