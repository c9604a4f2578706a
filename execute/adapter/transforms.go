package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/errors"
)

// variableNormAdapter computes the norm of each upstream frame as it
// arrives. Accepts arrays of numbers or bare numbers.
type variableNormAdapter struct {
	inputs Inputs
	order  int
}

func newVariableNorm(deps Deps) (Adapter, error) {
	params, ok := deps.Params.(*api.VariableNormParams)
	if !ok {
		return nil, fmt.Errorf("variablenorm adapter: unexpected params type %T", deps.Params)
	}
	order := params.Order
	if order <= 0 {
		order = 2
	}
	return &variableNormAdapter{inputs: deps.Inputs, order: order}, nil
}

func (a *variableNormAdapter) Body(ctx context.Context, emit Emit) error {
	for {
		value, eof, err := a.inputs.Next(ctx, 0)
		if err != nil {
			return err
		}
		if eof {
			return nil
		}

		elems, err := decodeNumbers(value)
		if err != nil {
			return err
		}
		var sum float64
		for _, e := range elems {
			sum += math.Pow(math.Abs(e), float64(a.order))
		}
		norm := math.Pow(sum, 1/float64(a.order))

		out, err := json.Marshal(norm)
		if err != nil {
			return err
		}
		if err := emit(ctx, out); err != nil {
			return err
		}
	}
}

// averagePointwiseAdapter averages its upstream streams element-wise: one
// frame from every port forms one output frame. Stops at the shortest
// stream.
type averagePointwiseAdapter struct {
	inputs Inputs
}

func newAveragePointwise(deps Deps) (Adapter, error) {
	if _, ok := deps.Params.(*api.AveragePointwiseParams); !ok {
		return nil, fmt.Errorf("averagepointwise adapter: unexpected params type %T", deps.Params)
	}
	return &averagePointwiseAdapter{inputs: deps.Inputs}, nil
}

func (a *averagePointwiseAdapter) Body(ctx context.Context, emit Emit) error {
	ports := a.inputs.Ports()
	for {
		frames := make([][]float64, 0, ports)
		for port := 0; port < ports; port++ {
			value, eof, err := a.inputs.Next(ctx, port)
			if err != nil {
				return err
			}
			if eof {
				return nil
			}
			elems, err := decodeNumbers(value)
			if err != nil {
				return err
			}
			frames = append(frames, elems)
		}

		width := len(frames[0])
		for _, frame := range frames {
			if len(frame) != width {
				return errors.AdapterBadInput(fmt.Sprintf(
					"pointwise average over frames of different widths: %d vs %d", width, len(frame)))
			}
		}

		avg := make([]float64, width)
		for _, frame := range frames {
			for i, e := range frame {
				avg[i] += e
			}
		}
		for i := range avg {
			avg[i] /= float64(ports)
		}

		out, err := json.Marshal(avg)
		if err != nil {
			return err
		}
		if err := emit(ctx, out); err != nil {
			return err
		}
	}
}

// zip2Adapter pairs two upstream streams element-wise into [a, b] tuples,
// stopping at the shorter stream.
type zip2Adapter struct {
	inputs Inputs
}

func newZip2(deps Deps) (Adapter, error) {
	if _, ok := deps.Params.(*api.Zip2Params); !ok {
		return nil, fmt.Errorf("zip2 adapter: unexpected params type %T", deps.Params)
	}
	return &zip2Adapter{inputs: deps.Inputs}, nil
}

func (a *zip2Adapter) Body(ctx context.Context, emit Emit) error {
	for {
		first, eof, err := a.inputs.Next(ctx, 0)
		if err != nil {
			return err
		}
		if eof {
			return nil
		}
		second, eof, err := a.inputs.Next(ctx, 1)
		if err != nil {
			return err
		}
		if eof {
			return nil
		}

		out, err := json.Marshal([]json.RawMessage{first, second})
		if err != nil {
			return err
		}
		if err := emit(ctx, out); err != nil {
			return err
		}
	}
}

// decodeNumbers accepts a JSON array of numbers or a bare number.
func decodeNumbers(value json.RawMessage) ([]float64, error) {
	var elems []float64
	if err := json.Unmarshal(value, &elems); err == nil {
		return elems, nil
	}
	var single float64
	if err := json.Unmarshal(value, &single); err == nil {
		return []float64{single}, nil
	}
	return nil, errors.AdapterBadInput(fmt.Sprintf(
		"expected a number or an array of numbers, got %s", truncate(string(value), 80)))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func init() {
	Register("variablenorm", newVariableNorm)
	Register("averagepointwise", newAveragePointwise)
	Register("zip2", newZip2)
}
