package objective

import (
	"context"
	"errors"
	"fmt"

	"timecourse_control/internal/resolver"
)

var ErrUnboundControl = errors.New("estimated control parameter has no optimizer value")

// Simulator runs every period with the given parameter values.
type Simulator interface {
	Simulate(ctx context.Context, periods []map[string]float64) ([]PeriodResult, error)
}

// SimulatorFunc adapts a function to Simulator.
type SimulatorFunc func(ctx context.Context, periods []map[string]float64) ([]PeriodResult, error)

func (f SimulatorFunc) Simulate(ctx context.Context, periods []map[string]float64) ([]PeriodResult, error) {
	return f(ctx, periods)
}

// Unscale maps an optimizer-scale value to model scale.
type Unscale func(parameterID string, value float64) float64

// Function is the objective seen by an optimizer: a parameter vector in,
// value and gradient out.
type Function struct {
	Names       []string
	Descriptors []resolver.Descriptor
	Estimated   []string
	// Periods is the number of simulated periods.
	Periods int
	// Defaults holds values of parameters the optimizer does not set.
	Defaults  map[string]float64
	Simulator Simulator
	Unscale   Unscale
}

// Evaluate simulates x and aggregates the results.
func (f *Function) Evaluate(ctx context.Context, x []float64) (Result, error) {
	periods, err := f.PeriodParameters(x)
	if err != nil {
		return Result{}, err
	}
	results, err := f.Simulator.Simulate(ctx, periods)
	if err != nil {
		return Result{}, fmt.Errorf("simulate: %w", err)
	}
	return Aggregate(Input{
		Results:     results,
		Descriptors: f.Descriptors,
		Estimated:   f.Estimated,
		Names:       f.Names,
		PeriodCount: f.Periods,
	})
}

// PeriodParameters builds the parameter values of every period. An active
// control parameter replaces its source parameter's value.
func (f *Function) PeriodParameters(x []float64) ([]map[string]float64, error) {
	if len(x) != len(f.Names) {
		return nil, fmt.Errorf("%w: got %d values for %d names", ErrDimension, len(x), len(f.Names))
	}
	values := make(map[string]float64, len(x))
	for i, n := range f.Names {
		v := x[i]
		if f.Unscale != nil {
			v = f.Unscale(n, v)
		}
		values[n] = v
	}
	controls := make(map[string]struct{}, len(f.Descriptors))
	for _, d := range f.Descriptors {
		controls[d.ID] = struct{}{}
	}

	out := make([]map[string]float64, f.Periods)
	for i := range out {
		p := make(map[string]float64, len(f.Defaults)+len(values))
		for k, v := range f.Defaults {
			p[k] = v
		}
		for k, v := range values {
			if _, ok := controls[k]; !ok {
				p[k] = v
			}
		}
		for _, d := range f.Descriptors {
			if !d.Covers(i) {
				continue
			}
			v, ok := values[d.ID]
			if !ok {
				fixed, isFixed := d.Value().Value()
				if !isFixed {
					return nil, fmt.Errorf("%w: %q", ErrUnboundControl, d.ID)
				}
				v = fixed
			}
			p[d.Source()] = v
		}
		out[i] = p
	}
	return out, nil
}
