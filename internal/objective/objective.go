// Package objective combines per-period simulation results into the
// objective and gradient minimized by an optimizer.
package objective

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"timecourse_control/internal/resolver"
)

var (
	ErrPeriodCount = errors.New("period count mismatch")
	ErrDimension   = errors.New("parameter vector length mismatch")
)

// PeriodResult is the simulator output for one period.
type PeriodResult struct {
	LogLikelihood float64            `json:"llh"`
	Sensitivities map[string]float64 `json:"sllh"`
}

// MissingSensitivityError reports a sensitivity the attribution needs but the
// simulator did not provide.
type MissingSensitivityError struct {
	Period    int
	Parameter string
	// For is the gradient entry that needed it.
	For string
}

func (e *MissingSensitivityError) Error() string {
	if e.For != "" && e.For != e.Parameter {
		return fmt.Sprintf("period %d: missing sensitivity of %q needed by %q", e.Period, e.Parameter, e.For)
	}
	return fmt.Sprintf("period %d: missing sensitivity of %q", e.Period, e.Parameter)
}

// Input is everything Aggregate needs.
type Input struct {
	Results     []PeriodResult
	Descriptors []resolver.Descriptor
	// Estimated lists directly estimated parameters. Defaults to the Names
	// that are not control parameters.
	Estimated []string
	// Names is the optimizer's parameter order.
	Names []string
	// PeriodCount, when positive, must equal len(Results).
	PeriodCount int
}

// Result is the objective value and its gradient in Names order.
type Result struct {
	Value    float64   `json:"fval"`
	Gradient []float64 `json:"grad"`
}

// Aggregate returns -sum(llh) and its gradient. In each period, a control
// parameter active for a source parameter takes the source's sensitivity and
// marks the source assigned; estimated parameters that are not assigned in a
// period take their own sensitivity.
func Aggregate(in Input) (Result, error) {
	if in.PeriodCount > 0 && in.PeriodCount != len(in.Results) {
		return Result{}, fmt.Errorf("%w: %d results for %d periods", ErrPeriodCount, len(in.Results), in.PeriodCount)
	}

	free := make(map[string]struct{}, len(in.Names))
	for _, n := range in.Names {
		free[n] = struct{}{}
	}
	descriptors := append([]resolver.Descriptor(nil), in.Descriptors...)
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].ID < descriptors[j].ID })
	for _, d := range descriptors {
		for _, p := range d.Periods {
			if p < 0 || p >= len(in.Results) {
				return Result{}, fmt.Errorf("%w: control parameter %q is active in period %d of %d",
					ErrPeriodCount, d.ID, p, len(in.Results))
			}
		}
	}
	estimated := in.Estimated
	if estimated == nil {
		estimated = directNames(in.Names, descriptors)
	}

	llh := make([]float64, len(in.Results))
	grad := make(map[string]float64, len(in.Names))
	for i, r := range in.Results {
		llh[i] = r.LogLikelihood
		assigned := make(map[string]bool)
		for _, d := range descriptors {
			if !d.Covers(i) {
				continue
			}
			src := d.Source()
			assigned[src] = true
			if _, ok := free[d.ID]; !ok {
				continue
			}
			s, ok := r.Sensitivities[src]
			if !ok {
				return Result{}, &MissingSensitivityError{Period: i, Parameter: src, For: d.ID}
			}
			grad[d.ID] += s
		}
		for _, p := range estimated {
			if assigned[p] {
				continue
			}
			s, ok := r.Sensitivities[p]
			if !ok {
				return Result{}, &MissingSensitivityError{Period: i, Parameter: p, For: p}
			}
			grad[p] += s
		}
	}

	gradient := make([]float64, len(in.Names))
	for j, n := range in.Names {
		gradient[j] = grad[n]
	}
	floats.Scale(-1, gradient)
	return Result{Value: -floats.Sum(llh), Gradient: gradient}, nil
}

func directNames(names []string, descriptors []resolver.Descriptor) []string {
	controls := make(map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		controls[d.ID] = struct{}{}
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := controls[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}
