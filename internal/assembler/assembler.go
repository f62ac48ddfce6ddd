// Package assembler turns a control problem into the condition, parameter,
// measurement and timecourse tables of an estimation problem.
package assembler

import (
	"errors"
	"fmt"

	"timecourse_control/internal/control"
	"timecourse_control/internal/petab"
	"timecourse_control/internal/resolver"
	"timecourse_control/internal/timecourse"
)

var (
	ErrUnsupported      = errors.New("not yet supported")
	ErrNoCondition      = errors.New("no experimental condition")
	ErrMissingParameter = errors.New("controlled parameter has no parameter row")
	ErrParameterOrder   = errors.New("parameter order does not match the free parameters")
)

// Problem is one control problem as read from its tables.
type Problem struct {
	ID string
	// Controls have times relative to StartTime.
	Controls []control.Control
	// ControlTable is the raw control table; only its simulation condition
	// column is read.
	ControlTable *petab.Table
	// ControlParameters holds one row per controlled parameter. Control
	// parameters inherit bounds and scale from it.
	ControlParameters *petab.Table
	Observables       *petab.Table
	Measurements      *petab.Table
	StartTime         timecourse.StartTime
}

// Base is the estimation problem the controls are applied to. Every field
// is optional.
type Base struct {
	Conditions   *petab.Table
	Parameters   *petab.Table
	Measurements *petab.Table
	Timecourse   *timecourse.Timecourse
}

// Assembly is a compiled control problem.
type Assembly struct {
	ProblemID   string
	ConditionID string
	// StartTime is the resolved absolute start time.
	StartTime float64

	Conditions   *petab.Table
	Parameters   *petab.Table
	Measurements *petab.Table
	Observables  *petab.Table
	Timecourses  *petab.Table

	Segmentation   timecourse.Segmentation
	Resolution     resolver.Resolution
	FreeParameters []string
}

// Descriptors returns the control parameter descriptors in order of first
// activation.
func (a *Assembly) Descriptors() []resolver.Descriptor {
	ids := a.Resolution.DescriptorIDs()
	out := make([]resolver.Descriptor, len(ids))
	for i, id := range ids {
		out[i] = *a.Resolution.Descriptors[id]
	}
	return out
}

// Controls returns the problem controls at absolute time.
func (a *Assembly) Controls() []control.Control {
	return append([]control.Control(nil), a.Segmentation.Controls...)
}

// Assemble compiles p on top of base. order, when given, is the optimizer's
// parameter order and must name exactly the estimated parameters.
func Assemble(p Problem, base Base, order []string) (*Assembly, error) {
	for _, c := range p.Controls {
		if c.Target.Kind != control.Parameter {
			return nil, fmt.Errorf("%w: control of %s target %q", ErrUnsupported, c.Target.Kind, c.Target.ID)
		}
	}
	if p.Measurements == nil || p.ControlParameters == nil {
		return nil, errors.New("assemble: measurement and control parameter tables are required")
	}

	conditions := petab.ExperimentalConditions(p.ControlTable, p.Measurements)
	switch len(conditions) {
	case 0:
		return nil, ErrNoCondition
	case 1:
	default:
		return nil, fmt.Errorf("%w: multiple experimental conditions %v", ErrUnsupported, conditions)
	}
	a := &Assembly{ProblemID: p.ID, ConditionID: conditions[0]}

	start, err := resolveStart(p, base)
	if err != nil {
		return nil, err
	}
	a.StartTime = start

	a.Segmentation, err = timecourse.Build(p.Controls, timecourse.SegmentOptions{
		ID:     a.ConditionID,
		Offset: start,
		Base:   base.Timecourse,
	})
	if err != nil {
		return nil, err
	}
	a.Resolution, err = resolver.Resolve(a.Segmentation.Control, a.Segmentation.Controls, resolver.Options{
		StartPeriodIndex: a.Segmentation.StartPeriodIndex,
	})
	if err != nil {
		return nil, err
	}

	if a.Conditions, err = a.conditionTable(base); err != nil {
		return nil, err
	}
	if a.Parameters, err = a.parameterTable(p.ControlParameters, base.Parameters); err != nil {
		return nil, err
	}
	if a.Measurements, err = shiftMeasurements(p.Measurements, start); err != nil {
		return nil, err
	}
	if p.Observables != nil {
		a.Observables = p.Observables.Clone()
	}
	a.Timecourses = petab.New(petab.TimecourseID, petab.Timecourse)
	a.Timecourses.Rows = [][]string{{a.Segmentation.Full.ID, a.Segmentation.Full.Description()}}

	if a.FreeParameters, err = freeParameters(a.Parameters, order); err != nil {
		return nil, err
	}
	return a, nil
}

func resolveStart(p Problem, base Base) (float64, error) {
	if !p.StartTime.IsLastMeasured() {
		return p.StartTime.Resolve(nil)
	}
	measurements := base.Measurements
	if measurements == nil {
		measurements = p.Measurements
	}
	times, err := measurements.Floats(petab.Time)
	if err != nil {
		return 0, fmt.Errorf("start time: %w", err)
	}
	return p.StartTime.Resolve(times)
}

func shiftMeasurements(m *petab.Table, start float64) (*petab.Table, error) {
	out := m.Clone()
	times, err := out.Floats(petab.Time)
	if err != nil {
		return nil, err
	}
	for r, t := range times {
		out.Set(r, petab.Time, control.FormatNumber(t+start))
	}
	return out, nil
}

func freeParameters(params *petab.Table, order []string) ([]string, error) {
	var free []string
	for r := range params.Rows {
		if params.Get(r, petab.Estimate) == petab.Estimated {
			free = append(free, params.Get(r, petab.ParameterID))
		}
	}
	if order == nil {
		return free, nil
	}
	want := make(map[string]struct{}, len(free))
	for _, id := range free {
		want[id] = struct{}{}
	}
	if len(order) != len(free) {
		return nil, fmt.Errorf("%w: %d names for %d free parameters", ErrParameterOrder, len(order), len(free))
	}
	seen := make(map[string]struct{}, len(order))
	for _, id := range order {
		if _, ok := want[id]; !ok {
			return nil, fmt.Errorf("%w: %q is not estimated", ErrParameterOrder, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %q listed twice", ErrParameterOrder, id)
		}
		seen[id] = struct{}{}
	}
	return append([]string(nil), order...), nil
}
