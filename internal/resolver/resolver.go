// Package resolver decides, for every period of a timecourse, which control
// is active for every controlled parameter.
package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"timecourse_control/internal/control"
	"timecourse_control/internal/timecourse"
)

var (
	ErrConflict         = errors.New("multiple control parameters are defined for the same parameter and time")
	ErrInconsistent     = errors.New("inconsistent control parameter value across periods")
	ErrUnknownParameter = errors.New("control targets a parameter that is not controlled")
)

// ConflictError reports two different controls on one parameter at one time.
type ConflictError struct {
	Parameter string
	Time      float64
	Controls  []control.Control
}

func (e *ConflictError) Error() string {
	rows := make([]string, len(e.Controls))
	for i, c := range e.Controls {
		rows[i] = fmt.Sprintf("(%s, %s, %s)", c.Target.ID, control.FormatNumber(c.Time), c.Value)
	}
	return fmt.Sprintf("%s: parameter %q, time %s, controls %s",
		ErrConflict.Error(), e.Parameter, control.FormatNumber(e.Time), strings.Join(rows, ", "))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Descriptor records where one control parameter is the active override.
type Descriptor struct {
	ID      string          `json:"id"`
	Control control.Control `json:"control"`
	// Periods are indices into the simulated timecourse, ascending.
	Periods []int `json:"periods"`
}

// Value is the override carried by the control parameter.
func (d Descriptor) Value() control.Override { return d.Control.Value }

// Source is the parameter the control parameter overrides.
func (d Descriptor) Source() string { return d.Control.Target.ID }

// Covers reports whether the control parameter is active in period.
func (d Descriptor) Covers(period int) bool {
	i := sort.SearchInts(d.Periods, period)
	return i < len(d.Periods) && d.Periods[i] == period
}

// Assignment maps each controlled parameter to its active control parameter
// id. An empty id means no override is active.
type Assignment map[string]string

// Options configures Resolve.
type Options struct {
	// Parameters lists the controlled parameters. Defaults to the targets of
	// the controls.
	Parameters []string
	// StartPeriodIndex shifts descriptor periods when the timecourse is
	// simulated after a preceding one.
	StartPeriodIndex int
}

// Resolution holds both views of one resolution pass.
type Resolution struct {
	Parameters  []string
	Periods     []Assignment
	Descriptors map[string]*Descriptor

	order []string
}

// Active returns the control parameter overriding parameter in the local
// period index, if any.
func (r Resolution) Active(period int, parameter string) (string, bool) {
	if period < 0 || period >= len(r.Periods) {
		return "", false
	}
	id := r.Periods[period][parameter]
	return id, id != ""
}

// Descriptor looks up a control parameter.
func (r Resolution) Descriptor(id string) (*Descriptor, bool) {
	d, ok := r.Descriptors[id]
	return d, ok
}

// DescriptorIDs returns control parameter ids in order of first activation.
func (r Resolution) DescriptorIDs() []string {
	return append([]string(nil), r.order...)
}

type key struct {
	parameter string
	time      float64
}

// Resolve applies zero-order hold: in each period the active control of a
// parameter is the one with the greatest time not after the period start.
// Control times must be absolute, like tc.Absolute.
func Resolve(tc timecourse.Timecourse, controls []control.Control, opts Options) (Resolution, error) {
	unique, err := dedupe(controls)
	if err != nil {
		return Resolution{}, err
	}

	params := opts.Parameters
	if len(params) == 0 {
		params = control.TargetIDs(unique)
	} else {
		params = append([]string(nil), params...)
		sort.Strings(params)
	}
	known := make(map[string]struct{}, len(params))
	for _, p := range params {
		known[p] = struct{}{}
	}
	for _, c := range unique {
		if _, ok := known[c.Target.ID]; !ok {
			return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownParameter, c.Target.ID)
		}
	}

	groups := control.GroupByTarget(unique)
	res := Resolution{
		Parameters:  params,
		Periods:     make([]Assignment, len(tc.Periods)),
		Descriptors: make(map[string]*Descriptor),
	}
	for i := range tc.Periods {
		start := tc.Absolute(i)
		assignment := make(Assignment, len(params))
		for _, p := range params {
			c, ok := activeAt(groups[p], start)
			if !ok {
				assignment[p] = ""
				continue
			}
			id := c.ControlParameterID()
			if err := res.record(id, c, i+opts.StartPeriodIndex); err != nil {
				return Resolution{}, err
			}
			assignment[p] = id
		}
		res.Periods[i] = assignment
	}
	return res, nil
}

func (r *Resolution) record(id string, c control.Control, period int) error {
	d, ok := r.Descriptors[id]
	if !ok {
		r.Descriptors[id] = &Descriptor{ID: id, Control: c, Periods: []int{period}}
		r.order = append(r.order, id)
		return nil
	}
	if d.Control.Value != c.Value {
		return fmt.Errorf("%w: %q has value %s in period %d and %s in period %d",
			ErrInconsistent, id, d.Control.Value, d.Periods[0], c.Value, period)
	}
	d.Periods = append(d.Periods, period)
	return nil
}

// activeAt returns the last control in sorted with time <= t.
func activeAt(sorted []control.Control, t float64) (control.Control, bool) {
	n := sort.Search(len(sorted), func(i int) bool { return sorted[i].Time > t })
	if n == 0 {
		return control.Control{}, false
	}
	return sorted[n-1], true
}

// dedupe drops repeated identical controls and rejects different controls
// on the same parameter and time.
func dedupe(controls []control.Control) ([]control.Control, error) {
	seen := make(map[key]control.Control, len(controls))
	out := make([]control.Control, 0, len(controls))
	for _, c := range controls {
		k := key{parameter: c.Target.ID, time: c.Time}
		prev, ok := seen[k]
		if !ok {
			seen[k] = c
			out = append(out, c)
			continue
		}
		if prev.ID() != c.ID() {
			return nil, &ConflictError{Parameter: c.Target.ID, Time: c.Time, Controls: []control.Control{prev, c}}
		}
	}
	return out, nil
}
