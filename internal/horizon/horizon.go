// Package horizon truncates combined estimation+control tables to a finite
// time window for receding-horizon loops.
package horizon

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"timecourse_control/internal/control"
	"timecourse_control/internal/petab"
)

var (
	ErrInvalidInclusive = errors.New("invalid inclusive policy")
	ErrInvalidWindow    = errors.New("invalid window")
	ErrUnknownNominal   = errors.New("nominal value for unknown parameter")
)

// Tables is a combined parameter and measurement table set whose rows are
// tagged by the category column.
type Tables struct {
	Parameters   *petab.Table
	Measurements *petab.Table
}

// Clone deep-copies both tables.
func (t Tables) Clone() Tables {
	return Tables{Parameters: t.Parameters.Clone(), Measurements: t.Measurements.Clone()}
}

// Combine tags the original and control tables with their category and
// stacks them.
func Combine(original, ctl Tables) Tables {
	return Tables{
		Parameters:   petab.Concat(tag(original.Parameters, petab.CategoryOriginal), tag(ctl.Parameters, petab.CategoryControl)),
		Measurements: petab.Concat(tag(original.Measurements, petab.CategoryOriginal), tag(ctl.Measurements, petab.CategoryControl)),
	}
}

func tag(t *petab.Table, category string) *petab.Table {
	if t == nil {
		return nil
	}
	out := t.Clone()
	out.AddColumn(petab.Category)
	for r := range out.Rows {
		out.Set(r, petab.Category, category)
	}
	return out
}

// Inclusive selects which window bounds are part of the window.
type Inclusive int

const (
	Left Inclusive = iota
	Right
	Both
	Neither
)

func (i Inclusive) String() string {
	switch i {
	case Left:
		return "left"
	case Right:
		return "right"
	case Both:
		return "both"
	case Neither:
		return "neither"
	default:
		return fmt.Sprintf("Inclusive(%d)", int(i))
	}
}

// ParseInclusive reads a policy name. Blank means Left.
func ParseInclusive(s string) (Inclusive, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "left":
		return Left, nil
	case "right":
		return Right, nil
	case "both":
		return Both, nil
	case "neither":
		return Neither, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidInclusive, s)
	}
}

// Window is [T0, T1] with bounds included according to Inclusive.
type Window struct {
	T0, T1    float64
	Inclusive Inclusive
}

// Contains reports whether t lies in the window.
func (w Window) Contains(t float64) bool {
	lo := t > w.T0 || (t == w.T0 && (w.Inclusive == Left || w.Inclusive == Both))
	hi := t < w.T1 || (t == w.T1 && (w.Inclusive == Right || w.Inclusive == Both))
	return lo && hi
}

func (w Window) validate() error {
	if !(w.T0 <= w.T1) {
		return fmt.Errorf("%w: t0=%v t1=%v", ErrInvalidWindow, w.T0, w.T1)
	}
	return nil
}

// EstimationWindow fixes every control parameter to zero, applies nominal
// values, and keeps the original measurements inside the window. The input
// is not modified.
func EstimationWindow(in Tables, w Window, nominal map[string]float64) (Tables, error) {
	out, err := prepare(in, w)
	if err != nil {
		return Tables{}, err
	}
	params := out.Parameters
	for r := range params.Rows {
		if params.Get(r, petab.Category) == petab.CategoryControl {
			fix(params, r, 0)
		}
	}
	if err := applyNominal(params, nominal); err != nil {
		return Tables{}, err
	}
	out.Measurements, err = measurementsIn(out.Measurements, w, petab.CategoryControl)
	if err != nil {
		return Tables{}, err
	}
	return out, nil
}

// ControlWindow keeps only the control parameters due inside the window
// estimated, applies nominal values, and keeps the control measurements
// inside the window. The input is not modified.
func ControlWindow(in Tables, w Window, nominal map[string]float64) (Tables, error) {
	out, err := prepare(in, w)
	if err != nil {
		return Tables{}, err
	}
	params := out.Parameters
	if err := params.Require(petab.ControlTime); err != nil {
		return Tables{}, err
	}
	for r := range params.Rows {
		switch params.Get(r, petab.Category) {
		case petab.CategoryOriginal:
			params.Set(r, petab.Estimate, petab.NotEstimated)
		case petab.CategoryControl:
			// Rows carried over from the base problem have no control time
			// and are never due.
			cell := params.Get(r, petab.ControlTime)
			if strings.TrimSpace(cell) == "" {
				fix(params, r, 0)
				continue
			}
			t, err := petab.ParseFloat(cell)
			if err != nil {
				return Tables{}, fmt.Errorf("parameter %q: %w", params.Get(r, petab.ParameterID), err)
			}
			if !w.Contains(t) {
				fix(params, r, 0)
			}
		}
	}
	if err := applyNominal(params, nominal); err != nil {
		return Tables{}, err
	}
	out.Measurements, err = measurementsIn(out.Measurements, w, petab.CategoryOriginal)
	if err != nil {
		return Tables{}, err
	}
	return out, nil
}

func prepare(in Tables, w Window) (Tables, error) {
	if err := w.validate(); err != nil {
		return Tables{}, err
	}
	if in.Parameters == nil || in.Measurements == nil {
		return Tables{}, errors.New("horizon: parameter and measurement tables are required")
	}
	if err := in.Parameters.Require(petab.ParameterID, petab.Category); err != nil {
		return Tables{}, fmt.Errorf("parameter table: %w", err)
	}
	if err := in.Measurements.Require(petab.Time, petab.Category); err != nil {
		return Tables{}, fmt.Errorf("measurement table: %w", err)
	}
	return in.Clone(), nil
}

func fix(params *petab.Table, row int, value float64) {
	params.Set(row, petab.Estimate, petab.NotEstimated)
	params.Set(row, petab.NominalValue, control.FormatNumber(value))
}

func applyNominal(params *petab.Table, nominal map[string]float64) error {
	ids := make([]string, 0, len(nominal))
	for id := range nominal {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := params.Find(petab.ParameterID, id)
		if r < 0 {
			return fmt.Errorf("%w: %q", ErrUnknownNominal, id)
		}
		params.Set(r, petab.NominalValue, control.FormatNumber(nominal[id]))
	}
	return nil
}

func measurementsIn(m *petab.Table, w Window, dropCategory string) (*petab.Table, error) {
	times, err := m.Floats(petab.Time)
	if err != nil {
		return nil, err
	}
	return m.Filter(func(r int) bool {
		return w.Contains(times[r]) && m.Get(r, petab.Category) != dropCategory
	}), nil
}
