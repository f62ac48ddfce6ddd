// Package timecourse segments control times into contiguous simulation periods.
package timecourse

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"timecourse_control/internal/control"
)

// SteadyState is the duration of the last period of every timecourse.
var SteadyState = math.Inf(1)

const (
	periodDelimiter = ";"
	timeDelimiter   = ":"

	// DefaultID names the control timecourse when the caller gives none.
	DefaultID = "control_timecourse"
)

var (
	ErrInvalidTime       = errors.New("invalid control time")
	ErrInvalidTimecourse = errors.New("invalid timecourse")
)

// Period is one maximal interval with a constant active condition.
// StartTime is relative to the owning timecourse's origin.
type Period struct {
	Index       int
	StartTime   float64
	Duration    float64
	ConditionID string
}

// Timecourse is an ordered partition of [0, inf) into periods.
type Timecourse struct {
	ID      string
	Origin  float64
	Periods []Period
}

// End returns the relative end time of period i.
func (tc Timecourse) End(i int) float64 {
	p := tc.Periods[i]
	return p.StartTime + p.Duration
}

// Absolute returns the absolute start time of period i.
func (tc Timecourse) Absolute(i int) float64 {
	return tc.Origin + tc.Periods[i].StartTime
}

// Len returns the number of periods.
func (tc Timecourse) Len() int { return len(tc.Periods) }

// Validate checks that the periods cover [0, inf) without gaps or overlaps.
func (tc Timecourse) Validate() error {
	if len(tc.Periods) == 0 {
		return fmt.Errorf("%w: %q has no periods", ErrInvalidTimecourse, tc.ID)
	}
	if tc.Periods[0].StartTime != 0 {
		return fmt.Errorf("%w: %q starts at %v, not 0", ErrInvalidTimecourse, tc.ID, tc.Periods[0].StartTime)
	}
	last := len(tc.Periods) - 1
	for i, p := range tc.Periods {
		if p.Index != i {
			return fmt.Errorf("%w: %q period %d has index %d", ErrInvalidTimecourse, tc.ID, i, p.Index)
		}
		if i == last {
			if !math.IsInf(p.Duration, 1) {
				return fmt.Errorf("%w: %q last period has finite duration %v", ErrInvalidTimecourse, tc.ID, p.Duration)
			}
			break
		}
		if !(p.Duration > 0) || math.IsInf(p.Duration, 0) {
			return fmt.Errorf("%w: %q period %d has duration %v", ErrInvalidTimecourse, tc.ID, i, p.Duration)
		}
		if next := tc.Periods[i+1].StartTime; tc.End(i) != next {
			return fmt.Errorf("%w: %q period %d ends at %v but period %d starts at %v",
				ErrInvalidTimecourse, tc.ID, i, tc.End(i), i+1, next)
		}
	}
	return nil
}

// Description renders the periods as "time:condition;time:condition".
func (tc Timecourse) Description() string {
	parts := make([]string, len(tc.Periods))
	for i, p := range tc.Periods {
		parts[i] = control.FormatNumber(p.StartTime) + timeDelimiter + p.ConditionID
	}
	return strings.Join(parts, periodDelimiter)
}

// ParseDescription is the inverse of Description.
func ParseDescription(id, description string) (Timecourse, error) {
	tc := Timecourse{ID: id}
	for i, part := range strings.Split(description, periodDelimiter) {
		t, cond, ok := strings.Cut(strings.TrimSpace(part), timeDelimiter)
		if !ok || cond == "" {
			return Timecourse{}, fmt.Errorf("%w: period %q in %q", ErrInvalidTimecourse, part, id)
		}
		start, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return Timecourse{}, fmt.Errorf("%w: period %q in %q: %v", ErrInvalidTimecourse, part, id, err)
		}
		tc.Periods = append(tc.Periods, Period{Index: i, StartTime: start, ConditionID: cond})
	}
	fillDurations(tc.Periods)
	if err := tc.Validate(); err != nil {
		return Timecourse{}, err
	}
	return tc, nil
}

// ConditionID names the condition active from absolute time t.
func ConditionID(t float64) string {
	return "timecourse_condition_" + control.Slug(control.FormatNumber(t))
}

// Segment partitions [0, inf) at every distinct control time. Control times
// are absolute; the returned timecourse has origin 0.
func Segment(id string, controls []control.Control) (Timecourse, error) {
	return segment(id, 0, controls)
}

func segment(id string, origin float64, controls []control.Control) (Timecourse, error) {
	if id == "" {
		id = DefaultID
	}
	seen := map[float64]struct{}{0: {}}
	times := []float64{0}
	for _, c := range controls {
		t := c.Time
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			return Timecourse{}, fmt.Errorf("%w: %v for target %q", ErrInvalidTime, c.Time, c.Target.ID)
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		times = append(times, t)
	}
	sort.Float64s(times)

	tc := Timecourse{ID: id, Origin: origin, Periods: make([]Period, len(times))}
	for i, t := range times {
		tc.Periods[i] = Period{Index: i, StartTime: t, ConditionID: ConditionID(origin + t)}
	}
	fillDurations(tc.Periods)
	return tc, nil
}

func fillDurations(periods []Period) {
	for i := range periods {
		if i == len(periods)-1 {
			periods[i].Duration = SteadyState
			continue
		}
		periods[i].Duration = periods[i+1].StartTime - periods[i].StartTime
	}
}

// SegmentOptions configures Build.
type SegmentOptions struct {
	ID string
	// Offset is the resolved start time added to every control time.
	Offset float64
	// Base is the estimation timecourse simulated before the controls.
	Base *Timecourse
}

// Segmentation is the result of Build.
type Segmentation struct {
	// Control covers the controls only. Its origin is Offset when a base
	// timecourse precedes it, 0 otherwise.
	Control Timecourse
	// Full is the simulated timecourse: the clipped base followed by Control.
	Full Timecourse
	// StartPeriodIndex is the index in Full of Control's first period.
	StartPeriodIndex int
	// Controls holds the input controls moved to absolute time.
	Controls []control.Control
}

// Build shifts relative control times by opts.Offset and segments them. With
// a base timecourse, the base is clipped to [0, Offset) and the control
// periods follow it.
func Build(controls []control.Control, opts SegmentOptions) (Segmentation, error) {
	if math.IsNaN(opts.Offset) || math.IsInf(opts.Offset, 0) || opts.Offset < 0 {
		return Segmentation{}, fmt.Errorf("%w: start time %v", ErrInvalidTime, opts.Offset)
	}
	shifted := make([]control.Control, len(controls))
	for i, c := range controls {
		if c.Time < 0 {
			return Segmentation{}, fmt.Errorf("%w: %v for target %q is before the start time", ErrInvalidTime, c.Time, c.Target.ID)
		}
		shifted[i] = c.Shift(opts.Offset)
	}

	if opts.Base == nil || len(opts.Base.Periods) == 0 {
		tc, err := segment(opts.ID, 0, shifted)
		if err != nil {
			return Segmentation{}, err
		}
		return Segmentation{Control: tc, Full: tc, Controls: shifted}, nil
	}

	if err := opts.Base.Validate(); err != nil {
		return Segmentation{}, fmt.Errorf("base timecourse: %w", err)
	}
	ctl, err := segment(opts.ID, opts.Offset, controls)
	if err != nil {
		return Segmentation{}, err
	}
	full := Timecourse{ID: ctl.ID, Periods: clip(*opts.Base, opts.Offset)}
	start := len(full.Periods)
	for _, p := range ctl.Periods {
		p.Index = len(full.Periods)
		p.StartTime += opts.Offset
		full.Periods = append(full.Periods, p)
	}
	fillDurations(full.Periods)
	return Segmentation{Control: ctl, Full: full, StartPeriodIndex: start, Controls: shifted}, nil
}

// clip returns the periods of base starting before end, with the last one
// truncated at end.
func clip(base Timecourse, end float64) []Period {
	var out []Period
	for _, p := range base.Periods {
		start := base.Origin + p.StartTime
		if start >= end {
			break
		}
		p.StartTime = start
		out = append(out, p)
	}
	return out
}

// LastMeasuredTimepointLiteral is the manifest spelling of a start time taken
// from the measurements.
const LastMeasuredTimepointLiteral = "last_measured_timepoint"

var (
	ErrInvalidStartTime     = errors.New("invalid start time")
	ErrUnsupportedStartTime = errors.New("unsupported start time")
)

// StartTime is either a literal time or the last measured timepoint.
type StartTime struct {
	value        float64
	lastMeasured bool
}

func Literal(v float64) StartTime { return StartTime{value: v} }

func LastMeasuredTimepoint() StartTime { return StartTime{lastMeasured: true} }

func (s StartTime) IsLastMeasured() bool { return s.lastMeasured }

func (s StartTime) String() string {
	if s.lastMeasured {
		return LastMeasuredTimepointLiteral
	}
	return control.FormatNumber(s.value)
}

// ParseStartTime accepts numbers, numeric strings and "last_measured_timepoint".
func ParseStartTime(v any) (StartTime, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint64:
		f = float64(x)
	case string:
		s := strings.TrimSpace(x)
		switch s {
		case LastMeasuredTimepointLiteral:
			return LastMeasuredTimepoint(), nil
		case control.EstimateLiteral:
			return StartTime{}, fmt.Errorf("%w: estimating the start time", ErrUnsupportedStartTime)
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return StartTime{}, fmt.Errorf("%w: %q is neither a number nor %q", ErrInvalidStartTime, x, LastMeasuredTimepointLiteral)
		}
		f = parsed
	default:
		return StartTime{}, fmt.Errorf("%w: %v (%T)", ErrInvalidStartTime, v, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return StartTime{}, fmt.Errorf("%w: %v", ErrInvalidStartTime, v)
	}
	return Literal(f), nil
}

// Resolve returns the numeric start time. The last measured timepoint needs
// at least one measurement time.
func (s StartTime) Resolve(measurementTimes []float64) (float64, error) {
	if !s.lastMeasured {
		return s.value, nil
	}
	if len(measurementTimes) == 0 {
		return 0, fmt.Errorf("%w: %s with no measurements", ErrInvalidStartTime, LastMeasuredTimepointLiteral)
	}
	return floats.Max(measurementTimes), nil
}
