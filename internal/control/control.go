// Package control models timed overrides of model targets and the
// identifiers derived from them.
package control

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// TargetKind tells which part of the model a control overrides.
type TargetKind int

const (
	Parameter TargetKind = iota
	Species
	State
)

func (k TargetKind) String() string {
	switch k {
	case Parameter:
		return "parameter"
	case Species:
		return "species"
	case State:
		return "state"
	default:
		return fmt.Sprintf("TargetKind(%d)", int(k))
	}
}

// ParseTargetKind reads a target type cell. Blank means Parameter.
func ParseTargetKind(s string) (TargetKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "parameter":
		return Parameter, nil
	case "species":
		return Species, nil
	case "state":
		return State, nil
	default:
		return 0, fmt.Errorf("unknown target type %q", s)
	}
}

func (k TargetKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *TargetKind) UnmarshalText(b []byte) error {
	v, err := ParseTargetKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Target is the overridden model entity.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

// EstimateLiteral is the table spelling of an override left to the optimizer.
const EstimateLiteral = "estimate"

var ErrInvalidValue = errors.New("invalid control value")

// Override is either a fixed numeric value or a request to estimate one.
type Override struct {
	value    float64
	estimate bool
}

// Fixed returns an override pinned to v.
func Fixed(v float64) Override {
	if v == 0 {
		v = 0 // drop the sign of -0
	}
	return Override{value: v}
}

// Estimate returns an override whose value the optimizer determines.
func Estimate() Override { return Override{estimate: true} }

func (o Override) IsEstimate() bool { return o.estimate }

// Value returns the fixed value; ok is false for estimated overrides.
func (o Override) Value() (v float64, ok bool) {
	if o.estimate {
		return 0, false
	}
	return o.value, true
}

func (o Override) String() string {
	if o.estimate {
		return EstimateLiteral
	}
	return FormatNumber(o.value)
}

func (o Override) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Override) UnmarshalText(b []byte) error {
	v, err := ParseOverride(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// ParseOverride reads a value cell: a number or the literal "estimate".
func ParseOverride(s string) (Override, error) {
	s = strings.TrimSpace(s)
	if s == EstimateLiteral {
		return Estimate(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Override{}, fmt.Errorf("%w: %q is neither a number nor %q", ErrInvalidValue, s, EstimateLiteral)
	}
	if math.IsNaN(v) {
		return Override{}, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	return Fixed(v), nil
}

// Control overrides Target with Value from Time onwards.
type Control struct {
	Target Target   `json:"target"`
	Time   float64  `json:"time"`
	Value  Override `json:"value"`
}

// New builds a control on a model parameter.
func New(parameterID string, time float64, value Override) Control {
	return Control{Target: Target{Kind: Parameter, ID: parameterID}, Time: time, Value: value}
}

// Shift returns a copy of c moved later in time by offset.
func (c Control) Shift(offset float64) Control {
	c.Time += offset
	return c
}

// ID is the identifier shared by all objects derived from c. Controls with
// equal fields share it.
func (c Control) ID() string {
	var prefix string
	switch c.Target.Kind {
	case Parameter:
		prefix = "target"
	case Species:
		prefix = "species_target"
	case State:
		prefix = "state_target"
	default:
		prefix = "target_" + Slug(c.Target.Kind.String())
	}
	return prefix + "__" + c.Target.ID +
		"__time__" + Slug(FormatNumber(c.Time)) +
		"__value__" + Slug(c.Value.String())
}

// ControlParameterID names the parameter that numerically represents c.
func (c Control) ControlParameterID() string {
	return "control_parameter__" + c.ID()
}

// SwitchParameterID names the 0/1 indicator that is 1 only while c's
// condition is active.
func (c Control) SwitchParameterID() string {
	return "switch_parameter__" + c.ID()
}

// ConditionID names the model condition representing "c is active".
func (c Control) ConditionID() string {
	return "control_condition__" + c.ID()
}

// EventID names the triggered model event that applies c.
func (c Control) EventID() string {
	return "control_event__" + c.ID()
}

// FormatNumber renders v in the shortest form that parses back to v.
func FormatNumber(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case v == 0:
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Slug maps s onto identifier-safe characters: ASCII letters, digits and '_'.
func Slug(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// GroupByTarget groups controls by target id. Each group is sorted by time,
// keeping input order for equal times.
func GroupByTarget(controls []Control) map[string][]Control {
	groups := make(map[string][]Control)
	for _, c := range controls {
		groups[c.Target.ID] = append(groups[c.Target.ID], c)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Time < g[j].Time })
	}
	return groups
}

// TargetIDs returns the sorted distinct target ids of controls.
func TargetIDs(controls []Control) []string {
	seen := make(map[string]struct{}, len(controls))
	ids := make([]string, 0, len(controls))
	for _, c := range controls {
		if _, ok := seen[c.Target.ID]; ok {
			continue
		}
		seen[c.Target.ID] = struct{}{}
		ids = append(ids, c.Target.ID)
	}
	sort.Strings(ids)
	return ids
}
