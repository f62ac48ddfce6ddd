package petab

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"timecourse_control/internal/control"
)

// TimeDelimiter separates several times in one control row.
const TimeDelimiter = ";"

var ErrUnknownParameter = errors.New("unknown parameter")

// ReadControls reads a control table file.
func ReadControls(path string) ([]control.Control, error) {
	t, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ControlsFromTable(t)
}

// ControlsFromTable parses control rows. A row whose time cell lists several
// ";"-separated times yields one control per time.
func ControlsFromTable(t *Table) ([]control.Control, error) {
	if err := t.Require(ParameterID, Time, Value); err != nil {
		return nil, fmt.Errorf("control table: %w", err)
	}
	var out []control.Control
	for r := range t.Rows {
		kind, err := control.ParseTargetKind(t.Get(r, TargetType))
		if err != nil {
			return nil, fmt.Errorf("control row %d: %w", r+1, err)
		}
		value, err := control.ParseOverride(t.Get(r, Value))
		if err != nil {
			return nil, fmt.Errorf("control row %d: %w", r+1, err)
		}
		target := control.Target{Kind: kind, ID: strings.TrimSpace(t.Get(r, ParameterID))}
		if target.ID == "" {
			return nil, fmt.Errorf("control row %d: empty %s", r+1, ParameterID)
		}
		for _, cell := range strings.Split(t.Get(r, Time), TimeDelimiter) {
			tm, err := ParseFloat(cell)
			if err != nil {
				return nil, fmt.Errorf("control row %d: %w", r+1, err)
			}
			out = append(out, control.Control{Target: target, Time: tm, Value: value})
		}
	}
	return out, nil
}

// ControlsToTable writes one row per control. The target type column is only
// added when a control targets something other than a parameter.
func ControlsToTable(controls []control.Control) *Table {
	t := New(ParameterID, Time, Value)
	for _, c := range controls {
		if c.Target.Kind != control.Parameter {
			t.AddColumn(TargetType)
			break
		}
	}
	for _, c := range controls {
		row := []string{c.Target.ID, control.FormatNumber(c.Time), c.Value.String()}
		if len(t.Columns) > 3 {
			row = append(row, c.Target.Kind.String())
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// WriteControls writes controls to a control table file.
func WriteControls(path string, controls []control.Control) error {
	return ControlsToTable(controls).WriteFile(path)
}

// ExperimentalConditions returns the distinct simulation condition ids used
// by the control and measurement tables.
func ExperimentalConditions(tables ...*Table) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, t := range tables {
		if t == nil {
			continue
		}
		values, err := t.Column(SimulationConditionID)
		if err != nil {
			continue
		}
		for _, v := range values {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			ids = append(ids, v)
		}
	}
	sort.Strings(ids)
	return ids
}

// FixParameters returns a copy of a parameter table with every parameter in
// values fixed to its value.
func FixParameters(parameters *Table, values map[string]float64) (*Table, error) {
	if err := parameters.Require(ParameterID); err != nil {
		return nil, err
	}
	out := parameters.Clone()
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := out.Find(ParameterID, id)
		if r < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParameter, id)
		}
		out.Set(r, Estimate, NotEstimated)
		out.Set(r, NominalValue, control.FormatNumber(values[id]))
	}
	return out, nil
}
