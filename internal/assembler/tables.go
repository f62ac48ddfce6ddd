package assembler

import (
	"fmt"

	"timecourse_control/internal/control"
	"timecourse_control/internal/petab"
)

// conditionTable has one row per control period mapping each controlled
// parameter to its active control parameter, blank when none is active. The
// experimental condition row supplies the remaining columns and is kept.
func (a *Assembly) conditionTable(base Base) (*petab.Table, error) {
	template := map[string]string{}
	experimental := map[string]string{petab.ConditionID: a.ConditionID}
	if base.Conditions != nil {
		if err := base.Conditions.Require(petab.ConditionID); err != nil {
			return nil, fmt.Errorf("condition table: %w", err)
		}
		if r := base.Conditions.Find(petab.ConditionID, a.ConditionID); r >= 0 {
			experimental = base.Conditions.Record(r)
			for k, v := range experimental {
				if k != petab.ConditionID && k != petab.ConditionName {
					template[k] = v
				}
			}
		}
	}

	out := petab.New(petab.ConditionID)
	if base.Conditions != nil && base.Timecourse != nil {
		out = petab.Concat(out, base.Conditions.Filter(func(r int) bool {
			return base.Conditions.Get(r, petab.ConditionID) != a.ConditionID
		}))
	}
	for _, p := range a.Resolution.Parameters {
		out.AddColumn(p)
	}

	seen := make(map[string]bool)
	for i, period := range a.Segmentation.Control.Periods {
		if seen[period.ConditionID] {
			continue
		}
		seen[period.ConditionID] = true
		row := map[string]string{petab.ConditionID: period.ConditionID}
		for k, v := range template {
			row[k] = v
		}
		for p, id := range a.Resolution.Periods[i] {
			row[p] = id
		}
		out.Append(row)
	}
	out.Append(experimental)
	return out, nil
}

// parameterTable keeps the base rows and adds one row per control parameter,
// copied from the row of the parameter it controls.
func (a *Assembly) parameterTable(controlParameters, baseParameters *petab.Table) (*petab.Table, error) {
	if err := controlParameters.Require(petab.ParameterID); err != nil {
		return nil, fmt.Errorf("control parameter table: %w", err)
	}
	rows := petab.New(petab.ParameterID)
	for _, d := range a.Descriptors() {
		r := controlParameters.Find(petab.ParameterID, d.Source())
		if r < 0 {
			return nil, fmt.Errorf("%w: %q", ErrMissingParameter, d.Source())
		}
		row := controlParameters.Record(r)
		row[petab.ParameterID] = d.ID
		row[petab.ControlTarget] = d.Source()
		row[petab.ControlTime] = control.FormatNumber(d.Control.Time)
		if v, fixed := d.Value().Value(); fixed {
			row[petab.Estimate] = petab.NotEstimated
			row[petab.NominalValue] = control.FormatNumber(v)
		} else {
			mid, err := midpoint(row)
			if err != nil {
				return nil, fmt.Errorf("control parameter %q: %w", d.ID, err)
			}
			row[petab.Estimate] = petab.Estimated
			row[petab.NominalValue] = control.FormatNumber(mid)
		}
		rows.Append(row)
	}
	if baseParameters == nil {
		return rows, nil
	}
	return petab.Concat(baseParameters, rows), nil
}

func midpoint(row map[string]string) (float64, error) {
	lb, err := petab.ParseFloat(row[petab.LowerBound])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", petab.LowerBound, err)
	}
	ub, err := petab.ParseFloat(row[petab.UpperBound])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", petab.UpperBound, err)
	}
	return (lb + ub) / 2, nil
}
