package assembler

import (
	"fmt"
	"sort"
	"strings"

	"timecourse_control/internal/control"
	"timecourse_control/internal/petab"
)

// Switches is the switch-indicator form of a controlled timecourse: one
// condition per control turning only its own switch on, and a formula per
// parameter summing switch*control over its controls.
type Switches struct {
	Conditions  *petab.Table
	Timecourses *petab.Table
	Formulae    map[string]string
}

// SwitchTables builds the switch form for controls on a single parameter.
// template holds the experimental condition's other columns.
func SwitchTables(controls []control.Control, conditionID string, template map[string]string) (Switches, error) {
	groups := control.GroupByTarget(controls)
	if len(groups) != 1 {
		return Switches{}, fmt.Errorf("%w: switch timecourses for %d parameters, only one is supported", ErrUnsupported, len(groups))
	}
	var sorted []control.Control
	seen := make(map[string]struct{})
	for _, g := range groups {
		for _, c := range g {
			if _, ok := seen[c.ID()]; ok {
				continue
			}
			seen[c.ID()] = struct{}{}
			sorted = append(sorted, c)
		}
		groups[g[0].Target.ID] = sorted
	}

	conditions := petab.New(petab.ConditionID)
	parts := make([]string, 0, len(sorted))
	for _, active := range sorted {
		row := map[string]string{petab.ConditionID: active.ConditionID()}
		for k, v := range template {
			row[k] = v
		}
		for _, c := range sorted {
			row[c.SwitchParameterID()] = "0"
			if c.ConditionID() == active.ConditionID() {
				row[c.SwitchParameterID()] = "1"
			}
		}
		conditions.Append(row)
		parts = append(parts, control.FormatNumber(active.Time)+":"+active.ConditionID())
	}
	conditions.Append(map[string]string{petab.ConditionID: conditionID})

	timecourses := petab.New(petab.TimecourseID, petab.Timecourse)
	timecourses.Rows = [][]string{{conditionID, strings.Join(parts, ";")}}

	return Switches{
		Conditions:  conditions,
		Timecourses: timecourses,
		Formulae:    Formulae(groups),
	}, nil
}

// Formulae returns, per parameter, the sum of switch*control terms.
func Formulae(groups map[string][]control.Control) map[string]string {
	out := make(map[string]string, len(groups))
	for p, controls := range groups {
		terms := make([]string, len(controls))
		for i, c := range controls {
			terms[i] = c.SwitchParameterID() + "*" + c.ControlParameterID()
		}
		out[p] = strings.Join(terms, " + ")
	}
	return out
}

// Apply adds the formulae to model as assignment rules.
func (s Switches) Apply(model Model) error {
	params := make([]string, 0, len(s.Formulae))
	for p := range s.Formulae {
		params = append(params, p)
	}
	sort.Strings(params)
	for _, p := range params {
		if err := model.AddAssignmentRule(AssignmentRule{Variable: p, Formula: s.Formulae[p]}); err != nil {
			return err
		}
	}
	return nil
}

// Switches builds the switch form of the assembly's controls.
func (a *Assembly) Switches() (Switches, error) {
	template := map[string]string{}
	if r := a.Conditions.Find(petab.ConditionID, a.ConditionID); r >= 0 {
		for k, v := range a.Conditions.Record(r) {
			if k != petab.ConditionID && k != petab.ConditionName && v != "" {
				template[k] = v
			}
		}
	}
	return SwitchTables(a.Segmentation.Controls, a.ConditionID, template)
}
