package assembler

import (
	"errors"
	"fmt"

	"timecourse_control/internal/control"
)

// PlaceholderValue is the initial value of a control parameter that is
// estimated.
const PlaceholderValue = 0.1

var ErrDuplicate = errors.New("duplicate model component")

// ModelParameter is a parameter declared in the model.
type ModelParameter struct {
	ID       string  `yaml:"id" json:"id"`
	Value    float64 `yaml:"value" json:"value"`
	Constant bool    `yaml:"constant" json:"constant"`
}

// Event assigns Assignment to Variable once Trigger becomes true.
type Event struct {
	ID         string `yaml:"id" json:"id"`
	Trigger    string `yaml:"trigger" json:"trigger"`
	Variable   string `yaml:"variable" json:"variable"`
	Assignment string `yaml:"assignment" json:"assignment"`
}

// AssignmentRule makes Variable follow Formula at all times.
type AssignmentRule struct {
	Variable string `yaml:"variable" json:"variable"`
	Formula  string `yaml:"formula" json:"formula"`
}

// Model is the model document controls are injected into.
type Model interface {
	AddParameter(p ModelParameter) error
	AddEvent(e Event) error
	AddAssignmentRule(r AssignmentRule) error
}

// MemoryModel records the declarations made on it.
type MemoryModel struct {
	ID         string           `yaml:"model_id,omitempty" json:"model_id,omitempty"`
	Parameters []ModelParameter `yaml:"parameters" json:"parameters"`
	Events     []Event          `yaml:"events" json:"events"`
	Rules      []AssignmentRule `yaml:"assignment_rules,omitempty" json:"assignment_rules,omitempty"`
}

func (m *MemoryModel) AddParameter(p ModelParameter) error {
	for _, existing := range m.Parameters {
		if existing.ID == p.ID {
			return fmt.Errorf("%w: parameter %q", ErrDuplicate, p.ID)
		}
	}
	m.Parameters = append(m.Parameters, p)
	return nil
}

func (m *MemoryModel) AddEvent(e Event) error {
	for _, existing := range m.Events {
		if existing.ID == e.ID {
			return fmt.Errorf("%w: event %q", ErrDuplicate, e.ID)
		}
	}
	m.Events = append(m.Events, e)
	return nil
}

func (m *MemoryModel) AddAssignmentRule(r AssignmentRule) error {
	for _, existing := range m.Rules {
		if existing.Variable == r.Variable {
			return fmt.Errorf("%w: assignment rule for %q", ErrDuplicate, r.Variable)
		}
	}
	m.Rules = append(m.Rules, r)
	return nil
}

// InjectEvents declares, for every distinct control, its control parameter,
// its switch parameter and an event applying it at its time. Control times
// must be absolute.
func InjectEvents(model Model, controls []control.Control) error {
	done := make(map[string]struct{}, len(controls))
	for _, c := range controls {
		id := c.ID()
		if _, ok := done[id]; ok {
			continue
		}
		done[id] = struct{}{}

		param := ModelParameter{ID: c.ControlParameterID(), Constant: true}
		assignment := c.ControlParameterID()
		if v, fixed := c.Value.Value(); fixed {
			param.Value = v
			assignment = control.FormatNumber(v)
		} else {
			param.Value = PlaceholderValue
			param.Constant = false
		}
		if err := model.AddParameter(param); err != nil {
			return err
		}
		if err := model.AddParameter(ModelParameter{ID: c.SwitchParameterID()}); err != nil {
			return err
		}
		err := model.AddEvent(Event{
			ID:         c.EventID(),
			Trigger:    "time >= " + control.FormatNumber(c.Time),
			Variable:   c.Target.ID,
			Assignment: assignment,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// InjectEvents applies the assembly's controls to model.
func (a *Assembly) InjectEvents(model Model) error {
	return InjectEvents(model, a.Segmentation.Controls)
}
