// Package timecourse_control holds the JSON payloads of the HTTP API.
package timecourse_control

import "timecourse_control/internal/objective"

// CompileRequest carries a control problem and an optional base problem as
// TSV text. Controls have times relative to StartTime, which is a number or
// "last_measured_timepoint".
type CompileRequest struct {
	ProblemID         string `json:"problem_id" binding:"required"`
	StartTime         any    `json:"start_time"`
	Controls          string `json:"controls" binding:"required"`
	ControlParameters string `json:"control_parameters" binding:"required"`
	Observables       string `json:"observables"`
	Measurements      string `json:"measurements" binding:"required"`

	BaseConditions   string `json:"base_conditions,omitempty"`
	BaseParameters   string `json:"base_parameters,omitempty"`
	BaseMeasurements string `json:"base_measurements,omitempty"`
	// BaseTimecourse is "time:condition;..." for a base problem that already
	// switches conditions.
	BaseTimecourse string `json:"base_timecourse,omitempty"`

	ParameterOrder []string `json:"parameter_order,omitempty"`
}

// EvaluateRequest holds the per-period simulator output for one parameter
// vector. Names is the optimizer's parameter order and defaults to the
// problem's free parameters.
type EvaluateRequest struct {
	Names   []string                 `json:"names"`
	Results []objective.PeriodResult `json:"results" binding:"required"`
}

// TruncateRequest selects a window of a combined estimation/control problem.
type TruncateRequest struct {
	OriginalParameters   string             `json:"original_parameters" binding:"required"`
	OriginalMeasurements string             `json:"original_measurements" binding:"required"`
	ControlParameters    string             `json:"control_parameters" binding:"required"`
	ControlMeasurements  string             `json:"control_measurements" binding:"required"`
	T0                   float64            `json:"t0"`
	// T1 defaults to no upper bound.
	T1                   *float64           `json:"t1,omitempty"`
	Inclusive            string             `json:"inclusive,omitempty"`
	Nominal              map[string]float64 `json:"nominal,omitempty"`
}

// TruncateResponse is the truncated problem as TSV text.
type TruncateResponse struct {
	Parameters   string `json:"parameters"`
	Measurements string `json:"measurements"`
}
