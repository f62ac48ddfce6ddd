package models

import (
	"time"

	"timecourse_control/internal/resolver"
)

// Problem is a compiled control problem as stored. Tables are kept as TSV
// text so a client can write them out unchanged.
type Problem struct {
	ID          string    `json:"id"`
	ProblemID   string    `json:"problem_id"`
	ConditionID string    `json:"condition_id"`
	StartTime   float64   `json:"start_time"`
	PeriodCount int       `json:"period_count"`
	CreatedAt   time.Time `json:"created_at"`

	Conditions   string `json:"conditions"`
	Parameters   string `json:"parameters"`
	Measurements string `json:"measurements"`
	Timecourses  string `json:"timecourses"`

	Descriptors    []resolver.Descriptor `json:"descriptors"`
	FreeParameters []string              `json:"free_parameters"`
}
