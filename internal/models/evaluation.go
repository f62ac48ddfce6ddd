package models

import "time"

// Evaluation is one objective evaluation of a stored problem.
type Evaluation struct {
	ID         string    `json:"id"`
	ProblemID  string    `json:"problem_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Value      float64   `json:"fval"`
	Gradient   []float64 `json:"grad"`
	Names      []string  `json:"names"`
}
