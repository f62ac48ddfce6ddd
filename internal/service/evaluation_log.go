package service

import (
	"context"
	"errors"
	"time"

	"timecourse_control/internal/models"
	"timecourse_control/internal/repository"
)

// EvaluationFilter selects evaluations of one problem in [From, To]. Zero
// fields do not filter.
type EvaluationFilter struct {
	ProblemID string
	From      time.Time
	To        time.Time
}

type EvaluationLogService struct {
	evaluations repository.EvaluationRepo
}

func NewEvaluationLogService(evaluations repository.EvaluationRepo) *EvaluationLogService {
	return &EvaluationLogService{evaluations: evaluations}
}

var errInvalidTimeRange = errors.New("invalid time range: From must be <= To")

func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func normalizeFilter(f EvaluationFilter) (repository.EvaluationFilter, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return repository.EvaluationFilter{}, errInvalidTimeRange
	}
	return repository.EvaluationFilter{ProblemID: f.ProblemID, From: from, To: to}, nil
}

func (s *EvaluationLogService) List(ctx context.Context, f EvaluationFilter) ([]models.Evaluation, error) {
	rf, err := normalizeFilter(f)
	if err != nil {
		return nil, err
	}
	return s.evaluations.List(ctx, rf)
}
