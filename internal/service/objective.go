package service

import (
	"context"
	"fmt"

	"timecourse_control/internal/logger"
	"timecourse_control/internal/models"
	"timecourse_control/internal/objective"
	"timecourse_control/internal/repository"
)

// EvaluateInput is the simulator output for one optimizer step. Names
// defaults to the problem's free parameters.
type EvaluateInput struct {
	Names   []string
	Results []objective.PeriodResult
}

type ObjectiveService struct {
	problems    repository.ProblemRepo
	evaluations repository.EvaluationRepo
	log         *logger.Logger
}

func NewObjectiveService(problems repository.ProblemRepo, evaluations repository.EvaluationRepo, log *logger.Logger) *ObjectiveService {
	return &ObjectiveService{problems: problems, evaluations: evaluations, log: log}
}

// Evaluate aggregates in against the stored problem's control parameter
// descriptors and records the result.
func (s *ObjectiveService) Evaluate(ctx context.Context, problemID string, in EvaluateInput) (models.Evaluation, error) {
	p, err := s.problems.Get(ctx, problemID)
	if err != nil {
		return models.Evaluation{}, err
	}
	if p == nil {
		return models.Evaluation{}, fmt.Errorf("%w: %q", ErrProblemNotFound, problemID)
	}

	names := in.Names
	if len(names) == 0 {
		names = p.FreeParameters
	}
	res, err := objective.Aggregate(objective.Input{
		Results:     in.Results,
		Descriptors: p.Descriptors,
		Names:       names,
		PeriodCount: p.PeriodCount,
	})
	if err != nil {
		return models.Evaluation{}, classify(err)
	}

	e := models.Evaluation{
		ProblemID: p.ID,
		Value:     res.Value,
		Gradient:  res.Gradient,
		Names:     append([]string(nil), names...),
	}
	if err := s.evaluations.Append(ctx, &e); err != nil {
		return models.Evaluation{}, err
	}
	s.log.Debugw("objective_evaluated", "problem", p.ID, "fval", e.Value, "parameters", len(names))
	return e, nil
}
