package service

import (
	"context"

	"timecourse_control/internal/logger"
	"timecourse_control/internal/models"
	"timecourse_control/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Compiler assembles control problems and stores the result.
type Compiler interface {
	Compile(ctx context.Context, in CompileInput) (*models.Problem, error)
}

// Problems reads stored problems.
type Problems interface {
	Get(ctx context.Context, id string) (*models.Problem, error)
	List(ctx context.Context) ([]models.Problem, error)
}

// Objective turns per-period simulation results into the optimizer's
// objective and gradient.
type Objective interface {
	Evaluate(ctx context.Context, problemID string, in EvaluateInput) (models.Evaluation, error)
}

// EvaluationLog exposes recorded evaluations with filtering.
type EvaluationLog interface {
	List(ctx context.Context, f EvaluationFilter) ([]models.Evaluation, error)
}

// Horizon truncates a combined estimation/control problem to a window.
type Horizon interface {
	Truncate(ctx context.Context, in TruncateInput) (TruncateOutput, error)
}

type Service struct {
	Compiler
	Problems
	Objective
	EvaluationLog
	Horizon
	Authorization
}

type Options struct {
	Auth AuthOptions
	Log  *logger.Logger
}

func NewService(repos *repository.Repository, opts Options) *Service {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	problems := NewProblemService(repos.ProblemRepo, log)
	return &Service{
		Compiler:      problems,
		Problems:      problems,
		Objective:     NewObjectiveService(repos.ProblemRepo, repos.EvaluationRepo, log),
		EvaluationLog: NewEvaluationLogService(repos.EvaluationRepo),
		Horizon:       NewHorizonService(log),
		Authorization: NewAuthService(repos.Auth, opts.Auth),
	}
}
