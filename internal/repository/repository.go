package repository

import (
	"context"
	"database/sql"
	"time"

	"timecourse_control/internal/models"
)

// timestampLayout is the SQLite TIMESTAMP text format.
const timestampLayout = "2006-01-02 15:04:05"

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type ProblemRepo interface {
	Save(ctx context.Context, p *models.Problem) error
	Get(ctx context.Context, id string) (*models.Problem, error)
	List(ctx context.Context) ([]models.Problem, error)
}

// EvaluationFilter narrows List. Zero fields do not filter.
type EvaluationFilter struct {
	ProblemID string
	From, To  time.Time
}

type EvaluationRepo interface {
	Append(ctx context.Context, e *models.Evaluation) error
	List(ctx context.Context, f EvaluationFilter) ([]models.Evaluation, error)
}

type Repository struct {
	ProblemRepo    ProblemRepo
	EvaluationRepo EvaluationRepo
	Auth           Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		ProblemRepo:    NewProblemSQLite(db),
		EvaluationRepo: NewEvaluationSQLite(db),
		Auth:           NewUserRepository(db),
	}
}
