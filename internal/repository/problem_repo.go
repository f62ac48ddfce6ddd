package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"timecourse_control/internal/models"
)

type ProblemSQLite struct {
	db *sql.DB
}

func NewProblemSQLite(db *sql.DB) *ProblemSQLite { return &ProblemSQLite{db: db} }

var _ ProblemRepo = (*ProblemSQLite)(nil)

const (
	insertProblemSQL = `INSERT INTO problems (id, problem_id, condition_id, start_time, period_count, conditions, parameters, measurements, timecourses, descriptors, free_parameters, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	selectProblemSQL = `SELECT id, problem_id, condition_id, start_time, period_count, conditions, parameters, measurements, timecourses, descriptors, free_parameters, created_at FROM problems WHERE id = ?`
	listProblemsSQL  = `SELECT id, problem_id, condition_id, start_time, period_count, free_parameters, created_at FROM problems ORDER BY created_at ASC`
)

// Save inserts p, filling in ID and CreatedAt when they are empty.
func (r *ProblemSQLite) Save(ctx context.Context, p *models.Problem) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.CreatedAt = p.CreatedAt.UTC().Truncate(time.Second)

	descriptors, err := json.Marshal(p.Descriptors)
	if err != nil {
		return fmt.Errorf("encode descriptors of %q: %w", p.ID, err)
	}
	free, err := json.Marshal(p.FreeParameters)
	if err != nil {
		return fmt.Errorf("encode free parameters of %q: %w", p.ID, err)
	}

	_, err = r.db.ExecContext(ctx, insertProblemSQL,
		p.ID, p.ProblemID, p.ConditionID, p.StartTime, p.PeriodCount,
		p.Conditions, p.Parameters, p.Measurements, p.Timecourses,
		string(descriptors), string(free),
		p.CreatedAt.Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("insert problem %q: %w", p.ID, err)
	}
	return nil
}

// Get returns (nil, nil) if no problem has that id.
func (r *ProblemSQLite) Get(ctx context.Context, id string) (*models.Problem, error) {
	var (
		p                 models.Problem
		descriptors, free string
	)
	err := r.db.QueryRowContext(ctx, selectProblemSQL, id).Scan(
		&p.ID, &p.ProblemID, &p.ConditionID, &p.StartTime, &p.PeriodCount,
		&p.Conditions, &p.Parameters, &p.Measurements, &p.Timecourses,
		&descriptors, &free, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select problem %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(descriptors), &p.Descriptors); err != nil {
		return nil, fmt.Errorf("decode descriptors of %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(free), &p.FreeParameters); err != nil {
		return nil, fmt.Errorf("decode free parameters of %q: %w", id, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// List returns every stored problem without its tables or descriptors,
// oldest first.
func (r *ProblemSQLite) List(ctx context.Context) ([]models.Problem, error) {
	rows, err := r.db.QueryContext(ctx, listProblemsSQL)
	if err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}
	defer rows.Close()

	out := make([]models.Problem, 0, 16)
	for rows.Next() {
		var (
			p    models.Problem
			free string
		)
		if err := rows.Scan(&p.ID, &p.ProblemID, &p.ConditionID, &p.StartTime, &p.PeriodCount, &free, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(free), &p.FreeParameters); err != nil {
			return nil, fmt.Errorf("decode free parameters of %q: %w", p.ID, err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
