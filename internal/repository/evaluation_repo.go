package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"timecourse_control/internal/models"
)

type EvaluationSQLite struct {
	db *sql.DB
}

func NewEvaluationSQLite(db *sql.DB) *EvaluationSQLite { return &EvaluationSQLite{db: db} }

var _ EvaluationRepo = (*EvaluationSQLite)(nil)

const (
	insertEvaluationSQL = `INSERT INTO evaluations (id, problem_id, occurred_at, fval, grad, names) VALUES (?, ?, ?, ?, ?, ?)`
	selectEvaluationSQL = `SELECT id, problem_id, occurred_at, fval, grad, names FROM evaluations`
)

// Append inserts e. If ID or OccurredAt are empty, they're set.
func (r *EvaluationSQLite) Append(ctx context.Context, e *models.Evaluation) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	} else {
		e.OccurredAt = e.OccurredAt.UTC()
	}

	grad, err := json.Marshal(e.Gradient)
	if err != nil {
		return fmt.Errorf("encode gradient: %w", err)
	}
	names, err := json.Marshal(e.Names)
	if err != nil {
		return fmt.Errorf("encode names: %w", err)
	}

	_, err = r.db.ExecContext(ctx, insertEvaluationSQL,
		e.ID,
		e.ProblemID,
		e.OccurredAt.Format(timestampLayout),
		e.Value,
		string(grad),
		string(names),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation of %q: %w", e.ProblemID, err)
	}
	return nil
}

// List returns evaluations filtered by problem and [From, To] (inclusive),
// ordered by time.
func (r *EvaluationSQLite) List(ctx context.Context, f EvaluationFilter) ([]models.Evaluation, error) {
	var (
		conds []string
		args  []any
	)
	if f.ProblemID != "" {
		conds = append(conds, "problem_id = ?")
		args = append(args, f.ProblemID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, f.From.UTC().Format(timestampLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, f.To.UTC().Format(timestampLayout))
	}

	q := selectEvaluationSQL
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY occurred_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Evaluation, 0, 64)
	for rows.Next() {
		var (
			e           models.Evaluation
			grad, names string
		)
		if err := rows.Scan(&e.ID, &e.ProblemID, &e.OccurredAt, &e.Value, &grad, &names); err != nil {
			return nil, err
		}
		e.OccurredAt = e.OccurredAt.UTC()
		if err := json.Unmarshal([]byte(grad), &e.Gradient); err != nil {
			return nil, fmt.Errorf("decode gradient of %q: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(names), &e.Names); err != nil {
			return nil, fmt.Errorf("decode names of %q: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
