package repository

import (
	"database/sql"
	"encoding/json"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// ExecutionRepository is the append-only history of terminal executions.
// Running executions live only in the engine; a row is written once, when
// the run reaches a terminal state, and never updated.
type ExecutionRepository struct {
	db *sql.DB
}

func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

const executionColumns = ` id, workflow_id, status, steps, started, ended, error, skipped, reason `

func (r *ExecutionRepository) Save(ex *domain.Execution) error {
	steps, err := json.Marshal(ex.Steps)
	if err != nil {
		return err
	}
	vals := []interface{}{
		ex.ID, ex.WorkflowID, string(ex.Status), string(steps),
		formatDateInDatabase(ex.Started), formatDateInDatabaseNull(ex.Ended),
		ex.Error, ex.Skipped, ex.Reason,
	}
	query := `INSERT INTO execution (` + executionColumns + `) VALUES (` + placeholders(len(vals)) + `)`
	_, err = r.db.Exec(query, vals...)
	return err
}

func (r *ExecutionRepository) FindByID(id string) (*domain.Execution, error) {
	rows, err := r.db.Query(`SELECT `+executionColumns+` FROM execution WHERE id = `+placeholder(1), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanExecution(rows)
}

func (r *ExecutionRepository) FindByWorkflowID(workflowID string) ([]domain.Execution, error) {
	rows, err := r.db.Query(`SELECT `+executionColumns+` FROM execution
		WHERE workflow_id = `+placeholder(1)+` ORDER BY started DESC`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExecutions(rows)
}

func (r *ExecutionRepository) FindRecent(limit int) ([]domain.Execution, error) {
	rows, err := r.db.Query(`SELECT `+executionColumns+` FROM execution
		ORDER BY started DESC LIMIT `+placeholder(1), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExecutions(rows)
}

// TrimHistory keeps only the newest limit rows.
func (r *ExecutionRepository) TrimHistory(limit int) error {
	query := `DELETE FROM execution WHERE id NOT IN (
		SELECT id FROM (
			SELECT id FROM execution ORDER BY started DESC LIMIT ` + placeholder(1) + `
		) keep
	)`
	_, err := r.db.Exec(query, limit)
	return err
}

func collectExecutions(rows *sql.Rows) ([]domain.Execution, error) {
	var out []domain.Execution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ex)
	}
	return out, rows.Err()
}

func scanExecution(rows *sql.Rows) (*domain.Execution, error) {
	var ex domain.Execution
	var steps, status string
	var ended sql.NullTime
	err := rows.Scan(&ex.ID, &ex.WorkflowID, &status, &steps, &ex.Started, &ended,
		&ex.Error, &ex.Skipped, &ex.Reason)
	if err != nil {
		return nil, err
	}
	ex.Status = domain.ExecutionStatus(status)
	if steps != "" {
		if err := json.Unmarshal([]byte(steps), &ex.Steps); err != nil {
			return nil, err
		}
	}
	ex.Ended = nullTimePtr(ended)
	return &ex, nil
}
