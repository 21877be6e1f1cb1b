package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// WorkflowDefinitionRepository persists workflow definitions. The in-memory
// store is the authority; this table is its write-through copy and the
// source for reload at startup.
type WorkflowDefinitionRepository struct {
	db *sql.DB
}

func NewWorkflowDefinitionRepository(db *sql.DB) *WorkflowDefinitionRepository {
	return &WorkflowDefinitionRepository{db: db}
}

const definitionColumns = ` id, name, description, enabled, steps, recurring,
	frequency, day_of_week, day_of_month, conditions, created,
	last_executed, next_execution, execution_count, succeeded, success_rate `

func (r *WorkflowDefinitionRepository) Save(def *domain.WorkflowDefinition) error {
	steps, err := json.Marshal(def.Steps)
	if err != nil {
		return err
	}
	conds, err := marshalConditions(def.Conditions)
	if err != nil {
		return err
	}
	vals := []interface{}{
		def.ID, def.Name, def.Description, def.Enabled, string(steps), def.Recurring,
		string(def.Frequency), weekdayValue(def.Anchor.DayOfWeek), def.Anchor.DayOfMonth, conds,
		formatDateInDatabase(def.Created), formatDateInDatabaseNull(def.LastExecuted),
		formatDateInDatabaseNull(def.NextExecution), def.ExecutionCount, def.Succeeded, def.SuccessRate,
	}
	query := `INSERT INTO workflow_definition (` + definitionColumns + `)
		VALUES (` + placeholders(len(vals)) + `)`
	_, err = r.db.Exec(query, vals...)
	return err
}

func (r *WorkflowDefinitionRepository) Update(def *domain.WorkflowDefinition) error {
	steps, err := json.Marshal(def.Steps)
	if err != nil {
		return err
	}
	conds, err := marshalConditions(def.Conditions)
	if err != nil {
		return err
	}
	query := `UPDATE workflow_definition SET
		name = ` + placeholder(1) + `, description = ` + placeholder(2) + `,
		enabled = ` + placeholder(3) + `, steps = ` + placeholder(4) + `,
		recurring = ` + placeholder(5) + `, frequency = ` + placeholder(6) + `,
		day_of_week = ` + placeholder(7) + `, day_of_month = ` + placeholder(8) + `,
		conditions = ` + placeholder(9) + `, last_executed = ` + placeholder(10) + `,
		next_execution = ` + placeholder(11) + `, execution_count = ` + placeholder(12) + `,
		succeeded = ` + placeholder(13) + `, success_rate = ` + placeholder(14) + `
		WHERE id = ` + placeholder(15)
	_, err = r.db.Exec(query,
		def.Name, def.Description, def.Enabled, string(steps), def.Recurring,
		string(def.Frequency), weekdayValue(def.Anchor.DayOfWeek), def.Anchor.DayOfMonth, conds,
		formatDateInDatabaseNull(def.LastExecuted), formatDateInDatabaseNull(def.NextExecution),
		def.ExecutionCount, def.Succeeded, def.SuccessRate, def.ID)
	return err
}

func (r *WorkflowDefinitionRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM workflow_definition WHERE id = `+placeholder(1), id)
	return err
}

func (r *WorkflowDefinitionRepository) FindAll() ([]domain.WorkflowDefinition, error) {
	rows, err := r.db.Query(`SELECT ` + definitionColumns + ` FROM workflow_definition ORDER BY created`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []domain.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

func scanDefinition(rows *sql.Rows) (*domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	var steps string
	var conds sql.NullString
	var freq string
	var dayOfWeek sql.NullInt32
	var lastExecuted, nextExecution sql.NullTime
	err := rows.Scan(
		&def.ID, &def.Name, &def.Description, &def.Enabled, &steps, &def.Recurring,
		&freq, &dayOfWeek, &def.Anchor.DayOfMonth, &conds, &def.Created,
		&lastExecuted, &nextExecution, &def.ExecutionCount, &def.Succeeded, &def.SuccessRate,
	)
	if err != nil {
		return nil, err
	}
	if steps != "" {
		if err := json.Unmarshal([]byte(steps), &def.Steps); err != nil {
			return nil, err
		}
	}
	def.Frequency = domain.Frequency(freq)
	if dayOfWeek.Valid {
		d := time.Weekday(dayOfWeek.Int32)
		def.Anchor.DayOfWeek = &d
	}
	if conds.Valid && conds.String != "" {
		var c domain.Conditions
		if err := json.Unmarshal([]byte(conds.String), &c); err != nil {
			return nil, err
		}
		def.Conditions = &c
	}
	def.LastExecuted = nullTimePtr(lastExecuted)
	def.NextExecution = nullTimePtr(nextExecution)
	return &def, nil
}

func marshalConditions(c *domain.Conditions) (interface{}, error) {
	if c == nil {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalConditions(s string, c *domain.Conditions) error {
	return json.Unmarshal([]byte(s), c)
}

func weekdayValue(d *time.Weekday) interface{} {
	if d == nil {
		return nil
	}
	return int(*d)
}
