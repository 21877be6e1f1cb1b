package repository

import (
	"database/sql"
	"time"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// ScheduledTransactionRepository persists the recurring single-action jobs.
type ScheduledTransactionRepository struct {
	db *sql.DB
}

func NewScheduledTransactionRepository(db *sql.DB) *ScheduledTransactionRepository {
	return &ScheduledTransactionRepository{db: db}
}

const scheduleColumns = ` id, user_id, type, amount, currency, target_account,
	frequency, day_of_week, day_of_month, enabled, conditions, created,
	next_execution, last_execution `

func (r *ScheduledTransactionRepository) Save(st *domain.ScheduledTransaction) error {
	conds, err := marshalConditions(st.Conditions)
	if err != nil {
		return err
	}
	vals := []interface{}{
		st.ID, st.UserID, string(st.Type), st.Amount, st.Currency, st.TargetAccount,
		string(st.Frequency), weekdayValue(st.Anchor.DayOfWeek), st.Anchor.DayOfMonth,
		st.Enabled, conds, formatDateInDatabase(st.Created),
		formatDateInDatabase(st.NextExecution), formatDateInDatabaseNull(st.LastExecution),
	}
	query := `INSERT INTO scheduled_transaction (` + scheduleColumns + `)
		VALUES (` + placeholders(len(vals)) + `)`
	_, err = r.db.Exec(query, vals...)
	return err
}

func (r *ScheduledTransactionRepository) Update(st *domain.ScheduledTransaction) error {
	conds, err := marshalConditions(st.Conditions)
	if err != nil {
		return err
	}
	query := `UPDATE scheduled_transaction SET
		amount = ` + placeholder(1) + `, currency = ` + placeholder(2) + `,
		target_account = ` + placeholder(3) + `, frequency = ` + placeholder(4) + `,
		day_of_week = ` + placeholder(5) + `, day_of_month = ` + placeholder(6) + `,
		enabled = ` + placeholder(7) + `, conditions = ` + placeholder(8) + `,
		next_execution = ` + placeholder(9) + `, last_execution = ` + placeholder(10) + `
		WHERE id = ` + placeholder(11)
	_, err = r.db.Exec(query,
		st.Amount, st.Currency, st.TargetAccount, string(st.Frequency),
		weekdayValue(st.Anchor.DayOfWeek), st.Anchor.DayOfMonth, st.Enabled, conds,
		formatDateInDatabase(st.NextExecution), formatDateInDatabaseNull(st.LastExecution), st.ID)
	return err
}

func (r *ScheduledTransactionRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM scheduled_transaction WHERE id = `+placeholder(1), id)
	return err
}

func (r *ScheduledTransactionRepository) FindAll() ([]domain.ScheduledTransaction, error) {
	rows, err := r.db.Query(`SELECT ` + scheduleColumns + ` FROM scheduled_transaction ORDER BY created`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScheduledTransaction
	for rows.Next() {
		var st domain.ScheduledTransaction
		var txType, freq string
		var dayOfWeek sql.NullInt32
		var conds sql.NullString
		var lastExecution sql.NullTime
		err := rows.Scan(&st.ID, &st.UserID, &txType, &st.Amount, &st.Currency, &st.TargetAccount,
			&freq, &dayOfWeek, &st.Anchor.DayOfMonth, &st.Enabled, &conds, &st.Created,
			&st.NextExecution, &lastExecution)
		if err != nil {
			return nil, err
		}
		st.Type = domain.TransactionType(txType)
		st.Frequency = domain.Frequency(freq)
		if dayOfWeek.Valid {
			d := time.Weekday(dayOfWeek.Int32)
			st.Anchor.DayOfWeek = &d
		}
		if conds.Valid && conds.String != "" {
			var c domain.Conditions
			if err := unmarshalConditions(conds.String, &c); err != nil {
				return nil, err
			}
			st.Conditions = &c
		}
		st.LastExecution = nullTimePtr(lastExecution)
		out = append(out, st)
	}
	return out, rows.Err()
}
