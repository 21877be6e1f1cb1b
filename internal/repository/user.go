package repository

import (
	"database/sql"

	"github.com/finpilot/finpilot/pkg/finpilot/core"
	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// UserRepository provides persistence methods for the users table.
type UserRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewUserRepository(db *sql.DB, clock core.Clock) *UserRepository {
	return &UserRepository{db: db, clock: clock}
}

// Save inserts a new user and returns its generated id.
func (r *UserRepository) Save(u *domain.User) (int64, error) {
	if !u.Created.Valid {
		u.Created = sql.NullTime{Time: r.clock.Now().UTC(), Valid: true}
	}

	base := `
        INSERT INTO users (username, password, api_key, created, enabled)
        VALUES (` + placeholder(1) + `,` + placeholder(2) + `,` + placeholder(3) + `,` + placeholder(4) + `,` + placeholder(5) + `)
    `

	var id int64
	var err error
	if supportsReturning() {
		err = r.db.QueryRow(base+" RETURNING id",
			u.Username, u.Password, u.ApiKey, u.Created, u.Enabled).Scan(&id)
	} else {
		res, e := r.db.Exec(base, u.Username, u.Password, u.ApiKey, u.Created, u.Enabled)
		if e != nil {
			err = e
		} else {
			newID, e2 := res.LastInsertId()
			if e2 != nil {
				err = e2
			} else {
				id = newID
			}
		}
	}
	if err != nil {
		return 0, err
	}
	u.ID = id
	return id, nil
}

// FindByApiKey fetches a user by api key. Returns (nil, nil) if not found.
func (r *UserRepository) FindByApiKey(apiKey string) (*domain.User, error) {
	query := `
        SELECT id, username, password, api_key, created, enabled
        FROM users
        WHERE api_key = ` + placeholder(1) + ` AND enabled = ` + placeholder(2) + `
        LIMIT 1
    `
	var u domain.User
	err := r.db.QueryRow(query, apiKey, true).Scan(
		&u.ID, &u.Username, &u.Password, &u.ApiKey, &u.Created, &u.Enabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByUsername fetches a user by exact username. Returns (nil, nil) if not found.
func (r *UserRepository) FindByUsername(username string) (*domain.User, error) {
	query := `
        SELECT id, username, password, api_key, created, enabled
        FROM users
        WHERE username = ` + placeholder(1) + `
        LIMIT 1
    `
	var u domain.User
	err := r.db.QueryRow(query, username).Scan(
		&u.ID, &u.Username, &u.Password, &u.ApiKey, &u.Created, &u.Enabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Count returns the number of user rows.
func (r *UserRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
