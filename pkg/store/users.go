// Package store provides SQLite-backed user persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound indicates no user exists for the given email.
	ErrNotFound = errors.New("user not found")

	// ErrEmailExists indicates the email is already registered.
	ErrEmailExists = errors.New("email already registered")
)

// User is a registered account with its quota state.
type User struct {
	ID                int64
	Email             string
	PasswordHash      string
	Plan              string
	DailyRequestCount int
	LastRequestDate   *time.Time
	CreatedAt         time.Time
}

// Users is the SQLite-backed user repository.
type Users struct {
	db *sql.DB
}

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	plan_type TEXT NOT NULL DEFAULT 'Free',
	daily_request_count INTEGER NOT NULL DEFAULT 0,
	last_request_date DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
`

// Open creates a Users repository and runs auto-migration.
func Open(dbPath string) (*Users, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open users db: %w", err)
	}

	if _, err := db.Exec(createUsersTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate users db: %w", err)
	}

	return &Users{db: db}, nil
}

// Create inserts a new user on the Free plan.
func (u *Users) Create(ctx context.Context, email, passwordHash string) (*User, error) {
	var exists int
	err := u.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE email = ?`, email,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists > 0 {
		return nil, ErrEmailExists
	}

	now := time.Now().UTC()
	res, err := u.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, plan_type, daily_request_count, created_at)
		 VALUES (?, ?, 'Free', 0, ?)`,
		email, passwordHash, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create user id: %w", err)
	}

	return &User{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		Plan:         "Free",
		CreatedAt:    now,
	}, nil
}

// GetByEmail returns the user for the given email, or ErrNotFound.
func (u *Users) GetByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	var last sql.NullTime

	err := u.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, plan_type, daily_request_count, last_request_date, created_at
		 FROM users WHERE email = ?`,
		email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Plan,
		&user.DailyRequestCount, &last, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if last.Valid {
		t := last.Time
		user.LastRequestDate = &t
	}
	return &user, nil
}

// UpdateQuota persists the daily counter and last request timestamp in place.
// A nil last leaves last_request_date untouched.
func (u *Users) UpdateQuota(ctx context.Context, email string, count int, last *time.Time) error {
	var err error
	if last != nil {
		_, err = u.db.ExecContext(ctx,
			`UPDATE users SET daily_request_count = ?, last_request_date = ? WHERE email = ?`,
			count, last.UTC(), email,
		)
	} else {
		_, err = u.db.ExecContext(ctx,
			`UPDATE users SET daily_request_count = ? WHERE email = ?`,
			count, email,
		)
	}
	if err != nil {
		return fmt.Errorf("update quota: %w", err)
	}
	return nil
}

// UpdatePlan switches a user's plan tier.
func (u *Users) UpdatePlan(ctx context.Context, email, plan string) error {
	res, err := u.db.ExecContext(ctx,
		`UPDATE users SET plan_type = ? WHERE email = ?`,
		plan, email,
	)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the database connection.
func (u *Users) Close() error {
	return u.db.Close()
}
