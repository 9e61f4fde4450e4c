// Package billing implements a SQLite credit ledger. Implements
// funnel.Ledger.
package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Per-action credit costs. Unknown actions cost the default.
var actionCosts = map[string]int{
	"job_scan": 5,
	"job_rank": 1,
}

const defaultActionCost = 1

// Ledger tracks per-user credit balances.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at path. An empty path places
// it under $HOME/.go_scout/ledger.db.
func Open(path string) (*Ledger, error) {
	if path == "" {
		dir := filepath.Join(os.Getenv("HOME"), ".go_scout")
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("ledger: mkdir %s: %w", dir, err)
		}
		path = filepath.Join(dir, "ledger.db")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS credits (
			user_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE TABLE IF NOT EXISTS credit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			delta INTEGER NOT NULL,
			at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: init schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func cost(action string) int {
	if c, ok := actionCosts[action]; ok {
		return c
	}
	return defaultActionCost
}

// CanUserAction reports whether the user's balance covers one action.
// An unknown user has a zero balance.
func (l *Ledger) CanUserAction(ctx context.Context, userID, action string) (bool, error) {
	bal, err := l.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return bal >= cost(action), nil
}

// ConsumeCredits deducts one action's cost. Fails when the balance would go
// negative.
func (l *Ledger) ConsumeCredits(ctx context.Context, userID, action string) error {
	c := cost(action)
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE credits SET balance = balance - ?, updated_at = datetime('now')
		WHERE user_id = ? AND balance >= ?`, c, userID, c)
	if err != nil {
		return fmt.Errorf("ledger: consume: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("ledger: user %s has insufficient credits for %s", userID, action)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_log (user_id, action, delta) VALUES (?, ?, ?)`,
		userID, action, -c); err != nil {
		return fmt.Errorf("ledger: log: %w", err)
	}
	return tx.Commit()
}

// Grant adds credits to a user, creating the account if needed.
func (l *Ledger) Grant(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return errors.New("ledger: grant amount must be positive")
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credits (user_id, balance) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			balance = balance + excluded.balance,
			updated_at = datetime('now')`, userID, amount); err != nil {
		return fmt.Errorf("ledger: grant: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_log (user_id, action, delta) VALUES (?, 'grant', ?)`,
		userID, amount); err != nil {
		return fmt.Errorf("ledger: log: %w", err)
	}
	return tx.Commit()
}

// Balance returns a user's current balance; zero for unknown users.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	var bal int
	err := l.db.QueryRowContext(ctx, `SELECT balance FROM credits WHERE user_id = ?`, userID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: balance: %w", err)
	}
	return bal, nil
}
