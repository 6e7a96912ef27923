// ABOUTME: Account store methods: ensure-exists, lookup and versioned balance writes
// ABOUTME: UpdateBalance fails with ErrConflict when the row changed since it was read

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateAccount inserts a new account. Generates ID and CreatedAt if not set.
func (q queries) CreateAccount(ctx context.Context, account *Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO accounts (id, user_id, balance, version, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := q.db.ExecContext(ctx, query,
		account.ID,
		account.UserID,
		account.Balance.String(),
		account.Version,
		formatTime(account.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// GetAccountByUserID retrieves the account owned by a user.
func (q queries) GetAccountByUserID(ctx context.Context, userID string) (*Account, error) {
	query := `
		SELECT id, user_id, balance, version, created_at
		FROM accounts
		WHERE user_id = ?
	`

	var acc Account
	var createdAtStr string

	err := q.db.QueryRowContext(ctx, query, userID).Scan(
		&acc.ID,
		&acc.UserID,
		&acc.Balance,
		&acc.Version,
		&createdAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}

	acc.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// EnsureAccount returns the user's account, creating a zero-balance one if
// none exists. Calling it repeatedly yields the same account.
func (q queries) EnsureAccount(ctx context.Context, userID string) (*Account, error) {
	query := `
		INSERT INTO accounts (id, user_id, balance, version, created_at)
		VALUES (?, ?, '0', 0, ?)
		ON CONFLICT(user_id) DO NOTHING
	`

	result, err := q.db.ExecContext(ctx, query, uuid.New().String(), userID, formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("ensuring account: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		q.logger.Debug("created account", "user_id", userID)
	}

	return q.GetAccountByUserID(ctx, userID)
}

// UpdateBalance writes a new balance if the account still has the version it
// was read with, and advances account.Version on success.
func (q queries) UpdateBalance(ctx context.Context, account *Account, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("refusing negative balance %s for account %s", balance, account.ID)
	}

	query := `
		UPDATE accounts
		SET balance = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	result, err := q.db.ExecContext(ctx, query, balance.String(), account.ID, account.Version)
	if err != nil {
		return fmt.Errorf("updating balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrConflict
	}

	account.Balance = balance
	account.Version++
	return nil
}
