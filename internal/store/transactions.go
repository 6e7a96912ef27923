// ABOUTME: Transaction (ledger entry) store methods
// ABOUTME: Entries are append-only; listing is newest first with insertion order as tie-break

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateTransaction appends a ledger entry. Generates ID and CreatedAt if not set.
func (q queries) CreateTransaction(ctx context.Context, tx *Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if !tx.Amount.IsPositive() {
		return fmt.Errorf("transaction amount must be positive, got %s", tx.Amount)
	}

	query := `
		INSERT INTO transactions (id, from_account_id, to_account_id, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := q.db.ExecContext(ctx, query,
		tx.ID,
		tx.FromAccountID,
		tx.ToAccountID,
		tx.Amount.String(),
		string(tx.Status),
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}

	q.logger.Debug("recorded transaction",
		"id", tx.ID,
		"to", tx.ToAccountID,
		"amount", tx.Amount.String(),
		"status", tx.Status,
	)
	return nil
}

// ListTransactionsByAccount returns up to limit entries where the account is
// either source or destination, newest first.
func (q queries) ListTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	query := `
		SELECT id, from_account_id, to_account_id, amount, status, created_at
		FROM transactions
		WHERE from_account_id = ? OR to_account_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := q.db.QueryContext(ctx, query, accountID, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	txs := []Transaction{}
	for rows.Next() {
		var t Transaction
		var status, createdAtStr string
		if err := rows.Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &status, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		t.Status = TransactionStatus(status)
		if t.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return txs, nil
}
