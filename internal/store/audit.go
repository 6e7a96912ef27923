// ABOUTME: Audit log store methods for security-relevant action attempts
// ABOUTME: Records who tried what, on which endpoint, and whether it succeeded

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendAuditLog appends a new entry to the audit log.
// Generates ID and CreatedAt if not set.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditLog) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_logs (id, actor_email, action, endpoint, status, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.sqlDB.ExecContext(ctx, query,
		e.ID,
		e.ActorEmail,
		e.Action,
		e.Endpoint,
		string(e.Status),
		e.IPAddress,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log",
		"id", e.ID,
		"action", e.Action,
		"endpoint", e.Endpoint,
		"status", e.Status,
	)
	return nil
}

// ListAuditLogs returns up to limit audit entries, newest first.
func (s *SQLiteStore) ListAuditLogs(ctx context.Context, limit int) ([]AuditLog, error) {
	query := `
		SELECT id, actor_email, action, endpoint, status, ip_address, created_at
		FROM audit_logs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.sqlDB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditLog{}
	for rows.Next() {
		var e AuditLog
		var status, createdAtStr string
		if err := rows.Scan(&e.ID, &e.ActorEmail, &e.Action, &e.Endpoint, &status, &e.IPAddress, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Status = AuditStatus(status)
		if e.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}
