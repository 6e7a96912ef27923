// ABOUTME: Tests for audit log store operations
// ABOUTME: Covers Append and List ordering/limits for the audit_logs table

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditStore_Append(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	actor := "alice@x.com"
	ip := "10.0.0.1"
	entry := &AuditLog{
		ActorEmail: &actor,
		Action:     "BANK.DEPOSIT.SUCCESS",
		Endpoint:   "/bank/deposit",
		Status:     AuditSuccess,
		IPAddress:  &ip,
	}

	require.NoError(t, store.AppendAuditLog(ctx, entry))

	// Should have generated ID and timestamp
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	entries, err := store.ListAuditLogs(ctx, 50)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].ActorEmail)
	assert.Equal(t, actor, *entries[0].ActorEmail)
	require.NotNil(t, entries[0].IPAddress)
	assert.Equal(t, ip, *entries[0].IPAddress)
	assert.Equal(t, AuditSuccess, entries[0].Status)
}

func TestAuditStore_Append_Anonymous(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendAuditLog(ctx, &AuditLog{
		Action:   "AUTH.TOKEN.FAIL",
		Endpoint: "/bank/me",
		Status:   AuditFail,
	}))

	entries, err := store.ListAuditLogs(ctx, 50)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].ActorEmail)
	assert.Nil(t, entries[0].IPAddress)
}

func TestAuditStore_Append_RejectsUnknownStatus(t *testing.T) {
	store := setupTestStore(t)

	err := store.AppendAuditLog(context.Background(), &AuditLog{
		Action:   "X",
		Endpoint: "/x",
		Status:   "maybe",
	})
	require.Error(t, err)
}

func TestAuditStore_List_NewestFirstWithLimit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 55; i++ {
		require.NoError(t, store.AppendAuditLog(ctx, &AuditLog{
			Action:    fmt.Sprintf("ACTION.%d", i),
			Endpoint:  "/x",
			Status:    AuditSuccess,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := store.ListAuditLogs(ctx, 50)
	require.NoError(t, err)
	require.Len(t, entries, 50)
	assert.Equal(t, "ACTION.54", entries[0].Action)
	assert.Equal(t, "ACTION.5", entries[49].Action)
}
