// ABOUTME: Tests for the audit recorder
// ABOUTME: Covers action codes, context source propagation and write-failure handling

package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbridge/bankd/internal/store"
)

func newTestRecorder(t *testing.T) (*Recorder, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewRecorder(s, slog.New(slog.DiscardHandler)), s
}

// failingAuditStore rejects every write.
type failingAuditStore struct {
	calls int
}

func (f *failingAuditStore) AppendAuditLog(context.Context, *store.AuditLog) error {
	f.calls++
	return errors.New("disk full")
}

func (f *failingAuditStore) ListAuditLogs(context.Context, int) ([]store.AuditLog, error) {
	return nil, errors.New("disk full")
}

func TestOperation_Codes(t *testing.T) {
	assert.Equal(t, "BANK.TRANSFER.FAIL", OpTransfer.Fail())
	assert.Equal(t, "AUTH.REGISTER.SUCCESS", OpRegister.Success())
	assert.Equal(t, "ADMIN.AUDIT.VIEW.SUCCESS", OpAdminAudit.Success())
}

func TestRecorder_OutcomeUsesContextSource(t *testing.T) {
	rec, s := newTestRecorder(t)
	ctx := WithSource(context.Background(), Source{Endpoint: "/bank/deposit", IP: "192.0.2.7"})

	rec.Outcome(ctx, "alice@x.com", OpDeposit, nil)
	rec.Outcome(ctx, "alice@x.com", OpDeposit, errors.New("nope"))

	entries, err := s.ListAuditLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "BANK.DEPOSIT.FAIL", entries[0].Action)
	assert.Equal(t, store.AuditFail, entries[0].Status)
	assert.Equal(t, "BANK.DEPOSIT.SUCCESS", entries[1].Action)
	assert.Equal(t, store.AuditSuccess, entries[1].Status)

	for _, e := range entries {
		assert.Equal(t, "/bank/deposit", e.Endpoint)
		require.NotNil(t, e.IPAddress)
		assert.Equal(t, "192.0.2.7", *e.IPAddress)
		require.NotNil(t, e.ActorEmail)
		assert.Equal(t, "alice@x.com", *e.ActorEmail)
	}
}

func TestRecorder_AnonymousActor(t *testing.T) {
	rec, s := newTestRecorder(t)

	rec.Record(context.Background(), "", OpToken.Fail(), store.AuditFail)

	entries, err := s.ListAuditLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].ActorEmail)
	assert.Nil(t, entries[0].IPAddress)
}

func TestRecorder_CanceledContextStillWrites(t *testing.T) {
	rec, s := newTestRecorder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec.Outcome(ctx, "alice@x.com", OpLogin, nil)

	entries, err := s.ListAuditLogs(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecorder_WriteFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	failing := &failingAuditStore{}
	rec := NewRecorder(failing, slog.New(slog.NewTextHandler(&buf, nil)))

	assert.NotPanics(t, func() {
		rec.Outcome(context.Background(), "alice@x.com", OpTransfer, nil)
	})
	assert.Equal(t, 1, failing.calls)
	assert.Contains(t, buf.String(), "audit write failed")
	assert.Contains(t, buf.String(), "BANK.TRANSFER.SUCCESS")
}

func TestRecorder_ViewRecentIncludesOwnRecord(t *testing.T) {
	rec, _ := newTestRecorder(t)
	ctx := WithSource(context.Background(), Source{Endpoint: "/bank/admin/audit"})

	for i := 0; i < RecentLimit+5; i++ {
		rec.Outcome(ctx, "someone@x.com", OpViewMe, nil)
	}

	entries, err := rec.ViewRecent(ctx, "admin@x.com")
	require.NoError(t, err)
	require.Len(t, entries, RecentLimit)
	assert.Equal(t, "ADMIN.AUDIT.VIEW.SUCCESS", entries[0].Action)
	require.NotNil(t, entries[0].ActorEmail)
	assert.Equal(t, "admin@x.com", *entries[0].ActorEmail)
}
