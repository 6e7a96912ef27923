// ABOUTME: Audit recorder that appends one audit_logs row per attempted action
// ABOUTME: Endpoint and client IP are carried in context; write failures are logged, not returned

package audit

import (
	"context"
	"log/slog"

	"github.com/northbridge/bankd/internal/store"
)

// RecentLimit bounds how many entries an audit view returns.
const RecentLimit = 50

// Operation is the prefix of an action code, e.g. "BANK.DEPOSIT".
type Operation string

const (
	OpRegister         Operation = "AUTH.REGISTER"
	OpLogin            Operation = "AUTH.LOGIN"
	OpToken            Operation = "AUTH.TOKEN"
	OpRoleCheck        Operation = "ACCESS.ROLE"
	OpViewMe           Operation = "BANK.VIEW_ME"
	OpDeposit          Operation = "BANK.DEPOSIT"
	OpTransfer         Operation = "BANK.TRANSFER"
	OpViewTransactions Operation = "BANK.TRANSACTIONS.VIEW"
	OpAdminOverview    Operation = "ADMIN.OVERVIEW.VIEW"
	OpAdminAudit       Operation = "ADMIN.AUDIT.VIEW"
)

// Success returns the action code for a successful attempt.
func (o Operation) Success() string { return string(o) + ".SUCCESS" }

// Fail returns the action code for a failed attempt.
func (o Operation) Fail() string { return string(o) + ".FAIL" }

// Source identifies where a request came from.
type Source struct {
	Endpoint string
	IP       string
}

type sourceKey struct{}

// WithSource returns a context carrying the request source.
func WithSource(ctx context.Context, src Source) context.Context {
	return context.WithValue(ctx, sourceKey{}, src)
}

// SourceFromContext returns the request source, or the zero Source.
func SourceFromContext(ctx context.Context) Source {
	src, _ := ctx.Value(sourceKey{}).(Source)
	return src
}

// Recorder writes audit entries.
type Recorder struct {
	store  store.AuditStore
	logger *slog.Logger
}

// NewRecorder creates a Recorder backed by the given audit store.
func NewRecorder(s store.AuditStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  s,
		logger: logger.With("component", "audit"),
	}
}

// Outcome records op as SUCCESS when err is nil and FAIL otherwise.
func (r *Recorder) Outcome(ctx context.Context, actor string, op Operation, err error) {
	if err != nil {
		r.Record(ctx, actor, op.Fail(), store.AuditFail)
		return
	}
	r.Record(ctx, actor, op.Success(), store.AuditSuccess)
}

// Record appends one audit entry. An empty actor is stored as NULL.
func (r *Recorder) Record(ctx context.Context, actor, action string, status store.AuditStatus) {
	src := SourceFromContext(ctx)
	entry := &store.AuditLog{
		ActorEmail: optional(actor),
		Action:     action,
		Endpoint:   src.Endpoint,
		Status:     status,
		IPAddress:  optional(src.IP),
	}

	// The entry must land even if the client already hung up.
	if err := r.store.AppendAuditLog(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Error("audit write failed",
			"error", err,
			"actor", actor,
			"action", action,
			"endpoint", src.Endpoint,
			"status", status,
			"ip", src.IP,
		)
	}
}

// ViewRecent records an ADMIN.AUDIT.VIEW.SUCCESS entry for actor and then
// returns the newest entries, which include that record.
func (r *Recorder) ViewRecent(ctx context.Context, actor string) ([]store.AuditLog, error) {
	r.Record(ctx, actor, OpAdminAudit.Success(), store.AuditSuccess)
	return r.store.ListAuditLogs(ctx, RecentLimit)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
