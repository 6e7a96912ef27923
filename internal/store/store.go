// ABOUTME: Store interfaces and data types for bankd persistence
// ABOUTME: Defines User, Account, Transaction, AuditLog and the scoped unit-of-work contract

package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when creating a user whose email is already registered
var ErrEmailExists = errors.New("email already registered")

// ErrConflict is returned when an account row changed between read and write
var ErrConflict = errors.New("account modified concurrently")

// Role is the authorization role of a user. Only RoleUser and RoleAdmin exist.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// TransactionStatus is the outcome of a ledger entry.
type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

// AuditStatus is the outcome recorded on an audit entry.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFail    AuditStatus = "fail"
)

// User is a registered identity. Role never changes after creation.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Account holds the balance of exactly one user.
type Account struct {
	ID        string
	UserID    string
	Balance   decimal.Decimal
	Version   int64 // incremented on every balance write
	CreatedAt time.Time
}

// Transaction is an append-only ledger entry.
type Transaction struct {
	ID            string
	FromAccountID *string // nil for deposits
	ToAccountID   string
	Amount        decimal.Decimal
	Status        TransactionStatus
	CreatedAt     time.Time
}

// AuditLog is an append-only record of a security-relevant action attempt.
type AuditLog struct {
	ID         string
	ActorEmail *string // nil for unauthenticated actors
	Action     string
	Endpoint   string
	Status     AuditStatus
	IPAddress  *string
	CreatedAt  time.Time
}

// Queries are the ledger operations available both on the store directly
// and inside a unit of work started with WithTx.
type Queries interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Accounts
	CreateAccount(ctx context.Context, account *Account) error
	GetAccountByUserID(ctx context.Context, userID string) (*Account, error)
	EnsureAccount(ctx context.Context, userID string) (*Account, error)
	UpdateBalance(ctx context.Context, account *Account, balance decimal.Decimal) error

	// Transactions
	CreateTransaction(ctx context.Context, tx *Transaction) error
	ListTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]Transaction, error)
}

// AuditStore defines the append-only audit log persistence.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, entry *AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]AuditLog, error)
}

// Store is the complete persistence contract used by bankd.
type Store interface {
	Queries
	AuditStore

	// WithTx runs fn inside a single database transaction. The transaction
	// commits when fn returns nil and rolls back on error or panic.
	WithTx(ctx context.Context, fn func(q Queries) error) error

	// Close releases any resources held by the store
	Close() error
}
