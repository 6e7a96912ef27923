// ABOUTME: Account ledger applying deposits and transfers inside store transactions
// ABOUTME: Retries a unit of work a bounded number of times when an account row changed underneath it

package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/northbridge/bankd/internal/audit"
	"github.com/northbridge/bankd/internal/auth"
	"github.com/northbridge/bankd/internal/store"
)

// HistoryLimit bounds how many transactions ListTransactions returns.
const HistoryLimit = 50

// maxAttempts is how many times a unit of work runs before a conflict is returned.
const maxAttempts = 3

// Amounts carry at most AmountScale fractional digits and never exceed MaxAmount.
const (
	AmountScale = 2
	maxExponent = 12
)

// MaxAmount is the largest amount accepted by Deposit and Transfer.
var MaxAmount = decimal.New(1, maxExponent)

// Ledger errors
var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrAmountOutOfRange  = fmt.Errorf("%w: out of range", ErrInvalidAmount)
	ErrSelfTransfer      = errors.New("cannot transfer to yourself")
	ErrUserNotFound      = errors.New("user not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Ledger applies balance changes and records them as transactions.
type Ledger struct {
	store    store.Store
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewLedger creates a Ledger over s.
func NewLedger(s store.Store, recorder *audit.Recorder, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:    s,
		recorder: recorder,
		logger:   logger.With("component", "ledger"),
	}
}

// Deposit credits amount to the account of email and returns the new balance.
func (l *Ledger) Deposit(ctx context.Context, email string, amount decimal.Decimal) (decimal.Decimal, error) {
	email = auth.NormalizeEmail(email)
	balance, err := l.deposit(ctx, email, amount)
	l.recorder.Outcome(ctx, email, audit.OpDeposit, err)
	return balance, err
}

func (l *Ledger) deposit(ctx context.Context, email string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err := l.withRetry(ctx, func(q store.Queries) error {
		user, err := lookupUser(ctx, q, email, ErrUserNotFound)
		if err != nil {
			return err
		}
		acc, err := q.EnsureAccount(ctx, user.ID)
		if err != nil {
			return err
		}

		if err := q.UpdateBalance(ctx, acc, acc.Balance.Add(amount)); err != nil {
			return err
		}
		if err := q.CreateTransaction(ctx, &store.Transaction{
			ToAccountID: acc.ID,
			Amount:      amount,
			Status:      store.TransactionSuccess,
		}); err != nil {
			return err
		}
		balance = acc.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	l.logger.Info("deposit applied", "email", email, "amount", amount.String(), "balance", balance.String())
	return balance, nil
}

// Transfer moves amount from sender to recipient and returns the sender's new
// balance. When the sender's balance is below amount, a failed transaction is
// recorded and ErrInsufficientFunds returned.
func (l *Ledger) Transfer(ctx context.Context, senderEmail, recipientEmail string, amount decimal.Decimal) (decimal.Decimal, error) {
	senderEmail = auth.NormalizeEmail(senderEmail)
	recipientEmail = auth.NormalizeEmail(recipientEmail)
	balance, err := l.transfer(ctx, senderEmail, recipientEmail, amount)
	l.recorder.Outcome(ctx, senderEmail, audit.OpTransfer, err)
	return balance, err
}

func (l *Ledger) transfer(ctx context.Context, senderEmail, recipientEmail string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	if senderEmail == recipientEmail {
		return decimal.Zero, ErrSelfTransfer
	}

	var balance decimal.Decimal
	var insufficient bool
	err := l.withRetry(ctx, func(q store.Queries) error {
		insufficient = false

		sender, err := lookupUser(ctx, q, senderEmail, ErrUserNotFound)
		if err != nil {
			return err
		}
		recipient, err := lookupUser(ctx, q, recipientEmail, ErrRecipientNotFound)
		if err != nil {
			return err
		}

		from, err := q.EnsureAccount(ctx, sender.ID)
		if err != nil {
			return err
		}
		to, err := q.EnsureAccount(ctx, recipient.ID)
		if err != nil {
			return err
		}

		entry := &store.Transaction{
			FromAccountID: &from.ID,
			ToAccountID:   to.ID,
			Amount:        amount,
		}

		// The failed entry must commit, so this path returns nil.
		if from.Balance.LessThan(amount) {
			entry.Status = store.TransactionFailed
			insufficient = true
			balance = from.Balance
			return q.CreateTransaction(ctx, entry)
		}

		if err := q.UpdateBalance(ctx, from, from.Balance.Sub(amount)); err != nil {
			return err
		}
		if err := q.UpdateBalance(ctx, to, to.Balance.Add(amount)); err != nil {
			return err
		}
		entry.Status = store.TransactionSuccess
		if err := q.CreateTransaction(ctx, entry); err != nil {
			return err
		}
		balance = from.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	if insufficient {
		l.logger.Info("transfer rejected", "from", senderEmail, "to", recipientEmail, "amount", amount.String(), "reason", "insufficient funds")
		return balance, ErrInsufficientFunds
	}

	l.logger.Info("transfer applied", "from", senderEmail, "to", recipientEmail, "amount", amount.String())
	return balance, nil
}

// ListTransactions returns up to HistoryLimit transactions touching the
// account of email, newest first. A user without an account has no history.
func (l *Ledger) ListTransactions(ctx context.Context, email string) ([]store.Transaction, error) {
	email = auth.NormalizeEmail(email)
	txs, err := l.listTransactions(ctx, email)
	l.recorder.Outcome(ctx, email, audit.OpViewTransactions, err)
	return txs, err
}

func (l *Ledger) listTransactions(ctx context.Context, email string) ([]store.Transaction, error) {
	user, err := lookupUser(ctx, l.store, email, ErrUserNotFound)
	if err != nil {
		return nil, err
	}

	acc, err := l.store.GetAccountByUserID(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return []store.Transaction{}, nil
	}
	if err != nil {
		return nil, err
	}

	return l.store.ListTransactionsByAccount(ctx, acc.ID, HistoryLimit)
}

// withRetry runs fn in a store transaction, starting over on store.ErrConflict.
func (l *Ledger) withRetry(ctx context.Context, fn func(q store.Queries) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = l.store.WithTx(ctx, fn)
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		l.logger.Warn("account changed concurrently, retrying", "attempt", attempt)
	}
	return fmt.Errorf("giving up after %d attempts: %w", maxAttempts, err)
}

// validateAmount rejects non-positive, over-precise and oversized amounts.
// The exponent is bounded before any comparison because comparing decimals
// rescales them to a common exponent.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if exp := amount.Exponent(); exp > maxExponent || exp < -2*maxExponent {
		return ErrAmountOutOfRange
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrAmountOutOfRange, AmountScale)
	}
	if amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: exceeds %s", ErrAmountOutOfRange, MaxAmount)
	}
	return nil
}

func lookupUser(ctx context.Context, q store.Queries, email string, notFound error) (*store.User, error) {
	user, err := q.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound
	}
	return user, err
}
