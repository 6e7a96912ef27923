// Package bank implements the account ledger: deposits, transfers and
// transaction history.
//
// Each mutation runs as one store unit of work. Balances never go negative,
// and a transfer either moves funds and appends a success entry or, when the
// sender is short, appends a failed entry and leaves both balances alone.
// Deposits that fail validation leave no ledger entry.
//
// Every Deposit, Transfer and ListTransactions call writes exactly one audit
// record after its outcome is known.
package bank
