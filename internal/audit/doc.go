// Package audit records security-relevant action attempts.
//
// Every guarded operation reports its outcome exactly once through
// Recorder.Outcome (or Record for fixed codes). Action codes are dotted
// strings built from an Operation and a suffix:
//
//	BANK.TRANSFER + FAIL    -> "BANK.TRANSFER.FAIL"
//	AUTH.LOGIN    + SUCCESS -> "AUTH.LOGIN.SUCCESS"
//
// The request endpoint and client address travel in the context, attached
// once by the HTTP layer with WithSource.
//
// A failed audit write is logged at ERROR level with the full event and does
// not change the outcome of the operation that produced it.
package audit
