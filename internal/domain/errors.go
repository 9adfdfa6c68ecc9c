package domain

import "errors"

// Sentinel errors shared across the audit pipeline. Callers test them with errors.Is.
var (
	// ErrNoData means the provider returned no price history at all.
	ErrNoData = errors.New("no price data")
	// ErrDataInsufficient means the history is too short to produce a complete indicator row.
	ErrDataInsufficient = errors.New("insufficient price history")
	// ErrPersistence wraps ledger write failures.
	ErrPersistence = errors.New("ledger persistence failed")
)
