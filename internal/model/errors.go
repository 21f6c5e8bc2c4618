package model

import "github.com/pkg/errors"

// Error taxonomy. None of these are fatal; callers log them with symbol context.
var (
	// ErrParse marks a malformed tick; the tick is dropped.
	ErrParse = errors.New("parse error")

	// ErrInsufficientBalance marks a trade that would drive a wallet balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrExecution marks a failed executor call; ledger state is unchanged.
	ErrExecution = errors.New("execution error")

	// ErrIndicatorUndefined marks an indicator without enough history yet.
	// It is a normal warm-up state, not a failure.
	ErrIndicatorUndefined = errors.New("indicator undefined")
)
