package types

import "errors"

// Error definitions for zero-tolerance error handling across the accounting
// core. Every operation surfaces exactly one of these kinds so callers can
// tell "not enough funds" from "vault misconfigured" from "overflow".
var (
	// ErrInvalidAmount indicates a zero or malformed input amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds indicates the vault's custodied balance is below
	// the requested transfer.
	ErrInsufficientFunds = errors.New("insufficient funds in vault")

	// ErrDivisionByZero indicates a pro-rata computation with a zero
	// denominator (no purchases yet, or zero claim-token supply).
	ErrDivisionByZero = errors.New("division by zero in pro-rata computation")

	// ErrArithmeticOverflow indicates a multiplication or addition exceeded
	// the uint64 range.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInvalidConfiguration indicates a fee schedule or share policy that
	// violates its constraints (e.g. basis points above 10000).
	ErrInvalidConfiguration = errors.New("invalid vault configuration")

	// ErrVaultExists indicates an initialization attempt for a vault identity
	// that already has state.
	ErrVaultExists = errors.New("vault already initialized")

	// ErrVaultNotFound indicates no state exists for the requested vault.
	ErrVaultNotFound = errors.New("vault not found")

	// ErrLedger wraps a failure reported by the external ledger service.
	ErrLedger = errors.New("ledger service error")

	// ErrStatePersistence indicates the ledger already committed but the
	// follow-up state write failed. The value moved; callers must reconcile
	// against the intent journal instead of blindly retrying.
	ErrStatePersistence = errors.New("state persistence failed after ledger commit")
)
