package wallet

import "errors"

// Sentinel errors for the categories in spec.md §7. None are retried inside
// the core; all of them surface to the caller.
var (
	// ErrInsufficientFunds is returned by CreateTxForOutputs when the
	// wallet's UTXO set cannot cover the requested amount plus fee.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")

	// ErrDerivationFailure is returned when BIP32 child-key derivation or
	// address encoding fails while extending an address chain.
	ErrDerivationFailure = errors.New("wallet: address derivation failed")

	// ErrCancelled is returned by SignTransaction when the seed callback
	// declines to produce seed material (user cancelled authentication).
	ErrCancelled = errors.New("wallet: signing cancelled")

	// ErrInvalidArgument is returned for malformed caller input: an empty
	// output list or a zero amount. Output addresses are not checked, so an
	// unrecognized address format does not produce this error.
	ErrInvalidArgument = errors.New("wallet: invalid argument")
)
