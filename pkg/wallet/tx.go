package wallet

import (
	"crypto/sha256"
	"encoding/hex"
)

// Unconfirmed is the sentinel block height used for transactions that have
// not yet been confirmed in a block.
const Unconfirmed = uint32(0x7FFFFFFF)

// SequenceFinal marks an input as not subject to relative-locktime/RBF
// semantics.
const SequenceFinal = uint32(0xFFFFFFFF)

// LockTimeThreshold is the boundary below which LockTime is interpreted as
// a block height, and at or above which it is interpreted as a unix time.
const LockTimeThreshold = uint32(500000000)

// Hash is a fixed 256-bit transaction identifier, compared and used as a
// map key by its raw bytes.
type Hash [32]byte

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// HashData double-SHA256 hashes data, the same digest the original SPV core
// uses to identify a transaction. Transaction (de)serialization itself is
// external to this package; this helper exists only so callers that don't
// already have a wire codec can derive a stable Hash for a constructed
// Transaction.
func HashData(data []byte) Hash {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// ScriptType is an opaque tag identifying the script template an Address was
// derived from (pay-to-pubkey-hash, pay-to-script-hash, and so on). The core
// never interprets its value beyond equality.
type ScriptType uint8

// Address is a fixed-width printable identifier plus the opaque
// script-template tag it was derived under.
type Address struct {
	Value  string
	Scheme ScriptType
}

// IsZero reports whether the address is the uninitialized zero value.
func (a Address) IsZero() bool {
	return a.Value == ""
}

// TxOutput is a single spendable output of a transaction.
type TxOutput struct {
	Amount  uint64
	Script  []byte
	Address Address // zero value if the script's address could not be extracted
}

// TxInput references an output being spent.
type TxInput struct {
	PrevHash    Hash
	PrevIndex   uint32
	Script      []byte
	Witness     []byte
	Address     Address // zero value if the spent output's address is unknown
	Sequence    uint32
}

// Transaction is the unit tracked by TxGraph. Hash is supplied by the
// caller (wire-format encode/decode and signing happen outside this
// package) and cached; equality and map-keying are by Hash alone.
type Transaction struct {
	Hash        Hash
	Inputs      []TxInput
	Outputs     []TxOutput
	LockTime    uint32
	BlockHeight uint32
	Timestamp   uint32
}

// NewTransaction builds a Transaction with the given cached hash.
func NewTransaction(hash Hash, inputs []TxInput, outputs []TxOutput, lockTime, blockHeight, timestamp uint32) *Transaction {
	return &Transaction{
		Hash:        hash,
		Inputs:      inputs,
		Outputs:     outputs,
		LockTime:    lockTime,
		BlockHeight: blockHeight,
		Timestamp:   timestamp,
	}
}

// Equal reports whether two transactions share the same hash.
func (tx *Transaction) Equal(other *Transaction) bool {
	if tx == nil || other == nil {
		return tx == other
	}
	return tx.Hash == other.Hash
}

// IsConfirmed reports whether the transaction has a real block height.
func (tx *Transaction) IsConfirmed() bool {
	return tx.BlockHeight != Unconfirmed
}

// UTXO is the primary key of the unspent-output set: a (hash, index) pair.
type UTXO struct {
	Hash  Hash
	Index uint32
}

// EstimatedSize returns an approximate serialized size in bytes, used for
// fee estimation. The core does not define a wire format (spec.md §6), so
// this is a conservative P2PKH-shaped estimate: fixed overhead plus
// per-input and per-output costs.
func (tx *Transaction) EstimatedSize() int {
	const (
		baseOverhead  = 10 // version + locktime + input/output counts
		perInput      = 148
		perOutput     = 34
	)
	return baseOverhead + perInput*len(tx.Inputs) + perOutput*len(tx.Outputs)
}
