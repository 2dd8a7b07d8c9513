package wallet

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/mr-tron/base58"
)

// P2PKHScript tags an address derived from a plain pay-to-pubkey-hash
// script, the only script template this core understands natively; chain-
// specific payload modules (out of scope, spec.md §1) register their own
// tags against the same Address shape.
const P2PKHScript ScriptType = 0

// addressVersion is the version byte prefixed before the Base58Check
// encoding, following the node's generateChecksumAddress (pkg/wallet in the
// retrieval pack) which uses 0x00 for its single supported network.
const addressVersion = 0x00

// MasterPubKey wraps a BIP32 extended public key: opaque material
// sufficient to derive child public keys at (chain, index) without ever
// holding a private key.
type MasterPubKey struct {
	extKey *hdkeychain.ExtendedKey
}

// NewMasterPubKey parses a serialized (Base58Check) extended public key.
func NewMasterPubKey(serialized string) (MasterPubKey, error) {
	key, err := hdkeychain.NewKeyFromString(serialized)
	if err != nil {
		return MasterPubKey{}, fmt.Errorf("%w: %v", ErrDerivationFailure, err)
	}
	if key.IsPrivate() {
		key, err = key.Neuter()
		if err != nil {
			return MasterPubKey{}, fmt.Errorf("%w: %v", ErrDerivationFailure, err)
		}
	}
	return MasterPubKey{extKey: key}, nil
}

// MasterPubKeyFromExtendedKey adapts an already-parsed extended key,
// neutering it if it still carries private material.
func MasterPubKeyFromExtendedKey(key *hdkeychain.ExtendedKey) (MasterPubKey, error) {
	if key.IsPrivate() {
		neutered, err := key.Neuter()
		if err != nil {
			return MasterPubKey{}, fmt.Errorf("%w: %v", ErrDerivationFailure, err)
		}
		key = neutered
	}
	return MasterPubKey{extKey: key}, nil
}

// chainBranch returns the non-hardened child extended key for the given
// logical chain (external=0, internal=1), matching the two-branch layout
// original_source/SPV.CPP/BRWallet.c derives with BRBIP32PubKey(..., internal, index).
func (m MasterPubKey) chainBranch(chain ChainType) (*hdkeychain.ExtendedKey, error) {
	return m.extKey.Derive(uint32(chain))
}

// addressFromPubKey derives a Base58Check pay-to-pubkey-hash address from a
// secp256k1 public key, the same checksum layout as the node's
// generateChecksumAddress/encodeAddressWithChecksum (pkg/wallet/wallet.go in
// the retrieval pack): version byte + 20-byte hash + 4-byte double-SHA256
// checksum, Base58 encoded.
func addressFromPubKey(pub *btcec.PublicKey) (Address, error) {
	if pub == nil {
		return Address{}, ErrDerivationFailure
	}
	hash := sha256.Sum256(pub.SerializeCompressed())
	pkHash := hash[len(hash)-20:]

	versioned := make([]byte, 0, 1+len(pkHash))
	versioned = append(versioned, addressVersion)
	versioned = append(versioned, pkHash...)

	checksum1 := sha256.Sum256(versioned)
	checksum2 := sha256.Sum256(checksum1[:])

	full := make([]byte, 0, len(versioned)+4)
	full = append(full, versioned...)
	full = append(full, checksum2[:4]...)

	return Address{Value: base58.Encode(full), Scheme: P2PKHScript}, nil
}

type chainLocation struct {
	chain ChainType
	index int
}

// AddressChain derives and tracks the internal (change) and external
// (receive) BIP32 address chains under a gap-limit discovery policy
// (spec.md §4.A). Addresses are appended, never removed or reordered
// (invariant I6).
type AddressChain struct {
	mpk        MasterPubKey
	branchKeys [2]*hdkeychain.ExtendedKey
	chains     [2][]Address
	index      map[Address]chainLocation
}

// NewAddressChain constructs an empty AddressChain over the given master
// public key.
func NewAddressChain(mpk MasterPubKey) *AddressChain {
	return &AddressChain{
		mpk:   mpk,
		index: make(map[Address]chainLocation),
	}
}

func (ac *AddressChain) branch(chain ChainType) (*hdkeychain.ExtendedKey, error) {
	if ac.branchKeys[chain] != nil {
		return ac.branchKeys[chain], nil
	}
	key, err := ac.mpk.chainBranch(chain)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving %s branch: %v", ErrDerivationFailure, chain, err)
	}
	ac.branchKeys[chain] = key
	return key, nil
}

// deriveAt derives and encodes the address at (chain, index), without
// appending it to the chain.
func (ac *AddressChain) deriveAt(chain ChainType, index uint32) (Address, error) {
	branch, err := ac.branch(chain)
	if err != nil {
		return Address{}, err
	}
	child, err := branch.Derive(index)
	if err != nil {
		return Address{}, fmt.Errorf("%w: deriving %s[%d]: %v", ErrDerivationFailure, chain, index, err)
	}
	pub, err := child.ECPubKey()
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrDerivationFailure, err)
	}
	return addressFromPubKey(pub)
}

// UnusedAddrs writes gapLimit unused addresses following the last used
// address on the requested chain, extending the chain as needed so the
// trailing run of unused addresses has length >= gapLimit (spec.md §4.A).
// isUsed reports whether an already-generated address has appeared in a
// registered transaction; that bookkeeping belongs to BalanceEngine/
// WalletCore, not to AddressChain itself.
func (ac *AddressChain) UnusedAddrs(gapLimit uint32, chain ChainType, isUsed func(Address) bool) ([]Address, error) {
	addrs := ac.chains[chain]
	count := len(addrs)
	i := count

	// keep only the trailing contiguous block of addresses with no
	// transactions
	for i > 0 && !isUsed(addrs[i-1]) {
		i--
	}

	for uint32(count-i) < gapLimit {
		addr, err := ac.deriveAt(chain, uint32(count))
		if err != nil {
			return nil, err
		}
		ac.chains[chain] = append(ac.chains[chain], addr)
		ac.index[addr] = chainLocation{chain: chain, index: count}
		count++
	}

	addrs = ac.chains[chain]
	out := make([]Address, gapLimit)
	copy(out, addrs[i:i+int(gapLimit)])
	return out, nil
}

// Contains reports whether address was previously generated on either
// chain (used or not).
func (ac *AddressChain) Contains(addr Address) bool {
	_, ok := ac.index[addr]
	return ok
}

// ChainPosition returns the index of addr within the given chain, or false
// if it isn't present there.
func (ac *AddressChain) ChainPosition(addr Address, chain ChainType) (int, bool) {
	loc, ok := ac.index[addr]
	if !ok || loc.chain != chain {
		return 0, false
	}
	return loc.index, true
}

// All returns a copy of every address generated on the given chain, oldest
// first.
func (ac *AddressChain) All(chain ChainType) []Address {
	out := make([]Address, len(ac.chains[chain]))
	copy(out, ac.chains[chain])
	return out
}
