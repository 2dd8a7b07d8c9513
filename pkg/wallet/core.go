package wallet

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/google/uuid"

	"github.com/adrenochain/spvwallet/internal/keyzero"
)

// SeedFunc produces the seed material needed to derive signing keys,
// typically by prompting the user. amountHint is the total value about to
// be spent, so an implementation can show it for confirmation. Returning
// cancelled=true aborts the sign with ErrCancelled.
type SeedFunc func(prompt string, amountHint uint64) (seed []byte, cancelled bool)

// SignInput is invoked once per input during SignTransaction with the
// derived private key for that input's address; it's responsible for
// producing the actual unlocking script/witness, since this package has no
// wire codec or sighash logic of its own (spec.md Non-goals).
type SignInput func(priv *btcec.PrivateKey, input *TxInput, tx *Transaction) error

// Callbacks are fired by WalletCore after a mutation has been applied and
// its lock released, never from inside the critical section.
type Callbacks struct {
	BalanceChanged func(balance uint64)
	TxAdded        func(tx *Transaction)
	TxUpdated      func(hashes []Hash, blockHeight, timestamp uint32)
	TxDeleted      func(hash Hash, notifyUser, recommendRescan bool)
}

// WalletCore orchestrates AddressChain, TxGraph, BalanceEngine and
// TxBuilder behind a single readers-writer lock (spec.md §4.E, §5). Reads
// take the read lock; anything that mutates address chains, the graph or
// derived balance state takes the write lock for the duration of the
// mutation, then releases it before invoking callbacks or the (possibly
// blocking) seed callback.
type WalletCore struct {
	mu sync.RWMutex

	id uuid.UUID

	addrChain *AddressChain
	graph     *TxGraph
	balance   *BalanceEngine
	builder   *TxBuilder
	config    *Config

	seedFn    SeedFunc
	callbacks Callbacks

	currentHeight uint32
	currentTime   uint32
	lastBalance   uint64
}

// NewWalletCore constructs a WalletCore over a public master key, deriving
// the initial gap-limit address windows on both chains before returning.
func NewWalletCore(mpk MasterPubKey, config *Config, seedFn SeedFunc, callbacks Callbacks) (*WalletCore, error) {
	if config == nil {
		config = DefaultConfig()
	}
	addrChain := NewAddressChain(mpk)
	graph := NewTxGraph()
	balance := NewBalanceEngine(graph, addrChain)
	builder := NewTxBuilder(balance, graph, addrChain, config)

	core := &WalletCore{
		id:            uuid.New(),
		addrChain:     addrChain,
		graph:         graph,
		balance:       balance,
		builder:       builder,
		config:        config,
		seedFn:        seedFn,
		callbacks:     callbacks,
		currentHeight: Unconfirmed,
	}
	if err := core.ensureGapLimitsLocked(); err != nil {
		return nil, err
	}
	return core, nil
}

// recomputeLocked rebuilds balance state and reports the new balance along
// with whether it differs from the balance as of the previous recompute
// (spec.md §4.C: BalanceChanged fires only when the balance actually
// moved). Must be called with w.mu held.
func (w *WalletCore) recomputeLocked() (balance uint64, changed bool) {
	w.balance.Recompute(w.currentHeight, w.currentTime)
	balance = w.balance.Balance()
	changed = balance != w.lastBalance
	w.lastBalance = balance
	return balance, changed
}

func (w *WalletCore) ensureGapLimitsLocked() error {
	if _, err := w.addrChain.UnusedAddrs(w.config.GapLimitExternal, ExternalChain, w.balance.IsUsed); err != nil {
		return err
	}
	if _, err := w.addrChain.UnusedAddrs(w.config.GapLimitInternal, InternalChain, w.balance.IsUsed); err != nil {
		return err
	}
	return nil
}

// ID returns a process-lifetime-stable identifier for this WalletCore
// instance, useful for callers juggling more than one wallet (e.g. a
// multi-account CLI or a service keying metrics per wallet).
func (w *WalletCore) ID() uuid.UUID {
	return w.id
}

// ReceiveAddress returns the next unused external (receive) address,
// extending the chain if the gap-limit window has been exhausted.
func (w *WalletCore) ReceiveAddress() (Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	addrs, err := w.addrChain.UnusedAddrs(w.config.GapLimitExternal, ExternalChain, w.balance.IsUsed)
	if err != nil {
		return Address{}, err
	}
	return addrs[0], nil
}

// ChangeAddress returns the next unused internal (change) address.
func (w *WalletCore) ChangeAddress() (Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	addrs, err := w.addrChain.UnusedAddrs(w.config.GapLimitInternal, InternalChain, w.balance.IsUsed)
	if err != nil {
		return Address{}, err
	}
	return addrs[0], nil
}

// ContainsAddress reports whether addr was generated by this wallet.
func (w *WalletCore) ContainsAddress(addr Address) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.addrChain.Contains(addr)
}

// ContainsTxHash reports whether hash is a registered transaction.
func (w *WalletCore) ContainsTxHash(hash Hash) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.graph.Has(hash)
}

// IsRelevant reports whether tx touches any address this wallet owns,
// the predicate original_source/SPV.CPP/BRWallet.c implements as
// BRWalletContainsTransaction.
func (w *WalletCore) IsRelevant(tx *Transaction) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balance.IsRelevant(tx)
}

// Balance returns the current wallet balance.
func (w *WalletCore) Balance() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balance.Balance()
}

// SetFeePerKb updates the fee rate used by future CreateTxForOutputs calls.
func (w *WalletCore) SetFeePerKb(feePerKb uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config.FeePerKb = feePerKb
}

// SetChainTip updates the height/time used to decide whether registered
// transactions are postdated, and recomputes balance state accordingly.
func (w *WalletCore) SetChainTip(height, timestamp uint32) {
	w.mu.Lock()
	w.currentHeight = height
	w.currentTime = timestamp
	balance, changed := w.recomputeLocked()
	w.mu.Unlock()

	if changed && w.callbacks.BalanceChanged != nil {
		w.callbacks.BalanceChanged(balance)
	}
}

// Register adds tx to the graph, marks its wallet addresses used, extends
// the gap-limit windows and recomputes balance state, all under the write
// lock; callbacks fire after the lock is released (spec.md §5).
func (w *WalletCore) Register(tx *Transaction) error {
	w.mu.Lock()
	if !w.balance.IsRelevant(tx) {
		w.mu.Unlock()
		return nil
	}
	w.graph.Insert(tx)
	w.balance.MarkUsed(tx)
	if err := w.ensureGapLimitsLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	balance, changed := w.recomputeLocked()
	w.mu.Unlock()

	if w.callbacks.TxAdded != nil {
		w.callbacks.TxAdded(tx)
	}
	if changed && w.callbacks.BalanceChanged != nil {
		w.callbacks.BalanceChanged(balance)
	}
	return nil
}

// dependents returns the hashes of every tracked transaction that spends,
// directly, an output of hash.
func (w *WalletCore) dependents(hash Hash) []Hash {
	var out []Hash
	for _, tx := range w.graph.All() {
		for _, in := range tx.Inputs {
			if in.PrevHash == hash {
				out = append(out, tx.Hash)
				break
			}
		}
	}
	return out
}

// Remove deletes hash and, recursively, every transaction depending on it,
// matching BRWalletRemoveTransaction's cascading removal. Each removed hash
// fires TxDeleted once, after the write lock is released.
func (w *WalletCore) Remove(hash Hash, notifyUser, recommendRescan bool) {
	w.mu.Lock()
	removed := w.removeLocked(hash)
	balance, changed := w.recomputeLocked()
	w.mu.Unlock()

	for _, h := range removed {
		if w.callbacks.TxDeleted != nil {
			w.callbacks.TxDeleted(h, notifyUser, recommendRescan)
		}
	}
	if changed && w.callbacks.BalanceChanged != nil {
		w.callbacks.BalanceChanged(balance)
	}
}

func (w *WalletCore) removeLocked(hash Hash) []Hash {
	if !w.graph.Has(hash) {
		return nil
	}
	removed := []Hash{hash}
	for _, dep := range w.dependents(hash) {
		removed = append(removed, w.removeLocked(dep)...)
	}
	w.graph.Remove(hash)
	return removed
}

// UpdateTransactions sets the block height and timestamp on every tracked
// transaction named in hashes (e.g. on confirmation) and recomputes balance
// state. Only the hashes actually found are reported to the callback.
func (w *WalletCore) UpdateTransactions(hashes []Hash, blockHeight, timestamp uint32) {
	w.mu.Lock()
	var found []Hash
	for _, h := range hashes {
		if tx := w.graph.Get(h); tx != nil {
			tx.BlockHeight = blockHeight
			tx.Timestamp = timestamp
			found = append(found, h)
		}
	}
	balance, changed := w.recomputeLocked()
	w.mu.Unlock()

	if len(found) > 0 && w.callbacks.TxUpdated != nil {
		w.callbacks.TxUpdated(found, blockHeight, timestamp)
	}
	if len(found) > 0 && changed && w.callbacks.BalanceChanged != nil {
		w.callbacks.BalanceChanged(balance)
	}
}

// CreateTxForOutputs builds an unsigned transaction paying outputs,
// selecting inputs from the current UTXO set and appending a change output
// when warranted.
func (w *WalletCore) CreateTxForOutputs(outputs []TxOutput, changeScript func(Address) []byte) (*Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.builder.CreateTxForOutputs(outputs, changeScript, 0)
}

func (w *WalletCore) chainPositionFor(addr Address) (ChainType, int, bool) {
	if idx, ok := w.addrChain.ChainPosition(addr, ExternalChain); ok {
		return ExternalChain, idx, true
	}
	if idx, ok := w.addrChain.ChainPosition(addr, InternalChain); ok {
		return InternalChain, idx, true
	}
	return 0, 0, false
}

// SignTransaction derives the signing key for each of tx's inputs from
// fresh seed material and invokes sign once per input. It takes no lock
// while the seed callback runs, since that call may block on user
// interaction (spec.md §5); every derived key and the seed itself are
// zeroed before returning, following original_source/SPV.CPP/BRWallet.c's
// BRWalletSignTransaction.
func (w *WalletCore) SignTransaction(tx *Transaction, prompt string, sign SignInput) error {
	w.mu.RLock()
	var amountHint uint64
	positions := make([]struct {
		chain ChainType
		index int
		ok    bool
	}, len(tx.Inputs))
	for i, in := range tx.Inputs {
		chain, idx, ok := w.chainPositionFor(in.Address)
		positions[i].chain, positions[i].index, positions[i].ok = chain, idx, ok
		if out, ok := w.balance.OutputFor(UTXO{Hash: in.PrevHash, Index: in.PrevIndex}); ok {
			amountHint += out.Amount
		}
	}
	w.mu.RUnlock()

	seed, cancelled := w.seedFn(prompt, amountHint)
	if cancelled {
		return ErrCancelled
	}
	defer keyzero.Bytes(seed)

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return ErrDerivationFailure
	}
	defer master.Zero()

	for i := range tx.Inputs {
		pos := positions[i]
		if !pos.ok {
			continue
		}
		branch, err := master.Derive(uint32(pos.chain))
		if err != nil {
			return ErrDerivationFailure
		}
		child, err := branch.Derive(uint32(pos.index))
		if err != nil {
			branch.Zero()
			return ErrDerivationFailure
		}
		priv, err := child.ECPrivKey()
		if err != nil {
			child.Zero()
			branch.Zero()
			return ErrDerivationFailure
		}
		signErr := sign(priv, &tx.Inputs[i], tx)
		priv.Zero()
		child.Zero()
		branch.Zero()
		if signErr != nil {
			return signErr
		}
	}
	return nil
}

// Close releases WalletCore's held state. It performs no I/O of its own
// (spec.md Non-goals exclude persistence); it exists so callers have a
// single place to stop using a WalletCore, mirroring BRWalletFree.
func (w *WalletCore) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = Callbacks{}
}
