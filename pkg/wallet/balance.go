package wallet

// BalanceEngine derives the UTXO set, running balance, and invalid-
// transaction set from a TxGraph and an AddressChain (spec.md §4.C). It
// also owns the used-address bookkeeping that AddressChain's gap-limit
// extension depends on: that set is updated incrementally as transactions
// are marked relevant, not rebuilt from scratch on every Recompute, mirror-
// ing original_source/SPV.CPP/BRWallet.c where usedAddrs survives a call to
// BRWalletUpdateBalance while utxos/spentOutputs/invalidTx do not.
//
// Open question (spec.md §9): whether invalid-transaction membership is
// tested by Transaction identity or by Hash. This engine resolves it by
// keying invalidTx solely on Hash — two *Transaction values sharing a hash
// are the same transaction for every purpose here, consistent with
// Transaction.Equal.
type BalanceEngine struct {
	graph     *TxGraph
	addrChain *AddressChain

	usedAddrs map[Address]struct{}

	utxos        map[UTXO]TxOutput
	spentOutputs map[UTXO]Hash
	invalidTx    map[Hash]struct{}
	balanceAfter map[Hash]uint64

	balance       uint64
	totalSent     uint64
	totalReceived uint64
}

// NewBalanceEngine constructs a BalanceEngine over the given graph and
// address chain. Recompute must be called at least once before its
// accessors return meaningful data.
func NewBalanceEngine(graph *TxGraph, addrChain *AddressChain) *BalanceEngine {
	return &BalanceEngine{
		graph:        graph,
		addrChain:    addrChain,
		usedAddrs:    make(map[Address]struct{}),
		utxos:        make(map[UTXO]TxOutput),
		spentOutputs: make(map[UTXO]Hash),
		invalidTx:    make(map[Hash]struct{}),
		balanceAfter: make(map[Hash]uint64),
	}
}

func (be *BalanceEngine) isWalletAddress(addr Address) bool {
	return !addr.IsZero() && be.addrChain.Contains(addr)
}

// IsRelevant reports whether any input or output of tx names an address
// this wallet has generated.
func (be *BalanceEngine) IsRelevant(tx *Transaction) bool {
	for _, in := range tx.Inputs {
		if be.isWalletAddress(in.Address) {
			return true
		}
	}
	for _, out := range tx.Outputs {
		if be.isWalletAddress(out.Address) {
			return true
		}
	}
	return false
}

// MarkUsed records every wallet address touched by tx as used, so a future
// AddressChain.UnusedAddrs call will skip past it. Callers invoke this at
// registration time, independently of Recompute.
func (be *BalanceEngine) MarkUsed(tx *Transaction) {
	for _, in := range tx.Inputs {
		if be.isWalletAddress(in.Address) {
			be.usedAddrs[in.Address] = struct{}{}
		}
	}
	for _, out := range tx.Outputs {
		if be.isWalletAddress(out.Address) {
			be.usedAddrs[out.Address] = struct{}{}
		}
	}
}

// IsUsed reports whether addr has appeared in a registered transaction.
func (be *BalanceEngine) IsUsed(addr Address) bool {
	_, ok := be.usedAddrs[addr]
	return ok
}

// IsPostdated reports whether tx's locktime keeps it from taking effect at
// currentHeight/currentTime: a final sequence number on every input waives
// locktime entirely, otherwise a height-form locktime is compared against
// currentHeight and a time-form locktime against currentTime.
func (be *BalanceEngine) IsPostdated(tx *Transaction, currentHeight, currentTime uint32) bool {
	if tx.LockTime == 0 {
		return false
	}
	allFinal := true
	for _, in := range tx.Inputs {
		if in.Sequence != SequenceFinal {
			allFinal = false
			break
		}
	}
	if allFinal {
		return false
	}
	if tx.LockTime < LockTimeThreshold {
		return tx.LockTime > currentHeight
	}
	return tx.LockTime > currentTime
}

func (be *BalanceEngine) resolveOutput(ref UTXO) (TxOutput, bool) {
	tx := be.graph.Get(ref.Hash)
	if tx == nil || int(ref.Index) >= len(tx.Outputs) {
		return TxOutput{}, false
	}
	return tx.Outputs[ref.Index], true
}

// OutputFor exposes resolveOutput for callers (WalletCore's signing path)
// that need the output an input spends without reaching into TxGraph
// directly.
func (be *BalanceEngine) OutputFor(ref UTXO) (TxOutput, bool) {
	return be.resolveOutput(ref)
}

// Recompute rebuilds the UTXO set, spent-output set, invalid-transaction
// set, running balance and per-transaction balance history from scratch,
// walking TxGraph.Sort() in order so every transaction is processed after
// everything it spends from (spec.md invariant I2). usedAddrs is left
// untouched; callers call MarkUsed as transactions are registered.
func (be *BalanceEngine) Recompute(currentHeight, currentTime uint32) {
	be.utxos = make(map[UTXO]TxOutput)
	be.spentOutputs = make(map[UTXO]Hash)
	be.invalidTx = make(map[Hash]struct{})
	be.balanceAfter = make(map[Hash]uint64)
	be.balance = 0
	be.totalSent = 0
	be.totalReceived = 0

	for _, tx := range be.graph.Sort() {
		if be.IsPostdated(tx, currentHeight, currentTime) {
			continue
		}

		if !tx.IsConfirmed() {
			invalid := false
			for _, in := range tx.Inputs {
				ref := UTXO{Hash: in.PrevHash, Index: in.PrevIndex}
				if _, bad := be.invalidTx[in.PrevHash]; bad {
					invalid = true
					break
				}
				if spender, already := be.spentOutputs[ref]; already && spender != tx.Hash {
					invalid = true
					break
				}
			}
			if invalid {
				be.invalidTx[tx.Hash] = struct{}{}
				continue
			}
		}

		// every input's prevOutput is recorded as spent, even when the
		// referenced transaction isn't tracked by this wallet, so a later
		// conflicting spend of the same (untracked) output is still caught.
		var spent uint64
		for _, in := range tx.Inputs {
			ref := UTXO{Hash: in.PrevHash, Index: in.PrevIndex}
			be.spentOutputs[ref] = tx.Hash
			if out, ok := be.utxos[ref]; ok {
				spent += out.Amount
				delete(be.utxos, ref)
			}
		}

		var received uint64
		for idx, out := range tx.Outputs {
			if be.isWalletAddress(out.Address) {
				be.utxos[UTXO{Hash: tx.Hash, Index: uint32(idx)}] = out
				received += out.Amount
			}
		}

		if spent == 0 && received == 0 {
			continue
		}
		be.balance = be.balance - spent + received
		switch {
		case received > spent:
			be.totalReceived += received - spent
		case spent > received:
			be.totalSent += spent - received
		}
		be.balanceAfter[tx.Hash] = be.balance
	}
}

// Balance returns the wallet's current confirmed+pending balance.
func (be *BalanceEngine) Balance() uint64 { return be.balance }

// TotalSent returns the lifetime net amount sent from the wallet.
func (be *BalanceEngine) TotalSent() uint64 { return be.totalSent }

// TotalReceived returns the lifetime net amount received by the wallet.
func (be *BalanceEngine) TotalReceived() uint64 { return be.totalReceived }

// IsInvalid reports whether the transaction with the given hash was
// excluded from the last Recompute as a double-spend or a descendant of one.
func (be *BalanceEngine) IsInvalid(hash Hash) bool {
	_, ok := be.invalidTx[hash]
	return ok
}

// BalanceAfter returns the running balance immediately after tx was
// applied, as of the last Recompute.
func (be *BalanceEngine) BalanceAfter(hash Hash) (uint64, bool) {
	v, ok := be.balanceAfter[hash]
	return v, ok
}

// UTXOs returns a copy of the current unspent-output set.
func (be *BalanceEngine) UTXOs() map[UTXO]TxOutput {
	out := make(map[UTXO]TxOutput, len(be.utxos))
	for k, v := range be.utxos {
		out[k] = v
	}
	return out
}

// AmountReceivedByTx sums the outputs of tx addressed to this wallet.
func (be *BalanceEngine) AmountReceivedByTx(tx *Transaction) uint64 {
	var total uint64
	for _, out := range tx.Outputs {
		if be.isWalletAddress(out.Address) {
			total += out.Amount
		}
	}
	return total
}

// AmountSentByTx sums the inputs of tx spending this wallet's own outputs.
// Inputs whose previous transaction isn't tracked are ignored, matching
// BRWalletAmountSentByTx's treatment of untracked inputs as zero.
func (be *BalanceEngine) AmountSentByTx(tx *Transaction) uint64 {
	var total uint64
	for _, in := range tx.Inputs {
		out, ok := be.resolveOutput(UTXO{Hash: in.PrevHash, Index: in.PrevIndex})
		if ok && be.isWalletAddress(out.Address) {
			total += out.Amount
		}
	}
	return total
}

// FeeForTx returns tx's fee (sum of inputs minus sum of outputs) and true,
// or (0, false) if any input's previous output isn't tracked, matching
// BRWalletFeeForTx's UINT64_MAX-on-unknown contract via an ok flag instead
// of a sentinel value.
func (be *BalanceEngine) FeeForTx(tx *Transaction) (uint64, bool) {
	var in, out uint64
	for _, txin := range tx.Inputs {
		o, ok := be.resolveOutput(UTXO{Hash: txin.PrevHash, Index: txin.PrevIndex})
		if !ok {
			return 0, false
		}
		in += o.Amount
	}
	for _, txout := range tx.Outputs {
		out += txout.Amount
	}
	if in < out {
		return 0, false
	}
	return in - out, true
}
