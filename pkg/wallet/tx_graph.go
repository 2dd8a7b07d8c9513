package wallet

import "sort"

// TxGraph holds every transaction the wallet has registered, keyed by hash,
// and produces an ancestor-before-descendant ordering on demand (spec.md
// §4.B). It does not itself decide relevance, validity or spentness; those
// are BalanceEngine's concerns layered on top.
//
// original_source/SPV.CPP/BRWallet.c reaches the same ordering with
// BRWalletSortTransactions, threading the owning wallet through qsort's
// opaque context pointer (BRWalletTxSetContext smuggles it into
// tx->inputs[0].script). That trick only exists to work around C's
// context-free qsort signature; Go's sort.Slice takes a closure, so the
// graph is passed explicitly and no such hack is needed here.
type TxGraph struct {
	byHash map[Hash]*Transaction
}

// NewTxGraph returns an empty TxGraph.
func NewTxGraph() *TxGraph {
	return &TxGraph{byHash: make(map[Hash]*Transaction)}
}

// Insert adds or replaces tx by hash.
func (g *TxGraph) Insert(tx *Transaction) {
	g.byHash[tx.Hash] = tx
}

// Remove deletes the transaction with the given hash, if present.
func (g *TxGraph) Remove(hash Hash) {
	delete(g.byHash, hash)
}

// Get returns the transaction with the given hash, or nil.
func (g *TxGraph) Get(hash Hash) *Transaction {
	return g.byHash[hash]
}

// Len returns the number of tracked transactions.
func (g *TxGraph) Len() int {
	return len(g.byHash)
}

// Has reports whether hash is tracked.
func (g *TxGraph) Has(hash Hash) bool {
	_, ok := g.byHash[hash]
	return ok
}

// All returns every tracked transaction in unspecified order.
func (g *TxGraph) All() []*Transaction {
	out := make([]*Transaction, 0, len(g.byHash))
	for _, tx := range g.byHash {
		out = append(out, tx)
	}
	return out
}

// dependsOn reports whether candidate spends, directly or transitively,
// an output of ancestor. memo caches answers for the lifetime of a single
// Sort call; a graph of n transactions each with bounded fan-in visits each
// (candidate, ancestor) pair at most once.
func (g *TxGraph) dependsOn(candidate, ancestor *Transaction, memo map[[2]Hash]bool, seen map[Hash]bool) bool {
	if candidate == ancestor {
		return false
	}
	key := [2]Hash{candidate.Hash, ancestor.Hash}
	if v, ok := memo[key]; ok {
		return v
	}
	if seen[candidate.Hash] {
		// cycle guard: a malformed/duplicate registration could otherwise
		// recurse forever
		return false
	}
	seen[candidate.Hash] = true
	defer delete(seen, candidate.Hash)

	result := false
	for _, in := range candidate.Inputs {
		if in.PrevHash == ancestor.Hash {
			result = true
			break
		}
		if parent := g.byHash[in.PrevHash]; parent != nil {
			if g.dependsOn(parent, ancestor, memo, seen) {
				result = true
				break
			}
		}
	}
	memo[key] = result
	return result
}

// compare orders a before b when b spends an output of a (directly or
// transitively). Unrelated transactions fall back to block height, then
// timestamp, then hash, so the ordering is total and stable across calls.
func (g *TxGraph) compare(a, b *Transaction, memo map[[2]Hash]bool) int {
	if a.Hash == b.Hash {
		return 0
	}
	seen := make(map[Hash]bool, 4)
	if g.dependsOn(b, a, memo, seen) {
		return -1 // a is an ancestor of b: a sorts first
	}
	if g.dependsOn(a, b, memo, seen) {
		return 1
	}
	if a.BlockHeight != b.BlockHeight {
		if a.BlockHeight == Unconfirmed {
			return 1
		}
		if b.BlockHeight == Unconfirmed {
			return -1
		}
		if a.BlockHeight < b.BlockHeight {
			return -1
		}
		return 1
	}
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	for i := range a.Hash {
		if a.Hash[i] != b.Hash[i] {
			if a.Hash[i] < b.Hash[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Sort returns every tracked transaction ordered so that every transaction
// appears after all transactions it spends from (spec.md invariant I2).
// The ancestor-reachability memo is scoped to this single call: it never
// outlives the sort and never leaks across calls, so mutation of the graph
// between calls can't return a stale answer.
func (g *TxGraph) Sort() []*Transaction {
	txs := g.All()
	memo := make(map[[2]Hash]bool, len(txs)*2)
	sort.Slice(txs, func(i, j int) bool {
		return g.compare(txs[i], txs[j], memo) < 0
	})
	return txs
}
