package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) (*AddressChain, *TxGraph, *BalanceEngine, *TxBuilder) {
	t.Helper()
	ac, g, be := newTestEngine(t)
	cfg := &Config{FeePerKb: 10000, GapLimitExternal: 5, GapLimitInternal: 5}
	b := NewTxBuilder(be, g, ac, cfg)
	return ac, g, be, b
}

func fundWallet(t *testing.T, ac *AddressChain, g *TxGraph, be *BalanceEngine, amount uint64, height uint32) *Transaction {
	t.Helper()
	addrs, err := ac.UnusedAddrs(1, ExternalChain, be.IsUsed)
	require.NoError(t, err)
	tx := NewTransaction(HashData([]byte{byte(amount), byte(amount >> 8), byte(height)}), nil,
		[]TxOutput{{Amount: amount, Address: addrs[0]}}, 0, height, 0)
	g.Insert(tx)
	be.MarkUsed(tx)
	return tx
}

func TestCreateTxForOutputsRejectsEmptyRequest(t *testing.T) {
	_, _, _, b := newTestBuilder(t)
	_, err := b.CreateTxForOutputs(nil, nil, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateTxForOutputsRejectsZeroAmount(t *testing.T) {
	_, _, _, b := newTestBuilder(t)
	_, err := b.CreateTxForOutputs([]TxOutput{{Amount: 0, Address: Address{Value: "x"}}}, nil, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateTxForOutputsInsufficientFunds(t *testing.T) {
	ac, g, be, b := newTestBuilder(t)
	fundWallet(t, ac, g, be, 1000, 100)
	be.Recompute(200, 0)

	_, err := b.CreateTxForOutputs([]TxOutput{{Amount: 5000, Address: Address{Value: "dest"}}}, nil, 0)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestCreateTxForOutputsSelectsInputsAndAddsChange(t *testing.T) {
	ac, g, be, b := newTestBuilder(t)
	fundWallet(t, ac, g, be, 1_000_000, 100)
	be.Recompute(200, 0)

	dest := Address{Value: "dest"}
	tx, err := b.CreateTxForOutputs([]TxOutput{{Amount: 100000, Address: dest}}, nil, 0)
	require.NoError(t, err)
	require.Len(t, tx.Inputs, 1)
	require.GreaterOrEqual(t, len(tx.Outputs), 1)

	var toDest, toChange uint64
	changeIsOurs := false
	for _, out := range tx.Outputs {
		if out.Address == dest {
			toDest += out.Amount
		} else {
			toChange += out.Amount
			if ac.Contains(out.Address) {
				changeIsOurs = true
			}
		}
	}
	require.Equal(t, uint64(100000), toDest)
	if len(tx.Outputs) > 1 {
		require.True(t, changeIsOurs)
	}

	var inputTotal uint64
	for _, in := range tx.Inputs {
		out, ok := be.OutputFor(UTXO{Hash: in.PrevHash, Index: in.PrevIndex})
		require.True(t, ok)
		inputTotal += out.Amount
	}
	require.Equal(t, inputTotal, toDest+toChange+b.FeeForSize(tx.EstimatedSize()))
}

func TestMinOutputAmountMatchesFeeRateFormula(t *testing.T) {
	_, _, _, b := newTestBuilder(t)
	require.Equal(t, b.config.FeePerKb*3*(34+148)/1000, b.MinOutputAmount())
}

func TestFeeForSizeScalesWithConfiguredRate(t *testing.T) {
	_, _, _, b := newTestBuilder(t)
	require.Equal(t, uint64(0), b.FeeForSize(0))
	require.Greater(t, b.FeeForSize(1000), uint64(0))
}

func TestFeeForSizeNeverBelowStandardRate(t *testing.T) {
	ac, g, be := newTestEngine(t)
	cfg := &Config{FeePerKb: 1, GapLimitExternal: 5, GapLimitInternal: 5}
	b := NewTxBuilder(be, g, ac, cfg)

	// at a near-zero configured rate, the standard FeePerKBDefault floor
	// must still apply.
	require.Equal(t, FeePerKBDefault, b.FeeForSize(1000))
}

func TestFeeForSizeRoundsConfiguredRateTo100Satoshi(t *testing.T) {
	ac, g, be := newTestEngine(t)
	cfg := &Config{FeePerKb: 100000, GapLimitExternal: 5, GapLimitInternal: 5}
	b := NewTxBuilder(be, g, ac, cfg)

	// 225 bytes at 100000 sat/kb = 22500 sat, already a multiple of 100 and
	// well above the one-kb standard-fee floor (10000 sat).
	require.Equal(t, uint64(22500), b.FeeForSize(225))
}
