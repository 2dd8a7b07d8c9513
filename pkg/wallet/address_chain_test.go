package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func testMasterPubKey(t *testing.T) MasterPubKey {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	priv, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	mpk, err := MasterPubKeyFromExtendedKey(priv)
	require.NoError(t, err)
	return mpk
}

func neverUsed(Address) bool { return false }

func TestUnusedAddrsExtendsToGapLimit(t *testing.T) {
	ac := NewAddressChain(testMasterPubKey(t))

	addrs, err := ac.UnusedAddrs(5, ExternalChain, neverUsed)
	require.NoError(t, err)
	require.Len(t, addrs, 5)
	for _, a := range addrs {
		require.False(t, a.IsZero())
		require.True(t, ac.Contains(a))
	}
	require.Len(t, ac.All(ExternalChain), 5)
}

func TestUnusedAddrsIsStableWhenNoneUsed(t *testing.T) {
	ac := NewAddressChain(testMasterPubKey(t))

	first, err := ac.UnusedAddrs(3, ExternalChain, neverUsed)
	require.NoError(t, err)
	second, err := ac.UnusedAddrs(3, ExternalChain, neverUsed)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, ac.All(ExternalChain), 3)
}

func TestUnusedAddrsAdvancesPastUsed(t *testing.T) {
	ac := NewAddressChain(testMasterPubKey(t))

	first, err := ac.UnusedAddrs(2, ExternalChain, neverUsed)
	require.NoError(t, err)

	used := map[Address]bool{first[0]: true}
	isUsed := func(a Address) bool { return used[a] }

	next, err := ac.UnusedAddrs(2, ExternalChain, isUsed)
	require.NoError(t, err)

	require.NotEqual(t, first[0], next[0])
	require.Len(t, ac.All(ExternalChain), 3)
}

func TestChainsAreIndependent(t *testing.T) {
	ac := NewAddressChain(testMasterPubKey(t))

	ext, err := ac.UnusedAddrs(2, ExternalChain, neverUsed)
	require.NoError(t, err)
	internal, err := ac.UnusedAddrs(2, InternalChain, neverUsed)
	require.NoError(t, err)

	for _, a := range ext {
		require.NotContains(t, internal, a)
	}

	idx, ok := ac.ChainPosition(ext[0], ExternalChain)
	require.True(t, ok)
	require.Equal(t, 0, idx)

	_, ok = ac.ChainPosition(ext[0], InternalChain)
	require.False(t, ok)
}

func TestChainTypeString(t *testing.T) {
	require.Equal(t, "external", ExternalChain.String())
	require.Equal(t, "internal", InternalChain.String())
}
