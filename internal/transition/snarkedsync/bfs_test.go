package snarkedsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/service"
)

func hashFrom(b byte) common.Hash {
	var h common.Hash
	h[0] = b
	return h
}

func peerFrom(b byte) common.PeerID {
	var p common.PeerID
	p[0] = b
	return p
}

// xorHasher is a deterministic stand-in for the real blake2b Merkle
// combiner: combined[i] = left[i] ^ right[i].
type xorHasher struct{}

func (xorHasher) CombineChildren(left, right common.Hash) common.Hash {
	var out common.Hash
	for i := range out {
		out[i] = left[i] ^ right[i]
	}
	return out
}

// resolveLeafAccounts drains the accounts frontier by fetching each leaf
// batch from peer and answering with the leaf's own known hash (a valid
// batch).
func resolveLeafAccounts(t *testing.T, b *BFSSync, peer common.PeerID) {
	t.Helper()
	for {
		addr, ok := b.NextPendingAccounts()
		if !ok {
			return
		}
		b.IssueAccountsQuery(addr, peer, service.RequestID(uint64(addr.Path)+100), time.Unix(0, 0))
		require.True(t, b.ResolveAccounts(addr, peer, b.resolved[addr]))
	}
}

func TestBFSZeroAccountLedgerTerminatesImmediately(t *testing.T) {
	target := hashFrom(0) // the empty-hash constant at depth 0
	b := New(target, 0, xorHasher{})

	require.True(t, b.Done())
	require.Equal(t, target, b.RootHash())
}

func TestBFSZeroNumAccountsShortcutsTheWalk(t *testing.T) {
	b := New(hashFrom(7), 4, xorHasher{})
	require.True(t, b.NeedsNumAccounts())

	b.ResolveNumAccounts(0)
	require.True(t, b.Done(), "an empty ledger has nothing to fetch")
	require.True(t, b.Finalize())
}

func TestBFSResolvesOneLevel(t *testing.T) {
	left, right := hashFrom(1), hashFrom(2)
	target := (xorHasher{}).CombineChildren(left, right)
	b := New(target, 1, xorHasher{})
	b.ResolveNumAccounts(8)
	require.False(t, b.NeedsNumAccounts())

	root := service.MerkleAddress{}
	addr, ok := b.NextPending()
	require.True(t, ok)
	require.Equal(t, root, addr)

	peers := []common.PeerID{peerFrom(1)}
	peer, ok := b.AvailablePeer(addr, peers)
	require.True(t, ok)

	b.IssueQuery(addr, peer, service.RequestID(1), time.Unix(0, 0))
	_, ok = b.NextPending()
	require.False(t, ok, "frontier drained once the only pending address is in flight")

	require.True(t, b.ResolveChildren(addr, peer, left, right))
	require.False(t, b.Finalize(), "leaf account batches still outstanding")

	resolveLeafAccounts(t, b, peer)
	require.True(t, b.Finalize())
	require.Equal(t, target, b.RootHash())
}

func TestBFSInvalidChildrenRetryWithDifferentPeer(t *testing.T) {
	left, right := hashFrom(1), hashFrom(2)
	target := (xorHasher{}).CombineChildren(left, right)
	b := New(target, 1, xorHasher{})
	b.ResolveNumAccounts(8)

	addr, _ := b.NextPending()
	peers := []common.PeerID{peerFrom(1), peerFrom(2)}
	p1, _ := b.AvailablePeer(addr, peers)
	b.IssueQuery(addr, p1, service.RequestID(1), time.Unix(0, 0))

	require.False(t, b.ResolveChildren(addr, p1, hashFrom(9), hashFrom(9)))
	require.False(t, b.Finalize(), "address must return to the frontier after an invalid reply")

	p2, ok := b.AvailablePeer(addr, peers)
	require.True(t, ok)
	require.Equal(t, peerFrom(2), p2, "a peer with no errored attempt is preferred")

	b.IssueQuery(addr, p2, service.RequestID(2), time.Unix(0, 0))
	require.True(t, b.ResolveChildren(addr, p2, left, right))
	resolveLeafAccounts(t, b, p2)
	require.True(t, b.Finalize())
}

func TestBFSDescendsMultipleLevels(t *testing.T) {
	h := xorHasher{}
	ll, lr := hashFrom(1), hashFrom(2)
	rl, rr := hashFrom(3), hashFrom(4)
	leftChild := h.CombineChildren(ll, lr)
	rightChild := h.CombineChildren(rl, rr)
	target := h.CombineChildren(leftChild, rightChild)

	b := New(target, 2, h)
	b.ResolveNumAccounts(16)
	root := service.MerkleAddress{}
	peer := peerFrom(1)

	b.IssueQuery(root, peer, service.RequestID(1), time.Unix(0, 0))
	require.True(t, b.ResolveChildren(root, peer, leftChild, rightChild))

	leftAddr := root.Child(false)
	rightAddr := root.Child(true)

	b.IssueQuery(leftAddr, peer, service.RequestID(2), time.Unix(0, 0))
	require.True(t, b.ResolveChildren(leftAddr, peer, ll, lr))
	require.False(t, b.Finalize())

	b.IssueQuery(rightAddr, peer, service.RequestID(3), time.Unix(0, 0))
	require.True(t, b.ResolveChildren(rightAddr, peer, rl, rr))
	require.False(t, b.Finalize(), "four leaf batches still outstanding")

	resolveLeafAccounts(t, b, peer)
	require.True(t, b.Finalize())
	require.Equal(t, target, b.RootHash())
}

func TestBFSInvalidAccountBatchRetries(t *testing.T) {
	left, right := hashFrom(1), hashFrom(2)
	target := (xorHasher{}).CombineChildren(left, right)
	b := New(target, 1, xorHasher{})
	b.ResolveNumAccounts(8)

	root := service.MerkleAddress{}
	p1, p2 := peerFrom(1), peerFrom(2)
	b.IssueQuery(root, p1, service.RequestID(1), time.Unix(0, 0))
	require.True(t, b.ResolveChildren(root, p1, left, right))

	leaf, ok := b.NextPendingAccounts()
	require.True(t, ok)
	b.IssueAccountsQuery(leaf, p1, service.RequestID(2), time.Unix(0, 0))
	require.False(t, b.ResolveAccounts(leaf, p1, hashFrom(0x99)), "batch hash mismatch rejected")
	require.False(t, b.Finalize())

	chosen, ok := b.AvailableAccountsPeer(leaf, []common.PeerID{p1, p2})
	require.True(t, ok)
	require.Equal(t, p2, chosen)
	b.IssueAccountsQuery(leaf, chosen, service.RequestID(3), time.Unix(0, 0))
	require.True(t, b.ResolveAccounts(leaf, chosen, b.resolved[leaf]))

	resolveLeafAccounts(t, b, p2)
	require.True(t, b.Finalize())
}

func TestBFSInFlightCountsBothQueryKinds(t *testing.T) {
	left, right := hashFrom(1), hashFrom(2)
	target := (xorHasher{}).CombineChildren(left, right)
	b := New(target, 1, xorHasher{})
	b.ResolveNumAccounts(8)

	peer := peerFrom(1)
	root := service.MerkleAddress{}
	b.IssueQuery(root, peer, service.RequestID(1), time.Unix(0, 0))
	require.Equal(t, 1, b.InFlight(peer))

	require.True(t, b.ResolveChildren(root, peer, left, right))
	require.Equal(t, 0, b.InFlight(peer))

	leaf, _ := b.NextPendingAccounts()
	b.IssueAccountsQuery(leaf, peer, service.RequestID(2), time.Unix(0, 0))
	require.Equal(t, 1, b.InFlight(peer))
}
