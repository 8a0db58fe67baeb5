package candidate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/consensus"
)

func hashFrom(b byte) common.Hash {
	var h common.Hash
	h[0] = b
	return h
}

func TestReceiveRejectsDuplicate(t *testing.T) {
	c := New()
	sum := consensus.BlockSummary{Hash: hashFrom(1), Height: 10}
	require.True(t, c.Receive(sum, common.PeerID{}))
	require.False(t, c.Receive(sum, common.PeerID{}))
	require.Equal(t, 1, c.Len())
}

func TestSnarkVerifyFailureDropsCandidate(t *testing.T) {
	c := New()
	h := hashFrom(2)
	c.Receive(consensus.BlockSummary{Hash: h, Height: 10}, common.PeerID{})
	require.True(t, c.MarkSnarkVerifyPending(h, 1))
	require.True(t, c.ResolveSnarkVerify(h, false))

	_, ok := c.Get(h)
	require.False(t, ok)
}

func TestSnarkVerifySuccessAdvancesStatus(t *testing.T) {
	c := New()
	h := hashFrom(3)
	c.Receive(consensus.BlockSummary{Hash: h, Height: 10}, common.PeerID{})
	c.MarkSnarkVerifyPending(h, 1)
	require.True(t, c.ResolveSnarkVerify(h, true))

	b, ok := c.Get(h)
	require.True(t, ok)
	require.Equal(t, StatusSnarkVerifySuccess, b.Status)
}

func TestDetectForkRangeAndResolve(t *testing.T) {
	c := New()
	h := hashFrom(4)
	c.Receive(consensus.BlockSummary{Hash: h, Height: 10}, common.PeerID{})
	c.MarkSnarkVerifyPending(h, 1)
	c.ResolveSnarkVerify(h, true)

	require.True(t, c.DetectForkRange(h, true))
	b, _ := c.Get(h)
	require.Equal(t, StatusShortRangeForkResolve, b.Status)

	d := consensus.Decision{Kind: consensus.Take, Reason: consensus.ReasonBiggerVrf}
	require.True(t, c.Resolve(h, d))
	b, _ = c.Get(h)
	require.NotNil(t, b.Decision)
	require.True(t, b.Decision.UseAsBestTip())
}

func TestPruneBelowDropsOldCandidates(t *testing.T) {
	c := New()
	low := hashFrom(5)
	high := hashFrom(6)
	c.Receive(consensus.BlockSummary{Hash: low, Height: 5}, common.PeerID{})
	c.Receive(consensus.BlockSummary{Hash: high, Height: 95}, common.PeerID{})

	pruned := c.PruneBelow(100, 10)
	require.Len(t, pruned, 1)
	require.Equal(t, low, pruned[0])
	require.Equal(t, 1, c.Len())
}
