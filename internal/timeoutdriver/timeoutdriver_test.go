package timeoutdriver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mina-core/common"
)

func peerFrom(b byte) common.PeerID {
	var p common.PeerID
	p[0] = b
	return p
}

func TestTimeoutExpiration(t *testing.T) {
	d := New(map[RequestKind]time.Duration{KindP2pRpc: 30 * time.Second})
	start := time.Unix(0, 0)
	peer := peerFrom(1)
	d.Track(KindP2pRpc, 7, peer, start)

	expired := d.CheckTimeouts(start.Add(31 * time.Second))
	require.Len(t, expired, 1)
	require.Equal(t, RequestKind(KindP2pRpc), expired[0].Kind)
	require.Equal(t, peer, expired[0].Peer)
	require.Equal(t, 0, d.Len())

	// A second CheckTimeouts at t=32s must be idempotent: nothing left to
	// report.
	expired = d.CheckTimeouts(start.Add(32 * time.Second))
	require.Empty(t, expired)
}

func TestResolveBeforeTimeoutPreventsExpiry(t *testing.T) {
	d := New(map[RequestKind]time.Duration{KindLedgerQuery: time.Minute})
	start := time.Unix(0, 0)
	d.Track(KindLedgerQuery, 1, common.PeerID{}, start)

	require.True(t, d.Resolve(KindLedgerQuery, 1))
	expired := d.CheckTimeouts(start.Add(2 * time.Minute))
	require.Empty(t, expired)
}

func TestUnconfiguredKindNeverTimesOut(t *testing.T) {
	d := New(map[RequestKind]time.Duration{})
	start := time.Unix(0, 0)
	d.Track(KindSnarkVerify, 1, common.PeerID{}, start)

	expired := d.CheckTimeouts(start.Add(24 * time.Hour))
	require.Empty(t, expired)
	require.Equal(t, 1, d.Len())
}
