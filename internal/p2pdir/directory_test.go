package p2pdir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mina-core/common"
)

func peerID(b byte) common.PeerID {
	var id common.PeerID
	id[0] = b
	return id
}

func TestDirectoryLifecycle(t *testing.T) {
	d := New()
	id := peerID(1)
	now := time.Unix(0, 0)

	require.True(t, d.Add(id, []string{"/ip4/1.2.3.4/tcp/9000"}, DirOutgoing, now))
	require.False(t, d.Add(id, nil, DirOutgoing, now), "duplicate Add must be rejected")

	p, ok := d.Get(id)
	require.True(t, ok)
	require.Equal(t, StatusConnecting, p.Status.Kind)

	require.True(t, d.MarkReady(id, []string{"block", "tx"}, now.Add(time.Second)))
	p, _ = d.Get(id)
	require.Equal(t, StatusReady, p.Status.Kind)
	require.Len(t, p.Status.Channels, 2)

	require.True(t, d.MarkDisconnecting(id, now.Add(2*time.Second)))
	require.True(t, d.MarkDisconnected(id, now.Add(3*time.Second)))
	p, _ = d.Get(id)
	require.Equal(t, StatusDisconnected, p.Status.Kind)
}

func TestChannelCursorMonotonic(t *testing.T) {
	d := New()
	id := peerID(2)
	now := time.Unix(0, 0)
	d.Add(id, nil, DirIncoming, now)
	d.MarkReady(id, []string{"snark"}, now)

	require.True(t, d.AdvanceChannel(id, "snark", 5, 10))
	c, _ := d.ChannelCursor(id, "snark")
	require.EqualValues(t, 5, c.NextSeq)

	// Advancing backwards must not move NextSeq down.
	require.True(t, d.AdvanceChannel(id, "snark", 2, 10))
	c, _ = d.ChannelCursor(id, "snark")
	require.EqualValues(t, 5, c.NextSeq)

	require.True(t, d.AdvanceChannel(id, "snark", 9, 10))
	c, _ = d.ChannelCursor(id, "snark")
	require.EqualValues(t, 9, c.NextSeq)
}

func TestChannelCursorResetsOnReadyReentry(t *testing.T) {
	d := New()
	id := peerID(3)
	now := time.Unix(0, 0)
	d.Add(id, nil, DirOutgoing, now)
	d.MarkReady(id, []string{"tx"}, now)
	d.AdvanceChannel(id, "tx", 100, 5)

	d.MarkDisconnecting(id, now)
	d.MarkDisconnected(id, now)
	// Reconnect the same record, so it re-enters Ready.
	id2 := peerID(3)
	require.True(t, d.MarkReconnecting(id2, now))
	d.MarkReady(id2, []string{"tx"}, now)

	c, ok := d.ChannelCursor(id2, "tx")
	require.True(t, ok)
	require.EqualValues(t, 0, c.NextSeq)
}

func TestIsStableRespectsStablePeerDuration(t *testing.T) {
	d := New()
	id := peerID(4)
	now := time.Unix(0, 0)
	d.Add(id, nil, DirOutgoing, now)
	d.MarkReady(id, nil, now)

	require.False(t, d.IsStable(id, now.Add(time.Second)))
	require.True(t, d.IsStable(id, now.Add(StablePeerDuration+time.Second)))
}
