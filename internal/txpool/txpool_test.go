package txpool

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

func TestPipelineAcceptsVerifiedCommand(t *testing.T) {
	p := New()
	peer := peerFrom(1)
	h := hashFrom(1)
	now := time.Unix(0, 0)

	p.InfoReceived(peer, h)
	require.True(t, p.FetchPending(peer, h, service.RequestID(1)))
	cmd := Command{Payload: "tx"}
	require.True(t, p.ResolveFetch(peer, h, &cmd))
	require.True(t, p.VerifyNext(peer, h))
	require.True(t, p.ResolveVerify(peer, h, true, false, now))

	entry, ok := p.Entries().Get(h)
	require.True(t, ok)
	require.Equal(t, "tx", entry.Command.Payload)
}

func TestFetchErrorDoesNotEnterPool(t *testing.T) {
	p := New()
	peer := peerFrom(1)
	h := hashFrom(2)

	p.InfoReceived(peer, h)
	p.FetchPending(peer, h, service.RequestID(1))
	require.True(t, p.ResolveFetch(peer, h, nil))

	require.False(t, p.Entries().Contains(h))
}

func TestApplyTransitionFrontierDiffPrunesAndCollectsNeeded(t *testing.T) {
	p := New()
	peer := peerFrom(1)
	now := time.Unix(0, 0)

	for _, b := range []byte{1, 2, 3} {
		h := hashFrom(b)
		p.InfoReceived(peer, h)
		p.FetchPending(peer, h, service.RequestID(uint64(b)))
		cmd := Command{Payload: b}
		p.ResolveFetch(peer, h, &cmd)
		p.VerifyNext(peer, h)
		p.ResolveVerify(peer, h, true, false, now)
	}

	needed := p.ApplyTransitionFrontierDiff(
		func(hash common.Hash, cmd Command) bool { return cmd.Payload.(byte) != 2 },
		func(cmd Command) interface{} { return cmd.Payload },
	)

	require.Equal(t, 2, p.Entries().Len())
	require.False(t, p.Entries().Contains(hashFrom(2)))
	require.ElementsMatch(t, []interface{}{byte(1), byte(3)}, needed)
}

func TestDueForRebroadcastOnlyLocalOriginated(t *testing.T) {
	p := New()
	peer := peerFrom(1)
	now := time.Unix(0, 0)

	h1, h2 := hashFrom(1), hashFrom(2)
	p.InfoReceived(peer, h1)
	p.FetchPending(peer, h1, service.RequestID(1))
	c1 := Command{Payload: "local"}
	p.ResolveFetch(peer, h1, &c1)
	p.VerifyNext(peer, h1)
	p.ResolveVerify(peer, h1, true, true, now)

	p.InfoReceived(peer, h2)
	p.FetchPending(peer, h2, service.RequestID(2))
	c2 := Command{Payload: "remote"}
	p.ResolveFetch(peer, h2, &c2)
	p.VerifyNext(peer, h2)
	p.ResolveVerify(peer, h2, true, false, now)

	due := p.DueForRebroadcast(now.Add(11 * time.Minute))
	require.Len(t, due, 1)
	require.Equal(t, h1, due[0].Hash)

	require.True(t, p.MarkRebroadcast(h1, now.Add(11*time.Minute)))
	entry, _ := p.Entries().Get(h1)
	require.Equal(t, 1, entry.Rebroad.Tries)
}
