package snarkpool

import (
	"testing"

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

// Pool dedup with a strictly better (lower-fee) snark.
func TestVerifySuccessAcceptsStrictlyBetterSnark(t *testing.T) {
	p := New()
	job := hashFrom(1)
	p1, p2 := peerFrom(1), peerFrom(2)

	p.InfoReceived(p1, job)
	p.WorkFetchPending(p1, job, service.RequestID(1))
	p.WorkReceived(p1, job, Snark{Fee: 10, ProverID: p1})
	p.SelectBatch(10)
	require.True(t, p.VerifySuccess(p1, job))

	entry, ok := p.Entries().Get(job)
	require.True(t, ok)
	require.EqualValues(t, 10, entry.Snark.Fee)

	p.InfoReceived(p2, job)
	p.WorkFetchPending(p2, job, service.RequestID(2))
	p.WorkReceived(p2, job, Snark{Fee: 9, ProverID: p2})
	p.SelectBatch(10)
	require.True(t, p.VerifySuccess(p2, job))

	entry, ok = p.Entries().Get(job)
	require.True(t, ok)
	require.EqualValues(t, 9, entry.Snark.Fee, "lower fee must win")
}

func TestVerifySuccessRejectsWorseSnark(t *testing.T) {
	p := New()
	job := hashFrom(2)
	p1, p2 := peerFrom(1), peerFrom(2)

	p.InfoReceived(p1, job)
	p.WorkFetchPending(p1, job, service.RequestID(1))
	p.WorkReceived(p1, job, Snark{Fee: 5, ProverID: p1})
	p.SelectBatch(10)
	require.True(t, p.VerifySuccess(p1, job))

	p.InfoReceived(p2, job)
	p.WorkFetchPending(p2, job, service.RequestID(2))
	p.WorkReceived(p2, job, Snark{Fee: 20, ProverID: p2})
	p.SelectBatch(10)
	require.False(t, p.VerifySuccess(p2, job))

	entry, _ := p.Entries().Get(job)
	require.EqualValues(t, 5, entry.Snark.Fee)
}

func TestSelectBatchBoundsSize(t *testing.T) {
	p := New()
	peer := peerFrom(1)
	for i := byte(0); i < 5; i++ {
		job := hashFrom(i)
		p.InfoReceived(peer, job)
		p.WorkFetchPending(peer, job, service.RequestID(uint64(i)))
		p.WorkReceived(peer, job, Snark{Fee: uint64(i), ProverID: peer})
	}
	batch := p.SelectBatch(2)
	require.Len(t, batch, 2)
}

func TestVerifyFailureDropsCandidate(t *testing.T) {
	p := New()
	job := hashFrom(3)
	peer := peerFrom(1)
	p.InfoReceived(peer, job)
	p.WorkFetchPending(peer, job, service.RequestID(1))
	p.WorkReceived(peer, job, Snark{Fee: 1, ProverID: peer})
	p.VerifyFailure(peer, job)

	require.False(t, p.VerifySuccess(peer, job))
}
