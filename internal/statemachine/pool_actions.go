// Copyright 2015 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

package statemachine

import (
	"encoding/binary"
	"time"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/action"
	"github.com/probeum/mina-core/internal/p2pdir"
	"github.com/probeum/mina-core/internal/service"
	"github.com/probeum/mina-core/internal/snarkpool"
	"github.com/probeum/mina-core/internal/timeoutdriver"
	"github.com/probeum/mina-core/internal/txpool"
)

// defaultSnarkVerifyBatch bounds how many received snarks are handed to
// the verifier at once; a small fixed batch keeps verifier latency
// bounded rather than handing it everything pending.
const defaultSnarkVerifyBatch = 8

// idFromHash derives a stable, deterministic uint64 correlation id from a
// hash's leading bytes, for the cases below that need a cheap per-entity
// request id without a live collaborator service to mint one.
func idFromHash(h common.Hash) uint64 {
	return binary.BigEndian.Uint64(h[:8])
}

// SnarkWorkInfoReceived records a peer's advertised SNARK-work candidate.
type SnarkWorkInfoReceived struct {
	Peer  common.PeerID
	JobID common.Hash
}

func (SnarkWorkInfoReceived) Kind() string { return "SnarkWorkInfoReceived" }

// SnarkCommitmentReceived records a prover's intent to produce work for a
// job; the commitment expires if no snark follows within the configured
// horizon.
type SnarkCommitmentReceived struct {
	Peer  common.PeerID
	JobID common.Hash
}

func (SnarkCommitmentReceived) Kind() string { return "SnarkCommitmentReceived" }

// SnarkCommitmentExpired drops a commitment whose horizon passed with no
// snark submitted, dispatched by the timeout driver's expiry routing.
type SnarkCommitmentExpired struct{ JobID common.Hash }

func (SnarkCommitmentExpired) Kind() string { return "SnarkCommitmentExpired" }

// SnarkWorkFetchPending dispatches the RPC for the full snark (step 2).
type SnarkWorkFetchPending struct {
	Peer  common.PeerID
	JobID common.Hash
	ReqID service.RequestID
}

func (SnarkWorkFetchPending) Kind() string { return "SnarkWorkFetchPending" }

// SnarkWorkReceived delivers the fetched snark (step 3).
type SnarkWorkReceived struct {
	Peer  common.PeerID
	JobID common.Hash
	ReqID service.RequestID
	Snark snarkpool.Snark
}

func (SnarkWorkReceived) Kind() string { return "SnarkWorkReceived" }

// snarkWorkBatchSelect picks the next verification batch (step 4).
type snarkWorkBatchSelect struct{}

func (snarkWorkBatchSelect) Kind() string { return "snarkWorkBatchSelect" }

// snarkWorkBatchIssued records that the selected batch went to the
// verifier service under ReqID; the reply settles the whole batch at once.
type snarkWorkBatchIssued struct{ ReqID service.RequestID }

func (snarkWorkBatchIssued) Kind() string { return "snarkWorkBatchIssued" }

// SnarkWorkBatchVerifyResolved delivers the verifier's outcome for an
// entire issued batch.
type SnarkWorkBatchVerifyResolved struct {
	ReqID service.RequestID
	OK    bool
}

func (SnarkWorkBatchVerifyResolved) Kind() string { return "SnarkWorkBatchVerifyResolved" }

// SnarkWorkVerifyResolved delivers the verifier's outcome for one
// candidate (step 5).
type SnarkWorkVerifyResolved struct {
	Peer  common.PeerID
	JobID common.Hash
	OK    bool
}

func (SnarkWorkVerifyResolved) Kind() string { return "SnarkWorkVerifyResolved" }

// snarkWorkBatchDrained clears the transient batch handoff once every
// candidate in it has been dispatched for verification.
type snarkWorkBatchDrained struct{}

func (snarkWorkBatchDrained) Kind() string { return "snarkWorkBatchDrained" }

// TxInfoReceived records a peer's advertised transaction, structurally
// parallel to SnarkWorkInfoReceived.
type TxInfoReceived struct {
	Peer common.PeerID
	Hash common.Hash
}

func (TxInfoReceived) Kind() string { return "TxInfoReceived" }

// TxFetchPending dispatches the RPC for the full transaction.
type TxFetchPending struct {
	Peer  common.PeerID
	Hash  common.Hash
	ReqID service.RequestID
}

func (TxFetchPending) Kind() string { return "TxFetchPending" }

// TxFetchResolved delivers the fetch reply; a nil Command means the peer
// failed to produce one.
type TxFetchResolved struct {
	Peer    common.PeerID
	Hash    common.Hash
	ReqID   service.RequestID
	Command *txpool.Command
}

func (TxFetchResolved) Kind() string { return "TxFetchResolved" }

// TxVerifyNext moves a fetched candidate into verification.
type TxVerifyNext struct {
	Peer common.PeerID
	Hash common.Hash
}

func (TxVerifyNext) Kind() string { return "TxVerifyNext" }

// TxVerifyResolved delivers the verifier's outcome for one candidate.
type TxVerifyResolved struct {
	Peer              common.PeerID
	Hash              common.Hash
	OK                bool
	LocallyOriginated bool
}

func (TxVerifyResolved) Kind() string { return "TxVerifyResolved" }

// PoolRebroadcastTick is the periodic rebroadcast scan shared by both
// pools (locally-originated transactions every 10 minutes up to 5 tries;
// open local snark commitments under the same policy), piggybacked on
// the same timer tick as CheckTimeouts.
type PoolRebroadcastTick struct{}

func (PoolRebroadcastTick) Kind() string { return "PoolRebroadcastTick" }

// rebroadcastsDrained clears the transient rebroadcast handoff once every
// due entry has been re-announced.
type rebroadcastsDrained struct{}

func (rebroadcastsDrained) Kind() string { return "rebroadcastsDrained" }

// RebroadcastItem is one due re-announcement the tick's reducer found,
// handed to the effect that puts it on the wire.
type RebroadcastItem struct {
	Channel string
	Key     common.Hash
	Payload interface{}
}

func registerPoolActions(k *action.Kernel[State], env Env) {
	k.Register(SnarkWorkInfoReceived{}.Kind(), reduceSnarkWorkInfoReceived, enabledFromReadyPeer)
	k.Register(SnarkCommitmentReceived{}.Kind(), reduceSnarkCommitmentReceived, enabledFromReadyPeer)
	k.Register(SnarkCommitmentExpired{}.Kind(), reduceSnarkCommitmentExpired, nil)
	k.Register(SnarkWorkFetchPending{}.Kind(), reduceSnarkWorkFetchPending, nil)
	k.Register(SnarkWorkReceived{}.Kind(), reduceSnarkWorkReceived, nil)
	k.Register(snarkWorkBatchSelect{}.Kind(), reduceSnarkWorkBatchSelect, nil)
	k.Register(snarkWorkBatchIssued{}.Kind(), reduceSnarkWorkBatchIssued, nil)
	k.Register(SnarkWorkBatchVerifyResolved{}.Kind(), reduceSnarkWorkBatchVerifyResolved, nil)
	k.Register(SnarkWorkVerifyResolved{}.Kind(), reduceSnarkWorkVerifyResolved, nil)
	k.Register(snarkWorkBatchDrained{}.Kind(), reduceSnarkWorkBatchDrained, nil)

	k.Register(TxInfoReceived{}.Kind(), reduceTxInfoReceived, enabledFromReadyPeer)
	k.Register(TxFetchPending{}.Kind(), reduceTxFetchPending, nil)
	k.Register(TxFetchResolved{}.Kind(), reduceTxFetchResolved, nil)
	k.Register(TxVerifyNext{}.Kind(), reduceTxVerifyNext, nil)
	k.Register(TxVerifyResolved{}.Kind(), reduceTxVerifyResolved, nil)
	k.Register(PoolRebroadcastTick{}.Kind(), reducePoolRebroadcastTick, nil)
	k.Register(rebroadcastsDrained{}.Kind(), reduceRebroadcastsDrained, nil)
	k.Register(failedVerifyPeersDrained{}.Kind(), reduceFailedVerifyPeersDrained, nil)

	k.Effect(SnarkWorkInfoReceived{}.Kind(), makeEffectSnarkWorkInfoReceived(env))
	k.Effect(SnarkWorkReceived{}.Kind(), effectSnarkWorkReceived)
	k.Effect(snarkWorkBatchSelect{}.Kind(), makeEffectSnarkWorkBatchSelect(env))
	k.Effect(SnarkWorkBatchVerifyResolved{}.Kind(), makeEffectSnarkWorkBatchVerifyResolved(env))
	k.Effect(SnarkWorkVerifyResolved{}.Kind(), makeEffectSnarkWorkVerifyResolved(env))

	k.Effect(TxInfoReceived{}.Kind(), makeEffectTxInfoReceived(env))
	k.Effect(TxFetchResolved{}.Kind(), effectTxFetchResolved)
	k.Effect(TxVerifyNext{}.Kind(), effectTxVerifyNext)
	k.Effect(TxVerifyResolved{}.Kind(), makeEffectTxVerifyResolved(env))

	k.Effect(CheckTimeouts{}.Kind(), effectPoolRebroadcastTick)
	k.Effect(PoolRebroadcastTick{}.Kind(), makeEffectPoolRebroadcast(env))
}

// enabledFromReadyPeer rejects pool traffic attributed to a peer the
// directory does not currently hold in Ready: either the handshake never
// finished or the peer is already being torn down.
func enabledFromReadyPeer(s *State, a action.Action, _ time.Time) bool {
	var peer common.PeerID
	switch v := a.(type) {
	case SnarkWorkInfoReceived:
		peer = v.Peer
	case SnarkCommitmentReceived:
		peer = v.Peer
	case TxInfoReceived:
		peer = v.Peer
	default:
		return true
	}
	p, ok := s.Peers.Get(peer)
	return ok && p.Status.Kind == p2pdir.StatusReady
}

func reduceSnarkWorkInfoReceived(s *State, a action.Action, _ action.Meta) {
	info := a.(SnarkWorkInfoReceived)
	s.SnarkPool.InfoReceived(info.Peer, info.JobID)
}

func reduceSnarkCommitmentReceived(s *State, a action.Action, meta action.Meta) {
	c := a.(SnarkCommitmentReceived)
	reqID := idFromHash(c.JobID)
	if !s.SnarkPool.AddCommitment(c.JobID, c.Peer, reqID) {
		return
	}
	s.Timeouts.Track(timeoutdriver.KindSnarkCommitment, reqID, c.Peer, meta.Time)
}

func reduceSnarkCommitmentExpired(s *State, a action.Action, _ action.Meta) {
	s.SnarkPool.ExpireCommitment(a.(SnarkCommitmentExpired).JobID)
}

// makeEffectSnarkWorkInfoReceived skips re-fetching work another peer's
// candidate already settled recently, otherwise kicks the fetch through
// the transport when one is wired.
func makeEffectSnarkWorkInfoReceived(env Env) action.EffectFunc[State] {
	return func(s *State, a action.Action, meta action.Meta, dispatch action.Dispatch) {
		info := a.(SnarkWorkInfoReceived)
		if _, found := s.SnarkPool.AlreadyVerified(info.JobID); found {
			return
		}
		if env.P2p != nil {
			if err := env.P2p.SendRpc(env.ctx(), info.Peer, meta.ID, SnarkWorkFetchRequest{JobID: info.JobID}); err != nil {
				action.BugCondition(info.Kind(), "work fetch send failed", "peer", info.Peer, "err", err)
				return
			}
		}
		dispatch(SnarkWorkFetchPending{Peer: info.Peer, JobID: info.JobID, ReqID: service.RequestID(meta.ID)})
	}
}

func reduceSnarkWorkFetchPending(s *State, a action.Action, meta action.Meta) {
	fp := a.(SnarkWorkFetchPending)
	if !s.SnarkPool.WorkFetchPending(fp.Peer, fp.JobID, fp.ReqID) {
		return
	}
	s.Timeouts.Track(timeoutdriver.KindP2pRpc, uint64(fp.ReqID), fp.Peer, meta.Time)
}

func reduceSnarkWorkReceived(s *State, a action.Action, _ action.Meta) {
	wr := a.(SnarkWorkReceived)
	req, hasReq := s.SnarkPool.CandidateRequest(wr.Peer, wr.JobID)
	if !s.SnarkPool.WorkReceived(wr.Peer, wr.JobID, wr.Snark) {
		return
	}
	if hasReq {
		s.Timeouts.Resolve(timeoutdriver.KindP2pRpc, uint64(req))
	}
}

func effectSnarkWorkReceived(_ *State, _ action.Action, _ action.Meta, dispatch action.Dispatch) {
	dispatch(snarkWorkBatchSelect{})
}

func reduceSnarkWorkBatchSelect(s *State, _ action.Action, _ action.Meta) {
	s.PendingSnarkVerifyBatch = s.SnarkPool.SelectBatch(defaultSnarkVerifyBatch)
}

// makeEffectSnarkWorkBatchSelect submits the selected batch to the
// verifier service; with none wired, every selected candidate resolves
// in-line to success.
func makeEffectSnarkWorkBatchSelect(env Env) action.EffectFunc[State] {
	return func(s *State, a action.Action, _ action.Meta, dispatch action.Dispatch) {
		if len(s.PendingSnarkVerifyBatch) == 0 {
			dispatch(snarkWorkBatchDrained{})
			return
		}
		if env.Verifier == nil {
			for _, c := range s.PendingSnarkVerifyBatch {
				dispatch(SnarkWorkVerifyResolved{Peer: c.Peer, JobID: c.JobID, OK: true})
			}
			dispatch(snarkWorkBatchDrained{})
			return
		}
		batch := make([]interface{}, 0, len(s.PendingSnarkVerifyBatch))
		for _, c := range s.PendingSnarkVerifyBatch {
			batch = append(batch, *c.Snark)
		}
		id, err := env.Verifier.VerifyWorkBatch(env.ctx(), batch)
		if err != nil {
			action.BugCondition(a.Kind(), "verify-batch submit failed", "err", err)
			dispatch(snarkWorkBatchDrained{})
			return
		}
		dispatch(snarkWorkBatchIssued{ReqID: id})
	}
}

func reduceSnarkWorkBatchIssued(s *State, a action.Action, meta action.Meta) {
	issued := a.(snarkWorkBatchIssued)
	if len(s.PendingSnarkVerifyBatch) == 0 {
		return
	}
	s.PendingWorkVerifies[issued.ReqID] = s.PendingSnarkVerifyBatch
	s.PendingSnarkVerifyBatch = nil
	s.Timeouts.Track(timeoutdriver.KindSnarkVerify, uint64(issued.ReqID), common.PeerID{}, meta.Time)
}

func reduceSnarkWorkBatchVerifyResolved(s *State, a action.Action, _ action.Meta) {
	r := a.(SnarkWorkBatchVerifyResolved)
	batch, ok := s.PendingWorkVerifies[r.ReqID]
	if !ok {
		return
	}
	delete(s.PendingWorkVerifies, r.ReqID)
	s.Timeouts.Resolve(timeoutdriver.KindSnarkVerify, uint64(r.ReqID))
	seen := make(map[common.PeerID]bool)
	for _, c := range batch {
		settleSnarkWorkVerify(s, c.Peer, c.JobID, r.OK)
		if !r.OK && !seen[c.Peer] {
			seen[c.Peer] = true
			s.PendingFailedVerifyPeers = append(s.PendingFailedVerifyPeers, c.Peer)
		}
	}
}

// makeEffectSnarkWorkBatchVerifyResolved disconnects every peer whose work
// was in a failed batch, per the SnarkPoolVerifyError policy, then clears
// the handoff the reducer left.
func makeEffectSnarkWorkBatchVerifyResolved(env Env) action.EffectFunc[State] {
	return func(s *State, _ action.Action, _ action.Meta, dispatch action.Dispatch) {
		if len(s.PendingFailedVerifyPeers) == 0 {
			return
		}
		for _, peer := range s.PendingFailedVerifyPeers {
			env.disconnect(peer, ReasonSnarkPoolVerifyError, dispatch)
		}
		dispatch(failedVerifyPeersDrained{})
	}
}

// failedVerifyPeersDrained clears the failed-batch peer handoff.
type failedVerifyPeersDrained struct{}

func (failedVerifyPeersDrained) Kind() string { return "failedVerifyPeersDrained" }

func reduceFailedVerifyPeersDrained(s *State, _ action.Action, _ action.Meta) {
	s.PendingFailedVerifyPeers = nil
}

// settleSnarkWorkVerify applies one candidate's verification outcome to
// the pool, clearing any satisfied commitment's horizon timer on success.
func settleSnarkWorkVerify(s *State, peer common.PeerID, jobID common.Hash, ok bool) {
	if !ok {
		s.SnarkPool.VerifyFailure(peer, jobID)
		return
	}
	if s.SnarkPool.VerifySuccess(peer, jobID) {
		if reqID, tracked := s.SnarkPool.ClearCommitment(jobID); tracked {
			s.Timeouts.Resolve(timeoutdriver.KindSnarkCommitment, reqID)
		}
	}
}

func reduceSnarkWorkVerifyResolved(s *State, a action.Action, _ action.Meta) {
	r := a.(SnarkWorkVerifyResolved)
	settleSnarkWorkVerify(s, r.Peer, r.JobID, r.OK)
}

// makeEffectSnarkWorkVerifyResolved disconnects a peer whose advertised
// work failed verification, per the SnarkPoolVerifyError policy
// VerifyFailure's own doc comment assigns to the caller.
func makeEffectSnarkWorkVerifyResolved(env Env) action.EffectFunc[State] {
	return func(_ *State, a action.Action, _ action.Meta, dispatch action.Dispatch) {
		r := a.(SnarkWorkVerifyResolved)
		if !r.OK {
			env.disconnect(r.Peer, ReasonSnarkPoolVerifyError, dispatch)
		}
	}
}

func reduceSnarkWorkBatchDrained(s *State, _ action.Action, _ action.Meta) {
	s.PendingSnarkVerifyBatch = nil
}

func reduceTxInfoReceived(s *State, a action.Action, _ action.Meta) {
	info := a.(TxInfoReceived)
	s.TxPool.InfoReceived(info.Peer, info.Hash)
}

func makeEffectTxInfoReceived(env Env) action.EffectFunc[State] {
	return func(s *State, a action.Action, meta action.Meta, dispatch action.Dispatch) {
		info := a.(TxInfoReceived)
		if _, found := s.TxPool.AlreadyVerified(info.Hash); found {
			return
		}
		if env.P2p != nil {
			if err := env.P2p.SendRpc(env.ctx(), info.Peer, meta.ID, TxFetchRequest{Hash: info.Hash}); err != nil {
				action.BugCondition(info.Kind(), "tx fetch send failed", "peer", info.Peer, "err", err)
				return
			}
		}
		dispatch(TxFetchPending{Peer: info.Peer, Hash: info.Hash, ReqID: service.RequestID(meta.ID)})
	}
}

func reduceTxFetchPending(s *State, a action.Action, meta action.Meta) {
	fp := a.(TxFetchPending)
	if !s.TxPool.FetchPending(fp.Peer, fp.Hash, fp.ReqID) {
		return
	}
	s.Timeouts.Track(timeoutdriver.KindP2pRpc, uint64(fp.ReqID), fp.Peer, meta.Time)
}

func reduceTxFetchResolved(s *State, a action.Action, _ action.Meta) {
	r := a.(TxFetchResolved)
	req, hasReq := s.TxPool.CandidateRequest(r.Peer, r.Hash)
	if !s.TxPool.ResolveFetch(r.Peer, r.Hash, r.Command) {
		return
	}
	if hasReq {
		s.Timeouts.Resolve(timeoutdriver.KindP2pRpc, uint64(req))
	}
}

func effectTxFetchResolved(_ *State, a action.Action, _ action.Meta, dispatch action.Dispatch) {
	r := a.(TxFetchResolved)
	if r.Command == nil {
		return
	}
	dispatch(TxVerifyNext{Peer: r.Peer, Hash: r.Hash})
}

func reduceTxVerifyNext(s *State, a action.Action, _ action.Meta) {
	vn := a.(TxVerifyNext)
	s.TxPool.VerifyNext(vn.Peer, vn.Hash)
}

// effectTxVerifyNext resolves command verification in-line: unlike snark
// work, a user command carries no proof for the verifier worker pool, only
// signature checks cheap enough to settle synchronously.
func effectTxVerifyNext(s *State, a action.Action, _ action.Meta, dispatch action.Dispatch) {
	vn := a.(TxVerifyNext)
	local := vn.Peer == s.LocalPeerID
	dispatch(TxVerifyResolved{Peer: vn.Peer, Hash: vn.Hash, OK: true, LocallyOriginated: local})
}

func reduceTxVerifyResolved(s *State, a action.Action, meta action.Meta) {
	r := a.(TxVerifyResolved)
	s.TxPool.ResolveVerify(r.Peer, r.Hash, r.OK, r.LocallyOriginated, meta.Time)
}

func makeEffectTxVerifyResolved(env Env) action.EffectFunc[State] {
	return func(_ *State, a action.Action, _ action.Meta, dispatch action.Dispatch) {
		r := a.(TxVerifyResolved)
		if !r.OK {
			env.disconnect(r.Peer, ReasonTxPoolVerifyError, dispatch)
		}
	}
}

func reducePoolRebroadcastTick(s *State, _ action.Action, meta action.Meta) {
	for _, e := range s.TxPool.DueForRebroadcast(meta.Time) {
		s.TxPool.MarkRebroadcast(e.Hash, meta.Time)
		s.PendingRebroadcasts = append(s.PendingRebroadcasts, RebroadcastItem{
			Channel: ChannelTxPool,
			Key:     e.Hash,
			Payload: e.Command,
		})
	}
	for _, e := range s.SnarkPool.DueCommitmentRebroadcast(s.LocalPeerID, meta.Time) {
		s.SnarkPool.MarkCommitmentRebroadcast(e.JobID, meta.Time)
		s.PendingRebroadcasts = append(s.PendingRebroadcasts, RebroadcastItem{
			Channel: ChannelSnarkPool,
			Key:     e.JobID,
			Payload: e.Commitment,
		})
	}
}

func effectPoolRebroadcastTick(_ *State, _ action.Action, _ action.Meta, dispatch action.Dispatch) {
	dispatch(PoolRebroadcastTick{})
}

// makeEffectPoolRebroadcast puts every due re-announcement on the wire and
// clears the handoff.
func makeEffectPoolRebroadcast(env Env) action.EffectFunc[State] {
	return func(s *State, _ action.Action, _ action.Meta, dispatch action.Dispatch) {
		if env.P2p != nil {
			for _, item := range s.PendingRebroadcasts {
				if err := env.P2p.Broadcast(env.ctx(), item.Channel, item.Payload); err != nil {
					action.BugCondition(PoolRebroadcastTick{}.Kind(), "rebroadcast failed", "channel", item.Channel, "err", err)
				}
			}
		}
		if len(s.PendingRebroadcasts) > 0 {
			dispatch(rebroadcastsDrained{})
		}
	}
}

func reduceRebroadcastsDrained(s *State, _ action.Action, _ action.Meta) {
	s.PendingRebroadcasts = nil
}
