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
	"time"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/action"
	"github.com/probeum/mina-core/internal/candidate"
	"github.com/probeum/mina-core/internal/consensus"
	"github.com/probeum/mina-core/internal/p2pdir"
	"github.com/probeum/mina-core/internal/service"
	"github.com/probeum/mina-core/internal/timeoutdriver"
)

// PeerAdd registers a newly dialed or inbound peer.
type PeerAdd struct {
	ID        common.PeerID
	Addrs     []string
	Direction p2pdir.Direction
}

func (PeerAdd) Kind() string { return "PeerAdd" }

// PeerReady marks a connecting peer's channel handshake complete.
type PeerReady struct {
	ID       common.PeerID
	Channels []string
}

func (PeerReady) Kind() string { return "PeerReady" }

// PeerDisconnecting starts a Ready peer's graceful teardown.
type PeerDisconnecting struct{ ID common.PeerID }

func (PeerDisconnecting) Kind() string { return "PeerDisconnecting" }

// PeerDisconnected finalizes a peer's teardown.
type PeerDisconnected struct{ ID common.PeerID }

func (PeerDisconnected) Kind() string { return "PeerDisconnected" }

// BlockReceived delivers a new candidate block header from a peer.
type BlockReceived struct {
	Summary consensus.BlockSummary
	From    common.PeerID
}

func (BlockReceived) Kind() string { return "BlockReceived" }

// SnarkVerifyPending transitions a received candidate into verification,
// dispatched right after BlockReceived is reduced; ReqID is the verifier
// request its reply will carry.
type SnarkVerifyPending struct {
	Hash  common.Hash
	ReqID service.RequestID
}

func (SnarkVerifyPending) Kind() string { return "SnarkVerifyPending" }

// SnarkVerifyBlockSuccess is the follow-up dispatched once the SNARK
// verifier reports a candidate's proof is valid (or invalid).
type SnarkVerifyBlockSuccess struct {
	Hash  common.Hash
	ReqID service.RequestID
	OK    bool
}

func (SnarkVerifyBlockSuccess) Kind() string { return "SnarkVerifyBlockSuccess" }

// ForkRangeResolved is the internal follow-up carrying the consensus
// decider's verdict for a verified candidate, along with whether the
// comparison took the short-range or long-range path.
type ForkRangeResolved struct {
	Hash       common.Hash
	ShortRange bool
	Decision   consensus.Decision
}

func (ForkRangeResolved) Kind() string { return "ForkRangeResolved" }

// CheckTimeouts is the periodic timeout-scan action, dispatched on a
// timer tick independent of any peer or service traffic.
type CheckTimeouts struct{}

func (CheckTimeouts) Kind() string { return "CheckTimeouts" }

// RequestTimedOut is dispatched once per request CheckTimeouts finds
// expired.
type RequestTimedOut struct {
	RequestKind timeoutdriver.RequestKind
	ID          uint64
	Peer        common.PeerID
}

func (RequestTimedOut) Kind() string { return "RequestTimedOut" }

// Register wires every reducer, enabling condition and effect in this
// package into k, with env supplying the collaborator handles the effect
// layer calls out through (a zero Env selects the synchronous fallbacks).
func Register(k *action.Kernel[State], env Env) {
	k.Register(PeerAdd{}.Kind(), reducePeerAdd, enabledPeerAdd)
	k.Register(PeerReady{}.Kind(), reducePeerReady, nil)
	k.Register(PeerDisconnecting{}.Kind(), reducePeerDisconnecting, nil)
	k.Register(PeerDisconnected{}.Kind(), reducePeerDisconnected, nil)
	k.Register(BlockReceived{}.Kind(), reduceBlockReceived, enabledBlockReceived)
	k.Register(SnarkVerifyPending{}.Kind(), reduceSnarkVerifyPending, nil)
	k.Register(SnarkVerifyBlockSuccess{}.Kind(), reduceSnarkVerifyBlockSuccess, nil)
	k.Register(ForkRangeResolved{}.Kind(), reduceForkRangeResolved, nil)
	k.Register(CheckTimeouts{}.Kind(), reduceCheckTimeouts, nil)
	k.Register(RequestTimedOut{}.Kind(), reduceRequestTimedOut, nil)

	k.Effect(PeerAdd{}.Kind(), makeEffectDialPeer(env))
	k.Effect(BlockReceived{}.Kind(), makeEffectRequestSnarkVerify(env))
	k.Effect(SnarkVerifyPending{}.Kind(), makeEffectDispatchSnarkVerify(env))
	k.Effect(SnarkVerifyBlockSuccess{}.Kind(), effectResolveForkRange)
	k.Effect(CheckTimeouts{}.Kind(), effectCheckTimeouts)
	k.Effect(RequestTimedOut{}.Kind(), makeEffectRequestTimedOut(env))

	registerSyncActions(k, env)
	registerPoolActions(k, env)
	registerRpcActions(k)
	registerWatchActions(k)
	registerGossipActions(k, env)
	registerPeerMaintenance(k, env)
}

// enabledPeerAdd rejects a dial once the directory is at max_peers; the
// resource-limit taxonomy says the rejection is silent, observed only as
// the peer never appearing.
func enabledPeerAdd(s *State, _ action.Action, _ time.Time) bool {
	return s.Peers.Len() < s.Limits.MaxPeers
}

func reducePeerAdd(s *State, a action.Action, meta action.Meta) {
	add := a.(PeerAdd)
	s.Peers.Add(add.ID, add.Addrs, add.Direction, meta.Time)
}

// makeEffectDialPeer asks the transport to dial a freshly-added outgoing
// peer; an incoming peer is already mid-handshake on the transport side.
func makeEffectDialPeer(env Env) action.EffectFunc[State] {
	return func(s *State, a action.Action, _ action.Meta, _ action.Dispatch) {
		add := a.(PeerAdd)
		if env.P2p == nil || add.Direction != p2pdir.DirOutgoing {
			return
		}
		p, ok := s.Peers.Get(add.ID)
		if !ok {
			return
		}
		if err := env.P2p.Dial(env.ctx(), p.DialOptions()); err != nil {
			action.BugCondition(add.Kind(), "dial failed", "peer", add.ID, "err", err)
		}
	}
}

func reducePeerReady(s *State, a action.Action, meta action.Meta) {
	ready := a.(PeerReady)
	s.Peers.MarkReady(ready.ID, ready.Channels, meta.Time)
}

func reducePeerDisconnecting(s *State, a action.Action, meta action.Meta) {
	s.Peers.MarkDisconnecting(a.(PeerDisconnecting).ID, meta.Time)
}

func reducePeerDisconnected(s *State, a action.Action, meta action.Meta) {
	s.Peers.MarkDisconnected(a.(PeerDisconnected).ID, meta.Time)
}

// enabledBlockReceived drops headers already known to be unappliable: a
// blacklisted hash stays rejected for k slots, silently.
func enabledBlockReceived(s *State, a action.Action, _ time.Time) bool {
	return !s.Frontier.Blacklisted(a.(BlockReceived).Summary.Hash)
}

func reduceBlockReceived(s *State, a action.Action, _ action.Meta) {
	br := a.(BlockReceived)
	s.Candidates.Receive(br.Summary, br.From)
}

// makeEffectRequestSnarkVerify kicks verification for every
// freshly-received candidate: through the verifier service when wired,
// otherwise with a meta-derived request id the synchronous fallback
// resolves in-line.
func makeEffectRequestSnarkVerify(env Env) action.EffectFunc[State] {
	return func(s *State, a action.Action, meta action.Meta, dispatch action.Dispatch) {
		br := a.(BlockReceived)
		cand, ok := s.Candidates.Get(br.Summary.Hash)
		if !ok || cand.Status != candidate.StatusReceived {
			return
		}
		reqID := service.RequestID(meta.ID)
		if env.Verifier != nil {
			id, err := env.Verifier.VerifyBlock(env.ctx(), br.Summary)
			if err != nil {
				action.BugCondition(br.Kind(), "verify-block submit failed", "hash", br.Summary.Hash, "err", err)
				return
			}
			reqID = id
		}
		dispatch(SnarkVerifyPending{Hash: br.Summary.Hash, ReqID: reqID})
	}
}

func reduceSnarkVerifyPending(s *State, a action.Action, meta action.Meta) {
	p := a.(SnarkVerifyPending)
	if !s.Candidates.MarkSnarkVerifyPending(p.Hash, p.ReqID) {
		return
	}
	s.Timeouts.Track(timeoutdriver.KindSnarkVerify, uint64(p.ReqID), common.PeerID{}, meta.Time)
}

// makeEffectDispatchSnarkVerify is the synchronous fallback: with no
// verifier wired, a pending verification resolves immediately to success.
// With one wired, the reply arrives as an event and this effect stays out
// of the way.
func makeEffectDispatchSnarkVerify(env Env) action.EffectFunc[State] {
	return func(_ *State, a action.Action, _ action.Meta, dispatch action.Dispatch) {
		if env.Verifier != nil {
			return
		}
		pending := a.(SnarkVerifyPending)
		dispatch(SnarkVerifyBlockSuccess{Hash: pending.Hash, ReqID: pending.ReqID, OK: true})
	}
}

func reduceSnarkVerifyBlockSuccess(s *State, a action.Action, _ action.Meta) {
	res := a.(SnarkVerifyBlockSuccess)
	if !s.Candidates.ResolveSnarkVerify(res.Hash, res.OK) {
		return
	}
	s.Timeouts.Resolve(timeoutdriver.KindSnarkVerify, uint64(res.ReqID))
}

// effectResolveForkRange classifies a freshly-verified candidate against
// the current best tip and dispatches the verdict as a follow-up action;
// it only reads state, leaving every mutation to ForkRangeResolved's
// reducer.
func effectResolveForkRange(s *State, a action.Action, _ action.Meta, dispatch action.Dispatch) {
	res := a.(SnarkVerifyBlockSuccess)
	if !res.OK {
		return
	}
	cand, ok := s.Candidates.Get(res.Hash)
	if !ok || cand.Status != candidate.StatusSnarkVerifySuccess {
		return
	}
	decision := consensus.Decide(s.BestTip, cand.Summary, s.ConsensusParams, s.Frontier)
	shortRange := consensus.IsShortRange(s.BestTip, cand.Summary, s.ConsensusParams, s.Frontier)
	dispatch(ForkRangeResolved{Hash: res.Hash, ShortRange: shortRange, Decision: decision})
}

func reduceForkRangeResolved(s *State, a action.Action, _ action.Meta) {
	fr := a.(ForkRangeResolved)
	s.Candidates.DetectForkRange(fr.Hash, fr.ShortRange)
	s.Candidates.Resolve(fr.Hash, fr.Decision)
	if !fr.Decision.UseAsBestTip() {
		return
	}
	cand, ok := s.Candidates.Get(fr.Hash)
	if !ok {
		return
	}
	s.PreviousBestTip = s.BestTip
	summary := cand.Summary
	s.BestTip = &summary
}

func reduceCheckTimeouts(_ *State, _ action.Action, _ action.Meta) {}

// effectCheckTimeouts scans every tracked request and dispatches
// RequestTimedOut for each one CheckTimeouts finds expired as of meta.Time,
// the same timestamp the reducer saw.
func effectCheckTimeouts(s *State, _ action.Action, meta action.Meta, dispatch action.Dispatch) {
	for _, exp := range s.Timeouts.CheckTimeouts(meta.Time) {
		dispatch(RequestTimedOut{RequestKind: exp.Kind, ID: exp.ID, Peer: exp.Peer})
	}
}

// reduceRequestTimedOut itself mutates nothing: CheckTimeouts already
// dropped the expired entry from the timeout driver's own pending set.
// Every consequence a timeout demands is a state change in some other
// component, so it is left to the effect below, which routes through the
// existing actions rather than reaching into sub-states directly.
func reduceRequestTimedOut(_ *State, _ action.Action, _ action.Meta) {}

// makeEffectRequestTimedOut routes an expiry to its consequence by kind:
// a peer-attributed request drops the unresponsive peer, a block
// verification resolves to failure, a commitment horizon expires the
// commitment. A non-peer ledger query expiring has no pending state left
// to unwind beyond the driver's own entry, which CheckTimeouts already
// removed.
func makeEffectRequestTimedOut(env Env) action.EffectFunc[State] {
	return func(s *State, a action.Action, _ action.Meta, dispatch action.Dispatch) {
		r := a.(RequestTimedOut)
		switch r.RequestKind {
		case timeoutdriver.KindSnarkVerify:
			if hash, ok := s.Candidates.ByVerifyReq(service.RequestID(r.ID)); ok {
				dispatch(SnarkVerifyBlockSuccess{Hash: hash, ReqID: service.RequestID(r.ID), OK: false})
				return
			}
			if batch, ok := s.PendingWorkVerifies[service.RequestID(r.ID)]; ok && len(batch) > 0 {
				dispatch(SnarkWorkBatchVerifyResolved{ReqID: service.RequestID(r.ID), OK: false})
			}
		case timeoutdriver.KindSnarkCommitment:
			if job, ok := s.SnarkPool.JobForCommitmentReq(r.ID); ok {
				dispatch(SnarkCommitmentExpired{JobID: job})
			}
		case timeoutdriver.KindStagedLedgerParts:
			env.disconnect(r.Peer, ReasonRpcTimeout, dispatch)
			dispatch(StagedLedgerPartsRetry{})
		case timeoutdriver.KindLedgerQuery:
			var zero common.PeerID
			if r.Peer == zero {
				// A non-peer ledger read (a watched-account snapshot) has no
				// pending BFS state to unwind.
				return
			}
			env.disconnect(r.Peer, ReasonRpcTimeout, dispatch)
			dispatch(SnarkedLedgerQueryTimedOut{ReqID: service.RequestID(r.ID)})
		default:
			var zero common.PeerID
			if r.Peer == zero {
				return
			}
			env.disconnect(r.Peer, ReasonRpcTimeout, dispatch)
		}
	}
}
