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

// Package statemachine composes every component's sub-state into one
// global record and wires their reducers and effects into a single
// action.Kernel, giving the single-threaded event loop one entry point:
// State plus the kernel that Register wires.
package statemachine

import (
	"time"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/candidate"
	"github.com/probeum/mina-core/internal/consensus"
	"github.com/probeum/mina-core/internal/p2pdir"
	"github.com/probeum/mina-core/internal/rpccorrelator"
	"github.com/probeum/mina-core/internal/service"
	"github.com/probeum/mina-core/internal/snarkpool"
	"github.com/probeum/mina-core/internal/timeoutdriver"
	"github.com/probeum/mina-core/internal/transition/apply"
	"github.com/probeum/mina-core/internal/transition/frontier"
	"github.com/probeum/mina-core/internal/transition/snarkedsync"
	"github.com/probeum/mina-core/internal/transition/stagedsync"
	"github.com/probeum/mina-core/internal/txpool"
	"github.com/probeum/mina-core/internal/watchaccounts"
)

// State is the single global record, composed of component sub-states,
// that every reducer in this package mutates exclusively through a
// *action.Kernel[State] dispatch.
type State struct {
	Peers      *p2pdir.Directory
	Candidates *candidate.Cache
	Frontier   *frontier.TransitionFrontier
	SnarkPool  *snarkpool.Pool
	TxPool     *txpool.Pool
	Rpc        *rpccorrelator.Correlator
	Watches    *watchaccounts.Tracker
	Timeouts   *timeoutdriver.Driver

	// SnarkedSync, StagedSync and Apply hold the in-flight transition-sync
	// sub-machines, non-nil only while Frontier.Sync.Kind
	// is SyncPending/SyncCommitPending.
	SnarkedSync *snarkedsync.BFSSync
	StagedSync  *stagedsync.Sync
	Apply       *apply.Pipeline

	// Hasher and PartsValidator are the ledger-supplied comparison hooks
	// the sync pipeline needs but the core never implements itself. They
	// are nil until the embedding deployment
	// calls SetCollaborators; a sync action arriving before that point
	// logs a bug_condition instead of panicking.
	Hasher         snarkedsync.Hasher
	PartsValidator stagedsync.PartsValidator

	BestTip         *consensus.BlockSummary
	PreviousBestTip *consensus.BlockSummary
	ConsensusParams consensus.Params
	Limits          Limits

	// LocalPeerID is this node's own identity, used to tell
	// locally-originated pool entries (subject to rebroadcast) from
	// peer-received ones.
	LocalPeerID common.PeerID

	// PendingWorkVerifies maps an in-flight VerifyWorkBatch request to the
	// candidates it covers, so the verifier's one batched reply can settle
	// every candidate it carried.
	PendingWorkVerifies map[service.RequestID][]snarkpool.Candidate

	// PendingSnarkVerifyBatch and PendingWatchMatches are transient,
	// single-action-lifetime handoffs from a reducer to its own effect:
	// SelectBatch and OnBestTipUpdate are not safe to call twice (the
	// second call would see different, already-advanced pool/tracker
	// state), so the reducer that calls them stashes the result here for
	// the immediately-following effect to drain, then clears it.
	PendingSnarkVerifyBatch  []snarkpool.Candidate
	PendingWatchMatches      []common.Hash
	PendingGossipSends       []GossipSend
	PendingRebroadcasts      []RebroadcastItem
	PendingFailedVerifyPeers []common.PeerID
	PendingDials             []common.PeerID
}

// New returns a State with every sub-component freshly initialized, using
// timeouts as the timeout driver's per-kind deadlines.
func New(params consensus.Params, timeouts map[timeoutdriver.RequestKind]time.Duration) *State {
	return &State{
		Peers:               p2pdir.New(),
		Candidates:          candidate.New(),
		Frontier:            frontier.New(),
		SnarkPool:           snarkpool.New(),
		TxPool:              txpool.New(),
		Rpc:                 rpccorrelator.New(),
		Watches:             watchaccounts.New(),
		Timeouts:            timeoutdriver.New(timeouts),
		ConsensusParams:     params,
		Limits:              Limits{MaxPeers: DefaultMaxPeers, MinPeers: DefaultMaxPeers / 2},
		PendingWorkVerifies: make(map[service.RequestID][]snarkpool.Candidate),
	}
}

// SetLimits overrides the default resource limits; call before the first
// dispatch.
func (s *State) SetLimits(limits Limits) {
	if limits.MaxPeers > 0 {
		s.Limits.MaxPeers = limits.MaxPeers
	}
	if limits.MinPeers > 0 {
		s.Limits.MinPeers = limits.MinPeers
	}
}

// SetCollaborators installs the ledger-supplied hooks the sync pipeline
// calls through. Must be called once before the node is dialed into any
// peers; the zero State is otherwise usable (e.g. for replay, which never
// starts a live sync).
func (s *State) SetCollaborators(hasher snarkedsync.Hasher, partsValidator stagedsync.PartsValidator) {
	s.Hasher = hasher
	s.PartsValidator = partsValidator
}
