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

// Package stagedsync materializes a target block's staged ledger: fetch
// its aux/pending-coinbase parts from a peer, reconstruct on top of the
// already-synced snarked root, then collect the historical protocol
// states its scan-state still references.
package stagedsync

import (
	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/service"
)

// State is the staged-ledger sync sub-state.
type State int

const (
	StatePartsFetchPending State = iota
	StatePartsFetchSuccess
	StateReconstructEmpty
	StateReconstructPending
	StateReconstructError
	StateReconstructSuccess
	StateSuccess
)

func (s State) String() string {
	switch s {
	case StatePartsFetchPending:
		return "PartsFetchPending"
	case StatePartsFetchSuccess:
		return "PartsFetchSuccess"
	case StateReconstructEmpty:
		return "ReconstructEmpty"
	case StateReconstructPending:
		return "ReconstructPending"
	case StateReconstructError:
		return "ReconstructError"
	case StateReconstructSuccess:
		return "ReconstructSuccess"
	case StateSuccess:
		return "Success"
	default:
		return "Unknown"
	}
}

// PartsValidator checks that fetched parts hash to the target's
// staged_ledger_hash. The real implementation defers to the ledger
// library's non-snark aux-hash schema, a collaborator contract; this
// package only calls through the interface.
type PartsValidator interface {
	Validate(parts interface{}, target common.Hash) bool
}

// Sync drives one staged-ledger sync toward a target. It is not safe for
// concurrent use; the owning state machine serializes all calls.
type Sync struct {
	target    common.Hash
	validator PartsValidator

	state          State
	parts          interface{}
	needed         map[common.Hash]bool
	reqID          service.RequestID
	partsRequested bool
}

// New starts a staged-ledger sync toward target in PartsFetchPending.
func New(target common.Hash, validator PartsValidator) *Sync {
	return &Sync{target: target, validator: validator, state: StatePartsFetchPending}
}

// State returns the current sub-phase.
func (s *Sync) State() State { return s.state }

// SetRequest records the in-flight ReconstructStaged request id so the
// ledger service's reply event can be matched against this sync (and a
// reply for a since-abandoned sync dropped).
func (s *Sync) SetRequest(id service.RequestID) { s.reqID = id }

// Request returns the in-flight ReconstructStaged request id, zero if
// none was issued.
func (s *Sync) Request() service.RequestID { return s.reqID }

// Parts returns the validated parts, once fetched.
func (s *Sync) Parts() interface{} { return s.parts }

// MarkPartsRequested claims the single outstanding parts fetch. Returns
// false if one is already in flight or the sync has moved past fetching,
// so the caller issues at most one request at a time.
func (s *Sync) MarkPartsRequested() bool {
	if s.state != StatePartsFetchPending || s.partsRequested {
		return false
	}
	s.partsRequested = true
	return true
}

// PartsRequested reports whether a parts fetch is currently claimed.
func (s *Sync) PartsRequested() bool { return s.partsRequested }

// ResetPartsRequest releases the outstanding-fetch claim after the peer
// serving it timed out or sent invalid parts, so another peer can be
// tried.
func (s *Sync) ResetPartsRequest() {
	if s.state == StatePartsFetchPending {
		s.partsRequested = false
	}
}

// ReceiveParts handles a peer's StagedLedgerAuxAndPendingCoinbases reply.
// If parts validate against the target's staged_ledger_hash, the sync
// advances to PartsFetchSuccess; otherwise it stays in PartsFetchPending
// so the caller can retry with a different peer.
func (s *Sync) ReceiveParts(parts interface{}) bool {
	if s.state != StatePartsFetchPending {
		return false
	}
	if !s.validator.Validate(parts, s.target) {
		s.partsRequested = false
		return false
	}
	s.parts = parts
	s.state = StatePartsFetchSuccess
	return true
}

// BeginReconstruct hands validated parts plus the snarked root to the
// ledger service. emptyLedger selects the
// ReconstructEmpty shortcut for a target with no staged work pending.
func (s *Sync) BeginReconstruct(emptyLedger bool) bool {
	if s.state != StatePartsFetchSuccess {
		return false
	}
	if emptyLedger {
		s.state = StateReconstructEmpty
		return true
	}
	s.state = StateReconstructPending
	return true
}

// ResolveReconstruct delivers the ledger service's reply. On error the
// phase restarts at ReconstructError so the caller can retry reconstruct
// (parts are already validated and need not be re-fetched).
func (s *Sync) ResolveReconstruct(ok bool) bool {
	if s.state != StateReconstructPending {
		return false
	}
	if !ok {
		s.state = StateReconstructError
		return true
	}
	s.state = StateReconstructSuccess
	return true
}

// RetryReconstruct moves a ReconstructError sync back to Pending for
// another attempt.
func (s *Sync) RetryReconstruct() bool {
	if s.state != StateReconstructError {
		return false
	}
	s.state = StateReconstructPending
	return true
}

// BeginCollectNeeded starts step 3: resolving the scan-state's referenced
// historical protocol state hashes. referenced is the full set the
// scan-state names; each is looked up against best_chain or the incoming
// new chain before the sync can finish.
func (s *Sync) BeginCollectNeeded(referenced []common.Hash) {
	s.needed = make(map[common.Hash]bool, len(referenced))
	for _, h := range referenced {
		s.needed[h] = false
	}
}

// ResolveNeeded marks one referenced protocol state hash as found, either
// in best_chain or in the incoming new chain.
func (s *Sync) ResolveNeeded(hash common.Hash) {
	if _, ok := s.needed[hash]; ok {
		s.needed[hash] = true
	}
}

// Unresolved returns the protocol state hashes still not located.
func (s *Sync) Unresolved() []common.Hash {
	var out []common.Hash
	for h, found := range s.needed {
		if !found {
			out = append(out, h)
		}
	}
	return out
}

// Finish completes the staged-ledger sync once reconstruct has succeeded
// (or was vacuous) and every needed protocol state has been resolved.
func (s *Sync) Finish() bool {
	if s.state != StateReconstructSuccess && s.state != StateReconstructEmpty {
		return false
	}
	if len(s.Unresolved()) != 0 {
		return false
	}
	s.state = StateSuccess
	return true
}
