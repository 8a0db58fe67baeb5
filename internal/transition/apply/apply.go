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

// Package apply drives the block-apply pipeline: given a validated root and
// an ordered sequence of headers up to the target best tip, apply each
// header to the staged ledger one at a time, committing the whole chain
// atomically on full success or blacklisting the offending block and
// reverting to the prior synced tip on failure.
package apply

import (
	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/service"
	"github.com/probeum/mina-core/internal/transition/frontier"
)

// Pipeline applies one ordered sequence of headers against a
// frontier.TransitionFrontier, one at a time.
type Pipeline struct {
	frontier *frontier.TransitionFrontier
	pending  []frontier.AppliedBlock
	applied  []frontier.AppliedBlock
	next     int
	reqID    service.RequestID
}

// SetRequest records the in-flight ApplyBlock request id for the current
// block so the ledger service's reply event can be matched against this
// pipeline.
func (p *Pipeline) SetRequest(id service.RequestID) { p.reqID = id }

// Request returns the in-flight ApplyBlock request id, zero if none.
func (p *Pipeline) Request() service.RequestID { return p.reqID }

// New starts an apply pipeline for pending against f. f is left untouched
// until Commit or Abort is called.
func New(f *frontier.TransitionFrontier, pending []frontier.AppliedBlock) *Pipeline {
	return &Pipeline{frontier: f, pending: pending}
}

// Done reports whether every pending block has been applied successfully.
func (p *Pipeline) Done() bool { return p.next >= len(p.pending) }

// Next returns the next block to apply, or false once Done.
func (p *Pipeline) Next() (frontier.AppliedBlock, bool) {
	if p.Done() {
		return frontier.AppliedBlock{}, false
	}
	return p.pending[p.next], true
}

// ResolveApply delivers the ledger service's reply for the current block.
// On success the block is appended to the in-progress applied chain and
// the pipeline advances. On failure the offending block is blacklisted
// and the pipeline aborts, leaving the frontier reverted to its prior
// Synced tip.
func (p *Pipeline) ResolveApply(ok bool) {
	block, has := p.Next()
	if !has {
		return
	}
	if !ok {
		p.frontier.BlacklistBlock(block.Hash, block.Height)
		p.frontier.RevertToSynced()
		p.pending = nil
		p.applied = nil
		p.next = 0
		return
	}
	p.applied = append(p.applied, block)
	p.next++
}

// Commit replaces best_chain with the fully-applied sequence and prunes
// needed_protocol_states to referencedProtocolStates. It is a no-op
// (returns false) unless every pending block has been applied.
func (p *Pipeline) Commit(referencedProtocolStates []common.Hash) bool {
	if !p.Done() || len(p.applied) == 0 {
		return false
	}
	p.frontier.Commit(p.applied, referencedProtocolStates)
	return true
}
