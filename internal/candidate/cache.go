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

// Package candidate holds blocks received from peers that have not yet
// been fully validated, tracking each through SNARK verification and
// fork-range resolution before it can become (or be rejected as) the best
// tip.
package candidate

import (
	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/consensus"
	"github.com/probeum/mina-core/internal/service"
)

// Status is a candidate's position in the verification/resolution
// lifecycle.
type Status int

const (
	StatusReceived Status = iota
	StatusSnarkVerifyPending
	StatusSnarkVerifySuccess
	StatusForkRangeDetected
	StatusShortRangeForkResolve
	StatusLongRangeForkResolve
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusReceived:
		return "Received"
	case StatusSnarkVerifyPending:
		return "SnarkVerifyPending"
	case StatusSnarkVerifySuccess:
		return "SnarkVerifySuccess"
	case StatusForkRangeDetected:
		return "ForkRangeDetected"
	case StatusShortRangeForkResolve:
		return "ShortRangeForkResolve"
	case StatusLongRangeForkResolve:
		return "LongRangeForkResolve"
	case StatusRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Block is a candidate block header tracked by the cache, keyed by its own
// state hash.
type Block struct {
	Summary  consensus.BlockSummary
	Status   Status
	FromPeer common.PeerID
	Decision *consensus.Decision

	// VerifyReq is the SNARK-verifier request id while Status is
	// SnarkVerifyPending, so the eventual reply event can be matched back
	// to this candidate.
	VerifyReq service.RequestID
}

// Cache holds every candidate currently being tracked, keyed by state hash.
// It is not safe for concurrent use; callers serialize access the same way
// the rest of the state machine does (single-threaded dispatch).
type Cache struct {
	blocks map[common.Hash]*Block
}

// New returns an empty candidate cache.
func New() *Cache {
	return &Cache{blocks: make(map[common.Hash]*Block)}
}

// Receive inserts a newly-seen block in StatusReceived. A duplicate receive
// of an already-tracked hash is a no-op, returning false.
func (c *Cache) Receive(summary consensus.BlockSummary, from common.PeerID) bool {
	if _, ok := c.blocks[summary.Hash]; ok {
		return false
	}
	c.blocks[summary.Hash] = &Block{Summary: summary, Status: StatusReceived, FromPeer: from}
	return true
}

// Get returns the tracked candidate for hash, if any.
func (c *Cache) Get(hash common.Hash) (*Block, bool) {
	b, ok := c.blocks[hash]
	return b, ok
}

// Len reports how many candidates are currently tracked.
func (c *Cache) Len() int { return len(c.blocks) }

// MarkSnarkVerifyPending transitions a Received candidate to
// SnarkVerifyPending, recording the verifier request id its reply will
// carry. Returns false if hash is unknown or not Received.
func (c *Cache) MarkSnarkVerifyPending(hash common.Hash, reqID service.RequestID) bool {
	b, ok := c.blocks[hash]
	if !ok || b.Status != StatusReceived {
		return false
	}
	b.Status = StatusSnarkVerifyPending
	b.VerifyReq = reqID
	return true
}

// ByVerifyReq finds the candidate whose verification is pending under
// reqID, if any. A reply whose id matches nothing belongs to a candidate
// already resolved (or dropped) and is the caller's cue to ignore it.
func (c *Cache) ByVerifyReq(reqID service.RequestID) (common.Hash, bool) {
	for hash, b := range c.blocks {
		if b.Status == StatusSnarkVerifyPending && b.VerifyReq == reqID {
			return hash, true
		}
	}
	return common.Hash{}, false
}

// ResolveSnarkVerify completes verification: on failure the candidate is
// dropped from the cache entirely (it can never become the best tip); on
// success it advances to SnarkVerifySuccess, ready for fork-range
// detection.
func (c *Cache) ResolveSnarkVerify(hash common.Hash, ok bool) bool {
	b, present := c.blocks[hash]
	if !present || b.Status != StatusSnarkVerifyPending {
		return false
	}
	if !ok {
		delete(c.blocks, hash)
		return true
	}
	b.Status = StatusSnarkVerifySuccess
	return true
}

// DetectForkRange records the fork-range classification for a verified
// candidate, moving it into the matching resolve state so the caller knows
// which rule (short- or long-range) to apply next.
func (c *Cache) DetectForkRange(hash common.Hash, shortRange bool) bool {
	b, ok := c.blocks[hash]
	if !ok || b.Status != StatusSnarkVerifySuccess {
		return false
	}
	if shortRange {
		b.Status = StatusShortRangeForkResolve
	} else {
		b.Status = StatusLongRangeForkResolve
	}
	return true
}

// Resolve records the fork-choice decision for a candidate under active
// resolution. A Keep decision leaves it in the cache for later
// re-evaluation against a different tip; a Take decision is recorded too,
// since the caller still needs Decision for logging before pruning old
// candidates that are no longer within k of the new tip.
func (c *Cache) Resolve(hash common.Hash, d consensus.Decision) bool {
	b, ok := c.blocks[hash]
	if !ok {
		return false
	}
	if b.Status != StatusShortRangeForkResolve && b.Status != StatusLongRangeForkResolve {
		return false
	}
	b.Decision = &d
	return true
}

// PruneBelow drops every candidate whose height is more than k below
// tipHeight; Samasika finality means such candidates can no longer affect
// fork choice.
func (c *Cache) PruneBelow(tipHeight uint32, k uint32) []common.Hash {
	var pruned []common.Hash
	threshold := int64(tipHeight) - int64(k)
	for hash, b := range c.blocks {
		if int64(b.Summary.Height) < threshold {
			pruned = append(pruned, hash)
			delete(c.blocks, hash)
		}
	}
	return pruned
}
