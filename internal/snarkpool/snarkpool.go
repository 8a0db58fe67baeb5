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

// Package snarkpool implements the SNARK-work pool and its per-peer
// candidate pipeline: tracking commitments and completed work for each
// scan-state job, verifying received work in batches, and propagating
// accepted work to peers via the shared gossip-cursor pool.
package snarkpool

import (
	"sort"

	lru "github.com/hashicorp/golang-lru"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/pool"
	"github.com/probeum/mina-core/internal/service"
)

// verifiedCacheSize bounds the recently-verified dedup cache below; a few
// thousand recent entries is enough to catch the common case, the same
// work broadcast by several peers in the same gossip round.
const verifiedCacheSize = 4096

// Snark is one completed piece of SNARK work for a job.
type Snark struct {
	Fee      uint64
	ProverID common.PeerID
	Payload  interface{}
}

// Better reports whether a is strictly preferred over b under the pool's
// acceptance ordering: lower fee wins; equal fee breaks on the smaller
// prover id.
func Better(a, b Snark) bool {
	if a.Fee != b.Fee {
		return a.Fee < b.Fee
	}
	return a.ProverID.Hex() < b.ProverID.Hex()
}

// Commitment is an ephemeral intent to produce work for a job, expired by
// the timeout driver if no snark follows within the configured horizon.
// Locally-originated commitments are re-announced under the shared
// rebroadcast policy while they remain open.
type Commitment struct {
	Sender  common.PeerID
	Rebroad pool.RebroadcastState
}

// Entry is one pool record, keyed by job id.
type Entry struct {
	JobID      common.Hash
	Commitment *Commitment
	Snark      *Snark
	Sender     common.PeerID
}

// Key implements pool.Keyed.
func (e Entry) Key() common.Hash { return e.JobID }

// Pool is the snark-work DistributedPool plus its per-peer candidate
// pipeline.
type Pool struct {
	entries    *pool.DistributedPool[common.Hash, Entry]
	candidates map[candidateKey]*Candidate
	policy     pool.RebroadcastPolicy

	// commitmentReqs maps a live commitment's timeout-driver id back to its
	// job, so an expiry reported by id can find the entry to drop.
	commitmentReqs map[uint64]common.Hash

	// verified remembers the outcome of the last verification for a job id,
	// regardless of which peer's candidate triggered it, so a duplicate
	// advertised by a second peer after the first has already resolved
	// doesn't pay for another verify RPC round trip. It is an efficiency
	// cache only: losing an entry to eviction just costs a redundant verify,
	// it never changes which snark ends up accepted (VerifySuccess still
	// runs Better against the pool entry either way).
	verified *lru.Cache
}

// New returns an empty snark-work pool.
func New() *Pool {
	verified, err := lru.New(verifiedCacheSize)
	if err != nil {
		panic(err) // only returns an error for a non-positive size
	}
	return &Pool{
		entries:        pool.New[common.Hash, Entry](),
		candidates:     make(map[candidateKey]*Candidate),
		policy:         pool.DefaultRebroadcastPolicy,
		commitmentReqs: make(map[uint64]common.Hash),
		verified:       verified,
	}
}

// Entries exposes the underlying DistributedPool for gossip propagation
// (NextToSend) and direct inspection.
func (p *Pool) Entries() *pool.DistributedPool[common.Hash, Entry] { return p.entries }

// CandidateStatus is a per-(peer,job) candidate's pipeline position.
type CandidateStatus int

const (
	CandidateInfoReceived CandidateStatus = iota
	CandidateWorkFetchPending
	CandidateWorkReceived
	CandidateVerifying
)

type candidateKey struct {
	Peer  common.PeerID
	JobID common.Hash
}

// Candidate tracks one peer's advertised SNARK work through fetch and
// verification, before it either enters the pool (WorkAdd) or the peer is
// disconnected for sending bad work.
type Candidate struct {
	Peer      common.PeerID
	JobID     common.Hash
	Status    CandidateStatus
	RequestID service.RequestID
	Snark     *Snark
}

// InfoReceived records a candidate with no content yet (step 1).
func (p *Pool) InfoReceived(peer common.PeerID, jobID common.Hash) {
	key := candidateKey{Peer: peer, JobID: jobID}
	if _, ok := p.candidates[key]; ok {
		return
	}
	p.candidates[key] = &Candidate{Peer: peer, JobID: jobID, Status: CandidateInfoReceived}
}

// AlreadyVerified reports whether jobID's work was verified (successfully or
// not) by a candidate from another peer recently enough to still be in the
// cache, letting the caller skip fetching and re-verifying peer's copy.
func (p *Pool) AlreadyVerified(jobID common.Hash) (ok bool, found bool) {
	v, present := p.verified.Get(jobID)
	if !present {
		return false, false
	}
	return v.(bool), true
}

// WorkFetchPending dispatches an RPC for the full snark (step 2).
func (p *Pool) WorkFetchPending(peer common.PeerID, jobID common.Hash, reqID service.RequestID) bool {
	c, ok := p.candidates[candidateKey{Peer: peer, JobID: jobID}]
	if !ok || c.Status != CandidateInfoReceived {
		return false
	}
	c.Status = CandidateWorkFetchPending
	c.RequestID = reqID
	return true
}

// CandidateRequest returns the fetch request id recorded for one
// (peer, job) candidate, so the caller can settle the matching timeout
// entry regardless of what id the reply itself claims.
func (p *Pool) CandidateRequest(peer common.PeerID, jobID common.Hash) (service.RequestID, bool) {
	c, ok := p.candidates[candidateKey{Peer: peer, JobID: jobID}]
	if !ok {
		return 0, false
	}
	return c.RequestID, true
}

// WorkReceived moves the candidate into the batch-verification queue
// (step 3).
func (p *Pool) WorkReceived(peer common.PeerID, jobID common.Hash, snark Snark) bool {
	c, ok := p.candidates[candidateKey{Peer: peer, JobID: jobID}]
	if !ok || c.Status != CandidateWorkFetchPending {
		return false
	}
	c.Status = CandidateWorkReceived
	c.Snark = &snark
	return true
}

// SelectBatch picks up to maxBatch WorkReceived candidates for
// verification (step 4), preferring jobs whose pool entry has the lowest
// insertion order; candidates with no existing pool entry (a commitment
// never locally recorded) sort last.
func (p *Pool) SelectBatch(maxBatch int) []Candidate {
	type scored struct {
		c     *Candidate
		order uint64
	}
	var pending []scored
	for _, c := range p.candidates {
		if c.Status != CandidateWorkReceived {
			continue
		}
		order := p.entries.NextSeq()
		if _, seq, ok := p.entrySeq(c.JobID); ok {
			order = seq
		}
		pending = append(pending, scored{c: c, order: order})
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].order != pending[j].order {
			return pending[i].order < pending[j].order
		}
		return pending[i].c.JobID.Cmp(pending[j].c.JobID) < 0
	})

	if len(pending) > maxBatch {
		pending = pending[:maxBatch]
	}
	out := make([]Candidate, 0, len(pending))
	for _, s := range pending {
		s.c.Status = CandidateVerifying
		out = append(out, *s.c)
	}
	return out
}

func (p *Pool) entrySeq(jobID common.Hash) (Entry, uint64, bool) {
	var found Entry
	var foundSeq uint64
	var ok bool
	p.entries.Range(0, p.entries.NextSeq(), func(seq uint64, v Entry) bool {
		if v.JobID == jobID {
			found, foundSeq, ok = v, seq, true
			return false
		}
		return true
	})
	return found, foundSeq, ok
}

// VerifySuccess accepts the candidate's snark into the pool (step 5) iff
// it strictly betters whatever is already there for the job, then removes
// the candidate. Returns whether the pool changed.
func (p *Pool) VerifySuccess(peer common.PeerID, jobID common.Hash) bool {
	key := candidateKey{Peer: peer, JobID: jobID}
	c, ok := p.candidates[key]
	if !ok || c.Status != CandidateVerifying || c.Snark == nil {
		delete(p.candidates, key)
		return false
	}
	delete(p.candidates, key)
	p.verified.Add(jobID, true)

	existing, has := p.entries.Get(jobID)
	if has && existing.Snark != nil && !Better(*c.Snark, *existing.Snark) {
		return false
	}
	entry := Entry{JobID: jobID, Snark: c.Snark, Sender: peer}
	if has {
		entry.Commitment = existing.Commitment
	}
	p.entries.Insert(entry)
	return true
}

// VerifyFailure drops the candidate; the caller is responsible for
// disconnecting the peer under the SnarkPoolVerifyError policy.
func (p *Pool) VerifyFailure(peer common.PeerID, jobID common.Hash) {
	delete(p.candidates, candidateKey{Peer: peer, JobID: jobID})
	p.verified.Add(jobID, false)
}
