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

// Package txpool implements the transaction pool and its per-peer
// candidate pipeline, structurally parallel to internal/snarkpool: pool
// entries are validated user commands keyed by transaction hash, and
// each best-tip change re-prunes invalidated commands against the new
// staged ledger.
package txpool

import (
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/pool"
	"github.com/probeum/mina-core/internal/service"
)

// verifiedCacheSize bounds the recently-verified dedup cache, matching
// internal/snarkpool's rationale: the same transaction is routinely
// advertised by several peers in the same gossip round.
const verifiedCacheSize = 4096

// Command is a validated user command (transaction) stored in the pool.
type Command struct {
	Payload interface{}
}

// Entry is one pool record, keyed by transaction hash.
type Entry struct {
	Hash      common.Hash
	Command   Command
	LocalOrig bool
	Rebroad   pool.RebroadcastState
}

// Key implements pool.Keyed.
func (e Entry) Key() common.Hash { return e.Hash }

// CandidateStatus mirrors internal/snarkpool's pipeline shape, renamed to
// the transaction pool's own stage names.
type CandidateStatus int

const (
	CandidateInfoReceived CandidateStatus = iota
	CandidateFetchInit
	CandidateFetchPending
	CandidateFetchSuccess
	CandidateFetchError
	CandidateVerifyNext
	CandidateVerifySuccess
	CandidateVerifyError
)

type candidateKey struct {
	Peer common.PeerID
	Hash common.Hash
}

// Candidate tracks one peer's advertised transaction through fetch and
// verification.
type Candidate struct {
	Peer      common.PeerID
	Hash      common.Hash
	Status    CandidateStatus
	RequestID service.RequestID
	Command   *Command
}

// Pool is the transaction DistributedPool plus its per-peer candidate
// pipeline.
type Pool struct {
	entries    *pool.DistributedPool[common.Hash, Entry]
	candidates map[candidateKey]*Candidate
	policy     pool.RebroadcastPolicy

	// verified is an efficiency-only cache of the last verification outcome
	// for a transaction hash, independent of which peer's candidate
	// produced it; see internal/snarkpool.Pool.verified for the rationale.
	verified *lru.Cache
}

// New returns an empty transaction pool using the default rebroadcast
// policy (10 minutes, up to 5 tries).
func New() *Pool {
	verified, err := lru.New(verifiedCacheSize)
	if err != nil {
		panic(err)
	}
	return &Pool{
		entries:    pool.New[common.Hash, Entry](),
		candidates: make(map[candidateKey]*Candidate),
		policy:     pool.DefaultRebroadcastPolicy,
		verified:   verified,
	}
}

// AlreadyVerified reports whether hash's command was verified (successfully
// or not) by a candidate from another peer recently enough to still be in
// the cache.
func (p *Pool) AlreadyVerified(hash common.Hash) (ok bool, found bool) {
	v, present := p.verified.Get(hash)
	if !present {
		return false, false
	}
	return v.(bool), true
}

// Entries exposes the underlying DistributedPool for gossip propagation.
func (p *Pool) Entries() *pool.DistributedPool[common.Hash, Entry] { return p.entries }

// InfoReceived records a candidate with no content yet.
func (p *Pool) InfoReceived(peer common.PeerID, hash common.Hash) {
	key := candidateKey{Peer: peer, Hash: hash}
	if _, ok := p.candidates[key]; ok {
		return
	}
	p.candidates[key] = &Candidate{Peer: peer, Hash: hash, Status: CandidateInfoReceived}
}

// FetchPending dispatches an RPC for the full transaction.
func (p *Pool) FetchPending(peer common.PeerID, hash common.Hash, reqID service.RequestID) bool {
	c, ok := p.candidates[candidateKey{Peer: peer, Hash: hash}]
	if !ok || (c.Status != CandidateInfoReceived && c.Status != CandidateFetchInit) {
		return false
	}
	c.Status = CandidateFetchPending
	c.RequestID = reqID
	return true
}

// CandidateRequest returns the fetch request id recorded for one
// (peer, hash) candidate.
func (p *Pool) CandidateRequest(peer common.PeerID, hash common.Hash) (service.RequestID, bool) {
	c, ok := p.candidates[candidateKey{Peer: peer, Hash: hash}]
	if !ok {
		return 0, false
	}
	return c.RequestID, true
}

// ResolveFetch delivers the fetch reply, advancing to FetchSuccess or
// FetchError.
func (p *Pool) ResolveFetch(peer common.PeerID, hash common.Hash, cmd *Command) bool {
	c, ok := p.candidates[candidateKey{Peer: peer, Hash: hash}]
	if !ok || c.Status != CandidateFetchPending {
		return false
	}
	if cmd == nil {
		c.Status = CandidateFetchError
		return true
	}
	c.Status = CandidateFetchSuccess
	c.Command = cmd
	return true
}

// VerifyNext moves a fetched candidate into verification.
func (p *Pool) VerifyNext(peer common.PeerID, hash common.Hash) bool {
	c, ok := p.candidates[candidateKey{Peer: peer, Hash: hash}]
	if !ok || c.Status != CandidateFetchSuccess {
		return false
	}
	c.Status = CandidateVerifyNext
	return true
}

// ResolveVerify delivers the verification outcome. On success the command
// enters the pool (marked local if locallyOriginated); on failure the
// candidate is dropped without touching the pool.
func (p *Pool) ResolveVerify(peer common.PeerID, hash common.Hash, ok bool, locallyOriginated bool, now time.Time) bool {
	key := candidateKey{Peer: peer, Hash: hash}
	c, present := p.candidates[key]
	if !present || c.Status != CandidateVerifyNext {
		return false
	}
	delete(p.candidates, key)
	p.verified.Add(hash, ok)
	if !ok || c.Command == nil {
		return false
	}
	p.entries.Insert(Entry{Hash: hash, Command: *c.Command, LocalOrig: locallyOriginated, Rebroad: pool.RebroadcastState{LastSent: now}})
	return true
}

// ApplyTransitionFrontierDiff re-prunes the pool against the new staged
// ledger after a best-tip change: keep removes entries no longer valid
// (e.g. double-spent, nonce-superseded, insufficient balance under the new
// chain); needed is appended with the source account that must be
// re-snapshotted via the ledger service before finalizing, for every entry
// kept.
func (p *Pool) ApplyTransitionFrontierDiff(keep func(hash common.Hash, cmd Command) bool, accountOf func(cmd Command) interface{}) []interface{} {
	var needed []interface{}
	p.entries.Retain(func(hash common.Hash, e Entry) bool {
		ok := keep(hash, e.Command)
		if ok {
			needed = append(needed, accountOf(e.Command))
		}
		return ok
	})
	return needed
}

// DueForRebroadcast returns every locally-originated entry due for
// re-announcement under the pool's rebroadcast policy (every 10 minutes,
// up to 5 tries).
func (p *Pool) DueForRebroadcast(now time.Time) []Entry {
	var due []Entry
	for _, e := range p.entries.Values() {
		if !e.LocalOrig {
			continue
		}
		if p.policy.ShouldRebroadcast(e.Rebroad, now) {
			due = append(due, e)
		}
	}
	return due
}

// MarkRebroadcast advances an entry's rebroadcast bookkeeping after it has
// been re-announced.
func (p *Pool) MarkRebroadcast(hash common.Hash, now time.Time) bool {
	return p.entries.Update(hash, func(e Entry) Entry {
		e.Rebroad = p.policy.Advance(e.Rebroad, now)
		return e
	})
}
