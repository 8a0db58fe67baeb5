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

package snarkpool

import (
	"time"

	"github.com/probeum/mina-core/common"
)

// AddCommitment records sender's intent to produce work for jobID,
// inserting a pool entry if none exists yet. reqID is the timeout-driver
// id the caller tracks the commitment horizon under; it is remembered here
// so an expiry can be resolved back to the job. A job whose entry already
// carries a snark no longer accepts commitments (the work is done), and a
// second commitment for the same job is rejected until the first expires.
func (p *Pool) AddCommitment(jobID common.Hash, sender common.PeerID, reqID uint64) bool {
	existing, has := p.entries.Get(jobID)
	if has && existing.Snark != nil {
		return false
	}
	if has && existing.Commitment != nil {
		return false
	}
	commitment := &Commitment{Sender: sender}
	if has {
		p.entries.Update(jobID, func(e Entry) Entry {
			e.Commitment = commitment
			return e
		})
	} else {
		p.entries.Insert(Entry{JobID: jobID, Commitment: commitment, Sender: sender})
	}
	p.commitmentReqs[reqID] = jobID
	return true
}

// CommitmentReq returns the timeout-driver id a live commitment for jobID
// is tracked under.
func (p *Pool) CommitmentReq(jobID common.Hash) (uint64, bool) {
	for id, job := range p.commitmentReqs {
		if job == jobID {
			return id, true
		}
	}
	return 0, false
}

// JobForCommitmentReq resolves a commitment timeout id back to its job.
func (p *Pool) JobForCommitmentReq(reqID uint64) (common.Hash, bool) {
	job, ok := p.commitmentReqs[reqID]
	return job, ok
}

// ExpireCommitment drops jobID's commitment once its horizon passed with
// no snark submitted. An entry holding nothing but the expired commitment
// is removed from the pool entirely.
func (p *Pool) ExpireCommitment(jobID common.Hash) bool {
	e, has := p.entries.Get(jobID)
	if !has || e.Commitment == nil {
		return false
	}
	p.dropCommitmentReq(jobID)
	if e.Snark == nil {
		p.entries.Remove(jobID)
		return true
	}
	p.entries.Update(jobID, func(e Entry) Entry {
		e.Commitment = nil
		return e
	})
	return true
}

// ClearCommitment removes jobID's commitment because the promised snark
// arrived, returning the timeout id that was tracking it so the caller can
// resolve the pending horizon.
func (p *Pool) ClearCommitment(jobID common.Hash) (uint64, bool) {
	e, has := p.entries.Get(jobID)
	if !has || e.Commitment == nil {
		return 0, false
	}
	reqID, tracked := p.CommitmentReq(jobID)
	p.dropCommitmentReq(jobID)
	p.entries.Update(jobID, func(e Entry) Entry {
		e.Commitment = nil
		return e
	})
	return reqID, tracked
}

func (p *Pool) dropCommitmentReq(jobID common.Hash) {
	for id, job := range p.commitmentReqs {
		if job == jobID {
			delete(p.commitmentReqs, id)
		}
	}
}

// DueCommitmentRebroadcast returns every locally-committed entry due for
// re-announcement under the pool's shared rebroadcast policy; the snark
// pool announces its own prover's open commitments the same way the
// transaction pool re-announces local transactions.
func (p *Pool) DueCommitmentRebroadcast(local common.PeerID, now time.Time) []Entry {
	var due []Entry
	for _, e := range p.entries.Values() {
		if e.Commitment == nil || e.Commitment.Sender != local {
			continue
		}
		if p.policy.ShouldRebroadcast(e.Commitment.Rebroad, now) {
			due = append(due, e)
		}
	}
	return due
}

// MarkCommitmentRebroadcast advances an entry's commitment-rebroadcast
// bookkeeping after it has been re-announced.
func (p *Pool) MarkCommitmentRebroadcast(jobID common.Hash, now time.Time) bool {
	e, has := p.entries.Get(jobID)
	if !has || e.Commitment == nil {
		return false
	}
	return p.entries.Update(jobID, func(e Entry) Entry {
		e.Commitment.Rebroad = p.policy.Advance(e.Commitment.Rebroad, now)
		return e
	})
}
