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

// Package timeoutdriver implements the periodic CheckTimeouts pass:
// scanning every pending request-kind bucket for entries older than their
// configured per-request timeout and emitting a timeout for each, exactly
// once.
package timeoutdriver

import (
	"time"

	"github.com/probeum/mina-core/common"
)

// RequestKind names a category of pending request with its own
// configured timeout.
type RequestKind string

const (
	KindP2pRpc            RequestKind = "p2p_rpc"
	KindLedgerQuery       RequestKind = "ledger_query"
	KindStagedLedgerParts RequestKind = "staged_ledger_parts"
	KindSnarkVerify       RequestKind = "snark_verify"
	KindBlockApply        RequestKind = "block_apply"
	KindSnarkCommitment   RequestKind = "snark_commitment"
)

// pendingKey identifies one outstanding request within a kind.
type pendingKey struct {
	Kind RequestKind
	ID   uint64
}

// entry is one tracked pending request.
type entry struct {
	Peer    common.PeerID
	Started time.Time
}

// Driver tracks every pending request across all kinds and, on
// CheckTimeouts, reports every one that has aged past its kind's
// configured timeout.
type Driver struct {
	timeouts map[RequestKind]time.Duration
	pending  map[pendingKey]*entry
}

// New returns a Driver using the given per-kind timeouts; a kind with no
// configured entry never times out.
func New(timeouts map[RequestKind]time.Duration) *Driver {
	return &Driver{
		timeouts: timeouts,
		pending:  make(map[pendingKey]*entry),
	}
}

// Track begins tracking a pending request of the given kind and id,
// started at now, attributed to peer (zero PeerID for non-peer requests
// such as ledger or snark-verify calls).
func (d *Driver) Track(kind RequestKind, id uint64, peer common.PeerID, now time.Time) {
	d.pending[pendingKey{Kind: kind, ID: id}] = &entry{Peer: peer, Started: now}
}

// Resolve stops tracking a pending request once its reply arrives,
// before it times out. Returns false if it was not tracked.
func (d *Driver) Resolve(kind RequestKind, id uint64) bool {
	key := pendingKey{Kind: kind, ID: id}
	if _, ok := d.pending[key]; !ok {
		return false
	}
	delete(d.pending, key)
	return true
}

// Expired is one request the most recent CheckTimeouts found past its
// deadline.
type Expired struct {
	Kind RequestKind
	ID   uint64
	Peer common.PeerID
}

// CheckTimeouts scans every pending request and returns those whose age
// exceeds their kind's configured timeout. The expired entry is removed
// from pending on the first report, so a second CheckTimeouts call at a
// later time is idempotent: there is nothing left to re-report.
func (d *Driver) CheckTimeouts(now time.Time) []Expired {
	var out []Expired
	for key, e := range d.pending {
		timeout, configured := d.timeouts[key.Kind]
		if !configured {
			continue
		}
		if now.Sub(e.Started) > timeout {
			out = append(out, Expired{Kind: key.Kind, ID: key.ID, Peer: e.Peer})
			delete(d.pending, key)
		}
	}
	return out
}

// Len reports how many requests are currently pending across all kinds.
func (d *Driver) Len() int { return len(d.pending) }
