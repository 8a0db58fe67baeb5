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

package pool

import "time"

// RebroadcastPolicy governs how often a locally-originated pool entry (a
// transaction the node's own wallet produced, or a snark-work commitment
// the node's own prover produced) is re-announced while it has not yet been
// seen to be satisfied. Shared by the transaction pool and the snark-work
// pool: re-announced every 10 minutes, up to 5 times.
type RebroadcastPolicy struct {
	Interval time.Duration
	MaxTries int
}

// DefaultRebroadcastPolicy matches the configuration defaults.
var DefaultRebroadcastPolicy = RebroadcastPolicy{Interval: 10 * time.Minute, MaxTries: 5}

// RebroadcastState tracks one entry's rebroadcast progress.
type RebroadcastState struct {
	LastSent time.Time
	Tries    int
}

// ShouldRebroadcast reports whether, at now, the entry described by st is
// due for another announcement under policy, and whether it has any
// attempts left at all.
func (policy RebroadcastPolicy) ShouldRebroadcast(st RebroadcastState, now time.Time) bool {
	if st.Tries >= policy.MaxTries {
		return false
	}
	if st.Tries == 0 {
		return true
	}
	return now.Sub(st.LastSent) >= policy.Interval
}

// Advance records that a rebroadcast happened at now.
func (policy RebroadcastPolicy) Advance(st RebroadcastState, now time.Time) RebroadcastState {
	return RebroadcastState{LastSent: now, Tries: st.Tries + 1}
}
