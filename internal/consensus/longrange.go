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

package consensus

// MinWindowDensity is the per-sub-window block-production count sequence
// Ouroboros Samasika attaches to a chain for long-range fork choice: one
// entry per sub-window in the chain's projected density window, oldest
// first. The exact comparator is protocol-defined and published only as
// reference code, so this is a best-effort reimplementation that must be
// cross-checked against a reference client before being relied on for
// mainnet consensus; see DESIGN.md.
type MinWindowDensity []uint32

// min returns the smallest value, or 0 for an empty sequence.
func (d MinWindowDensity) min() uint32 {
	if len(d) == 0 {
		return 0
	}
	m := d[0]
	for _, v := range d[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Cmp compares two density sequences by their minimum sub-window density,
// the quantity Ouroboros Samasika uses to bound an adversary's ability to
// build a long private fork: 1 if d has the higher floor, -1 if lower, 0 on
// an exact tie of the minimum (the caller then falls through to the
// standard VRF/state-hash tie-break, same as short-range).
func (d MinWindowDensity) Cmp(other MinWindowDensity) int {
	dm, om := d.min(), other.min()
	switch {
	case dm > om:
		return 1
	case dm < om:
		return -1
	default:
		return 0
	}
}

// LongRange applies the long-range take rule: compare
// min-window density sequences, take the candidate iff its density
// strictly exceeds the tip's; on an exact density tie, fall back to the
// same VRF-then-state-hash tie-break short-range uses, since Samasika
// still needs a total order over blocks sharing one density floor.
func LongRange(tip BlockSummary, candidate BlockSummary) Decision {
	switch candidate.MinWindowDensity.Cmp(tip.MinWindowDensity) {
	case 1:
		return Decision{Kind: Take, Reason: ReasonHigherMinWindowDensity}
	case -1:
		return Decision{Kind: Keep, Reason: ReasonLowerMinWindowDensity}
	}

	switch candidate.LastVrfOutput.Cmp(tip.LastVrfOutput) {
	case 1:
		return Decision{Kind: Take, Reason: ReasonBiggerVrf}
	case -1:
		return Decision{Kind: Keep, Reason: ReasonSmallerVrf}
	}

	switch candidate.Hash.Cmp(tip.Hash) {
	case 1:
		return Decision{Kind: Take, Reason: ReasonTieBreakerBiggerStateHash}
	default:
		return Decision{Kind: Keep, Reason: ReasonTieBreakerSmallerStateHash}
	}
}
