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

// AncestryChecker answers the question of whether two chains share a
// common ancestor no more than k blocks back from their respective tips.
// The decider needs this to classify a candidate as short-range or
// long-range; it has no chain storage of its own, so the caller (the
// transition frontier) supplies it.
type AncestryChecker interface {
	ShortRangeAncestor(tipHash, candidateHash BlockSummary, k uint32) bool
}

// Decide classifies candidate against tip and applies the matching
// fork-choice rule. A nil tip always shortcuts to ReasonNoBestTip via
// the short-range rule.
func Decide(tip *BlockSummary, candidate BlockSummary, params Params, ancestry AncestryChecker) Decision {
	if tip == nil {
		return ShortRange(nil, candidate)
	}

	if isShortRange(*tip, candidate, params, ancestry) {
		return ShortRange(tip, candidate)
	}
	return LongRange(*tip, candidate)
}

// IsShortRange reports which rule Decide would apply for the same
// arguments, so a caller that needs to record the fork-range
// classification separately from the decision itself (for example to move
// a tracked candidate into a distinct per-range state) does not have to
// duplicate the test.
func IsShortRange(tip *BlockSummary, candidate BlockSummary, params Params, ancestry AncestryChecker) bool {
	if tip == nil {
		return true
	}
	return isShortRange(*tip, candidate, params, ancestry)
}

// isShortRange implements the range test: the two tips must be within 2k
// of each in height, and must share an ancestor within k of both — the
// window inside which Ouroboros Samasika's density argument still bounds an
// adversary, beyond which only the long-range min-window-density rule is
// safe to apply.
func isShortRange(tip, candidate BlockSummary, params Params, ancestry AncestryChecker) bool {
	diff := heightDiff(tip.Height, candidate.Height)
	if diff > 2*params.K {
		return false
	}
	if ancestry == nil {
		return false
	}
	return ancestry.ShortRangeAncestor(tip, candidate, params.K)
}

func heightDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
