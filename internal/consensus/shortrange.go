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

// ShortRange applies the priority-ordered short-range take rule: no best
// tip, then longer chain, then bigger VRF, then bigger state hash. A nil
// tip means no best tip exists yet.
func ShortRange(tip *BlockSummary, candidate BlockSummary) Decision {
	if tip == nil {
		return Decision{Kind: Take, Reason: ReasonNoBestTip}
	}

	switch {
	case candidate.Height > tip.Height:
		return Decision{Kind: Take, Reason: ReasonLongerChain}
	case candidate.Height < tip.Height:
		return Decision{Kind: Keep, Reason: ReasonShorterChain}
	}

	// Equal length: break on VRF output.
	switch candidate.LastVrfOutput.Cmp(tip.LastVrfOutput) {
	case 1:
		return Decision{Kind: Take, Reason: ReasonBiggerVrf}
	case -1:
		return Decision{Kind: Keep, Reason: ReasonSmallerVrf}
	}

	// Equal length, equal VRF: break on state hash.
	switch candidate.Hash.Cmp(tip.Hash) {
	case 1:
		return Decision{Kind: Take, Reason: ReasonTieBreakerBiggerStateHash}
	default:
		// candidate.Hash <= tip.Hash; equality cannot occur for distinct
		// blocks (content-addressed), so this is strictly "smaller".
		return Decision{Kind: Keep, Reason: ReasonTieBreakerSmallerStateHash}
	}
}
