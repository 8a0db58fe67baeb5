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

// Package consensus implements the fork-choice decider: classifying a
// candidate block against the current best tip under Ouroboros Samasika's
// short-range and long-range rules.
package consensus

import "github.com/probeum/mina-core/common"

// Reason enumerates every tie-break outcome the decider can report. Exactly
// one always applies; ties are structurally impossible because the chain
// of comparisons is total.
type Reason int

const (
	ReasonNoBestTip Reason = iota
	ReasonLongerChain
	ReasonBiggerVrf
	ReasonTieBreakerBiggerStateHash
	ReasonShorterChain
	ReasonSmallerVrf
	ReasonTieBreakerSmallerStateHash
	ReasonHigherMinWindowDensity
	ReasonLowerMinWindowDensity
)

func (r Reason) String() string {
	switch r {
	case ReasonNoBestTip:
		return "NoBestTip"
	case ReasonLongerChain:
		return "LongerChain"
	case ReasonBiggerVrf:
		return "BiggerVrf"
	case ReasonTieBreakerBiggerStateHash:
		return "TieBreakerBiggerStateHash"
	case ReasonShorterChain:
		return "ShorterChain"
	case ReasonSmallerVrf:
		return "SmallerVrf"
	case ReasonTieBreakerSmallerStateHash:
		return "TieBreakerSmallerStateHash"
	case ReasonHigherMinWindowDensity:
		return "HigherMinWindowDensity"
	case ReasonLowerMinWindowDensity:
		return "LowerMinWindowDensity"
	default:
		return "Unknown"
	}
}

// DecisionKind distinguishes adopting the candidate from keeping the
// current best tip.
type DecisionKind int

const (
	Take DecisionKind = iota
	Keep
)

// Decision is the fork-choice decider's verdict for one candidate.
type Decision struct {
	Kind   DecisionKind
	Reason Reason
}

func (d Decision) UseAsBestTip() bool { return d.Kind == Take }

func (d Decision) String() string {
	switch d.Kind {
	case Take:
		return "Take(" + d.Reason.String() + ")"
	default:
		return "Keep(" + d.Reason.String() + ")"
	}
}

// BlockSummary is the subset of a header the decider needs: enough to
// resolve both short-range and long-range comparisons without pulling in
// the full protocol state.
type BlockSummary struct {
	Hash             common.Hash
	ParentHash       common.Hash
	Height           uint32
	LastVrfOutput    common.VrfOutput
	MinWindowDensity MinWindowDensity

	// SnarkedLedgerHash and StagedLedgerHash are the sync targets a
	// transition-frontier sync converges toward once this summary is
	// adopted as the best tip; the decider itself never
	// reads them.
	SnarkedLedgerHash common.Hash
	StagedLedgerHash  common.Hash
}

// K is the protocol finality depth constant consumed throughout this
// package; the embedding program supplies its network's value.
type Params struct {
	K uint32

	// LedgerDepth is the snarked ledger's Merkle tree depth, used to size a
	// transition-frontier sync's BFS; it plays no part in the
	// fork-choice decision itself.
	LedgerDepth uint8
}
