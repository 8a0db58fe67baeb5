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

// Package frontier holds the shared TransitionFrontier record: the bounded
// chain segment the node tracks, its sync progress, and the bookkeeping
// (blacklist, referenced historical protocol states) that block-apply and
// both ledger-sync phases read and mutate.
package frontier

import (
	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/consensus"
)

// AppliedBlock is one link of best_chain: a header that has been fully
// applied to the staged ledger.
type AppliedBlock struct {
	Hash              common.Hash
	ParentHash        common.Hash
	Height            uint32
	ProtocolState     common.Hash
	SnarkedLedgerHash common.Hash
	StagedLedgerHash  common.Hash
}

// FromBlockSummary builds the applied-chain record a successful commit
// appends, carrying forward the ledger hashes a later sync target needs.
func FromBlockSummary(b consensus.BlockSummary) AppliedBlock {
	return AppliedBlock{
		Hash:              b.Hash,
		ParentHash:        b.ParentHash,
		Height:            b.Height,
		ProtocolState:     b.Hash,
		SnarkedLedgerHash: b.SnarkedLedgerHash,
		StagedLedgerHash:  b.StagedLedgerHash,
	}
}

// Phase names the sub-stage a Pending sync is in.
type Phase int

const (
	PhaseSnarkedLedger Phase = iota
	PhaseStagedLedgerParts
	PhaseStagedLedgerReconstruct
	PhaseBlocksApply
)

func (p Phase) String() string {
	switch p {
	case PhaseSnarkedLedger:
		return "SnarkedLedger"
	case PhaseStagedLedgerParts:
		return "StagedLedgerParts"
	case PhaseStagedLedgerReconstruct:
		return "StagedLedgerReconstruct"
	case PhaseBlocksApply:
		return "BlocksApply"
	default:
		return "Unknown"
	}
}

// SyncKind is the outer sync-state variant.
type SyncKind int

const (
	SyncIdle SyncKind = iota
	SyncPending
	SyncCommitPending
	SyncCommitSuccess
	SyncSynced
)

func (k SyncKind) String() string {
	switch k {
	case SyncIdle:
		return "Idle"
	case SyncPending:
		return "Pending"
	case SyncCommitPending:
		return "CommitPending"
	case SyncCommitSuccess:
		return "CommitSuccess"
	case SyncSynced:
		return "Synced"
	default:
		return "Unknown"
	}
}

// SyncTarget identifies the block a sync is converging toward. ChainProof
// holds a hash path back to the node's current root; nothing in the sync
// reads it, and Retarget restarts from the snarked-ledger phase without
// reusing any ancestor segment of the old sync.
type SyncTarget struct {
	Block      AppliedBlock
	ChainProof []common.Hash
}

// SyncState is the transition frontier's sync-progress variant.
type SyncState struct {
	Kind   SyncKind
	Phase  Phase
	Target SyncTarget
}

// ProtocolStateRefs is a reference-counted set of historical protocol
// state hashes still needed by some applied block's scan-state. Dropping
// to zero references removes an entry; Commit recomputes the set
// from the new chain's scan-state and prunes anything left unreferenced.
type ProtocolStateRefs struct {
	counts map[common.Hash]int
}

// NewProtocolStateRefs returns an empty reference set.
func NewProtocolStateRefs() *ProtocolStateRefs {
	return &ProtocolStateRefs{counts: make(map[common.Hash]int)}
}

// Acquire adds one reference to hash.
func (r *ProtocolStateRefs) Acquire(hash common.Hash) {
	r.counts[hash]++
}

// Release removes one reference to hash, dropping it from the set once
// its count reaches zero.
func (r *ProtocolStateRefs) Release(hash common.Hash) {
	c, ok := r.counts[hash]
	if !ok {
		return
	}
	if c <= 1 {
		delete(r.counts, hash)
		return
	}
	r.counts[hash] = c - 1
}

// Contains reports whether hash currently has at least one reference.
func (r *ProtocolStateRefs) Contains(hash common.Hash) bool {
	return r.counts[hash] > 0
}

// Hashes returns every currently-referenced hash, in no particular order.
func (r *ProtocolStateRefs) Hashes() []common.Hash {
	out := make([]common.Hash, 0, len(r.counts))
	for h := range r.counts {
		out = append(out, h)
	}
	return out
}

// Len reports how many distinct hashes are referenced.
func (r *ProtocolStateRefs) Len() int { return len(r.counts) }

// Recompute replaces the reference set with exactly the hashes in
// referenced, each acquired once; used by Commit to reset the set to what
// the freshly-applied chain's scan-state actually needs.
func (r *ProtocolStateRefs) Recompute(referenced []common.Hash) {
	r.counts = make(map[common.Hash]int, len(referenced))
	for _, h := range referenced {
		r.counts[h]++
	}
}

// TransitionFrontier is the node's bounded view of the chain: the best
// chain segment, current sync progress, a blacklist of blocks that failed
// to apply, and the historical protocol states still referenced by the
// applied chain's scan-state.
type TransitionFrontier struct {
	BestChain            []AppliedBlock
	Sync                 SyncState
	Blacklist            map[common.Hash]uint32
	NeededProtocolStates *ProtocolStateRefs
}

// New returns an empty transition frontier in SyncIdle.
func New() *TransitionFrontier {
	return &TransitionFrontier{
		Blacklist:            make(map[common.Hash]uint32),
		NeededProtocolStates: NewProtocolStateRefs(),
	}
}

// BestTip returns the current chain head, or false if the chain is empty.
func (f *TransitionFrontier) BestTip() (AppliedBlock, bool) {
	if len(f.BestChain) == 0 {
		return AppliedBlock{}, false
	}
	return f.BestChain[len(f.BestChain)-1], true
}

// Blacklisted reports whether hash is currently blacklisted.
func (f *TransitionFrontier) Blacklisted(hash common.Hash) bool {
	_, ok := f.Blacklist[hash]
	return ok
}

// BlacklistBlock records a failed-apply block, keyed by hash with its
// height so it can later be pruned once k slots below the tip.
func (f *TransitionFrontier) BlacklistBlock(hash common.Hash, height uint32) {
	f.Blacklist[hash] = height
}

// PruneBlacklist drops blacklist entries older than k slots below
// tipHeight.
func (f *TransitionFrontier) PruneBlacklist(tipHeight uint32, k uint32) {
	threshold := int64(tipHeight) - int64(k)
	for hash, height := range f.Blacklist {
		if int64(height) < threshold {
			delete(f.Blacklist, hash)
		}
	}
}

// BeginSync starts (or restarts) a sync toward target at the given phase,
// discarding any in-flight sub-phase state.
func (f *TransitionFrontier) BeginSync(target SyncTarget, phase Phase) {
	f.Sync = SyncState{Kind: SyncPending, Phase: phase, Target: target}
}

// Retarget restarts an in-flight sync toward a new, strictly-better
// target; nothing partially applied under the old target is committed.
// It is a no-op unless a sync is already Pending.
func (f *TransitionFrontier) Retarget(target SyncTarget) bool {
	if f.Sync.Kind != SyncPending {
		return false
	}
	f.Sync = SyncState{Kind: SyncPending, Phase: PhaseSnarkedLedger, Target: target}
	return true
}

// AdvancePhase moves an in-flight Pending sync to the next sub-phase.
func (f *TransitionFrontier) AdvancePhase(phase Phase) bool {
	if f.Sync.Kind != SyncPending {
		return false
	}
	f.Sync.Phase = phase
	return true
}

// BeginCommit marks the sync as ready to commit once block-apply succeeds.
func (f *TransitionFrontier) BeginCommit() bool {
	if f.Sync.Kind != SyncPending || f.Sync.Phase != PhaseBlocksApply {
		return false
	}
	f.Sync.Kind = SyncCommitPending
	return true
}

// Commit atomically replaces best_chain with newChain and prunes
// NeededProtocolStates to exactly what the new chain references.
func (f *TransitionFrontier) Commit(newChain []AppliedBlock, referencedProtocolStates []common.Hash) {
	f.BestChain = newChain
	f.NeededProtocolStates.Recompute(referencedProtocolStates)
	f.Sync = SyncState{Kind: SyncSynced}
}

// RevertToSynced aborts an in-flight apply after a block failed, reverting
// to Synced at the current (unchanged) tip.
func (f *TransitionFrontier) RevertToSynced() {
	f.Sync = SyncState{Kind: SyncSynced}
}

// ShortRangeAncestor implements consensus.AncestryChecker against the
// frontier's own best_chain: candidate is short-range of tip iff
// candidate's parent is tip itself, or tip's ancestry within the last k
// applied blocks reaches a hash candidate's chain also passes through.
// Since the frontier only ever holds one chain (it has no notion of the
// candidate's ancestors beyond candidate itself), the practical test is
// whether candidate's parent appears among the last k entries of
// best_chain counting back from tip.
func (f *TransitionFrontier) ShortRangeAncestor(tip, candidate consensus.BlockSummary, k uint32) bool {
	if candidate.ParentHash == tip.Hash {
		return true
	}
	n := len(f.BestChain)
	if n == 0 {
		return false
	}
	limit := int(k)
	if limit > n {
		limit = n
	}
	for i := 0; i < limit; i++ {
		if f.BestChain[n-1-i].Hash == candidate.ParentHash {
			return true
		}
	}
	return false
}
