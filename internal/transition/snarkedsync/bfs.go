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

// Package snarkedsync materializes a target block's snarked Merkle tree by
// BFS: fetching subtree hashes level by level, validating each against its
// already-known parent, descending on success and retrying with a
// different peer on failure.
package snarkedsync

import (
	"time"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/service"
)

// AttemptKind is the state of one (address, peer) query.
type AttemptKind int

const (
	AttemptPending AttemptKind = iota
	AttemptError
)

// Attempt records one peer's query against one address.
type Attempt struct {
	Kind      AttemptKind
	RequestID service.RequestID
	Since     time.Time
}

// addrState tracks every attempt made against one Merkle address, plus the
// hash it is already known to need to equal (supplied by its parent's
// resolution, or the sync target for the root).
type addrState struct {
	expected common.Hash
	attempts map[common.PeerID]Attempt
}

// Hasher combines two child hashes into their parent's hash. The concrete
// implementation (blake2b over the domain-specific Merkle node encoding)
// lives with the ledger service; this package only ever compares against
// it, never computes tree hashes of its own accord.
type Hasher interface {
	CombineChildren(left, right common.Hash) common.Hash
}

// BFSSync materializes one target's snarked Merkle tree. It is not safe
// for concurrent use.
type BFSSync struct {
	target common.Hash
	depth  uint8
	hasher Hasher

	// The sync opens with a num-accounts query so the walk knows the
	// populated extent of the tree before fetching any hashes.
	numAccountsKnown bool
	numRequested     bool
	numAccounts      uint64

	frontier []service.MerkleAddress
	pending  map[service.MerkleAddress]*addrState

	// Leaf subtrees whose hash is known descend into an account-batch
	// fetch instead of further hash queries; the received batch must hash
	// back to the leaf's already-known value.
	accountFrontier []service.MerkleAddress
	pendingAccounts map[service.MerkleAddress]*addrState

	resolved map[service.MerkleAddress]common.Hash

	done bool
	err  error
}

// New starts a BFS sync toward a Merkle tree of the given depth whose root
// must equal target. The frontier begins at the root's two children,
// since the root's own hash is already known (it is the sync target).
func New(target common.Hash, depth uint8, hasher Hasher) *BFSSync {
	b := &BFSSync{
		target:          target,
		depth:           depth,
		hasher:          hasher,
		pending:         make(map[service.MerkleAddress]*addrState),
		pendingAccounts: make(map[service.MerkleAddress]*addrState),
		resolved:        make(map[service.MerkleAddress]common.Hash),
	}
	root := service.MerkleAddress{}
	b.resolved[root] = target
	if depth == 0 {
		b.numAccountsKnown = true
		b.done = true
		return b
	}
	b.frontier = append(b.frontier, root)
	return b
}

// NeedsNumAccounts reports whether the opening num-accounts query is still
// outstanding; until it resolves, no hash query is issued.
func (b *BFSSync) NeedsNumAccounts() bool { return !b.numAccountsKnown }

// NumAccountsRequested reports whether the opening query is claimed.
func (b *BFSSync) NumAccountsRequested() bool { return b.numRequested }

// MarkNumAccountsRequested claims the single outstanding num-accounts
// query; false if one is already in flight or the count is known.
func (b *BFSSync) MarkNumAccountsRequested() bool {
	if b.numAccountsKnown || b.numRequested {
		return false
	}
	b.numRequested = true
	return true
}

// ResetNumAccountsRequest releases the claim after the serving peer timed
// out, so the query can go to another peer.
func (b *BFSSync) ResetNumAccountsRequest() {
	if !b.numAccountsKnown {
		b.numRequested = false
	}
}

// ResolveNumAccounts records the populated account count. A zero-account
// tree needs no fetching at all: the walk terminates with the root hash
// equal to the configured empty-tree constant the target already is.
func (b *BFSSync) ResolveNumAccounts(n uint64) {
	if b.numAccountsKnown {
		return
	}
	b.numAccountsKnown = true
	b.numAccounts = n
	if n == 0 {
		b.frontier = nil
		b.done = true
	}
}

// NumAccounts returns the resolved account count.
func (b *BFSSync) NumAccounts() uint64 { return b.numAccounts }

// Done reports whether the BFS has terminated (successfully or in error).
func (b *BFSSync) Done() bool { return b.done }

// Err returns the terminal error, if the BFS ended in one.
func (b *BFSSync) Err() error { return b.err }

// RootHash returns the target hash once the BFS has completed
// successfully; the zero-account-ledger boundary case (depth 0) resolves
// immediately to target, which callers expect to be the configured
// empty-hash constant.
func (b *BFSSync) RootHash() common.Hash { return b.target }

// NextPending returns the next frontier address still needing a query, or
// false once the frontier is drained (queries may still be in flight).
func (b *BFSSync) NextPending() (service.MerkleAddress, bool) {
	if len(b.frontier) == 0 {
		return service.MerkleAddress{}, false
	}
	return b.frontier[0], true
}

// availablePeer reports whether peer may be used for addr: no attempt is
// currently Pending, and either no prior attempt exists or every prior
// attempt ended in Error.
func availablePeer(st *addrState, peer common.PeerID) bool {
	a, ok := st.attempts[peer]
	if !ok {
		return true
	}
	return a.Kind == AttemptError
}

// AvailablePeer returns a peer eligible to be queried for addr, per the
// tie-break rule above, in the caller-supplied insertion order: a peer
// never attempted for addr is preferred over one whose attempts errored.
func (b *BFSSync) AvailablePeer(addr service.MerkleAddress, peers []common.PeerID) (common.PeerID, bool) {
	st := b.pending[addr]
	if st == nil {
		st = &addrState{attempts: make(map[common.PeerID]Attempt)}
	}
	for _, p := range peers {
		if _, tried := st.attempts[p]; !tried {
			return p, true
		}
	}
	for _, p := range peers {
		if availablePeer(st, p) {
			return p, true
		}
	}
	return common.PeerID{}, false
}

// IssueQuery records that addr has an in-flight query against peer,
// popping addr off the frontier (it remains tracked via pending until
// resolved). At most one outstanding query per (addr, peer) is enforced by
// overwriting any prior (necessarily Errored) attempt entry.
func (b *BFSSync) IssueQuery(addr service.MerkleAddress, peer common.PeerID, reqID service.RequestID, now time.Time) {
	st := b.pending[addr]
	if st == nil {
		st = &addrState{expected: b.resolved[addr], attempts: make(map[common.PeerID]Attempt)}
		b.pending[addr] = st
	}
	st.attempts[peer] = Attempt{Kind: AttemptPending, RequestID: reqID, Since: now}

	for i, a := range b.frontier {
		if a == addr {
			b.frontier = append(b.frontier[:i], b.frontier[i+1:]...)
			break
		}
	}
}

// ResolveChildren delivers a peer's reply for an internal-node query:
// left and right are the claimed hashes of addr's two children. If they
// combine to addr's already-known expected hash, both children are
// accepted and descended into (enqueued on the frontier, or marked
// resolved-without-descent at the leaf depth); otherwise the attempt is
// marked Error and addr returns to the frontier for a retry with a
// different peer.
func (b *BFSSync) ResolveChildren(addr service.MerkleAddress, peer common.PeerID, left, right common.Hash) bool {
	st := b.pending[addr]
	if st == nil {
		return false
	}
	combined := b.hasher.CombineChildren(left, right)
	if combined != st.expected {
		a := st.attempts[peer]
		a.Kind = AttemptError
		st.attempts[peer] = a
		b.requeue(addr)
		return false
	}

	delete(b.pending, addr)
	leftAddr, rightAddr := addr.Child(false), addr.Child(true)
	b.resolved[leftAddr] = left
	b.resolved[rightAddr] = right
	b.enqueueOrFinish(leftAddr)
	b.enqueueOrFinish(rightAddr)
	return true
}

func (b *BFSSync) enqueueOrFinish(addr service.MerkleAddress) {
	if addr.Depth >= b.depth {
		// Leaf reached: the resolved value is the account-batch hash, so
		// the walk descends into an accounts fetch instead of more hash
		// queries.
		b.accountFrontier = append(b.accountFrontier, addr)
		return
	}
	b.frontier = append(b.frontier, addr)
}

// NextPendingAccounts returns the next leaf address still needing an
// account-batch fetch, or false once that frontier is drained.
func (b *BFSSync) NextPendingAccounts() (service.MerkleAddress, bool) {
	if len(b.accountFrontier) == 0 {
		return service.MerkleAddress{}, false
	}
	return b.accountFrontier[0], true
}

// AvailableAccountsPeer mirrors AvailablePeer for the accounts frontier.
func (b *BFSSync) AvailableAccountsPeer(addr service.MerkleAddress, peers []common.PeerID) (common.PeerID, bool) {
	st := b.pendingAccounts[addr]
	if st == nil {
		st = &addrState{attempts: make(map[common.PeerID]Attempt)}
	}
	for _, p := range peers {
		if _, tried := st.attempts[p]; !tried {
			return p, true
		}
	}
	for _, p := range peers {
		if availablePeer(st, p) {
			return p, true
		}
	}
	return common.PeerID{}, false
}

// IssueAccountsQuery records an in-flight account-batch fetch for a leaf,
// popping it off the accounts frontier until resolved.
func (b *BFSSync) IssueAccountsQuery(addr service.MerkleAddress, peer common.PeerID, reqID service.RequestID, now time.Time) {
	st := b.pendingAccounts[addr]
	if st == nil {
		st = &addrState{expected: b.resolved[addr], attempts: make(map[common.PeerID]Attempt)}
		b.pendingAccounts[addr] = st
	}
	st.attempts[peer] = Attempt{Kind: AttemptPending, RequestID: reqID, Since: now}

	for i, a := range b.accountFrontier {
		if a == addr {
			b.accountFrontier = append(b.accountFrontier[:i], b.accountFrontier[i+1:]...)
			break
		}
	}
}

// AccountsRequestFor returns the request id of the pending (leaf, peer)
// account fetch, if one is in flight.
func (b *BFSSync) AccountsRequestFor(addr service.MerkleAddress, peer common.PeerID) (service.RequestID, bool) {
	st := b.pendingAccounts[addr]
	if st == nil {
		return 0, false
	}
	a, ok := st.attempts[peer]
	if !ok || a.Kind != AttemptPending {
		return 0, false
	}
	return a.RequestID, true
}

// ResolveAccounts delivers a peer's account batch for a leaf, as the hash
// the ledger service computed over the received accounts (the batch
// contents themselves go straight to the ledger; only the hash comes back
// here for validation). A batch that does not hash to the leaf's known
// value marks the attempt failed and requeues the leaf for another peer.
func (b *BFSSync) ResolveAccounts(addr service.MerkleAddress, peer common.PeerID, contentHash common.Hash) bool {
	st := b.pendingAccounts[addr]
	if st == nil {
		return false
	}
	if contentHash != st.expected {
		a := st.attempts[peer]
		a.Kind = AttemptError
		st.attempts[peer] = a
		for _, queued := range b.accountFrontier {
			if queued == addr {
				return false
			}
		}
		b.accountFrontier = append(b.accountFrontier, addr)
		return false
	}
	delete(b.pendingAccounts, addr)
	return true
}

func (b *BFSSync) requeue(addr service.MerkleAddress) {
	for _, a := range b.frontier {
		if a == addr {
			return
		}
	}
	b.frontier = append(b.frontier, addr)
}

func (b *BFSSync) requeueAccounts(addr service.MerkleAddress) {
	for _, a := range b.accountFrontier {
		if a == addr {
			return
		}
	}
	b.accountFrontier = append(b.accountFrontier, addr)
}

// FailQuery marks whichever in-flight query reqID identifies as errored
// and requeues its address for another peer; used when the query's peer
// timed out rather than replying. Returns false if no pending query
// matches.
func (b *BFSSync) FailQuery(reqID service.RequestID) bool {
	for addr, st := range b.pending {
		for peer, a := range st.attempts {
			if a.Kind == AttemptPending && a.RequestID == reqID {
				a.Kind = AttemptError
				st.attempts[peer] = a
				b.requeue(addr)
				return true
			}
		}
	}
	for addr, st := range b.pendingAccounts {
		for peer, a := range st.attempts {
			if a.Kind == AttemptPending && a.RequestID == reqID {
				a.Kind = AttemptError
				st.attempts[peer] = a
				b.requeueAccounts(addr)
				return true
			}
		}
	}
	return false
}

// InFlight counts peer's currently-pending queries of both kinds, so
// callers can bound per-peer parallelism before handing it another one.
func (b *BFSSync) InFlight(peer common.PeerID) int {
	n := 0
	for _, st := range b.pending {
		if a, ok := st.attempts[peer]; ok && a.Kind == AttemptPending {
			n++
		}
	}
	for _, st := range b.pendingAccounts {
		if a, ok := st.attempts[peer]; ok && a.Kind == AttemptPending {
			n++
		}
	}
	return n
}

// RequestFor returns the request id of the pending (addr, peer) query, if
// one is in flight.
func (b *BFSSync) RequestFor(addr service.MerkleAddress, peer common.PeerID) (service.RequestID, bool) {
	st := b.pending[addr]
	if st == nil {
		return 0, false
	}
	a, ok := st.attempts[peer]
	if !ok || a.Kind != AttemptPending {
		return 0, false
	}
	return a.RequestID, true
}

// Finalize checks BFS termination: both frontiers are drained and no
// query of either kind is left mid-flight. Returns false (with the sync
// left running) if work remains.
func (b *BFSSync) Finalize() bool {
	if !b.numAccountsKnown {
		return false
	}
	if len(b.frontier) != 0 || len(b.pending) != 0 {
		return false
	}
	if len(b.accountFrontier) != 0 || len(b.pendingAccounts) != 0 {
		return false
	}
	b.done = true
	return true
}
