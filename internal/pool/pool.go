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

// Package pool implements DistributedPool, the ordered-by-insertion,
// content-keyed container shared by the snark-work pool and the
// transaction pool. Entries are addressed two ways: by an ever-increasing
// insertion sequence (for gossip cursors) and by a content key (for
// dedup/lookup); both pool flavours embed this generic container instead of
// reimplementing the bookkeeping.
package pool

import (
	"sort"
)

// Keyed is implemented by values stored in a DistributedPool so the pool
// can recover a value's content key without a separate argument at Insert
// time.
type Keyed[K comparable] interface {
	Key() K
}

// DistributedPool is an insertion-ordered, content-addressed container.
// The zero value is ready to use. Invariants:
//
//	(i)   bySeq.keys() == byKey.values()
//	(ii)  counter is monotonic, saturating at math.MaxUint64
//	(iii) keys are unique
//	(iv)  removing a key removes its sequence entry atomically
type DistributedPool[K comparable, V Keyed[K]] struct {
	counter uint64
	bySeq   map[uint64]V
	byKey   map[K]uint64
	seqs    []uint64 // kept sorted ascending; mirrors bySeq's key set
}

// New returns an empty pool.
func New[K comparable, V Keyed[K]]() *DistributedPool[K, V] {
	return &DistributedPool[K, V]{
		bySeq: make(map[uint64]V),
		byKey: make(map[K]uint64),
	}
}

// Len reports the number of entries currently held.
func (p *DistributedPool[K, V]) Len() int { return len(p.bySeq) }

// Contains reports whether key is present.
func (p *DistributedPool[K, V]) Contains(key K) bool {
	_, ok := p.byKey[key]
	return ok
}

// Get returns the entry for key, if any.
func (p *DistributedPool[K, V]) Get(key K) (V, bool) {
	seq, ok := p.byKey[key]
	if !ok {
		var zero V
		return zero, false
	}
	v, ok := p.bySeq[seq]
	return v, ok
}

// LastSeq returns the highest sequence number currently present, or 0 if
// the pool is empty.
func (p *DistributedPool[K, V]) LastSeq() uint64 {
	if len(p.seqs) == 0 {
		return 0
	}
	return p.seqs[len(p.seqs)-1]
}

// NextSeq returns the sequence number the next Insert will use.
func (p *DistributedPool[K, V]) NextSeq() uint64 { return p.counter }

// Insert adds value under its own key. If the key already exists, the old
// entry is removed and value is reinserted at a fresh sequence number at
// the tail: a replacement must become visible to peers whose gossip
// cursor has already advanced past the old sequence.
func (p *DistributedPool[K, V]) Insert(value V) uint64 {
	key := value.Key()
	if oldSeq, ok := p.byKey[key]; ok {
		delete(p.bySeq, oldSeq)
		p.removeSeq(oldSeq)
	}
	seq := p.counter
	p.bySeq[seq] = value
	p.byKey[key] = seq
	p.insertSeq(seq)
	p.counter = saturatingInc(p.counter)
	return seq
}

// Update applies f to the entry for key in place and returns whether the
// key was found.
func (p *DistributedPool[K, V]) Update(key K, f func(v V) V) bool {
	seq, ok := p.byKey[key]
	if !ok {
		return false
	}
	p.bySeq[seq] = f(p.bySeq[seq])
	return true
}

// Remove deletes the entry for key, returning it if present. Removal drops
// both the byKey and bySeq entries atomically (invariant iv).
func (p *DistributedPool[K, V]) Remove(key K) (V, bool) {
	seq, ok := p.byKey[key]
	if !ok {
		var zero V
		return zero, false
	}
	v := p.bySeq[seq]
	delete(p.byKey, key)
	delete(p.bySeq, seq)
	p.removeSeq(seq)
	return v, true
}

// Retain keeps only entries for which keep returns true, removing the rest
// and preserving bySeq/byKey symmetry.
func (p *DistributedPool[K, V]) Retain(keep func(key K, v V) bool) {
	var toRemove []K
	for key, seq := range p.byKey {
		if !keep(key, p.bySeq[seq]) {
			toRemove = append(toRemove, key)
		}
	}
	for _, key := range toRemove {
		p.Remove(key)
	}
}

// Values returns every value currently stored, ordered by insertion
// sequence ascending.
func (p *DistributedPool[K, V]) Values() []V {
	out := make([]V, 0, len(p.seqs))
	for _, seq := range p.seqs {
		out = append(out, p.bySeq[seq])
	}
	return out
}

// Range invokes f for every (seq, value) pair with seq in [from, to), in
// ascending order. f returning false stops the scan early.
func (p *DistributedPool[K, V]) Range(from, to uint64, f func(seq uint64, v V) bool) {
	idx := sort.Search(len(p.seqs), func(i int) bool { return p.seqs[i] >= from })
	for ; idx < len(p.seqs) && p.seqs[idx] < to; idx++ {
		if !f(p.seqs[idx], p.bySeq[p.seqs[idx]]) {
			return
		}
	}
}

// NextToSend walks entries with sequence >= cursor.From, collecting up to
// cursor.Limit items for which extract yields a value, and returns the
// items plus two sequences: first is the sequence of the first item
// returned (entries skipped before it are not counted; from-1 when no
// item is returned), and last is the last sequence visited, so the
// caller's cursor can advance monotonically even when intermediate
// entries are skipped.
//
// Boundary behavior: an empty pool, or Limit == 0, returns
// (nil, from-1, from-1) with from saturating at 0.
func (p *DistributedPool[K, V]) NextToSend(cursor Cursor, extract func(v V) (interface{}, bool)) ([]interface{}, uint64, uint64) {
	fromMinusOne := saturatingDec(cursor.From)
	if cursor.Limit == 0 || len(p.seqs) == 0 {
		return nil, fromMinusOne, fromMinusOne
	}

	idx := sort.Search(len(p.seqs), func(i int) bool { return p.seqs[i] >= cursor.From })
	var (
		out       []interface{}
		firstSeen bool
		first     uint64
		last      uint64
	)
	for ; idx < len(p.seqs); idx++ {
		seq := p.seqs[idx]
		if data, ok := extract(p.bySeq[seq]); ok {
			if !firstSeen {
				first = seq
				firstSeen = true
			}
			out = append(out, data)
			last = seq
			if len(out) >= int(cursor.Limit) {
				return out, first, last
			}
		}
	}
	if !firstSeen {
		return nil, fromMinusOne, p.LastSeq()
	}
	return out, first, p.LastSeq()
}

// Cursor is a peer's gossip replication position: the next sequence number
// it has not yet seen, and how many matching items to return per poll.
type Cursor struct {
	From  uint64
	Limit uint8
}

func (p *DistributedPool[K, V]) insertSeq(seq uint64) {
	// counter is monotonically increasing so the common case is an append;
	// fall back to a binary-search insert to keep the invariant under
	// replay of out-of-order test data.
	if len(p.seqs) == 0 || seq > p.seqs[len(p.seqs)-1] {
		p.seqs = append(p.seqs, seq)
		return
	}
	i := sort.Search(len(p.seqs), func(i int) bool { return p.seqs[i] >= seq })
	p.seqs = append(p.seqs, 0)
	copy(p.seqs[i+1:], p.seqs[i:])
	p.seqs[i] = seq
}

func (p *DistributedPool[K, V]) removeSeq(seq uint64) {
	i := sort.Search(len(p.seqs), func(i int) bool { return p.seqs[i] >= seq })
	if i < len(p.seqs) && p.seqs[i] == seq {
		p.seqs = append(p.seqs[:i], p.seqs[i+1:]...)
	}
}

func saturatingInc(v uint64) uint64 {
	if v == ^uint64(0) {
		return v
	}
	return v + 1
}

func saturatingDec(v uint64) uint64 {
	if v == 0 {
		return 0
	}
	return v - 1
}
