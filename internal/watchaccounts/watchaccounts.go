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

// Package watchaccounts tracks the per-public-key subscriptions a client
// has asked the node to follow, appending a block entry whenever the
// staged-ledger diff at a new best tip mentions that key.
package watchaccounts

import (
	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/gevent"
	"github.com/probeum/mina-core/internal/service"
)

// InitialStateStatus is the lifecycle of the one-time account snapshot
// fetched when a key is first watched.
type InitialStateStatus int

const (
	InitialStateIdle InitialStateStatus = iota
	InitialStatePending
	InitialStateError
	InitialStateSuccess
)

// BlockEntry records that a watched key's account was touched in a given
// applied block; Snapshot is filled in by a follow-up ledger-account
// query once the block is known.
type BlockEntry struct {
	BlockHash common.Hash
	Height    uint32
	Snapshot  interface{}
	ReqID     service.RequestID
	HasReqID  bool
}

// Watch is one subscribed public key's tracked state.
type Watch struct {
	InitialState      InitialStateStatus
	InitialStateReqID service.RequestID
	Blocks            []BlockEntry
}

// MatchEvent is sent on BestTip whenever a best-tip update touches a
// watched public key, so an RPC-layer subscriber (outside this package)
// can push the update to its client without polling the tracker.
type MatchEvent struct {
	PubKey    common.Hash
	BlockHash common.Hash
	Height    uint32
}

// Tracker holds every currently-watched public key.
type Tracker struct {
	watches map[common.Hash]*Watch
	BestTip gevent.TypedFeed[MatchEvent]
}

// New returns an empty tracker. Public keys are addressed by common.Hash
// here since the core never interprets key material, only compares it.
func New() *Tracker {
	return &Tracker{watches: make(map[common.Hash]*Watch)}
}

// Subscribe begins tracking pubKey, requesting its initial account state.
// A duplicate subscribe is a no-op.
func (t *Tracker) Subscribe(pubKey common.Hash, reqID service.RequestID) bool {
	if _, ok := t.watches[pubKey]; ok {
		return false
	}
	t.watches[pubKey] = &Watch{InitialState: InitialStatePending, InitialStateReqID: reqID}
	return true
}

// Unsubscribe stops tracking pubKey.
func (t *Tracker) Unsubscribe(pubKey common.Hash) {
	delete(t.watches, pubKey)
}

// Get returns the tracked watch state for pubKey, if subscribed.
func (t *Tracker) Get(pubKey common.Hash) (*Watch, bool) {
	w, ok := t.watches[pubKey]
	return w, ok
}

// ResolveInitialState delivers the initial account-snapshot query's
// reply.
func (t *Tracker) ResolveInitialState(pubKey common.Hash, ok bool) bool {
	w, present := t.watches[pubKey]
	if !present || w.InitialState != InitialStatePending {
		return false
	}
	if ok {
		w.InitialState = InitialStateSuccess
	} else {
		w.InitialState = InitialStateError
	}
	return true
}

// Relevant reports whether a staged-ledger diff touching touchedKeys
// concerns pubKey.
func relevant(pubKey common.Hash, touchedKeys []common.Hash) bool {
	for _, k := range touchedKeys {
		if k == pubKey {
			return true
		}
	}
	return false
}

// OnBestTipUpdate scans the new block's touched-key set against every
// subscription and appends a TransactionsInBlockBody entry (without a
// snapshot yet) for every watch it matches.
func (t *Tracker) OnBestTipUpdate(block common.Hash, height uint32, touchedKeys []common.Hash) []common.Hash {
	var matched []common.Hash
	for pubKey, w := range t.watches {
		if !relevant(pubKey, touchedKeys) {
			continue
		}
		w.Blocks = append(w.Blocks, BlockEntry{BlockHash: block, Height: height})
		matched = append(matched, pubKey)
		t.BestTip.Send(MatchEvent{PubKey: pubKey, BlockHash: block, Height: height})
	}
	return matched
}

// RequestSnapshot issues the follow-up ledger-account query for the most
// recent block entry of pubKey that still lacks one.
func (t *Tracker) RequestSnapshot(pubKey common.Hash, reqID service.RequestID) bool {
	w, ok := t.watches[pubKey]
	if !ok {
		return false
	}
	for i := len(w.Blocks) - 1; i >= 0; i-- {
		if w.Blocks[i].Snapshot == nil && !w.Blocks[i].HasReqID {
			w.Blocks[i].ReqID = reqID
			w.Blocks[i].HasReqID = true
			return true
		}
	}
	return false
}

// ResolveSnapshot fills in the account snapshot for the block entry
// matching reqID.
func (t *Tracker) ResolveSnapshot(pubKey common.Hash, reqID service.RequestID, snapshot interface{}) bool {
	w, ok := t.watches[pubKey]
	if !ok {
		return false
	}
	for i := range w.Blocks {
		if w.Blocks[i].HasReqID && w.Blocks[i].ReqID == reqID {
			w.Blocks[i].Snapshot = snapshot
			return true
		}
	}
	return false
}
