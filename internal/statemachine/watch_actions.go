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

package statemachine

import (
	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/action"
	"github.com/probeum/mina-core/internal/service"
	"github.com/probeum/mina-core/internal/timeoutdriver"
)

// WatchSubscribe begins tracking a public key, issuing its initial
// account-state query against the ledger service.
type WatchSubscribe struct {
	PubKey common.Hash
	ReqID  service.RequestID
}

func (WatchSubscribe) Kind() string { return "WatchSubscribe" }

// WatchUnsubscribe stops tracking a public key.
type WatchUnsubscribe struct{ PubKey common.Hash }

func (WatchUnsubscribe) Kind() string { return "WatchUnsubscribe" }

// WatchInitialStateResolved delivers the initial account-snapshot reply.
type WatchInitialStateResolved struct {
	PubKey common.Hash
	ReqID  service.RequestID
	OK     bool
}

func (WatchInitialStateResolved) Kind() string { return "WatchInitialStateResolved" }

// WatchSnapshotRequested issues the follow-up ledger-account query for a
// watched key's most recent unmatched block entry.
type WatchSnapshotRequested struct {
	PubKey common.Hash
	ReqID  service.RequestID
}

func (WatchSnapshotRequested) Kind() string { return "WatchSnapshotRequested" }

// WatchSnapshotResolved delivers the follow-up snapshot reply.
type WatchSnapshotResolved struct {
	PubKey   common.Hash
	ReqID    service.RequestID
	Snapshot interface{}
}

func (WatchSnapshotResolved) Kind() string { return "WatchSnapshotResolved" }

// watchMatchesDrained clears the transient best-tip match handoff once
// every match in it has had its snapshot fetch requested.
type watchMatchesDrained struct{}

func (watchMatchesDrained) Kind() string { return "watchMatchesDrained" }

func registerWatchActions(k *action.Kernel[State]) {
	k.Register(WatchSubscribe{}.Kind(), reduceWatchSubscribe, nil)
	k.Register(WatchUnsubscribe{}.Kind(), reduceWatchUnsubscribe, nil)
	k.Register(WatchInitialStateResolved{}.Kind(), reduceWatchInitialStateResolved, nil)
	k.Register(WatchSnapshotRequested{}.Kind(), reduceWatchSnapshotRequested, nil)
	k.Register(WatchSnapshotResolved{}.Kind(), reduceWatchSnapshotResolved, nil)
	k.Register(watchMatchesDrained{}.Kind(), reduceWatchMatchesDrained, nil)

	k.Effect(BlockApplyCommit{}.Kind(), effectWatchBestTipMatches)
}

func reduceWatchSubscribe(s *State, a action.Action, meta action.Meta) {
	sub := a.(WatchSubscribe)
	if !s.Watches.Subscribe(sub.PubKey, sub.ReqID) {
		return
	}
	s.Timeouts.Track(timeoutdriver.KindLedgerQuery, uint64(sub.ReqID), common.PeerID{}, meta.Time)
}

func reduceWatchUnsubscribe(s *State, a action.Action, _ action.Meta) {
	s.Watches.Unsubscribe(a.(WatchUnsubscribe).PubKey)
}

func reduceWatchInitialStateResolved(s *State, a action.Action, _ action.Meta) {
	r := a.(WatchInitialStateResolved)
	if !s.Watches.ResolveInitialState(r.PubKey, r.OK) {
		return
	}
	s.Timeouts.Resolve(timeoutdriver.KindLedgerQuery, uint64(r.ReqID))
}

func reduceWatchSnapshotRequested(s *State, a action.Action, meta action.Meta) {
	r := a.(WatchSnapshotRequested)
	if !s.Watches.RequestSnapshot(r.PubKey, r.ReqID) {
		return
	}
	s.Timeouts.Track(timeoutdriver.KindLedgerQuery, uint64(r.ReqID), common.PeerID{}, meta.Time)
}

func reduceWatchSnapshotResolved(s *State, a action.Action, _ action.Meta) {
	r := a.(WatchSnapshotResolved)
	if !s.Watches.ResolveSnapshot(r.PubKey, r.ReqID, r.Snapshot) {
		return
	}
	s.Timeouts.Resolve(timeoutdriver.KindLedgerQuery, uint64(r.ReqID))
}

func reduceWatchMatchesDrained(s *State, _ action.Action, _ action.Meta) {
	s.PendingWatchMatches = nil
}

// effectWatchBestTipMatches requests a snapshot for every watched key
// BlockApplyCommit's reducer found touched by the newly-committed chain.
// The per-key request id is derived from the key itself rather than
// meta.ID, since every match dispatched from this one action shares a
// single meta.
func effectWatchBestTipMatches(s *State, _ action.Action, _ action.Meta, dispatch action.Dispatch) {
	for _, pubKey := range s.PendingWatchMatches {
		dispatch(WatchSnapshotRequested{PubKey: pubKey, ReqID: service.RequestID(idFromHash(pubKey))})
	}
	dispatch(watchMatchesDrained{})
}
