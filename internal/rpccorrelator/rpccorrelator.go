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

// Package rpccorrelator matches outstanding collaborator requests (peer
// RPCs and in-process ledger reads) back to the caller that issued them.
// Every responder is one variant of a closed, typed union rather than a
// dynamically-downcast opaque value, so delivery is fully typed.
package rpccorrelator

import (
	"github.com/probeum/mina-core/common"
)

// RpcID identifies one pending request; monotonically increasing.
type RpcID uint64

// ResponderKind tags which variant a Responder holds.
type ResponderKind int

const (
	ResponderStateGet ResponderKind = iota
	ResponderWorkerCommit
	ResponderLedgerRead
	ResponderBlockQuery
)

// Responder is a closed, tagged union of every kind of caller this
// correlator can notify. Exactly one channel field is non-nil, matching
// Kind.
type Responder struct {
	Kind ResponderKind

	StateGet     chan<- interface{}
	WorkerCommit chan<- interface{}
	LedgerRead   chan<- interface{}
	BlockQuery   chan<- interface{}
}

// Correlator tracks pending responders by rpc id.
type Correlator struct {
	nextID  RpcID
	pending map[RpcID]Responder
}

// New returns an empty correlator.
func New() *Correlator {
	return &Correlator{pending: make(map[RpcID]Responder)}
}

// Add registers responder and returns its fresh, monotonically-increasing
// rpc id.
func (c *Correlator) Add(responder Responder) RpcID {
	id := c.nextID
	c.nextID++
	c.pending[id] = responder
	return id
}

// Remove deletes and returns the responder for id, if any.
func (c *Correlator) Remove(id RpcID) (Responder, bool) {
	r, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return r, ok
}

// Get returns the responder for id without removing it, for streaming
// responses that expect more than one reply.
func (c *Correlator) Get(id RpcID) (Responder, bool) {
	r, ok := c.pending[id]
	return r, ok
}

// RespondStateGet delivers a state-get reply. Returns common.ErrUnknownRpcID
// if id is not pending, without side effects, or
// common.ErrUnexpectedResponseType if the pending responder is a
// different variant.
func (c *Correlator) RespondStateGet(id RpcID, payload interface{}) error {
	r, ok := c.pending[id]
	if !ok {
		return common.ErrUnknownRpcID
	}
	if r.Kind != ResponderStateGet {
		return common.ErrUnexpectedResponseType
	}
	delete(c.pending, id)
	r.StateGet <- payload
	return nil
}

// RespondWorkerCommit delivers a worker-commit reply, same contract as
// RespondStateGet.
func (c *Correlator) RespondWorkerCommit(id RpcID, payload interface{}) error {
	r, ok := c.pending[id]
	if !ok {
		return common.ErrUnknownRpcID
	}
	if r.Kind != ResponderWorkerCommit {
		return common.ErrUnexpectedResponseType
	}
	delete(c.pending, id)
	r.WorkerCommit <- payload
	return nil
}

// RespondLedgerRead delivers an in-process ledger-read reply, same
// contract as RespondStateGet.
func (c *Correlator) RespondLedgerRead(id RpcID, payload interface{}) error {
	r, ok := c.pending[id]
	if !ok {
		return common.ErrUnknownRpcID
	}
	if r.Kind != ResponderLedgerRead {
		return common.ErrUnexpectedResponseType
	}
	delete(c.pending, id)
	r.LedgerRead <- payload
	return nil
}

// RespondBlockQuery delivers a block-query reply, same contract as
// RespondStateGet.
func (c *Correlator) RespondBlockQuery(id RpcID, payload interface{}) error {
	r, ok := c.pending[id]
	if !ok {
		return common.ErrUnknownRpcID
	}
	if r.Kind != ResponderBlockQuery {
		return common.ErrUnexpectedResponseType
	}
	delete(c.pending, id)
	r.BlockQuery <- payload
	return nil
}

// Len reports how many requests are currently pending.
func (c *Correlator) Len() int { return len(c.pending) }
