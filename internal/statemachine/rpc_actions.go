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
	"github.com/probeum/mina-core/internal/action"
	"github.com/probeum/mina-core/internal/rpccorrelator"
)

// RpcReplyReceived carries a collaborator's reply for a pending
// correlator entry. Correlator.Add itself is never dispatched as an
// action: its Responder holds a live channel, which cannot be recorded by
// the gob-based action log, so registering a pending
// responder happens at the collaborator boundary, outside this kernel's
// action stream. Only the reply delivery flows through here.
type RpcReplyReceived struct {
	ID        rpccorrelator.RpcID
	Responder rpccorrelator.ResponderKind
	Payload   interface{}
}

func (RpcReplyReceived) Kind() string { return "RpcReplyReceived" }

// RpcReplyDelivered finalizes a delivered reply by dropping its pending
// entry. Split out from RpcReplyReceived so the channel send (I/O, only
// safe in an effect) and the pending-map mutation (state, only safe in a
// reducer) stay on their proper sides of the kernel's reducer/effect
// boundary.
type RpcReplyDelivered struct{ ID rpccorrelator.RpcID }

func (RpcReplyDelivered) Kind() string { return "RpcReplyDelivered" }

func registerRpcActions(k *action.Kernel[State]) {
	k.Register(RpcReplyReceived{}.Kind(), reduceRpcReplyReceived, nil)
	k.Register(RpcReplyDelivered{}.Kind(), reduceRpcReplyDelivered, nil)

	k.Effect(RpcReplyReceived{}.Kind(), effectDeliverRpcReply)
}

// reduceRpcReplyReceived is intentionally empty: delivering the reply is
// I/O (a channel send), which belongs in the effect below, not here.
func reduceRpcReplyReceived(_ *State, _ action.Action, _ action.Meta) {}

func reduceRpcReplyDelivered(s *State, a action.Action, _ action.Meta) {
	s.Rpc.Remove(a.(RpcReplyDelivered).ID)
}

// effectDeliverRpcReply looks up the still-pending responder and delivers
// the reply on its channel, then dispatches RpcReplyDelivered so the
// reducer can drop the now-settled pending entry.
func effectDeliverRpcReply(s *State, a action.Action, _ action.Meta, dispatch action.Dispatch) {
	r := a.(RpcReplyReceived)
	resp, ok := s.Rpc.Get(r.ID)
	if !ok {
		action.BugCondition(r.Kind(), "unknown rpc id", "id", r.ID)
		return
	}
	if resp.Kind != r.Responder {
		action.BugCondition(r.Kind(), "unexpected responder variant", "id", r.ID)
		return
	}
	switch r.Responder {
	case rpccorrelator.ResponderStateGet:
		resp.StateGet <- r.Payload
	case rpccorrelator.ResponderWorkerCommit:
		resp.WorkerCommit <- r.Payload
	case rpccorrelator.ResponderLedgerRead:
		resp.LedgerRead <- r.Payload
	case rpccorrelator.ResponderBlockQuery:
		resp.BlockQuery <- r.Payload
	}
	dispatch(RpcReplyDelivered{ID: r.ID})
}
