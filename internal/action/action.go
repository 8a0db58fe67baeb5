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

// Package action implements the deterministic action-reducer kernel: every
// input (timer tick, network event, RPC request, service reply) is wrapped
// as an Action tagged with Meta, fed through a pure Reducer, and any
// follow-up actions it dispatches are drained to quiescence before the next
// external input is admitted.
package action

import "time"

// Meta is the fixed metadata every action carries. Time is the monotonic
// timestamp supplied by the embedding Clock collaborator; ID is assigned by
// the Kernel and is monotonically increasing for the lifetime of a process.
type Meta struct {
	Time time.Time
	ID   uint64
}

// Action is a tagged variant of an input or internal transition. Kind
// identifies the variant for reducer/effect dispatch and for the recorder;
// it must be stable across versions of the binary that read the same
// recorded log.
type Action interface {
	Kind() string
}

// Effectful actions are pure triggers: they carry no reducer-visible state
// change of their own and exist only so the dispatcher can invoke a
// collaborator service. The kernel still runs any registered reducer for
// them (usually a no-op) before running their effects.
type Effectful interface {
	Action
	effectfulMarker()
}

// EffectfulBase can be embedded by action types that are pure triggers.
type EffectfulBase struct{}

func (EffectfulBase) effectfulMarker() {}

// Dispatch is the callback effect handlers use to enqueue a follow-up
// action. It never blocks and never invokes a reducer itself; the action is
// appended to the kernel's pending queue and reduced in FIFO order.
type Dispatch func(Action)
