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

// Package runner drives the single-threaded event loop around the action
// kernel: drain the event source in arrival order, translate each event
// into an input action, dispatch it (and its follow-ups) to quiescence,
// and inject the periodic CheckTimeouts tick. One goroutine owns the
// state; collaborator replies queue as events and never interleave with a
// running dispatch.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/probeum/mina-core/internal/action"
	"github.com/probeum/mina-core/internal/gplog"
	"github.com/probeum/mina-core/internal/service"
	"github.com/probeum/mina-core/internal/statemachine"
)

// DefaultTickInterval is how often CheckTimeouts is injected when no event
// traffic forces the loop awake sooner; the timeout pass must run at least
// every 5 seconds.
const DefaultTickInterval = 5 * time.Second

// Runner owns the loop's moving parts. Construct with New, then call Run
// from the one goroutine that is to own the state for the process
// lifetime.
type Runner struct {
	kernel *action.Kernel[statemachine.State]
	state  *statemachine.State
	source service.EventSource
	clock  service.Clock
	tick   time.Duration
	log    gplog.Logger
}

// New assembles a runner around an already-registered kernel and a fresh
// or replay-restored state.
func New(kernel *action.Kernel[statemachine.State], state *statemachine.State, source service.EventSource, clock service.Clock) *Runner {
	return &Runner{
		kernel: kernel,
		state:  state,
		source: source,
		clock:  clock,
		tick:   DefaultTickInterval,
		log:    gplog.New("module", "runner"),
	}
}

// SetTickInterval overrides the CheckTimeouts cadence; call before Run.
func (r *Runner) SetTickInterval(d time.Duration) {
	if d > 0 {
		r.tick = d
	}
}

// State exposes the owned state for inspection between dispatches (tests,
// RPC snapshots). Callers must not retain it across a running loop.
func (r *Runner) State() *statemachine.State { return r.state }

// Inject dispatches one action immediately, stamped with the current
// clock reading. Intended for startup inputs (initial peer dials) issued
// before Run takes over, or from the loop goroutine itself.
func (r *Runner) Inject(a action.Action) {
	r.kernel.Dispatch(r.state, a, r.clock.Now())
}

// Run blocks draining events until ctx is cancelled or the source fails.
// Each loop iteration pulls at most one input (event or timer tick) and
// runs it to quiescence before the next is admitted.
func (r *Runner) Run(ctx context.Context) error {
	events := make(chan service.Event)
	srcErr := make(chan error, 1)
	go func() {
		for {
			ev, err := r.source.NextEvent(ctx)
			if err != nil {
				srcErr <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-srcErr:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		case <-ticker.C:
			r.Inject(statemachine.CheckTimeouts{})
		case ev := <-events:
			r.Deliver(ev)
		}
	}
}

// Deliver translates one event into its input action and dispatches it.
// Events that match no pending state — a reply for a request the reducer
// has since abandoned (sync retargeted, candidate dropped, batch settled)
// — are discarded, which is how cancellation manifests on this side of
// the service boundary.
func (r *Runner) Deliver(ev service.Event) {
	a, ok := r.actionFor(ev)
	if !ok {
		r.log.Debug("dropping unmatched event", "kind", ev.Kind)
		return
	}
	r.Inject(a)
}

func (r *Runner) actionFor(ev service.Event) (action.Action, bool) {
	if a, ok := ev.Payload.(action.Action); ok {
		return a, true
	}
	switch p := ev.Payload.(type) {
	case service.SnarkVerifyReply:
		return r.snarkVerifyAction(p)
	case service.BlockApplyReply:
		return r.blockApplyAction(p.ID, p.OK)
	case service.LedgerReply:
		return r.ledgerReplyAction(p)
	}
	return nil, false
}

func (r *Runner) snarkVerifyAction(p service.SnarkVerifyReply) (action.Action, bool) {
	if p.Block {
		hash, ok := r.state.Candidates.ByVerifyReq(p.ID)
		if !ok {
			return nil, false
		}
		return statemachine.SnarkVerifyBlockSuccess{Hash: hash, ReqID: p.ID, OK: p.OK}, true
	}
	if _, ok := r.state.PendingWorkVerifies[p.ID]; !ok {
		return nil, false
	}
	return statemachine.SnarkWorkBatchVerifyResolved{ReqID: p.ID, OK: p.OK}, true
}

func (r *Runner) blockApplyAction(id service.RequestID, ok bool) (action.Action, bool) {
	if r.state.Apply == nil || r.state.Apply.Request() != id {
		return nil, false
	}
	return statemachine.BlockApplyResolved{OK: ok}, true
}

func (r *Runner) ledgerReplyAction(p service.LedgerReply) (action.Action, bool) {
	switch p.Op {
	case service.LedgerOpReconstructStaged:
		if r.state.StagedSync == nil || r.state.StagedSync.Request() != p.ID {
			return nil, false
		}
		return statemachine.StagedLedgerReconstructResolved{OK: p.OK}, true
	case service.LedgerOpApplyBlock:
		return r.blockApplyAction(p.ID, p.OK)
	case service.LedgerOpGetChildHashes:
		if r.state.SnarkedSync == nil || !p.OK {
			return nil, false
		}
		return statemachine.SnarkedLedgerChildrenResolved{Addr: p.Addr, Peer: p.Peer, Left: p.Left, Right: p.Right}, true
	case service.LedgerOpGetNumAccounts:
		if r.state.SnarkedSync == nil || !p.OK {
			return nil, false
		}
		return statemachine.SnarkedLedgerNumAccountsResolved{Peer: p.Peer, ReqID: p.ID, Num: p.NumAccounts}, true
	case service.LedgerOpGetAccounts:
		if r.state.SnarkedSync == nil || !p.OK {
			return nil, false
		}
		return statemachine.SnarkedLedgerAccountsResolved{Addr: p.Addr, Peer: p.Peer, ContentHash: p.ContentHash}, true
	}
	return nil, false
}
