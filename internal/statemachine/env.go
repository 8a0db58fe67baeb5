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
	"context"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/action"
	"github.com/probeum/mina-core/internal/service"
)

// Env carries the collaborator service handles the effect layer calls out
// through. The handles are owned here, on the dispatcher side, never by
// State: reducers stay pure and replayable while effects submit work whose
// replies come back as events.
//
// Any nil handle selects the synchronous fallback for that concern: the
// effect resolves the request in-line with a success follow-up action
// instead of calling out. Tests and replay run with a zero Env; a deployed
// node wires real (or loopback) services.
type Env struct {
	P2p      service.P2pService
	Ledger   service.LedgerService
	Verifier service.SnarkVerifier
}

// ctx returns the context effects pass to service calls. Effects never
// block on a service's completion (replies arrive as events), so there is
// nothing for a deadline to guard here.
func (Env) ctx() context.Context { return context.Background() }

// disconnect tears a peer down through both halves of the boundary: the
// PeerDisconnecting action for the directory's lifecycle record, and the
// transport's Disconnect call when one is wired.
func (e Env) disconnect(peer common.PeerID, reason string, dispatch action.Dispatch) {
	dispatch(PeerDisconnecting{ID: peer})
	if e.P2p != nil {
		if err := e.P2p.Disconnect(e.ctx(), peer, reason); err != nil {
			action.BugCondition("PeerDisconnecting", "transport disconnect failed", "peer", peer, "err", err)
		}
	}
}

// Gossip channel names, one per replicated pool. A peer declares which
// channels it serves when its handshake completes (PeerReady).
const (
	ChannelSnarkPool = "snark_pool"
	ChannelTxPool    = "tx_pool"
)

// Disconnect reason strings reported to the transport; protocol and
// verification failures name an enumerated reason.
const (
	ReasonSnarkPoolVerifyError = "SnarkPoolVerifyError"
	ReasonTxPoolVerifyError    = "TxPoolVerifyError"
	ReasonRpcTimeout           = "RpcTimeout"
)

// Limits is the resource-limit configuration enforced at the
// enabling-condition layer (actions that would exceed a limit are
// rejected silently, the caller observing only the absent effect) plus
// the min-peers target the maintenance pass dials back up to.
type Limits struct {
	MaxPeers int
	MinPeers int
}

// DefaultMaxPeers matches the configuration default; the min-peers target
// defaults to half of it.
const DefaultMaxPeers = 100

// detRand is a splitmix64 stream seeded deterministically from an action's
// Meta, used for propagation jitter and peer-order rotation inside
// reducers. Seeding from Meta alone keeps replay exact: the same recorded
// action reproduces the same draws with no process-wide randomness
// involved.
type detRand struct{ state uint64 }

func newDetRand(meta action.Meta) detRand {
	return detRand{state: uint64(meta.Time.UnixNano()) ^ (meta.ID * 0x9e3779b97f4a7c15)}
}

func (r *detRand) next() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
