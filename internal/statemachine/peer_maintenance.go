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
	"sort"

	"github.com/probeum/mina-core/internal/action"
)

// peerMaintenanceTick keeps the connection count at the min-peers target:
// when Connecting+Ready falls below it, Disconnected peers with known
// dial addresses are moved back to Connecting and re-dialed. It rides the
// same timer as CheckTimeouts.
type peerMaintenanceTick struct{}

func (peerMaintenanceTick) Kind() string { return "peerMaintenanceTick" }

// peerDialsDrained clears the transient redial handoff.
type peerDialsDrained struct{}

func (peerDialsDrained) Kind() string { return "peerDialsDrained" }

func registerPeerMaintenance(k *action.Kernel[State], env Env) {
	k.Register(peerMaintenanceTick{}.Kind(), reducePeerMaintenanceTick, nil)
	k.Register(peerDialsDrained{}.Kind(), reducePeerDialsDrained, nil)

	k.Effect(CheckTimeouts{}.Kind(), effectPeerMaintenanceTick)
	k.Effect(peerMaintenanceTick{}.Kind(), makeEffectRedialPeers(env))
}

func effectPeerMaintenanceTick(_ *State, _ action.Action, _ action.Meta, dispatch action.Dispatch) {
	dispatch(peerMaintenanceTick{})
}

func reducePeerMaintenanceTick(s *State, _ action.Action, meta action.Meta) {
	need := s.Limits.MinPeers - s.Peers.ConnectedCount()
	if need <= 0 {
		return
	}
	cands := s.Peers.DisconnectedDialable()
	sort.Slice(cands, func(i, j int) bool { return cands[i].Hex() < cands[j].Hex() })
	for _, id := range cands {
		if need == 0 {
			break
		}
		if s.Peers.MarkReconnecting(id, meta.Time) {
			s.PendingDials = append(s.PendingDials, id)
			need--
		}
	}
}

// makeEffectRedialPeers hands every re-promoted peer back to the
// transport to dial.
func makeEffectRedialPeers(env Env) action.EffectFunc[State] {
	return func(s *State, _ action.Action, _ action.Meta, dispatch action.Dispatch) {
		if len(s.PendingDials) == 0 {
			return
		}
		if env.P2p != nil {
			for _, id := range s.PendingDials {
				p, ok := s.Peers.Get(id)
				if !ok {
					continue
				}
				if err := env.P2p.Dial(env.ctx(), p.DialOptions()); err != nil {
					action.BugCondition(peerMaintenanceTick{}.Kind(), "redial failed", "peer", id, "err", err)
				}
			}
		}
		dispatch(peerDialsDrained{})
	}
}

func reducePeerDialsDrained(s *State, _ action.Action, _ action.Meta) {
	s.PendingDials = nil
}
