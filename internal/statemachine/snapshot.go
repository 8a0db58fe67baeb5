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
	"bytes"
	"encoding/gob"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/consensus"
)

// stateSnapshot is what an initial-state record actually serializes: the
// configuration-shaped scalar fields. Component sub-states (peer
// directory, pools, frontier, ...) are deliberately absent — the recorder
// contract requires the snapshot to be taken before any action is
// dispatched, at which point every sub-state is its freshly-constructed
// empty value, reproduced on decode by requiring the caller to decode into
// a New()-constructed State.
type stateSnapshot struct {
	ConsensusParams consensus.Params
	Limits          Limits
	LocalPeerID     common.PeerID
	BestTip         *consensus.BlockSummary
	PreviousBestTip *consensus.BlockSummary
}

// GobEncode implements gob.GobEncoder over the snapshot subset above.
func (s *State) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(stateSnapshot{
		ConsensusParams: s.ConsensusParams,
		Limits:          s.Limits,
		LocalPeerID:     s.LocalPeerID,
		BestTip:         s.BestTip,
		PreviousBestTip: s.PreviousBestTip,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder. The receiver must be a
// New()-constructed State, never a zero value: only the snapshot subset is
// overwritten, every component sub-state keeps whatever the constructor
// allocated (empty, matching what the recording process held when it
// snapshotted).
func (s *State) GobDecode(data []byte) error {
	var snap stateSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	s.ConsensusParams = snap.ConsensusParams
	s.Limits = snap.Limits
	s.LocalPeerID = snap.LocalPeerID
	s.BestTip = snap.BestTip
	s.PreviousBestTip = snap.PreviousBestTip
	return nil
}
