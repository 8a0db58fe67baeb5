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
	"github.com/probeum/mina-core/internal/service"
)

// Request payloads the effect layer hands to P2pService.SendRpc. Their
// wire encoding is the transport collaborator's concern; the core only
// fixes what each request must identify.

// SnarkWorkFetchRequest asks a peer for the full snark behind an
// advertised job.
type SnarkWorkFetchRequest struct {
	JobID common.Hash
}

// TxFetchRequest asks a peer for the full user command behind an
// advertised transaction hash.
type TxFetchRequest struct {
	Hash common.Hash
}

// SnarkedLedgerQueryRequest asks a peer for the two child hashes of one
// Merkle address of a snarked ledger.
type SnarkedLedgerQueryRequest struct {
	LedgerHash common.Hash
	Addr       service.MerkleAddress
}

// SnarkedLedgerNumAccountsRequest asks a peer how many accounts the
// snarked ledger holds, the opening query of a BFS sync.
type SnarkedLedgerNumAccountsRequest struct {
	LedgerHash common.Hash
}

// SnarkedLedgerAccountsRequest asks a peer for the account batch under one
// leaf subtree of a snarked ledger.
type SnarkedLedgerAccountsRequest struct {
	LedgerHash common.Hash
	Addr       service.MerkleAddress
}

// StagedLedgerPartsRequest asks a peer for the staged-ledger aux data and
// pending coinbases of one block.
type StagedLedgerPartsRequest struct {
	BlockHash common.Hash
}

// GossipBatch is one per-peer pool replication send: up to the peer's
// published limit of entries from the named channel's pool, starting at
// the peer's cursor.
type GossipBatch struct {
	Channel string
	Items   []interface{}
}
