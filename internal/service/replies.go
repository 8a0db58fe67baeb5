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

package service

import "github.com/probeum/mina-core/common"

// LedgerOp names which LedgerService operation a LedgerReply answers.
type LedgerOp int

const (
	LedgerOpGetAccounts LedgerOp = iota
	LedgerOpGetNumAccounts
	LedgerOpGetChildHashes
	LedgerOpApplyBlock
	LedgerOpReconstructStaged
	LedgerOpGetMask
)

func (op LedgerOp) String() string {
	switch op {
	case LedgerOpGetAccounts:
		return "GetAccountsAt"
	case LedgerOpGetNumAccounts:
		return "GetNumAccounts"
	case LedgerOpGetChildHashes:
		return "GetChildHashesAt"
	case LedgerOpApplyBlock:
		return "ApplyBlock"
	case LedgerOpReconstructStaged:
		return "ReconstructStaged"
	case LedgerOpGetMask:
		return "GetMaskByHash"
	default:
		return "Unknown"
	}
}

// CostHint is the relative RPC cost of one operation, used by callers to
// rate-limit how much ledger work they put in flight at once. The values
// are an ordering, not a unit.
func (op LedgerOp) CostHint() int {
	switch op {
	case LedgerOpGetNumAccounts, LedgerOpGetMask:
		return 1
	case LedgerOpGetChildHashes:
		return 2
	case LedgerOpGetAccounts:
		return 4
	case LedgerOpReconstructStaged, LedgerOpApplyBlock:
		return 8
	default:
		return 1
	}
}

// LedgerReply is the typed reply event for every LedgerService operation,
// delivered through the EventSource as an EventLedgerReply carrying the
// original RequestID so the core can match it against pending state. A
// reply for a request the core has since abandoned (sync retargeted, peer
// gone) is matched against nothing and dropped.
type LedgerReply struct {
	ID  RequestID
	Op  LedgerOp
	OK  bool
	Err string

	// GetChildHashesAt replies: the two child hashes of Addr, as claimed
	// by whichever source (in-process mask or remote peer) served them.
	Addr        MerkleAddress
	Peer        common.PeerID
	Left, Right common.Hash

	// GetNumAccounts replies.
	NumAccounts uint64

	// GetAccountsAt replies: the hash the ledger computed over the
	// received batch, compared against the leaf's known value.
	ContentHash common.Hash

	// GetAccountsAt / GetMaskByHash replies; opaque to the core.
	Payload interface{}
}

// SnarkVerifyReply is the typed reply event for SnarkVerifier operations.
// Block distinguishes a VerifyBlock reply from a VerifyWorkBatch reply.
type SnarkVerifyReply struct {
	ID    RequestID
	Block bool
	OK    bool
	Err   string
}

// BlockApplyReply is the typed reply event for an ApplyBlock request,
// delivered as its own EventBlockApplyReply kind rather than folded into
// EventLedgerReply so the apply pipeline's driver can select on it
// directly.
type BlockApplyReply struct {
	ID  RequestID
	OK  bool
	Err string
}
