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

import "encoding/gob"

// The recorder serializes actions through the action.Action interface, so
// every concrete variant — internal follow-ups included, since each
// admitted action is its own log record — must be known to gob before the
// first record is written.
func init() {
	gob.Register(PeerAdd{})
	gob.Register(PeerReady{})
	gob.Register(PeerDisconnecting{})
	gob.Register(PeerDisconnected{})
	gob.Register(PeerBestTip{})
	gob.Register(PeerChannelLimit{})
	gob.Register(BlockReceived{})
	gob.Register(SnarkVerifyPending{})
	gob.Register(SnarkVerifyBlockSuccess{})
	gob.Register(ForkRangeResolved{})
	gob.Register(CheckTimeouts{})
	gob.Register(RequestTimedOut{})
	gob.Register(GossipTick{})
	gob.Register(gossipSendsDrained{})
	gob.Register(peerMaintenanceTick{})
	gob.Register(peerDialsDrained{})

	gob.Register(TransitionSyncBegin{})
	gob.Register(TransitionSyncRetarget{})
	gob.Register(snarkedLedgerNumAccountsRequested{})
	gob.Register(SnarkedLedgerNumAccountsResolved{})
	gob.Register(SnarkedLedgerQueryTimedOut{})
	gob.Register(SnarkedLedgerQueryIssued{})
	gob.Register(SnarkedLedgerChildrenResolved{})
	gob.Register(SnarkedLedgerAccountsQueryIssued{})
	gob.Register(SnarkedLedgerAccountsResolved{})
	gob.Register(snarkedLedgerSyncCheck{})
	gob.Register(stagedLedgerPartsRequested{})
	gob.Register(StagedLedgerPartsRetry{})
	gob.Register(StagedLedgerPartsReceived{})
	gob.Register(stagedLedgerReconstructIssued{})
	gob.Register(StagedLedgerReconstructResolved{})
	gob.Register(StagedLedgerReconstructRetry{})
	gob.Register(StagedLedgerNeededStatesResolved{})
	gob.Register(stagedLedgerSyncCheck{})
	gob.Register(blockApplyIssued{})
	gob.Register(BlockApplyResolved{})
	gob.Register(BlockApplyCommit{})

	gob.Register(SnarkWorkInfoReceived{})
	gob.Register(SnarkCommitmentReceived{})
	gob.Register(SnarkCommitmentExpired{})
	gob.Register(SnarkWorkFetchPending{})
	gob.Register(SnarkWorkReceived{})
	gob.Register(snarkWorkBatchSelect{})
	gob.Register(snarkWorkBatchIssued{})
	gob.Register(SnarkWorkBatchVerifyResolved{})
	gob.Register(SnarkWorkVerifyResolved{})
	gob.Register(snarkWorkBatchDrained{})
	gob.Register(failedVerifyPeersDrained{})

	gob.Register(TxInfoReceived{})
	gob.Register(TxFetchPending{})
	gob.Register(TxFetchResolved{})
	gob.Register(TxVerifyNext{})
	gob.Register(TxVerifyResolved{})
	gob.Register(PoolRebroadcastTick{})
	gob.Register(rebroadcastsDrained{})

	gob.Register(RpcReplyReceived{})
	gob.Register(RpcReplyDelivered{})

	gob.Register(WatchSubscribe{})
	gob.Register(WatchUnsubscribe{})
	gob.Register(WatchInitialStateResolved{})
	gob.Register(WatchSnapshotRequested{})
	gob.Register(WatchSnapshotResolved{})
	gob.Register(watchMatchesDrained{})
}
