package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mina-core/common"
)

func TestLoopbackRepliesCarryFreshMonotonicIDs(t *testing.T) {
	hub := NewLoopback(8)
	ctx := context.Background()

	id1, err := hub.VerifyBlock(ctx, nil)
	require.NoError(t, err)
	id2, err := hub.ReconstructStaged(ctx, common.Hash{}, nil)
	require.NoError(t, err)
	require.Greater(t, uint64(id2), uint64(id1))

	ev, ok := hub.TryNext()
	require.True(t, ok)
	require.Equal(t, EventSnarkVerifyReply, ev.Kind)
	reply := ev.Payload.(SnarkVerifyReply)
	require.Equal(t, id1, reply.ID)
	require.True(t, reply.Block)
	require.True(t, reply.OK)

	ev, ok = hub.TryNext()
	require.True(t, ok)
	require.Equal(t, EventLedgerReply, ev.Kind)
	ledger := ev.Payload.(LedgerReply)
	require.Equal(t, id2, ledger.ID)
	require.Equal(t, LedgerOpReconstructStaged, ledger.Op)

	_, ok = hub.TryNext()
	require.False(t, ok)
}

func TestLoopbackApplyBlockUsesDedicatedEventKind(t *testing.T) {
	hub := NewLoopback(8)
	id, err := hub.ApplyBlock(context.Background(), nil)
	require.NoError(t, err)

	ev, ok := hub.TryNext()
	require.True(t, ok)
	require.Equal(t, EventBlockApplyReply, ev.Kind)
	require.Equal(t, id, ev.Payload.(BlockApplyReply).ID)
}

func TestLoopbackRecordsOutboundP2pCalls(t *testing.T) {
	hub := NewLoopback(8)
	ctx := context.Background()
	var peer common.PeerID
	peer[0] = 7

	require.NoError(t, hub.SendRpc(ctx, peer, 42, "req"))
	require.NoError(t, hub.Broadcast(ctx, "tx_pool", "msg"))
	require.NoError(t, hub.Disconnect(ctx, peer, "reason"))

	log := hub.OutboundLog()
	require.Len(t, log, 3)
	require.Equal(t, OutboundSendRpc, log[0].Kind)
	require.Equal(t, uint64(42), log[0].RpcID)
	require.Equal(t, OutboundBroadcast, log[1].Kind)
	require.Equal(t, "tx_pool", log[1].Topic)
	require.Equal(t, OutboundDisconnect, log[2].Kind)
	require.Equal(t, "reason", log[2].Reason)
}

func TestLoopbackNextEventHonorsContextCancel(t *testing.T) {
	hub := NewLoopback(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := hub.NextEvent(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
