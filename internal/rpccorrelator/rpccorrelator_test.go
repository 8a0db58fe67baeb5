package rpccorrelator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mina-core/common"
)

func TestResponderCleanup(t *testing.T) {
	c := New()
	ch := make(chan interface{}, 1)
	id := c.Add(Responder{Kind: ResponderStateGet, StateGet: ch})
	require.EqualValues(t, 0, id)

	require.NoError(t, c.RespondStateGet(id, "state"))
	require.Equal(t, "state", <-ch)

	err := c.RespondStateGet(id, "state-again")
	require.ErrorIs(t, err, common.ErrUnknownRpcID)
}

func TestAddAssignsMonotonicIDs(t *testing.T) {
	c := New()
	ch := make(chan interface{}, 1)
	id1 := c.Add(Responder{Kind: ResponderStateGet, StateGet: ch})
	id2 := c.Add(Responder{Kind: ResponderStateGet, StateGet: ch})
	require.Less(t, id1, id2)
}

func TestRespondWrongVariantReturnsUnexpectedResponseType(t *testing.T) {
	c := New()
	ch := make(chan interface{}, 1)
	id := c.Add(Responder{Kind: ResponderWorkerCommit, WorkerCommit: ch})

	err := c.RespondStateGet(id, "x")
	require.ErrorIs(t, err, common.ErrUnexpectedResponseType)

	// The mismatched call must not have removed the pending entry.
	require.Equal(t, 1, c.Len())
	require.NoError(t, c.RespondWorkerCommit(id, "ok"))
	require.Equal(t, "ok", <-ch)
}

func TestRemoveAndGet(t *testing.T) {
	c := New()
	ch := make(chan interface{}, 1)
	id := c.Add(Responder{Kind: ResponderLedgerRead, LedgerRead: ch})

	_, ok := c.Get(id)
	require.True(t, ok)

	r, ok := c.Remove(id)
	require.True(t, ok)
	require.Equal(t, ResponderLedgerRead, r.Kind)

	_, ok = c.Get(id)
	require.False(t, ok)
}
