package watchaccounts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/service"
)

func hashFrom(b byte) common.Hash {
	var h common.Hash
	h[0] = b
	return h
}

func TestSubscribeRejectsDuplicate(t *testing.T) {
	tr := New()
	key := hashFrom(1)
	require.True(t, tr.Subscribe(key, service.RequestID(1)))
	require.False(t, tr.Subscribe(key, service.RequestID(2)))
}

func TestOnBestTipUpdateAppendsMatchingWatchesOnly(t *testing.T) {
	tr := New()
	key1, key2 := hashFrom(1), hashFrom(2)
	tr.Subscribe(key1, service.RequestID(1))
	tr.Subscribe(key2, service.RequestID(2))

	block := hashFrom(10)
	matched := tr.OnBestTipUpdate(block, 5, []common.Hash{key1})
	require.ElementsMatch(t, []common.Hash{key1}, matched)

	w1, _ := tr.Get(key1)
	require.Len(t, w1.Blocks, 1)
	require.Equal(t, block, w1.Blocks[0].BlockHash)

	w2, _ := tr.Get(key2)
	require.Empty(t, w2.Blocks)
}

func TestSnapshotFollowUp(t *testing.T) {
	tr := New()
	key := hashFrom(1)
	tr.Subscribe(key, service.RequestID(1))
	tr.OnBestTipUpdate(hashFrom(10), 5, []common.Hash{key})

	require.True(t, tr.RequestSnapshot(key, service.RequestID(99)))
	require.True(t, tr.ResolveSnapshot(key, service.RequestID(99), "snapshot"))

	w, _ := tr.Get(key)
	require.Equal(t, "snapshot", w.Blocks[0].Snapshot)
}

func TestResolveInitialState(t *testing.T) {
	tr := New()
	key := hashFrom(1)
	tr.Subscribe(key, service.RequestID(1))
	require.True(t, tr.ResolveInitialState(key, true))

	w, _ := tr.Get(key)
	require.Equal(t, InitialStateSuccess, w.InitialState)
}
