package stagedsync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mina-core/common"
)

func hashFrom(b byte) common.Hash {
	var h common.Hash
	h[0] = b
	return h
}

type acceptValidator struct{ want interface{} }

func (v acceptValidator) Validate(parts interface{}, target common.Hash) bool {
	return parts == v.want
}

func TestReceivePartsRejectsBadParts(t *testing.T) {
	target := hashFrom(1)
	s := New(target, acceptValidator{want: "good"})

	require.False(t, s.ReceiveParts("bad"))
	require.Equal(t, StatePartsFetchPending, s.State())

	require.True(t, s.ReceiveParts("good"))
	require.Equal(t, StatePartsFetchSuccess, s.State())
}

func TestReconstructErrorAllowsRetry(t *testing.T) {
	s := New(hashFrom(1), acceptValidator{want: "p"})
	s.ReceiveParts("p")
	require.True(t, s.BeginReconstruct(false))
	require.Equal(t, StateReconstructPending, s.State())

	require.True(t, s.ResolveReconstruct(false))
	require.Equal(t, StateReconstructError, s.State())

	require.True(t, s.RetryReconstruct())
	require.True(t, s.ResolveReconstruct(true))
	require.Equal(t, StateReconstructSuccess, s.State())
}

func TestFinishWaitsForAllNeededProtocolStates(t *testing.T) {
	s := New(hashFrom(1), acceptValidator{want: "p"})
	s.ReceiveParts("p")
	s.BeginReconstruct(true)
	require.Equal(t, StateReconstructEmpty, s.State())

	s.BeginCollectNeeded([]common.Hash{hashFrom(2), hashFrom(3)})
	require.False(t, s.Finish())

	s.ResolveNeeded(hashFrom(2))
	require.False(t, s.Finish())

	s.ResolveNeeded(hashFrom(3))
	require.True(t, s.Finish())
	require.Equal(t, StateSuccess, s.State())
}
