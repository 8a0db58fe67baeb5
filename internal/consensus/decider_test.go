package consensus

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

func vrfFrom(b byte) common.VrfOutput {
	var v common.VrfOutput
	v[0] = b
	return v
}

type alwaysShortRange struct{}

func (alwaysShortRange) ShortRangeAncestor(BlockSummary, BlockSummary, uint32) bool { return true }

type alwaysLongRange struct{}

func (alwaysLongRange) ShortRangeAncestor(BlockSummary, BlockSummary, uint32) bool { return false }

func TestShortRangeTakeByVrf(t *testing.T) {
	tip := BlockSummary{Hash: hashFrom(0xaa), Height: 100, LastVrfOutput: vrfFrom(0x01)}
	candidate := BlockSummary{Hash: hashFrom(0x99), Height: 100, LastVrfOutput: vrfFrom(0x02)}

	d := Decide(&tip, candidate, Params{K: 10}, alwaysShortRange{})
	require.True(t, d.UseAsBestTip())
	require.Equal(t, ReasonBiggerVrf, d.Reason)
}

func TestShortRangeKeepByStateHash(t *testing.T) {
	v := vrfFrom(0x05)
	tip := BlockSummary{Hash: hashFrom(0xff), Height: 100, LastVrfOutput: v}
	candidate := BlockSummary{Hash: hashFrom(0x01), Height: 100, LastVrfOutput: v}

	d := Decide(&tip, candidate, Params{K: 10}, alwaysShortRange{})
	require.False(t, d.UseAsBestTip())
	require.Equal(t, ReasonTieBreakerSmallerStateHash, d.Reason)
}

func TestDecideNilTipAlwaysTakes(t *testing.T) {
	candidate := BlockSummary{Hash: hashFrom(0x01), Height: 1}
	d := Decide(nil, candidate, Params{K: 10}, alwaysShortRange{})
	require.True(t, d.UseAsBestTip())
	require.Equal(t, ReasonNoBestTip, d.Reason)
}

func TestDecideOutOfRangeHeightForcesLongRange(t *testing.T) {
	tip := BlockSummary{Hash: hashFrom(0x01), Height: 100, MinWindowDensity: MinWindowDensity{5, 5, 5}}
	candidate := BlockSummary{Hash: hashFrom(0x02), Height: 1000, MinWindowDensity: MinWindowDensity{7, 7, 7}}

	d := Decide(&tip, candidate, Params{K: 10}, alwaysShortRange{})
	require.True(t, d.UseAsBestTip())
	require.Equal(t, ReasonHigherMinWindowDensity, d.Reason)
}

func TestDecideNoSharedAncestorForcesLongRange(t *testing.T) {
	tip := BlockSummary{Hash: hashFrom(0x01), Height: 100, MinWindowDensity: MinWindowDensity{5, 5, 5}}
	candidate := BlockSummary{Hash: hashFrom(0x02), Height: 101, MinWindowDensity: MinWindowDensity{3, 3, 3}}

	d := Decide(&tip, candidate, Params{K: 10}, alwaysLongRange{})
	require.False(t, d.UseAsBestTip())
	require.Equal(t, ReasonLowerMinWindowDensity, d.Reason)
}

func TestLongRangeFallsBackToVrfOnDensityTie(t *testing.T) {
	tip := BlockSummary{Hash: hashFrom(0x01), Height: 100, LastVrfOutput: vrfFrom(0x01), MinWindowDensity: MinWindowDensity{4, 5, 6}}
	candidate := BlockSummary{Hash: hashFrom(0x02), Height: 101, LastVrfOutput: vrfFrom(0x02), MinWindowDensity: MinWindowDensity{4, 9, 9}}

	d := LongRange(tip, candidate)
	require.True(t, d.UseAsBestTip())
	require.Equal(t, ReasonBiggerVrf, d.Reason)
}

func TestMinWindowDensityCmpEmptyIsZero(t *testing.T) {
	var a, b MinWindowDensity
	require.Equal(t, 0, a.Cmp(b))
}
