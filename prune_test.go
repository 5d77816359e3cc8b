package skel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// triSheetComplex builds three single-polygon sheets meeting along one seam
// curve. Node radii are tiny so each saliency is simply its anchor spread:
// sheets score 0.1, 0.5 and 0.9, the curve scores 2.
func triSheetComplex() *Complex {
	c := &Complex{
		Points: []r3.Vec{
			{}, {X: 0.1}, // sheet 0 anchors
			{Y: 1}, {X: 0.5, Y: 1}, // sheet 1 anchors
			{Y: 2}, {X: 0.9, Y: 2}, // sheet 2 anchors
		},
		Nodes: []Node{
			{Tetra: 0, Radius: 0.01},
			{Tetra: 1, Radius: 0.01},
		},
	}
	for i := 0; i < 3; i++ {
		c.Sheets = append(c.Sheets, Sheet{
			Polygons: []Polygon{{Ring: []int{0, 1}, Anchor: [2]int{2 * i, 2*i + 1}}},
			Curves:   []int{0},
		})
	}
	c.Curves = []Curve{{
		Segments: []Segment{{A: 0, B: 1, Anchors: [3]int{0, 2, 4}}},
		Sheets:   []int{0, 1, 2},
	}}
	return c
}

func TestSaliencyModel(t *testing.T) {
	c := triSheetComplex()
	require.InDelta(t, 0.1, c.sheetSaliency(c.Sheets[0]), 1e-12)
	require.InDelta(t, 0.5, c.sheetSaliency(c.Sheets[1]), 1e-12)
	require.InDelta(t, 0.9, c.sheetSaliency(c.Sheets[2]), 1e-12)
	require.InDelta(t, 2.0, c.curveSaliency(c.Curves[0]), 1e-12)

	// Spread below the ball diameter attenuates quadratically.
	require.InDelta(t, 0.5, saliency(1, 1), 1e-12)
	require.InDelta(t, 1.0, saliency(1, 0.5), 1e-12)
	require.InDelta(t, 1.0, saliency(1, 0.25), 1e-12, "factor clamps at 1")
}

func TestPruneZeroIsIdentity(t *testing.T) {
	c := triSheetComplex()
	want := triSheetComplex()
	require.NoError(t, c.Prune(0))
	require.Equal(t, want, c)
}

func TestPruneInvalid(t *testing.T) {
	c := triSheetComplex()
	want := triSheetComplex()
	require.ErrorIs(t, c.Prune(-1), ErrInvalidParameter)
	require.ErrorIs(t, c.Prune(math.NaN()), ErrInvalidParameter)
	require.Equal(t, want, c, "failed pruning must not mutate the complex")
}

func TestPruneMoreSheetsThanCurves(t *testing.T) {
	// Sheets outnumbering curves is the common shape of a slab skeleton;
	// the queue must not mix up the two generation tables.
	c := triSheetComplex()
	c.Curves = nil
	for i := range c.Sheets {
		c.Sheets[i].Curves = nil
	}
	require.NoError(t, c.Prune(0.3))
	require.Len(t, c.Sheets, 2, "only the sheet scoring 0.1 prunes")
	require.False(t, c.Collapsed)
}

func TestPruneBelowEverything(t *testing.T) {
	c := triSheetComplex()
	require.NoError(t, c.Prune(0.05))
	require.Len(t, c.Sheets, 3)
	require.Len(t, c.Curves, 1)
	require.False(t, c.Collapsed)
}

func TestPruneSheetMergesSurvivors(t *testing.T) {
	c := triSheetComplex()
	// 0.3 removes only sheet 0; the curve is then down to two sheets, so it
	// dissolves and the survivors merge into one sheet scoring 0.9.
	require.NoError(t, c.Prune(0.3))
	require.Len(t, c.Sheets, 1)
	require.Len(t, c.Sheets[0].Polygons, 2)
	require.Empty(t, c.Curves)
	require.Empty(t, c.Junctions)
	require.False(t, c.Collapsed)
}

func TestPruneMergedSheetRescored(t *testing.T) {
	c := triSheetComplex()
	// 0.95 first removes sheet 0 (0.1) and then the merged sheet (0.9); the
	// curve scores 2 but dies with its sheets.
	require.NoError(t, c.Prune(0.95))
	require.True(t, c.Empty())
	require.True(t, c.Collapsed)
	require.Empty(t, c.Nodes)
}

func TestPruneCurveMergesAllSheets(t *testing.T) {
	c := triSheetComplex()
	// Drop the curve saliency below every sheet: removing the curve must
	// merge all three sheets into one.
	c.Curves[0].Segments[0].Anchors = [3]int{0, 0, 0}
	require.InDelta(t, 0, c.curveSaliency(c.Curves[0]), 1e-12)
	require.NoError(t, c.Prune(0.05))
	require.Len(t, c.Sheets, 1)
	require.Len(t, c.Sheets[0].Polygons, 3)
	require.Empty(t, c.Curves)
}

func TestPruneCompactionRenumbers(t *testing.T) {
	c := triSheetComplex()
	// Give sheet 2 a private node so pruning the others cannot keep node 0.
	c.Nodes = append(c.Nodes, Node{Tetra: 9, Radius: 0.01})
	c.Sheets[2].Polygons[0].Ring = []int{2, 1}
	// Detach the sheets so no merging happens, then prune sheets 0 and 1.
	c.Curves = nil
	for i := range c.Sheets {
		c.Sheets[i].Curves = nil
	}
	require.NoError(t, c.Prune(0.7))
	require.Len(t, c.Sheets, 1)
	require.Len(t, c.Nodes, 2, "only nodes referenced by survivors remain")
	ring := c.Sheets[0].Polygons[0].Ring
	require.Equal(t, []int{0, 1}, ring)
	require.Equal(t, 9, c.Nodes[ring[0]].Tetra)
}
