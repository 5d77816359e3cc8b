package skel

import (
	"math"
	"testing"

	"github.com/soypat/skel/delaunay"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestToDelaunayNoop(t *testing.T) {
	pts, faces := bipyramid()
	outPts, outFaces, stats, err := ToDelaunay(pts, faces, ConformConfig{})
	require.NoError(t, err)
	require.Equal(t, ConformStats{}, stats, "hull triangles are already Delaunay faces")
	require.Equal(t, pts, outPts)
	require.Equal(t, faces, outFaces)
}

func TestToDelaunayFlip(t *testing.T) {
	pts, faces := bipyramid()
	// Re-triangulate the quad spanned by hull triangles 0-2-3 and 0-3-4
	// across the diagonal 2-4, which is not a Delaunay edge. The surface
	// stays watertight but no longer conforms.
	var bad [][3]int
	for _, f := range faces {
		if f != [3]int{0, 2, 3} && f != [3]int{0, 3, 4} {
			bad = append(bad, f)
		}
	}
	bad = append(bad, [3]int{2, 3, 4}, [3]int{2, 4, 0})

	// The quad folds 45 degrees across the diagonal, so the default sharp
	// angle refuses to flip; 60 degrees allows it.
	outPts, outFaces, stats, err := ToDelaunay(pts, bad, ConformConfig{SharpAngle: math.Pi / 3})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Rounds)
	require.Equal(t, 1, stats.Flips)
	require.Zero(t, stats.EdgeSplits)
	require.Zero(t, stats.FaceSplits)
	require.Zero(t, stats.AddedVertices)
	require.Equal(t, pts, outPts, "flips add no vertices")
	require.Len(t, outFaces, len(faces))
	requireConforming(t, outPts, outFaces)

	c, err := Skeletonize(outPts, outFaces, Config{Epsilon: 0.1})
	require.NoError(t, err)
	require.Len(t, c.Sheets, 1)
}

func TestToDelaunaySplitsSharpEdge(t *testing.T) {
	pts, faces := bipyramid()
	var bad [][3]int
	for _, f := range faces {
		if f != [3]int{0, 2, 3} && f != [3]int{0, 3, 4} {
			bad = append(bad, f)
		}
	}
	bad = append(bad, [3]int{2, 3, 4}, [3]int{2, 4, 0})

	// With the default 20 degree limit the unrealized edge must be split
	// rather than flipped.
	outPts, outFaces, stats, err := ToDelaunay(pts, bad, ConformConfig{})
	if err != nil {
		// Refining a degenerate fold may legitimately fail to converge;
		// what it must never do is claim success on a non-conforming mesh.
		t.Logf("refinement gave up: %v", err)
		return
	}
	require.Greater(t, stats.EdgeSplits, 0)
	require.Greater(t, stats.AddedVertices, 0)
	require.Equal(t, len(outPts)-len(pts), stats.AddedVertices)
	requireConforming(t, outPts, outFaces)
}

func TestDyadicSplitPoint(t *testing.T) {
	pts := []r3.Vec{{}, {X: 1}, {X: 1.2}, {X: -3}}
	// Unit edge splits exactly at the midpoint.
	require.Equal(t, r3.Vec{X: 0.5}, dyadicSplitPoint(pts, [2]int{0, 1}, 4))
	// Length 1.2: the dyadic candidates from 0 are 0.5 and 1.0; 0.5 is
	// closer to the midpoint 0.6.
	require.Equal(t, r3.Vec{X: 0.5}, dyadicSplitPoint(pts, [2]int{0, 2}, 4))
	// The original-vertex endpoint is preferred when the other one was
	// inserted by an earlier split.
	got := dyadicSplitPoint(pts, [2]int{3, 1}, 2)
	require.InDelta(t, 2.0, r3.Norm(r3.Sub(got, pts[1])), 1e-12,
		"distance from the original endpoint must be a power of two")
}

func TestOrientEdge(t *testing.T) {
	p, q, w := orientEdge([3]int{7, 2, 5}, [2]int{2, 7})
	require.Equal(t, [3]int{7, 2, 5}, [3]int{p, q, w})
	p, q, w = orientEdge([3]int{7, 2, 5}, [2]int{5, 7})
	require.Equal(t, [3]int{5, 7, 2}, [3]int{p, q, w})
}

func requireConforming(t *testing.T, pts []r3.Vec, faces [][3]int) {
	t.Helper()
	d, err := delaunay.Tetrahedralize(pts)
	require.NoError(t, err)
	for _, f := range faces {
		require.True(t, d.IsFace(f[0], f[1], f[2]), "face %v not realized", f)
	}
}
