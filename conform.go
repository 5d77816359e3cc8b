package skel

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/soypat/skel/delaunay"
)

// ConformConfig parameterizes ToDelaunay. Zero values select defaults.
type ConformConfig struct {
	// SharpAngle is the largest dihedral deviation from flat, in radians,
	// at which an unrealized surface edge may be fixed by flipping it to
	// the opposite diagonal instead of splitting. Default 20 degrees.
	SharpAngle float64
	// MaxRounds bounds the refine rounds before giving up. Default 64.
	MaxRounds int
}

const (
	defaultSharpAngle = 20 * math.Pi / 180
	defaultMaxRounds  = 64
)

// ConformStats reports what ToDelaunay did to the mesh.
type ConformStats struct {
	Rounds        int
	Flips         int
	EdgeSplits    int
	FaceSplits    int
	AddedVertices int
}

// ToDelaunay refines a closed surface mesh until every surface triangle is
// a face of the Delaunay tetrahedralization of the mesh vertices, which the
// skeleton pipeline requires. Each round tetrahedralizes the current vertex
// set and repairs the surface elements it does not realize: a flat enough
// unrealized edge is flipped to the opposite diagonal when that diagonal is
// a Delaunay edge, otherwise the edge is split near its midpoint at a
// power of two distance from an original vertex so that repeated splits of
// the same edge terminate. A triangle whose edges are all realized but that
// is still not a Delaunay face is split at its centroid. Inputs are not
// mutated.
func ToDelaunay(pts []r3.Vec, faces [][3]int, cfg ConformConfig) ([]r3.Vec, [][3]int, ConformStats, error) {
	if cfg.SharpAngle == 0 {
		cfg.SharpAngle = defaultSharpAngle
	}
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	cosSharp := math.Cos(cfg.SharpAngle)
	nOrig := len(pts)
	pts = append([]r3.Vec(nil), pts...)
	faces = append([][3]int(nil), faces...)

	var stats ConformStats
	for {
		d, err := delaunay.Tetrahedralize(pts)
		if err != nil {
			return nil, nil, stats, err
		}

		edgeFaces := make(map[[2]int][]int, 3*len(faces)/2)
		for fi, f := range faces {
			for j := 0; j < 3; j++ {
				e := edgeOf(f[j], f[(j+1)%3])
				edgeFaces[e] = append(edgeFaces[e], fi)
			}
		}
		var missingEdges [][2]int
		for e := range edgeFaces {
			if !d.IsEdge(e[0], e[1]) {
				missingEdges = append(missingEdges, e)
			}
		}
		sort.Slice(missingEdges, func(i, j int) bool {
			if missingEdges[i][0] != missingEdges[j][0] {
				return missingEdges[i][0] < missingEdges[j][0]
			}
			return missingEdges[i][1] < missingEdges[j][1]
		})
		var missingFaces []int
		for fi, f := range faces {
			if d.IsEdge(f[0], f[1]) && d.IsEdge(f[1], f[2]) && d.IsEdge(f[2], f[0]) &&
				!d.IsFace(f[0], f[1], f[2]) {
				missingFaces = append(missingFaces, fi)
			}
		}
		if len(missingEdges) == 0 && len(missingFaces) == 0 {
			stats.AddedVertices = len(pts) - nOrig
			return pts, faces, stats, nil
		}
		if stats.Rounds >= cfg.MaxRounds {
			return nil, nil, stats, fmt.Errorf("skel: surface did not conform to Delaunay in %d rounds (%d edges, %d faces unrealized)",
				stats.Rounds, len(missingEdges), len(missingFaces))
		}
		stats.Rounds++

		dirty := make([]bool, len(faces))
		removed := make(map[int]bool)
		var added [][3]int
		for _, e := range missingEdges {
			fs := edgeFaces[e]
			touched := false
			for _, fi := range fs {
				if dirty[fi] {
					touched = true
					break
				}
			}
			if touched {
				continue // repaired next round
			}
			if len(fs) == 2 && flipEdge(d, pts, faces, fs, e, cosSharp, removed, &added) {
				stats.Flips++
			} else {
				mi := len(pts)
				pts = append(pts, dyadicSplitPoint(pts, e, nOrig))
				for _, fi := range fs {
					p, q, w := orientEdge(faces[fi], e)
					removed[fi] = true
					added = append(added, [3]int{p, mi, w}, [3]int{mi, q, w})
				}
				stats.EdgeSplits++
			}
			for _, fi := range fs {
				dirty[fi] = true
			}
		}
		for _, fi := range missingFaces {
			if dirty[fi] || removed[fi] {
				continue
			}
			f := faces[fi]
			m := r3.Scale(1.0/3.0, r3.Add(r3.Add(pts[f[0]], pts[f[1]]), pts[f[2]]))
			mi := len(pts)
			pts = append(pts, m)
			removed[fi] = true
			added = append(added,
				[3]int{f[0], f[1], mi}, [3]int{f[1], f[2], mi}, [3]int{f[2], f[0], mi})
			stats.FaceSplits++
		}

		next := faces[:0:0]
		for fi, f := range faces {
			if !removed[fi] {
				next = append(next, f)
			}
		}
		faces = append(next, added...)
	}
}

// flipEdge replaces the two triangles around e with the pair over the
// opposite diagonal when the surface is locally flat enough and the
// diagonal is already a Delaunay edge. Reports whether it flipped.
func flipEdge(d *delaunay.Tetrahedralization, pts []r3.Vec, faces [][3]int,
	fs []int, e [2]int, cosSharp float64, removed map[int]bool, added *[][3]int) bool {
	p, q, a := orientEdge(faces[fs[0]], e)
	_, _, b := orientEdge(faces[fs[1]], e)
	if a == b || !d.IsEdge(a, b) {
		return false
	}
	n0 := triNormal(pts[p], pts[q], pts[a])
	n1 := triNormal(pts[q], pts[p], pts[b])
	if r3.Norm(n0) == 0 || r3.Norm(n1) == 0 ||
		r3.Dot(r3.Unit(n0), r3.Unit(n1)) < cosSharp {
		return false
	}
	// New triangles (p,b,a) and (b,q,a) keep the outer boundary p-a, a-q,
	// q-b, b-p and must not be degenerate.
	if r3.Norm(triNormal(pts[p], pts[b], pts[a])) == 0 ||
		r3.Norm(triNormal(pts[b], pts[q], pts[a])) == 0 {
		return false
	}
	removed[fs[0]] = true
	removed[fs[1]] = true
	*added = append(*added, [3]int{p, b, a}, [3]int{b, q, a})
	return true
}

// dyadicSplitPoint returns the split point of edge e: at a power of two
// distance from the preferred endpoint, whichever power lands closest to
// the midpoint. Endpoints that are original mesh vertices are preferred so
// split distances stay dyadic across rounds.
func dyadicSplitPoint(pts []r3.Vec, e [2]int, nOrig int) r3.Vec {
	u, v := e[0], e[1]
	if v < nOrig && u >= nOrig {
		u, v = v, u
	}
	dir := r3.Sub(pts[v], pts[u])
	length := r3.Norm(dir)
	k := math.Floor(math.Log2(length / 2))
	dist := math.Exp2(k)
	if up := math.Exp2(k + 1); up < length && math.Abs(up-length/2) < math.Abs(dist-length/2) {
		dist = up
	}
	return r3.Add(pts[u], r3.Scale(dist/length, dir))
}

// orientEdge returns the vertices of face f as (p,q,w) with (p,q) the edge
// e in the face's winding order and w the remaining vertex.
func orientEdge(f [3]int, e [2]int) (p, q, w int) {
	for i := 0; i < 3; i++ {
		a, b := f[i], f[(i+1)%3]
		if (a == e[0] && b == e[1]) || (a == e[1] && b == e[0]) {
			return a, b, f[(i+2)%3]
		}
	}
	panic("edge not in face")
}

func edgeOf(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

func triNormal(a, b, c r3.Vec) r3.Vec {
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}
