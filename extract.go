package skel

import (
	"sort"

	"github.com/soypat/skel/delaunay"
)

// Extract builds the skeletal complex of the interior tetrahedra: the
// Voronoi dual restricted to the solid. Interior Delaunay edges dualize to
// polygons, interior triangles to segments. A segment bordered by exactly
// two polygons glues them into one sheet; a segment bordered by three
// polygons is a seam where sheets meet and becomes part of a curve. Nodes
// where three or more curve segments meet become junctions.
//
// Iteration orders are fixed by sorting every derived element list, so the
// result depends only on the tetrahedralization, not on map traversal.
func Extract(d *delaunay.Tetrahedralization, lab *Labeling) *Complex {
	c := &Complex{Points: d.Points()}

	nodeOf := make(map[int]int)
	node := func(ti int) int {
		if ni, ok := nodeOf[ti]; ok {
			return ni
		}
		ni := len(c.Nodes)
		center, radius := d.Circumsphere(ti)
		c.Nodes = append(c.Nodes, Node{Tetra: ti, Center: center, Radius: radius})
		nodeOf[ti] = ni
		return ni
	}

	// Polygons: one per Delaunay edge whose tetrahedron ring closes inside
	// the solid.
	edges := d.Edges()
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	var polys []Polygon
	polyByEdge := make(map[[2]int]int)
	for _, e := range edges {
		ring, closed, ok := d.EdgeRing(e[0], e[1])
		if !ok || !closed {
			continue
		}
		interior := true
		for _, ti := range ring {
			if !lab.Interior(ti) {
				interior = false
				break
			}
		}
		if !interior {
			continue
		}
		p := Polygon{Ring: make([]int, len(ring)), Anchor: [2]int{e[0], e[1]}}
		for i, ti := range ring {
			p.Ring[i] = node(ti)
		}
		polyByEdge[[2]int{e[0], e[1]}] = len(polys)
		polys = append(polys, p)
	}

	// Segments: one per triangle between two interior tetrahedra. The
	// number of bordering polygons decides the segment's role.
	faces := d.Faces()
	sort.Slice(faces, func(i, j int) bool {
		if faces[i][0] != faces[j][0] {
			return faces[i][0] < faces[j][0]
		}
		if faces[i][1] != faces[j][1] {
			return faces[i][1] < faces[j][1]
		}
		return faces[i][2] < faces[j][2]
	})
	uf := newUnionFind(0)
	type seamSeg struct {
		seg   Segment
		polys [3]int
	}
	var seams []seamSeg
	for _, f := range faces {
		pair, ok := d.FaceTetra(f[0], f[1], f[2])
		if !ok || pair[0] < 0 || pair[1] < 0 ||
			!lab.Interior(pair[0]) || !lab.Interior(pair[1]) {
			continue
		}
		var border [3]int
		k := 0
		for _, e := range [3][2]int{{f[0], f[1]}, {f[0], f[2]}, {f[1], f[2]}} {
			if pi, ok := polyByEdge[e]; ok {
				border[k] = pi
				k++
			}
		}
		switch {
		case k == 3:
			seams = append(seams, seamSeg{
				seg:   Segment{A: node(pair[0]), B: node(pair[1]), Anchors: f},
				polys: border,
			})
		case k == 2:
			uf.grow(len(polys))
			uf.union(border[0], border[1])
		}
	}

	// Sheets are the glued polygon components, numbered by first polygon.
	uf.grow(len(polys))
	sheetOf := make([]int, len(polys))
	rootSheet := make(map[int]int)
	for pi := range polys {
		root := uf.find(pi)
		si, ok := rootSheet[root]
		if !ok {
			si = len(c.Sheets)
			rootSheet[root] = si
			c.Sheets = append(c.Sheets, Sheet{})
		}
		sheetOf[pi] = si
		c.Sheets[si].Polygons = append(c.Sheets[si].Polygons, polys[pi])
	}

	// Chain seam segments into curves between high degree nodes.
	incident := make(map[int][]int)
	for i, s := range seams {
		incident[s.seg.A] = append(incident[s.seg.A], i)
		incident[s.seg.B] = append(incident[s.seg.B], i)
	}
	isStop := func(n int) bool { return len(incident[n]) != 2 }
	used := make([]bool, len(seams))
	endpoints := make(map[int][]int) // node -> incident curve indices
	addCurve := func(segIdx []int, a, b int) {
		ci := len(c.Curves)
		cu := Curve{}
		sheetSet := make(map[int]bool)
		for _, si := range segIdx {
			cu.Segments = append(cu.Segments, seams[si].seg)
			for _, pi := range seams[si].polys {
				sheetSet[sheetOf[pi]] = true
			}
		}
		cu.Sheets = sortedKeys(sheetSet)
		for _, si := range cu.Sheets {
			c.Sheets[si].Curves = append(c.Sheets[si].Curves, ci)
		}
		c.Curves = append(c.Curves, cu)
		endpoints[a] = append(endpoints[a], ci)
		if b != a {
			endpoints[b] = append(endpoints[b], ci)
		}
	}
	walk := func(start, first int) {
		chain := []int{first}
		used[first] = true
		cur := other(seams[first].seg, start)
		for !isStop(cur) {
			next := -1
			for _, si := range incident[cur] {
				if !used[si] {
					next = si
					break
				}
			}
			if next == -1 {
				break // closed back into the chain
			}
			used[next] = true
			chain = append(chain, next)
			cur = other(seams[next].seg, cur)
		}
		addCurve(chain, start, cur)
	}
	stops := make([]int, 0, len(incident))
	for n, segs := range incident {
		if len(segs) != 2 {
			stops = append(stops, n)
		}
	}
	sort.Ints(stops)
	for _, n := range stops {
		for _, si := range incident[n] {
			if !used[si] {
				walk(n, si)
			}
		}
	}
	for si := range seams {
		if !used[si] {
			// Closed seam loop with no endpoint of odd degree.
			walk(seams[si].seg.A, si)
		}
	}

	c.Junctions = junctionNodes(stops, endpoints)
	return c
}

// junctionNodes keeps the stop nodes where at least three distinct curves
// converge. A curve looping back to its own endpoint does not count double.
func junctionNodes(stops []int, endpoints map[int][]int) []Junction {
	var out []Junction
	for _, n := range stops {
		j := Junction{Node: n}
		seen := make(map[int]bool)
		for _, ci := range endpoints[n] {
			if !seen[ci] {
				seen[ci] = true
				j.Curves = append(j.Curves, ci)
			}
		}
		if len(j.Curves) < 3 {
			continue
		}
		sort.Ints(j.Curves)
		out = append(out, j)
	}
	return out
}

func other(s Segment, n int) int {
	if s.A == n {
		return s.B
	}
	return s.A
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{}
	uf.grow(n)
	return uf
}

func (u *unionFind) grow(n int) {
	for len(u.parent) < n {
		u.parent = append(u.parent, len(u.parent))
	}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra > rb {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
