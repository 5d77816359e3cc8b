// Package delaunay builds 3D Delaunay tetrahedralizations by incremental
// insertion (Bowyer-Watson). Tetrahedra live in an index arena with explicit
// adjacency; retired slots are free-listed during cavity refills so the
// structure never holds dangling references mid-flip. Predicate ties on
// degenerate (cospherical) inputs are broken symbolically by point index,
// which makes construction deterministic and byte-for-byte reproducible.
package delaunay

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/skel/internal/d3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrDegenerateInput reports an input point set that spans fewer than
	// three dimensions or has fewer than four points.
	ErrDegenerateInput = errors.New("delaunay: degenerate input point set")
	// ErrDuplicatePoint reports two input points closer than the duplicate
	// tolerance.
	ErrDuplicatePoint = errors.New("delaunay: duplicate point")
)

// dupTolFrac scales with the bounding box diagonal to give the coincident
// point tolerance.
const dupTolFrac = 1e-12

// superScale sets how far the seed tetrahedron vertices sit from the input
// relative to its largest bounding box side.
const superScale = 1e5

// faceIdx lists the vertices of the face opposite each tetrahedron vertex,
// wound so that Orient3(face, opposite vertex) > 0 for a positively
// oriented tetrahedron. The winding points face normals away from the
// opposite vertex, so hull faces come out facing outward.
var faceIdx = [4][3]int{{1, 3, 2}, {0, 2, 3}, {0, 3, 1}, {0, 1, 2}}

type tetra struct {
	verts  [4]int32 // point indices, positively oriented
	adj    [4]int32 // adj[i] shares the face opposite verts[i]; -1 is the outer boundary
	center r3.Vec   // circumcenter, cached on creation
	radius float64  // circumradius
	dead   bool
}

// Tetrahedralization is a 3D Delaunay tetrahedralization of a point set.
// It is immutable once returned by Tetrahedralize.
type Tetrahedralization struct {
	pts  []r3.Vec
	all  []r3.Vec // pts plus the 4 super vertices while building
	tets []tetra
	free []int32
	hint int32

	// derived views, built lazily.
	edges map[[2]int32]int32    // representative incident tetrahedron
	faces map[[3]int32][2]int32 // the two adjacent tetrahedra, -1 for hull side
}

// Tetrahedralize computes the Delaunay tetrahedralization of pts. The input
// order defines the stable point indices referenced by all derived views.
// Fewer than 4 affinely independent points fail with ErrDegenerateInput and
// coincident points fail with ErrDuplicatePoint.
func Tetrahedralize(pts []r3.Vec) (*Tetrahedralization, error) {
	if len(pts) < 4 {
		return nil, fmt.Errorf("%w: got %d points, need at least 4", ErrDegenerateInput, len(pts))
	}
	bb := d3.Set(pts).Bounds()
	diag := bb.Diagonal()
	if diag == 0 {
		return nil, fmt.Errorf("%w: all points coincide", ErrDuplicatePoint)
	}
	if err := checkDuplicates(pts, dupTolFrac*diag); err != nil {
		return nil, err
	}
	t := &Tetrahedralization{pts: pts}
	t.initSuper(bb)
	for i := range pts {
		if err := t.insert(int32(i)); err != nil {
			return nil, err
		}
	}
	if err := t.finish(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tetrahedralization) initSuper(bb d3.Box) {
	c := bb.Center()
	h := superScale * math.Max(d3.Max(bb.Size()), 1)
	n := len(t.pts)
	t.all = make([]r3.Vec, n, n+4)
	copy(t.all, t.pts)
	// Regular tetrahedron directions; positively oriented as listed.
	t.all = append(t.all,
		r3.Add(c, r3.Vec{X: h, Y: h, Z: h}),
		r3.Add(c, r3.Vec{X: h, Y: -h, Z: -h}),
		r3.Add(c, r3.Vec{X: -h, Y: h, Z: -h}),
		r3.Add(c, r3.Vec{X: -h, Y: -h, Z: h}),
	)
	t.tets = []tetra{{
		verts: [4]int32{int32(n), int32(n + 1), int32(n + 2), int32(n + 3)},
		adj:   [4]int32{-1, -1, -1, -1},
	}}
	t.setSphere(0)
	t.hint = 0
}

// alloc returns a slot for a new tetrahedron, reusing retired slots.
func (t *Tetrahedralization) alloc() int32 {
	if n := len(t.free); n > 0 {
		i := t.free[n-1]
		t.free = t.free[:n-1]
		return i
	}
	t.tets = append(t.tets, tetra{})
	return int32(len(t.tets) - 1)
}

func (t *Tetrahedralization) setSphere(i int32) {
	tt := &t.tets[i]
	tt.center, tt.radius = circumsphere(
		t.all[tt.verts[0]], t.all[tt.verts[1]], t.all[tt.verts[2]], t.all[tt.verts[3]])
}

// circumsphere solves for the circumcenter as the least squares solution of
// the six perpendicular bisector constraints, one per tetrahedron edge.
func circumsphere(p0, p1, p2, p3 r3.Vec) (r3.Vec, float64) {
	pairs := [6][2]r3.Vec{{p0, p1}, {p1, p2}, {p2, p0}, {p3, p0}, {p3, p1}, {p3, p2}}
	data := make([]float64, 0, 18)
	rhs := make([]float64, 0, 6)
	for _, pr := range pairs {
		d := r3.Sub(pr[1], pr[0])
		data = append(data, d.X, d.Y, d.Z)
		rhs = append(rhs, 0.5*(r3.Norm2(pr[1])-r3.Norm2(pr[0])))
	}
	A := mat.NewDense(6, 3, data)
	b := mat.NewVecDense(6, rhs)
	var x mat.VecDense
	if err := x.SolveVec(A, b); err != nil {
		// Nearly flat tetrahedron. Fall back to the centroid so downstream
		// consumers always see a finite center.
		c := r3.Scale(0.25, r3.Add(r3.Add(p0, p1), r3.Add(p2, p3)))
		return c, r3.Norm(r3.Sub(c, p0))
	}
	c := r3.Vec{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
	return c, r3.Norm(r3.Sub(c, p0))
}

// locate walks from the hint tetrahedron towards p using orientation tests
// and returns a live tetrahedron containing p.
func (t *Tetrahedralization) locate(p r3.Vec) (int32, error) {
	cur := t.hint
	if cur < 0 || int(cur) >= len(t.tets) || t.tets[cur].dead {
		cur = -1
		for i := range t.tets {
			if !t.tets[i].dead {
				cur = int32(i)
				break
			}
		}
	}
	prev := int32(-1)
	maxSteps := 4*len(t.tets) + 64
	for steps := 0; cur >= 0 && steps < maxSteps; steps++ {
		tt := &t.tets[cur]
		next := int32(-1)
		fallback := int32(-1)
		inside := true
		for i := 0; i < 4; i++ {
			f := faceIdx[i]
			o := Orient3(t.all[tt.verts[f[0]]], t.all[tt.verts[f[1]]], t.all[tt.verts[f[2]]], p)
			if o >= 0 {
				continue
			}
			inside = false
			n := tt.adj[i]
			if n < 0 {
				continue
			}
			if n != prev {
				next = n
				break
			}
			fallback = n
		}
		if inside {
			return cur, nil
		}
		if next == -1 {
			next = fallback
		}
		if next == -1 {
			break
		}
		prev, cur = cur, next
	}
	// Orientation ties can stall the walk on degenerate inputs; a scan is
	// always correct.
	for i := range t.tets {
		if !t.tets[i].dead && t.containsPoint(int32(i), p) {
			return int32(i), nil
		}
	}
	return -1, errors.New("delaunay: point location failed")
}

func (t *Tetrahedralization) containsPoint(ti int32, p r3.Vec) bool {
	tt := &t.tets[ti]
	for i := 0; i < 4; i++ {
		f := faceIdx[i]
		if Orient3(t.all[tt.verts[f[0]]], t.all[tt.verts[f[1]]], t.all[tt.verts[f[2]]], p) < 0 {
			return false
		}
	}
	return true
}

// insert performs one Bowyer-Watson insertion: carve the cavity of
// tetrahedra whose circumsphere contains point ip, then re-triangulate the
// cavity boundary with ip as apex.
func (t *Tetrahedralization) insert(ip int32) error {
	p := t.all[ip]
	start, err := t.locate(p)
	if err != nil {
		return err
	}

	const (
		stateCavity  = 1
		stateOutside = 2
	)
	state := map[int32]int8{start: stateCavity}
	inCavity := func(ti int32) bool {
		if s, ok := state[ti]; ok {
			return s == stateCavity
		}
		tt := &t.tets[ti]
		in := inSpherePerturbed(
			t.all[tt.verts[0]], t.all[tt.verts[1]], t.all[tt.verts[2]], t.all[tt.verts[3]], p,
			int(tt.verts[0]), int(tt.verts[1]), int(tt.verts[2]), int(tt.verts[3]), int(ip)) > 0
		if in {
			state[ti] = stateCavity
		} else {
			state[ti] = stateOutside
		}
		return in
	}

	type boundaryFace struct {
		verts [3]int32
		out   int32 // tetrahedron outside the cavity, -1 at the hull
		outFi int8  // face slot of out adjacent to the cavity
	}
	var (
		cavity   = []int32{start}
		boundary []boundaryFace
	)
	for head := 0; head < len(cavity); head++ {
		ti := cavity[head]
		tt := t.tets[ti] // copy; the arena is appended to below
		for i := 0; i < 4; i++ {
			n := tt.adj[i]
			fv := [3]int32{tt.verts[faceIdx[i][0]], tt.verts[faceIdx[i][1]], tt.verts[faceIdx[i][2]]}
			if n < 0 {
				boundary = append(boundary, boundaryFace{verts: fv, out: -1, outFi: -1})
				continue
			}
			if _, seen := state[n]; !seen && inCavity(n) {
				cavity = append(cavity, n)
				continue
			}
			if state[n] == stateCavity {
				continue // internal cavity face
			}
			var fi int8 = -1
			for j := 0; j < 4; j++ {
				if t.tets[n].adj[j] == ti {
					fi = int8(j)
					break
				}
			}
			boundary = append(boundary, boundaryFace{verts: fv, out: n, outFi: fi})
		}
	}

	for _, ti := range cavity {
		t.tets[ti].dead = true
		t.free = append(t.free, ti)
	}

	// Refill: one tetrahedron per boundary face, apex at ip. New tetrahedra
	// sharing a boundary edge are neighbors across the side face through ip.
	sideLink := make(map[[2]int32][2]int32, 2*len(boundary))
	for _, bf := range boundary {
		ni := t.alloc()
		t.tets[ni] = tetra{
			verts: [4]int32{bf.verts[0], bf.verts[1], bf.verts[2], ip},
			adj:   [4]int32{-1, -1, -1, -1},
		}
		t.setSphere(ni)
		t.tets[ni].adj[3] = bf.out
		if bf.out >= 0 {
			t.tets[bf.out].adj[bf.outFi] = ni
		}
		for j := int32(0); j < 3; j++ {
			e := edgeKey(bf.verts[(j+1)%3], bf.verts[(j+2)%3])
			if other, ok := sideLink[e]; ok {
				t.tets[ni].adj[j] = other[0]
				t.tets[other[0]].adj[other[1]] = ni
				delete(sideLink, e)
			} else {
				sideLink[e] = [2]int32{ni, j}
			}
		}
		t.hint = ni
	}
	if len(sideLink) != 0 {
		return errors.New("delaunay: cavity boundary is not a closed surface")
	}
	return nil
}

// finish retires the super tetrahedron and compacts the arena so external
// indices are dense and stable.
func (t *Tetrahedralization) finish() error {
	n := int32(len(t.pts))
	remap := make([]int32, len(t.tets))
	live := make([]tetra, 0, len(t.tets))
	for i := range t.tets {
		tt := &t.tets[i]
		if tt.dead || tt.verts[0] >= n || tt.verts[1] >= n || tt.verts[2] >= n || tt.verts[3] >= n {
			remap[i] = -1
			continue
		}
		remap[i] = int32(len(live))
		live = append(live, *tt)
	}
	for i := range live {
		for j := 0; j < 4; j++ {
			if a := live[i].adj[j]; a >= 0 {
				live[i].adj[j] = remap[a]
			}
		}
	}
	if len(live) == 0 {
		return fmt.Errorf("%w: points are coplanar", ErrDegenerateInput)
	}
	t.tets = live
	t.free = nil
	t.all = t.all[:n]
	t.hint = 0
	return nil
}

// Len returns the number of tetrahedra.
func (t *Tetrahedralization) Len() int { return len(t.tets) }

// Points returns the input point slice. Callers must not mutate it.
func (t *Tetrahedralization) Points() []r3.Vec { return t.pts }

// Tetra returns the four point indices of tetrahedron i in positive
// orientation.
func (t *Tetrahedralization) Tetra(i int) [4]int {
	v := t.tets[i].verts
	return [4]int{int(v[0]), int(v[1]), int(v[2]), int(v[3])}
}

// Adjacent returns the neighbor indices of tetrahedron i; entry j is the
// tetrahedron sharing the face opposite vertex j, or -1 on the hull.
func (t *Tetrahedralization) Adjacent(i int) [4]int {
	a := t.tets[i].adj
	return [4]int{int(a[0]), int(a[1]), int(a[2]), int(a[3])}
}

// Circumsphere returns the cached circumcenter and circumradius of
// tetrahedron i.
func (t *Tetrahedralization) Circumsphere(i int) (center r3.Vec, radius float64) {
	return t.tets[i].center, t.tets[i].radius
}

// Face returns the point indices of face j of tetrahedron i (the face
// opposite vertex j), wound away from the tetrahedron interior.
func (t *Tetrahedralization) Face(i, j int) [3]int {
	v := t.tets[i].verts
	f := faceIdx[j]
	return [3]int{int(v[f[0]]), int(v[f[1]]), int(v[f[2]])}
}

// BoundaryFaces returns the convex hull triangles with outward winding.
func (t *Tetrahedralization) BoundaryFaces() [][3]int {
	var faces [][3]int
	for i := range t.tets {
		for j := 0; j < 4; j++ {
			if t.tets[i].adj[j] == -1 {
				faces = append(faces, t.Face(i, j))
			}
		}
	}
	return faces
}

func (t *Tetrahedralization) ensureMaps() {
	if t.edges != nil {
		return
	}
	t.edges = make(map[[2]int32]int32)
	t.faces = make(map[[3]int32][2]int32)
	for i := range t.tets {
		v := t.tets[i].verts
		for a := 0; a < 4; a++ {
			for b := a + 1; b < 4; b++ {
				e := edgeKey(v[a], v[b])
				if _, ok := t.edges[e]; !ok {
					t.edges[e] = int32(i)
				}
			}
		}
		for j := 0; j < 4; j++ {
			fk := faceKey32(v[faceIdx[j][0]], v[faceIdx[j][1]], v[faceIdx[j][2]])
			if _, ok := t.faces[fk]; !ok {
				t.faces[fk] = [2]int32{int32(i), t.tets[i].adj[j]}
			}
		}
	}
}

// Edges returns every Delaunay edge once, endpoints sorted.
func (t *Tetrahedralization) Edges() [][2]int {
	t.ensureMaps()
	out := make([][2]int, 0, len(t.edges))
	for e := range t.edges {
		out = append(out, [2]int{int(e[0]), int(e[1])})
	}
	return out
}

// Faces returns every Delaunay triangle once, vertices sorted.
func (t *Tetrahedralization) Faces() [][3]int {
	t.ensureMaps()
	out := make([][3]int, 0, len(t.faces))
	for f := range t.faces {
		out = append(out, [3]int{int(f[0]), int(f[1]), int(f[2])})
	}
	return out
}

// IsEdge reports whether the segment between the two point indices is a
// Delaunay edge.
func (t *Tetrahedralization) IsEdge(u, v int) bool {
	t.ensureMaps()
	_, ok := t.edges[edgeKey(int32(u), int32(v))]
	return ok
}

// IsFace reports whether the triangle over the three point indices is a
// Delaunay face.
func (t *Tetrahedralization) IsFace(a, b, c int) bool {
	t.ensureMaps()
	_, ok := t.faces[faceKey32(int32(a), int32(b), int32(c))]
	return ok
}

// FaceTetra returns the one or two tetrahedra adjacent to the given
// triangle; the second index is -1 for hull faces. ok is false when the
// triangle is not a Delaunay face.
func (t *Tetrahedralization) FaceTetra(a, b, c int) (pair [2]int, ok bool) {
	t.ensureMaps()
	p, ok := t.faces[faceKey32(int32(a), int32(b), int32(c))]
	return [2]int{int(p[0]), int(p[1])}, ok
}

// EdgeRing returns the tetrahedra incident to edge (u,v) in rotational
// order around the edge. closed reports whether the ring wraps around
// (the edge is interior to the hull). ok is false when (u,v) is not a
// Delaunay edge.
func (t *Tetrahedralization) EdgeRing(u, v int) (ring []int, closed, ok bool) {
	t.ensureMaps()
	start, found := t.edges[edgeKey(int32(u), int32(v))]
	if !found {
		return nil, false, false
	}
	ring, closed = t.walkRing(start, int32(u), int32(v), false)
	if closed {
		return ring, true, true
	}
	back, _ := t.walkRing(start, int32(u), int32(v), true)
	// back walks the other rotational direction from the same start, so its
	// tail joins the front of the ring reversed.
	out := make([]int, 0, len(back)-1+len(ring))
	for i := len(back) - 1; i >= 1; i-- {
		out = append(out, back[i])
	}
	return append(out, ring...), false, true
}

// walkRing traverses tetrahedra around edge (u,v) starting at start,
// crossing one of the two faces containing the edge. second selects the
// starting direction.
func (t *Tetrahedralization) walkRing(start, u, v int32, second bool) (ring []int, closed bool) {
	prev := int32(-1)
	cur := start
	for {
		ring = append(ring, int(cur))
		tt := &t.tets[cur]
		// The two crossing faces are those opposite the vertices that are
		// not u or v.
		var cross [2]int32
		nc := 0
		for j := 0; j < 4; j++ {
			if tt.verts[j] != u && tt.verts[j] != v {
				cross[nc] = tt.adj[j]
				nc++
			}
		}
		next := int32(-1)
		switch {
		case prev == -1 && !second:
			next = cross[0]
		case prev == -1 && second:
			next = cross[1]
		case cross[0] != prev:
			next = cross[0]
		default:
			next = cross[1]
		}
		if next == start {
			return ring, true
		}
		if next == -1 {
			return ring, false
		}
		prev, cur = cur, next
	}
}

// Poles returns, per input point, the incident tetrahedron whose
// circumcenter lies farthest from the point (its Voronoi pole), or -1 for
// points with no incident tetrahedron.
func (t *Tetrahedralization) Poles() []int {
	poles := make([]int, len(t.pts))
	best := make([]float64, len(t.pts))
	for i := range poles {
		poles[i] = -1
	}
	for ti := range t.tets {
		c := t.tets[ti].center
		for _, v := range t.tets[ti].verts {
			d2 := r3.Norm2(r3.Sub(c, t.pts[v]))
			if poles[v] == -1 || d2 > best[v] {
				poles[v] = ti
				best[v] = d2
			}
		}
	}
	return poles
}

func edgeKey(a, b int32) [2]int32 {
	if a > b {
		a, b = b, a
	}
	return [2]int32{a, b}
}

func faceKey32(a, b, c int32) [3]int32 {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b, c = c, b
	}
	if a > b {
		a, b = b, a
	}
	return [3]int32{a, b, c}
}
