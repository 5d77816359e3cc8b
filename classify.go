package skel

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/soypat/skel/delaunay"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrNonManifoldSurface reports a surface whose inside and outside cannot be
// told apart consistently.
var ErrNonManifoldSurface = errors.New("skel: surface does not separate interior from exterior")

// Label classifies a tetrahedron against the input surface.
type Label int8

const (
	Exterior Label = iota
	Interior
)

// Labeling assigns an interior/exterior label to every tetrahedron of a
// tetrahedralization relative to a closed input surface.
type Labeling struct {
	tets []Label
	surf map[[3]int]bool

	// Warnings collects non-fatal anomalies: leaked faces and tetrahedra
	// whose label had to be resolved by ray casting.
	Warnings []string
}

// Tet returns the label of tetrahedron i.
func (l *Labeling) Tet(i int) Label { return l.tets[i] }

// Interior reports whether tetrahedron i is inside the surface.
func (l *Labeling) Interior(i int) bool { return l.tets[i] == Interior }

// OnSurface reports whether the triangle over the three point indices is an
// input surface face.
func (l *Labeling) OnSurface(a, b, c int) bool { return l.surf[faceKey(a, b, c)] }

// InteriorCount returns the number of interior tetrahedra.
func (l *Labeling) InteriorCount() int {
	n := 0
	for _, lb := range l.tets {
		if lb == Interior {
			n++
		}
	}
	return n
}

func faceKey(a, b, c int) [3]int {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b, c = c, b
	}
	if a > b {
		a, b = b, a
	}
	return [3]int{a, b, c}
}

// Classify labels every tetrahedron of d as interior or exterior to the
// closed surface given by faces (point indices into d's point set). The
// labels are flood filled from the unbounded outside, flipping at each
// surface crossing. Inconsistent flips mean the surface does not enclose a
// well defined solid; with bestEffort the affected tetrahedra are instead
// resolved by parity ray casting and a warning is recorded, otherwise
// classification fails with ErrNonManifoldSurface.
func Classify(d *delaunay.Tetrahedralization, faces [][3]int, bestEffort bool) (*Labeling, error) {
	l := &Labeling{
		tets: make([]Label, d.Len()),
		surf: make(map[[3]int]bool, len(faces)),
	}
	for _, f := range faces {
		l.surf[faceKey(f[0], f[1], f[2])] = true
	}

	seen := make([]bool, d.Len())
	var conflicts []int
	var queue []int

	// Hull faces border the unbounded exterior region.
	for i := 0; i < d.Len(); i++ {
		adj := d.Adjacent(i)
		for j := 0; j < 4; j++ {
			if adj[j] != -1 {
				continue
			}
			f := d.Face(i, j)
			lab := Exterior
			if l.surf[faceKey(f[0], f[1], f[2])] {
				lab = Interior
			}
			if !seen[i] {
				seen[i] = true
				l.tets[i] = lab
				queue = append(queue, i)
			} else if l.tets[i] != lab {
				conflicts = append(conflicts, i)
			}
		}
	}
	for head := 0; head < len(queue); head++ {
		i := queue[head]
		adj := d.Adjacent(i)
		for j := 0; j < 4; j++ {
			n := adj[j]
			if n < 0 {
				continue
			}
			f := d.Face(i, j)
			lab := l.tets[i]
			if l.surf[faceKey(f[0], f[1], f[2])] {
				lab = 1 - lab
			}
			if !seen[n] {
				seen[n] = true
				l.tets[n] = lab
				queue = append(queue, n)
			} else if l.tets[n] != lab {
				conflicts = append(conflicts, n)
			}
		}
	}

	if len(conflicts) > 0 {
		if !bestEffort {
			return nil, fmt.Errorf("%w: %d tetrahedra with conflicting labels", ErrNonManifoldSurface, len(conflicts))
		}
		sort.Ints(conflicts)
		rc := newRayCaster(d.Points(), faces)
		resolved := make(map[int]bool, len(conflicts))
		for _, ti := range conflicts {
			if resolved[ti] {
				continue
			}
			resolved[ti] = true
			c, _ := d.Circumsphere(ti)
			lab, ok := rc.classify(c)
			if !ok {
				l.Warnings = append(l.Warnings, fmt.Sprintf("tetrahedron %d: ray parity ambiguous, keeping flood label", ti))
				continue
			}
			l.tets[ti] = lab
		}
		l.Warnings = append(l.Warnings, fmt.Sprintf("%d conflicting labels resolved by ray parity", len(conflicts)))
	}

	// A non-surface face between an interior and an exterior tetrahedron is
	// a leak in the input surface.
	leaks := 0
	for i := 0; i < d.Len(); i++ {
		adj := d.Adjacent(i)
		for j := 0; j < 4; j++ {
			n := adj[j]
			if n < i {
				continue // visit each interior face once
			}
			f := d.Face(i, j)
			if l.tets[i] != l.tets[n] && !l.surf[faceKey(f[0], f[1], f[2])] {
				leaks++
			}
		}
	}
	if leaks > 0 {
		l.Warnings = append(l.Warnings, fmt.Sprintf("%d label changes across non-surface faces", leaks))
	}
	return l, nil
}

// rayCaster answers point in solid queries by parity ray casting against the
// surface triangles, indexed in an R-tree.
type rayCaster struct {
	tree *rtreego.Rtree
	diag float64
}

type rayTri struct {
	p0, p1, p2 r3.Vec
	rect       *rtreego.Rect
}

func (t *rayTri) Bounds() *rtreego.Rect { return t.rect }

func triRect(p0, p1, p2 r3.Vec) *rtreego.Rect {
	min := r3.Vec{
		X: math.Min(p0.X, math.Min(p1.X, p2.X)),
		Y: math.Min(p0.Y, math.Min(p1.Y, p2.Y)),
		Z: math.Min(p0.Z, math.Min(p1.Z, p2.Z)),
	}
	max := r3.Vec{
		X: math.Max(p0.X, math.Max(p1.X, p2.X)),
		Y: math.Max(p0.Y, math.Max(p1.Y, p2.Y)),
		Z: math.Max(p0.Z, math.Max(p1.Z, p2.Z)),
	}
	const pad = 1e-9
	r, err := rtreego.NewRect(
		rtreego.Point{min.X - pad, min.Y - pad, min.Z - pad},
		[]float64{max.X - min.X + 2*pad, max.Y - min.Y + 2*pad, max.Z - min.Z + 2*pad})
	if err != nil {
		panic(err)
	}
	return r
}

func newRayCaster(pts []r3.Vec, faces [][3]int) *rayCaster {
	tree := rtreego.NewTree(3, 8, 16)
	min := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, f := range faces {
		p0, p1, p2 := pts[f[0]], pts[f[1]], pts[f[2]]
		tree.Insert(&rayTri{p0: p0, p1: p1, p2: p2, rect: triRect(p0, p1, p2)})
		for _, p := range []r3.Vec{p0, p1, p2} {
			min.X, min.Y, min.Z = math.Min(min.X, p.X), math.Min(min.Y, p.Y), math.Min(min.Z, p.Z)
			max.X, max.Y, max.Z = math.Max(max.X, p.X), math.Max(max.Y, p.Y), math.Max(max.Z, p.Z)
		}
	}
	return &rayCaster{tree: tree, diag: r3.Norm(r3.Sub(max, min))}
}

// rayDirs are the cast directions tried in order. None is axis aligned so
// grid meshes rarely produce grazing hits on the first try.
var rayDirs = []r3.Vec{
	{X: 0.2672612419124244, Y: 0.5345224838248488, Z: 0.8017837257372732},
	{X: -0.5883484054145521, Y: 0.7844645405527362, Z: 0.19611613513818404},
	{X: 0.8017837257372732, Y: -0.2672612419124244, Z: 0.5345224838248488},
	{X: -0.4242640687119285, Y: -0.5656854249492381, Z: 0.7071067811865475},
	{X: 0.48507125007266594, Y: 0.7276068751090004, Z: -0.48507125007266594},
	{X: -0.6837634587578276, Y: 0.22792115291927586, Z: -0.6837634587578276},
}

// classify returns the parity label of p, trying each cast direction until
// one yields an unambiguous crossing count.
func (rc *rayCaster) classify(p r3.Vec) (Label, bool) {
	for _, dir := range rayDirs {
		if n, ok := rc.countCrossings(p, dir); ok {
			if n%2 == 1 {
				return Interior, true
			}
			return Exterior, true
		}
	}
	return Exterior, false
}

func (rc *rayCaster) countCrossings(o, dir r3.Vec) (int, bool) {
	end := r3.Add(o, r3.Scale(2*rc.diag, dir))
	min := r3.Vec{X: math.Min(o.X, end.X), Y: math.Min(o.Y, end.Y), Z: math.Min(o.Z, end.Z)}
	max := r3.Vec{X: math.Max(o.X, end.X), Y: math.Max(o.Y, end.Y), Z: math.Max(o.Z, end.Z)}
	const pad = 1e-9
	q, err := rtreego.NewRect(
		rtreego.Point{min.X - pad, min.Y - pad, min.Z - pad},
		[]float64{max.X - min.X + 2*pad, max.Y - min.Y + 2*pad, max.Z - min.Z + 2*pad})
	if err != nil {
		return 0, false
	}
	n := 0
	for _, sp := range rc.tree.SearchIntersect(q) {
		tri := sp.(*rayTri)
		t, u, v, hit := rayTriangle(o, dir, tri.p0, tri.p1, tri.p2)
		if !hit {
			continue
		}
		const tol = 1e-9
		if t < tol || u < tol || v < tol || u+v > 1-tol {
			// Grazing the triangle boundary or starting on the surface;
			// the parity of this direction cannot be trusted.
			return 0, false
		}
		n++
	}
	return n, true
}

// rayTriangle is the Moller-Trumbore ray triangle intersection. It returns
// the ray parameter t and barycentric coordinates (u,v) of the hit.
func rayTriangle(o, dir, p0, p1, p2 r3.Vec) (t, u, v float64, ok bool) {
	e1 := r3.Sub(p1, p0)
	e2 := r3.Sub(p2, p0)
	h := r3.Cross(dir, e2)
	det := r3.Dot(e1, h)
	if math.Abs(det) < 1e-14 {
		return 0, 0, 0, false
	}
	inv := 1 / det
	s := r3.Sub(o, p0)
	u = inv * r3.Dot(s, h)
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	q := r3.Cross(s, e1)
	v = inv * r3.Dot(dir, q)
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	t = inv * r3.Dot(e2, q)
	if t < 0 {
		return 0, 0, 0, false
	}
	return t, u, v, true
}
