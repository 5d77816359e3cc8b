// Package meshio reads and writes the triangle mesh and skeleton geometry
// consumed and produced by the skeletonization pipeline. The core packages
// operate on in-memory point and face slices only; everything touching the
// filesystem lives here.
package meshio

import (
	"errors"
	"fmt"

	"github.com/soypat/skel/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Triangle is a triangle in 3D space.
type Triangle [3]r3.Vec

// Normal returns the triangle unit normal by right hand rule.
func (t Triangle) Normal() r3.Vec {
	e1 := r3.Sub(t[1], t[0])
	e2 := r3.Sub(t[2], t[0])
	return r3.Unit(r3.Cross(e1, e2))
}

// Degenerate returns true if the triangle has near zero area.
func (t Triangle) Degenerate(tol float64) bool {
	e1 := r3.Sub(t[1], t[0])
	e2 := r3.Sub(t[2], t[0])
	return r3.Norm(r3.Cross(e1, e2)) <= tol
}

// Mesh is an indexed triangle mesh. Faces reference Vertices zero-based.
type Mesh struct {
	Vertices []r3.Vec
	Faces    [][3]int
}

// Triangles expands the indexed faces into standalone triangles.
func (m Mesh) Triangles() []Triangle {
	tris := make([]Triangle, len(m.Faces))
	for i, f := range m.Faces {
		tris[i] = Triangle{m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]}
	}
	return tris
}

// Bounds returns the mesh bounding box.
func (m Mesh) Bounds() d3.Box {
	return d3.Set(m.Vertices).Bounds()
}

// Check validates face indices and watertightness: every edge must be
// shared by exactly two faces with opposite winding.
func (m Mesh) Check() error {
	if len(m.Vertices) == 0 {
		return errors.New("mesh has no vertices")
	}
	directed := make(map[[2]int]int, 3*len(m.Faces))
	for i, f := range m.Faces {
		for j := 0; j < 3; j++ {
			a, b := f[j], f[(j+1)%3]
			if a < 0 || a >= len(m.Vertices) || b < 0 || b >= len(m.Vertices) {
				return fmt.Errorf("face %d references vertex out of range", i)
			}
			if a == b {
				return fmt.Errorf("face %d is degenerate", i)
			}
			directed[[2]int{a, b}]++
		}
	}
	for e, n := range directed {
		if n != 1 {
			return fmt.Errorf("surface is not manifold: directed edge %d-%d used %d times", e[0], e[1], n)
		}
		if directed[[2]int{e[1], e[0]}] != 1 {
			return fmt.Errorf("surface is not closed at edge %d-%d", e[0], e[1])
		}
	}
	return nil
}
