// Package skel extracts skeletal complexes from closed triangle meshes.
//
// The skeleton of a solid is approximated by the Voronoi dual of a Delaunay
// tetrahedralization restricted to the tetrahedra inside the surface: sheets
// where the solid is locally slab-like, curves where sheets meet and
// junctions where curves meet. A saliency threshold then prunes the features
// that account for little solid, such as the spikes the raw Voronoi diagram
// grows towards every surface vertex.
//
// The input surface must be a sub-complex of the Delaunay tetrahedralization
// of its own vertices for the interior to be well defined; ToDelaunay
// refines an arbitrary closed mesh into one that is.
package skel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/soypat/skel/delaunay"
)

// Config parameterizes Skeletonize.
type Config struct {
	// Epsilon is the absolute saliency threshold below which skeleton
	// primitives are pruned. Zero keeps the raw complex.
	Epsilon float64
	// BestEffort downgrades non-manifold classification failures to
	// warnings, resolving ambiguous tetrahedra by ray casting.
	BestEffort bool
}

// Skeletonize computes the pruned skeletal complex of the solid bounded by
// the triangles over faces. It is a pure function of its arguments: equal
// inputs give equal complexes. The surface triangles must appear as faces
// of the Delaunay tetrahedralization of pts; run ToDelaunay first when they
// may not.
func Skeletonize(pts []r3.Vec, faces [][3]int, cfg Config) (*Complex, error) {
	// Parameters are rejected before any geometry work starts.
	if cfg.Epsilon < 0 || math.IsNaN(cfg.Epsilon) {
		return nil, fmt.Errorf("%w: pruning threshold %v must be >= 0", ErrInvalidParameter, cfg.Epsilon)
	}
	d, err := delaunay.Tetrahedralize(pts)
	if err != nil {
		return nil, err
	}
	lab, err := Classify(d, faces, cfg.BestEffort)
	if err != nil {
		return nil, err
	}
	c := Extract(d, lab)
	c.Warnings = lab.Warnings
	if err := c.Prune(cfg.Epsilon); err != nil {
		return nil, err
	}
	return c, nil
}
