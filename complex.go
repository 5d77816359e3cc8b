package skel

import "gonum.org/v1/gonum/spatial/r3"

// Node is a skeleton vertex: the Voronoi vertex dual to an interior
// Delaunay tetrahedron, carrying that tetrahedron's circumscribing ball.
type Node struct {
	Tetra  int // generating tetrahedron index
	Center r3.Vec
	Radius float64
}

// Polygon is the Voronoi polygon dual to an interior Delaunay edge. Ring
// lists node indices in rotational order around the edge. Anchor holds the
// generating edge's point indices; the anchor pair drives saliency scoring.
type Polygon struct {
	Ring   []int
	Anchor [2]int
}

// Segment is the Voronoi segment dual to an interior Delaunay triangle,
// connecting the nodes of the two tetrahedra sharing it. Anchors holds the
// generating triangle's point indices.
type Segment struct {
	A, B    int
	Anchors [3]int
}

// Sheet is a maximal connected set of polygons glued across shared Voronoi
// segments. Curves lists the bounding seam curves by index into
// Complex.Curves.
type Sheet struct {
	Polygons []Polygon
	Curves   []int
}

// Curve is a chain of Voronoi segments along which three or more sheets
// meet. Sheets lists the incident sheets by index into Complex.Sheets.
type Curve struct {
	Segments []Segment
	Sheets   []int
}

// Junction is a skeleton node where three or more curves meet.
type Junction struct {
	Node   int
	Curves []int
}

// Complex is the skeletal complex of a solid: sheets (2D), curves (1D) and
// junctions (0D) over a shared node set. Points aliases the input point
// slice the anchors index into.
type Complex struct {
	Points    []r3.Vec
	Nodes     []Node
	Sheets    []Sheet
	Curves    []Curve
	Junctions []Junction

	// Collapsed reports that pruning removed every primitive.
	Collapsed bool
	// Warnings carries non-fatal anomalies from upstream stages.
	Warnings []string
}

// Empty reports whether the complex has no primitives.
func (c *Complex) Empty() bool {
	return len(c.Sheets) == 0 && len(c.Curves) == 0 && len(c.Junctions) == 0
}
