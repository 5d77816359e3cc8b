package delaunay

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// kd-tree plumbing for duplicate point detection during input validation.

type kdPoint struct {
	v   r3.Vec
	idx int
}

func (p kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(kdPoint)
	switch d {
	case 0:
		return p.v.X - q.v.X
	case 1:
		return p.v.Y - q.v.Y
	default:
		return p.v.Z - q.v.Z
	}
}

func (p kdPoint) Dims() int { return 3 }

func (p kdPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(kdPoint)
	return r3.Norm2(r3.Sub(p.v, q.v))
}

type pointSet []kdPoint

// Index returns the ith element of the list of points.
func (s pointSet) Index(i int) kdtree.Comparable { return s[i] }

// Len returns the length of the list.
func (s pointSet) Len() int { return len(s) }

// Pivot partitions the list based on the dimension specified.
func (s pointSet) Pivot(d kdtree.Dim) int {
	p := kdPlane{dim: int(d), pts: s}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

// Slice returns a slice of the list using zero-based half
// open indexing equivalent to built-in slice indexing.
func (s pointSet) Slice(start, end int) kdtree.Interface { return s[start:end] }

type kdPlane struct {
	dim int
	pts pointSet
}

func (p kdPlane) Less(i, j int) bool {
	return p.pts[i].Compare(p.pts[j], kdtree.Dim(p.dim)) < 0
}
func (p kdPlane) Swap(i, j int) { p.pts[i], p.pts[j] = p.pts[j], p.pts[i] }
func (p kdPlane) Len() int      { return len(p.pts) }
func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.pts = p.pts[start:end]
	return p
}

// checkDuplicates returns ErrDuplicatePoint if any two points lie within tol
// of each other. Points are streamed into the tree so each point is compared
// only against its predecessors.
func checkDuplicates(pts []r3.Vec, tol float64) error {
	tree := kdtree.New(pointSet(nil), false)
	tol2 := tol * tol
	for i, v := range pts {
		p := kdPoint{v: v, idx: i}
		if i > 0 {
			if nn, d2 := tree.Nearest(p); nn != nil && d2 <= tol2 {
				return fmt.Errorf("%w: point %d coincides with point %d", ErrDuplicatePoint, i, nn.(kdPoint).idx)
			}
		}
		tree.Insert(p, false)
	}
	return nil
}
