package skel

import (
	"container/heap"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidParameter reports a pruning threshold outside the valid range.
var ErrInvalidParameter = errors.New("skel: invalid parameter")

// Saliency scores a primitive by how much solid it accounts for: the spread
// of its anchor points scaled by how large that spread is relative to the
// smallest touching skeleton ball. Thin features have anchors much closer
// than the ball diameter and score near zero.
//
// The scoring constants live here so the model can be recalibrated in one
// place.
func saliency(spread, rmin float64) float64 {
	if rmin <= 0 {
		return spread
	}
	f := spread / (2 * rmin)
	if f > 1 {
		f = 1
	}
	return spread * f
}

func (c *Complex) polygonSaliency(p Polygon) float64 {
	spread := r3.Norm(r3.Sub(c.Points[p.Anchor[0]], c.Points[p.Anchor[1]]))
	rmin := math.Inf(1)
	for _, ni := range p.Ring {
		rmin = math.Min(rmin, c.Nodes[ni].Radius)
	}
	return saliency(spread, rmin)
}

func (c *Complex) segmentSaliency(s Segment) float64 {
	var spread float64
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			d := r3.Norm(r3.Sub(c.Points[s.Anchors[i]], c.Points[s.Anchors[j]]))
			spread = math.Max(spread, d)
		}
	}
	rmin := math.Min(c.Nodes[s.A].Radius, c.Nodes[s.B].Radius)
	return saliency(spread, rmin)
}

func (c *Complex) sheetSaliency(s Sheet) float64 {
	var sal float64
	for _, p := range s.Polygons {
		sal = math.Max(sal, c.polygonSaliency(p))
	}
	return sal
}

func (c *Complex) curveSaliency(cu Curve) float64 {
	var sal float64
	for _, s := range cu.Segments {
		sal = math.Max(sal, c.segmentSaliency(s))
	}
	return sal
}

const (
	kindSheet = iota
	kindCurve
)

type pruneItem struct {
	sal   float64
	order int // creation order breaks saliency ties
	kind  int8
	id    int
	gen   int
}

type pruneHeap []pruneItem

func (h pruneHeap) Len() int { return len(h) }
func (h pruneHeap) Less(i, j int) bool {
	if h[i].sal != h[j].sal {
		return h[i].sal < h[j].sal
	}
	return h[i].order < h[j].order
}
func (h pruneHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pruneHeap) Push(x interface{}) { *h = append(*h, x.(pruneItem)) }
func (h *pruneHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Prune removes primitives with saliency below epsilon, least salient
// first. Removing a sheet dissolves seam curves left with fewer than three
// incident sheets, merging the survivors; removing a curve merges all its
// incident sheets. Merged primitives are re-scored before they are
// considered again. Epsilon zero leaves the complex untouched; a negative
// or NaN epsilon fails with ErrInvalidParameter before any mutation.
// Pruning everything away is not an error; the Collapsed flag records it.
func (c *Complex) Prune(epsilon float64) error {
	if epsilon < 0 || math.IsNaN(epsilon) {
		return fmt.Errorf("%w: pruning threshold %v must be >= 0", ErrInvalidParameter, epsilon)
	}
	if epsilon == 0 {
		return nil
	}
	p := &pruner{
		c:          c,
		sheets:     newUnionFind(len(c.Sheets)),
		sheetAlive: make([]bool, len(c.Sheets)),
		curveAlive: make([]bool, len(c.Curves)),
		sheetGen:   make([]int, len(c.Sheets)),
		curveGen:   make([]int, len(c.Curves)),
		sheetSal:   make([]float64, len(c.Sheets)),
	}
	for i := range c.Sheets {
		p.sheetAlive[i] = true
		p.sheetSal[i] = c.sheetSaliency(c.Sheets[i])
		p.push(kindSheet, i, p.sheetSal[i])
	}
	for i := range c.Curves {
		p.curveAlive[i] = true
		p.push(kindCurve, i, c.curveSaliency(c.Curves[i]))
	}
	for len(p.h) > 0 {
		it := heap.Pop(&p.h).(pruneItem)
		if it.sal >= epsilon {
			break
		}
		switch it.kind {
		case kindSheet:
			if p.sheets.find(it.id) != it.id || !p.sheetAlive[it.id] || p.sheetGen[it.id] != it.gen {
				continue
			}
			p.removeSheet(it.id)
		case kindCurve:
			if !p.curveAlive[it.id] || p.curveGen[it.id] != it.gen {
				continue
			}
			p.removeCurve(it.id)
		}
	}
	p.compact()
	return nil
}

type pruner struct {
	c          *Complex
	sheets     *unionFind // merged sheets share a root
	sheetAlive []bool
	curveAlive []bool
	sheetGen   []int
	curveGen   []int
	sheetSal   []float64
	h          pruneHeap
	order      int
}

func (p *pruner) push(kind int8, id int, sal float64) {
	var gen int
	if kind == kindSheet {
		gen = p.sheetGen[id]
	} else {
		gen = p.curveGen[id]
	}
	heap.Push(&p.h, pruneItem{sal: sal, order: p.order, kind: kind, id: id, gen: gen})
	p.order++
}

// liveSheets returns the distinct live sheet roots incident to curve ci.
func (p *pruner) liveSheets(ci int) []int {
	set := make(map[int]bool)
	for _, si := range p.c.Curves[ci].Sheets {
		r := p.sheets.find(si)
		if p.sheetAlive[r] {
			set[r] = true
		}
	}
	return sortedKeys(set)
}

func (p *pruner) removeSheet(si int) {
	p.sheetAlive[si] = false
	for _, ci := range append([]int(nil), p.c.Sheets[si].Curves...) {
		if p.curveAlive[ci] {
			p.recheckCurve(ci)
		}
	}
}

func (p *pruner) removeCurve(ci int) {
	p.curveAlive[ci] = false
	ls := p.liveSheets(ci)
	for len(ls) > 1 {
		p.mergeSheets(ls[0], ls[1])
		ls = append(ls[:1], ls[2:]...)
		ls[0] = p.sheets.find(ls[0])
	}
}

// recheckCurve dissolves a curve that no longer separates three sheets and
// merges the two survivors if that is what is left.
func (p *pruner) recheckCurve(ci int) {
	ls := p.liveSheets(ci)
	if len(ls) >= 3 {
		return
	}
	p.curveAlive[ci] = false
	if len(ls) == 2 {
		p.mergeSheets(ls[0], ls[1])
	}
}

func (p *pruner) mergeSheets(a, b int) {
	ra, rb := p.sheets.find(a), p.sheets.find(b)
	if ra == rb {
		return
	}
	p.sheets.union(ra, rb)
	r := p.sheets.find(ra)
	absorbed := ra + rb - r
	sheets := p.c.Sheets
	sheets[r].Polygons = append(sheets[r].Polygons, sheets[absorbed].Polygons...)
	curveSet := make(map[int]bool)
	for _, ci := range sheets[r].Curves {
		if p.curveAlive[ci] {
			curveSet[ci] = true
		}
	}
	for _, ci := range sheets[absorbed].Curves {
		if p.curveAlive[ci] {
			curveSet[ci] = true
		}
	}
	sheets[r].Curves = sortedKeys(curveSet)
	sheets[absorbed] = Sheet{}
	p.sheetAlive[absorbed] = false
	p.sheetAlive[r] = true
	p.sheetSal[r] = math.Max(p.sheetSal[ra], p.sheetSal[rb])
	p.sheetGen[r]++
	p.push(kindSheet, r, p.sheetSal[r])
	// Curves shared by the merged pair may have dropped below three sheets.
	for _, ci := range sheets[r].Curves {
		if p.curveAlive[ci] {
			p.recheckCurve(ci)
		}
	}
}

// compact rewrites the complex with only the surviving primitives, dropping
// unreferenced nodes and renumbering every cross reference.
func (p *pruner) compact() {
	c := p.c
	hadAny := !c.Empty()

	sheetID := make(map[int]int)
	var sheets []Sheet
	for i := range c.Sheets {
		if p.sheets.find(i) == i && p.sheetAlive[i] {
			sheetID[i] = len(sheets)
			sheets = append(sheets, c.Sheets[i])
		}
	}
	curveID := make(map[int]int)
	var curves []Curve
	for i := range c.Curves {
		if p.curveAlive[i] {
			curveID[i] = len(curves)
			curves = append(curves, c.Curves[i])
		}
	}
	for i := range sheets {
		var cs []int
		for _, ci := range sheets[i].Curves {
			if ni, ok := curveID[ci]; ok {
				cs = append(cs, ni)
			}
		}
		sheets[i].Curves = cs
	}
	for i := range curves {
		set := make(map[int]bool)
		for _, si := range curves[i].Sheets {
			if ni, ok := sheetID[p.sheets.find(si)]; ok {
				set[ni] = true
			}
		}
		curves[i].Sheets = sortedKeys(set)
	}
	var junctions []Junction
	for _, j := range c.Junctions {
		var cs []int
		for _, ci := range j.Curves {
			if ni, ok := curveID[ci]; ok {
				cs = append(cs, ni)
			}
		}
		if len(cs) >= 3 {
			junctions = append(junctions, Junction{Node: j.Node, Curves: cs})
		}
	}

	// Renumber nodes to those still referenced.
	nodeID := make(map[int]int)
	var nodes []Node
	remap := func(ni int) int {
		if id, ok := nodeID[ni]; ok {
			return id
		}
		id := len(nodes)
		nodeID[ni] = id
		nodes = append(nodes, c.Nodes[ni])
		return id
	}
	for i := range sheets {
		for j := range sheets[i].Polygons {
			ring := sheets[i].Polygons[j].Ring
			for k := range ring {
				ring[k] = remap(ring[k])
			}
		}
	}
	for i := range curves {
		for j := range curves[i].Segments {
			curves[i].Segments[j].A = remap(curves[i].Segments[j].A)
			curves[i].Segments[j].B = remap(curves[i].Segments[j].B)
		}
	}
	for i := range junctions {
		junctions[i].Node = remap(junctions[i].Node)
	}

	c.Sheets = sheets
	c.Curves = curves
	c.Junctions = junctions
	c.Nodes = nodes
	c.Collapsed = hadAny && c.Empty()
}
