// Command skeletonize extracts the pruned skeletal complex of a closed
// triangle mesh and writes it as sheets.obj and curves.obj.
//
//	skeletonize -i model_delaunay.obj -eps 0.02 -outdir skeleton/
//
// The mesh must already conform to the Delaunay tetrahedralization of its
// vertices; run todelaunay first otherwise.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/soypat/skel"
	"github.com/soypat/skel/meshio"
)

func main() {
	var (
		in     = flag.String("i", "", "input mesh (.obj or .stl), required")
		outdir = flag.String("outdir", ".", "output directory for sheets.obj and curves.obj")
		eps    = flag.Float64("eps", 0.02, "saliency pruning threshold, as a fraction of the bounding box diagonal")
		abs    = flag.Bool("abs", false, "treat -eps as an absolute length instead of a fraction")
		loose  = flag.Bool("best-effort", false, "tolerate inside/outside ambiguities, resolving them by ray casting")
	)
	flag.Parse()
	if *in == "" {
		flag.Usage()
		os.Exit(1)
	}
	if err := run(*in, *outdir, *eps, *abs, *loose); err != nil {
		fmt.Fprintln(os.Stderr, "skeletonize:", err)
		os.Exit(1)
	}
}

func run(in, outdir string, eps float64, abs, bestEffort bool) error {
	m, err := meshio.Load(in)
	if err != nil {
		return err
	}
	if err := m.Check(); err != nil {
		return err
	}
	epsilon := eps
	if !abs {
		epsilon = eps * m.Bounds().Diagonal()
	}
	fmt.Printf("loaded %s: %d vertices, %d faces, pruning threshold %g\n",
		in, len(m.Vertices), len(m.Faces), epsilon)
	c, err := skel.Skeletonize(m.Vertices, m.Faces, skel.Config{
		Epsilon:    epsilon,
		BestEffort: bestEffort,
	})
	if err != nil {
		return err
	}
	for _, w := range c.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	if c.Collapsed {
		fmt.Println("warning: the whole skeleton pruned away, writing empty output")
	}
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return err
	}
	fmt.Printf("skeleton: %d sheets, %d curves, %d junctions over %d nodes\n",
		len(c.Sheets), len(c.Curves), len(c.Junctions), len(c.Nodes))
	return meshio.WriteComplexOBJ(outdir, c)
}
