// Command todelaunay refines a closed triangle mesh until its surface is a
// sub-complex of the Delaunay tetrahedralization of its own vertices, the
// precondition of the skeletonize command.
//
//	todelaunay -i model.obj -o model_delaunay.obj
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/soypat/skel"
	"github.com/soypat/skel/meshio"
)

func main() {
	var (
		in        = flag.String("i", "", "input mesh (.obj or .stl), required")
		out       = flag.String("o", "", "output OBJ mesh, required")
		angle     = flag.Float64("angle", 20, "max dihedral deviation from flat, in degrees, for edge flips")
		maxRounds = flag.Int("maxrounds", 0, "cap on refine rounds (0 selects the default)")
	)
	flag.Parse()
	if *in == "" || *out == "" {
		flag.Usage()
		os.Exit(1)
	}
	if err := run(*in, *out, *angle, *maxRounds); err != nil {
		fmt.Fprintln(os.Stderr, "todelaunay:", err)
		os.Exit(1)
	}
}

func run(in, out string, angleDeg float64, maxRounds int) error {
	m, err := meshio.Load(in)
	if err != nil {
		return err
	}
	if err := m.Check(); err != nil {
		return err
	}
	fmt.Printf("loaded %s: %d vertices, %d faces\n", in, len(m.Vertices), len(m.Faces))
	pts, faces, stats, err := skel.ToDelaunay(m.Vertices, m.Faces, skel.ConformConfig{
		SharpAngle: angleDeg * math.Pi / 180,
		MaxRounds:  maxRounds,
	})
	if err != nil {
		return err
	}
	fmt.Printf("conformed in %d rounds: %d flips, %d edge splits, %d face splits, %d vertices added\n",
		stats.Rounds, stats.Flips, stats.EdgeSplits, stats.FaceSplits, stats.AddedVertices)
	return meshio.Save(out, meshio.Mesh{Vertices: pts, Faces: faces})
}
