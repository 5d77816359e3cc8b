package meshio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/soypat/skel"
)

// WriteComplexOBJ writes a skeletal complex into dir as two OBJ files:
// sheets.obj with the sheet polygons fan triangulated and grouped per
// sheet, and curves.obj with curve segments as OBJ line elements plus the
// junction nodes as point elements. Sheet and curve numbering in the group
// names matches the complex indices.
func WriteComplexOBJ(dir string, c *skel.Complex) error {
	if err := writeFile(filepath.Join(dir, "sheets.obj"), func(w io.Writer) error {
		return writeSheets(w, c)
	}); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, "curves.obj"), func(w io.Writer) error {
		return writeCurves(w, c)
	})
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

func writeNodes(w io.Writer, c *skel.Complex) error {
	for _, n := range c.Nodes {
		if _, err := fmt.Fprintf(w, "v %s %s %s\n", ftoa(n.Center.X), ftoa(n.Center.Y), ftoa(n.Center.Z)); err != nil {
			return err
		}
	}
	return nil
}

func writeSheets(w io.Writer, c *skel.Complex) error {
	if err := writeNodes(w, c); err != nil {
		return err
	}
	for si, s := range c.Sheets {
		fmt.Fprintf(w, "g sheet%d\n", si)
		for _, p := range s.Polygons {
			for i := 1; i+1 < len(p.Ring); i++ {
				if _, err := fmt.Fprintf(w, "f %d %d %d\n", p.Ring[0]+1, p.Ring[i]+1, p.Ring[i+1]+1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeCurves(w io.Writer, c *skel.Complex) error {
	if err := writeNodes(w, c); err != nil {
		return err
	}
	for ci, cu := range c.Curves {
		fmt.Fprintf(w, "g curve%d\n", ci)
		for _, s := range cu.Segments {
			if _, err := fmt.Fprintf(w, "l %d %d\n", s.A+1, s.B+1); err != nil {
				return err
			}
		}
	}
	if len(c.Junctions) > 0 {
		fmt.Fprintln(w, "g junctions")
		for _, j := range c.Junctions {
			if _, err := fmt.Fprintf(w, "p %d\n", j.Node+1); err != nil {
				return err
			}
		}
	}
	return nil
}
