package meshio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ReadOBJ parses a Wavefront OBJ vertex/face list. Normals, texture
// coordinates and material statements are ignored. Faces with more than
// three vertices are fan triangulated.
func ReadOBJ(r io.Reader) (Mesh, error) {
	var m Mesh
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return Mesh{}, fmt.Errorf("obj line %d: vertex needs 3 coordinates", line)
			}
			var v r3.Vec
			var err error
			if v.X, err = strconv.ParseFloat(fields[1], 64); err == nil {
				if v.Y, err = strconv.ParseFloat(fields[2], 64); err == nil {
					v.Z, err = strconv.ParseFloat(fields[3], 64)
				}
			}
			if err != nil {
				return Mesh{}, fmt.Errorf("obj line %d: %w", line, err)
			}
			m.Vertices = append(m.Vertices, v)
		case "f":
			if len(fields) < 4 {
				return Mesh{}, fmt.Errorf("obj line %d: face needs at least 3 vertices", line)
			}
			idx := make([]int, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				if i := strings.IndexByte(tok, '/'); i >= 0 {
					tok = tok[:i]
				}
				vi, err := strconv.Atoi(tok)
				if err != nil {
					return Mesh{}, fmt.Errorf("obj line %d: %w", line, err)
				}
				if vi <= 0 {
					return Mesh{}, fmt.Errorf("obj line %d: unsupported non-positive vertex index %d", line, vi)
				}
				if vi > len(m.Vertices) {
					return Mesh{}, fmt.Errorf("obj line %d: vertex index %d out of range", line, vi)
				}
				idx = append(idx, vi-1)
			}
			for i := 1; i+1 < len(idx); i++ {
				m.Faces = append(m.Faces, [3]int{idx[0], idx[i], idx[i+1]})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Mesh{}, err
	}
	return m, nil
}

// WriteOBJ writes the mesh as OBJ with full float64 round trip precision.
func WriteOBJ(w io.Writer, m Mesh) error {
	bw := bufio.NewWriter(w)
	for _, v := range m.Vertices {
		fmt.Fprintf(bw, "v %s %s %s\n", ftoa(v.X), ftoa(v.Y), ftoa(v.Z))
	}
	for _, f := range m.Faces {
		fmt.Fprintf(bw, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1)
	}
	return bw.Flush()
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// Load reads a mesh from path, dispatching on the file extension.
// STL triangle soups are welded into an indexed mesh on load.
func Load(path string) (Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return Mesh{}, err
	}
	defer f.Close()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".obj":
		m, err := ReadOBJ(f)
		if err != nil {
			return Mesh{}, fmt.Errorf("%s: %w", path, err)
		}
		return m, nil
	case ".stl":
		tris, err := ReadSTL(f)
		if err != nil {
			return Mesh{}, fmt.Errorf("%s: %w", path, err)
		}
		return Weld(tris, 0)
	default:
		return Mesh{}, fmt.Errorf("%s: unsupported mesh format %q", path, ext)
	}
}

// Save writes a mesh to an OBJ file at path.
func Save(path string, m Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := WriteOBJ(f, m); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
