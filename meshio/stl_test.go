package meshio

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/fogleman/fauxgl"
	"gonum.org/v1/gonum/spatial/r3"
)

// cubeMesh returns the unit cube as 12 triangles over 8 shared vertices.
// All coordinates are exact float32 values, so STL storage is lossless.
func cubeMesh() Mesh {
	var m Mesh
	for i := 0; i < 8; i++ {
		m.Vertices = append(m.Vertices, r3.Vec{
			X: float64(i & 1), Y: float64(i >> 1 & 1), Z: float64(i >> 2 & 1),
		})
	}
	quads := [6][4]int{
		{0, 2, 3, 1}, // z = 0, facing down
		{4, 5, 7, 6}, // z = 1, facing up
		{0, 1, 5, 4}, // y = 0
		{2, 6, 7, 3}, // y = 1
		{0, 4, 6, 2}, // x = 0
		{1, 3, 7, 5}, // x = 1
	}
	for _, q := range quads {
		m.Faces = append(m.Faces, [3]int{q[0], q[1], q[2]}, [3]int{q[0], q[2], q[3]})
	}
	return m
}

func TestSTLRoundTrip(t *testing.T) {
	m := cubeMesh()
	var buf bytes.Buffer
	if err := WriteSTL(&buf, m.Triangles()); err != nil {
		t.Fatal(err)
	}
	tris, err := ReadSTL(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(tris) != len(m.Faces) {
		t.Fatalf("got %d triangles, want %d", len(tris), len(m.Faces))
	}
	welded, err := Weld(tris, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(welded.Vertices) != 8 {
		t.Errorf("welded to %d vertices, want 8", len(welded.Vertices))
	}
	if len(welded.Faces) != 12 {
		t.Errorf("welded to %d faces, want 12", len(welded.Faces))
	}
	if err := welded.Check(); err != nil {
		t.Errorf("welded cube not watertight: %v", err)
	}
}

func TestReadSTLErrors(t *testing.T) {
	if _, err := ReadSTL(bytes.NewReader(nil)); err == nil {
		t.Error("empty input should fail")
	}
	var buf bytes.Buffer
	if err := WriteSTL(&buf, cubeMesh().Triangles()); err != nil {
		t.Fatal(err)
	}
	trunc := buf.Bytes()[:buf.Len()-20]
	if _, err := ReadSTL(bytes.NewReader(trunc)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated record: got %v, want io.ErrUnexpectedEOF", err)
	}
	if err := WriteSTL(&buf, nil); err == nil {
		t.Error("writing zero triangles should fail")
	}
}

func TestReadSTLShortReads(t *testing.T) {
	// Readers are free to return fewer bytes than asked; records must still
	// fill completely.
	var buf bytes.Buffer
	if err := WriteSTL(&buf, cubeMesh().Triangles()); err != nil {
		t.Fatal(err)
	}
	tris, err := ReadSTL(iotest.OneByteReader(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if len(tris) != 12 {
		t.Errorf("got %d triangles, want 12", len(tris))
	}
}

func TestWeldCollapsesSlivers(t *testing.T) {
	// Two triangles whose vertices differ by much less than the tolerance
	// weld to a single face pair; a sliver collapses away entirely.
	tris := []Triangle{
		{{X: 0}, {X: 1}, {Y: 1}},
		{{X: 1e-12}, {X: 1, Y: 1e-12}, {X: 1, Y: 1}},
		{{X: 0}, {X: 1e-12}, {Y: 1}}, // degenerate after welding
	}
	m, err := Weld(tris, 1e-6)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Vertices) != 4 {
		t.Errorf("got %d vertices, want 4", len(m.Vertices))
	}
	if len(m.Faces) != 2 {
		t.Errorf("got %d faces, want 2", len(m.Faces))
	}
}

func TestWrittenSTLLoadsWithFauxgl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cross.stl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteSTL(f, cubeMesh().Triangles()); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	mesh, err := fauxgl.LoadSTL(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(mesh.Triangles) != 12 {
		t.Errorf("fauxgl loaded %d triangles, want 12", len(mesh.Triangles))
	}
}
