package delaunay

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// Positively oriented reference tetrahedron.
var (
	refA = r3.Vec{X: 0, Y: 0, Z: 0}
	refB = r3.Vec{X: 0, Y: 1, Z: 0}
	refC = r3.Vec{X: 1, Y: 0, Z: 0}
	refD = r3.Vec{X: 0, Y: 0, Z: 1}
)

func TestOrient3(t *testing.T) {
	if got := Orient3(refA, refB, refC, refD); got != 1 {
		t.Errorf("positive tetrahedron: got %d, want 1", got)
	}
	if got := Orient3(refA, refC, refB, refD); got != -1 {
		t.Errorf("swapped tetrahedron: got %d, want -1", got)
	}
	coplanar := r3.Vec{X: 0.25, Y: 0.25, Z: 0}
	if got := Orient3(refA, refB, refC, coplanar); got != 0 {
		t.Errorf("coplanar point: got %d, want 0", got)
	}
}

func TestOrient3NearDegenerate(t *testing.T) {
	// Offsets far below the float rounding noise of the naive determinant
	// must still resolve exactly.
	for _, dz := range []float64{1e-30, 1e-200, -1e-30, -1e-200} {
		d := r3.Vec{X: 0.25, Y: 0.25, Z: dz}
		want := 1
		if dz < 0 {
			want = -1
		}
		if got := Orient3(refA, refB, refC, d); got != want {
			t.Errorf("dz=%g: got %d, want %d", dz, got, want)
		}
	}
}

func TestInSphere(t *testing.T) {
	// Circumsphere of the reference tetrahedron: center (.5,.5,.5), r2=0.75.
	cases := []struct {
		p    r3.Vec
		want int
	}{
		{r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, 1},
		{r3.Vec{X: 2, Y: 2, Z: 2}, -1},
		{r3.Vec{X: 1, Y: 1, Z: 0}, 0}, // exactly on the sphere
		{r3.Vec{X: 0, Y: 1, Z: 1}, 0},
		{r3.Vec{X: 1, Y: 0, Z: 1}, 0},
	}
	for _, tc := range cases {
		if got := InSphere(refA, refB, refC, refD, tc.p); got != tc.want {
			t.Errorf("InSphere(%v): got %d, want %d", tc.p, got, tc.want)
		}
	}
}

func TestInSphereAgainstCircumsphere(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		a, b, c, d := randVec(rng), randVec(rng), randVec(rng), randVec(rng)
		if Orient3(a, b, c, d) <= 0 {
			b, c = c, b
		}
		if Orient3(a, b, c, d) <= 0 {
			continue // degenerate draw
		}
		center, radius := circumsphere(a, b, c, d)
		p := randVec(rng)
		dist := r3.Norm(r3.Sub(p, center))
		// Only check points clearly off the sphere; the float circumsphere
		// cannot arbitrate near ties.
		if dist > 0.99*radius && dist < 1.01*radius {
			continue
		}
		want := -1
		if dist < radius {
			want = 1
		}
		if got := InSphere(a, b, c, d, p); got != want {
			t.Fatalf("case %d: dist=%g radius=%g: got %d, want %d", i, dist, radius, got, want)
		}
	}
}

func TestInSpherePerturbedBreaksTies(t *testing.T) {
	// Cube corners are all cospherical, the canonical tie.
	a := r3.Vec{X: 0, Y: 0, Z: 0}
	b := r3.Vec{X: 0, Y: 1, Z: 0}
	c := r3.Vec{X: 1, Y: 0, Z: 0}
	d := r3.Vec{X: 0, Y: 0, Z: 1}
	p := r3.Vec{X: 1, Y: 1, Z: 1}
	if got := InSphere(a, b, c, d, p); got != 0 {
		t.Fatalf("cube corner should be cospherical, got %d", got)
	}
	s := inSpherePerturbed(a, b, c, d, p, 0, 1, 2, 3, 7)
	if s == 0 {
		t.Fatal("perturbed predicate must not return 0")
	}
	for i := 0; i < 5; i++ {
		if again := inSpherePerturbed(a, b, c, d, p, 0, 1, 2, 3, 7); again != s {
			t.Fatalf("perturbed predicate not reproducible: %d then %d", s, again)
		}
	}
}

func randVec(rng *rand.Rand) r3.Vec {
	return r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()}
}
