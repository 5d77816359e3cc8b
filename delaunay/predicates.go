package delaunay

import (
	"math"
	"math/big"

	"gonum.org/v1/gonum/spatial/r3"
)

// Robust geometric predicates. Each predicate is evaluated twice at most:
// a fast floating point path computes the determinant together with a
// forward error bound on it, and only when the result is smaller than the
// bound does evaluation fall through to exact rational arithmetic.
// The exact path never disagrees with itself across calls, which keeps
// incremental construction deterministic.

// machEps is the float64 rounding unit, 2^-53.
const machEps = 1.0 / (1 << 53)

var (
	orient3Bound  = (7.0 + 56.0*machEps) * machEps
	inSphereBound = (16.0 + 224.0*machEps) * machEps
)

// Orient3 returns the sign of the signed volume of tetrahedron (a,b,c,d):
// +1 if d lies on the negative side of the oriented plane through a, b, c
// such that (a,b,c,d) forms a positively oriented tetrahedron, -1 for the
// mirror configuration and 0 if the four points are exactly coplanar.
func Orient3(a, b, c, d r3.Vec) int {
	adx, ady, adz := a.X-d.X, a.Y-d.Y, a.Z-d.Z
	bdx, bdy, bdz := b.X-d.X, b.Y-d.Y, b.Z-d.Z
	cdx, cdy, cdz := c.X-d.X, c.Y-d.Y, c.Z-d.Z

	det := adx*(bdy*cdz-bdz*cdy) +
		ady*(bdz*cdx-bdx*cdz) +
		adz*(bdx*cdy-bdy*cdx)

	perm := math.Abs(adx)*(math.Abs(bdy*cdz)+math.Abs(bdz*cdy)) +
		math.Abs(ady)*(math.Abs(bdz*cdx)+math.Abs(bdx*cdz)) +
		math.Abs(adz)*(math.Abs(bdx*cdy)+math.Abs(bdy*cdx))

	if det > orient3Bound*perm {
		return 1
	}
	if det < -orient3Bound*perm {
		return -1
	}
	return orient3Exact(a, b, c, d)
}

// InSphere reports the position of p relative to the circumsphere of the
// positively oriented tetrahedron (a,b,c,d): +1 strictly inside, -1 strictly
// outside, 0 exactly on the sphere. Callers holding a negatively oriented
// tetrahedron must swap two vertices first.
func InSphere(a, b, c, d, p r3.Vec) int {
	aex, aey, aez := a.X-p.X, a.Y-p.Y, a.Z-p.Z
	bex, bey, bez := b.X-p.X, b.Y-p.Y, b.Z-p.Z
	cex, cey, cez := c.X-p.X, c.Y-p.Y, c.Z-p.Z
	dex, dey, dez := d.X-p.X, d.Y-p.Y, d.Z-p.Z

	alift := aex*aex + aey*aey + aez*aez
	blift := bex*bex + bey*bey + bez*bez
	clift := cex*cex + cey*cey + cez*cez
	dlift := dex*dex + dey*dey + dez*dez

	det3 := func(ux, uy, uz, vx, vy, vz, wx, wy, wz float64) float64 {
		return ux*(vy*wz-vz*wy) + uy*(vz*wx-vx*wz) + uz*(vx*wy-vy*wx)
	}
	det3abs := func(ux, uy, uz, vx, vy, vz, wx, wy, wz float64) float64 {
		return math.Abs(ux)*(math.Abs(vy*wz)+math.Abs(vz*wy)) +
			math.Abs(uy)*(math.Abs(vz*wx)+math.Abs(vx*wz)) +
			math.Abs(uz)*(math.Abs(vx*wy)+math.Abs(vy*wx))
	}

	dbcd := det3(bex, bey, bez, cex, cey, cez, dex, dey, dez)
	dacd := det3(aex, aey, aez, cex, cey, cez, dex, dey, dez)
	dabd := det3(aex, aey, aez, bex, bey, bez, dex, dey, dez)
	dabc := det3(aex, aey, aez, bex, bey, bez, cex, cey, cez)

	det := -alift*dbcd + blift*dacd - clift*dabd + dlift*dabc

	perm := alift*det3abs(bex, bey, bez, cex, cey, cez, dex, dey, dez) +
		blift*det3abs(aex, aey, aez, cex, cey, cez, dex, dey, dez) +
		clift*det3abs(aex, aey, aez, bex, bey, bez, dex, dey, dez) +
		dlift*det3abs(aex, aey, aez, bex, bey, bez, cex, cey, cez)

	if det > inSphereBound*perm {
		return 1
	}
	if det < -inSphereBound*perm {
		return -1
	}
	return inSphereExact(a, b, c, d, p)
}

// Exact evaluation. Coordinates convert to rationals without rounding,
// so the determinant signs below are exact.

type ratVec struct {
	x, y, z *big.Rat
}

func toRat(v r3.Vec) ratVec {
	return ratVec{
		x: new(big.Rat).SetFloat64(v.X),
		y: new(big.Rat).SetFloat64(v.Y),
		z: new(big.Rat).SetFloat64(v.Z),
	}
}

func ratSub(a, b ratVec) ratVec {
	return ratVec{
		x: new(big.Rat).Sub(a.x, b.x),
		y: new(big.Rat).Sub(a.y, b.y),
		z: new(big.Rat).Sub(a.z, b.z),
	}
}

func ratNorm2(a ratVec) *big.Rat {
	s := new(big.Rat).Mul(a.x, a.x)
	s.Add(s, new(big.Rat).Mul(a.y, a.y))
	s.Add(s, new(big.Rat).Mul(a.z, a.z))
	return s
}

// ratDet3 computes the 3x3 determinant with rows u, v, w.
func ratDet3(u, v, w ratVec) *big.Rat {
	m := func(a, b *big.Rat) *big.Rat { return new(big.Rat).Mul(a, b) }
	t1 := new(big.Rat).Sub(m(v.y, w.z), m(v.z, w.y))
	t2 := new(big.Rat).Sub(m(v.z, w.x), m(v.x, w.z))
	t3 := new(big.Rat).Sub(m(v.x, w.y), m(v.y, w.x))
	det := m(u.x, t1)
	det.Add(det, m(u.y, t2))
	det.Add(det, m(u.z, t3))
	return det
}

func orient3Exact(a, b, c, d r3.Vec) int {
	rd := toRat(d)
	return ratDet3(ratSub(toRat(a), rd), ratSub(toRat(b), rd), ratSub(toRat(c), rd)).Sign()
}

func inSphereExact(a, b, c, d, p r3.Vec) int {
	rp := toRat(p)
	ae := ratSub(toRat(a), rp)
	be := ratSub(toRat(b), rp)
	ce := ratSub(toRat(c), rp)
	de := ratSub(toRat(d), rp)

	det := new(big.Rat).Mul(ratNorm2(ae), ratDet3(be, ce, de))
	det.Neg(det)
	det.Add(det, new(big.Rat).Mul(ratNorm2(be), ratDet3(ae, ce, de)))
	det.Sub(det, new(big.Rat).Mul(ratNorm2(ce), ratDet3(ae, be, de)))
	det.Add(det, new(big.Rat).Mul(ratNorm2(de), ratDet3(ae, be, ce)))
	return det.Sign()
}

// inSpherePerturbed resolves exactly cospherical configurations with a
// symbolic perturbation of the lifted paraboloid coordinate: point i is
// lifted by an infinitesimal multiple of its stable input index, which
// makes the tie-break a fixed function of point identity rather than of
// insertion order. The first order term of the perturbed determinant is a
// signed sum of orientation determinants weighted by the indices.
func inSpherePerturbed(a, b, c, d, p r3.Vec, ia, ib, ic, id, ip int) int {
	s := InSphere(a, b, c, d, p)
	if s != 0 {
		return s
	}
	rp := toRat(p)
	rd := toRat(d)
	ae := ratSub(toRat(a), rp)
	be := ratSub(toRat(b), rp)
	ce := ratSub(toRat(c), rp)
	de := ratSub(toRat(d), rp)

	weight := func(i int) *big.Rat { return new(big.Rat).SetInt64(int64(i)) }

	// d/dw of the lifted 5x5 determinant with rows (a,b,c,d,p).
	term := new(big.Rat).Mul(weight(ia), ratDet3(be, ce, de))
	term.Neg(term)
	term.Add(term, new(big.Rat).Mul(weight(ib), ratDet3(ae, ce, de)))
	term.Sub(term, new(big.Rat).Mul(weight(ic), ratDet3(ae, be, de)))
	term.Add(term, new(big.Rat).Mul(weight(id), ratDet3(ae, be, ce)))
	term.Sub(term, new(big.Rat).Mul(weight(ip),
		ratDet3(ratSub(toRat(a), rd), ratSub(toRat(b), rd), ratSub(toRat(c), rd))))
	if sg := term.Sign(); sg != 0 {
		return sg
	}
	// Fully degenerate beyond first order. Resolve by identity so the
	// answer stays reproducible for a given input.
	if ip < ia && ip < ib && ip < ic && ip < id {
		return 1
	}
	return -1
}
