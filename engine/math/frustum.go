package math

/** @brief One clipping plane in the form dot(Normal, p) + Distance = 0. */
type Plane struct {
	Normal   Vec3
	Distance float32
}

// Frustum plane indices.
const (
	FrustumPlaneLeft = iota
	FrustumPlaneRight
	FrustumPlaneBottom
	FrustumPlaneTop
	FrustumPlaneNear
	FrustumPlaneFar
	frustumPlaneCount
)

/** @brief A view frustum as six inward-facing planes. */
type Frustum struct {
	Planes [frustumPlaneCount]Plane
}

func (p *Plane) normalize() {
	length := p.Normal.Length()
	if length < K_FLOAT_EPSILON {
		return
	}
	inv := 1.0 / length
	p.Normal = p.Normal.MulScalar(inv)
	p.Distance *= inv
}

// SignedDistance returns the distance of a point from the plane, positive
// on the side the normal points to.
func (p Plane) SignedDistance(point Vec3) float32 {
	return p.Normal.Dot(point) + p.Distance
}

/**
 * @brief Extracts the six frustum planes from a combined view-projection
 * matrix. Works for any projection convention whose clip volume spans
 * -w..w in depth, which matches the engine's perspective matrix.
 */
func NewFrustumFromViewProjection(viewProjection Mat4) Frustum {
	m := viewProjection.Data

	// Row i of the matrix in column major storage.
	row := func(i int) Vec4 {
		return Vec4{X: m[i], Y: m[4+i], Z: m[8+i], W: m[12+i]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	planeFrom := func(v Vec4) Plane {
		p := Plane{Normal: Vec3{X: v.X, Y: v.Y, Z: v.Z}, Distance: v.W}
		p.normalize()
		return p
	}

	out := Frustum{}
	out.Planes[FrustumPlaneLeft] = planeFrom(r3.Add(r0))
	out.Planes[FrustumPlaneRight] = planeFrom(Vec4{X: r3.X - r0.X, Y: r3.Y - r0.Y, Z: r3.Z - r0.Z, W: r3.W - r0.W})
	out.Planes[FrustumPlaneBottom] = planeFrom(r3.Add(r1))
	out.Planes[FrustumPlaneTop] = planeFrom(Vec4{X: r3.X - r1.X, Y: r3.Y - r1.Y, Z: r3.Z - r1.Z, W: r3.W - r1.W})
	out.Planes[FrustumPlaneNear] = planeFrom(r3.Add(r2))
	out.Planes[FrustumPlaneFar] = planeFrom(Vec4{X: r3.X - r2.X, Y: r3.Y - r2.Y, Z: r3.Z - r2.Z, W: r3.W - r2.W})
	return out
}

// IntersectsSphere reports whether the sphere is at least partially inside
// the frustum.
func (f Frustum) IntersectsSphere(s Sphere) bool {
	for i := 0; i < frustumPlaneCount; i++ {
		if f.Planes[i].SignedDistance(s.Center) < -s.Radius {
			return false
		}
	}
	return true
}

// IntersectsExtents reports whether an axis-aligned box is at least
// partially inside the frustum, testing the box corner furthest along
// each plane normal.
func (f Frustum) IntersectsExtents(e Extents3D) bool {
	for i := 0; i < frustumPlaneCount; i++ {
		p := f.Planes[i]
		v := e.Min
		if p.Normal.X >= 0 {
			v.X = e.Max.X
		}
		if p.Normal.Y >= 0 {
			v.Y = e.Max.Y
		}
		if p.Normal.Z >= 0 {
			v.Z = e.Max.Z
		}
		if p.SignedDistance(v) < 0 {
			return false
		}
	}
	return true
}
