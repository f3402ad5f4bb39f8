package math

func NewSphere(center Vec3, radius float32) Sphere {
	return Sphere{Center: center, Radius: radius}
}

// Transformed returns the sphere in the space of the given matrix. The
// radius is scaled by the largest axis scale so the result always encloses
// the transformed geometry.
func (s Sphere) Transformed(world Mat4) Sphere {
	center := world.TransformPoint(s.Center)

	sx := Vec3{X: world.Data[0], Y: world.Data[1], Z: world.Data[2]}.Length()
	sy := Vec3{X: world.Data[4], Y: world.Data[5], Z: world.Data[6]}.Length()
	sz := Vec3{X: world.Data[8], Y: world.Data[9], Z: world.Data[10]}.Length()

	maxScale := sx
	if sy > maxScale {
		maxScale = sy
	}
	if sz > maxScale {
		maxScale = sz
	}
	return Sphere{Center: center, Radius: s.Radius * maxScale}
}

// NewExtentsFromPoints builds the smallest axis-aligned extents enclosing
// the given points. Returns a degenerate box at origin for no points.
func NewExtentsFromPoints(points []Vec3) Extents3D {
	if len(points) == 0 {
		return Extents3D{}
	}
	out := Extents3D{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		if p.X < out.Min.X {
			out.Min.X = p.X
		}
		if p.Y < out.Min.Y {
			out.Min.Y = p.Y
		}
		if p.Z < out.Min.Z {
			out.Min.Z = p.Z
		}
		if p.X > out.Max.X {
			out.Max.X = p.X
		}
		if p.Y > out.Max.Y {
			out.Max.Y = p.Y
		}
		if p.Z > out.Max.Z {
			out.Max.Z = p.Z
		}
	}
	return out
}

func (e Extents3D) Center() Vec3 {
	return Vec3{
		X: (e.Min.X + e.Max.X) * 0.5,
		Y: (e.Min.Y + e.Max.Y) * 0.5,
		Z: (e.Min.Z + e.Max.Z) * 0.5,
	}
}

// Transformed returns the axis-aligned extents of the box after applying
// world, by transforming all eight corners.
func (e Extents3D) Transformed(world Mat4) Extents3D {
	corners := [8]Vec3{
		{X: e.Min.X, Y: e.Min.Y, Z: e.Min.Z},
		{X: e.Max.X, Y: e.Min.Y, Z: e.Min.Z},
		{X: e.Min.X, Y: e.Max.Y, Z: e.Min.Z},
		{X: e.Max.X, Y: e.Max.Y, Z: e.Min.Z},
		{X: e.Min.X, Y: e.Min.Y, Z: e.Max.Z},
		{X: e.Max.X, Y: e.Min.Y, Z: e.Max.Z},
		{X: e.Min.X, Y: e.Max.Y, Z: e.Max.Z},
		{X: e.Max.X, Y: e.Max.Y, Z: e.Max.Z},
	}
	out := Extents3D{Min: world.TransformPoint(corners[0])}
	out.Max = out.Min
	for _, c := range corners[1:] {
		p := world.TransformPoint(c)
		if p.X < out.Min.X {
			out.Min.X = p.X
		}
		if p.Y < out.Min.Y {
			out.Min.Y = p.Y
		}
		if p.Z < out.Min.Z {
			out.Min.Z = p.Z
		}
		if p.X > out.Max.X {
			out.Max.X = p.X
		}
		if p.Y > out.Max.Y {
			out.Max.Y = p.Y
		}
		if p.Z > out.Max.Z {
			out.Max.Z = p.Z
		}
	}
	return out
}

// BoundingSphere returns the sphere through the box corners.
func (e Extents3D) BoundingSphere() Sphere {
	center := e.Center()
	return Sphere{Center: center, Radius: e.Max.Sub(center).Length()}
}
