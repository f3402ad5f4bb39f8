package math

import "testing"

func testView() Mat4 {
	// Camera at +10 z looking at the origin, y up. Forward is -z.
	return NewMat4LookAt(NewVec3(0, 0, 10), NewVec3Zero(), NewVec3Up())
}

func testViewProjection() Mat4 {
	proj := NewMat4Perspective(DegToRad(60), 16.0/9.0, 0.1, 1000.0)
	return proj.Mul(testView())
}

func TestFrustumSphereCulling(t *testing.T) {
	frustum := NewFrustumFromViewProjection(testViewProjection())

	cases := []struct {
		name   string
		sphere Sphere
		want   bool
	}{
		{"at origin in front of camera", NewSphere(NewVec3Zero(), 1), true},
		{"behind the camera", NewSphere(NewVec3(0, 0, 20), 1), false},
		{"beyond the far plane", NewSphere(NewVec3(0, 0, -2000), 1), false},
		{"far to the left", NewSphere(NewVec3(-500, 0, 0), 1), false},
		{"large sphere straddling a side plane", NewSphere(NewVec3(-500, 0, 0), 600), true},
		{"just inside the near plane", NewSphere(NewVec3(0, 0, 9.5), 0.1), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := frustum.IntersectsSphere(tc.sphere); got != tc.want {
				t.Errorf("IntersectsSphere(%+v) = %v, want %v", tc.sphere, got, tc.want)
			}
		})
	}
}

func TestFrustumExtentsCulling(t *testing.T) {
	frustum := NewFrustumFromViewProjection(testViewProjection())

	inside := Extents3D{Min: NewVec3(-1, -1, -1), Max: NewVec3(1, 1, 1)}
	if !frustum.IntersectsExtents(inside) {
		t.Errorf("unit box at origin should be visible")
	}
	behind := Extents3D{Min: NewVec3(-1, -1, 30), Max: NewVec3(1, 1, 32)}
	if frustum.IntersectsExtents(behind) {
		t.Errorf("box behind the camera should be culled")
	}
}

func TestMat4InverseRoundTrip(t *testing.T) {
	world := NewMat4Translation(NewVec3(3, -2, 7)).
		Mul(NewMat4EulerXYZ(0.3, 1.1, -0.5)).
		Mul(NewMat4Scale(NewVec3(2, 2, 2)))

	p := NewVec3(1.5, -4, 2)
	back := world.Inverse().TransformPoint(world.TransformPoint(p))
	if !back.Compare(p, 1e-4) {
		t.Errorf("inverse round trip: got %+v, want %+v", back, p)
	}
}

func TestSphereTransformedUsesLargestScale(t *testing.T) {
	s := NewSphere(NewVec3Zero(), 2)
	world := NewMat4Translation(NewVec3(5, 0, 0)).Mul(NewMat4Scale(NewVec3(1, 3, 1)))
	got := s.Transformed(world)
	if !got.Center.Compare(NewVec3(5, 0, 0), 1e-5) {
		t.Errorf("center = %+v, want (5,0,0)", got.Center)
	}
	if kabs(got.Radius-6) > 1e-5 {
		t.Errorf("radius = %v, want 6", got.Radius)
	}
}
