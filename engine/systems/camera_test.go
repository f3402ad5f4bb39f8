package systems

import (
	"testing"

	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer/components"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

func TestCameraAcquireRelease(t *testing.T) {
	cs, err := NewCameraSystem(&CameraSystemConfig{MaxCameraCount: 2})
	if err != nil {
		t.Fatalf("NewCameraSystem: %v", err)
	}

	first, err := cs.Acquire("chase")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	second, err := cs.Acquire("chase")
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if first != second {
		t.Fatal("acquiring the same name twice returned different cameras")
	}

	// Two references, one release keeps the camera alive.
	cs.Release("chase")
	third, err := cs.Acquire("chase")
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	if third != first {
		t.Fatal("camera was recycled while still referenced")
	}
}

func TestCameraSystemFull(t *testing.T) {
	cs, err := NewCameraSystem(&CameraSystemConfig{MaxCameraCount: 1})
	if err != nil {
		t.Fatalf("NewCameraSystem: %v", err)
	}
	if _, err := cs.Acquire("one"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := cs.Acquire("two"); err == nil {
		t.Fatal("Acquire beyond MaxCameraCount succeeded")
	}
	// The default camera never counts against the limit.
	if _, err := cs.Acquire(components.DefaultCameraName); err != nil {
		t.Fatalf("Acquire default: %v", err)
	}
}

func TestBuildViewDefaultsAndFrustum(t *testing.T) {
	cs, err := NewCameraSystem(&CameraSystemConfig{MaxCameraCount: 4})
	if err != nil {
		t.Fatalf("NewCameraSystem: %v", err)
	}
	camera := cs.GetDefault()
	camera.SetPosition(math.NewVec3(0, 0, 10))

	view := cs.BuildView("main", camera, ViewConfig{
		Viewport: metadata.Viewport{Width: 1280, Height: 720, MaxDepth: 1},
	})
	if view.ID != "main" {
		t.Fatalf("view id = %q, want %q", view.ID, "main")
	}
	if view.CameraPosition != camera.GetPosition() {
		t.Fatal("view did not capture the camera position")
	}
	if view.FocalLengthPx <= 0 {
		t.Fatalf("focal length = %v, want > 0", view.FocalLengthPx)
	}

	// The camera looks down -Z, so a sphere ahead of it is inside the
	// frustum and one behind it is not.
	ahead := math.Sphere{Center: math.NewVec3(0, 0, 0), Radius: 1}
	behind := math.Sphere{Center: math.NewVec3(0, 0, 30), Radius: 1}
	if !view.Frustum.IntersectsSphere(ahead) {
		t.Fatal("sphere in front of the camera was culled")
	}
	if view.Frustum.IntersectsSphere(behind) {
		t.Fatal("sphere behind the camera was not culled")
	}
}
