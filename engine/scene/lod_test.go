package scene_test

import (
	"testing"

	"github.com/abdes/oxygen/engine/scene"
)

func lodMesh(count int) *scene.Mesh {
	return scene.NewMesh(scene.MeshConfig{
		Name: "lod_mesh",
		Lods: make([]scene.MeshLod, count),
	})
}

func TestSelectLodDistanceWalksThresholds(t *testing.T) {
	cases := []struct {
		selector float64
		want     int
	}{
		{5, 0},
		{15, 1},
		{30, 2},
	}
	for _, tc := range cases {
		renderable := &scene.Renderable{
			Geometry:      lodMesh(3),
			Policy:        scene.LodPolicyDistance,
			LodThresholds: []float32{10, 20},
		}
		renderable.SelectLod(tc.selector)
		if got := renderable.ActiveLod(); got != tc.want {
			t.Errorf("selector %.0f picked lod %d, want %d", tc.selector, got, tc.want)
		}
	}
}

func TestSelectLodDistanceIsStickyAtBoundaries(t *testing.T) {
	renderable := &scene.Renderable{
		Geometry:      lodMesh(3),
		Policy:        scene.LodPolicyDistance,
		LodThresholds: []float32{10, 20},
	}

	renderable.SelectLod(5)
	if got := renderable.ActiveLod(); got != 0 {
		t.Fatalf("settled on lod %d, want 0", got)
	}

	// Just past the boundary but inside the margin: no flip.
	renderable.SelectLod(10.2)
	if got := renderable.ActiveLod(); got != 0 {
		t.Fatalf("hover at 10.2 flipped to lod %d, want 0", got)
	}

	// Clears the widened boundary: switches coarser.
	renderable.SelectLod(10.6)
	if got := renderable.ActiveLod(); got != 1 {
		t.Fatalf("selector 10.6 picked lod %d, want 1", got)
	}

	// Back under the boundary but inside the margin: stays coarse.
	renderable.SelectLod(9.8)
	if got := renderable.ActiveLod(); got != 1 {
		t.Fatalf("hover at 9.8 flipped to lod %d, want 1", got)
	}

	// Clears the shrunken boundary: switches finer again.
	renderable.SelectLod(9.4)
	if got := renderable.ActiveLod(); got != 0 {
		t.Fatalf("selector 9.4 picked lod %d, want 0", got)
	}
}

func TestSelectLodScreenSpaceErrorPicksByCoverage(t *testing.T) {
	renderable := &scene.Renderable{
		Geometry:        lodMesh(3),
		Policy:          scene.LodPolicyScreenSpaceError,
		PixelThresholds: []float32{100, 20},
	}

	renderable.SelectLod(150)
	if got := renderable.ActiveLod(); got != 0 {
		t.Fatalf("150 px picked lod %d, want 0", got)
	}

	// Shrinks below 100 px but inside the margin: stays fine.
	renderable.SelectLod(96)
	if got := renderable.ActiveLod(); got != 0 {
		t.Fatalf("hover at 96 px flipped to lod %d, want 0", got)
	}

	renderable.SelectLod(90)
	if got := renderable.ActiveLod(); got != 1 {
		t.Fatalf("90 px picked lod %d, want 1", got)
	}

	renderable.SelectLod(10)
	if got := renderable.ActiveLod(); got != 2 {
		t.Fatalf("10 px picked lod %d, want 2", got)
	}
}

func TestSelectLodClampsAndResets(t *testing.T) {
	renderable := &scene.Renderable{
		Geometry: lodMesh(2),
		Policy:   scene.LodPolicyFixed,
		FixedLod: 7,
	}
	renderable.SelectLod(0)
	if got := renderable.ActiveLod(); got != 1 {
		t.Fatalf("fixed lod 7 on a 2 lod mesh picked %d, want 1", got)
	}

	bare := &scene.Renderable{}
	bare.SelectLod(0)
	if got := bare.ActiveLod(); got != 0 {
		t.Fatalf("no geometry picked lod %d, want 0", got)
	}
}
