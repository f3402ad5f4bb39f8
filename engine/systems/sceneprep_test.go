package systems

import (
	"testing"

	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/scene"
)

// prepTestView looks down -Z from (0, 0, 10) with a 60 degree fov.
func prepTestView(t *testing.T) metadata.View {
	t.Helper()
	cameras, err := NewCameraSystem(&CameraSystemConfig{MaxCameraCount: 4})
	if err != nil {
		t.Fatalf("NewCameraSystem: %v", err)
	}
	camera := cameras.GetDefault()
	camera.SetPosition(math.NewVec3(0, 0, 10))
	return cameras.BuildView("test_view", camera, ViewConfig{
		FovYRadians: math.DegToRad(60),
		NearClip:    0.1,
		FarClip:     1000,
		Viewport:    metadata.Viewport{Width: 1920, Height: 1080, MaxDepth: 1},
	})
}

func unitQuadLod(material *metadata.Material) scene.MeshLod {
	return scene.MeshLod{
		Vertices: []math.Vertex3D{
			{Position: math.NewVec3(-1, -1, 0)},
			{Position: math.NewVec3(1, -1, 0)},
			{Position: math.NewVec3(1, 1, 0)},
			{Position: math.NewVec3(-1, 1, 0)},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
		Submeshes: []scene.Submesh{
			{Name: "quad", IndexCount: 6, Material: material},
		},
	}
}

func newPrep(t *testing.T) *ScenePrepPipeline {
	t.Helper()
	prep, err := NewScenePrepPipeline(nil)
	if err != nil {
		t.Fatalf("NewScenePrepPipeline: %v", err)
	}
	return prep
}

func TestScenePrepEmitsOneItemPerVisibleSubmesh(t *testing.T) {
	world := scene.NewWorld("three_quads")
	mesh := scene.NewMesh(scene.MeshConfig{Name: "quad", Lods: []scene.MeshLod{unitQuadLod(nil)}})
	for _, x := range []float32{-2, 0, 2} {
		entity := scene.NewEntity(scene.EntityConfig{
			Name:       "quad",
			Visible:    true,
			Renderable: &scene.Renderable{Geometry: mesh},
		})
		entity.Transform().SetPosition(math.NewVec3(x, 0, 0))
		world.AddEntity(entity)
	}

	items, geometries, stats := newPrep(t).Prepare(world, prepTestView(t))
	if len(items) != 3 {
		t.Fatalf("emitted %d items, want 3. stats: %s", len(items), stats.String())
	}
	if got, ok := geometries[mesh.ID()]; !ok || got != scene.Geometry(mesh) {
		t.Fatal("emitted items did not carry their geometry")
	}
	for i, item := range items {
		if item.Mesh != mesh.ID() {
			t.Errorf("item %d mesh id %d, want %d", i, item.Mesh, mesh.ID())
		}
		if item.IndexCount != 6 {
			t.Errorf("item %d index count %d, want 6", i, item.IndexCount)
		}
		if item.Material == nil || item.Material.Name != metadata.DefaultMaterialName {
			t.Errorf("item %d did not fall back to the default material", i)
		}
		if !item.Passes.Has(metadata.PassOpaque) || !item.Passes.Has(metadata.PassDepthPrePass) {
			t.Errorf("item %d passes %b missing opaque or depth prepass", i, item.Passes)
		}
	}
	if stats.ItemsEmitted != 3 || stats.NodesVisited != 3 {
		t.Fatalf("stats = %s, want 3 visited and 3 emitted", stats.String())
	}
}

func TestScenePrepStageDrops(t *testing.T) {
	world := scene.NewWorld("droppers")
	mesh := scene.NewMesh(scene.MeshConfig{Name: "quad", Lods: []scene.MeshLod{unitQuadLod(nil)}})

	hidden := scene.NewEntity(scene.EntityConfig{
		Name: "hidden", Visible: false,
		Renderable: &scene.Renderable{Geometry: mesh},
	})
	world.AddEntity(hidden)

	empty := scene.NewEntity(scene.EntityConfig{Name: "empty", Visible: true})
	world.AddEntity(empty)

	noGeometry := scene.NewEntity(scene.EntityConfig{
		Name: "no_geometry", Visible: true,
		Renderable: &scene.Renderable{},
	})
	world.AddEntity(noGeometry)

	behindCamera := scene.NewEntity(scene.EntityConfig{
		Name: "behind", Visible: true,
		Renderable: &scene.Renderable{Geometry: mesh},
	})
	behindCamera.Transform().SetPosition(math.NewVec3(0, 0, 100))
	world.AddEntity(behindCamera)

	items, _, stats := newPrep(t).Prepare(world, prepTestView(t))
	if len(items) != 0 {
		t.Fatalf("emitted %d items, want 0", len(items))
	}
	if stats.DroppedHidden != 1 {
		t.Errorf("DroppedHidden = %d, want 1", stats.DroppedHidden)
	}
	if stats.DroppedNoRenderable != 1 {
		t.Errorf("DroppedNoRenderable = %d, want 1", stats.DroppedNoRenderable)
	}
	if stats.DroppedNoGeometry != 1 {
		t.Errorf("DroppedNoGeometry = %d, want 1", stats.DroppedNoGeometry)
	}
	if stats.CulledByFrustum != 1 {
		t.Errorf("CulledByFrustum = %d, want 1", stats.CulledByFrustum)
	}
}

func TestScenePrepSubmeshMask(t *testing.T) {
	lod := scene.MeshLod{
		Vertices: unitQuadLod(nil).Vertices,
		Indices:  []uint32{0, 1, 2, 2, 3, 0},
		Submeshes: []scene.Submesh{
			{Name: "first", IndexCount: 3},
			{Name: "second", IndexOffset: 3, IndexCount: 3},
		},
	}
	mesh := scene.NewMesh(scene.MeshConfig{Name: "two_parts", Lods: []scene.MeshLod{lod}})

	world := scene.NewWorld("masked")
	entity := scene.NewEntity(scene.EntityConfig{
		Name: "masked", Visible: true,
		Renderable: &scene.Renderable{Geometry: mesh, SubmeshMask: 0b01},
	})
	world.AddEntity(entity)

	items, _, stats := newPrep(t).Prepare(world, prepTestView(t))
	if len(items) != 1 {
		t.Fatalf("emitted %d items, want 1", len(items))
	}
	if items[0].Submesh != 0 {
		t.Fatalf("kept submesh %d, want 0", items[0].Submesh)
	}
	if stats.SubmeshesMasked != 1 {
		t.Fatalf("SubmeshesMasked = %d, want 1", stats.SubmeshesMasked)
	}
}

func TestScenePrepSubmeshBoundsCulling(t *testing.T) {
	farBox := &math.Extents3D{Min: math.NewVec3(-1, -1, 499), Max: math.NewVec3(1, 1, 501)}
	nearBox := &math.Extents3D{Min: math.NewVec3(-1, -1, -1), Max: math.NewVec3(1, 1, 1)}
	lod := scene.MeshLod{
		Vertices: unitQuadLod(nil).Vertices,
		Indices:  []uint32{0, 1, 2, 2, 3, 0},
		Submeshes: []scene.Submesh{
			{Name: "near", IndexCount: 3, Bounds: nearBox},
			{Name: "far", IndexOffset: 3, IndexCount: 3, Bounds: farBox},
		},
	}
	// A huge sphere keeps the whole-mesh test passing so the per-submesh
	// boxes decide.
	mesh := scene.NewMesh(scene.MeshConfig{
		Name:   "spread",
		Lods:   []scene.MeshLod{lod},
		Bounds: math.Sphere{Radius: 1000},
	})

	world := scene.NewWorld("culled")
	world.AddEntity(func() *scene.Entity {
		e := scene.NewEntity(scene.EntityConfig{
			Name: "spread", Visible: true,
			Renderable: &scene.Renderable{Geometry: mesh},
		})
		return e
	}())

	items, _, stats := newPrep(t).Prepare(world, prepTestView(t))
	if len(items) != 1 {
		t.Fatalf("emitted %d items, want 1", len(items))
	}
	if items[0].Submesh != 0 {
		t.Fatalf("kept submesh %d, want the near one", items[0].Submesh)
	}
	if stats.SubmeshesCulled != 1 {
		t.Fatalf("SubmeshesCulled = %d, want 1", stats.SubmeshesCulled)
	}
}

func TestScenePrepMaterialResolution(t *testing.T) {
	submeshMaterial := &metadata.Material{Name: "submesh_own", Domain: metadata.RenderDomainOpaque}
	override := &metadata.Material{Name: "override", Domain: metadata.RenderDomainTransparent}

	mesh := scene.NewMesh(scene.MeshConfig{Name: "quad", Lods: []scene.MeshLod{unitQuadLod(submeshMaterial)}})

	world := scene.NewWorld("materials")
	plain := scene.NewEntity(scene.EntityConfig{
		Name: "plain", Visible: true,
		Renderable: &scene.Renderable{Geometry: mesh},
	})
	overridden := scene.NewEntity(scene.EntityConfig{
		Name: "overridden", Visible: true,
		Renderable: &scene.Renderable{Geometry: mesh, MaterialOverride: override},
	})
	world.AddEntity(plain)
	world.AddEntity(overridden)

	items, _, _ := newPrep(t).Prepare(world, prepTestView(t))
	if len(items) != 2 {
		t.Fatalf("emitted %d items, want 2", len(items))
	}
	if items[0].Material.Name != "submesh_own" {
		t.Errorf("plain node material %q, want the submesh's own", items[0].Material.Name)
	}
	if items[1].Material.Name != "override" {
		t.Errorf("overridden node material %q, want the override", items[1].Material.Name)
	}
	if items[1].Domain != metadata.RenderDomainTransparent {
		t.Error("override did not carry its domain into the item")
	}
	if !items[1].Passes.Has(metadata.PassTransparent) || items[1].Passes.Has(metadata.PassDepthPrePass) {
		t.Errorf("transparent item passes %b, want transparent without depth prepass", items[1].Passes)
	}
}

func TestScenePrepDistanceLod(t *testing.T) {
	lods := []scene.MeshLod{unitQuadLod(nil), unitQuadLod(nil), unitQuadLod(nil)}
	mesh := scene.NewMesh(scene.MeshConfig{
		Name:   "lodded",
		Lods:   lods,
		Bounds: math.Sphere{Radius: 1},
	})

	cases := []struct {
		name    string
		z       float32
		wantLod int
	}{
		// The camera sits at z=10 and the bounding radius is 1, so the
		// normalized thresholds of 5 and 20 radii read as distances.
		{"close picks finest", 7, 0},
		{"middle picks middle", 0, 1},
		{"beyond last threshold picks coarsest", -15, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			world := scene.NewWorld("distance")
			entity := scene.NewEntity(scene.EntityConfig{
				Name: "lodded", Visible: true,
				Renderable: &scene.Renderable{
					Geometry:      mesh,
					Policy:        scene.LodPolicyDistance,
					LodThresholds: []float32{5, 20},
				},
			})
			entity.Transform().SetPosition(math.NewVec3(0, 0, tc.z))
			world.AddEntity(entity)

			items, _, _ := newPrep(t).Prepare(world, prepTestView(t))
			if len(items) != 1 {
				t.Fatalf("emitted %d items, want 1", len(items))
			}
			if items[0].Lod != tc.wantLod {
				t.Fatalf("selected lod %d, want %d", items[0].Lod, tc.wantLod)
			}
		})
	}
}

func TestScenePrepScreenSpaceErrorLod(t *testing.T) {
	lods := []scene.MeshLod{unitQuadLod(nil), unitQuadLod(nil), unitQuadLod(nil)}
	mesh := scene.NewMesh(scene.MeshConfig{
		Name:   "sse",
		Lods:   lods,
		Bounds: math.Sphere{Radius: 1},
	})

	// With a 60 degree fov over 1080 pixels the focal length is about
	// 935 px, so a unit sphere projects to ~935/distance pixels.
	cases := []struct {
		name    string
		z       float32
		wantLod int
	}{
		{"large on screen picks finest", 6, 0},     // ~234 px
		{"medium on screen picks middle", 0, 1},    // ~94 px
		{"small on screen picks coarsest", -40, 2}, // ~19 px
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			world := scene.NewWorld("sse")
			entity := scene.NewEntity(scene.EntityConfig{
				Name: "sse", Visible: true,
				Renderable: &scene.Renderable{
					Geometry:        mesh,
					Policy:          scene.LodPolicyScreenSpaceError,
					PixelThresholds: []float32{200, 50, 0},
				},
			})
			entity.Transform().SetPosition(math.NewVec3(0, 0, tc.z))
			world.AddEntity(entity)

			items, _, _ := newPrep(t).Prepare(world, prepTestView(t))
			if len(items) != 1 {
				t.Fatalf("emitted %d items, want 1", len(items))
			}
			if items[0].Lod != tc.wantLod {
				t.Fatalf("selected lod %d, want %d", items[0].Lod, tc.wantLod)
			}
		})
	}
}

func TestScenePrepFixedLodClamps(t *testing.T) {
	mesh := scene.NewMesh(scene.MeshConfig{Name: "short_chain", Lods: []scene.MeshLod{unitQuadLod(nil), unitQuadLod(nil)}})
	world := scene.NewWorld("fixed")
	entity := scene.NewEntity(scene.EntityConfig{
		Name: "fixed", Visible: true,
		Renderable: &scene.Renderable{Geometry: mesh, Policy: scene.LodPolicyFixed, FixedLod: 7},
	})
	world.AddEntity(entity)

	items, _, _ := newPrep(t).Prepare(world, prepTestView(t))
	if len(items) != 1 {
		t.Fatalf("emitted %d items, want 1", len(items))
	}
	if items[0].Lod != 1 {
		t.Fatalf("selected lod %d, want clamp to 1", items[0].Lod)
	}
}
