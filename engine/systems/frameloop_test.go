package systems_test

import (
	"testing"

	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/renderer/passes"
	"github.com/abdes/oxygen/engine/renderer/rendertest"
	"github.com/abdes/oxygen/engine/scene"
	"github.com/abdes/oxygen/engine/systems"
)

// The whole frame loop against the fake backend: manager, passes and
// scene wired the way the engine wires them.
func newFrameLoop(t *testing.T, backend *rendertest.Backend, resolved map[metadata.ResourceKey]string) *systems.SystemManager {
	t.Helper()
	names := map[metadata.ResourceKey]string{
		metadata.ResourceKeyFromName("checker"): "checker",
	}
	sm, err := systems.NewSystemManager(backend, backend.Surface(), systems.SystemManagerConfig{
		TextureLoad: func(name string) (*metadata.CookedTexture, error) {
			return cooked4x4(name), nil
		},
		TextureName: func(key metadata.ResourceKey) (string, bool) {
			name, ok := names[key]
			if ok && resolved != nil {
				resolved[key] = name
			}
			return name, ok
		},
	})
	if err != nil {
		t.Fatalf("NewSystemManager: %v", err)
	}
	t.Cleanup(func() { _ = sm.Shutdown() })

	depth, err := passes.NewDepthPrePass(sm.Meshes())
	if err != nil {
		t.Fatalf("NewDepthPrePass: %v", err)
	}
	opaque, err := passes.NewOpaquePass(sm.Meshes(), sm.Lights(), sm.Textures())
	if err != nil {
		t.Fatalf("NewOpaquePass: %v", err)
	}
	sky, err := passes.NewSkyPass(sm.Sky(), sm.Ibl())
	if err != nil {
		t.Fatalf("NewSkyPass: %v", err)
	}
	sm.Renderer().AddPass(depth)
	sm.Renderer().AddPass(opaque)
	sm.Renderer().AddPass(sky)
	return sm
}

func TestFrameLoopDrawsSceneThroughPasses(t *testing.T) {
	backend := rendertest.NewBackend()
	resolved := map[metadata.ResourceKey]string{}
	sm := newFrameLoop(t, backend, resolved)

	material := &metadata.Material{
		Name:         "checker_mat",
		BaseColorKey: metadata.ResourceKeyFromName("checker"),
	}
	mesh := scene.NewMesh(scene.MeshConfig{Name: "quad", Lods: []scene.MeshLod{{
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
	}}})
	world := scene.NewWorld("frame_loop")
	world.AddEntity(scene.NewEntity(scene.EntityConfig{
		Name:       "quad",
		Visible:    true,
		Renderable: &scene.Renderable{Geometry: mesh},
	}))
	world.AddLight(directionalLight("sun", nil))

	camera := sm.Cameras().GetDefault()
	camera.SetPosition(math.NewVec3(0, 0, 10))
	view := sm.Cameras().BuildView("main", camera, systems.ViewConfig{
		FovYRadians: math.DegToRad(60),
		NearClip:    0.1,
		FarClip:     1000,
		Viewport:    metadata.Viewport{Width: 1280, Height: 720, MaxDepth: 1},
	})

	// Enough frames to cycle every slot, so the transfer fences of the
	// first frame's uploads are observed and the mesh turns resident.
	const frames = 6
	for i := 0; i < frames; i++ {
		if err := sm.Frame(world, view); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}

	key := systems.MeshResidencyKey{ID: mesh.ID(), Lod: 0}
	if !sm.Meshes().IsResident(key) {
		t.Fatal("quad never became GPU resident")
	}

	drawIndexed := 0
	for _, recorder := range backend.Recorders {
		for _, op := range recorder.Ops {
			if op == "draw_indexed" {
				drawIndexed++
			}
		}
	}
	if drawIndexed == 0 {
		t.Fatal("no indexed draws were recorded")
	}

	if sm.Lights().FrameResources().DirectionalSrv == metadata.InvalidBindlessIndex {
		t.Fatal("directional light SRV was never published")
	}
	// The light list uploads exactly once per frame.
	lightCopies := 0
	for _, recorder := range backend.Recorders {
		for _, cp := range recorder.BufferCopies {
			if cp.Dst.Name() == "lights_directional" {
				lightCopies++
			}
		}
	}
	if lightCopies != frames {
		t.Fatalf("light buffer uploaded %d times over %d frames, want one per frame", lightCopies, frames)
	}

	if got := sm.Ibl().Generation(view.ID); got == 0 {
		t.Fatal("ibl maps were never generated for the view")
	}
	if index := sm.Textures().Resolve(material.BaseColorKey); index == metadata.InvalidBindlessIndex {
		t.Fatal("base color key did not resolve to a bindless slot")
	}
	if resolved[material.BaseColorKey] != "checker" {
		t.Fatal("shading prepare never resolved the material's base color key")
	}
}
