package systems_test

import (
	"testing"

	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/scene"
	"github.com/abdes/oxygen/engine/systems"
)

func newLightSystem(t *testing.T, f *coreFixture) *systems.LightSystem {
	t.Helper()
	ls, err := systems.NewLightSystem(f.backend, f.bindless, f.uploads, f.frames, systems.LightSystemConfig{})
	if err != nil {
		t.Fatalf("NewLightSystem: %v", err)
	}
	return ls
}

func directionalLight(name string, mutate func(*scene.LightConfig)) *scene.LightSource {
	config := scene.LightConfig{
		Name:         name,
		Kind:         metadata.LightTypeDirectional,
		Mobility:     metadata.LightMobilityMovable,
		Visible:      true,
		AffectsWorld: true,
	}
	if mutate != nil {
		mutate(&config)
	}
	return scene.NewLightSource(config)
}

func TestLightGatesDropIneligibleLights(t *testing.T) {
	f := newCore(t, 2)
	ls := newLightSystem(t, f)

	world := scene.NewWorld("gates")
	world.AddLight(directionalLight("hidden", func(c *scene.LightConfig) { c.Visible = false }))
	world.AddLight(directionalLight("detached", func(c *scene.LightConfig) { c.AffectsWorld = false }))
	world.AddLight(directionalLight("baked", func(c *scene.LightConfig) { c.Mobility = metadata.LightMobilityBaked }))
	world.AddLight(scene.NewLightSource(scene.LightConfig{
		Name:         "baked_point",
		Kind:         metadata.LightTypePoint,
		Mobility:     metadata.LightMobilityBaked,
		Visible:      true,
		AffectsWorld: true,
		Range:        10,
	}))

	ls.BeginFrame()
	ls.Collect(world)
	counts := ls.Counts()
	if counts.Directional != 0 || counts.Positional != 0 {
		t.Fatalf("counts = %+v, want all zero", counts)
	}
}

func TestLightShadowRequiresBothFlags(t *testing.T) {
	f := newCore(t, 2)
	ls := newLightSystem(t, f)

	cases := []struct {
		name       string
		light      bool
		node       bool
		wantShadow bool
	}{
		{"both", true, true, true},
		{"light_only", true, false, false},
		{"node_only", false, true, false},
		{"neither", false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			world := scene.NewWorld(tc.name)
			world.AddLight(directionalLight("sun", func(c *scene.LightConfig) {
				c.CastsShadows = tc.light
				c.NodeCastsShadows = tc.node
			}))
			ls.BeginFrame()
			ls.Collect(world)
			counts := ls.Counts()
			if counts.Directional != 1 {
				t.Fatalf("Directional = %d, want 1", counts.Directional)
			}
			wantShadows := 0
			if tc.wantShadow {
				wantShadows = 1
			}
			if counts.DirectionalShadows != wantShadows {
				t.Fatalf("DirectionalShadows = %d, want %d", counts.DirectionalShadows, wantShadows)
			}
		})
	}
}

func TestLightZeroCountClassesAllocateNoSrv(t *testing.T) {
	f := newCore(t, 2)
	ls := newLightSystem(t, f)

	world := scene.NewWorld("sun_only")
	world.AddLight(directionalLight("sun", nil))

	ls.BeginFrame()
	ls.Collect(world)
	allocatedBefore := f.bindless.AllocatedCount(metadata.DomainBuffers)
	resources, err := ls.EnsureFrameResources()
	if err != nil {
		t.Fatalf("EnsureFrameResources: %v", err)
	}
	if resources.DirectionalSrv == metadata.InvalidBindlessIndex {
		t.Fatal("directional class collected a light but published no SRV")
	}
	if resources.DirectionalShadowSrv != metadata.InvalidBindlessIndex {
		t.Fatal("empty shadow class published an SRV")
	}
	if resources.PositionalSrv != metadata.InvalidBindlessIndex {
		t.Fatal("empty positional class published an SRV")
	}
	if got := f.bindless.AllocatedCount(metadata.DomainBuffers); got != allocatedBefore+1 {
		t.Fatalf("buffer descriptors allocated = %d, want %d", got, allocatedBefore+1)
	}
}

func TestLightSrvIndexStableAcrossBufferGrowth(t *testing.T) {
	f := newCore(t, 2)
	ls := newLightSystem(t, f)

	world := scene.NewWorld("one_sun")
	world.AddLight(directionalLight("sun", nil))
	ls.BeginFrame()
	ls.Collect(world)
	first, err := ls.EnsureFrameResources()
	if err != nil {
		t.Fatalf("EnsureFrameResources: %v", err)
	}

	// More lights than the first buffer holds forces a reallocation; the
	// published index must not move.
	crowded := scene.NewWorld("many_suns")
	for i := 0; i < 8; i++ {
		crowded.AddLight(directionalLight("sun", nil))
	}
	ls.BeginFrame()
	ls.Collect(crowded)
	second, err := ls.EnsureFrameResources()
	if err != nil {
		t.Fatalf("EnsureFrameResources after growth: %v", err)
	}
	if second.DirectionalSrv != first.DirectionalSrv {
		t.Fatalf("SRV moved on growth: %d -> %d", first.DirectionalSrv, second.DirectionalSrv)
	}

	grown := f.backend.FindBuffer("lights_directional")
	if table := f.backend.Table().BufferWrites[second.DirectionalSrv]; table != grown {
		t.Fatalf("slot %d points at %v, want the grown buffer", second.DirectionalSrv, table)
	}
}

func TestLightSpotPacksConeCosines(t *testing.T) {
	f := newCore(t, 2)
	ls := newLightSystem(t, f)

	world := scene.NewWorld("spot")
	world.AddLight(scene.NewLightSource(scene.LightConfig{
		Name:           "lamp",
		Kind:           metadata.LightTypeSpot,
		Mobility:       metadata.LightMobilityMovable,
		Visible:        true,
		AffectsWorld:   true,
		Range:          15,
		InnerConeAngle: 0.3,
		OuterConeAngle: 0.6,
	}))
	ls.BeginFrame()
	ls.Collect(world)
	counts := ls.Counts()
	if counts.Positional != 1 {
		t.Fatalf("Positional = %d, want 1", counts.Positional)
	}
}

func TestLightUploadTicketsDrainOnBeginFrame(t *testing.T) {
	f := newCore(t, 2)
	ls := newLightSystem(t, f)
	world := scene.NewWorld("lit")
	world.AddLight(directionalLight("sun", nil))

	ls.Collect(world)
	if _, err := ls.EnsureFrameResources(); err != nil {
		t.Fatalf("EnsureFrameResources: %v", err)
	}
	if got := ls.PendingUploads(); got != 1 {
		t.Fatalf("pending uploads = %d, want 1", got)
	}

	// Unfinished uploads survive the frame boundary.
	ls.BeginFrame()
	if got := ls.PendingUploads(); got != 1 {
		t.Fatalf("pending uploads before completion = %d, want 1", got)
	}

	f.completeUploads(t)
	ls.BeginFrame()
	if got := ls.PendingUploads(); got != 0 {
		t.Fatalf("pending uploads after completion = %d, want 0", got)
	}
	if got := f.uploads.PendingTickets(); got != 0 {
		t.Fatalf("coordinator still tracks %d tickets, want 0", got)
	}
}
