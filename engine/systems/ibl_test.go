package systems_test

import (
	"testing"

	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/systems"
)

func newIblSystem(t *testing.T, f *coreFixture) *systems.IblSystem {
	t.Helper()
	is, err := systems.NewIblSystem(f.backend, f.bindless, f.frames, systems.IblSystemConfig{})
	if err != nil {
		t.Fatalf("NewIblSystem: %v", err)
	}
	return is
}

func TestIblFirstQueryCreatesViewResources(t *testing.T) {
	f := newCore(t, 2)
	is := newIblSystem(t, f)

	texturesBefore := len(f.backend.Textures)
	allocatedBefore := f.bindless.AllocatedCount(metadata.DomainTextures)

	outputs, err := is.QueryOutputsFor("main", metadata.BindlessIndex(7))
	if err != nil {
		t.Fatalf("QueryOutputsFor: %v", err)
	}
	if got := len(f.backend.Textures) - texturesBefore; got != 2 {
		t.Fatalf("created %d textures, want 2", got)
	}
	if got := f.bindless.AllocatedCount(metadata.DomainTextures) - allocatedBefore; got != 2 {
		t.Fatalf("allocated %d descriptors, want 2", got)
	}
	if is.ViewCount() != 1 {
		t.Fatalf("ViewCount = %d, want 1", is.ViewCount())
	}
	// Fresh maps were never generated, so the outputs must not be usable.
	if outputs.Irradiance != metadata.InvalidBindlessIndex || outputs.Prefilter != metadata.InvalidBindlessIndex {
		t.Fatalf("ungenerated outputs published indices: %+v", outputs)
	}
	if outputs.Generation != 0 {
		t.Fatalf("Generation = %d, want 0", outputs.Generation)
	}

	// A second query must not create anything new.
	if _, err := is.QueryOutputsFor("main", metadata.BindlessIndex(7)); err != nil {
		t.Fatalf("second QueryOutputsFor: %v", err)
	}
	if got := len(f.backend.Textures) - texturesBefore; got != 2 {
		t.Fatalf("second query created textures, total %d", got)
	}
}

func TestIblOutputsValidOnlyForGeneratedSource(t *testing.T) {
	f := newCore(t, 2)
	is := newIblSystem(t, f)

	source := metadata.BindlessIndex(11)
	if _, err := is.QueryOutputsFor("main", source); err != nil {
		t.Fatalf("QueryOutputsFor: %v", err)
	}
	is.MarkGenerated("main", source, 42)

	outputs, err := is.QueryOutputsFor("main", source)
	if err != nil {
		t.Fatalf("QueryOutputsFor after generation: %v", err)
	}
	if outputs.Irradiance == metadata.InvalidBindlessIndex || outputs.Prefilter == metadata.InvalidBindlessIndex {
		t.Fatalf("generated outputs invalid: %+v", outputs)
	}
	if outputs.Generation != 1 {
		t.Fatalf("Generation = %d, want 1", outputs.Generation)
	}
	if outputs.SourceContentVersion != 42 {
		t.Fatalf("SourceContentVersion = %d, want 42", outputs.SourceContentVersion)
	}
	if outputs.PrefilterMipLevels != metadata.FullMipCount(128, 128) {
		t.Fatalf("PrefilterMipLevels = %d", outputs.PrefilterMipLevels)
	}

	// An environment swap invalidates the outputs until regeneration.
	swapped, err := is.QueryOutputsFor("main", metadata.BindlessIndex(12))
	if err != nil {
		t.Fatalf("QueryOutputsFor after swap: %v", err)
	}
	if swapped.Irradiance != metadata.InvalidBindlessIndex || swapped.Prefilter != metadata.InvalidBindlessIndex {
		t.Fatalf("stale outputs published after source swap: %+v", swapped)
	}
	if swapped.Generation != 1 {
		t.Fatalf("swap must not change generation, got %d", swapped.Generation)
	}

	is.MarkGenerated("main", metadata.BindlessIndex(12), 43)
	regenerated, err := is.QueryOutputsFor("main", metadata.BindlessIndex(12))
	if err != nil {
		t.Fatalf("QueryOutputsFor after regeneration: %v", err)
	}
	if regenerated.Irradiance == metadata.InvalidBindlessIndex || regenerated.Generation != 2 {
		t.Fatalf("regenerated outputs = %+v", regenerated)
	}
}

func TestIblViewRemovalDefersDestruction(t *testing.T) {
	f := newCore(t, 2)
	is := newIblSystem(t, f)

	if _, err := is.QueryOutputsFor("main", metadata.BindlessIndex(3)); err != nil {
		t.Fatalf("QueryOutputsFor: %v", err)
	}
	irradiance := f.backend.FindTexture("ibl_irradiance_main")
	prefilter := f.backend.FindTexture("ibl_prefilter_main")
	if irradiance == nil || prefilter == nil {
		t.Fatal("view cubes not created")
	}

	is.OnViewRemoved("main")
	if is.ViewCount() != 0 {
		t.Fatalf("ViewCount = %d after removal", is.ViewCount())
	}
	if irradiance.Destroyed() || prefilter.Destroyed() {
		t.Fatal("cube destroyed before in-flight frames retired")
	}
	f.frames.ProcessAllDeferredReleases()
	if !irradiance.Destroyed() || !prefilter.Destroyed() {
		t.Fatal("deferred destruction never ran")
	}
}
