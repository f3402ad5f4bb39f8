package systems_test

import (
	"testing"

	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/systems"
)

func newSkySystem(t *testing.T, f *coreFixture) *systems.SkyLutSystem {
	t.Helper()
	ss, err := systems.NewSkyLutSystem(f.backend, f.bindless, systems.SkyLutSystemConfig{})
	if err != nil {
		t.Fatalf("NewSkyLutSystem: %v", err)
	}
	return ss
}

func TestSkyOutputsInvalidBeforeCreation(t *testing.T) {
	f := newCore(t, 2)
	ss := newSkySystem(t, f)

	outputs := ss.Outputs()
	if outputs.Transmittance != metadata.InvalidBindlessIndex ||
		outputs.SkyView != metadata.InvalidBindlessIndex ||
		outputs.MultiScat != metadata.InvalidBindlessIndex {
		t.Fatalf("outputs before creation = %+v", outputs)
	}
	if !ss.Dirty() {
		t.Fatal("a fresh system must start dirty")
	}
}

func TestSkyResourcesCreatedOnce(t *testing.T) {
	f := newCore(t, 2)
	ss := newSkySystem(t, f)

	texturesBefore := len(f.backend.Textures)
	if err := ss.EnsureResourcesCreated(); err != nil {
		t.Fatalf("EnsureResourcesCreated: %v", err)
	}
	if got := len(f.backend.Textures) - texturesBefore; got != 3 {
		t.Fatalf("created %d textures, want 3", got)
	}
	if err := ss.EnsureResourcesCreated(); err != nil {
		t.Fatalf("second EnsureResourcesCreated: %v", err)
	}
	if got := len(f.backend.Textures) - texturesBefore; got != 3 {
		t.Fatalf("second call created textures, total %d", got)
	}

	outputs := ss.Outputs()
	for _, index := range []metadata.BindlessIndex{outputs.Transmittance, outputs.SkyView, outputs.MultiScat} {
		if index == metadata.InvalidBindlessIndex {
			t.Fatalf("outputs invalid after creation: %+v", outputs)
		}
		if f.backend.Table().TextureWrites[index] == nil {
			t.Fatalf("slot %d not bound", index)
		}
	}
	if f.backend.FindTexture("sky_transmittance_lut") == nil ||
		f.backend.FindTexture("sky_view_lut") == nil ||
		f.backend.FindTexture("sky_multiscat_lut") == nil {
		t.Fatal("lut textures missing")
	}
}

func TestSkyDirtyTracksParameterChanges(t *testing.T) {
	f := newCore(t, 2)
	ss := newSkySystem(t, f)

	if err := ss.EnsureResourcesCreated(); err != nil {
		t.Fatalf("EnsureResourcesCreated: %v", err)
	}
	ss.MarkClean()
	generation := ss.Generation()

	// Writing back the current values must not dirty anything.
	ss.SetParameters(ss.Parameters())
	ss.SetSun(ss.Sun())
	if ss.Dirty() || ss.Generation() != generation {
		t.Fatalf("no-op updates dirtied the luts, generation %d -> %d", generation, ss.Generation())
	}

	parameters := ss.Parameters()
	parameters.MieAnisotropy = 0.6
	ss.SetParameters(parameters)
	if !ss.Dirty() || ss.Generation() != generation+1 {
		t.Fatalf("parameter change: dirty=%v generation %d", ss.Dirty(), ss.Generation())
	}

	ss.SetSun(systems.SunState{ElevationRadians: 1.1, Enabled: true})
	if ss.Generation() != generation+2 {
		t.Fatalf("sun change: generation %d, want %d", ss.Generation(), generation+2)
	}

	ss.MarkClean()
	if ss.Dirty() {
		t.Fatal("MarkClean left the system dirty")
	}
	if ss.Generation() != generation+2 {
		t.Fatal("MarkClean must not touch the generation")
	}
}
