package systems_test

import (
	"errors"
	"testing"

	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/renderer/rendertest"
	"github.com/abdes/oxygen/engine/systems"
)

// Shared fixture: one fake backend plus the renderer core every system
// hangs off.
type coreFixture struct {
	backend  *rendertest.Backend
	frames   *renderer.FrameResourceManager
	staging  *renderer.RingBufferStaging
	uploads  *renderer.UploadCoordinator
	bindless *renderer.BindlessAllocator
}

func newCore(t *testing.T, slots int) *coreFixture {
	t.Helper()
	backend := rendertest.NewBackend()
	frames, err := renderer.NewFrameResourceManager(slots)
	if err != nil {
		t.Fatalf("NewFrameResourceManager: %v", err)
	}
	staging, err := renderer.NewRingBufferStaging(backend, renderer.StagingConfig{SlotCount: slots})
	if err != nil {
		t.Fatalf("NewRingBufferStaging: %v", err)
	}
	uploads, err := renderer.NewUploadCoordinator(backend, staging)
	if err != nil {
		t.Fatalf("NewUploadCoordinator: %v", err)
	}
	bindless, err := renderer.NewBindlessAllocator(backend.DescriptorTable(), frames, 0)
	if err != nil {
		t.Fatalf("NewBindlessAllocator: %v", err)
	}
	t.Cleanup(staging.Destroy)
	return &coreFixture{
		backend:  backend,
		frames:   frames,
		staging:  staging,
		uploads:  uploads,
		bindless: bindless,
	}
}

// Flushes the open upload batch and declares it complete on the GPU.
func (f *coreFixture) completeUploads(t *testing.T) {
	t.Helper()
	fence, err := f.uploads.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	f.backend.TestQueue(metadata.QueueRoleTransfer).Complete(fence)
}

// A well-formed 4x4 RGBA8 cooked asset: one mip, rows padded to the 256
// byte pitch, offset 0.
func cooked4x4(name string) *metadata.CookedTexture {
	return &metadata.CookedTexture{
		Desc: metadata.TextureDesc{
			Name:      name,
			Type:      metadata.TextureType2D,
			Format:    metadata.FormatRGBA8Unorm,
			Width:     4,
			Height:    4,
			Depth:     1,
			ArraySize: 1,
			MipLevels: 1,
		},
		Mips:    []metadata.CookedMip{{Offset: 0, RowPitch: 256, Width: 4, Height: 4}},
		Payload: make([]byte, 4*256),
	}
}

func newTextureSystem(t *testing.T, f *coreFixture, load systems.TextureLoadFunc) *systems.TextureSystem {
	t.Helper()
	ts, err := systems.NewTextureSystem(f.backend, f.bindless, f.uploads, f.frames, nil, systems.TextureSystemConfig{
		Load: load,
	})
	if err != nil {
		t.Fatalf("NewTextureSystem: %v", err)
	}
	return ts
}

func TestTextureIndexStableAcrossStates(t *testing.T) {
	f := newCore(t, 2)
	ts := newTextureSystem(t, f, func(name string) (*metadata.CookedTexture, error) {
		return cooked4x4(name), nil
	})

	key := metadata.ResourceKeyFromName("rock_albedo")
	first, err := ts.GetOrAllocate(key, "rock_albedo")
	if err != nil {
		t.Fatalf("GetOrAllocate: %v", err)
	}
	again, err := ts.GetOrAllocate(key, "rock_albedo")
	if err != nil {
		t.Fatalf("GetOrAllocate again: %v", err)
	}
	if again != first {
		t.Fatalf("index while pending = %d, want %d", again, first)
	}

	ts.OnFrameStart()
	f.completeUploads(t)
	ts.OnFrameStart()
	if ts.IsPlaceholder(key) {
		t.Fatal("entry still placeholder after upload completed")
	}
	resident, err := ts.GetOrAllocate(key, "rock_albedo")
	if err != nil {
		t.Fatalf("GetOrAllocate after residency: %v", err)
	}
	if resident != first {
		t.Fatalf("index after residency = %d, want %d", resident, first)
	}
}

func TestTextureSentinelKeyAllocatesNothing(t *testing.T) {
	f := newCore(t, 2)
	ts := newTextureSystem(t, f, func(name string) (*metadata.CookedTexture, error) {
		return cooked4x4(name), nil
	})

	allocated := f.bindless.AllocatedCount(metadata.DomainTextures)
	index, err := ts.GetOrAllocate(metadata.ResourceKeyPlaceholder, "")
	if err != nil {
		t.Fatalf("GetOrAllocate(sentinel): %v", err)
	}
	if index != ts.PlaceholderIndex() {
		t.Fatalf("sentinel index = %d, want placeholder %d", index, ts.PlaceholderIndex())
	}
	if got := f.bindless.AllocatedCount(metadata.DomainTextures); got != allocated {
		t.Fatalf("sentinel allocated a descriptor: count %d -> %d", allocated, got)
	}
}

func TestTextureNoRepointBeforeFenceCompletes(t *testing.T) {
	f := newCore(t, 2)
	ts := newTextureSystem(t, f, func(name string) (*metadata.CookedTexture, error) {
		return cooked4x4(name), nil
	})

	key := metadata.ResourceKeyFromName("wall")
	index, err := ts.GetOrAllocate(key, "wall")
	if err != nil {
		t.Fatalf("GetOrAllocate: %v", err)
	}
	placeholder := f.backend.FindTexture("texture_placeholder")
	if got := f.backend.Table().TextureWrites[index]; got != placeholder {
		t.Fatalf("fresh slot points at %v, want the placeholder", got)
	}

	// Ingest the decode and submit the upload, but leave the fence
	// unsignalled: the slot must keep showing the placeholder.
	ts.OnFrameStart()
	if _, err := f.uploads.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	ts.OnFrameStart()
	if !ts.IsPlaceholder(key) {
		t.Fatal("entry stopped being a placeholder before the fence completed")
	}
	if got := f.backend.Table().TextureWrites[index]; got != placeholder {
		t.Fatalf("slot repointed early to %v", got)
	}

	f.backend.TestQueue(metadata.QueueRoleTransfer).Complete(
		f.backend.TestQueue(metadata.QueueRoleTransfer).LastSignaled())
	ts.OnFrameStart()
	if ts.IsPlaceholder(key) {
		t.Fatal("entry still placeholder after completion")
	}
	if got := f.backend.Table().TextureWrites[index]; got == nil || got.Name() != "wall" {
		t.Fatalf("slot points at %v, want the wall texture", got)
	}
}

func TestTexturePlaceholderRefReleasedThroughFrameManager(t *testing.T) {
	f := newCore(t, 2)
	ts := newTextureSystem(t, f, func(name string) (*metadata.CookedTexture, error) {
		return cooked4x4(name), nil
	})

	key := metadata.ResourceKeyFromName("floor")
	if _, err := ts.GetOrAllocate(key, "floor"); err != nil {
		t.Fatalf("GetOrAllocate: %v", err)
	}
	if refs := ts.PlaceholderRefs(); refs != 1 {
		t.Fatalf("refs after allocate = %d, want 1", refs)
	}

	ts.OnFrameStart()
	f.completeUploads(t)
	ts.OnFrameStart()

	// The drop is deferred: a frame in flight may still sample the
	// placeholder through this slot until the slot is re-entered.
	if refs := ts.PlaceholderRefs(); refs != 1 {
		t.Fatalf("refs right after repoint = %d, want 1", refs)
	}
	f.frames.ProcessAllDeferredReleases()
	if refs := ts.PlaceholderRefs(); refs != 0 {
		t.Fatalf("refs after deferred release = %d, want 0", refs)
	}
}

func TestTextureBadCookedLayoutFailsWithoutGpuWork(t *testing.T) {
	f := newCore(t, 2)
	ts := newTextureSystem(t, f, func(name string) (*metadata.CookedTexture, error) {
		bad := cooked4x4(name)
		bad.Mips[0].RowPitch = 200 // breaks the 256 alignment contract
		return bad, nil
	})

	key := metadata.ResourceKeyFromName("broken")
	index, err := ts.GetOrAllocate(key, "broken")
	if err != nil {
		t.Fatalf("GetOrAllocate: %v", err)
	}
	pendingBefore := f.uploads.PendingTickets()
	ts.OnFrameStart()

	if !ts.LoadFailed(key) {
		t.Fatal("LoadFailed = false, want true")
	}
	if got := f.uploads.PendingTickets(); got != pendingBefore {
		t.Fatalf("rejected asset still submitted an upload: %d -> %d tickets", pendingBefore, got)
	}
	errorTexture := f.backend.FindTexture("texture_error")
	if got := f.backend.Table().TextureWrites[index]; got != errorTexture {
		t.Fatalf("failed slot points at %v, want the error texture", got)
	}
}

func TestTextureLoaderErrorRepointsToErrorTexture(t *testing.T) {
	f := newCore(t, 2)
	ts := newTextureSystem(t, f, func(name string) (*metadata.CookedTexture, error) {
		return nil, errors.New("asset not found")
	})

	key := metadata.ResourceKeyFromName("missing")
	index, err := ts.GetOrAllocate(key, "missing")
	if err != nil {
		t.Fatalf("GetOrAllocate: %v", err)
	}
	ts.OnFrameStart()

	if !ts.LoadFailed(key) {
		t.Fatal("LoadFailed = false, want true")
	}
	errorTexture := f.backend.FindTexture("texture_error")
	if got := f.backend.Table().TextureWrites[index]; got != errorTexture {
		t.Fatalf("failed slot points at %v, want the error texture", got)
	}

	// The index survives the failure: same slot, still the stable key.
	again, err := ts.GetOrAllocate(key, "missing")
	if err != nil {
		t.Fatalf("GetOrAllocate after failure: %v", err)
	}
	if again != index {
		t.Fatalf("index after failure = %d, want %d", again, index)
	}
}
