package systems

import (
	"fmt"
	"sync"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/**
 * @brief Loads and decodes a cooked texture asset by name. Runs on a job
 * worker, so it must not touch the GPU.
 */
type TextureLoadFunc func(name string) (*metadata.CookedTexture, error)

/** @brief The texture system configuration. */
type TextureSystemConfig struct {
	/** @brief Loader invoked off-thread for every requested texture asset. */
	Load TextureLoadFunc
	/**
	 * @brief Maps a resource key back to its asset name, so Resolve can
	 * start loads for keys carried by materials. Nil disables key-only
	 * resolution; such keys stay on the placeholder.
	 */
	ResolveName func(key metadata.ResourceKey) (string, bool)
}

type textureEntry struct {
	key    metadata.ResourceKey
	name   string
	handle metadata.VersionedHandle

	/** @brief The uploaded GPU texture once residency is reached. */
	texture renderer.Texture
	/** @brief Ticket of the in-flight upload, invalid when none. */
	ticket metadata.UploadTicket

	isPlaceholder bool
	loadFailed    bool
}

/** @brief A decoded asset handed from a job worker to the render thread. */
type decodedTexture struct {
	key    metadata.ResourceKey
	cooked *metadata.CookedTexture
	err    error
}

/**
 * @brief Maps texture asset keys to stable bindless indices. A key's
 * first request allocates one descriptor, points it at the shared 1x1
 * placeholder and starts an asynchronous load; the index never changes
 * afterwards, only what it points at. Completed uploads repoint the slot
 * to the real texture; failures repoint it to the error texture and stay
 * there. Key 0 is the placeholder sentinel and never allocates.
 *
 * GetOrAllocate and OnFrameStart run on the render thread; only the
 * decode step runs on workers.
 */
type TextureSystem struct {
	config   TextureSystemConfig
	backend  renderer.GraphicsBackend
	bindless *renderer.BindlessAllocator
	uploads  *renderer.UploadCoordinator
	frames   *renderer.FrameResourceManager
	jobs     *JobSystem

	entries map[metadata.ResourceKey]*textureEntry

	placeholderTexture renderer.Texture
	placeholderHandle  metadata.VersionedHandle
	/** @brief Live entries still pointing at the placeholder. */
	placeholderRefs int
	errorTexture    renderer.Texture

	decodedMu sync.Mutex
	decoded   []decodedTexture

	shutdown bool
}

func NewTextureSystem(
	backend renderer.GraphicsBackend,
	bindless *renderer.BindlessAllocator,
	uploads *renderer.UploadCoordinator,
	frames *renderer.FrameResourceManager,
	jobs *JobSystem,
	config TextureSystemConfig,
) (*TextureSystem, error) {
	if backend == nil || bindless == nil || uploads == nil || frames == nil {
		return nil, fmt.Errorf("texture system needs a backend, bindless allocator, upload coordinator and frame resource manager")
	}
	if config.Load == nil {
		return nil, fmt.Errorf("texture system needs a loader")
	}
	ts := &TextureSystem{
		config:   config,
		backend:  backend,
		bindless: bindless,
		uploads:  uploads,
		frames:   frames,
		jobs:     jobs,
		entries:  make(map[metadata.ResourceKey]*textureEntry),
	}
	if err := ts.createBuiltins(); err != nil {
		return nil, err
	}
	return ts, nil
}

// The placeholder is mid grey so missing textures read as "not loaded
// yet"; the error texture is magenta so failures are unmissable.
func (ts *TextureSystem) createBuiltins() error {
	var err error
	ts.placeholderTexture, err = ts.createSolidTexture("texture_placeholder", [4]byte{127, 127, 127, 255})
	if err != nil {
		return err
	}
	ts.errorTexture, err = ts.createSolidTexture("texture_error", [4]byte{255, 0, 255, 255})
	if err != nil {
		return err
	}
	ts.placeholderHandle, err = ts.bindless.Allocate(metadata.DomainTextures)
	if err != nil {
		return err
	}
	return ts.backend.DescriptorTable().PointAtTexture(ts.placeholderHandle.Index, ts.placeholderTexture)
}

func (ts *TextureSystem) createSolidTexture(name string, rgba [4]byte) (renderer.Texture, error) {
	texture, err := ts.backend.CreateTexture(metadata.TextureDesc{
		Name:      name,
		Type:      metadata.TextureType2D,
		Format:    metadata.FormatRGBA8Unorm,
		Width:     1,
		Height:    1,
		Depth:     1,
		ArraySize: 1,
		MipLevels: 1,
		Usage:     metadata.TextureUsageShaderResource | metadata.TextureUsageCopyDest,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %q: %w", name, err)
	}
	if _, err := ts.uploads.SubmitTextureUpload(renderer.TextureUploadRequest{
		Name: name,
		Dst:  texture,
		Data: rgba[:],
	}); err != nil {
		texture.Destroy()
		return nil, fmt.Errorf("uploading %q: %w", name, err)
	}
	return texture, nil
}

/** @brief The descriptor index of the shared placeholder texture. */
func (ts *TextureSystem) PlaceholderIndex() metadata.BindlessIndex {
	return ts.placeholderHandle.Index
}

/**
 * @brief Resolves the stable descriptor index for a texture key. The
 * sentinel key returns the placeholder index without allocating. A new
 * key gets a fresh descriptor pointed at the placeholder while the asset
 * loads; repeated calls always return the same index regardless of load
 * state.
 */
func (ts *TextureSystem) GetOrAllocate(key metadata.ResourceKey, name string) (metadata.BindlessIndex, error) {
	if key == metadata.ResourceKeyPlaceholder {
		return ts.placeholderHandle.Index, nil
	}
	if entry, ok := ts.entries[key]; ok {
		return entry.handle.Index, nil
	}
	if ts.shutdown {
		return metadata.InvalidBindlessIndex, core.ErrShutdownInProgress
	}

	handle, err := ts.bindless.Allocate(metadata.DomainTextures)
	if err != nil {
		return metadata.InvalidBindlessIndex, fmt.Errorf("texture %q: %w", name, err)
	}
	if err := ts.backend.DescriptorTable().PointAtTexture(handle.Index, ts.placeholderTexture); err != nil {
		releaseErr := ts.bindless.Release(metadata.DomainTextures, handle)
		if releaseErr != nil {
			core.LogWarn("releasing descriptor after bind failure: %s", releaseErr.Error())
		}
		return metadata.InvalidBindlessIndex, fmt.Errorf("texture %q: binding placeholder: %w", name, err)
	}

	entry := &textureEntry{
		key:           key,
		name:          name,
		handle:        handle,
		isPlaceholder: true,
	}
	ts.entries[key] = entry
	ts.placeholderRefs++
	ts.startLoad(entry)
	return handle.Index, nil
}

/**
 * @brief Resolves a material-carried key to a descriptor index without
 * knowing the asset name. Known keys return their stable index; unknown
 * keys are looked up through the configured name resolver and enter the
 * load path. Keys nothing can name fall back to the placeholder index,
 * so the caller always gets something drawable.
 */
func (ts *TextureSystem) Resolve(key metadata.ResourceKey) metadata.BindlessIndex {
	if key == metadata.ResourceKeyPlaceholder {
		return ts.placeholderHandle.Index
	}
	if entry, ok := ts.entries[key]; ok {
		return entry.handle.Index
	}
	if ts.config.ResolveName == nil {
		return ts.placeholderHandle.Index
	}
	name, ok := ts.config.ResolveName(key)
	if !ok {
		return ts.placeholderHandle.Index
	}
	index, err := ts.GetOrAllocate(key, name)
	if err != nil {
		core.LogWarn("texture %q: resolving key: %s", name, err.Error())
		return ts.placeholderHandle.Index
	}
	return index
}

/** @brief True while the key's slot still points at the placeholder. */
func (ts *TextureSystem) IsPlaceholder(key metadata.ResourceKey) bool {
	entry, ok := ts.entries[key]
	return ok && entry.isPlaceholder
}

/** @brief True when the key's load failed and its slot shows the error texture. */
func (ts *TextureSystem) LoadFailed(key metadata.ResourceKey) bool {
	entry, ok := ts.entries[key]
	return ok && entry.loadFailed
}

/** @brief Count of entries still pointing at the placeholder. */
func (ts *TextureSystem) PlaceholderRefs() int {
	return ts.placeholderRefs
}

/**
 * @brief Re-enters the load path for a key, typically on a hot reload
 * event. The descriptor index is unchanged; the old texture is destroyed
 * through the frame resource manager once the repoint lands.
 */
func (ts *TextureSystem) Reload(key metadata.ResourceKey) {
	entry, ok := ts.entries[key]
	if !ok || ts.shutdown {
		return
	}
	entry.loadFailed = false
	ts.startLoad(entry)
}

func (ts *TextureSystem) startLoad(entry *textureEntry) {
	task := metadata.JobTask{
		Name: fmt.Sprintf("texture_load_%s", entry.name),
		OnStart: func() (interface{}, error) {
			return ts.config.Load(entry.name)
		},
		OnComplete: func(result interface{}) {
			ts.pushDecoded(decodedTexture{key: entry.key, cooked: result.(*metadata.CookedTexture)})
		},
		OnFailure: func(err error) {
			ts.pushDecoded(decodedTexture{key: entry.key, err: err})
		},
	}
	if ts.jobs != nil {
		if err := ts.jobs.Submit(task); err != nil {
			ts.pushDecoded(decodedTexture{key: entry.key, err: err})
		}
		return
	}
	// No job system in tests: decode synchronously.
	result, err := task.OnStart()
	if err != nil {
		task.OnFailure(err)
		return
	}
	task.OnComplete(result)
}

func (ts *TextureSystem) pushDecoded(d decodedTexture) {
	ts.decodedMu.Lock()
	ts.decoded = append(ts.decoded, d)
	ts.decodedMu.Unlock()
}

/**
 * @brief Render-thread tick. Ingests decoded assets from the workers
 * (validating the cooked layout, creating the GPU texture and submitting
 * its upload), then repoints every entry whose upload fence has been
 * observed complete. Repointed entries release their placeholder
 * reference through the frame resource manager.
 */
func (ts *TextureSystem) OnFrameStart() {
	ts.decodedMu.Lock()
	decoded := ts.decoded
	ts.decoded = nil
	ts.decodedMu.Unlock()

	for _, d := range decoded {
		ts.ingest(d)
	}

	for _, entry := range ts.entries {
		ts.pollUpload(entry)
	}
}

// Failures here are terminal for the entry: the slot repoints to the
// error texture and no further attempt is made until a Reload.
func (ts *TextureSystem) ingest(d decodedTexture) {
	entry, ok := ts.entries[d.key]
	if !ok {
		return
	}
	if d.err != nil {
		core.LogError("texture %q: load failed: %s", entry.name, d.err.Error())
		ts.markFailed(entry)
		return
	}
	if err := d.cooked.ValidateLayout(); err != nil {
		core.LogError("texture %q: rejected: %s", entry.name, err.Error())
		ts.markFailed(entry)
		return
	}
	texels, err := d.cooked.PackedTexels()
	if err != nil {
		core.LogError("texture %q: %s", entry.name, err.Error())
		ts.markFailed(entry)
		return
	}

	desc := d.cooked.Desc
	desc.Usage |= metadata.TextureUsageShaderResource | metadata.TextureUsageCopyDest
	texture, err := ts.backend.CreateTexture(desc)
	if err != nil {
		core.LogError("texture %q: creating resource: %s", entry.name, err.Error())
		ts.markFailed(entry)
		return
	}
	ticket, err := ts.uploads.SubmitTextureUpload(renderer.TextureUploadRequest{
		Name: entry.name,
		Dst:  texture,
		Data: texels,
	})
	if err != nil {
		core.LogError("texture %q: upload submit: %s", entry.name, err.Error())
		texture.Destroy()
		ts.markFailed(entry)
		return
	}

	if entry.texture != nil {
		// Hot reload: the previous texture dies once no frame in flight
		// can still sample it.
		old := entry.texture
		if err := ts.frames.RegisterDeferredAction(func() error {
			old.Destroy()
			return nil
		}); err != nil {
			core.LogWarn("texture %q: deferring old texture destroy: %s", entry.name, err.Error())
		}
	}
	entry.texture = texture
	entry.ticket = ticket
}

func (ts *TextureSystem) pollUpload(entry *textureEntry) {
	if entry.ticket == metadata.InvalidUploadTicket {
		return
	}
	if !ts.uploads.IsComplete(entry.ticket) {
		return
	}
	result, done, err := ts.uploads.TryGetResult(entry.ticket)
	if err != nil || !done {
		return
	}
	entry.ticket = metadata.InvalidUploadTicket

	if !result.Completed {
		core.LogError("texture %q: upload failed: %s", entry.name, result.Err.Error())
		entry.texture.Destroy()
		entry.texture = nil
		ts.markFailed(entry)
		return
	}
	if err := ts.backend.DescriptorTable().PointAtTexture(entry.handle.Index, entry.texture); err != nil {
		core.LogError("texture %q: repoint: %s", entry.name, err.Error())
		return
	}
	if entry.isPlaceholder {
		entry.isPlaceholder = false
		ts.releasePlaceholderRef(entry.name)
	}
	core.LogDebug("texture %q resident at slot %d (%d bytes)", entry.name, entry.handle.Index, result.BytesUploaded)
}

func (ts *TextureSystem) markFailed(entry *textureEntry) {
	entry.loadFailed = true
	wasPlaceholder := entry.isPlaceholder
	entry.isPlaceholder = false
	if err := ts.backend.DescriptorTable().PointAtTexture(entry.handle.Index, ts.errorTexture); err != nil {
		core.LogError("texture %q: binding error texture: %s", entry.name, err.Error())
	}
	if wasPlaceholder {
		ts.releasePlaceholderRef(entry.name)
	}
}

// The reference drop is deferred so a frame in flight that still samples
// the placeholder through this slot keeps a consistent view.
func (ts *TextureSystem) releasePlaceholderRef(name string) {
	if err := ts.frames.RegisterDeferredAction(func() error {
		ts.placeholderRefs--
		return nil
	}); err != nil {
		core.LogWarn("texture %q: deferring placeholder release: %s", name, err.Error())
		ts.placeholderRefs--
	}
}

/**
 * @brief Releases every entry's descriptor and destroys owned textures.
 * Callers flush the GPU first; destruction here is immediate.
 */
func (ts *TextureSystem) Shutdown() error {
	ts.shutdown = true
	for _, entry := range ts.entries {
		if err := ts.bindless.Release(metadata.DomainTextures, entry.handle); err != nil {
			core.LogWarn("texture %q: releasing slot: %s", entry.name, err.Error())
		}
		if entry.texture != nil {
			entry.texture.Destroy()
		}
	}
	ts.entries = make(map[metadata.ResourceKey]*textureEntry)
	if err := ts.bindless.Release(metadata.DomainTextures, ts.placeholderHandle); err != nil {
		core.LogWarn("releasing placeholder slot: %s", err.Error())
	}
	ts.placeholderTexture.Destroy()
	ts.errorTexture.Destroy()
	return nil
}
