package systems

import (
	"fmt"

	"honnef.co/go/safeish"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/scene"
)

/** @brief Identity of one resident mesh LOD in the cache. */
type MeshResidencyKey struct {
	ID  metadata.MeshID
	Lod int
}

/** @brief GPU residency of one mesh LOD: its packed vertex and index buffers. */
type MeshGpuResources struct {
	Vertex renderer.Buffer
	Index  renderer.Buffer
	/** @brief Frame index of the last access, drives eviction. */
	LastUsedFrame uint64
	IndexCount    uint32
}

/**
 * @brief Decides which resident meshes to drop. OnMeshAccess observes
 * every touch, SelectResourcesToEvict nominates victims each frame and
 * OnMeshRemoved confirms a removal (evicted or shut down).
 */
type MeshEvictionPolicy interface {
	OnMeshAccess(key MeshResidencyKey, frame uint64)
	SelectResourcesToEvict(currentFrame uint64) []MeshResidencyKey
	OnMeshRemoved(key MeshResidencyKey)
}

/** @brief Frames a mesh may go untouched before LRU eviction. */
const DefaultMeshEvictionAge uint64 = 60

/** @brief LRU policy: evict whatever has not been touched for MaxAge frames. */
type LruMeshEviction struct {
	MaxAge   uint64
	lastUsed map[MeshResidencyKey]uint64
}

func NewLruMeshEviction(maxAge uint64) *LruMeshEviction {
	if maxAge == 0 {
		maxAge = DefaultMeshEvictionAge
	}
	return &LruMeshEviction{
		MaxAge:   maxAge,
		lastUsed: make(map[MeshResidencyKey]uint64),
	}
}

func (p *LruMeshEviction) OnMeshAccess(key MeshResidencyKey, frame uint64) {
	p.lastUsed[key] = frame
}

func (p *LruMeshEviction) SelectResourcesToEvict(currentFrame uint64) []MeshResidencyKey {
	var victims []MeshResidencyKey
	for key, frame := range p.lastUsed {
		if currentFrame-frame > p.MaxAge {
			victims = append(victims, key)
		}
	}
	return victims
}

func (p *LruMeshEviction) OnMeshRemoved(key MeshResidencyKey) {
	delete(p.lastUsed, key)
}

type meshEntry struct {
	key       MeshResidencyKey
	resources MeshGpuResources
	/** @brief In-flight upload tickets, empty once resident. */
	tickets []metadata.UploadTicket
	failed  bool
}

/**
 * @brief Caches GPU residency per mesh LOD. First access creates the
 * vertex and index buffers and stages their uploads; later accesses only
 * touch the LRU clock. Eviction and failed uploads remove the entry, so
 * the next access retries from scratch. Buffer destruction always goes
 * through the frame resource manager, never while a frame in flight may
 * still draw from it.
 *
 * Render thread only.
 */
type MeshSystem struct {
	backend renderer.GraphicsBackend
	uploads *renderer.UploadCoordinator
	frames  *renderer.FrameResourceManager
	policy  MeshEvictionPolicy

	entries      map[MeshResidencyKey]*meshEntry
	currentFrame uint64
}

func NewMeshSystem(
	backend renderer.GraphicsBackend,
	uploads *renderer.UploadCoordinator,
	frames *renderer.FrameResourceManager,
	policy MeshEvictionPolicy,
) (*MeshSystem, error) {
	if backend == nil || uploads == nil || frames == nil {
		return nil, fmt.Errorf("mesh system needs a backend, upload coordinator and frame resource manager")
	}
	if policy == nil {
		policy = NewLruMeshEviction(DefaultMeshEvictionAge)
	}
	return &MeshSystem{
		backend: backend,
		uploads: uploads,
		frames:  frames,
		policy:  policy,
		entries: make(map[MeshResidencyKey]*meshEntry),
	}, nil
}

/**
 * @brief Returns the GPU residency for one LOD of a geometry, creating
 * and uploading it on first access. The returned resources stay owned by
 * the cache; callers must not destroy them.
 */
func (ms *MeshSystem) EnsureResident(geometry scene.Geometry, lodIndex int) (*MeshGpuResources, error) {
	if geometry == nil {
		return nil, fmt.Errorf("nil geometry")
	}
	key := MeshResidencyKey{ID: geometry.ID(), Lod: lodIndex}
	if entry, ok := ms.entries[key]; ok {
		ms.touch(entry)
		return &entry.resources, nil
	}

	lod := geometry.Lod(lodIndex)
	if lod == nil {
		return nil, fmt.Errorf("mesh %q has no LOD %d", geometry.Name(), lodIndex)
	}
	if len(lod.Vertices) == 0 || len(lod.Indices) == 0 {
		return nil, fmt.Errorf("mesh %q LOD %d has empty streams", geometry.Name(), lodIndex)
	}

	vertexBytes := safeish.SliceCast[[]byte](lod.Vertices)
	indexBytes := safeish.SliceCast[[]byte](lod.Indices)

	vertex, err := ms.backend.CreateBuffer(metadata.BufferDesc{
		Name:  fmt.Sprintf("%s_lod%d_vb", geometry.Name(), lodIndex),
		Size:  uint64(len(vertexBytes)),
		Usage: metadata.BufferUsageVertex | metadata.BufferUsageCopyDest,
	})
	if err != nil {
		return nil, fmt.Errorf("mesh %q: vertex buffer: %w", geometry.Name(), err)
	}
	index, err := ms.backend.CreateBuffer(metadata.BufferDesc{
		Name:  fmt.Sprintf("%s_lod%d_ib", geometry.Name(), lodIndex),
		Size:  uint64(len(indexBytes)),
		Usage: metadata.BufferUsageIndex | metadata.BufferUsageCopyDest,
	})
	if err != nil {
		vertex.Destroy()
		return nil, fmt.Errorf("mesh %q: index buffer: %w", geometry.Name(), err)
	}

	entry := &meshEntry{
		key: key,
		resources: MeshGpuResources{
			Vertex:     vertex,
			Index:      index,
			IndexCount: uint32(len(lod.Indices)),
		},
	}

	vbTicket, err := ms.uploads.SubmitBufferUpload(renderer.BufferUploadRequest{
		Name:       vertex.Name(),
		Dst:        vertex,
		Size:       uint64(len(vertexBytes)),
		Data:       vertexBytes,
		FinalState: metadata.ResourceStateVertexAndConstantBuffer,
	})
	if err != nil {
		vertex.Destroy()
		index.Destroy()
		return nil, fmt.Errorf("mesh %q: vertex upload: %w", geometry.Name(), err)
	}
	ibTicket, err := ms.uploads.SubmitBufferUpload(renderer.BufferUploadRequest{
		Name:       index.Name(),
		Dst:        index,
		Size:       uint64(len(indexBytes)),
		Data:       indexBytes,
		FinalState: metadata.ResourceStateIndexBuffer,
	})
	if err != nil {
		vertex.Destroy()
		index.Destroy()
		return nil, fmt.Errorf("mesh %q: index upload: %w", geometry.Name(), err)
	}
	entry.tickets = []metadata.UploadTicket{vbTicket, ibTicket}

	ms.entries[key] = entry
	ms.touch(entry)
	return &entry.resources, nil
}

/**
 * @brief Fetches the residency for a key without creating it. Returns
 * false while uploads are still in flight or the key was never seen.
 * Counts as an access for eviction purposes.
 */
func (ms *MeshSystem) Resources(key MeshResidencyKey) (*MeshGpuResources, bool) {
	entry, ok := ms.entries[key]
	if !ok || len(entry.tickets) > 0 {
		return nil, false
	}
	ms.touch(entry)
	return &entry.resources, true
}

func (ms *MeshSystem) IsResident(key MeshResidencyKey) bool {
	entry, ok := ms.entries[key]
	return ok && len(entry.tickets) == 0 && !entry.failed
}

func (ms *MeshSystem) ResidentCount() int {
	return len(ms.entries)
}

/** @brief Marks an access without forcing residency. Unknown keys are ignored. */
func (ms *MeshSystem) Touch(key MeshResidencyKey) {
	if entry, ok := ms.entries[key]; ok {
		ms.touch(entry)
	}
}

func (ms *MeshSystem) touch(entry *meshEntry) {
	entry.resources.LastUsedFrame = ms.currentFrame
	ms.policy.OnMeshAccess(entry.key, ms.currentFrame)
}

/**
 * @brief Render-thread tick: polls in-flight uploads and evicts entries
 * the policy nominates. A failed upload evicts immediately so the next
 * use retries.
 */
func (ms *MeshSystem) OnFrameStart(frameIndex uint64) {
	ms.currentFrame = frameIndex
	for _, entry := range ms.entries {
		ms.pollTickets(entry)
	}
	ms.EvictStale()
}

func (ms *MeshSystem) pollTickets(entry *meshEntry) {
	remaining := entry.tickets[:0]
	for _, ticket := range entry.tickets {
		if !ms.uploads.IsComplete(ticket) {
			remaining = append(remaining, ticket)
			continue
		}
		result, done, err := ms.uploads.TryGetResult(ticket)
		if err != nil || !done {
			continue
		}
		if !result.Completed {
			core.LogError("mesh %q: upload failed: %s", entry.resources.Vertex.Name(), result.Err.Error())
			entry.failed = true
		}
	}
	entry.tickets = remaining
	if entry.failed && len(entry.tickets) == 0 {
		ms.remove(entry.key)
	}
}

/** @brief Removes every entry the eviction policy nominates. */
func (ms *MeshSystem) EvictStale() {
	for _, key := range ms.policy.SelectResourcesToEvict(ms.currentFrame) {
		if entry, ok := ms.entries[key]; ok {
			// Entries with uploads still in flight stay; their staging
			// fences have not been observed yet.
			if len(entry.tickets) > 0 {
				continue
			}
			core.LogDebug("evicting mesh buffers %q (idle since frame %d)",
				entry.resources.Vertex.Name(), entry.resources.LastUsedFrame)
			ms.remove(key)
		}
	}
}

func (ms *MeshSystem) remove(key MeshResidencyKey) {
	entry, ok := ms.entries[key]
	if !ok {
		return
	}
	delete(ms.entries, key)
	ms.policy.OnMeshRemoved(key)

	vertex, index := entry.resources.Vertex, entry.resources.Index
	if err := ms.frames.RegisterDeferredAction(func() error {
		vertex.Destroy()
		index.Destroy()
		return nil
	}); err != nil {
		// Shutdown path: the GPU is already idle.
		vertex.Destroy()
		index.Destroy()
	}
}

/** @brief Destroys every resident buffer. Callers flush the GPU first. */
func (ms *MeshSystem) Shutdown() error {
	for key, entry := range ms.entries {
		entry.resources.Vertex.Destroy()
		entry.resources.Index.Destroy()
		ms.policy.OnMeshRemoved(key)
	}
	ms.entries = make(map[MeshResidencyKey]*meshEntry)
	return nil
}
