package renderer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

const bindlessChunkSize = 256

type bindlessSlot struct {
	/** @brief Current generation. A handle is live while its generation matches. */
	generation atomic.Uint32
	/** @brief Set between Release and the deferred reclaim running. */
	pending atomic.Bool
}

type bindlessChunk [bindlessChunkSize]bindlessSlot

/**
 * @brief Per-domain slot storage. Chunks never move once published, so
 * readers resolve handles without taking the mutex; the mutex only
 * guards growth, the free list and the next cursor.
 */
type bindlessDomain struct {
	mu       sync.Mutex
	chunks   atomic.Pointer[[]*bindlessChunk]
	freeList []metadata.BindlessIndex
	next     uint32
	capacity atomic.Uint32
}

func (d *bindlessDomain) slot(index metadata.BindlessIndex) *bindlessSlot {
	chunks := d.chunks.Load()
	return &(*chunks)[uint32(index)/bindlessChunkSize][uint32(index)%bindlessChunkSize]
}

/**
 * @brief Hands out versioned descriptor slots per domain. Indices are
 * recycled through a free list; every recycle bumps the slot generation
 * so stale handles stop validating. Release only marks the slot pending
 * and defers the actual reclaim through the frame resource manager, so
 * frames still in flight keep a valid descriptor until their fence has
 * passed.
 */
type BindlessAllocator struct {
	table   DescriptorTable
	frames  *FrameResourceManager
	domains [metadata.DomainCount]bindlessDomain
}

func NewBindlessAllocator(table DescriptorTable, frames *FrameResourceManager, initialCapacity uint32) (*BindlessAllocator, error) {
	if table == nil || frames == nil {
		return nil, fmt.Errorf("bindless allocator needs a descriptor table and a frame resource manager")
	}
	if initialCapacity == 0 {
		initialCapacity = bindlessChunkSize
	}
	a := &BindlessAllocator{table: table, frames: frames}
	for domain := metadata.BindlessDomain(0); domain < metadata.DomainCount; domain++ {
		d := &a.domains[domain]
		d.mu.Lock()
		err := a.growLocked(domain, d, initialCapacity)
		d.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

/**
 * @brief Claims a slot in the domain, recycled index first. Running out
 * of capacity grows the domain; growth failure surfaces as an error and
 * leaves existing handles untouched.
 */
func (a *BindlessAllocator) Allocate(domain metadata.BindlessDomain) (metadata.VersionedHandle, error) {
	d := &a.domains[domain]
	d.mu.Lock()
	var index metadata.BindlessIndex
	if n := len(d.freeList); n > 0 {
		index = d.freeList[n-1]
		d.freeList = d.freeList[:n-1]
	} else {
		if d.next >= d.capacity.Load() {
			if err := a.growLocked(domain, d, d.capacity.Load()*2); err != nil {
				d.mu.Unlock()
				return metadata.VersionedHandle{}, err
			}
		}
		index = metadata.BindlessIndex(d.next)
		d.next++
	}
	d.mu.Unlock()

	return metadata.VersionedHandle{
		Index:      index,
		Generation: d.slot(index).generation.Load(),
	}, nil
}

/**
 * @brief Marks the handle's slot for reclaim at the next safe frame
 * boundary. Releasing an already pending or stale handle is a warned
 * no-op, so double releases cannot free a recycled slot.
 */
func (a *BindlessAllocator) Release(domain metadata.BindlessDomain, handle metadata.VersionedHandle) error {
	if !handle.IsValid() || uint32(handle.Index) >= a.domains[domain].capacity.Load() {
		core.LogWarn("release of invalid bindless handle %s in %s", handle.String(), domain.String())
		return nil
	}
	d := &a.domains[domain]
	slot := d.slot(handle.Index)
	if slot.generation.Load() != handle.Generation {
		core.LogWarn("release of stale bindless handle %s in %s", handle.String(), domain.String())
		return nil
	}
	if !slot.pending.CompareAndSwap(false, true) {
		core.LogWarn("double release of bindless handle %s in %s", handle.String(), domain.String())
		return nil
	}

	index := handle.Index
	return a.frames.RegisterDeferredAction(func() error {
		a.table.ClearSlot(domain, index)
		slot.generation.Add(1)
		slot.pending.Store(false)
		d.mu.Lock()
		d.freeList = append(d.freeList, index)
		d.mu.Unlock()
		return nil
	})
}

/**
 * @brief True while the handle's generation matches the slot. A pending
 * release keeps the handle valid until its deferred reclaim runs, which
 * is what lets in-flight frames finish with it.
 */
func (a *BindlessAllocator) IsValid(domain metadata.BindlessDomain, handle metadata.VersionedHandle) bool {
	if !handle.IsValid() || uint32(handle.Index) >= a.domains[domain].capacity.Load() {
		return false
	}
	return a.domains[domain].slot(handle.Index).generation.Load() == handle.Generation
}

/** @brief Resolves a handle to its table index, failing on stale handles. */
func (a *BindlessAllocator) ResolveIndex(domain metadata.BindlessDomain, handle metadata.VersionedHandle) (metadata.BindlessIndex, bool) {
	if !a.IsValid(domain, handle) {
		return metadata.InvalidBindlessIndex, false
	}
	return handle.Index, true
}

func (a *BindlessAllocator) Capacity(domain metadata.BindlessDomain) uint32 {
	return a.domains[domain].capacity.Load()
}

/** @brief Count of slots currently claimed and not yet reclaimed. */
func (a *BindlessAllocator) AllocatedCount(domain metadata.BindlessDomain) int {
	d := &a.domains[domain]
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(d.next) - len(d.freeList)
}

/** @brief Grows the domain so at least capacity slots exist. */
func (a *BindlessAllocator) EnsureCapacity(domain metadata.BindlessDomain, capacity uint32) error {
	d := &a.domains[domain]
	d.mu.Lock()
	defer d.mu.Unlock()
	return a.growLocked(domain, d, capacity)
}

func (a *BindlessAllocator) growLocked(domain metadata.BindlessDomain, d *bindlessDomain, capacity uint32) error {
	current := d.capacity.Load()
	if capacity <= current {
		return nil
	}
	wantChunks := int((capacity + bindlessChunkSize - 1) / bindlessChunkSize)

	var existing []*bindlessChunk
	if p := d.chunks.Load(); p != nil {
		existing = *p
	}
	grown := make([]*bindlessChunk, wantChunks)
	copy(grown, existing)
	for i := len(existing); i < wantChunks; i++ {
		chunk := &bindlessChunk{}
		// Generation zero is the invalid handle sentinel.
		for s := range chunk {
			chunk[s].generation.Store(1)
		}
		grown[i] = chunk
	}

	newCapacity := uint32(wantChunks) * bindlessChunkSize
	if err := a.table.EnsureCapacity(domain, newCapacity); err != nil {
		return fmt.Errorf("growing %s descriptor table to %d: %w", domain.String(), newCapacity, err)
	}
	d.chunks.Store(&grown)
	d.capacity.Store(newCapacity)
	return nil
}
