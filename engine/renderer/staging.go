package renderer

import (
	"fmt"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/**
 * @brief A CPU-mapped, GPU-readable byte range handed out by a staging
 * provider. Mapped stays writable until the originating slot's fence
 * boundary is crossed.
 */
type StagingAllocation struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
	Mapped []byte
}

/** @brief Telemetry counters exposed by staging providers. */
type StagingStats struct {
	TotalAllocations     uint64
	TotalBytesAllocated  uint64
	AllocationsThisFrame uint64
	CurrentBufferSize    uint64
	BufferGrowthCount    uint64
	MapCalls             uint64
	UnmapCalls           uint64
	/** @brief Partitions rotated in before their retire fence was observed. */
	PartitionReuseWarnings uint64
	/** @brief Single-pole exponential moving average of allocation sizes. */
	AvgAllocationSize float64
}

/**
 * @brief Supplies staging memory with alignment guarantees. Space is
 * recycled only after the originating slot's completion fence has been
 * observed through RetireCompleted.
 */
type StagingProvider interface {
	Allocate(sizeBytes uint64, debugName string, alignment uint64) (StagingAllocation, error)
	/** @brief Switches the active partition when the frame slot advances. */
	OnFrameStart(slot int)
	/** @brief Records the fence that must pass before slot's partition may be reused. */
	SetSlotRetireFence(slot int, fence metadata.FenceValue)
	/** @brief Reports the latest fence the upload side has observed complete. */
	RetireCompleted(fence metadata.FenceValue)
	Stats() StagingStats
	Destroy()
}

/** @brief Configuration of the ring buffer staging provider. */
type StagingConfig struct {
	/** @brief Number of frame slots the ring is partitioned into. Minimum 1. */
	SlotCount int
	/** @brief Alignment of every returned offset. Defaults to 512. */
	PlacementAlignment uint64
	/** @brief Initial capacity of one partition in bytes. */
	PartitionSize uint64
	/** @brief Multiplier applied to the partition size when growing. */
	GrowthFactor float64
}

const (
	defaultStagingPartitionSize uint64 = 8 * 1024 * 1024
	defaultStagingGrowthFactor         = 2.0
	// Weight of the newest sample in the rolling average allocation size.
	stagingAvgSmoothing = 0.1
)

type retiredBuffer struct {
	buffer Buffer
	/** @brief Zero until the owning slot's fence is known. */
	fence metadata.FenceValue
}

/**
 * @brief Ring buffer staging: one backing buffer partitioned into equal
 * regions, one region per frame slot. The active region serves Allocate
 * with a bump pointer; rotation resets the head for the incoming slot.
 *
 * Not safe for concurrent use. Partition isolation by frame slot is the
 * only isolation guarantee.
 */
type RingBufferStaging struct {
	backend GraphicsBackend
	config  StagingConfig

	buffer        Buffer
	mapped        []byte
	partitionSize uint64

	activeSlot int
	/** @brief Bump pointer within the active partition. */
	head uint64

	/** @brief Per slot fence that must be observed before partition reuse. */
	slotFences []metadata.FenceValue
	/** @brief Highest fence observed complete by the upload side. */
	retireObserved metadata.FenceValue

	/** @brief Replaced backing buffers kept alive until their fences pass. */
	graveyard []retiredBuffer

	stats StagingStats
}

func NewRingBufferStaging(backend GraphicsBackend, config StagingConfig) (*RingBufferStaging, error) {
	if config.SlotCount < 1 {
		return nil, fmt.Errorf("staging: slot count must be >= 1, got %d", config.SlotCount)
	}
	if config.PlacementAlignment == 0 {
		config.PlacementAlignment = uint64(metadata.PlacementAlignment)
	}
	if config.PartitionSize == 0 {
		config.PartitionSize = defaultStagingPartitionSize
	}
	if config.GrowthFactor <= 1.0 {
		config.GrowthFactor = defaultStagingGrowthFactor
	}
	config.PartitionSize = metadata.GetAligned(config.PartitionSize, config.PlacementAlignment)

	s := &RingBufferStaging{
		backend:       backend,
		config:        config,
		partitionSize: config.PartitionSize,
		slotFences:    make([]metadata.FenceValue, config.SlotCount),
	}
	if err := s.createBacking(config.PartitionSize); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RingBufferStaging) createBacking(partitionSize uint64) error {
	total := partitionSize * uint64(s.config.SlotCount)
	buffer, err := s.backend.CreateBuffer(metadata.BufferDesc{
		Name:       fmt.Sprintf("staging_ring_%dx%d", s.config.SlotCount, partitionSize),
		Size:       total,
		Usage:      metadata.BufferUsageCopySource,
		CpuVisible: true,
	})
	if err != nil {
		return fmt.Errorf("staging: creating %d byte ring: %w", total, err)
	}
	mapped, err := buffer.Map()
	if err != nil {
		buffer.Destroy()
		return fmt.Errorf("staging: mapping ring: %w", err)
	}
	s.buffer = buffer
	s.mapped = mapped
	s.partitionSize = partitionSize
	s.stats.MapCalls++
	s.stats.CurrentBufferSize = total
	return nil
}

/**
 * @brief Serves sizeBytes from the active partition. The returned offset
 * honors both the caller's alignment and the placement alignment. A zero
 * size request fails with ErrInvalidRequest and consumes nothing.
 */
func (s *RingBufferStaging) Allocate(sizeBytes uint64, debugName string, alignment uint64) (StagingAllocation, error) {
	if sizeBytes == 0 {
		return StagingAllocation{}, fmt.Errorf("staging allocation %q: zero size: %w", debugName, ErrInvalidRequest)
	}
	align := s.config.PlacementAlignment
	if alignment > align {
		align = metadata.GetAligned(alignment, s.config.PlacementAlignment)
	}

	offset := metadata.GetAligned(s.head, align)
	if offset+sizeBytes > s.partitionSize {
		if err := s.grow(offset + sizeBytes); err != nil {
			return StagingAllocation{}, err
		}
		// Fresh partition, head restarted at zero.
		offset = 0
	}

	base := uint64(s.activeSlot)*s.partitionSize + offset
	s.head = offset + sizeBytes

	s.stats.TotalAllocations++
	s.stats.AllocationsThisFrame++
	s.stats.TotalBytesAllocated += sizeBytes
	if s.stats.AvgAllocationSize == 0 {
		s.stats.AvgAllocationSize = float64(sizeBytes)
	} else {
		s.stats.AvgAllocationSize += stagingAvgSmoothing * (float64(sizeBytes) - s.stats.AvgAllocationSize)
	}

	return StagingAllocation{
		Buffer: s.buffer,
		Offset: base,
		Size:   sizeBytes,
		Mapped: s.mapped[base : base+sizeBytes : base+sizeBytes],
	}, nil
}

// grow replaces the backing ring with one whose partitions hold at least
// required bytes. The old buffer stays alive in the graveyard until its
// fences are observed; a failed growth leaves the provider usable at its
// previous capacity.
func (s *RingBufferStaging) grow(required uint64) error {
	newSize := uint64(float64(s.partitionSize) * s.config.GrowthFactor)
	if newSize < required {
		newSize = required
	}
	newSize = metadata.GetAligned(newSize, s.config.PlacementAlignment)

	old := s.buffer
	oldSize := s.partitionSize
	if err := s.createBacking(newSize); err != nil {
		s.buffer = old
		s.partitionSize = oldSize
		return fmt.Errorf("staging: growth to %d bytes per partition failed, staying at %d: %w",
			newSize, oldSize, ErrStagingExhausted)
	}
	s.graveyard = append(s.graveyard, retiredBuffer{buffer: old})
	s.head = 0
	s.stats.BufferGrowthCount++
	core.LogDebug("staging ring grew: partition %d -> %d bytes", oldSize, newSize)
	return nil
}

/**
 * @brief Switches the active partition to slot and resets the per-frame
 * counters. Warns when the partition is reused before its retire fence
 * was observed, which means the GPU may still read it.
 */
func (s *RingBufferStaging) OnFrameStart(slot int) {
	if slot < 0 || slot >= s.config.SlotCount {
		core.LogError("staging: frame slot %d out of range [0,%d)", slot, s.config.SlotCount)
		return
	}
	if fence := s.slotFences[slot]; fence > 0 && fence > s.retireObserved {
		s.stats.PartitionReuseWarnings++
		core.LogWarn("staging partition %d reused before retire fence %d was observed (latest %d)",
			slot, fence, s.retireObserved)
	}
	s.activeSlot = slot
	s.head = 0
	s.slotFences[slot] = 0
	s.stats.AllocationsThisFrame = 0
}

func (s *RingBufferStaging) SetSlotRetireFence(slot int, fence metadata.FenceValue) {
	if slot < 0 || slot >= s.config.SlotCount {
		return
	}
	s.slotFences[slot] = fence
	for i := range s.graveyard {
		if s.graveyard[i].fence == 0 {
			s.graveyard[i].fence = fence
		}
	}
}

/**
 * @brief Advances the observed retire fence. Graveyard buffers whose
 * fences have passed are unmapped and destroyed here.
 */
func (s *RingBufferStaging) RetireCompleted(fence metadata.FenceValue) {
	if fence > s.retireObserved {
		s.retireObserved = fence
	}
	kept := s.graveyard[:0]
	for _, rb := range s.graveyard {
		if rb.fence != 0 && rb.fence <= s.retireObserved {
			rb.buffer.Unmap()
			rb.buffer.Destroy()
			s.stats.UnmapCalls++
		} else {
			kept = append(kept, rb)
		}
	}
	s.graveyard = kept
}

func (s *RingBufferStaging) Stats() StagingStats {
	return s.stats
}

func (s *RingBufferStaging) Destroy() {
	for _, rb := range s.graveyard {
		rb.buffer.Unmap()
		rb.buffer.Destroy()
		s.stats.UnmapCalls++
	}
	s.graveyard = nil
	if s.buffer != nil {
		s.buffer.Unmap()
		s.buffer.Destroy()
		s.stats.UnmapCalls++
		s.buffer = nil
		s.mapped = nil
	}
}
