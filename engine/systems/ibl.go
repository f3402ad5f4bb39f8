package systems

import (
	"fmt"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/** @brief The image based lighting system configuration. */
type IblSystemConfig struct {
	/** @brief Face size of the irradiance cube. Defaults to 32. */
	IrradianceSize uint32
	/** @brief Face size of the prefiltered specular cube. Defaults to 128. */
	PrefilterSize uint32
}

/**
 * @brief The derived-map outputs for one view. SRV indices are invalid
 * unless the maps were generated from the source cubemap slot the caller
 * asked about, which forces regeneration before use after an environment
 * swap.
 */
type IblOutputs struct {
	Irradiance         metadata.BindlessIndex
	Prefilter          metadata.BindlessIndex
	PrefilterMipLevels uint32
	/** @brief Bumped every regeneration. */
	Generation uint32
	/** @brief Content version of the source environment the maps were built from. */
	SourceContentVersion uint64
}

type iblViewEntry struct {
	irradiance renderer.Texture
	prefilter  renderer.Texture

	irradianceHandle metadata.VersionedHandle
	prefilterHandle  metadata.VersionedHandle

	/** @brief The environment cubemap slot the maps were last generated from. */
	lastSourceSlot metadata.BindlessIndex
	generation     uint32
	contentVersion uint64
}

/**
 * @brief Owns per-view irradiance and prefiltered specular cubemaps.
 * Resources are created lazily on the first query for a view and live
 * until the view is erased. Generation happens elsewhere (a compute
 * pass); this system tracks which source environment each view's maps
 * were derived from and refuses to hand out stale outputs.
 *
 * Render thread only.
 */
type IblSystem struct {
	config   IblSystemConfig
	backend  renderer.GraphicsBackend
	bindless *renderer.BindlessAllocator
	frames   *renderer.FrameResourceManager

	views map[metadata.ViewId]*iblViewEntry
}

func NewIblSystem(
	backend renderer.GraphicsBackend,
	bindless *renderer.BindlessAllocator,
	frames *renderer.FrameResourceManager,
	config IblSystemConfig,
) (*IblSystem, error) {
	if backend == nil || bindless == nil || frames == nil {
		return nil, fmt.Errorf("ibl system needs a backend, bindless allocator and frame resource manager")
	}
	if config.IrradianceSize == 0 {
		config.IrradianceSize = 32
	}
	if config.PrefilterSize == 0 {
		config.PrefilterSize = 128
	}
	return &IblSystem{
		config:   config,
		backend:  backend,
		bindless: bindless,
		frames:   frames,
		views:    make(map[metadata.ViewId]*iblViewEntry),
	}, nil
}

/** @brief Mip count of the prefiltered cube: floor(log2(size)) + 1. */
func (is *IblSystem) PrefilterMipLevels() uint32 {
	return metadata.FullMipCount(is.config.PrefilterSize, is.config.PrefilterSize)
}

/**
 * @brief Returns the outputs for a view against a source environment
 * slot. Creates the view's resources on first sight. The SRV slots are
 * populated only when the maps were generated from sourceSlot; otherwise
 * the outputs carry invalid indices and the caller must regenerate.
 */
func (is *IblSystem) QueryOutputsFor(view metadata.ViewId, sourceSlot metadata.BindlessIndex) (IblOutputs, error) {
	entry, ok := is.views[view]
	if !ok {
		created, err := is.createViewResources(view)
		if err != nil {
			return IblOutputs{Irradiance: metadata.InvalidBindlessIndex, Prefilter: metadata.InvalidBindlessIndex}, err
		}
		entry = created
		is.views[view] = entry
	}

	outputs := IblOutputs{
		Irradiance:           metadata.InvalidBindlessIndex,
		Prefilter:            metadata.InvalidBindlessIndex,
		PrefilterMipLevels:   is.PrefilterMipLevels(),
		Generation:           entry.generation,
		SourceContentVersion: entry.contentVersion,
	}
	if entry.lastSourceSlot == sourceSlot && sourceSlot != metadata.InvalidBindlessIndex {
		outputs.Irradiance = entry.irradianceHandle.Index
		outputs.Prefilter = entry.prefilterHandle.Index
	}
	return outputs, nil
}

/**
 * @brief Records that a view's maps were regenerated from sourceSlot at
 * the given content version. Bumps the view's generation.
 */
func (is *IblSystem) MarkGenerated(view metadata.ViewId, sourceSlot metadata.BindlessIndex, contentVersion uint64) {
	entry, ok := is.views[view]
	if !ok {
		core.LogWarn("ibl: MarkGenerated for unknown view %s", view)
		return
	}
	entry.lastSourceSlot = sourceSlot
	entry.contentVersion = contentVersion
	entry.generation++
}

/**
 * @brief The view's cubemaps for UAV binding during regeneration. False
 * when the view was never queried.
 */
func (is *IblSystem) ViewTextures(view metadata.ViewId) (irradiance, prefilter renderer.Texture, ok bool) {
	entry, found := is.views[view]
	if !found {
		return nil, nil, false
	}
	return entry.irradiance, entry.prefilter, true
}

/** @brief The view's current generation, zero for unknown views. */
func (is *IblSystem) Generation(view metadata.ViewId) uint32 {
	if entry, ok := is.views[view]; ok {
		return entry.generation
	}
	return 0
}

func (is *IblSystem) ViewCount() int {
	return len(is.views)
}

func (is *IblSystem) createViewResources(view metadata.ViewId) (*iblViewEntry, error) {
	irradiance, err := is.backend.CreateTexture(metadata.TextureDesc{
		Name:      fmt.Sprintf("ibl_irradiance_%s", view),
		Type:      metadata.TextureTypeCube,
		Format:    metadata.FormatRGBA16Float,
		Width:     is.config.IrradianceSize,
		Height:    is.config.IrradianceSize,
		Depth:     1,
		ArraySize: 6,
		MipLevels: 1,
		Usage:     metadata.TextureUsageShaderResource | metadata.TextureUsageUnorderedAccess,
	})
	if err != nil {
		return nil, fmt.Errorf("ibl: irradiance cube: %w", err)
	}
	prefilter, err := is.backend.CreateTexture(metadata.TextureDesc{
		Name:      fmt.Sprintf("ibl_prefilter_%s", view),
		Type:      metadata.TextureTypeCube,
		Format:    metadata.FormatRGBA16Float,
		Width:     is.config.PrefilterSize,
		Height:    is.config.PrefilterSize,
		Depth:     1,
		ArraySize: 6,
		MipLevels: is.PrefilterMipLevels(),
		Usage:     metadata.TextureUsageShaderResource | metadata.TextureUsageUnorderedAccess,
	})
	if err != nil {
		irradiance.Destroy()
		return nil, fmt.Errorf("ibl: prefilter cube: %w", err)
	}

	entry := &iblViewEntry{
		irradiance:     irradiance,
		prefilter:      prefilter,
		lastSourceSlot: metadata.InvalidBindlessIndex,
	}
	entry.irradianceHandle, err = is.bindless.Allocate(metadata.DomainTextures)
	if err == nil {
		err = is.backend.DescriptorTable().PointAtTexture(entry.irradianceHandle.Index, irradiance)
	}
	if err == nil {
		entry.prefilterHandle, err = is.bindless.Allocate(metadata.DomainTextures)
	}
	if err == nil {
		err = is.backend.DescriptorTable().PointAtTexture(entry.prefilterHandle.Index, prefilter)
	}
	if err != nil {
		irradiance.Destroy()
		prefilter.Destroy()
		return nil, fmt.Errorf("ibl: view %s descriptors: %w", view, err)
	}
	core.LogDebug("ibl: created maps for view %s (irradiance %d, prefilter %d with %d mips)",
		view, is.config.IrradianceSize, is.config.PrefilterSize, is.PrefilterMipLevels())
	return entry, nil
}

/**
 * @brief Erases a view's maps. Descriptor release and destruction ride
 * the frame resource manager so in-flight frames finish first.
 */
func (is *IblSystem) OnViewRemoved(view metadata.ViewId) {
	entry, ok := is.views[view]
	if !ok {
		return
	}
	delete(is.views, view)

	if err := is.bindless.Release(metadata.DomainTextures, entry.irradianceHandle); err != nil {
		core.LogWarn("ibl: releasing irradiance slot: %s", err.Error())
	}
	if err := is.bindless.Release(metadata.DomainTextures, entry.prefilterHandle); err != nil {
		core.LogWarn("ibl: releasing prefilter slot: %s", err.Error())
	}
	irradiance, prefilter := entry.irradiance, entry.prefilter
	if err := is.frames.RegisterDeferredAction(func() error {
		irradiance.Destroy()
		prefilter.Destroy()
		return nil
	}); err != nil {
		irradiance.Destroy()
		prefilter.Destroy()
	}
}

func (is *IblSystem) Shutdown() error {
	for view := range is.views {
		entry := is.views[view]
		delete(is.views, view)
		entry.irradiance.Destroy()
		entry.prefilter.Destroy()
	}
	return nil
}
