package systems

import (
	"fmt"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/** @brief The sky lookup-table system configuration. */
type SkyLutSystemConfig struct {
	TransmittanceWidth  uint32
	TransmittanceHeight uint32
	SkyViewWidth        uint32
	SkyViewHeight       uint32
	MultiScatSize       uint32
}

/**
 * @brief Physical atmosphere parameters the LUTs are derived from. Any
 * field change dirties the LUTs.
 */
type AtmosphereParameters struct {
	PlanetRadiusKm      float32
	AtmosphereHeightKm  float32
	RayleighScaleHeight float32
	MieScaleHeight      float32
	MieAnisotropy       float32
	/** @brief Ground albedo used by the multiple scattering LUT. */
	GroundAlbedo float32
}

// The defaults approximate Earth.
func DefaultAtmosphereParameters() AtmosphereParameters {
	return AtmosphereParameters{
		PlanetRadiusKm:      6360,
		AtmosphereHeightKm:  100,
		RayleighScaleHeight: 8,
		MieScaleHeight:      1.2,
		MieAnisotropy:       0.8,
		GroundAlbedo:        0.3,
	}
}

/** @brief Sun state the sky-view LUT depends on. */
type SunState struct {
	/** @brief Elevation above the horizon in radians. */
	ElevationRadians float32
	Enabled          bool
}

/** @brief SRV indices of the three sky lookup tables. */
type SkyLutOutputs struct {
	Transmittance metadata.BindlessIndex
	SkyView       metadata.BindlessIndex
	MultiScat     metadata.BindlessIndex
}

type skyLut struct {
	texture renderer.Texture
	handle  metadata.VersionedHandle
}

/**
 * @brief Owns the three atmosphere lookup tables (transmittance,
 * sky-view, multiple scattering), all RGBA16F UAV+SRV. Textures are
 * created once on the first EnsureResourcesCreated; parameter or sun
 * changes only mark the LUTs dirty and bump the generation so the sky
 * pass knows to recompute them.
 *
 * Render thread only.
 */
type SkyLutSystem struct {
	config   SkyLutSystemConfig
	backend  renderer.GraphicsBackend
	bindless *renderer.BindlessAllocator

	transmittance skyLut
	skyView       skyLut
	multiScat     skyLut
	created       bool

	parameters AtmosphereParameters
	sun        SunState
	dirty      bool
	generation uint32
}

func NewSkyLutSystem(
	backend renderer.GraphicsBackend,
	bindless *renderer.BindlessAllocator,
	config SkyLutSystemConfig,
) (*SkyLutSystem, error) {
	if backend == nil || bindless == nil {
		return nil, fmt.Errorf("sky lut system needs a backend and a bindless allocator")
	}
	if config.TransmittanceWidth == 0 {
		config.TransmittanceWidth = 256
	}
	if config.TransmittanceHeight == 0 {
		config.TransmittanceHeight = 64
	}
	if config.SkyViewWidth == 0 {
		config.SkyViewWidth = 192
	}
	if config.SkyViewHeight == 0 {
		config.SkyViewHeight = 108
	}
	if config.MultiScatSize == 0 {
		config.MultiScatSize = 32
	}
	return &SkyLutSystem{
		config:     config,
		backend:    backend,
		bindless:   bindless,
		parameters: DefaultAtmosphereParameters(),
		sun:        SunState{ElevationRadians: 0.5, Enabled: true},
		dirty:      true,
	}, nil
}

/**
 * @brief Creates the three LUT textures and their descriptors. Safe to
 * call every frame; only the first call does work.
 */
func (ss *SkyLutSystem) EnsureResourcesCreated() error {
	if ss.created {
		return nil
	}
	luts := []struct {
		lut    *skyLut
		name   string
		width  uint32
		height uint32
	}{
		{&ss.transmittance, "sky_transmittance_lut", ss.config.TransmittanceWidth, ss.config.TransmittanceHeight},
		{&ss.skyView, "sky_view_lut", ss.config.SkyViewWidth, ss.config.SkyViewHeight},
		{&ss.multiScat, "sky_multiscat_lut", ss.config.MultiScatSize, ss.config.MultiScatSize},
	}
	for _, l := range luts {
		texture, err := ss.backend.CreateTexture(metadata.TextureDesc{
			Name:      l.name,
			Type:      metadata.TextureType2D,
			Format:    metadata.FormatRGBA16Float,
			Width:     l.width,
			Height:    l.height,
			Depth:     1,
			ArraySize: 1,
			MipLevels: 1,
			Usage:     metadata.TextureUsageShaderResource | metadata.TextureUsageUnorderedAccess,
		})
		if err != nil {
			ss.destroyLuts()
			return fmt.Errorf("sky: creating %s: %w", l.name, err)
		}
		handle, err := ss.bindless.Allocate(metadata.DomainTextures)
		if err != nil {
			texture.Destroy()
			ss.destroyLuts()
			return fmt.Errorf("sky: descriptor for %s: %w", l.name, err)
		}
		if err := ss.backend.DescriptorTable().PointAtTexture(handle.Index, texture); err != nil {
			texture.Destroy()
			ss.destroyLuts()
			return fmt.Errorf("sky: binding %s: %w", l.name, err)
		}
		l.lut.texture = texture
		l.lut.handle = handle
	}
	ss.created = true
	core.LogDebug("sky: LUTs created (%dx%d, %dx%d, %dx%d)",
		ss.config.TransmittanceWidth, ss.config.TransmittanceHeight,
		ss.config.SkyViewWidth, ss.config.SkyViewHeight,
		ss.config.MultiScatSize, ss.config.MultiScatSize)
	return nil
}

/** @brief Replaces the atmosphere parameters. A change dirties the LUTs. */
func (ss *SkyLutSystem) SetParameters(parameters AtmosphereParameters) {
	if ss.parameters == parameters {
		return
	}
	ss.parameters = parameters
	ss.markDirty()
}

/**
 * @brief Updates the sun state. Elevation or enabled changes dirty the
 * sky-view LUT.
 */
func (ss *SkyLutSystem) SetSun(sun SunState) {
	if ss.sun == sun {
		return
	}
	ss.sun = sun
	ss.markDirty()
}

func (ss *SkyLutSystem) markDirty() {
	ss.dirty = true
	ss.generation++
}

func (ss *SkyLutSystem) Parameters() AtmosphereParameters { return ss.parameters }
func (ss *SkyLutSystem) Sun() SunState                    { return ss.sun }

/** @brief True while the LUT contents lag the parameters. */
func (ss *SkyLutSystem) Dirty() bool { return ss.dirty }

/** @brief Bumped on every parameter or sun change. */
func (ss *SkyLutSystem) Generation() uint32 { return ss.generation }

/** @brief Marks the LUTs recomputed. The sky pass calls this after its dispatches. */
func (ss *SkyLutSystem) MarkClean() { ss.dirty = false }

/** @brief The LUT SRV indices, invalid before EnsureResourcesCreated. */
func (ss *SkyLutSystem) Outputs() SkyLutOutputs {
	if !ss.created {
		return SkyLutOutputs{
			Transmittance: metadata.InvalidBindlessIndex,
			SkyView:       metadata.InvalidBindlessIndex,
			MultiScat:     metadata.InvalidBindlessIndex,
		}
	}
	return SkyLutOutputs{
		Transmittance: ss.transmittance.handle.Index,
		SkyView:       ss.skyView.handle.Index,
		MultiScat:     ss.multiScat.handle.Index,
	}
}

/** @brief The LUT textures for UAV binding in the sky pass. */
func (ss *SkyLutSystem) Textures() (transmittance, skyView, multiScat renderer.Texture) {
	return ss.transmittance.texture, ss.skyView.texture, ss.multiScat.texture
}

func (ss *SkyLutSystem) destroyLuts() {
	for _, lut := range []*skyLut{&ss.transmittance, &ss.skyView, &ss.multiScat} {
		if lut.handle.IsValid() {
			if err := ss.bindless.Release(metadata.DomainTextures, lut.handle); err != nil {
				core.LogWarn("sky: releasing lut slot: %s", err.Error())
			}
			lut.handle = metadata.InvalidHandle
		}
		if lut.texture != nil {
			lut.texture.Destroy()
			lut.texture = nil
		}
	}
	ss.created = false
}

func (ss *SkyLutSystem) Shutdown() error {
	ss.destroyLuts()
	return nil
}
