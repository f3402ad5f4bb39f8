package passes

import (
	"fmt"

	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/systems"
)

/**
 * @brief Draws the atmosphere behind everything already shaded. The
 * prepare phase rebuilds the LUTs on the compute queue when parameters
 * or sun changed, then keeps the view's image based lighting maps
 * current against the sky-view LUT they derive from and publishes their
 * outputs on the frame context for the shading passes.
 */
type SkyPass struct {
	sky *systems.SkyLutSystem
	ibl *systems.IblSystem
}

func NewSkyPass(sky *systems.SkyLutSystem, ibl *systems.IblSystem) (*SkyPass, error) {
	if sky == nil || ibl == nil {
		return nil, fmt.Errorf("sky pass needs the sky lut and ibl systems")
	}
	return &SkyPass{sky: sky, ibl: ibl}, nil
}

func (p *SkyPass) Name() string { return "sky_pass" }

func (p *SkyPass) Prepare(frame *systems.FrameContext) error {
	if err := p.sky.EnsureResourcesCreated(); err != nil {
		return err
	}
	if p.sky.Dirty() {
		if err := p.rebuildLuts(frame); err != nil {
			return err
		}
		p.sky.MarkClean()
	}

	// The environment source is the sky-view LUT; a parameter or sun
	// change bumps the sky generation, which obsoletes the derived maps.
	source := p.sky.Outputs().SkyView
	outputs, err := p.ibl.QueryOutputsFor(frame.View.ID, source)
	if err != nil {
		return fmt.Errorf("ibl outputs for view %s: %w", frame.View.ID, err)
	}
	stale := outputs.Irradiance == metadata.InvalidBindlessIndex ||
		outputs.SourceContentVersion != uint64(p.sky.Generation())
	if stale && source != metadata.InvalidBindlessIndex {
		if err := p.regenerateIblMaps(frame, source); err != nil {
			return err
		}
		outputs, err = p.ibl.QueryOutputsFor(frame.View.ID, source)
		if err != nil {
			return fmt.Errorf("ibl outputs for view %s: %w", frame.View.ID, err)
		}
	}
	frame.Ibl = outputs
	return nil
}

func (p *SkyPass) Execute(frame *systems.FrameContext) error {
	if err := p.sky.EnsureResourcesCreated(); err != nil {
		return err
	}

	recorder, err := frame.Renderer.AcquireCommandRecorder(
		metadata.QueueRoleGraphics, p.Name(), false)
	if err != nil {
		return err
	}
	defer recorder.Release()

	transmittance, skyView, multiScat := p.sky.Textures()
	recorder.RequireTextureState(transmittance, metadata.ResourceStateShaderResource)
	recorder.RequireTextureState(skyView, metadata.ResourceStateShaderResource)
	recorder.RequireTextureState(multiScat, metadata.ResourceStateShaderResource)
	backBuffer := frame.Surface.CurrentBackBuffer()
	recorder.RequireTextureState(backBuffer, metadata.ResourceStateRenderTarget)
	recorder.FlushBarriers()

	recorder.SetViewport(metadata.Viewport{
		Width:    float32(frame.Surface.Width()),
		Height:   float32(frame.Surface.Height()),
		MaxDepth: 1,
	})
	recorder.SetScissor(0, 0, frame.Surface.Width(), frame.Surface.Height())
	recorder.BindRenderTargets([]renderer.Texture{backBuffer}, frame.Surface.DepthBuffer())

	// Fullscreen triangle, vertices synthesized in the vertex stage.
	recorder.Draw(3, 1, 0, 0)
	return recorder.Release()
}

// The LUT rebuild must land before any graphics work samples the LUTs
// this frame, so it is submitted immediately rather than parked for the
// end-of-frame flush.
func (p *SkyPass) rebuildLuts(frame *systems.FrameContext) error {
	recorder, err := frame.Renderer.AcquireCommandRecorder(
		metadata.QueueRoleCompute, "sky_lut_rebuild", true)
	if err != nil {
		return err
	}
	defer recorder.Release()

	transmittance, skyView, multiScat := p.sky.Textures()
	recorder.RequireTextureState(transmittance, metadata.ResourceStateUnorderedAccess)
	recorder.RequireTextureState(skyView, metadata.ResourceStateUnorderedAccess)
	recorder.RequireTextureState(multiScat, metadata.ResourceStateUnorderedAccess)
	recorder.FlushBarriers()

	// One 8x8 thread group per tile of each LUT.
	dispatchLut(recorder, transmittance)
	dispatchLut(recorder, multiScat)
	dispatchLut(recorder, skyView)
	return recorder.Release()
}

func dispatchLut(recorder renderer.CommandRecorder, lut renderer.Texture) {
	desc := lut.Desc()
	recorder.Dispatch((desc.Width+7)/8, (desc.Height+7)/8, 1)
}

// Rebuilds the view's irradiance and prefiltered specular cubes from
// the sky-view LUT. Like the LUT rebuild, the dispatches must land
// before the graphics work that samples the maps, so they go out
// immediately on the compute queue.
func (p *SkyPass) regenerateIblMaps(frame *systems.FrameContext, source metadata.BindlessIndex) error {
	irradiance, prefilter, ok := p.ibl.ViewTextures(frame.View.ID)
	if !ok {
		return fmt.Errorf("ibl maps for view %s were never created", frame.View.ID)
	}
	recorder, err := frame.Renderer.AcquireCommandRecorder(
		metadata.QueueRoleCompute, "ibl_regenerate", true)
	if err != nil {
		return err
	}
	defer recorder.Release()

	_, skyView, _ := p.sky.Textures()
	recorder.RequireTextureState(skyView, metadata.ResourceStateShaderResource)
	recorder.RequireTextureState(irradiance, metadata.ResourceStateUnorderedAccess)
	recorder.RequireTextureState(prefilter, metadata.ResourceStateUnorderedAccess)
	recorder.FlushBarriers()

	// One 8x8 thread group per face tile: z counts the six faces.
	irrDesc := irradiance.Desc()
	recorder.Dispatch((irrDesc.Width+7)/8, (irrDesc.Height+7)/8, 6)
	preDesc := prefilter.Desc()
	for mip := uint32(0); mip < preDesc.MipLevels; mip++ {
		w := metadata.MipExtent(preDesc.Width, mip)
		h := metadata.MipExtent(preDesc.Height, mip)
		recorder.Dispatch((w+7)/8, (h+7)/8, 6)
	}

	recorder.RequireTextureState(irradiance, metadata.ResourceStateShaderResource)
	recorder.RequireTextureState(prefilter, metadata.ResourceStateShaderResource)
	if err := recorder.Release(); err != nil {
		return err
	}
	p.ibl.MarkGenerated(frame.View.ID, source, uint64(p.sky.Generation()))
	return nil
}
