package passes

import (
	"fmt"

	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/systems"
)

/**
 * @brief The main shading pass. Draws opaque geometry into the back
 * buffer against the depth laid down by the pre-pass. Its prepare phase
 * owns the frame's bindings: it uploads the collected light lists,
 * requests mesh residency and resolves every material's texture slots
 * through the bindless table.
 */
type OpaquePass struct {
	meshes   *systems.MeshSystem
	lights   *systems.LightSystem
	textures *systems.TextureSystem
}

func NewOpaquePass(
	meshes *systems.MeshSystem,
	lights *systems.LightSystem,
	textures *systems.TextureSystem,
) (*OpaquePass, error) {
	if meshes == nil || lights == nil || textures == nil {
		return nil, fmt.Errorf("opaque pass needs the mesh, light and texture systems")
	}
	return &OpaquePass{meshes: meshes, lights: lights, textures: textures}, nil
}

func (p *OpaquePass) Name() string { return "opaque_pass" }

/**
 * @brief Stages everything the shading draws depend on. The light
 * upload happens exactly once per frame, here.
 */
func (p *OpaquePass) Prepare(frame *systems.FrameContext) error {
	if _, err := p.lights.EnsureFrameResources(); err != nil {
		return fmt.Errorf("light resources: %w", err)
	}
	ensureMeshResidency(frame, p.meshes, metadata.PassOpaque)
	for i := range frame.Items {
		item := &frame.Items[i]
		if !item.Passes.Has(metadata.PassOpaque) || item.Material == nil {
			continue
		}
		material := item.Material
		p.textures.Resolve(material.BaseColorKey)
		p.textures.Resolve(material.NormalKey)
		p.textures.Resolve(material.MetallicRoughnessKey)
		p.textures.Resolve(material.EmissiveKey)
	}
	return nil
}

func (p *OpaquePass) Execute(frame *systems.FrameContext) error {
	recorder, err := frame.Renderer.AcquireCommandRecorder(
		metadata.QueueRoleGraphics, p.Name(), false)
	if err != nil {
		return err
	}
	defer recorder.Release()

	backBuffer := frame.Surface.CurrentBackBuffer()
	depth := frame.Surface.DepthBuffer()
	recorder.RequireTextureState(backBuffer, metadata.ResourceStateRenderTarget)
	recorder.RequireTextureState(depth, metadata.ResourceStateDepthWrite)
	recorder.FlushBarriers()

	recorder.SetViewport(metadata.Viewport{
		Width:    float32(frame.Surface.Width()),
		Height:   float32(frame.Surface.Height()),
		MaxDepth: 1,
	})
	recorder.SetScissor(0, 0, frame.Surface.Width(), frame.Surface.Height())
	recorder.BindRenderTargets([]renderer.Texture{backBuffer}, depth)

	for i := range frame.Items {
		item := &frame.Items[i]
		if !item.Passes.Has(metadata.PassOpaque) {
			continue
		}
		resources, ok := p.meshes.Resources(systems.MeshResidencyKey{ID: item.Mesh, Lod: item.Lod})
		if !ok {
			continue
		}
		recorder.RequireBufferState(resources.Vertex, metadata.ResourceStateVertexAndConstantBuffer)
		recorder.RequireBufferState(resources.Index, metadata.ResourceStateIndexBuffer)
		recorder.FlushBarriers()
		recorder.DrawIndexed(item.IndexCount, 1, item.IndexOffset, int32(item.VertexOffset), 0)
	}
	return recorder.Release()
}
