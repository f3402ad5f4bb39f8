package passes

import (
	"fmt"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/systems"
)

// Requests GPU residency for every frame item participating in mask.
// First sight stages the uploads; the item draws once they complete, so
// a failure here only means the mesh stays skipped.
func ensureMeshResidency(frame *systems.FrameContext, meshes *systems.MeshSystem, mask metadata.PassMask) {
	for i := range frame.Items {
		item := &frame.Items[i]
		if !item.Passes.Has(mask) {
			continue
		}
		geometry, ok := frame.Geometries[item.Mesh]
		if !ok {
			continue
		}
		if _, err := meshes.EnsureResident(geometry, item.Lod); err != nil {
			core.LogWarn("mesh residency for %q lod %d: %s", geometry.Name(), item.Lod, err.Error())
		}
	}
}

/**
 * @brief Lays down scene depth before any shading pass. Draws every
 * depth-participating item whose mesh is GPU resident; items still
 * uploading are skipped and picked up next frame.
 */
type DepthPrePass struct {
	meshes *systems.MeshSystem
}

func NewDepthPrePass(meshes *systems.MeshSystem) (*DepthPrePass, error) {
	if meshes == nil {
		return nil, fmt.Errorf("depth pre-pass needs the mesh system")
	}
	return &DepthPrePass{meshes: meshes}, nil
}

func (p *DepthPrePass) Name() string { return "depth_pre_pass" }

func (p *DepthPrePass) Prepare(frame *systems.FrameContext) error {
	ensureMeshResidency(frame, p.meshes, metadata.PassDepthPrePass)
	return nil
}

func (p *DepthPrePass) Execute(frame *systems.FrameContext) error {
	recorder, err := frame.Renderer.AcquireCommandRecorder(
		metadata.QueueRoleGraphics, p.Name(), false)
	if err != nil {
		return err
	}
	defer recorder.Release()

	depth := frame.Surface.DepthBuffer()
	recorder.RequireTextureState(depth, metadata.ResourceStateDepthWrite)
	recorder.FlushBarriers()

	recorder.SetViewport(metadata.Viewport{
		Width:    float32(frame.Surface.Width()),
		Height:   float32(frame.Surface.Height()),
		MaxDepth: 1,
	})
	recorder.SetScissor(0, 0, frame.Surface.Width(), frame.Surface.Height())
	recorder.BindRenderTargets(nil, depth)

	for i := range frame.Items {
		item := &frame.Items[i]
		if !item.Passes.Has(metadata.PassDepthPrePass) {
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
