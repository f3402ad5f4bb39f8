package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

type commandList struct {
	name   string
	buffer vk.CommandBuffer
}

func (c *commandList) Name() string { return c.name }

/**
 * @brief Records into a one-time primary command buffer. Logical
 * resource states accumulate into batched pipeline barriers that
 * FlushBarriers emits; an open render pass is closed before barriers
 * and at End.
 */
type commandRecorder struct {
	backend *Backend
	name    string
	role    metadata.QueueRole
	buffer  vk.CommandBuffer

	bufferStates  map[renderer.Buffer]metadata.ResourceState
	textureStates map[renderer.Texture]metadata.ResourceState

	pendingBuffers []vk.BufferMemoryBarrier
	pendingImages  []vk.ImageMemoryBarrier
	srcStages      vk.PipelineStageFlags
	dstStages      vk.PipelineStageFlags

	passOpen bool
	ended    bool
}

func newCommandRecorder(backend *Backend, name string, role metadata.QueueRole, buffer vk.CommandBuffer) *commandRecorder {
	return &commandRecorder{
		backend:       backend,
		name:          name,
		role:          role,
		buffer:        buffer,
		bufferStates:  make(map[renderer.Buffer]metadata.ResourceState),
		textureStates: make(map[renderer.Texture]metadata.ResourceState),
	}
}

func (r *commandRecorder) Name() string             { return r.name }
func (r *commandRecorder) Role() metadata.QueueRole { return r.role }

type stateInfo struct {
	access vk.AccessFlags
	stages vk.PipelineStageFlags
	layout vk.ImageLayout
}

func translateState(state metadata.ResourceState) stateInfo {
	switch state {
	case metadata.ResourceStateCopyDest:
		return stateInfo{
			access: vk.AccessFlags(vk.AccessTransferWriteBit),
			stages: vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			layout: vk.ImageLayoutTransferDstOptimal,
		}
	case metadata.ResourceStateCopySource:
		return stateInfo{
			access: vk.AccessFlags(vk.AccessTransferReadBit),
			stages: vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			layout: vk.ImageLayoutTransferSrcOptimal,
		}
	case metadata.ResourceStateShaderResource:
		return stateInfo{
			access: vk.AccessFlags(vk.AccessShaderReadBit),
			stages: vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit),
			layout: vk.ImageLayoutShaderReadOnlyOptimal,
		}
	case metadata.ResourceStateUnorderedAccess:
		return stateInfo{
			access: vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
			stages: vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
			layout: vk.ImageLayoutGeneral,
		}
	case metadata.ResourceStateRenderTarget:
		return stateInfo{
			access: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			stages: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			layout: vk.ImageLayoutColorAttachmentOptimal,
		}
	case metadata.ResourceStateDepthWrite:
		return stateInfo{
			access: vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
			stages: vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
			layout: vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	case metadata.ResourceStateVertexAndConstantBuffer:
		return stateInfo{
			access: vk.AccessFlags(vk.AccessVertexAttributeReadBit | vk.AccessUniformReadBit),
			stages: vk.PipelineStageFlags(vk.PipelineStageVertexInputBit | vk.PipelineStageVertexShaderBit),
			layout: vk.ImageLayoutUndefined,
		}
	case metadata.ResourceStateIndexBuffer:
		return stateInfo{
			access: vk.AccessFlags(vk.AccessIndexReadBit),
			stages: vk.PipelineStageFlags(vk.PipelineStageVertexInputBit),
			layout: vk.ImageLayoutUndefined,
		}
	case metadata.ResourceStatePresent:
		return stateInfo{
			access: vk.AccessFlags(vk.AccessMemoryReadBit),
			stages: vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			layout: vk.ImageLayoutPresentSrc,
		}
	case metadata.ResourceStateUndefined:
		return stateInfo{
			stages: vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			layout: vk.ImageLayoutUndefined,
		}
	}
	return stateInfo{
		access: vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
		stages: vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		layout: vk.ImageLayoutGeneral,
	}
}

func (r *commandRecorder) RequireBufferState(buffer renderer.Buffer, state metadata.ResourceState) {
	current, tracked := r.bufferStates[buffer]
	if tracked && current == state {
		return
	}
	if !tracked {
		current = metadata.ResourceStateCommon
	}
	vb, ok := buffer.(*Buffer)
	if !ok {
		core.LogWarn("recorder %q: foreign buffer %q", r.name, buffer.Name())
		return
	}
	from := translateState(current)
	to := translateState(state)
	r.pendingBuffers = append(r.pendingBuffers, vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       from.access,
		DstAccessMask:       to.access,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              vb.handle,
		Size:                vk.DeviceSize(vk.WholeSize),
	})
	r.srcStages |= from.stages
	r.dstStages |= to.stages
	r.bufferStates[buffer] = state
}

func (r *commandRecorder) RequireTextureState(texture renderer.Texture, state metadata.ResourceState) {
	current, tracked := r.textureStates[texture]
	if tracked && current == state {
		return
	}
	if !tracked {
		current = metadata.ResourceStateUndefined
	}
	img, ok := texture.(*Image)
	if !ok {
		core.LogWarn("recorder %q: foreign texture %q", r.name, texture.Name())
		return
	}
	aspect := vk.ImageAspectFlagBits(vk.ImageAspectColorBit)
	if img.desc.Usage&metadata.TextureUsageDepthStencil != 0 {
		aspect = vk.ImageAspectDepthBit
	}
	from := translateState(current)
	to := translateState(state)
	r.pendingImages = append(r.pendingImages, vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       from.access,
		DstAccessMask:       to.access,
		OldLayout:           from.layout,
		NewLayout:           to.layout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: img.desc.MipLevels,
			LayerCount: img.desc.ArraySize,
		},
	})
	r.srcStages |= from.stages
	r.dstStages |= to.stages
	r.textureStates[texture] = state
}

func (r *commandRecorder) BeginTrackingBufferState(buffer renderer.Buffer, state metadata.ResourceState) {
	r.bufferStates[buffer] = state
}

func (r *commandRecorder) BeginTrackingTextureState(texture renderer.Texture, state metadata.ResourceState) {
	r.textureStates[texture] = state
}

func (r *commandRecorder) FlushBarriers() {
	if len(r.pendingBuffers) == 0 && len(r.pendingImages) == 0 {
		return
	}
	r.endPass()
	srcStages := r.srcStages
	if srcStages == 0 {
		srcStages = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	dstStages := r.dstStages
	if dstStages == 0 {
		dstStages = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	vk.CmdPipelineBarrier(r.buffer, srcStages, dstStages, 0,
		0, nil,
		uint32(len(r.pendingBuffers)), r.pendingBuffers,
		uint32(len(r.pendingImages)), r.pendingImages)
	r.pendingBuffers = nil
	r.pendingImages = nil
	r.srcStages = 0
	r.dstStages = 0
}

func (r *commandRecorder) CopyBuffer(dst renderer.Buffer, dstOffset uint64, src renderer.Buffer, srcOffset uint64, size uint64) {
	vdst, ok1 := dst.(*Buffer)
	vsrc, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		core.LogWarn("recorder %q: foreign buffers in copy", r.name)
		return
	}
	vk.CmdCopyBuffer(r.buffer, vsrc.handle, vdst.handle, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}})
}

func (r *commandRecorder) CopyBufferToTexture(dst renderer.Texture, src renderer.Buffer, regions []metadata.TextureUploadRegion) {
	img, ok1 := dst.(*Image)
	buf, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		core.LogWarn("recorder %q: foreign resources in texture copy", r.name)
		return
	}
	info, err := metadata.InfoForFormat(img.desc.Format)
	if err != nil {
		core.LogWarn("recorder %q: %s", r.name, err.Error())
		return
	}
	copies := make([]vk.BufferImageCopy, len(regions))
	for i, region := range regions {
		// BufferRowLength is texels, the plan's pitch is bytes.
		rowLength := region.RowPitch / info.BytesPerBlock * info.BlockWidth
		copies[i] = vk.BufferImageCopy{
			BufferOffset:    vk.DeviceSize(region.BufferOffset),
			BufferRowLength: rowLength,
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       region.DstMip,
				BaseArrayLayer: region.DstArraySlice,
				LayerCount:     1,
			},
			ImageOffset: vk.Offset3D{X: int32(region.DstX), Y: int32(region.DstY), Z: int32(region.DstZ)},
			ImageExtent: vk.Extent3D{Width: region.Width, Height: region.Height, Depth: region.Depth},
		}
	}
	vk.CmdCopyBufferToImage(r.buffer, buf.handle, img.handle,
		vk.ImageLayoutTransferDstOptimal, uint32(len(copies)), copies)
}

func (r *commandRecorder) SetViewport(viewport metadata.Viewport) {
	vk.CmdSetViewport(r.buffer, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (r *commandRecorder) SetScissor(x, y, width, height uint32) {
	vk.CmdSetScissor(r.buffer, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: int32(x), Y: int32(y)},
		Extent: vk.Extent2D{Width: width, Height: height},
	}})
}

func (r *commandRecorder) BindRenderTargets(colors []renderer.Texture, depth renderer.Texture) {
	r.endPass()
	r.FlushBarriers()

	images := make([]*Image, 0, len(colors))
	for _, color := range colors {
		img, ok := color.(*Image)
		if !ok {
			core.LogWarn("recorder %q: foreign render target %q", r.name, color.Name())
			return
		}
		images = append(images, img)
	}
	var depthImage *Image
	if depth != nil {
		img, ok := depth.(*Image)
		if !ok {
			core.LogWarn("recorder %q: foreign depth target %q", r.name, depth.Name())
			return
		}
		depthImage = img
	}

	bundle, err := r.backend.renderTargets(images, depthImage)
	if err != nil {
		core.LogError("recorder %q: %s", r.name, err.Error())
		return
	}
	clears := make([]vk.ClearValue, len(images))
	for i := range clears {
		clears[i].SetColor([]float32{0, 0, 0, 1})
	}
	if depthImage != nil {
		var depthClear vk.ClearValue
		depthClear.SetDepthStencil(1, 0)
		clears = append(clears, depthClear)
	}
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  bundle.pass,
		Framebuffer: bundle.framebuffer,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: bundle.width, Height: bundle.height},
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}
	vk.CmdBeginRenderPass(r.buffer, &beginInfo, vk.SubpassContentsInline)
	r.passOpen = true
}

func (r *commandRecorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(r.buffer, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (r *commandRecorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(r.buffer, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (r *commandRecorder) Dispatch(groupsX, groupsY, groupsZ uint32) {
	r.endPass()
	vk.CmdDispatch(r.buffer, groupsX, groupsY, groupsZ)
}

func (r *commandRecorder) endPass() {
	if r.passOpen {
		vk.CmdEndRenderPass(r.buffer)
		r.passOpen = false
	}
}

func (r *commandRecorder) End() (renderer.CommandList, error) {
	if r.ended {
		return nil, fmt.Errorf("recorder %q ended twice", r.name)
	}
	r.FlushBarriers()
	r.endPass()
	if res := vk.EndCommandBuffer(r.buffer); res != vk.Success {
		return nil, fmt.Errorf("recorder %q: end: %s", r.name, resultString(res))
	}
	r.ended = true
	return &commandList{name: r.name, buffer: r.buffer}, nil
}
