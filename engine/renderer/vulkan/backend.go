package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/platform"
	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/** @brief Backend creation options. */
type Config struct {
	AppName string
	/** @brief Enables validation layers and the debug messenger. */
	Debug bool
}

/**
 * @brief The Vulkan implementation of the graphics backend: one logical
 * device, one queue per role (roles share a family when the hardware
 * offers no dedicated one) and the bindless descriptor table.
 */
type Backend struct {
	device *Device
	table  *descriptorTable
	queues map[metadata.QueueRole]*Queue

	poolMutex sync.Mutex
	pools     map[uint32]vk.CommandPool

	targetMutex sync.Mutex
	targets     map[string]*renderTargetBundle
}

type renderTargetBundle struct {
	pass        vk.RenderPass
	framebuffer vk.Framebuffer
	width       uint32
	height      uint32
}

func NewBackend(p *platform.Platform, config Config) (*Backend, error) {
	if p == nil {
		return nil, fmt.Errorf("vulkan backend needs a platform")
	}
	device, err := newDevice(p, config.AppName, config.Debug)
	if err != nil {
		return nil, err
	}
	table, err := newDescriptorTable(device)
	if err != nil {
		device.destroy()
		return nil, err
	}

	b := &Backend{
		device:  device,
		table:   table,
		queues:  make(map[metadata.QueueRole]*Queue),
		pools:   make(map[uint32]vk.CommandPool),
		targets: make(map[string]*renderTargetBundle),
	}
	b.queues[metadata.QueueRoleGraphics] = newQueue(device, device.GraphicsFamily, metadata.QueueRoleGraphics)
	b.queues[metadata.QueueRoleCompute] = b.queueForFamily(device.ComputeFamily, metadata.QueueRoleCompute)
	b.queues[metadata.QueueRoleTransfer] = b.queueForFamily(device.TransferFamily, metadata.QueueRoleTransfer)
	return b, nil
}

// Roles whose family collapses onto an existing queue share that queue,
// matching the fence semantics the orchestrator expects.
func (b *Backend) queueForFamily(family uint32, role metadata.QueueRole) *Queue {
	for _, q := range b.queues {
		if q.family == family {
			return q
		}
	}
	return newQueue(b.device, family, role)
}

func (b *Backend) Name() string { return "vulkan" }

func (b *Backend) Device() *Device { return b.device }

func (b *Backend) DescriptorTable() renderer.DescriptorTable { return b.table }

func (b *Backend) Queue(role metadata.QueueRole) renderer.CommandQueue {
	return b.queues[role]
}

func (b *Backend) AcquireCommandRecorder(role metadata.QueueRole, name string) (renderer.CommandRecorder, error) {
	queue, ok := b.queues[role]
	if !ok {
		return nil, fmt.Errorf("no queue for role %s", role)
	}
	buffer, err := b.allocateCommandBuffer(queue.family)
	if err != nil {
		return nil, err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(buffer, &beginInfo); res != vk.Success {
		return nil, fmt.Errorf("recorder %q: begin: %s", name, resultString(res))
	}
	return newCommandRecorder(b, name, role, buffer), nil
}

func (b *Backend) allocateCommandBuffer(family uint32) (vk.CommandBuffer, error) {
	b.poolMutex.Lock()
	defer b.poolMutex.Unlock()

	pool, ok := b.pools[family]
	if !ok {
		poolInfo := vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			QueueFamilyIndex: family,
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		}
		if res := vk.CreateCommandPool(b.device.Logical, &poolInfo, b.device.Allocator, &pool); res != vk.Success {
			return nil, fmt.Errorf("command pool for family %d: %s", family, resultString(res))
		}
		b.pools[family] = pool
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(b.device.Logical, &allocateInfo, buffers); res != vk.Success {
		return nil, fmt.Errorf("allocating command buffer: %s", resultString(res))
	}
	return buffers[0], nil
}

/**
 * @brief Returns a render pass and framebuffer for the attachment set,
 * creating and caching them on first use. The cache is invalidated when
 * the surface resizes since framebuffers hold image views.
 */
func (b *Backend) renderTargets(colors []*Image, depth *Image) (*renderTargetBundle, error) {
	key := ""
	for _, color := range colors {
		key += fmt.Sprintf("c%v", color.view)
	}
	if depth != nil {
		key += fmt.Sprintf("d%v", depth.view)
	}

	b.targetMutex.Lock()
	defer b.targetMutex.Unlock()
	if bundle, ok := b.targets[key]; ok {
		return bundle, nil
	}

	attachments := make([]vk.AttachmentDescription, 0, len(colors)+1)
	views := make([]vk.ImageView, 0, len(colors)+1)
	colorRefs := make([]vk.AttachmentReference, 0, len(colors))
	width, height := uint32(0), uint32(0)
	for _, color := range colors {
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
		attachments = append(attachments, vk.AttachmentDescription{
			Format:        color.format,
			Samples:       vk.SampleCount1Bit,
			LoadOp:        vk.AttachmentLoadOpClear,
			StoreOp:       vk.AttachmentStoreOpStore,
			InitialLayout: vk.ImageLayoutUndefined,
			FinalLayout:   vk.ImageLayoutColorAttachmentOptimal,
		})
		views = append(views, color.view)
		width, height = color.desc.Width, color.desc.Height
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if depth != nil {
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         depth.format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		views = append(views, depth.view)
		if width == 0 {
			width, height = depth.desc.Width, depth.desc.Height
		}
	}

	passInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	var pass vk.RenderPass
	if res := vk.CreateRenderPass(b.device.Logical, &passInfo, b.device.Allocator, &pass); res != vk.Success {
		return nil, fmt.Errorf("render pass: %s", resultString(res))
	}

	framebufferInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(b.device.Logical, &framebufferInfo, b.device.Allocator, &framebuffer); res != vk.Success {
		vk.DestroyRenderPass(b.device.Logical, pass, b.device.Allocator)
		return nil, fmt.Errorf("framebuffer: %s", resultString(res))
	}

	bundle := &renderTargetBundle{pass: pass, framebuffer: framebuffer, width: width, height: height}
	b.targets[key] = bundle
	return bundle, nil
}

/** @brief Drops cached framebuffers; called when attachment views die. */
func (b *Backend) InvalidateRenderTargets() {
	b.targetMutex.Lock()
	defer b.targetMutex.Unlock()
	for _, bundle := range b.targets {
		vk.DestroyFramebuffer(b.device.Logical, bundle.framebuffer, b.device.Allocator)
		vk.DestroyRenderPass(b.device.Logical, bundle.pass, b.device.Allocator)
	}
	b.targets = make(map[string]*renderTargetBundle)
}

func (b *Backend) Shutdown() error {
	b.device.WaitIdle()
	b.InvalidateRenderTargets()

	seen := map[*Queue]bool{}
	for _, q := range b.queues {
		if !seen[q] {
			q.destroy()
			seen[q] = true
		}
	}
	b.poolMutex.Lock()
	for family, pool := range b.pools {
		vk.DestroyCommandPool(b.device.Logical, pool, b.device.Allocator)
		delete(b.pools, family)
	}
	b.poolMutex.Unlock()

	b.table.destroy()
	b.device.destroy()
	core.LogInfo("vulkan backend down")
	return nil
}
