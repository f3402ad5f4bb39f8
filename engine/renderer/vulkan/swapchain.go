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

/**
 * @brief A window-backed swapchain. Back buffers are wrapped as
 * non-owned images so passes can bind them like any other render
 * target; the depth buffer is a regular owned image recreated on
 * resize. Image acquisition runs on a fence, present on the graphics
 * queue.
 */
type VulkanSurface struct {
	backend *Backend
	device  *Device
	name    string

	surface vk.Surface
	handle  vk.Swapchain
	format  vk.SurfaceFormat

	backBuffers []*Image
	depth       *Image

	acquireFence vk.Fence
	current      uint32

	mutex         sync.Mutex
	width, height uint32
	pendingWidth  uint32
	pendingHeight uint32
	shouldResize  bool
}

/** @brief Creates the window surface and its initial swapchain. */
func (b *Backend) CreateSurface(p *platform.Platform, name string) (*VulkanSurface, error) {
	raw, err := p.Window().CreateWindowSurface(b.device.Instance, nil)
	if err != nil {
		return nil, fmt.Errorf("surface %q: window surface: %w", name, err)
	}
	s := &VulkanSurface{
		backend: b,
		device:  b.device,
		name:    name,
		surface: vk.SurfaceFromPointer(raw),
	}

	var supported vk.Bool32
	vk.GetPhysicalDeviceSurfaceSupport(b.device.Physical, b.device.GraphicsFamily, s.surface, &supported)
	if supported != vk.True {
		s.destroy()
		return nil, fmt.Errorf("surface %q: graphics family cannot present", name)
	}

	fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if res := vk.CreateFence(b.device.Logical, &fenceInfo, b.device.Allocator, &s.acquireFence); res != vk.Success {
		s.destroy()
		return nil, fmt.Errorf("surface %q: acquire fence: %s", name, resultString(res))
	}

	width, height := p.FramebufferExtent()
	if err := s.createSwapchain(width, height); err != nil {
		s.destroy()
		return nil, err
	}
	if err := s.acquire(); err != nil {
		s.destroy()
		return nil, err
	}
	return s, nil
}

func (s *VulkanSurface) Name() string { return s.name }

func (s *VulkanSurface) Width() uint32 { return s.width }

func (s *VulkanSurface) Height() uint32 { return s.height }

func (s *VulkanSurface) BackBufferCount() int { return len(s.backBuffers) }

func (s *VulkanSurface) CurrentBackBufferIndex() int { return int(s.current) }

func (s *VulkanSurface) CurrentBackBuffer() renderer.Texture { return s.backBuffers[s.current] }

func (s *VulkanSurface) DepthBuffer() renderer.Texture { return s.depth }

/** @brief Records a new framebuffer extent; the next frame resizes before rendering. */
func (s *VulkanSurface) NoteResize(width, height uint32) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pendingWidth = width
	s.pendingHeight = height
	s.shouldResize = true
}

func (s *VulkanSurface) ShouldResize() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.shouldResize
}

func (s *VulkanSurface) Resize() error {
	s.mutex.Lock()
	width, height := s.pendingWidth, s.pendingHeight
	s.shouldResize = false
	s.mutex.Unlock()
	if width == 0 {
		width = s.width
	}
	if height == 0 {
		height = s.height
	}

	s.device.WaitIdle()
	s.backend.InvalidateRenderTargets()
	s.releaseBuffers()

	if err := s.createSwapchain(width, height); err != nil {
		return err
	}
	if err := s.acquire(); err != nil {
		return err
	}
	core.LogInfo("surface %q resized to %dx%d", s.name, s.width, s.height)
	return nil
}

/**
 * @brief Presents the current back buffer and acquires the next one.
 * The controller has already waited for the frame's fence value, so
 * the image contents are final when the present is queued.
 */
func (s *VulkanSurface) Present() error {
	queue, ok := s.backend.Queue(metadata.QueueRoleGraphics).(*Queue)
	if !ok {
		return fmt.Errorf("surface %q: no graphics queue", s.name)
	}
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{s.handle},
		PImageIndices:  []uint32{s.current},
	}
	result := vk.QueuePresent(queue.Handle(), &presentInfo)
	switch {
	case result == vk.ErrorOutOfDate || result == vk.Suboptimal:
		s.mutex.Lock()
		s.shouldResize = true
		s.mutex.Unlock()
		return fmt.Errorf("surface %q: %w", s.name, core.ErrSurfaceOutOfDate)
	case result != vk.Success:
		return fmt.Errorf("surface %q: present: %s", s.name, resultString(result))
	}
	return s.acquire()
}

func (s *VulkanSurface) acquire() error {
	var index uint32
	result := vk.AcquireNextImage(s.device.Logical, s.handle, ^uint64(0), vk.NullSemaphore, s.acquireFence, &index)
	if result == vk.ErrorOutOfDate {
		s.mutex.Lock()
		s.shouldResize = true
		s.mutex.Unlock()
		return fmt.Errorf("surface %q: %w", s.name, core.ErrSurfaceOutOfDate)
	}
	if result != vk.Success && result != vk.Suboptimal {
		return fmt.Errorf("surface %q: acquire: %s", s.name, resultString(result))
	}
	vk.WaitForFences(s.device.Logical, 1, []vk.Fence{s.acquireFence}, vk.True, ^uint64(0))
	vk.ResetFences(s.device.Logical, 1, []vk.Fence{s.acquireFence})
	s.current = index
	return nil
}

func (s *VulkanSurface) createSwapchain(width, height uint32) error {
	var capabilities vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(s.device.Physical, s.surface, &capabilities); res != vk.Success {
		return fmt.Errorf("surface %q: capabilities: %s", s.name, resultString(res))
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	format, err := s.pickFormat()
	if err != nil {
		return err
	}
	s.format = format
	presentMode := s.pickPresentMode()

	extent := vk.Extent2D{Width: width, Height: height}
	if capabilities.CurrentExtent.Width != ^uint32(0) {
		extent = capabilities.CurrentExtent
	}
	extent.Width = clamp(extent.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width)
	extent.Height = clamp(extent.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)

	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}
	var handle vk.Swapchain
	if res := vk.CreateSwapchain(s.device.Logical, &createInfo, s.device.Allocator, &handle); res != vk.Success {
		return fmt.Errorf("surface %q: swapchain: %s", s.name, resultString(res))
	}
	s.handle = handle
	s.width = extent.Width
	s.height = extent.Height
	s.current = 0

	if err := s.wrapBackBuffers(); err != nil {
		return err
	}
	return s.createDepthBuffer()
}

func (s *VulkanSurface) pickFormat() (vk.SurfaceFormat, error) {
	var count uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(s.device.Physical, s.surface, &count, nil); res != vk.Success || count == 0 {
		return vk.SurfaceFormat{}, fmt.Errorf("surface %q: no surface formats", s.name)
	}
	formats := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(s.device.Physical, s.surface, &count, formats)
	for i := range formats {
		formats[i].Deref()
		if formats[i].Format == vk.FormatB8g8r8a8Unorm && formats[i].ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return formats[i], nil
		}
	}
	return formats[0], nil
}

func (s *VulkanSurface) pickPresentMode() vk.PresentMode {
	var count uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(s.device.Physical, s.surface, &count, nil); res != vk.Success || count == 0 {
		return vk.PresentModeFifo
	}
	modes := make([]vk.PresentMode, count)
	vk.GetPhysicalDeviceSurfacePresentModes(s.device.Physical, s.surface, &count, modes)
	for _, mode := range modes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}
	return vk.PresentModeFifo
}

func (s *VulkanSurface) wrapBackBuffers() error {
	var count uint32
	if res := vk.GetSwapchainImages(s.device.Logical, s.handle, &count, nil); res != vk.Success {
		return fmt.Errorf("surface %q: swapchain images: %s", s.name, resultString(res))
	}
	images := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(s.device.Logical, s.handle, &count, images); res != vk.Success {
		return fmt.Errorf("surface %q: swapchain images: %s", s.name, resultString(res))
	}

	metaFormat := metadata.TextureFormatBGRA8Unorm
	if s.format.Format == vk.FormatR8g8b8a8Unorm {
		metaFormat = metadata.TextureFormatRGBA8Unorm
	}
	s.backBuffers = make([]*Image, count)
	for i, handle := range images {
		img := &Image{
			device: s.device,
			handle: handle,
			format: s.format.Format,
			owned:  false,
			desc: metadata.TextureDesc{
				Name:      fmt.Sprintf("%s_backbuffer_%d", s.name, i),
				Type:      metadata.TextureType2D,
				Format:    metaFormat,
				Width:     s.width,
				Height:    s.height,
				Depth:     1,
				ArraySize: 1,
				MipLevels: 1,
				Usage:     metadata.TextureUsageRenderTarget | metadata.TextureUsageCopyDest,
			},
		}
		if err := img.createView(); err != nil {
			return err
		}
		s.backBuffers[i] = img
	}
	return nil
}

func (s *VulkanSurface) createDepthBuffer() error {
	depth, err := s.backend.CreateTexture(metadata.TextureDesc{
		Name:   s.name + "_depth",
		Type:   metadata.TextureType2D,
		Format: metadata.TextureFormatD32Float,
		Width:  s.width,
		Height: s.height,
		Usage:  metadata.TextureUsageDepthStencil,
	})
	if err != nil {
		return fmt.Errorf("surface %q: depth buffer: %w", s.name, err)
	}
	s.depth = depth.(*Image)
	return nil
}

func (s *VulkanSurface) releaseBuffers() {
	if s.depth != nil {
		s.depth.Destroy()
		s.depth = nil
	}
	for _, img := range s.backBuffers {
		img.Destroy()
	}
	s.backBuffers = nil
	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(s.device.Logical, s.handle, s.device.Allocator)
		s.handle = vk.NullSwapchain
	}
}

/** @brief Tears the surface down. The caller flushes GPU work first. */
func (s *VulkanSurface) Destroy() {
	s.device.WaitIdle()
	s.destroy()
}

func (s *VulkanSurface) destroy() {
	s.releaseBuffers()
	if s.acquireFence != vk.NullFence {
		vk.DestroyFence(s.device.Logical, s.acquireFence, s.device.Allocator)
		s.acquireFence = vk.NullFence
	}
	if s.surface != vk.NullSurface {
		vk.DestroySurface(s.device.Instance, s.surface, s.device.Allocator)
		s.surface = vk.NullSurface
	}
}
