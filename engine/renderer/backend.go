package renderer

import (
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/**
 * @brief A GPU buffer owned by the backend. CPU visible buffers stay
 * persistently mappable for their whole lifetime.
 */
type Buffer interface {
	Name() string
	Size() uint64
	/** @brief Maps the whole buffer. Only valid for CPU visible buffers. */
	Map() ([]byte, error)
	Unmap()
	Destroy()
}

/** @brief A GPU texture owned by the backend. */
type Texture interface {
	Name() string
	Desc() metadata.TextureDesc
	Destroy()
}

/**
 * @brief The shader-visible descriptor table. Index bookkeeping lives in
 * the bindless allocator; the table only writes descriptors at indices
 * it is told. Re-pointing a slot at a different resource keeps the index
 * stable for shaders.
 */
type DescriptorTable interface {
	/** @brief Points a texture domain slot at a texture's shader resource view. */
	PointAtTexture(index metadata.BindlessIndex, texture Texture) error
	/** @brief Points a buffer domain slot at a structured buffer view. */
	PointAtBuffer(index metadata.BindlessIndex, buffer Buffer, stride uint32) error
	/** @brief Copies the descriptor at src over the one at dst within a domain. */
	CopyDescriptor(domain metadata.BindlessDomain, dst, src metadata.BindlessIndex) error
	ClearSlot(domain metadata.BindlessDomain, index metadata.BindlessIndex)
	Capacity(domain metadata.BindlessDomain) uint32
	/** @brief Grows the heap so indices below capacity are addressable. */
	EnsureCapacity(domain metadata.BindlessDomain, capacity uint32) error
}

/**
 * @brief An ordered GPU work queue with monotone fence progression. Work
 * submitted before a Signal is complete once Completed reaches the value
 * Signal returned.
 */
type CommandQueue interface {
	Role() metadata.QueueRole
	Name() string
	/** @brief Enqueues executable work in arrival order. */
	Submit(lists ...CommandList) error
	/** @brief Publishes a new monotone fence value covering prior submits. */
	Signal() (metadata.FenceValue, error)
	/** @brief Blocks until Completed() >= value. */
	Wait(value metadata.FenceValue) error
	/** @brief Latest observed completion, monotone, lock free to read. */
	Completed() metadata.FenceValue
	/** @brief Blocks until everything submitted so far has completed. */
	Flush() error
}

/** @brief A closed command list ready for submission. */
type CommandList interface {
	Name() string
}

/**
 * @brief Records copy, barrier and draw commands. Recorders are single
 * use: End closes them into a submittable CommandList.
 */
type CommandRecorder interface {
	Name() string
	Role() metadata.QueueRole

	/** @brief Declares the state a resource must be in; queues a barrier when it differs. */
	RequireBufferState(buffer Buffer, state metadata.ResourceState)
	RequireTextureState(texture Texture, state metadata.ResourceState)
	/** @brief Starts tracking a resource the recorder has not seen, in the given state. */
	BeginTrackingBufferState(buffer Buffer, state metadata.ResourceState)
	BeginTrackingTextureState(texture Texture, state metadata.ResourceState)
	/** @brief Emits all queued barriers into the command stream. */
	FlushBarriers()

	CopyBuffer(dst Buffer, dstOffset uint64, src Buffer, srcOffset uint64, size uint64)
	CopyBufferToTexture(dst Texture, src Buffer, regions []metadata.TextureUploadRegion)

	SetViewport(viewport metadata.Viewport)
	SetScissor(x, y, width, height uint32)
	BindRenderTargets(colors []Texture, depth Texture)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(groupsX, groupsY, groupsZ uint32)

	/** @brief Closes the recorder. The recorder must not be used afterwards. */
	End() (CommandList, error)
}

/**
 * @brief A presentable surface: a swapchain plus its resize signal. The
 * current back buffer index selects the frame slot after a resize.
 */
type Surface interface {
	Name() string
	ShouldResize() bool
	Resize() error
	/** @brief May fail; failures are logged by the controller, never fatal to the frame. */
	Present() error
	CurrentBackBufferIndex() int
	BackBufferCount() int
	CurrentBackBuffer() Texture
	DepthBuffer() Texture
	Width() uint32
	Height() uint32
}

/**
 * @brief The abstract graphics device the orchestrator runs against.
 * Resource creation, queues and the descriptor table all flow through
 * here; nothing above this interface touches the GPU API directly.
 */
type GraphicsBackend interface {
	Name() string
	CreateBuffer(desc metadata.BufferDesc) (Buffer, error)
	CreateTexture(desc metadata.TextureDesc) (Texture, error)
	DescriptorTable() DescriptorTable
	/** @brief Returns the queue for a role. Roles may share one queue. */
	Queue(role metadata.QueueRole) CommandQueue
	/** @brief Acquires a fresh single-use recorder for the given role. */
	AcquireCommandRecorder(role metadata.QueueRole, name string) (CommandRecorder, error)
	Shutdown() error
}
