package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/** @brief A VkBuffer with bound memory. CPU visible buffers stay mapped. */
type Buffer struct {
	device *Device
	handle vk.Buffer
	memory vk.DeviceMemory
	name   string
	size   uint64
	mapped []byte
}

func (b *Backend) CreateBuffer(desc metadata.BufferDesc) (renderer.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q: zero size", desc.Name)
	}

	usage := vk.BufferUsageFlagBits(0)
	if desc.Usage&metadata.BufferUsageVertex != 0 {
		usage |= vk.BufferUsageVertexBufferBit
	}
	if desc.Usage&metadata.BufferUsageIndex != 0 {
		usage |= vk.BufferUsageIndexBufferBit
	}
	if desc.Usage&metadata.BufferUsageConstant != 0 {
		usage |= vk.BufferUsageUniformBufferBit
	}
	if desc.Usage&metadata.BufferUsageStructured != 0 {
		usage |= vk.BufferUsageStorageBufferBit
	}
	if desc.Usage&metadata.BufferUsageCopySource != 0 {
		usage |= vk.BufferUsageTransferSrcBit
	}
	if desc.Usage&metadata.BufferUsageCopyDest != 0 {
		usage |= vk.BufferUsageTransferDstBit
	}

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(b.device.Logical, &createInfo, b.device.Allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("buffer %q: create: %s", desc.Name, resultString(res))
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device.Logical, handle, &requirements)
	requirements.Deref()

	properties := vk.MemoryPropertyFlagBits(vk.MemoryPropertyDeviceLocalBit)
	if desc.CpuVisible {
		properties = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	memoryIndex := b.device.FindMemoryIndex(requirements.MemoryTypeBits, properties)
	if memoryIndex < 0 {
		vk.DestroyBuffer(b.device.Logical, handle, b.device.Allocator)
		return nil, fmt.Errorf("buffer %q: no compatible memory type", desc.Name)
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(b.device.Logical, &allocateInfo, b.device.Allocator, &memory); res != vk.Success {
		vk.DestroyBuffer(b.device.Logical, handle, b.device.Allocator)
		return nil, fmt.Errorf("buffer %q: allocate: %s", desc.Name, resultString(res))
	}
	if res := vk.BindBufferMemory(b.device.Logical, handle, memory, 0); res != vk.Success {
		vk.FreeMemory(b.device.Logical, memory, b.device.Allocator)
		vk.DestroyBuffer(b.device.Logical, handle, b.device.Allocator)
		return nil, fmt.Errorf("buffer %q: bind: %s", desc.Name, resultString(res))
	}

	buffer := &Buffer{
		device: b.device,
		handle: handle,
		memory: memory,
		name:   desc.Name,
		size:   desc.Size,
	}
	if desc.CpuVisible {
		var pointer unsafe.Pointer
		if res := vk.MapMemory(b.device.Logical, memory, 0, vk.DeviceSize(desc.Size), 0, &pointer); res != vk.Success {
			buffer.Destroy()
			return nil, fmt.Errorf("buffer %q: map: %s", desc.Name, resultString(res))
		}
		buffer.mapped = unsafe.Slice((*byte)(pointer), desc.Size)
	}
	return buffer, nil
}

func (bf *Buffer) Name() string { return bf.name }
func (bf *Buffer) Size() uint64 { return bf.size }

func (bf *Buffer) Handle() vk.Buffer { return bf.handle }

func (bf *Buffer) Map() ([]byte, error) {
	if bf.mapped == nil {
		return nil, fmt.Errorf("buffer %q is not CPU visible", bf.name)
	}
	return bf.mapped, nil
}

func (bf *Buffer) Unmap() {
	// Persistently mapped; nothing to undo until Destroy.
}

func (bf *Buffer) Destroy() {
	if bf.handle == vk.NullBuffer {
		core.LogWarn("buffer %q destroyed twice", bf.name)
		return
	}
	if bf.mapped != nil {
		vk.UnmapMemory(bf.device.Logical, bf.memory)
		bf.mapped = nil
	}
	vk.DestroyBuffer(bf.device.Logical, bf.handle, bf.device.Allocator)
	vk.FreeMemory(bf.device.Logical, bf.memory, bf.device.Allocator)
	bf.handle = vk.NullBuffer
}
