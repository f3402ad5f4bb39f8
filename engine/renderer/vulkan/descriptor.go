package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

const initialDomainCapacity = 256

/**
 * @brief The shader visible descriptor table: one variable sized
 * descriptor set per bindless domain. Growing a domain allocates a new
 * pool and set and copies every written slot over, so indices handed
 * out earlier keep addressing the same resources.
 */
type descriptorTable struct {
	device  *Device
	sampler vk.Sampler

	mutex   sync.Mutex
	domains map[metadata.BindlessDomain]*descriptorDomain
}

type descriptorDomain struct {
	kind     vk.DescriptorType
	layout   vk.DescriptorSetLayout
	pool     vk.DescriptorPool
	set      vk.DescriptorSet
	capacity uint32
	written  map[metadata.BindlessIndex]bool
}

func newDescriptorTable(device *Device) (*descriptorTable, error) {
	t := &descriptorTable{
		device:  device,
		domains: make(map[metadata.BindlessDomain]*descriptorDomain),
	}

	samplerInfo := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        vk.FilterLinear,
		MinFilter:        vk.FilterLinear,
		MipmapMode:       vk.SamplerMipmapModeLinear,
		AddressModeU:     vk.SamplerAddressModeRepeat,
		AddressModeV:     vk.SamplerAddressModeRepeat,
		AddressModeW:     vk.SamplerAddressModeRepeat,
		AnisotropyEnable: vk.True,
		MaxAnisotropy:    16,
		MaxLod:           vk.LodClampNone,
	}
	if res := vk.CreateSampler(device.Logical, &samplerInfo, device.Allocator, &t.sampler); res != vk.Success {
		return nil, fmt.Errorf("descriptor table: default sampler: %s", resultString(res))
	}

	kinds := map[metadata.BindlessDomain]vk.DescriptorType{
		metadata.DomainTextures: vk.DescriptorTypeCombinedImageSampler,
		metadata.DomainBuffers:  vk.DescriptorTypeStorageBuffer,
		metadata.DomainSamplers: vk.DescriptorTypeSampler,
	}
	for domain, kind := range kinds {
		d := &descriptorDomain{kind: kind, written: make(map[metadata.BindlessIndex]bool)}
		if err := t.allocateDomain(d, initialDomainCapacity); err != nil {
			return nil, err
		}
		t.domains[domain] = d
	}
	return t, nil
}

func (t *descriptorTable) allocateDomain(d *descriptorDomain, capacity uint32) error {
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings: []vk.DescriptorSetLayoutBinding{{
			Binding:         0,
			DescriptorType:  d.kind,
			DescriptorCount: capacity,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAllGraphics | vk.ShaderStageComputeBit),
		}},
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(t.device.Logical, &layoutInfo, t.device.Allocator, &layout); res != vk.Success {
		return fmt.Errorf("descriptor table: layout: %s", resultString(res))
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            d.kind,
			DescriptorCount: capacity,
		}},
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(t.device.Logical, &poolInfo, t.device.Allocator, &pool); res != vk.Success {
		vk.DestroyDescriptorSetLayout(t.device.Logical, layout, t.device.Allocator)
		return fmt.Errorf("descriptor table: pool: %s", resultString(res))
	}

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	sets := make([]vk.DescriptorSet, 1)
	if res := vk.AllocateDescriptorSets(t.device.Logical, &allocateInfo, &sets[0]); res != vk.Success {
		vk.DestroyDescriptorPool(t.device.Logical, pool, t.device.Allocator)
		vk.DestroyDescriptorSetLayout(t.device.Logical, layout, t.device.Allocator)
		return fmt.Errorf("descriptor table: set: %s", resultString(res))
	}

	d.layout = layout
	d.pool = pool
	d.set = sets[0]
	d.capacity = capacity
	return nil
}

func (t *descriptorTable) PointAtTexture(index metadata.BindlessIndex, texture renderer.Texture) error {
	image, ok := texture.(*Image)
	if !ok {
		return fmt.Errorf("descriptor table: foreign texture %q", texture.Name())
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	d := t.domains[metadata.DomainTextures]
	if uint32(index) >= d.capacity {
		return fmt.Errorf("descriptor table: texture index %d beyond capacity %d", index, d.capacity)
	}

	layout := vk.ImageLayoutShaderReadOnlyOptimal
	if image.desc.Usage&metadata.TextureUsageUnorderedAccess != 0 {
		layout = vk.ImageLayoutGeneral
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          d.set,
		DstBinding:      0,
		DstArrayElement: uint32(index),
		DescriptorCount: 1,
		DescriptorType:  d.kind,
		PImageInfo: []vk.DescriptorImageInfo{{
			Sampler:     t.sampler,
			ImageView:   image.view,
			ImageLayout: layout,
		}},
	}
	vk.UpdateDescriptorSets(t.device.Logical, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	d.written[index] = true
	return nil
}

func (t *descriptorTable) PointAtBuffer(index metadata.BindlessIndex, buffer renderer.Buffer, stride uint32) error {
	vb, ok := buffer.(*Buffer)
	if !ok {
		return fmt.Errorf("descriptor table: foreign buffer %q", buffer.Name())
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	d := t.domains[metadata.DomainBuffers]
	if uint32(index) >= d.capacity {
		return fmt.Errorf("descriptor table: buffer index %d beyond capacity %d", index, d.capacity)
	}

	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          d.set,
		DstBinding:      0,
		DstArrayElement: uint32(index),
		DescriptorCount: 1,
		DescriptorType:  d.kind,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: vb.handle,
			Offset: 0,
			Range:  vk.DeviceSize(vk.WholeSize),
		}},
	}
	vk.UpdateDescriptorSets(t.device.Logical, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	d.written[index] = true
	return nil
}

func (t *descriptorTable) CopyDescriptor(domain metadata.BindlessDomain, dst, src metadata.BindlessIndex) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	d, ok := t.domains[domain]
	if !ok {
		return fmt.Errorf("descriptor table: unknown domain %d", domain)
	}
	if uint32(dst) >= d.capacity || uint32(src) >= d.capacity {
		return fmt.Errorf("descriptor table: copy %d<-%d beyond capacity %d", dst, src, d.capacity)
	}
	if !d.written[src] {
		return fmt.Errorf("descriptor table: copy from unwritten slot %d", src)
	}
	copyInfo := vk.CopyDescriptorSet{
		SType:           vk.StructureTypeCopyDescriptorSet,
		SrcSet:          d.set,
		SrcBinding:      0,
		SrcArrayElement: uint32(src),
		DstSet:          d.set,
		DstBinding:      0,
		DstArrayElement: uint32(dst),
		DescriptorCount: 1,
	}
	vk.UpdateDescriptorSets(t.device.Logical, 0, nil, 1, []vk.CopyDescriptorSet{copyInfo})
	d.written[dst] = true
	return nil
}

func (t *descriptorTable) ClearSlot(domain metadata.BindlessDomain, index metadata.BindlessIndex) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if d, ok := t.domains[domain]; ok {
		delete(d.written, index)
	}
}

func (t *descriptorTable) Capacity(domain metadata.BindlessDomain) uint32 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if d, ok := t.domains[domain]; ok {
		return d.capacity
	}
	return 0
}

func (t *descriptorTable) EnsureCapacity(domain metadata.BindlessDomain, capacity uint32) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	d, ok := t.domains[domain]
	if !ok {
		return fmt.Errorf("descriptor table: unknown domain %d", domain)
	}
	if capacity <= d.capacity {
		return nil
	}
	grown := d.capacity
	for grown < capacity {
		grown *= 2
	}

	old := *d
	if err := t.allocateDomain(d, grown); err != nil {
		return err
	}
	copies := make([]vk.CopyDescriptorSet, 0, len(old.written))
	for index := range old.written {
		copies = append(copies, vk.CopyDescriptorSet{
			SType:           vk.StructureTypeCopyDescriptorSet,
			SrcSet:          old.set,
			SrcBinding:      0,
			SrcArrayElement: uint32(index),
			DstSet:          d.set,
			DstBinding:      0,
			DstArrayElement: uint32(index),
			DescriptorCount: 1,
		})
	}
	if len(copies) > 0 {
		vk.UpdateDescriptorSets(t.device.Logical, 0, nil, uint32(len(copies)), copies)
	}
	old.destroy(t.device)
	return nil
}

func (d *descriptorDomain) destroy(device *Device) {
	if d.pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(device.Logical, d.pool, device.Allocator)
		d.pool = vk.NullDescriptorPool
	}
	if d.layout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(device.Logical, d.layout, device.Allocator)
		d.layout = vk.NullDescriptorSetLayout
	}
}

func (t *descriptorTable) destroy() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for _, d := range t.domains {
		d.destroy(t.device)
	}
	if t.sampler != vk.NullSampler {
		vk.DestroySampler(t.device.Logical, t.sampler, t.device.Allocator)
		t.sampler = vk.NullSampler
	}
}
