package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/platform"
)

/**
 * @brief The Vulkan instance and logical device shared by every backend
 * object. Queue family selection prefers dedicated compute and transfer
 * families and falls back to the graphics family when none exist.
 */
type Device struct {
	Instance       vk.Instance
	Physical       vk.PhysicalDevice
	Logical        vk.Device
	Allocator      *vk.AllocationCallbacks
	Properties     vk.PhysicalDeviceProperties
	Memory         vk.PhysicalDeviceMemoryProperties
	DepthFormat    vk.Format
	GraphicsFamily uint32
	ComputeFamily  uint32
	TransferFamily uint32

	debugMessenger vk.DebugReportCallback
	debug          bool
}

func newDevice(p *platform.Platform, appName string, debug bool) (*Device, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("vulkan loader is not available")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("initializing vulkan: %w", err)
	}

	d := &Device{debug: debug}
	if err := d.createInstance(p, appName); err != nil {
		return nil, err
	}
	if err := d.selectPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		return nil, err
	}
	d.detectDepthFormat()
	return d, nil
}

func (d *Device) createInstance(p *platform.Platform, appName string) error {
	extensions := []string{"VK_KHR_surface"}
	extensions = append(extensions, p.GetRequiredExtensionNames()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2")
	}

	layers := []string{}
	if d.debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if layerAvailable("VK_LAYER_KHRONOS_validation") {
			layers = append(layers, "VK_LAYER_KHRONOS_validation")
		} else {
			core.LogWarn("validation layer requested but not installed")
		}
	}

	createInfo := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
			ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
			PApplicationName:   safeString(appName),
			PEngineName:        safeString("Oxygen"),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}
	if runtime.GOOS == "darwin" {
		createInfo.Flags |= 1
	}

	if res := vk.CreateInstance(&createInfo, d.Allocator, &d.Instance); res != vk.Success {
		return fmt.Errorf("creating vulkan instance: %s", resultString(res))
	}
	if err := vk.InitInstance(d.Instance); err != nil {
		return err
	}
	core.LogInfo("vulkan instance created")

	if d.debug && len(layers) > 0 {
		debugInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: debugCallback,
		}
		if res := vk.CreateDebugReportCallback(d.Instance, &debugInfo, nil, &d.debugMessenger); res != vk.Success {
			core.LogWarn("debug messenger unavailable: %s", resultString(res))
		}
	}
	return nil
}

func layerAvailable(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, layers); res != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if vk.ToString(layers[i].LayerName[:firstZero(layers[i].LayerName[:])+1]) == name {
			return true
		}
	}
	return false
}

func debugCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	if vk.DebugReportFlagBits(flags)&vk.DebugReportErrorBit != 0 {
		core.LogError("vulkan: %s", pMessage)
	} else {
		core.LogWarn("vulkan: %s", pMessage)
	}
	return vk.False
}

func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(d.Instance, &count, nil); res != vk.Success || count == 0 {
		return fmt.Errorf("no vulkan capable device found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(d.Instance, &count, devices); res != vk.Success {
		return fmt.Errorf("enumerating physical devices: %s", resultString(res))
	}

	best := -1
	bestScore := -1
	for i, candidate := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(candidate, &properties)
		properties.Deref()

		if _, ok := findQueueFamilies(candidate); !ok {
			continue
		}
		score := 0
		if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			score += 1000
		}
		if score > bestScore {
			best = i
			bestScore = score
			d.Properties = properties
		}
	}
	if best < 0 {
		return fmt.Errorf("no device exposes a graphics queue")
	}

	d.Physical = devices[best]
	vk.GetPhysicalDeviceMemoryProperties(d.Physical, &d.Memory)
	d.Memory.Deref()

	families, _ := findQueueFamilies(d.Physical)
	d.GraphicsFamily = families.graphics
	d.ComputeFamily = families.compute
	d.TransferFamily = families.transfer
	core.LogInfo("selected GPU %q (graphics %d, compute %d, transfer %d)",
		vk.ToString(d.Properties.DeviceName[:firstZero(d.Properties.DeviceName[:])+1]),
		d.GraphicsFamily, d.ComputeFamily, d.TransferFamily)
	return nil
}

type queueFamilies struct {
	graphics uint32
	compute  uint32
	transfer uint32
}

const noFamily = ^uint32(0)

func findQueueFamilies(device vk.PhysicalDevice) (queueFamilies, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	properties := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, properties)

	families := queueFamilies{graphics: noFamily, compute: noFamily, transfer: noFamily}
	for i := range properties {
		properties[i].Deref()
		flags := vk.QueueFlagBits(properties[i].QueueFlags)
		if flags&vk.QueueGraphicsBit != 0 && families.graphics == noFamily {
			families.graphics = uint32(i)
		}
		// Prefer families that are not the graphics one for async work.
		if flags&vk.QueueComputeBit != 0 && flags&vk.QueueGraphicsBit == 0 {
			families.compute = uint32(i)
		}
		if flags&vk.QueueTransferBit != 0 && flags&vk.QueueGraphicsBit == 0 && flags&vk.QueueComputeBit == 0 {
			families.transfer = uint32(i)
		}
	}
	if families.graphics == noFamily {
		return families, false
	}
	if families.compute == noFamily {
		families.compute = families.graphics
	}
	if families.transfer == noFamily {
		families.transfer = families.compute
	}
	return families, true
}

func (d *Device) createLogicalDevice() error {
	unique := map[uint32]bool{d.GraphicsFamily: true, d.ComputeFamily: true, d.TransferFamily: true}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, 0, len(unique))
	for family := range unique {
		queueCreateInfos = append(queueCreateInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if d.extensionAvailable("VK_KHR_portability_subset") {
		extensions = append(extensions, "VK_KHR_portability_subset")
	}
	if d.extensionAvailable(vk.ExtDescriptorIndexingExtensionName) {
		extensions = append(extensions, vk.ExtDescriptorIndexingExtensionName)
	}

	features := vk.PhysicalDeviceFeatures{SamplerAnisotropy: vk.True}
	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	if res := vk.CreateDevice(d.Physical, &createInfo, d.Allocator, &d.Logical); res != vk.Success {
		return fmt.Errorf("creating logical device: %s", resultString(res))
	}
	core.LogInfo("logical device created")
	return nil
}

func (d *Device) extensionAvailable(name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(d.Physical, "", &count, nil); res != vk.Success {
		return false
	}
	extensions := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(d.Physical, "", &count, extensions); res != vk.Success {
		return false
	}
	for i := range extensions {
		extensions[i].Deref()
		if vk.ToString(extensions[i].ExtensionName[:firstZero(extensions[i].ExtensionName[:])+1]) == name {
			return true
		}
	}
	return false
}

func (d *Device) detectDepthFormat() {
	candidates := []vk.Format{vk.FormatD32Sfloat, vk.FormatD32SfloatS8Uint, vk.FormatD24UnormS8Uint}
	for _, format := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.Physical, format, &properties)
		properties.Deref()
		if vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&vk.FormatFeatureDepthStencilAttachmentBit != 0 {
			d.DepthFormat = format
			return
		}
	}
	d.DepthFormat = vk.FormatD32Sfloat
}

/** @brief Finds a memory type index satisfying filter and flags, or -1. */
func (d *Device) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlagBits) int32 {
	for i := uint32(0); i < d.Memory.MemoryTypeCount; i++ {
		d.Memory.MemoryTypes[i].Deref()
		flags := vk.MemoryPropertyFlagBits(d.Memory.MemoryTypes[i].PropertyFlags)
		if typeFilter&(1<<i) != 0 && flags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("no suitable memory type for filter 0x%x", typeFilter)
	return -1
}

func (d *Device) WaitIdle() {
	vk.DeviceWaitIdle(d.Logical)
}

func (d *Device) destroy() {
	if d.Logical != nil {
		vk.DestroyDevice(d.Logical, d.Allocator)
		d.Logical = nil
	}
	if d.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.Instance, d.debugMessenger, nil)
	}
	if d.Instance != nil {
		vk.DestroyInstance(d.Instance, d.Allocator)
		d.Instance = nil
	}
}
