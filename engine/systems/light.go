package systems

import (
	"fmt"
	"unsafe"

	"honnef.co/go/safeish"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/scene"
)

/** @brief The light system configuration. */
type LightSystemConfig struct {
	/** @brief Half extent of the directional shadow ortho box in world units. */
	ShadowExtent float32
	/** @brief Shadow map resolution, used for the GPU texel size. */
	ShadowMapSize uint32
	/** @brief Constant depth bias written alongside each shadow matrix. */
	ShadowDepthBias float32
}

/** @brief Per-class light counts collected this frame. */
type LightCounts struct {
	Directional        int
	DirectionalShadows int
	Positional         int
}

/** @brief Bindless SRV indices of the frame's light buffers. */
type LightFrameResources struct {
	DirectionalSrv       metadata.BindlessIndex
	DirectionalShadowSrv metadata.BindlessIndex
	PositionalSrv        metadata.BindlessIndex
}

// One GPU buffer per light class, grown but never shrunk, with its
// bindless slot allocated on first use.
type lightBuffer struct {
	buffer renderer.Buffer
	handle metadata.VersionedHandle
	stride uint32
	name   string
	/** @brief In-flight upload tickets, polled every frame. */
	tickets []metadata.UploadTicket
}

/**
 * @brief Collects scene lights into GPU-packed lists and owns the
 * structured buffers shaders read them from. Baked, invisible and
 * world-detached lights never reach the lists; a light casts shadows
 * only when both the light property and the owning node's flag agree.
 * SRVs are allocated lazily per class and only for classes that
 * collected at least one light this frame.
 *
 * Render thread only.
 */
type LightSystem struct {
	config   LightSystemConfig
	backend  renderer.GraphicsBackend
	bindless *renderer.BindlessAllocator
	uploads  *renderer.UploadCoordinator
	frames   *renderer.FrameResourceManager

	directional []metadata.GpuDirectionalLight
	shadows     []metadata.GpuDirectionalShadow
	positional  []metadata.GpuPositionalLight

	directionalBuf lightBuffer
	shadowBuf      lightBuffer
	positionalBuf  lightBuffer

	resources LightFrameResources
}

func NewLightSystem(
	backend renderer.GraphicsBackend,
	bindless *renderer.BindlessAllocator,
	uploads *renderer.UploadCoordinator,
	frames *renderer.FrameResourceManager,
	config LightSystemConfig,
) (*LightSystem, error) {
	if backend == nil || bindless == nil || uploads == nil || frames == nil {
		return nil, fmt.Errorf("light system needs a backend, bindless allocator, upload coordinator and frame resource manager")
	}
	if config.ShadowExtent == 0 {
		config.ShadowExtent = 50
	}
	if config.ShadowMapSize == 0 {
		config.ShadowMapSize = 2048
	}
	if config.ShadowDepthBias == 0 {
		config.ShadowDepthBias = 0.0005
	}
	ls := &LightSystem{
		config:   config,
		backend:  backend,
		bindless: bindless,
		uploads:  uploads,
		frames:   frames,
	}
	ls.directionalBuf = lightBuffer{stride: uint32(unsafe.Sizeof(metadata.GpuDirectionalLight{})), name: "lights_directional"}
	ls.shadowBuf = lightBuffer{stride: uint32(unsafe.Sizeof(metadata.GpuDirectionalShadow{})), name: "lights_directional_shadows"}
	ls.positionalBuf = lightBuffer{stride: uint32(unsafe.Sizeof(metadata.GpuPositionalLight{})), name: "lights_positional"}
	ls.invalidateResources()
	return ls, nil
}

func (ls *LightSystem) invalidateResources() {
	ls.resources = LightFrameResources{
		DirectionalSrv:       metadata.InvalidBindlessIndex,
		DirectionalShadowSrv: metadata.InvalidBindlessIndex,
		PositionalSrv:        metadata.InvalidBindlessIndex,
	}
}

/**
 * @brief Clears the collected lists for a new frame and polls the
 * previous frames' upload tickets so their results are retrieved.
 */
func (ls *LightSystem) BeginFrame() {
	ls.directional = ls.directional[:0]
	ls.shadows = ls.shadows[:0]
	ls.positional = ls.positional[:0]
	ls.invalidateResources()
	for _, class := range []*lightBuffer{&ls.directionalBuf, &ls.shadowBuf, &ls.positionalBuf} {
		ls.pollClassUploads(class)
	}
}

func (ls *LightSystem) pollClassUploads(class *lightBuffer) {
	remaining := class.tickets[:0]
	for _, ticket := range class.tickets {
		if !ls.uploads.IsComplete(ticket) {
			remaining = append(remaining, ticket)
			continue
		}
		result, done, err := ls.uploads.TryGetResult(ticket)
		if err != nil || !done {
			continue
		}
		if !result.Completed {
			core.LogError("light buffer %q: upload failed: %s", class.name, result.Err.Error())
		}
	}
	class.tickets = remaining
}

/** @brief In-flight upload tickets across every light class. */
func (ls *LightSystem) PendingUploads() int {
	return len(ls.directionalBuf.tickets) + len(ls.shadowBuf.tickets) + len(ls.positionalBuf.tickets)
}

/**
 * @brief Walks the scene's lights and packs each eligible one into its
 * class list. The hard gates drop: invisible lights, lights with
 * AffectsWorld false, and baked lights.
 */
func (ls *LightSystem) Collect(s scene.Scene) {
	s.EachLight(func(light scene.Light) bool {
		if !light.Visible() || !light.AffectsWorld() || light.Mobility() == metadata.LightMobilityBaked {
			return true
		}
		switch light.Kind() {
		case metadata.LightTypeDirectional:
			ls.collectDirectional(light)
		case metadata.LightTypePoint, metadata.LightTypeSpot:
			ls.collectPositional(light)
		}
		return true
	})
}

func (ls *LightSystem) collectDirectional(light scene.Light) {
	world := light.WorldTransform()
	direction := world.TransformDirection(math.NewVec3Forward()).Normalized()

	packed := metadata.GpuDirectionalLight{
		Direction:   direction,
		Color:       light.Color(),
		Intensity:   light.Intensity(),
		ShadowIndex: metadata.InvalidShadowIndex,
	}
	// Shadows require agreement between the light property and the
	// owning node's flag; a mismatch clears the shadow bit entirely.
	if light.CastsShadows() && light.NodeCastsShadows() {
		packed.CastsShadows = 1
		packed.ShadowIndex = uint32(len(ls.shadows))
		ls.shadows = append(ls.shadows, ls.buildShadow(direction))
	}
	ls.directional = append(ls.directional, packed)
}

// Ortho box centered at the origin, tight enough for the testbed scale.
// A production cascade fit would track the view frustum instead.
func (ls *LightSystem) buildShadow(direction math.Vec3) metadata.GpuDirectionalShadow {
	extent := ls.config.ShadowExtent
	eye := direction.MulScalar(-2 * extent)
	up := math.NewVec3Up()
	if math.Abs(direction.Dot(up)) > 0.99 {
		up = math.NewVec3Right()
	}
	view := math.NewMat4LookAt(eye, math.NewVec3Zero(), up)
	projection := math.NewMat4Orthographic(-extent, extent, -extent, extent, 0.1, 4*extent)
	texel := 2 * extent / float32(ls.config.ShadowMapSize)
	return metadata.GpuDirectionalShadow{
		ViewProjection: projection.Mul(view),
		TexelSize:      math.Vec2{X: texel, Y: texel},
		DepthBias:      ls.config.ShadowDepthBias,
	}
}

func (ls *LightSystem) collectPositional(light scene.Light) {
	world := light.WorldTransform()
	position := world.TransformPoint(math.NewVec3Zero())
	direction := world.TransformDirection(math.NewVec3Forward()).Normalized()
	inner, outer := light.ConeAngles()

	packed := metadata.GpuPositionalLight{
		Position:    position,
		Range:       light.Range(),
		Color:       light.Color(),
		Intensity:   light.Intensity(),
		Direction:   direction,
		ShadowIndex: metadata.InvalidShadowIndex,
	}
	if light.Kind() == metadata.LightTypeSpot {
		packed.Kind = 1
		packed.InnerConeCos = math.Cos(inner)
		packed.OuterConeCos = math.Cos(outer)
	}
	ls.positional = append(ls.positional, packed)
}

/** @brief The per-class counts collected since BeginFrame. */
func (ls *LightSystem) Counts() LightCounts {
	return LightCounts{
		Directional:        len(ls.directional),
		DirectionalShadows: len(ls.shadows),
		Positional:         len(ls.positional),
	}
}

/**
 * @brief Uploads the collected lists and publishes their SRV indices.
 * Classes that collected nothing keep the invalid sentinel and allocate
 * no descriptor.
 */
func (ls *LightSystem) EnsureFrameResources() (LightFrameResources, error) {
	ls.invalidateResources()
	if len(ls.directional) > 0 {
		index, err := ls.ensureClass(&ls.directionalBuf, safeish.SliceCast[[]byte](ls.directional))
		if err != nil {
			return ls.resources, err
		}
		ls.resources.DirectionalSrv = index
	}
	if len(ls.shadows) > 0 {
		index, err := ls.ensureClass(&ls.shadowBuf, safeish.SliceCast[[]byte](ls.shadows))
		if err != nil {
			return ls.resources, err
		}
		ls.resources.DirectionalShadowSrv = index
	}
	if len(ls.positional) > 0 {
		index, err := ls.ensureClass(&ls.positionalBuf, safeish.SliceCast[[]byte](ls.positional))
		if err != nil {
			return ls.resources, err
		}
		ls.resources.PositionalSrv = index
	}
	return ls.resources, nil
}

func (ls *LightSystem) ensureClass(class *lightBuffer, payload []byte) (metadata.BindlessIndex, error) {
	size := uint64(len(payload))
	if class.buffer == nil || class.buffer.Size() < size {
		if class.buffer != nil {
			old := class.buffer
			if err := ls.frames.RegisterDeferredAction(func() error {
				old.Destroy()
				return nil
			}); err != nil {
				core.LogWarn("light buffer %q: deferring destroy: %s", class.name, err.Error())
			}
		}
		buffer, err := ls.backend.CreateBuffer(metadata.BufferDesc{
			Name:   class.name,
			Size:   size,
			Usage:  metadata.BufferUsageStructured | metadata.BufferUsageCopyDest,
			Stride: class.stride,
		})
		if err != nil {
			return metadata.InvalidBindlessIndex, fmt.Errorf("light buffer %q: %w", class.name, err)
		}
		class.buffer = buffer
		if class.handle.IsValid() {
			// Rebind the existing slot to the grown buffer; the SRV
			// index shaders hold stays stable.
			if err := ls.backend.DescriptorTable().PointAtBuffer(class.handle.Index, buffer, class.stride); err != nil {
				return metadata.InvalidBindlessIndex, fmt.Errorf("light buffer %q: rebind: %w", class.name, err)
			}
		}
	}
	if !class.handle.IsValid() {
		handle, err := ls.bindless.Allocate(metadata.DomainBuffers)
		if err != nil {
			return metadata.InvalidBindlessIndex, fmt.Errorf("light buffer %q: descriptor: %w", class.name, err)
		}
		if err := ls.backend.DescriptorTable().PointAtBuffer(handle.Index, class.buffer, class.stride); err != nil {
			return metadata.InvalidBindlessIndex, fmt.Errorf("light buffer %q: bind: %w", class.name, err)
		}
		class.handle = handle
	}

	ticket, err := ls.uploads.SubmitBufferUpload(renderer.BufferUploadRequest{
		Name: class.name,
		Dst:  class.buffer,
		Size: size,
		Data: payload,
	})
	if err != nil {
		return metadata.InvalidBindlessIndex, fmt.Errorf("light buffer %q: upload: %w", class.name, err)
	}
	class.tickets = append(class.tickets, ticket)
	return class.handle.Index, nil
}

/** @brief The SRV indices published by the last EnsureFrameResources. */
func (ls *LightSystem) FrameResources() LightFrameResources {
	return ls.resources
}

func (ls *LightSystem) Shutdown() error {
	for _, class := range []*lightBuffer{&ls.directionalBuf, &ls.shadowBuf, &ls.positionalBuf} {
		if class.handle.IsValid() {
			if err := ls.bindless.Release(metadata.DomainBuffers, class.handle); err != nil {
				core.LogWarn("light buffer %q: releasing slot: %s", class.name, err.Error())
			}
			class.handle = metadata.InvalidHandle
		}
		if class.buffer != nil {
			class.buffer.Destroy()
			class.buffer = nil
		}
	}
	return nil
}
