package systems

import (
	"fmt"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/scene"
)

/** @brief The render controller configuration. */
type RendererSystemConfig struct {
	/** @brief Frame slots in flight. Zero means one per surface back buffer. */
	FramesInFlight int
}

/**
 * @brief Everything a render pass needs for one frame. Passes acquire
 * their recorders through the controller so submission and fence
 * bookkeeping stay in one place. Geometries maps every mesh the frame's
 * items reference, so prepare phases can drive residency; Ibl is
 * published during the prepare phase for the shading passes to read.
 */
type FrameContext struct {
	Slot       int
	FrameIndex uint64
	View       metadata.View
	Items      []metadata.RenderItem
	Geometries map[metadata.MeshID]scene.Geometry
	Ibl        IblOutputs
	Surface    renderer.Surface
	Renderer   *RendererSystem
}

/**
 * @brief One stage of the frame. Every pass's Prepare runs before any
 * pass's Execute, both in registration order. Prepare stages resources
 * and bindings (mesh residency, texture slots, per-frame buffers);
 * Execute records the draw work.
 */
type RenderPass interface {
	Name() string
	Prepare(frame *FrameContext) error
	Execute(frame *FrameContext) error
}

type pendingList struct {
	list       renderer.CommandList
	queue      renderer.CommandQueue
	onExecuted func()
}

// Per-slot bookkeeping. timelineValues is what the slot must wait on
// before reuse; pending holds closed but unsubmitted lists.
type frameState struct {
	timelineValues map[renderer.CommandQueue]metadata.FenceValue
	pending        []pendingList
	// Hooks for lists submitted during the prior occurrence of this
	// slot. Run once the slot's fence wait has returned.
	executed []func()
}

/**
 * @brief The per-frame orchestrator. Rotates frame slots, waits each
 * slot's prior-use fences before reuse, hands out scoped command
 * recorders, flushes deferred submissions at end of frame and drives
 * surface resize. One controller per presentable surface; render
 * thread only.
 */
type RendererSystem struct {
	config  RendererSystemConfig
	backend renderer.GraphicsBackend
	surface renderer.Surface
	frames  *renderer.FrameResourceManager
	staging *renderer.RingBufferStaging
	uploads *renderer.UploadCoordinator

	slots       []frameState
	currentSlot int
	frameIndex  uint64
	inFrame     bool

	passes []RenderPass
}

func NewRendererSystem(
	backend renderer.GraphicsBackend,
	surface renderer.Surface,
	frames *renderer.FrameResourceManager,
	staging *renderer.RingBufferStaging,
	uploads *renderer.UploadCoordinator,
	config RendererSystemConfig,
) (*RendererSystem, error) {
	if backend == nil || surface == nil || frames == nil {
		return nil, fmt.Errorf("renderer system needs a backend, a surface and a frame resource manager")
	}
	if config.FramesInFlight == 0 {
		config.FramesInFlight = surface.BackBufferCount()
	}
	if config.FramesInFlight < 1 {
		return nil, fmt.Errorf("frames in flight must be at least 1, got %d", config.FramesInFlight)
	}
	if frames.SlotCount() != config.FramesInFlight {
		return nil, fmt.Errorf("frame resource manager has %d slots, controller wants %d",
			frames.SlotCount(), config.FramesInFlight)
	}
	slots := make([]frameState, config.FramesInFlight)
	for i := range slots {
		slots[i].timelineValues = make(map[renderer.CommandQueue]metadata.FenceValue)
	}
	return &RendererSystem{
		config:  config,
		backend: backend,
		surface: surface,
		frames:  frames,
		staging: staging,
		uploads: uploads,
		slots:   slots,
	}, nil
}

/** @brief Registers a pass at the end of the frame sequence. */
func (rs *RendererSystem) AddPass(pass RenderPass) {
	rs.passes = append(rs.passes, pass)
}

func (rs *RendererSystem) CurrentSlot() int   { return rs.currentSlot }
func (rs *RendererSystem) FrameIndex() uint64 { return rs.frameIndex }

/**
 * @brief Opens a frame slot. Waits until all work the slot submitted on
 * its previous occurrence has completed, then drains the slot's
 * deferred releases and resets the staging partition. A pending surface
 * resize takes the full drain path instead.
 */
func (rs *RendererSystem) BeginFrame() error {
	if rs.inFrame {
		return fmt.Errorf("BeginFrame called twice without EndFrame")
	}

	if rs.surface.ShouldResize() {
		if err := rs.drainAndResize(); err != nil {
			return err
		}
	} else {
		slot := &rs.slots[rs.currentSlot]
		for queue, fence := range slot.timelineValues {
			if err := queue.Wait(fence); err != nil {
				return fmt.Errorf("waiting on %s for slot %d: %w", queue.Name(), rs.currentSlot, err)
			}
		}
	}

	slot := &rs.slots[rs.currentSlot]
	if err := rs.frames.OnBeginFrame(rs.currentSlot); err != nil {
		return err
	}
	for _, onExecuted := range slot.executed {
		onExecuted()
	}
	slot.executed = slot.executed[:0]

	// The upload tick first: it propagates the transfer queue's
	// completed fence into the staging provider, so the partition
	// rotation below sees retirement up to date.
	if rs.uploads != nil {
		rs.uploads.OnFrameStart()
	}
	if rs.staging != nil {
		rs.staging.OnFrameStart(rs.currentSlot)
	}

	rs.inFrame = true
	return nil
}

/**
 * @brief Runs every registered pass: first all prepare phases, then all
 * execute phases, both in registration order. A phase failing or
 * panicking is logged and the remaining phases still run; the frame
 * always reaches EndFrame.
 */
func (rs *RendererSystem) Render(
	view metadata.View,
	items []metadata.RenderItem,
	geometries map[metadata.MeshID]scene.Geometry,
) error {
	if !rs.inFrame {
		return fmt.Errorf("Render called outside BeginFrame/EndFrame")
	}
	frame := &FrameContext{
		Slot:       rs.currentSlot,
		FrameIndex: rs.frameIndex,
		View:       view,
		Items:      items,
		Geometries: geometries,
		Surface:    rs.surface,
		Renderer:   rs,
	}
	for _, pass := range rs.passes {
		rs.runPhase(pass, "prepare", frame, pass.Prepare)
	}
	for _, pass := range rs.passes {
		rs.runPhase(pass, "execute", frame, pass.Execute)
	}
	return nil
}

func (rs *RendererSystem) runPhase(pass RenderPass, phase string, frame *FrameContext, fn func(*FrameContext) error) {
	defer func() {
		if r := recover(); r != nil {
			core.LogError("pass %s %s panicked: %v", pass.Name(), phase, r)
		}
	}()
	if err := fn(frame); err != nil {
		core.LogError("pass %s %s failed: %s", pass.Name(), phase, err.Error())
	}
}

/**
 * @brief Closes the frame: flushes any uploads batched this frame,
 * submits the pending command lists, presents and rotates the slot.
 * Present failures are logged, never fatal; the slot rotates anyway.
 */
func (rs *RendererSystem) EndFrame() error {
	if !rs.inFrame {
		return fmt.Errorf("EndFrame called outside a frame")
	}
	slot := &rs.slots[rs.currentSlot]

	if rs.uploads != nil {
		fence, err := rs.uploads.Flush()
		if err != nil {
			core.LogError("flushing uploads: %s", err.Error())
		} else if fence != 0 {
			if rs.staging != nil {
				rs.staging.SetSlotRetireFence(rs.currentSlot, fence)
			}
			transfer := rs.backend.Queue(metadata.QueueRoleTransfer)
			slot.timelineValues[transfer] = fence
		}
	}

	if err := rs.flushPendingCommandLists(slot); err != nil {
		core.LogError("flushing command lists: %s", err.Error())
	}

	if err := rs.surface.Present(); err != nil {
		core.LogWarn("present on %s failed: %s", rs.surface.Name(), err.Error())
	}

	rs.currentSlot = (rs.currentSlot + 1) % rs.config.FramesInFlight
	rs.frameIndex++
	rs.inFrame = false
	return nil
}

// Batches consecutive lists targeting the same queue into one submit,
// then signals that queue once per batch.
func (rs *RendererSystem) flushPendingCommandLists(slot *frameState) error {
	pending := slot.pending
	slot.pending = slot.pending[:0]

	for start := 0; start < len(pending); {
		queue := pending[start].queue
		end := start + 1
		for end < len(pending) && pending[end].queue == queue {
			end++
		}
		lists := make([]renderer.CommandList, 0, end-start)
		for _, p := range pending[start:end] {
			lists = append(lists, p.list)
		}
		if err := queue.Submit(lists...); err != nil {
			return fmt.Errorf("submitting %d lists to %s: %w", len(lists), queue.Name(), err)
		}
		fence, err := queue.Signal()
		if err != nil {
			return fmt.Errorf("signalling %s: %w", queue.Name(), err)
		}
		slot.timelineValues[queue] = fence
		for _, p := range pending[start:end] {
			if p.onExecuted != nil {
				slot.executed = append(slot.executed, p.onExecuted)
			}
		}
		start = end
	}
	return nil
}

// The resize drain: every queue any slot still has fences on gets
// flushed, all deferred releases run, then the surface resizes and the
// controller re-syncs its slot with the swapchain.
func (rs *RendererSystem) drainAndResize() error {
	queues := make(map[renderer.CommandQueue]struct{})
	for i := range rs.slots {
		for queue := range rs.slots[i].timelineValues {
			queues[queue] = struct{}{}
		}
	}
	for queue := range queues {
		if err := queue.Flush(); err != nil {
			return fmt.Errorf("draining %s for resize: %w", queue.Name(), err)
		}
	}
	rs.frames.ProcessAllDeferredReleases()
	for i := range rs.slots {
		slot := &rs.slots[i]
		for _, onExecuted := range slot.executed {
			onExecuted()
		}
		slot.executed = slot.executed[:0]
		for queue := range slot.timelineValues {
			delete(slot.timelineValues, queue)
		}
	}

	if err := rs.surface.Resize(); err != nil {
		return fmt.Errorf("resizing %s: %w", rs.surface.Name(), err)
	}
	rs.currentSlot = rs.surface.CurrentBackBufferIndex()
	core.LogInfo("surface %s resized to %dx%d, slot %d",
		rs.surface.Name(), rs.surface.Width(), rs.surface.Height(), rs.currentSlot)
	return nil
}

/**
 * @brief A single-use command recorder bound to the frame slot it was
 * acquired in. Release is idempotent: the first call ends the list and
 * either submits it immediately or parks it for the end-of-frame flush;
 * later calls are no-ops.
 */
type ScopedRecorder struct {
	renderer.CommandRecorder

	rs         *RendererSystem
	queue      renderer.CommandQueue
	slot       int
	immediate  bool
	onExecuted func()
	released   bool
}

/** @brief Runs after the GPU finishes the recorded work. */
func (sr *ScopedRecorder) SetOnExecuted(hook func()) {
	sr.onExecuted = hook
}

func (sr *ScopedRecorder) Release() error {
	if sr.released {
		return nil
	}
	sr.released = true

	list, err := sr.CommandRecorder.End()
	if err != nil {
		return fmt.Errorf("closing recorder %s: %w", sr.CommandRecorder.Name(), err)
	}
	slot := &sr.rs.slots[sr.slot]
	if !sr.immediate {
		slot.pending = append(slot.pending, pendingList{
			list:       list,
			queue:      sr.queue,
			onExecuted: sr.onExecuted,
		})
		return nil
	}
	if err := sr.queue.Submit(list); err != nil {
		return fmt.Errorf("submitting %s: %w", list.Name(), err)
	}
	fence, err := sr.queue.Signal()
	if err != nil {
		return fmt.Errorf("signalling %s: %w", sr.queue.Name(), err)
	}
	slot.timelineValues[sr.queue] = fence
	if sr.onExecuted != nil {
		slot.executed = append(slot.executed, sr.onExecuted)
	}
	return nil
}

/**
 * @brief Acquires a scoped recorder for the given queue role. Deferred
 * recorders (immediate=false) are submitted in acquisition order by the
 * end-of-frame flush.
 */
func (rs *RendererSystem) AcquireCommandRecorder(
	role metadata.QueueRole, name string, immediate bool,
) (*ScopedRecorder, error) {
	if !rs.inFrame {
		return nil, fmt.Errorf("recorder %s acquired outside a frame", name)
	}
	recorder, err := rs.backend.AcquireCommandRecorder(role, name)
	if err != nil {
		return nil, err
	}
	return &ScopedRecorder{
		CommandRecorder: recorder,
		rs:              rs,
		queue:           rs.backend.Queue(role),
		slot:            rs.currentSlot,
		immediate:       immediate,
	}, nil
}

/**
 * @brief Flushes every queue the controller still has fences on, then
 * drains all deferred releases. Called before backend teardown.
 */
func (rs *RendererSystem) Shutdown() error {
	queues := make(map[renderer.CommandQueue]struct{})
	for i := range rs.slots {
		for queue := range rs.slots[i].timelineValues {
			queues[queue] = struct{}{}
		}
	}
	for queue := range queues {
		if err := queue.Flush(); err != nil {
			core.LogWarn("flushing %s at shutdown: %s", queue.Name(), err.Error())
		}
	}
	if rs.uploads != nil {
		if err := rs.uploads.WaitIdle(); err != nil {
			core.LogWarn("waiting for uploads at shutdown: %s", err.Error())
		}
	}
	rs.frames.OnRendererShutdown()
	for i := range rs.slots {
		rs.slots[i].executed = nil
		rs.slots[i].pending = nil
	}
	return nil
}
