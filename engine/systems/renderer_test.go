package systems_test

import (
	"errors"
	"testing"

	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/systems"
)

func newRenderer(t *testing.T, f *coreFixture) *systems.RendererSystem {
	t.Helper()
	rs, err := systems.NewRendererSystem(
		f.backend, f.backend.Surface(), f.frames, f.staging, f.uploads,
		systems.RendererSystemConfig{},
	)
	if err != nil {
		t.Fatalf("NewRendererSystem: %v", err)
	}
	return rs
}

func runFrame(t *testing.T, rs *systems.RendererSystem) {
	t.Helper()
	if err := rs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := rs.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
}

func TestRendererSlotRotation(t *testing.T) {
	f := newCore(t, 3)
	rs := newRenderer(t, f)

	for frame := 0; frame < 4; frame++ {
		wantSlot := frame % 3
		if rs.CurrentSlot() != wantSlot {
			t.Fatalf("frame %d: slot = %d, want %d", frame, rs.CurrentSlot(), wantSlot)
		}
		if rs.FrameIndex() != uint64(frame) {
			t.Fatalf("frame %d: index = %d", frame, rs.FrameIndex())
		}
		runFrame(t, rs)
	}
	if f.backend.Surface().PresentCount != 4 {
		t.Fatalf("PresentCount = %d, want 4", f.backend.Surface().PresentCount)
	}
}

func TestRendererWaitsSlotFencesOnReuse(t *testing.T) {
	f := newCore(t, 3)
	rs := newRenderer(t, f)
	graphics := f.backend.TestQueue(metadata.QueueRoleGraphics)

	if err := rs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	recorder, err := rs.AcquireCommandRecorder(metadata.QueueRoleGraphics, "slot0_work", true)
	if err != nil {
		t.Fatalf("AcquireCommandRecorder: %v", err)
	}
	if err := recorder.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := rs.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	fence := graphics.LastSignaled()

	// Slots 1 and 2 submitted nothing, so no waits happen for them.
	runFrame(t, rs)
	runFrame(t, rs)
	if len(graphics.Waits) != 0 {
		t.Fatalf("waits before slot reuse: %v", graphics.Waits)
	}

	// Reopening slot 0 must wait its recorded fence.
	runFrame(t, rs)
	if len(graphics.Waits) != 1 || graphics.Waits[0] != fence {
		t.Fatalf("Waits = %v, want [%d]", graphics.Waits, fence)
	}
}

func TestRendererDeferredListsBatchPerQueue(t *testing.T) {
	f := newCore(t, 3)
	rs := newRenderer(t, f)
	graphics := f.backend.TestQueue(metadata.QueueRoleGraphics)
	compute := f.backend.TestQueue(metadata.QueueRoleCompute)

	if err := rs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	names := []struct {
		role metadata.QueueRole
		name string
	}{
		{metadata.QueueRoleGraphics, "depth"},
		{metadata.QueueRoleGraphics, "opaque"},
		{metadata.QueueRoleCompute, "luts"},
		{metadata.QueueRoleGraphics, "overlay"},
	}
	for _, n := range names {
		recorder, err := rs.AcquireCommandRecorder(n.role, n.name, false)
		if err != nil {
			t.Fatalf("AcquireCommandRecorder %s: %v", n.name, err)
		}
		if err := recorder.Release(); err != nil {
			t.Fatalf("Release %s: %v", n.name, err)
		}
	}
	if len(graphics.Submissions) != 0 || len(compute.Submissions) != 0 {
		t.Fatal("deferred lists submitted before EndFrame")
	}
	if err := rs.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}

	// depth+opaque batch together; overlay follows the compute break.
	if len(graphics.Submissions) != 2 {
		t.Fatalf("graphics batches = %d, want 2", len(graphics.Submissions))
	}
	if len(graphics.Submissions[0]) != 2 || len(graphics.Submissions[1]) != 1 {
		t.Fatalf("graphics batch sizes = %d, %d", len(graphics.Submissions[0]), len(graphics.Submissions[1]))
	}
	if graphics.Submissions[0][0].Name() != "depth" || graphics.Submissions[0][1].Name() != "opaque" {
		t.Fatalf("first batch = %s, %s", graphics.Submissions[0][0].Name(), graphics.Submissions[0][1].Name())
	}
	if len(compute.Submissions) != 1 || compute.Submissions[0][0].Name() != "luts" {
		t.Fatalf("compute submissions = %v", compute.Submissions)
	}
}

func TestRendererImmediateRecorderSubmitsAtRelease(t *testing.T) {
	f := newCore(t, 3)
	rs := newRenderer(t, f)
	graphics := f.backend.TestQueue(metadata.QueueRoleGraphics)

	if err := rs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	recorder, err := rs.AcquireCommandRecorder(metadata.QueueRoleGraphics, "now", true)
	if err != nil {
		t.Fatalf("AcquireCommandRecorder: %v", err)
	}
	if err := recorder.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if len(graphics.Submissions) != 1 {
		t.Fatalf("Submissions = %d, want 1 before EndFrame", len(graphics.Submissions))
	}
	if err := recorder.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if len(graphics.Submissions) != 1 {
		t.Fatal("second Release submitted again")
	}
	if err := rs.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
}

func TestRendererExecutedHookRunsOnSlotReuse(t *testing.T) {
	f := newCore(t, 3)
	rs := newRenderer(t, f)

	ran := 0
	if err := rs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	recorder, err := rs.AcquireCommandRecorder(metadata.QueueRoleGraphics, "hooked", false)
	if err != nil {
		t.Fatalf("AcquireCommandRecorder: %v", err)
	}
	recorder.SetOnExecuted(func() { ran++ })
	if err := recorder.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := rs.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	if ran != 0 {
		t.Fatal("hook ran before the slot's work completed")
	}

	runFrame(t, rs)
	runFrame(t, rs)
	if ran != 0 {
		t.Fatal("hook ran on a different slot")
	}
	runFrame(t, rs)
	if ran != 1 {
		t.Fatalf("hook ran %d times on slot reuse, want 1", ran)
	}
	runFrame(t, rs)
	runFrame(t, rs)
	runFrame(t, rs)
	if ran != 1 {
		t.Fatalf("hook ran again: %d", ran)
	}
}

func TestRendererPresentFailureStillRotates(t *testing.T) {
	f := newCore(t, 3)
	rs := newRenderer(t, f)
	f.backend.Surface().PresentErr = errors.New("device removed")

	if err := rs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := rs.EndFrame(); err != nil {
		t.Fatalf("EndFrame must swallow present failures, got %v", err)
	}
	if rs.CurrentSlot() != 1 || rs.FrameIndex() != 1 {
		t.Fatalf("slot %d index %d after present failure", rs.CurrentSlot(), rs.FrameIndex())
	}
}

func TestRendererResizeDrainsBeforeRecreating(t *testing.T) {
	f := newCore(t, 3)
	rs := newRenderer(t, f)
	graphics := f.backend.TestQueue(metadata.QueueRoleGraphics)

	if err := rs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	recorder, err := rs.AcquireCommandRecorder(metadata.QueueRoleGraphics, "pre_resize", true)
	if err != nil {
		t.Fatalf("AcquireCommandRecorder: %v", err)
	}
	if err := recorder.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	released := false
	if err := f.frames.RegisterDeferredAction(func() error {
		released = true
		return nil
	}); err != nil {
		t.Fatalf("RegisterDeferredAction: %v", err)
	}
	if err := rs.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}

	f.backend.Surface().TriggerResize(1920, 1080, 2)
	if err := rs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame with resize pending: %v", err)
	}
	if graphics.Completed() < graphics.LastSignaled() {
		t.Fatalf("resize did not drain the queue: completed %d, signaled %d",
			graphics.Completed(), graphics.LastSignaled())
	}
	if !released {
		t.Fatal("resize did not run deferred releases")
	}
	if f.backend.Surface().ResizeCount != 1 {
		t.Fatalf("ResizeCount = %d", f.backend.Surface().ResizeCount)
	}
	if rs.CurrentSlot() != 2 {
		t.Fatalf("slot = %d after resize, want the swapchain's 2", rs.CurrentSlot())
	}
	if err := rs.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
}

type scriptedPass struct {
	name string
	prep func(*systems.FrameContext) error
	run  func(*systems.FrameContext) error
}

func (p *scriptedPass) Name() string { return p.name }

func (p *scriptedPass) Prepare(frame *systems.FrameContext) error {
	if p.prep == nil {
		return nil
	}
	return p.prep(frame)
}

func (p *scriptedPass) Execute(frame *systems.FrameContext) error { return p.run(frame) }

func TestRendererPassFailureDoesNotAbortFrame(t *testing.T) {
	f := newCore(t, 3)
	rs := newRenderer(t, f)

	order := []string{}
	rs.AddPass(&scriptedPass{name: "boom", run: func(*systems.FrameContext) error {
		order = append(order, "boom")
		panic("shader blew up")
	}})
	rs.AddPass(&scriptedPass{name: "fails", run: func(*systems.FrameContext) error {
		order = append(order, "fails")
		return errors.New("no pipeline")
	}})
	rs.AddPass(&scriptedPass{name: "after", run: func(frame *systems.FrameContext) error {
		order = append(order, "after")
		if frame.Slot != 0 || frame.Surface == nil || frame.Renderer != rs {
			t.Errorf("frame context = %+v", frame)
		}
		return nil
	}})

	if err := rs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := rs.Render(metadata.View{}, nil, nil); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(order) != 3 || order[2] != "after" {
		t.Fatalf("pass order = %v", order)
	}
	if err := rs.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
}

func TestRendererRecorderOutsideFrameFails(t *testing.T) {
	f := newCore(t, 3)
	rs := newRenderer(t, f)

	if _, err := rs.AcquireCommandRecorder(metadata.QueueRoleGraphics, "stray", false); err == nil {
		t.Fatal("recorder handed out outside a frame")
	}
	if err := rs.Render(metadata.View{}, nil, nil); err == nil {
		t.Fatal("Render allowed outside a frame")
	}
	if err := rs.EndFrame(); err == nil {
		t.Fatal("EndFrame allowed outside a frame")
	}
}

func TestRendererPreparesAllPassesBeforeAnyExecute(t *testing.T) {
	f := newCore(t, 3)
	rs := newRenderer(t, f)

	order := []string{}
	note := func(step string) func(*systems.FrameContext) error {
		return func(*systems.FrameContext) error {
			order = append(order, step)
			return nil
		}
	}
	rs.AddPass(&scriptedPass{name: "depth", prep: note("depth.prepare"), run: note("depth.execute")})
	rs.AddPass(&scriptedPass{name: "opaque", prep: note("opaque.prepare"), run: note("opaque.execute")})

	if err := rs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := rs.Render(metadata.View{}, nil, nil); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := []string{"depth.prepare", "opaque.prepare", "depth.execute", "opaque.execute"}
	if len(order) != len(want) {
		t.Fatalf("phase order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("phase order = %v, want %v", order, want)
		}
	}
	if err := rs.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
}

func TestRendererUploadsRetireBeforePartitionRotation(t *testing.T) {
	f := newCore(t, 2)
	rs, err := systems.NewRendererSystem(
		f.backend, f.backend.Surface(), f.frames, f.staging, f.uploads,
		systems.RendererSystemConfig{FramesInFlight: 2},
	)
	if err != nil {
		t.Fatalf("NewRendererSystem: %v", err)
	}
	dst, err := f.backend.CreateBuffer(metadata.BufferDesc{
		Name:  "per_frame_constants",
		Size:  256,
		Usage: metadata.BufferUsageCopyDest,
	})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}

	// Each frame flushes an upload batch, so every slot reuse has a
	// retire fence to observe.
	for frame := 0; frame < 6; frame++ {
		if err := rs.BeginFrame(); err != nil {
			t.Fatalf("frame %d BeginFrame: %v", frame, err)
		}
		if _, err := f.uploads.SubmitBufferUpload(renderer.BufferUploadRequest{
			Name: "per_frame_constants",
			Dst:  dst,
			Size: 256,
			Data: make([]byte, 256),
		}); err != nil {
			t.Fatalf("frame %d SubmitBufferUpload: %v", frame, err)
		}
		if err := rs.EndFrame(); err != nil {
			t.Fatalf("frame %d EndFrame: %v", frame, err)
		}
	}

	if got := f.staging.Stats().PartitionReuseWarnings; got != 0 {
		t.Fatalf("partition reuse warnings = %d, want 0", got)
	}
}
