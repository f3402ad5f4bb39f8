/**
 * @brief In-memory graphics backend for tests. Queues only advance their
 * completed fence when told to, buffers are plain byte slices, and every
 * recorded command stays inspectable after submission.
 */
package rendertest

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

type Buffer struct {
	name      string
	desc      metadata.BufferDesc
	data      []byte
	mapped    bool
	destroyed bool
}

func (b *Buffer) Name() string { return b.name }
func (b *Buffer) Size() uint64 { return b.desc.Size }

func (b *Buffer) Map() ([]byte, error) {
	if !b.desc.CpuVisible {
		return nil, fmt.Errorf("buffer %q is not CPU visible", b.name)
	}
	if b.destroyed {
		return nil, fmt.Errorf("buffer %q already destroyed", b.name)
	}
	b.mapped = true
	return b.data, nil
}

func (b *Buffer) Unmap()          { b.mapped = false }
func (b *Buffer) Destroy()        { b.destroyed = true }
func (b *Buffer) Data() []byte    { return b.data }
func (b *Buffer) Mapped() bool    { return b.mapped }
func (b *Buffer) Destroyed() bool { return b.destroyed }

type Texture struct {
	name      string
	desc      metadata.TextureDesc
	destroyed bool
}

func (t *Texture) Name() string               { return t.name }
func (t *Texture) Desc() metadata.TextureDesc { return t.desc }
func (t *Texture) Destroy()                   { t.destroyed = true }
func (t *Texture) Destroyed() bool            { return t.destroyed }

/**
 * @brief Descriptor table backed by maps. Writes are keyed by index so a
 * test can assert exactly which resource a slot points at.
 */
type Table struct {
	mu            sync.Mutex
	capacity      [metadata.DomainCount]uint32
	TextureWrites map[metadata.BindlessIndex]renderer.Texture
	BufferWrites  map[metadata.BindlessIndex]renderer.Buffer
	ClearedSlots  []metadata.BindlessIndex
}

func newTable(initialCapacity uint32) *Table {
	t := &Table{
		TextureWrites: make(map[metadata.BindlessIndex]renderer.Texture),
		BufferWrites:  make(map[metadata.BindlessIndex]renderer.Buffer),
	}
	for d := range t.capacity {
		t.capacity[d] = initialCapacity
	}
	return t
}

func (t *Table) PointAtTexture(index metadata.BindlessIndex, texture renderer.Texture) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if uint32(index) >= t.capacity[metadata.DomainTextures] {
		return fmt.Errorf("texture slot %d beyond capacity %d", index, t.capacity[metadata.DomainTextures])
	}
	t.TextureWrites[index] = texture
	return nil
}

func (t *Table) PointAtBuffer(index metadata.BindlessIndex, buffer renderer.Buffer, stride uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if uint32(index) >= t.capacity[metadata.DomainBuffers] {
		return fmt.Errorf("buffer slot %d beyond capacity %d", index, t.capacity[metadata.DomainBuffers])
	}
	t.BufferWrites[index] = buffer
	return nil
}

func (t *Table) CopyDescriptor(domain metadata.BindlessDomain, dst, src metadata.BindlessIndex) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch domain {
	case metadata.DomainTextures:
		t.TextureWrites[dst] = t.TextureWrites[src]
	case metadata.DomainBuffers:
		t.BufferWrites[dst] = t.BufferWrites[src]
	}
	return nil
}

func (t *Table) ClearSlot(domain metadata.BindlessDomain, index metadata.BindlessIndex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch domain {
	case metadata.DomainTextures:
		delete(t.TextureWrites, index)
	case metadata.DomainBuffers:
		delete(t.BufferWrites, index)
	}
	t.ClearedSlots = append(t.ClearedSlots, index)
}

func (t *Table) Capacity(domain metadata.BindlessDomain) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capacity[domain]
}

func (t *Table) EnsureCapacity(domain metadata.BindlessDomain, capacity uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if capacity > t.capacity[domain] {
		t.capacity[domain] = capacity
	}
	return nil
}

/**
 * @brief A queue whose completed fence only moves through Complete,
 * Wait or Flush. Signal publishes values without completing them, so a
 * test controls exactly when work "finishes".
 */
type Queue struct {
	role      metadata.QueueRole
	name      string
	mu        sync.Mutex
	signaled  metadata.FenceValue
	completed atomic.Uint64

	/** @brief Batches in submission order, one inner slice per Submit call. */
	Submissions [][]renderer.CommandList
	Waits       []metadata.FenceValue

	SubmitErr error
	SignalErr error
}

func (q *Queue) Role() metadata.QueueRole { return q.role }
func (q *Queue) Name() string             { return q.name }

func (q *Queue) Submit(lists ...renderer.CommandList) error {
	if q.SubmitErr != nil {
		return q.SubmitErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := make([]renderer.CommandList, len(lists))
	copy(batch, lists)
	q.Submissions = append(q.Submissions, batch)
	return nil
}

func (q *Queue) Signal() (metadata.FenceValue, error) {
	if q.SignalErr != nil {
		return 0, q.SignalErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.signaled++
	return q.signaled, nil
}

func (q *Queue) Wait(value metadata.FenceValue) error {
	q.mu.Lock()
	q.Waits = append(q.Waits, value)
	q.mu.Unlock()
	// Nothing executes for real, so waiting means declaring it done.
	q.Complete(value)
	return nil
}

func (q *Queue) Completed() metadata.FenceValue {
	return metadata.FenceValue(q.completed.Load())
}

func (q *Queue) Flush() error {
	q.mu.Lock()
	signaled := q.signaled
	q.mu.Unlock()
	q.Complete(signaled)
	return nil
}

/** @brief Advances the completed fence, never backwards. */
func (q *Queue) Complete(value metadata.FenceValue) {
	for {
		current := q.completed.Load()
		if uint64(value) <= current {
			return
		}
		if q.completed.CompareAndSwap(current, uint64(value)) {
			return
		}
	}
}

/** @brief The last value Signal returned. */
func (q *Queue) LastSignaled() metadata.FenceValue {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.signaled
}

type TextureCopy struct {
	Dst     renderer.Texture
	Src     renderer.Buffer
	Regions []metadata.TextureUploadRegion
}

type BufferCopy struct {
	Dst       renderer.Buffer
	DstOffset uint64
	Src       renderer.Buffer
	SrcOffset uint64
	Size      uint64
}

type Barrier struct {
	Resource string
	State    metadata.ResourceState
}

type List struct {
	name     string
	Recorder *Recorder
}

func (l *List) Name() string { return l.name }

/** @brief Records everything and executes nothing. */
type Recorder struct {
	name string
	role metadata.QueueRole

	/** @brief Operation names in recording order. */
	Ops           []string
	TextureCopies []TextureCopy
	BufferCopies  []BufferCopy
	Barriers      []Barrier
	ended         bool
}

func (r *Recorder) Name() string             { return r.name }
func (r *Recorder) Role() metadata.QueueRole { return r.role }

func (r *Recorder) RequireBufferState(buffer renderer.Buffer, state metadata.ResourceState) {
	r.Barriers = append(r.Barriers, Barrier{Resource: buffer.Name(), State: state})
	r.Ops = append(r.Ops, "require_buffer_state")
}

func (r *Recorder) RequireTextureState(texture renderer.Texture, state metadata.ResourceState) {
	r.Barriers = append(r.Barriers, Barrier{Resource: texture.Name(), State: state})
	r.Ops = append(r.Ops, "require_texture_state")
}

func (r *Recorder) BeginTrackingBufferState(buffer renderer.Buffer, state metadata.ResourceState) {
	r.Ops = append(r.Ops, "begin_tracking_buffer")
}

func (r *Recorder) BeginTrackingTextureState(texture renderer.Texture, state metadata.ResourceState) {
	r.Ops = append(r.Ops, "begin_tracking_texture")
}

func (r *Recorder) FlushBarriers() {
	r.Ops = append(r.Ops, "flush_barriers")
}

func (r *Recorder) CopyBuffer(dst renderer.Buffer, dstOffset uint64, src renderer.Buffer, srcOffset uint64, size uint64) {
	r.BufferCopies = append(r.BufferCopies, BufferCopy{
		Dst: dst, DstOffset: dstOffset, Src: src, SrcOffset: srcOffset, Size: size,
	})
	r.Ops = append(r.Ops, "copy_buffer")
}

func (r *Recorder) CopyBufferToTexture(dst renderer.Texture, src renderer.Buffer, regions []metadata.TextureUploadRegion) {
	copied := make([]metadata.TextureUploadRegion, len(regions))
	copy(copied, regions)
	r.TextureCopies = append(r.TextureCopies, TextureCopy{Dst: dst, Src: src, Regions: copied})
	r.Ops = append(r.Ops, "copy_buffer_to_texture")
}

func (r *Recorder) SetViewport(viewport metadata.Viewport) { r.Ops = append(r.Ops, "set_viewport") }
func (r *Recorder) SetScissor(x, y, width, height uint32)  { r.Ops = append(r.Ops, "set_scissor") }

func (r *Recorder) BindRenderTargets(colors []renderer.Texture, depth renderer.Texture) {
	r.Ops = append(r.Ops, "bind_render_targets")
}

func (r *Recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.Ops = append(r.Ops, "draw")
}

func (r *Recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	r.Ops = append(r.Ops, "draw_indexed")
}

func (r *Recorder) Dispatch(groupsX, groupsY, groupsZ uint32) {
	r.Ops = append(r.Ops, "dispatch")
}

func (r *Recorder) End() (renderer.CommandList, error) {
	if r.ended {
		return nil, fmt.Errorf("recorder %q already ended", r.name)
	}
	r.ended = true
	return &List{name: r.name, Recorder: r}, nil
}

type Surface struct {
	name         string
	width        uint32
	height       uint32
	backBuffers  []*Texture
	depth        *Texture
	current      int
	shouldResize bool
	PresentErr   error
	PresentCount int
	ResizeCount  int
}

func (s *Surface) Name() string       { return s.name }
func (s *Surface) ShouldResize() bool { return s.shouldResize }

func (s *Surface) Resize() error {
	s.shouldResize = false
	s.ResizeCount++
	return nil
}

func (s *Surface) Present() error {
	s.PresentCount++
	if s.PresentErr != nil {
		return s.PresentErr
	}
	s.current = (s.current + 1) % len(s.backBuffers)
	return nil
}

func (s *Surface) CurrentBackBufferIndex() int { return s.current }
func (s *Surface) BackBufferCount() int        { return len(s.backBuffers) }

func (s *Surface) CurrentBackBuffer() renderer.Texture { return s.backBuffers[s.current] }
func (s *Surface) DepthBuffer() renderer.Texture       { return s.depth }
func (s *Surface) Width() uint32                       { return s.width }
func (s *Surface) Height() uint32                      { return s.height }

/** @brief Arms the resize signal and moves the back buffer index. */
func (s *Surface) TriggerResize(width, height uint32, nextIndex int) {
	s.width = width
	s.height = height
	s.current = nextIndex % len(s.backBuffers)
	s.shouldResize = true
}

type Backend struct {
	mu       sync.Mutex
	queues   map[metadata.QueueRole]*Queue
	table    *Table
	surface  *Surface
	Buffers  []*Buffer
	Textures []*Texture
	/** @brief Every recorder ever acquired, in order. */
	Recorders []*Recorder

	CreateBufferErr  error
	CreateTextureErr error
}

func NewBackend() *Backend {
	b := &Backend{
		queues: make(map[metadata.QueueRole]*Queue),
		table:  newTable(1024),
	}
	for role := metadata.QueueRoleGraphics; role < metadata.QueueRoleCount; role++ {
		b.queues[role] = &Queue{role: role, name: role.String()}
	}
	b.surface = &Surface{
		name:   "test_surface",
		width:  1280,
		height: 720,
		backBuffers: []*Texture{
			{name: "backbuffer_0"},
			{name: "backbuffer_1"},
			{name: "backbuffer_2"},
		},
		depth: &Texture{name: "depth"},
	}
	return b
}

func (b *Backend) Name() string { return "rendertest" }

func (b *Backend) CreateBuffer(desc metadata.BufferDesc) (renderer.Buffer, error) {
	if b.CreateBufferErr != nil {
		return nil, b.CreateBufferErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	buffer := &Buffer{name: desc.Name, desc: desc, data: make([]byte, desc.Size)}
	b.Buffers = append(b.Buffers, buffer)
	return buffer, nil
}

func (b *Backend) CreateTexture(desc metadata.TextureDesc) (renderer.Texture, error) {
	if b.CreateTextureErr != nil {
		return nil, b.CreateTextureErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	texture := &Texture{name: desc.Name, desc: desc}
	b.Textures = append(b.Textures, texture)
	return texture, nil
}

func (b *Backend) DescriptorTable() renderer.DescriptorTable { return b.table }

/** @brief The concrete table, for assertions on descriptor writes. */
func (b *Backend) Table() *Table { return b.table }

func (b *Backend) Queue(role metadata.QueueRole) renderer.CommandQueue {
	return b.queues[role]
}

/** @brief The concrete queue, for manual fence advancement. */
func (b *Backend) TestQueue(role metadata.QueueRole) *Queue {
	return b.queues[role]
}

func (b *Backend) AcquireCommandRecorder(role metadata.QueueRole, name string) (renderer.CommandRecorder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	recorder := &Recorder{name: name, role: role}
	b.Recorders = append(b.Recorders, recorder)
	return recorder, nil
}

func (b *Backend) Surface() *Surface { return b.surface }

func (b *Backend) Shutdown() error { return nil }

/** @brief The most recently created buffer whose name contains substr. */
func (b *Backend) FindBuffer(substr string) *Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.Buffers) - 1; i >= 0; i-- {
		if strings.Contains(b.Buffers[i].name, substr) {
			return b.Buffers[i]
		}
	}
	return nil
}

/** @brief The most recently created texture whose name contains substr. */
func (b *Backend) FindTexture(substr string) *Texture {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.Textures) - 1; i >= 0; i-- {
		if strings.Contains(b.Textures[i].name, substr) {
			return b.Textures[i]
		}
	}
	return nil
}
