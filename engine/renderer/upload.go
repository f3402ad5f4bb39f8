package renderer

import (
	"fmt"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/**
 * @brief Fills a mapped staging span with upload payload. Returning false
 * abandons the upload: no copy is recorded and the ticket completes with
 * ErrProducerFailed. The span is only valid during the call.
 */
type UploadProducer func(dst []byte) bool

/** @brief A request to upload texture data. */
type TextureUploadRequest struct {
	Name string
	Dst  Texture
	/**
	 * @brief The subresources to upload, in request order. Empty uploads
	 * the destination's full chain, every mip of every array slice.
	 */
	Subresources []metadata.UploadSubresource
	/**
	 * @brief Packed texel data in subresource order, tight rows unless a
	 * subresource declares its own pitches. The coordinator repacks rows
	 * to the aligned staging layout. Exactly one of Data and Producer
	 * must be set.
	 */
	Data     []byte
	Producer UploadProducer
	Priority metadata.UploadPriority
}

/** @brief A request to upload a byte range into a GPU buffer. */
type BufferUploadRequest struct {
	Name      string
	Dst       Buffer
	DstOffset uint64
	Size      uint64
	Data      []byte
	Producer  UploadProducer
	/** @brief State the buffer transitions to after the copy. Zero picks a default. */
	FinalState metadata.ResourceState
	Priority   metadata.UploadPriority
}

/** @brief The terminal outcome of one upload ticket. */
type UploadResult struct {
	Ticket        metadata.UploadTicket
	Completed     bool
	Err           error
	BytesUploaded uint64
	Fence         metadata.FenceValue
}

type uploadEntry struct {
	fence metadata.FenceValue
	err   error
	bytes uint64
	/** @brief Frame tick the completed result is collected on, zero while open. */
	collectAfter uint64
}

/**
 * @brief Frame ticks a completed result stays retrievable before the
 * coordinator collects it. Wide enough that every per-frame poller sees
 * the result; fire-and-forget submitters simply never accumulate.
 */
const ticketRetentionFrames uint64 = 16

/**
 * @brief Turns upload requests into recorded transfer work and tickets.
 * Submit validates, stages and records immediately; Flush closes the
 * batch, hands it to the transfer queue and stamps every ticket of the
 * batch with the signaled fence. A ticket is complete once the transfer
 * queue's completed fence reaches its stamp.
 *
 * Owned by the render thread; not safe for concurrent submission.
 */
type UploadCoordinator struct {
	backend GraphicsBackend
	staging StagingProvider
	queue   CommandQueue

	recorder   CommandRecorder
	batchCount uint64

	nextTicket uint64
	entries    map[metadata.UploadTicket]*uploadEntry
	/** @brief Tickets recorded into the open batch, waiting for a fence. */
	inBatch []metadata.UploadTicket
	/** @brief OnFrameStart ticks, drives completed-ticket collection. */
	frameTick uint64
}

func NewUploadCoordinator(backend GraphicsBackend, staging StagingProvider) (*UploadCoordinator, error) {
	if backend == nil || staging == nil {
		return nil, fmt.Errorf("upload coordinator needs a backend and a staging provider")
	}
	queue := backend.Queue(metadata.QueueRoleTransfer)
	if queue == nil {
		return nil, fmt.Errorf("backend exposes no transfer queue")
	}
	return &UploadCoordinator{
		backend: backend,
		staging: staging,
		queue:   queue,
		entries: make(map[metadata.UploadTicket]*uploadEntry),
	}, nil
}

/**
 * @brief Per-frame tick, called once by the controller. Propagates the
 * transfer queue's progress into the staging provider, then collects
 * completed tickets nobody retrieved within the retention window so
 * fire-and-forget submitters do not pile entries up forever.
 */
func (u *UploadCoordinator) OnFrameStart() {
	u.staging.RetireCompleted(u.queue.Completed())
	u.frameTick++
	for ticket, entry := range u.entries {
		if !u.IsComplete(ticket) {
			continue
		}
		if entry.collectAfter == 0 {
			entry.collectAfter = u.frameTick + ticketRetentionFrames
			continue
		}
		if u.frameTick >= entry.collectAfter {
			delete(u.entries, ticket)
		}
	}
}

/**
 * @brief Stages and records a full texture upload. The returned ticket
 * tracks completion on the transfer queue. A false-returning producer
 * abandons the upload without recording a copy.
 */
func (u *UploadCoordinator) SubmitTextureUpload(req TextureUploadRequest) (metadata.UploadTicket, error) {
	if req.Dst == nil {
		return metadata.InvalidUploadTicket, fmt.Errorf("texture upload %q: nil destination: %w", req.Name, ErrInvalidRequest)
	}
	if (req.Data == nil) == (req.Producer == nil) {
		return metadata.InvalidUploadTicket, fmt.Errorf("texture upload %q: exactly one of data and producer must be set: %w",
			req.Name, ErrInvalidRequest)
	}

	desc := req.Dst.Desc()
	var plan metadata.TextureUploadPlan
	var err error
	if len(req.Subresources) > 0 {
		plan, err = PlanTextureSubresources(desc, req.Subresources)
	} else {
		plan, err = PlanTextureUpload(desc)
	}
	if err != nil {
		return metadata.InvalidUploadTicket, err
	}
	info, err := metadata.InfoForFormat(desc.Format)
	if err != nil {
		return metadata.InvalidUploadTicket, fmt.Errorf("texture upload %q: %s: %w", req.Name, err.Error(), ErrUnsupportedFormat)
	}
	if req.Data != nil {
		need := sourcePlanBytes(plan, info, req.Subresources)
		if uint64(len(req.Data)) < need {
			return metadata.InvalidUploadTicket, fmt.Errorf("texture upload %q: %d payload bytes, plan needs %d: %w",
				req.Name, len(req.Data), need, ErrInvalidRequest)
		}
	}

	alloc, err := u.staging.Allocate(plan.TotalBytes, req.Name, uint64(metadata.PlacementAlignment))
	if err != nil {
		return metadata.InvalidUploadTicket, fmt.Errorf("texture upload %q: %w", req.Name, err)
	}

	ticket := u.newTicket()
	if req.Producer != nil {
		if !req.Producer(alloc.Mapped) {
			u.entries[ticket].err = fmt.Errorf("texture upload %q: %w", req.Name, ErrProducerFailed)
			return ticket, nil
		}
	} else {
		repackTexels(alloc.Mapped, req.Data, plan, info, req.Subresources)
	}

	recorder, err := u.ensureRecorder()
	if err != nil {
		u.entries[ticket].err = err
		return ticket, nil
	}
	regions := make([]metadata.TextureUploadRegion, len(plan.Regions))
	copy(regions, plan.Regions)
	for i := range regions {
		regions[i].BufferOffset += alloc.Offset
	}
	recorder.RequireTextureState(req.Dst, metadata.ResourceStateCopyDest)
	recorder.FlushBarriers()
	recorder.CopyBufferToTexture(req.Dst, alloc.Buffer, regions)
	recorder.RequireTextureState(req.Dst, metadata.ResourceStateShaderResource)

	u.entries[ticket].bytes = plan.TotalBytes
	u.inBatch = append(u.inBatch, ticket)
	return ticket, nil
}

/** @brief Stages and records a buffer range upload. */
func (u *UploadCoordinator) SubmitBufferUpload(req BufferUploadRequest) (metadata.UploadTicket, error) {
	if req.Dst == nil {
		return metadata.InvalidUploadTicket, fmt.Errorf("buffer upload %q: nil destination: %w", req.Name, ErrInvalidRequest)
	}
	if req.Size == 0 {
		return metadata.InvalidUploadTicket, fmt.Errorf("buffer upload %q: zero size: %w", req.Name, ErrInvalidRequest)
	}
	if req.DstOffset+req.Size > req.Dst.Size() {
		return metadata.InvalidUploadTicket, fmt.Errorf("buffer upload %q: range [%d,%d) exceeds buffer size %d: %w",
			req.Name, req.DstOffset, req.DstOffset+req.Size, req.Dst.Size(), ErrInvalidRequest)
	}
	if (req.Data == nil) == (req.Producer == nil) {
		return metadata.InvalidUploadTicket, fmt.Errorf("buffer upload %q: exactly one of data and producer must be set: %w",
			req.Name, ErrInvalidRequest)
	}
	if req.Data != nil && uint64(len(req.Data)) < req.Size {
		return metadata.InvalidUploadTicket, fmt.Errorf("buffer upload %q: %d payload bytes for %d byte upload: %w",
			req.Name, len(req.Data), req.Size, ErrInvalidRequest)
	}

	alloc, err := u.staging.Allocate(req.Size, req.Name, 0)
	if err != nil {
		return metadata.InvalidUploadTicket, fmt.Errorf("buffer upload %q: %w", req.Name, err)
	}

	ticket := u.newTicket()
	if req.Producer != nil {
		if !req.Producer(alloc.Mapped) {
			u.entries[ticket].err = fmt.Errorf("buffer upload %q: %w", req.Name, ErrProducerFailed)
			return ticket, nil
		}
	} else {
		copy(alloc.Mapped, req.Data[:req.Size])
	}

	recorder, err := u.ensureRecorder()
	if err != nil {
		u.entries[ticket].err = err
		return ticket, nil
	}
	finalState := req.FinalState
	if finalState == metadata.ResourceStateUndefined {
		finalState = metadata.ResourceStateShaderResource
	}
	recorder.RequireBufferState(req.Dst, metadata.ResourceStateCopyDest)
	recorder.FlushBarriers()
	recorder.CopyBuffer(req.Dst, req.DstOffset, alloc.Buffer, alloc.Offset, req.Size)
	recorder.RequireBufferState(req.Dst, finalState)

	u.entries[ticket].bytes = req.Size
	u.inBatch = append(u.inBatch, ticket)
	return ticket, nil
}

/**
 * @brief Closes the open batch, submits it to the transfer queue and
 * signals a fence that stamps every ticket recorded since the previous
 * flush. With no open batch this is a no-op returning the last known
 * completed fence.
 */
func (u *UploadCoordinator) Flush() (metadata.FenceValue, error) {
	if u.recorder == nil {
		return u.queue.Completed(), nil
	}
	recorder := u.recorder
	u.recorder = nil
	batch := u.inBatch
	u.inBatch = nil

	list, err := recorder.End()
	if err != nil {
		u.failBatch(batch, err)
		return 0, fmt.Errorf("closing upload batch: %w: %s", ErrSubmissionFailed, err.Error())
	}
	if err := u.queue.Submit(list); err != nil {
		u.failBatch(batch, err)
		return 0, fmt.Errorf("submitting upload batch: %w: %s", ErrSubmissionFailed, err.Error())
	}
	fence, err := u.queue.Signal()
	if err != nil {
		u.failBatch(batch, err)
		return 0, fmt.Errorf("signaling upload batch: %w: %s", ErrSubmissionFailed, err.Error())
	}
	for _, ticket := range batch {
		u.entries[ticket].fence = fence
	}
	core.LogDebug("upload batch flushed: %d tickets behind fence %d", len(batch), fence)
	return fence, nil
}

/**
 * @brief True once the ticket's work can no longer be in flight: either
 * its fence has been observed complete or it terminated with an error
 * before submission.
 */
func (u *UploadCoordinator) IsComplete(ticket metadata.UploadTicket) bool {
	entry, ok := u.entries[ticket]
	if !ok {
		return false
	}
	if entry.err != nil {
		return true
	}
	return entry.fence != 0 && u.queue.Completed() >= entry.fence
}

/**
 * @brief Fetches a ticket's result. The second return is false while the
 * upload is still in flight; a completed result is retained until it has
 * been retrieved once. Unknown tickets fail with ErrUnknownTicket.
 */
func (u *UploadCoordinator) TryGetResult(ticket metadata.UploadTicket) (UploadResult, bool, error) {
	entry, ok := u.entries[ticket]
	if !ok {
		return UploadResult{}, false, fmt.Errorf("ticket %d: %w", ticket, ErrUnknownTicket)
	}
	if !u.IsComplete(ticket) {
		return UploadResult{Ticket: ticket}, false, nil
	}
	result := UploadResult{
		Ticket:        ticket,
		Completed:     entry.err == nil,
		Err:           entry.err,
		BytesUploaded: entry.bytes,
		Fence:         entry.fence,
	}
	delete(u.entries, ticket)
	return result, true, nil
}

/** @brief Blocks until every submitted upload has completed on the GPU. */
func (u *UploadCoordinator) WaitIdle() error {
	if _, err := u.Flush(); err != nil {
		return err
	}
	return u.queue.Flush()
}

func (u *UploadCoordinator) PendingTickets() int {
	return len(u.entries)
}

func (u *UploadCoordinator) newTicket() metadata.UploadTicket {
	u.nextTicket++
	ticket := metadata.UploadTicket(u.nextTicket)
	u.entries[ticket] = &uploadEntry{}
	return ticket
}

func (u *UploadCoordinator) ensureRecorder() (CommandRecorder, error) {
	if u.recorder != nil {
		return u.recorder, nil
	}
	u.batchCount++
	recorder, err := u.backend.AcquireCommandRecorder(metadata.QueueRoleTransfer,
		fmt.Sprintf("upload_batch_%d", u.batchCount))
	if err != nil {
		return nil, fmt.Errorf("acquiring upload recorder: %w: %s", ErrSubmissionFailed, err.Error())
	}
	u.recorder = recorder
	return recorder, nil
}

func (u *UploadCoordinator) failBatch(batch []metadata.UploadTicket, cause error) {
	for _, ticket := range batch {
		if entry, ok := u.entries[ticket]; ok && entry.err == nil {
			entry.err = fmt.Errorf("%w: %s", ErrSubmissionFailed, cause.Error())
		}
	}
}

// Source pitches for one region: the caller's declared pitches when an
// explicit subresource carries them, tight rows otherwise.
func sourcePitches(region metadata.TextureUploadRegion, info metadata.FormatInfo, sub *metadata.UploadSubresource) (rowPitch, slicePitch uint64) {
	rowBytes := uint64(info.RowBytes(region.Width))
	rows := uint64(info.RowCount(region.Height))
	rowPitch = rowBytes
	if sub != nil && sub.RowPitch > 0 {
		rowPitch = uint64(sub.RowPitch)
	}
	slicePitch = rowPitch * rows
	if sub != nil && sub.SlicePitch > 0 {
		slicePitch = uint64(sub.SlicePitch)
	}
	return rowPitch, slicePitch
}

// sourcePlanBytes is the payload size a caller must provide to cover
// every region of a plan, honoring any declared source pitches. subs is
// nil or region-aligned.
func sourcePlanBytes(plan metadata.TextureUploadPlan, info metadata.FormatInfo, subs []metadata.UploadSubresource) uint64 {
	total := uint64(0)
	for i, region := range plan.Regions {
		var sub *metadata.UploadSubresource
		if i < len(subs) {
			sub = &subs[i]
		}
		rowBytes := uint64(info.RowBytes(region.Width))
		rows := uint64(info.RowCount(region.Height))
		rowPitch, slicePitch := sourcePitches(region, info, sub)
		total += (uint64(region.Depth)-1)*slicePitch + (rows-1)*rowPitch + rowBytes
	}
	return total
}

// repackTexels copies source rows into the aligned staging layout the
// plan describes. Source order matches region order; each region's rows
// follow its declared pitches, tight when none were declared.
func repackTexels(mapped, data []byte, plan metadata.TextureUploadPlan, info metadata.FormatInfo, subs []metadata.UploadSubresource) {
	base := uint64(0)
	for i, region := range plan.Regions {
		var sub *metadata.UploadSubresource
		if i < len(subs) {
			sub = &subs[i]
		}
		rowBytes := uint64(info.RowBytes(region.Width))
		rows := uint64(info.RowCount(region.Height))
		srcRowPitch, srcSlicePitch := sourcePitches(region, info, sub)
		for z := uint64(0); z < uint64(region.Depth); z++ {
			sliceBase := region.BufferOffset + z*uint64(region.SlicePitch)
			srcSlice := base + z*srcSlicePitch
			for row := uint64(0); row < rows; row++ {
				dst := sliceBase + row*uint64(region.RowPitch)
				src := srcSlice + row*srcRowPitch
				copy(mapped[dst:dst+rowBytes], data[src:src+rowBytes])
			}
		}
		base += (uint64(region.Depth)-1)*srcSlicePitch + (rows-1)*srcRowPitch + rowBytes
	}
}
