package renderer

import (
	"fmt"

	"github.com/abdes/oxygen/engine/containers"
	"github.com/abdes/oxygen/engine/core"
)

/** @brief A callable scheduled to run when its frame slot is reused. */
type DeferredAction func() error

/**
 * @brief Holds a FIFO of deferred actions per frame slot. Actions
 * registered while slot s is active run the next time the controller
 * re-enters slot s, strictly after the slot's fence wait has returned.
 * That delay is what guarantees the GPU no longer references whatever
 * the action releases.
 *
 * Single render thread ownership: registration and draining both happen
 * on the controller's thread.
 */
type FrameResourceManager struct {
	slots      []*containers.RingQueue[DeferredAction]
	activeSlot int
	shutdown   bool
}

func NewFrameResourceManager(slotCount int) (*FrameResourceManager, error) {
	if slotCount < 1 {
		return nil, fmt.Errorf("frame resource manager needs at least one slot, got %d", slotCount)
	}
	m := &FrameResourceManager{
		slots: make([]*containers.RingQueue[DeferredAction], slotCount),
	}
	for i := range m.slots {
		m.slots[i] = containers.NewRingQueue[DeferredAction](16)
	}
	return m, nil
}

func (m *FrameResourceManager) SlotCount() int {
	return len(m.slots)
}

/**
 * @brief Enqueues an action into the currently active slot's queue. After
 * OnRendererShutdown the registration is rejected.
 */
func (m *FrameResourceManager) RegisterDeferredAction(action DeferredAction) error {
	if m.shutdown {
		return core.ErrShutdownInProgress
	}
	if action == nil {
		return fmt.Errorf("nil deferred action")
	}
	m.slots[m.activeSlot].Enqueue(action)
	return nil
}

/**
 * @brief Marks slot as active and drains every action queued for it, in
 * FIFO order. The controller calls this only after the slot's fence wait
 * returned. A failing action is logged and does not abort the drain.
 */
func (m *FrameResourceManager) OnBeginFrame(slot int) error {
	if slot < 0 || slot >= len(m.slots) {
		return fmt.Errorf("frame slot %d out of range [0,%d)", slot, len(m.slots))
	}
	m.activeSlot = slot
	m.drainSlot(slot)
	return nil
}

/**
 * @brief Drains every slot's queue. Used on full flush paths such as a
 * surface resize, where all queues have been flushed beforehand.
 */
func (m *FrameResourceManager) ProcessAllDeferredReleases() {
	for slot := range m.slots {
		m.drainSlot(slot)
	}
}

/**
 * @brief Drains all slots and forbids further registration.
 */
func (m *FrameResourceManager) OnRendererShutdown() {
	m.ProcessAllDeferredReleases()
	m.shutdown = true
}

// PendingCount reports the queued action count for one slot.
func (m *FrameResourceManager) PendingCount(slot int) int {
	if slot < 0 || slot >= len(m.slots) {
		return 0
	}
	return m.slots[slot].Len()
}

func (m *FrameResourceManager) drainSlot(slot int) {
	queue := m.slots[slot]
	// Actions registered by other draining actions land in the active
	// slot's queue; only drain what was present when the drain started.
	pending := queue.Len()
	for i := 0; i < pending; i++ {
		action, err := queue.Dequeue()
		if err != nil {
			return
		}
		if err := action(); err != nil {
			core.LogError("deferred action on slot %d failed: %s", slot, err.Error())
		}
	}
}
