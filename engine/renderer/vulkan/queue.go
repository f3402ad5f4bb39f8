package vulkan

import (
	"fmt"
	"math"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/**
 * @brief A device queue with monotone fence progression built on Vulkan
 * fences. Signal submits an empty batch carrying a fresh fence; because
 * batches on one queue signal in submission order, fence N completing
 * covers every submit that preceded Signal N.
 */
type Queue struct {
	device *Device
	handle vk.Queue
	family uint32
	role   metadata.QueueRole
	name   string

	mutex     sync.Mutex
	nextValue metadata.FenceValue
	completed metadata.FenceValue
	pending   []pendingSignal
	spare     []vk.Fence
}

type pendingSignal struct {
	value metadata.FenceValue
	fence vk.Fence
}

func newQueue(device *Device, family uint32, role metadata.QueueRole) *Queue {
	q := &Queue{
		device: device,
		family: family,
		role:   role,
		name:   fmt.Sprintf("%s_queue", role),
	}
	vk.GetDeviceQueue(device.Logical, family, 0, &q.handle)
	return q
}

func (q *Queue) Role() metadata.QueueRole { return q.role }
func (q *Queue) Name() string             { return q.name }
func (q *Queue) Family() uint32           { return q.family }
func (q *Queue) Handle() vk.Queue         { return q.handle }

func (q *Queue) Submit(lists ...renderer.CommandList) error {
	if len(lists) == 0 {
		return nil
	}
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	for _, list := range lists {
		cl, ok := list.(*commandList)
		if !ok {
			return fmt.Errorf("queue %s: foreign command list %q", q.name, list.Name())
		}
		buffers = append(buffers, cl.buffer)
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}
	if res := vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		return fmt.Errorf("queue %s: submit: %s", q.name, resultString(res))
	}
	return nil
}

func (q *Queue) Signal() (metadata.FenceValue, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	fence, err := q.takeFence()
	if err != nil {
		return 0, err
	}
	submitInfo := vk.SubmitInfo{SType: vk.StructureTypeSubmitInfo}
	if res := vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{submitInfo}, fence); res != vk.Success {
		q.spare = append(q.spare, fence)
		return 0, fmt.Errorf("queue %s: signal: %s", q.name, resultString(res))
	}
	q.nextValue++
	q.pending = append(q.pending, pendingSignal{value: q.nextValue, fence: fence})
	return q.nextValue, nil
}

func (q *Queue) Wait(value metadata.FenceValue) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if value <= q.completed {
		return nil
	}
	if value > q.nextValue {
		return fmt.Errorf("queue %s: waiting for unsignaled value %d", q.name, value)
	}
	for len(q.pending) > 0 && q.pending[0].value <= value {
		entry := q.pending[0]
		if res := vk.WaitForFences(q.device.Logical, 1, []vk.Fence{entry.fence}, vk.True, math.MaxUint64); res != vk.Success {
			return fmt.Errorf("queue %s: waiting fence %d: %s", q.name, entry.value, resultString(res))
		}
		q.retire(entry)
	}
	if q.completed < value {
		q.completed = value
	}
	return nil
}

func (q *Queue) Completed() metadata.FenceValue {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for len(q.pending) > 0 {
		entry := q.pending[0]
		if res := vk.GetFenceStatus(q.device.Logical, entry.fence); res != vk.Success {
			break
		}
		q.retire(entry)
	}
	return q.completed
}

func (q *Queue) Flush() error {
	value, err := q.Signal()
	if err != nil {
		return err
	}
	return q.Wait(value)
}

// Caller holds q.mutex.
func (q *Queue) takeFence() (vk.Fence, error) {
	if n := len(q.spare); n > 0 {
		fence := q.spare[n-1]
		q.spare = q.spare[:n-1]
		if res := vk.ResetFences(q.device.Logical, 1, []vk.Fence{fence}); res != vk.Success {
			return vk.NullFence, fmt.Errorf("queue %s: resetting fence: %s", q.name, resultString(res))
		}
		return fence, nil
	}
	createInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var fence vk.Fence
	if res := vk.CreateFence(q.device.Logical, &createInfo, q.device.Allocator, &fence); res != vk.Success {
		return vk.NullFence, fmt.Errorf("queue %s: creating fence: %s", q.name, resultString(res))
	}
	return fence, nil
}

// Caller holds q.mutex; entry must be q.pending[0].
func (q *Queue) retire(entry pendingSignal) {
	q.pending = q.pending[1:]
	q.spare = append(q.spare, entry.fence)
	if entry.value > q.completed {
		q.completed = entry.value
	}
}

func (q *Queue) destroy() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if len(q.pending) > 0 {
		core.LogWarn("queue %s destroyed with %d pending signals", q.name, len(q.pending))
	}
	for _, entry := range q.pending {
		vk.DestroyFence(q.device.Logical, entry.fence, q.device.Allocator)
	}
	for _, fence := range q.spare {
		vk.DestroyFence(q.device.Logical, fence, q.device.Allocator)
	}
	q.pending = nil
	q.spare = nil
}
