package systems

import (
	"fmt"
	"sync"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

/**
 * @brief A fixed pool of worker goroutines fed from two queues. Workers
 * drain the high priority queue before picking up normal work. Asset
 * loads and other off-thread work go through here; GPU submission never
 * does, that stays on the render thread.
 */
type JobSystem struct {
	numWorkers  int
	jobQueue    chan metadata.JobTask
	highQueue   chan metadata.JobTask
	quit        chan struct{}
	wg          sync.WaitGroup
	shutdownOne sync.Once
}

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan metadata.JobTask, channelSize),
		highQueue:  make(chan metadata.JobTask, channelSize),
		quit:       make(chan struct{}),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for {
				// Prefer high priority work when both queues hold jobs.
				select {
				case job := <-js.highQueue:
					js.run(job)
					continue
				default:
				}
				select {
				case job := <-js.highQueue:
					js.run(job)
				case job := <-js.jobQueue:
					js.run(job)
				case <-js.quit:
					return
				}
			}
		}()
	}
}

func (js *JobSystem) run(job metadata.JobTask) {
	if job.OnStart == nil {
		core.LogWarn("job %q submitted without work", job.Name)
		return
	}
	result, err := job.OnStart()
	if err != nil {
		core.LogError("job %q failed: %s", job.Name, err.Error())
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete(result)
	}
}

/**
 * @brief Shuts the job system down. Queued jobs that no worker picked up
 * before the quit signal are dropped.
 */
func (js *JobSystem) Shutdown() error {
	js.shutdownOne.Do(func() {
		close(js.quit)
	})
	js.wg.Wait()
	return nil
}

/**
 * @brief Updates the job system. Should happen once an update cycle.
 */
func (js *JobSystem) Update() {}

// AddWorkNonBlocking queues the job without blocking the caller even when
// the queue is full. A submit rejected at shutdown is logged and dropped.
func (js *JobSystem) AddWorkNonBlocking(jt metadata.JobTask) {
	go func() {
		if err := js.Submit(jt); err != nil {
			core.LogWarn("job %q dropped: %s", jt.Name, err.Error())
		}
	}()
}

/**
 * @brief Submits the provided job to be queued for execution.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt metadata.JobTask) error {
	select {
	case <-js.quit:
		return core.ErrShutdownInProgress
	default:
	}
	if jt.Priority == metadata.JobPriorityHigh {
		js.highQueue <- jt
		return nil
	}
	js.jobQueue <- jt
	return nil
}
