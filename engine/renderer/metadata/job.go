package metadata

/** Definition for the work a job performs. Runs on a worker goroutine. */
type JobStart func() (result interface{}, err error)

/** Definition for completion of a job. Runs on the worker that finished it. */
type JobOnComplete func(result interface{})

/** Definition for failure of a job. */
type JobOnFailure func(err error)

/**
 * @brief Determines which queue a job uses. High priority tasks are drained
 * before normal ones by the workers.
 */
type JobPriority int

const (
	/** @brief A normal-priority job, the bulk of asset loads. */
	JobPriorityNormal JobPriority = iota
	/** @brief Time-critical work. Use sparingly. */
	JobPriorityHigh
)

/**
 * @brief Describes a job to be run.
 */
type JobTask struct {
	Name     string
	Priority JobPriority
	/** @brief Invoked on a worker goroutine. Required. */
	OnStart JobStart
	/** @brief Invoked with OnStart's result when it returns nil error. Optional. */
	OnComplete JobOnComplete
	/** @brief Invoked with OnStart's error. Optional. */
	OnFailure JobOnFailure
}
