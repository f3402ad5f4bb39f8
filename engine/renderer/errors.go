package renderer

import "errors"

// Errors surfaced by the staging and upload layers. Request errors are
// caller bugs; capacity errors may be retried next frame.
var (
	/** @brief The request is malformed (zero size, missing destination, bad subresource). */
	ErrInvalidRequest = errors.New("invalid request")
	/** @brief The destination format is not understood by the upload planner. */
	ErrUnsupportedFormat = errors.New("unsupported format")
	/** @brief The staging provider could not serve the allocation. */
	ErrStagingExhausted = errors.New("staging exhausted")
	/** @brief Creating or growing a staging buffer failed. */
	ErrAllocationFailed = errors.New("allocation failed")
	/** @brief Submitting recorded work to the queue failed. */
	ErrSubmissionFailed = errors.New("submission failed")
	/** @brief A producer callback declined to fill the staging span. */
	ErrProducerFailed = errors.New("producer failed")
	/** @brief The ticket's work has not completed yet. */
	ErrUploadPending = errors.New("upload pending")
	/** @brief The ticket is unknown or was already collected. */
	ErrUnknownTicket = errors.New("unknown ticket")
)
