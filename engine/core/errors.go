package core

import (
	"errors"
)

var (
	/** @brief The presentable surface no longer matches the swapchain and must be rebuilt. */
	ErrSurfaceOutOfDate = errors.New("surface out of date, swapchain must be recreated")
	/** @brief Returned when work is handed to a system that is shutting down. */
	ErrShutdownInProgress = errors.New("shutdown in progress")
	ErrNotInitialized     = errors.New("system not initialized")
)
