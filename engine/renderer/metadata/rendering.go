package metadata

/** @brief The role of a command queue. */
type QueueRole uint8

const (
	QueueRoleGraphics QueueRole = iota
	QueueRoleCompute
	QueueRoleTransfer
	QueueRoleCount
)

func (r QueueRole) String() string {
	switch r {
	case QueueRoleGraphics:
		return "graphics"
	case QueueRoleCompute:
		return "compute"
	case QueueRoleTransfer:
		return "transfer"
	}
	return "unknown"
}

/**
 * @brief Logical resource states used by the barrier vocabulary. Backends
 * translate these into API specific layouts and access masks.
 */
type ResourceState uint16

const (
	ResourceStateUndefined ResourceState = iota
	ResourceStateCommon
	ResourceStateCopyDest
	ResourceStateCopySource
	ResourceStateShaderResource
	ResourceStateUnorderedAccess
	ResourceStateRenderTarget
	ResourceStateDepthWrite
	ResourceStateVertexAndConstantBuffer
	ResourceStateIndexBuffer
	ResourceStatePresent
)

func (s ResourceState) String() string {
	switch s {
	case ResourceStateUndefined:
		return "undefined"
	case ResourceStateCommon:
		return "common"
	case ResourceStateCopyDest:
		return "copy_dest"
	case ResourceStateCopySource:
		return "copy_source"
	case ResourceStateShaderResource:
		return "shader_resource"
	case ResourceStateUnorderedAccess:
		return "unordered_access"
	case ResourceStateRenderTarget:
		return "render_target"
	case ResourceStateDepthWrite:
		return "depth_write"
	case ResourceStateVertexAndConstantBuffer:
		return "vertex_constant_buffer"
	case ResourceStateIndexBuffer:
		return "index_buffer"
	case ResourceStatePresent:
		return "present"
	}
	return "unknown"
}
