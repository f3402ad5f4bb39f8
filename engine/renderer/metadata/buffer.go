package metadata

/** @brief Holds usage bit flags for buffers. */
type BufferUsage uint8

const (
	BufferUsageVertex   BufferUsage = 0x1
	BufferUsageIndex    BufferUsage = 0x2
	BufferUsageConstant BufferUsage = 0x4
	/** @brief Structured buffer visible to shaders through the bindless table. */
	BufferUsageStructured BufferUsage = 0x8
	BufferUsageCopySource BufferUsage = 0x10
	BufferUsageCopyDest   BufferUsage = 0x20
)

/** @brief Creation-time description of a buffer resource. */
type BufferDesc struct {
	Name  string
	Size  uint64
	Usage BufferUsage
	/** @brief CPU visible buffers are persistently mappable host memory. */
	CpuVisible bool
	/** @brief Element stride for structured buffers, 0 otherwise. */
	Stride uint32
}
