package metadata

/** @brief The kind of destination an upload request targets. */
type UploadKind uint8

const (
	UploadKindBuffer UploadKind = iota
	UploadKindTexture2D
	UploadKindTexture3D
	UploadKindTextureCube
)

func (k UploadKind) String() string {
	switch k {
	case UploadKindBuffer:
		return "buffer"
	case UploadKindTexture2D:
		return "texture2d"
	case UploadKindTexture3D:
		return "texture3d"
	case UploadKindTextureCube:
		return "texture_cube"
	}
	return "unknown"
}

/** @brief Scheduling hint for an upload request. */
type UploadPriority uint8

const (
	UploadPriorityNormal UploadPriority = iota
	UploadPriorityHigh
)

const (
	/** @brief Required alignment of a row pitch in an upload buffer. */
	RowPitchAlignment uint32 = 256
	/** @brief Required alignment of a subresource's starting offset in an upload buffer. */
	PlacementAlignment uint32 = 512
)

/**
 * @brief One copy region of a planned texture upload. Offsets are relative
 * to the start of the staging range backing the whole plan.
 */
type TextureUploadRegion struct {
	BufferOffset         uint64
	RowPitch             uint32
	SlicePitch           uint32
	DstMip               uint32
	DstArraySlice        uint32
	DstX, DstY, DstZ     uint32
	Width, Height, Depth uint32
}

/**
 * @brief An ordered list of upload regions plus the total staging bytes
 * they span. Regions are ordered by (mip, arraySlice) with nondecreasing
 * buffer offsets.
 */
type TextureUploadPlan struct {
	Regions    []TextureUploadRegion
	TotalBytes uint64
}

/** @brief One requested subresource of a texture upload. */
type UploadSubresource struct {
	Mip        uint32
	ArraySlice uint32
	X, Y, Z    uint32
	Width      uint32
	Height     uint32
	Depth      uint32
	/** @brief Source row pitch of the caller's bytes. Zero means tightly packed. */
	RowPitch uint32
	/** @brief Source slice pitch of the caller's bytes. Zero means rows*rowPitch. */
	SlicePitch uint32
}

/** @brief A half-open, aligned range inside a buffer. */
type MemoryRange struct {
	Offset uint64
	Size   uint64
}
