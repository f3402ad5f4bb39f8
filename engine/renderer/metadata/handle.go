package metadata

import (
	"fmt"
	"hash/fnv"
)

const (
	/** @brief An invalid 32-bit identifier. */
	InvalidID uint32 = 4294967295
	/** @brief An invalid 64-bit identifier. */
	InvalidIDUint64 uint64 = 18446744073709551615
	/** @brief An invalid 16-bit identifier. */
	InvalidIDUint16 uint16 = 65535
	/** @brief An invalid 8-bit identifier. */
	InvalidIDUint8 uint8 = 255
)

/**
 * @brief A monotone, non-decreasing value published by a command queue.
 * A queue has completed all work submitted before a Signal() once its
 * completed value reaches the value that Signal() returned.
 */
type FenceValue uint64

/** @brief An absolute slot in a shader-visible descriptor table. */
type BindlessIndex uint32

/** @brief Marks a descriptor slot as "not allocated". */
const InvalidBindlessIndex BindlessIndex = BindlessIndex(InvalidID)

/**
 * @brief A bindless descriptor handle stamped with the generation the
 * slot had when it was allocated. Holders compare their stored generation
 * against the slot's current one to detect use-after-release.
 */
type VersionedHandle struct {
	Index      BindlessIndex
	Generation uint32
}

/** @brief The invalid versioned handle. */
var InvalidHandle = VersionedHandle{Index: InvalidBindlessIndex}

// Generation zero never occurs on a live slot, so the zero value of
// VersionedHandle is invalid too.
func (h VersionedHandle) IsValid() bool {
	return h.Index != InvalidBindlessIndex && h.Generation != 0
}

// Packed transport form, index in the high half so numeric ordering is
// index-first. Internal detail, not an ABI.
func (h VersionedHandle) Pack() uint64 {
	return uint64(h.Index)<<32 | uint64(h.Generation)
}

func UnpackHandle(packed uint64) VersionedHandle {
	return VersionedHandle{
		Index:      BindlessIndex(packed >> 32),
		Generation: uint32(packed),
	}
}

func (h VersionedHandle) String() string {
	if !h.IsValid() {
		return "handle(invalid)"
	}
	return fmt.Sprintf("handle(%d:g%d)", h.Index, h.Generation)
}

/** @brief A named region of the global descriptor table. */
type BindlessDomain uint8

const (
	/** @brief Shader resource views over textures. */
	DomainTextures BindlessDomain = iota
	/** @brief Shader resource views over structured buffers. */
	DomainBuffers
	/** @brief The bounded sampler table. */
	DomainSamplers
	DomainCount
)

func (d BindlessDomain) String() string {
	switch d {
	case DomainTextures:
		return "textures"
	case DomainBuffers:
		return "buffers"
	case DomainSamplers:
		return "samplers"
	}
	return "unknown"
}

/**
 * @brief Opaque, stable identity of a texture asset. Key 0 is the reserved
 * placeholder sentinel and never maps to a loadable resource.
 */
type ResourceKey uint64

const ResourceKeyPlaceholder ResourceKey = 0

// ResourceKeyFromName hashes an asset name into its stable key.
func ResourceKeyFromName(name string) ResourceKey {
	hasher := fnv.New64a()
	hasher.Write([]byte(name))
	key := ResourceKey(hasher.Sum64())
	if key == ResourceKeyPlaceholder {
		key = 1
	}
	return key
}

/** @brief Stable identity of a mesh asset. */
type MeshID uint64

const InvalidMeshID MeshID = 0

func MeshIDFromName(name string) MeshID {
	hasher := fnv.New64a()
	hasher.Write([]byte(name))
	id := MeshID(hasher.Sum64())
	if id == InvalidMeshID {
		id = 1
	}
	return id
}

/**
 * @brief Identifies one submitted upload. Tickets are polled against the
 * transfer queue's completed fence value.
 */
type UploadTicket uint64

const InvalidUploadTicket UploadTicket = 0
