package metadata

import "github.com/abdes/oxygen/engine/math"

/**
 * @brief Bit set naming the render passes a draw record participates in.
 * A record is emitted into a pass iff its bit is set.
 */
type PassMask uint32

const (
	PassDepthPrePass PassMask = 1 << iota
	PassOpaque
	PassTransparent
	PassShadow
	PassSky
	PassOverlay
)

func (m PassMask) Has(bit PassMask) bool {
	return m&bit != 0
}

/**
 * @brief A fully resolved per-submesh draw record. One record is emitted
 * for every visible submesh of every visible renderable; passes consume
 * records whose mask includes them.
 */
type RenderItem struct {
	/** @brief Identity of the mesh providing the vertex and index data. */
	Mesh MeshID
	/** @brief The LOD the renderable resolved for this frame. */
	Lod int
	/** @brief Index of the submesh within the resolved LOD mesh. */
	Submesh int
	/** @brief Resolved index range of the submesh. */
	IndexOffset uint32
	IndexCount  uint32
	/** @brief Added to every index when drawing. */
	VertexOffset uint32
	Material     *Material
	World        math.Mat4
	/** @brief World-space bounding sphere of the whole mesh. */
	Bounds          math.Sphere
	CastsShadows    bool
	ReceivesShadows bool
	Domain          RenderDomain
	Passes          PassMask
}
