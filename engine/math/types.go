package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion Vec4

/**
 * @brief A 4x4 matrix, typically used to represent object transformations.
 * Storage is column major: Data[4*col+row], translation in Data[12..14].
 */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

/**
 * @brief Represents the extents of a 2d object.
 */
type Extents2D struct {
	Min Vec2
	Max Vec2
}

/**
 * @brief Represents the axis-aligned extents of a 3d object.
 */
type Extents3D struct {
	Min Vec3
	Max Vec3
}

/** @brief A bounding sphere. */
type Sphere struct {
	Center Vec3
	Radius float32
}

/**
 * @brief Represents a single vertex in 3D space.
 */
type Vertex3D struct {
	/** @brief The position of the vertex */
	Position Vec3
	/** @brief The normal of the vertex. */
	Normal Vec3
	/** @brief The texture coordinate of the vertex. */
	Texcoord Vec2
	/** @brief The colour of the vertex. */
	Colour Vec4
	/** @brief The tangent of the vertex. */
	Tangent Vec3
}

/**
 * @brief Represents a single vertex in 2D space.
 */
type Vertex2D struct {
	/** @brief The position of the vertex */
	Position Vec2
	/** @brief The texture coordinate of the vertex. */
	Texcoord Vec2
}

/**
 * @brief Represents the transform of an object in the world. Transforms
 * can have a parent whose own transform is then taken into account.
 */
type Transform struct {
	Position Vec3
	Rotation Quaternion
	Scale    Vec3
	/** @brief Set when position, rotation or scale changed and the local matrix is stale. */
	IsDirty bool
	Local   Mat4
	/** @brief A pointer to a parent transform if one is assigned. Can be nil. */
	Parent *Transform
}
