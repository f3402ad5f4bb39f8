package scene

import (
	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/**
 * @brief Generates an axis-aligned box mesh centered on the origin with
 * one submesh covering every face. tileX and tileY repeat the texture
 * across each face.
 */
func NewCubeMesh(name string, width, height, depth, tileX, tileY float32, material *metadata.Material) *Mesh {
	if width == 0 {
		core.LogWarn("cube %q: width must be nonzero, defaulting to one", name)
		width = 1
	}
	if height == 0 {
		core.LogWarn("cube %q: height must be nonzero, defaulting to one", name)
		height = 1
	}
	if depth == 0 {
		core.LogWarn("cube %q: depth must be nonzero, defaulting to one", name)
		depth = 1
	}
	if tileX == 0 {
		tileX = 1
	}
	if tileY == 0 {
		tileY = 1
	}

	maxX := width * 0.5
	maxY := height * 0.5
	maxZ := depth * 0.5
	minX := -maxX
	minY := -maxY
	minZ := -maxZ

	// Four corners per face, counter clockwise winding.
	type face struct {
		normal  math.Vec3
		corners [4]math.Vec3
	}
	faces := []face{
		{math.NewVec3(0, 0, 1), [4]math.Vec3{
			math.NewVec3(minX, minY, maxZ), math.NewVec3(maxX, maxY, maxZ),
			math.NewVec3(minX, maxY, maxZ), math.NewVec3(maxX, minY, maxZ)}},
		{math.NewVec3(0, 0, -1), [4]math.Vec3{
			math.NewVec3(maxX, minY, minZ), math.NewVec3(minX, maxY, minZ),
			math.NewVec3(maxX, maxY, minZ), math.NewVec3(minX, minY, minZ)}},
		{math.NewVec3(-1, 0, 0), [4]math.Vec3{
			math.NewVec3(minX, minY, minZ), math.NewVec3(minX, maxY, maxZ),
			math.NewVec3(minX, maxY, minZ), math.NewVec3(minX, minY, maxZ)}},
		{math.NewVec3(1, 0, 0), [4]math.Vec3{
			math.NewVec3(maxX, minY, maxZ), math.NewVec3(maxX, maxY, minZ),
			math.NewVec3(maxX, maxY, maxZ), math.NewVec3(maxX, minY, minZ)}},
		{math.NewVec3(0, -1, 0), [4]math.Vec3{
			math.NewVec3(maxX, minY, maxZ), math.NewVec3(minX, minY, minZ),
			math.NewVec3(maxX, minY, minZ), math.NewVec3(minX, minY, maxZ)}},
		{math.NewVec3(0, 1, 0), [4]math.Vec3{
			math.NewVec3(minX, maxY, maxZ), math.NewVec3(maxX, maxY, minZ),
			math.NewVec3(minX, maxY, minZ), math.NewVec3(maxX, maxY, maxZ)}},
	}
	uvs := [4]math.Vec2{
		math.NewVec2(0, 0),
		math.NewVec2(tileX, tileY),
		math.NewVec2(0, tileY),
		math.NewVec2(tileX, 0),
	}

	vertices := make([]math.Vertex3D, 0, 4*6)
	indices := make([]uint32, 0, 6*6)
	for i, f := range faces {
		for c := 0; c < 4; c++ {
			vertices = append(vertices, math.Vertex3D{
				Position: f.corners[c],
				Normal:   f.normal,
				Texcoord: uvs[c],
				Colour:   math.NewVec4(1, 1, 1, 1),
			})
		}
		base := uint32(i * 4)
		indices = append(indices,
			base+0, base+1, base+2,
			base+0, base+3, base+1)
	}

	return NewMesh(MeshConfig{
		Name: name,
		Lods: []MeshLod{{
			Vertices: vertices,
			Indices:  indices,
			Submeshes: []Submesh{{
				Name:       name,
				IndexCount: uint32(len(indices)),
				Material:   material,
				Bounds: &math.Extents3D{
					Min: math.NewVec3(minX, minY, minZ),
					Max: math.NewVec3(maxX, maxY, maxZ),
				},
			}},
		}},
	})
}

/**
 * @brief Generates a flat grid mesh in the XY plane centered on the
 * origin, segmented so distance-based LOD selection has something to
 * chew on when the caller stacks several of these as LOD levels.
 */
func NewPlaneMesh(name string, width, height float32, segX, segY int, tileX, tileY float32, material *metadata.Material) *Mesh {
	if width == 0 {
		core.LogWarn("plane %q: width must be nonzero, defaulting to one", name)
		width = 1
	}
	if height == 0 {
		core.LogWarn("plane %q: height must be nonzero, defaulting to one", name)
		height = 1
	}
	if segX < 1 {
		segX = 1
	}
	if segY < 1 {
		segY = 1
	}
	if tileX == 0 {
		tileX = 1
	}
	if tileY == 0 {
		tileY = 1
	}

	halfW := width * 0.5
	halfH := height * 0.5
	segW := width / float32(segX)
	segH := height / float32(segY)

	vertices := make([]math.Vertex3D, 0, (segX+1)*(segY+1))
	for y := 0; y <= segY; y++ {
		for x := 0; x <= segX; x++ {
			px := float32(x)*segW - halfW
			py := float32(y)*segH - halfH
			vertices = append(vertices, math.Vertex3D{
				Position: math.NewVec3(px, py, 0),
				Normal:   math.NewVec3(0, 0, 1),
				Texcoord: math.NewVec2(float32(x)/float32(segX)*tileX, float32(y)/float32(segY)*tileY),
				Colour:   math.NewVec4(1, 1, 1, 1),
			})
		}
	}

	stride := uint32(segX + 1)
	indices := make([]uint32, 0, segX*segY*6)
	for y := 0; y < segY; y++ {
		for x := 0; x < segX; x++ {
			v0 := uint32(y)*stride + uint32(x)
			v1 := v0 + 1
			v2 := v0 + stride
			v3 := v2 + 1
			indices = append(indices,
				v0, v1, v2,
				v2, v1, v3)
		}
	}

	return NewMesh(MeshConfig{
		Name: name,
		Lods: []MeshLod{{
			Vertices: vertices,
			Indices:  indices,
			Submeshes: []Submesh{{
				Name:       name,
				IndexCount: uint32(len(indices)),
				Material:   material,
				Bounds: &math.Extents3D{
					Min: math.NewVec3(-halfW, -halfH, 0),
					Max: math.NewVec3(halfW, halfH, 0),
				},
			}},
		}},
	})
}
