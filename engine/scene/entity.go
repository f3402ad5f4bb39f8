package scene

import (
	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

/** @brief Construction parameters of an entity. */
type EntityConfig struct {
	Name            string
	Visible         bool
	CastsShadows    bool
	ReceivesShadows bool
	Renderable      *Renderable
}

/**
 * @brief The concrete node used by the testbed and the tests. Entities
 * hold a transform that may be parented to another entity's transform.
 */
type Entity struct {
	name            string
	visible         bool
	castsShadows    bool
	receivesShadows bool
	transform       *math.Transform
	renderable      *Renderable
}

func NewEntity(config EntityConfig) *Entity {
	return &Entity{
		name:            config.Name,
		visible:         config.Visible,
		castsShadows:    config.CastsShadows,
		receivesShadows: config.ReceivesShadows,
		transform:       math.TransformCreate(),
		renderable:      config.Renderable,
	}
}

func (e *Entity) Name() string                { return e.name }
func (e *Entity) Visible() bool               { return e.visible }
func (e *Entity) SetVisible(visible bool)     { e.visible = visible }
func (e *Entity) CastsShadows() bool          { return e.castsShadows }
func (e *Entity) ReceivesShadows() bool       { return e.receivesShadows }
func (e *Entity) Renderable() *Renderable     { return e.renderable }
func (e *Entity) SetRenderable(r *Renderable) { e.renderable = r }
func (e *Entity) Transform() *math.Transform  { return e.transform }
func (e *Entity) WorldTransform() math.Mat4   { return e.transform.GetWorld() }

/** @brief Parents this entity's transform under parent's. Nil detaches. */
func (e *Entity) SetParent(parent *Entity) {
	if parent == nil {
		e.transform.Parent = nil
		return
	}
	e.transform.Parent = parent.transform
}

/** @brief A flat scene holding entities and lights. */
type World struct {
	name     string
	entities []*Entity
	lights   []*LightSource
}

func NewWorld(name string) *World {
	return &World{name: name}
}

func (w *World) Name() string { return w.name }

func (w *World) AddEntity(entity *Entity) {
	w.entities = append(w.entities, entity)
}

func (w *World) AddLight(light *LightSource) {
	w.lights = append(w.lights, light)
}

func (w *World) EachNode(fn func(Node) bool) {
	for _, entity := range w.entities {
		if !fn(entity) {
			return
		}
	}
}

func (w *World) EachLight(fn func(Light) bool) {
	for _, light := range w.lights {
		if !fn(light) {
			return
		}
	}
}

func (w *World) EntityCount() int { return len(w.entities) }
func (w *World) LightCount() int  { return len(w.lights) }

/** @brief Construction parameters of a mesh asset. */
type MeshConfig struct {
	Name string
	/** @brief Finest first. At least one LOD is required. */
	Lods []MeshLod
	/** @brief Zero computes the sphere from LOD 0 vertex positions. */
	Bounds math.Sphere
}

/** @brief Concrete Geometry with identity derived from the mesh name. */
type Mesh struct {
	id     metadata.MeshID
	name   string
	lods   []MeshLod
	bounds math.Sphere
}

func NewMesh(config MeshConfig) *Mesh {
	bounds := config.Bounds
	if bounds.Radius == 0 && len(config.Lods) > 0 && len(config.Lods[0].Vertices) > 0 {
		points := make([]math.Vec3, len(config.Lods[0].Vertices))
		for i, vertex := range config.Lods[0].Vertices {
			points[i] = vertex.Position
		}
		bounds = math.NewExtentsFromPoints(points).BoundingSphere()
	}
	return &Mesh{
		id:     metadata.MeshIDFromName(config.Name),
		name:   config.Name,
		lods:   config.Lods,
		bounds: bounds,
	}
}

func (m *Mesh) ID() metadata.MeshID         { return m.id }
func (m *Mesh) Name() string                { return m.name }
func (m *Mesh) BoundingSphere() math.Sphere { return m.bounds }
func (m *Mesh) LodCount() int               { return len(m.lods) }

func (m *Mesh) Lod(index int) *MeshLod {
	if index < 0 || index >= len(m.lods) {
		return nil
	}
	return &m.lods[index]
}
