package systems

import (
	"fmt"

	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/scene"
)

/** @brief The scene preparation pipeline configuration. */
type ScenePrepConfig struct {
	/** @brief Applied when neither override nor submesh material is set. */
	DefaultMaterial *metadata.Material
}

/** @brief Per-frame counters of what the pipeline kept and dropped. */
type ScenePrepStats struct {
	NodesVisited        int
	DroppedHidden       int
	DroppedNoRenderable int
	DroppedNoGeometry   int
	CulledByFrustum     int
	SubmeshesMasked     int
	SubmeshesCulled     int
	ItemsEmitted        int
}

/**
 * @brief Walks a scene and turns every visible submesh into a render
 * item for the frame. Filtering is staged: hidden and non-drawable nodes
 * drop first, then the mesh sphere is tested against the view frustum,
 * then a level of detail is chosen, and finally each selected submesh is
 * masked, culled and given its resolved material. A node dropped at any
 * stage never reaches a later one.
 */
type ScenePrepPipeline struct {
	config *ScenePrepConfig
}

func NewScenePrepPipeline(config *ScenePrepConfig) (*ScenePrepPipeline, error) {
	if config == nil {
		config = &ScenePrepConfig{}
	}
	if config.DefaultMaterial == nil {
		config.DefaultMaterial = metadata.NewDefaultMaterial()
	}
	return &ScenePrepPipeline{config: config}, nil
}

/**
 * @brief Produces the frame's render items for one view, together with
 * the geometries they reference and stage counters. Item order follows
 * scene order, submesh order within a node. The geometry map is what
 * the passes feed into the mesh residency cache.
 */
func (p *ScenePrepPipeline) Prepare(
	s scene.Scene, view metadata.View,
) ([]metadata.RenderItem, map[metadata.MeshID]scene.Geometry, ScenePrepStats) {
	var items []metadata.RenderItem
	var stats ScenePrepStats
	geometries := make(map[metadata.MeshID]scene.Geometry)

	s.EachNode(func(node scene.Node) bool {
		stats.NodesVisited++

		if !node.Visible() {
			stats.DroppedHidden++
			return true
		}
		renderable := node.Renderable()
		if renderable == nil {
			stats.DroppedNoRenderable++
			return true
		}
		geometry := renderable.Geometry
		if geometry == nil || geometry.LodCount() == 0 {
			stats.DroppedNoGeometry++
			return true
		}

		world := node.WorldTransform()
		worldSphere := geometry.BoundingSphere().Transformed(world)
		if !view.Frustum.IntersectsSphere(worldSphere) {
			stats.CulledByFrustum++
			return true
		}

		// The renderable owns the LOD decision; the pipeline only
		// computes the policy selector from the view.
		renderable.SelectLod(lodSelector(renderable, worldSphere, view))
		lodIndex := renderable.ActiveLod()
		lod := geometry.Lod(lodIndex)
		if lod == nil {
			stats.DroppedNoGeometry++
			return true
		}

		for submeshIndex := range lod.Submeshes {
			submesh := &lod.Submeshes[submeshIndex]
			if !renderable.SubmeshSelected(submeshIndex) {
				stats.SubmeshesMasked++
				continue
			}
			// Submeshes with their own box get a tighter cull; the rest
			// ride on the mesh sphere test that already passed.
			if submesh.Bounds != nil {
				worldBounds := submesh.Bounds.Transformed(world)
				if !view.Frustum.IntersectsExtents(worldBounds) {
					stats.SubmeshesCulled++
					continue
				}
			}

			material := p.resolveMaterial(renderable, submesh)
			geometries[geometry.ID()] = geometry
			items = append(items, metadata.RenderItem{
				Mesh:            geometry.ID(),
				Lod:             lodIndex,
				Submesh:         submeshIndex,
				IndexOffset:     submesh.IndexOffset,
				IndexCount:      submesh.IndexCount,
				VertexOffset:    submesh.VertexOffset,
				Material:        material,
				World:           world,
				Bounds:          worldSphere,
				CastsShadows:    node.CastsShadows(),
				ReceivesShadows: node.ReceivesShadows(),
				Domain:          material.Domain,
				Passes:          passesFor(material, node.CastsShadows()),
			})
			stats.ItemsEmitted++
		}
		return true
	})

	return items, geometries, stats
}

/**
 * @brief The policy selector for a renderable under the view. Distance
 * policy feeds the camera distance normalized by the bounding radius;
 * screen-space error feeds the sphere's projected size in pixels.
 */
func lodSelector(renderable *scene.Renderable, worldSphere math.Sphere, view metadata.View) float64 {
	switch renderable.Policy {
	case scene.LodPolicyDistance:
		radius := worldSphere.Radius
		if radius < math.K_FLOAT_EPSILON {
			radius = math.K_FLOAT_EPSILON
		}
		return float64(view.CameraPosition.Distance(worldSphere.Center) / radius)

	case scene.LodPolicyScreenSpaceError:
		distance := view.CameraPosition.Distance(worldSphere.Center)
		if distance < math.K_FLOAT_EPSILON {
			distance = math.K_FLOAT_EPSILON
		}
		return float64(view.FocalLengthPx * worldSphere.Radius / distance)
	}
	return 0
}

// Override wins, then the submesh's own material, then the default.
func (p *ScenePrepPipeline) resolveMaterial(renderable *scene.Renderable, submesh *scene.Submesh) *metadata.Material {
	if renderable.MaterialOverride != nil {
		return renderable.MaterialOverride
	}
	if submesh.Material != nil {
		return submesh.Material
	}
	return p.config.DefaultMaterial
}

func passesFor(material *metadata.Material, castsShadows bool) metadata.PassMask {
	var passes metadata.PassMask
	switch material.Domain {
	case metadata.RenderDomainTransparent:
		passes = metadata.PassTransparent
	case metadata.RenderDomainAlphaTested:
		passes = metadata.PassOpaque
	default:
		passes = metadata.PassDepthPrePass | metadata.PassOpaque
	}
	if castsShadows {
		passes |= metadata.PassShadow
	}
	return passes
}

func (s ScenePrepStats) String() string {
	return fmt.Sprintf("visited %d, emitted %d (hidden %d, nonrenderable %d, nogeometry %d, frustum %d, masked %d, submesh-culled %d)",
		s.NodesVisited, s.ItemsEmitted, s.DroppedHidden, s.DroppedNoRenderable,
		s.DroppedNoGeometry, s.CulledByFrustum, s.SubmeshesMasked, s.SubmeshesCulled)
}
