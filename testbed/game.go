package testbed

import (
	"fmt"

	"github.com/abdes/oxygen/engine"
	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer/components"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/scene"
	"github.com/abdes/oxygen/engine/systems"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	world  *scene.World
	camera *components.Camera

	cubes []*scene.Entity

	width  uint32
	height uint32
}

func NewTestGame() (*TestGame, error) {
	config, err := engine.LoadApplicationConfig("testbed.toml")
	if err != nil {
		return nil, err
	}

	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State:             &gameState{},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	tg.FnScene = tg.Scene
	tg.FnCamera = tg.Camera
	tg.FnOverlayText = tg.OverlayText
	return tg, nil
}

func (g *TestGame) Initialize() error {
	if g.SystemManager == nil {
		return fmt.Errorf("the engine has not wired the system managers yet")
	}
	state := g.State.(*gameState)

	state.camera = g.SystemManager.Cameras().GetDefault()
	state.camera.SetPosition(math.NewVec3(0, 3, 18))

	state.world = scene.NewWorld("testbed")

	crate := &metadata.Material{
		Name:            "crate",
		Domain:          metadata.RenderDomainOpaque,
		BaseColorKey:    metadata.ResourceKeyFromName("props/crate"),
		MetallicFactor:  0.1,
		RoughnessFactor: 0.8,
	}
	ground := &metadata.Material{
		Name:            "ground",
		Domain:          metadata.RenderDomainOpaque,
		MetallicFactor:  0,
		RoughnessFactor: 1,
	}

	// Three nested cubes so parented transforms get exercised.
	sizes := []float32{4, 2, 1}
	offsets := []math.Vec3{
		math.NewVec3(0, 2, 0),
		math.NewVec3(6, 0, 0),
		math.NewVec3(3, 0, 0),
	}
	var parent *scene.Entity
	for i, size := range sizes {
		mesh := scene.NewCubeMesh(fmt.Sprintf("test_cube_%d", i), size, size, size, 1, 1, crate)
		entity := scene.NewEntity(scene.EntityConfig{
			Name:            mesh.Name(),
			Visible:         true,
			CastsShadows:    true,
			ReceivesShadows: true,
			Renderable:      &scene.Renderable{Geometry: mesh},
		})
		entity.Transform().SetPosition(offsets[i])
		entity.SetParent(parent)
		state.world.AddEntity(entity)
		state.cubes = append(state.cubes, entity)
		parent = entity
	}

	floorMesh := scene.NewPlaneMesh("floor", 40, 40, 8, 8, 8, 8, ground)
	floor := scene.NewEntity(scene.EntityConfig{
		Name:            "floor",
		Visible:         true,
		ReceivesShadows: true,
		Renderable:      &scene.Renderable{Geometry: floorMesh},
	})
	floor.Transform().SetRotation(math.NewQuatFromAxisAngle(math.NewVec3(1, 0, 0), -math.K_HALF_PI, false))
	state.world.AddEntity(floor)

	sun := scene.NewLightSource(scene.LightConfig{
		Name:             "sun",
		Kind:             metadata.LightTypeDirectional,
		Mobility:         metadata.LightMobilityStationary,
		Color:            math.NewVec3(1, 0.96, 0.9),
		Intensity:        3,
		Visible:          true,
		AffectsWorld:     true,
		CastsShadows:     true,
		NodeCastsShadows: true,
	})
	sun.Transform().SetRotation(math.NewQuatFromAxisAngle(math.NewVec3(1, 0, 0), -math.K_PI/3, false))
	state.world.AddLight(sun)

	fill := scene.NewLightSource(scene.LightConfig{
		Name:         "fill",
		Kind:         metadata.LightTypePoint,
		Mobility:     metadata.LightMobilityMovable,
		Color:        math.NewVec3(0.3, 0.5, 1),
		Intensity:    8,
		Visible:      true,
		AffectsWorld: true,
		Range:        25,
	})
	fill.Transform().SetPosition(math.NewVec3(-8, 6, 4))
	state.world.AddLight(fill)

	core.EventRegister(core.EventCodeKeyPressed, g, g.onKey)
	return nil
}

var cameraMoveSpeed float32 = 12.0
var cameraTurnSpeed float32 = 1.8

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	camera := state.camera
	dt := float32(deltaTime)

	if core.InputIsKeyDown(core.KeyA) || core.InputIsKeyDown(core.KeyLeft) {
		camera.Yaw(cameraTurnSpeed * dt)
	}
	if core.InputIsKeyDown(core.KeyD) || core.InputIsKeyDown(core.KeyRight) {
		camera.Yaw(-cameraTurnSpeed * dt)
	}
	if core.InputIsKeyDown(core.KeyUp) {
		camera.Pitch(cameraTurnSpeed * dt)
	}
	if core.InputIsKeyDown(core.KeyDown) {
		camera.Pitch(-cameraTurnSpeed * dt)
	}
	if core.InputIsKeyDown(core.KeyW) {
		camera.MoveForward(cameraMoveSpeed * dt)
	}
	if core.InputIsKeyDown(core.KeyS) {
		camera.MoveBackward(cameraMoveSpeed * dt)
	}
	if core.InputIsKeyDown(core.KeyQ) {
		camera.MoveUp(cameraMoveSpeed * dt)
	}
	if core.InputIsKeyDown(core.KeyE) {
		camera.MoveDown(cameraMoveSpeed * dt)
	}

	// Keep the cube chain gently spinning.
	rotation := math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), 0.5*dt, false)
	for _, cube := range state.cubes {
		cube.Transform().Rotate(rotation)
	}
	return nil
}

func (g *TestGame) Scene() scene.Scene {
	return g.State.(*gameState).world
}

func (g *TestGame) Camera() *components.Camera {
	return g.State.(*gameState).camera
}

func (g *TestGame) OverlayText(frame *systems.FrameContext) string {
	state := g.State.(*gameState)
	pos := state.camera.GetPosition()
	fps, frameTime := core.MetricsFrame()
	return fmt.Sprintf("FPS: %5.1f (%4.1fms)\nPos: [%6.2f %6.2f %6.2f]\nFrame: %d",
		fps, frameTime, pos.X, pos.Y, pos.Z, frame.FrameIndex)
}

func (g *TestGame) OnResize(width, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.EventUnregister(core.EventCodeKeyPressed, g)
	return nil
}

func (g *TestGame) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, payload interface{}) bool {
	event, ok := payload.(core.KeyEvent)
	if !ok {
		return false
	}
	if event.Key == core.KeyEscape {
		core.EventFire(core.EventCodeApplicationQuit, g, nil)
		return true
	}
	return false
}
