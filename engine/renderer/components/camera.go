package components

import (
	"github.com/abdes/oxygen/engine/math"
)

/** @brief The name of the default camera. */
const DefaultCameraName string = "default"

/**
 * @brief A free camera driven by position and Euler angles. The view
 * matrix is rebuilt lazily when either changed. Created and managed by
 * the camera system.
 */
type Camera struct {
	/** @brief Set through SetPosition so the view matrix is rebuilt. */
	Position math.Vec3
	/** @brief Pitch, yaw, roll in radians. Set through SetEulerRotation. */
	EulerRotation math.Vec3
	/** @brief Set when the view matrix is stale. */
	IsDirty    bool
	ViewMatrix math.Mat4
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = math.NewVec3Zero()
	c.Position = math.NewVec3Zero()
	c.IsDirty = false
	c.ViewMatrix = math.NewMat4Identity()
}

func (c *Camera) GetPosition() math.Vec3 {
	return c.Position
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) GetEulerRotation() math.Vec3 {
	return c.EulerRotation
}

func (c *Camera) SetEulerRotation(rotation math.Vec3) {
	c.EulerRotation = rotation
	c.IsDirty = true
}

func (c *Camera) GetView() math.Mat4 {
	if c.IsDirty {
		rotation := math.NewMat4EulerXYZ(c.EulerRotation.X, c.EulerRotation.Y, c.EulerRotation.Z)
		translation := math.NewMat4Translation(c.Position)
		c.ViewMatrix = rotation.Mul(translation).Inverse()
		c.IsDirty = false
	}
	return c.ViewMatrix
}

func (c *Camera) Forward() math.Vec3 {
	return c.GetView().Forward()
}

func (c *Camera) Backward() math.Vec3 {
	return c.GetView().Backward()
}

func (c *Camera) Left() math.Vec3 {
	return c.GetView().Left()
}

func (c *Camera) Right() math.Vec3 {
	return c.GetView().Right()
}

func (c *Camera) MoveForward(amount float32) {
	c.move(c.Forward(), amount)
}

func (c *Camera) MoveBackward(amount float32) {
	c.move(c.Backward(), amount)
}

func (c *Camera) MoveLeft(amount float32) {
	c.move(c.Left(), amount)
}

func (c *Camera) MoveRight(amount float32) {
	c.move(c.Right(), amount)
}

func (c *Camera) MoveUp(amount float32) {
	c.move(math.NewVec3Up(), amount)
}

func (c *Camera) MoveDown(amount float32) {
	c.move(math.NewVec3Down(), amount)
}

func (c *Camera) move(direction math.Vec3, amount float32) {
	c.Position = c.Position.Add(direction.MulScalar(amount))
	c.IsDirty = true
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation.Y += amount
	c.IsDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation.X += amount
	// Clamp to 89 degrees either way to avoid gimbal lock.
	limit := math.DegToRad(89.0)
	c.EulerRotation.X = math.Clamp(c.EulerRotation.X, -limit, limit)
	c.IsDirty = true
}
