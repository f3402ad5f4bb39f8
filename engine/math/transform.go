package math

func TransformCreate() *Transform {
	t := &Transform{}
	t.SetPositionRotationScale(NewVec3Zero(), NewQuatIdentity(), NewVec3One())
	t.Local = NewMat4Identity()
	return t
}

func TransformFromPosition(position Vec3) *Transform {
	t := TransformCreate()
	t.SetPosition(position)
	return t
}

func TransformFromPositionRotation(position Vec3, rotation Quaternion) *Transform {
	t := TransformCreate()
	t.SetPositionRotationScale(position, rotation, NewVec3One())
	return t
}

func TransformFromPositionRotationScale(position Vec3, rotation Quaternion, scale Vec3) *Transform {
	t := TransformCreate()
	t.SetPositionRotationScale(position, rotation, scale)
	return t
}

func (t *Transform) SetPosition(position Vec3) {
	t.Position = position
	t.IsDirty = true
}

func (t *Transform) Translate(translation Vec3) {
	t.Position = t.Position.Add(translation)
	t.IsDirty = true
}

func (t *Transform) SetRotation(rotation Quaternion) {
	t.Rotation = rotation
	t.IsDirty = true
}

func (t *Transform) Rotate(rotation Quaternion) {
	t.Rotation = t.Rotation.Mul(rotation)
	t.IsDirty = true
}

func (t *Transform) SetScale(scale Vec3) {
	t.Scale = scale
	t.IsDirty = true
}

func (t *Transform) SetPositionRotationScale(position Vec3, rotation Quaternion, scale Vec3) {
	t.Position = position
	t.Rotation = rotation
	t.Scale = scale
	t.IsDirty = true
}

// GetLocal returns the local matrix, rebuilding it if dirty.
func (t *Transform) GetLocal() Mat4 {
	if t.IsDirty {
		tr := t.Rotation.ToMat4().Mul(NewMat4Scale(t.Scale))
		t.Local = NewMat4Translation(t.Position).Mul(tr)
		t.IsDirty = false
	}
	return t.Local
}

// GetWorld returns the transform's world matrix, chaining parents.
func (t *Transform) GetWorld() Mat4 {
	local := t.GetLocal()
	if t.Parent != nil {
		return t.Parent.GetWorld().Mul(local)
	}
	return local
}
