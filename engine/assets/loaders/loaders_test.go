package loaders_test

import (
	"bytes"
	"image"
	"image/color"
	"reflect"
	"testing"

	"github.com/abdes/oxygen/engine/assets/loaders"
	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/scene"
)

func TestCookImageBuildsFullAlignedMipChain(t *testing.T) {
	source := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			source.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}

	cooked, err := loaders.CookImage("checker", source)
	if err != nil {
		t.Fatalf("CookImage: %v", err)
	}
	if got, want := cooked.Desc.MipLevels, metadata.FullMipCount(8, 4); got != want {
		t.Fatalf("mip levels = %d, want %d", got, want)
	}
	wantExtents := [][2]uint32{{8, 4}, {4, 2}, {2, 1}, {1, 1}}
	if len(cooked.Mips) != len(wantExtents) {
		t.Fatalf("mip count = %d, want %d", len(cooked.Mips), len(wantExtents))
	}
	for i, mip := range cooked.Mips {
		if mip.Width != wantExtents[i][0] || mip.Height != wantExtents[i][1] {
			t.Errorf("mip %d extent = %dx%d, want %dx%d",
				i, mip.Width, mip.Height, wantExtents[i][0], wantExtents[i][1])
		}
		if !metadata.IsAligned(uint64(mip.RowPitch), uint64(metadata.RowPitchAlignment)) {
			t.Errorf("mip %d row pitch %d not aligned", i, mip.RowPitch)
		}
		if !metadata.IsAligned(mip.Offset, uint64(metadata.PlacementAlignment)) {
			t.Errorf("mip %d offset %d not aligned", i, mip.Offset)
		}
	}

	packed, err := cooked.PackedTexels()
	if err != nil {
		t.Fatalf("PackedTexels: %v", err)
	}
	// Mip 0 is a solid color, tightly packed at 4 bytes per texel.
	for i := 0; i < 8*4; i++ {
		texel := packed[i*4 : i*4+4]
		if texel[0] != 10 || texel[1] != 20 || texel[2] != 30 || texel[3] != 255 {
			t.Fatalf("texel %d = %v, want [10 20 30 255]", i, texel)
		}
	}
}

func TestCookedTextureRoundTrip(t *testing.T) {
	source := image.NewRGBA(image.Rect(0, 0, 2, 2))
	source.Set(0, 0, color.RGBA{R: 255, A: 255})
	source.Set(1, 0, color.RGBA{G: 255, A: 255})
	source.Set(0, 1, color.RGBA{B: 255, A: 255})
	source.Set(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	cooked, err := loaders.CookImage("tiny", source)
	if err != nil {
		t.Fatalf("CookImage: %v", err)
	}

	var container bytes.Buffer
	if err := loaders.WriteCookedTexture(&container, cooked); err != nil {
		t.Fatalf("WriteCookedTexture: %v", err)
	}
	loaded, err := loaders.ReadCookedTexture(&container, "tiny")
	if err != nil {
		t.Fatalf("ReadCookedTexture: %v", err)
	}

	if loaded.Desc != cooked.Desc {
		t.Errorf("desc changed: got %+v, want %+v", loaded.Desc, cooked.Desc)
	}
	if !reflect.DeepEqual(loaded.Mips, cooked.Mips) {
		t.Errorf("mip table changed: got %+v, want %+v", loaded.Mips, cooked.Mips)
	}
	if !bytes.Equal(loaded.Payload, cooked.Payload) {
		t.Error("payload changed across round trip")
	}
}

func TestReadCookedTextureRejectsCorruptContainer(t *testing.T) {
	source := image.NewRGBA(image.Rect(0, 0, 1, 1))
	cooked, err := loaders.CookImage("pixel", source)
	if err != nil {
		t.Fatalf("CookImage: %v", err)
	}
	var container bytes.Buffer
	if err := loaders.WriteCookedTexture(&container, cooked); err != nil {
		t.Fatalf("WriteCookedTexture: %v", err)
	}

	corrupt := append([]byte(nil), container.Bytes()...)
	corrupt[0] ^= 0xff
	if _, err := loaders.ReadCookedTexture(bytes.NewReader(corrupt), "pixel"); err == nil {
		t.Error("bad magic accepted")
	}

	truncated := container.Bytes()[:container.Len()-16]
	if _, err := loaders.ReadCookedTexture(bytes.NewReader(truncated), "pixel"); err == nil {
		t.Error("truncated payload accepted")
	}
}

func TestMeshContainerRoundTrip(t *testing.T) {
	material := &metadata.Material{
		Name:            "bricks",
		Domain:          metadata.RenderDomainOpaque,
		BaseColorKey:    metadata.ResourceKeyFromName("bricks_albedo"),
		NormalKey:       metadata.ResourceKeyFromName("bricks_normal"),
		BaseColorFactor: math.Vec4{X: 1, Y: 1, Z: 1, W: 1},
		RoughnessFactor: 0.8,
		TwoSided:        true,
	}
	mesh := scene.NewMesh(scene.MeshConfig{
		Name: "triangle",
		Lods: []scene.MeshLod{{
			Vertices: []math.Vertex3D{
				{Position: math.Vec3{X: -1}, Normal: math.Vec3{Z: 1}},
				{Position: math.Vec3{X: 1}, Normal: math.Vec3{Z: 1}, Texcoord: math.Vec2{X: 1}},
				{Position: math.Vec3{Y: 1}, Normal: math.Vec3{Z: 1}, Colour: math.Vec4{W: 1}},
			},
			Indices: []uint32{0, 1, 2},
			Submeshes: []scene.Submesh{{
				Name:       "face",
				IndexCount: 3,
				Material:   material,
				Bounds: &math.Extents3D{
					Min: math.Vec3{X: -1},
					Max: math.Vec3{X: 1, Y: 1},
				},
			}},
		}},
	})

	var container bytes.Buffer
	if err := loaders.WriteMesh(&container, mesh); err != nil {
		t.Fatalf("WriteMesh: %v", err)
	}
	loaded, err := loaders.ReadMesh(&container, "triangle")
	if err != nil {
		t.Fatalf("ReadMesh: %v", err)
	}

	if loaded.ID() != mesh.ID() {
		t.Errorf("ID = %d, want %d", loaded.ID(), mesh.ID())
	}
	if loaded.BoundingSphere() != mesh.BoundingSphere() {
		t.Errorf("bounds = %+v, want %+v", loaded.BoundingSphere(), mesh.BoundingSphere())
	}
	if loaded.LodCount() != 1 {
		t.Fatalf("lod count = %d, want 1", loaded.LodCount())
	}
	if !reflect.DeepEqual(loaded.Lod(0), mesh.Lod(0)) {
		t.Errorf("lod 0 changed: got %+v, want %+v", loaded.Lod(0), mesh.Lod(0))
	}
}
