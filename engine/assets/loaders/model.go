package loaders

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/scene"
)

const meshVersion uint16 = 1

type meshHeader struct {
	Magic        uint32
	Kind         uint32
	Version      uint16
	LodCount     uint16
	BoundsCenter math.Vec3
	BoundsRadius float32
}

type lodHeader struct {
	VertexCount  uint32
	IndexCount   uint32
	SubmeshCount uint32
}

// Fixed-size portion of a serialized submesh. Name and material follow
// separately because they are variable length.
type submeshRecord struct {
	IndexOffset  uint32
	IndexCount   uint32
	VertexOffset uint32
	HasBounds    uint8
	HasMaterial  uint8
}

type materialRecord struct {
	Domain               uint8
	BaseColorKey         uint64
	NormalKey            uint64
	MetallicRoughnessKey uint64
	EmissiveKey          uint64
	BaseColorFactor      math.Vec4
	MetallicFactor       float32
	RoughnessFactor      float32
	EmissiveFactor       math.Vec3
	AlphaCutoff          float32
	TwoSided             uint8
}

/**
 * @brief Reads a packed mesh container. LODs are stored finest first,
 * matching the order the mesh eviction policy expects.
 */
func LoadMesh(path, name string) (*scene.Mesh, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadMesh(bufio.NewReader(file), name)
}

func ReadMesh(r io.Reader, name string) (*scene.Mesh, error) {
	var header meshHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("mesh %q: header: %w", name, err)
	}
	if header.Magic != metadata.ResourceMagic {
		return nil, fmt.Errorf("mesh %q: bad magic 0x%08x", name, header.Magic)
	}
	if header.Kind != uint32(metadata.ResourceTypeMesh) {
		return nil, fmt.Errorf("mesh %q: wrong resource kind %d", name, header.Kind)
	}
	if header.Version != meshVersion {
		return nil, fmt.Errorf("mesh %q: unsupported version %d", name, header.Version)
	}
	if header.LodCount == 0 {
		return nil, fmt.Errorf("mesh %q: no LODs", name)
	}

	lods := make([]scene.MeshLod, header.LodCount)
	for i := range lods {
		lod, err := readLod(r)
		if err != nil {
			return nil, fmt.Errorf("mesh %q: lod %d: %w", name, i, err)
		}
		lods[i] = lod
	}
	return scene.NewMesh(scene.MeshConfig{
		Name: name,
		Lods: lods,
		Bounds: math.Sphere{
			Center: header.BoundsCenter,
			Radius: header.BoundsRadius,
		},
	}), nil
}

func readLod(r io.Reader) (scene.MeshLod, error) {
	var header lodHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return scene.MeshLod{}, err
	}
	lod := scene.MeshLod{
		Vertices: make([]math.Vertex3D, header.VertexCount),
		Indices:  make([]uint32, header.IndexCount),
	}
	if err := binary.Read(r, binary.LittleEndian, &lod.Vertices); err != nil {
		return scene.MeshLod{}, fmt.Errorf("vertices: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &lod.Indices); err != nil {
		return scene.MeshLod{}, fmt.Errorf("indices: %w", err)
	}
	lod.Submeshes = make([]scene.Submesh, header.SubmeshCount)
	for i := range lod.Submeshes {
		submesh, err := readSubmesh(r)
		if err != nil {
			return scene.MeshLod{}, fmt.Errorf("submesh %d: %w", i, err)
		}
		lod.Submeshes[i] = submesh
	}
	return lod, nil
}

func readSubmesh(r io.Reader) (scene.Submesh, error) {
	name, err := readString(r)
	if err != nil {
		return scene.Submesh{}, err
	}
	var record submeshRecord
	if err := binary.Read(r, binary.LittleEndian, &record); err != nil {
		return scene.Submesh{}, err
	}
	submesh := scene.Submesh{
		Name:         name,
		IndexOffset:  record.IndexOffset,
		IndexCount:   record.IndexCount,
		VertexOffset: record.VertexOffset,
	}
	if record.HasBounds != 0 {
		bounds := &math.Extents3D{}
		if err := binary.Read(r, binary.LittleEndian, bounds); err != nil {
			return scene.Submesh{}, err
		}
		submesh.Bounds = bounds
	}
	if record.HasMaterial != 0 {
		material, err := readMaterial(r)
		if err != nil {
			return scene.Submesh{}, err
		}
		submesh.Material = material
	}
	return submesh, nil
}

func readMaterial(r io.Reader) (*metadata.Material, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	var record materialRecord
	if err := binary.Read(r, binary.LittleEndian, &record); err != nil {
		return nil, err
	}
	return &metadata.Material{
		Name:                 name,
		Domain:               metadata.RenderDomain(record.Domain),
		BaseColorKey:         metadata.ResourceKey(record.BaseColorKey),
		NormalKey:            metadata.ResourceKey(record.NormalKey),
		MetallicRoughnessKey: metadata.ResourceKey(record.MetallicRoughnessKey),
		EmissiveKey:          metadata.ResourceKey(record.EmissiveKey),
		BaseColorFactor:      record.BaseColorFactor,
		MetallicFactor:       record.MetallicFactor,
		RoughnessFactor:      record.RoughnessFactor,
		EmissiveFactor:       record.EmissiveFactor,
		AlphaCutoff:          record.AlphaCutoff,
		TwoSided:             record.TwoSided != 0,
	}, nil
}

/** @brief Writes a mesh in the .omsh container format. */
func WriteMesh(w io.Writer, mesh *scene.Mesh) error {
	lodCount := mesh.LodCount()
	bounds := mesh.BoundingSphere()
	header := meshHeader{
		Magic:        metadata.ResourceMagic,
		Kind:         uint32(metadata.ResourceTypeMesh),
		Version:      meshVersion,
		LodCount:     uint16(lodCount),
		BoundsCenter: bounds.Center,
		BoundsRadius: bounds.Radius,
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("mesh %q: header: %w", mesh.Name(), err)
	}
	for i := 0; i < lodCount; i++ {
		if err := writeLod(w, *mesh.Lod(i)); err != nil {
			return fmt.Errorf("mesh %q: lod %d: %w", mesh.Name(), i, err)
		}
	}
	return nil
}

func writeLod(w io.Writer, lod scene.MeshLod) error {
	header := lodHeader{
		VertexCount:  uint32(len(lod.Vertices)),
		IndexCount:   uint32(len(lod.Indices)),
		SubmeshCount: uint32(len(lod.Submeshes)),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, lod.Vertices); err != nil {
		return fmt.Errorf("vertices: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, lod.Indices); err != nil {
		return fmt.Errorf("indices: %w", err)
	}
	for i, submesh := range lod.Submeshes {
		if err := writeSubmesh(w, submesh); err != nil {
			return fmt.Errorf("submesh %d: %w", i, err)
		}
	}
	return nil
}

func writeSubmesh(w io.Writer, submesh scene.Submesh) error {
	if err := writeString(w, submesh.Name); err != nil {
		return err
	}
	record := submeshRecord{
		IndexOffset:  submesh.IndexOffset,
		IndexCount:   submesh.IndexCount,
		VertexOffset: submesh.VertexOffset,
	}
	if submesh.Bounds != nil {
		record.HasBounds = 1
	}
	if submesh.Material != nil {
		record.HasMaterial = 1
	}
	if err := binary.Write(w, binary.LittleEndian, record); err != nil {
		return err
	}
	if submesh.Bounds != nil {
		if err := binary.Write(w, binary.LittleEndian, submesh.Bounds); err != nil {
			return err
		}
	}
	if submesh.Material != nil {
		if err := writeMaterial(w, submesh.Material); err != nil {
			return err
		}
	}
	return nil
}

func writeMaterial(w io.Writer, material *metadata.Material) error {
	if err := writeString(w, material.Name); err != nil {
		return err
	}
	record := materialRecord{
		Domain:               uint8(material.Domain),
		BaseColorKey:         uint64(material.BaseColorKey),
		NormalKey:            uint64(material.NormalKey),
		MetallicRoughnessKey: uint64(material.MetallicRoughnessKey),
		EmissiveKey:          uint64(material.EmissiveKey),
		BaseColorFactor:      material.BaseColorFactor,
		MetallicFactor:       material.MetallicFactor,
		RoughnessFactor:      material.RoughnessFactor,
		EmissiveFactor:       material.EmissiveFactor,
		AlphaCutoff:          material.AlphaCutoff,
	}
	if material.TwoSided {
		record.TwoSided = 1
	}
	return binary.Write(w, binary.LittleEndian, record)
}

func writeString(w io.Writer, s string) error {
	if len(s) > 0xffff {
		return fmt.Errorf("string too long (%d bytes)", len(s))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
