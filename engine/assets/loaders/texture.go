package loaders

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/abdes/oxygen/engine/renderer/metadata"
)

const cookedTextureVersion uint16 = 1

// On-disk header of the .otex container. Fixed-size fields only so the
// whole struct round-trips through encoding/binary.
type cookedTextureHeader struct {
	Magic        uint32
	Kind         uint32
	Version      uint16
	TextureType  uint8
	Format       uint8
	Width        uint32
	Height       uint32
	Depth        uint32
	ArraySize    uint32
	MipLevels    uint32
	PayloadBytes uint64
}

/**
 * @brief Reads a cooked texture container. The payload inside is
 * already mip-aligned; the layout is still validated so a corrupt or
 * miscooked file never reaches the GPU.
 */
func LoadCookedTexture(path, name string) (*metadata.CookedTexture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCookedTexture(bufio.NewReader(file), name)
}

func ReadCookedTexture(r io.Reader, name string) (*metadata.CookedTexture, error) {
	var header cookedTextureHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("cooked texture %q: header: %w", name, err)
	}
	if header.Magic != metadata.ResourceMagic {
		return nil, fmt.Errorf("cooked texture %q: bad magic 0x%08x", name, header.Magic)
	}
	if header.Kind != uint32(metadata.ResourceTypeCookedTexture) {
		return nil, fmt.Errorf("cooked texture %q: wrong resource kind %d", name, header.Kind)
	}
	if header.Version != cookedTextureVersion {
		return nil, fmt.Errorf("cooked texture %q: unsupported version %d", name, header.Version)
	}

	mips := make([]metadata.CookedMip, header.MipLevels)
	if err := binary.Read(r, binary.LittleEndian, &mips); err != nil {
		return nil, fmt.Errorf("cooked texture %q: mip table: %w", name, err)
	}
	payload := make([]byte, header.PayloadBytes)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("cooked texture %q: payload: %w", name, err)
	}

	cooked := &metadata.CookedTexture{
		Desc: metadata.TextureDesc{
			Name:      name,
			Type:      metadata.TextureType(header.TextureType),
			Format:    metadata.TextureFormat(header.Format),
			Width:     header.Width,
			Height:    header.Height,
			Depth:     header.Depth,
			ArraySize: header.ArraySize,
			MipLevels: header.MipLevels,
			Usage:     metadata.TextureUsageShaderResource,
		},
		Mips:    mips,
		Payload: payload,
	}
	if err := cooked.ValidateLayout(); err != nil {
		return nil, err
	}
	return cooked, nil
}

/** @brief Writes a cooked texture in the .otex container format. */
func WriteCookedTexture(w io.Writer, cooked *metadata.CookedTexture) error {
	header := cookedTextureHeader{
		Magic:        metadata.ResourceMagic,
		Kind:         uint32(metadata.ResourceTypeCookedTexture),
		Version:      cookedTextureVersion,
		TextureType:  uint8(cooked.Desc.Type),
		Format:       uint8(cooked.Desc.Format),
		Width:        cooked.Desc.Width,
		Height:       cooked.Desc.Height,
		Depth:        cooked.Desc.Depth,
		ArraySize:    cooked.Desc.ArraySize,
		MipLevels:    cooked.Desc.MipLevels,
		PayloadBytes: uint64(len(cooked.Payload)),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("cooked texture %q: header: %w", cooked.Desc.Name, err)
	}
	if err := binary.Write(w, binary.LittleEndian, cooked.Mips); err != nil {
		return fmt.Errorf("cooked texture %q: mip table: %w", cooked.Desc.Name, err)
	}
	if _, err := w.Write(cooked.Payload); err != nil {
		return fmt.Errorf("cooked texture %q: payload: %w", cooked.Desc.Name, err)
	}
	return nil
}
