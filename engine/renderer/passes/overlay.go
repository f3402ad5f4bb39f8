package passes

import (
	"fmt"

	"github.com/fzipp/bmfont"
	"honnef.co/go/safeish"

	"github.com/abdes/oxygen/engine/renderer"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/systems"
)

/** @brief One textured glyph corner. Two triangles per glyph. */
type overlayVertex struct {
	X, Y float32
	U, V float32
}

const overlayVertexSize = 16

type overlayGlyph struct {
	x, y          float32
	width, height float32
	xOffset       float32
	yOffset       float32
	xAdvance      float32
}

type overlayScratch struct {
	buffer   renderer.Buffer
	capacity uint64
}

/**
 * @brief Draws a line of debug text over the finished frame using a
 * bitmap font atlas. Glyph quads are rebuilt every frame into a per-slot
 * CPU visible scratch buffer, so a slot's quads are never overwritten
 * while the GPU may still read them.
 */
type OverlayPass struct {
	backend renderer.GraphicsBackend
	frames  *renderer.FrameResourceManager

	glyphs     map[rune]overlayGlyph
	kerning    map[[2]rune]float32
	lineHeight float32
	atlasW     float32
	atlasH     float32

	/** @brief Produces the text for the current frame. */
	text func(frame *systems.FrameContext) string

	scratch []overlayScratch
	/** @brief Vertices staged by Prepare for this frame's draw. */
	vertexCount uint32
}

func NewOverlayPass(
	backend renderer.GraphicsBackend,
	frames *renderer.FrameResourceManager,
	font *bmfont.Descriptor,
	text func(frame *systems.FrameContext) string,
) (*OverlayPass, error) {
	if backend == nil || frames == nil || font == nil || text == nil {
		return nil, fmt.Errorf("overlay pass needs a backend, frame resource manager, font and text source")
	}
	p := &OverlayPass{
		backend:    backend,
		frames:     frames,
		glyphs:     make(map[rune]overlayGlyph),
		kerning:    make(map[[2]rune]float32),
		lineHeight: float32(font.Common.LineHeight),
		atlasW:     float32(font.Common.ScaleW),
		atlasH:     float32(font.Common.ScaleH),
		text:       text,
		scratch:    make([]overlayScratch, frames.SlotCount()),
	}
	for _, g := range font.Chars {
		p.glyphs[g.ID] = overlayGlyph{
			x:        float32(g.X),
			y:        float32(g.Y),
			width:    float32(g.Width),
			height:   float32(g.Height),
			xOffset:  float32(g.XOffset),
			yOffset:  float32(g.YOffset),
			xAdvance: float32(g.XAdvance),
		}
	}
	for pair, k := range font.Kerning {
		p.kerning[[2]rune{pair.First, pair.Second}] = float32(k.Amount)
	}
	return p, nil
}

func (p *OverlayPass) Name() string { return "overlay_pass" }

/** @brief Lays the frame's text out and fills the slot's scratch buffer. */
func (p *OverlayPass) Prepare(frame *systems.FrameContext) error {
	p.vertexCount = 0
	vertices := p.layout(p.text(frame))
	if len(vertices) == 0 {
		return nil
	}
	buffer, err := p.ensureScratch(frame.Slot, uint64(len(vertices))*overlayVertexSize)
	if err != nil {
		return err
	}
	mapped, err := buffer.Map()
	if err != nil {
		return fmt.Errorf("mapping overlay scratch: %w", err)
	}
	copy(mapped, safeish.SliceCast[[]byte](vertices))
	buffer.Unmap()
	p.vertexCount = uint32(len(vertices))
	return nil
}

func (p *OverlayPass) Execute(frame *systems.FrameContext) error {
	if p.vertexCount == 0 {
		return nil
	}
	buffer := p.scratch[frame.Slot].buffer

	recorder, err := frame.Renderer.AcquireCommandRecorder(
		metadata.QueueRoleGraphics, p.Name(), false)
	if err != nil {
		return err
	}
	defer recorder.Release()

	backBuffer := frame.Surface.CurrentBackBuffer()
	recorder.RequireTextureState(backBuffer, metadata.ResourceStateRenderTarget)
	recorder.RequireBufferState(buffer, metadata.ResourceStateVertexAndConstantBuffer)
	recorder.FlushBarriers()

	recorder.SetViewport(metadata.Viewport{
		Width:    float32(frame.Surface.Width()),
		Height:   float32(frame.Surface.Height()),
		MaxDepth: 1,
	})
	recorder.SetScissor(0, 0, frame.Surface.Width(), frame.Surface.Height())
	recorder.BindRenderTargets([]renderer.Texture{backBuffer}, nil)
	recorder.Draw(p.vertexCount, 1, 0, 0)
	return recorder.Release()
}

// Pen-based layout in pixels, origin top left. Unknown runes are
// skipped rather than substituted.
func (p *OverlayPass) layout(text string) []overlayVertex {
	vertices := make([]overlayVertex, 0, len(text)*6)
	penX, penY := float32(8), float32(8)
	var prev rune
	for _, r := range text {
		if r == '\n' {
			penX = 8
			penY += p.lineHeight
			prev = 0
			continue
		}
		glyph, ok := p.glyphs[r]
		if !ok {
			prev = 0
			continue
		}
		if prev != 0 {
			penX += p.kerning[[2]rune{prev, r}]
		}
		x0 := penX + glyph.xOffset
		y0 := penY + glyph.yOffset
		x1 := x0 + glyph.width
		y1 := y0 + glyph.height
		u0 := glyph.x / p.atlasW
		v0 := glyph.y / p.atlasH
		u1 := (glyph.x + glyph.width) / p.atlasW
		v1 := (glyph.y + glyph.height) / p.atlasH
		vertices = append(vertices,
			overlayVertex{x0, y0, u0, v0},
			overlayVertex{x1, y0, u1, v0},
			overlayVertex{x1, y1, u1, v1},
			overlayVertex{x0, y0, u0, v0},
			overlayVertex{x1, y1, u1, v1},
			overlayVertex{x0, y1, u0, v1},
		)
		penX += glyph.xAdvance
		prev = r
	}
	return vertices
}

// Grows the slot's scratch buffer when the text outgrows it. The old
// buffer may still be referenced by in-flight work, so its destruction
// is deferred through the frame resource manager.
func (p *OverlayPass) ensureScratch(slot int, size uint64) (renderer.Buffer, error) {
	s := &p.scratch[slot]
	if s.buffer != nil && s.capacity >= size {
		return s.buffer, nil
	}
	capacity := s.capacity
	if capacity == 0 {
		capacity = 4096
	}
	for capacity < size {
		capacity *= 2
	}
	buffer, err := p.backend.CreateBuffer(metadata.BufferDesc{
		Name:       fmt.Sprintf("overlay_scratch_%d", slot),
		Size:       capacity,
		Usage:      metadata.BufferUsageVertex,
		CpuVisible: true,
		Stride:     overlayVertexSize,
	})
	if err != nil {
		return nil, fmt.Errorf("overlay scratch: %w", err)
	}
	if old := s.buffer; old != nil {
		err := p.frames.RegisterDeferredAction(func() error {
			old.Destroy()
			return nil
		})
		if err != nil {
			old.Destroy()
		}
	}
	s.buffer = buffer
	s.capacity = capacity
	return buffer, nil
}

func (p *OverlayPass) Shutdown() error {
	for i := range p.scratch {
		if p.scratch[i].buffer != nil {
			p.scratch[i].buffer.Destroy()
			p.scratch[i].buffer = nil
		}
	}
	return nil
}
