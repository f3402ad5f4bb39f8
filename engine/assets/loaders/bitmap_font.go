package loaders

import (
	"fmt"

	"github.com/fzipp/bmfont"
)

/**
 * @brief Parses an AngelCode .fnt descriptor. Only the descriptor is
 * read here; the referenced page atlases load through the texture path
 * so they share the cooked pipeline and the bindless table.
 */
func LoadBitmapFont(path string) (*bmfont.Descriptor, error) {
	descriptor, err := bmfont.LoadDescriptor(path)
	if err != nil {
		return nil, fmt.Errorf("bitmap font %q: %w", path, err)
	}
	if len(descriptor.Chars) == 0 {
		return nil, fmt.Errorf("bitmap font %q declares no glyphs", path)
	}
	return descriptor, nil
}
