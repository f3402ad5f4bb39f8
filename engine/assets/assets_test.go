package assets_test

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/abdes/oxygen/engine/assets"
	"github.com/abdes/oxygen/engine/assets/loaders"
)

func newManager(t *testing.T) (*assets.AssetManager, string) {
	t.Helper()
	root := t.TempDir()
	for _, kind := range []string{"textures", "meshes", "fonts"} {
		if err := os.MkdirAll(filepath.Join(root, kind), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	am, err := assets.NewAssetManager(assets.Config{Root: root})
	if err != nil {
		t.Fatalf("NewAssetManager: %v", err)
	}
	t.Cleanup(am.Shutdown)
	return am, root
}

func writePng(t *testing.T, path string, width, height int) {
	t.Helper()
	source := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			source.Set(x, y, color.RGBA{R: 128, A: 255})
		}
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if err := png.Encode(file, source); err != nil {
		t.Fatal(err)
	}
}

func TestLoadTexturePrefersCookedContainer(t *testing.T) {
	am, root := newManager(t)

	// The png is 4x4 but the cooked container is 1x1, so the winner
	// is observable through the decoded extent.
	writePng(t, filepath.Join(root, "textures", "brick.png"), 4, 4)
	cooked, err := loaders.CookImage("brick", image.NewRGBA(image.Rect(0, 0, 1, 1)))
	if err != nil {
		t.Fatal(err)
	}
	file, err := os.Create(filepath.Join(root, "textures", "brick.otex"))
	if err != nil {
		t.Fatal(err)
	}
	if err := loaders.WriteCookedTexture(file, cooked); err != nil {
		t.Fatal(err)
	}
	file.Close()

	loaded, err := am.LoadTexture("brick")
	if err != nil {
		t.Fatalf("LoadTexture: %v", err)
	}
	if loaded.Desc.Width != 1 || loaded.Desc.Height != 1 {
		t.Errorf("loaded %dx%d, want the 1x1 cooked container",
			loaded.Desc.Width, loaded.Desc.Height)
	}
}

func TestLoadTextureCooksSourceImages(t *testing.T) {
	am, root := newManager(t)
	writePng(t, filepath.Join(root, "textures", "grass.png"), 4, 4)

	loaded, err := am.LoadTexture("grass")
	if err != nil {
		t.Fatalf("LoadTexture: %v", err)
	}
	if loaded.Desc.Width != 4 || loaded.Desc.MipLevels != 3 {
		t.Errorf("got %dx mips %d, want 4x with 3 mips",
			loaded.Desc.Width, loaded.Desc.MipLevels)
	}
	if _, err := am.LoadTexture("missing"); err == nil {
		t.Error("missing texture loaded")
	}
}

func TestAssetNameInvertsResolution(t *testing.T) {
	am, root := newManager(t)

	name, ok := am.AssetName(filepath.Join(root, "textures", "props", "crate.png"))
	if !ok || name != "props/crate" {
		t.Errorf("got (%q, %v), want (\"props/crate\", true)", name, ok)
	}
	if _, ok := am.AssetName(filepath.Join(root, "stray.png")); ok {
		t.Error("file outside a category directory mapped to a name")
	}
	if _, ok := am.AssetName("/elsewhere/textures/crate.png"); ok {
		t.Error("file outside the root mapped to a name")
	}
}
