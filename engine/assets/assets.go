package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/fzipp/bmfont"

	"github.com/abdes/oxygen/engine/assets/loaders"
	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/scene"
)

/** @brief The asset manager configuration. */
type Config struct {
	/** @brief Directory holding the textures/, meshes/ and fonts/ trees. */
	Root string
	/** @brief Watch the root and fire asset-changed events on writes. */
	HotReload bool
}

/**
 * @brief Resolves asset names to files under the asset root and decodes
 * them into their engine-side forms. Loads are safe to call from job
 * workers; the watcher goroutine only fires events and never decodes.
 */
type AssetManager struct {
	root string

	mutex   sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  bool
	/** @brief Inverse of ResourceKeyFromName over the textures tree. */
	textureNames map[metadata.ResourceKey]string
}

func NewAssetManager(config Config) (*AssetManager, error) {
	info, err := os.Stat(config.Root)
	if err != nil {
		return nil, fmt.Errorf("asset root %q: %w", config.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset root %q is not a directory", config.Root)
	}

	am := &AssetManager{
		root:         config.Root,
		done:         make(chan struct{}),
		textureNames: make(map[metadata.ResourceKey]string),
	}
	am.indexTextures()
	if config.HotReload {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("asset watcher: %w", err)
		}
		am.watcher = watcher
		if err := am.watchRecursive(config.Root); err != nil {
			watcher.Close()
			return nil, err
		}
		go am.watch()
		core.LogInfo("asset hot reload enabled for %s", config.Root)
	}
	return am, nil
}

/**
 * @brief Loads a texture by name. A cooked .otex container wins over a
 * source image; source images are cooked on the fly with a full mip
 * chain, which is the slow path meant for development.
 */
func (am *AssetManager) LoadTexture(name string) (*metadata.CookedTexture, error) {
	if path, ok := am.resolve("textures", name, ".otex"); ok {
		return loaders.LoadCookedTexture(path, name)
	}
	if path, ok := am.resolve("textures", name, ".png", ".jpg", ".jpeg"); ok {
		return loaders.LoadImage(path, name)
	}
	return nil, fmt.Errorf("texture %q not found under %s", name, am.root)
}

/** @brief Loads a packed mesh by name from meshes/<name>.omsh. */
func (am *AssetManager) LoadMesh(name string) (*scene.Mesh, error) {
	path, ok := am.resolve("meshes", name, ".omsh")
	if !ok {
		return nil, fmt.Errorf("mesh %q not found under %s", name, am.root)
	}
	return loaders.LoadMesh(path, name)
}

/** @brief Loads a bitmap font descriptor from fonts/<name>.fnt. */
func (am *AssetManager) LoadFont(name string) (*bmfont.Descriptor, error) {
	path, ok := am.resolve("fonts", name, ".fnt")
	if !ok {
		return nil, fmt.Errorf("font %q not found under %s", name, am.root)
	}
	return loaders.LoadBitmapFont(path)
}

/**
 * @brief Maps a file path back to its asset name, the inverse of the
 * resolution the loaders use. Reload subscribers feed asset-changed
 * paths through this to find which resource key to repoint.
 */
func (am *AssetManager) AssetName(path string) (string, bool) {
	relative, err := filepath.Rel(am.root, path)
	if err != nil || strings.HasPrefix(relative, "..") {
		return "", false
	}
	parts := strings.SplitN(filepath.ToSlash(relative), "/", 2)
	if len(parts) != 2 {
		return "", false
	}
	name := strings.TrimSuffix(parts[1], filepath.Ext(parts[1]))
	return name, true
}

/**
 * @brief The asset name behind a texture resource key. Keys are one-way
 * hashes of names, so materials that carry only keys go through this
 * index to reach a loadable asset. New files picked up by the watcher
 * join the index as they appear.
 */
func (am *AssetManager) TextureName(key metadata.ResourceKey) (string, bool) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	name, ok := am.textureNames[key]
	return name, ok
}

// Walks the textures tree once; every file becomes an indexed name
// regardless of extension, since cooked and source forms share a name.
func (am *AssetManager) indexTextures() {
	root := filepath.Join(am.root, "textures")
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		am.indexTexturePath(path)
		return nil
	})
}

func (am *AssetManager) indexTexturePath(path string) {
	name, ok := am.AssetName(path)
	if !ok {
		return
	}
	relative, err := filepath.Rel(am.root, path)
	if err != nil || !strings.HasPrefix(filepath.ToSlash(relative), "textures/") {
		return
	}
	am.mutex.Lock()
	am.textureNames[metadata.ResourceKeyFromName(name)] = name
	am.mutex.Unlock()
}

func (am *AssetManager) Shutdown() {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.closed {
		return
	}
	am.closed = true
	if am.watcher != nil {
		close(am.done)
	}
}

func (am *AssetManager) resolve(kind, name string, extensions ...string) (string, bool) {
	for _, extension := range extensions {
		path := filepath.Join(am.root, kind, name+extension)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

func (am *AssetManager) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return am.watcher.Add(path)
		}
		return nil
	})
}

func (am *AssetManager) watch() {
	for {
		select {
		case event, ok := <-am.watcher.Events:
			if !ok {
				return
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if event.Op&fsnotify.Create != 0 {
					am.watchRecursive(event.Name)
				}
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.indexTexturePath(event.Name)
				core.EventFire(core.EventCodeAssetChanged, am,
					core.AssetChangedEvent{Path: event.Name})
			}
			if event.Op&fsnotify.Remove != 0 {
				am.watcher.Remove(event.Name)
			}

		case err, ok := <-am.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %v", err)

		case <-am.done:
			am.watcher.Close()
			return
		}
	}
}
