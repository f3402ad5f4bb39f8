//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// Compiles every GLSL source under assets/shaders to SPIR-V next to it.
func (Build) Shaders() error {
	return buildShaders()
}

// Compiles the testbed binary.
func (Build) Testbed() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "testbed-app", "."), withStream())
	return err
}

// Runs the full test suite.
func (Build) Test() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

func buildShaders() error {
	entries, err := os.ReadDir(shaderDir)
	if os.IsNotExist(err) {
		fmt.Printf("no %s directory, skipping shader build\n", shaderDir)
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if ext != ".vert" && ext != ".frag" && ext != ".comp" {
			continue
		}
		src := filepath.Join(shaderDir, entry.Name())
		out := strings.TrimSuffix(src, ext) + strings.ReplaceAll(ext, ".", "_") + ".spv"
		if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}
