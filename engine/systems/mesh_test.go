package systems_test

import (
	"errors"
	"testing"

	"github.com/abdes/oxygen/engine/math"
	"github.com/abdes/oxygen/engine/renderer/metadata"
	"github.com/abdes/oxygen/engine/scene"
	"github.com/abdes/oxygen/engine/systems"
)

func triangleMesh(name string) *scene.Mesh {
	return scene.NewMesh(scene.MeshConfig{
		Name: name,
		Lods: []scene.MeshLod{{
			Vertices: []math.Vertex3D{
				{Position: math.NewVec3(0, 0, 0)},
				{Position: math.NewVec3(1, 0, 0)},
				{Position: math.NewVec3(0, 1, 0)},
			},
			Indices:   []uint32{0, 1, 2},
			Submeshes: []scene.Submesh{{Name: "tri", IndexCount: 3}},
		}},
	})
}

func newMeshSystem(t *testing.T, f *coreFixture, policy systems.MeshEvictionPolicy) *systems.MeshSystem {
	t.Helper()
	ms, err := systems.NewMeshSystem(f.backend, f.uploads, f.frames, policy)
	if err != nil {
		t.Fatalf("NewMeshSystem: %v", err)
	}
	return ms
}

func TestMeshResidencyLifecycle(t *testing.T) {
	f := newCore(t, 2)
	ms := newMeshSystem(t, f, nil)
	mesh := triangleMesh("tri")
	key := systems.MeshResidencyKey{ID: mesh.ID(), Lod: 0}

	resources, err := ms.EnsureResident(mesh, 0)
	if err != nil {
		t.Fatalf("EnsureResident: %v", err)
	}
	if resources.IndexCount != 3 {
		t.Fatalf("IndexCount = %d, want 3", resources.IndexCount)
	}
	if ms.IsResident(key) {
		t.Fatal("resident while uploads still in flight")
	}
	if _, ok := ms.Resources(key); ok {
		t.Fatal("Resources handed out buffers with uploads in flight")
	}

	f.completeUploads(t)
	ms.OnFrameStart(1)
	if !ms.IsResident(key) {
		t.Fatal("not resident after uploads completed")
	}
	got, ok := ms.Resources(key)
	if !ok {
		t.Fatal("Resources = false after residency")
	}
	if got.Vertex == nil || got.Index == nil {
		t.Fatal("resident entry has nil buffers")
	}
}

func TestMeshSecondEnsureReusesCache(t *testing.T) {
	f := newCore(t, 2)
	ms := newMeshSystem(t, f, nil)
	mesh := triangleMesh("shared")

	if _, err := ms.EnsureResident(mesh, 0); err != nil {
		t.Fatalf("EnsureResident: %v", err)
	}
	buffersAfterFirst := len(f.backend.Buffers)
	if _, err := ms.EnsureResident(mesh, 0); err != nil {
		t.Fatalf("EnsureResident again: %v", err)
	}
	if got := len(f.backend.Buffers); got != buffersAfterFirst {
		t.Fatalf("second ensure created buffers: %d -> %d", buffersAfterFirst, got)
	}
	if ms.ResidentCount() != 1 {
		t.Fatalf("ResidentCount = %d, want 1", ms.ResidentCount())
	}
}

func TestMeshLruEvictionDefersBufferDestruction(t *testing.T) {
	f := newCore(t, 2)
	ms := newMeshSystem(t, f, nil)
	mesh := triangleMesh("stale")
	key := systems.MeshResidencyKey{ID: mesh.ID(), Lod: 0}

	if _, err := ms.EnsureResident(mesh, 0); err != nil {
		t.Fatalf("EnsureResident: %v", err)
	}
	f.completeUploads(t)
	ms.OnFrameStart(1)
	if !ms.IsResident(key) {
		t.Fatal("not resident after upload completion")
	}
	ms.Touch(key)

	// Still inside the default idle window: nothing to evict.
	ms.OnFrameStart(1 + systems.DefaultMeshEvictionAge)
	if ms.ResidentCount() != 1 {
		t.Fatal("evicted inside the idle window")
	}

	ms.OnFrameStart(2 + systems.DefaultMeshEvictionAge)
	if ms.ResidentCount() != 0 {
		t.Fatalf("ResidentCount = %d after idle window, want 0", ms.ResidentCount())
	}

	// Destruction waits for the frame slot to come around again.
	vb := f.backend.FindBuffer("stale_lod0_vb")
	if vb == nil {
		t.Fatal("vertex buffer not found")
	}
	if vb.Destroyed() {
		t.Fatal("buffer destroyed before the deferred release ran")
	}
	f.frames.ProcessAllDeferredReleases()
	if !vb.Destroyed() {
		t.Fatal("buffer not destroyed by the deferred release")
	}
}

func TestMeshFailedUploadEvictsForRetry(t *testing.T) {
	f := newCore(t, 2)
	ms := newMeshSystem(t, f, nil)
	mesh := triangleMesh("flaky")
	key := systems.MeshResidencyKey{ID: mesh.ID(), Lod: 0}

	if _, err := ms.EnsureResident(mesh, 0); err != nil {
		t.Fatalf("EnsureResident: %v", err)
	}
	queue := f.backend.TestQueue(metadata.QueueRoleTransfer)
	queue.SubmitErr = errors.New("device lost")
	if _, err := f.uploads.Flush(); err == nil {
		t.Fatal("Flush succeeded despite submit failure")
	}
	queue.SubmitErr = nil

	ms.OnFrameStart(1)
	if ms.ResidentCount() != 0 {
		t.Fatalf("failed entry still cached: ResidentCount = %d", ms.ResidentCount())
	}
	if ms.IsResident(key) {
		t.Fatal("failed entry reported resident")
	}

	// The next use starts over from scratch.
	if _, err := ms.EnsureResident(mesh, 0); err != nil {
		t.Fatalf("EnsureResident retry: %v", err)
	}
	f.completeUploads(t)
	ms.OnFrameStart(2)
	if !ms.IsResident(key) {
		t.Fatal("retry did not reach residency")
	}
}

func TestLruPolicyBoundary(t *testing.T) {
	policy := systems.NewLruMeshEviction(10)
	key := systems.MeshResidencyKey{ID: 7, Lod: 0}
	policy.OnMeshAccess(key, 100)

	if victims := policy.SelectResourcesToEvict(110); len(victims) != 0 {
		t.Fatalf("evicted exactly at the age boundary: %v", victims)
	}
	victims := policy.SelectResourcesToEvict(111)
	if len(victims) != 1 || victims[0] != key {
		t.Fatalf("victims = %v, want [%v]", victims, key)
	}
	policy.OnMeshRemoved(key)
	if victims := policy.SelectResourcesToEvict(200); len(victims) != 0 {
		t.Fatalf("removed key nominated again: %v", victims)
	}
}
