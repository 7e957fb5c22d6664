package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-terrain/internal/compositor"
	"github.com/Faultbox/midgard-terrain/internal/layer"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

func newTestSession(t *testing.T) *layer.Session {
	t.Helper()
	m, err := terrain.NewMap(terrain.Settings{
		MapSize:      grid.Size{X: 7, Y: 7},
		QuadPerMesh:  grid.Size{X: 2, Y: 2},
		MeshPerChunk: terrain.MeshPerChunk2x2,
		MeshQuadSize: 1,
		HeightRange:  terrain.HeightRange{Min: 0, Max: 10},
	}, nil)
	if err != nil {
		t.Fatalf("NewMap failed: %v", err)
	}
	return layer.NewSession(m, 0.1, nil)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "terrain"), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestMissingFilesAreEmpty(t *testing.T) {
	s := newTestStore(t)

	hm, err := s.LoadHeightmap()
	if err != nil || hm != nil {
		t.Errorf("expected nil heightmap without error, got %v, %v", hm, err)
	}

	state, err := s.LoadMaterials(grid.Size{X: 3, Y: 2})
	if err != nil {
		t.Fatalf("LoadMaterials failed: %v", err)
	}
	if state.Weights.Size() != (grid.Size{X: 3, Y: 2}) {
		t.Errorf("expected 3x2 weights, got %v", state.Weights.Size())
	}

	sess := newTestSession(t)
	l := sess.AddPaintedLayer("hills", compositor.Maximum)
	loaded, err := s.LoadLayer(l)
	if err != nil || loaded {
		t.Errorf("expected missing layer to load nothing, got %v, %v", loaded, err)
	}
	if l.Buffer.HasData() {
		t.Error("expected layer to stay empty")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	sess := newTestSession(t)
	hills := sess.AddPaintedLayer("hills", compositor.Maximum)
	grass := sess.AddMaterialLayer("grass", 2)
	dirty, err := sess.Stamp(hills.ID, mgl32.Vec2{4, 4}, layer.Brush{Radius: 2, Value: 0.8})
	if err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}
	sess.Commit(dirty)
	dirty, _ = sess.Stamp(grass.ID, mgl32.Vec2{2, 2}, layer.Brush{Radius: 1, Value: 1})
	sess.Commit(dirty)

	if err := s.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	for _, name := range []string{heightmapFile, weightsFile, materialsFile, "layers/hills.txt", "layers/grass.txt"} {
		if _, err := os.Stat(filepath.Join(s.Dir(), name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
		if _, err := os.Stat(filepath.Join(s.Dir(), name+".tmp")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected no temp file left for %s", name)
		}
	}

	restored := newTestSession(t)
	restored.AddPaintedLayer("hills", compositor.Maximum)
	restored.AddMaterialLayer("grass", 2)
	if err := s.LoadSession(restored); err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}

	want := sess.Map.HeightmapData.Cells()
	for i, v := range restored.Map.HeightmapData.Cells() {
		if d := v - want[i]; d > 1e-3 || d < -1e-3 {
			t.Fatalf("cell %d: expected %v, got %v", i, want[i], v)
		}
	}
	if got := restored.Materials.Materials.Get(2, 2); got != 2 {
		t.Errorf("expected material 2 at (2,2), got %d", got)
	}

	hm, err := s.LoadHeightmap()
	if err != nil {
		t.Fatalf("LoadHeightmap failed: %v", err)
	}
	if hm.Size() != sess.Map.HeightmapData.Size() {
		t.Errorf("expected %v heightmap, got %v", sess.Map.HeightmapData.Size(), hm.Size())
	}
	state, err := s.LoadMaterials(hm.Size())
	if err != nil {
		t.Fatalf("LoadMaterials failed: %v", err)
	}
	if state.Materials.Get(2, 2) != 2 || state.Weights.Get(2, 2).Float32() != 1 {
		t.Errorf("unexpected material cell %d/%v", state.Materials.Get(2, 2), state.Weights.Get(2, 2))
	}
}

func TestLayerBufferTypes(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t)
	r := sess.Map.HeightRange

	bytes := grid.New[uint8](2, 2)
	bytes.Set(1, 0, 200)
	shorts := grid.New[uint16](2, 2)
	shorts.Set(0, 1, 40000)
	floats := grid.New[float32](2, 2)
	floats.Set(1, 1, 0.5)
	sparse := grid.New[grid.Maskable[float32]](2, 2)
	sparse.Set(0, 0, grid.Some[float32](0.25))

	layers := []*layer.Layer{
		sess.AddHeightLayer("bytes", layer.KindTexture, grid.Point{}, compositor.Maximum, layer.NewByteBuffer(bytes)),
		sess.AddHeightLayer("shorts", layer.KindTexture, grid.Point{}, compositor.Maximum, layer.NewUShortBuffer(shorts)),
		sess.AddHeightLayer("floats", layer.KindTexture, grid.Point{}, compositor.Maximum, layer.NewFloatBuffer(floats, r, true)),
		sess.AddHeightLayer("sparse", layer.KindTexture, grid.Point{}, compositor.Maximum, layer.NewMaskableFloatBuffer(sparse, r, true)),
	}
	for _, l := range layers {
		if err := s.SaveLayer(l); err != nil {
			t.Fatalf("SaveLayer(%s) failed: %v", l.Name, err)
		}
	}

	// Reload into fresh 1x1 buffers so growth is exercised too.
	gotBytes := grid.New[uint8](1, 1)
	gotShorts := grid.New[uint16](1, 1)
	gotFloats := grid.New[float32](1, 1)
	gotSparse := grid.New[grid.Maskable[float32]](1, 1)
	targets := []*layer.Layer{
		{Name: "bytes", Buffer: layer.NewByteBuffer(gotBytes)},
		{Name: "shorts", Buffer: layer.NewUShortBuffer(gotShorts)},
		{Name: "floats", Buffer: layer.NewFloatBuffer(gotFloats, r, true)},
		{Name: "sparse", Buffer: layer.NewMaskableFloatBuffer(gotSparse, r, true)},
	}
	for _, l := range targets {
		ok, err := s.LoadLayer(l)
		if err != nil || !ok {
			t.Fatalf("LoadLayer(%s): expected load, got %v, %v", l.Name, ok, err)
		}
		if l.Buffer.Size() != (grid.Size{X: 2, Y: 2}) {
			t.Errorf("%s: expected buffer grown to 2x2, got %v", l.Name, l.Buffer.Size())
		}
	}

	if gotBytes.Get(1, 0) != 200 {
		t.Errorf("expected byte 200, got %d", gotBytes.Get(1, 0))
	}
	if gotShorts.Get(0, 1) != 40000 {
		t.Errorf("expected ushort 40000, got %d", gotShorts.Get(0, 1))
	}
	if gotFloats.Get(1, 1) != 0.5 {
		t.Errorf("expected float 0.5, got %v", gotFloats.Get(1, 1))
	}
	if v, ok := gotSparse.Get(0, 0).Get(); !ok || v != 0.25 {
		t.Errorf("expected sparse 0.25, got %v (ok %v)", v, ok)
	}
	if gotSparse.Get(1, 1).Valid {
		t.Error("expected unset sparse cell to stay unset")
	}
}

func TestLoadMalformedLayer(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession(t)
	l := sess.AddPaintedLayer("broken", compositor.Maximum)
	os.WriteFile(s.LayerPath(l), []byte("2 2\nNULL\n"), 0o644)

	if _, err := s.LoadLayer(l); !errors.Is(err, grid.ErrMalformed) {
		t.Errorf("expected grid.ErrMalformed, got %v", err)
	}
}

func TestFetchLocalFile(t *testing.T) {
	s := newTestStore(t)

	g := grid.New[float32](2, 1)
	g.Set(1, 0, 1)
	src := filepath.Join(t.TempDir(), "remote.txt")
	f, err := os.Create(src)
	if err != nil {
		t.Fatal(err)
	}
	grid.WriteHeightmap(f, g)
	f.Close()

	path, err := s.Fetch(context.Background(), src, "remote.txt")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(s.Dir(), fetchedDir) {
		t.Errorf("expected file under fetched dir, got %s", path)
	}
	got, err := ReadHeightmapFile(path)
	if err != nil {
		t.Fatalf("ReadHeightmapFile failed: %v", err)
	}
	if got.Get(1, 0) != 1 || got.Get(0, 0) != 0 {
		t.Errorf("unexpected fetched heights %v", got.Cells())
	}

	if _, err := ReadHeightmapFile(filepath.Join(s.Dir(), "nope.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hills", "hills"},
		{"big hills/2", "big_hills_2"},
		{"a.b-c_d", "a.b-c_d"},
		{"..", "layer"},
		{"", "layer"},
	}
	for _, tt := range tests {
		if got := fileName(tt.in); got != tt.want {
			t.Errorf("fileName(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
