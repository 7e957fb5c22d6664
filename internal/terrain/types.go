// Package terrain partitions the canonical heightmap into chunks and mesh
// tiles, and tracks which tiles need their mesh rebuilt.
package terrain

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// MeshPerChunk encodes an N×N count of mesh tiles per chunk.
type MeshPerChunk int

const (
	MeshPerChunk1x1 MeshPerChunk = iota + 1
	MeshPerChunk2x2
	MeshPerChunk3x3
	MeshPerChunk4x4
	MeshPerChunk5x5
	MeshPerChunk6x6
	MeshPerChunk7x7
	MeshPerChunk8x8
)

// AxisLength returns N.
func (m MeshPerChunk) AxisLength() int { return int(m) }

// Valid reports whether N is in 1..8.
func (m MeshPerChunk) Valid() bool {
	return m >= MeshPerChunk1x1 && m <= MeshPerChunk8x8
}

func (m MeshPerChunk) String() string {
	return fmt.Sprintf("%dx%d", int(m), int(m))
}

// HeightRange maps normalized heights to world heights.
type HeightRange struct {
	Min float32
	Max float32
}

// ToWorld converts a normalized height to world units.
func (r HeightRange) ToWorld(normalized float32) float32 {
	return math.Lerp(r.Min, r.Max, normalized)
}

// Normalize converts a world height to [0, 1].
func (r HeightRange) Normalize(world float32) float32 {
	return math.Clamp01(math.InverseLerp(r.Min, r.Max, world))
}

// ChunkKey is the integer (X, Z) index of a chunk.
type ChunkKey struct {
	X, Z int
}

// Settings is the global map configuration.
type Settings struct {
	MapSize      grid.Size // quads per axis
	QuadPerMesh  grid.Size
	MeshPerChunk MeshPerChunk
	MeshQuadSize float32 // world units per quad
	HeightRange  HeightRange
}

// ErrInvalidSettings is wrapped by Settings.Validate failures.
var ErrInvalidSettings = errors.New("invalid terrain settings")

// Validate checks the settings for values the partition cannot handle.
func (s Settings) Validate() error {
	switch {
	case s.MapSize.X <= 0 || s.MapSize.Y <= 0:
		return fmt.Errorf("%w: map size %dx%d", ErrInvalidSettings, s.MapSize.X, s.MapSize.Y)
	case s.QuadPerMesh.X <= 0 || s.QuadPerMesh.Y <= 0:
		return fmt.Errorf("%w: quad per mesh %dx%d", ErrInvalidSettings, s.QuadPerMesh.X, s.QuadPerMesh.Y)
	case !s.MeshPerChunk.Valid():
		return fmt.Errorf("%w: mesh per chunk %d", ErrInvalidSettings, int(s.MeshPerChunk))
	case s.MeshQuadSize <= 0:
		return fmt.Errorf("%w: mesh quad size %v", ErrInvalidSettings, s.MeshQuadSize)
	case s.HeightRange.Max <= s.HeightRange.Min:
		return fmt.Errorf("%w: height range [%v, %v]", ErrInvalidSettings, s.HeightRange.Min, s.HeightRange.Max)
	}
	return nil
}

// QuadPerChunk returns QuadPerMesh scaled by the mesh axis length.
func (s Settings) QuadPerChunk() grid.Size {
	n := s.MeshPerChunk.AxisLength()
	return grid.Size{X: s.QuadPerMesh.X * n, Y: s.QuadPerMesh.Y * n}
}

// HeightmapSize returns the vertex grid size (MapSize + 1 per axis).
func (s Settings) HeightmapSize() grid.Size {
	return grid.Size{X: s.MapSize.X + 1, Y: s.MapSize.Y + 1}
}

// ChunkCount returns ceil(MapSize / QuadPerChunk) per axis.
func (s Settings) ChunkCount() grid.Size {
	qpc := s.QuadPerChunk()
	return grid.Size{X: math.CeilDiv(s.MapSize.X, qpc.X), Y: math.CeilDiv(s.MapSize.Y, qpc.Y)}
}

// MeshHandle is whatever the mesh builder produced for a subchunk.
type MeshHandle any

// MeshBuilder turns a subchunk's slice of the canonical heightmap into a mesh.
type MeshBuilder interface {
	BuildMesh(m *Map, sub *SubChunk) (MeshHandle, error)
}
