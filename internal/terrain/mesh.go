package terrain

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is a mesh vertex produced by GridMeshBuilder.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Mesh is the vertex/index data for one tile.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
	Bounds   Bounds
}

// GridMeshBuilder builds a regular triangle grid from a tile's heights.
// X maps to world X, grid Y to world Z, heights to world Y.
type GridMeshBuilder struct{}

// BuildMesh implements MeshBuilder.
func (GridMeshBuilder) BuildMesh(m *Map, sub *SubChunk) (MeshHandle, error) {
	return BuildGridMesh(m, sub), nil
}

// BuildGridMesh creates the mesh for sub from the canonical heightmap.
func BuildGridMesh(m *Map, sub *SubChunk) *Mesh {
	region := sub.HeightmapTextureRegion
	w, h := region.Width, region.Height
	if w < 2 || h < 2 {
		return &Mesh{}
	}

	bounds := Bounds{
		Min: mgl32.Vec3{1e10, 1e10, 1e10},
		Max: mgl32.Vec3{-1e10, -1e10, -1e10},
	}

	vertices := make([]Vertex, 0, w*h)
	for y := range h {
		for x := range w {
			gx, gy := region.X+x, region.Y+y
			pos := mgl32.Vec3{
				float32(gx) * m.MeshQuadSize,
				m.HeightRange.ToWorld(m.HeightmapData.Get(gx, gy)),
				float32(gy) * m.MeshQuadSize,
			}
			updateBounds(&bounds, pos)
			vertices = append(vertices, Vertex{
				Position: pos,
				TexCoord: mgl32.Vec2{float32(x) / float32(w-1), float32(y) / float32(h-1)},
			})
		}
	}

	indices := make([]uint32, 0, (w-1)*(h-1)*6)
	for y := range h - 1 {
		for x := range w - 1 {
			i0 := uint32(y*w + x)
			i1 := i0 + 1
			i2 := i0 + uint32(w)
			i3 := i2 + 1
			indices = append(indices,
				i0, i2, i1,
				i1, i2, i3,
			)
		}
	}

	smoothNormals(vertices, indices)

	return &Mesh{
		Vertices: vertices,
		Indices:  indices,
		Bounds:   bounds,
	}
}

// smoothNormals accumulates face normals on shared vertices so tiles shade
// without hard edges between quads.
func smoothNormals(vertices []Vertex, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		edge1 := vertices[b].Position.Sub(vertices[a].Position)
		edge2 := vertices[c].Position.Sub(vertices[a].Position)
		face := edge1.Cross(edge2)
		vertices[a].Normal = vertices[a].Normal.Add(face)
		vertices[b].Normal = vertices[b].Normal.Add(face)
		vertices[c].Normal = vertices[c].Normal.Add(face)
	}
	for i := range vertices {
		if vertices[i].Normal.Len() < 0.0001 {
			vertices[i].Normal = mgl32.Vec3{0, 1, 0}
			continue
		}
		vertices[i].Normal = vertices[i].Normal.Normalize()
	}
}

func updateBounds(b *Bounds, p mgl32.Vec3) {
	for i := range 3 {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}
