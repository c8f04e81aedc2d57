// Package meshio loads mesh files into serial model parts. Files are read
// by the gocfd mesh readers; vertices become nodes and cells become
// elements, with the element type taken from the vertex count.
package meshio

import (
	"fmt"

	"github.com/notargets/DGMapper/element"
	"github.com/notargets/DGMapper/modelpart"
	"github.com/notargets/gocfd/DG3D/mesh"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
	"gonum.org/v1/gonum/spatial/r3"
)

// Read loads meshfile into a model part owned by rank 0. With pointsOnly
// the cells are dropped and only the vertices are kept.
func Read(meshfile, name string, pointsOnly bool) (*modelpart.ModelPart, error) {
	msh, err := readers.ReadMeshFile(meshfile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", meshfile, err)
	}
	return FromMesh(msh, name, pointsOnly)
}

// FromMesh converts a gocfd mesh
func FromMesh(msh *mesh.Mesh, name string, pointsOnly bool) (*modelpart.ModelPart, error) {
	verts := make([]r3.Vec, len(msh.Vertices))
	for i, v := range msh.Vertices {
		verts[i] = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	}
	var cells [][]int
	if !pointsOnly {
		cells = make([][]int, msh.NumElements)
		for k := range cells {
			cells[k] = msh.EtoV[k]
		}
	}
	return Build(name, verts, cells)
}

// Build creates a model part from vertex coordinates and cell to vertex
// connectivity. Node and element IDs are the table positions.
func Build(name string, vertices []r3.Vec, cells [][]int) (*modelpart.ModelPart, error) {
	mp := modelpart.New(name)
	for i, v := range vertices {
		if err := mp.AddNode(i, v, 0); err != nil {
			return nil, err
		}
	}
	for k, cell := range cells {
		pts := make([]r3.Vec, len(cell))
		for i, vid := range cell {
			if vid < 0 || vid >= len(vertices) {
				return nil, fmt.Errorf("cell %d references vertex %d of %d", k, vid, len(vertices))
			}
			pts[i] = vertices[vid]
		}
		t, err := cellType(pts)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", k, err)
		}
		if err = mp.AddElement(k, t, cell...); err != nil {
			return nil, err
		}
	}
	return mp, nil
}

// cellType infers the geometry from the vertex count; four vertices are a
// quadrilateral when coplanar and a tetrahedron otherwise
func cellType(pts []r3.Vec) (element.GeometryType, error) {
	switch len(pts) {
	case 2:
		return element.Line2, nil
	case 3:
		return element.Triangle3, nil
	case 4:
		if element.AffinelyIndependent(pts) {
			return element.Tetrahedron4, nil
		}
		return element.Quadrilateral4, nil
	case 8:
		return element.Hexahedron8, nil
	}
	return 0, fmt.Errorf("unsupported cell with %d vertices", len(pts))
}
