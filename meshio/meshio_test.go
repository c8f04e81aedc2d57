package meshio

import (
	"path/filepath"
	"testing"

	"github.com/notargets/DGMapper/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestBuildInfersCellTypes(t *testing.T) {
	verts := []r3.Vec{
		{}, {X: 1}, {Y: 1}, {Z: 1}, {X: 1, Y: 1},
	}
	mp, err := Build("mixed", verts, [][]int{
		{0, 1, 2, 3}, // tetrahedron
		{0, 1, 4, 2}, // coplanar: quadrilateral
		{1, 4, 2},
		{0, 3},
	})
	require.NoError(t, err)
	require.Len(t, mp.Nodes, 5)
	require.Len(t, mp.Elements, 4)
	assert.Equal(t, element.Tetrahedron4, mp.Elements[0].Type)
	assert.Equal(t, element.Quadrilateral4, mp.Elements[1].Type)
	assert.Equal(t, element.Triangle3, mp.Elements[2].Type)
	assert.Equal(t, element.Line2, mp.Elements[3].Type)
	for _, n := range mp.Nodes {
		assert.Equal(t, 0, n.Rank)
	}

	points, err := Build("points", verts, nil)
	require.NoError(t, err)
	assert.Len(t, points.Nodes, 5)
	assert.Empty(t, points.Elements)
}

func TestBuildRejectsBadCells(t *testing.T) {
	verts := []r3.Vec{{}, {X: 1}, {Y: 1}}
	_, err := Build("bad", verts, [][]int{{0, 5}})
	assert.Error(t, err)
	_, err = Build("bad", verts, [][]int{{0, 1, 2, 0, 1}})
	assert.Error(t, err)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.neu"), "origin", false)
	assert.Error(t, err)
}
