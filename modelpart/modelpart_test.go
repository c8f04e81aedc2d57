package modelpart

import (
	"testing"

	"github.com/notargets/DGMapper/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestModelPartConnectivity(t *testing.T) {
	mp := New("interface")
	require.NoError(t, mp.AddNode(10, r3.Vec{X: 0}, 0))
	require.NoError(t, mp.AddNode(11, r3.Vec{X: 1}, 1))
	assert.Error(t, mp.AddNode(10, r3.Vec{}, 0))

	require.NoError(t, mp.AddElement(1, element.Line2, 10, 11))
	assert.Error(t, mp.AddElement(2, element.Line2, 10, 99))
	assert.Error(t, mp.AddElement(3, element.Triangle3, 10, 11))

	g, err := mp.Geometry(mp.Elements[0])
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{X: 0.5}, g.Center())
	assert.Equal(t, []int{0}, mp.OwnedNodes(0))
	assert.Equal(t, []int{1}, mp.OwnedNodes(1))
}

func TestStructuredGrid(t *testing.T) {
	line, err := StructuredGrid{Nx: 3, Max: r3.Vec{X: 3}}.Build("line")
	require.NoError(t, err)
	assert.Len(t, line.Nodes, 4)
	assert.Len(t, line.Elements, 3)
	assert.Equal(t, element.Line2, line.Elements[0].Type)

	quad, err := StructuredGrid{Nx: 2, Ny: 3, Max: r3.Vec{X: 1, Y: 1}}.Build("quad")
	require.NoError(t, err)
	assert.Len(t, quad.Nodes, 12)
	assert.Len(t, quad.Elements, 6)

	hex, err := StructuredGrid{Nx: 2, Ny: 2, Nz: 2, Max: r3.Vec{X: 1, Y: 1, Z: 1}, FirstID: 100}.Build("hex")
	require.NoError(t, err)
	assert.Len(t, hex.Nodes, 27)
	assert.Len(t, hex.Elements, 8)
	_, ok := hex.NodeIndex(100)
	assert.True(t, ok)
	lo, hi := hex.Bounds()
	assert.Equal(t, r3.Vec{}, lo)
	assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, hi)

	_, err = StructuredGrid{Nx: 0}.Build("bad")
	assert.Error(t, err)
}

func TestField(t *testing.T) {
	f := NewVectorField("VELOCITY", 3, 2)
	f.Set(1, 1, 4)
	assert.Equal(t, 4.0, f.At(1, 1))
	assert.Equal(t, 3, f.NumNodes())
	assert.Equal(t, []float64{0, 4}, f.Component(1, []int{0, 1}))
	assert.Equal(t, 9, Tensor.ComponentsFor(3))
}
