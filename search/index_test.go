package search

import (
	"math"
	"testing"

	"github.com/notargets/DGMapper/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func pointArena(pts ...r3.Vec) []InterfaceObject {
	objs := make([]InterfaceObject, len(pts))
	for i, p := range pts {
		objs[i] = NewPointObject(i, 100+i, p, i)
	}
	return objs
}

func TestIndexQueryOrdering(t *testing.T) {
	objs := pointArena(
		r3.Vec{X: 3}, r3.Vec{X: 1}, r3.Vec{X: -1}, r3.Vec{X: 0.5, Y: 0.5}, r3.Vec{X: 10},
	)
	ix := NewIndex(objs)
	assert.Equal(t, 5, ix.Len())

	hits := ix.Query(r3.Vec{}, 1.0)
	require.Len(t, hits, 3)
	// Equal distances keep arena order
	assert.Equal(t, 3, hits[0].Object)
	assert.InDelta(t, math.Sqrt(0.5), hits[0].Distance, 1e-15)
	assert.Equal(t, 1, hits[1].Object)
	assert.Equal(t, 2, hits[2].Object)

	assert.Empty(t, ix.Query(r3.Vec{X: 6}, 1))

	best, ok := ix.Nearest(r3.Vec{X: 8})
	require.True(t, ok)
	assert.Equal(t, 4, best.Object)

	lo, hi := r3.Vec{X: -1}, r3.Vec{X: 10, Y: 0.5}
	assert.Equal(t, BoundingBox{Min: lo, Max: hi}, ix.Bounds())
}

func TestIndexGeometryObjects(t *testing.T) {
	var objs []InterfaceObject
	for i := 0; i < 4; i++ {
		g, err := element.NewGeometry(element.Line2, r3.Vec{X: float64(2 * i)}, r3.Vec{X: float64(2*i + 2)})
		require.NoError(t, err)
		o, err := NewGeometryObject(i, i, g, []int{i, i + 1})
		require.NoError(t, err)
		objs = append(objs, o)
	}
	ix := NewIndex(objs)
	assert.InDelta(t, 1.0, ix.MaxHalfDiagonal(), 1e-15)

	// Elements 0 and 2 are farther than the radius
	hits := ix.Query(r3.Vec{X: 3, Y: 0.1}, 0.5)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Object)
	assert.InDelta(t, 0.1, hits[0].Distance, 1e-15)

	hits = ix.Query(r3.Vec{X: 4}, 0.01)
	require.Len(t, hits, 2)
	assert.Equal(t, []int{1, 2}, []int{hits[0].Object, hits[1].Object})

	_, err := NewGeometryObject(9, 9, *objs[0].Geometry, []int{1})
	assert.Error(t, err)
}

func TestEmptyIndex(t *testing.T) {
	ix := NewIndex(nil)
	assert.Nil(t, ix.Query(r3.Vec{}, 10))
	_, ok := ix.Nearest(r3.Vec{})
	assert.False(t, ok)
	assert.True(t, ix.Bounds().IsEmpty())
}

func TestBoundingBox(t *testing.T) {
	b := BoxOf(r3.Vec{X: 1, Y: 1}, r3.Vec{X: 2, Y: 3})
	assert.Equal(t, 2, b.Dimension())
	assert.Equal(t, 0., b.Distance(r3.Vec{X: 1.5, Y: 2}))
	assert.InDelta(t, 5.0, b.Distance(r3.Vec{X: 5, Y: 7}), 1e-15)
	assert.True(t, b.Inflate(1).Contains(r3.Vec{X: 0, Y: 0}))
	assert.False(t, b.Contains(r3.Vec{X: 0, Y: 0}))

	data, err := EmptyBox().MarshalBinary()
	require.NoError(t, err)
	var back BoundingBox
	require.NoError(t, back.UnmarshalBinary(data))
	assert.True(t, back.IsEmpty())
	assert.Error(t, back.UnmarshalBinary(data[:8]))
}
