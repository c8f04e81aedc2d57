package element

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

func unitGeometry(t *testing.T, gt GeometryType) Geometry {
	var pts []r3.Vec
	switch gt {
	case Line2:
		pts = []r3.Vec{{X: 0}, {X: 2}}
	case Triangle3:
		pts = []r3.Vec{{}, {X: 1}, {Y: 1}}
	case Quadrilateral4:
		pts = []r3.Vec{{}, {X: 2}, {X: 2, Y: 1}, {Y: 1}}
	case Tetrahedron4:
		pts = []r3.Vec{{}, {X: 1}, {Y: 1}, {Z: 1}}
	case Hexahedron8:
		pts = []r3.Vec{
			{}, {X: 1}, {X: 1, Y: 1}, {Y: 1},
			{Z: 1}, {X: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {Y: 1, Z: 1},
		}
	}
	g, err := NewGeometry(gt, pts...)
	require.NoError(t, err)
	return g
}

func TestShapeFunctionsPartitionOfUnity(t *testing.T) {
	locals := map[GeometryType][]float64{
		Line2:          {0.3},
		Triangle3:      {0.2, 0.5},
		Quadrilateral4: {-0.4, 0.7},
		Tetrahedron4:   {0.1, 0.2, 0.3},
		Hexahedron8:    {0.9, -0.1, 0.25},
	}
	for gt, local := range locals {
		n := ShapeFunctions(gt, local)
		assert.Len(t, n, gt.NumPoints(), gt.String())
		assert.InDelta(t, 1.0, floats.Sum(n), 1e-15, gt.String())
	}
}

func TestProjectInside(t *testing.T) {
	tests := []struct {
		gt    GeometryType
		p     r3.Vec
		local []float64
		dist  float64
	}{
		{Line2, r3.Vec{X: 0.5, Y: 1}, []float64{-0.5}, 1},
		{Triangle3, r3.Vec{X: 0.25, Y: 0.25, Z: -2}, []float64{0.25, 0.25}, 2},
		{Quadrilateral4, r3.Vec{X: 1.5, Y: 0.25, Z: 0.5}, []float64{0.5, -0.5}, 0.5},
		{Tetrahedron4, r3.Vec{X: 0.1, Y: 0.2, Z: 0.3}, []float64{0.1, 0.2, 0.3}, 0},
		{Hexahedron8, r3.Vec{X: 0.75, Y: 0.5, Z: 0.25}, []float64{0.5, 0, -0.5}, 0},
	}
	for _, tc := range tests {
		g := unitGeometry(t, tc.gt)
		proj, err := Project(g, tc.p)
		require.NoError(t, err, tc.gt.String())
		assert.InDeltaSlicef(t, tc.local, proj.Local, 1e-10, "%s local", tc.gt)
		assert.InDeltaf(t, tc.dist, proj.Distance, 1e-10, "%s distance", tc.gt)
		assert.True(t, proj.IsInside(1e-9), tc.gt.String())
		assert.InDelta(t, 1.0, floats.Sum(proj.Shape), 1e-12)
	}
}

func TestProjectOutside(t *testing.T) {
	g := unitGeometry(t, Triangle3)
	proj, err := Project(g, r3.Vec{X: 1, Y: 1})
	require.NoError(t, err)
	assert.False(t, proj.IsInside(1e-9))
	assert.True(t, proj.IsInside(1.0))

	line := unitGeometry(t, Line2)
	proj, err = Project(line, r3.Vec{X: 3})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, proj.Local[0], 1e-12)
	assert.False(t, proj.IsInside(0.25))
}

func TestProjectDegenerate(t *testing.T) {
	g, err := NewGeometry(Triangle3, r3.Vec{}, r3.Vec{X: 1}, r3.Vec{X: 2})
	require.NoError(t, err)
	_, err = Project(g, r3.Vec{X: 0.5, Y: 0.5})
	assert.True(t, errors.Is(err, ErrDegenerateGeometry))

	g, err = NewGeometry(Line2, r3.Vec{X: 1}, r3.Vec{X: 1})
	require.NoError(t, err)
	_, err = Project(g, r3.Vec{})
	assert.True(t, errors.Is(err, ErrDegenerateGeometry))
}

func TestNewGeometryValidatesPointCount(t *testing.T) {
	_, err := NewGeometry(Tetrahedron4, r3.Vec{}, r3.Vec{X: 1})
	assert.Error(t, err)
}

func TestClosestPoint(t *testing.T) {
	g := unitGeometry(t, Quadrilateral4)
	idx, d := g.ClosestPoint(r3.Vec{X: 2.1, Y: 1.1})
	assert.Equal(t, 2, idx)
	assert.InDelta(t, 0.1414213562, d, 1e-9)
}

func TestProjectWithoutPreimage(t *testing.T) {
	// Valid trapezoid with y = eta*(1 + xi/2); no local point maps to x = -2, y = 1
	g, err := NewGeometry(Quadrilateral4,
		r3.Vec{X: -1, Y: -0.5}, r3.Vec{X: 1, Y: -1.5}, r3.Vec{X: 1, Y: 1.5}, r3.Vec{X: -1, Y: 0.5})
	require.NoError(t, err)

	proj, err := Project(g, r3.Vec{X: 0.5, Y: 0.25})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.2}, proj.Local, 1e-10)

	_, err = Project(g, r3.Vec{X: -2, Y: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoProjection))
	assert.False(t, errors.Is(err, ErrDegenerateGeometry))
}

func TestIsInsideScalesWithReferenceSpan(t *testing.T) {
	quad := Projection{Type: Quadrilateral4, Local: []float64{1.3, 0}}
	assert.True(t, quad.IsInside(0.2))
	assert.False(t, quad.IsInside(0.1))

	line := Projection{Type: Line2, Local: []float64{-1.45}}
	assert.True(t, line.IsInside(0.25))

	tri := Projection{Type: Triangle3, Local: []float64{-0.3, 0.5}}
	assert.False(t, tri.IsInside(0.2))
	assert.True(t, tri.IsInside(0.3))
}
