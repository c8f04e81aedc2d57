package element

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Dimensionality represents the local dimension of an element
type Dimensionality uint8

const (
	D0 Dimensionality = iota // 0D elements (points)
	D1                       // 1D elements (lines, edges)
	D2                       // 2D elements (triangles, quadrilaterals)
	D3                       // 3D elements (tetrahedra, hexahedra)
)

// GeometryType identifies the shape of an interface entity
type GeometryType uint8

const (
	Point1         GeometryType = iota // Single node
	Line2                              // Linear line segment
	Triangle3                          // Linear triangle
	Quadrilateral4                     // Bilinear quadrilateral
	Tetrahedron4                       // Linear tetrahedron
	Hexahedron8                        // Trilinear hexahedron
)

func (t GeometryType) String() string {
	switch t {
	case Point1:
		return "Point1"
	case Line2:
		return "Line2"
	case Triangle3:
		return "Triangle3"
	case Quadrilateral4:
		return "Quadrilateral4"
	case Tetrahedron4:
		return "Tetrahedron4"
	case Hexahedron8:
		return "Hexahedron8"
	default:
		return fmt.Sprintf("GeometryType(%d)", uint8(t))
	}
}

// Dimensions returns the local (parametric) dimension of the geometry
func (t GeometryType) Dimensions() Dimensionality {
	switch t {
	case Line2:
		return D1
	case Triangle3, Quadrilateral4:
		return D2
	case Tetrahedron4, Hexahedron8:
		return D3
	default:
		return D0
	}
}

// LocalDimension is Dimensions as an int, convenient for sizing
func (t GeometryType) LocalDimension() int { return int(t.Dimensions()) }

// NumPoints returns the number of defining points
func (t GeometryType) NumPoints() int {
	switch t {
	case Point1:
		return 1
	case Line2:
		return 2
	case Triangle3:
		return 3
	case Quadrilateral4, Tetrahedron4:
		return 4
	case Hexahedron8:
		return 8
	default:
		return 0
	}
}

// IsSimplex reports whether local coordinates are barycentric-like (sum <= 1)
func (t GeometryType) IsSimplex() bool {
	return t == Triangle3 || t == Tetrahedron4
}

// Geometry is a physical realization of a GeometryType
type Geometry struct {
	Type   GeometryType
	Points []r3.Vec
}

// NewGeometry validates the point count against the geometry type
func NewGeometry(t GeometryType, points ...r3.Vec) (Geometry, error) {
	if t > Hexahedron8 {
		return Geometry{}, fmt.Errorf("unknown geometry type %d", t)
	}
	if len(points) != t.NumPoints() {
		return Geometry{}, fmt.Errorf("%s requires %d points, got %d",
			t, t.NumPoints(), len(points))
	}
	pts := make([]r3.Vec, len(points))
	copy(pts, points)
	return Geometry{Type: t, Points: pts}, nil
}

// Center returns the arithmetic mean of the defining points
func (g Geometry) Center() r3.Vec {
	var c r3.Vec
	if len(g.Points) == 0 {
		return c
	}
	for _, p := range g.Points {
		c = r3.Add(c, p)
	}
	return r3.Scale(1/float64(len(g.Points)), c)
}

// Extent returns the axis aligned corners enclosing the geometry
func (g Geometry) Extent() (lo, hi r3.Vec) {
	if len(g.Points) == 0 {
		return
	}
	lo, hi = g.Points[0], g.Points[0]
	for _, p := range g.Points[1:] {
		lo = r3.Vec{X: min(lo.X, p.X), Y: min(lo.Y, p.Y), Z: min(lo.Z, p.Z)}
		hi = r3.Vec{X: max(hi.X, p.X), Y: max(hi.Y, p.Y), Z: max(hi.Z, p.Z)}
	}
	return
}

// Map evaluates the physical position at a local coordinate
func (g Geometry) Map(local []float64) r3.Vec {
	n := ShapeFunctions(g.Type, local)
	var x r3.Vec
	for i, p := range g.Points {
		x = r3.Add(x, r3.Scale(n[i], p))
	}
	return x
}

// ClosestPoint returns the index of the defining point nearest to p
func (g Geometry) ClosestPoint(p r3.Vec) (index int, distance float64) {
	index = -1
	for i, q := range g.Points {
		d := r3.Norm(r3.Sub(p, q))
		if index < 0 || d < distance {
			index, distance = i, d
		}
	}
	return
}
