package search

import (
	"fmt"

	"github.com/notargets/DGMapper/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// ObjectKind selects the InterfaceObject variant
type ObjectKind uint8

const (
	PointObject    ObjectKind = iota // A node carrying one source dof
	GeometryObject                   // An element or condition with one dof per point
)

func (k ObjectKind) String() string {
	switch k {
	case PointObject:
		return "point"
	case GeometryObject:
		return "geometry"
	default:
		return fmt.Sprintf("ObjectKind(%d)", uint8(k))
	}
}

// InterfaceObject is one source entity taking part in the search. Objects
// live in a per-rank arena ([]InterfaceObject); Index is the arena
// position, which is what crosses ranks.
type InterfaceObject struct {
	Kind   ObjectKind
	Index  int    // Arena position on the owning rank
	ID     int    // Entity ID in the source model part
	Coords r3.Vec // Node position or geometry center
	Dofs   []int  // Global source dofs, one per geometry point

	Geometry *element.Geometry // nil for point objects

	box BoundingBox
}

// NewPointObject wraps a node
func NewPointObject(index, id int, coords r3.Vec, dof int) InterfaceObject {
	return InterfaceObject{
		Kind:   PointObject,
		Index:  index,
		ID:     id,
		Coords: coords,
		Dofs:   []int{dof},
		box:    BoxOf(coords),
	}
}

// NewGeometryObject wraps an element; dofs follow the geometry point order
func NewGeometryObject(index, id int, g element.Geometry, dofs []int) (InterfaceObject, error) {
	if len(dofs) != len(g.Points) {
		return InterfaceObject{}, fmt.Errorf("geometry object %d: %d dofs for %d points",
			id, len(dofs), len(g.Points))
	}
	return InterfaceObject{
		Kind:     GeometryObject,
		Index:    index,
		ID:       id,
		Coords:   g.Center(),
		Dofs:     append([]int(nil), dofs...),
		Geometry: &g,
		box:      BoxOf(g.Points...),
	}, nil
}

// Coordinates returns the representative position of the object
func (o *InterfaceObject) Coordinates() r3.Vec { return o.Coords }

// BoundingBox returns the box enclosing the object
func (o *InterfaceObject) BoundingBox() BoundingBox { return o.box }

// ProjectPoint projects p onto the object. A point object projects onto
// itself with a nil local coordinate and a single unit shape value.
func (o *InterfaceObject) ProjectPoint(p r3.Vec) (element.Projection, error) {
	if o.Kind == PointObject {
		return element.Projection{
			Type:     element.Point1,
			Shape:    []float64{1},
			Point:    o.Coords,
			Distance: r3.Norm(r3.Sub(p, o.Coords)),
		}, nil
	}
	return element.Project(*o.Geometry, p)
}

// ClosestNode returns the geometry point nearest to p as a position in Dofs
func (o *InterfaceObject) ClosestNode(p r3.Vec) (int, float64) {
	if o.Kind == PointObject {
		return 0, r3.Norm(r3.Sub(p, o.Coords))
	}
	return o.Geometry.ClosestPoint(p)
}
