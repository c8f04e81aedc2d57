// Package modelpart holds the slice of a mesh that takes part in a mapping:
// nodes with coordinates and owning rank, elements with connectivity, and
// the nodal fields transferred between two model parts.
package modelpart

import (
	"fmt"

	"github.com/notargets/DGMapper/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// Node is a mesh vertex. Rank is the owning rank; a node present on a rank
// other than its owner is a ghost used only to complete element connectivity.
type Node struct {
	ID     int
	Coords r3.Vec
	Rank   int
}

// Element references its nodes by node ID
type Element struct {
	ID    int
	Type  element.GeometryType
	Nodes []int
}

// ModelPart is the local partition of an interface mesh
type ModelPart struct {
	Name     string
	Nodes    []Node
	Elements []Element

	nodeIndex map[int]int // node ID -> position in Nodes
}

// New creates an empty model part
func New(name string) *ModelPart {
	return &ModelPart{Name: name, nodeIndex: make(map[int]int)}
}

// AddNode appends a node owned by rank
func (mp *ModelPart) AddNode(id int, coords r3.Vec, rank int) error {
	if mp.nodeIndex == nil {
		mp.nodeIndex = make(map[int]int)
	}
	if _, found := mp.nodeIndex[id]; found {
		return fmt.Errorf("model part %s: duplicate node id %d", mp.Name, id)
	}
	mp.nodeIndex[id] = len(mp.Nodes)
	mp.Nodes = append(mp.Nodes, Node{ID: id, Coords: coords, Rank: rank})
	return nil
}

// AddElement appends an element; all its nodes must already exist
func (mp *ModelPart) AddElement(id int, t element.GeometryType, nodeIDs ...int) error {
	if len(nodeIDs) != t.NumPoints() {
		return fmt.Errorf("model part %s: element %d of type %s has %d nodes, expected %d",
			mp.Name, id, t, len(nodeIDs), t.NumPoints())
	}
	for _, nid := range nodeIDs {
		if _, found := mp.nodeIndex[nid]; !found {
			return fmt.Errorf("model part %s: element %d references unknown node %d",
				mp.Name, id, nid)
		}
	}
	mp.Elements = append(mp.Elements, Element{
		ID:    id,
		Type:  t,
		Nodes: append([]int(nil), nodeIDs...),
	})
	return nil
}

// NodeIndex returns the position of node id in Nodes
func (mp *ModelPart) NodeIndex(id int) (int, bool) {
	i, ok := mp.nodeIndex[id]
	return i, ok
}

// Geometry returns the physical geometry of element e
func (mp *ModelPart) Geometry(e Element) (element.Geometry, error) {
	pts := make([]r3.Vec, len(e.Nodes))
	for i, nid := range e.Nodes {
		idx, ok := mp.nodeIndex[nid]
		if !ok {
			return element.Geometry{}, fmt.Errorf("element %d references unknown node %d", e.ID, nid)
		}
		pts[i] = mp.Nodes[idx].Coords
	}
	return element.NewGeometry(e.Type, pts...)
}

// OwnedNodes returns the positions in Nodes of the nodes owned by rank
func (mp *ModelPart) OwnedNodes(rank int) []int {
	owned := make([]int, 0, len(mp.Nodes))
	for i, n := range mp.Nodes {
		if n.Rank == rank {
			owned = append(owned, i)
		}
	}
	return owned
}

// Bounds returns the axis aligned extent of the nodes
func (mp *ModelPart) Bounds() (lo, hi r3.Vec) {
	for i, n := range mp.Nodes {
		if i == 0 {
			lo, hi = n.Coords, n.Coords
			continue
		}
		lo = r3.Vec{X: min(lo.X, n.Coords.X), Y: min(lo.Y, n.Coords.Y), Z: min(lo.Z, n.Coords.Z)}
		hi = r3.Vec{X: max(hi.X, n.Coords.X), Y: max(hi.Y, n.Coords.Y), Z: max(hi.Z, n.Coords.Z)}
	}
	return
}

// String returns a one-line summary
func (mp *ModelPart) String() string {
	return fmt.Sprintf("ModelPart %q: %d nodes, %d elements", mp.Name, len(mp.Nodes), len(mp.Elements))
}
