package search

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// Candidate is an index hit: an arena position and the distance from the
// query point to the object's bounding box (0 inside)
type Candidate struct {
	Object   int
	Distance float64
}

// Index is a read-only k-d tree over the representative coordinates of an
// object arena. Concurrent queries are safe. Rebuilding means calling
// NewIndex again; nothing derived from a previous index is reused.
type Index struct {
	objects     []InterfaceObject
	tree        *kdtree.Tree
	bounds      BoundingBox
	maxHalfDiag float64 // Largest object box half diagonal
}

// NewIndex builds the tree. The arena is referenced, not copied, and must
// not change while the index is in use.
func NewIndex(objects []InterfaceObject) *Index {
	ix := &Index{objects: objects, bounds: EmptyBox()}
	pts := make(entries, len(objects))
	for i := range objects {
		o := &objects[i]
		pts[i] = entry{coords: o.Coords, index: i}
		ix.bounds = ix.bounds.Merge(o.BoundingBox())
		ix.maxHalfDiag = math.Max(ix.maxHalfDiag, 0.5*o.BoundingBox().Diagonal())
	}
	if len(pts) > 0 {
		ix.tree = kdtree.New(pts, false)
	}
	return ix
}

// Len returns the number of indexed objects
func (ix *Index) Len() int { return len(ix.objects) }

// Bounds returns the box enclosing every indexed object
func (ix *Index) Bounds() BoundingBox { return ix.bounds }

// MaxHalfDiagonal returns the largest half diagonal of an object box
func (ix *Index) MaxHalfDiagonal() float64 { return ix.maxHalfDiag }

// Object returns the arena entry at position i
func (ix *Index) Object(i int) *InterfaceObject { return &ix.objects[i] }

// Query returns every object whose bounding box lies within radius of p,
// ordered by ascending distance, ties by arena position
func (ix *Index) Query(p r3.Vec, radius float64) []Candidate {
	if ix.tree == nil || radius < 0 {
		return nil
	}
	// Object boxes extend up to maxHalfDiag beyond their center. The slack
	// keeps hits at exactly radius.
	reach := (radius + ix.maxHalfDiag) * (1 + 1e-9)
	keep := kdtree.NewDistKeeper(reach * reach)
	ix.tree.NearestSet(keep, entry{coords: p})

	var out []Candidate
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		i := cd.Comparable.(entry).index
		d := ix.objects[i].BoundingBox().Distance(p)
		if d <= radius {
			out = append(out, Candidate{Object: i, Distance: d})
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Distance != out[b].Distance {
			return out[a].Distance < out[b].Distance
		}
		return out[a].Object < out[b].Object
	})
	return out
}

// Nearest returns the object whose bounding box is closest to p
func (ix *Index) Nearest(p r3.Vec) (Candidate, bool) {
	if ix.tree == nil {
		return Candidate{}, false
	}
	_, d2 := ix.tree.Nearest(entry{coords: p})
	// The closest center bounds the closest box distance from above.
	hits := ix.Query(p, math.Sqrt(d2)*(1+1e-9))
	if len(hits) == 0 {
		return Candidate{}, false
	}
	return hits[0], true
}

// entry is a kdtree.Comparable carrying an arena position
type entry struct {
	coords r3.Vec
	index  int
}

func component(v r3.Vec, d kdtree.Dim) float64 {
	switch d {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}

func (e entry) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return component(e.coords, d) - component(c.(entry).coords, d)
}

func (e entry) Dims() int { return 3 }

// Distance is the squared Euclidean distance
func (e entry) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(e.coords, c.(entry).coords))
}

type entries []entry

func (p entries) Index(i int) kdtree.Comparable { return p[i] }
func (p entries) Len() int                      { return len(p) }
func (p entries) Pivot(d kdtree.Dim) int        { return plane{entries: p, Dim: d}.Pivot() }
func (p entries) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

// plane sorts entries along one dimension for median partitioning
type plane struct {
	kdtree.Dim
	entries
}

func (p plane) Less(i, j int) bool {
	return component(p.entries[i].coords, p.Dim) < component(p.entries[j].coords, p.Dim)
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.entries = p.entries[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.entries[i], p.entries[j] = p.entries[j], p.entries[i]
}
