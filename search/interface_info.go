package search

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/notargets/DGMapper/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// InfoState is the resolution state of an InterfaceInfo.
// Pending is initial, the other states are terminal.
type InfoState uint8

const (
	Pending InfoState = iota
	LocalSearchSucceeded
	Approximated
	Failed
)

func (s InfoState) String() string {
	switch s {
	case Pending:
		return "pending"
	case LocalSearchSucceeded:
		return "succeeded"
	case Approximated:
		return "approximated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("InfoState(%d)", uint8(s))
	}
}

// PoolNode is a Barycentric candidate source node
type PoolNode struct {
	Dof      int
	Coords   r3.Vec
	Distance float64
	Rank     int // Rank owning the node
	Index    int // Arena position on Rank
}

// InterfaceInfo is one correspondence record between a destination query
// point and the source entities of one rank. Variants are selected by Kind;
// each uses only its own payload fields.
type InterfaceInfo struct {
	Kind             MapperKind
	LocalSystemIndex int
	SourceRank       int    // Rank owning the matched source entity
	Coords           r3.Vec // Query point, never sent across ranks

	State           InfoState
	IsApproximation bool
	Distance        float64
	CandidateIndex  int // Arena position of the match on SourceRank, -1 if none
	InvalidGeometry int // Candidates skipped for degenerate geometry

	// NearestNeighbor and NearestElement payload
	Dofs    []int
	Weights []float64

	// Barycentric payload, ordered by poolLess
	Pool []PoolNode
}

// NewInterfaceInfo creates a pending record for a query point
func NewInterfaceInfo(kind MapperKind, coords r3.Vec, localSystemIndex, sourceRank int) *InterfaceInfo {
	return &InterfaceInfo{
		Kind:             kind,
		LocalSystemIndex: localSystemIndex,
		SourceRank:       sourceRank,
		Coords:           coords,
		Distance:         math.Inf(1),
		CandidateIndex:   -1,
	}
}

// NewEmptyInfo creates a record to be filled by decoding
func NewEmptyInfo(kind MapperKind) *InterfaceInfo {
	return NewInterfaceInfo(kind, r3.Vec{}, -1, -1)
}

// Create returns a new pending record of the same variant
func (ii *InterfaceInfo) Create(coords r3.Vec, localSystemIndex, sourceRank int) *InterfaceInfo {
	return NewInterfaceInfo(ii.Kind, coords, localSystemIndex, sourceRank)
}

// LocalSearchSucceeded reports whether a match, exact or approximate, was found
func (ii *InterfaceInfo) LocalSearchSucceeded() bool {
	return ii.State == LocalSearchSucceeded || ii.State == Approximated
}

func (ii *InterfaceInfo) setLocalSearchSucceeded() {
	if ii.State != Approximated {
		ii.State = LocalSearchSucceeded
	}
}

// setApproximation also marks the local search successful
func (ii *InterfaceInfo) setApproximation() {
	ii.IsApproximation = true
	ii.State = Approximated
}

// improves reports whether a match at (d, idx) beats the current one
func (ii *InterfaceInfo) improves(d float64, idx int) bool {
	if ii.CandidateIndex < 0 {
		return true
	}
	if d != ii.Distance {
		return d < ii.Distance
	}
	return idx < ii.CandidateIndex
}

// ProcessSearchResult evaluates obj as an exact match. A rejected candidate
// leaves the record unchanged.
func (ii *InterfaceInfo) ProcessSearchResult(obj *InterfaceObject, distance float64, opts Options) {
	switch ii.Kind {
	case NearestNeighbor:
		node, d := obj.ClosestNode(ii.Coords)
		if ii.improves(d, obj.Index) {
			ii.accept(obj.Index, d, []int{obj.Dofs[node]}, []float64{1})
			ii.setLocalSearchSucceeded()
		}

	case NearestElement:
		if obj.Kind != GeometryObject {
			return
		}
		proj, err := obj.ProjectPoint(ii.Coords)
		if err != nil {
			if errors.Is(err, element.ErrDegenerateGeometry) {
				ii.InvalidGeometry++
			}
			return
		}
		if proj.IsInside(opts.InsideTolerance) && ii.improves(proj.Distance, obj.Index) {
			ii.accept(obj.Index, proj.Distance, obj.Dofs, proj.Shape)
			ii.setLocalSearchSucceeded()
		}

	case Barycentric:
		if obj.Kind != PointObject {
			return
		}
		ii.insertPoolNode(obj, distance, opts.PoolSize)
		ii.setLocalSearchSucceeded()
	}
}

// ProcessSearchResultForApproximation evaluates obj as a relaxed match. It
// runs only for queries without an exact match anywhere.
func (ii *InterfaceInfo) ProcessSearchResultForApproximation(obj *InterfaceObject, distance float64, opts Options) {
	switch ii.Kind {
	case NearestElement:
		if obj.Kind == GeometryObject {
			proj, err := obj.ProjectPoint(ii.Coords)
			if err == nil && proj.IsInside(opts.LocalCoordTolerance) {
				if ii.improves(proj.Distance, obj.Index) {
					ii.accept(obj.Index, proj.Distance, obj.Dofs, proj.Shape)
					ii.setApproximation()
				}
				return
			}
		}
		node, d := obj.ClosestNode(ii.Coords)
		if ii.improves(d, obj.Index) {
			ii.accept(obj.Index, d, []int{obj.Dofs[node]}, []float64{1})
			ii.setApproximation()
		}

	case Barycentric:
		if obj.Kind != PointObject {
			return
		}
		ii.insertPoolNode(obj, distance, opts.PoolSize)
		ii.setApproximation()
	}
}

func (ii *InterfaceInfo) accept(index int, d float64, dofs []int, weights []float64) {
	ii.CandidateIndex = index
	ii.Distance = d
	ii.Dofs = append(ii.Dofs[:0], dofs...)
	ii.Weights = append(ii.Weights[:0], weights...)
}

func (ii *InterfaceInfo) insertPoolNode(obj *InterfaceObject, d float64, size int) {
	n := PoolNode{
		Dof:      obj.Dofs[0],
		Coords:   obj.Coords,
		Distance: d,
		Rank:     ii.SourceRank,
		Index:    obj.Index,
	}
	i := sort.Search(len(ii.Pool), func(i int) bool { return poolLess(n, ii.Pool[i]) })
	if size > 0 && i >= size {
		return
	}
	ii.Pool = append(ii.Pool, PoolNode{})
	copy(ii.Pool[i+1:], ii.Pool[i:])
	ii.Pool[i] = n
	if size > 0 && len(ii.Pool) > size {
		ii.Pool = ii.Pool[:size]
	}
	ii.Distance = ii.Pool[0].Distance
	ii.CandidateIndex = ii.Pool[0].Index
}

func poolLess(a, b PoolNode) bool {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c < 0
	}
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return a.Index < b.Index
}

func statePriority(s InfoState) int {
	switch s {
	case LocalSearchSucceeded:
		return 0
	case Approximated:
		return 1
	}
	return 2
}

// Compare orders records by resolution preference: exact before
// approximate, then distance, then source rank, then candidate index.
// Negative means a wins.
func Compare(a, b *InterfaceInfo) int {
	if c := cmp.Compare(statePriority(a.State), statePriority(b.State)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	if c := cmp.Compare(a.SourceRank, b.SourceRank); c != 0 {
		return c
	}
	return cmp.Compare(a.CandidateIndex, b.CandidateIndex)
}

// Resolve selects the winning record among the ones returned for a single
// query. The result does not depend on the order of infos. It reports
// false when the query must stay pending.
func Resolve(infos []*InterfaceInfo, opts Options) (*InterfaceInfo, bool) {
	var found []*InterfaceInfo
	for _, ii := range infos {
		if ii.LocalSearchSucceeded() {
			found = append(found, ii)
		}
	}
	if len(found) == 0 {
		return nil, false
	}
	if opts.Kind != Barycentric {
		best := found[0]
		for _, ii := range found[1:] {
			if Compare(ii, best) < 0 {
				best = ii
			}
		}
		return best.clone(), true
	}
	return resolveBarycentric(found, opts)
}

func resolveBarycentric(found []*InterfaceInfo, opts Options) (*InterfaceInfo, bool) {
	var (
		pool   []PoolNode
		approx bool
	)
	for _, ii := range found {
		pool = append(pool, ii.Pool...)
		approx = approx || ii.IsApproximation
	}
	if len(pool) == 0 {
		return nil, false
	}
	sort.Slice(pool, func(i, j int) bool { return poolLess(pool[i], pool[j]) })
	if opts.PoolSize > 0 && len(pool) > opts.PoolSize {
		pool = pool[:opts.PoolSize]
	}

	q := found[0]
	res := NewInterfaceInfo(Barycentric, q.Coords, q.LocalSystemIndex, pool[0].Rank)
	res.Distance = pool[0].Distance
	res.CandidateIndex = pool[0].Index

	n := opts.InterpolationType.NumPoints()
	if simplex, inside := selectSimplex(pool, n, q.Coords, opts.InsideTolerance); simplex != nil {
		res.Pool = simplex
		if approx || !inside {
			res.setApproximation()
		} else {
			res.setLocalSearchSucceeded()
		}
		return res, true
	}
	if !approx {
		return nil, false
	}
	// No simplex anywhere; fall back to the closest node.
	res.Pool = pool[:1]
	res.setApproximation()
	return res, true
}

// selectSimplex walks the n-node combinations of pool in lexicographic
// pool order and returns the first well shaped simplex containing p within
// tol. Without one it returns the greedy simplex, reported as outside.
func selectSimplex(pool []PoolNode, n int, p r3.Vec, tol float64) ([]PoolNode, bool) {
	if n > len(pool) {
		return greedySimplex(pool, n), false
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	trial := make([]PoolNode, n)
	for {
		for i, k := range idx {
			trial[i] = pool[k]
		}
		if w, err := element.Barycentric(poolCoords(trial), p); err == nil && element.IsInsideSimplex(w, tol) {
			return append([]PoolNode(nil), trial...), true
		}
		// Next combination
		i := n - 1
		for i >= 0 && idx[i] == len(pool)-n+i {
			i--
		}
		if i < 0 {
			break
		}
		idx[i]++
		for j := i + 1; j < n; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
	return greedySimplex(pool, n), false
}

// greedySimplex takes pool nodes in order, keeping each node that raises
// the dimension of the span, until n nodes are found
func greedySimplex(pool []PoolNode, n int) []PoolNode {
	chosen := make([]PoolNode, 0, n)
	for _, nd := range pool {
		trial := append(append([]PoolNode(nil), chosen...), nd)
		if element.AffinelyIndependent(poolCoords(trial)) {
			chosen = trial
			if len(chosen) == n {
				return chosen
			}
		}
	}
	return nil
}

func poolCoords(nodes []PoolNode) []r3.Vec {
	pts := make([]r3.Vec, len(nodes))
	for i, nd := range nodes {
		pts[i] = nd.Coords
	}
	return pts
}

func (ii *InterfaceInfo) clone() *InterfaceInfo {
	c := *ii
	c.Dofs = append([]int(nil), ii.Dofs...)
	c.Weights = append([]float64(nil), ii.Weights...)
	c.Pool = append([]PoolNode(nil), ii.Pool...)
	return &c
}

// PairingInfo is the part of a resolved record kept after assembly
type PairingInfo struct {
	LocalSystemIndex int
	IsApproximation  bool
}

// Pairing returns the retained subset of the record
func (ii *InterfaceInfo) Pairing() PairingInfo {
	return PairingInfo{LocalSystemIndex: ii.LocalSystemIndex, IsApproximation: ii.IsApproximation}
}
