package partitions

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// PartitionBuilder assigns entities, represented by their centroids, to
// partitions
type PartitionBuilder struct {
	Centroids     []r3.Vec
	NumPartitions int
	Strategy      PartitionStrategy
}

// PartitionStrategy defines how entities are grouped
type PartitionStrategy int

const (
	// Simple strategies
	BlockPartition PartitionStrategy = iota // Consecutive entities
	RoundRobin                              // Distribute cyclically

	// Geometric strategies
	SpaceFillingCurve  // Morton curve ordering
	RecursiveBisection // Split the longest extent until one part remains
)

var strategyNames = []string{
	BlockPartition:     "block",
	RoundRobin:         "round_robin",
	SpaceFillingCurve:  "space_filling_curve",
	RecursiveBisection: "recursive_bisection",
}

func (s PartitionStrategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return fmt.Sprintf("PartitionStrategy(%d)", int(s))
	}
	return strategyNames[s]
}

// ParsePartitionStrategy accepts the names printed by String
func ParsePartitionStrategy(name string) (PartitionStrategy, error) {
	for s, n := range strategyNames {
		if strings.EqualFold(name, n) {
			return PartitionStrategy(s), nil
		}
	}
	return 0, fmt.Errorf("unknown partition strategy %q", name)
}

// BuildPartitions creates a partition layout from the centroids
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.NumPartitions < 1 {
		return nil, fmt.Errorf("need at least one partition, got %d", pb.NumPartitions)
	}
	if pb.Strategy < BlockPartition || pb.Strategy > RecursiveBisection {
		return nil, fmt.Errorf("unsupported strategy %s", pb.Strategy)
	}

	// Partition the entities
	eToP := pb.partitionElements()

	// Create partition structures
	partitions := pb.createPartitions(eToP)

	// Create the layout
	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      calculateKpartMax(partitions),
		TotalElements: len(pb.Centroids),
		NumPartitions: pb.NumPartitions,
		EToP:          eToP,
	}

	// Validate the layout
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

// partitionElements assigns entities to partitions
func (pb *PartitionBuilder) partitionElements() []int {
	var (
		n     = len(pb.Centroids)
		np    = pb.NumPartitions
		eToP  = make([]int, n)
		order []int
	)

	switch pb.Strategy {
	case RoundRobin:
		// Distribute entities cyclically
		for i := range eToP {
			eToP[i] = i % np
		}
		return eToP

	case SpaceFillingCurve:
		order = pb.mortonOrder()

	case RecursiveBisection:
		order = identity(n)
		pb.bisect(order, 0, np, eToP)
		return eToP

	default:
		order = identity(n)
	}

	// Balanced blocks along order: sizes differ by at most one
	for pos, i := range order {
		eToP[i] = pos * np / n
	}
	return eToP
}

// mortonOrder sorts entities along a Z-order curve through their bounding
// box, ties broken by index
func (pb *PartitionBuilder) mortonOrder() []int {
	lo, hi := extent(pb.Centroids, identity(len(pb.Centroids)))
	span := r3.Sub(hi, lo)
	const levels = 1<<21 - 1
	quantize := func(v, l, s float64) uint64 {
		if s <= 0 {
			return 0
		}
		return uint64(math.Round((v - l) / s * levels))
	}
	codes := make([]uint64, len(pb.Centroids))
	for i, c := range pb.Centroids {
		codes[i] = interleave3(quantize(c.X, lo.X, span.X)) |
			interleave3(quantize(c.Y, lo.Y, span.Y))<<1 |
			interleave3(quantize(c.Z, lo.Z, span.Z))<<2
	}
	order := identity(len(pb.Centroids))
	sort.SliceStable(order, func(a, b int) bool { return codes[order[a]] < codes[order[b]] })
	return order
}

// interleave3 spreads the low 21 bits of v three bits apart
func interleave3(v uint64) uint64 {
	v &= 0x1fffff
	v = (v | v<<32) & 0x1f00000000ffff
	v = (v | v<<16) & 0x1f0000ff0000ff
	v = (v | v<<8) & 0x100f00f00f00f00f
	v = (v | v<<4) & 0x10c30c30c30c30c3
	v = (v | v<<2) & 0x1249249249249249
	return v
}

// bisect splits members along their longest extent into parts
// [first, first+count), sized proportionally to the parts on each side
func (pb *PartitionBuilder) bisect(members []int, first, count int, eToP []int) {
	if count == 1 || len(members) == 0 {
		for _, i := range members {
			eToP[i] = first
		}
		return
	}
	lo, hi := extent(pb.Centroids, members)
	d := r3.Sub(hi, lo)
	coord := func(v r3.Vec) float64 { return v.X }
	switch {
	case d.Y > d.X && d.Y >= d.Z:
		coord = func(v r3.Vec) float64 { return v.Y }
	case d.Z > d.X && d.Z > d.Y:
		coord = func(v r3.Vec) float64 { return v.Z }
	}
	sort.Slice(members, func(a, b int) bool {
		ca, cb := coord(pb.Centroids[members[a]]), coord(pb.Centroids[members[b]])
		if ca != cb {
			return ca < cb
		}
		return members[a] < members[b]
	})
	left := count / 2
	split := len(members) * left / count
	pb.bisect(members[:split], first, left, eToP)
	pb.bisect(members[split:], first+left, count-left, eToP)
}

// createPartitions builds partition structures from entity assignments
func (pb *PartitionBuilder) createPartitions(eToP []int) []Partition {
	partitions := make([]Partition, pb.NumPartitions)
	for i := range partitions {
		partitions[i] = Partition{ID: i, Elements: make([]int, 0)}
	}
	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
		partitions[part].NumElements++
	}
	return partitions
}

// calculateKpartMax finds maximum entities across all partitions
func calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}

func identity(n int) []int {
	r := make([]int, n)
	for i := range r {
		r[i] = i
	}
	return r
}

func extent(pts []r3.Vec, members []int) (lo, hi r3.Vec) {
	for k, i := range members {
		p := pts[i]
		if k == 0 {
			lo, hi = p, p
			continue
		}
		lo = r3.Vec{X: min(lo.X, p.X), Y: min(lo.Y, p.Y), Z: min(lo.Z, p.Z)}
		hi = r3.Vec{X: max(hi.X, p.X), Y: max(hi.Y, p.Y), Z: max(hi.Z, p.Z)}
	}
	return
}
