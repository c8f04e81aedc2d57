// Package partitions splits a serial model part into per-rank model parts.
// Elements (or bare nodes for point clouds) are grouped by a geometric
// strategy; every node is owned by exactly one rank and copied as a ghost
// onto the other ranks whose elements reference it.
package partitions

import (
	"fmt"
	"math"
)

// Partition is the set of entities assigned to one rank
type Partition struct {
	// Unique identifier for this partition, equal to the rank
	ID int

	// Entity membership
	Elements    []int // Entity indices in this partition, ascending
	NumElements int
}

// PartitionLayout manages the complete decomposition
type PartitionLayout struct {
	// All partitions
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumElements) across all partitions
	TotalElements int // Sum of all entities across partitions
	NumPartitions int

	// Entity to partition mapping
	EToP []int // Length TotalElements: entity k belongs to partition EToP[k]
}

// GetPartition returns the partition containing entity k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("%d partitions stored, %d declared", len(pl.Partitions), pl.NumPartitions)
	}
	if len(pl.EToP) != pl.TotalElements {
		return fmt.Errorf("EToP has %d entries for %d elements", len(pl.EToP), pl.TotalElements)
	}
	var (
		actualMax int
		total     int
		seen      = make([]bool, pl.TotalElements)
	)
	for id, p := range pl.Partitions {
		if p.ID != id {
			return fmt.Errorf("partition at %d has ID %d", id, p.ID)
		}
		if p.NumElements != len(p.Elements) {
			return fmt.Errorf("partition %d: NumElements %d != %d listed",
				p.ID, p.NumElements, len(p.Elements))
		}
		for _, k := range p.Elements {
			if k < 0 || k >= pl.TotalElements {
				return fmt.Errorf("partition %d: element %d out of range", p.ID, k)
			}
			if seen[k] {
				return fmt.Errorf("element %d assigned twice", k)
			}
			seen[k] = true
			if pl.EToP[k] != p.ID {
				return fmt.Errorf("element %d listed in partition %d, EToP says %d", k, p.ID, pl.EToP[k])
			}
		}
		total += p.NumElements
		actualMax = max(actualMax, p.NumElements)
	}
	if total != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, expected %d", total, pl.TotalElements)
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	return nil
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinElements:   math.MaxInt32,
		MaxElements:   0,
		AvgElements:   float64(pl.TotalElements) / float64(pl.NumPartitions),
	}

	for _, p := range pl.Partitions {
		if p.NumElements < stats.MinElements {
			stats.MinElements = p.NumElements
		}
		if p.NumElements > stats.MaxElements {
			stats.MaxElements = p.NumElements
		}
	}

	if stats.AvgElements > 0 {
		stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	}

	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}
