package partitions

import (
	"fmt"

	"github.com/notargets/DGMapper/modelpart"
	"gonum.org/v1/gonum/spatial/r3"
)

// Distribute splits a serial model part over n ranks. Elements are
// partitioned by centroid and each node is owned by the rank of the first
// element that references it; nodes without elements are partitioned by
// their own coordinates. Every rank receives its owned nodes, the ghost
// nodes its elements need and its elements, all in the serial order.
func Distribute(mp *modelpart.ModelPart, n int, strategy PartitionStrategy) ([]*modelpart.ModelPart, error) {
	if n < 1 {
		return nil, fmt.Errorf("need at least one rank, got %d", n)
	}
	var (
		nodeOwner = make([]int, len(mp.Nodes))
		elemPart  []int
	)
	for i := range nodeOwner {
		nodeOwner[i] = -1
	}

	if len(mp.Elements) > 0 {
		centroids := make([]r3.Vec, len(mp.Elements))
		for k, e := range mp.Elements {
			g, err := mp.Geometry(e)
			if err != nil {
				return nil, err
			}
			centroids[k] = g.Center()
		}
		layout, err := (&PartitionBuilder{Centroids: centroids, NumPartitions: n, Strategy: strategy}).BuildPartitions()
		if err != nil {
			return nil, fmt.Errorf("model part %s: %w", mp.Name, err)
		}
		elemPart = layout.EToP
		for k, e := range mp.Elements {
			for _, nid := range e.Nodes {
				idx, _ := mp.NodeIndex(nid)
				if nodeOwner[idx] < 0 {
					nodeOwner[idx] = elemPart[k]
				}
			}
		}
	}

	// Nodes no element touches
	var (
		loose  []int
		coords []r3.Vec
	)
	for i, o := range nodeOwner {
		if o < 0 {
			loose = append(loose, i)
			coords = append(coords, mp.Nodes[i].Coords)
		}
	}
	if len(loose) > 0 {
		layout, err := (&PartitionBuilder{Centroids: coords, NumPartitions: n, Strategy: strategy}).BuildPartitions()
		if err != nil {
			return nil, fmt.Errorf("model part %s: %w", mp.Name, err)
		}
		for k, i := range loose {
			nodeOwner[i] = layout.EToP[k]
		}
	}

	// Which ranks need each node
	present := make([][]bool, n)
	for r := range present {
		present[r] = make([]bool, len(mp.Nodes))
	}
	for i, o := range nodeOwner {
		present[o][i] = true
	}
	for k, e := range mp.Elements {
		for _, nid := range e.Nodes {
			idx, _ := mp.NodeIndex(nid)
			present[elemPart[k]][idx] = true
		}
	}

	parts := make([]*modelpart.ModelPart, n)
	for r := range parts {
		part := modelpart.New(mp.Name)
		for i, nd := range mp.Nodes {
			if !present[r][i] {
				continue
			}
			if err := part.AddNode(nd.ID, nd.Coords, nodeOwner[i]); err != nil {
				return nil, err
			}
		}
		for k, e := range mp.Elements {
			if elemPart[k] != r {
				continue
			}
			if err := part.AddElement(e.ID, e.Type, e.Nodes...); err != nil {
				return nil, err
			}
		}
		parts[r] = part
	}
	return parts, nil
}
