package utils

import (
	"context"
	"fmt"
	"sort"

	"github.com/notargets/DGMapper/comm"
)

// ExchangePlan manages pick and place indices that bring the values of
// arbitrary global dofs onto the rank that reads them.
//
// Owner side: PickIndices[q] lists the owned local positions rank q reads.
// Reader side: PlaceIndices[p] lists the buffer positions filled from rank p.
// The buffer on the reader is ordered like Needed.
type ExchangePlan struct {
	Rank int
	Size int

	Needed []int // Sorted, unique global dofs read by this rank

	PickIndices  [][]int // [targetRank] owned local positions to send
	PlaceIndices [][]int // [sourceRank] positions in the Needed buffer

	numOwned int
}

// NewExchangePlan builds the pick and place indices for the dofs this rank
// reads. Collective.
func NewExchangePlan(ctx context.Context, c comm.Communicator, dofs *DofNumbering, needed []int) (*ExchangePlan, error) {
	size := c.Size()
	ep := &ExchangePlan{
		Rank:         c.Rank(),
		Size:         size,
		Needed:       sortedUnique(needed),
		PickIndices:  make([][]int, size),
		PlaceIndices: make([][]int, size),
		numOwned:     dofs.NumOwned(),
	}

	requests := make([][]int, size)
	for pos, dof := range ep.Needed {
		owner, local, err := dofs.Owner(dof)
		if err != nil {
			return nil, err
		}
		requests[owner] = append(requests[owner], local)
		ep.PlaceIndices[owner] = append(ep.PlaceIndices[owner], pos)
	}

	send := make([][]byte, size)
	for q := range send {
		send[q] = EncodeInts(requests[q])
	}
	msgs, err := c.AllToAll(ctx, send)
	if err != nil {
		return nil, fmt.Errorf("exchanging pick requests: %w", err)
	}
	for _, m := range msgs {
		picks, err := DecodeInts(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("pick request from rank %d: %w", m.From, err)
		}
		ep.PickIndices[m.From] = picks
	}
	return ep, nil
}

// Position returns the buffer position of a global dof, or -1
func (ep *ExchangePlan) Position(dof int) int {
	i := sort.SearchInts(ep.Needed, dof)
	if i < len(ep.Needed) && ep.Needed[i] == dof {
		return i
	}
	return -1
}

// Gather fills and returns the Needed buffer from the owners' values.
// Collective.
func (ep *ExchangePlan) Gather(ctx context.Context, c comm.Communicator, owned []float64) ([]float64, error) {
	if len(owned) != ep.numOwned {
		return nil, fmt.Errorf("gather expects %d owned values, got %d", ep.numOwned, len(owned))
	}
	send := make([][]byte, ep.Size)
	for q, picks := range ep.PickIndices {
		vals := make([]float64, len(picks))
		for i, idx := range picks {
			vals[i] = owned[idx]
		}
		send[q] = EncodeFloats(vals)
	}
	msgs, err := c.AllToAll(ctx, send)
	if err != nil {
		return nil, err
	}
	buffer := make([]float64, len(ep.Needed))
	for _, m := range msgs {
		vals, err := DecodeFloats(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("values from rank %d: %w", m.From, err)
		}
		places := ep.PlaceIndices[m.From]
		if len(vals) != len(places) {
			return nil, fmt.Errorf("rank %d sent %d values, expected %d", m.From, len(vals), len(places))
		}
		for i, pos := range places {
			buffer[pos] = vals[i]
		}
	}
	return buffer, nil
}

// ScatterAdd sends buffer contributions back to their owners and adds them
// into owned. Contributions are summed in rank order so the result does
// not depend on message arrival. Collective.
func (ep *ExchangePlan) ScatterAdd(ctx context.Context, c comm.Communicator, buffer, owned []float64) error {
	if len(buffer) != len(ep.Needed) {
		return fmt.Errorf("scatter expects a buffer of %d values, got %d", len(ep.Needed), len(buffer))
	}
	if len(owned) != ep.numOwned {
		return fmt.Errorf("scatter expects %d owned values, got %d", ep.numOwned, len(owned))
	}
	send := make([][]byte, ep.Size)
	for p, places := range ep.PlaceIndices {
		vals := make([]float64, len(places))
		for i, pos := range places {
			vals[i] = buffer[pos]
		}
		send[p] = EncodeFloats(vals)
	}
	msgs, err := c.AllToAll(ctx, send)
	if err != nil {
		return err
	}
	bySender := make([][]float64, ep.Size)
	for _, m := range msgs {
		vals, err := DecodeFloats(m.Payload)
		if err != nil {
			return fmt.Errorf("contributions from rank %d: %w", m.From, err)
		}
		if len(vals) != len(ep.PickIndices[m.From]) {
			return fmt.Errorf("rank %d sent %d contributions, expected %d",
				m.From, len(vals), len(ep.PickIndices[m.From]))
		}
		bySender[m.From] = vals
	}
	for q, vals := range bySender {
		for i, idx := range ep.PickIndices[q] {
			owned[idx] += vals[i]
		}
	}
	return nil
}

// Verify checks index validity locally and pick/place symmetry across
// ranks. Collective.
func (ep *ExchangePlan) Verify(ctx context.Context, c comm.Communicator) error {
	// Local validity - pick indices within the owned range
	for q, picks := range ep.PickIndices {
		for _, idx := range picks {
			if idx < 0 || idx >= ep.numOwned {
				return fmt.Errorf("invalid pick index %d for rank %d (max %d)", idx, q, ep.numOwned-1)
			}
		}
	}
	// Conservation - every needed dof is placed exactly once
	placed := 0
	for _, places := range ep.PlaceIndices {
		placed += len(places)
	}
	if placed != len(ep.Needed) {
		return fmt.Errorf("conservation error: %d placements for %d needed dofs", placed, len(ep.Needed))
	}
	// Correspondence - what q picks for us equals what we place from q
	send := make([][]byte, ep.Size)
	for q := range send {
		send[q] = EncodeInts([]int{len(ep.PlaceIndices[q])})
	}
	msgs, err := c.AllToAll(ctx, send)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		n, err := DecodeInts(m.Payload)
		if err != nil || len(n) != 1 {
			return fmt.Errorf("malformed placement count from rank %d", m.From)
		}
		if n[0] != len(ep.PickIndices[m.From]) {
			return fmt.Errorf("length mismatch: rank %d places %d values from rank %d, which picks %d",
				m.From, n[0], ep.Rank, len(ep.PickIndices[m.From]))
		}
	}
	return nil
}

func sortedUnique(v []int) []int {
	out := append([]int(nil), v...)
	sort.Ints(out)
	n := 0
	for i, x := range out {
		if i == 0 || x != out[n-1] {
			out[n] = x
			n++
		}
	}
	return out[:n]
}
