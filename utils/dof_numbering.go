package utils

import (
	"context"
	"fmt"
	"sort"

	"github.com/notargets/DGMapper/comm"
)

// GhostRef names a node present on this rank but owned by another one
type GhostRef struct {
	ID    int
	Owner int
}

// DofNumbering assigns contiguous global dof numbers to owned nodes:
// rank r owns [Offsets[r], Offsets[r+1]), in the order of its owned IDs.
type DofNumbering struct {
	Rank    int
	Offsets []int // Length Size+1

	owned  []int       // Owned node IDs in local order
	global map[int]int // Node ID -> global dof, owned and ghost
}

// NewDofNumbering numbers the owned nodes of every rank and resolves the
// global dofs of the ghost nodes from their owners. Collective.
func NewDofNumbering(ctx context.Context, c comm.Communicator, ownedIDs []int, ghosts []GhostRef) (*DofNumbering, error) {
	size := c.Size()
	counts, err := c.AllGather(ctx, EncodeInts([]int{len(ownedIDs)}))
	if err != nil {
		return nil, fmt.Errorf("gathering owned counts: %w", err)
	}
	dn := &DofNumbering{
		Rank:    c.Rank(),
		Offsets: make([]int, size+1),
		owned:   append([]int(nil), ownedIDs...),
		global:  make(map[int]int, len(ownedIDs)+len(ghosts)),
	}
	for r, b := range counts {
		n, err := DecodeInts(b)
		if err != nil || len(n) != 1 {
			return nil, fmt.Errorf("rank %d sent a malformed owned count", r)
		}
		dn.Offsets[r+1] = dn.Offsets[r] + n[0]
	}
	for i, id := range ownedIDs {
		if _, dup := dn.global[id]; dup {
			return nil, fmt.Errorf("node %d owned twice on rank %d", id, dn.Rank)
		}
		dn.global[id] = dn.Offsets[dn.Rank] + i
	}

	// Ask owners for the dofs of our ghosts.
	requests := make([][]int, size)
	for _, g := range ghosts {
		if g.Owner < 0 || g.Owner >= size {
			return nil, fmt.Errorf("ghost node %d has owner %d outside [0,%d)", g.ID, g.Owner, size)
		}
		requests[g.Owner] = append(requests[g.Owner], g.ID)
	}
	send := make([][]byte, size)
	for r := range send {
		send[r] = EncodeInts(requests[r])
	}
	msgs, err := c.AllToAll(ctx, send)
	if err != nil {
		return nil, fmt.Errorf("sending ghost requests: %w", err)
	}
	replies := make([][]byte, size)
	for _, m := range msgs {
		ids, err := DecodeInts(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("ghost request from rank %d: %w", m.From, err)
		}
		dofs := make([]int, len(ids))
		for i, id := range ids {
			d, ok := dn.global[id]
			if !ok || !dn.ownsGlobal(d) {
				return nil, fmt.Errorf("rank %d asked rank %d for node %d, which it does not own",
					m.From, dn.Rank, id)
			}
			dofs[i] = d
		}
		replies[m.From] = EncodeInts(dofs)
	}
	msgs, err = c.AllToAll(ctx, replies)
	if err != nil {
		return nil, fmt.Errorf("returning ghost dofs: %w", err)
	}
	for _, m := range msgs {
		dofs, err := DecodeInts(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("ghost reply from rank %d: %w", m.From, err)
		}
		if len(dofs) != len(requests[m.From]) {
			return nil, fmt.Errorf("rank %d answered %d of %d ghost requests",
				m.From, len(dofs), len(requests[m.From]))
		}
		for i, id := range requests[m.From] {
			dn.global[id] = dofs[i]
		}
	}
	return dn, nil
}

func (dn *DofNumbering) ownsGlobal(dof int) bool {
	return dof >= dn.Offsets[dn.Rank] && dof < dn.Offsets[dn.Rank+1]
}

// Global returns the global dof of a node known on this rank
func (dn *DofNumbering) Global(nodeID int) (int, bool) {
	d, ok := dn.global[nodeID]
	return d, ok
}

// Owner returns the owning rank and the owner's local position of a global dof
func (dn *DofNumbering) Owner(dof int) (rank, local int, err error) {
	if dof < 0 || dof >= dn.NumGlobal() {
		return 0, 0, fmt.Errorf("global dof %d outside [0,%d)", dof, dn.NumGlobal())
	}
	// First offset strictly greater than dof, minus one.
	rank = sort.SearchInts(dn.Offsets, dof+1) - 1
	return rank, dof - dn.Offsets[rank], nil
}

// NumOwned returns the number of dofs owned by this rank
func (dn *DofNumbering) NumOwned() int { return dn.Offsets[dn.Rank+1] - dn.Offsets[dn.Rank] }

// NumGlobal returns the total number of dofs
func (dn *DofNumbering) NumGlobal() int { return dn.Offsets[len(dn.Offsets)-1] }

// OwnedIDs returns the owned node IDs in local dof order
func (dn *DofNumbering) OwnedIDs() []int { return dn.owned }
