package utils

import (
	"context"
	"sync"
	"testing"

	"github.com/notargets/DGMapper/comm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Three ranks own node IDs {0,1,2}, {3,4}, {5,6,7}; every rank needs
// the first and last dof plus one of its right neighbor.
func TestDofNumberingAndExchangePlan(t *testing.T) {
	owned := [][]int{{0, 1, 2}, {3, 4}, {5, 6, 7}}
	ghosts := [][]GhostRef{
		{{ID: 3, Owner: 1}},
		{{ID: 5, Owner: 2}},
		{{ID: 0, Owner: 0}},
	}

	var (
		mu      sync.Mutex
		results = make(map[int][]float64)
	)
	w := comm.NewWorld(3, comm.WithReversedArrival())
	err := w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		r := c.Rank()
		dn, err := NewDofNumbering(ctx, c, owned[r], ghosts[r])
		if err != nil {
			return err
		}
		if dn.NumGlobal() != 8 {
			t.Errorf("rank %d: expected 8 global dofs, got %d", r, dn.NumGlobal())
		}
		g, ok := dn.Global(ghosts[r][0].ID)
		if !ok || g != ghosts[r][0].ID {
			t.Errorf("rank %d: ghost %d resolved to %d", r, ghosts[r][0].ID, g)
		}

		ep, err := NewExchangePlan(ctx, c, dn, []int{7, 0, 7, (dn.Offsets[r+1]) % 8})
		if err != nil {
			return err
		}
		if err = ep.Verify(ctx, c); err != nil {
			return err
		}

		// Owned value of global dof d is 10*d
		vals := make([]float64, dn.NumOwned())
		for i := range vals {
			vals[i] = float64(10 * (dn.Offsets[r] + i))
		}
		buf, err := ep.Gather(ctx, c, vals)
		if err != nil {
			return err
		}
		for pos, dof := range ep.Needed {
			if buf[pos] != float64(10*dof) {
				t.Errorf("rank %d: dof %d gathered %v", r, dof, buf[pos])
			}
		}

		// Every rank adds 1 to each needed dof
		ones := make([]float64, len(ep.Needed))
		for i := range ones {
			ones[i] = 1
		}
		acc := make([]float64, dn.NumOwned())
		if err = ep.ScatterAdd(ctx, c, ones, acc); err != nil {
			return err
		}
		mu.Lock()
		results[r] = acc
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	// dof 0 and 7 are needed by all ranks; 3 by rank 0, 5 by rank 1
	assert.Equal(t, []float64{3, 0, 0}, results[0])
	assert.Equal(t, []float64{1, 0}, results[1])
	assert.Equal(t, []float64{1, 0, 3}, results[2])
}

func TestDofOwner(t *testing.T) {
	dn := &DofNumbering{Rank: 0, Offsets: []int{0, 0, 3, 5}}
	rank, local, err := dn.Owner(0)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)
	assert.Equal(t, 0, local)

	rank, local, err = dn.Owner(4)
	require.NoError(t, err)
	assert.Equal(t, 2, rank)
	assert.Equal(t, 1, local)

	_, _, err = dn.Owner(5)
	assert.Error(t, err)
}

func TestExchangePlanPosition(t *testing.T) {
	ep := &ExchangePlan{Needed: sortedUnique([]int{9, 2, 2, 5})}
	assert.Equal(t, []int{2, 5, 9}, ep.Needed)
	assert.Equal(t, 1, ep.Position(5))
	assert.Equal(t, -1, ep.Position(4))
}

func TestEncodingRoundTrip(t *testing.T) {
	ints, err := DecodeInts(EncodeInts([]int{-3, 0, 1 << 40}))
	require.NoError(t, err)
	assert.Equal(t, []int{-3, 0, 1 << 40}, ints)
	_, err = DecodeFloats([]byte{1, 2, 3})
	assert.Error(t, err)
}
