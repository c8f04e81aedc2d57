// Package comm abstracts the collective message exchange used by the search
// coordinator and the mapping matrix assembler.
//
// Every collective call must be issued by all ranks of a communicator in the
// same order. Calls on one communicator are not safe for concurrent use.
package comm

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Message is one payload delivered by a collective exchange
type Message struct {
	From    int // Sending rank
	Payload []byte
}

// Communicator is the collective exchange seen by one rank
type Communicator interface {
	// Rank returns the rank of the caller, 0 <= Rank() < Size()
	Rank() int

	// Size returns the number of ranks
	Size() int

	// AllToAll sends send[j] to rank j and returns the Size() messages
	// addressed to the caller, in arrival order.
	AllToAll(ctx context.Context, send [][]byte) ([]Message, error)

	// AllGather returns every rank's data, indexed by rank.
	AllGather(ctx context.Context, data []byte) ([][]byte, error)
}

// AllReduceSum returns the sum of v over all ranks
func AllReduceSum(ctx context.Context, c Communicator, v int64) (int64, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	all, err := c.AllGather(ctx, buf)
	if err != nil {
		return 0, err
	}
	var sum int64
	for r, b := range all {
		if len(b) != 8 {
			return 0, fmt.Errorf("rank %d contributed %d bytes to a sum reduction", r, len(b))
		}
		sum += int64(binary.LittleEndian.Uint64(b))
	}
	return sum, nil
}

// AllReduceMax returns the maximum of v over all ranks
func AllReduceMax(ctx context.Context, c Communicator, v float64) (float64, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	all, err := c.AllGather(ctx, buf)
	if err != nil {
		return 0, err
	}
	m := math.Inf(-1)
	for r, b := range all {
		if len(b) != 8 {
			return 0, fmt.Errorf("rank %d contributed %d bytes to a max reduction", r, len(b))
		}
		m = math.Max(m, math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
	return m, nil
}

// Broadcast returns root's data on every rank
func Broadcast(ctx context.Context, c Communicator, root int, data []byte) ([]byte, error) {
	if root < 0 || root >= c.Size() {
		return nil, fmt.Errorf("broadcast root %d outside [0,%d)", root, c.Size())
	}
	if c.Rank() != root {
		data = nil
	}
	all, err := c.AllGather(ctx, data)
	if err != nil {
		return nil, err
	}
	return all[root], nil
}
