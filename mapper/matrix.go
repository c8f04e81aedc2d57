package mapper

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/james-bowman/sparse"
	"github.com/notargets/DGMapper/comm"
	"github.com/notargets/DGMapper/utils"
)

// MappingMatrix is the local block of a distributed sparse operator:
// rows are the destination dofs owned by this rank, columns the source dofs
// referenced by them, compressed to the positions of Plan.Needed.
type MappingMatrix struct {
	Epoch   int       // Setup counter of the owning mapper
	EpochID uuid.UUID // Shared by all ranks of one setup

	Plan *utils.ExchangePlan // Fetches referenced source values

	rows    int
	numSrc  int         // Source dofs owned by this rank
	csr     *sparse.CSR // nil when rows or columns are empty
	invalid atomic.Bool
}

type triplet struct {
	col int
	val float64
}

// Assemble aggregates local systems into the local operator block.
// numRows is the number of owned destination dofs; source dofs are global
// numbers of sourceDofs. Collective.
func Assemble(ctx context.Context, c comm.Communicator, systems []LocalSystem, numRows int,
	sourceDofs *utils.DofNumbering) (*MappingMatrix, error) {
	var needed []int
	for _, ls := range systems {
		if ls.Row < 0 || ls.Row >= numRows {
			return nil, fmt.Errorf("local system row %d outside [0,%d)", ls.Row, numRows)
		}
		if len(ls.Dofs) != len(ls.Weights) {
			return nil, fmt.Errorf("local system row %d has %d dofs and %d weights",
				ls.Row, len(ls.Dofs), len(ls.Weights))
		}
		needed = append(needed, ls.Dofs...)
	}
	plan, err := utils.NewExchangePlan(ctx, c, sourceDofs, needed)
	if err != nil {
		return nil, fmt.Errorf("source exchange plan: %w", err)
	}

	rowEntries := make([][]triplet, numRows)
	for _, ls := range systems {
		for k, dof := range ls.Dofs {
			rowEntries[ls.Row] = append(rowEntries[ls.Row], triplet{col: plan.Position(dof), val: ls.Weights[k]})
		}
	}
	m := &MappingMatrix{Plan: plan, rows: numRows, numSrc: sourceDofs.NumOwned()}
	cols := len(plan.Needed)
	if numRows == 0 || cols == 0 {
		return m, nil
	}

	// Rows sorted by column with duplicates summed, so the operator does not
	// depend on the order the systems were built in.
	ia := make([]int, numRows+1)
	var (
		ja   []int
		data []float64
	)
	for r, ents := range rowEntries {
		sort.SliceStable(ents, func(i, j int) bool { return ents[i].col < ents[j].col })
		for i, e := range ents {
			if i > 0 && e.col == ents[i-1].col {
				data[len(data)-1] += e.val
				continue
			}
			ja = append(ja, e.col)
			data = append(data, e.val)
		}
		ia[r+1] = len(ja)
	}
	m.csr = sparse.NewCSR(numRows, cols, ia, ja, data)
	return m, nil
}

// Dims returns the local rows and compressed columns
func (m *MappingMatrix) Dims() (rows, cols int) { return m.rows, len(m.Plan.Needed) }

// NNZ returns the number of stored weights
func (m *MappingMatrix) NNZ() int {
	if m.csr == nil {
		return 0
	}
	return m.csr.NNZ()
}

// Valid reports whether the matrix belongs to the current setup epoch
func (m *MappingMatrix) Valid() bool { return !m.invalid.Load() }

func (m *MappingMatrix) invalidate() { m.invalid.Store(true) }

// RowWeights returns the global source dofs and weights of a local row
func (m *MappingMatrix) RowWeights(row int) ([]int, []float64) {
	var (
		dofs    []int
		weights []float64
	)
	if m.csr == nil {
		return nil, nil
	}
	m.csr.DoRowNonZero(row, func(_, j int, v float64) {
		dofs = append(dofs, m.Plan.Needed[j])
		weights = append(weights, v)
	})
	return dofs, weights
}

// MultiplyLocal computes dst = A * src where src is ordered like
// Plan.Needed. It touches no shared state and is safe for concurrent use.
func (m *MappingMatrix) MultiplyLocal(dst, src []float64) error {
	if len(dst) != m.rows || len(src) != len(m.Plan.Needed) {
		return fmt.Errorf("multiply expects %d and %d values, got %d and %d",
			m.rows, len(m.Plan.Needed), len(dst), len(src))
	}
	for i := range dst {
		dst[i] = 0
	}
	if m.csr != nil {
		m.csr.MulVecTo(dst, false, src)
	}
	return nil
}

// Apply computes y = A x from owned source values x into owned destination
// values y. Collective.
func (m *MappingMatrix) Apply(ctx context.Context, c comm.Communicator, x, y []float64) error {
	if !m.Valid() {
		return ErrStaleMatrix
	}
	if len(x) != m.numSrc {
		return fmt.Errorf("apply expects %d source values, got %d", m.numSrc, len(x))
	}
	src, err := m.Plan.Gather(ctx, c, x)
	if err != nil {
		return err
	}
	return m.MultiplyLocal(y, src)
}

// ApplyTranspose computes x = Aᵀ y from owned destination values y into
// owned source values x. Collective.
func (m *MappingMatrix) ApplyTranspose(ctx context.Context, c comm.Communicator, y, x []float64) error {
	if !m.Valid() {
		return ErrStaleMatrix
	}
	if len(y) != m.rows || len(x) != m.numSrc {
		return fmt.Errorf("transpose apply expects %d and %d values, got %d and %d",
			m.rows, m.numSrc, len(y), len(x))
	}
	contrib := make([]float64, len(m.Plan.Needed))
	if m.csr != nil {
		m.csr.MulVecTo(contrib, true, y)
	}
	for i := range x {
		x[i] = 0
	}
	return m.Plan.ScatterAdd(ctx, c, contrib, x)
}

// MarshalBinary encodes the rows with global column numbers. The encoding
// depends only on the operator, not on the epoch.
func (m *MappingMatrix) MarshalBinary() ([]byte, error) {
	out := utils.EncodeInts([]int{m.rows, m.numSrc})
	for r := 0; r < m.rows; r++ {
		dofs, weights := m.RowWeights(r)
		out = append(out, utils.EncodeInts(append([]int{len(dofs)}, dofs...))...)
		out = append(out, utils.EncodeFloats(weights)...)
	}
	return out, nil
}
