package modelpart

import (
	"fmt"

	"github.com/notargets/DGMapper/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// StructuredGrid describes an axis aligned grid of Nx × Ny × Nz cells.
// Zero counts collapse a direction: Ny == Nz == 0 gives Line2 cells,
// Nz == 0 gives Quadrilateral4 cells, otherwise Hexahedron8 cells.
type StructuredGrid struct {
	Nx, Ny, Nz int
	Min, Max   r3.Vec
	FirstID    int // Offset applied to node and element IDs
}

// Build generates a serial model part (all nodes owned by rank 0)
func (sg StructuredGrid) Build(name string) (*ModelPart, error) {
	if sg.Nx < 1 || sg.Ny < 0 || sg.Nz < 0 || (sg.Nz > 0 && sg.Ny == 0) {
		return nil, fmt.Errorf("invalid grid cell counts %d×%d×%d", sg.Nx, sg.Ny, sg.Nz)
	}
	var (
		mp         = New(name)
		px, py, pz = sg.Nx + 1, sg.Ny + 1, sg.Nz + 1
		d          = r3.Sub(sg.Max, sg.Min)
	)
	nodeID := func(i, j, k int) int { return sg.FirstID + i + px*(j+py*k) }
	frac := func(i, n int) float64 {
		if n == 0 {
			return 0
		}
		return float64(i) / float64(n)
	}
	for k := 0; k < pz; k++ {
		for j := 0; j < py; j++ {
			for i := 0; i < px; i++ {
				c := r3.Vec{
					X: sg.Min.X + d.X*frac(i, sg.Nx),
					Y: sg.Min.Y + d.Y*frac(j, sg.Ny),
					Z: sg.Min.Z + d.Z*frac(k, sg.Nz),
				}
				if err := mp.AddNode(nodeID(i, j, k), c, 0); err != nil {
					return nil, err
				}
			}
		}
	}

	eid := sg.FirstID
	var err error
	switch {
	case sg.Ny == 0:
		for i := 0; i < sg.Nx && err == nil; i++ {
			err = mp.AddElement(eid, element.Line2, nodeID(i, 0, 0), nodeID(i+1, 0, 0))
			eid++
		}
	case sg.Nz == 0:
		for j := 0; j < sg.Ny && err == nil; j++ {
			for i := 0; i < sg.Nx && err == nil; i++ {
				err = mp.AddElement(eid, element.Quadrilateral4,
					nodeID(i, j, 0), nodeID(i+1, j, 0), nodeID(i+1, j+1, 0), nodeID(i, j+1, 0))
				eid++
			}
		}
	default:
		for k := 0; k < sg.Nz && err == nil; k++ {
			for j := 0; j < sg.Ny && err == nil; j++ {
				for i := 0; i < sg.Nx && err == nil; i++ {
					err = mp.AddElement(eid, element.Hexahedron8,
						nodeID(i, j, k), nodeID(i+1, j, k), nodeID(i+1, j+1, k), nodeID(i, j+1, k),
						nodeID(i, j, k+1), nodeID(i+1, j, k+1), nodeID(i+1, j+1, k+1), nodeID(i, j+1, k+1))
					eid++
				}
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return mp, nil
}
