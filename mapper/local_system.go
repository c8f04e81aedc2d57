package mapper

import (
	"errors"
	"fmt"

	"github.com/notargets/DGMapper/element"
	"github.com/notargets/DGMapper/search"
	"gonum.org/v1/gonum/spatial/r3"
)

// LocalSystem is the interpolation equation of one destination dof:
// value = sum(Weights[k] * source[Dofs[k]])
type LocalSystem struct {
	DestinationID int // Node ID in the destination model part
	Row           int // Owned destination position
	Info          *search.InterfaceInfo

	Dofs    []int // Global source dofs
	Weights []float64
}

// Calculate fills Dofs and Weights from Info
func (ls *LocalSystem) Calculate() (err error) {
	ls.Dofs, ls.Weights, err = CalculateLocalSystem(ls.Info)
	if err != nil {
		return fmt.Errorf("local system of node %d: %w", ls.DestinationID, err)
	}
	return nil
}

// Pairing returns the subset of the resolved record kept after assembly
func (ls *LocalSystem) Pairing() search.PairingInfo {
	if ls.Info == nil {
		return search.PairingInfo{LocalSystemIndex: ls.Row}
	}
	return ls.Info.Pairing()
}

// CalculateLocalSystem turns a resolved record into source dofs and
// weights. Failed or missing records give an empty system.
//
//	NearestNeighbor: the closest node, weight 1
//	NearestElement:  shape functions at the projected local coordinate,
//	                 or the closest element node for a far approximation
//	Barycentric:     barycentric coordinates in the selected simplex,
//	                 or the closest node when no simplex was found
func CalculateLocalSystem(info *search.InterfaceInfo) ([]int, []float64, error) {
	if info == nil || !info.LocalSearchSucceeded() {
		return nil, nil, nil
	}
	switch info.Kind {
	case search.NearestNeighbor, search.NearestElement:
		if len(info.Dofs) == 0 || len(info.Dofs) != len(info.Weights) {
			return nil, nil, fmt.Errorf("%s record with %d dofs and %d weights",
				info.Kind, len(info.Dofs), len(info.Weights))
		}
		return append([]int(nil), info.Dofs...), append([]float64(nil), info.Weights...), nil

	case search.Barycentric:
		if len(info.Pool) == 0 {
			return nil, nil, errors.New("barycentric record without nodes")
		}
		dofs := make([]int, len(info.Pool))
		pts := make([]r3.Vec, len(info.Pool))
		for i, n := range info.Pool {
			dofs[i] = n.Dof
			pts[i] = n.Coords
		}
		w, err := element.Barycentric(pts, info.Coords)
		if err != nil {
			return nil, nil, err
		}
		return dofs, w, nil
	}
	return nil, nil, fmt.Errorf("unknown mapper kind %s", info.Kind)
}
