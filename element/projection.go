package element

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrDegenerateGeometry is returned for a geometry with a collapsed map
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	// ErrNoProjection is returned when the inverse map of a valid geometry
	// has no solution for the point
	ErrNoProjection = errors.New("point has no projection")
)

const (
	maxNewtonIterations = 50
	newtonTolerance     = 1e-12
	degenerateTolerance = 1e-12
	// Relative measure below which a simplex is too flat to interpolate on
	simplexQualityTolerance = 1e-6
)

// Projection is the result of projecting a physical point onto a geometry
type Projection struct {
	Type     GeometryType
	Local    []float64 // Local coordinate of the projected point (nil for Point1)
	Shape    []float64 // Shape function values at Local
	Point    r3.Vec    // Projected physical point
	Distance float64   // |p - Point|
}

// IsInside reports whether the local coordinate lies within the reference
// element enlarged by tol. tol is relative to the reference span, so tensor
// elements on [-1,1] get twice the absolute margin of simplices.
func (p Projection) IsInside(tol float64) bool {
	switch {
	case p.Type == Point1:
		return true
	case p.Type.IsSimplex():
		sum := 0.
		for _, xi := range p.Local {
			if xi < -tol {
				return false
			}
			sum += xi
		}
		return sum <= 1+tol
	default:
		for _, xi := range p.Local {
			if math.Abs(xi) > 1+2*tol {
				return false
			}
		}
		return true
	}
}

// Project computes the local coordinate of the point of g closest to p.
// Lines and surfaces embedded in 3D are handled in the least squares sense,
// so Distance is the normal distance for a projection that falls inside.
func Project(g Geometry, p r3.Vec) (Projection, error) {
	if len(g.Points) != g.Type.NumPoints() {
		return Projection{}, fmt.Errorf("%w: %s with %d points",
			ErrDegenerateGeometry, g.Type, len(g.Points))
	}
	if g.Type == Point1 {
		return Projection{
			Type:     Point1,
			Shape:    []float64{1},
			Point:    g.Points[0],
			Distance: r3.Norm(r3.Sub(p, g.Points[0])),
		}, nil
	}

	var (
		ldim     = g.Type.LocalDimension()
		local    = referenceCenter(g.Type)
		jac      = mat.NewDense(3, ldim, nil)
		residual = mat.NewVecDense(3, nil)
		delta    = mat.NewVecDense(ldim, nil)
		scale    = characteristicLength(g)
	)
	if scale < degenerateTolerance {
		return Projection{}, fmt.Errorf("%w: %s has zero extent", ErrDegenerateGeometry, g.Type)
	}

	converged := false
	for it := 0; it < maxNewtonIterations; it++ {
		g.jacobian(local, jac)
		if measure(jac) < degenerateTolerance*math.Pow(scale, float64(ldim)) {
			if it == 0 {
				return Projection{}, fmt.Errorf("%w: %s has a collapsed direction",
					ErrDegenerateGeometry, g.Type)
			}
			// The iterate left the region where the map is invertible
			break
		}
		r := r3.Sub(p, g.Map(local))
		residual.SetVec(0, r.X)
		residual.SetVec(1, r.Y)
		residual.SetVec(2, r.Z)
		if err := delta.SolveVec(jac, residual); err != nil {
			if it == 0 {
				return Projection{}, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
			}
			break
		}
		step := 0.
		for k := range local {
			local[k] += delta.AtVec(k)
			step = math.Max(step, math.Abs(delta.AtVec(k)))
		}
		if math.IsNaN(step) || math.IsInf(step, 0) {
			break
		}
		if step < newtonTolerance {
			converged = true
			break
		}
	}
	if !converged {
		return Projection{}, fmt.Errorf("%w: inverse map of %s did not converge",
			ErrNoProjection, g.Type)
	}

	x := g.Map(local)
	return Projection{
		Type:     g.Type,
		Local:    local,
		Shape:    ShapeFunctions(g.Type, local),
		Point:    x,
		Distance: r3.Norm(r3.Sub(p, x)),
	}, nil
}

// jacobian fills jac with dx/dxi, [3 × LocalDimension]
func (g Geometry) jacobian(local []float64, jac *mat.Dense) {
	dN := ShapeFunctionDerivatives(g.Type, local)
	jac.Zero()
	ldim := g.Type.LocalDimension()
	for i, pt := range g.Points {
		for k := 0; k < ldim; k++ {
			d := dN.At(i, k)
			jac.Set(0, k, jac.At(0, k)+d*pt.X)
			jac.Set(1, k, jac.At(1, k)+d*pt.Y)
			jac.Set(2, k, jac.At(2, k)+d*pt.Z)
		}
	}
}

// measure is sqrt(det(JᵀJ)), the local length/area/volume scale of the map
func measure(jac *mat.Dense) float64 {
	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)
	det := mat.Det(&jtj)
	if det <= 0 {
		return 0
	}
	return math.Sqrt(det)
}

func characteristicLength(g Geometry) float64 {
	lo, hi := g.Extent()
	return r3.Norm(r3.Sub(hi, lo))
}
