package element

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// SimplexFor returns the simplex geometry spanned by n points: Point1,
// Line2 (on [0,1] barycentric), Triangle3 or Tetrahedron4
func SimplexFor(n int) (GeometryType, error) {
	switch n {
	case 1:
		return Point1, nil
	case 2:
		return Line2, nil
	case 3:
		return Triangle3, nil
	case 4:
		return Tetrahedron4, nil
	}
	return Point1, fmt.Errorf("no simplex with %d points", n)
}

// AffinelyIndependent reports whether the points span a simplex of
// dimension len(pts)-1 that is not a sliver
func AffinelyIndependent(pts []r3.Vec) bool {
	if len(pts) < 2 {
		return len(pts) == 1
	}
	if len(pts) > 4 {
		return false
	}
	edges, scale := edgeMatrix(pts)
	if scale == 0 {
		return false
	}
	k := len(pts) - 1
	return measure(edges) > simplexQualityTolerance*math.Pow(scale, float64(k))
}

// Barycentric returns the barycentric coordinates of the projection of p
// onto the affine hull of the simplex pts. The coordinates sum to one;
// negative entries mean the projection lies outside the simplex.
func Barycentric(pts []r3.Vec, p r3.Vec) ([]float64, error) {
	switch {
	case len(pts) == 1:
		return []float64{1}, nil
	case !AffinelyIndependent(pts):
		return nil, fmt.Errorf("%w: %d points do not span a simplex", ErrDegenerateGeometry, len(pts))
	}
	edges, _ := edgeMatrix(pts)
	rel := r3.Sub(p, pts[0])
	rhs := mat.NewVecDense(3, []float64{rel.X, rel.Y, rel.Z})
	lambda := mat.NewVecDense(len(pts)-1, nil)
	if err := lambda.SolveVec(edges, rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}
	w := make([]float64, len(pts))
	w[0] = 1
	for i := 1; i < len(pts); i++ {
		w[i] = lambda.AtVec(i - 1)
		w[0] -= w[i]
	}
	return w, nil
}

// IsInsideSimplex reports whether all barycentric coordinates are >= -tol
func IsInsideSimplex(w []float64, tol float64) bool {
	for _, x := range w {
		if x < -tol {
			return false
		}
	}
	return true
}

// edgeMatrix returns the [3 × len(pts)-1] matrix of edges from pts[0] and
// the longest edge length
func edgeMatrix(pts []r3.Vec) (*mat.Dense, float64) {
	k := len(pts) - 1
	edges := mat.NewDense(3, k, nil)
	scale := 0.
	for j := 1; j <= k; j++ {
		e := r3.Sub(pts[j], pts[0])
		edges.Set(0, j-1, e.X)
		edges.Set(1, j-1, e.Y)
		edges.Set(2, j-1, e.Z)
		scale = math.Max(scale, r3.Norm(e))
	}
	return edges, scale
}
