package element

import "gonum.org/v1/gonum/mat"

// Reference node locations for the tensor product elements in [-1,1]^d
var (
	quadNodes = [4][2]float64{
		{-1, -1}, {1, -1}, {1, 1}, {-1, 1},
	}
	hexNodes = [8][3]float64{
		{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
		{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
	}
)

// ShapeFunctions evaluates the linear Lagrange shape functions of t at the
// local coordinate. The values form a partition of unity.
//
// Local coordinate conventions:
//
//	Line2, Quadrilateral4, Hexahedron8: tensor product on [-1,1]^d
//	Triangle3, Tetrahedron4:            simplex, xi_i >= 0, sum(xi) <= 1
func ShapeFunctions(t GeometryType, local []float64) []float64 {
	switch t {
	case Line2:
		xi := local[0]
		return []float64{0.5 * (1 - xi), 0.5 * (1 + xi)}
	case Triangle3:
		xi, eta := local[0], local[1]
		return []float64{1 - xi - eta, xi, eta}
	case Quadrilateral4:
		xi, eta := local[0], local[1]
		n := make([]float64, 4)
		for i, c := range quadNodes {
			n[i] = 0.25 * (1 + c[0]*xi) * (1 + c[1]*eta)
		}
		return n
	case Tetrahedron4:
		xi, eta, zeta := local[0], local[1], local[2]
		return []float64{1 - xi - eta - zeta, xi, eta, zeta}
	case Hexahedron8:
		xi, eta, zeta := local[0], local[1], local[2]
		n := make([]float64, 8)
		for i, c := range hexNodes {
			n[i] = 0.125 * (1 + c[0]*xi) * (1 + c[1]*eta) * (1 + c[2]*zeta)
		}
		return n
	default:
		return []float64{1}
	}
}

// ShapeFunctionDerivatives returns dN/dxi as a [NumPoints × LocalDimension] matrix
func ShapeFunctionDerivatives(t GeometryType, local []float64) *mat.Dense {
	ldim := t.LocalDimension()
	if ldim == 0 {
		return nil
	}
	dN := mat.NewDense(t.NumPoints(), ldim, nil)
	switch t {
	case Line2:
		dN.Set(0, 0, -0.5)
		dN.Set(1, 0, 0.5)
	case Triangle3:
		dN.SetRow(0, []float64{-1, -1})
		dN.SetRow(1, []float64{1, 0})
		dN.SetRow(2, []float64{0, 1})
	case Quadrilateral4:
		xi, eta := local[0], local[1]
		for i, c := range quadNodes {
			dN.Set(i, 0, 0.25*c[0]*(1+c[1]*eta))
			dN.Set(i, 1, 0.25*c[1]*(1+c[0]*xi))
		}
	case Tetrahedron4:
		dN.SetRow(0, []float64{-1, -1, -1})
		dN.SetRow(1, []float64{1, 0, 0})
		dN.SetRow(2, []float64{0, 1, 0})
		dN.SetRow(3, []float64{0, 0, 1})
	case Hexahedron8:
		xi, eta, zeta := local[0], local[1], local[2]
		for i, c := range hexNodes {
			dN.Set(i, 0, 0.125*c[0]*(1+c[1]*eta)*(1+c[2]*zeta))
			dN.Set(i, 1, 0.125*c[1]*(1+c[0]*xi)*(1+c[2]*zeta))
			dN.Set(i, 2, 0.125*c[2]*(1+c[0]*xi)*(1+c[1]*eta))
		}
	}
	return dN
}

// referenceCenter is the starting point of the inverse map iteration
func referenceCenter(t GeometryType) []float64 {
	switch t {
	case Line2:
		return []float64{0}
	case Triangle3:
		return []float64{1. / 3, 1. / 3}
	case Quadrilateral4:
		return []float64{0, 0}
	case Tetrahedron4:
		return []float64{0.25, 0.25, 0.25}
	case Hexahedron8:
		return []float64{0, 0, 0}
	default:
		return nil
	}
}
