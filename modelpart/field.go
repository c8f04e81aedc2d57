package modelpart

import "fmt"

// FieldType is the tensorial semantics of a nodal field
type FieldType uint8

const (
	Scalar FieldType = iota
	Vector
	Tensor
)

func (t FieldType) String() string {
	switch t {
	case Scalar:
		return "scalar"
	case Vector:
		return "vector"
	case Tensor:
		return "tensor"
	default:
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
}

// ComponentsFor returns the component count of t in a space of dimension dim
func (t FieldType) ComponentsFor(dim int) int {
	switch t {
	case Vector:
		return dim
	case Tensor:
		return dim * dim
	default:
		return 1
	}
}

// Field holds nodal values, node-major: Values[node*Components+c]
type Field struct {
	Name       string
	Type       FieldType
	Components int
	Values     []float64
}

// NewScalarField allocates a zero scalar field over numNodes nodes
func NewScalarField(name string, numNodes int) *Field {
	return &Field{Name: name, Type: Scalar, Components: 1, Values: make([]float64, numNodes)}
}

// NewVectorField allocates a zero vector field with dim components
func NewVectorField(name string, numNodes, dim int) *Field {
	return &Field{Name: name, Type: Vector, Components: dim, Values: make([]float64, numNodes*dim)}
}

// NewTensorField allocates a zero tensor field with dim*dim components
func NewTensorField(name string, numNodes, dim int) *Field {
	return &Field{Name: name, Type: Tensor, Components: dim * dim, Values: make([]float64, numNodes*dim*dim)}
}

// NumNodes returns the number of nodes the field covers
func (f *Field) NumNodes() int {
	if f.Components == 0 {
		return 0
	}
	return len(f.Values) / f.Components
}

// At returns component c of node i
func (f *Field) At(i, c int) float64 { return f.Values[i*f.Components+c] }

// Set assigns component c of node i
func (f *Field) Set(i, c int, v float64) { f.Values[i*f.Components+c] = v }

// Component extracts component c for the listed node positions
func (f *Field) Component(c int, nodes []int) []float64 {
	out := make([]float64, len(nodes))
	for k, i := range nodes {
		out[k] = f.At(i, c)
	}
	return out
}
