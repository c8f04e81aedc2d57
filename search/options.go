package search

import (
	"fmt"
	"strings"
)

// MapperKind tags the InterfaceInfo variant
type MapperKind uint8

const (
	NearestNeighbor MapperKind = iota // Closest source node, weight 1
	NearestElement                    // Projection onto source elements, shape function weights
	Barycentric                       // Simplex of nearby source nodes, barycentric weights
)

func (k MapperKind) String() string {
	switch k {
	case NearestNeighbor:
		return "nearest_neighbor"
	case NearestElement:
		return "nearest_element"
	case Barycentric:
		return "barycentric"
	default:
		return fmt.Sprintf("MapperKind(%d)", uint8(k))
	}
}

// ParseMapperKind accepts the names returned by String
func ParseMapperKind(s string) (MapperKind, error) {
	for _, k := range []MapperKind{NearestNeighbor, NearestElement, Barycentric} {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown mapper type %q", s)
}

// InterpolationType is the simplex a Barycentric search tries to complete
type InterpolationType uint8

const (
	LineInterpolation InterpolationType = iota
	TriangleInterpolation
	TetrahedraInterpolation
)

func (t InterpolationType) String() string {
	switch t {
	case LineInterpolation:
		return "line"
	case TriangleInterpolation:
		return "triangle"
	case TetrahedraInterpolation:
		return "tetrahedra"
	default:
		return fmt.Sprintf("InterpolationType(%d)", uint8(t))
	}
}

// NumPoints returns the number of nodes of the simplex
func (t InterpolationType) NumPoints() int { return int(t) + 2 }

// ParseInterpolationType accepts the names returned by String
func ParseInterpolationType(s string) (InterpolationType, error) {
	for _, t := range []InterpolationType{LineInterpolation, TriangleInterpolation, TetrahedraInterpolation} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown interpolation type %q", s)
}

// Options controls the search. SearchRadius 0 selects an automatic radius
// from the global source extent.
type Options struct {
	Kind                MapperKind
	SearchRadius        float64
	MaxSearchIterations int     // Exact escalation rounds
	RadiusGrowth        float64 // Radius factor between rounds
	InsideTolerance     float64 // Local coordinate slack for an exact projection
	LocalCoordTolerance float64 // Local coordinate slack for an approximate projection
	InterpolationType   InterpolationType
	PoolSize            int // Barycentric candidate nodes kept per query
	Workers             int // Concurrent queries per rank, <= 0 means unbounded
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions(kind MapperKind) Options {
	return Options{
		Kind:                kind,
		MaxSearchIterations: 3,
		RadiusGrowth:        2,
		InsideTolerance:     1e-10,
		LocalCoordTolerance: 0.25,
		InterpolationType:   TriangleInterpolation,
		PoolSize:            16,
	}
}

// Validate checks the options for values the protocol cannot run with
func (o Options) Validate() error {
	switch {
	case o.Kind > Barycentric:
		return fmt.Errorf("invalid mapper kind %d", o.Kind)
	case o.SearchRadius < 0:
		return fmt.Errorf("search radius must not be negative, got %g", o.SearchRadius)
	case o.MaxSearchIterations < 1:
		return fmt.Errorf("max search iterations must be positive, got %d", o.MaxSearchIterations)
	case o.RadiusGrowth < 1:
		return fmt.Errorf("radius growth must be at least 1, got %g", o.RadiusGrowth)
	case o.InsideTolerance < 0 || o.LocalCoordTolerance < o.InsideTolerance:
		return fmt.Errorf("tolerances must satisfy 0 <= inside (%g) <= local coord (%g)",
			o.InsideTolerance, o.LocalCoordTolerance)
	case o.InterpolationType > TetrahedraInterpolation:
		return fmt.Errorf("invalid interpolation type %d", o.InterpolationType)
	case o.Kind == Barycentric && o.PoolSize < o.InterpolationType.NumPoints():
		return fmt.Errorf("pool size %d cannot hold a %s simplex", o.PoolSize, o.InterpolationType)
	}
	return nil
}
