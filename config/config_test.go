package config

import (
	"strings"
	"testing"

	"github.com/notargets/DGMapper/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSettings(t *testing.T) {
	s, err := DecodeSettings(strings.NewReader(`
mapper_type = "barycentric"
interpolation_type = "tetrahedra"
search_radius = 0.5
echo_level = 2
workers = 4
`))
	require.NoError(t, err)
	o, err := s.SearchOptions()
	require.NoError(t, err)
	assert.Equal(t, search.Barycentric, o.Kind)
	assert.Equal(t, search.TetrahedraInterpolation, o.InterpolationType)
	assert.Equal(t, 0.5, o.SearchRadius)
	assert.Equal(t, 3, o.MaxSearchIterations)
	assert.Equal(t, 2.0, o.RadiusGrowth)
	assert.Equal(t, 0.25, o.LocalCoordTolerance)
	assert.Equal(t, 4, o.Workers)
	assert.Equal(t, 3, s.Resolved().Dimension)
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())
	assert.NoError(t, Settings{}.Validate())

	bad := []Settings{
		{MapperType: "kriging"},
		{InterpolationType: "prism"},
		{SearchRadius: -1},
		{RadiusGrowth: 0.5},
		{Dimension: 4},
		{EchoLevel: -1},
		{MapperType: "barycentric", PoolSize: 2},
	}
	for _, s := range bad {
		assert.Error(t, s.Validate(), "%+v", s)
	}

	_, err := DecodeSettings(strings.NewReader(`mapper_type = 3`))
	assert.Error(t, err)
}

func TestDecodeCase(t *testing.T) {
	c, err := DecodeCase(strings.NewReader(`
ranks = 3
[origin.grid]
cells = [3, 0, 0]
max = [3.0, 0.0, 0.0]
[destination]
file = "dest.neu"
points_only = true
[field]
expressions = ["10*x"]
[options]
conservative = true
[mapper]
mapper_type = "nearest_element"
`))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Ranks)
	assert.Equal(t, "recursive_bisection", c.PartitionStrategy)
	assert.Equal(t, [3]int{3, 0, 0}, c.Origin.Grid.Cells)
	assert.True(t, c.Destination.PointsOnly)
	assert.Equal(t, "scalar", c.Field.Type)
	assert.True(t, c.Options.Conservative)

	_, err = DecodeCase(strings.NewReader(`
[origin]
file = "a.neu"
[origin.grid]
cells = [1, 0, 0]
[destination]
file = "b.neu"
[field]
expressions = ["x"]
`))
	assert.Error(t, err)
}
