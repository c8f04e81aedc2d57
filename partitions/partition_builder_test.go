package partitions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func lineCentroids(n int) []r3.Vec {
	pts := make([]r3.Vec, n)
	for i := range pts {
		pts[i] = r3.Vec{X: float64(i)}
	}
	return pts
}

func TestBuildPartitionsBlockAndRoundRobin(t *testing.T) {
	pb := &PartitionBuilder{Centroids: lineCentroids(4), NumPartitions: 3, Strategy: BlockPartition}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 2}, layout.EToP)
	assert.Equal(t, 2, layout.KpartMax)

	pb.Strategy = RoundRobin
	layout, err = pb.BuildPartitions()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 0}, layout.EToP)
	assert.Equal(t, []int{0, 3}, layout.Partitions[0].Elements)
	assert.Equal(t, 1, layout.GetPartition(1))
	assert.Equal(t, -1, layout.GetPartition(4))
}

func TestBuildPartitionsGeometric(t *testing.T) {
	// Shuffled points on a line: geometric strategies group neighbors
	pts := []r3.Vec{{X: 5}, {X: 0}, {X: 7}, {X: 2}, {X: 1}, {X: 6}, {X: 3}, {X: 4}}
	for _, s := range []PartitionStrategy{SpaceFillingCurve, RecursiveBisection} {
		layout, err := (&PartitionBuilder{Centroids: pts, NumPartitions: 2, Strategy: s}).BuildPartitions()
		require.NoError(t, err, s.String())
		for i, p := range pts {
			want := 0
			if p.X >= 4 {
				want = 1
			}
			assert.Equal(t, want, layout.EToP[i], "%s point %v", s, p)
		}
		stats := layout.PartitionStatistics()
		assert.Equal(t, 4, stats.MinElements)
		assert.Equal(t, 4, stats.MaxElements)
		assert.InDelta(t, 1.0, stats.Imbalance, 1e-15)
	}
}

func TestRecursiveBisectionSplitsLongestAxis(t *testing.T) {
	// 2 x 4 lattice, longer along y at every level
	var pts []r3.Vec
	for j := 0; j < 4; j++ {
		for i := 0; i < 2; i++ {
			pts = append(pts, r3.Vec{X: 0.5 * float64(i), Y: float64(j)})
		}
	}
	layout, err := (&PartitionBuilder{Centroids: pts, NumPartitions: 4, Strategy: RecursiveBisection}).BuildPartitions()
	require.NoError(t, err)
	for i, p := range pts {
		assert.Equal(t, int(p.Y), layout.EToP[i], "point %v", p)
	}
}

func TestBuildPartitionsUneven(t *testing.T) {
	for _, s := range []PartitionStrategy{BlockPartition, RoundRobin, SpaceFillingCurve, RecursiveBisection} {
		layout, err := (&PartitionBuilder{Centroids: lineCentroids(7), NumPartitions: 3, Strategy: s}).BuildPartitions()
		require.NoError(t, err)
		stats := layout.PartitionStatistics()
		assert.Equal(t, 2, stats.MinElements, s.String())
		assert.Equal(t, 3, stats.MaxElements, s.String())
	}

	// More partitions than entities leaves some empty
	layout, err := (&PartitionBuilder{Centroids: lineCentroids(2), NumPartitions: 3, Strategy: RecursiveBisection}).BuildPartitions()
	require.NoError(t, err)
	assert.Equal(t, 0, layout.PartitionStatistics().MinElements)

	_, err = (&PartitionBuilder{Centroids: lineCentroids(2)}).BuildPartitions()
	assert.Error(t, err)
}

func TestValidateLayout(t *testing.T) {
	layout, err := (&PartitionBuilder{Centroids: lineCentroids(4), NumPartitions: 2}).BuildPartitions()
	require.NoError(t, err)
	require.NoError(t, layout.ValidateLayout())

	layout.EToP[0] = 1
	assert.Error(t, layout.ValidateLayout())
	layout.EToP[0] = 0

	layout.KpartMax = 3
	assert.Error(t, layout.ValidateLayout())
	layout.KpartMax = 2

	layout.Partitions[1].Elements = append(layout.Partitions[1].Elements, 0)
	layout.Partitions[1].NumElements++
	assert.Error(t, layout.ValidateLayout())
}

func TestParsePartitionStrategy(t *testing.T) {
	for _, s := range []PartitionStrategy{BlockPartition, RoundRobin, SpaceFillingCurve, RecursiveBisection} {
		got, err := ParsePartitionStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParsePartitionStrategy("metis")
	assert.Error(t, err)
}

func TestInterleave3(t *testing.T) {
	assert.Equal(t, uint64(0b1001001), interleave3(0b111))
	assert.Equal(t, uint64(1)<<60, interleave3(1<<20))
}
