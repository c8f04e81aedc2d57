package search

import (
	"context"
	"errors"
	"testing"

	"github.com/notargets/DGMapper/comm"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// runSearch runs one coordinator per rank with the given per rank queries
// and source arenas and returns the per rank results
func runSearch(t *testing.T, w *comm.World, opts Options, logger logrus.FieldLogger,
	queries [][]Query, sources [][]InterfaceObject) ([]*Result, error) {
	t.Helper()
	results := make([]*Result, w.Size())
	err := w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		sc := &Coordinator{Comm: c, Options: opts, Logger: logger}
		res, err := sc.Run(ctx, queries[c.Rank()], sources[c.Rank()])
		results[c.Rank()] = res
		return err
	})
	return results, err
}

func TestCoordinatorTieBreakIsArrivalIndependent(t *testing.T) {
	// Coincident candidates on ranks 1 and 2; the query lives on rank 0
	queries := [][]Query{{{LocalSystemIndex: 0, Coords: r3.Vec{X: 1, Y: 1}}}, nil, nil}
	sources := [][]InterfaceObject{
		pointArena(r3.Vec{X: 5}),
		pointArena(r3.Vec{X: 3}, r3.Vec{X: 1}),
		pointArena(r3.Vec{X: 1}),
	}
	opts := DefaultOptions(NearestNeighbor)
	opts.SearchRadius = 2

	var winners []*InterfaceInfo
	for _, w := range []*comm.World{
		comm.NewWorld(3),
		comm.NewWorld(3, comm.WithReversedArrival()),
	} {
		res, err := runSearch(t, w, opts, nil, queries, sources)
		require.NoError(t, err)
		winners = append(winners, res[0].Infos[0])
	}
	assert.Equal(t, winners[0], winners[1])
	assert.Equal(t, 1, winners[0].SourceRank)
	assert.Equal(t, 1, winners[0].CandidateIndex)
	assert.Equal(t, LocalSearchSucceeded, winners[0].State)
}

func TestCoordinatorEscalatesRadius(t *testing.T) {
	queries := [][]Query{{{LocalSystemIndex: 0, Coords: r3.Vec{}}}, {{LocalSystemIndex: 0, Coords: r3.Vec{X: 20}}}}
	sources := [][]InterfaceObject{nil, pointArena(r3.Vec{X: 3}, r3.Vec{X: 19})}
	opts := DefaultOptions(NearestNeighbor)
	opts.SearchRadius = 1

	res, err := runSearch(t, comm.NewWorld(2), opts, nil, queries, sources)
	require.NoError(t, err)
	// Radii 1, 2, 4: found in the third round
	assert.Equal(t, 3, res[0].Rounds)
	assert.Equal(t, 4.0, res[0].Radius)
	assert.True(t, res[0].Succeeded.Contains(0))
	assert.Equal(t, 0, res[0].Infos[0].CandidateIndex)
	assert.Equal(t, 1, res[1].Infos[0].CandidateIndex)
	assert.Zero(t, res[0].GlobalFailed)
}

func TestCoordinatorReportsFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	queries := [][]Query{{
		{LocalSystemIndex: 0, Coords: r3.Vec{X: 0.5}},
		{LocalSystemIndex: 1, Coords: r3.Vec{X: 500}},
	}}
	sources := [][]InterfaceObject{lineArena(t, 0, 1, 2)}
	opts := DefaultOptions(NearestElement)
	opts.SearchRadius = 1

	res, err := runSearch(t, comm.NewWorld(1), opts, logger, queries, sources)
	require.NoError(t, err)
	r := res[0]
	assert.True(t, r.Succeeded.Contains(0))
	assert.True(t, r.Failed.Contains(1))
	assert.Equal(t, Failed, r.Infos[1].State)
	assert.EqualValues(t, 1, r.GlobalFailed)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, 1, hook.LastEntry().Data["local_system"])
}

func TestCoordinatorApproximation(t *testing.T) {
	queries := [][]Query{{{LocalSystemIndex: 0, Coords: r3.Vec{X: 2.1}}}, nil}
	sources := [][]InterfaceObject{lineArena(t, 0, 1), lineArena(t, 1, 2)}
	opts := DefaultOptions(NearestElement)
	opts.SearchRadius = 0.5
	opts.MaxSearchIterations = 2

	res, err := runSearch(t, comm.NewWorld(2), opts, nil, queries, sources)
	require.NoError(t, err)
	ii := res[0].Infos[0]
	assert.Equal(t, Approximated, ii.State)
	assert.True(t, ii.IsApproximation)
	assert.Equal(t, 1, ii.SourceRank)
	assert.True(t, res[0].Approximated.Contains(0))
	assert.EqualValues(t, 1, res[1].GlobalApproximated)
}

func TestCoordinatorBarycentricAcrossRanks(t *testing.T) {
	q := r3.Vec{X: 0.2, Y: 0.3}
	queries := [][]Query{nil, {{LocalSystemIndex: 0, Coords: q}}, nil}
	sources := [][]InterfaceObject{
		pointArena(r3.Vec{}),
		pointArena(r3.Vec{X: 1}),
		pointArena(r3.Vec{Y: 1}, r3.Vec{X: 3, Y: 3}),
	}
	opts := DefaultOptions(Barycentric)

	res, err := runSearch(t, comm.NewWorld(3, comm.WithReversedArrival()), opts, nil, queries, sources)
	require.NoError(t, err)
	ii := res[1].Infos[0]
	require.Equal(t, LocalSearchSucceeded, ii.State)
	require.Len(t, ii.Pool, 3)
	ranks := []int{ii.Pool[0].Rank, ii.Pool[1].Rank, ii.Pool[2].Rank}
	assert.ElementsMatch(t, []int{0, 1, 2}, ranks)
}

// tamperComm appends a record for an unknown local system to the reply
// exchange of one rank
type tamperComm struct {
	comm.Communicator
	calls int
}

func (tc *tamperComm) AllToAll(ctx context.Context, send [][]byte) ([]comm.Message, error) {
	tc.calls++
	if tc.calls == 2 {
		bogus := NewInterfaceInfo(NearestNeighbor, r3.Vec{}, 999, tc.Rank())
		bogus.State = LocalSearchSucceeded
		bogus.Dofs, bogus.Weights = []int{0}, []float64{1}
		send[0] = AppendInfo(send[0], bogus)
	}
	return tc.Communicator.AllToAll(ctx, send)
}

func TestCoordinatorRejectsUnknownLocalSystem(t *testing.T) {
	queries := [][]Query{{{LocalSystemIndex: 0, Coords: r3.Vec{}}}, nil}
	sources := [][]InterfaceObject{pointArena(r3.Vec{}), pointArena(r3.Vec{X: 0.5})}
	opts := DefaultOptions(NearestNeighbor)
	opts.SearchRadius = 1

	err := comm.NewWorld(2).Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		if c.Rank() == 1 {
			c = &tamperComm{Communicator: c}
		}
		sc := &Coordinator{Comm: c, Options: opts}
		_, err := sc.Run(ctx, queries[c.Rank()], sources[c.Rank()])
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInconsistentLocalSystemIndex))
}

func TestCoordinatorValidatesInput(t *testing.T) {
	sc := &Coordinator{Comm: comm.Serial(), Options: DefaultOptions(NearestNeighbor)}
	_, err := sc.Run(context.Background(), []Query{{LocalSystemIndex: 1}, {LocalSystemIndex: 1}}, nil)
	assert.Error(t, err)

	sc.Options.MaxSearchIterations = 0
	_, err = sc.Run(context.Background(), nil, nil)
	assert.Error(t, err)
}
