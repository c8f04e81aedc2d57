package search

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring"
	"github.com/notargets/DGMapper/comm"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrInconsistentLocalSystemIndex is returned when a rank answers for a
// local system it was not asked about in the current exchange
var ErrInconsistentLocalSystemIndex = errors.New("inconsistent local system index")

// Coordinator runs the distributed search. Every rank of Comm must call Run
// with the same Options.
type Coordinator struct {
	Comm    comm.Communicator
	Options Options
	Logger  logrus.FieldLogger
}

// Result holds the outcome for the queries of one rank. Bitmaps hold query
// positions; Infos[i] belongs to queries[i].
type Result struct {
	Infos        []*InterfaceInfo
	Succeeded    *roaring.Bitmap
	Approximated *roaring.Bitmap
	Failed       *roaring.Bitmap

	InvalidGeometry    int64 // Degenerate candidates skipped, all ranks
	GlobalApproximated int64
	GlobalFailed       int64

	Rounds int     // Exact rounds executed
	Radius float64 // Final search radius
}

func (sc *Coordinator) logger() logrus.FieldLogger {
	if sc.Logger == nil {
		return logrus.StandardLogger()
	}
	return sc.Logger
}

// Run searches the source objects of all ranks for the local queries.
// Collective.
func (sc *Coordinator) Run(ctx context.Context, queries []Query, objects []InterfaceObject) (*Result, error) {
	var (
		c    = sc.Comm
		opts = sc.Options
		log  = sc.logger().WithField("rank", c.Rank())
	)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	positions := make(map[int]int, len(queries))
	for i, q := range queries {
		if _, dup := positions[q.LocalSystemIndex]; dup {
			return nil, fmt.Errorf("duplicate local system index %d", q.LocalSystemIndex)
		}
		positions[q.LocalSystemIndex] = i
	}

	index := NewIndex(objects)
	boxes, err := gatherBoxes(ctx, c, index.Bounds())
	if err != nil {
		return nil, err
	}
	radius, err := sc.initialRadius(ctx, index, boxes)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Infos:        make([]*InterfaceInfo, len(queries)),
		Succeeded:    roaring.New(),
		Approximated: roaring.New(),
		Failed:       roaring.New(),
	}
	proto := NewEmptyInfo(opts.Kind)
	for i, q := range queries {
		res.Infos[i] = proto.Create(q.Coords, q.LocalSystemIndex, -1)
	}
	pending := roaring.New()
	pending.AddRange(0, uint64(len(queries)))

	s := &phase{
		Coordinator: sc,
		index:       index,
		boxes:       boxes,
		positions:   positions,
		infos:       res.Infos,
		pending:     pending,
	}
	var invalid int64
	for round := 0; round < opts.MaxSearchIterations; round++ {
		n, err := comm.AllReduceSum(ctx, c, int64(pending.GetCardinality()))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		if round > 0 {
			radius *= opts.RadiusGrowth
		}
		log.Debugf("search round %d: radius %g, %d queries pending globally", round, radius, n)
		bad, err := s.run(ctx, radius, false)
		if err != nil {
			return nil, fmt.Errorf("search round %d: %w", round, err)
		}
		invalid += int64(bad)
		res.Rounds++
	}

	if opts.Kind != NearestNeighbor {
		n, err := comm.AllReduceSum(ctx, c, int64(pending.GetCardinality()))
		if err != nil {
			return nil, err
		}
		if n > 0 {
			log.Debugf("approximation search: radius %g, %d queries pending globally", radius, n)
			if _, err = s.run(ctx, radius, true); err != nil {
				return nil, fmt.Errorf("approximation search: %w", err)
			}
		}
	}
	res.Radius = radius

	for i, ii := range res.Infos {
		switch {
		case pending.Contains(uint32(i)):
			ii.State = Failed
			res.Failed.Add(uint32(i))
			log.WithFields(logrus.Fields{
				"local_system": ii.LocalSystemIndex,
				"coords":       ii.Coords,
			}).Warnf("no source entity within search radius %g", radius)
		case ii.State == Approximated:
			res.Approximated.Add(uint32(i))
		default:
			res.Succeeded.Add(uint32(i))
		}
	}

	if res.InvalidGeometry, err = comm.AllReduceSum(ctx, c, invalid); err != nil {
		return nil, err
	}
	if res.GlobalApproximated, err = comm.AllReduceSum(ctx, c, int64(res.Approximated.GetCardinality())); err != nil {
		return nil, err
	}
	if res.GlobalFailed, err = comm.AllReduceSum(ctx, c, int64(res.Failed.GetCardinality())); err != nil {
		return nil, err
	}
	return res, nil
}

// initialRadius returns the configured radius, or twice the mean source
// spacing widened to cover the largest source object
func (sc *Coordinator) initialRadius(ctx context.Context, index *Index, boxes []BoundingBox) (float64, error) {
	if sc.Options.SearchRadius > 0 {
		return sc.Options.SearchRadius, nil
	}
	global := EmptyBox()
	for _, b := range boxes {
		global = global.Merge(b)
	}
	n, err := comm.AllReduceSum(ctx, sc.Comm, int64(index.Len()))
	if err != nil {
		return 0, err
	}
	halfDiag, err := comm.AllReduceMax(ctx, sc.Comm, index.MaxHalfDiagonal())
	if err != nil {
		return 0, err
	}
	radius := 0.
	if d := global.Dimension(); d > 0 && n > 0 {
		radius = 2 * global.Diagonal() / math.Pow(float64(n), 1/float64(d))
	}
	radius = math.Max(radius, 2*halfDiag)
	if radius == 0 {
		radius = 1
	}
	return radius, nil
}

func gatherBoxes(ctx context.Context, c comm.Communicator, local BoundingBox) ([]BoundingBox, error) {
	data, _ := local.MarshalBinary()
	all, err := c.AllGather(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("gathering source bounds: %w", err)
	}
	boxes := make([]BoundingBox, len(all))
	for r, b := range all {
		if err := boxes[r].UnmarshalBinary(b); err != nil {
			return nil, fmt.Errorf("source bounds of rank %d: %w", r, err)
		}
	}
	return boxes, nil
}

// phase is the state shared by the exchange rounds of one Run
type phase struct {
	*Coordinator
	index     *Index
	boxes     []BoundingBox
	positions map[int]int
	infos     []*InterfaceInfo
	pending   *roaring.Bitmap
}

// run sends the pending queries to the ranks whose sources may hold a
// match, searches the queries received, and resolves the answers.
// It returns the local count of degenerate candidates.
func (s *phase) run(ctx context.Context, radius float64, approx bool) (int, error) {
	var (
		c        = s.Comm
		size     = c.Size()
		outgoing = make([][]Query, size)
		sent     = make([]*roaring.Bitmap, size)
	)
	for r := range sent {
		sent[r] = roaring.New()
	}
	for _, p := range s.pending.ToArray() {
		ii := s.infos[p]
		for r, b := range s.boxes {
			if !b.IsEmpty() && b.Inflate(radius).Contains(ii.Coords) {
				outgoing[r] = append(outgoing[r], Query{LocalSystemIndex: ii.LocalSystemIndex, Coords: ii.Coords})
				sent[r].Add(p)
			}
		}
	}
	send := make([][]byte, size)
	for r := range send {
		send[r] = EncodeQueries(outgoing[r])
	}
	msgs, err := c.AllToAll(ctx, send)
	if err != nil {
		return 0, fmt.Errorf("sending queries: %w", err)
	}

	var (
		replies = make([][]byte, size)
		invalid int
	)
	for _, m := range msgs {
		qs, err := DecodeQueries(m.Payload)
		if err != nil {
			return 0, fmt.Errorf("queries from rank %d: %w", m.From, err)
		}
		found, bad, err := s.searchLocal(ctx, qs, radius, approx)
		if err != nil {
			return 0, err
		}
		invalid += bad
		replies[m.From] = EncodeInfos(found)
	}
	msgs, err = c.AllToAll(ctx, replies)
	if err != nil {
		return 0, fmt.Errorf("returning matches: %w", err)
	}

	collected := make(map[uint32][]*InterfaceInfo)
	for _, m := range msgs {
		recs, err := DecodeInfos(s.Options.Kind, m.Payload, m.From)
		if err != nil {
			return 0, err
		}
		for _, rec := range recs {
			p, ok := s.positions[rec.LocalSystemIndex]
			if !ok || !sent[m.From].Contains(uint32(p)) {
				return 0, fmt.Errorf("%w: rank %d answered for local system %d",
					ErrInconsistentLocalSystemIndex, m.From, rec.LocalSystemIndex)
			}
			rec.Coords = s.infos[p].Coords
			collected[uint32(p)] = append(collected[uint32(p)], rec)
		}
	}
	for _, p := range s.pending.ToArray() {
		recs := collected[p]
		if len(recs) == 0 {
			continue
		}
		if winner, ok := Resolve(recs, s.Options); ok {
			s.infos[p] = winner
			s.pending.Remove(p)
		}
	}
	return invalid, nil
}

// searchLocal matches queries against the local index. Queries are
// independent and run concurrently, at most Options.Workers at a time.
func (s *phase) searchLocal(ctx context.Context, qs []Query, radius float64, approx bool) ([]*InterfaceInfo, int, error) {
	var (
		rank  = s.Comm.Rank()
		proto = NewEmptyInfo(s.Options.Kind)
		out   = make([]*InterfaceInfo, len(qs))
		bad   = make([]int, len(qs))
	)
	g, gctx := errgroup.WithContext(ctx)
	if s.Options.Workers > 0 {
		g.SetLimit(s.Options.Workers)
	}
	for i, q := range qs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ii := proto.Create(q.Coords, q.LocalSystemIndex, rank)
			for _, cand := range s.index.Query(q.Coords, radius) {
				obj := s.index.Object(cand.Object)
				if approx {
					ii.ProcessSearchResultForApproximation(obj, cand.Distance, s.Options)
				} else {
					ii.ProcessSearchResult(obj, cand.Distance, s.Options)
				}
			}
			bad[i] = ii.InvalidGeometry
			if ii.LocalSearchSucceeded() {
				out[i] = ii
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	found := out[:0]
	invalid := 0
	for i, ii := range out {
		invalid += bad[i]
		if ii != nil {
			found = append(found, ii)
		}
	}
	return found, invalid, nil
}
