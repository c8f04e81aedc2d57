package comm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// World runs a fixed number of ranks as goroutines of one process. Each
// rank gets its own Communicator; messages travel through buffered inboxes.
type World struct {
	size    int
	arrival func(rank int, msgs []Message)
}

// Option configures a World
type Option func(*World)

// WithArrivalOrder installs a hook that may reorder the messages a rank
// receives from each exchange before they are handed to the caller.
func WithArrivalOrder(order func(rank int, msgs []Message)) Option {
	return func(w *World) { w.arrival = order }
}

// WithReversedArrival reverses the arrival order of every exchange
func WithReversedArrival() Option {
	return WithArrivalOrder(func(_ int, msgs []Message) {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	})
}

// NewWorld creates a world of size ranks
func NewWorld(size int, opts ...Option) *World {
	if size < 1 {
		panic(fmt.Sprintf("world size must be positive, got %d", size))
	}
	w := &World{size: size}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Size returns the number of ranks
func (w *World) Size() int { return w.size }

// Run executes fn once per rank, concurrently, and waits for all of them.
// The first error cancels the context seen by the other ranks.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, c Communicator) error) error {
	s := w.newSession()
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < w.size; r++ {
		ep := s.endpoint(r)
		g.Go(func() error {
			if err := fn(gctx, ep); err != nil {
				return fmt.Errorf("rank %d: %w", ep.rank, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Serial returns a single rank communicator
func Serial() Communicator {
	return NewWorld(1).newSession().endpoint(0)
}

type envelope struct {
	seq     uint64
	from    int
	payload []byte
}

// session is the message state of one Run
type session struct {
	w       *World
	inboxes []chan envelope
}

func (w *World) newSession() *session {
	s := &session{w: w, inboxes: make([]chan envelope, w.size)}
	for i := range s.inboxes {
		// A rank can be at most one exchange ahead of the slowest peer,
		// so two rounds of messages always fit.
		s.inboxes[i] = make(chan envelope, 2*w.size)
	}
	return s
}

func (s *session) endpoint(rank int) *endpoint {
	return &endpoint{rank: rank, s: s, stash: make(map[uint64][]envelope)}
}

type endpoint struct {
	rank  int
	s     *session
	seq   uint64
	stash map[uint64][]envelope
}

func (e *endpoint) Rank() int { return e.rank }

func (e *endpoint) Size() int { return e.s.w.size }

func (e *endpoint) AllToAll(ctx context.Context, send [][]byte) ([]Message, error) {
	size := e.Size()
	if len(send) != size {
		return nil, fmt.Errorf("all-to-all needs %d buffers, got %d", size, len(send))
	}
	e.seq++
	seq := e.seq

	for j := 0; j < size; j++ {
		env := envelope{seq: seq, from: e.rank, payload: append([]byte(nil), send[j]...)}
		select {
		case e.s.inboxes[j] <- env:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	msgs := make([]Message, 0, size)
	for _, env := range e.stash[seq] {
		msgs = append(msgs, Message{From: env.from, Payload: env.payload})
	}
	delete(e.stash, seq)
	for len(msgs) < size {
		select {
		case env := <-e.s.inboxes[e.rank]:
			if env.seq != seq {
				e.stash[env.seq] = append(e.stash[env.seq], env)
				continue
			}
			msgs = append(msgs, Message{From: env.from, Payload: env.payload})
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.s.w.arrival != nil {
		e.s.w.arrival(e.rank, msgs)
	}
	return msgs, nil
}

func (e *endpoint) AllGather(ctx context.Context, data []byte) ([][]byte, error) {
	send := make([][]byte, e.Size())
	for j := range send {
		send[j] = data
	}
	msgs, err := e.AllToAll(ctx, send)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, e.Size())
	for _, m := range msgs {
		out[m.From] = m.Payload
	}
	return out, nil
}
