package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllToAllDeliversAddressedPayloads(t *testing.T) {
	w := NewWorld(4)
	var mu sync.Mutex
	got := make(map[int]map[int]string)
	err := w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
		send := make([][]byte, c.Size())
		for j := range send {
			send[j] = []byte(fmt.Sprintf("%d->%d", c.Rank(), j))
		}
		// Several consecutive exchanges exercise the out-of-round stash.
		var msgs []Message
		for round := 0; round < 5; round++ {
			var err error
			if msgs, err = c.AllToAll(ctx, send); err != nil {
				return err
			}
		}
		mu.Lock()
		defer mu.Unlock()
		got[c.Rank()] = make(map[int]string)
		for _, m := range msgs {
			got[c.Rank()][m.From] = string(m.Payload)
		}
		return nil
	})
	require.NoError(t, err)
	for r := 0; r < 4; r++ {
		require.Len(t, got[r], 4)
		for from := 0; from < 4; from++ {
			assert.Equal(t, fmt.Sprintf("%d->%d", from, r), got[r][from])
		}
	}
}

func TestArrivalOrderHook(t *testing.T) {
	w := NewWorld(3, WithArrivalOrder(func(_ int, msgs []Message) {
		// Deterministic descending order by sender.
		for i := 0; i < len(msgs); i++ {
			for j := i + 1; j < len(msgs); j++ {
				if msgs[j].From > msgs[i].From {
					msgs[i], msgs[j] = msgs[j], msgs[i]
				}
			}
		}
	}))
	err := w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
		msgs, err := c.AllToAll(ctx, make([][]byte, c.Size()))
		if err != nil {
			return err
		}
		for i, m := range msgs {
			if m.From != c.Size()-1-i {
				return fmt.Errorf("message %d from %d", i, m.From)
			}
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestReductions(t *testing.T) {
	w := NewWorld(3)
	err := w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
		sum, err := AllReduceSum(ctx, c, int64(c.Rank()+1))
		if err != nil {
			return err
		}
		if sum != 6 {
			return fmt.Errorf("sum %d", sum)
		}
		m, err := AllReduceMax(ctx, c, float64(c.Rank())*1.5)
		if err != nil {
			return err
		}
		if m != 3 {
			return fmt.Errorf("max %g", m)
		}
		b, err := Broadcast(ctx, c, 1, []byte{byte(c.Rank())})
		if err != nil {
			return err
		}
		if len(b) != 1 || b[0] != 1 {
			return fmt.Errorf("broadcast %v", b)
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestRunPropagatesFirstError(t *testing.T) {
	boom := errors.New("boom")
	w := NewWorld(3)
	err := w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
		if c.Rank() == 2 {
			return boom
		}
		// The other ranks block in the exchange until the failure cancels them.
		_, err := c.AllGather(ctx, nil)
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom) || errors.Is(err, context.Canceled))
}

func TestSerial(t *testing.T) {
	c := Serial()
	assert.Equal(t, 0, c.Rank())
	assert.Equal(t, 1, c.Size())
	all, err := c.AllGather(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("x")}, all)
}
