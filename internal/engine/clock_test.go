package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_Sequence(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current(), "Current must not advance the clock")
	assert.Equal(t, int64(2), c.Current())
}

func TestClock_NewClockAt(t *testing.T) {
	c := NewClockAt(100)
	assert.Equal(t, int64(100), c.Current())
	assert.Equal(t, int64(101), c.Next())
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewClock()
	const goroutines, calls = 50, 200

	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, goroutines*calls)
		wg   sync.WaitGroup
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, calls)
			for j := 0; j < calls; j++ {
				local = append(local, c.Next())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, seq := range local {
				seen[seq] = struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*calls)
	assert.Equal(t, int64(goroutines*calls), c.Current())
}

func TestClock_StampsTransactionsBeforeTheirSteps(t *testing.T) {
	var seqs []int64
	var txnOf = map[int64]int64{}
	obs := ObserverFuncs{
		Dispatch: func(txn Transaction) { seqs = append(seqs, txn.Seq) },
		Step: func(s Step) {
			seqs = append(seqs, s.Seq)
			txnOf[s.Seq] = s.Txn
		},
	}

	e, err := New(Config[int]{
		Reducer:   countOn(tPing),
		Observers: []Observer{obs},
		Logger:    quietLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, e.Dispatch(Message{Type: tPing}))

	// INIT: txn 1, step 2. PING: txn 3, step 4, CHANGE step 5.
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seqs)
	assert.Equal(t, map[int64]int64{2: 1, 4: 3, 5: 3}, txnOf)
	assert.Equal(t, int64(5), e.Clock().Current())
}

func TestClock_SharedAcrossEngines(t *testing.T) {
	clock := NewClock()
	a, err := New(Config[int]{Clock: clock, Logger: quietLogger()})
	require.NoError(t, err)
	b, err := New(Config[int]{Clock: clock, Logger: quietLogger()})
	require.NoError(t, err)

	require.NoError(t, a.Dispatch(Message{Type: tEvent}))
	require.NoError(t, b.Dispatch(Message{Type: tEvent}))

	// Two INITs and two dispatches, each a transaction plus one step.
	assert.Equal(t, int64(8), clock.Current())
}
