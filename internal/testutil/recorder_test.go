package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypes_StableTags(t *testing.T) {
	a := Types("PING", "PONG")
	b := Types("PING", "PONG")

	// Same names and same generator sequence give the same tags.
	assert.Equal(t, a.Get("PING").Tag(), b.Get("PING").Tag())
	assert.NotEqual(t, a.Get("PING").Tag(), a.Get("PONG").Tag())
}

func TestRecorder_RecordsInOrder(t *testing.T) {
	types := Types("A", "B")
	var r Recorder

	r.Record("consume", types.Get("A"))
	r.Record("reduce", types.Get("A"))
	r.Record("consume", types.Get("B"))

	assert.Equal(t, []string{"consume:A", "reduce:A", "consume:B"}, r.Strings())
	assert.Equal(t, []string{"A", "B"}, r.Types("consume"))
	assert.Equal(t, 1, r.Count("reduce", "A"))
	assert.Equal(t, 0, r.Count("reduce", "B"))

	r.Reset()
	assert.Empty(t, r.Calls())
}

func TestRecorder_ThreadSafe(t *testing.T) {
	types := Types("X")
	var r Recorder
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record("subscriber", types.Get("X"))
		}()
	}
	wg.Wait()

	require.Len(t, r.Calls(), 50)
	assert.Equal(t, 50, r.Count("subscriber", "X"))
}
