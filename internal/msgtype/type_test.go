package msgtype

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefine_MintsOneTypePerName(t *testing.T) {
	set := Define("EVENT", "MESSAGE1", "MESSAGE2")

	require.Len(t, set, 3)
	assert.Equal(t, "EVENT", set.Get("EVENT").Name())
	assert.Equal(t, "MESSAGE1", set.Get("MESSAGE1").String())
	assert.NotEqual(t, set.Get("MESSAGE1"), set.Get("MESSAGE2"))
	assert.Equal(t, []string{"EVENT", "MESSAGE1", "MESSAGE2"}, set.Names())
}

func TestDefine_SameNameDistinctAcrossCalls(t *testing.T) {
	a := Define("INIT")
	b := Define("INIT")

	assert.Equal(t, a.Get("INIT").Name(), b.Get("INIT").Name())
	assert.NotEqual(t, a.Get("INIT"), b.Get("INIT"), "types from separate Define calls must not collide")
}

func TestDefine_PanicsOnBadNames(t *testing.T) {
	assert.Panics(t, func() { Define("A", " ") })
	assert.Panics(t, func() { Define("A", "A") })
}

func TestSet_GetPanicsOnUnknown(t *testing.T) {
	set := Define("A")
	assert.Panics(t, func() { set.Get("B") })

	_, ok := set.Lookup("B")
	assert.False(t, ok)
}

func TestSet_Merge(t *testing.T) {
	a := Define("A", "B")
	b := Define("B", "C")

	merged := a.Merge(b)
	assert.Len(t, merged, 3)
	assert.Equal(t, b.Get("B"), merged.Get("B"))
	assert.Len(t, a, 2, "merge must not mutate the receiver")
}

func TestType_Zero(t *testing.T) {
	var zero Type
	assert.True(t, zero.IsZero())
	assert.Equal(t, "<none>", zero.String())
	assert.False(t, Define("A").Get("A").IsZero())
}

func TestType_MarshalsAsName(t *testing.T) {
	set := DefineWith(NewSequenceGenerator("x"), "PING")
	data, err := json.Marshal(map[string]Type{"type": set.Get("PING")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"PING"}`, string(data))
}

func TestSequenceGenerator_Deterministic(t *testing.T) {
	g1 := NewSequenceGenerator("")
	g2 := NewSequenceGenerator("")

	s1 := DefineWith(g1, "A", "B")
	s2 := DefineWith(g2, "A", "B")

	assert.Equal(t, s1.Get("A").Tag(), s2.Get("A").Tag())
	assert.Equal(t, "t1:A", s1.Get("A").Tag())
}

func TestSequenceGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequenceGenerator("p")
	const n = 50

	var wg sync.WaitGroup
	tags := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tags[i] = gen.Generate("X")
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, tag := range tags {
		require.False(t, seen[tag], "duplicate tag %s", tag)
		seen[tag] = true
	}
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	gen := UUIDv7Generator{}
	a := gen.Generate("A")
	b := gen.Generate("A")

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
