package csync

import (
	"maps"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	t.Parallel()

	m := NewMap[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.Equal(t, 2, m.Len())

	m.Del("a")
	_, ok = m.Get("a")
	require.False(t, ok)
	require.Equal(t, map[string]int{"b": 2}, maps.Collect(m.Seq2()))
}

func TestMapSeq2IsSnapshot(t *testing.T) {
	t.Parallel()

	m := NewMap[string, int]()
	m.Set("a", 1)
	for k := range m.Seq2() {
		m.Del(k)
		m.Set("c", 3)
	}
	require.Equal(t, map[string]int{"c": 3}, maps.Collect(m.Seq2()))
}

func TestMapGetOrSetCallsOnce(t *testing.T) {
	t.Parallel()

	m := NewMap[string, *int]()
	var calls atomic.Int32
	var wg sync.WaitGroup
	results := make([]*int, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.GetOrSet("k", func() *int {
				calls.Add(1)
				return new(int)
			})
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.Same(t, results[0], r)
	}
}
