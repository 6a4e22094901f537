package category

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCacheExpiry(t *testing.T) {
	c := NewReadCache(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("roots", 1)
	v, ok := c.Get("roots")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("roots")
	assert.False(t, ok)
}

func TestLoadStartedBeforeFlushIsNotStored(t *testing.T) {
	c := NewReadCache(time.Minute)

	v, err := cached(c, "roots", func() ([]string, error) {
		// A write lands while the read is in flight.
		c.Flush()
		return []string{"stale"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, v)
	assert.Zero(t, c.Len())

	v, err = cached(c, "roots", func() ([]string, error) {
		return []string{"fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, v)

	got, ok := c.Get("roots")
	require.True(t, ok)
	assert.Equal(t, []string{"fresh"}, got)
}

func TestSetAtRejectsOldGeneration(t *testing.T) {
	c := NewReadCache(time.Minute)
	gen := c.Generation()
	c.Flush()
	assert.False(t, c.SetAt(gen, "k", "v"))
	assert.True(t, c.SetAt(c.Generation(), "k", "v"))
	assert.Equal(t, 1, c.Len())
}

func TestNilCacheAlwaysLoads(t *testing.T) {
	calls := 0
	load := func() (int, error) { calls++; return calls, nil }
	_, err := cached(nil, "k", load)
	require.NoError(t, err)
	_, err = cached(nil, "k", load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
