package textcache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_PutGetRoundTrip(t *testing.T) {
	c := New(10, 1<<20)
	c.Put("a", "hello")
	text, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "hello", text)
}

func TestCache_MissingKeyReturnsFalse(t *testing.T) {
	c := New(10, 1<<20)
	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestCache_EvictsByEntryCount(t *testing.T) {
	c := New(2, 1<<20)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("c", "3")

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_PromotesOnHit(t *testing.T) {
	c := New(2, 1<<20)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Get("a") // promote a
	c.Put("c", "3")

	_, stillThere := c.Get("a")
	assert.True(t, stillThere)
	_, evicted := c.Get("b")
	assert.False(t, evicted)
}

func TestCache_EvictsByByteBudget(t *testing.T) {
	c := New(100, 10)
	c.Put("a", strings.Repeat("x", 6))
	c.Put("b", strings.Repeat("y", 6))

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestCache_RemoveAndClear(t *testing.T) {
	c := New(10, 1<<20)
	c.Put("a", "hello")
	c.Remove("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put("b", "world")
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
