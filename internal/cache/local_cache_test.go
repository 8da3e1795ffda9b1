package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newCache(t *testing.T, size int) (*LocalCache[string], *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLocalCache[string](size, time.Minute)
	c.SetClock(clk.Now)
	return c, clk
}

func TestLocalCache(t *testing.T) {
	t.Run("读写与删除", func(t *testing.T) {
		c, _ := newCache(t, 10)
		c.Set("a", "1", 0)

		v, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, "1", v)

		c.Delete("a")
		_, ok = c.Get("a")
		assert.False(t, ok)
	})

	t.Run("到期后失效", func(t *testing.T) {
		c, clk := newCache(t, 10)
		c.Set("short", "x", 10*time.Second)
		c.Set("default", "y", 0)

		clk.now = clk.now.Add(10 * time.Second)
		_, ok := c.Get("short")
		assert.False(t, ok)
		_, ok = c.Get("default")
		assert.True(t, ok)

		clk.now = clk.now.Add(time.Minute)
		_, ok = c.Get("default")
		assert.False(t, ok)
	})

	t.Run("非正TTL不缓存", func(t *testing.T) {
		c, _ := newCache(t, 10)
		c.Set("neg", "x", -time.Second)
		assert.Zero(t, c.Len())
	})

	t.Run("容量为0时关闭缓存", func(t *testing.T) {
		c, _ := newCache(t, 0)
		c.Set("a", "1", 0)
		_, ok := c.Get("a")
		assert.False(t, ok)
	})

	t.Run("超过容量淘汰最早过期的条目", func(t *testing.T) {
		c, _ := newCache(t, 2)
		c.Set("soon", "1", 5*time.Second)
		c.Set("late", "2", time.Hour)
		c.Set("new", "3", time.Minute)

		assert.Equal(t, 2, c.Len())
		_, ok := c.Get("soon")
		assert.False(t, ok)
		_, ok = c.Get("late")
		assert.True(t, ok)
		_, ok = c.Get("new")
		assert.True(t, ok)
	})

	t.Run("覆盖已有键不触发淘汰", func(t *testing.T) {
		c, _ := newCache(t, 1)
		c.Set("a", "1", 0)
		c.Set("a", "2", 0)
		v, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, "2", v)
	})

	t.Run("定期清理", func(t *testing.T) {
		c, clk := newCache(t, 10)
		c.Set("a", "1", time.Second)
		c.Set("b", "2", time.Hour)
		clk.now = clk.now.Add(2 * time.Second)

		assert.Equal(t, 1, c.removeExpired())
		assert.Equal(t, 1, c.Len())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c.Run(ctx, time.Millisecond)
	})
}
