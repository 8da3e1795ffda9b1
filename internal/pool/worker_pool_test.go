package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWorkerPool(t *testing.T) {
	t.Run("执行提交的任务", func(t *testing.T) {
		p := NewWorkerPool(2, 10, zap.NewNop())
		p.Start(context.Background())

		var count atomic.Int32
		for i := 0; i < 5; i++ {
			assert.True(t, p.TrySubmit(func() { count.Add(1) }))
		}
		p.Stop()
		assert.Equal(t, int32(5), count.Load())
	})

	t.Run("队列已满时拒绝", func(t *testing.T) {
		p := NewWorkerPool(1, 1, zap.NewNop())
		// 未启动，队列只能容纳一个任务
		assert.True(t, p.TrySubmit(func() {}))
		assert.False(t, p.TrySubmit(func() {}))
	})

	t.Run("任务panic不影响后续任务", func(t *testing.T) {
		p := NewWorkerPool(1, 10, zap.NewNop())
		p.Start(context.Background())

		done := make(chan struct{})
		p.TrySubmit(func() { panic("boom") })
		p.TrySubmit(func() { close(done) })

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task after panic did not run")
		}
		p.Stop()
	})

	t.Run("停止后拒绝提交且可重复停止", func(t *testing.T) {
		p := NewWorkerPool(1, 10, nil)
		p.Start(context.Background())
		p.Stop()
		p.Stop()
		assert.False(t, p.TrySubmit(func() {}))
	})
}
