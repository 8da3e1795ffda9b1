package retry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errCollision = errors.New("collision")

func isCollision(err error) bool { return errors.Is(err, errCollision) }

func TestDo(t *testing.T) {
	t.Run("第一次就成功", func(t *testing.T) {
		calls := 0
		err := Do(10, isCollision, func(int) error {
			calls++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("冲突后重试成功", func(t *testing.T) {
		var attempts []int
		err := Do(10, isCollision, func(attempt int) error {
			attempts = append(attempts, attempt)
			if attempt < 3 {
				return errCollision
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, attempts)
	})

	t.Run("次数耗尽", func(t *testing.T) {
		calls := 0
		err := Do(10, isCollision, func(int) error {
			calls++
			return errCollision
		})
		assert.Equal(t, 10, calls)
		assert.ErrorIs(t, err, ErrExhausted)
		assert.ErrorIs(t, err, errCollision)
	})

	t.Run("不可重试的错误立即返回", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		err := Do(10, isCollision, func(int) error {
			calls++
			return boom
		})
		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrExhausted)
	})

	t.Run("非法次数按一次处理", func(t *testing.T) {
		calls := 0
		err := Do(0, nil, func(int) error {
			calls++
			return errCollision
		})
		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, ErrExhausted)
	})
}
