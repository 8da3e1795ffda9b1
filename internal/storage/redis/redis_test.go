package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"tempalias/backend/internal/config"
)

func TestAliasKey(t *testing.T) {
	assert.Equal(t, "tempalias:alias:box@example.com", aliasKey("box@example.com"))
}

func TestNew_Unreachable(t *testing.T) {
	_, err := New(config.RedisConfig{Address: "127.0.0.1:1"}, zap.NewNop())
	assert.ErrorContains(t, err, "failed to connect to Redis")
}
