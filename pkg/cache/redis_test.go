package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-tracker-api/pkg/config"
)

func TestOptions(t *testing.T) {
	opts := Options(config.RedisConfig{Host: "redis", Port: 6380, Password: "pw", DB: 2})
	assert.Equal(t, "redis:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)

	ipv6 := Options(config.RedisConfig{Host: "::1", Port: 6379})
	assert.Equal(t, "[::1]:6379", ipv6.Addr)
}

func TestNewRedisFailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client, err := NewRedis(ctx, config.RedisConfig{Host: "127.0.0.1", Port: 1})
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "ping redis 127.0.0.1:1")
}
