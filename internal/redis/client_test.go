package redisclient

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireUserAuth("scheduler", "s3cret")

	rdb, err := NewRedisClient(context.Background(), mr.Addr(), "scheduler", "s3cret")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	assert.NoError(t, rdb.Ping(context.Background()).Err())

	_, err = NewRedisClient(context.Background(), mr.Addr(), "scheduler", "wrong")
	assert.Error(t, err)
}
