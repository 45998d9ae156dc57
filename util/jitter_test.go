package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRandomDuration(t *testing.T) {
	assert := assert.New(t)

	for i := 0; i < 1000; i++ {
		d := RandomDuration(time.Second, 2*time.Second)
		assert.GreaterOrEqual(d, time.Second)
		assert.LessOrEqual(d, 2*time.Second)
	}
	assert.Equal(time.Second, RandomDuration(time.Second, time.Second))
	assert.Equal(time.Second, RandomDuration(time.Second, 0))
}

func TestSleepContext(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(SleepContext(ctx, time.Hour), context.Canceled)
}
