package utils

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", 3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = Retry(context.Background(), "op", 3, time.Millisecond, func() error {
		calls++
		return errors.New("still failing")
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry time over")
	assert.Contains(t, err.Error(), "still failing")
	assert.Equal(t, 3, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Retry(ctx, "op", 5, time.Hour, func() error { return errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}
