package common_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scalarorg/ismp-relayer/pkg/clients/common"
	"github.com/stretchr/testify/require"
)

type clockFunc func(ctx context.Context) (time.Duration, error)

func (f clockFunc) QueryTimestamp(ctx context.Context) (time.Duration, error) {
	return f(ctx)
}

func TestWaitForChallengePeriod(t *testing.T) {
	t.Run("zero_period_returns_immediately", func(t *testing.T) {
		var calls atomic.Int32
		clock := clockFunc(func(context.Context) (time.Duration, error) {
			calls.Add(1)
			return 0, nil
		})
		err := common.WaitForChallengePeriod(context.Background(), clock, 100*time.Second, 0)
		require.NoError(t, err)
		require.Equal(t, int32(0), calls.Load())
	})

	t.Run("elapsed_period_returns_after_one_query", func(t *testing.T) {
		var calls atomic.Int32
		clock := clockFunc(func(context.Context) (time.Duration, error) {
			calls.Add(1)
			return 200 * time.Second, nil
		})
		err := common.WaitForChallengePeriod(context.Background(), clock, 100*time.Second, 50*time.Second)
		require.NoError(t, err)
		require.Equal(t, int32(1), calls.Load())
	})

	t.Run("polls_until_chain_clock_passes", func(t *testing.T) {
		var now atomic.Int64
		now.Store(int64(100 * time.Millisecond))
		clock := clockFunc(func(context.Context) (time.Duration, error) {
			return time.Duration(now.Add(int64(5 * time.Millisecond))), nil
		})
		err := common.WaitForChallengePeriodWithInterval(context.Background(), clock,
			100*time.Millisecond, 20*time.Millisecond, time.Millisecond)
		require.NoError(t, err)
		require.GreaterOrEqual(t, time.Duration(now.Load()), 120*time.Millisecond)
	})

	t.Run("query_error_is_returned", func(t *testing.T) {
		boom := errors.New("boom")
		clock := clockFunc(func(context.Context) (time.Duration, error) {
			return 0, boom
		})
		err := common.WaitForChallengePeriod(context.Background(), clock, 0, time.Second)
		require.ErrorIs(t, err, boom)
	})

	t.Run("context_cancel_stops_waiting", func(t *testing.T) {
		clock := clockFunc(func(context.Context) (time.Duration, error) {
			return 0, nil
		})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := common.WaitForChallengePeriodWithInterval(ctx, clock, 0, time.Hour, time.Second)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
