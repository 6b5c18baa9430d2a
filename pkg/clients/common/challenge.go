package common

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const DEFAULT_CHALLENGE_POLL_INTERVAL = 12 * time.Second

type TimestampQuerier interface {
	QueryTimestamp(ctx context.Context) (time.Duration, error)
}

// WaitForChallengePeriod blocks until the clock of client passes updateTime + challengePeriod.
func WaitForChallengePeriod(ctx context.Context, client TimestampQuerier, updateTime, challengePeriod time.Duration) error {
	return WaitForChallengePeriodWithInterval(ctx, client, updateTime, challengePeriod, DEFAULT_CHALLENGE_POLL_INTERVAL)
}

// WaitForChallengePeriodWithInterval is WaitForChallengePeriod re-reading the chain
// clock at least every pollInterval. The chain clock may lag or lead local time.
func WaitForChallengePeriodWithInterval(ctx context.Context, client TimestampQuerier, updateTime, challengePeriod, pollInterval time.Duration) error {
	if challengePeriod <= 0 {
		return nil
	}
	if pollInterval <= 0 {
		pollInterval = DEFAULT_CHALLENGE_POLL_INTERVAL
	}
	deadline := updateTime + challengePeriod
	for {
		now, err := client.QueryTimestamp(ctx)
		if err != nil {
			return fmt.Errorf("failed to query timestamp: %w", err)
		}
		if now >= deadline {
			return nil
		}
		wait := deadline - now
		if wait > pollInterval {
			wait = pollInterval
		}
		log.Debug().Dur("remaining", deadline-now).
			Dur("wait", wait).
			Msg("[ChallengePeriod] [Wait] challenge period not elapsed")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
