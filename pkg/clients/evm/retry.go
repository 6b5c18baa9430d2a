package evm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

// retryCall runs a read call with exponential backoff, bounded by the configured retries.
// The final failure is reported as an rpc error.
func retryCall[T any](ctx context.Context, c *EvmClient, method string, call func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.Config.RetryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.Config.MaxRetries), ctx)
	result, err := backoff.RetryNotifyWithData(call, policy, func(err error, next time.Duration) {
		log.Warn().Err(err).
			Str("stateMachine", c.Config.StateMachine.String()).
			Str("method", method).
			Dur("retryIn", next).
			Msg("[EvmClient] [retryCall] rpc call failed")
	})
	if err != nil {
		return result, types.NewRpcError(method, err)
	}
	return result, nil
}
