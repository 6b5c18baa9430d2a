package tracker

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/event"
	"github.com/scalarorg/ismp-relayer/pkg/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// stepFunc advances a stream by one state. A nil status emits nothing.
type stepFunc[S any, O any] func(ctx context.Context, state S) (*O, S, error)

// runStream drives step from state until finished, sending one item per status
// through an unbuffered channel. A step error is sent as the final item.
// Cancelling ctx closes the channel without an error item.
func runStream[S fmt.Stringer, O any, U any](
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	commitment string,
	state S,
	finished func(S) bool,
	step stepFunc[S, O],
	item func(status *O, next S, err error) U,
) <-chan U {
	out := make(chan U)
	go func() {
		defer close(out)
		for !finished(state) {
			stepCtx, span := tracer.Start(ctx, name+"."+state.String(),
				trace.WithAttributes(attribute.String("commitment", commitment)))
			status, next, err := step(stepCtx, state)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				span.End()
				if ctx.Err() != nil {
					return
				}
				send(ctx, out, item(nil, state, &types.StreamError{State: state.String(), Err: err}))
				return
			}
			span.SetAttributes(attribute.String("next", next.String()))
			span.End()
			state = next
			if status != nil && !send(ctx, out, item(status, next, nil)) {
				return
			}
		}
	}()
	return out
}

func send[U any](ctx context.Context, out chan<- U, item U) bool {
	select {
	case out <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

// awaitFirst subscribes and returns the first item accepted by match.
// A stream that ends before any match yields ErrStreamTerminated.
func awaitFirst[T any](
	ctx context.Context,
	subscribe func(sink chan<- T) (event.Subscription, error),
	match func(item T) (bool, error),
) (T, error) {
	var zero T
	sink := make(chan T, STREAM_BUFFER)
	sub, err := subscribe(sink)
	if err != nil {
		return zero, fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case item := <-sink:
			ok, err := match(item)
			if err != nil {
				return zero, err
			}
			if ok {
				return item, nil
			}
		case subErr, open := <-sub.Err():
			// items delivered before the stream ended are still pending in sink
			for {
				select {
				case item := <-sink:
					ok, err := match(item)
					if err != nil {
						return zero, err
					}
					if ok {
						return item, nil
					}
					continue
				default:
				}
				break
			}
			if open && subErr != nil {
				return zero, fmt.Errorf("%w: %w", types.ErrStreamTerminated, subErr)
			}
			return zero, types.ErrStreamTerminated
		}
	}
}
