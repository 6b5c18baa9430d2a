package tracker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/pkg/clients/common"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

// StatusStream follows a request from state until it is delivered or times out.
// The channel is closed after the last status or after a final item carrying Err.
func (t *Tracker) StatusStream(ctx context.Context, post types.PostRequest, state types.MessageStatusStreamState) <-chan types.StatusUpdate {
	commitment := post.Commitment()
	source, dest, err := t.resolve(&post)
	if err != nil {
		out := make(chan types.StatusUpdate, 1)
		out <- types.StatusUpdate{Next: state, Err: &types.StreamError{State: state.String(), Err: err}}
		close(out)
		return out
	}
	stream := &statusStream{
		tracker:    t,
		post:       post,
		commitment: commitment,
		source:     source,
		dest:       dest,
		hub:        t.hyperbridge,
		logger: log.With().Str("commitment", commitment.Hex()).
			Str("source", post.Source.String()).
			Str("dest", post.Dest.String()).Logger(),
	}
	return runStream(ctx, t.tracer, "StatusStream", commitment.Hex(), state,
		types.MessageStatusStreamState.IsFinished,
		stream.step,
		func(status *types.MessageStatusWithMetadata, next types.MessageStatusStreamState, err error) types.StatusUpdate {
			return types.StatusUpdate{Status: status, Next: next, Err: err}
		})
}

type statusStream struct {
	tracker    *Tracker
	post       types.PostRequest
	commitment ethcommon.Hash
	source     common.ChainClient
	dest       common.ChainClient
	hub        common.ChainClient
	logger     zerolog.Logger
}

func (s *statusStream) step(ctx context.Context, state types.MessageStatusStreamState) (*types.MessageStatusWithMetadata, types.MessageStatusStreamState, error) {
	if state.IsFinished() {
		return nil, types.EndState(), nil
	}
	timedOut, err := s.timedOut(ctx)
	if err != nil {
		return nil, state, err
	}
	if timedOut {
		return s.expire(state)
	}
	switch state.Kind {
	case types.StreamDispatched:
		return s.awaitSourceFinalized(ctx, state.Height)
	case types.StreamSourceFinalized:
		return s.awaitHyperbridgeVerified(ctx, state.Height)
	case types.StreamHyperbridgeVerified:
		return s.awaitHyperbridgeFinalized(ctx, state.Height)
	case types.StreamHyperbridgeFinalized:
		return s.awaitDestinationDelivered(ctx, state.Height)
	default:
		return nil, state, fmt.Errorf("unexpected stream state %s", state)
	}
}

// timedOut reports whether the destination clock passed the deadline of an undelivered request.
func (s *statusStream) timedOut(ctx context.Context) (bool, error) {
	receipt, err := s.dest.QueryRequestReceipt(ctx, s.commitment)
	if err != nil {
		return false, fmt.Errorf("failed to query destination receipt: %w", err)
	}
	if !receipt.IsZero() {
		return false, nil
	}
	now, err := s.dest.QueryTimestamp(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to query destination timestamp: %w", err)
	}
	return s.post.TimedOut(now), nil
}

func (s *statusStream) expire(state types.MessageStatusStreamState) (*types.MessageStatusWithMetadata, types.MessageStatusStreamState, error) {
	s.logger.Info().Str("state", state.String()).Msg("[StatusStream] [expire] request timed out on destination")
	status := types.NewTimeout()
	return &status, types.EndState(), nil
}

// watchDeadline polls the destination clock while a step waits on a subscription.
// The returned context is cancelled once the request times out, after which expired reports true.
func (s *statusStream) watchDeadline(ctx context.Context) (waitCtx context.Context, expired func() bool, stop context.CancelFunc) {
	waitCtx, stop = context.WithCancel(ctx)
	var timedOut atomic.Bool
	go func() {
		ticker := time.NewTicker(s.tracker.config.TimeoutPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-waitCtx.Done():
				return
			case <-ticker.C:
				ok, err := s.timedOut(waitCtx)
				if err != nil {
					if waitCtx.Err() == nil {
						s.logger.Debug().Err(err).Msg("[StatusStream] [watchDeadline] failed to check destination deadline")
					}
					continue
				}
				if ok {
					timedOut.Store(true)
					stop()
					return
				}
			}
		}
	}()
	return waitCtx, timedOut.Load, stop
}

// awaitSourceFinalized waits for hyperbridge to finalize the source at height or above.
func (s *statusStream) awaitSourceFinalized(ctx context.Context, height uint64) (*types.MessageStatusWithMetadata, types.MessageStatusStreamState, error) {
	sourceId := s.source.StateMachineID()
	latest, err := s.hub.QueryLatestStateMachineHeight(ctx, sourceId)
	if err != nil {
		return nil, types.Dispatched(height), fmt.Errorf("failed to query hyperbridge view of %s: %w", sourceId, err)
	}
	if latest >= height {
		hubHeight, err := s.hub.QueryLatestBlockHeight(ctx)
		if err != nil {
			return nil, types.Dispatched(height), fmt.Errorf("failed to query hyperbridge height: %w", err)
		}
		s.logger.Info().Uint64("finalizedHeight", latest).
			Msg("[StatusStream] [awaitSourceFinalized] source already finalized on hyperbridge")
		status := types.NewSourceFinalized(latest, types.EventMetadata{})
		return &status, types.SourceFinalizedState(hubHeight), nil
	}
	waitCtx, expired, stop := s.watchDeadline(ctx)
	defer stop()
	update, err := awaitFirst(waitCtx,
		func(sink chan<- types.WithMetadata[types.StateMachineUpdated]) (event.Subscription, error) {
			return s.hub.StateMachineUpdateNotification(waitCtx, sourceId, sink)
		},
		func(update types.WithMetadata[types.StateMachineUpdated]) (bool, error) {
			return update.Event.StateMachineId.StateId == sourceId.StateId && update.Event.LatestHeight >= height, nil
		})
	if err != nil {
		if expired() {
			return s.expire(types.Dispatched(height))
		}
		return nil, types.Dispatched(height), err
	}
	s.logger.Info().Uint64("finalizedHeight", update.Event.LatestHeight).
		Uint64("hyperbridgeHeight", update.Meta.BlockNumber).
		Msg("[StatusStream] [awaitSourceFinalized] source finalized on hyperbridge")
	status := types.NewSourceFinalized(update.Event.LatestHeight, update.Meta)
	return &status, types.SourceFinalizedState(update.Meta.BlockNumber), nil
}

// awaitHyperbridgeVerified waits for hyperbridge to accept the request.
func (s *statusStream) awaitHyperbridgeVerified(ctx context.Context, height uint64) (*types.MessageStatusWithMetadata, types.MessageStatusStreamState, error) {
	receipt, err := s.hub.QueryRequestReceipt(ctx, s.commitment)
	if err != nil {
		return nil, types.SourceFinalizedState(height), fmt.Errorf("failed to query hyperbridge receipt: %w", err)
	}
	if !receipt.IsZero() {
		hubHeight, err := s.hub.QueryLatestBlockHeight(ctx)
		if err != nil {
			return nil, types.SourceFinalizedState(height), fmt.Errorf("failed to query hyperbridge height: %w", err)
		}
		s.logger.Info().Str("relayer", receipt.String()).
			Msg("[StatusStream] [awaitHyperbridgeVerified] request already verified by hyperbridge")
		status := types.NewHyperbridgeVerified(types.EventMetadata{})
		return &status, types.HyperbridgeVerifiedState(hubHeight), nil
	}
	waitCtx, expired, stop := s.watchDeadline(ctx)
	defer stop()
	ev, err := awaitFirst(waitCtx,
		func(sink chan<- types.WithMetadata[types.Event]) (event.Subscription, error) {
			return s.hub.IsmpEventsStream(waitCtx, s.commitment, height, sink)
		},
		func(ev types.WithMetadata[types.Event]) (bool, error) {
			commitment, ok := ev.Event.RequestCommitment()
			return ok && commitment == s.commitment && ev.Meta.BlockNumber >= height, nil
		})
	if err != nil {
		if expired() {
			return s.expire(types.SourceFinalizedState(height))
		}
		return nil, types.SourceFinalizedState(height), err
	}
	s.logger.Info().Str("event", ev.Event.Kind.String()).
		Uint64("hyperbridgeHeight", ev.Meta.BlockNumber).
		Msg("[StatusStream] [awaitHyperbridgeVerified] request verified by hyperbridge")
	status := types.NewHyperbridgeVerified(ev.Meta)
	return &status, types.HyperbridgeVerifiedState(ev.Meta.BlockNumber), nil
}

// awaitHyperbridgeFinalized waits for the destination to finalize hyperbridge at height
// and produces the delivery calldata once the destination challenge period is over.
func (s *statusStream) awaitHyperbridgeFinalized(ctx context.Context, height uint64) (*types.MessageStatusWithMetadata, types.MessageStatusStreamState, error) {
	current := types.HyperbridgeVerifiedState(height)
	hubId := s.hub.StateMachineID()
	latest, err := s.dest.QueryLatestStateMachineHeight(ctx, hubId)
	if err != nil {
		return nil, current, fmt.Errorf("failed to query destination view of hyperbridge: %w", err)
	}
	receipt, err := s.dest.QueryRequestReceipt(ctx, s.commitment)
	if err != nil {
		return nil, current, fmt.Errorf("failed to query destination receipt: %w", err)
	}
	if !receipt.IsZero() {
		destHeight, err := s.dest.QueryLatestBlockHeight(ctx)
		if err != nil {
			return nil, current, fmt.Errorf("failed to query destination height: %w", err)
		}
		s.logger.Info().Str("relayer", receipt.String()).
			Msg("[StatusStream] [awaitHyperbridgeFinalized] request already delivered")
		status := types.NewHyperbridgeFinalized(latest, types.EventMetadata{}, nil)
		return &status, types.HyperbridgeFinalizedState(destHeight), nil
	}

	finalized := latest
	meta := types.EventMetadata{}
	var destHeight uint64
	if latest >= height {
		destHeight, err = s.dest.QueryLatestBlockHeight(ctx)
		if err != nil {
			return nil, current, fmt.Errorf("failed to query destination height: %w", err)
		}
	} else {
		waitCtx, expired, stop := s.watchDeadline(ctx)
		update, err := awaitFirst(waitCtx,
			func(sink chan<- types.WithMetadata[types.StateMachineUpdated]) (event.Subscription, error) {
				return s.dest.StateMachineUpdateNotification(waitCtx, hubId, sink)
			},
			func(update types.WithMetadata[types.StateMachineUpdated]) (bool, error) {
				return update.Event.StateMachineId.StateId == hubId.StateId && update.Event.LatestHeight >= height, nil
			})
		stop()
		if err != nil {
			if expired() {
				return s.expire(current)
			}
			return nil, current, err
		}
		finalized = update.Event.LatestHeight
		meta = update.Meta
		destHeight = update.Meta.BlockNumber
	}

	calldata, err := s.deliveryCalldata(ctx, finalized)
	if err != nil {
		return nil, current, err
	}
	s.logger.Info().Uint64("finalizedHeight", finalized).
		Int("calldataLength", len(calldata)).
		Msg("[StatusStream] [awaitHyperbridgeFinalized] hyperbridge finalized on destination")
	status := types.NewHyperbridgeFinalized(finalized, meta, calldata)
	return &status, types.HyperbridgeFinalizedState(destHeight), nil
}

func (s *statusStream) deliveryCalldata(ctx context.Context, finalized uint64) ([]byte, error) {
	proofHeight := types.StateMachineHeight{Id: s.hub.StateMachineID(), Height: finalized}
	if err := s.tracker.waitChallenge(ctx, s.dest, proofHeight); err != nil {
		return nil, err
	}
	proof, err := s.hub.QueryStateProof(ctx, finalized, [][]byte{s.hub.RequestCommitmentFullKey(s.commitment)})
	if err != nil {
		return nil, fmt.Errorf("failed to query hyperbridge state proof: %w", err)
	}
	var signer []byte
	if s.tracker.config.Signer != "" {
		signer, err = hexutil.Decode(s.tracker.config.Signer)
		if err != nil {
			return nil, fmt.Errorf("invalid signer %q: %w", s.tracker.config.Signer, err)
		}
	}
	msg := types.RequestMessage{
		Requests: []types.PostRequest{s.post},
		Proof:    types.Proof{Height: proofHeight, Proof: proof},
		Signer:   signer,
	}
	return encode(s.dest, msg)
}

// awaitDestinationDelivered waits for the destination to accept the request.
func (s *statusStream) awaitDestinationDelivered(ctx context.Context, height uint64) (*types.MessageStatusWithMetadata, types.MessageStatusStreamState, error) {
	current := types.HyperbridgeFinalizedState(height)
	receipt, err := s.dest.QueryRequestReceipt(ctx, s.commitment)
	if err != nil {
		return nil, current, fmt.Errorf("failed to query destination receipt: %w", err)
	}
	if !receipt.IsZero() {
		meta, err := s.findDelivery(ctx)
		if err != nil {
			return nil, current, err
		}
		s.logger.Info().Uint64("destHeight", meta.BlockNumber).
			Msg("[StatusStream] [awaitDestinationDelivered] request delivered")
		status := types.NewDestinationDelivered(meta)
		return &status, types.DestinationDeliveredState(), nil
	}
	waitCtx, expired, stop := s.watchDeadline(ctx)
	defer stop()
	handled, err := awaitFirst(waitCtx,
		func(sink chan<- types.WithMetadata[types.RequestHandled]) (event.Subscription, error) {
			return s.dest.PostRequestHandledStream(waitCtx, s.commitment, height, sink)
		},
		func(handled types.WithMetadata[types.RequestHandled]) (bool, error) {
			return handled.Event.Commitment == s.commitment && handled.Meta.BlockNumber >= height, nil
		})
	if err != nil {
		if expired() {
			return s.expire(current)
		}
		return nil, current, err
	}
	s.logger.Info().Uint64("destHeight", handled.Meta.BlockNumber).
		Str("relayer", handled.Event.Relayer.String()).
		Msg("[StatusStream] [awaitDestinationDelivered] request delivered")
	status := types.NewDestinationDelivered(handled.Meta)
	return &status, types.DestinationDeliveredState(), nil
}

// findDelivery searches recent destination blocks for the event that handled the request.
// It returns empty metadata when the event is older than the scan window.
func (s *statusStream) findDelivery(ctx context.Context) (types.EventMetadata, error) {
	latest, err := s.dest.QueryLatestBlockHeight(ctx)
	if err != nil {
		return types.EventMetadata{}, fmt.Errorf("failed to query destination height: %w", err)
	}
	from := uint64(0)
	if latest > s.tracker.config.DeliveryScanWindow {
		from = latest - s.tracker.config.DeliveryScanWindow
	}
	events, err := s.dest.QueryIsmpEvents(ctx, from, latest)
	if err != nil {
		return types.EventMetadata{}, fmt.Errorf("failed to query destination events: %w", err)
	}
	for _, ev := range events {
		if ev.Event.Kind == types.EventPostRequestHandled && ev.Event.Commitment == s.commitment {
			return ev.Meta, nil
		}
	}
	s.logger.Debug().Uint64("from", from).Uint64("to", latest).
		Msg("[StatusStream] [findDelivery] delivery event not found in scan window")
	return types.EventMetadata{}, nil
}
