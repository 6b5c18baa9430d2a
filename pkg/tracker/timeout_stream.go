package tracker

import (
	"context"
	"fmt"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/pkg/clients/common"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

// TimeoutStream drives the timeout of a request whose deadline has passed on the
// destination. The last status carries calldata for the source chain, submitting it is up to the caller.
func (t *Tracker) TimeoutStream(ctx context.Context, post types.PostRequest, state types.TimeoutStreamState) <-chan types.TimeoutUpdate {
	commitment := post.Commitment()
	source, dest, err := t.resolve(&post)
	if err != nil {
		out := make(chan types.TimeoutUpdate, 1)
		out <- types.TimeoutUpdate{Next: state, Err: &types.StreamError{State: state.String(), Err: err}}
		close(out)
		return out
	}
	stream := &timeoutStream{
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
	return runStream(ctx, t.tracer, "TimeoutStream", commitment.Hex(), state,
		func(state types.TimeoutStreamState) bool { return state.Kind == types.TimeoutStreamEnd },
		stream.step,
		func(status *types.TimeoutStatus, next types.TimeoutStreamState, err error) types.TimeoutUpdate {
			return types.TimeoutUpdate{Status: status, Next: next, Err: err}
		})
}

type timeoutStream struct {
	tracker    *Tracker
	post       types.PostRequest
	commitment ethcommon.Hash
	source     common.ChainClient
	dest       common.ChainClient
	hub        common.ChainClient
	logger     zerolog.Logger
}

func (s *timeoutStream) step(ctx context.Context, state types.TimeoutStreamState) (*types.TimeoutStatus, types.TimeoutStreamState, error) {
	switch state.Kind {
	case types.TimeoutStreamPending:
		return s.awaitDestinationFinalized(ctx)
	case types.TimeoutStreamDestinationFinalized:
		return s.timeoutOnHyperbridge(ctx, state.Height)
	case types.TimeoutStreamHyperbridgeVerified:
		return s.timeoutCalldata(ctx, state.Height)
	default:
		return nil, types.TimeoutEndState(), nil
	}
}

// pastDeadline reports whether a state commitment timestamp in seconds is later than the request deadline.
func (s *timeoutStream) pastDeadline(timestamp uint64) bool {
	return time.Duration(timestamp)*time.Second > s.post.Timeout()
}

// awaitDestinationFinalized waits for hyperbridge to finalize a destination height whose
// timestamp is past the request deadline.
func (s *timeoutStream) awaitDestinationFinalized(ctx context.Context) (*types.TimeoutStatus, types.TimeoutStreamState, error) {
	current := types.TimeoutPendingState()
	destId := s.dest.StateMachineID()
	height, err := s.hub.QueryLatestStateMachineHeight(ctx, destId)
	if err != nil {
		return nil, current, fmt.Errorf("failed to query hyperbridge view of %s: %w", destId, err)
	}
	commitment, err := s.hub.QueryStateMachineCommitment(ctx, types.StateMachineHeight{Id: destId, Height: height})
	if err != nil {
		return nil, current, fmt.Errorf("failed to query state commitment of %s at %d: %w", destId, height, err)
	}
	if s.pastDeadline(commitment.Timestamp) {
		s.logger.Info().Uint64("finalizedHeight", height).
			Msg("[TimeoutStream] [awaitDestinationFinalized] destination already finalized past deadline")
		status := types.NewDestinationFinalizedTimeout(height, types.EventMetadata{})
		return &status, types.DestinationFinalizedTimeoutState(height), nil
	}
	update, err := awaitFirst(ctx,
		func(sink chan<- types.WithMetadata[types.StateMachineUpdated]) (event.Subscription, error) {
			return s.hub.StateMachineUpdateNotification(ctx, destId, sink)
		},
		func(update types.WithMetadata[types.StateMachineUpdated]) (bool, error) {
			if update.Event.StateMachineId.StateId != destId.StateId {
				return false, nil
			}
			commitment, err := s.hub.QueryStateMachineCommitment(ctx, types.StateMachineHeight{Id: destId, Height: update.Event.LatestHeight})
			if err != nil {
				return false, fmt.Errorf("failed to query state commitment of %s at %d: %w", destId, update.Event.LatestHeight, err)
			}
			return s.pastDeadline(commitment.Timestamp), nil
		})
	if err != nil {
		return nil, current, err
	}
	s.logger.Info().Uint64("finalizedHeight", update.Event.LatestHeight).
		Msg("[TimeoutStream] [awaitDestinationFinalized] destination finalized past deadline")
	status := types.NewDestinationFinalizedTimeout(update.Event.LatestHeight, update.Meta)
	return &status, types.DestinationFinalizedTimeoutState(update.Event.LatestHeight), nil
}

// timeoutOnHyperbridge proves to hyperbridge that the destination never received the request.
func (s *timeoutStream) timeoutOnHyperbridge(ctx context.Context, height uint64) (*types.TimeoutStatus, types.TimeoutStreamState, error) {
	current := types.DestinationFinalizedTimeoutState(height)
	receipt, err := s.dest.QueryRequestReceipt(ctx, s.commitment)
	if err != nil {
		return nil, current, fmt.Errorf("failed to query destination receipt: %w", err)
	}
	sourceFamily := s.source.StateMachineID().StateId.Family()
	if receipt.IsZero() && !sourceFamily.RequiresDestinationTimeoutProof() {
		hubHeight, err := s.source.QueryLatestStateMachineHeight(ctx, s.hub.StateMachineID())
		if err != nil {
			return nil, current, fmt.Errorf("failed to query source view of hyperbridge: %w", err)
		}
		s.logger.Info().Str("family", sourceFamily.String()).
			Uint64("hyperbridgeHeight", hubHeight).
			Msg("[TimeoutStream] [timeoutOnHyperbridge] skip destination proof")
		status := types.NewHyperbridgeVerifiedTimeout(types.EventMetadata{})
		return &status, types.HyperbridgeVerifiedTimeoutState(hubHeight), nil
	}

	proofHeight := types.StateMachineHeight{Id: s.dest.StateMachineID(), Height: height}
	if err := s.tracker.waitChallenge(ctx, s.hub, proofHeight); err != nil {
		return nil, current, err
	}
	proof, err := s.dest.QueryStateProof(ctx, height, [][]byte{s.dest.RequestReceiptFullKey(s.commitment)})
	if err != nil {
		return nil, current, fmt.Errorf("failed to query destination state proof: %w", err)
	}
	msg := types.TimeoutMessage{
		Requests:     []types.PostRequest{s.post},
		TimeoutProof: types.Proof{Height: proofHeight, Proof: proof},
	}
	meta, err := s.hub.Submit(ctx, msg)
	if err != nil {
		return nil, current, fmt.Errorf("failed to submit timeout to hyperbridge: %w", err)
	}
	s.logger.Info().Uint64("hyperbridgeHeight", meta.BlockNumber).
		Str("txHash", meta.TransactionHash.Hex()).
		Msg("[TimeoutStream] [timeoutOnHyperbridge] timeout accepted by hyperbridge")
	status := types.NewHyperbridgeVerifiedTimeout(meta)
	return &status, types.HyperbridgeVerifiedTimeoutState(meta.BlockNumber), nil
}

// timeoutCalldata waits for the source to finalize hyperbridge at height and builds the
// source timeout calldata once the source challenge period is over.
func (s *timeoutStream) timeoutCalldata(ctx context.Context, height uint64) (*types.TimeoutStatus, types.TimeoutStreamState, error) {
	current := types.HyperbridgeVerifiedTimeoutState(height)
	hubId := s.hub.StateMachineID()
	finalized, err := s.source.QueryLatestStateMachineHeight(ctx, hubId)
	if err != nil {
		return nil, current, fmt.Errorf("failed to query source view of hyperbridge: %w", err)
	}
	meta := types.EventMetadata{}
	if finalized < height {
		update, err := awaitFirst(ctx,
			func(sink chan<- types.WithMetadata[types.StateMachineUpdated]) (event.Subscription, error) {
				return s.source.StateMachineUpdateNotification(ctx, hubId, sink)
			},
			func(update types.WithMetadata[types.StateMachineUpdated]) (bool, error) {
				return update.Event.StateMachineId.StateId == hubId.StateId && update.Event.LatestHeight >= height, nil
			})
		if err != nil {
			return nil, current, err
		}
		finalized = update.Event.LatestHeight
		meta = update.Meta
	}

	proofHeight := types.StateMachineHeight{Id: hubId, Height: finalized}
	if err := s.tracker.waitChallenge(ctx, s.source, proofHeight); err != nil {
		return nil, current, err
	}
	proof, err := s.hub.QueryStateProof(ctx, finalized, [][]byte{s.hub.RequestReceiptFullKey(s.commitment)})
	if err != nil {
		return nil, current, fmt.Errorf("failed to query hyperbridge state proof: %w", err)
	}
	calldata, err := encode(s.source, types.TimeoutMessage{
		Requests:     []types.PostRequest{s.post},
		TimeoutProof: types.Proof{Height: proofHeight, Proof: proof},
	})
	if err != nil {
		return nil, current, err
	}
	s.logger.Info().Uint64("finalizedHeight", finalized).
		Int("calldataLength", len(calldata)).
		Msg("[TimeoutStream] [timeoutCalldata] timeout calldata ready for source")
	status := types.NewHyperbridgeFinalizedTimeout(finalized, meta, calldata)
	return &status, types.TimeoutEndState(), nil
}
