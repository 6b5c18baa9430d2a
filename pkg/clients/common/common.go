package common

import (
	"context"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

// ChainClient is the view of a single chain the trackers need.
//
// Streams follow the event.Subscription contract: items are delivered to sink
// until Unsubscribe is called, and Err yields a failure or is closed when the
// stream ends.
type ChainClient interface {
	StateMachineID() types.StateMachineId

	// QueryTimestamp returns the chain's current clock as a duration since the unix epoch.
	QueryTimestamp(ctx context.Context) (time.Duration, error)
	QueryLatestBlockHeight(ctx context.Context) (uint64, error)
	// QueryLatestStateMachineHeight returns the latest height of another state machine finalized on this chain.
	QueryLatestStateMachineHeight(ctx context.Context, of types.StateMachineId) (uint64, error)
	// QueryRequestReceipt returns the relayer recorded for the commitment, or an empty address.
	QueryRequestReceipt(ctx context.Context, commitment ethcommon.Hash) (types.RelayerAddress, error)
	QueryIsmpEvents(ctx context.Context, from, to uint64) ([]types.WithMetadata[types.Event], error)
	IsmpEventsStream(ctx context.Context, commitment ethcommon.Hash, from uint64, sink chan<- types.WithMetadata[types.Event]) (event.Subscription, error)
	PostRequestHandledStream(ctx context.Context, commitment ethcommon.Hash, from uint64, sink chan<- types.WithMetadata[types.RequestHandled]) (event.Subscription, error)
	StateMachineUpdateNotification(ctx context.Context, of types.StateMachineId, sink chan<- types.WithMetadata[types.StateMachineUpdated]) (event.Subscription, error)
	QueryStateProof(ctx context.Context, height uint64, keys [][]byte) ([]byte, error)
	QueryStateMachineCommitment(ctx context.Context, height types.StateMachineHeight) (types.StateCommitment, error)
	QueryChallengePeriod(ctx context.Context, of types.StateMachineId) (time.Duration, error)
	QueryStateMachineUpdateTime(ctx context.Context, height types.StateMachineHeight) (time.Duration, error)

	RequestReceiptFullKey(commitment ethcommon.Hash) []byte
	RequestCommitmentFullKey(commitment ethcommon.Hash) []byte
	Encode(msg types.Message) ([]byte, error)
	Submit(ctx context.Context, msg types.Message) (types.EventMetadata, error)
}
