package mock

import (
	"context"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/scalarorg/ismp-relayer/pkg/clients/common"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

var _ common.ChainClient = (*MockChainClient)(nil)

// MockChainClient is a ChainClient whose behaviour is set per method.
// Unset queries return zero values, unset streams never yield.
type MockChainClient struct {
	Id types.StateMachineId

	QueryTimestampFunc                 func(ctx context.Context) (time.Duration, error)
	QueryLatestBlockHeightFunc         func(ctx context.Context) (uint64, error)
	QueryLatestStateMachineHeightFunc  func(ctx context.Context, of types.StateMachineId) (uint64, error)
	QueryRequestReceiptFunc            func(ctx context.Context, commitment ethcommon.Hash) (types.RelayerAddress, error)
	QueryIsmpEventsFunc                func(ctx context.Context, from, to uint64) ([]types.WithMetadata[types.Event], error)
	IsmpEventsStreamFunc               func(ctx context.Context, commitment ethcommon.Hash, from uint64, sink chan<- types.WithMetadata[types.Event]) (event.Subscription, error)
	PostRequestHandledStreamFunc       func(ctx context.Context, commitment ethcommon.Hash, from uint64, sink chan<- types.WithMetadata[types.RequestHandled]) (event.Subscription, error)
	StateMachineUpdateNotificationFunc func(ctx context.Context, of types.StateMachineId, sink chan<- types.WithMetadata[types.StateMachineUpdated]) (event.Subscription, error)
	QueryStateProofFunc                func(ctx context.Context, height uint64, keys [][]byte) ([]byte, error)
	QueryStateMachineCommitmentFunc    func(ctx context.Context, height types.StateMachineHeight) (types.StateCommitment, error)
	QueryChallengePeriodFunc           func(ctx context.Context, of types.StateMachineId) (time.Duration, error)
	QueryStateMachineUpdateTimeFunc    func(ctx context.Context, height types.StateMachineHeight) (time.Duration, error)
	EncodeFunc                         func(msg types.Message) ([]byte, error)
	SubmitFunc                         func(ctx context.Context, msg types.Message) (types.EventMetadata, error)
}

func NewMockChainClient(stateMachine types.StateMachine) *MockChainClient {
	return &MockChainClient{Id: types.StateMachineId{StateId: stateMachine}}
}

func (m *MockChainClient) StateMachineID() types.StateMachineId {
	return m.Id
}

func (m *MockChainClient) QueryTimestamp(ctx context.Context) (time.Duration, error) {
	if m.QueryTimestampFunc != nil {
		return m.QueryTimestampFunc(ctx)
	}
	return 0, nil
}

func (m *MockChainClient) QueryLatestBlockHeight(ctx context.Context) (uint64, error) {
	if m.QueryLatestBlockHeightFunc != nil {
		return m.QueryLatestBlockHeightFunc(ctx)
	}
	return 0, nil
}

func (m *MockChainClient) QueryLatestStateMachineHeight(ctx context.Context, of types.StateMachineId) (uint64, error) {
	if m.QueryLatestStateMachineHeightFunc != nil {
		return m.QueryLatestStateMachineHeightFunc(ctx, of)
	}
	return 0, nil
}

func (m *MockChainClient) QueryRequestReceipt(ctx context.Context, commitment ethcommon.Hash) (types.RelayerAddress, error) {
	if m.QueryRequestReceiptFunc != nil {
		return m.QueryRequestReceiptFunc(ctx, commitment)
	}
	return nil, nil
}

func (m *MockChainClient) QueryIsmpEvents(ctx context.Context, from, to uint64) ([]types.WithMetadata[types.Event], error) {
	if m.QueryIsmpEventsFunc != nil {
		return m.QueryIsmpEventsFunc(ctx, from, to)
	}
	return nil, nil
}

func (m *MockChainClient) IsmpEventsStream(ctx context.Context, commitment ethcommon.Hash, from uint64, sink chan<- types.WithMetadata[types.Event]) (event.Subscription, error) {
	if m.IsmpEventsStreamFunc != nil {
		return m.IsmpEventsStreamFunc(ctx, commitment, from, sink)
	}
	return Silent(), nil
}

func (m *MockChainClient) PostRequestHandledStream(ctx context.Context, commitment ethcommon.Hash, from uint64, sink chan<- types.WithMetadata[types.RequestHandled]) (event.Subscription, error) {
	if m.PostRequestHandledStreamFunc != nil {
		return m.PostRequestHandledStreamFunc(ctx, commitment, from, sink)
	}
	return Silent(), nil
}

func (m *MockChainClient) StateMachineUpdateNotification(ctx context.Context, of types.StateMachineId, sink chan<- types.WithMetadata[types.StateMachineUpdated]) (event.Subscription, error) {
	if m.StateMachineUpdateNotificationFunc != nil {
		return m.StateMachineUpdateNotificationFunc(ctx, of, sink)
	}
	return Silent(), nil
}

func (m *MockChainClient) QueryStateProof(ctx context.Context, height uint64, keys [][]byte) ([]byte, error) {
	if m.QueryStateProofFunc != nil {
		return m.QueryStateProofFunc(ctx, height, keys)
	}
	return nil, nil
}

func (m *MockChainClient) QueryStateMachineCommitment(ctx context.Context, height types.StateMachineHeight) (types.StateCommitment, error) {
	if m.QueryStateMachineCommitmentFunc != nil {
		return m.QueryStateMachineCommitmentFunc(ctx, height)
	}
	return types.StateCommitment{}, nil
}

func (m *MockChainClient) QueryChallengePeriod(ctx context.Context, of types.StateMachineId) (time.Duration, error) {
	if m.QueryChallengePeriodFunc != nil {
		return m.QueryChallengePeriodFunc(ctx, of)
	}
	return 0, nil
}

func (m *MockChainClient) QueryStateMachineUpdateTime(ctx context.Context, height types.StateMachineHeight) (time.Duration, error) {
	if m.QueryStateMachineUpdateTimeFunc != nil {
		return m.QueryStateMachineUpdateTimeFunc(ctx, height)
	}
	return 0, nil
}

func (m *MockChainClient) RequestReceiptFullKey(commitment ethcommon.Hash) []byte {
	return append([]byte("receipt:"), commitment.Bytes()...)
}

func (m *MockChainClient) RequestCommitmentFullKey(commitment ethcommon.Hash) []byte {
	return append([]byte("commitment:"), commitment.Bytes()...)
}

func (m *MockChainClient) Encode(msg types.Message) ([]byte, error) {
	if m.EncodeFunc != nil {
		return m.EncodeFunc(msg)
	}
	return []byte{byte(msg.Kind())}, nil
}

func (m *MockChainClient) Submit(ctx context.Context, msg types.Message) (types.EventMetadata, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, msg)
	}
	return types.EventMetadata{}, nil
}
