package tracker_test

import (
	"math/big"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/scalarorg/ismp-relayer/pkg/clients/mock"
	"github.com/scalarorg/ismp-relayer/pkg/tracker"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

var (
	sourceChain = types.EvmStateMachine(97)
	destChain   = types.EvmStateMachine(11155111)
	hubChain    = types.PolkadotStateMachine(3367)
	relayer     = types.RelayerAddress(ethcommon.HexToAddress("0x00000000000000000000000000000000000000aa").Bytes())
)

type fixture struct {
	source  *mock.MockChainClient
	dest    *mock.MockChainClient
	hub     *mock.MockChainClient
	tracker *tracker.Tracker
}

func newFixture() *fixture {
	return newFixtureWithSource(sourceChain)
}

func newFixtureWithSource(source types.StateMachine) *fixture {
	f := &fixture{
		source: mock.NewMockChainClient(source),
		dest:   mock.NewMockChainClient(destChain),
		hub:    mock.NewMockChainClient(hubChain),
	}
	f.tracker = tracker.NewTracker(f.source, f.dest, f.hub, &tracker.Config{
		ChallengePollInterval: time.Millisecond,
		DeliveryScanWindow:    100,
	})
	return f
}

func newRequest(source types.StateMachine) types.PostRequest {
	return types.PostRequest{
		Source:           source,
		Dest:             destChain,
		Nonce:            1,
		From:             ethcommon.HexToAddress("0x1111111111111111111111111111111111111111").Bytes(),
		To:               ethcommon.HexToAddress("0x2222222222222222222222222222222222222222").Bytes(),
		TimeoutTimestamp: 1000,
		Body:             []byte("ping"),
	}
}

func meta(block uint64) types.EventMetadata {
	return types.EventMetadata{
		BlockHash:       ethcommon.BigToHash(new(big.Int).SetUint64(block)),
		TransactionHash: ethcommon.BigToHash(new(big.Int).SetUint64(block + 1_000_000)),
		BlockNumber:     block,
	}
}

func smUpdate(of types.StateMachine, height, block uint64) types.WithMetadata[types.StateMachineUpdated] {
	return types.WithMetadata[types.StateMachineUpdated]{
		Event: types.StateMachineUpdated{
			StateMachineId: types.StateMachineId{StateId: of},
			LatestHeight:   height,
		},
		Meta: meta(block),
	}
}

func collect[U any](t *testing.T, ch <-chan U) []U {
	t.Helper()
	var items []U
	timeout := time.After(5 * time.Second)
	for {
		select {
		case item, ok := <-ch:
			if !ok {
				return items
			}
			items = append(items, item)
		case <-timeout:
			t.Fatalf("stream did not close, received %d items", len(items))
			return items
		}
	}
}

func statuses(t *testing.T, updates []types.StatusUpdate) []types.MessageStatus {
	t.Helper()
	out := make([]types.MessageStatus, 0, len(updates))
	for _, update := range updates {
		if update.Status != nil {
			out = append(out, update.Status.Status)
		}
	}
	return out
}
