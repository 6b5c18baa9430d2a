package tracker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/scalarorg/ismp-relayer/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestQueryStatus(t *testing.T) {
	tests := []struct {
		name        string
		destTime    time.Duration
		destReceipt types.RelayerAddress
		hubTime     time.Duration
		hubReceipt  types.RelayerAddress
		expected    types.MessageStatus
	}{
		{name: "pending", destTime: 500 * time.Second, hubTime: 500 * time.Second, expected: types.StatusPending},
		{name: "delivered", destTime: 500 * time.Second, destReceipt: relayer, expected: types.StatusDestinationDelivered},
		{name: "delivered_after_deadline", destTime: 2000 * time.Second, destReceipt: relayer, hubReceipt: relayer, expected: types.StatusDestinationDelivered},
		{name: "destination_deadline_reached", destTime: 1000 * time.Second, hubReceipt: relayer, expected: types.StatusTimeout},
		{name: "hyperbridge_verified", destTime: 999 * time.Second, hubTime: 2000 * time.Second, hubReceipt: relayer, expected: types.StatusHyperbridgeVerified},
		{name: "hyperbridge_deadline_passed", destTime: 999 * time.Second, hubTime: 1001 * time.Second, expected: types.StatusTimeout},
		{name: "hyperbridge_deadline_reached_is_pending", destTime: 999 * time.Second, hubTime: 1000 * time.Second, expected: types.StatusPending},
		{name: "zero_receipt_is_absent", destTime: 10 * time.Second, destReceipt: make(types.RelayerAddress, 20), hubTime: 10 * time.Second, expected: types.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.dest.QueryTimestampFunc = func(context.Context) (time.Duration, error) { return tt.destTime, nil }
			f.dest.QueryRequestReceiptFunc = func(context.Context, ethcommon.Hash) (types.RelayerAddress, error) {
				return tt.destReceipt, nil
			}
			f.hub.QueryTimestampFunc = func(context.Context) (time.Duration, error) { return tt.hubTime, nil }
			f.hub.QueryRequestReceiptFunc = func(context.Context, ethcommon.Hash) (types.RelayerAddress, error) {
				return tt.hubReceipt, nil
			}
			status, err := f.tracker.QueryStatus(context.Background(), newRequest(sourceChain))
			require.NoError(t, err)
			require.Equal(t, tt.expected, status.Status)

			again, err := f.tracker.QueryStatus(context.Background(), newRequest(sourceChain))
			require.NoError(t, err)
			require.Equal(t, status, again)
		})
	}
}

func TestQueryStatusErrors(t *testing.T) {
	t.Run("unknown_destination", func(t *testing.T) {
		f := newFixture()
		req := newRequest(sourceChain)
		req.Dest = types.EvmStateMachine(1)
		_, err := f.tracker.QueryStatus(context.Background(), req)
		require.ErrorIs(t, err, types.ErrUnknownClient)
	})

	t.Run("unknown_source", func(t *testing.T) {
		f := newFixture()
		f.dest.QueryTimestampFunc = func(context.Context) (time.Duration, error) { return 500 * time.Second, nil }
		req := newRequest(types.EvmStateMachine(5))
		_, err := f.tracker.QueryStatus(context.Background(), req)
		require.ErrorIs(t, err, types.ErrUnknownClient)
	})

	t.Run("rpc_error_is_returned_unmodified", func(t *testing.T) {
		f := newFixture()
		boom := types.NewRpcError("timestamp", errors.New("boom"))
		f.hub.QueryRequestReceiptFunc = func(context.Context, ethcommon.Hash) (types.RelayerAddress, error) {
			return nil, boom
		}
		_, err := f.tracker.QueryStatus(context.Background(), newRequest(sourceChain))
		require.Equal(t, boom, err)
		require.ErrorIs(t, err, types.ErrRpcFailure)
	})

	t.Run("receipt_checked_by_commitment", func(t *testing.T) {
		f := newFixture()
		req := newRequest(sourceChain)
		var asked ethcommon.Hash
		f.dest.QueryRequestReceiptFunc = func(_ context.Context, commitment ethcommon.Hash) (types.RelayerAddress, error) {
			asked = commitment
			return relayer, nil
		}
		_, err := f.tracker.QueryStatus(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, req.Commitment(), asked)
	})
}

// A request that times out on the destination, recovers once the clock is reset and is then delivered.
func TestQueryStatusLifecycle(t *testing.T) {
	f := newFixture()
	var (
		destTime    = 500 * time.Second
		destReceipt types.RelayerAddress
		hubReceipt  types.RelayerAddress
	)
	f.dest.QueryTimestampFunc = func(context.Context) (time.Duration, error) { return destTime, nil }
	f.dest.QueryRequestReceiptFunc = func(context.Context, ethcommon.Hash) (types.RelayerAddress, error) {
		return destReceipt, nil
	}
	f.hub.QueryTimestampFunc = func(context.Context) (time.Duration, error) { return 400 * time.Second, nil }
	f.hub.QueryRequestReceiptFunc = func(context.Context, ethcommon.Hash) (types.RelayerAddress, error) {
		return hubReceipt, nil
	}
	req := newRequest(sourceChain)
	query := func() types.MessageStatus {
		status, err := f.tracker.QueryStatus(context.Background(), req)
		require.NoError(t, err)
		return status.Status
	}

	require.Equal(t, types.StatusPending, query())
	destTime = 1500 * time.Second
	require.Equal(t, types.StatusTimeout, query())
	destTime = 500 * time.Second
	hubReceipt = relayer
	require.Equal(t, types.StatusHyperbridgeVerified, query())
	destReceipt = relayer
	require.Equal(t, types.StatusDestinationDelivered, query())
}
