package evm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/scalarorg/ismp-relayer/pkg/types"
	"github.com/stretchr/testify/require"
)

func hostLog(t *testing.T, eventName string, topics []common.Hash, args ...interface{}) *ethtypes.Log {
	t.Helper()
	event := hostAbi.Events[eventName]
	data, err := event.Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err)
	return &ethtypes.Log{
		Address:     common.HexToAddress(testHost),
		Topics:      append([]common.Hash{event.ID}, topics...),
		Data:        data,
		BlockNumber: 120,
		BlockHash:   common.HexToHash("0xb10c"),
		TxHash:      common.HexToHash("0x7a"),
		Index:       3,
	}
}

func TestParsePostRequestEvent(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	receiptLog := hostLog(t, EVENT_POST_REQUEST, []common.Hash{common.BytesToHash(from.Bytes())},
		"EVM-97", "EVM-11155111", []byte{0x22, 0x22}, big.NewInt(7), big.NewInt(1700000000), []byte("ping"), big.NewInt(0))

	parsed, err := ParseIsmpLog(receiptLog)
	require.NoError(t, err)
	require.Equal(t, types.EventPostRequest, parsed.Event.Kind)
	require.Equal(t, types.PostRequest{
		Source:           types.EvmStateMachine(97),
		Dest:             types.EvmStateMachine(11155111),
		Nonce:            7,
		From:             from.Bytes(),
		To:               []byte{0x22, 0x22},
		TimeoutTimestamp: 1700000000,
		Body:             []byte("ping"),
	}, *parsed.Event.Request)
	require.Equal(t, types.EventMetadata{
		BlockHash:       common.HexToHash("0xb10c"),
		TransactionHash: common.HexToHash("0x7a"),
		BlockNumber:     120,
	}, parsed.Meta)

	commitment, ok := parsed.Event.RequestCommitment()
	require.True(t, ok)
	require.Equal(t, parsed.Event.Request.Commitment(), commitment)
}

func TestParseRequestHandled(t *testing.T) {
	commitment := common.HexToHash("0xc0ffee")
	relayer := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	receiptLog := hostLog(t, EVENT_POST_REQUEST_HANDLED, []common.Hash{commitment}, relayer)

	parsed, err := ParseIsmpLog(receiptLog)
	require.NoError(t, err)
	require.Equal(t, types.EventPostRequestHandled, parsed.Event.Kind)
	require.Equal(t, commitment, parsed.Event.Commitment)
	require.Equal(t, types.RelayerAddress(relayer.Bytes()), parsed.Event.Relayer)

	handled, err := ParseRequestHandledLog(receiptLog)
	require.NoError(t, err)
	require.Equal(t, commitment, handled.Event.Commitment)
	require.Equal(t, uint64(120), handled.Meta.BlockNumber)
}

func TestParseTimeoutHandled(t *testing.T) {
	commitment := common.HexToHash("0xdead")
	parsed, err := ParseIsmpLog(hostLog(t, EVENT_POST_REQUEST_TIMEOUT_HANDLED, []common.Hash{commitment}, "EVM-1"))
	require.NoError(t, err)
	require.Equal(t, types.EventPostRequestTimeoutHandled, parsed.Event.Kind)
	require.Equal(t, commitment, parsed.Event.Commitment)
}

func TestParseStateMachineUpdated(t *testing.T) {
	receiptLog := hostLog(t, EVENT_STATE_MACHINE_UPDATED, nil, "POLKADOT-3367", big.NewInt(4242))

	parsed, err := ParseIsmpLog(receiptLog)
	require.NoError(t, err)
	require.Equal(t, types.EventStateMachineUpdated, parsed.Event.Kind)
	require.Equal(t, types.PolkadotStateMachine(3367), parsed.Event.StateMachineUpdated.StateMachineId.StateId)
	require.Equal(t, uint64(4242), parsed.Event.StateMachineUpdated.LatestHeight)
	_, ok := parsed.Event.RequestCommitment()
	require.False(t, ok)

	updated, err := ParseStateMachineUpdatedLog(receiptLog)
	require.NoError(t, err)
	require.Equal(t, uint64(4242), updated.Event.LatestHeight)
}

func TestParseInvalidLogs(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		_, err := ParseIsmpLog(&ethtypes.Log{})
		require.Error(t, err)
	})
	t.Run("unknown_topic", func(t *testing.T) {
		_, err := ParseIsmpLog(&ethtypes.Log{Topics: []common.Hash{common.HexToHash("0x01")}})
		require.Error(t, err)
	})
	t.Run("missing_indexed_topic", func(t *testing.T) {
		receiptLog := hostLog(t, EVENT_POST_REQUEST_HANDLED, nil, common.Address{})
		_, err := ParseIsmpLog(receiptLog)
		require.Error(t, err)
	})
	t.Run("wrong_event", func(t *testing.T) {
		receiptLog := hostLog(t, EVENT_STATE_MACHINE_UPDATED, nil, "EVM-1", big.NewInt(1))
		_, err := ParseRequestHandledLog(receiptLog)
		require.Error(t, err)
	})
	t.Run("truncated_data", func(t *testing.T) {
		receiptLog := hostLog(t, EVENT_STATE_MACHINE_UPDATED, nil, "EVM-1", big.NewInt(1))
		receiptLog.Data = receiptLog.Data[:16]
		_, err := ParseIsmpLog(receiptLog)
		require.Error(t, err)
	})
}
