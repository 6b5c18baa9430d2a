package evm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scalarorg/ismp-relayer/pkg/types"
	"github.com/stretchr/testify/require"
)

type unknownMessage struct{}

func (unknownMessage) Kind() types.MessageKind {
	return types.MessageKind(99)
}

func testRequest() types.PostRequest {
	return types.PostRequest{
		Source:           types.EvmStateMachine(97),
		Dest:             types.EvmStateMachine(11155111),
		Nonce:            3,
		From:             common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes(),
		To:               common.HexToAddress("0x2222222222222222222222222222222222222222").Bytes(),
		TimeoutTimestamp: 1000,
		Body:             []byte("ping"),
	}
}

func hubHeight(height uint64) types.StateMachineHeight {
	return types.StateMachineHeight{
		Id:     types.StateMachineId{StateId: types.PolkadotStateMachine(3367)},
		Height: height,
	}
}

func TestEncodeTimeoutMessage(t *testing.T) {
	client := newTestClient(t)
	calldata, err := client.Encode(types.TimeoutMessage{
		Requests:     []types.PostRequest{testRequest()},
		TimeoutProof: types.Proof{Height: hubHeight(400), Proof: []byte("non-membership")},
	})
	require.NoError(t, err)
	require.Equal(t, handlerAbi.Methods[METHOD_HANDLE_POST_REQUEST_TIMEOUTS].ID, calldata[:4])

	expected, err := handlerAbi.Pack(METHOD_HANDLE_POST_REQUEST_TIMEOUTS, client.HostAddress, PostRequestTimeoutMessageAbi{
		Timeouts: []PostRequestAbi{{
			Source:           []byte("EVM-97"),
			Dest:             []byte("EVM-11155111"),
			Nonce:            3,
			From:             common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes(),
			To:               common.HexToAddress("0x2222222222222222222222222222222222222222").Bytes(),
			TimeoutTimestamp: 1000,
			Body:             []byte("ping"),
		}},
		Height: StateMachineHeightAbi{StateMachineId: big.NewInt(3367), Height: big.NewInt(400)},
		Proof:  [][]byte{[]byte("non-membership")},
	})
	require.NoError(t, err)
	require.Equal(t, expected, calldata)
}

func TestEncodeRequestMessage(t *testing.T) {
	client := newTestClient(t)
	signer := common.HexToAddress("0x00000000000000000000000000000000000000aa").Bytes()
	calldata, err := client.Encode(types.RequestMessage{
		Requests: []types.PostRequest{testRequest()},
		Proof:    types.Proof{Height: hubHeight(110), Proof: []byte("membership")},
		Signer:   signer,
	})
	require.NoError(t, err)
	require.Equal(t, handlerAbi.Methods[METHOD_HANDLE_POST_REQUESTS].ID, calldata[:4])

	expected, err := handlerAbi.Pack(METHOD_HANDLE_POST_REQUESTS, client.HostAddress, PostRequestMessageAbi{
		Proof: StateProofAbi{
			Height: StateMachineHeightAbi{StateMachineId: big.NewInt(3367), Height: big.NewInt(110)},
			Proof:  [][]byte{[]byte("membership")},
		},
		Requests: []PostRequestAbi{toPostRequestAbi(testRequest())},
		Signer:   signer,
	})
	require.NoError(t, err)
	require.Equal(t, expected, calldata)

	other, err := client.Encode(types.RequestMessage{
		Requests: []types.PostRequest{testRequest()},
		Proof:    types.Proof{Height: hubHeight(111), Proof: []byte("membership")},
		Signer:   signer,
	})
	require.NoError(t, err)
	require.NotEqual(t, calldata, other)
}

func TestEncodeErrors(t *testing.T) {
	client := newTestClient(t)

	_, err := client.Encode(unknownMessage{})
	require.ErrorIs(t, err, types.ErrEncodingFailure)

	_, err = client.Encode(types.TimeoutMessage{
		Requests: []types.PostRequest{testRequest()},
		TimeoutProof: types.Proof{Height: types.StateMachineHeight{
			Id: types.StateMachineId{StateId: types.StateMachine("HUB")},
		}},
	})
	require.ErrorIs(t, err, types.ErrEncodingFailure)
}
