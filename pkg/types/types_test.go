package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func testRequest() PostRequest {
	return PostRequest{
		Source:           EvmStateMachine(97),
		Dest:             EvmStateMachine(11155111),
		Nonce:            7,
		From:             []byte{0xaa, 0xbb},
		To:               []byte{0xcc},
		TimeoutTimestamp: 1000,
		Body:             []byte("hello"),
	}
}

func TestPostRequestCommitment(t *testing.T) {
	req := testRequest()
	expected := crypto.Keccak256Hash(
		[]byte("EVM-97"),
		[]byte("EVM-11155111"),
		[]byte{0, 0, 0, 0, 0, 0, 0, 7},
		[]byte{0, 0, 0, 0, 0, 0, 0x03, 0xe8},
		[]byte{0xaa, 0xbb},
		[]byte{0xcc},
		[]byte("hello"),
	)
	require.Equal(t, expected, req.Commitment())

	t.Run("every_field_is_committed", func(t *testing.T) {
		base := req.Commitment()
		mutations := []func(*PostRequest){
			func(p *PostRequest) { p.Source = EvmStateMachine(1) },
			func(p *PostRequest) { p.Dest = PolkadotStateMachine(3367) },
			func(p *PostRequest) { p.Nonce++ },
			func(p *PostRequest) { p.From = []byte{0x01} },
			func(p *PostRequest) { p.To = []byte{0x02} },
			func(p *PostRequest) { p.TimeoutTimestamp++ },
			func(p *PostRequest) { p.Body = nil },
		}
		for i, mutate := range mutations {
			changed := testRequest()
			mutate(&changed)
			require.NotEqual(t, base, changed.Commitment(), "mutation %d", i)
		}
	})
}

func TestPostRequestTimeout(t *testing.T) {
	req := testRequest()
	require.Equal(t, 1000*time.Second, req.Timeout())
	require.True(t, req.TimedOut(1000*time.Second))
	require.False(t, req.TimedOut(999*time.Second))

	req.TimeoutTimestamp = 0
	require.Equal(t, time.Duration(math.MaxInt64), req.Timeout())
	require.False(t, req.TimedOut(time.Duration(math.MaxInt64-1)))

	req.TimeoutTimestamp = math.MaxUint64
	require.Equal(t, time.Duration(math.MaxInt64), req.Timeout())
}

func TestStateMachine(t *testing.T) {
	tests := []struct {
		name   string
		input  StateMachine
		family ChainFamily
		id     uint64
		hasId  bool
	}{
		{"evm", "EVM-97", ChainFamilyEvm, 97, true},
		{"polkadot", "POLKADOT-3367", ChainFamilySubstrate, 3367, true},
		{"kusama", "KUSAMA-4009", ChainFamilySubstrate, 4009, true},
		{"substrate", "SUBSTRATE-cere", ChainFamilySubstrate, 0, false},
		{"unknown", "TENDERMINT-x", ChainFamilyUnknown, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.family, tt.input.Family())
			id, err := tt.input.NumericID()
			if tt.hasId {
				require.NoError(t, err)
				require.Equal(t, tt.id, id)
			} else {
				require.Error(t, err)
			}
		})
	}
	require.False(t, ChainFamilyEvm.RequiresDestinationTimeoutProof())
	require.True(t, ChainFamilySubstrate.RequiresDestinationTimeoutProof())
}

func TestPostRequestValidate(t *testing.T) {
	req := testRequest()
	require.NoError(t, req.Validate())
	req.Dest = req.Source
	require.Error(t, req.Validate())
	req.Dest = "FOO-1"
	require.Error(t, req.Validate())
}

func TestConsensusStateIdJSON(t *testing.T) {
	id, err := ConsensusStateIdFromString("BSC0")
	require.NoError(t, err)
	data, err := json.Marshal(StateMachineId{StateId: EvmStateMachine(97), ConsensusStateId: id})
	require.NoError(t, err)
	require.JSONEq(t, `{"state_id":"EVM-97","consensus_state_id":"BSC0"}`, string(data))

	var decoded StateMachineId
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, id, decoded.ConsensusStateId)

	require.NoError(t, json.Unmarshal([]byte(`{"state_id":"EVM-1","consensus_state_id":"0x00010203"}`), &decoded))
	require.Equal(t, ConsensusStateId{0, 1, 2, 3}, decoded.ConsensusStateId)
	require.Equal(t, "0x00010203", decoded.ConsensusStateId.String())

	_, err = ConsensusStateIdFromString("TOOLONG")
	require.Error(t, err)
}

func TestMessageStatusSupersedes(t *testing.T) {
	require.True(t, StatusSourceFinalized.Supersedes(StatusPending))
	require.True(t, StatusDestinationDelivered.Supersedes(StatusHyperbridgeVerified))
	require.False(t, StatusSourceFinalized.Supersedes(StatusHyperbridgeVerified))
	require.True(t, StatusTimeout.Supersedes(StatusHyperbridgeFinalized))
	require.False(t, StatusTimeout.Supersedes(StatusDestinationDelivered))
	require.False(t, StatusHyperbridgeVerified.Supersedes(StatusTimeout))
}

func TestStatusJSON(t *testing.T) {
	status := NewSourceFinalized(42, EventMetadata{BlockNumber: 7})
	data, err := json.Marshal(status)
	require.NoError(t, err)

	var decoded MessageStatusWithMetadata
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, status, decoded)
	require.Contains(t, string(data), `"kind":"SourceFinalized"`)

	update := StatusUpdate{Next: SourceFinalizedState(42), Err: errors.New("boom")}
	data, err = json.Marshal(update)
	require.NoError(t, err)
	require.JSONEq(t, `{"next":{"kind":"SourceFinalized","height":42},"error":"boom"}`, string(data))
}

func TestErrors(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewRpcError("eth_call", cause)
	require.ErrorIs(t, err, ErrRpcFailure)
	require.ErrorIs(t, err, cause)
	require.Nil(t, NewRpcError("eth_call", nil))

	streamErr := fmt.Errorf("wrapped: %w", &StreamError{State: "Dispatched(1)", Err: err})
	var target *StreamError
	require.ErrorAs(t, streamErr, &target)
	require.Equal(t, "Dispatched(1)", target.State)
	require.ErrorIs(t, streamErr, ErrRpcFailure)
}

func TestRelayerAddress(t *testing.T) {
	require.True(t, RelayerAddress(nil).IsZero())
	require.True(t, RelayerAddress(make([]byte, 20)).IsZero())
	require.False(t, RelayerAddress([]byte{0, 1}).IsZero())
}
