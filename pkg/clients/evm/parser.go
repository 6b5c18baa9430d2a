package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

// IsmpEventTopics are the topic0 values of every host event the client understands.
func IsmpEventTopics() []common.Hash {
	return []common.Hash{
		hostAbi.Events[EVENT_POST_REQUEST].ID,
		hostAbi.Events[EVENT_POST_REQUEST_HANDLED].ID,
		hostAbi.Events[EVENT_POST_REQUEST_TIMEOUT_HANDLED].ID,
		hostAbi.Events[EVENT_STATE_MACHINE_UPDATED].ID,
	}
}

func eventTopic(eventName string) common.Hash {
	return hostAbi.Events[eventName].ID
}

func metadataFromLog(receiptLog *ethtypes.Log) types.EventMetadata {
	return types.EventMetadata{
		BlockHash:       receiptLog.BlockHash,
		TransactionHash: receiptLog.TxHash,
		BlockNumber:     receiptLog.BlockNumber,
	}
}

// unpackLog decodes both the data and the indexed topics of a host event into a map keyed by argument name.
func unpackLog(receiptLog *ethtypes.Log, eventName string) (map[string]interface{}, error) {
	event, ok := hostAbi.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("event %s not found", eventName)
	}
	if len(receiptLog.Topics) == 0 || event.ID != receiptLog.Topics[0] {
		return nil, fmt.Errorf("receipt log topic 0 does not match %s event id", eventName)
	}
	values := map[string]interface{}{}
	if err := hostAbi.UnpackIntoMap(values, eventName, receiptLog.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack event %s: %w", eventName, err)
	}
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, receiptLog.Topics[1:]); err != nil {
		return nil, fmt.Errorf("failed to parse topics of %s: %w", eventName, err)
	}
	return values, nil
}

func field[T any](values map[string]interface{}, name string) (T, error) {
	value, ok := values[name].(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected type %T for field %s", values[name], name)
	}
	return value, nil
}

// ParseIsmpLog converts a host log into an ISMP event.
func ParseIsmpLog(receiptLog *ethtypes.Log) (types.WithMetadata[types.Event], error) {
	result := types.WithMetadata[types.Event]{Meta: metadataFromLog(receiptLog)}
	if len(receiptLog.Topics) == 0 {
		return result, fmt.Errorf("anonymous log at %s", receiptLog.TxHash.Hex())
	}
	eventName, ok := eventNamesByTopic[receiptLog.Topics[0]]
	if !ok {
		return result, fmt.Errorf("unknown event topic %s", receiptLog.Topics[0].Hex())
	}
	values, err := unpackLog(receiptLog, eventName)
	if err != nil {
		return result, err
	}
	switch eventName {
	case EVENT_POST_REQUEST:
		request, err := parsePostRequest(values)
		if err != nil {
			return result, err
		}
		result.Event = types.Event{Kind: types.EventPostRequest, Request: request}
	case EVENT_POST_REQUEST_HANDLED:
		handled, err := parseRequestHandled(values)
		if err != nil {
			return result, err
		}
		result.Event = types.Event{Kind: types.EventPostRequestHandled, Commitment: handled.Commitment, Relayer: handled.Relayer}
	case EVENT_POST_REQUEST_TIMEOUT_HANDLED:
		commitment, err := field[[32]byte](values, "commitment")
		if err != nil {
			return result, err
		}
		result.Event = types.Event{Kind: types.EventPostRequestTimeoutHandled, Commitment: commitment}
	case EVENT_STATE_MACHINE_UPDATED:
		updated, err := parseStateMachineUpdated(values)
		if err != nil {
			return result, err
		}
		result.Event = types.Event{Kind: types.EventStateMachineUpdated, StateMachineUpdated: &updated}
	}
	return result, nil
}

func parsePostRequest(values map[string]interface{}) (*types.PostRequest, error) {
	source, err := field[string](values, "source")
	if err != nil {
		return nil, err
	}
	dest, err := field[string](values, "dest")
	if err != nil {
		return nil, err
	}
	from, err := field[common.Address](values, "from")
	if err != nil {
		return nil, err
	}
	to, err := field[[]byte](values, "to")
	if err != nil {
		return nil, err
	}
	nonce, err := field[*big.Int](values, "nonce")
	if err != nil {
		return nil, err
	}
	timeout, err := field[*big.Int](values, "timeoutTimestamp")
	if err != nil {
		return nil, err
	}
	body, err := field[[]byte](values, "body")
	if err != nil {
		return nil, err
	}
	return &types.PostRequest{
		Source:           types.StateMachine(source),
		Dest:             types.StateMachine(dest),
		Nonce:            nonce.Uint64(),
		From:             from.Bytes(),
		To:               to,
		TimeoutTimestamp: timeout.Uint64(),
		Body:             body,
	}, nil
}

func parseRequestHandled(values map[string]interface{}) (types.RequestHandled, error) {
	commitment, err := field[[32]byte](values, "commitment")
	if err != nil {
		return types.RequestHandled{}, err
	}
	relayer, err := field[common.Address](values, "relayer")
	if err != nil {
		return types.RequestHandled{}, err
	}
	return types.RequestHandled{Commitment: commitment, Relayer: relayer.Bytes()}, nil
}

func parseStateMachineUpdated(values map[string]interface{}) (types.StateMachineUpdated, error) {
	id, err := field[string](values, "stateMachineId")
	if err != nil {
		return types.StateMachineUpdated{}, err
	}
	height, err := field[*big.Int](values, "height")
	if err != nil {
		return types.StateMachineUpdated{}, err
	}
	return types.StateMachineUpdated{
		StateMachineId: types.StateMachineId{StateId: types.StateMachine(id)},
		LatestHeight:   height.Uint64(),
	}, nil
}

// ParseRequestHandledLog converts a PostRequestHandled log.
func ParseRequestHandledLog(receiptLog *ethtypes.Log) (types.WithMetadata[types.RequestHandled], error) {
	values, err := unpackLog(receiptLog, EVENT_POST_REQUEST_HANDLED)
	if err != nil {
		return types.WithMetadata[types.RequestHandled]{}, err
	}
	handled, err := parseRequestHandled(values)
	if err != nil {
		return types.WithMetadata[types.RequestHandled]{}, err
	}
	return types.WithMetadata[types.RequestHandled]{Event: handled, Meta: metadataFromLog(receiptLog)}, nil
}

// ParseStateMachineUpdatedLog converts a StateMachineUpdated log.
func ParseStateMachineUpdatedLog(receiptLog *ethtypes.Log) (types.WithMetadata[types.StateMachineUpdated], error) {
	values, err := unpackLog(receiptLog, EVENT_STATE_MACHINE_UPDATED)
	if err != nil {
		return types.WithMetadata[types.StateMachineUpdated]{}, err
	}
	updated, err := parseStateMachineUpdated(values)
	if err != nil {
		return types.WithMetadata[types.StateMachineUpdated]{}, err
	}
	return types.WithMetadata[types.StateMachineUpdated]{Event: updated, Meta: metadataFromLog(receiptLog)}, nil
}
