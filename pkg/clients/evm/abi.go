package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

const (
	EVENT_POST_REQUEST                 = "PostRequestEvent"
	EVENT_POST_REQUEST_HANDLED         = "PostRequestHandled"
	EVENT_POST_REQUEST_TIMEOUT_HANDLED = "PostRequestTimeoutHandled"
	EVENT_STATE_MACHINE_UPDATED        = "StateMachineUpdated"

	METHOD_REQUEST_RECEIPTS                     = "requestReceipts"
	METHOD_LATEST_STATE_MACHINE_HEIGHT          = "latestStateMachineHeight"
	METHOD_STATE_MACHINE_COMMITMENT             = "stateMachineCommitment"
	METHOD_STATE_MACHINE_COMMITMENT_UPDATE_TIME = "stateMachineCommitmentUpdateTime"
	METHOD_CHALLENGE_PERIOD                     = "challengePeriod"
	METHOD_HANDLE_POST_REQUESTS                 = "handlePostRequests"
	METHOD_HANDLE_POST_REQUEST_TIMEOUTS         = "handlePostRequestTimeouts"
)

const hostAbiJson = `[
	{"type":"function","name":"requestReceipts","stateMutability":"view",
		"inputs":[{"name":"commitment","type":"bytes32"}],
		"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"latestStateMachineHeight","stateMutability":"view",
		"inputs":[{"name":"id","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"stateMachineCommitment","stateMutability":"view",
		"inputs":[{"name":"height","type":"tuple","components":[
			{"name":"stateMachineId","type":"uint256"},
			{"name":"height","type":"uint256"}]}],
		"outputs":[{"name":"","type":"tuple","components":[
			{"name":"timestamp","type":"uint256"},
			{"name":"overlayRoot","type":"bytes32"},
			{"name":"stateRoot","type":"bytes32"}]}]},
	{"type":"function","name":"stateMachineCommitmentUpdateTime","stateMutability":"view",
		"inputs":[{"name":"height","type":"tuple","components":[
			{"name":"stateMachineId","type":"uint256"},
			{"name":"height","type":"uint256"}]}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"challengePeriod","stateMutability":"view",
		"inputs":[],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"PostRequestEvent","anonymous":false,"inputs":[
		{"indexed":false,"name":"source","type":"string"},
		{"indexed":false,"name":"dest","type":"string"},
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":false,"name":"to","type":"bytes"},
		{"indexed":false,"name":"nonce","type":"uint256"},
		{"indexed":false,"name":"timeoutTimestamp","type":"uint256"},
		{"indexed":false,"name":"body","type":"bytes"},
		{"indexed":false,"name":"fee","type":"uint256"}]},
	{"type":"event","name":"PostRequestHandled","anonymous":false,"inputs":[
		{"indexed":true,"name":"commitment","type":"bytes32"},
		{"indexed":false,"name":"relayer","type":"address"}]},
	{"type":"event","name":"PostRequestTimeoutHandled","anonymous":false,"inputs":[
		{"indexed":true,"name":"commitment","type":"bytes32"},
		{"indexed":false,"name":"dest","type":"string"}]},
	{"type":"event","name":"StateMachineUpdated","anonymous":false,"inputs":[
		{"indexed":false,"name":"stateMachineId","type":"string"},
		{"indexed":false,"name":"height","type":"uint256"}]}
]`

const handlerAbiJson = `[
	{"type":"function","name":"handlePostRequests","stateMutability":"nonpayable","outputs":[],
		"inputs":[
			{"name":"host","type":"address"},
			{"name":"message","type":"tuple","components":[
				{"name":"proof","type":"tuple","components":[
					{"name":"height","type":"tuple","components":[
						{"name":"stateMachineId","type":"uint256"},
						{"name":"height","type":"uint256"}]},
					{"name":"proof","type":"bytes[]"}]},
				{"name":"requests","type":"tuple[]","components":[
					{"name":"source","type":"bytes"},
					{"name":"dest","type":"bytes"},
					{"name":"nonce","type":"uint64"},
					{"name":"from","type":"bytes"},
					{"name":"to","type":"bytes"},
					{"name":"timeoutTimestamp","type":"uint64"},
					{"name":"body","type":"bytes"}]},
				{"name":"signer","type":"bytes"}]}]},
	{"type":"function","name":"handlePostRequestTimeouts","stateMutability":"nonpayable","outputs":[],
		"inputs":[
			{"name":"host","type":"address"},
			{"name":"message","type":"tuple","components":[
				{"name":"timeouts","type":"tuple[]","components":[
					{"name":"source","type":"bytes"},
					{"name":"dest","type":"bytes"},
					{"name":"nonce","type":"uint64"},
					{"name":"from","type":"bytes"},
					{"name":"to","type":"bytes"},
					{"name":"timeoutTimestamp","type":"uint64"},
					{"name":"body","type":"bytes"}]},
				{"name":"height","type":"tuple","components":[
					{"name":"stateMachineId","type":"uint256"},
					{"name":"height","type":"uint256"}]},
				{"name":"proof","type":"bytes[]"}]}]}
]`

var (
	hostAbi    *abi.ABI
	handlerAbi *abi.ABI

	// (bytes[] accountProof, bytes[][] storageProofs)
	proofArguments abi.Arguments
)

var eventNamesByTopic = map[common.Hash]string{}

func init() {
	var err error
	hostAbi, err = parseAbi(hostAbiJson)
	if err != nil {
		log.Fatal().Err(err).Msg("[EvmClient] failed to parse host abi")
	}
	handlerAbi, err = parseAbi(handlerAbiJson)
	if err != nil {
		log.Fatal().Err(err).Msg("[EvmClient] failed to parse handler abi")
	}
	for name, event := range hostAbi.Events {
		eventNamesByTopic[event.ID] = name
	}
	proofArguments, err = newArguments("bytes[]", "bytes[][]")
	if err != nil {
		log.Fatal().Err(err).Msg("[EvmClient] failed to create proof arguments")
	}
}

func newArguments(types ...string) (abi.Arguments, error) {
	var arguments abi.Arguments
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create type %s: %w", t, err)
		}
		arguments = append(arguments, abi.Argument{Type: typ})
	}
	return arguments, nil
}

func parseAbi(definition string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// GetHostAbi returns the subset of the ISMP host interface the client uses.
func GetHostAbi() *abi.ABI {
	return hostAbi
}

func GetHandlerAbi() *abi.ABI {
	return handlerAbi
}
