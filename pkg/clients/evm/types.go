package evm

import (
	"math/big"
	"time"
)

const (
	COMPONENT_NAME = "EvmClient"

	DEFAULT_GAS_LIMIT        = 3000000
	DEFAULT_MAX_RETRIES      = 5
	DEFAULT_RETRY_INTERVAL   = time.Second
	DEFAULT_CACHE_TTL        = 10 * time.Minute
	DEFAULT_POLL_INTERVAL    = 12 * time.Second
	DEFAULT_LOG_RANGE        = 5000
	DEFAULT_COMMITMENTS_SLOT = 0
	DEFAULT_RECEIPTS_SLOT    = 1
	LOG_BUFFER_SIZE          = 64
)

// Abi mirrors of the host and handler tuples. Field names must match the
// camel cased component names for abi packing.

type StateMachineHeightAbi struct {
	StateMachineId *big.Int
	Height         *big.Int
}

type StateCommitmentAbi struct {
	Timestamp   *big.Int
	OverlayRoot [32]byte
	StateRoot   [32]byte
}

type PostRequestAbi struct {
	Source           []byte
	Dest             []byte
	Nonce            uint64
	From             []byte
	To               []byte
	TimeoutTimestamp uint64
	Body             []byte
}

type StateProofAbi struct {
	Height StateMachineHeightAbi
	Proof  [][]byte
}

type PostRequestMessageAbi struct {
	Proof    StateProofAbi
	Requests []PostRequestAbi
	Signer   []byte
}

type PostRequestTimeoutMessageAbi struct {
	Timeouts []PostRequestAbi
	Height   StateMachineHeightAbi
	Proof    [][]byte
}
