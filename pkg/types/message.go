package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// StateCommitment is a finalized commitment of a state machine at some height.
type StateCommitment struct {
	Timestamp   uint64       `json:"timestamp"`
	OverlayRoot *common.Hash `json:"overlay_root,omitempty"`
	StateRoot   common.Hash  `json:"state_root"`
}

// Proof is an opaque state proof at a state machine height.
type Proof struct {
	Height StateMachineHeight `json:"height"`
	Proof  []byte             `json:"proof"`
}

type MessageKind int

const (
	MessageKindRequest MessageKind = iota
	MessageKindTimeout
)

// Message is an ISMP message a chain can encode or submit.
type Message interface {
	Kind() MessageKind
}

// RequestMessage delivers requests proven against the state of their router.
type RequestMessage struct {
	Requests []PostRequest `json:"requests"`
	Proof    Proof         `json:"proof"`
	Signer   []byte        `json:"signer"`
}

func (RequestMessage) Kind() MessageKind {
	return MessageKindRequest
}

// TimeoutMessage times out requests with a proof that their receipt is absent.
type TimeoutMessage struct {
	Requests     []PostRequest `json:"requests"`
	TimeoutProof Proof         `json:"timeout_proof"`
}

func (TimeoutMessage) Kind() MessageKind {
	return MessageKindTimeout
}
