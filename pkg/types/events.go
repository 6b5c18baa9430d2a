package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// WithMetadata pairs a chain event with where it was observed.
type WithMetadata[T any] struct {
	Event T             `json:"event"`
	Meta  EventMetadata `json:"meta"`
}

// StateMachineUpdated is emitted when a chain finalizes a new height of another state machine.
type StateMachineUpdated struct {
	StateMachineId StateMachineId `json:"state_machine_id"`
	LatestHeight   uint64         `json:"latest_height"`
}

// RequestHandled is emitted when a chain accepts a request and writes its receipt.
type RequestHandled struct {
	Commitment common.Hash    `json:"commitment"`
	Relayer    RelayerAddress `json:"relayer"`
}

type EventKind int

const (
	EventPostRequest EventKind = iota
	EventPostRequestHandled
	EventPostRequestTimeoutHandled
	EventStateMachineUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventPostRequest:
		return "PostRequest"
	case EventPostRequestHandled:
		return "PostRequestHandled"
	case EventPostRequestTimeoutHandled:
		return "PostRequestTimeoutHandled"
	case EventStateMachineUpdated:
		return "StateMachineUpdated"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is an ISMP event emitted by a host. Only the fields of its Kind are set.
type Event struct {
	Kind                EventKind            `json:"kind"`
	Request             *PostRequest         `json:"request,omitempty"`
	Commitment          common.Hash          `json:"commitment"`
	Relayer             RelayerAddress       `json:"relayer,omitempty"`
	StateMachineUpdated *StateMachineUpdated `json:"state_machine_updated,omitempty"`
}

// RequestCommitment returns the commitment of the request the event refers to, if any.
func (e *Event) RequestCommitment() (common.Hash, bool) {
	switch e.Kind {
	case EventPostRequest:
		if e.Request == nil {
			return common.Hash{}, false
		}
		return e.Request.Commitment(), true
	case EventPostRequestHandled, EventPostRequestTimeoutHandled:
		return e.Commitment, true
	default:
		return common.Hash{}, false
	}
}

// StatusEnvelope carries a status change of a tracked request on the event bus.
type StatusEnvelope struct {
	Commitment common.Hash    `json:"commitment"`
	Source     StateMachine   `json:"source"`
	Dest       StateMachine   `json:"dest"`
	Update     *StatusUpdate  `json:"update,omitempty"`
	Timeout    *TimeoutUpdate `json:"timeout,omitempty"`
}
