package types

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EventMetadata locates the chain event backing a status. The zero value means unknown.
type EventMetadata struct {
	BlockHash       common.Hash `json:"block_hash"`
	TransactionHash common.Hash `json:"transaction_hash"`
	BlockNumber     uint64      `json:"block_number"`
}

func (m EventMetadata) IsZero() bool {
	return m == EventMetadata{}
}

// MessageStatus is a milestone in the lifecycle of a request.
type MessageStatus int

const (
	StatusPending MessageStatus = iota
	StatusSourceFinalized
	StatusHyperbridgeVerified
	StatusHyperbridgeFinalized
	StatusDestinationDelivered
	StatusTimeout
)

var messageStatusNames = map[MessageStatus]string{
	StatusPending:              "Pending",
	StatusSourceFinalized:      "SourceFinalized",
	StatusHyperbridgeVerified:  "HyperbridgeVerified",
	StatusHyperbridgeFinalized: "HyperbridgeFinalized",
	StatusDestinationDelivered: "DestinationDelivered",
	StatusTimeout:              "Timeout",
}

func (s MessageStatus) String() string {
	if name, ok := messageStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("MessageStatus(%d)", int(s))
}

func ParseMessageStatus(name string) (MessageStatus, error) {
	for status, n := range messageStatusNames {
		if n == name {
			return status, nil
		}
	}
	return StatusPending, fmt.Errorf("unknown message status %q", name)
}

func (s MessageStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *MessageStatus) UnmarshalText(text []byte) error {
	status, err := ParseMessageStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// IsTerminal reports whether no further milestone can follow.
func (s MessageStatus) IsTerminal() bool {
	return s == StatusDestinationDelivered || s == StatusTimeout
}

// Supersedes reports whether moving from prev to s keeps the lifecycle monotonic.
// Timeout may replace any non terminal status.
func (s MessageStatus) Supersedes(prev MessageStatus) bool {
	if prev.IsTerminal() {
		return false
	}
	if s == StatusTimeout {
		return true
	}
	return s > prev
}

// MessageStatusWithMetadata is a milestone together with the data proving it.
type MessageStatusWithMetadata struct {
	Status          MessageStatus `json:"kind"`
	FinalizedHeight uint64        `json:"finalized_height,omitempty"`
	Meta            EventMetadata `json:"meta"`
	Calldata        hexutil.Bytes `json:"calldata,omitempty"`
}

func NewPending() MessageStatusWithMetadata {
	return MessageStatusWithMetadata{Status: StatusPending}
}

func NewSourceFinalized(finalizedHeight uint64, meta EventMetadata) MessageStatusWithMetadata {
	return MessageStatusWithMetadata{Status: StatusSourceFinalized, FinalizedHeight: finalizedHeight, Meta: meta}
}

func NewHyperbridgeVerified(meta EventMetadata) MessageStatusWithMetadata {
	return MessageStatusWithMetadata{Status: StatusHyperbridgeVerified, Meta: meta}
}

func NewHyperbridgeFinalized(finalizedHeight uint64, meta EventMetadata, calldata []byte) MessageStatusWithMetadata {
	return MessageStatusWithMetadata{Status: StatusHyperbridgeFinalized, FinalizedHeight: finalizedHeight, Meta: meta, Calldata: calldata}
}

func NewDestinationDelivered(meta EventMetadata) MessageStatusWithMetadata {
	return MessageStatusWithMetadata{Status: StatusDestinationDelivered, Meta: meta}
}

func NewTimeout() MessageStatusWithMetadata {
	return MessageStatusWithMetadata{Status: StatusTimeout}
}

func (s MessageStatusWithMetadata) String() string {
	switch s.Status {
	case StatusSourceFinalized, StatusHyperbridgeFinalized:
		return fmt.Sprintf("%s(%d)", s.Status, s.FinalizedHeight)
	default:
		return s.Status.String()
	}
}

// StreamStateKind is the resumable position of a status stream.
type StreamStateKind int

const (
	StreamDispatched StreamStateKind = iota
	StreamSourceFinalized
	StreamHyperbridgeVerified
	StreamHyperbridgeFinalized
	StreamDestinationDelivered
	StreamEnd
)

var streamStateNames = map[StreamStateKind]string{
	StreamDispatched:           "Dispatched",
	StreamSourceFinalized:      "SourceFinalized",
	StreamHyperbridgeVerified:  "HyperbridgeVerified",
	StreamHyperbridgeFinalized: "HyperbridgeFinalized",
	StreamDestinationDelivered: "DestinationDelivered",
	StreamEnd:                  "End",
}

func (k StreamStateKind) String() string {
	if name, ok := streamStateNames[k]; ok {
		return name
	}
	return fmt.Sprintf("StreamStateKind(%d)", int(k))
}

func (k StreamStateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *StreamStateKind) UnmarshalText(text []byte) error {
	for kind, name := range streamStateNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown stream state %q", string(text))
}

// MessageStatusStreamState is where a status stream starts or resumes.
// Dispatched carries a source height, SourceFinalized a hyperbridge height,
// HyperbridgeVerified a hyperbridge height and HyperbridgeFinalized a destination height.
type MessageStatusStreamState struct {
	Kind   StreamStateKind `json:"kind"`
	Height uint64          `json:"height,omitempty"`
}

func Dispatched(height uint64) MessageStatusStreamState {
	return MessageStatusStreamState{Kind: StreamDispatched, Height: height}
}

func SourceFinalizedState(height uint64) MessageStatusStreamState {
	return MessageStatusStreamState{Kind: StreamSourceFinalized, Height: height}
}

func HyperbridgeVerifiedState(height uint64) MessageStatusStreamState {
	return MessageStatusStreamState{Kind: StreamHyperbridgeVerified, Height: height}
}

func HyperbridgeFinalizedState(height uint64) MessageStatusStreamState {
	return MessageStatusStreamState{Kind: StreamHyperbridgeFinalized, Height: height}
}

func DestinationDeliveredState() MessageStatusStreamState {
	return MessageStatusStreamState{Kind: StreamDestinationDelivered}
}

func EndState() MessageStatusStreamState {
	return MessageStatusStreamState{Kind: StreamEnd}
}

func (s MessageStatusStreamState) IsFinished() bool {
	return s.Kind == StreamDestinationDelivered || s.Kind == StreamEnd
}

func (s MessageStatusStreamState) String() string {
	if s.IsFinished() {
		return s.Kind.String()
	}
	return fmt.Sprintf("%s(%d)", s.Kind, s.Height)
}

// StatusUpdate is one item of a status stream: either a status or the final error.
// Next is the state to resume from after Status.
type StatusUpdate struct {
	Status *MessageStatusWithMetadata `json:"status,omitempty"`
	Next   MessageStatusStreamState   `json:"next"`
	Err    error                      `json:"-"`
}

func (u StatusUpdate) MarshalJSON() ([]byte, error) {
	type update struct {
		Status *MessageStatusWithMetadata `json:"status,omitempty"`
		Next   MessageStatusStreamState   `json:"next"`
		Error  string                     `json:"error,omitempty"`
	}
	out := update{Status: u.Status, Next: u.Next}
	if u.Err != nil {
		out.Error = u.Err.Error()
	}
	return json.Marshal(out)
}
