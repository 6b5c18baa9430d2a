package types

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TimeoutStatusKind is a milestone in timing out a request.
type TimeoutStatusKind int

const (
	TimeoutDestinationFinalized TimeoutStatusKind = iota
	TimeoutHyperbridgeVerified
	TimeoutHyperbridgeFinalized
)

var timeoutStatusNames = map[TimeoutStatusKind]string{
	TimeoutDestinationFinalized: "DestinationFinalized",
	TimeoutHyperbridgeVerified:  "HyperbridgeVerified",
	TimeoutHyperbridgeFinalized: "HyperbridgeFinalized",
}

func (k TimeoutStatusKind) String() string {
	if name, ok := timeoutStatusNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TimeoutStatusKind(%d)", int(k))
}

func (k TimeoutStatusKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *TimeoutStatusKind) UnmarshalText(text []byte) error {
	for kind, name := range timeoutStatusNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown timeout status %q", string(text))
}

// TimeoutStatus is a timeout milestone. Calldata is set on HyperbridgeFinalized
// and must be submitted to the source chain by the caller.
type TimeoutStatus struct {
	Status          TimeoutStatusKind `json:"kind"`
	FinalizedHeight uint64            `json:"finalized_height,omitempty"`
	Meta            EventMetadata     `json:"meta"`
	Calldata        hexutil.Bytes     `json:"calldata,omitempty"`
}

func NewDestinationFinalizedTimeout(finalizedHeight uint64, meta EventMetadata) TimeoutStatus {
	return TimeoutStatus{Status: TimeoutDestinationFinalized, FinalizedHeight: finalizedHeight, Meta: meta}
}

func NewHyperbridgeVerifiedTimeout(meta EventMetadata) TimeoutStatus {
	return TimeoutStatus{Status: TimeoutHyperbridgeVerified, Meta: meta}
}

func NewHyperbridgeFinalizedTimeout(finalizedHeight uint64, meta EventMetadata, calldata []byte) TimeoutStatus {
	return TimeoutStatus{Status: TimeoutHyperbridgeFinalized, FinalizedHeight: finalizedHeight, Meta: meta, Calldata: calldata}
}

func (s TimeoutStatus) String() string {
	if s.Status == TimeoutHyperbridgeVerified {
		return s.Status.String()
	}
	return fmt.Sprintf("%s(%d)", s.Status, s.FinalizedHeight)
}

type TimeoutStreamStateKind int

const (
	TimeoutStreamPending TimeoutStreamStateKind = iota
	TimeoutStreamDestinationFinalized
	TimeoutStreamHyperbridgeVerified
	TimeoutStreamEnd
)

var timeoutStreamStateNames = map[TimeoutStreamStateKind]string{
	TimeoutStreamPending:              "Pending",
	TimeoutStreamDestinationFinalized: "DestinationFinalized",
	TimeoutStreamHyperbridgeVerified:  "HyperbridgeVerified",
	TimeoutStreamEnd:                  "End",
}

func (k TimeoutStreamStateKind) String() string {
	if name, ok := timeoutStreamStateNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TimeoutStreamStateKind(%d)", int(k))
}

func (k TimeoutStreamStateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *TimeoutStreamStateKind) UnmarshalText(text []byte) error {
	for kind, name := range timeoutStreamStateNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown timeout stream state %q", string(text))
}

// TimeoutStreamState is where a timeout stream starts or resumes.
// DestinationFinalized carries a destination height, HyperbridgeVerified a hyperbridge height.
type TimeoutStreamState struct {
	Kind   TimeoutStreamStateKind `json:"kind"`
	Height uint64                 `json:"height,omitempty"`
}

func TimeoutPendingState() TimeoutStreamState {
	return TimeoutStreamState{Kind: TimeoutStreamPending}
}

func DestinationFinalizedTimeoutState(height uint64) TimeoutStreamState {
	return TimeoutStreamState{Kind: TimeoutStreamDestinationFinalized, Height: height}
}

func HyperbridgeVerifiedTimeoutState(height uint64) TimeoutStreamState {
	return TimeoutStreamState{Kind: TimeoutStreamHyperbridgeVerified, Height: height}
}

func TimeoutEndState() TimeoutStreamState {
	return TimeoutStreamState{Kind: TimeoutStreamEnd}
}

func (s TimeoutStreamState) String() string {
	switch s.Kind {
	case TimeoutStreamPending, TimeoutStreamEnd:
		return s.Kind.String()
	default:
		return fmt.Sprintf("%s(%d)", s.Kind, s.Height)
	}
}

type TimeoutUpdate struct {
	Status *TimeoutStatus     `json:"status,omitempty"`
	Next   TimeoutStreamState `json:"next"`
	Err    error              `json:"-"`
}

func (u TimeoutUpdate) MarshalJSON() ([]byte, error) {
	type update struct {
		Status *TimeoutStatus     `json:"status,omitempty"`
		Next   TimeoutStreamState `json:"next"`
		Error  string             `json:"error,omitempty"`
	}
	out := update{Status: u.Status, Next: u.Next}
	if u.Err != nil {
		out.Error = u.Err.Error()
	}
	return json.Marshal(out)
}
