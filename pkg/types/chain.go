package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ChainFamily selects family specific behaviour of a chain client.
type ChainFamily int

const (
	ChainFamilyUnknown ChainFamily = iota
	ChainFamilyEvm
	ChainFamilySubstrate
)

func (f ChainFamily) String() string {
	switch f {
	case ChainFamilyEvm:
		return "evm"
	case ChainFamilySubstrate:
		return "substrate"
	default:
		return "unknown"
	}
}

// RequiresDestinationTimeoutProof reports whether a request that never reached
// its destination must still be timed out on hyperbridge with a proof of the
// destination's state before the source accepts the timeout.
// EVM sources accept a proof of hyperbridge's state alone.
func (f ChainFamily) RequiresDestinationTimeoutProof() bool {
	return f != ChainFamilyEvm
}

const (
	STATE_MACHINE_EVM       = "EVM"
	STATE_MACHINE_POLKADOT  = "POLKADOT"
	STATE_MACHINE_KUSAMA    = "KUSAMA"
	STATE_MACHINE_SUBSTRATE = "SUBSTRATE"
)

// StateMachine is the textual identifier of a state machine, e.g. "EVM-97" or "POLKADOT-3367".
type StateMachine string

func EvmStateMachine(chainID uint64) StateMachine {
	return StateMachine(fmt.Sprintf("%s-%d", STATE_MACHINE_EVM, chainID))
}

func PolkadotStateMachine(paraID uint64) StateMachine {
	return StateMachine(fmt.Sprintf("%s-%d", STATE_MACHINE_POLKADOT, paraID))
}

func KusamaStateMachine(paraID uint64) StateMachine {
	return StateMachine(fmt.Sprintf("%s-%d", STATE_MACHINE_KUSAMA, paraID))
}

func (s StateMachine) String() string {
	return string(s)
}

func (s StateMachine) split() (string, string) {
	prefix, suffix, _ := strings.Cut(string(s), "-")
	return strings.ToUpper(prefix), suffix
}

func (s StateMachine) Family() ChainFamily {
	prefix, _ := s.split()
	switch prefix {
	case STATE_MACHINE_EVM:
		return ChainFamilyEvm
	case STATE_MACHINE_POLKADOT, STATE_MACHINE_KUSAMA, STATE_MACHINE_SUBSTRATE:
		return ChainFamilySubstrate
	default:
		return ChainFamilyUnknown
	}
}

// NumericID returns the chain id or para id carried by the identifier.
func (s StateMachine) NumericID() (uint64, error) {
	prefix, suffix := s.split()
	if prefix == STATE_MACHINE_SUBSTRATE {
		return 0, fmt.Errorf("state machine %s has no numeric id", s)
	}
	id, err := strconv.ParseUint(suffix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse state machine %s: %w", s, err)
	}
	return id, nil
}

func (s StateMachine) Validate() error {
	if s.Family() == ChainFamilyUnknown {
		return fmt.Errorf("unknown state machine %q", string(s))
	}
	if s.Family() == ChainFamilyEvm {
		if _, err := s.NumericID(); err != nil {
			return err
		}
	}
	return nil
}

// ConsensusStateId identifies the consensus client tracking a state machine.
type ConsensusStateId [4]byte

func ConsensusStateIdFromString(id string) (ConsensusStateId, error) {
	var out ConsensusStateId
	if len(id) != len(out) {
		return out, fmt.Errorf("consensus state id %q must be %d bytes", id, len(out))
	}
	copy(out[:], id)
	return out, nil
}

func (c ConsensusStateId) String() string {
	for _, b := range c {
		if b < 0x20 || b > 0x7e {
			return "0x" + hex.EncodeToString(c[:])
		}
	}
	return string(c[:])
}

func (c ConsensusStateId) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ConsensusStateId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if strings.HasPrefix(s, "0x") {
		raw, err := hex.DecodeString(s[2:])
		if err != nil {
			return err
		}
		if len(raw) != len(c) {
			return fmt.Errorf("consensus state id %q must be %d bytes", s, len(c))
		}
		copy(c[:], raw)
		return nil
	}
	id, err := ConsensusStateIdFromString(s)
	if err != nil {
		return err
	}
	*c = id
	return nil
}

// StateMachineId is the identity of a chain as seen by ISMP.
type StateMachineId struct {
	StateId          StateMachine     `json:"state_id"`
	ConsensusStateId ConsensusStateId `json:"consensus_state_id"`
}

func (id StateMachineId) String() string {
	return fmt.Sprintf("%s/%s", id.StateId, id.ConsensusStateId)
}

// StateMachineHeight is a height on a specific state machine.
type StateMachineHeight struct {
	Id     StateMachineId `json:"id"`
	Height uint64         `json:"height"`
}
