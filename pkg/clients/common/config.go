package common

import (
	"fmt"
	"time"

	"github.com/scalarorg/ismp-relayer/pkg/types"
)

// ChainConfig describes how to reach the ISMP host of one chain.
type ChainConfig struct {
	StateMachine     types.StateMachine `mapstructure:"state_machine" json:"state_machine" validate:"required"`
	ConsensusStateId string             `mapstructure:"consensus_state_id" json:"consensus_state_id" validate:"required,len=4"`
	RPCUrl           string             `mapstructure:"rpc_url" json:"rpc_url" validate:"required"`
	HostAddress      string             `mapstructure:"host_address" json:"host_address"`
	HandlerAddress   string             `mapstructure:"handler_address" json:"handler_address"`
	PrivateKey       string             `mapstructure:"private_key" json:"-"`
	GasLimit         uint64             `mapstructure:"gas_limit" json:"gas_limit"`
	ReceiptsSlot     uint64             `mapstructure:"receipts_slot" json:"receipts_slot"`
	CommitmentsSlot  uint64             `mapstructure:"commitments_slot" json:"commitments_slot"`
	MaxRetries       uint64             `mapstructure:"max_retries" json:"max_retries"`
	RetryInterval    time.Duration      `mapstructure:"retry_interval" json:"retry_interval"`
	CacheTTL         time.Duration      `mapstructure:"cache_ttl" json:"cache_ttl"`
	PollInterval     time.Duration      `mapstructure:"poll_interval" json:"poll_interval"` //Log polling interval when the rpc has no subscriptions
	LogRange         uint64             `mapstructure:"log_range" json:"log_range"`         //Max block range of a single log query
}

func (c *ChainConfig) StateMachineId() (types.StateMachineId, error) {
	if err := c.StateMachine.Validate(); err != nil {
		return types.StateMachineId{}, err
	}
	consensus, err := types.ConsensusStateIdFromString(c.ConsensusStateId)
	if err != nil {
		return types.StateMachineId{}, fmt.Errorf("invalid consensus state id for %s: %w", c.StateMachine, err)
	}
	return types.StateMachineId{StateId: c.StateMachine, ConsensusStateId: consensus}, nil
}
