package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// PostRequest is a cross-chain message dispatched on Source and addressed to Dest.
type PostRequest struct {
	Source           StateMachine  `json:"source" validate:"required"`
	Dest             StateMachine  `json:"dest" validate:"required"`
	Nonce            uint64        `json:"nonce"`
	From             hexutil.Bytes `json:"from"`
	To               hexutil.Bytes `json:"to"`
	TimeoutTimestamp uint64        `json:"timeout_timestamp"`
	Body             hexutil.Bytes `json:"body"`
}

// Commitment is the keccak256 hash identifying the request on every chain.
func (p *PostRequest) Commitment() common.Hash {
	buf := make([]byte, 0, len(p.Source)+len(p.Dest)+16+len(p.From)+len(p.To)+len(p.Body))
	buf = append(buf, p.Source...)
	buf = append(buf, p.Dest...)
	buf = binary.BigEndian.AppendUint64(buf, p.Nonce)
	buf = binary.BigEndian.AppendUint64(buf, p.TimeoutTimestamp)
	buf = append(buf, p.From...)
	buf = append(buf, p.To...)
	buf = append(buf, p.Body...)
	return crypto.Keccak256Hash(buf)
}

// Timeout returns the request deadline as a duration since the unix epoch.
// A zero timeout never expires.
func (p *PostRequest) Timeout() time.Duration {
	if p.TimeoutTimestamp == 0 || p.TimeoutTimestamp > uint64(math.MaxInt64/int64(time.Second)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(p.TimeoutTimestamp) * time.Second
}

// TimedOut reports whether a chain clock at now is past the request deadline.
func (p *PostRequest) TimedOut(now time.Duration) bool {
	return now >= p.Timeout()
}

func (p *PostRequest) Validate() error {
	if err := p.Source.Validate(); err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}
	if err := p.Dest.Validate(); err != nil {
		return fmt.Errorf("invalid dest: %w", err)
	}
	if p.Source == p.Dest {
		return fmt.Errorf("source and dest are both %s", p.Source)
	}
	return nil
}

// RelayerAddress is the relayer recorded in a request receipt. Empty or zero means no receipt.
type RelayerAddress []byte

func (r RelayerAddress) IsZero() bool {
	for _, b := range r {
		if b != 0 {
			return false
		}
	}
	return true
}

func (r RelayerAddress) String() string {
	return hexutil.Encode(r)
}
