package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scalarorg/ismp-relayer/pkg/types"
	"gorm.io/gorm"
)

// TrackedRequest is a post request followed by the relayer, together with the
// state its streams resume from.
type TrackedRequest struct {
	gorm.Model
	Commitment       string `gorm:"uniqueIndex;type:varchar(66)"`
	Source           string `gorm:"type:varchar(64);index"`
	Dest             string `gorm:"type:varchar(64);index"`
	Nonce            uint64 `gorm:"type:bigint"`
	From             []byte
	To               []byte
	TimeoutTimestamp uint64 `gorm:"type:numeric(20,0)"`
	Body             []byte

	//Status stream
	StreamState     string `gorm:"type:varchar(32)"`
	StreamHeight    uint64 `gorm:"type:bigint"`
	Status          string `gorm:"type:varchar(32);index"`
	FinalizedHeight uint64 `gorm:"type:bigint"`
	BlockHash       string `gorm:"type:varchar(66)"`
	TxHash          string `gorm:"type:varchar(66)"`
	BlockNumber     uint64 `gorm:"type:bigint"`
	Calldata        []byte
	Finished        bool `gorm:"default:false;index"`

	//Timeout stream, empty until the request times out
	TimeoutState    string `gorm:"type:varchar(32)"`
	TimeoutHeight   uint64 `gorm:"type:bigint"`
	TimeoutStatus   string `gorm:"type:varchar(32)"`
	TimeoutTxHash   string `gorm:"type:varchar(66)"`
	TimeoutCalldata []byte
	LastError       *string
	LastErrorAt     *time.Time
}

func NewTrackedRequest(post types.PostRequest, state types.MessageStatusStreamState) *TrackedRequest {
	return &TrackedRequest{
		Commitment:       post.Commitment().Hex(),
		Source:           post.Source.String(),
		Dest:             post.Dest.String(),
		Nonce:            post.Nonce,
		From:             post.From,
		To:               post.To,
		TimeoutTimestamp: post.TimeoutTimestamp,
		Body:             post.Body,
		StreamState:      state.Kind.String(),
		StreamHeight:     state.Height,
		Status:           types.StatusPending.String(),
		Finished:         state.IsFinished(),
	}
}

func (r *TrackedRequest) CommitmentHash() common.Hash {
	return common.HexToHash(r.Commitment)
}

func (r *TrackedRequest) PostRequest() types.PostRequest {
	return types.PostRequest{
		Source:           types.StateMachine(r.Source),
		Dest:             types.StateMachine(r.Dest),
		Nonce:            r.Nonce,
		From:             r.From,
		To:               r.To,
		TimeoutTimestamp: r.TimeoutTimestamp,
		Body:             r.Body,
	}
}

// ResumeState is the status stream state persisted with the last update.
func (r *TrackedRequest) ResumeState() (types.MessageStatusStreamState, error) {
	var kind types.StreamStateKind
	if err := kind.UnmarshalText([]byte(r.StreamState)); err != nil {
		return types.MessageStatusStreamState{}, err
	}
	return types.MessageStatusStreamState{Kind: kind, Height: r.StreamHeight}, nil
}

// TimeoutResumeState reports the timeout stream state, if the timeout stream was started.
func (r *TrackedRequest) TimeoutResumeState() (types.TimeoutStreamState, bool, error) {
	if r.TimeoutState == "" {
		return types.TimeoutStreamState{}, false, nil
	}
	var kind types.TimeoutStreamStateKind
	if err := kind.UnmarshalText([]byte(r.TimeoutState)); err != nil {
		return types.TimeoutStreamState{}, false, err
	}
	return types.TimeoutStreamState{Kind: kind, Height: r.TimeoutHeight}, true, nil
}

func (r *TrackedRequest) MessageStatus() (types.MessageStatus, error) {
	return types.ParseMessageStatus(r.Status)
}
