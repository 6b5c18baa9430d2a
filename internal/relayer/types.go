package relayer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scalarorg/ismp-relayer/pkg/db/models"
	"github.com/scalarorg/ismp-relayer/pkg/tracker"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

const (
	DEFAULT_MAX_STREAMS           = 64
	DEFAULT_STREAM_RETRIES        = 5
	DEFAULT_STREAM_RETRY_INTERVAL = 5 * time.Second
	STREAM_STATUS                 = "status"
	STREAM_TIMEOUT                = "timeout"
)

type Config struct {
	// Upper bound of streams running at the same time, further streams are queued.
	MaxStreams int `mapstructure:"max_streams" validate:"gte=0"`

	// Run the timeout stream of requests that time out.
	SubmitTimeouts bool `mapstructure:"submit_timeouts"`

	// A failed stream is reopened from its last state up to StreamRetries times, with
	// exponential delays starting at StreamRetryInterval.
	StreamRetries       uint64        `mapstructure:"stream_retries"`
	StreamRetryInterval time.Duration `mapstructure:"stream_retry_interval"`

	tracker.Config `mapstructure:",squash"`
}

// Store persists tracked requests and the state their streams resume from.
type Store interface {
	CreateTrackedRequest(ctx context.Context, post types.PostRequest, state types.MessageStatusStreamState) (*models.TrackedRequest, bool, error)
	UpdateStatus(ctx context.Context, commitment common.Hash, update types.StatusUpdate) error
	StartTimeout(ctx context.Context, commitment common.Hash) error
	UpdateTimeoutStatus(ctx context.Context, commitment common.Hash, update types.TimeoutUpdate) error
	FindTrackedRequest(ctx context.Context, commitment common.Hash) (*models.TrackedRequest, error)
	FindActiveRequests(ctx context.Context) ([]models.TrackedRequest, error)
}

// RequestTracker is the part of *tracker.Tracker the service drives.
type RequestTracker interface {
	QueryStatus(ctx context.Context, post types.PostRequest) (types.MessageStatusWithMetadata, error)
	StatusStream(ctx context.Context, post types.PostRequest, state types.MessageStatusStreamState) <-chan types.StatusUpdate
	TimeoutStream(ctx context.Context, post types.PostRequest, state types.TimeoutStreamState) <-chan types.TimeoutUpdate
}

var _ RequestTracker = (*tracker.Tracker)(nil)
