package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/pkg/clients/common"
	"github.com/scalarorg/ismp-relayer/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	COMPONENT_NAME                = "Tracker"
	TRACER_NAME                   = "github.com/scalarorg/ismp-relayer/pkg/tracker"
	DEFAULT_DELIVERY_SCAN_WINDOW  = 1000
	DEFAULT_TIMEOUT_POLL_INTERVAL = 30 * time.Second
	STREAM_BUFFER                 = 16
)

type Config struct {
	// Number of recent destination blocks searched for the delivery event of a request that already has a receipt.
	DeliveryScanWindow    uint64        `mapstructure:"delivery_scan_window"`
	ChallengePollInterval time.Duration `mapstructure:"challenge_poll_interval"`

	// How often the destination clock is checked while a status stream waits on a subscription.
	TimeoutPollInterval time.Duration `mapstructure:"timeout_poll_interval"`

	// Hex encoded relayer address placed in delivery messages.
	Signer string `mapstructure:"signer"`
}

// Tracker follows requests exchanged between two spoke chains through hyperbridge.
type Tracker struct {
	chainA      common.ChainClient
	chainB      common.ChainClient
	hyperbridge common.ChainClient
	config      Config
	tracer      trace.Tracer
}

func NewTracker(chainA, chainB, hyperbridge common.ChainClient, config *Config) *Tracker {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.DeliveryScanWindow == 0 {
		cfg.DeliveryScanWindow = DEFAULT_DELIVERY_SCAN_WINDOW
	}
	if cfg.ChallengePollInterval == 0 {
		cfg.ChallengePollInterval = common.DEFAULT_CHALLENGE_POLL_INTERVAL
	}
	if cfg.TimeoutPollInterval == 0 {
		cfg.TimeoutPollInterval = DEFAULT_TIMEOUT_POLL_INTERVAL
	}
	return &Tracker{
		chainA:      chainA,
		chainB:      chainB,
		hyperbridge: hyperbridge,
		config:      cfg,
		tracer:      otel.Tracer(TRACER_NAME),
	}
}

func (t *Tracker) Hyperbridge() common.ChainClient {
	return t.hyperbridge
}

// ClientFor returns the configured spoke client of the state machine.
func (t *Tracker) ClientFor(stateMachine types.StateMachine) (common.ChainClient, error) {
	for _, client := range []common.ChainClient{t.chainA, t.chainB} {
		if client != nil && client.StateMachineID().StateId == stateMachine {
			return client, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", types.ErrUnknownClient, stateMachine)
}

func (t *Tracker) resolve(post *types.PostRequest) (source common.ChainClient, dest common.ChainClient, err error) {
	source, err = t.ClientFor(post.Source)
	if err != nil {
		return nil, nil, err
	}
	dest, err = t.ClientFor(post.Dest)
	if err != nil {
		return nil, nil, err
	}
	return source, dest, nil
}

// waitChallenge waits until verifier accepts proofs at height.
func (t *Tracker) waitChallenge(ctx context.Context, verifier common.ChainClient, height types.StateMachineHeight) error {
	period, err := verifier.QueryChallengePeriod(ctx, height.Id)
	if err != nil {
		return fmt.Errorf("failed to query challenge period: %w", err)
	}
	updateTime, err := verifier.QueryStateMachineUpdateTime(ctx, height)
	if err != nil {
		return fmt.Errorf("failed to query state machine update time: %w", err)
	}
	log.Debug().Str("verifier", verifier.StateMachineID().String()).
		Str("stateMachine", height.Id.String()).
		Uint64("height", height.Height).
		Dur("challengePeriod", period).
		Msg("[Tracker] [waitChallenge] waiting for challenge period")
	return common.WaitForChallengePeriodWithInterval(ctx, verifier, updateTime, period, t.config.ChallengePollInterval)
}

func encode(client common.ChainClient, msg types.Message) ([]byte, error) {
	calldata, err := client.Encode(msg)
	if err != nil {
		if errors.Is(err, types.ErrEncodingFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", types.ErrEncodingFailure, err)
	}
	return calldata, nil
}
