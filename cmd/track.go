package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/config"
	"github.com/scalarorg/ismp-relayer/internal/api"
	"github.com/scalarorg/ismp-relayer/pkg/clients/common"
	"github.com/scalarorg/ismp-relayer/pkg/tracker"
	"github.com/scalarorg/ismp-relayer/pkg/types"
	"github.com/spf13/cobra"
)

var followTimeout bool

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Stream the status updates of a request to stdout until it is delivered or timed out",
	RunE:  track,
}

func newTracker(spokes []common.ChainClient, hyperbridge common.ChainClient, cfg *config.Config, req *api.TrackRequest) *tracker.Tracker {
	var source, dest common.ChainClient
	for _, client := range spokes {
		switch client.StateMachineID().StateId {
		case req.Request.Source:
			source = client
		case req.Request.Dest:
			dest = client
		}
	}
	return tracker.NewTracker(source, dest, hyperbridge, &cfg.Tracker.Config)
}

func track(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	req, err := readRequest(requestPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	hyperbridge, spokes, err := connectClients(ctx, cfg)
	if err != nil {
		return err
	}
	t := newTracker(spokes, hyperbridge, cfg, req)
	source, err := t.ClientFor(req.Request.Source)
	if err != nil {
		return err
	}
	height := req.Height
	if height == 0 {
		if height, err = source.QueryLatestBlockHeight(ctx); err != nil {
			return err
		}
	}
	log.Info().Str("commitment", req.Request.Commitment().Hex()).Uint64("height", height).Msg("[Track] following request")

	timedOut := false
	for update := range t.StatusStream(ctx, req.Request, types.Dispatched(height)) {
		printJSON(update)
		if update.Err != nil {
			return update.Err
		}
		if update.Status != nil && update.Status.Status == types.StatusTimeout {
			timedOut = true
		}
	}
	if !timedOut || !followTimeout {
		return ctx.Err()
	}
	for update := range t.TimeoutStream(ctx, req.Request, types.TimeoutPendingState()) {
		printJSON(update)
		if update.Err != nil {
			return fmt.Errorf("timeout stream failed: %w", update.Err)
		}
	}
	return ctx.Err()
}

func init() {
	trackCmd.Flags().StringVar(&requestPath, "request", "request.json", "Path to the request file")
	trackCmd.Flags().BoolVar(&followTimeout, "timeout", false, "Follow the timeout stream once the request times out")
}
