package tracker

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

// QueryStatus returns the status of a request as of now. It only reads chain state.
func (t *Tracker) QueryStatus(ctx context.Context, post types.PostRequest) (types.MessageStatusWithMetadata, error) {
	_, dest, err := t.resolve(&post)
	if err != nil {
		return types.MessageStatusWithMetadata{}, err
	}
	commitment := post.Commitment()

	destTimestamp, err := dest.QueryTimestamp(ctx)
	if err != nil {
		return types.MessageStatusWithMetadata{}, err
	}
	destReceipt, err := dest.QueryRequestReceipt(ctx, commitment)
	if err != nil {
		return types.MessageStatusWithMetadata{}, err
	}
	if !destReceipt.IsZero() {
		return types.NewDestinationDelivered(types.EventMetadata{}), nil
	}
	if destTimestamp >= post.Timeout() {
		return types.NewTimeout(), nil
	}

	hubTimestamp, err := t.hyperbridge.QueryTimestamp(ctx)
	if err != nil {
		return types.MessageStatusWithMetadata{}, err
	}
	hubReceipt, err := t.hyperbridge.QueryRequestReceipt(ctx, commitment)
	if err != nil {
		return types.MessageStatusWithMetadata{}, err
	}
	if !hubReceipt.IsZero() {
		return types.NewHyperbridgeVerified(types.EventMetadata{}), nil
	}
	if hubTimestamp > post.Timeout() {
		return types.NewTimeout(), nil
	}

	log.Debug().Str("commitment", commitment.Hex()).
		Msg("[Tracker] [QueryStatus] request is pending")
	return types.NewPending(), nil
}
