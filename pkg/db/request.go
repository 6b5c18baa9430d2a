package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scalarorg/ismp-relayer/pkg/db/models"
	"github.com/scalarorg/ismp-relayer/pkg/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRequestNotFound = errors.New("tracked request not found")

// CreateTrackedRequest stores a new request. Storing a commitment twice keeps the first
// record, created reports whether this call inserted it.
func (db *DatabaseAdapter) CreateTrackedRequest(ctx context.Context, post types.PostRequest, state types.MessageStatusStreamState) (*models.TrackedRequest, bool, error) {
	record := models.NewTrackedRequest(post, state)
	result := db.RelayerClient.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "commitment"}},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to create tracked request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		stored, err := db.FindTrackedRequest(ctx, post.Commitment())
		return stored, false, err
	}
	return record, true, nil
}

// UpdateStatus persists a status stream item. Errors are recorded without moving the resume state.
func (db *DatabaseAdapter) UpdateStatus(ctx context.Context, commitment common.Hash, update types.StatusUpdate) error {
	if update.Err != nil {
		return db.MarkFailed(ctx, commitment, update.Err)
	}
	values := map[string]interface{}{
		"stream_state":  update.Next.Kind.String(),
		"stream_height": update.Next.Height,
		"finished":      update.Next.IsFinished(),
		"last_error":    nil,
		"last_error_at": nil,
	}
	if status := update.Status; status != nil {
		values["status"] = status.Status.String()
		values["finalized_height"] = status.FinalizedHeight
		values["block_hash"] = status.Meta.BlockHash.Hex()
		values["tx_hash"] = status.Meta.TransactionHash.Hex()
		values["block_number"] = status.Meta.BlockNumber
		if len(status.Calldata) > 0 {
			values["calldata"] = []byte(status.Calldata)
		}
	}
	return db.updateRequest(ctx, commitment, values)
}

// StartTimeout marks the request for the timeout stream, unless it already runs.
func (db *DatabaseAdapter) StartTimeout(ctx context.Context, commitment common.Hash) error {
	result := db.RelayerClient.WithContext(ctx).Model(&models.TrackedRequest{}).
		Where("commitment = ? AND (timeout_state IS NULL OR timeout_state = '')", commitment.Hex()).
		Updates(map[string]interface{}{
			"timeout_state":  types.TimeoutStreamPending.String(),
			"timeout_height": 0,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to start timeout of %s: %w", commitment.Hex(), result.Error)
	}
	return nil
}

func (db *DatabaseAdapter) UpdateTimeoutStatus(ctx context.Context, commitment common.Hash, update types.TimeoutUpdate) error {
	if update.Err != nil {
		return db.MarkFailed(ctx, commitment, update.Err)
	}
	values := map[string]interface{}{
		"timeout_state":  update.Next.Kind.String(),
		"timeout_height": update.Next.Height,
		"last_error":     nil,
		"last_error_at":  nil,
	}
	if status := update.Status; status != nil {
		values["timeout_status"] = status.Status.String()
		values["timeout_tx_hash"] = status.Meta.TransactionHash.Hex()
		if len(status.Calldata) > 0 {
			values["timeout_calldata"] = []byte(status.Calldata)
		}
	}
	return db.updateRequest(ctx, commitment, values)
}

func (db *DatabaseAdapter) MarkFailed(ctx context.Context, commitment common.Hash, cause error) error {
	message := cause.Error()
	return db.updateRequest(ctx, commitment, map[string]interface{}{
		"last_error":    message,
		"last_error_at": time.Now(),
	})
}

func (db *DatabaseAdapter) updateRequest(ctx context.Context, commitment common.Hash, values map[string]interface{}) error {
	result := db.RelayerClient.WithContext(ctx).Model(&models.TrackedRequest{}).
		Where("commitment = ?", commitment.Hex()).
		Updates(values)
	if result.Error != nil {
		return fmt.Errorf("failed to update tracked request %s: %w", commitment.Hex(), result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, commitment.Hex())
	}
	return nil
}

func (db *DatabaseAdapter) FindTrackedRequest(ctx context.Context, commitment common.Hash) (*models.TrackedRequest, error) {
	var record models.TrackedRequest
	err := db.RelayerClient.WithContext(ctx).Where("commitment = ?", commitment.Hex()).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, commitment.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tracked request %s: %w", commitment.Hex(), err)
	}
	return &record, nil
}

// FindActiveRequests returns the requests with a status or timeout stream still to run.
func (db *DatabaseAdapter) FindActiveRequests(ctx context.Context) ([]models.TrackedRequest, error) {
	var records []models.TrackedRequest
	err := db.RelayerClient.WithContext(ctx).
		Where("finished = ?", false).
		Or("timeout_state <> '' AND timeout_state <> ?", types.TimeoutStreamEnd.String()).
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find active requests: %w", err)
	}
	return records, nil
}
