package db_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/pkg/db"
	"github.com/scalarorg/ismp-relayer/pkg/db/models"
	"github.com/scalarorg/ismp-relayer/pkg/types"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	dbAdapter *db.DatabaseAdapter
	setupErr  error
)

func TestMain(m *testing.M) {
	var cleanup func()
	dbAdapter, cleanup, setupErr = SetupTestDB()
	if setupErr != nil {
		log.Warn().Err(setupErr).Msg("postgres container is not available, database tests are skipped")
	}
	code := m.Run()
	if cleanup != nil {
		cleanup()
	}
	os.Exit(code)
}

func SetupTestDB() (adapter *db.DatabaseAdapter, cleanup func(), err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to start postgres container: %v", r)
		}
	}()
	ctx := context.Background()
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, nil, err
	}
	cleanup = func() {
		if err := postgresContainer.Terminate(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to terminate postgres container")
		}
	}
	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	adapter, err = db.NewDatabaseAdapter(dsn)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return adapter, cleanup, nil
}

func requireDb(t *testing.T) *db.DatabaseAdapter {
	t.Helper()
	if setupErr != nil {
		t.Skipf("postgres is not available: %v", setupErr)
	}
	return dbAdapter
}

func newRequest(nonce uint64) types.PostRequest {
	return types.PostRequest{
		Source:           types.EvmStateMachine(97),
		Dest:             types.EvmStateMachine(11155111),
		Nonce:            nonce,
		From:             common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes(),
		To:               common.HexToAddress("0x2222222222222222222222222222222222222222").Bytes(),
		TimeoutTimestamp: 1700000000,
		Body:             []byte("ping"),
	}
}

func TestCreateTrackedRequest(t *testing.T) {
	adapter := requireDb(t)
	ctx := context.Background()
	post := newRequest(1)

	record, created, err := adapter.CreateTrackedRequest(ctx, post, types.Dispatched(120))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, post.Commitment().Hex(), record.Commitment)

	again, created, err := adapter.CreateTrackedRequest(ctx, post, types.SourceFinalizedState(999))
	require.NoError(t, err)
	require.False(t, created)
	state, err := again.ResumeState()
	require.NoError(t, err)
	require.Equal(t, types.Dispatched(120), state)

	stored, err := adapter.FindTrackedRequest(ctx, post.Commitment())
	require.NoError(t, err)
	require.Equal(t, post, stored.PostRequest())
	require.Equal(t, post.Commitment(), stored.CommitmentHash())
	status, err := stored.MessageStatus()
	require.NoError(t, err)
	require.Equal(t, types.StatusPending, status)
}

func TestUpdateStatus(t *testing.T) {
	adapter := requireDb(t)
	ctx := context.Background()
	post := newRequest(2)
	commitment := post.Commitment()
	_, _, err := adapter.CreateTrackedRequest(ctx, post, types.Dispatched(10))
	require.NoError(t, err)

	meta := types.EventMetadata{BlockHash: common.HexToHash("0xb1"), TransactionHash: common.HexToHash("0x71"), BlockNumber: 110}
	finalized := types.NewHyperbridgeFinalized(42, meta, []byte("calldata"))
	require.NoError(t, adapter.UpdateStatus(ctx, commitment, types.StatusUpdate{
		Status: &finalized,
		Next:   types.HyperbridgeFinalizedState(500),
	}))
	stored, err := adapter.FindTrackedRequest(ctx, commitment)
	require.NoError(t, err)
	require.Equal(t, types.StatusHyperbridgeFinalized.String(), stored.Status)
	require.Equal(t, uint64(42), stored.FinalizedHeight)
	require.Equal(t, meta.TransactionHash.Hex(), stored.TxHash)
	require.Equal(t, []byte("calldata"), stored.Calldata)
	require.False(t, stored.Finished)
	state, err := stored.ResumeState()
	require.NoError(t, err)
	require.Equal(t, types.HyperbridgeFinalizedState(500), state)

	failure := errors.New("rpc unavailable")
	require.NoError(t, adapter.UpdateStatus(ctx, commitment, types.StatusUpdate{
		Next: types.HyperbridgeFinalizedState(500),
		Err:  &types.StreamError{State: "HyperbridgeFinalized(500)", Err: failure},
	}))
	stored, err = adapter.FindTrackedRequest(ctx, commitment)
	require.NoError(t, err)
	require.NotNil(t, stored.LastError)
	require.Contains(t, *stored.LastError, "rpc unavailable")
	require.Equal(t, uint64(500), stored.StreamHeight)

	delivered := types.NewDestinationDelivered(meta)
	require.NoError(t, adapter.UpdateStatus(ctx, commitment, types.StatusUpdate{
		Status: &delivered,
		Next:   types.DestinationDeliveredState(),
	}))
	stored, err = adapter.FindTrackedRequest(ctx, commitment)
	require.NoError(t, err)
	require.True(t, stored.Finished)
	require.Nil(t, stored.LastError)

	err = adapter.UpdateStatus(ctx, common.HexToHash("0x404"), types.StatusUpdate{Next: types.EndState()})
	require.ErrorIs(t, err, db.ErrRequestNotFound)
}

func TestTimeoutLifecycle(t *testing.T) {
	adapter := requireDb(t)
	ctx := context.Background()
	post := newRequest(3)
	commitment := post.Commitment()
	_, _, err := adapter.CreateTrackedRequest(ctx, post, types.Dispatched(10))
	require.NoError(t, err)

	delivery := types.NewHyperbridgeFinalized(9, types.EventMetadata{}, []byte("delivery-calldata"))
	require.NoError(t, adapter.UpdateStatus(ctx, commitment, types.StatusUpdate{Status: &delivery, Next: types.HyperbridgeFinalizedState(20)}))
	timeout := types.NewTimeout()
	require.NoError(t, adapter.UpdateStatus(ctx, commitment, types.StatusUpdate{Status: &timeout, Next: types.EndState()}))
	require.NoError(t, adapter.StartTimeout(ctx, commitment))
	stored, err := adapter.FindTrackedRequest(ctx, commitment)
	require.NoError(t, err)
	require.Equal(t, types.StatusTimeout.String(), stored.Status)
	require.Equal(t, []byte("delivery-calldata"), stored.Calldata)

	active, err := adapter.FindActiveRequests(ctx)
	require.NoError(t, err)
	require.Contains(t, commitments(active), commitment.Hex())

	stored, err = adapter.FindTrackedRequest(ctx, commitment)
	require.NoError(t, err)
	state, started, err := stored.TimeoutResumeState()
	require.NoError(t, err)
	require.True(t, started)
	require.Equal(t, types.TimeoutPendingState(), state)

	verified := types.NewHyperbridgeVerifiedTimeout(types.EventMetadata{TransactionHash: common.HexToHash("0x99")})
	require.NoError(t, adapter.UpdateTimeoutStatus(ctx, commitment, types.TimeoutUpdate{
		Status: &verified,
		Next:   types.HyperbridgeVerifiedTimeoutState(77),
	}))
	require.NoError(t, adapter.StartTimeout(ctx, commitment))
	stored, err = adapter.FindTrackedRequest(ctx, commitment)
	require.NoError(t, err)
	state, _, err = stored.TimeoutResumeState()
	require.NoError(t, err)
	require.Equal(t, types.HyperbridgeVerifiedTimeoutState(77), state)

	finalized := types.NewHyperbridgeFinalizedTimeout(80, types.EventMetadata{}, []byte("timeout-calldata"))
	require.NoError(t, adapter.UpdateTimeoutStatus(ctx, commitment, types.TimeoutUpdate{
		Status: &finalized,
		Next:   types.TimeoutEndState(),
	}))
	stored, err = adapter.FindTrackedRequest(ctx, commitment)
	require.NoError(t, err)
	require.Equal(t, []byte("timeout-calldata"), stored.TimeoutCalldata)
	require.Equal(t, types.TimeoutHyperbridgeFinalized.String(), stored.TimeoutStatus)

	active, err = adapter.FindActiveRequests(ctx)
	require.NoError(t, err)
	require.NotContains(t, commitments(active), commitment.Hex())
}

func TestFindTrackedRequestNotFound(t *testing.T) {
	adapter := requireDb(t)
	_, err := adapter.FindTrackedRequest(context.Background(), common.HexToHash("0xabc"))
	require.ErrorIs(t, err, db.ErrRequestNotFound)
}

func commitments(records []models.TrackedRequest) []string {
	hashes := make([]string, 0, len(records))
	for _, record := range records {
		hashes = append(hashes, record.Commitment)
	}
	return hashes
}
