package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog/log"
	clients "github.com/scalarorg/ismp-relayer/pkg/clients/common"
	"github.com/scalarorg/ismp-relayer/pkg/db/models"
	"github.com/scalarorg/ismp-relayer/pkg/events"
	"github.com/scalarorg/ismp-relayer/pkg/metrics"
	"github.com/scalarorg/ismp-relayer/pkg/tracker"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

var ErrServiceNotStarted = errors.New("relayer service is not started")

// Service tracks every registered request until its status stream, and its timeout
// stream when enabled, reach the end. Progress survives restarts through the Store.
type Service struct {
	Config      Config
	Hyperbridge clients.ChainClient
	Clients     map[types.StateMachine]clients.ChainClient
	Store       Store
	EventBus    *events.EventBus
	Metrics     *metrics.Metrics

	trackerFor func(source, dest types.StateMachine) (RequestTracker, error)
	workers    *workerpool.WorkerPool

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	trackers map[string]RequestTracker
	running  map[string]struct{}
}

func NewService(config *Config, hyperbridge clients.ChainClient, spokes []clients.ChainClient,
	store Store, eventBus *events.EventBus, m *metrics.Metrics) (*Service, error) {
	if hyperbridge == nil {
		return nil, fmt.Errorf("hyperbridge client is not set")
	}
	if store == nil || eventBus == nil {
		return nil, fmt.Errorf("store and event bus are required")
	}
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.MaxStreams == 0 {
		cfg.MaxStreams = DEFAULT_MAX_STREAMS
	}
	if cfg.StreamRetries == 0 {
		cfg.StreamRetries = DEFAULT_STREAM_RETRIES
	}
	if cfg.StreamRetryInterval == 0 {
		cfg.StreamRetryInterval = DEFAULT_STREAM_RETRY_INTERVAL
	}
	registry := make(map[types.StateMachine]clients.ChainClient, len(spokes))
	for _, client := range spokes {
		id := client.StateMachineID().StateId
		if _, ok := registry[id]; ok {
			return nil, fmt.Errorf("duplicated client for state machine %s", id)
		}
		registry[id] = client
	}
	s := &Service{
		Config:      cfg,
		Hyperbridge: hyperbridge,
		Clients:     registry,
		Store:       store,
		EventBus:    eventBus,
		Metrics:     m,
		workers:     workerpool.New(cfg.MaxStreams),
		trackers:    make(map[string]RequestTracker),
		running:     make(map[string]struct{}),
	}
	s.trackerFor = s.newTracker
	return s, nil
}

func (s *Service) newTracker(source, dest types.StateMachine) (RequestTracker, error) {
	sourceClient, ok := s.Clients[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownClient, source)
	}
	destClient, ok := s.Clients[dest]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownClient, dest)
	}
	return tracker.NewTracker(sourceClient, destClient, s.Hyperbridge, &s.Config.Config), nil
}

// Tracker returns the tracker of the route, one per source and destination pair.
func (s *Service) Tracker(source, dest types.StateMachine) (RequestTracker, error) {
	key := source.String() + "->" + dest.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if tr, ok := s.trackers[key]; ok {
		return tr, nil
	}
	tr, err := s.trackerFor(source, dest)
	if err != nil {
		return nil, err
	}
	s.trackers[key] = tr
	return tr, nil
}

// Start resumes the streams of every request left active by a previous run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	records, err := s.Store.FindActiveRequests(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active requests: %w", err)
	}
	log.Info().Int("requests", len(records)).Msg("[Relayer] [Start] resuming tracked requests")
	for i := range records {
		if err := s.resume(&records[i]); err != nil {
			log.Warn().Err(err).Str("commitment", records[i].Commitment).Msg("[Relayer] [Start] cannot resume request")
		}
	}
	return nil
}

func (s *Service) resume(record *models.TrackedRequest) error {
	post := record.PostRequest()
	if !record.Finished {
		state, err := record.ResumeState()
		if err != nil {
			return err
		}
		return s.runStatus(post, state)
	}
	state, started, err := record.TimeoutResumeState()
	if err != nil || !started {
		return err
	}
	return s.runTimeout(post, state)
}

// Track registers a request dispatched on the source chain at height and starts its status
// stream. Registering a known request returns the stored record.
func (s *Service) Track(ctx context.Context, post types.PostRequest, height uint64) (*models.TrackedRequest, error) {
	if err := post.Validate(); err != nil {
		return nil, err
	}
	if !s.started() {
		return nil, ErrServiceNotStarted
	}
	if _, err := s.Tracker(post.Source, post.Dest); err != nil {
		return nil, err
	}
	if height == 0 {
		latest, err := s.Clients[post.Source].QueryLatestBlockHeight(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query source height: %w", err)
		}
		height = latest
	}
	record, created, err := s.Store.CreateTrackedRequest(ctx, post, types.Dispatched(height))
	if err != nil {
		return nil, err
	}
	if !created {
		log.Debug().Str("commitment", record.Commitment).Msg("[Relayer] [Track] request is already tracked")
		return record, s.resume(record)
	}
	log.Info().Str("commitment", record.Commitment).
		Str("source", post.Source.String()).
		Str("dest", post.Dest.String()).
		Uint64("height", height).
		Msg("[Relayer] [Track] tracking new request")
	return record, s.runStatus(post, types.Dispatched(height))
}

// QueryStatus reports the current status of a request without tracking it.
func (s *Service) QueryStatus(ctx context.Context, post types.PostRequest) (types.MessageStatusWithMetadata, error) {
	tr, err := s.Tracker(post.Source, post.Dest)
	if err != nil {
		return types.MessageStatusWithMetadata{}, err
	}
	return tr.QueryStatus(ctx, post)
}

func (s *Service) FindTrackedRequest(ctx context.Context, commitment common.Hash) (*models.TrackedRequest, error) {
	return s.Store.FindTrackedRequest(ctx, commitment)
}

// acquire marks the stream of the request running. It fails when the service is not
// started and reports false when the stream already runs.
func (s *Service) acquire(stream string, post *types.PostRequest) (context.Context, string, bool, error) {
	key := stream + ":" + post.Commitment().Hex()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return nil, key, false, ErrServiceNotStarted
	}
	if _, ok := s.running[key]; ok {
		return nil, key, false, nil
	}
	s.running[key] = struct{}{}
	return s.ctx, key, true, nil
}

func (s *Service) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

func (s *Service) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, key)
}

func (s *Service) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *Service) runStatus(post types.PostRequest, state types.MessageStatusStreamState) error {
	tr, err := s.Tracker(post.Source, post.Dest)
	if err != nil {
		return err
	}
	ctx, key, ok, err := s.acquire(STREAM_STATUS, &post)
	if err != nil || !ok {
		return err
	}
	s.workers.Submit(func() {
		defer s.release(key)
		timedOut := s.followStatus(ctx, tr, post, state)
		if timedOut && s.Config.SubmitTimeouts && ctx.Err() == nil {
			s.startTimeout(ctx, tr, post)
		}
	})
	return nil
}

// followStatus persists and publishes every update of the status stream. A failed stream
// is reopened from its last state. It reports whether the request timed out.
func (s *Service) followStatus(ctx context.Context, tr RequestTracker, post types.PostRequest, state types.MessageStatusStreamState) bool {
	done := s.Metrics.StreamStarted(STREAM_STATUS)
	defer done()
	commitment := post.Commitment()
	retry := s.retryPolicy(ctx)
	timedOut := false
	for {
		failed := false
		for update := range tr.StatusStream(ctx, post, state) {
			if err := s.Store.UpdateStatus(ctx, commitment, update); err != nil {
				log.Error().Err(err).Str("commitment", commitment.Hex()).Msg("[Relayer] [followStatus] cannot persist update")
			}
			s.EventBus.BroadcastEvent(&types.StatusEnvelope{
				Commitment: commitment,
				Source:     post.Source,
				Dest:       post.Dest,
				Update:     &update,
			})
			if update.Err != nil {
				s.Metrics.StreamError(STREAM_STATUS, streamErrorState(update.Err, state.String()))
				log.Warn().Err(update.Err).Str("commitment", commitment.Hex()).Msg("[Relayer] [followStatus] status stream failed")
				failed = true
				state = update.Next
				continue
			}
			retry.Reset()
			state = update.Next
			if update.Status != nil {
				s.Metrics.StatusTransition(post.Source.String(), post.Dest.String(), update.Status.Status.String())
				timedOut = timedOut || update.Status.Status == types.StatusTimeout
			}
		}
		if !failed || ctx.Err() != nil {
			return timedOut
		}
		if !waitRetry(retry) {
			log.Error().Str("commitment", commitment.Hex()).Str("state", state.String()).
				Msg("[Relayer] [followStatus] status stream gave up, track the request again to resume it")
			return timedOut
		}
		log.Info().Str("commitment", commitment.Hex()).Str("state", state.String()).
			Msg("[Relayer] [followStatus] reopening status stream")
	}
}

// retryPolicy bounds how often a failed stream is reopened.
func (s *Service) retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.Config.StreamRetryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.Config.StreamRetries), ctx)
	policy.Reset()
	return policy
}

// waitRetry sleeps for the next delay of policy. It reports false once the retries are
// exhausted or the context is done.
func waitRetry(policy backoff.BackOffContext) bool {
	delay := policy.NextBackOff()
	if delay == backoff.Stop {
		return false
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-policy.Context().Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Service) startTimeout(ctx context.Context, tr RequestTracker, post types.PostRequest) {
	commitment := post.Commitment()
	if err := s.Store.StartTimeout(ctx, commitment); err != nil {
		log.Error().Err(err).Str("commitment", commitment.Hex()).Msg("[Relayer] [startTimeout] cannot start timeout stream")
		return
	}
	key := STREAM_TIMEOUT + ":" + commitment.Hex()
	s.mu.Lock()
	_, running := s.running[key]
	s.running[key] = struct{}{}
	s.mu.Unlock()
	if running {
		return
	}
	defer s.release(key)
	s.followTimeout(ctx, tr, post, types.TimeoutPendingState())
}

func (s *Service) runTimeout(post types.PostRequest, state types.TimeoutStreamState) error {
	if state.Kind == types.TimeoutStreamEnd {
		return nil
	}
	tr, err := s.Tracker(post.Source, post.Dest)
	if err != nil {
		return err
	}
	ctx, key, ok, err := s.acquire(STREAM_TIMEOUT, &post)
	if err != nil || !ok {
		return err
	}
	s.workers.Submit(func() {
		defer s.release(key)
		s.followTimeout(ctx, tr, post, state)
	})
	return nil
}

func (s *Service) followTimeout(ctx context.Context, tr RequestTracker, post types.PostRequest, state types.TimeoutStreamState) {
	done := s.Metrics.StreamStarted(STREAM_TIMEOUT)
	defer done()
	commitment := post.Commitment()
	retry := s.retryPolicy(ctx)
	for {
		failed := false
		for update := range tr.TimeoutStream(ctx, post, state) {
			if err := s.Store.UpdateTimeoutStatus(ctx, commitment, update); err != nil {
				log.Error().Err(err).Str("commitment", commitment.Hex()).Msg("[Relayer] [followTimeout] cannot persist update")
			}
			s.EventBus.BroadcastEvent(&types.StatusEnvelope{
				Commitment: commitment,
				Source:     post.Source,
				Dest:       post.Dest,
				Timeout:    &update,
			})
			if update.Err != nil {
				s.Metrics.StreamError(STREAM_TIMEOUT, streamErrorState(update.Err, state.String()))
				log.Warn().Err(update.Err).Str("commitment", commitment.Hex()).Msg("[Relayer] [followTimeout] timeout stream failed")
				failed = true
				state = update.Next
				continue
			}
			retry.Reset()
			state = update.Next
			if update.Status != nil {
				s.Metrics.TimeoutTransition(post.Source.String(), post.Dest.String(), update.Status.Status.String())
			}
		}
		if !failed || ctx.Err() != nil {
			return
		}
		if !waitRetry(retry) {
			log.Error().Str("commitment", commitment.Hex()).Str("state", state.String()).
				Msg("[Relayer] [followTimeout] timeout stream gave up, track the request again to resume it")
			return
		}
		log.Info().Str("commitment", commitment.Hex()).Str("state", state.String()).
			Msg("[Relayer] [followTimeout] reopening timeout stream")
	}
}

func streamErrorState(err error, fallback string) string {
	var streamErr *types.StreamError
	if errors.As(err, &streamErr) {
		return streamErr.State
	}
	return fallback
}

// Stop cancels every stream and waits for the workers to return.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.workers.StopWait()
	log.Info().Msg("[Relayer] [Stop] relayer service stopped")
}
