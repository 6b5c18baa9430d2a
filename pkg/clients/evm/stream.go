package evm

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

// liveOnly starts a log watch at the next block instead of replaying history.
const liveOnly = ^uint64(0)

type logHandler func(receiptLog *ethtypes.Log) bool

func send[T any](ctx context.Context, quit <-chan struct{}, sink chan<- T, item T) bool {
	select {
	case sink <- item:
		return true
	case <-quit:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *EvmClient) hostQuery(topics ...[]common.Hash) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{c.HostAddress},
		Topics:    topics,
	}
}

func (c *EvmClient) QueryIsmpEvents(ctx context.Context, from, to uint64) ([]types.WithMetadata[types.Event], error) {
	var events []types.WithMetadata[types.Event]
	query := c.hostQuery(IsmpEventTopics())
	_, err := c.deliverRange(ctx, query, from, to, func(receiptLog *ethtypes.Log) bool {
		ismpEvent, err := ParseIsmpLog(receiptLog)
		if err != nil {
			log.Warn().Err(err).Str("txHash", receiptLog.TxHash.Hex()).
				Uint("logIndex", receiptLog.Index).
				Msg("[EvmClient] [QueryIsmpEvents] skip log")
			return true
		}
		events = append(events, ismpEvent)
		return true
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (c *EvmClient) IsmpEventsStream(ctx context.Context, commitment common.Hash, from uint64, sink chan<- types.WithMetadata[types.Event]) (event.Subscription, error) {
	query := c.hostQuery([]common.Hash{
		eventTopic(EVENT_POST_REQUEST),
		eventTopic(EVENT_POST_REQUEST_HANDLED),
		eventTopic(EVENT_POST_REQUEST_TIMEOUT_HANDLED),
	})
	return event.NewSubscription(func(quit <-chan struct{}) error {
		return c.watchLogs(ctx, quit, query, from, func(receiptLog *ethtypes.Log) bool {
			ismpEvent, err := ParseIsmpLog(receiptLog)
			if err != nil {
				log.Warn().Err(err).Str("txHash", receiptLog.TxHash.Hex()).
					Msg("[EvmClient] [IsmpEventsStream] skip log")
				return true
			}
			if found, ok := ismpEvent.Event.RequestCommitment(); !ok || found != commitment {
				return true
			}
			return send(ctx, quit, sink, ismpEvent)
		})
	}), nil
}

func (c *EvmClient) PostRequestHandledStream(ctx context.Context, commitment common.Hash, from uint64, sink chan<- types.WithMetadata[types.RequestHandled]) (event.Subscription, error) {
	query := c.hostQuery([]common.Hash{eventTopic(EVENT_POST_REQUEST_HANDLED)}, []common.Hash{commitment})
	return event.NewSubscription(func(quit <-chan struct{}) error {
		return c.watchLogs(ctx, quit, query, from, func(receiptLog *ethtypes.Log) bool {
			handled, err := ParseRequestHandledLog(receiptLog)
			if err != nil {
				log.Warn().Err(err).Str("txHash", receiptLog.TxHash.Hex()).
					Msg("[EvmClient] [PostRequestHandledStream] skip log")
				return true
			}
			if handled.Event.Commitment != commitment {
				return true
			}
			return send(ctx, quit, sink, handled)
		})
	}), nil
}

func (c *EvmClient) StateMachineUpdateNotification(ctx context.Context, of types.StateMachineId, sink chan<- types.WithMetadata[types.StateMachineUpdated]) (event.Subscription, error) {
	query := c.hostQuery([]common.Hash{eventTopic(EVENT_STATE_MACHINE_UPDATED)})
	return event.NewSubscription(func(quit <-chan struct{}) error {
		return c.watchLogs(ctx, quit, query, liveOnly, func(receiptLog *ethtypes.Log) bool {
			updated, err := ParseStateMachineUpdatedLog(receiptLog)
			if err != nil {
				log.Warn().Err(err).Str("txHash", receiptLog.TxHash.Hex()).
					Msg("[EvmClient] [StateMachineUpdateNotification] skip log")
				return true
			}
			if updated.Event.StateMachineId.StateId != of.StateId {
				return true
			}
			updated.Event.StateMachineId.ConsensusStateId = of.ConsensusStateId
			return send(ctx, quit, sink, updated)
		})
	}), nil
}

// watchLogs replays logs from block from up to the current head, then follows new blocks with a
// log subscription, or by polling when the rpc endpoint has no subscriptions. It returns nil once
// handle reports that the consumer is gone.
func (c *EvmClient) watchLogs(ctx context.Context, quit <-chan struct{}, query ethereum.FilterQuery, from uint64, handle logHandler) error {
	live := make(chan ethtypes.Log, LOG_BUFFER_SIZE)
	sub, err := c.Client.SubscribeFilterLogs(ctx, query, live)
	if err != nil {
		if !errors.Is(err, rpc.ErrNotificationsUnsupported) {
			return types.NewRpcError("eth_subscribe", err)
		}
		log.Debug().Str("stateMachine", c.Config.StateMachine.String()).
			Dur("pollInterval", c.Config.PollInterval).
			Msg("[EvmClient] [watchLogs] subscriptions unsupported, polling logs")
		sub = nil
	} else {
		defer sub.Unsubscribe()
	}

	latest, err := c.QueryLatestBlockHeight(ctx)
	if err != nil {
		return err
	}
	next := latest + 1
	if from <= latest {
		more, err := c.deliverRange(ctx, query, from, latest, handle)
		if err != nil || !more {
			return err
		}
	} else if from != liveOnly {
		next = from
	}

	if sub == nil {
		return c.pollLogs(ctx, quit, query, next, handle)
	}
	for {
		select {
		case receiptLog := <-live:
			if receiptLog.Removed || receiptLog.BlockNumber < next {
				continue
			}
			if !handle(&receiptLog) {
				return nil
			}
		case err := <-sub.Err():
			return types.NewRpcError("eth_subscribe", err)
		case <-quit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *EvmClient) pollLogs(ctx context.Context, quit <-chan struct{}, query ethereum.FilterQuery, next uint64, handle logHandler) error {
	ticker := time.NewTicker(c.Config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			latest, err := c.QueryLatestBlockHeight(ctx)
			if err != nil {
				return err
			}
			if latest < next {
				continue
			}
			more, err := c.deliverRange(ctx, query, next, latest, handle)
			if err != nil || !more {
				return err
			}
			next = latest + 1
		}
	}
}

// deliverRange hands every log in [from, to] to handle, querying at most LogRange blocks at a time.
func (c *EvmClient) deliverRange(ctx context.Context, query ethereum.FilterQuery, from, to uint64, handle logHandler) (bool, error) {
	for start := from; start <= to; {
		end := min(start+c.Config.LogRange-1, to)
		rangeQuery := query
		rangeQuery.FromBlock = new(big.Int).SetUint64(start)
		rangeQuery.ToBlock = new(big.Int).SetUint64(end)
		logs, err := retryCall(ctx, c, "eth_getLogs", func() ([]ethtypes.Log, error) {
			return c.Client.FilterLogs(ctx, rangeQuery)
		})
		if err != nil {
			return false, err
		}
		log.Debug().Uint64("from", start).
			Uint64("to", end).
			Int("logsCount", len(logs)).
			Msg("[EvmClient] [deliverRange] fetched logs")
		for i := range logs {
			if logs[i].Removed {
				continue
			}
			if !handle(&logs[i]) {
				return false, nil
			}
		}
		if end == to {
			break
		}
		start = end + 1
	}
	return true, nil
}
