package clients

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/pkg/clients/common"
	"github.com/scalarorg/ismp-relayer/pkg/clients/evm"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

// Factory connects a ChainClient for a configured chain.
type Factory func(ctx context.Context, cfg *common.ChainConfig) (common.ChainClient, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[types.ChainFamily]Factory{
		types.ChainFamilyEvm: newEvmChainClient,
	}
)

func newEvmChainClient(ctx context.Context, cfg *common.ChainConfig) (common.ChainClient, error) {
	client, err := evm.NewEvmClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// RegisterFactory installs the client constructor of a chain family, replacing any previous one.
func RegisterFactory(family types.ChainFamily, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[family] = factory
}

func NewChainClient(ctx context.Context, cfg *common.ChainConfig) (common.ChainClient, error) {
	family := cfg.StateMachine.Family()
	factoriesMu.RLock()
	factory, ok := factories[family]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", types.ErrUnsupportedFamily, family, cfg.StateMachine)
	}
	client, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", cfg.StateMachine, err)
	}
	log.Info().Str("stateMachine", cfg.StateMachine.String()).
		Str("family", family.String()).
		Msg("[Clients] [NewChainClient] client ready")
	return client, nil
}

// NewChainClients connects every configured chain, failing on the first chain that cannot be reached.
func NewChainClients(ctx context.Context, configs []common.ChainConfig) ([]common.ChainClient, error) {
	clients := make([]common.ChainClient, 0, len(configs))
	for i := range configs {
		client, err := NewChainClient(ctx, &configs[i])
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, nil
}
