package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	clients "github.com/scalarorg/ismp-relayer/pkg/clients/common"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

// EvmClient talks to the ISMP host and handler contracts of an EVM chain.
type EvmClient struct {
	Config         *clients.ChainConfig
	Client         *ethclient.Client
	GethClient     *gethclient.Client
	HostAddress    common.Address
	HandlerAddress common.Address
	host           *bind.BoundContract
	handler        *bind.BoundContract
	stateMachineId types.StateMachineId
	auth           *bind.TransactOpts
	cache          *cache.Cache
}

var _ clients.ChainClient = (*EvmClient)(nil)

func NewEvmClient(ctx context.Context, cfg *clients.ChainConfig) (*EvmClient, error) {
	log.Info().Str("stateMachine", cfg.StateMachine.String()).
		Str("host", cfg.HostAddress).
		Msg("[EvmClient] [NewEvmClient] connecting to EVM network")
	rpcClient, err := rpc.DialContext(ctx, cfg.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM network %s: %w", cfg.StateMachine, err)
	}
	client, err := newEvmClient(cfg, ethclient.NewClient(rpcClient))
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	client.GethClient = gethclient.New(rpcClient)
	if cfg.PrivateKey != "" {
		chainID, err := client.Client.ChainID(ctx)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("failed to query chain id of %s: %w", cfg.StateMachine, err)
		}
		auth, err := CreateTransactOpts(cfg, chainID)
		if err != nil {
			rpcClient.Close()
			return nil, err
		}
		client.auth = auth
	} else {
		log.Warn().Str("stateMachine", cfg.StateMachine.String()).
			Msg("[EvmClient] [NewEvmClient] private key is not set, submissions are disabled")
	}
	return client, nil
}

// newEvmClient builds a client around an existing connection without touching the network.
func newEvmClient(cfg *clients.ChainConfig, client *ethclient.Client) (*EvmClient, error) {
	if cfg.StateMachine.Family() != types.ChainFamilyEvm {
		return nil, fmt.Errorf("%w: %s is not an evm state machine", types.ErrUnsupportedFamily, cfg.StateMachine)
	}
	applyDefaults(cfg)
	id, err := cfg.StateMachineId()
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(cfg.HostAddress) {
		return nil, fmt.Errorf("invalid host address %q for %s", cfg.HostAddress, cfg.StateMachine)
	}
	handler := common.Address{}
	if cfg.HandlerAddress != "" {
		if !common.IsHexAddress(cfg.HandlerAddress) {
			return nil, fmt.Errorf("invalid handler address %q for %s", cfg.HandlerAddress, cfg.StateMachine)
		}
		handler = common.HexToAddress(cfg.HandlerAddress)
	}
	hostAddress := common.HexToAddress(cfg.HostAddress)
	return &EvmClient{
		Config:         cfg,
		Client:         client,
		HostAddress:    hostAddress,
		HandlerAddress: handler,
		host:           bind.NewBoundContract(hostAddress, *hostAbi, client, client, client),
		handler:        bind.NewBoundContract(handler, *handlerAbi, client, client, client),
		stateMachineId: id,
		cache:          cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}, nil
}

func applyDefaults(cfg *clients.ChainConfig) {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DEFAULT_GAS_LIMIT
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DEFAULT_MAX_RETRIES
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = DEFAULT_RETRY_INTERVAL
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DEFAULT_CACHE_TTL
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DEFAULT_POLL_INTERVAL
	}
	if cfg.LogRange == 0 {
		cfg.LogRange = DEFAULT_LOG_RANGE
	}
	if cfg.ReceiptsSlot == 0 && cfg.CommitmentsSlot == 0 {
		cfg.CommitmentsSlot = DEFAULT_COMMITMENTS_SLOT
		cfg.ReceiptsSlot = DEFAULT_RECEIPTS_SLOT
	}
}

func CreateTransactOpts(cfg *clients.ChainConfig, chainID *big.Int) (*bind.TransactOpts, error) {
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("private key is not set for network %s", cfg.StateMachine)
	}
	privateKey, err := crypto.HexToECDSA(trimHexPrefix(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key for network %s: %w", cfg.StateMachine, err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth for network %s: %w", cfg.StateMachine, err)
	}
	auth.GasLimit = cfg.GasLimit
	return auth, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func (c *EvmClient) SetAuth(auth *bind.TransactOpts) {
	c.auth = auth
}

func (c *EvmClient) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

func (c *EvmClient) StateMachineID() types.StateMachineId {
	return c.stateMachineId
}

// storageSlot is the solidity storage location of mapping[commitment] for a mapping at slot.
func storageSlot(commitment common.Hash, slot uint64) common.Hash {
	return crypto.Keccak256Hash(commitment.Bytes(), common.BigToHash(new(big.Int).SetUint64(slot)).Bytes())
}

// fullKey prefixes a storage slot with the host address so proofs can locate the account.
func (c *EvmClient) fullKey(commitment common.Hash, slot uint64) []byte {
	key := make([]byte, 0, common.AddressLength+common.HashLength)
	key = append(key, c.HostAddress.Bytes()...)
	return append(key, storageSlot(commitment, slot).Bytes()...)
}

func (c *EvmClient) RequestReceiptFullKey(commitment common.Hash) []byte {
	return c.fullKey(commitment, c.Config.ReceiptsSlot)
}

func (c *EvmClient) RequestCommitmentFullKey(commitment common.Hash) []byte {
	return c.fullKey(commitment, c.Config.CommitmentsSlot)
}

func (c *EvmClient) callOpts(ctx context.Context, height *big.Int) *bind.CallOpts {
	opts := &bind.CallOpts{Context: ctx, BlockNumber: height}
	if c.auth != nil {
		opts.From = c.auth.From
	}
	return opts
}

func (c *EvmClient) cacheKey(kind string, id fmt.Stringer) string {
	return fmt.Sprintf("%s:%s", kind, id)
}

func seconds(value *big.Int) time.Duration {
	if value == nil {
		return 0
	}
	if !value.IsUint64() || value.Uint64() > uint64(1<<63-1)/uint64(time.Second) {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(value.Uint64()) * time.Second
}
