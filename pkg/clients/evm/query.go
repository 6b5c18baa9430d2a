package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

func (c *EvmClient) QueryTimestamp(ctx context.Context) (time.Duration, error) {
	return retryCall(ctx, c, "eth_getBlockByNumber", func() (time.Duration, error) {
		header, err := c.Client.HeaderByNumber(ctx, nil)
		if err != nil {
			return 0, err
		}
		return time.Duration(header.Time) * time.Second, nil
	})
}

func (c *EvmClient) QueryLatestBlockHeight(ctx context.Context) (uint64, error) {
	return retryCall(ctx, c, "eth_blockNumber", func() (uint64, error) {
		return c.Client.BlockNumber(ctx)
	})
}

func (c *EvmClient) callHost(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	return retryCall(ctx, c, method, func() ([]interface{}, error) {
		var out []interface{}
		if err := c.host.Call(c.callOpts(ctx, nil), &out, method, args...); err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("empty result from %s", method)
		}
		return out, nil
	})
}

func (c *EvmClient) QueryLatestStateMachineHeight(ctx context.Context, of types.StateMachineId) (uint64, error) {
	id, err := of.StateId.NumericID()
	if err != nil {
		return 0, err
	}
	out, err := c.callHost(ctx, METHOD_LATEST_STATE_MACHINE_HEIGHT, new(big.Int).SetUint64(id))
	if err != nil {
		return 0, err
	}
	height := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return height.Uint64(), nil
}

func (c *EvmClient) QueryRequestReceipt(ctx context.Context, commitment common.Hash) (types.RelayerAddress, error) {
	out, err := c.callHost(ctx, METHOD_REQUEST_RECEIPTS, [32]byte(commitment))
	if err != nil {
		return nil, err
	}
	relayer := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if relayer == (common.Address{}) {
		return nil, nil
	}
	return types.RelayerAddress(relayer.Bytes()), nil
}

func heightAbi(height types.StateMachineHeight) (StateMachineHeightAbi, error) {
	id, err := height.Id.StateId.NumericID()
	if err != nil {
		return StateMachineHeightAbi{}, err
	}
	return StateMachineHeightAbi{
		StateMachineId: new(big.Int).SetUint64(id),
		Height:         new(big.Int).SetUint64(height.Height),
	}, nil
}

func (c *EvmClient) QueryStateMachineCommitment(ctx context.Context, height types.StateMachineHeight) (types.StateCommitment, error) {
	arg, err := heightAbi(height)
	if err != nil {
		return types.StateCommitment{}, err
	}
	out, err := c.callHost(ctx, METHOD_STATE_MACHINE_COMMITMENT, arg)
	if err != nil {
		return types.StateCommitment{}, err
	}
	commitment := *abi.ConvertType(out[0], new(StateCommitmentAbi)).(*StateCommitmentAbi)
	result := types.StateCommitment{StateRoot: commitment.StateRoot}
	if commitment.Timestamp != nil {
		result.Timestamp = commitment.Timestamp.Uint64()
	}
	if commitment.OverlayRoot != ([32]byte{}) {
		overlay := common.Hash(commitment.OverlayRoot)
		result.OverlayRoot = &overlay
	}
	return result, nil
}

// QueryChallengePeriod returns the host challenge period. EVM hosts apply one period to every
// state machine, so the value is cached per client.
func (c *EvmClient) QueryChallengePeriod(ctx context.Context, of types.StateMachineId) (time.Duration, error) {
	key := c.cacheKey(METHOD_CHALLENGE_PERIOD, of)
	if cached, found := c.cache.Get(key); found {
		return cached.(time.Duration), nil
	}
	out, err := c.callHost(ctx, METHOD_CHALLENGE_PERIOD)
	if err != nil {
		return 0, err
	}
	period := seconds(*abi.ConvertType(out[0], new(*big.Int)).(**big.Int))
	c.cache.Set(key, period, cache.DefaultExpiration)
	return period, nil
}

func (c *EvmClient) QueryStateMachineUpdateTime(ctx context.Context, height types.StateMachineHeight) (time.Duration, error) {
	arg, err := heightAbi(height)
	if err != nil {
		return 0, err
	}
	out, err := c.callHost(ctx, METHOD_STATE_MACHINE_COMMITMENT_UPDATE_TIME, arg)
	if err != nil {
		return 0, err
	}
	return seconds(*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)), nil
}

// QueryStateProof returns an eth_getProof proof of the given full keys at height, abi encoded as
// (bytes[] accountProof, bytes[][] storageProofs). All keys must belong to one contract.
func (c *EvmClient) QueryStateProof(ctx context.Context, height uint64, keys [][]byte) ([]byte, error) {
	account, slots, err := splitFullKeys(keys)
	if err != nil {
		return nil, err
	}
	if c.GethClient == nil {
		return nil, fmt.Errorf("state proofs are not available for %s", c.Config.StateMachine)
	}
	result, err := retryCall(ctx, c, "eth_getProof", func() (*gethclient.AccountResult, error) {
		return c.GethClient.GetProof(ctx, account, slots, new(big.Int).SetUint64(height))
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("account", account.Hex()).
		Uint64("height", height).
		Int("keys", len(slots)).
		Msg("[EvmClient] [QueryStateProof] fetched proof")
	return encodeAccountProof(result)
}

func splitFullKeys(keys [][]byte) (common.Address, []string, error) {
	if len(keys) == 0 {
		return common.Address{}, nil, fmt.Errorf("no keys to prove")
	}
	var account common.Address
	slots := make([]string, 0, len(keys))
	for i, key := range keys {
		if len(key) != common.AddressLength+common.HashLength {
			return common.Address{}, nil, fmt.Errorf("invalid full key length %d", len(key))
		}
		address := common.BytesToAddress(key[:common.AddressLength])
		if i == 0 {
			account = address
		} else if address != account {
			return common.Address{}, nil, fmt.Errorf("keys span multiple accounts %s and %s", account.Hex(), address.Hex())
		}
		slots = append(slots, hexutil.Encode(key[common.AddressLength:]))
	}
	return account, slots, nil
}

func encodeAccountProof(result *gethclient.AccountResult) ([]byte, error) {
	accountProof, err := decodeNodes(result.AccountProof)
	if err != nil {
		return nil, err
	}
	storageProofs := make([][][]byte, 0, len(result.StorageProof))
	for _, storage := range result.StorageProof {
		nodes, err := decodeNodes(storage.Proof)
		if err != nil {
			return nil, err
		}
		storageProofs = append(storageProofs, nodes)
	}
	return proofArguments.Pack(accountProof, storageProofs)
}

func decodeNodes(nodes []string) ([][]byte, error) {
	decoded := make([][]byte, 0, len(nodes))
	for _, node := range nodes {
		raw, err := hexutil.Decode(node)
		if err != nil {
			return nil, fmt.Errorf("invalid proof node: %w", err)
		}
		decoded = append(decoded, raw)
	}
	return decoded, nil
}
