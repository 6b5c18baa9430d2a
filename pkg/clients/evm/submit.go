package evm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

// Submit sends the message to the handler contract and waits for it to be mined.
func (c *EvmClient) Submit(ctx context.Context, msg types.Message) (types.EventMetadata, error) {
	if c.auth == nil {
		return types.EventMetadata{}, fmt.Errorf("signer is not configured for %s", c.Config.StateMachine)
	}
	if c.HandlerAddress == (common.Address{}) {
		return types.EventMetadata{}, fmt.Errorf("handler address is not configured for %s", c.Config.StateMachine)
	}
	calldata, err := c.Encode(msg)
	if err != nil {
		return types.EventMetadata{}, err
	}
	opts := *c.auth
	opts.Context = ctx
	tx, err := c.handler.RawTransact(&opts, calldata)
	if err != nil {
		return types.EventMetadata{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	log.Info().Str("stateMachine", c.Config.StateMachine.String()).
		Str("txHash", tx.Hash().Hex()).
		Str("from", opts.From.Hex()).
		Msg("[EvmClient] [Submit] transaction sent, waiting for receipt")
	receipt, err := bind.WaitMined(ctx, c.Client, tx)
	if err != nil {
		return types.EventMetadata{}, fmt.Errorf("failed to wait for transaction receipt: %w", err)
	}
	meta := types.EventMetadata{
		BlockHash:       receipt.BlockHash,
		TransactionHash: receipt.TxHash,
		BlockNumber:     receipt.BlockNumber.Uint64(),
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return meta, fmt.Errorf("transaction %s reverted in block %d", receipt.TxHash.Hex(), meta.BlockNumber)
	}
	log.Debug().Str("txHash", receipt.TxHash.Hex()).
		Uint64("blockNumber", meta.BlockNumber).
		Uint64("gasUsed", receipt.GasUsed).
		Msg("[EvmClient] [Submit] transaction mined")
	return meta, nil
}
