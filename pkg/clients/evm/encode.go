package evm

import (
	"fmt"

	"github.com/scalarorg/ismp-relayer/pkg/types"
)

func toPostRequestAbi(post types.PostRequest) PostRequestAbi {
	return PostRequestAbi{
		Source:           []byte(post.Source),
		Dest:             []byte(post.Dest),
		Nonce:            post.Nonce,
		From:             post.From,
		To:               post.To,
		TimeoutTimestamp: post.TimeoutTimestamp,
		Body:             post.Body,
	}
}

func toPostRequestsAbi(posts []types.PostRequest) []PostRequestAbi {
	requests := make([]PostRequestAbi, 0, len(posts))
	for _, post := range posts {
		requests = append(requests, toPostRequestAbi(post))
	}
	return requests
}

// proofNodes wraps an opaque proof as the single node the handler receives.
func proofNodes(proof []byte) [][]byte {
	return [][]byte{proof}
}

// Encode builds handler calldata for a message.
func (c *EvmClient) Encode(msg types.Message) ([]byte, error) {
	switch m := msg.(type) {
	case types.RequestMessage:
		height, err := heightAbi(m.Proof.Height)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrEncodingFailure, err)
		}
		return c.pack(METHOD_HANDLE_POST_REQUESTS, PostRequestMessageAbi{
			Proof:    StateProofAbi{Height: height, Proof: proofNodes(m.Proof.Proof)},
			Requests: toPostRequestsAbi(m.Requests),
			Signer:   m.Signer,
		})
	case types.TimeoutMessage:
		height, err := heightAbi(m.TimeoutProof.Height)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrEncodingFailure, err)
		}
		return c.pack(METHOD_HANDLE_POST_REQUEST_TIMEOUTS, PostRequestTimeoutMessageAbi{
			Timeouts: toPostRequestsAbi(m.Requests),
			Height:   height,
			Proof:    proofNodes(m.TimeoutProof.Proof),
		})
	default:
		return nil, fmt.Errorf("%w: unsupported message %T", types.ErrEncodingFailure, msg)
	}
}

func (c *EvmClient) pack(method string, message interface{}) ([]byte, error) {
	calldata, err := handlerAbi.Pack(method, c.HostAddress, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrEncodingFailure, method, err)
	}
	return calldata, nil
}
