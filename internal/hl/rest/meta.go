package rest

import (
	"context"
	"fmt"
)

const spotAssetOffset = 10000

// SpotAssetID resolves a base token name (for example "BTC") to the
// asset id the exchange expects for spot orders: 10000 plus the index
// of the token's USDC pair in the spot universe.
func (c *Client) SpotAssetID(ctx context.Context, coin string) (int, error) {
	meta, err := c.Info(ctx, InfoRequest{Type: "spotMeta"})
	if err != nil {
		return 0, fmt.Errorf("spot meta: %w", err)
	}

	tokenIndex := -1
	tokens, _ := meta["tokens"].([]any)
	for _, raw := range tokens {
		token, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if name, _ := token["name"].(string); name == coin {
			if idx, ok := token["index"].(float64); ok {
				tokenIndex = int(idx)
			}
			break
		}
	}
	if tokenIndex < 0 {
		return 0, fmt.Errorf("token %q not in spot meta", coin)
	}

	universe, _ := meta["universe"].([]any)
	for _, raw := range universe {
		pair, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		legs, ok := pair["tokens"].([]any)
		if !ok || len(legs) != 2 {
			continue
		}
		base, baseOK := legs[0].(float64)
		quote, quoteOK := legs[1].(float64)
		if !baseOK || !quoteOK || int(base) != tokenIndex || int(quote) != 0 {
			continue
		}
		idx, ok := pair["index"].(float64)
		if !ok {
			continue
		}
		return spotAssetOffset + int(idx), nil
	}
	return 0, fmt.Errorf("no USDC pair for token %q", coin)
}
