package account

import (
	"context"
	"strconv"
	"time"

	"hl-spot-bot/internal/hl/rest"

	"go.uber.org/zap"
)

type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

type Position struct {
	Symbol        string
	Side          PositionSide
	Size          float64
	EntryPrice    float64
	UnrealizedPNL float64
}

// PortfolioState is one snapshot of the spot account. It is fetched
// fresh every cycle and never cached across cycles.
type PortfolioState struct {
	TotalEquity      float64
	AvailableBalance float64
	Positions        []Position
	Timestamp        time.Time
}

// Fetcher reads spot balances through the info endpoint. It is
// read-only and needs no signing key.
type Fetcher struct {
	rest    *rest.Client
	log     *zap.Logger
	address string
	now     func() time.Time
}

func NewFetcher(restClient *rest.Client, log *zap.Logger, address string) *Fetcher {
	if address == "" {
		log.Warn("account address not set, portfolio state will be empty")
	}
	return &Fetcher{rest: restClient, log: log, address: address, now: time.Now}
}

// GetPortfolioState returns the current snapshot. Fetch and parse
// failures degrade to a zeroed state; the caller never sees an error.
func (f *Fetcher) GetPortfolioState(ctx context.Context) PortfolioState {
	empty := PortfolioState{Positions: []Position{}, Timestamp: f.now().UTC()}
	if f.address == "" {
		return empty
	}

	resp, err := f.rest.Info(ctx, rest.InfoRequest{Type: "spotClearinghouseState", User: f.address})
	if err != nil {
		f.log.Error("fetching account state failed", zap.Error(err))
		return empty
	}

	balances, ok := resp["balances"].([]any)
	if !ok {
		f.log.Warn("spot state missing balances")
		return empty
	}

	state := empty
	for _, raw := range balances {
		bal, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		coin, _ := bal["coin"].(string)
		total := floatField(bal, "total")
		hold := floatField(bal, "hold")

		if coin == "USDC" {
			state.TotalEquity = total
			state.AvailableBalance = total - hold
			continue
		}
		if total > 0 {
			state.Positions = append(state.Positions, Position{
				Symbol: coin,
				Side:   SideLong,
				Size:   total,
			})
		}
	}
	return state
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	case float64:
		return v
	}
	return 0
}
