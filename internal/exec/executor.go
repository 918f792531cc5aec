package exec

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"hl-spot-bot/internal/account"
	"hl-spot-bot/internal/hl/exchange"
	"hl-spot-bot/internal/strategy"

	"go.uber.org/zap"
)

type OrderStatus string

const (
	StatusFilled  OrderStatus = "FILLED"
	StatusPending OrderStatus = "PENDING"
	StatusFailed  OrderStatus = "FAILED"
)

const slippagePct = 0.05

type OrderRequest struct {
	Symbol     string
	Action     strategy.TradeAction
	Size       float64
	Price      float64
	ReduceOnly bool
}

// OrderResult carries either an exchange acknowledgement (custodial)
// or an unsigned payload for an external signer (non-custodial).
type OrderResult struct {
	OrderID      string
	Status       OrderStatus
	FilledSize   float64
	FilledPrice  float64
	Payload      map[string]any
	ErrorMessage string
}

// Submitter is the signing exchange client used in custodial mode.
type Submitter interface {
	PlaceOrder(ctx context.Context, order exchange.OrderWire) (map[string]any, error)
	CancelOrder(ctx context.Context, asset int, orderID int64) (map[string]any, error)
}

// AssetResolver maps a token name to the exchange's spot asset id.
type AssetResolver interface {
	SpotAssetID(ctx context.Context, coin string) (int, error)
}

// PortfolioSource supplies the positions close-all iterates over.
type PortfolioSource interface {
	GetPortfolioState(ctx context.Context) account.PortfolioState
}

// Executor turns sized decisions into orders. The mode is fixed at
// construction: custodial signs and submits, non-custodial only
// constructs payloads and never touches the key.
type Executor struct {
	custodial bool
	client    Submitter
	assets    AssetResolver
	portfolio PortfolioSource
	log       *zap.Logger
}

func NewCustodial(client Submitter, assets AssetResolver, portfolio PortfolioSource, log *zap.Logger) *Executor {
	return &Executor{custodial: true, client: client, assets: assets, portfolio: portfolio, log: log}
}

func NewNonCustodial(portfolio PortfolioSource, log *zap.Logger) *Executor {
	return &Executor{custodial: false, portfolio: portfolio, log: log}
}

func (e *Executor) Custodial() bool {
	return e.custodial
}

// Execute places or prepares one immediate-or-cancel order at the
// signal price padded by the slippage allowance. Any construction or
// exchange error comes back as a FAILED result, never a partial order.
func (e *Executor) Execute(ctx context.Context, req OrderRequest) OrderResult {
	if req.Price <= 0 {
		return failed("price required for execution")
	}
	if req.Size <= 0 {
		return failed("size must be positive")
	}
	isBuy := req.Action == strategy.ActionBuy

	execPrice := req.Price * (1 - slippagePct)
	if isBuy {
		execPrice = req.Price * (1 + slippagePct)
	}
	execPrice = roundPrice(execPrice)

	e.log.Info("preparing order",
		zap.String("symbol", req.Symbol),
		zap.String("action", string(req.Action)),
		zap.Float64("size", req.Size),
		zap.Float64("limit_px", execPrice),
		zap.Bool("custodial", e.custodial),
	)

	if !e.custodial {
		return OrderResult{
			OrderID: "WAITING_FOR_SIGNATURE",
			Status:  StatusPending,
			Payload: orderPayload(req.Symbol, isBuy, req.Size, execPrice, req.ReduceOnly),
		}
	}
	return e.submit(ctx, req, isBuy, execPrice)
}

func (e *Executor) submit(ctx context.Context, req OrderRequest, isBuy bool, execPrice float64) OrderResult {
	asset, err := e.assets.SpotAssetID(ctx, req.Symbol)
	if err != nil {
		return failed(fmt.Sprintf("resolve asset: %v", err))
	}
	wire, err := exchange.LimitOrderWire(asset, isBuy, req.Size, execPrice, req.ReduceOnly, exchange.TifIoc, "")
	if err != nil {
		return failed(fmt.Sprintf("build order: %v", err))
	}
	resp, err := e.client.PlaceOrder(ctx, wire)
	if err != nil {
		return failed(fmt.Sprintf("submit order: %v", err))
	}
	ack := exchange.ParseOrderAck(resp)
	if !ack.Filled() {
		reason := ack.Err
		if reason == "" {
			reason = "order not acknowledged"
		}
		return failed(reason)
	}
	return OrderResult{
		OrderID:     ack.OrderID,
		Status:      StatusFilled,
		FilledSize:  ack.FilledSize,
		FilledPrice: ack.FilledPrice,
	}
}

// CloseAllPositions builds one reduce-only exit payload per held
// position. Payload construction stays non-custodial in both modes;
// the market sentinel price 0 leaves aggression to the signer.
func (e *Executor) CloseAllPositions(ctx context.Context) []OrderResult {
	state := e.portfolio.GetPortfolioState(ctx)
	results := make([]OrderResult, 0, len(state.Positions))
	for _, pos := range state.Positions {
		if pos.Size <= 0 {
			continue
		}
		isBuy := pos.Side == account.SideShort
		e.log.Warn("panic close",
			zap.String("symbol", pos.Symbol),
			zap.Float64("size", pos.Size),
			zap.Bool("is_buy", isBuy),
		)
		results = append(results, OrderResult{
			OrderID: "WAITING_FOR_SIGNATURE",
			Status:  StatusPending,
			Payload: orderPayload(pos.Symbol, isBuy, pos.Size, 0, true),
		})
	}
	return results
}

// CancelOrder cancels by exchange order id: submitted directly in
// custodial mode, returned as a payload otherwise.
func (e *Executor) CancelOrder(ctx context.Context, orderID, symbol string) OrderResult {
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return failed(fmt.Sprintf("invalid order id %q", orderID))
	}
	if !e.custodial {
		return OrderResult{
			OrderID: orderID,
			Status:  StatusPending,
			Payload: map[string]any{"type": "cancel", "coin": symbol, "oid": oid},
		}
	}
	asset, err := e.assets.SpotAssetID(ctx, symbol)
	if err != nil {
		return failed(fmt.Sprintf("resolve asset: %v", err))
	}
	resp, err := e.client.CancelOrder(ctx, asset, oid)
	if err != nil {
		return failed(fmt.Sprintf("cancel order: %v", err))
	}
	ack := exchange.ParseOrderAck(resp)
	if ack.Err != "" {
		return failed(ack.Err)
	}
	return OrderResult{OrderID: orderID, Status: StatusFilled}
}

func orderPayload(symbol string, isBuy bool, size, limitPx float64, reduceOnly bool) map[string]any {
	return map[string]any{
		"coin":        symbol,
		"is_buy":      isBuy,
		"sz":          size,
		"limit_px":    limitPx,
		"order_type":  map[string]any{"limit": map[string]any{"tif": "Ioc"}},
		"reduce_only": reduceOnly,
	}
}

func failed(msg string) OrderResult {
	return OrderResult{Status: StatusFailed, ErrorMessage: msg}
}

func roundPrice(px float64) float64 {
	return math.Round(px*10) / 10
}
