package exec

import (
	"context"
	"errors"
	"testing"

	"hl-spot-bot/internal/account"
	"hl-spot-bot/internal/hl/exchange"
	"hl-spot-bot/internal/strategy"

	"go.uber.org/zap"
)

type fakeSubmitter struct {
	placed   []exchange.OrderWire
	canceled []int64
	resp     map[string]any
	err      error
}

func (f *fakeSubmitter) PlaceOrder(_ context.Context, order exchange.OrderWire) (map[string]any, error) {
	f.placed = append(f.placed, order)
	return f.resp, f.err
}

func (f *fakeSubmitter) CancelOrder(_ context.Context, _ int, orderID int64) (map[string]any, error) {
	f.canceled = append(f.canceled, orderID)
	return f.resp, f.err
}

type fakeResolver struct {
	asset int
	err   error
}

func (f *fakeResolver) SpotAssetID(context.Context, string) (int, error) {
	return f.asset, f.err
}

type fakePortfolio struct {
	state account.PortfolioState
}

func (f *fakePortfolio) GetPortfolioState(context.Context) account.PortfolioState {
	return f.state
}

func buyRequest(price, size float64) OrderRequest {
	return OrderRequest{Symbol: "BTC", Action: strategy.ActionBuy, Size: size, Price: price}
}

func TestExecuteNonCustodialBuyPayload(t *testing.T) {
	e := NewNonCustodial(&fakePortfolio{}, zap.NewNop())
	res := e.Execute(context.Background(), buyRequest(50000, 0.4))

	if res.Status != StatusPending {
		t.Fatalf("want PENDING, got %s (%s)", res.Status, res.ErrorMessage)
	}
	if res.OrderID != "WAITING_FOR_SIGNATURE" {
		t.Fatalf("unexpected order id %q", res.OrderID)
	}
	if res.Payload["coin"] != "BTC" || res.Payload["is_buy"] != true {
		t.Fatalf("unexpected payload %v", res.Payload)
	}
	if res.Payload["limit_px"] != 52500.0 {
		t.Fatalf("buy slippage: want 52500, got %v", res.Payload["limit_px"])
	}
	orderType := res.Payload["order_type"].(map[string]any)
	limit := orderType["limit"].(map[string]any)
	if limit["tif"] != "Ioc" {
		t.Fatalf("want Ioc, got %v", limit["tif"])
	}
	if res.Payload["reduce_only"] != false {
		t.Fatalf("entry orders must not be reduce-only")
	}
}

func TestExecuteSellSlippageAndRounding(t *testing.T) {
	e := NewNonCustodial(&fakePortfolio{}, zap.NewNop())
	res := e.Execute(context.Background(), OrderRequest{
		Symbol: "BTC", Action: strategy.ActionSell, Size: 0.1, Price: 33.333,
	})
	// 33.333 x 0.95 = 31.66635, rounded to one decimal
	if res.Payload["limit_px"] != 31.7 {
		t.Fatalf("sell slippage: want 31.7, got %v", res.Payload["limit_px"])
	}
}

func TestExecuteRejectsBadInput(t *testing.T) {
	e := NewNonCustodial(&fakePortfolio{}, zap.NewNop())
	if res := e.Execute(context.Background(), buyRequest(0, 1)); res.Status != StatusFailed {
		t.Fatalf("zero price must fail, got %s", res.Status)
	}
	if res := e.Execute(context.Background(), buyRequest(100, 0)); res.Status != StatusFailed {
		t.Fatalf("zero size must fail, got %s", res.Status)
	}
}

func TestExecuteCustodialFilled(t *testing.T) {
	submitter := &fakeSubmitter{resp: map[string]any{
		"status": "ok",
		"response": map[string]any{
			"type": "order",
			"data": map[string]any{
				"statuses": []any{
					map[string]any{"filled": map[string]any{
						"oid": float64(777), "totalSz": "0.4", "avgPx": "52490.0",
					}},
				},
			},
		},
	}}
	e := NewCustodial(submitter, &fakeResolver{asset: 10142}, &fakePortfolio{}, zap.NewNop())
	res := e.Execute(context.Background(), buyRequest(50000, 0.4))

	if res.Status != StatusFilled || res.OrderID != "777" {
		t.Fatalf("want FILLED/777, got %s/%s (%s)", res.Status, res.OrderID, res.ErrorMessage)
	}
	if res.FilledSize != 0.4 || res.FilledPrice != 52490.0 {
		t.Fatalf("unexpected fill detail %+v", res)
	}
	if len(submitter.placed) != 1 {
		t.Fatalf("expected one submission, got %d", len(submitter.placed))
	}
	wire := submitter.placed[0]
	if wire.Asset != 10142 || !wire.IsBuy || wire.Price != "52500" {
		t.Fatalf("unexpected wire %+v", wire)
	}
}

func TestExecuteCustodialExchangeReject(t *testing.T) {
	submitter := &fakeSubmitter{resp: map[string]any{
		"status": "ok",
		"response": map[string]any{
			"type": "order",
			"data": map[string]any{
				"statuses": []any{map[string]any{"error": "Insufficient balance"}},
			},
		},
	}}
	e := NewCustodial(submitter, &fakeResolver{asset: 10142}, &fakePortfolio{}, zap.NewNop())
	res := e.Execute(context.Background(), buyRequest(50000, 0.4))
	if res.Status != StatusFailed || res.ErrorMessage != "Insufficient balance" {
		t.Fatalf("want exchange reason, got %s/%q", res.Status, res.ErrorMessage)
	}
}

func TestExecuteCustodialTransportError(t *testing.T) {
	submitter := &fakeSubmitter{err: errors.New("connection reset")}
	e := NewCustodial(submitter, &fakeResolver{asset: 10142}, &fakePortfolio{}, zap.NewNop())
	if res := e.Execute(context.Background(), buyRequest(50000, 0.4)); res.Status != StatusFailed {
		t.Fatalf("transport error must fail, got %s", res.Status)
	}
}

func TestCloseAllPositionsInvariants(t *testing.T) {
	portfolio := &fakePortfolio{state: account.PortfolioState{
		Positions: []account.Position{
			{Symbol: "BTC", Side: account.SideLong, Size: 0.5},
			{Symbol: "ETH", Side: account.SideShort, Size: 2},
			{Symbol: "SOL", Side: account.SideLong, Size: 0},
		},
	}}
	e := NewNonCustodial(portfolio, zap.NewNop())
	results := e.CloseAllPositions(context.Background())

	if len(results) != 2 {
		t.Fatalf("zero-size positions must be skipped, got %d payloads", len(results))
	}
	for _, res := range results {
		if res.Status != StatusPending {
			t.Fatalf("close-all is always non-custodial, got %s", res.Status)
		}
		if res.Payload["reduce_only"] != true {
			t.Fatalf("close payload must be reduce-only: %v", res.Payload)
		}
		if res.Payload["limit_px"] != 0.0 {
			t.Fatalf("close payload must carry the market sentinel price: %v", res.Payload)
		}
		if sz := res.Payload["sz"].(float64); sz <= 0 {
			t.Fatalf("close payload size must be positive, got %f", sz)
		}
	}
	if results[0].Payload["is_buy"] != false {
		t.Fatalf("long exits must sell")
	}
	if results[1].Payload["is_buy"] != true {
		t.Fatalf("short exits must buy")
	}
}

func TestCancelOrderNonCustodialPayload(t *testing.T) {
	e := NewNonCustodial(&fakePortfolio{}, zap.NewNop())
	res := e.CancelOrder(context.Background(), "12345", "BTC")
	if res.Status != StatusPending {
		t.Fatalf("want PENDING, got %s", res.Status)
	}
	if res.Payload["type"] != "cancel" || res.Payload["oid"] != int64(12345) {
		t.Fatalf("unexpected cancel payload %v", res.Payload)
	}
}

func TestCancelOrderCustodialSubmits(t *testing.T) {
	submitter := &fakeSubmitter{resp: map[string]any{"status": "ok"}}
	e := NewCustodial(submitter, &fakeResolver{asset: 10142}, &fakePortfolio{}, zap.NewNop())
	res := e.CancelOrder(context.Background(), "12345", "BTC")
	if res.Status != StatusFilled {
		t.Fatalf("want FILLED, got %s (%s)", res.Status, res.ErrorMessage)
	}
	if len(submitter.canceled) != 1 || submitter.canceled[0] != 12345 {
		t.Fatalf("cancel not submitted: %v", submitter.canceled)
	}
}
