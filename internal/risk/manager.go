package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"hl-spot-bot/internal/account"
	"hl-spot-bot/internal/state"
	"hl-spot-bot/internal/strategy"

	"go.uber.org/zap"
)

const (
	bullAllocationPct = 0.80
	bearAllocationPct = 0.20
	sizePrecision     = 5
)

var (
	ErrHoldSignal        = errors.New("hold signal never trades")
	ErrLiquidityReserve  = errors.New("insufficient liquidity reserve")
	ErrLockedAssetFloor  = errors.New("locked asset at or below retention floor")
	ErrInvalidAllocation = errors.New("lock percentages must be within 0-100")
)

// Manager holds the mutable safety locks and applies them to incoming
// signals. Locks change only through UpdateAllocation; they are never
// inferred from market state.
type Manager struct {
	mu          sync.RWMutex
	usdcLockPct float64
	btcLockPct  float64

	lockedAsset string
	store       state.Store
	log         *zap.Logger
	now         func() time.Time
}

// NewManager seeds the locks from configuration, then lets a persisted
// snapshot take precedence so admin updates survive restarts.
func NewManager(ctx context.Context, store state.Store, log *zap.Logger, lockedAsset string, usdcLockPct, btcLockPct float64) (*Manager, error) {
	if err := checkLockPct(usdcLockPct, btcLockPct); err != nil {
		return nil, err
	}
	m := &Manager{
		usdcLockPct: usdcLockPct,
		btcLockPct:  btcLockPct,
		lockedAsset: lockedAsset,
		store:       store,
		log:         log,
		now:         time.Now,
	}
	snapshot, ok, err := state.LoadAllocation(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("load allocation: %w", err)
	}
	if ok {
		if err := checkLockPct(snapshot.USDCLockPct, snapshot.BTCLockPct); err != nil {
			log.Warn("persisted allocation out of range, keeping configured locks",
				zap.Float64("usdc_lock_pct", snapshot.USDCLockPct),
				zap.Float64("btc_lock_pct", snapshot.BTCLockPct),
			)
		} else {
			m.usdcLockPct = snapshot.USDCLockPct
			m.btcLockPct = snapshot.BTCLockPct
		}
	}
	return m, nil
}

// UpdateAllocation replaces both locks atomically and persists them.
func (m *Manager) UpdateAllocation(ctx context.Context, usdcLockPct, btcLockPct float64) error {
	if err := checkLockPct(usdcLockPct, btcLockPct); err != nil {
		return err
	}
	m.mu.Lock()
	m.usdcLockPct = usdcLockPct
	m.btcLockPct = btcLockPct
	m.mu.Unlock()

	m.log.Info("risk allocation updated",
		zap.Float64("usdc_lock_pct", usdcLockPct),
		zap.Float64("btc_lock_pct", btcLockPct),
	)
	return state.SaveAllocation(ctx, m.store, state.AllocationSnapshot{
		USDCLockPct: usdcLockPct,
		BTCLockPct:  btcLockPct,
		UpdatedAtMS: m.now().UnixMilli(),
	})
}

// Allocation reports the current locks as configured percentages.
func (m *Manager) Allocation() (usdcLockPct, btcLockPct float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usdcLockPct, m.btcLockPct
}

// Validate applies the rejection rules in order and returns the first
// failure. A nil return approves the signal for sizing.
func (m *Manager) Validate(signal strategy.TradingSignal, portfolio account.PortfolioState) error {
	if signal.Action == strategy.ActionHold {
		return ErrHoldSignal
	}
	usdcLock, btcLock := m.Allocation()

	if signal.Action == strategy.ActionBuy {
		reserve := portfolio.TotalEquity * usdcLock / 100
		if portfolio.AvailableBalance < reserve {
			m.log.Warn("rejecting buy, reserve breached",
				zap.Float64("available", portfolio.AvailableBalance),
				zap.Float64("required", reserve),
			)
			return fmt.Errorf("%w: available %.2f below required %.2f", ErrLiquidityReserve, portfolio.AvailableBalance, reserve)
		}
	}

	if signal.Action == strategy.ActionSell && signal.Symbol == m.lockedAsset {
		floor := portfolio.TotalEquity * btcLock / 100
		heldValue := heldSize(portfolio, signal.Symbol) * signal.Price
		if heldValue <= floor {
			m.log.Warn("rejecting sell, retention floor reached",
				zap.Float64("held_value", heldValue),
				zap.Float64("floor", floor),
			)
			return fmt.Errorf("%w: held %.2f at floor %.2f", ErrLockedAssetFloor, heldValue, floor)
		}
	}
	return nil
}

// CalculateSize converts an approved signal into a base-asset quantity
// that keeps crypto exposure inside the regime allocation. A zero
// return means no trade, not a failure.
func (m *Manager) CalculateSize(signal strategy.TradingSignal, portfolio account.PortfolioState) float64 {
	if signal.Price <= 0 {
		m.log.Error("signal carries no usable price", zap.String("symbol", signal.Symbol))
		return 0
	}

	targetPct := bearAllocationPct
	if signal.Regime == strategy.RegimeBull {
		targetPct = bullAllocationPct
	}
	targetValue := portfolio.TotalEquity * targetPct

	exposure := 0.0
	for _, pos := range portfolio.Positions {
		exposure += pos.Size * signal.Price
	}

	if signal.Action == strategy.ActionSell {
		return m.sellSize(signal, portfolio, exposure)
	}

	capacity := math.Max(0, targetValue-exposure)
	tradeable := math.Min(portfolio.AvailableBalance, capacity)
	if tradeable <= 0 {
		m.log.Info("allocation limit reached",
			zap.String("regime", string(signal.Regime)),
			zap.Float64("target_pct", targetPct*100),
		)
		return 0
	}
	return roundSize(tradeable / signal.Price)
}

// sellSize trims exposure back toward the retention floor without
// selling more than is actually held.
func (m *Manager) sellSize(signal strategy.TradingSignal, portfolio account.PortfolioState, exposure float64) float64 {
	_, btcLock := m.Allocation()
	floor := portfolio.TotalEquity * btcLock / 100
	sellable := math.Max(0, exposure-floor) / signal.Price
	held := heldSize(portfolio, signal.Symbol)
	size := math.Min(held, sellable)
	if size <= 0 {
		return 0
	}
	return roundSize(size)
}

func heldSize(portfolio account.PortfolioState, symbol string) float64 {
	total := 0.0
	for _, pos := range portfolio.Positions {
		if pos.Symbol == symbol {
			total += pos.Size
		}
	}
	return total
}

func checkLockPct(usdcLockPct, btcLockPct float64) error {
	for _, pct := range []float64{usdcLockPct, btcLockPct} {
		if pct < 0 || pct > 100 || math.IsNaN(pct) {
			return fmt.Errorf("%w: got usdc=%.2f btc=%.2f", ErrInvalidAllocation, usdcLockPct, btcLockPct)
		}
	}
	return nil
}

func roundSize(size float64) float64 {
	scale := math.Pow10(sizePrecision)
	return math.Round(size*scale) / scale
}
