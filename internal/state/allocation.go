package state

import (
	"context"
	"encoding/json"
	"strings"
)

const AllocationKey = "risk:allocation"

// AllocationSnapshot is the persisted form of the admin-set safety
// locks. Percentages are stored as configured (0-100).
type AllocationSnapshot struct {
	USDCLockPct float64 `json:"usdc_lock_pct"`
	BTCLockPct  float64 `json:"btc_lock_pct"`
	UpdatedAtMS int64   `json:"updated_at_ms"`
}

func LoadAllocation(ctx context.Context, store Store) (AllocationSnapshot, bool, error) {
	if store == nil {
		return AllocationSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, AllocationKey)
	if err != nil {
		return AllocationSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return AllocationSnapshot{}, false, nil
	}
	var snapshot AllocationSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return AllocationSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveAllocation(ctx context.Context, store Store, snapshot AllocationSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, AllocationKey, string(payload))
}
