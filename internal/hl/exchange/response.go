package exchange

import "strconv"

// OrderAck is the flattened outcome of one order submission.
type OrderAck struct {
	OrderID     string
	FilledSize  float64
	FilledPrice float64
	Err         string
}

// Filled reports whether the exchange confirmed the order. Resting
// acknowledgements count too; for Ioc orders they do not occur.
func (a OrderAck) Filled() bool {
	return a.Err == "" && a.OrderID != ""
}

// ParseOrderAck digs the first order status out of an /exchange
// response. Unknown shapes come back as an empty ack, which callers
// treat as a failure.
func ParseOrderAck(resp map[string]any) OrderAck {
	if resp == nil {
		return OrderAck{Err: "empty response"}
	}
	if status, _ := resp["status"].(string); status == "err" {
		msg, _ := resp["response"].(string)
		if msg == "" {
			msg = "exchange rejected action"
		}
		return OrderAck{Err: msg}
	}
	st := firstStatus(resp)
	if st == nil {
		return OrderAck{OrderID: orderIDFromAny(resp)}
	}
	if msg, ok := st["error"].(string); ok && msg != "" {
		return OrderAck{Err: msg}
	}
	for _, key := range []string{"filled", "resting"} {
		detail, ok := st[key].(map[string]any)
		if !ok {
			continue
		}
		return OrderAck{
			OrderID:     stringFromAny(detail["oid"]),
			FilledSize:  floatFromAny(detail["totalSz"]),
			FilledPrice: floatFromAny(detail["avgPx"]),
		}
	}
	return OrderAck{OrderID: orderIDFromAny(st)}
}

func firstStatus(resp map[string]any) map[string]any {
	response, ok := resp["response"].(map[string]any)
	if !ok {
		return nil
	}
	data, ok := response["data"].(map[string]any)
	if !ok {
		return nil
	}
	statuses, ok := data["statuses"].([]any)
	if !ok || len(statuses) == 0 {
		return nil
	}
	st, _ := statuses[0].(map[string]any)
	return st
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

func floatFromAny(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func orderIDFromAny(v any) string {
	switch val := v.(type) {
	case map[string]any:
		for _, key := range []string{"oid", "orderId", "orderID", "id"} {
			if id := stringFromAny(val[key]); id != "" {
				return id
			}
		}
		for _, nested := range val {
			if id := orderIDFromAny(nested); id != "" {
				return id
			}
		}
	case []any:
		for _, nested := range val {
			if id := orderIDFromAny(nested); id != "" {
				return id
			}
		}
	}
	return ""
}
