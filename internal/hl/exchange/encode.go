package exchange

import (
	"bytes"
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// The exchange hashes the msgpack bytes it decodes, so key order must
// match the reference encoding exactly. A plain msgpack.Marshal of a
// struct or map gives no such guarantee; everything here encodes
// field-by-field.

type wireEncoder struct {
	enc *msgpack.Encoder
	err error
}

func newWireEncoder(buf *bytes.Buffer) *wireEncoder {
	return &wireEncoder{enc: msgpack.NewEncoder(buf)}
}

func (w *wireEncoder) mapLen(n int) {
	if w.err == nil {
		w.err = w.enc.EncodeMapLen(n)
	}
}

func (w *wireEncoder) arrayLen(n int) {
	if w.err == nil {
		w.err = w.enc.EncodeArrayLen(n)
	}
}

func (w *wireEncoder) str(key, value string) {
	if w.err == nil {
		w.err = w.enc.EncodeString(key)
	}
	if w.err == nil {
		w.err = w.enc.EncodeString(value)
	}
}

func (w *wireEncoder) boolean(key string, value bool) {
	if w.err == nil {
		w.err = w.enc.EncodeString(key)
	}
	if w.err == nil {
		w.err = w.enc.EncodeBool(value)
	}
}

func (w *wireEncoder) integer(key string, value int64) {
	if w.err == nil {
		w.err = w.enc.EncodeString(key)
	}
	if w.err == nil {
		w.err = w.enc.EncodeInt(value)
	}
}

func (w *wireEncoder) rawKey(key string) {
	if w.err == nil {
		w.err = w.enc.EncodeString(key)
	}
}

func EncodeOrderAction(action OrderAction) ([]byte, error) {
	if action.Type == "" {
		return nil, errors.New("action type is required")
	}
	if len(action.Orders) == 0 {
		return nil, errors.New("action orders are required")
	}
	if action.Grouping == "" {
		action.Grouping = "na"
	}
	var buf bytes.Buffer
	w := newWireEncoder(&buf)
	w.mapLen(3)
	w.str("type", action.Type)
	w.rawKey("orders")
	w.arrayLen(len(action.Orders))
	for _, order := range action.Orders {
		encodeOrderWire(w, order)
	}
	w.str("grouping", action.Grouping)
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

func EncodeCancelAction(action CancelAction) ([]byte, error) {
	if action.Type == "" {
		return nil, errors.New("action type is required")
	}
	if len(action.Cancels) == 0 {
		return nil, errors.New("action cancels are required")
	}
	var buf bytes.Buffer
	w := newWireEncoder(&buf)
	w.mapLen(2)
	w.str("type", action.Type)
	w.rawKey("cancels")
	w.arrayLen(len(action.Cancels))
	for _, cancel := range action.Cancels {
		w.mapLen(2)
		w.integer("a", int64(cancel.Asset))
		w.integer("o", cancel.OrderID)
	}
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

func encodeOrderWire(w *wireEncoder, order OrderWire) {
	mapLen := 6
	if order.Cloid != "" {
		mapLen++
	}
	w.mapLen(mapLen)
	w.integer("a", int64(order.Asset))
	w.boolean("b", order.IsBuy)
	w.str("p", order.Price)
	w.str("s", order.Size)
	w.boolean("r", order.ReduceOnly)
	w.rawKey("t")
	if order.OrderType.Limit == nil {
		if w.err == nil {
			w.err = errors.New("limit order type required")
		}
		return
	}
	w.mapLen(1)
	w.rawKey("limit")
	w.mapLen(1)
	w.str("tif", string(order.OrderType.Limit.Tif))
	if order.Cloid != "" {
		w.str("c", order.Cloid)
	}
}
