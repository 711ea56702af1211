package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMalformed means the record is not valid JSON at all.
	ErrMalformed = errors.New("event: malformed record")
	// ErrSchema means the record parsed but matches no known event shape.
	ErrSchema = errors.New("event: no matching record shape")
	// ErrCoercion means a required field could not be converted to its type.
	ErrCoercion = errors.New("event: field coercion failed")
)

// Decoder validates raw log lines and turns them into Events. It owns the
// global purchase sequence counter: every successfully decoded purchase is
// stamped with the next counter value, across batch and stream alike.
// Rejected records and non-purchase events never advance the counter.
//
// A Decoder is not safe for concurrent use; the pipeline serializes access.
type Decoder struct {
	seq int64
}

// NewDecoder returns a Decoder with the sequence counter at zero.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Seq returns the next sequence value that will be assigned.
func (d *Decoder) Seq() int64 {
	return d.seq
}

// Decode parses one raw log line. Shape matching tolerates extra keys and is
// checked in order: purchase, befriend/unfriend, config. The returned error
// wraps ErrMalformed, ErrSchema, or ErrCoercion.
func (d *Decoder) Decode(line string) (*Event, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	et, _ := raw["event_type"].(string)

	switch {
	case hasKeys(raw, "event_type", "timestamp", "id", "amount") && et == "purchase":
		return d.decodePurchase(raw)
	case hasKeys(raw, "event_type", "timestamp", "id1", "id2") && (et == "befriend" || et == "unfriend"):
		return d.decodeRelationship(raw, Type(et))
	case hasKeys(raw, "D", "T"):
		return d.decodeConfig(raw)
	default:
		return nil, ErrSchema
	}
}

func (d *Decoder) decodePurchase(raw map[string]any) (*Event, error) {
	ts, err := timeField(raw["timestamp"])
	if err != nil {
		return nil, err
	}
	id, err := intField(raw["id"])
	if err != nil {
		return nil, err
	}
	amount, err := floatField(raw["amount"])
	if err != nil {
		return nil, err
	}

	ev := &Event{
		Type:      TypePurchase,
		Timestamp: ts,
		ID:        id,
		Amount:    amount,
		Seq:       d.seq,
	}
	d.seq++
	return ev, nil
}

func (d *Decoder) decodeRelationship(raw map[string]any, t Type) (*Event, error) {
	ts, err := timeField(raw["timestamp"])
	if err != nil {
		return nil, err
	}
	id1, err := intField(raw["id1"])
	if err != nil {
		return nil, err
	}
	id2, err := intField(raw["id2"])
	if err != nil {
		return nil, err
	}
	return &Event{Type: t, Timestamp: ts, ID1: id1, ID2: id2}, nil
}

func (d *Decoder) decodeConfig(raw map[string]any) (*Event, error) {
	deg, err := intField(raw["D"])
	if err != nil {
		return nil, err
	}
	window, err := intField(raw["T"])
	if err != nil {
		return nil, err
	}
	return &Event{Type: TypeConfig, D: int(deg), T: int(window)}, nil
}

// intField coerces a JSON string or number to int64. Fractional text is a
// coercion failure; fractional numbers truncate.
func intField(v any) (int64, error) {
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: integer %q", ErrCoercion, x)
		}
		return n, nil
	case float64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("%w: integer %v", ErrCoercion, v)
	}
}

func floatField(v any) (float64, error) {
	switch x := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: number %q", ErrCoercion, x)
		}
		return f, nil
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("%w: number %v", ErrCoercion, v)
	}
}

func timeField(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: timestamp %v", ErrCoercion, v)
	}
	ts, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrCoercion, s)
	}
	return ts, nil
}

func hasKeys(raw map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := raw[k]; !ok {
			return false
		}
	}
	return true
}
