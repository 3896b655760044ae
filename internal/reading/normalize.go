package reading

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// Ingestion domain limits. The sensor's operating range is narrower than
// the storage sanity bounds in repository.go; both apply.
const (
	MinTemperature = -40.0
	MaxTemperature = 85.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0

	// MaxClockSkew is how far into the future a timestamp may be.
	MaxClockSkew = 24 * time.Hour
)

// Payload field names. The firmware names are accepted as aliases; when both
// are present the first one wins.
var (
	temperatureKeys = []string{"temperature", "temperature_c"}
	humidityKeys    = []string{"humidity", "humidity_pct"}
	timestampKeys   = []string{"ts", "timestamp"}
)

// Normalizer validates raw payloads. The zero value is not usable; call
// NewNormalizer.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer returns a Normalizer using the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// WithClock returns a copy of n that uses now for the future-skew check.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize decodes a JSON object payload and validates it.
func (n *Normalizer) Normalize(payload []byte) (Normalized, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return Normalized{}, &ValidationError{Kind: KindMissingField, Field: "payload"}
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Normalized{}, &ValidationError{
			Kind:   KindWrongType,
			Field:  "payload",
			Value:  string(payload),
			Reason: fmt.Sprintf("not valid JSON: %v", err),
		}
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return Normalized{}, &ValidationError{
			Kind:   KindWrongType,
			Field:  "payload",
			Value:  string(payload),
			Reason: "trailing data after JSON object",
		}
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return Normalized{}, &ValidationError{
			Kind:   KindWrongType,
			Field:  "payload",
			Value:  raw,
			Reason: "must be a JSON object",
		}
	}
	return n.NormalizeValues(obj)
}

// NormalizeValues validates an already-decoded payload. Numbers may be
// json.Number or any Go integer or float type. Unknown keys are ignored.
func (n *Normalizer) NormalizeValues(raw map[string]any) (Normalized, error) {
	temperature, err := numberField(raw, temperatureKeys, MinTemperature, MaxTemperature, KindTemperatureRange)
	if err != nil {
		return Normalized{}, err
	}
	humidity, err := numberField(raw, humidityKeys, MinHumidity, MaxHumidity, KindHumidityRange)
	if err != nil {
		return Normalized{}, err
	}
	ts, err := n.timestampField(raw)
	if err != nil {
		return Normalized{}, err
	}
	return Normalized{Temperature: temperature, Humidity: humidity, Timestamp: ts}, nil
}

// lookup returns the first present, non-null key.
func lookup(raw map[string]any, keys []string) (string, any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return k, v, true
		}
	}
	return keys[0], nil, false
}

func numberField(raw map[string]any, keys []string, lo, hi float64, rangeKind Kind) (float64, error) {
	field, v, ok := lookup(raw, keys)
	if !ok {
		return 0, &ValidationError{Kind: KindMissingField, Field: field}
	}

	f, ok := toFloat(v)
	if !ok {
		return 0, &ValidationError{Kind: KindWrongType, Field: field, Value: v, Reason: "must be a number"}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ValidationError{Kind: rangeKind, Field: field, Value: f, Reason: "is not a finite number"}
	}
	if f < lo || f > hi {
		return 0, &ValidationError{
			Kind:   rangeKind,
			Field:  field,
			Value:  f,
			Reason: fmt.Sprintf("out of range [%g, %g]", lo, hi),
		}
	}
	return f, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			// Overflow still yields ±Inf, which the range check rejects.
			return f, math.IsInf(f, 0)
		}
		return f, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func (n *Normalizer) timestampField(raw map[string]any) (time.Time, error) {
	field, v, ok := lookup(raw, timestampKeys)
	if !ok {
		return time.Time{}, &ValidationError{Kind: KindMissingField, Field: field}
	}

	s, ok := v.(string)
	if !ok {
		return time.Time{}, &ValidationError{
			Kind:   KindWrongType,
			Field:  field,
			Value:  v,
			Reason: "must be an ISO-8601 string",
		}
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, &ValidationError{Kind: KindTimestampInvalid, Field: field, Value: s, Reason: "is not an ISO-8601 instant"}
	}
	if t.Before(time.Unix(0, 0)) {
		return time.Time{}, &ValidationError{Kind: KindTimestampInvalid, Field: field, Value: s, Reason: "is before the epoch"}
	}
	if t.After(n.now().Add(MaxClockSkew)) {
		return time.Time{}, &ValidationError{Kind: KindTimestampInvalid, Field: field, Value: s, Reason: "is more than 24h in the future"}
	}
	return t.UTC().Truncate(time.Millisecond), nil
}
