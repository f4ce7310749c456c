package core

// convert.go normalizes values scanned from the engine into JSON-safe values.
//
// The engine driver returns its own types for several column types:
//   - DECIMAL as duckdb.Decimal (width, scale, *big.Int)
//   - UUID as duckdb.UUID
//   - HUGEINT / UHUGEINT as *big.Int
//   - INTERVAL as duckdb.Interval
//   - MAP as duckdb.Map (non-string keys)
//   - BLOB as []byte
//
// encoding/json either rejects these or renders them unhelpfully, so every
// row goes through NormalizeRow before it leaves the service.

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Interval is the JSON shape of an INTERVAL value.
type Interval struct {
	Months int32 `json:"months"`
	Days   int32 `json:"days"`
	Micros int64 `json:"micros"`
}

// NormalizeRows normalizes every value in rows in place and returns rows.
func NormalizeRows(rows [][]any) [][]any {
	for _, row := range rows {
		NormalizeRow(row)
	}
	return rows
}

// NormalizeRow normalizes every value in row in place.
func NormalizeRow(row []any) []any {
	for i, v := range row {
		row[i] = NormalizeValue(v)
	}
	return row
}

// NormalizeValue converts one engine value to a JSON-safe value.
// Values that are already safe (strings, bools, integers, time.Time) pass through.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case duckdb.Decimal:
		return decimalToFloat(val)
	case *duckdb.Decimal:
		if val == nil {
			return nil
		}
		return decimalToFloat(*val)
	case duckdb.UUID:
		return uuid.UUID(val).String()
	case *big.Int:
		return bigIntValue(val)
	case duckdb.Interval:
		return Interval{Months: val.Months, Days: val.Days, Micros: val.Micros}
	case duckdb.Map:
		return normalizeMap(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = NormalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeValue(item)
		}
		return out
	case []byte:
		return hex.EncodeToString(val)
	case float64:
		return floatValue(val)
	case float32:
		return floatValue(float64(val))
	}
	return v
}

func decimalToFloat(d duckdb.Decimal) any {
	if d.Value == nil {
		return nil
	}
	return decimal.NewFromBigInt(d.Value, -int32(d.Scale)).InexactFloat64()
}

// bigIntValue keeps HUGEINTs that fit in int64 numeric; larger ones become
// decimal strings so no digits are lost.
func bigIntValue(b *big.Int) any {
	if b == nil {
		return nil
	}
	if b.IsInt64() {
		return b.Int64()
	}
	return b.String()
}

// floatValue renders NaN and infinities as strings; JSON has no literal for them.
func floatValue(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

func normalizeMap(m duckdb.Map) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		key, ok := k.(string)
		if !ok {
			key = fmt.Sprint(NormalizeValue(k))
		}
		out[key] = NormalizeValue(v)
	}
	return out
}

// SortedKeys returns the keys of a normalized map in order, for stable rendering.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
