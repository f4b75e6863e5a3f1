package table

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

type float64er interface {
	Float64() float64
}

// Coerce converts a driver or literal value to the representation used for typ.
func Coerce(typ Type, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	switch typ {
	case TypeInt:
		return toInt64(value)
	case TypeFloat:
		return toFloat64(value)
	case TypeString:
		switch v := value.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		default:
			return fmt.Sprint(v), nil
		}
	case TypeBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("invalid bool %q", v)
			}
			return parsed, nil
		}
	case TypeTimestamp:
		switch v := value.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			return ParseTimestamp(v)
		}
	default:
		return nil, fmt.Errorf("unsupported type %q", typ)
	}
	return nil, fmt.Errorf("cannot convert %T to %s", value, typ)
}

// ParseTimestamp accepts RFC 3339 timestamps and plain dates.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

func toInt64(value any) (any, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", v)
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", v)
		}
		return int64(v), nil
	case *big.Int:
		if !v.IsInt64() {
			return nil, fmt.Errorf("integer %s overflows int64", v.String())
		}
		return v.Int64(), nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("non-integral value %v", v)
		}
		return int64(v), nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", v)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", value, TypeInt)
}

func toFloat64(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case float64er:
		return v.Float64(), nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q", v)
		}
		return parsed, nil
	}
	i, err := toInt64(value)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %T to %s", value, TypeFloat)
	}
	return float64(i.(int64)), nil
}
