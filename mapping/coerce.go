package mapping

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/kvsearch/model"
)

var (
	errNotNumeric = errors.New("not a number")
	errOverflow   = errors.New("out of range")
	errNull       = errors.New("null value")
)

func unwrap(x any) any {
	if v, ok := x.(model.Value); ok {
		return v.Any()
	}
	return x
}

func toInt64(x any) (int64, error) {
	switch t := unwrap(x).(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, errOverflow
		}
		return int64(t), nil
	case float32:
		return floatToInt64(float64(t))
	case float64:
		return floatToInt64(t)
	case gojson.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt64(f)
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errNotNumeric
		}
		return floatToInt64(f)
	case nil:
		return 0, errNull
	default:
		return 0, errNotNumeric
	}
}

// floatToInt64 truncates toward zero.
func floatToInt64(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotNumeric
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, errOverflow
	}
	return int64(f), nil
}

func toFloat64(x any) (float64, error) {
	var f float64
	switch t := unwrap(x).(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case string:
		var err error
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, errNotNumeric
		}
	case gojson.Number:
		var err error
		f, err = t.Float64()
		if err != nil {
			return 0, errNotNumeric
		}
	case nil:
		return 0, errNull
	default:
		i, err := toInt64(t)
		if err != nil {
			return 0, err
		}
		f = float64(i)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotNumeric
	}
	return f, nil
}

func toString(x any) (string, error) {
	switch t := unwrap(x).(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case gojson.Number:
		return t.String(), nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case nil:
		return "", errNull
	default:
		return "", fmt.Errorf("unsupported type %T", x)
	}
}

func toBool(x any) (bool, error) {
	switch t := unwrap(x).(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, errors.New("not a boolean")
	case nil:
		return false, errNull
	default:
		return false, errors.New("not a boolean")
	}
}
