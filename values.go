package obsanalytics

import (
	"fmt"
	"math"

	"github.com/spf13/cast"
)

// SafeNaN replaces NaN and infinities with zero.
func SafeNaN(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// normalizeValue makes driver values JSON friendly; text arrives as []byte
// from several drivers.
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func asInt64(v interface{}) (int64, error) {
	v = normalizeValue(v)

	i, err := cast.ToInt64E(v)
	if err == nil {
		return i, nil
	}

	// numeric text such as "12.5"
	s, ok := v.(string)
	if !ok {
		return 0, err
	}
	f, ferr := cast.ToFloat64E(s)
	if ferr != nil {
		return 0, err
	}
	return int64(f), nil
}

func asNullFloat64(v interface{}) (*float64, error) {
	if v == nil {
		return nil, nil
	}

	f, err := cast.ToFloat64E(normalizeValue(v))
	if err != nil {
		return nil, err
	}

	f = SafeNaN(f)
	return &f, nil
}

func asNullString(v interface{}) *string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return &val
	case []byte:
		s := string(val)
		return &s
	default:
		s := fmt.Sprintf("%v", val)
		return &s
	}
}
