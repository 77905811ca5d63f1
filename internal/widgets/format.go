package widgets

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Formatter renders values the way the installation's system settings ask.
type Formatter struct {
	FloatComma bool
	Language   string
}

// Rounding modes for Format.
const (
	RoundInteger = 0
	RoundDefault = 2
)

// Format renders v. Numbers are rounded to an integer when round is
// RoundInteger and to two decimals otherwise; other values are rendered
// as they are. Nil renders empty.
func (f Formatter) Format(v any, round int) string {
	n, ok := number(v)
	if !ok {
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}

	if round == RoundInteger {
		n = math.Round(n)
	} else {
		n = math.Round(n*100) / 100
	}
	s := strconv.FormatFloat(n, 'f', -1, 64)
	if f.FloatComma {
		s = strings.Replace(s, ".", ",", 1)
	}
	return s
}

// number accepts only values that are numbers, not numeric strings.
func number(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}

// rawString renders a raw state value for comparison with option keys.
func rawString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return fmt.Sprint(v)
}
