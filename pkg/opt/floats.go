package opt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// FormatFx renders an objective value as a string that survives JSON
// round-trips even for the non-finite markers.
func FormatFx(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

// ParseFx is the inverse of FormatFx.
func ParseFx(s string) (float64, error) {
	switch s {
	case "+inf", "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	case "":
		return 0, errors.New("empty float value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad float value %q: %w", s, err)
	}
	return v, nil
}
