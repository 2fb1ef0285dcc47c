package domain

import (
	"math"
	"strconv"
	"strings"
)

// ParsePrice turns a display price such as "$12.99" or "TND 1,234.56" into a
// number. Everything except digits and '.' is dropped, so a comma thousands
// separator disappears ("1,234.56" -> 1234.56) while a European decimal comma
// does not survive ("1.234,56" -> 1.23456). Anything that does not parse,
// including several dots, yields 0.
func ParsePrice(display string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, display)

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
