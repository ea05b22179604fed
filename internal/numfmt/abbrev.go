// Package numfmt formats numbers for the sidebar.
package numfmt

import (
	"math"
	"strconv"
)

// NotAvailable is shown for values that failed numeric coercion.
const NotAvailable = "N/A"

var magnitudes = []struct {
	scale  float64
	suffix string
}{
	{1e12, "t"},
	{1e9, "b"},
	{1e6, "m"},
	{1e3, "k"},
}

// Abbrev formats v with a thousands/millions/billions/trillions suffix and a
// fixed number of decimals: 123456 -> "123.46k", 999 -> "999.00".
// A value that rounds up into the next magnitude is promoted, so 999999
// becomes "1.00m" rather than "1000.00k".
func Abbrev(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotAvailable
	}
	if decimals < 0 {
		decimals = 0
	}

	abs := math.Abs(v)
	scaled, suffix := v, ""
	for i, m := range magnitudes {
		if abs < m.scale {
			continue
		}
		scaled, suffix = v/m.scale, m.suffix
		if i > 0 && roundsTo(math.Abs(scaled), decimals) >= 1000 {
			scaled, suffix = v/magnitudes[i-1].scale, magnitudes[i-1].suffix
		}
		break
	}

	if suffix == "" && roundsTo(abs, decimals) >= 1000 {
		last := magnitudes[len(magnitudes)-1]
		scaled, suffix = v/last.scale, last.suffix
	}

	return strconv.FormatFloat(scaled, 'f', decimals, 64) + suffix
}

func roundsTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
