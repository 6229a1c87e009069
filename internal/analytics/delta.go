package analytics

import "math"

// ComputeDelta compares current against previous. Percent is relative to |previous|;
// a zero baseline reports +100, -100 or 0 depending on the direction of change.
func ComputeDelta(previous, current float64) Delta {
	change := current - previous
	var pct float64
	switch {
	case previous != 0:
		pct = change / math.Abs(previous) * 100
	case change > 0:
		pct = 100
	case change < 0:
		pct = -100
	}
	return Delta{Absolute: change, Percent: round2(pct)}
}

// deltaSeries computes deltas for every date after the first.
func deltaSeries(dates []string, values map[string]float64) map[string]Delta {
	deltas := make(map[string]Delta, len(dates))
	for i := 1; i < len(dates); i++ {
		deltas[dates[i]] = ComputeDelta(values[dates[i-1]], values[dates[i]])
	}
	return deltas
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
