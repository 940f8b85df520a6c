package calc

import "math"

type UnitSystem string

const (
	Imperial UnitSystem = "imperial"
	Metric   UnitSystem = "metric"
)

func (u UnitSystem) Valid() bool {
	return u == Imperial || u == Metric
}

const (
	lbsPerKg    = 2.20462
	inchesPerCm = 0.393701
)

func KgToLbs(kg float64) float64 {
	return kg * lbsPerKg
}

func LbsToKg(lbs float64) float64 {
	return lbs / lbsPerKg
}

func CmToInches(cm float64) float64 {
	return cm * inchesPerCm
}

func InchesToCm(inches float64) float64 {
	return inches / inchesPerCm
}

// The navy method defines circumference precision in half inches, with the
// rounding direction depending on the measurement. Rounding is done on the
// doubled value, so the halves land on exact integers instead of drifting
// around the 0.5 boundary in binary floating point.

// RoundUpToHalf rounds up to the nearest half inch (15.1 -> 15.5).
func RoundUpToHalf(v float64) float64 {
	return math.Ceil(v*2) / 2
}

// RoundDownToHalf rounds down to the nearest half inch (30.9 -> 30.5).
func RoundDownToHalf(v float64) float64 {
	return math.Floor(v*2) / 2
}

// RoundToNearestHalf rounds to the nearest half inch (68.3 -> 68.5, 68.2 -> 68.0).
func RoundToNearestHalf(v float64) float64 {
	return math.Round(v*2) / 2
}
