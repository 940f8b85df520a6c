// Package calc is the body composition calculation engine: BMI and the
// U.S. Navy body fat method, with a continuous crossfade between the male
// and the female formula. It is pure and does no I/O; all formulas operate
// in pounds and inches internally, metric inputs get converted on the way
// in and the mass outputs on the way out.
package calc

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidMeasurement = errors.New("invalid measurement")
	ErrBodyFatLogDomain   = errors.New("body fat formula undefined for given measurements")
)

const bmiFactor = 703

// Input holds one set of measurements, in the units given by Units.
// Hip is optional; without it the female formula cannot be computed and
// the result falls back to the male formula, whatever Femininity says.
type Input struct {
	Units  UnitSystem `json:"unitSystem"`
	Weight float64    `json:"weight"`
	Height float64    `json:"height"`
	// Age is collected and stored with the entry, no formula uses it.
	Age        int      `json:"age"`
	Neck       float64  `json:"neck"`
	Waist      float64  `json:"waist"`
	Hip        *float64 `json:"hip,omitempty"`
	Femininity int      `json:"femininity"`
}

// Result - all mass values are in the unit system of the input.
type Result struct {
	BMI        *float64 `json:"bmi,omitempty"`
	BodyFatPct *float64 `json:"bodyFat,omitempty"`
	LeanMass   *float64 `json:"leanMass,omitempty"`
	FatMass    *float64 `json:"fatMass,omitempty"`
	// HipMissing marks the male-formula fallback, so callers can warn
	// users who set a high femininity but entered no hip measurement.
	HipMissing bool `json:"hipMissing"`
}

func (in Input) Validate() error {
	if !in.Units.Valid() {
		return fmt.Errorf("%w: unknown unit system %q", ErrInvalidMeasurement, in.Units)
	}
	for _, m := range []struct {
		name  string
		value float64
	}{
		{"weight", in.Weight},
		{"height", in.Height},
		{"neck", in.Neck},
		{"waist", in.Waist},
	} {
		if math.IsNaN(m.value) || math.IsInf(m.value, 0) || m.value <= 0 {
			return fmt.Errorf("%w: %s must be a positive number", ErrInvalidMeasurement, m.name)
		}
	}
	if in.Age <= 0 {
		return fmt.Errorf("%w: age must be a positive number", ErrInvalidMeasurement)
	}
	if in.Hip != nil && (math.IsNaN(*in.Hip) || math.IsInf(*in.Hip, 0) || *in.Hip <= 0) {
		return fmt.Errorf("%w: hip must be a positive number", ErrInvalidMeasurement)
	}
	if in.Femininity < 0 || in.Femininity > 100 {
		return fmt.Errorf("%w: femininity must be within [0, 100]", ErrInvalidMeasurement)
	}
	return nil
}

// toImperial converts weight to pounds and all lengths to inches.
func (in Input) toImperial() Input {
	if in.Units == Imperial {
		return in
	}
	out := in
	out.Units = Imperial
	out.Weight = KgToLbs(in.Weight)
	out.Height = CmToInches(in.Height)
	out.Neck = CmToInches(in.Neck)
	out.Waist = CmToInches(in.Waist)
	if in.Hip != nil {
		hip := CmToInches(*in.Hip)
		out.Hip = &hip
	}
	return out
}

// BMI computes (weight / height²) × 703 from pounds and inches.
// A missing or non-positive input yields no value - that is a valid
// "not available" state, not an error.
func BMI(weightLbs, heightInches float64) *float64 {
	if weightLbs <= 0 || heightInches <= 0 ||
		math.IsNaN(weightLbs) || math.IsNaN(heightInches) ||
		math.IsInf(weightLbs, 0) || math.IsInf(heightInches, 0) {
		return nil
	}
	bmi := weightLbs / (heightInches * heightInches) * bmiFactor
	return &bmi
}

// BodyFat estimates the body fat percentage via the navy method, from
// measurements in inches. It applies the method's half inch rounding first:
// neck up, waist down, hip down, height to nearest. With hip present the
// male and female formulas are blended linearly by femininity (0-100);
// without it, the male result is returned for any femininity value and
// hipMissing is set.
func BodyFat(heightInches, neckInches, waistInches float64, hipInches *float64, femininity int) (_ float64, hipMissing bool, err error) {
	neck := RoundUpToHalf(neckInches)
	waist := RoundDownToHalf(waistInches)
	height := RoundToNearestHalf(heightInches)

	if height <= 0 {
		return 0, false, fmt.Errorf("%w: height (%.1f) must be positive", ErrBodyFatLogDomain, height)
	}

	maleLogArg := waist - neck
	if maleLogArg <= 0 {
		return 0, false, fmt.Errorf(
			"%w: waist (%.1f) must exceed neck (%.1f)",
			ErrBodyFatLogDomain, waist, neck,
		)
	}

	male := 86.010*math.Log10(maleLogArg) - 70.041*math.Log10(height) + 36.76

	if hipInches == nil {
		return male, true, nil
	}

	hip := RoundDownToHalf(*hipInches)
	femaleLogArg := waist + hip - neck
	if femaleLogArg <= 0 {
		return 0, false, fmt.Errorf(
			"%w: waist (%.1f) plus hip (%.1f) must exceed neck (%.1f)",
			ErrBodyFatLogDomain, waist, hip, neck,
		)
	}

	female := 163.205*math.Log10(femaleLogArg) - 97.684*math.Log10(height) - 78.387

	f := float64(femininity) / 100
	return male*(1-f) + female*f, false, nil
}

// Calculate runs the whole engine on one measurement set: validation, BMI,
// body fat, and the lean/fat mass derivation. Masses in the result are
// converted back to the unit system of the input.
func Calculate(in Input) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	imp := in.toImperial()
	res := &Result{
		BMI: BMI(imp.Weight, imp.Height),
	}

	bodyFat, hipMissing, err := BodyFat(imp.Height, imp.Neck, imp.Waist, imp.Hip, imp.Femininity)
	if err != nil {
		return nil, err
	}
	res.BodyFatPct = &bodyFat
	res.HipMissing = hipMissing

	fatMass := imp.Weight * bodyFat / 100
	leanMass := imp.Weight - fatMass
	if in.Units == Metric {
		fatMass = LbsToKg(fatMass)
		leanMass = LbsToKg(leanMass)
	}
	res.FatMass = &fatMass
	res.LeanMass = &leanMass

	return res, nil
}
