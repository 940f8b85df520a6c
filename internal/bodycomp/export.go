package bodycomp

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/2beens/bodytrend/internal/bodycomp/calc"
)

var csvHeader = []string{
	"date", "weight", "height", "age", "neck", "waist", "hip",
	"femininityPercentage", "BMI", "bodyFat%", "leanMass", "fatMass",
	"notes", "unitSystem",
}

// WriteEntriesCSV writes the entries as CSV rows, one row per entry. Values
// of entries stored in a different unit system are converted to the requested
// one, so the export is uniform regardless of how each entry was saved.
func WriteEntriesCSV(w io.Writer, entries []Entry, units calc.UnitSystem) error {
	if !units.Valid() {
		return fmt.Errorf("%w: unknown unit system %q", calc.ErrInvalidMeasurement, units)
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, e := range entries {
		converted := convertEntry(e, units)
		row := []string{
			converted.Date,
			formatValue(converted.Weight),
			formatValue(converted.Height),
			strconv.Itoa(converted.Age),
			formatValue(converted.Neck),
			formatValue(converted.Waist),
			formatOptional(converted.Hip),
			strconv.Itoa(converted.Femininity),
			formatOptional(converted.BMI),
			formatOptional(converted.BodyFatPct),
			formatOptional(converted.LeanMass),
			formatOptional(converted.FatMass),
			converted.Notes,
			string(converted.Units),
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("write entry %d: %w", e.ID, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// convertEntry returns a copy of the entry with all unit-tagged values
// expressed in the given unit system. BMI, body fat and femininity are
// unit-agnostic and stay untouched.
func convertEntry(e Entry, units calc.UnitSystem) Entry {
	if e.Units == units {
		return e
	}

	var mass, length func(float64) float64
	if units == calc.Imperial {
		mass, length = calc.KgToLbs, calc.CmToInches
	} else {
		mass, length = calc.LbsToKg, calc.InchesToCm
	}

	e.Weight = mass(e.Weight)
	e.Height = length(e.Height)
	e.Neck = length(e.Neck)
	e.Waist = length(e.Waist)
	if e.Hip != nil {
		hip := length(*e.Hip)
		e.Hip = &hip
	}
	if e.LeanMass != nil {
		lean := mass(*e.LeanMass)
		e.LeanMass = &lean
	}
	if e.FatMass != nil {
		fat := mass(*e.FatMass)
		e.FatMass = &fat
	}
	e.Units = units

	return e
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
