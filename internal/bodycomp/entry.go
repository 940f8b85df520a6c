package bodycomp

import (
	"fmt"
	"time"

	"github.com/2beens/bodytrend/internal/bodycomp/calc"
)

const entryDateLayout = "2006-01-02"

// Entry is a saved measurement set together with the metrics computed from it.
// Entries are append-only, an entry is never changed after it gets saved.
type Entry struct {
	ID         int             `json:"id"`
	UserID     string          `json:"-"`
	Date       string          `json:"date"`
	Units      calc.UnitSystem `json:"unitSystem"`
	Weight     float64         `json:"weight"`
	Height     float64         `json:"height"`
	Age        int             `json:"age"`
	Neck       float64         `json:"neck"`
	Waist      float64         `json:"waist"`
	Hip        *float64        `json:"hip,omitempty"`
	Femininity int             `json:"femininityPercentage"`

	BMI        *float64 `json:"bmi,omitempty"`
	BodyFatPct *float64 `json:"bodyFatPercentage,omitempty"`
	LeanMass   *float64 `json:"leanMass,omitempty"`
	FatMass    *float64 `json:"fatMass,omitempty"`
	HipMissing bool     `json:"hipMissing,omitempty"`

	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CalcInput returns the raw measurements of the entry, as taken by the
// calculation engine.
func (e *Entry) CalcInput() calc.Input {
	return calc.Input{
		Units:      e.Units,
		Weight:     e.Weight,
		Height:     e.Height,
		Age:        e.Age,
		Neck:       e.Neck,
		Waist:      e.Waist,
		Hip:        e.Hip,
		Femininity: e.Femininity,
	}
}

func (e *Entry) ValidateDate() error {
	if _, err := time.Parse(entryDateLayout, e.Date); err != nil {
		return fmt.Errorf("invalid entry date [%s]: %w", e.Date, err)
	}
	return nil
}
