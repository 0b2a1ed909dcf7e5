package domain

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MarketBand is one row of a market reference table: the compensation
// range offered to candidates whose composite score falls at or above
// MinScore but below the next band's MinScore.
type MarketBand struct {
	// MinScore is the inclusive lower composite-score bound of the band.
	MinScore float64 `yaml:"min_score" json:"min_score"`

	// Low, Mid, and High are annual CTC amounts in whole currency units.
	Low  int64 `yaml:"low" json:"low"`
	Mid  int64 `yaml:"mid" json:"mid"`
	High int64 `yaml:"high" json:"high"`

	// Label names the band for offer letters, e.g. "senior".
	Label string `yaml:"label" json:"label"`
}

// MarketTable is the per-role compensation reference consumed by the
// compensation step. Bands are ordered by ascending MinScore; validation
// guarantees the interpolated point estimate is non-decreasing in the
// composite score, across band boundaries included.
type MarketTable struct {
	// Role the table applies to.
	Role string `yaml:"role" json:"role"`

	// Currency is the ISO 4217 code the amounts are denominated in.
	Currency string `yaml:"currency" json:"currency"`

	// Bands in ascending MinScore order, the first at 0.
	Bands []MarketBand `yaml:"bands" json:"bands"`
}

// Clone returns a deep copy, so sources can share a table without
// callers mutating it.
func (t MarketTable) Clone() MarketTable {
	out := t
	out.Bands = make([]MarketBand, len(t.Bands))
	copy(out.Bands, t.Bands)
	return out
}

// Validate checks the table's ordering and band invariants.
func (t MarketTable) Validate() error {
	if t.Role == "" {
		return fmt.Errorf("%w: empty role", ErrInvalidMarketTable)
	}
	if t.Currency == "" {
		return fmt.Errorf("%w: role %s: empty currency", ErrInvalidMarketTable, t.Role)
	}
	if len(t.Bands) == 0 {
		return fmt.Errorf("%w: role %s: no bands", ErrInvalidMarketTable, t.Role)
	}
	if t.Bands[0].MinScore != 0 {
		return fmt.Errorf("%w: role %s: first band starts at %v, want 0", ErrInvalidMarketTable, t.Role, t.Bands[0].MinScore)
	}
	for i, b := range t.Bands {
		if math.IsNaN(b.MinScore) || b.MinScore < 0 || b.MinScore > 1 {
			return fmt.Errorf("%w: role %s: band %d min_score %v outside [0,1]", ErrInvalidMarketTable, t.Role, i, b.MinScore)
		}
		if b.Low < 0 || b.Low > b.Mid || b.Mid > b.High {
			return fmt.Errorf("%w: role %s: band %d amounts not ordered low<=mid<=high", ErrInvalidMarketTable, t.Role, i)
		}
		if i == 0 {
			continue
		}
		prev := t.Bands[i-1]
		if b.MinScore <= prev.MinScore {
			return fmt.Errorf("%w: role %s: band %d min_score %v not above previous %v", ErrInvalidMarketTable, t.Role, i, b.MinScore, prev.MinScore)
		}
		if b.Low < prev.High {
			return fmt.Errorf("%w: role %s: band %d low %d below previous high %d breaks monotonicity", ErrInvalidMarketTable, t.Role, i, b.Low, prev.High)
		}
	}
	return nil
}

// CompensationBand is the compensation recommendation attached to an
// evaluation: the matched market band plus the interpolated point
// estimate for the candidate's exact composite score.
type CompensationBand struct {
	// Currency is the ISO 4217 code of the amounts.
	Currency string `json:"currency"`

	// Low, Mid, and High are the matched band's amounts.
	Low  int64 `json:"low"`
	Mid  int64 `json:"mid"`
	High int64 `json:"high"`

	// PointEstimate is the recommended offer, interpolated linearly
	// between Low and High by the score's position within the band.
	PointEstimate int64 `json:"point_estimate"`

	// Label is the matched band's name.
	Label string `json:"label"`
}

// Format renders the band for humans with locale-aware digit grouping.
func (b CompensationBand) Format(tag language.Tag) string {
	p := message.NewPrinter(tag)
	return p.Sprintf("%s %d to %d, point estimate %d (%s)", b.Currency, b.Low, b.High, b.PointEstimate, b.Label)
}

// Compensate maps a composite score onto the table, returning the
// matched band with its interpolated point estimate. For a fixed table
// the estimate is non-decreasing in the score. Fails with ErrNoMarketData
// when the table has no bands, so callers can substitute a fallback table
// and retry.
func Compensate(composite float64, table MarketTable) (CompensationBand, error) {
	if len(table.Bands) == 0 {
		return CompensationBand{}, fmt.Errorf("%w: role %q", ErrNoMarketData, table.Role)
	}
	if math.IsNaN(composite) {
		return CompensationBand{}, fmt.Errorf("%w: composite score is NaN", ErrInvalidSignal)
	}
	composite = math.Max(0, math.Min(1, composite))

	idx := 0
	for i, b := range table.Bands {
		if composite >= b.MinScore {
			idx = i
		}
	}
	band := table.Bands[idx]

	upper := 1.0
	if idx+1 < len(table.Bands) {
		upper = table.Bands[idx+1].MinScore
	}
	span := upper - band.MinScore
	t := 0.0
	if span > 0 {
		t = (composite - band.MinScore) / span
	}

	return CompensationBand{
		Currency:      table.Currency,
		Low:           band.Low,
		Mid:           band.Mid,
		High:          band.High,
		PointEstimate: band.Low + int64(math.Round(t*float64(band.High-band.Low))),
		Label:         band.Label,
	}, nil
}
