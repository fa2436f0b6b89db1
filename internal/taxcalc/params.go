package taxcalc

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidUVT      = errors.New("taxcalc: UVT value must be positive")
	ErrInvalidCaps     = errors.New("taxcalc: deduction caps must be positive")
	ErrInvalidRate     = errors.New("taxcalc: rate must be in (0, 1]")
	ErrInvalidBrackets = errors.New("taxcalc: invalid bracket table")
	ErrInvalidTarget   = errors.New("taxcalc: optimal target must be a bracket upper bound")
)

// continuityTolerance is the slack allowed between a tier offset and the tax
// owed at the previous tier's upper bound, in UVT.
const continuityTolerance = 1e-6

// Bracket is one tier of the progressive table. UpperUVT is inclusive; the
// last tier has UpperUVT = +Inf.
type Bracket struct {
	Name      string  `yaml:"name" json:"name"`
	UpperUVT  float64 `yaml:"upper_uvt" json:"upper_uvt"`
	Rate      float64 `yaml:"rate" json:"rate"`
	OffsetUVT float64 `yaml:"offset_uvt" json:"offset_uvt"`
}

// Params holds every value that changes from one tax year to the next.
type Params struct {
	Year              int       `yaml:"year" json:"year"`
	UVTValue          float64   `yaml:"uvt_value" json:"uvt_value"`
	MaxDeductionsUVT  float64   `yaml:"max_deductions_uvt" json:"max_deductions_uvt"`
	MaxDeductionsRate float64   `yaml:"max_deductions_rate" json:"max_deductions_rate"`
	MaxExemptionUVT   float64   `yaml:"max_exemption_uvt" json:"max_exemption_uvt"`
	ExemptionRate     float64   `yaml:"exemption_rate" json:"exemption_rate"`
	OptimalTargetUVT  float64   `yaml:"optimal_target_uvt" json:"optimal_target_uvt"`
	Brackets          []Bracket `yaml:"brackets" json:"brackets"`
}

// Params2025 are the values published for taxable year 2025.
func Params2025() Params {
	return Params{
		Year:              2025,
		UVTValue:          49799,
		MaxDeductionsUVT:  1340,
		MaxDeductionsRate: 0.40,
		MaxExemptionUVT:   790,
		ExemptionRate:     0.25,
		OptimalTargetUVT:  1700,
		Brackets:          DefaultBrackets(),
	}
}

// DefaultBrackets returns the article 241 table (0/19/28/33%).
func DefaultBrackets() []Bracket {
	return []Bracket{
		{Name: "0%", UpperUVT: 1090, Rate: 0, OffsetUVT: 0},
		{Name: "19%", UpperUVT: 1700, Rate: 0.19, OffsetUVT: 0},
		{Name: "28%", UpperUVT: 4100, Rate: 0.28, OffsetUVT: 115.9},
		{Name: "33%", UpperUVT: math.Inf(1), Rate: 0.33, OffsetUVT: 787.9},
	}
}

// Validate reports the first inconsistency found in p. A table that passes
// Validate yields a continuous, non-decreasing tax function.
func (p Params) Validate() error {
	if !(p.UVTValue > 0) || math.IsInf(p.UVTValue, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidUVT, p.UVTValue)
	}
	if !(p.MaxDeductionsUVT > 0) || !(p.MaxExemptionUVT > 0) {
		return fmt.Errorf("%w: deductions=%v exemption=%v", ErrInvalidCaps, p.MaxDeductionsUVT, p.MaxExemptionUVT)
	}
	if !(p.MaxDeductionsRate > 0) || p.MaxDeductionsRate > 1 {
		return fmt.Errorf("%w: max_deductions_rate=%v", ErrInvalidRate, p.MaxDeductionsRate)
	}
	if !(p.ExemptionRate > 0) || p.ExemptionRate > 1 {
		return fmt.Errorf("%w: exemption_rate=%v", ErrInvalidRate, p.ExemptionRate)
	}
	if len(p.Brackets) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidBrackets)
	}

	lower, prevRate, prevOffset := 0.0, 0.0, 0.0
	for i, b := range p.Brackets {
		if b.Name == "" {
			return fmt.Errorf("%w: tier %d has no name", ErrInvalidBrackets, i)
		}
		if b.Rate < 0 || b.Rate > 1 {
			return fmt.Errorf("%w: tier %s rate %v", ErrInvalidBrackets, b.Name, b.Rate)
		}
		if !(b.UpperUVT > lower) {
			return fmt.Errorf("%w: tier %s upper bound %v not above %v", ErrInvalidBrackets, b.Name, b.UpperUVT, lower)
		}
		if i > 0 && b.Rate < prevRate {
			return fmt.Errorf("%w: tier %s rate decreases", ErrInvalidBrackets, b.Name)
		}
		want := 0.0
		if i > 0 {
			want = prevOffset + (lower-p.lowerOf(i-1))*prevRate
		}
		if math.Abs(b.OffsetUVT-want) > continuityTolerance {
			return fmt.Errorf("%w: tier %s offset %v, expected %v", ErrInvalidBrackets, b.Name, b.OffsetUVT, want)
		}
		lower, prevRate, prevOffset = b.UpperUVT, b.Rate, b.OffsetUVT
	}
	if !math.IsInf(lower, 1) {
		return fmt.Errorf("%w: last tier must be unbounded", ErrInvalidBrackets)
	}

	found := false
	for _, b := range p.Brackets[:len(p.Brackets)-1] {
		if b.UpperUVT == p.OptimalTargetUVT {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, p.OptimalTargetUVT)
	}
	return nil
}

// lowerOf returns the lower bound of tier i.
func (p Params) lowerOf(i int) float64 {
	if i <= 0 {
		return 0
	}
	return p.Brackets[i-1].UpperUVT
}

// exemptUpperUVT is the top of the first tier, normally the 0% band.
func (p Params) exemptUpperUVT() float64 {
	return p.Brackets[0].UpperUVT
}
