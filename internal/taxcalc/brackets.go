package taxcalc

import (
	"fmt"
	"math"
)

// BracketInfo is the display form of the tier a taxable income falls in.
type BracketInfo struct {
	Name         string  `json:"name"`
	MarginalRate float64 `json:"marginal_rate"`
	UVTRange     string  `json:"uvt_range"`
}

// bracketIndex returns the first tier whose upper bound contains uvt.
func (p Params) bracketIndex(uvt float64) int {
	for i, b := range p.Brackets {
		if uvt <= b.UpperUVT {
			return i
		}
	}
	return len(p.Brackets) - 1
}

// TaxUVT returns the tax owed, in UVT, on a taxable income expressed in UVT.
func (p Params) TaxUVT(rentaUVT float64) float64 {
	if rentaUVT <= 0 || math.IsNaN(rentaUVT) {
		return 0
	}
	i := p.bracketIndex(rentaUVT)
	b := p.Brackets[i]
	return (rentaUVT-p.lowerOf(i))*b.Rate + b.OffsetUVT
}

// TaxCOP is TaxUVT expressed in pesos on both sides.
func (p Params) TaxCOP(rentaCOP float64) float64 {
	return p.UVTToCOP(p.TaxUVT(p.COPToUVT(rentaCOP)))
}

// Bracket classifies a taxable income in UVT.
func (p Params) Bracket(rentaUVT float64) BracketInfo {
	i := p.bracketIndex(rentaUVT)
	b := p.Brackets[i]
	return BracketInfo{
		Name:         b.Name,
		MarginalRate: b.Rate,
		UVTRange:     p.rangeLabel(i),
	}
}

// TierRange is the display range of tier i, e.g. "1090 - 1700 UVT".
func (p Params) TierRange(i int) string {
	return p.rangeLabel(i)
}

func (p Params) rangeLabel(i int) string {
	lower := p.lowerOf(i)
	upper := p.Brackets[i].UpperUVT
	if math.IsInf(upper, 1) {
		return fmt.Sprintf("> %s UVT", trimFloat(lower))
	}
	return fmt.Sprintf("%s - %s UVT", trimFloat(lower), trimFloat(upper))
}

func trimFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
