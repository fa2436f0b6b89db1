// Package taxcalc estimates the Colombian personal income tax saved by deducting
// an electric vehicle, using the UVT bracket table of a given tax year.
//
// Every function here is pure: the tax year arrives as a Params value and
// results are built fresh per call, so a Calculator is safe for concurrent use.
package taxcalc

import (
	"fmt"
	"math"
)

// perMillion is the deduction step used by the marginal savings figures.
const perMillion = 1_000_000

// LimitReason tells which rule produced the deduction cap.
type LimitReason string

const (
	LimitByUVT  LimitReason = "uvt"
	LimitByRate LimitReason = "rate"
)

// Input is one calculation request, already validated by the caller.
type Input struct {
	MonthlyNetIncome        float64
	OtherDeductionsAnnual   float64
	VehicleDeductionTotal   float64
	VehicleDeductionApplied *float64
	CalculateOptimal        bool
	// IncludeLaborExemption defaults to true when nil.
	IncludeLaborExemption *bool
}

// Scenario is the tax picture with or without the vehicle deduction.
type Scenario struct {
	Deductions              float64     `json:"deductions"`
	LaborExemption          float64     `json:"labor_exemption"`
	DeductionsAndExemptions float64     `json:"deductions_and_exemptions"`
	TaxableIncomeCOP        float64     `json:"taxable_income_cop"`
	TaxableIncomeUVT        float64     `json:"taxable_income_uvt"`
	TaxCOP                  float64     `json:"tax_cop"`
	TaxUVT                  float64     `json:"tax_uvt"`
	Bracket                 BracketInfo `json:"bracket"`
}

// Result is everything the presentation layer renders for one request.
type Result struct {
	Year               int         `json:"year"`
	AnnualNetIncome    float64     `json:"annual_net_income"`
	AnnualNetIncomeUVT float64     `json:"annual_net_income_uvt"`
	DeductionCapCOP    float64     `json:"deduction_cap_cop"`
	DeductionCapUVT    float64     `json:"deduction_cap_uvt"`
	DeductionCapReason LimitReason `json:"deduction_cap_reason"`

	WithoutVehicle          Scenario `json:"without_vehicle"`
	VehicleDeductionApplied float64  `json:"vehicle_deduction_applied"`
	WithVehicle             Scenario `json:"with_vehicle"`

	AnnualSavings          float64 `json:"annual_savings"`
	SavingsPerMillion      float64 `json:"savings_per_million"`
	SavingsPerMillionExact float64 `json:"savings_per_million_exact"`

	Optimal *OptimalDeduction `json:"optimal_deduction,omitempty"`
	Alerts  []string          `json:"alerts"`
}

// Calculator evaluates requests against one validated tax year.
type Calculator struct {
	params Params
}

// New validates p and returns a Calculator bound to it.
func New(p Params) (*Calculator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{params: p}, nil
}

// Params returns the tax year the calculator was built with.
func (c *Calculator) Params() Params {
	return c.params
}

// DeductionCap resolves the maximum deductions plus exemptions for an annual
// income: the lower of the UVT cap and the percentage cap.
func (p Params) DeductionCap(annualIncome float64) (float64, LimitReason) {
	byUVT := p.UVTToCOP(p.MaxDeductionsUVT)
	byRate := p.MaxDeductionsRate * annualIncome
	if byUVT <= byRate {
		return byUVT, LimitByUVT
	}
	return byRate, LimitByRate
}

// scenario applies the labor exemption and the cap to a deduction total and
// resolves the resulting tax.
func (p Params) scenario(annualIncome, deductions, capCOP float64, withExemption bool) Scenario {
	exemption := 0.0
	if withExemption {
		subtotal := math.Max(0, annualIncome-deductions)
		exemption = math.Min(subtotal*p.ExemptionRate, p.UVTToCOP(p.MaxExemptionUVT))
	}
	total := math.Min(deductions+exemption, capCOP)
	renta := math.Max(0, annualIncome-total)
	rentaUVT := p.COPToUVT(renta)
	taxUVT := p.TaxUVT(rentaUVT)
	return Scenario{
		Deductions:              deductions,
		LaborExemption:          exemption,
		DeductionsAndExemptions: total,
		TaxableIncomeCOP:        renta,
		TaxableIncomeUVT:        rentaUVT,
		TaxCOP:                  p.UVTToCOP(taxUVT),
		TaxUVT:                  taxUVT,
		Bracket:                 p.Bracket(rentaUVT),
	}
}

// SavingsPerMillionExact is the tax avoided by deducting one more million
// pesos from rentaCOP, accounting for a bracket crossing inside that million.
func (p Params) SavingsPerMillionExact(rentaCOP float64) float64 {
	return math.Max(0, p.TaxCOP(rentaCOP)-p.TaxCOP(rentaCOP-perMillion))
}

// Compute runs the full calculation. It never fails: out-of-range amounts are
// clamped and soft corrections are reported in Result.Alerts.
func (c *Calculator) Compute(in Input) Result {
	p := c.params
	alerts := []string{}

	monthly := nonNegative(in.MonthlyNetIncome)
	vehicleTotal := nonNegative(in.VehicleDeductionTotal)
	withExemption := in.IncludeLaborExemption == nil || *in.IncludeLaborExemption

	annual := monthly * 12
	capCOP, reason := p.DeductionCap(annual)

	other := nonNegative(in.OtherDeductionsAnnual)
	if other > capCOP {
		alerts = append(alerts, fmt.Sprintf(
			"Tus deducciones actuales (%s) superan el límite permitido. Se ajustarán al máximo de %s.",
			FormatCOP(other), FormatCOP(capCOP)))
		other = capCOP
	}

	base := p.scenario(annual, other, capCOP, withExemption)
	headroom := math.Max(0, capCOP-base.DeductionsAndExemptions)

	applied := vehicleTotal
	if in.VehicleDeductionApplied != nil {
		applied = nonNegative(*in.VehicleDeductionApplied)
	}

	var optimal *OptimalDeduction
	if in.CalculateOptimal {
		o := p.optimalDeduction(base.TaxableIncomeCOP, headroom, vehicleTotal)
		optimal = &o
		applied = o.RecommendedDeduction
	}

	if applied > headroom {
		alerts = append(alerts, fmt.Sprintf(
			"La deducción del vehículo se limita a %s por el tope de deducciones.",
			FormatCOP(headroom)))
		applied = headroom
	}
	// The optimizer already respects the ceiling; this covers caller-supplied amounts.
	if applied > vehicleTotal {
		applied = vehicleTotal
	}

	with := p.scenario(annual, other+applied, capCOP, withExemption)

	if headroom <= 0 {
		alerts = append(alerts, "Tus deducciones actuales ya alcanzan el límite máximo. No podrás deducir el vehículo este año.")
	}
	if base.Bracket.MarginalRate == 0 {
		alerts = append(alerts, "Tu renta líquida actual está en el tramo exento (0%). El beneficio tributario por el vehículo sería mínimo o nulo.")
	}

	return Result{
		Year:                    p.Year,
		AnnualNetIncome:         annual,
		AnnualNetIncomeUVT:      p.COPToUVT(annual),
		DeductionCapCOP:         capCOP,
		DeductionCapUVT:         p.COPToUVT(capCOP),
		DeductionCapReason:      reason,
		WithoutVehicle:          base,
		VehicleDeductionApplied: applied,
		WithVehicle:             with,
		AnnualSavings:           math.Max(0, base.TaxCOP-with.TaxCOP),
		SavingsPerMillion:       base.Bracket.MarginalRate * perMillion,
		SavingsPerMillionExact:  p.SavingsPerMillionExact(base.TaxableIncomeCOP),
		Optimal:                 optimal,
		Alerts:                  alerts,
	}
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
