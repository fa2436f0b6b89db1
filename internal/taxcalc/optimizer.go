package taxcalc

import (
	"fmt"
	"math"
)

// Rationale identifies why the optimizer recommended what it did.
type Rationale string

const (
	RationaleAlreadyExempt   Rationale = "already_exempt"
	RationaleAlreadyInTarget Rationale = "already_in_target"
	RationaleTargetReached   Rationale = "target_reached"
	RationaleVehicleCeiling  Rationale = "vehicle_ceiling"
	RationaleDeductionCap    Rationale = "deduction_cap"
)

// OptimalDeduction is the smallest vehicle deduction that brings taxable
// income down to the optimal target, bounded by the caps.
type OptimalDeduction struct {
	RecommendedDeduction      float64     `json:"recommended_deduction"`
	NewBracket                BracketInfo `json:"new_bracket"`
	EstimatedSavings          float64     `json:"estimated_savings"`
	RemainingVehicleDeduction float64     `json:"remaining_vehicle_deduction"`
	Code                      Rationale   `json:"code"`
	Reason                    string      `json:"reason"`
}

// optimalDeduction solves min(required, headroom, vehicleTotal) in closed form.
// headroom is the part of the deduction cap not used by the baseline.
func (p Params) optimalDeduction(rentaCOP, headroom, vehicleTotal float64) OptimalDeduction {
	targetCOP := p.UVTToCOP(p.OptimalTargetUVT)
	rentaUVT := p.COPToUVT(rentaCOP)

	if rentaUVT <= p.OptimalTargetUVT {
		o := OptimalDeduction{
			NewBracket:                p.Bracket(rentaUVT),
			RemainingVehicleDeduction: vehicleTotal,
		}
		if rentaUVT > p.exemptUpperUVT() {
			o.Code = RationaleAlreadyInTarget
			o.Reason = fmt.Sprintf("Ya estás en el tramo del %s. Puedes deducir el vehículo para reducir más tu impuesto, pero el ahorro será al %s o menos.",
				o.NewBracket.Name, o.NewBracket.Name)
		} else {
			o.Code = RationaleAlreadyExempt
			o.Reason = "Tu renta líquida está en el tramo exento (0%). No obtendrías beneficio tributario adicional al deducir."
		}
		return o
	}

	required := rentaCOP - targetCOP
	recommended := math.Min(required, math.Min(headroom, vehicleTotal))

	newRentaUVT := p.COPToUVT(rentaCOP - recommended)
	newBracket := p.Bracket(newRentaUVT)
	savings := math.Max(0, p.UVTToCOP(p.TaxUVT(rentaUVT))-p.UVTToCOP(p.TaxUVT(newRentaUVT)))

	o := OptimalDeduction{
		RecommendedDeduction:      recommended,
		NewBracket:                newBracket,
		EstimatedSavings:          savings,
		RemainingVehicleDeduction: vehicleTotal - recommended,
	}
	switch {
	case recommended >= required:
		o.Code = RationaleTargetReached
		o.Reason = fmt.Sprintf("Con esta deducción quedarás en el tramo del %s, el más beneficioso antes del %s.",
			newBracket.Name, p.Brackets[p.bracketIndex(p.OptimalTargetUVT)+1].Name)
	case recommended >= vehicleTotal:
		o.Code = RationaleVehicleCeiling
		o.Reason = fmt.Sprintf("Se aplica el valor total deducible del vehículo. Quedarás en el tramo del %s.", newBracket.Name)
	default:
		o.Code = RationaleDeductionCap
		o.Reason = fmt.Sprintf("Se aplica el máximo permitido por límites de deducciones (%s o %s UVT). Quedarás en el tramo del %s.",
			FormatPercent(p.MaxDeductionsRate), trimFloat(p.MaxDeductionsUVT), newBracket.Name)
	}
	return o
}
