package models

import "ahorrove/internal/taxcalc"

// CalculateRequest is the body of POST /api/calculate.
type CalculateRequest struct {
	Nombre                    string   `json:"nombre"`
	Email                     string   `json:"email"`
	CedulaNIT                 string   `json:"cedula_nit"`
	Celular                   string   `json:"celular"`
	Ciudad                    string   `json:"ciudad"`
	TipoCliente               string   `json:"tipo_cliente"`
	IngresosMensuales         float64  `json:"ingresos_mensuales"`
	OtrasDeducciones          float64  `json:"otras_deducciones"`
	ValorVehiculo             float64  `json:"valor_vehiculo"`
	DeduccionVehiculoAplicada *float64 `json:"deduccion_vehiculo_aplicada,omitempty"`
	CalcularDeduccionOptima   bool     `json:"calcular_deduccion_optima"`
	IncluirRentaExenta        *bool    `json:"incluir_renta_exenta,omitempty"`
	Year                      int      `json:"year,omitempty"`
}

// CalculateResponse wraps the result or the reason the request was rejected.
type CalculateResponse struct {
	Success bool            `json:"success"`
	ID      string          `json:"id,omitempty"`
	Result  *taxcalc.Result `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// TipoCliente values.
const (
	ClienteNatural = "natural"
	ClienteEmpresa = "empresa"
)

// Input maps the request onto the calculator input.
func (r CalculateRequest) Input() taxcalc.Input {
	return taxcalc.Input{
		MonthlyNetIncome:        r.IngresosMensuales,
		OtherDeductionsAnnual:   r.OtrasDeducciones,
		VehicleDeductionTotal:   r.ValorVehiculo,
		VehicleDeductionApplied: r.DeduccionVehiculoAplicada,
		CalculateOptimal:        r.CalcularDeduccionOptima,
		IncludeLaborExemption:   r.IncluirRentaExenta,
	}
}
