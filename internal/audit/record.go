// Package audit delivers one record per calculation to external sinks
// (Google Sheets, SQLite) off the request path. Delivery is best effort:
// a failing sink is logged and reported, never surfaced to the user.
package audit

import (
	"context"
	"strings"
	"time"
)

// Record is one row of the calculation log.
type Record struct {
	Timestamp         time.Time `json:"timestamp"`
	ID                string    `json:"id"`
	Nombre            string    `json:"nombre"`
	Email             string    `json:"email"`
	CedulaNIT         string    `json:"cedula_nit"`
	Celular           string    `json:"celular"`
	Ciudad            string    `json:"ciudad"`
	TipoCliente       string    `json:"tipo_cliente"`
	IngresosMensuales float64   `json:"ingresos_mensuales"`
	OtrasDeducciones  float64   `json:"otras_deducciones"`
	ValorVehiculo     float64   `json:"valor_vehiculo"`
	AhorroAnual       float64   `json:"ahorro_anual"`
	TramoSinVehiculo  string    `json:"tramo_sin_vehiculo"`
	TramoConVehiculo  string    `json:"tramo_con_vehiculo"`
}

// Columns is the header of the A:N range, in row order.
var Columns = []string{
	"Timestamp", "ID", "Nombre", "Email", "Cédula/NIT", "Celular", "Ciudad",
	"Tipo Cliente", "Ingresos Mensuales", "Otras Deducciones", "Valor Vehículo",
	"Ahorro Anual", "Tramo Sin Vehículo", "Tramo Con Vehículo",
}

// Row renders r as spreadsheet cells. Text cells are protected against
// formula injection; amounts stay numeric.
func (r Record) Row() []interface{} {
	return []interface{}{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.ID,
		SanitizeForFormulaInjection(r.Nombre),
		SanitizeForFormulaInjection(r.Email),
		SanitizeForFormulaInjection(r.CedulaNIT),
		SanitizeForFormulaInjection(r.Celular),
		SanitizeForFormulaInjection(r.Ciudad),
		r.TipoCliente,
		r.IngresosMensuales,
		r.OtrasDeducciones,
		r.ValorVehiculo,
		r.AhorroAnual,
		r.TramoSinVehiculo,
		r.TramoConVehiculo,
	}
}

// Sink stores records somewhere durable.
type Sink interface {
	Name() string
	Write(ctx context.Context, r Record) error
}

// SanitizeForFormulaInjection prefixes a quote when a cell would otherwise be
// evaluated as a formula by Sheets or Excel.
func SanitizeForFormulaInjection(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	switch trimmed[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}
