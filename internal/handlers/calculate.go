package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ahorrove/internal/audit"
	"ahorrove/internal/logger"
	"ahorrove/internal/models"
	"ahorrove/internal/resultcache"
)

const maxCalculateBody = 64 << 10

func calculateError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.CalculateResponse{Success: false, Error: msg})
}

// CalculateHandler validates the lead form, runs the calculator for the
// requested tax year and queues the audit record without waiting for it.
func CalculateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !verifyTurnstile(getTurnstileToken(r), clientIP(r)) {
		calculateError(w, http.StatusForbidden, "Verificación de seguridad no superada")
		return
	}

	var req models.CalculateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxCalculateBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("calculate: invalid request body", map[string]interface{}{"error": err.Error(), "ip": clientIP(r)})
		calculateError(w, http.StatusBadRequest, "Solicitud inválida")
		return
	}
	defer r.Body.Close()

	sanitizeRequest(&req)
	if msg, ok := validateRequest(req); !ok {
		calculateError(w, http.StatusBadRequest, msg)
		return
	}

	calc, err := deps.Tables.Calculator(req.Year)
	if err != nil {
		calculateError(w, http.StatusBadRequest, "No hay tabla de impuestos para el año solicitado")
		return
	}

	result := calc.Compute(req.Input())
	id := uuid.NewString()
	now := time.Now().UTC()

	if deps.Results != nil {
		deps.Results.Put(resultcache.Entry{
			ID:            id,
			CreatedAt:     now,
			Nombre:        req.Nombre,
			TipoCliente:   req.TipoCliente,
			Ciudad:        req.Ciudad,
			ValorVehiculo: req.ValorVehiculo,
			Result:        result,
		})
	}

	if deps.Audit != nil {
		deps.Audit.Submit(audit.Record{
			Timestamp:         now,
			ID:                id,
			Nombre:            req.Nombre,
			Email:             req.Email,
			CedulaNIT:         req.CedulaNIT,
			Celular:           req.Celular,
			Ciudad:            req.Ciudad,
			TipoCliente:       req.TipoCliente,
			IngresosMensuales: req.IngresosMensuales,
			OtrasDeducciones:  req.OtrasDeducciones,
			ValorVehiculo:     req.ValorVehiculo,
			AhorroAnual:       result.AnnualSavings,
			TramoSinVehiculo:  result.WithoutVehicle.Bracket.Name,
			TramoConVehiculo:  result.WithVehicle.Bracket.Name,
		})
	}

	IncrementCounter()
	logger.Info("calculation served", map[string]interface{}{
		"id":      id,
		"year":    result.Year,
		"tipo":    req.TipoCliente,
		"savings": result.AnnualSavings,
		"alerts":  len(result.Alerts),
	})

	writeJSON(w, http.StatusOK, models.CalculateResponse{
		Success: true,
		ID:      id,
		Result:  &result,
	})
}
