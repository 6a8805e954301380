package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
	"github.com/alanyoungcy/greenbond-oracle/internal/service"
)

// OracleService defines the methods that the oracle handler requires.
type OracleService interface {
	Audit(ctx context.Context, bondID, date string, actual *float64) (domain.AuditRecord, error)
	AuditLog(ctx context.Context, bondID string) ([]domain.AuditRecord, error)
	RunBatch(ctx context.Context, bondID string) (domain.BatchReport, error)
	PenaltySummary(ctx context.Context, bondID string) (domain.PenaltySummary, error)
	Publish(ctx context.Context, bondID, date string) (service.PublishResult, error)
	ContractInfo(ctx context.Context) (domain.ContractInfo, bool)
}

// OracleHandler serves the audit endpoints.
type OracleHandler struct {
	oracle OracleService
	logger *slog.Logger
}

// NewOracleHandler creates an OracleHandler.
func NewOracleHandler(oracle OracleService, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{oracle: oracle, logger: logger}
}

// auditResponse is an audit record tagged with its bond.
type auditResponse struct {
	BondID string `json:"bond_id"`
	domain.AuditRecord
}

// auditLogResponse wraps a stored audit log.
type auditLogResponse struct {
	BondID   string               `json:"bond_id"`
	Count    int                  `json:"count"`
	AuditLog []domain.AuditRecord `json:"audit_log"`
}

// PerformanceRatio computes, stores and returns the audit of a bond for a
// date. An actual_energy query parameter overrides recorded production.
// GET /oracle/pr/{bond_id}/{date}?actual_energy=
func (h *OracleHandler) PerformanceRatio(w http.ResponseWriter, r *http.Request) {
	bondID := r.PathValue("bond_id")
	actual, err := parseActualEnergy(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.oracle.Audit(r.Context(), bondID, r.PathValue("date"), actual)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to compute performance ratio")
		return
	}
	writeJSON(w, http.StatusOK, auditResponse{BondID: bondID, AuditRecord: rec})
}

// AuditLog returns the stored audit log of a bond. With recompute=true it
// first audits the bond's whole production history and returns the batch
// report instead.
// GET /oracle/audit/{bond_id}?recompute=true
func (h *OracleHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	bondID := r.PathValue("bond_id")

	recompute := false
	if v := r.URL.Query().Get("recompute"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid recompute value: "+v)
			return
		}
		recompute = b
	}

	if recompute {
		report, err := h.oracle.RunBatch(r.Context(), bondID)
		if err != nil {
			writeServiceError(w, r, h.logger, err, "failed to run batch audit")
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	log, err := h.oracle.AuditLog(r.Context(), bondID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load audit log")
		return
	}
	if log == nil {
		log = []domain.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, auditLogResponse{BondID: bondID, Count: len(log), AuditLog: log})
}

// PenaltySummary returns penalty statistics over a bond's audit log.
// GET /oracle/penalty-summary/{bond_id}
func (h *OracleHandler) PenaltySummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.oracle.PenaltySummary(r.Context(), r.PathValue("bond_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to build penalty summary")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Publish attaches a publication token to a stored audit.
// POST /oracle/publish/{bond_id}/{date}
func (h *OracleHandler) Publish(w http.ResponseWriter, r *http.Request) {
	res, err := h.oracle.Publish(r.Context(), r.PathValue("bond_id"), r.PathValue("date"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to publish audit")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ContractInfo describes the ledger contract audits are written to.
// GET /oracle/contract-info
func (h *OracleHandler) ContractInfo(w http.ResponseWriter, r *http.Request) {
	info, ok := h.oracle.ContractInfo(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "no ledger configured")
		return
	}
	writeJSON(w, http.StatusOK, info)
}
