package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
	"github.com/alanyoungcy/greenbond-oracle/internal/service"
)

// BondService defines the methods that the bond handler requires.
type BondService interface {
	Create(ctx context.Context, in service.CreateBondInput) (domain.Bond, error)
	Get(ctx context.Context, id string) (domain.Bond, error)
	List(ctx context.Context) ([]domain.Bond, error)
}

// Previewer computes an audit without storing it.
type Previewer interface {
	Preview(ctx context.Context, bondID, date string, actual *float64) (domain.AuditRecord, error)
}

// BondHandler serves the bond registry endpoints.
type BondHandler struct {
	bonds   BondService
	preview Previewer
	logger  *slog.Logger
}

// NewBondHandler creates a BondHandler.
func NewBondHandler(bonds BondService, preview Previewer, logger *slog.Logger) *BondHandler {
	return &BondHandler{bonds: bonds, preview: preview, logger: logger}
}

// ListBonds returns every registered bond.
// GET /api/v1/bonds
func (h *BondHandler) ListBonds(w http.ResponseWriter, r *http.Request) {
	bonds, err := h.bonds.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list bonds")
		return
	}
	if bonds == nil {
		bonds = []domain.Bond{}
	}
	writeJSON(w, http.StatusOK, bonds)
}

// CreateBond registers a bond from a JSON body.
// POST /api/v1/bonds
func (h *BondHandler) CreateBond(w http.ResponseWriter, r *http.Request) {
	var in service.CreateBondInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	bond, err := h.bonds.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create bond")
		return
	}
	writeJSON(w, http.StatusCreated, bond)
}

// GetBond returns one bond with its audit log.
// GET /api/v1/bonds/{bond_id}
func (h *BondHandler) GetBond(w http.ResponseWriter, r *http.Request) {
	bond, err := h.bonds.Get(r.Context(), r.PathValue("bond_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get bond")
		return
	}
	writeJSON(w, http.StatusOK, bond)
}

// ValidateDay previews the audit of a bond for one date without storing it.
// GET /api/v1/bonds/{bond_id}/validate/{date}?actual_energy=
func (h *BondHandler) ValidateDay(w http.ResponseWriter, r *http.Request) {
	bondID := r.PathValue("bond_id")
	actual, err := parseActualEnergy(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.preview.Preview(r.Context(), bondID, r.PathValue("date"), actual)
	if err != nil {
		writeServiceError(w, r, h.logger, err, fmt.Sprintf("failed to validate %s", bondID))
		return
	}
	writeJSON(w, http.StatusOK, auditResponse{BondID: bondID, AuditRecord: rec})
}
