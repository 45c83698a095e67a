package scan_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-groupbuy/internal/auth"
	"ms-groupbuy/internal/logger"
	"ms-groupbuy/internal/scan"
	"ms-groupbuy/internal/utils"
)

type Handler struct {
	Service *scan.Service
	Logger  *logger.Logger
}

func NewHandler(service *scan.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

type scanRequest struct {
	QRToken    string `json:"qr_token"`
	BackupCode string `json:"backup_code"`
	Location   string `json:"location"`
	DeviceInfo string `json:"device_info"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*scanRequest, scan.ScanContext, bool) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return nil, scan.ScanContext{}, false
	}
	if req.QRToken == "" && req.BackupCode == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", "qr_token or backup_code is required"))
		return nil, scan.ScanContext{}, false
	}

	sc := scan.ScanContext{
		ScannedBy:  auth.UserID(r.Context()),
		Location:   req.Location,
		DeviceInfo: req.DeviceInfo,
	}
	return &req, sc, true
}

// Verify checks a credential without consuming it.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	req, sc, ok := h.decode(w, r)
	if !ok {
		return
	}

	result, err := h.Service.Verify(r.Context(), req.QRToken, req.BackupCode, sc)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Verify failed: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Verification failed", err.Error()))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Verification result", result))
}

// MarkUsed consumes a valid credential at the gate.
func (h *Handler) MarkUsed(w http.ResponseWriter, r *http.Request) {
	req, sc, ok := h.decode(w, r)
	if !ok {
		return
	}

	result, err := h.Service.MarkUsed(r.Context(), req.QRToken, req.BackupCode, sc)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("MarkUsed failed: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Scan failed", err.Error()))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Scan result", result))
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	records, err := h.Service.History(r.Context(), ticketID)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not load scan history", err.Error()))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Scan history", records))
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/scan", func(r chi.Router) {
		r.Post("/verify", h.Verify)
		r.Post("/use", h.MarkUsed)
		r.Get("/history/{ticketId}", h.History)
	})
}
