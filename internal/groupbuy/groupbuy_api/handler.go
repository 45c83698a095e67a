package groupbuy_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-groupbuy/internal/auth"
	"ms-groupbuy/internal/groupbuy"
	"ms-groupbuy/internal/logger"
	"ms-groupbuy/internal/utils"
)

type Handler struct {
	Service *groupbuy.Service
	Logger  *logger.Logger
}

func NewHandler(service *groupbuy.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string, err error) {
	h.writeJSON(w, status, utils.ErrorResponse(message, err.Error()))
}

// statusFor maps coordinator errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, groupbuy.ErrInvalidSlotCount):
		return http.StatusBadRequest
	case errors.Is(err, groupbuy.ErrInsufficientInventory):
		return http.StatusConflict
	case errors.Is(err, groupbuy.ErrGroupBuyNotFound), errors.Is(err, groupbuy.ErrInvalidLink):
		return http.StatusNotFound
	case errors.Is(err, groupbuy.ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, groupbuy.ErrNotActive), errors.Is(err, groupbuy.ErrExpired):
		return http.StatusGone
	case errors.Is(err, groupbuy.ErrNotExpired):
		return http.StatusConflict
	case errors.Is(err, groupbuy.ErrSlotNotClaimed):
		return http.StatusForbidden
	case errors.Is(err, groupbuy.ErrPaymentNotConfirmed):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID      string  `json:"event_id"`
		TierID       string  `json:"tier_id"`
		TotalSlots   int     `json:"total_slots"`
		PricePerSlot float64 `json:"price_per_slot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EventID == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", "event_id is required"))
		return
	}

	initiatorID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("Initiate: event=%s slots=%d initiator=%s", req.EventID, req.TotalSlots, initiatorID))

	gb, err := h.Service.Initiate(r.Context(), initiatorID, req.EventID, req.TierID, req.TotalSlots, req.PricePerSlot)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Initiate failed: %v", err))
		h.writeError(w, statusFor(err), "Could not initiate group buy", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Group buy initiated", gb))
}

func (h *Handler) GetGroupBuy(w http.ResponseWriter, r *http.Request) {
	groupBuyID := chi.URLParam(r, "groupBuyId")

	gb, err := h.Service.GetGroupBuy(r.Context(), groupBuyID)
	if err != nil {
		h.writeError(w, statusFor(err), "Could not load group buy", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Group buy", gb))
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	groupBuyID := chi.URLParam(r, "groupBuyId")

	progress, err := h.Service.Progress(r.Context(), groupBuyID)
	if err != nil {
		h.writeError(w, statusFor(err), "Could not load progress", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Group buy progress", progress))
}

func (h *Handler) ClaimSlot(w http.ResponseWriter, r *http.Request) {
	claimLink := chi.URLParam(r, "claimLink")
	claimantID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("ClaimSlot: link=%s claimant=%s", claimLink, claimantID))

	slot, err := h.Service.ClaimSlot(r.Context(), claimLink, claimantID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ClaimSlot failed: %v", err))
		h.writeError(w, statusFor(err), "Could not claim slot", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Slot claimed", slot))
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	claimLink := chi.URLParam(r, "claimLink")

	var req struct {
		PaymentRef string `json:"payment_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PaymentRef == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", "payment_ref is required"))
		return
	}

	claimantID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("RecordPayment: link=%s claimant=%s ref=%s", claimLink, claimantID, req.PaymentRef))

	slot, err := h.Service.RecordPayment(r.Context(), claimLink, claimantID, req.PaymentRef)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RecordPayment failed: %v", err))
		h.writeError(w, statusFor(err), "Could not record payment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment recorded", slot))
}

// Expire lets an operator force-expire a group buy ahead of the sweeper.
func (h *Handler) Expire(w http.ResponseWriter, r *http.Request) {
	groupBuyID := chi.URLParam(r, "groupBuyId")
	h.Logger.Info("API", fmt.Sprintf("Expire: groupBuyId=%s", groupBuyID))

	outcomes, err := h.Service.Expire(r.Context(), groupBuyID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Expire failed: %v", err))
		h.writeError(w, statusFor(err), "Could not expire group buy", err)
		return
	}
	if outcomes == nil {
		h.writeJSON(w, http.StatusConflict, utils.ErrorResponse("Could not expire group buy", "group buy is not active"))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Group buy expired", outcomes))
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/groupbuy", func(r chi.Router) {
		r.Post("/", h.Initiate)
		r.Get("/{groupBuyId}", h.GetGroupBuy)
		r.Get("/{groupBuyId}/progress", h.Progress)
		r.Post("/{groupBuyId}/expire", h.Expire)
		r.Post("/claim/{claimLink}", h.ClaimSlot)
		r.Post("/claim/{claimLink}/payment", h.RecordPayment)
	})
}
