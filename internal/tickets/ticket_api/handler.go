package ticket_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-groupbuy/internal/auth"
	"ms-groupbuy/internal/logger"
	"ms-groupbuy/internal/tickets"
	"ms-groupbuy/internal/tickets/qr_image"
	"ms-groupbuy/internal/utils"
)

type Handler struct {
	Service *tickets.Service
	Logger  *logger.Logger
}

func NewHandler(service *tickets.Service, log *logger.Logger) *Handler {
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

func statusFor(err error) int {
	switch {
	case errors.Is(err, tickets.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, tickets.ErrPaymentNotConfirmed):
		return http.StatusPaymentRequired
	case errors.Is(err, tickets.ErrPaymentOwnershipMismatch):
		return http.StatusForbidden
	case errors.Is(err, tickets.ErrInsufficientCapacity), errors.Is(err, tickets.ErrPaymentRefReused):
		return http.StatusConflict
	case errors.Is(err, tickets.ErrTicketNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) IssueSingle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID    string `json:"event_id"`
		TierID     string `json:"tier_id"`
		PaymentRef string `json:"payment_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EventID == "" || req.PaymentRef == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", "event_id and payment_ref are required"))
		return
	}

	holderID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("IssueSingle: event=%s holder=%s", req.EventID, holderID))

	ticket, err := h.Service.IssueSingle(r.Context(), holderID, req.EventID, req.TierID, req.PaymentRef)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("IssueSingle failed: %v", err))
		h.writeError(w, statusFor(err), "Could not issue ticket", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Ticket issued", ticket))
}

func (h *Handler) IssueBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID    string `json:"event_id"`
		TierID     string `json:"tier_id"`
		PaymentRef string `json:"payment_ref"`
		Quantity   int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EventID == "" || req.PaymentRef == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", "event_id and payment_ref are required"))
		return
	}

	holderID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("IssueBulk: event=%s holder=%s quantity=%d", req.EventID, holderID, req.Quantity))

	result, err := h.Service.IssueBulk(r.Context(), holderID, req.EventID, req.TierID, req.PaymentRef, req.Quantity)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("IssueBulk failed: %v", err))
		h.writeError(w, statusFor(err), "Could not issue tickets", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Tickets issued", result))
}

func (h *Handler) MyTickets(w http.ResponseWriter, r *http.Request) {
	holderID := auth.UserID(r.Context())

	result, err := h.Service.GetTicketsByHolder(r.Context(), holderID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Could not load tickets", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Tickets", result))
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	holderID := auth.UserID(r.Context())

	ticket, err := h.Service.GetTicket(r.Context(), ticketID, holderID)
	if err != nil {
		h.writeError(w, statusFor(err), "Ticket not found", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Ticket", ticket))
}

// TicketQR renders the ticket's QR token as a PNG. Only the holder can
// fetch it.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	holderID := auth.UserID(r.Context())

	ticket, err := h.Service.GetTicket(r.Context(), ticketID, holderID)
	if err != nil {
		h.writeError(w, statusFor(err), "Ticket not found", err)
		return
	}

	png, err := qr_image.Render(ticket.QRToken)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("TicketQR render failed: %v", err))
		h.writeError(w, http.StatusInternalServerError, "Could not render QR image", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("TicketQR write failed: %v", err))
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tickets", func(r chi.Router) {
		r.Post("/", h.IssueSingle)
		r.Post("/bulk", h.IssueBulk)
		r.Get("/", h.MyTickets)
		r.Get("/{ticketId}", h.ViewTicket)
		r.Get("/{ticketId}/qr", h.TicketQR)
	})
}
