/**
 * @description
 * This file contains the HTTP handlers for the subscription-service's API
 * endpoints. Handlers parse incoming requests, call the application service and
 * write the response. Paths and body field names follow the wire contract the
 * admin frontend already speaks, Django-style trailing slashes included.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: Service logic, models, errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/esnpolimi/subscription-service/internal/app"
	"github.com/esnpolimi/subscription-service/internal/domain"
	"github.com/esnpolimi/subscription-service/internal/store"
	"github.com/esnpolimi/subscription-service/pkg/liberatoria"
)

// SubscriptionHandlers holds the application service that handlers will use.
type SubscriptionHandlers struct {
	service *app.Service
}

// NewSubscriptionHandlers creates a new instance of SubscriptionHandlers.
func NewSubscriptionHandlers(service *app.Service) *SubscriptionHandlers {
	return &SubscriptionHandlers{service: service}
}

func (h *SubscriptionHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
		}
	}
}

func (h *SubscriptionHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps business errors to HTTP statuses:
//   - validation failures: 400 with a per-field error map
//   - missing records: 404
//   - state conflicts (read-only record, terminal status, full list, missing
//     confirmation): 409, with the confirmation summary when applicable
func (h *SubscriptionHandlers) writeServiceError(w http.ResponseWriter, err error) {
	var validation *app.ValidationError
	if errors.As(err, &validation) {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": validation.Fields})
		return
	}
	var confirmation *app.ConfirmationRequiredError
	if errors.As(err, &confirmation) {
		h.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"confirmation_required": true,
			"summary":               confirmation.Summary,
		})
		return
	}

	switch {
	case errors.Is(err, store.ErrSubscriptionNotFound),
		errors.Is(err, store.ErrEventNotFound),
		errors.Is(err, store.ErrListNotFound),
		errors.Is(err, store.ErrProfileNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrSubscriptionReadOnly),
		errors.Is(err, app.ErrReimbursedTerminal),
		errors.Is(err, app.ErrListFull),
		errors.Is(err, app.ErrEventLocked):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrAccountRequired),
		errors.Is(err, app.ErrAccountClosed),
		errors.Is(err, app.ErrAccountUnknown),
		errors.Is(err, app.ErrDepositNotApplicable),
		errors.Is(err, app.ErrTransitionNotAllowed),
		errors.Is(err, app.ErrReimburseViaEndpoint),
		errors.Is(err, app.ErrSubscriptionWindowClosed),
		errors.Is(err, app.ErrListNotInEvent),
		errors.Is(err, app.ErrSameList),
		errors.Is(err, app.ErrNotQuotaPaid),
		errors.Is(err, app.ErrNotDepositPaid),
		errors.Is(err, app.ErrWindowOrder),
		errors.Is(err, store.ErrNoCreditToReverse):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *SubscriptionHandlers) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// optionalListParam reads the ?list= query filter.
func (h *SubscriptionHandlers) optionalListParam(w http.ResponseWriter, r *http.Request) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get("list")
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid list id")
		return nil, false
	}
	return &id, true
}

// CreateSubscriptionHandler handles POST /subscription/.
func (h *SubscriptionHandlers) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sub, err := h.service.CreateSubscription(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sub)
}

// UpdateSubscriptionHandler handles PATCH /subscription/{id}/.
func (h *SubscriptionHandlers) UpdateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req domain.UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sub, err := h.service.UpdateSubscription(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sub)
}

// GetSubscriptionHandler handles GET /subscription/{id}/.
func (h *SubscriptionHandlers) GetSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sub, err := h.service.GetSubscription(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sub)
}

// DeleteSubscriptionHandler handles DELETE /subscription/{id}/. Deleting a
// record with a reimbursed component answers 409.
func (h *SubscriptionHandlers) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteSubscription(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptionMovementsHandler handles GET /subscription/{id}/movements/.
func (h *SubscriptionHandlers) ListSubscriptionMovementsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	movements, err := h.service.ListMovements(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if movements == nil {
		movements = []domain.LedgerMovement{}
	}
	h.writeJSON(w, http.StatusOK, movements)
}

// ListEventSubscriptionsHandler handles GET /event/{id}/subscriptions/?list=.
func (h *SubscriptionHandlers) ListEventSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	listID, ok := h.optionalListParam(w, r)
	if !ok {
		return
	}
	subs, err := h.service.ListSubscriptions(r.Context(), eventID, listID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if subs == nil {
		subs = []domain.Subscription{}
	}
	h.writeJSON(w, http.StatusOK, subs)
}

// MoveSubscriptionsHandler handles POST /move-subscriptions/.
func (h *SubscriptionHandlers) MoveSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.MoveSubscriptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	moved, err := h.service.MoveSubscriptions(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"moved": moved})
}

// ReimbursableDepositsHandler handles GET /reimbursable_deposits/?event=&list=.
func (h *SubscriptionHandlers) ReimbursableDepositsHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(r.URL.Query().Get("event"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	listID, ok := h.optionalListParam(w, r)
	if !ok {
		return
	}
	subs, err := h.service.ListReimbursableDeposits(r.Context(), eventID, listID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if subs == nil {
		subs = []domain.Subscription{}
	}
	h.writeJSON(w, http.StatusOK, subs)
}

// ReimburseDepositsHandler handles POST /reimburse_deposits/.
func (h *SubscriptionHandlers) ReimburseDepositsHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.ReimburseDepositsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.service.ReimburseDeposits(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ReimburseQuotaHandler handles POST /reimburse_quota/.
func (h *SubscriptionHandlers) ReimburseQuotaHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.ReimburseQuotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sub, err := h.service.ReimburseQuota(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sub)
}

// PrintableLiberatorieHandler handles GET /event/{id}/printable_liberatorie/?list=.
func (h *SubscriptionHandlers) PrintableLiberatorieHandler(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	listID, ok := h.optionalListParam(w, r)
	if !ok {
		return
	}
	rows, err := h.service.ListPrintableLiberatorie(r.Context(), eventID, listID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if rows == nil {
		rows = []domain.LiberatoriaRow{}
	}
	h.writeJSON(w, http.StatusOK, rows)
}

// GenerateLiberatoriePDFHandler handles POST /generate_liberatorie_pdf/. The
// response is the PDF itself, with a Content-Disposition filename the client
// honors verbatim when saving.
func (h *SubscriptionHandlers) GenerateLiberatoriePDFHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerateLiberatoriePDFRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	batch, err := h.service.BuildLiberatorieBatch(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", batch.Filename()))
	if err := liberatoria.Render(*batch, w); err != nil {
		log.Printf("level=error component=api msg=\"pdf render failed\" event=%s err=%v", req.EventID, err)
	}
}

// ListAccountsHandler handles GET /accounts/. Closed accounts are included with
// disabled=true so the frontend shows but grays them.
func (h *SubscriptionHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.Accounts(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// CreateEventHandler handles POST /event/.
func (h *SubscriptionHandlers) CreateEventHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	event, err := h.service.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, event)
}

// UpdateEventHandler handles PATCH /event/{id}/.
func (h *SubscriptionHandlers) UpdateEventHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req domain.UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	event, err := h.service.UpdateEvent(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, event)
}

// GetEventHandler handles GET /event/{id}/.
func (h *SubscriptionHandlers) GetEventHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	event, err := h.service.GetEvent(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, event)
}

// ListEventsHandler handles GET /events/.
func (h *SubscriptionHandlers) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListEvents(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	h.writeJSON(w, http.StatusOK, events)
}
