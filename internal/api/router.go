/**
 * @description
 * This file sets up the HTTP router for the subscription-service. It defines
 * the API endpoints, associates them with their corresponding handlers, and
 * applies middleware for logging, panic recovery, CORS and authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the admin SPA origin.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SubscriptionRoutes creates and returns the router for the subscription service.
func SubscriptionRoutes(h *SubscriptionHandlers, jwksURL string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(OperatorAuthMiddleware(jwksURL))

		// Subscription lifecycle
		r.Post("/subscription/", h.CreateSubscriptionHandler)
		r.Get("/subscription/{id}/", h.GetSubscriptionHandler)
		r.Patch("/subscription/{id}/", h.UpdateSubscriptionHandler)
		r.Delete("/subscription/{id}/", h.DeleteSubscriptionHandler)
		r.Get("/subscription/{id}/movements/", h.ListSubscriptionMovementsHandler)
		r.Post("/move-subscriptions/", h.MoveSubscriptionsHandler)

		// Reimbursement
		r.Get("/reimbursable_deposits/", h.ReimbursableDepositsHandler)
		r.Post("/reimburse_deposits/", h.ReimburseDepositsHandler)
		r.Post("/reimburse_quota/", h.ReimburseQuotaHandler)

		// Liberatorie
		r.Get("/event/{id}/printable_liberatorie/", h.PrintableLiberatorieHandler)
		r.Post("/generate_liberatorie_pdf/", h.GenerateLiberatoriePDFHandler)

		// Events registry
		r.Post("/event/", h.CreateEventHandler)
		r.Get("/event/{id}/", h.GetEventHandler)
		r.Patch("/event/{id}/", h.UpdateEventHandler)
		r.Get("/event/{id}/subscriptions/", h.ListEventSubscriptionsHandler)
		r.Get("/events/", h.ListEventsHandler)

		// Ledger accounts proxy
		r.Get("/accounts/", h.ListAccountsHandler)
	})

	return r
}
