package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/errdigest/internal/api/response"
	"github.com/kiranshivaraju/errdigest/internal/store"
	"github.com/kiranshivaraju/errdigest/pkg/models"
)

// SubscriptionReader defines the interface the subscriptions handler depends on.
type SubscriptionReader interface {
	Subscribers(ctx context.Context, clientID string) (*models.Subscription, error)
}

// NewGetSubscriptionHandler returns an http.HandlerFunc for
// GET /api/v1/subscriptions/{clientID}.
func NewGetSubscriptionHandler(subs SubscriptionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := chi.URLParam(r, "clientID")

		sub, err := subs.Subscribers(r.Context(), clientID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "No subscription for this client", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, subscriptionResponse{
			ClientID:    sub.ClientID,
			Subscribers: sub.Subscribers,
			CreatedAt:   sub.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
}

type subscriptionResponse struct {
	ClientID    string   `json:"client_id"`
	Subscribers []string `json:"subscribers"`
	CreatedAt   string   `json:"created_at"`
}
