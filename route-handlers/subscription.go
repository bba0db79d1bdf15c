package routehandlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/weathermail/weathermail/delivery"
	"github.com/weathermail/weathermail/models"
	"github.com/weathermail/weathermail/webutil"
)

var validate = validator.New()

const maxCityLength = 120

// SubscriberStore is the lifecycle surface the sign-up flow depends on.
type SubscriberStore interface {
	Upsert(ctx context.Context, email, city string) (bool, *models.Subscriber, error)
	Remove(ctx context.Context, email string) error
	MarkWelcomeSent(ctx context.Context, email string) error
}

type SubscriptionHandler struct {
	Store  SubscriberStore
	Mailer delivery.Sender
}

func NewSubscriptionHandler(store SubscriberStore, mailer delivery.Sender) *SubscriptionHandler {
	return &SubscriptionHandler{Store: store, Mailer: mailer}
}

type subscribeRequest struct {
	Email string `json:"email" validate:"required,email"`
	City  string `json:"city" validate:"required"`
}

// HandleSubscribe registers a new subscriber or updates an existing one's
// city. New sign-ups are transactional: if the welcome email cannot be
// dispatched, the just-created record is deleted and the failure surfaces.
func (h *SubscriptionHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) error {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return webutil.ErrBadRequestWrap("Invalid request payload.", err)
	}
	defer r.Body.Close()

	if err := validate.Var(req.Email, "required,email"); err != nil {
		return webutil.ErrBadRequest("Please provide a valid email.")
	}

	city := strings.TrimSpace(req.City)
	if city == "" || len(city) > maxCityLength {
		return webutil.ErrBadRequest("Please provide a city to monitor.")
	}

	isNew, subscriber, err := h.Store.Upsert(r.Context(), req.Email, city)
	if err != nil {
		return fmt.Errorf("failed to upsert subscriber: %w", err)
	}

	if !isNew {
		webutil.RespondWithJSON(w, http.StatusOK, map[string]string{
			"message": "We updated your city. Expect tomorrow's forecast at 7 AM.",
		})
		return nil
	}

	if err := h.Mailer.SendWelcomeEmail(r.Context(), subscriber.Email, subscriber.City); err != nil {
		// Compensating delete: a subscriber record must never outlive a
		// failed welcome dispatch from the same sign-up.
		if removeErr := h.Store.Remove(r.Context(), subscriber.Email); removeErr != nil {
			log.Printf("ERROR (Subscribe): Failed to roll back subscriber %s after welcome failure: %v",
				subscriber.Email, removeErr)
		}
		return fmt.Errorf("welcome email dispatch failed for %s: %w", subscriber.Email, err)
	}

	if err := h.Store.MarkWelcomeSent(r.Context(), subscriber.Email); err != nil {
		log.Printf("WARN (Subscribe): Failed to stamp welcome send for %s: %v", subscriber.Email, err)
	}

	webutil.RespondWithJSON(w, http.StatusCreated, map[string]string{
		"message": "You're in! Look for your first forecast tomorrow morning.",
	})
	return nil
}
