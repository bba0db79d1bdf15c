package routehandlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/weathermail/weathermail/datastore"
	"github.com/weathermail/weathermail/delivery"
	"github.com/weathermail/weathermail/models"
	"github.com/weathermail/weathermail/webutil"
)

// AdminStore is the lifecycle surface the admin endpoints depend on.
type AdminStore interface {
	List(ctx context.Context, includePaused bool, limit, offset int) (*datastore.ListPage, error)
	SetPaused(ctx context.Context, email string, paused bool, reason string) (*models.Subscriber, error)
	FindByEmail(ctx context.Context, email string) (*models.Subscriber, error)
	MarkWelcomeSent(ctx context.Context, email string) error
}

type AdminHandler struct {
	Store  AdminStore
	Mailer delivery.Sender
}

func NewAdminHandler(store AdminStore, mailer delivery.Sender) *AdminHandler {
	return &AdminHandler{Store: store, Mailer: mailer}
}

type listQuery struct {
	IncludePaused bool
	Limit         int `validate:"min=1,max=200"`
	Offset        int `validate:"min=0"`
}

func parseListQuery(values url.Values) (listQuery, error) {
	q := listQuery{IncludePaused: true, Limit: 50, Offset: 0}

	if raw := values.Get("includePaused"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return q, fmt.Errorf("includePaused must be a boolean")
		}
		q.IncludePaused = parsed
	}
	if raw := values.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("limit must be an integer")
		}
		q.Limit = parsed
	}
	if raw := values.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("offset must be an integer")
		}
		q.Offset = parsed
	}

	if err := validate.Struct(q); err != nil {
		return q, fmt.Errorf("limit must be 1-200 and offset non-negative")
	}
	return q, nil
}

// HandleListSubscribers returns a page of subscribers plus the total count
// of records matching the filter.
func (h *AdminHandler) HandleListSubscribers(w http.ResponseWriter, r *http.Request) error {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		return webutil.ErrBadRequestWrap("Invalid query parameters.", err)
	}

	page, err := h.Store.List(r.Context(), q.IncludePaused, q.Limit, q.Offset)
	if err != nil {
		return fmt.Errorf("failed to list subscribers: %w", err)
	}

	data := page.Subscribers
	if data == nil {
		data = []models.Subscriber{}
	}

	webutil.RespondWithJSON(w, http.StatusOK, map[string]any{
		"data":  data,
		"total": page.Total,
		"pagination": map[string]any{
			"limit":   q.Limit,
			"offset":  q.Offset,
			"hasMore": q.Offset+len(data) < page.Total,
		},
	})
	return nil
}

func emailParam(r *http.Request) (string, error) {
	email := chi.URLParam(r, "email")
	if unescaped, err := url.PathUnescape(email); err == nil {
		email = unescaped
	}
	if err := validate.Var(email, "required,email"); err != nil {
		return "", webutil.ErrBadRequest("Invalid email provided.")
	}
	return email, nil
}

type pauseRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=200"`
}

// HandlePauseSubscriber excludes a subscriber from future digest runs.
func (h *AdminHandler) HandlePauseSubscriber(w http.ResponseWriter, r *http.Request) error {
	email, err := emailParam(r)
	if err != nil {
		return err
	}

	var req pauseRequest
	if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
		return webutil.ErrBadRequestWrap("Invalid pause payload.", decodeErr)
	}
	defer r.Body.Close()

	if err := validate.Struct(req); err != nil {
		return webutil.ErrBadRequest("Pause reason is too long.")
	}

	updated, err := h.Store.SetPaused(r.Context(), email, true, req.Reason)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return webutil.ErrNotFound("Subscriber not found.")
		}
		return fmt.Errorf("failed to pause subscriber %s: %w", email, err)
	}

	webutil.RespondWithJSON(w, http.StatusOK, map[string]any{
		"message":    "Subscriber paused.",
		"subscriber": updated,
	})
	return nil
}

// HandleResumeSubscriber re-enables digests; the pause reason is cleared.
func (h *AdminHandler) HandleResumeSubscriber(w http.ResponseWriter, r *http.Request) error {
	email, err := emailParam(r)
	if err != nil {
		return err
	}

	updated, err := h.Store.SetPaused(r.Context(), email, false, "")
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return webutil.ErrNotFound("Subscriber not found.")
		}
		return fmt.Errorf("failed to resume subscriber %s: %w", email, err)
	}

	webutil.RespondWithJSON(w, http.StatusOK, map[string]any{
		"message":    "Subscriber resumed.",
		"subscriber": updated,
	})
	return nil
}

// HandleResendWelcome re-sends the welcome email to an existing subscriber
// and refreshes the welcome timestamp on success.
func (h *AdminHandler) HandleResendWelcome(w http.ResponseWriter, r *http.Request) error {
	email, err := emailParam(r)
	if err != nil {
		return err
	}

	subscriber, err := h.Store.FindByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return webutil.ErrNotFound("Subscriber not found.")
		}
		return fmt.Errorf("failed to look up subscriber %s: %w", email, err)
	}

	if err := h.Mailer.SendWelcomeEmail(r.Context(), subscriber.Email, subscriber.City); err != nil {
		return fmt.Errorf("failed to re-send welcome email to %s: %w", subscriber.Email, err)
	}

	if err := h.Store.MarkWelcomeSent(r.Context(), subscriber.Email); err != nil {
		return fmt.Errorf("failed to stamp welcome re-send for %s: %w", subscriber.Email, err)
	}

	refreshed, err := h.Store.FindByEmail(r.Context(), subscriber.Email)
	if err != nil {
		refreshed = subscriber
	}

	webutil.RespondWithJSON(w, http.StatusOK, map[string]any{
		"message":    "Welcome email re-sent.",
		"subscriber": refreshed,
	})
	return nil
}
