package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/weathermail/weathermail/datastore"
	"github.com/weathermail/weathermail/models"
	rh "github.com/weathermail/weathermail/route-handlers"
	"github.com/weathermail/weathermail/weather"
	"github.com/weathermail/weathermail/webutil"
)

type stubStore struct{}

func (stubStore) Ping(ctx context.Context) error { return nil }

func (stubStore) Upsert(ctx context.Context, email, city string) (bool, *models.Subscriber, error) {
	return true, &models.Subscriber{Email: email, City: city}, nil
}

func (stubStore) Remove(ctx context.Context, email string) error { return nil }

func (stubStore) MarkWelcomeSent(ctx context.Context, email string) error { return nil }

func (stubStore) List(ctx context.Context, includePaused bool, limit, offset int) (*datastore.ListPage, error) {
	return &datastore.ListPage{}, nil
}

func (stubStore) SetPaused(ctx context.Context, email string, paused bool, reason string) (*models.Subscriber, error) {
	return &models.Subscriber{Email: email, Paused: paused, PauseReason: reason}, nil
}

func (stubStore) FindByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	return &models.Subscriber{Email: email, City: "Lisbon"}, nil
}

type stubMailer struct{}

func (stubMailer) SendWelcomeEmail(ctx context.Context, recipient, city string) error { return nil }

func (stubMailer) SendDailyWeatherEmail(ctx context.Context, recipient string, report weather.Report) error {
	return nil
}

type stubSearcher struct{}

func (stubSearcher) SearchCities(ctx context.Context, query string) []string {
	return []string{"Lisbon, PT"}
}

func testRouter(adminKey string) http.Handler {
	store := stubStore{}
	mailer := stubMailer{}
	return SetupRoutes(Handlers{
		Subscription: rh.NewSubscriptionHandler(store, mailer),
		City:         rh.NewCityHandler(stubSearcher{}),
		Email:        rh.NewEmailHandler("https://example.com/preferences", "https://example.com/logo.png"),
		Health:       rh.NewHealthHandler(store, "test"),
		Admin:        rh.NewAdminHandler(store, mailer),
		AdminKey:     adminKey,
	})
}

func TestAdminRoutes_RequireKey(t *testing.T) {
	router := testRouter("secret")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/subscribers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/subscribers", nil)
	req.Header.Set(webutil.HeaderAdminKey, "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/subscribers", nil)
	req.Header.Set(webutil.HeaderAdminKey, "secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("correct key: status = %d, want 200", rec.Code)
	}
}

func TestAdminRoutes_UnconfiguredKey(t *testing.T) {
	router := testRouter("")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/subscribers", nil)
	req.Header.Set(webutil.HeaderAdminKey, "anything")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Admin API key is not configured.") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestUnknownRouteRespondsJSON(t *testing.T) {
	router := testRouter("secret")

	req := httptest.NewRequest(http.MethodGet, "/api/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"message":"Not found"`) {
		t.Errorf("body = %q, want JSON error shape", rec.Body.String())
	}
}

func TestPublicRoutes(t *testing.T) {
	router := testRouter("secret")

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodPost, "/api/subscribe", `{"email": "pat@example.com", "city": "Lisbon"}`, http.StatusCreated},
		{http.MethodGet, "/api/cities?q=lis", "", http.StatusOK},
		{http.MethodGet, "/api/email/sample", "", http.StatusOK},
		{http.MethodGet, "/api/email/sample?template=welcome", "", http.StatusOK},
		{http.MethodGet, "/api/email/sample?template=bogus", "", http.StatusBadRequest},
		{http.MethodGet, "/api/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		var body *strings.Reader
		if tt.body != "" {
			body = strings.NewReader(tt.body)
		} else {
			body = strings.NewReader("")
		}
		req := httptest.NewRequest(tt.method, tt.path, body)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
}
