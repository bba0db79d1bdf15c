package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	rh "github.com/weathermail/weathermail/route-handlers"
	"github.com/weathermail/weathermail/webutil"
)

const (
	apiBasePath         = "/api"
	subscribePath       = "/subscribe"
	citiesPath          = "/cities"
	emailSamplePath     = "/email/sample"
	healthPath          = "/health"
	adminBasePath       = "/admin"
	subscribersBasePath = "/subscribers"
	schedulerTickPath   = "/scheduler/tick"
)

const paramEmail = "email"

// Handlers bundles everything SetupRoutes wires into the router.
type Handlers struct {
	Subscription *rh.SubscriptionHandler
	City         *rh.CityHandler
	Email        *rh.EmailHandler
	Health       *rh.HealthHandler
	Admin        *rh.AdminHandler

	// SchedulerTick triggers one digest run; mounted behind admin auth.
	SchedulerTick webutil.AppHandler

	AdminKey string
}

func SetupRoutes(h Handlers) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route(apiBasePath, func(r chi.Router) {
		r.Post(subscribePath, webutil.MakeHandler(h.Subscription.HandleSubscribe))
		r.Get(citiesPath, webutil.MakeHandler(h.City.HandleSearch))
		r.Get(emailSamplePath, webutil.MakeHandler(h.Email.HandleSample))
		r.Get(healthPath, webutil.MakeHandler(h.Health.HandleHealth))

		configureAdminRoutes(r, h)
	})

	// Unknown routes get the same JSON error shape as everything else.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		webutil.RespondWithError(w, http.StatusNotFound, "Not found")
	})

	return r
}

func configureAdminRoutes(r chi.Router, h Handlers) {
	subscriberPath := subscribersBasePath + "/{" + paramEmail + "}"

	r.Route(adminBasePath, func(r chi.Router) {
		r.Use(AdminKeyAuth(h.AdminKey))

		r.Get(subscribersBasePath, webutil.MakeHandler(h.Admin.HandleListSubscribers))
		r.Post(subscriberPath+"/pause", webutil.MakeHandler(h.Admin.HandlePauseSubscriber))
		r.Post(subscriberPath+"/resume", webutil.MakeHandler(h.Admin.HandleResumeSubscriber))
		r.Post(subscriberPath+"/resend-welcome", webutil.MakeHandler(h.Admin.HandleResendWelcome))

		if h.SchedulerTick != nil {
			r.Post(schedulerTickPath, webutil.MakeHandler(h.SchedulerTick))
		}
	})
}
