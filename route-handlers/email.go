package routehandlers

import (
	"errors"
	"net/http"

	"github.com/weathermail/weathermail/delivery"
	"github.com/weathermail/weathermail/webutil"
)

// EmailHandler serves rendered sample emails for previewing templates.
type EmailHandler struct {
	UnsubscribeLink string
	LogoURL         string
}

func NewEmailHandler(unsubscribeLink, logoURL string) *EmailHandler {
	return &EmailHandler{UnsubscribeLink: unsubscribeLink, LogoURL: logoURL}
}

func (h *EmailHandler) HandleSample(w http.ResponseWriter, r *http.Request) error {
	name := r.URL.Query().Get("template")
	if name == "" {
		name = delivery.TemplateDailyWeather
	}

	html, err := delivery.RenderSample(name, h.UnsubscribeLink, h.LogoURL)
	if err != nil {
		if errors.Is(err, delivery.ErrUnknownTemplate) {
			return webutil.ErrBadRequest("Unsupported template")
		}
		return err
	}

	webutil.RespondWithJSON(w, http.StatusOK, map[string]string{"html": html})
	return nil
}
