package routehandlers

import (
	"context"
	"net/http"

	"github.com/weathermail/weathermail/webutil"
)

// CitySearcher resolves a free-text query to city suggestions.
type CitySearcher interface {
	SearchCities(ctx context.Context, query string) []string
}

type CityHandler struct {
	Searcher CitySearcher
}

func NewCityHandler(searcher CitySearcher) *CityHandler {
	return &CityHandler{Searcher: searcher}
}

func (h *CityHandler) HandleSearch(w http.ResponseWriter, r *http.Request) error {
	suggestions := h.Searcher.SearchCities(r.Context(), r.URL.Query().Get("q"))
	webutil.RespondWithJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
	return nil
}
