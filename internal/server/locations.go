package server

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxSearchLimit = 25

// LocationsHandler serves place name autocomplete from the static pools and the riddle cache.
type LocationsHandler struct {
	index  NameSearcher
	names  NameStore
	tracer trace.Tracer
	logger *log.Logger
}

func (h *LocationsHandler) Register(g *echo.Group) {
	g.GET("/search", h.search)
}

// search returns names starting with q. Known pool names come first, then names
// seen in cached riddles; a cache failure only narrows the result.
//
//	@Summary	Autocomplete place names
//	@Tags		locations
//	@Produce	json
//	@Param		q		query		string	true	"Prefix"
//	@Param		limit	query		int		false	"Maximum results (default 10)"
//	@Success	200		{object}	LocationSearchResponse
//	@Router		/api/locations/search [get]
func (h *LocationsHandler) search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	limit := 10
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxSearchLimit)
	}
	ctx, span := h.tracer.Start(c.Request().Context(), "LocationsHandler.search",
		trace.WithAttributes(attribute.String("q", q), attribute.Int("limit", limit)))
	defer span.End()

	resp := LocationSearchResponse{Query: q, Results: []string{}}
	if q == "" {
		return c.JSON(http.StatusOK, resp)
	}
	seen := make(map[string]struct{})
	add := func(names []string) {
		for _, n := range names {
			k := strings.ToLower(n)
			if _, dup := seen[k]; dup || len(resp.Results) >= limit {
				continue
			}
			seen[k] = struct{}{}
			resp.Results = append(resp.Results, n)
		}
	}
	if h.index != nil {
		names, err := h.index.Prefix(ctx, q, limit)
		if err != nil {
			h.logger.Printf("name index search %q: %v", q, err)
		}
		add(names)
	}
	if h.names != nil && len(resp.Results) < limit {
		names, err := h.names.SearchNamesByPrefix(ctx, q, limit)
		if err != nil {
			span.RecordError(err)
			h.logger.Printf("cache name search %q: %v", q, err)
		}
		add(names)
	}
	return c.JSON(http.StatusOK, resp)
}
