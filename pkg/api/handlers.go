package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/people-cache/pkg/cache"
	"github.com/Sternrassler/people-cache/pkg/dao"
	"github.com/Sternrassler/people-cache/pkg/models"
)

// Handlers serves the people and cache routes.
type Handlers struct {
	dao    *dao.DAO
	config Config
	logger zerolog.Logger
}

// NewHandlers creates the route handlers over d.
func NewHandlers(d *dao.DAO, cfg Config, logger zerolog.Logger) *Handlers {
	return &Handlers{
		dao:    d,
		config: cfg,
		logger: logger,
	}
}

// PersonResponse wraps a single lookup. Person is null when nothing matched.
type PersonResponse struct {
	Person *models.Person `json:"person"`
	Cache  *cache.Stats   `json:"cache,omitempty"`
}

// PeopleResponse wraps a list result.
type PeopleResponse struct {
	People []models.Person `json:"people"`
	Cache  *cache.Stats    `json:"cache,omitempty"`
}

// CacheStatsResponse is the body of GET /cache/stats.
type CacheStatsResponse struct {
	Cache   cache.Stats `json:"cache"`
	HitRate float64     `json:"hit_rate"`
}

// RemovedResponse reports how many cache entries an admin call removed.
type RemovedResponse struct {
	Removed int `json:"removed"`
}

// EvictResponse reports whether an evicted key was present.
type EvictResponse struct {
	Key     string `json:"key"`
	Evicted bool   `json:"evicted"`
}

// GenericStatus is the body of the health and readiness endpoints.
type GenericStatus struct {
	Daemon  string            `json:"daemon"`
	Status  string            `json:"status"`
	Message string            `json:"msg,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Health reports liveness without touching dependencies (GET /_health).
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: h.config.Daemon})
}

// Ready pings every configured dependency.
func (h *Handlers) Ready(c echo.Context) error {
	status := GenericStatus{Status: "ok", Daemon: h.config.Daemon, Checks: map[string]string{}}
	code := http.StatusOK

	for name, dep := range h.config.Checks {
		ctx, cancel := context.WithTimeout(c.Request().Context(), h.config.ReadyTimeout)
		err := dep.Ping(ctx)
		cancel()

		if err != nil {
			h.logger.Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			status.Checks[name] = err.Error()
			status.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "ok"
	}

	return c.JSON(code, status)
}

// ListPeople returns every person ordered by name (GET /people).
func (h *Handlers) ListPeople(c echo.Context) error {
	people, err := h.dao.ListAll(c.Request().Context())
	if err != nil {
		return daoError(c, err)
	}
	return c.JSON(http.StatusOK, PeopleResponse{People: people, Cache: h.statsIfRequested(c)})
}

// SearchPeople matches a name fragment case-insensitively (GET /people/search).
func (h *Handlers) SearchPeople(c echo.Context) error {
	people, err := h.dao.FindByName(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		return daoError(c, err)
	}
	return c.JSON(http.StatusOK, PeopleResponse{People: people, Cache: h.statsIfRequested(c)})
}

// FindByEmail is a cached exact lookup by email (GET /people/by-email).
func (h *Handlers) FindByEmail(c echo.Context) error {
	p, err := h.dao.FindByEmail(c.Request().Context(), c.QueryParam("email"))
	if err != nil {
		return daoError(c, err)
	}
	return c.JSON(http.StatusOK, PersonResponse{Person: p, Cache: h.statsIfRequested(c)})
}

// FindByPhone is a cached exact lookup by phone (GET /people/by-phone).
func (h *Handlers) FindByPhone(c echo.Context) error {
	p, err := h.dao.FindByPhone(c.Request().Context(), c.QueryParam("phone"))
	if err != nil {
		return daoError(c, err)
	}
	return c.JSON(http.StatusOK, PersonResponse{Person: p, Cache: h.statsIfRequested(c)})
}

// GetPerson loads one person by ID (GET /people/:id).
func (h *Handlers) GetPerson(c echo.Context) error {
	p, err := h.dao.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return daoError(c, err)
	}
	return c.JSON(http.StatusOK, PersonResponse{Person: p, Cache: h.statsIfRequested(c)})
}

// CreatePerson validates and inserts a person (POST /people).
func (h *Handlers) CreatePerson(c echo.Context) error {
	var in models.CreateInput
	if err := c.Bind(&in); err != nil {
		return malformedBody(c)
	}

	p, err := h.dao.Create(c.Request().Context(), in)
	if err != nil {
		return daoError(c, err)
	}
	return c.JSON(http.StatusCreated, PersonResponse{Person: p, Cache: h.statsIfRequested(c)})
}

// UpdatePerson applies a partial update (PATCH /people/:id).
func (h *Handlers) UpdatePerson(c echo.Context) error {
	var in models.UpdateInput
	if err := c.Bind(&in); err != nil {
		return malformedBody(c)
	}

	p, err := h.dao.Update(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return daoError(c, err)
	}
	return c.JSON(http.StatusOK, PersonResponse{Person: p, Cache: h.statsIfRequested(c)})
}

// DeletePerson removes a person (DELETE /people/:id).
func (h *Handlers) DeletePerson(c echo.Context) error {
	if err := h.dao.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return daoError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CacheStats returns the cache counters (GET /cache/stats).
func (h *Handlers) CacheStats(c echo.Context) error {
	stats, err := h.dao.CacheStats(c.Request().Context())
	if err != nil {
		return h.cacheError(c, "stats", err)
	}
	return c.JSON(http.StatusOK, CacheStatsResponse{Cache: stats, HitRate: stats.HitRate()})
}

// InvalidateCache drops every cached entry (DELETE /cache).
func (h *Handlers) InvalidateCache(c echo.Context) error {
	n, err := h.dao.InvalidateCache(c.Request().Context())
	if err != nil {
		return h.cacheError(c, "invalidate", err)
	}
	return c.JSON(http.StatusOK, RemovedResponse{Removed: n})
}

// EvictCacheKey removes one cache key (DELETE /cache/:key).
func (h *Handlers) EvictCacheKey(c echo.Context) error {
	key := c.Param("key")
	evicted, err := h.dao.EvictQuery(c.Request().Context(), key)
	if err != nil {
		return h.cacheError(c, "evict", err)
	}
	return c.JSON(http.StatusOK, EvictResponse{Key: key, Evicted: evicted})
}

// SweepCache removes expired entries now (POST /cache/sweep).
func (h *Handlers) SweepCache(c echo.Context) error {
	n, err := h.dao.SweepCache(c.Request().Context())
	if err != nil {
		return h.cacheError(c, "sweep", err)
	}
	return c.JSON(http.StatusOK, RemovedResponse{Removed: n})
}

// statsIfRequested returns cache stats when the request carries ?stats=true.
// A stats failure is logged and the field is left out.
func (h *Handlers) statsIfRequested(c echo.Context) *cache.Stats {
	want, _ := strconv.ParseBool(c.QueryParam("stats"))
	if !want {
		return nil
	}
	stats, err := h.dao.CacheStats(c.Request().Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read cache stats")
		return nil
	}
	return &stats
}

func (h *Handlers) cacheError(c echo.Context, op string, err error) error {
	h.logger.Error().Err(err).Str("operation", op).Msg("Cache operation failed")
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: kindCache, Message: "cache " + op + " failed"})
}

func malformedBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   string(dao.KindValidation),
		Message: "malformed request body",
	})
}
