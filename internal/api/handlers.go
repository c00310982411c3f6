package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/UglyGameFace/oddbot-sub001/internal/cache"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

// maxHoursAhead caps the client-supplied horizon at two weeks.
const maxHoursAhead = 336

// OddsService is the read surface the odds endpoints call through.
type OddsService interface {
	GetSportOdds(ctx context.Context, sportKey string, opts models.FetchOptions) ([]models.MarketSnapshot, error)
	GetAvailableSports(ctx context.Context) ([]models.Sport, error)
	GetProviderStatus(ctx context.Context) []models.ProviderStatus
}

// SnapshotReader serves persisted snapshots for range queries, plus sink
// health for the health endpoint.
type SnapshotReader interface {
	ListBySport(ctx context.Context, sportKey string, from, to time.Time) ([]models.MarketSnapshot, error)
	Ping(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	service        OddsService
	reader         SnapshotReader
	cache          *cache.Coordinator
	publisher      cache.Store
	triggerChannel string
	log            *logrus.Entry
}

// NewHandler creates a new handler with dependencies. reader may be nil
// when the process runs without a relational sink; the events endpoint
// then reports unavailable.
func NewHandler(service OddsService, reader SnapshotReader, coordinator *cache.Coordinator, publisher cache.Store, triggerChannel string, log *logrus.Entry) *Handler {
	return &Handler{
		service:        service,
		reader:         reader,
		cache:          coordinator,
		publisher:      publisher,
		triggerChannel: triggerChannel,
		log:            log,
	}
}

// HealthCheck reports cache and database health in one probe.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]string{"cache": "healthy", "database": "healthy"}
	healthy := true

	if err := h.cache.HealthCheck(ctx); err != nil {
		components["cache"] = err.Error()
		healthy = false
	}
	if h.reader == nil {
		components["database"] = "not configured"
	} else if err := h.reader.Ping(ctx); err != nil {
		components["database"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	h.respondJSON(w, status, map[string]interface{}{
		"status":     state,
		"service":    "oddbot",
		"timestamp":  time.Now().UTC(),
		"components": components,
	})
}

// GetSportOdds serves cached odds for one sport.
// Query params: regions, markets, format, include_live, hours_ahead
func (h *Handler) GetSportOdds(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	sportKey := chi.URLParam(r, "sportKey")
	if sportKey == "" {
		h.respondError(w, http.StatusBadRequest, "sport key is required", nil)
		return
	}

	opts := models.FetchOptions{
		Regions:     csvParam(r, "regions"),
		Markets:     csvParam(r, "markets"),
		OddsFormat:  r.URL.Query().Get("format"),
		IncludeLive: parseBoolParam(r, "include_live", false),
		HoursAhead:  parseIntParam(r, "hours_ahead", 0),
	}
	if opts.HoursAhead > maxHoursAhead {
		opts.HoursAhead = maxHoursAhead
	}
	opts = opts.Normalized()

	snaps, err := h.service.GetSportOdds(ctx, sportKey, opts)
	if err != nil {
		h.respondError(w, http.StatusBadGateway, "failed to retrieve odds", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sport_key": sportKey,
		"events":    snaps,
		"count":     len(snaps),
	})
}

// GetSports serves the available sports catalogue.
func (h *Handler) GetSports(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sports, err := h.service.GetAvailableSports(ctx)
	if err != nil {
		h.respondError(w, http.StatusBadGateway, "failed to retrieve sports", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sports": sports,
		"count":  len(sports),
	})
}

// GetProviders reports per-provider health and remaining quota.
func (h *Handler) GetProviders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	providers := h.service.GetProviderStatus(ctx)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"providers": providers,
		"count":     len(providers),
	})
}

// GetEvents serves persisted snapshots for a sport within a time range.
// Query params: from, to (RFC3339; default now .. now+72h)
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.reader == nil {
		h.respondError(w, http.StatusServiceUnavailable, "event storage is not configured", nil)
		return
	}

	sportKey := chi.URLParam(r, "sportKey")
	if sportKey == "" {
		h.respondError(w, http.StatusBadRequest, "sport key is required", nil)
		return
	}

	now := time.Now().UTC()
	from, err := parseTimeParam(r, "from", now)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "from must be RFC3339", err)
		return
	}
	to, err := parseTimeParam(r, "to", now.Add(72*time.Hour))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "to must be RFC3339", err)
		return
	}
	if !to.After(from) {
		h.respondError(w, http.StatusBadRequest, "to must be after from", nil)
		return
	}

	events, err := h.reader.ListBySport(ctx, sportKey, from, to)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to retrieve events", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sport_key": sportKey,
		"events":    events,
		"count":     len(events),
		"from":      from,
		"to":        to,
	})
}

// TriggerIngest publishes a manual ingestion trigger. The scheduler picks
// it up over pub/sub; a cycle already in flight absorbs the trigger.
func (h *Handler) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	payload := time.Now().UTC().Format(time.RFC3339)
	if err := h.publisher.Publish(ctx, h.triggerChannel, payload); err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "failed to publish ingestion trigger", err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":    "accepted",
		"channel":   h.triggerChannel,
		"requested": payload,
	})
}

// Helper functions

func parseIntParam(r *http.Request, param string, defaultValue int) int {
	valueStr := r.URL.Query().Get(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseBoolParam(r *http.Request, param string, defaultValue bool) bool {
	valueStr := r.URL.Query().Get(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseTimeParam(r *http.Request, param string, defaultValue time.Time) (time.Time, error) {
	valueStr := r.URL.Query().Get(param)
	if valueStr == "" {
		return defaultValue, nil
	}
	return time.Parse(time.RFC3339, valueStr)
}

func csvParam(r *http.Request, param string) []string {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.WithError(err).Error("failed to encode response")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		h.log.WithError(err).Warn(message)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}); err != nil {
		h.log.WithError(err).Error("failed to encode error response")
	}
}
