package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	models "FinSheet/internal/domain/models"
	domrepo "FinSheet/internal/domain/repository"
	"FinSheet/internal/usecase"
	"FinSheet/pkg/cache"
	xhttp "FinSheet/pkg/http"
	xlogger "FinSheet/pkg/logger"

	"github.com/labstack/echo/v4"
)

const predictionCacheTTL = 15 * time.Second

// AdminEchoHandler exposes the pipeline's admin surface: read predictions and
// sync state, resolve conflicts, trigger a cycle.
type AdminEchoHandler struct {
	logger *xlogger.Logger
	store  domrepo.IndicatorStore
	sync   *usecase.SyncManager
	cycle  *usecase.Cycle
	cache  cache.Service
}

func NewAdminEchoHandler(
	logger *xlogger.Logger,
	store domrepo.IndicatorStore,
	sync *usecase.SyncManager,
	cycle *usecase.Cycle,
	c cache.Service,
) *AdminEchoHandler {
	return &AdminEchoHandler{logger: logger, store: store, sync: sync, cycle: cycle, cache: c}
}

func (h *AdminEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/predictions", h.ListPredictions)
	g.GET("/predictions/:symbol", h.GetPrediction)
	g.GET("/sync/records", h.ListSyncRecords)
	g.GET("/sync/conflicts", h.ListConflicts)
	g.POST("/sync/resolve", h.ResolveConflict)
	g.POST("/cycle", h.RunCycle)
}

func (h *AdminEchoHandler) Health(c echo.Context) error {
	if err := h.store.Health(c.Request().Context()); err != nil {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

type predictionResponse struct {
	Prediction models.Prediction   `json:"prediction"`
	Indicators models.IndicatorSet `json:"indicators"`
	SyncState  models.SyncState    `json:"sync_state,omitempty"`
}

func (h *AdminEchoHandler) GetPrediction(c echo.Context) error {
	req := &models.PredictionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	cacheKey := cache.GenerateKey("prediction", req.Symbol)
	if h.cache != nil {
		var cached predictionResponse
		if err := h.cache.Get(ctx, cacheKey, &cached); err == nil {
			return xhttp.SuccessResponse(c, cached)
		}
	}

	res, err := h.lookupPrediction(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no prediction for %s", req.Symbol))
		}
		h.logger.Error("prediction read failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	if h.cache != nil {
		_ = h.cache.Set(ctx, cacheKey, res, predictionCacheTTL)
	}
	return xhttp.SuccessResponse(c, res)
}

// ListPredictions serves several symbols in one call, answering from the
// cache in a single multi-get and touching the store only for misses.
func (h *AdminEchoHandler) ListPredictions(c echo.Context) error {
	req := &models.PredictionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	symbols := strings.Split(req.Symbols, ",")
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		symbols[i] = strings.TrimSpace(s)
		keys[i] = cache.GenerateKey("prediction", symbols[i])
	}

	cached := map[string]predictionResponse{}
	if h.cache != nil {
		if hit, err := cache.MGetTyped[predictionResponse](ctx, h.cache, keys...); err == nil {
			cached = hit
		}
	}

	out := make([]predictionResponse, 0, len(symbols))
	for i, symbol := range symbols {
		if res, ok := cached[keys[i]]; ok {
			out = append(out, res)
			continue
		}
		res, err := h.lookupPrediction(ctx, symbol)
		if err != nil {
			if errors.Is(err, domrepo.ErrNotFound) {
				continue
			}
			h.logger.Error("prediction read failed", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
		if h.cache != nil {
			_ = h.cache.Set(ctx, keys[i], res, predictionCacheTTL)
		}
		out = append(out, res)
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *AdminEchoHandler) lookupPrediction(ctx context.Context, symbol string) (predictionResponse, error) {
	pred, err := h.store.GetPrediction(ctx, symbol)
	if err != nil {
		return predictionResponse{}, err
	}
	res := predictionResponse{Prediction: pred}
	if set, err := h.store.GetIndicatorSet(ctx, symbol); err == nil {
		res.Indicators = set
	}
	if rec, err := h.store.GetSyncRecord(ctx, symbol); err == nil {
		res.SyncState = rec.State
	}
	return res, nil
}

func (h *AdminEchoHandler) ListSyncRecords(c echo.Context) error {
	req := &models.SyncRecordsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	recs, err := h.store.ListSyncRecords(c.Request().Context())
	if err != nil {
		h.logger.Error("sync record list failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if req.State != "" {
		filtered := recs[:0]
		for _, r := range recs {
			if string(r.State) == req.State {
				filtered = append(filtered, r)
			}
		}
		recs = filtered
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

func (h *AdminEchoHandler) ListConflicts(c echo.Context) error {
	since := xhttp.ParseTimeDefault(c.QueryParam("since"), time.Now().Add(-24*time.Hour))
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)

	entries, err := h.store.ListConflicts(c.Request().Context(), since)
	if err != nil {
		h.logger.Error("conflict list failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	total := int64(len(entries))
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return xhttp.ListResponse(c, entries, total)
}

func (h *AdminEchoHandler) ResolveConflict(c echo.Context) error {
	req := &models.ResolveConflictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	err := h.sync.Resolve(c.Request().Context(), req.Symbol, req.Resolution)
	if err != nil {
		switch {
		case errors.Is(err, domrepo.ErrNotFound):
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no sync record for %s", req.Symbol))
		case errors.Is(err, usecase.ErrNotConflicted):
			return xhttp.AppErrorResponse(c,
				xhttp.NewAppError("ERR_NOT_CONFLICTED", "symbol", err.Error(), http.StatusConflict))
		default:
			h.logger.Error("resolve failed", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{
		"symbol":     req.Symbol,
		"resolution": req.Resolution,
	})
}

func (h *AdminEchoHandler) RunCycle(c echo.Context) error {
	req := &models.RunCycleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.cycle.Running() {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_CYCLE_IN_PROGRESS", "", "a cycle is already running", http.StatusConflict))
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		if err := h.cycle.RunWith(ctx, usecase.RunOpts{SkipFetch: req.SkipFetch}); err != nil && !errors.Is(err, usecase.ErrCycleInProgress) {
			h.logger.Error("triggered cycle failed", xlogger.Error(err))
		}
	}()
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"status": "started"})
}
