package fixedassetshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-assets/internal/fixedassets"
	"github.com/odyssey-erp/odyssey-assets/internal/platform/httpx"
)

// Service is the depreciation service surface used by the handlers.
type Service interface {
	CalculatePeriod(ctx context.Context, companyID int64, year, month int) (fixedassets.CalculationResult, error)
	PostPeriod(ctx context.Context, companyID int64, year, month int) (fixedassets.PostResult, error)
	PeriodStatus(ctx context.Context, companyID int64, year, month int) (fixedassets.DepreciationPeriod, error)
	ListCalculatedPeriods(ctx context.Context, companyID int64) ([]fixedassets.CalculatedPeriod, error)
	Journal(ctx context.Context, companyID int64, year, month int) ([]fixedassets.DepreciationEntry, error)
	ListAssets(ctx context.Context, filter fixedassets.AssetFilter) ([]fixedassets.FixedAsset, error)
	GetAsset(ctx context.Context, id int64) (fixedassets.FixedAsset, error)
}

// Options tunes the handler.
type Options struct {
	// PostRateLimit is the number of post requests per company per minute; zero disables it.
	PostRateLimit int
	// RetryAfter is advertised when a period is locked by another caller.
	RetryAfter time.Duration
}

// Handler exposes depreciation operations as JSON endpoints.
type Handler struct {
	logger     *slog.Logger
	service    Service
	validator  *validator.Validate
	postLimit  func(http.Handler) http.Handler
	retryAfter time.Duration
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service Service, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:     logger,
		service:    service,
		validator:  validator.New(),
		retryAfter: opts.RetryAfter,
	}
	if h.retryAfter <= 0 {
		h.retryAfter = time.Second
	}
	if opts.PostRateLimit > 0 {
		h.postLimit = httprate.Limit(opts.PostRateLimit, time.Minute,
			httprate.WithKeyFuncs(companyKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "posting rate limit exceeded for company")
			}),
		)
	}
	return h
}

// MountRoutes registers the depreciation endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/api/calculated-periods", h.handleCalculatedPeriods)
	r.Get("/api/depreciation-journal", h.handleJournal)
	r.Get("/api/depreciation-periods/status", h.handlePeriodStatus)
	r.Get("/api/fixed-assets", h.handleListAssets)
	r.Get("/api/fixed-assets/{id}", h.handleGetAsset)
	r.Post("/api/fixed-assets/calculate-depreciation", h.handleCalculate)
	r.Group(func(gr chi.Router) {
		if h.postLimit != nil {
			gr.Use(h.postLimit)
		}
		gr.Post("/api/fixed-assets/post-depreciation", h.handlePost)
	})
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePeriod(w, r)
	if !ok {
		return
	}
	res, err := h.service.CalculatePeriod(r.Context(), req.CompanyID, req.Year, req.Month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCalculationResultDTO(res))
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePeriod(w, r)
	if !ok {
		return
	}
	res, err := h.service.PostPeriod(r.Context(), req.CompanyID, req.Year, req.Month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, postResultDTO{
		JournalEntryID: res.JournalEntryID,
		TotalAmount:    money(res.TotalAmount),
		AssetsCount:    res.AssetsCount,
	})
}

func (h *Handler) handleCalculatedPeriods(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryInt64(r, "companyId")
	if err == nil && companyID <= 0 {
		err = errors.New("companyId must be positive")
	}
	if err != nil {
		h.badRequest(w, err)
		return
	}
	periods, err := h.service.ListCalculatedPeriods(r.Context(), companyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]calculatedPeriodDTO, 0, len(periods))
	for _, p := range periods {
		out = append(out, calculatedPeriodDTO{
			Year:                  p.Year,
			Month:                 p.Month,
			PeriodDisplay:         p.PeriodDisplay,
			IsPosted:              p.IsPosted,
			TotalAccountingAmount: money(p.TotalAccountingAmount),
			TotalTaxAmount:        money(p.TotalTaxAmount),
			AssetsCount:           p.AssetsCount,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleJournal(w http.ResponseWriter, r *http.Request) {
	var q journalQuery
	var err error
	if q.CompanyID, err = queryInt64(r, "companyId"); err != nil {
		h.badRequest(w, err)
		return
	}
	if q.Year, err = queryInt(r, "year"); err != nil {
		h.badRequest(w, err)
		return
	}
	if r.URL.Query().Get("month") != "" {
		if q.Month, err = queryInt(r, "month"); err != nil {
			h.badRequest(w, err)
			return
		}
	}
	if !h.validate(w, q) {
		return
	}
	entries, err := h.service.Journal(r.Context(), q.CompanyID, q.Year, q.Month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]journalRowDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toJournalRowDTO(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handlePeriodStatus(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	var err error
	if req.CompanyID, err = queryInt64(r, "companyId"); err != nil {
		h.badRequest(w, err)
		return
	}
	if req.Year, err = queryInt(r, "year"); err != nil {
		h.badRequest(w, err)
		return
	}
	if req.Month, err = queryInt(r, "month"); err != nil {
		h.badRequest(w, err)
		return
	}
	if !h.validate(w, req) {
		return
	}
	p, err := h.service.PeriodStatus(r.Context(), req.CompanyID, req.Year, req.Month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, periodStatusDTO{
		CompanyID:      p.CompanyID,
		Year:           p.Period.Year,
		Month:          p.Period.Month,
		IsPosted:       p.IsPosted,
		PostedAt:       p.PostedAt,
		JournalEntryID: p.JournalEntryID,
	})
}

func (h *Handler) handleListAssets(w http.ResponseWriter, r *http.Request) {
	var q assetQuery
	var err error
	if q.CompanyID, err = queryInt64(r, "companyId"); err != nil {
		h.badRequest(w, err)
		return
	}
	q.Status = strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	if !h.validate(w, q) {
		return
	}
	assets, err := h.service.ListAssets(r.Context(), fixedassets.AssetFilter{
		CompanyID: q.CompanyID,
		Status:    fixedassets.AssetStatus(q.Status),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]assetDTO, 0, len(assets))
	for _, a := range assets {
		out = append(out, toAssetDTO(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(w, errors.New("invalid asset id"))
		return
	}
	asset, err := h.service.GetAsset(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetDTO(asset))
}

func (h *Handler) decodePeriod(w http.ResponseWriter, r *http.Request) (periodRequest, bool) {
	var req periodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, fmt.Errorf("invalid JSON body: %w", err))
		return periodRequest{}, false
	}
	if !h.validate(w, req) {
		return periodRequest{}, false
	}
	return req, true
}

func (h *Handler) validate(w http.ResponseWriter, v any) bool {
	err := h.validator.Struct(v)
	if err == nil {
		return true
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		h.badRequest(w, errors.New(strings.Join(msgs, "; ")))
		return false
	}
	h.badRequest(w, err)
	return false
}

func (h *Handler) badRequest(w http.ResponseWriter, err error) {
	httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, fixedassets.ErrInvalidPeriod):
		httpx.RespondError(w, httpx.WithStatus(err, http.StatusBadRequest, "Invalid Period"))
	case errors.Is(err, fixedassets.ErrAssetNotFound):
		httpx.RespondError(w, httpx.WithStatus(err, http.StatusNotFound, "Not Found"))
	case errors.Is(err, fixedassets.ErrPeriodAlreadyPosted):
		httpx.RespondError(w, httpx.WithStatus(err, http.StatusConflict, "Period Already Posted"))
	case errors.Is(err, fixedassets.ErrStaleEntry), errors.Is(err, fixedassets.ErrAlreadyPostedForAsset):
		httpx.RespondError(w, httpx.WithStatus(err, http.StatusConflict, "Stale Calculation"))
	case errors.Is(err, fixedassets.ErrConcurrentModification):
		httpx.RespondError(w, &httpx.StatusError{
			Status:     http.StatusLocked,
			Title:      "Concurrent Modification",
			RetryAfter: h.retryAfter,
			Err:        err,
		})
	case errors.Is(err, fixedassets.ErrNothingToPost):
		httpx.RespondError(w, httpx.WithStatus(err, http.StatusUnprocessableEntity, "Nothing To Post"))
	case errors.Is(err, fixedassets.ErrJournalMismatch):
		h.logger.Error("depreciation journal mismatch", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, httpx.WithStatus(err, http.StatusConflict, "Journal Mismatch"))
	case errors.Is(err, fixedassets.ErrPostingFailed):
		h.logger.Error("depreciation ledger posting failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, httpx.WithStatus(fixedassets.ErrPostingFailed, http.StatusBadGateway, "Posting Failed"))
	default:
		h.logger.Error("depreciation request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v, err := queryInt64(r, name)
	return int(v), err
}

// companyKey buckets posting requests by company id, restoring the body for the handler.
func companyKey(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	var probe struct {
		CompanyID int64 `json:"companyId"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.CompanyID <= 0 {
		ip, ipErr := httprate.KeyByIP(r)
		if ipErr != nil {
			return "", ipErr
		}
		return "ip:" + ip, nil
	}
	return "company:" + strconv.FormatInt(probe.CompanyID, 10), nil
}
