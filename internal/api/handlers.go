package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/calendar"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/settlement"
)

// Response is the envelope of every API reply.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func dataResponse(c echo.Context, code int, data any) error {
	return c.JSON(code, Response{Status: code, Message: http.StatusText(code), Data: data})
}

// Option configures the handlers.
type Option func(*handler)

// WithClock injects the clock used for default dates.
func WithClock(now func() time.Time) Option { return func(h *handler) { h.now = now } }

// WithStream serves hub on /api/v1/stream.
func WithStream(hub *Hub) Option { return func(h *handler) { h.hub = hub } }

type handler struct {
	hub      *Hub
	ledger   model.SignalLedger
	log      zerolog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func newHandler(ledger model.SignalLedger, log zerolog.Logger, opts ...Option) *handler {
	h := &handler{ledger: ledger, log: log, validate: validator.New(), now: time.Now}
	for _, o := range opts {
		o(h)
	}
	return h
}

type signalsRequest struct {
	Date   string `query:"date" validate:"omitempty,datetime=2006-01-02"`
	Symbol string `query:"symbol"`
	Status string `query:"status" validate:"omitempty,oneof=OPEN TP_HIT STOP_HIT CLOSED_MANUAL"`
}

type signalsData struct {
	Day   string         `json:"day"`
	Rows  []model.Signal `json:"rows"`
	Total int            `json:"total"`
}

type reportRequest struct {
	Date string `query:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *handler) health(c echo.Context) error {
	return dataResponse(c, http.StatusOK, map[string]string{"status": "ok"})
}

// signals lists a day's ledger; the current Tehran day by default.
func (h *handler) signals(c echo.Context) error {
	var req signalsRequest
	if err := h.bind(c, &req); err != nil {
		return dataResponse(c, http.StatusBadRequest, err.Error())
	}
	day := req.Date
	if day == "" {
		day = calendar.DayKey(h.now())
	}

	rows, err := h.ledger.ListDay(c.Request().Context(), day)
	if err != nil {
		h.log.Error().Err(err).Str("day", day).Msg("list day")
		return dataResponse(c, http.StatusInternalServerError, nil)
	}
	out := make([]model.Signal, 0, len(rows))
	for _, s := range rows {
		if req.Symbol != "" && s.Symbol != req.Symbol {
			continue
		}
		if req.Status != "" && string(s.Status) != req.Status {
			continue
		}
		out = append(out, s)
	}
	return dataResponse(c, http.StatusOK, signalsData{Day: day, Rows: out, Total: len(out)})
}

// report builds the settlement report of a day; yesterday in Tehran by default.
func (h *handler) report(c echo.Context) error {
	var req reportRequest
	if err := h.bind(c, &req); err != nil {
		return dataResponse(c, http.StatusBadRequest, err.Error())
	}
	day := req.Date
	if day == "" {
		day = calendar.Yesterday(h.now())
	}

	rows, err := h.ledger.ListDay(c.Request().Context(), day)
	if err != nil {
		h.log.Error().Err(err).Str("day", day).Msg("list day")
		return dataResponse(c, http.StatusInternalServerError, nil)
	}
	return dataResponse(c, http.StatusOK, settlement.BuildReport(day, rows))
}

func (h *handler) bind(c echo.Context, req any) error {
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, req); err != nil {
		return err
	}
	return h.validate.Struct(req)
}
