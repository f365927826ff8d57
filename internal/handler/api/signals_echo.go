package api

import (
	"errors"
	"time"

	models "MicroPulse/internal/domain/models"
	"MicroPulse/internal/usecase"
	xhttp "MicroPulse/pkg/http"
	xlogger "MicroPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SignalsEchoHandler exposes the read-only query surface over the engines.
type SignalsEchoHandler struct {
	logger *xlogger.Logger
	query  *usecase.SignalQuery
	stream *StreamHandler
}

func NewSignalsEchoHandler(logger *xlogger.Logger, query *usecase.SignalQuery, stream *StreamHandler) *SignalsEchoHandler {
	return &SignalsEchoHandler{logger: logger, query: query, stream: stream}
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals", h.Composite)
	g.GET("/skew", h.Skew)
	g.GET("/obi", h.Imbalance)
	g.GET("/vwap", h.Vwap)
	g.GET("/pair", h.Pair)
	g.POST("/pair", h.AddPair)
	g.GET("/prediction", h.Prediction)
	g.GET("/sweeps", h.Sweeps)
	g.GET("/expirations", h.Expirations)
	g.GET("/chain", h.Chain)
	g.GET("/status", h.Status)
	g.GET("/history", h.History)

	if h.stream != nil {
		e.GET("/ws", h.stream.Serve)
	}
}

func (h *SignalsEchoHandler) Composite(c echo.Context) error {
	req := &models.TickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.query.Composite(c.Request().Context(), req.Ticker)
	if err != nil {
		h.logger.Error("composite query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsEchoHandler) Skew(c echo.Context) error {
	req := &models.TickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, ok := h.query.Skew(req.Ticker)
	if !ok {
		return xhttp.NotFoundResponse(c, "no book seen for ticker")
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *SignalsEchoHandler) Imbalance(c echo.Context) error {
	req := &models.TickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, ok := h.query.Imbalance(req.Ticker)
	if !ok {
		return xhttp.NotFoundResponse(c, "no book seen for ticker")
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *SignalsEchoHandler) Vwap(c echo.Context) error {
	req := &models.TickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, ok := h.query.Vwap(req.Ticker)
	if !ok {
		return xhttp.NotFoundResponse(c, "no trades seen for ticker")
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *SignalsEchoHandler) Pair(c echo.Context) error {
	req := &models.PairRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, ok := h.query.Pair(req.TickerY, req.TickerX)
	if !ok {
		return xhttp.NotFoundResponse(c, "pair not registered")
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *SignalsEchoHandler) AddPair(c echo.Context) error {
	req := &models.PairRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.query.AddPair(req.TickerY, req.TickerX); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, map[string]string{"y": req.TickerY, "x": req.TickerX})
}

func (h *SignalsEchoHandler) Prediction(c echo.Context) error {
	req := &models.TickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, ok := h.query.Prediction(req.Ticker)
	if !ok {
		return xhttp.NotFoundResponse(c, "no trained model for ticker")
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *SignalsEchoHandler) Sweeps(c echo.Context) error {
	req := &models.SweepsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sw := h.query.Sweeps(req.Ticker)
	if len(sw) > req.Limit {
		sw = sw[len(sw)-req.Limit:]
	}
	return xhttp.ListResponse(c, sw, int64(len(sw)))
}

func (h *SignalsEchoHandler) Expirations(c echo.Context) error {
	req := &models.ChainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	exps := h.query.Expirations(req.Underlying)
	return xhttp.ListResponse(c, exps, int64(len(exps)))
}

func (h *SignalsEchoHandler) Chain(c echo.Context) error {
	req := &models.ChainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	exp, ok := xhttp.ParseTime(req.Expiration)
	if !ok {
		return xhttp.BadRequestResponse(c, "expiration is required (RFC3339 or YYYY-MM-DD)")
	}
	if !h.query.Ready(req.Underlying) {
		return xhttp.ServiceUnavailableResponse(c, "directory still warming up for underlying")
	}
	chain := h.query.Chain(req.Underlying, exp)
	return xhttp.ListResponse(c, chain, int64(len(chain)))
}

type statusResponse struct {
	Connection models.ConnectionStatus `json:"connection"`
	RecentLogs []xlogger.Entry         `json:"recent_logs,omitempty"`
}

// Status reports the feed connection state plus the most recent warn and
// error log entries captured by the logger's collector.
func (h *SignalsEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, statusResponse{
		Connection: h.query.Status(),
		RecentLogs: h.logger.Recent(),
	})
}

func (h *SignalsEchoHandler) History(c echo.Context) error {
	req := &models.SignalHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	now := time.Now()
	from := xhttp.ParseTimeDefault(req.From, now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(req.To, now)

	sigs, err := h.query.History(c.Request().Context(), req.Ticker, req.Engine, from, to, req.Limit)
	if err != nil {
		if errors.Is(err, usecase.ErrNoHistory) {
			return xhttp.ServiceUnavailableResponse(c, err.Error())
		}
		h.logger.Error("history query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, sigs, int64(len(sigs)))
}
