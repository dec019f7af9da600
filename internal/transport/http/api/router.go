package apihttp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"polyagent/internal/decision"
	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/monitor"
	"polyagent/internal/policy"
	"polyagent/internal/portfolio"
	"polyagent/internal/scheduler"
	"polyagent/internal/store/decisionlog"

	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 1 << 20

// Monitor is the part of monitor.Service the API serves.
type Monitor interface {
	Start(markets []string, cfg policy.Config) error
	Stop() error
	Status() monitor.Status
	Config() policy.Config
	Portfolio() portfolio.Portfolio
	DecideOnce(ctx context.Context, snap market.Snapshot) (decision.Decision, error)
	Analyze(ctx context.Context, query string) (monitor.Analysis, error)
	Resolve(ctx context.Context, tradeID, outcome string, finalPrice float64) (portfolio.Position, error)
	Decisions(ctx context.Context, q decisionlog.Query) ([]decisionlog.Record, error)
}

var _ Monitor = (*monitor.Service)(nil)

type Router struct {
	mon            Monitor
	defaultMarkets []string
}

func NewRouter(mon Monitor, defaultMarkets []string) *Router {
	return &Router{mon: mon, defaultMarkets: append([]string(nil), defaultMarkets...)}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.POST("/monitor/start", r.handleStart)
	group.POST("/monitor/stop", r.handleStop)
	group.GET("/portfolio", r.handlePortfolio)
	group.POST("/decide", r.handleDecide)
	group.POST("/analyze", r.handleAnalyze)
	group.POST("/positions/:id/resolve", r.handleResolve)
	group.GET("/decisions", r.handleDecisions)
}

// startRequest overrides the configured markets and thresholds. Omitted
// fields keep the values currently in force.
type startRequest struct {
	Markets          []string `json:"markets"`
	MinConfidence    *float64 `json:"min_confidence"`
	MinConsensus     *float64 `json:"min_consensus"`
	MaxPositionSize  *float64 `json:"max_position_size"`
	MaxOpenPerMarket *int     `json:"max_open_per_market"`
	CheckInterval    string   `json:"check_interval"`
}

type analyzeRequest struct {
	Query string `json:"query"`
}

type resolveRequest struct {
	Outcome    string   `json:"outcome"`
	FinalPrice *float64 `json:"final_price"`
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.mon.Status())
}

func (r *Router) handleStart(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(c, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
	}
	cfg := r.mon.Config()
	if req.MinConfidence != nil {
		cfg.MinConfidence = *req.MinConfidence
	}
	if req.MinConsensus != nil {
		cfg.MinConsensus = *req.MinConsensus
	}
	if req.MaxPositionSize != nil {
		cfg.MaxPositionSize = *req.MaxPositionSize
	}
	if req.MaxOpenPerMarket != nil {
		cfg.MaxOpenPerMarket = *req.MaxOpenPerMarket
	}
	if strings.TrimSpace(req.CheckInterval) != "" {
		d, ok := scheduler.ParseIntervalDuration(req.CheckInterval)
		if !ok {
			writeError(c, http.StatusBadRequest, "invalid check_interval "+strconv.Quote(req.CheckInterval))
			return
		}
		cfg.CheckInterval = d
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 || cfg.MinConsensus < 0 || cfg.MinConsensus > 1 || cfg.MaxPositionSize < 0 {
		writeError(c, http.StatusBadRequest, "thresholds out of range")
		return
	}
	markets := req.Markets
	if len(markets) == 0 {
		markets = r.defaultMarkets
	}
	if err := r.mon.Start(markets, cfg); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, r.mon.Status())
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.mon.Stop(); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, r.mon.Status())
}

func (r *Router) handlePortfolio(c *gin.Context) {
	c.JSON(http.StatusOK, r.mon.Portfolio())
}

func (r *Router) handleDecide(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		writeError(c, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	snap, err := market.DecodeSnapshot(raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	d, err := r.mon.DecideOnce(c.Request.Context(), snap)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (r *Router) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(c, http.StatusBadRequest, "query is required")
		return
	}
	res, err := r.mon.Analyze(c.Request.Context(), query)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) handleResolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Outcome) == "" || req.FinalPrice == nil {
		writeError(c, http.StatusBadRequest, "outcome and final_price are required")
		return
	}
	pos, err := r.mon.Resolve(c.Request.Context(), c.Param("id"), req.Outcome, *req.FinalPrice)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (r *Router) handleDecisions(c *gin.Context) {
	q := decisionlog.Query{MarketID: strings.TrimSpace(c.Query("market_id"))}
	q.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	q.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if v := strings.TrimSpace(c.Query("executed")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "executed must be a boolean")
			return
		}
		q.Executed = &b
	}
	recs, err := r.mon.Decisions(c.Request.Context(), q)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": recs, "limit": q.Limit, "offset": q.Offset})
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func writeErr(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("HTTP %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	writeError(c, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, monitor.ErrAlreadyRunning),
		errors.Is(err, monitor.ErrNotRunning),
		errors.Is(err, portfolio.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, portfolio.ErrPositionNotFound),
		errors.Is(err, market.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, monitor.ErrInvalidRequest),
		errors.Is(err, decision.ErrNoOpinions),
		errors.Is(err, portfolio.ErrInvalidPrice),
		errors.Is(err, portfolio.ErrInvalidOrder):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
