// Package metrics exposes Prometheus instrumentation for the monitor.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	// CyclesTotal counts monitoring ticks.
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyagent_cycles_total",
		Help: "Total number of monitoring ticks",
	})

	// MarketErrors counts markets whose cycle failed, partitioned by stage.
	MarketErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyagent_market_errors_total",
		Help: "Market cycles that failed",
	}, []string{"stage"})

	// DecisionsTotal counts coordinator decisions by stance.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyagent_decisions_total",
		Help: "Decisions produced by the coordinator",
	}, []string{"stance"})

	// TradesTotal counts simulated trades by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyagent_trades_total",
		Help: "Simulated trades executed",
	}, []string{"side"})

	// SkipsTotal counts gate skips by reason.
	SkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyagent_skips_total",
		Help: "Decisions the policy gate declined to execute",
	}, []string{"reason"})

	// ProviderFailures counts provider timeouts and panics.
	ProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyagent_provider_failures_total",
		Help: "Opinion providers that timed out or failed",
	}, []string{"provider", "kind"})

	// ResolvedTotal counts resolved positions by result.
	ResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyagent_resolved_total",
		Help: "Resolved positions",
	}, []string{"result"})

	Cash = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polyagent_portfolio_cash",
		Help: "Uncommitted cash",
	})

	TotalValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polyagent_portfolio_total_value",
		Help: "Cash plus marked value of open positions",
	})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polyagent_open_positions",
		Help: "Number of open positions",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polyagent_tick_duration_seconds",
		Help:    "Wall time of one monitoring tick",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyagent_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polyagent_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObservePortfolio updates the portfolio gauges.
func ObservePortfolio(cash, total decimal.Decimal, open int) {
	Cash.Set(cash.InexactFloat64())
	TotalValue.Set(total.InexactFloat64())
	OpenPositions.Set(float64(open))
}

// ObserveResolved records a resolution as win or loss.
func ObserveResolved(pnl decimal.Decimal) {
	result := "loss"
	if pnl.IsPositive() {
		result = "win"
	}
	ResolvedTotal.WithLabelValues(result).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency, labelled by route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
