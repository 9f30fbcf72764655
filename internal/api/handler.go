// Package api serves read-only diagnostics over HTTP and gRPC health.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"futures-bridge/internal/broker"
	"futures-bridge/internal/engine"
	"futures-bridge/internal/events"
	"futures-bridge/internal/market"
	"futures-bridge/internal/reconciliation"
	"futures-bridge/pkg/db"
	"futures-bridge/pkg/logging"
)

var log = logging.For("api")

// Session reports whether live reconciliation is running.
type Session interface {
	Connected() bool
}

// Accounts exposes broker-side positions.
type Accounts interface {
	Account(t broker.AccountType) (*broker.Account, error)
}

// Ticks exposes the latest tick per instrument.
type Ticks interface {
	Latest() []market.Tick
}

// Drift exposes the latest position drift report.
type Drift interface {
	Last() *reconciliation.Report
}

// Deps are the components the server reads from. Engine and Session are
// required; the rest may be nil.
type Deps struct {
	Engine   engine.Service
	Session  Session
	Accounts Accounts
	Bus      *events.Bus
	DB       *db.Database
	Drift    Drift
	Ticks    Ticks
	Gatherer prometheus.Gatherer
}

// SystemMeta describes the runtime configuration.
type SystemMeta struct {
	DryRun      bool     `json:"dry_run"`
	GatewayType string   `json:"gateway_type"`
	Universe    []string `json:"universe"`
	Version     string   `json:"version"`
}

// Server wires HTTP endpoints around the engine and the event bus.
type Server struct {
	Router *gin.Engine
	deps   Deps
	meta   SystemMeta

	mu   sync.Mutex
	http *http.Server
}

func NewServer(deps Deps, meta SystemMeta) *Server {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware(newIPLimiters(20, 50, 5*time.Minute)))
	r.Use(CORSMiddleware())

	s := &Server{Router: r, deps: deps, meta: meta}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/orders/open", s.getOpenOrders)
		api.GET("/orders", s.getJournalOrders)
		api.GET("/orders/:id/trades", s.getJournalTrades)
		api.GET("/contracts", s.getContracts)
		api.GET("/ticks", s.getTicks)
		api.GET("/snapshot", s.getSnapshot)
		api.GET("/positions", s.getPositions)
		api.GET("/drift", s.getDrift)
	}
}

func (s *Server) health(c *gin.Context) {
	if !s.deps.Session.Connected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "connecting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	log.WithField("addr", addr).Info("http server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
