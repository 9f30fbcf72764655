package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"futures-bridge/internal/broker"
	"futures-bridge/internal/engine"
	"futures-bridge/pkg/db"
)

func (s *Server) getSystemStatus(c *gin.Context) {
	status := gin.H{
		"meta":        s.meta,
		"connected":   s.deps.Session.Connected(),
		"open_orders": len(s.deps.Engine.OpenOrders()),
		"contracts":   len(s.deps.Engine.Contracts()),
	}
	if at, ok := s.deps.Engine.Cutover(); ok {
		status["cutover_at"] = at
	}
	if s.deps.Bus != nil {
		status["bus_dropped"] = s.deps.Bus.Dropped()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) getOpenOrders(c *gin.Context) {
	orders := s.deps.Engine.OpenOrders()
	views := make([]engine.OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, engine.NewOrderView(o))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) getContracts(c *gin.Context) {
	c.JSON(http.StatusOK, engine.ContractViews(s.deps.Engine.Contracts()))
}

func (s *Server) getTicks(c *gin.Context) {
	if s.deps.Ticks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tick feed not available"})
		return
	}
	c.JSON(http.StatusOK, engine.TickViews(s.deps.Ticks.Latest()))
}

func (s *Server) getSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, engine.NewSnapshotView(s.deps.Engine.Snapshot()))
}

func (s *Server) getPositions(c *gin.Context) {
	if s.deps.Accounts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "broker not available"})
		return
	}
	acc, err := s.deps.Accounts.Account(broker.AccountFuture)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cash":      acc.Cash(),
		"positions": acc.Positions(),
	})
}

func (s *Server) getDrift(c *gin.Context) {
	if s.deps.Drift == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "drift check disabled"})
		return
	}
	report := s.deps.Drift.Last()
	if report == nil {
		c.JSON(http.StatusOK, gin.H{"checked": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"checked":   !report.Skipped,
		"timestamp": report.Timestamp,
		"diffs":     report.Diffs,
	})
}

func (s *Server) getJournalOrders(c *gin.Context) {
	if s.deps.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
		return
	}
	orders, err := s.deps.DB.ListOrders(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if orders == nil {
		orders = []db.Order{}
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) getJournalTrades(c *gin.Context) {
	if s.deps.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	id := c.Param("id")
	if _, err := s.deps.DB.GetOrder(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	trades, err := s.deps.DB.ListTrades(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if trades == nil {
		trades = []db.Trade{}
	}
	c.JSON(http.StatusOK, trades)
}
