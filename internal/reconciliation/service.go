// Package reconciliation periodically compares gateway-reported positions with
// the positions the broker built from reconciled trades. It only reports; it
// never corrects either side.
package reconciliation

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"futures-bridge/internal/broker"
	"futures-bridge/internal/monitor"
	"futures-bridge/internal/snapshot"
	exchange "futures-bridge/pkg/exchanges/common"
	"futures-bridge/pkg/logging"
)

const tolerance = 1e-6

var log = logging.For("reconciliation")

// Snapshots exposes gateway-reported state.
type Snapshots interface {
	State() snapshot.State
}

// Accounts exposes broker-side positions.
type Accounts interface {
	Account(t broker.AccountType) (*broker.Account, error)
}

// Live reports whether the warm-start cutover happened.
type Live interface {
	Cutover() (time.Time, bool)
}

// Service runs the drift check.
type Service struct {
	snapshots Snapshots
	accounts  Accounts
	live      Live
	querier   exchange.Querier // optional, refreshes gateway positions between checks
	metrics   *monitor.Metrics
	interval  time.Duration

	mu   sync.Mutex
	last *Report
}

// Report contains one check's results.
type Report struct {
	Timestamp time.Time
	Skipped   bool // nothing to compare yet
	Diffs     []PositionDiff
}

// HasDiffs reports whether any position disagreed.
func (r *Report) HasDiffs() bool { return len(r.Diffs) > 0 }

// PositionDiff is one instrument/direction whose quantities disagree.
type PositionDiff struct {
	OrderBookID string
	Direction   exchange.Direction
	LocalQty    float64
	GatewayQty  float64
	Difference  float64
}

func NewService(snapshots Snapshots, accounts Accounts, live Live, querier exchange.Querier, metrics *monitor.Metrics, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		snapshots: snapshots,
		accounts:  accounts,
		live:      live,
		querier:   querier,
		metrics:   metrics,
		interval:  interval,
	}
}

// Start begins periodic checks until ctx is done.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				report := s.Reconcile()
				s.handleReport(report)
				s.refresh(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.WithField("interval", s.interval).Info("position drift check started")
}

// Reconcile compares both sides once.
func (s *Service) Reconcile() *Report {
	report := &Report{Timestamp: time.Now()}
	defer func() {
		s.mu.Lock()
		s.last = report
		s.mu.Unlock()
	}()

	if _, ok := s.live.Cutover(); !ok {
		report.Skipped = true
		return report
	}
	state := s.snapshots.State()
	if len(state.Positions) == 0 {
		report.Skipped = true
		return report
	}
	acc, err := s.accounts.Account(broker.AccountFuture)
	if err != nil {
		log.WithError(err).Warn("drift check skipped")
		report.Skipped = true
		return report
	}

	type side struct{ local, gateway float64 }
	rows := make(map[snapshot.PositionKey]*side)
	row := func(k snapshot.PositionKey) *side {
		r, ok := rows[k]
		if !ok {
			r = &side{}
			rows[k] = r
		}
		return r
	}
	for k, p := range state.Positions {
		row(k).gateway += p.Position
	}
	for _, p := range acc.Positions() {
		row(snapshot.PositionKey{OrderBookID: p.OrderBookID, Direction: exchange.DirectionLong}).local += p.BuyQuantity()
		row(snapshot.PositionKey{OrderBookID: p.OrderBookID, Direction: exchange.DirectionShort}).local += p.SellQuantity()
	}

	for k, r := range rows {
		if math.Abs(r.local-r.gateway) <= tolerance {
			continue
		}
		report.Diffs = append(report.Diffs, PositionDiff{
			OrderBookID: k.OrderBookID,
			Direction:   k.Direction,
			LocalQty:    r.local,
			GatewayQty:  r.gateway,
			Difference:  r.local - r.gateway,
		})
	}
	sort.Slice(report.Diffs, func(i, j int) bool {
		a, b := report.Diffs[i], report.Diffs[j]
		if a.OrderBookID != b.OrderBookID {
			return a.OrderBookID < b.OrderBookID
		}
		return a.Direction < b.Direction
	})
	return report
}

// Last returns the most recent report, or nil before the first check.
func (s *Service) Last() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Service) handleReport(report *Report) {
	if report.Skipped {
		log.Debug("drift check skipped, nothing to compare")
		return
	}
	if !report.HasDiffs() {
		log.Debug("positions match gateway")
		return
	}
	for _, d := range report.Diffs {
		log.WithFields(logrus.Fields{
			"order_book_id": d.OrderBookID,
			"direction":     d.Direction,
			"local":         d.LocalQty,
			"gateway":       d.GatewayQty,
		}).Warn("position drift")
		s.metrics.Alert("position_drift")
	}
}

// refresh asks the gateway for fresh positions so the next check sees them.
func (s *Service) refresh(ctx context.Context) {
	if s.querier == nil {
		return
	}
	if err := s.querier.QueryPosition(ctx); err != nil {
		log.WithError(err).Warn("position query failed")
	}
}
