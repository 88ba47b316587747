/*
scheduler.go - Outstanding payroll refresher

PURPOSE:
  Periodically reconciles the current month's payroll and publishes the
  remaining amount and per-status record counts as Prometheus gauges, so a
  dashboard can show what is still owed without anyone opening the app.

DESIGN:
  - One background goroutine with a ticker
  - Runs once immediately on Start
  - Reads through payroll.Service.Month, the same path as the API, so the
    gauge never disagrees with GET /api/payroll/{year}/{month}

USAGE:
  refresher := NewOutstandingRefresher(payrollSvc, metrics, logger)
  refresher.Start()
  // ... later
  refresher.Stop()

SEE ALSO:
  - metrics.go: the gauges
  - payroll/service.go: Month
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/salonops/finance-engine/money"
	"github.com/salonops/finance-engine/payroll"
)

// OutstandingRefresher keeps the outstanding payroll gauges current.
type OutstandingRefresher struct {
	Payroll  *payroll.Service
	Metrics  *Metrics
	Interval time.Duration

	log    *slog.Logger
	now    func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewOutstandingRefresher(svc *payroll.Service, metrics *Metrics, logger *slog.Logger) *OutstandingRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutstandingRefresher{
		Payroll:  svc,
		Metrics:  metrics,
		Interval: 5 * time.Minute,
		log:      logger,
		now:      time.Now,
	}
}

// Start begins refreshing. It is a no-op without metrics or when already
// running.
func (o *OutstandingRefresher) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.Metrics == nil || o.ticker != nil {
		return
	}
	o.ticker = time.NewTicker(o.Interval)
	o.stop = make(chan struct{})
	o.wg.Add(1)
	go o.run(o.ticker, o.stop)

	o.log.Info("outstanding refresher started", "interval", o.Interval)
}

func (o *OutstandingRefresher) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ticker == nil {
		return
	}
	o.ticker.Stop()
	close(o.stop)
	o.wg.Wait()
	o.ticker = nil
	o.log.Info("outstanding refresher stopped")
}

func (o *OutstandingRefresher) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer o.wg.Done()

	o.Refresh(context.Background())
	for {
		select {
		case <-ticker.C:
			o.Refresh(context.Background())
		case <-stop:
			return
		}
	}
}

// Refresh reconciles the current month once and updates the gauges.
func (o *OutstandingRefresher) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	month := money.MonthOf(o.now().UTC())
	view, err := o.Payroll.Month(ctx, month)
	if err != nil {
		o.log.Error("outstanding refresh failed", "month", month.String(), "error", err)
		return
	}
	o.Metrics.setOutstanding(view.Summary)
	o.log.Debug("outstanding refreshed", "month", month.String(), "remaining", view.Summary.Remaining.String())
}
