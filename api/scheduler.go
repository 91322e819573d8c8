/*
scheduler.go - Periodic balance audit

PURPOSE:
  Runs the balance verification on a timer so drift between a stored
  balance and what the slots imply is noticed without anyone calling
  GET /api/records/verify.

DESIGN:
  - Background goroutine with a configurable check interval
  - Audits once immediately on start, then on every tick
  - Mismatches are logged per record and exported as a gauge; the
    auditor never mutates records

CONFIGURATION:
  - CheckInterval: how often to audit (default: 1 hour)
  - Enabled: whether the auditor runs (default: true)

USAGE:
  auditor := NewBalanceAuditor(eng, logger)
  auditor.Start()
  // ... later
  auditor.Stop()

SEE ALSO:
  - handlers.go: VerifyBalances endpoint (on-demand audit)
  - ../engine/reconciler.go: the verification itself
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/engine"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/metrics"
)

// BalanceAuditor periodically recomputes every stored balance.
type BalanceAuditor struct {
	Engine        *engine.Engine
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// statsMu guards the audit results separately so Stop can hold mu
	// across wg.Wait while an audit is still publishing.
	statsMu        sync.Mutex
	lastRun        time.Time
	lastMismatches int
}

// NewBalanceAuditor creates an auditor around the engine.
func NewBalanceAuditor(eng *engine.Engine, logger *zap.Logger) *BalanceAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceAuditor{
		Engine:        eng,
		Logger:        logger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the audit loop.
func (a *BalanceAuditor) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.Enabled {
		a.Logger.Info("balance auditor disabled, not starting")
		return
	}

	a.ticker = time.NewTicker(a.CheckInterval)
	a.wg.Add(1)
	go a.run()

	a.Logger.Info("balance auditor started", zap.Duration("interval", a.CheckInterval))
}

// Stop halts the audit loop and waits for an in-flight audit to finish.
func (a *BalanceAuditor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ticker != nil {
		a.ticker.Stop()
		close(a.stop)
		a.wg.Wait()
		a.ticker = nil
		a.Logger.Info("balance auditor stopped")
	}
}

func (a *BalanceAuditor) run() {
	defer a.wg.Done()

	// Audit immediately on start, catching drift left by a crash.
	a.audit()

	for {
		select {
		case <-a.ticker.C:
			a.audit()
		case <-a.stop:
			return
		}
	}
}

func (a *BalanceAuditor) audit() {
	ctx := context.Background()

	mismatches, err := a.Engine.VerifyBalances(ctx)
	if err != nil {
		a.Logger.Error("balance audit failed", zap.Error(err))
		return
	}

	a.statsMu.Lock()
	a.lastRun = time.Now()
	a.lastMismatches = len(mismatches)
	a.statsMu.Unlock()
	metrics.BalanceMismatches.Set(float64(len(mismatches)))

	if len(mismatches) == 0 {
		a.Logger.Debug("balance audit clean")
		return
	}

	for _, m := range mismatches {
		a.Logger.Warn("balance drift",
			zap.String("record", string(m.RecordID)),
			zap.String("goingDo", m.GoingDO),
			zap.String("truck", m.Truck.String()),
			zap.String("stored", m.Stored.String()),
			zap.String("computed", m.Computed.String()),
			zap.String("drift", m.Drift.String()))
	}
	a.Logger.Warn("balance audit found drift", zap.Int("mismatches", len(mismatches)))
}

// RunNow triggers an immediate audit (for testing/admin).
func (a *BalanceAuditor) RunNow() {
	a.audit()
}

// LastAudit reports when the last audit ran and how many records it
// flagged.
func (a *BalanceAuditor) LastAudit() (time.Time, int) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	return a.lastRun, a.lastMismatches
}
