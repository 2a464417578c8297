package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/tundeabiodun/lms-backend/internal/metrics"
	repo "github.com/tundeabiodun/lms-backend/internal/repository"
)

// PendingMonitor watches for transactions stuck in pending beyond a
// threshold. It only observes: a pending settlement is finished by a webhook
// or a client re-poll, never cancelled or auto-succeeded from here.
type PendingMonitor struct {
	txns      repo.Transactions
	interval  time.Duration
	threshold time.Duration
	log       *slog.Logger
}

func NewPendingMonitor(txns repo.Transactions, interval, threshold time.Duration, log *slog.Logger) *PendingMonitor {
	return &PendingMonitor{txns: txns, interval: interval, threshold: threshold, log: log}
}

func (m *PendingMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info("pending monitor started", "interval", m.interval, "threshold", m.threshold)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.txns.CountStuckPending(ctx, m.threshold)
			if err != nil {
				m.log.Error("count stuck pending", "err", err)
				continue
			}
			metrics.StuckPending.Set(float64(n))
			if n > 0 {
				m.log.Warn("transactions stuck pending", "count", n, "older_than", m.threshold)
			}
		}
	}
}
