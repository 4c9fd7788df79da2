// Package scheduler takes periodic pool snapshots.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sbellem/SiennaNetwork/internal/export"
	"github.com/sbellem/SiennaNetwork/internal/model"
	"github.com/sbellem/SiennaNetwork/internal/report"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// Source projects every pool to a moment
type Source interface {
	Now(ctx context.Context) (types.Moment, error)
	Snapshots(ctx context.Context, at types.Moment) ([]model.PoolSnapshot, error)
}

// Sink receives exported records
type Sink interface {
	Add(records ...export.Record)
}

type metrics struct {
	runs        *prometheus.CounterVec
	staked      *prometheus.GaugeVec
	budget      *prometheus.GaugeVec
	distributed *prometheus.GaugeVec
	payout      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_snapshot_runs_total",
			Help: "Snapshot runs by outcome",
		}, []string{"outcome"}),
		staked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rewards_pool_staked",
			Help: "Liquidity locked in a pool at the last snapshot",
		}, []string{"pool"}),
		budget: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rewards_pool_budget",
			Help: "Reward balance of a pool at the last snapshot",
		}, []string{"pool"}),
		distributed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rewards_pool_distributed",
			Help: "Rewards paid out by a pool at the last snapshot",
		}, []string{"pool"}),
		payout: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rewards_payout_ratio",
			Help: "Distributed over unlocked rewards across all pools",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.staked, m.budget, m.distributed, m.payout)
	}
	return m
}

// Scheduler runs snapshots on a cron expression
type Scheduler struct {
	cron    *cron.Cron
	src     Source
	sink    Sink
	metrics *metrics
	timeout time.Duration

	mu   sync.Mutex
	last *report.Summary
}

// New creates a scheduler. sink may be nil.
func New(src Source, sink Sink, reg prometheus.Registerer) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		src:     src,
		sink:    sink,
		metrics: newMetrics(reg),
		timeout: 30 * time.Second,
	}
}

// Register schedules snapshots on spec, e.g. "@every 1m" or "*/5 * * * *"
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunNow(ctx); err != nil {
			logrus.Errorf("Snapshot run failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("register snapshot task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	logrus.Info("Scheduler started")
}

// Stop waits for a running snapshot to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logrus.Info("Scheduler stopped")
}

// RunNow snapshots every pool at the current block time
func (s *Scheduler) RunNow(ctx context.Context) (report.Summary, error) {
	at, err := s.src.Now(ctx)
	if err != nil {
		s.metrics.runs.WithLabelValues("error").Inc()
		return report.Summary{}, err
	}
	snaps, err := s.src.Snapshots(ctx, at)
	if err != nil {
		s.metrics.runs.WithLabelValues("error").Inc()
		return report.Summary{}, err
	}
	summary, err := report.Summarize(snaps)
	if err != nil {
		s.metrics.runs.WithLabelValues("error").Inc()
		return report.Summary{}, err
	}
	summary.Time = at

	records := make([]export.Record, 0, len(snaps))
	for _, snap := range snaps {
		s.metrics.staked.WithLabelValues(snap.Pool).Set(snap.Staked.Float64())
		s.metrics.budget.WithLabelValues(snap.Pool).Set(snap.Budget.Float64())
		s.metrics.distributed.WithLabelValues(snap.Pool).Set(snap.Distributed.Float64())
		records = append(records, export.Record{Type: "snapshot", Data: snap})
	}
	s.metrics.payout.Set(summary.PayoutRatio)
	if s.sink != nil {
		s.sink.Add(records...)
	}

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()
	s.metrics.runs.WithLabelValues("ok").Inc()

	logrus.WithFields(logrus.Fields{
		"at":     at,
		"pools":  summary.Pools,
		"open":   summary.Open,
		"staked": summary.Staked.String(),
		"budget": summary.Budget.String(),
	}).Info("Pool snapshot taken")
	return summary, nil
}

// Last returns the summary of the last successful run
func (s *Scheduler) Last() (report.Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return report.Summary{}, false
	}
	return *s.last, true
}
