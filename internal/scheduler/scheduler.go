// Package scheduler triggers the daily digest for every configured client.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/errdigest/internal/report"
	"github.com/kiranshivaraju/errdigest/pkg/models"
	"github.com/robfig/cron/v3"
)

// Generator runs one report.
type Generator interface {
	Generate(ctx context.Context, p report.Params) (*report.Result, error)
	DefaultParams(clientID string) report.Params
}

// Scheduler runs reports on a cron schedule (UTC). Runs never overlap: a
// tick that fires while the previous run is still busy is skipped.
type Scheduler struct {
	cron      *cron.Cron
	gen       Generator
	clientIDs []string
	timeout   time.Duration
}

// New creates a Scheduler for schedule, a standard five field cron expression.
func New(schedule string, gen Generator, clientIDs []string) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		gen:       gen,
		clientIDs: clientIDs,
		timeout:   10 * time.Minute,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid report schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	slog.Info("report scheduler started", "clients", len(s.clientIDs))
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running job up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("report scheduler stop timed out")
	}
}

// RunOnce generates the default report for each client in turn. A failure
// for one client does not stop the others. It returns the number of failed
// clients.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	failed := 0
	for _, clientID := range s.clientIDs {
		res, err := s.gen.Generate(ctx, s.gen.DefaultParams(clientID))
		if err != nil {
			failed++
			slog.Error("scheduled report failed", "client_id", clientID, "error", err)
			continue
		}
		if res.Empty {
			slog.Info("no errors to report", "client_id", clientID, "report_date", res.ReportDate.Format(models.ReportDateLayout))
		}
	}
	return failed
}
