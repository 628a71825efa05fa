// Package report runs the daily digest for one client: fetch the day's
// records, render them, deliver or return the result, then delete what was
// reported.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errdigest/internal/config"
	"github.com/kiranshivaraju/errdigest/internal/digest"
	"github.com/kiranshivaraju/errdigest/internal/mailer"
	"github.com/kiranshivaraju/errdigest/internal/metrics"
	"github.com/kiranshivaraju/errdigest/internal/store"
	"github.com/kiranshivaraju/errdigest/pkg/models"
)

// Result describes a finished report run.
type Result struct {
	ClientID   string
	ReportDate time.Time
	// Empty is set when the day had no records; nothing was sent or deleted.
	Empty      bool
	Digest     *digest.Digest
	Rendered   digest.Rendered
	Recipients []string
	Deleted    int
}

// Service generates and delivers digests.
type Service struct {
	store      store.Store
	sender     mailer.Sender
	cfg        config.SubscriptionConfig
	maxResults int
	startHour  int
	now        func() time.Time
}

// NewService creates a report Service.
func NewService(s store.Store, sender mailer.Sender, cfg *config.Config) *Service {
	maxResults := cfg.Report.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Service{
		store:      s,
		sender:     sender,
		cfg:        cfg.Subscription,
		maxResults: maxResults,
		startHour:  cfg.Intake.DayStartingHour,
		now:        time.Now,
	}
}

// DefaultParams returns the parameters of a scheduled run for clientID.
func (s *Service) DefaultParams(clientID string) Params {
	return Params{ClientID: clientID, Delete: true}
}

// Subject is the mail subject of a digest.
func Subject(clientID string) string {
	return fmt.Sprintf("Daily exception report for %q", clientID)
}

// Generate runs one report. Records are deleted only after the digest was
// rendered and, unless in debug mode, delivered.
func (s *Service) Generate(ctx context.Context, p Params) (*Result, error) {
	if p.ClientID == "" {
		return nil, ErrMissingClientID
	}
	if p.Date.IsZero() {
		p.Date, _ = ParseDate("", s.now(), s.startHour)
	}
	if p.MaxResults <= 0 {
		p.MaxResults = s.maxResults
	}
	if p.Sender == "" {
		p.Sender = s.cfg.SenderEmail
	}

	res := &Result{ClientID: p.ClientID, ReportDate: p.Date}

	records, err := s.store.ListErrorRecords(ctx, store.RecordFilter{
		ClientID:   p.ClientID,
		ReportDate: p.Date,
		Limit:      p.MaxResults,
	})
	if err != nil {
		metrics.Digests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	if len(records) == 0 {
		metrics.Digests.WithLabelValues("empty").Inc()
		res.Empty = true
		return res, nil
	}

	res.Digest = digest.Build(p.ClientID, p.Date, records)
	res.Rendered, err = digest.Render(res.Digest)
	if err != nil {
		metrics.Digests.WithLabelValues("error").Inc()
		return nil, err
	}

	if !p.Debug {
		res.Recipients, err = s.recipients(ctx, p)
		if err != nil {
			metrics.Digests.WithLabelValues("error").Inc()
			return nil, err
		}
		err = s.sender.Send(ctx, mailer.Message{
			From:    p.Sender,
			To:      res.Recipients,
			Subject: Subject(p.ClientID),
			Text:    res.Rendered.Text,
			HTML:    res.Rendered.HTML,
		})
		if err != nil {
			metrics.Digests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("send digest for %s: %w", p.ClientID, err)
		}
	}

	if p.Delete {
		ids := make([]uuid.UUID, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		res.Deleted, err = s.store.DeleteErrorRecords(ctx, ids)
		if err != nil {
			// The digest already went out; report the failure but keep the result.
			slog.Error("failed to delete reported records",
				"client_id", p.ClientID,
				"report_date", p.Date.Format(models.ReportDateLayout),
				"error", err,
			)
			metrics.Digests.WithLabelValues("delete_failed").Inc()
			return res, fmt.Errorf("%w: %w", ErrDeleteFailed, err)
		}
	}

	if p.Debug {
		metrics.Digests.WithLabelValues("debug").Inc()
	} else {
		metrics.Digests.WithLabelValues("sent").Inc()
	}
	slog.Info("digest generated",
		"client_id", p.ClientID,
		"report_date", p.Date.Format(models.ReportDateLayout),
		"exceptions", res.Digest.ExceptionCount,
		"occurrences", res.Digest.OccurrenceCount,
		"recipients", len(res.Recipients),
		"deleted", res.Deleted,
		"debug", p.Debug,
	)
	return res, nil
}

// recipients resolves the delivery list: explicit To, else the client's
// subscribers, else the admin list.
func (s *Service) recipients(ctx context.Context, p Params) ([]string, error) {
	if len(p.To) > 0 {
		return p.To, nil
	}
	sub, err := s.store.GetSubscription(ctx, p.ClientID)
	switch {
	case err == nil && len(sub.Subscribers) > 0:
		return sub.Subscribers, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("load subscribers: %w", err)
	}
	if len(s.cfg.AdminEmails) == 0 {
		return nil, mailer.ErrNoRecipients
	}
	return s.cfg.AdminEmails, nil
}
