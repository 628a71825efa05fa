package ereport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/errdigest/internal/metrics"
	"github.com/kiranshivaraju/errdigest/internal/store"
	"github.com/kiranshivaraju/errdigest/pkg/models"
)

// Outcome is the result of logging one error report.
type Outcome string

const (
	OutcomeRecorded   Outcome = Outcome(metrics.OutcomeRecorded)
	OutcomeSuppressed Outcome = Outcome(metrics.OutcomeSuppressed)
)

// Recorder folds incoming error reports into counted records.
type Recorder struct {
	store     store.Store
	gate      *Gate
	startHour int
	now       func() time.Time
}

// NewRecorder creates a Recorder. startHour is the hour of day (UTC) at which
// the logical day rolls over.
func NewRecorder(s store.Store, gate *Gate, startHour int) *Recorder {
	return &Recorder{store: s, gate: gate, startHour: startHour, now: time.Now}
}

// Log records one occurrence of report unless the gate suppresses it.
// store.ErrContention is returned when the upsert lost its retry budget; the
// occurrence is then dropped and the gate reopened for the signature.
func (r *Recorder) Log(ctx context.Context, report models.ErrorReport) (Outcome, error) {
	sig := Signature(report)
	if !r.gate.Admit(ctx, sig) {
		metrics.ReportsReceived.WithLabelValues(metrics.OutcomeSuppressed).Inc()
		return OutcomeSuppressed, nil
	}

	now := r.now().UTC()
	key := models.RecordKey{
		Signature:     sig,
		ClientVersion: report.ClientVersion,
		ReportDate:    LogicalDay(now, r.startHour),
	}

	_, err := r.store.UpsertErrorRecord(ctx, key, increment(report, now))
	if err != nil {
		result := "error"
		if errors.Is(err, store.ErrContention) {
			result = "contention"
		}
		metrics.RecordUpserts.WithLabelValues(result).Inc()
		metrics.ReportsReceived.WithLabelValues(metrics.OutcomeFailed).Inc()
		// nothing was written for this window
		r.gate.Release(ctx, sig)
		return "", fmt.Errorf("record %s: %w", key, err)
	}

	metrics.RecordUpserts.WithLabelValues("ok").Inc()
	metrics.ReportsReceived.WithLabelValues(metrics.OutcomeRecorded).Inc()
	return OutcomeRecorded, nil
}

// increment creates the record from the triggering report or bumps its count.
func increment(report models.ErrorReport, now time.Time) store.UpdateFunc {
	return func(current *models.ErrorRecord) (*models.ErrorRecord, error) {
		if current != nil {
			current.Count++
			return current, nil
		}
		return &models.ErrorRecord{
			Runtime:        report.Runtime,
			ClientID:       report.ClientID,
			ClientVersion:  report.ClientVersion,
			UserID:         report.UserID,
			UserName:       report.UserName,
			ErrorType:      report.ErrorType,
			ErrorMessage:   report.ErrorMessage,
			Stacktrace:     report.Stacktrace,
			ActualDateTime: now,
			Count:          1,
		}, nil
	}
}
