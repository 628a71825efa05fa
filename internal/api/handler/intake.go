package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/errdigest/internal/api/response"
	"github.com/kiranshivaraju/errdigest/internal/ereport"
	"github.com/kiranshivaraju/errdigest/internal/metrics"
	"github.com/kiranshivaraju/errdigest/internal/store"
	"github.com/kiranshivaraju/errdigest/pkg/models"
)

const maxReportBytes = 1 << 20

// ReportLogger defines the interface the intake handler depends on.
type ReportLogger interface {
	Log(ctx context.Context, report models.ErrorReport) (ereport.Outcome, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewIntakeHandler returns an http.HandlerFunc for POST / and POST /api/v1/errors.
// Reports with a missing field are dropped without an error response.
func NewIntakeHandler(rec ReportLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxReportBytes)

		report, err := bindReport(r)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Malformed request body", nil)
			return
		}
		if err := validate.Struct(report); err != nil {
			metrics.ReportsReceived.WithLabelValues(metrics.OutcomeInvalid).Inc()
			slog.Debug("dropping incomplete error report", "error", err)
			response.NoContent(w)
			return
		}

		slog.Error(fmt.Sprintf("Client : %s (%s) / User : %s (%s) / Error : %s : %s",
			report.ClientID, report.ClientVersion,
			report.UserName, report.UserID,
			report.ErrorType, report.ErrorMessage),
			"stacktrace", report.Stacktrace,
		)

		outcome, err := rec.Log(r.Context(), report)
		if err != nil {
			if errors.Is(err, store.ErrContention) {
				slog.Warn("error report lost to contention", "client_id", report.ClientID, "error", err)
				response.Error(w, http.StatusServiceUnavailable, "TRANSIENT",
					"Report could not be recorded, store is busy", nil)
				return
			}
			slog.Error("failed to record error report", "client_id", report.ClientID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, map[string]string{"outcome": string(outcome)})
	}
}

// bindReport reads the report from a JSON body or from form fields.
func bindReport(r *http.Request) (models.ErrorReport, error) {
	var report models.ErrorReport

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			return report, err
		}
		return report, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxReportBytes); err != nil {
			return report, err
		}
	default:
		if err := r.ParseForm(); err != nil {
			return report, err
		}
	}

	report = models.ErrorReport{
		Runtime:       r.FormValue("runtime"),
		ClientID:      r.FormValue("clientId"),
		ClientVersion: r.FormValue("clientVersion"),
		UserID:        r.FormValue("userId"),
		UserName:      r.FormValue("userName"),
		ErrorType:     r.FormValue("errorType"),
		ErrorMessage:  r.FormValue("errorMessage"),
		Stacktrace:    r.FormValue("stacktrace"),
	}
	return report, nil
}
