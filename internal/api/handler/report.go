package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/errdigest/internal/api/response"
	"github.com/kiranshivaraju/errdigest/internal/mailer"
	"github.com/kiranshivaraju/errdigest/internal/report"
	"github.com/kiranshivaraju/errdigest/pkg/models"
)

// ReportGenerator defines the interface the report handler depends on.
type ReportGenerator interface {
	Generate(ctx context.Context, p report.Params) (*report.Result, error)
}

// NewReportHandler returns an http.HandlerFunc for GET /api/v1/report.
// startHour is the configured day starting hour used to resolve the date.
func NewReportHandler(gen ReportGenerator, startHour int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		clientID := q.Get("client_id")
		if clientID == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "client_id is required", nil)
			return
		}

		date, err := report.ParseDate(q.Get("date"), time.Now(), startHour)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "date must be 'today' or yyyy-mm-dd", nil)
			return
		}

		maxResults := report.DefaultMaxResults
		if raw := q.Get("max_results"); raw != "" {
			maxResults, err = strconv.Atoi(raw)
			if err != nil || maxResults <= 0 {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "max_results must be a positive integer", nil)
				return
			}
		}

		format := q.Get("format")
		if format == "" {
			format = "html"
		}
		if format != "html" && format != "text" && format != "markdown" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "format must be html, text or markdown", nil)
			return
		}

		params := report.Params{
			ClientID:   clientID,
			Sender:     q.Get("sender"),
			To:         report.SplitAddresses(q.Get("to")),
			Date:       date,
			MaxResults: maxResults,
			Debug:      report.ParseBool(q.Get("debug"), false),
			Delete:     report.ParseBool(q.Get("delete"), true),
		}

		res, err := gen.Generate(r.Context(), params)
		if err != nil {
			switch {
			case errors.Is(err, report.ErrDeleteFailed) && res != nil:
				response.Error(w, http.StatusInternalServerError, "DELETE_FAILED",
					"The report was produced but its records could not be deleted", newReportResponse(res))
			case errors.Is(err, mailer.ErrNoRecipients):
				response.Error(w, http.StatusUnprocessableEntity, "NO_RECIPIENTS",
					"No recipients configured for this client", nil)
			case errors.Is(err, mailer.ErrSendFailed):
				response.Error(w, http.StatusBadGateway, "DELIVERY_FAILED",
					"The report could not be delivered", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		if res.Empty {
			response.NoContent(w)
			return
		}

		if params.Debug {
			switch format {
			case "text":
				response.Text(w, res.Rendered.Text)
			case "markdown":
				response.Text(w, res.Rendered.Markdown)
			default:
				response.HTML(w, res.Rendered.HTML)
			}
			return
		}

		response.JSON(w, newReportResponse(res))
	}
}

func newReportResponse(res *report.Result) reportResponse {
	return reportResponse{
		ClientID:    res.ClientID,
		ReportDate:  res.ReportDate.Format(models.ReportDateLayout),
		Recipients:  res.Recipients,
		Versions:    res.Digest.VersionCount,
		Exceptions:  res.Digest.ExceptionCount,
		Occurrences: res.Digest.OccurrenceCount,
		Deleted:     res.Deleted,
	}
}

type reportResponse struct {
	ClientID    string   `json:"client_id"`
	ReportDate  string   `json:"report_date"`
	Recipients  []string `json:"recipients"`
	Versions    int      `json:"versions"`
	Exceptions  int      `json:"exceptions"`
	Occurrences int      `json:"occurrences"`
	Deleted     int      `json:"deleted"`
}
