package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/errdigest/internal/ereport"
	"github.com/kiranshivaraju/errdigest/pkg/models"
)

var (
	ErrMissingClientID = errors.New("client_id is required")
	ErrInvalidDate     = errors.New("date must be 'today' or yyyy-mm-dd")

	// ErrDeleteFailed is returned together with the Result when the digest was
	// produced (and sent) but its records could not be removed.
	ErrDeleteFailed = errors.New("reported records not deleted")
)

// DefaultMaxResults caps the records fetched for one digest.
const DefaultMaxResults = 1000

// Params are the inputs of one report run.
type Params struct {
	ClientID string
	// Sender defaults to the configured subscription address.
	Sender string
	// To overrides recipient resolution when non-empty.
	To         []string
	Date       time.Time
	MaxResults int
	// Debug returns the rendered digest instead of mailing it.
	Debug  bool
	Delete bool
}

// ParseDate resolves the date parameter of a report run. An empty value means
// the previous logical day, "today" the current one.
func ParseDate(raw string, now time.Time, startHour int) (time.Time, error) {
	switch strings.TrimSpace(raw) {
	case "":
		return ereport.PreviousDay(now, startHour), nil
	case "today":
		return ereport.LogicalDay(now, startHour), nil
	}
	day, err := time.Parse(models.ReportDateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return day, nil
}

// ParseBool accepts true, t, 1 and yes (any case) as true. An empty value
// yields def.
func ParseBool(raw string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return def
	case "true", "t", "1", "yes":
		return true
	default:
		return false
	}
}

// SplitAddresses splits a comma separated recipient list.
func SplitAddresses(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
