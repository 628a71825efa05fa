package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReportDateLayout is the wire and key format of a logical report day.
const ReportDateLayout = "2006-01-02"

// RecordKey identifies one aggregated bucket: the same signature is counted
// separately per client version and per logical day.
type RecordKey struct {
	Signature     string
	ClientVersion string
	ReportDate    time.Time
}

// String renders the key as signature@date:version.
func (k RecordKey) String() string {
	return fmt.Sprintf("%s@%s:%s", k.Signature, k.ReportDate.Format(ReportDateLayout), k.ClientVersion)
}

// ErrorRecord is the durable, counted aggregate of accepted occurrences of one
// error signature for a (client version, report day) bucket. The exemplar
// fields come from the first occurrence and are never overwritten.
type ErrorRecord struct {
	ID             uuid.UUID `db:"id"               json:"id"`
	Signature      string    `db:"signature"        json:"signature"`
	Runtime        string    `db:"runtime"          json:"runtime"`
	ClientID       string    `db:"client_id"        json:"client_id"`
	ClientVersion  string    `db:"client_version"   json:"client_version"`
	UserID         string    `db:"user_id"          json:"user_id"`
	UserName       string    `db:"user_name"        json:"user_name"`
	ErrorType      string    `db:"error_type"       json:"error_type"`
	ErrorMessage   string    `db:"error_message"    json:"error_message"`
	Stacktrace     string    `db:"stacktrace"       json:"stacktrace"`
	ReportDate     time.Time `db:"report_date"      json:"report_date"`
	ActualDateTime time.Time `db:"actual_date_time" json:"actual_date_time"`
	Count          int       `db:"count"            json:"count"`
	CreatedAt      time.Time `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"       json:"updated_at"`
}

// Key returns the aggregation key of the record.
func (r *ErrorRecord) Key() RecordKey {
	return RecordKey{Signature: r.Signature, ClientVersion: r.ClientVersion, ReportDate: r.ReportDate}
}
