package models

// ErrorReport is a single client-side error as posted to the intake endpoint.
// It is never stored verbatim; it is folded into an ErrorRecord. Form posts
// use the JSON names as field names.
type ErrorReport struct {
	Runtime       string `json:"runtime"       validate:"required"`
	ClientID      string `json:"clientId"      validate:"required"`
	ClientVersion string `json:"clientVersion" validate:"required"`
	UserID        string `json:"userId"        validate:"required"`
	UserName      string `json:"userName"      validate:"required"`
	ErrorType     string `json:"errorType"     validate:"required"`
	ErrorMessage  string `json:"errorMessage"  validate:"required"`
	Stacktrace    string `json:"stacktrace"    validate:"required"`
}
