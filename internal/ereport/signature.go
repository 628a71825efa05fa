// Package ereport implements the error report aggregation path: signature,
// logical day bucketing, the dedup gate and the recorder that upserts
// counted records.
package ereport

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/kiranshivaraju/errdigest/pkg/models"
)

// SignaturePrefix namespaces report signatures.
const SignaturePrefix = "hash:"

// signatureInput is the canonical form hashed into a signature. The client
// version is deliberately absent so one bug keeps one signature across
// releases; versions are separated at the record key level instead.
type signatureInput struct {
	Runtime      string `json:"runtime"`
	ClientID     string `json:"clientId"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`
	Stacktrace   string `json:"stacktrace"`
}

// Signature computes a stable SHA-256 signature for an error report.
func Signature(r models.ErrorReport) string {
	// Marshalling a fixed struct of strings cannot fail and quotes every
	// field, so field boundaries stay unambiguous.
	canonical, _ := json.Marshal(signatureInput{
		Runtime:      r.Runtime,
		ClientID:     r.ClientID,
		UserID:       r.UserID,
		UserName:     r.UserName,
		ErrorType:    r.ErrorType,
		ErrorMessage: r.ErrorMessage,
		Stacktrace:   r.Stacktrace,
	})
	hash := sha256.Sum256(canonical)
	return fmt.Sprintf("%s%x", SignaturePrefix, hash)
}
