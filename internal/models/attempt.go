package models

import "time"

// Attempt outcomes recorded in the audit ledger.
const (
	OutcomeDelivered      = "delivered"
	OutcomeDeliveryFailed = "delivery_failed"
	OutcomePairingFailed  = "pairing_failed"
	OutcomeLoggedOut      = "logged_out"
	OutcomeExhausted      = "connection_exhausted"
	OutcomeSuperseded     = "superseded"
	OutcomeFatal          = "fatal"
)

// AttemptRecord summarizes one pairing request lifecycle for the audit
// ledger. The credential material itself is never recorded.
type AttemptRecord struct {
	RequestID  string    `json:"request_id"`
	Number     string    `json:"number"`
	CodeIssued bool      `json:"code_issued"`
	Outcome    string    `json:"outcome"`
	Delivered  bool      `json:"delivered"`
	Reconnects int       `json:"reconnects"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
