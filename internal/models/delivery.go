package models

import "time"

// SendResult records the outcome of one message send within a delivery
// sequence.
type SendResult struct {
	Label     string    `json:"label"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DeliveryOutcome is the faithful record of a credential delivery
// attempt. Delivered is true only if both the credential bundle and the
// closing security warning were sent successfully. The controller
// purges the session directory whatever the outcome: a handle that has
// been used to push a credential bundle is never reused for retained
// storage.
type DeliveryOutcome struct {
	Sends     []SendResult `json:"sends"`
	Delivered bool         `json:"delivered"`
}

// Failed reports whether any attempted send in the sequence failed.
func (d DeliveryOutcome) Failed() bool {
	for _, send := range d.Sends {
		if !send.Success {
			return true
		}
	}
	return false
}
