package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pairforge/agent/internal/common"
	"github.com/pairforge/agent/internal/config"
	"github.com/pairforge/agent/internal/models"
	"github.com/pairforge/agent/internal/wire"
)

// Sequencer delivers the credential bundle to the user over the open
// protocol session: the bundle as a document first, any configured
// auxiliary messages, then the security warning, with a fixed pause
// between sends. A failed send stops the sequence; the outcome reports
// every send attempted either way.
type Sequencer struct {
	pause         time.Duration
	credFileName  string
	extras        []config.ExtraMessage
	warning       string
	failureNotice string
	isBenign      common.BenignPredicate
}

func NewSequencer(cfg config.DeliveryConfig, isBenign common.BenignPredicate) *Sequencer {

	if isBenign == nil {
		isBenign = func(error) bool { return false }
	}

	return &Sequencer{
		pause:         cfg.Pause,
		credFileName:  cfg.CredentialFileName,
		extras:        cfg.Extras,
		warning:       cfg.Warning,
		failureNotice: cfg.FailureNotice,
		isBenign:      isBenign,
	}
}

// sendTimeout bounds each individual send so a stalled transport
// cannot wedge the detached lifecycle goroutine.
const sendTimeout = 30 * time.Second

type step struct {
	label   string
	payload wire.Payload
}

func (s *Sequencer) steps(creds []byte) []step {

	sequence := []step{
		{
			label: "credentials",
			payload: wire.Payload{
				Document: &wire.DocumentPayload{
					FileName: s.credFileName,
					MimeType: "application/json",
					Data:     creds,
				},
			},
		},
	}

	for i, extra := range s.extras {
		label := fmt.Sprintf("extra_%d", i+1)

		if len(extra.ImageURL) > 0 {
			sequence = append(sequence, step{
				label: label,
				payload: wire.Payload{
					Image: &wire.ImagePayload{
						URL:     extra.ImageURL,
						Caption: extra.Caption,
					},
				},
			})
		} else if len(extra.Text) > 0 {
			sequence = append(sequence, step{
				label:   label,
				payload: wire.Payload{Text: extra.Text},
			})
		}
	}

	sequence = append(sequence, step{
		label:   "warning",
		payload: wire.Payload{Text: s.warning},
	})

	return sequence
}

// Deliver runs the full sequence against the open client. On any
// failure it stops, attempts one best-effort in-band failure notice,
// and returns the partial outcome faithfully.
func (s *Sequencer) Deliver(ctx context.Context, client wire.Client, target string, creds []byte) models.DeliveryOutcome {

	var outcome models.DeliveryOutcome

	for i, current := range s.steps(creds) {

		if i > 0 {
			select {
			case <-time.After(s.pause):
			case <-ctx.Done():
				outcome.Sends = append(outcome.Sends, models.SendResult{
					Label:     current.label,
					Error:     ctx.Err().Error(),
					Timestamp: time.Now().UTC(),
				})
				return outcome
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		_, err := client.SendMessage(sendCtx, target, current.payload)
		cancel()

		result := models.SendResult{
			Label:     current.label,
			Success:   err == nil,
			Timestamp: time.Now().UTC(),
		}
		if err != nil {
			result.Error = err.Error()
		}
		outcome.Sends = append(outcome.Sends, result)

		if err != nil {
			s.logSendFailure(target, current.label, err)
			s.NotifyFailure(ctx, client, target)
			return outcome
		}

		logrus.WithFields(logrus.Fields{
			"target": target,
			"label":  current.label,
		}).Debugln("Delivery step sent")
	}

	outcome.Delivered = true
	return outcome
}

// NotifyFailure sends a single best-effort failure notice over the same
// handle. A failure of the notice itself is logged and discarded.
func (s *Sequencer) NotifyFailure(ctx context.Context, client wire.Client, target string) {

	if len(s.failureNotice) == 0 {
		return
	}

	_, err := client.SendMessage(ctx, target, wire.Payload{Text: s.failureNotice})
	if err != nil {
		s.logSendFailure(target, "failure_notice", err)
	}
}

func (s *Sequencer) logSendFailure(target, label string, err error) {

	fields := logrus.Fields{
		"target": target,
		"label":  label,
	}

	if s.isBenign(err) {
		logrus.WithError(err).WithFields(fields).Debugln("Delivery send failed (benign transient)")
		return
	}

	logrus.WithError(err).WithFields(fields).Errorln("Delivery send failed")
}
