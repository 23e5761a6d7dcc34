// Package session owns the lifecycle of one pairing request: it opens a
// protocol session handle against a fresh session directory, obtains a
// pairing code for the caller, and then drives the attempt through
// delivery and teardown from the handle's event stream. Each request
// runs in its own goroutine; a failing request never affects others.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pairforge/agent/internal/common"
	"github.com/pairforge/agent/internal/config"
	"github.com/pairforge/agent/internal/models"
	"github.com/pairforge/agent/internal/phone"
	"github.com/pairforge/agent/internal/storage"
	"github.com/pairforge/agent/internal/wire"
)

// Recorder persists attempt summaries. Implementations must tolerate
// concurrent calls; a nil Recorder disables auditing.
type Recorder interface {
	Record(ctx context.Context, record models.AttemptRecord) error
}

// Controller provisions pairing sessions. One Controller serves all
// requests; per-request state lives in the attempt it spawns.
type Controller struct {
	cfg       *config.Config
	dialer    wire.Dialer
	store     *storage.Store
	sequencer *Sequencer
	recorder  Recorder
	isBenign  common.BenignPredicate

	// inflight maps canonical identifiers to their running attempts so
	// a new request can supersede the old one instead of racing it for
	// the shared session directory.
	mu       sync.Mutex
	inflight map[string]*attempt
}

func NewController(cfg *config.Config, dialer wire.Dialer, store *storage.Store, recorder Recorder) *Controller {

	isBenign := common.NewSubstringPredicate(cfg.Logging.Suppress)

	return &Controller{
		cfg:       cfg,
		dialer:    dialer,
		store:     store,
		sequencer: NewSequencer(cfg.Delivery, isBenign),
		recorder:  recorder,
		isBenign:  isBenign,
		inflight:  make(map[string]*attempt),
	}
}

// takeOver registers a as the live attempt for its identifier and
// returns the attempt it displaced, if any.
func (c *Controller) takeOver(a *attempt) *attempt {

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.inflight[a.number]
	c.inflight[a.number] = a
	return prev
}

// release drops a from the registry unless it was already displaced.
func (c *Controller) release(a *attempt) {

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight[a.number] == a {
		delete(c.inflight, a.number)
	}
}

// Pairing is what the HTTP caller gets back: the canonical number and
// the formatted single-use code. Done closes once the detached
// delivery-and-cleanup work has finished, which tests use to observe
// the full lifecycle.
type Pairing struct {
	Number string

	// Code is empty when the session directory already held registered
	// credentials: no pairing step is needed and delivery proceeds as
	// soon as the connection opens.
	Code string

	done chan struct{}
}

func (p *Pairing) Done() <-chan struct{} {
	return p.done
}

// Start normalizes the number, prepares a clean session directory,
// opens a handle and obtains a pairing code. It returns once the code
// is available (or a pre-response error occurred); the rest of the
// lifecycle continues detached from ctx.
func (c *Controller) Start(ctx context.Context, rawNumber string) (*Pairing, error) {

	number, err := phone.Normalize(rawNumber)
	if err != nil {
		return nil, err
	}

	a := &attempt{
		controller: c,
		requestID:  uuid.NewString(),
		number:     number,
		dir:        filepath.Join(c.cfg.Pairing.StoragePath, number),
		startedAt:  time.Now().UTC(),
		state:      models.StateInitializing,
		cancel:     make(chan struct{}),
		done:       make(chan struct{}),
	}

	a.log().Infoln("Starting pairing attempt")

	// A new request always wins over a prior attempt for the same
	// identifier: the old attempt is canceled and fully torn down
	// before the new one touches the shared session directory.
	if prev := c.takeOver(a); prev != nil {
		a.log().Infoln("Superseding in-flight attempt for this identifier")
		close(prev.cancel)

		select {
		case <-prev.done:
		case <-ctx.Done():
			a.abort()
			return nil, fmt.Errorf("%w: %s", models.ErrSessionInit, ctx.Err().Error())
		}
	}

	if err := c.store.Prepare(ctx, a.dir); err != nil {
		a.abort()
		return nil, fmt.Errorf("%w: %s", models.ErrSessionInit, err.Error())
	}

	client, err := a.dial(ctx)
	if err != nil {
		c.store.Cleanup(context.Background(), a.dir)
		a.abort()
		return nil, fmt.Errorf("%w: %s", models.ErrSessionInit, err.Error())
	}

	code, err := a.requestPairingCode(ctx, client)
	if err != nil {
		client.Close()
		c.store.Cleanup(context.Background(), a.dir)
		a.record(models.AttemptRecord{Outcome: models.OutcomePairingFailed})
		a.abort()
		return nil, fmt.Errorf("%w: %s", models.ErrPairingRequest, err.Error())
	}

	a.codeIssued = len(code) > 0
	a.setState(models.StateAwaitingPairing)

	// The caller has its code; everything after this point is
	// post-response and recovered locally.
	go a.run(client)

	return &Pairing{
		Number: number,
		Code:   code,
		done:   a.done,
	}, nil
}

// attempt is the state for one request lifecycle. It is only ever
// touched by the goroutine currently driving it: Start hands off to run
// exactly once.
type attempt struct {
	controller *Controller
	requestID  string
	number     string
	dir        string
	startedAt  time.Time
	codeIssued bool
	state      models.ConnectionState
	reconnects *reconnectPolicy

	// cancel closes when a newer request for the same identifier takes
	// over; done closes when this attempt has fully terminated.
	cancel chan struct{}
	done   chan struct{}
}

func (a *attempt) log() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"requestId": a.requestID,
		"number":    a.number,
	})
}

func (a *attempt) setState(next models.ConnectionState) {

	if a.state == next {
		return
	}

	a.log().WithFields(logrus.Fields{
		"from": a.state.String(),
		"to":   next.String(),
	}).Debugln("Connection state changed")

	a.state = next
}

// abort terminates an attempt that never reached its background phase.
func (a *attempt) abort() {
	a.controller.release(a)
	close(a.done)
}

func (a *attempt) dial(ctx context.Context) (wire.Client, error) {

	cfg := a.controller.cfg

	opts := wire.SessionOptions{
		AuthDir:           a.dir,
		BrowserName:       cfg.Gateway.Browser,
		ConnectTimeout:    cfg.Pairing.ConnectTimeout,
		KeepAliveInterval: cfg.Pairing.KeepAliveInterval,
	}

	if versioned, ok := a.controller.dialer.(interface {
		FetchLatestVersion(context.Context) (wire.ProtocolVersion, error)
	}); ok {
		if version, err := versioned.FetchLatestVersion(ctx); err == nil {
			opts.Version = version
		} else {
			a.log().WithError(err).Debugln("Falling back to default protocol version")
		}
	}

	return a.controller.dialer.Dial(ctx, opts)
}

// requestPairingCode waits out the settle delay and asks the remote
// service for a code, formatted for humans. Registered sessions carry
// valid credentials already and skip the request.
func (a *attempt) requestPairingCode(ctx context.Context, client wire.Client) (string, error) {

	if client.Registered() {
		return "", nil
	}

	select {
	case <-time.After(a.controller.cfg.Pairing.SettleDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	code, err := client.RequestPairingCode(ctx, a.number)
	if err != nil {
		return "", err
	}

	code = common.FormatPairingCode(code)

	a.log().Infoln("Pairing code issued")

	return code, nil
}

// run drives the attempt from the handle's event stream to a terminal
// outcome. It never panics out: a failure here is logged and cleaned up
// without touching other in-flight requests.
func (a *attempt) run(client wire.Client) {

	defer func() {
		a.controller.release(a)
		close(a.done)
	}()

	defer func() {
		if r := recover(); r != nil {
			a.log().Errorf("Recovered from panic in session lifecycle: %v", r)
			a.purge()
			a.record(models.AttemptRecord{Outcome: models.OutcomeFatal})
		}
	}()

	ctx := context.Background()
	a.reconnects = newReconnectPolicy(
		a.controller.cfg.Pairing.MaxReconnects,
		a.controller.cfg.Pairing.RestartDelay,
		a.controller.cfg.Pairing.ReconnectDelay,
	)

	for {
		outcome := a.consume(ctx, client)
		client.Close()

		if outcome.delivered != nil {
			a.finish(*outcome.delivered)
			return
		}

		if outcome.superseded {
			// The successor waits for this attempt to terminate and
			// then prepares the directory itself.
			a.log().Infoln("Attempt superseded by a newer request; terminating")
			a.record(models.AttemptRecord{Outcome: models.OutcomeSuperseded})
			return
		}

		a.setState(models.StateClosed)
		reason := outcome.reason

		switch {
		case reason == models.CloseLoggedOut:
			a.log().Warnln("Remote reported logged out; terminating attempt")
			a.purge()
			a.record(models.AttemptRecord{Outcome: models.OutcomeLoggedOut})
			return

		case reason.Transient():
			wait, ok := a.reconnects.Next(reason)
			if !ok {
				a.log().WithError(models.ErrConnectionExhausted).WithFields(logrus.Fields{
					"reconnects": a.reconnects.Attempts(),
				}).Errorln("Terminating attempt")
				a.purge()
				a.record(models.AttemptRecord{Outcome: models.OutcomeExhausted})
				return
			}

			a.log().WithFields(logrus.Fields{
				"reason": reason.String(),
				"wait":   wait.String(),
			}).Infoln("Transient close; reopening session")

			select {
			case <-time.After(wait):
			case <-a.cancel:
				a.log().Infoln("Attempt superseded by a newer request; terminating")
				a.record(models.AttemptRecord{Outcome: models.OutcomeSuperseded})
				return
			}

			// The session directory is deliberately kept: the retry
			// resumes the in-progress credential state.
			next, err := a.dial(ctx)
			if err != nil {
				a.log().WithError(err).Errorln("Failed to reopen session")
				a.purge()
				a.record(models.AttemptRecord{Outcome: models.OutcomeFatal})
				return
			}
			client = next
			a.setState(models.StateAwaitingPairing)

			if !client.Registered() {
				// A reopened handle invalidates the previous code. The
				// response is long gone, so the fresh code is only
				// observable in logs.
				if _, err := a.requestPairingCode(ctx, client); err != nil {
					a.logError(err, "Failed to refresh pairing code after reopen")
				}
			}

		default:
			a.log().WithFields(logrus.Fields{
				"reason": reason.String(),
			}).Errorln("Unrecoverable close; terminating attempt")
			a.purge()
			a.record(models.AttemptRecord{Outcome: models.OutcomeFatal})
			return
		}
	}
}

// consumeOutcome is what one drain of the event stream produced: a
// delivery outcome (the session reached open), a close reason, or a
// takeover by a newer request.
type consumeOutcome struct {
	delivered  *models.DeliveryOutcome
	reason     models.CloseReason
	superseded bool
}

// consume drains events until the session opens and delivery completes,
// the connection closes, or the attempt is superseded.
func (a *attempt) consume(ctx context.Context, client wire.Client) consumeOutcome {

	for {
		var event wire.Event
		var ok bool

		select {
		case event, ok = <-client.Events():
			if !ok {
				// Stream ended without a close event; treat as a lost
				// connection.
				return consumeOutcome{reason: models.CloseConnectionLost}
			}
		case <-a.cancel:
			return consumeOutcome{superseded: true}
		}

		switch event.Kind {

		case wire.EventOpening:
			a.log().Debugln("Session connecting")

		case wire.EventQRAvailable:
			// QR pairing is not used here; the code path is the
			// pairing code. Logged for operators only.
			a.log().Debugln("QR code available")

		case wire.EventNewLogin:
			a.log().Infoln("New login registered")

		case wire.EventCredsUpdated:
			if len(event.Credentials) > 0 {
				if err := a.controller.store.WriteCredentialFile(a.dir, event.Credentials); err != nil {
					a.log().WithError(err).Warnln("Failed to persist updated credentials")
				}
			}

		case wire.EventOpen:
			a.setState(models.StateOpen)
			a.log().Infoln("Session open; delivering credentials")
			outcome := a.deliver(ctx, client)
			return consumeOutcome{delivered: &outcome}

		case wire.EventClosed:
			reason := models.ClassifyCloseStatus(event.StatusCode, event.RestartRequired)
			a.log().WithFields(logrus.Fields{
				"statusCode": event.StatusCode,
				"reason":     reason.String(),
				"message":    event.Message,
			}).Infoln("Session closed")
			return consumeOutcome{reason: reason}
		}
	}
}

// deliver runs the credential delivery sequence and purges the session
// directory afterwards whatever the result. Credential material never
// outlives the first delivery attempt.
func (a *attempt) deliver(ctx context.Context, client wire.Client) models.DeliveryOutcome {

	creds, err := a.controller.store.ReadCredentialFile(a.dir)
	if err != nil {
		a.logError(err, "Failed to read credential bundle for delivery")
		a.controller.sequencer.NotifyFailure(ctx, client, a.number)
		return models.DeliveryOutcome{
			Sends: []models.SendResult{{
				Label:     "credentials",
				Error:     err.Error(),
				Timestamp: time.Now().UTC(),
			}},
		}
	}

	return a.controller.sequencer.Deliver(ctx, client, a.number, creds)
}

// finish settles a completed delivery: wait for in-flight acks, purge,
// record.
func (a *attempt) finish(outcome models.DeliveryOutcome) {

	time.Sleep(a.controller.cfg.Pairing.CleanupDelay)
	a.purge()
	a.setState(models.StateClosed)

	record := models.AttemptRecord{
		Outcome:   models.OutcomeDelivered,
		Delivered: outcome.Delivered,
	}

	if !outcome.Delivered {
		record.Outcome = models.OutcomeDeliveryFailed
		a.log().WithError(models.ErrDelivery).WithFields(logrus.Fields{
			"sends": len(outcome.Sends),
		}).Warnln("Credential delivery incomplete")
	} else {
		a.log().Infoln("Pairing attempt completed")
	}

	a.record(record)
}

func (a *attempt) purge() {
	a.controller.store.Cleanup(context.Background(), a.dir)
}

func (a *attempt) record(record models.AttemptRecord) {

	if a.controller.recorder == nil {
		return
	}

	record.RequestID = a.requestID
	record.Number = a.number
	record.CodeIssued = a.codeIssued
	record.StartedAt = a.startedAt
	record.FinishedAt = time.Now().UTC()
	if a.reconnects != nil {
		record.Reconnects = a.reconnects.Attempts()
	}

	if err := a.controller.recorder.Record(context.Background(), record); err != nil {
		a.log().WithError(err).Warnln("Failed to record attempt outcome")
	}
}

func (a *attempt) logError(err error, message string) {

	if a.controller.isBenign(err) {
		a.log().WithError(err).Debugln(message)
		return
	}

	a.log().WithError(err).Errorln(message)
}
