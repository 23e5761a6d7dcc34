package session

import (
	"context"
	"sync"
	"time"

	"github.com/pairforge/agent/internal/config"
	"github.com/pairforge/agent/internal/models"
	"github.com/pairforge/agent/internal/wire"
)

// fakeClient scripts one protocol session handle. Events are pre-loaded
// or pushed while the controller drains the channel.
type fakeClient struct {
	mu         sync.Mutex
	events       chan wire.Event
	registered   bool
	code         string
	codeErr      error
	codeRequests int
	sendErrs   map[string]error // payload label -> error to inject
	sent       []wire.Payload
	closed     bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		events: make(chan wire.Event, 32),
		code:   "ABCD1234",
	}
}

func (f *fakeClient) push(events ...wire.Event) {
	for _, event := range events {
		f.events <- event
	}
}

func (f *fakeClient) Events() <-chan wire.Event {
	return f.events
}

func (f *fakeClient) Registered() bool {
	return f.registered
}

func (f *fakeClient) RequestPairingCode(ctx context.Context, identifier string) (string, error) {
	f.mu.Lock()
	f.codeRequests++
	f.mu.Unlock()

	if f.codeErr != nil {
		return "", f.codeErr
	}
	return f.code, nil
}

func (f *fakeClient) codeRequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codeRequests
}

func payloadLabel(payload wire.Payload) string {
	switch {
	case payload.Document != nil:
		return "document"
	case payload.Image != nil:
		return "image"
	default:
		return "text"
	}
}

func (f *fakeClient) SendMessage(ctx context.Context, target string, payload wire.Payload) (*wire.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.sendErrs[payloadLabel(payload)]; ok && err != nil {
		return nil, err
	}

	f.sent = append(f.sent, payload)
	return &wire.Receipt{MessageID: "msg", Timestamp: time.Now()}, nil
}

func (f *fakeClient) sentPayloads() []wire.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]wire.Payload, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

// fakeDialer hands out scripted clients in order and can observe the
// session directory at each dial.
type fakeDialer struct {
	mu      sync.Mutex
	clients []*fakeClient
	dials   int
	dialErr error
	onDial  func(opts wire.SessionOptions)
}

func (d *fakeDialer) Dial(ctx context.Context, opts wire.SessionOptions) (wire.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.onDial != nil {
		d.onDial(opts)
	}
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	if d.dials >= len(d.clients) {
		return nil, context.DeadlineExceeded
	}

	client := d.clients[d.dials]
	d.dials++
	return client, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// fakeRecorder collects attempt records.
type fakeRecorder struct {
	mu      sync.Mutex
	records []models.AttemptRecord
}

func (r *fakeRecorder) Record(ctx context.Context, record models.AttemptRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *fakeRecorder) all() []models.AttemptRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.AttemptRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *fakeRecorder) last() (models.AttemptRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return models.AttemptRecord{}, false
	}
	return r.records[len(r.records)-1], true
}

// testConfig returns defaults with all waits shrunk so lifecycle tests
// run in milliseconds.
func testConfig(storagePath string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pairing.StoragePath = storagePath
	cfg.Pairing.SettleDelay = time.Millisecond
	cfg.Pairing.CleanupDelay = time.Millisecond
	cfg.Pairing.RestartDelay = time.Millisecond
	cfg.Pairing.ReconnectDelay = time.Millisecond
	cfg.Pairing.MaxReconnects = 3
	cfg.Delivery.Pause = time.Millisecond
	return cfg
}

func waitDone(p *Pairing, timeout time.Duration) bool {
	select {
	case <-p.Done():
		return true
	case <-time.After(timeout):
		return false
	}
}
