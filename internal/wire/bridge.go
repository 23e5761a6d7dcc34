package wire

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// BridgeDialer opens protocol sessions through an external gateway
// process that owns the actual messaging-service connection. Commands
// go over REST; connection-state and credential events arrive on a
// websocket stream per session.
type BridgeDialer struct {
	endpoint string
	rest     *resty.Client
	ws       websocket.Dialer
}

// NewBridgeDialer returns a dialer for the gateway at endpoint, e.g.
// "http://127.0.0.1:3000". An optional apiKey is sent as a bearer token.
func NewBridgeDialer(endpoint string, apiKey string) *BridgeDialer {

	rest := resty.New().
		SetBaseURL(endpoint).
		SetRetryCount(2).
		SetRetryWaitTime(250 * time.Millisecond)

	if len(apiKey) > 0 {
		rest.SetAuthToken(apiKey)
	}

	return &BridgeDialer{
		endpoint: endpoint,
		rest:     rest,
		ws: websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// FetchLatestVersion asks the gateway which protocol revision to
// advertise. Failures fall back to the gateway default version.
func (d *BridgeDialer) FetchLatestVersion(ctx context.Context) (ProtocolVersion, error) {

	var version ProtocolVersion

	resp, err := d.rest.R().
		SetContext(ctx).
		SetResult(&version).
		Get("/v1/version")

	if err != nil {
		return ProtocolVersion{}, err
	}
	if resp.IsError() {
		return ProtocolVersion{}, fmt.Errorf("version lookup returned %s", resp.Status())
	}

	return version, nil
}

type createSessionRequest struct {
	AuthDir           string          `json:"auth_dir"`
	Browser           string          `json:"browser,omitempty"`
	ConnectTimeoutMs  int64           `json:"connect_timeout_ms,omitempty"`
	KeepAliveMs       int64           `json:"keep_alive_ms,omitempty"`
	Version           ProtocolVersion `json:"version,omitzero"`
	MarkOnlineOnOpen  bool            `json:"mark_online_on_open"`
	EmitSessionEvents bool            `json:"emit_session_events"`
}

type createSessionResponse struct {
	SessionID  string `json:"session_id"`
	Registered bool   `json:"registered"`
}

// Dial creates a gateway session bound to opts.AuthDir and attaches to
// its event stream. The returned client owns both the session and the
// stream.
func (d *BridgeDialer) Dial(ctx context.Context, opts SessionOptions) (Client, error) {

	dialCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	var created createSessionResponse

	resp, err := d.rest.R().
		SetContext(dialCtx).
		SetBody(createSessionRequest{
			AuthDir:           opts.AuthDir,
			Browser:           opts.BrowserName,
			ConnectTimeoutMs:  opts.ConnectTimeout.Milliseconds(),
			KeepAliveMs:       opts.KeepAliveInterval.Milliseconds(),
			Version:           opts.Version,
			EmitSessionEvents: true,
		}).
		SetResult(&created).
		Post("/v1/sessions")

	if err != nil {
		return nil, fmt.Errorf("failed to create gateway session: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("gateway session create returned %s", resp.Status())
	}

	conn, err := d.dialEvents(dialCtx, created.SessionID)
	if err != nil {
		// Session without an event stream is useless; release it.
		d.destroySession(created.SessionID)
		return nil, fmt.Errorf("failed to attach event stream: %w", err)
	}

	client := &bridgeClient{
		dialer:    d,
		sessionID: created.SessionID,
		conn:      conn,
		events:    make(chan Event, 16),
		closed:    make(chan struct{}),
	}
	client.registered.Store(created.Registered)

	go client.readEvents()

	return client, nil
}

func (d *BridgeDialer) dialEvents(ctx context.Context, sessionID string) (*websocket.Conn, error) {

	wsURL, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, err
	}

	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = fmt.Sprintf("/v1/sessions/%s/events", sessionID)

	conn, _, err := d.ws.DialContext(ctx, wsURL.String(), nil)
	return conn, err
}

func (d *BridgeDialer) destroySession(sessionID string) {

	resp, err := d.rest.R().
		Delete(fmt.Sprintf("/v1/sessions/%s", sessionID))

	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"sessionId": sessionID,
		}).Debugln("Failed to release gateway session")
		return
	}

	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		logrus.WithFields(logrus.Fields{
			"sessionId": sessionID,
			"status":    resp.Status(),
		}).Debugln("Gateway session release returned error status")
	}
}

// bridgeClient is one live gateway session plus its event stream.
type bridgeClient struct {
	dialer     *BridgeDialer
	sessionID  string
	registered atomic.Bool
	conn       *websocket.Conn
	events     chan Event
	closed     chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (c *bridgeClient) Events() <-chan Event {
	return c.events
}

func (c *bridgeClient) Registered() bool {
	return c.registered.Load()
}

func (c *bridgeClient) readEvents() {

	defer close(c.events)

	for {
		var event Event
		if err := c.conn.ReadJSON(&event); err != nil {
			// Stream gone. The consumer sees the channel close and
			// classifies the disconnect from the last closed event,
			// or as a lost connection if none arrived.
			logrus.WithError(err).WithFields(logrus.Fields{
				"sessionId": c.sessionID,
			}).Debugln("Gateway event stream ended")
			return
		}

		if event.Kind == EventNewLogin || event.Kind == EventOpen {
			c.registered.Store(true)
		}

		select {
		case c.events <- event:
		case <-c.closed:
			return
		}
	}
}

type pairingCodeRequest struct {
	Identifier string `json:"identifier"`
}

type pairingCodeResponse struct {
	Code string `json:"code"`
}

func (c *bridgeClient) RequestPairingCode(ctx context.Context, identifier string) (string, error) {

	var issued pairingCodeResponse

	resp, err := c.dialer.rest.R().
		SetContext(ctx).
		SetBody(pairingCodeRequest{Identifier: identifier}).
		SetResult(&issued).
		Post(fmt.Sprintf("/v1/sessions/%s/pairing-code", c.sessionID))

	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("pairing code request returned %s", resp.Status())
	}
	if len(issued.Code) == 0 {
		return "", fmt.Errorf("gateway returned an empty pairing code")
	}

	return issued.Code, nil
}

type sendMessageRequest struct {
	Target  string  `json:"target"`
	Payload Payload `json:"payload"`
}

func (c *bridgeClient) SendMessage(ctx context.Context, target string, payload Payload) (*Receipt, error) {

	var receipt Receipt

	resp, err := c.dialer.rest.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{Target: target, Payload: payload}).
		SetResult(&receipt).
		Post(fmt.Sprintf("/v1/sessions/%s/messages", c.sessionID))

	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("message send returned %s", resp.Status())
	}

	return &receipt, nil
}

func (c *bridgeClient) Close() error {

	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.conn.Close()
		c.dialer.destroySession(c.sessionID)
	})

	return c.closeErr
}
