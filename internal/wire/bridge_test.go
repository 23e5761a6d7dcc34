package wire

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway is an in-process stand-in for the protocol gateway: REST
// endpoints for session lifecycle and a websocket event stream fed by
// the test through pushEvent.
type fakeGateway struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	registered bool
	destroyed  []string
	codes      map[string]string
	streamConn *websocket.Conn
	streamUp   chan struct{}
}

func newFakeGateway(t *testing.T) *fakeGateway {

	g := &fakeGateway{
		codes:    map[string]string{},
		streamUp: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ProtocolVersion{Primary: 2, Secondary: 3000, Tertiary: 1023223821})
	})
	mux.HandleFunc("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.mu.Lock()
		registered := g.registered
		g.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(createSessionResponse{SessionID: "sess-1", Registered: registered})
	})
	mux.HandleFunc("/v1/sessions/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
		parts := strings.SplitN(rest, "/", 2)
		sessionID := parts[0]

		if len(parts) == 1 {
			if r.Method == http.MethodDelete {
				g.mu.Lock()
				g.destroyed = append(g.destroyed, sessionID)
				g.mu.Unlock()
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch parts[1] {
		case "events":
			conn, err := g.upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			g.mu.Lock()
			g.streamConn = conn
			g.mu.Unlock()
			close(g.streamUp)
		case "pairing-code":
			var req pairingCodeRequest
			json.NewDecoder(r.Body).Decode(&req)
			g.mu.Lock()
			code := g.codes[req.Identifier]
			g.mu.Unlock()
			if len(code) == 0 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(pairingCodeResponse{Code: code})
		case "messages":
			var req sendMessageRequest
			json.NewDecoder(r.Body).Decode(&req)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(Receipt{MessageID: "msg-" + req.Target, Timestamp: time.Now().UTC()})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)

	return g
}

func (g *fakeGateway) pushEvent(t *testing.T, event Event) {

	select {
	case <-g.streamUp:
	case <-time.After(2 * time.Second):
		t.Fatal("event stream never attached")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	require.NoError(t, g.streamConn.WriteJSON(event))
}

func (g *fakeGateway) destroyedSessions() []string {

	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.destroyed...)
}

func TestBridgeDialerDialStreamsEvents(t *testing.T) {

	gateway := newFakeGateway(t)
	dialer := NewBridgeDialer(gateway.server.URL, "")

	client, err := dialer.Dial(context.Background(), SessionOptions{
		AuthDir:        t.TempDir(),
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	defer client.Close()

	assert.False(t, client.Registered())

	gateway.pushEvent(t, Event{Kind: EventOpening})
	gateway.pushEvent(t, Event{Kind: EventOpen})

	first := <-client.Events()
	assert.Equal(t, EventOpening, first.Kind)

	second := <-client.Events()
	assert.Equal(t, EventOpen, second.Kind)

	// An open connection means the credential set is registered.
	assert.True(t, client.Registered())
}

func TestBridgeClientCloseDestroysSession(t *testing.T) {

	gateway := newFakeGateway(t)
	dialer := NewBridgeDialer(gateway.server.URL, "")

	client, err := dialer.Dial(context.Background(), SessionOptions{AuthDir: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	assert.Equal(t, []string{"sess-1"}, gateway.destroyedSessions())

	// The event channel closes once the stream is torn down.
	select {
	case _, open := <-client.Events():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("event channel never closed")
	}
}

func TestBridgeClientRequestPairingCode(t *testing.T) {

	gateway := newFakeGateway(t)
	gateway.codes["15551234567"] = "WXYZ9876"

	dialer := NewBridgeDialer(gateway.server.URL, "secret")

	client, err := dialer.Dial(context.Background(), SessionOptions{AuthDir: t.TempDir()})
	require.NoError(t, err)
	defer client.Close()

	code, err := client.RequestPairingCode(context.Background(), "15551234567")
	require.NoError(t, err)
	assert.Equal(t, "WXYZ9876", code)

	_, err = client.RequestPairingCode(context.Background(), "10000000000")
	assert.Error(t, err)
}

func TestBridgeClientSendMessage(t *testing.T) {

	gateway := newFakeGateway(t)
	dialer := NewBridgeDialer(gateway.server.URL, "")

	client, err := dialer.Dial(context.Background(), SessionOptions{AuthDir: t.TempDir()})
	require.NoError(t, err)
	defer client.Close()

	receipt, err := client.SendMessage(context.Background(), "15551234567", Payload{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "msg-15551234567", receipt.MessageID)
}

func TestBridgeDialerFetchLatestVersion(t *testing.T) {

	gateway := newFakeGateway(t)
	dialer := NewBridgeDialer(gateway.server.URL, "")

	version, err := dialer.FetchLatestVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProtocolVersion{Primary: 2, Secondary: 3000, Tertiary: 1023223821}, version)
}

func TestBridgeDialerDialGatewayError(t *testing.T) {

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	dialer := NewBridgeDialer(server.URL, "")
	dialer.rest.SetRetryCount(0)

	_, err := dialer.Dial(context.Background(), SessionOptions{AuthDir: t.TempDir()})
	assert.Error(t, err)
}
