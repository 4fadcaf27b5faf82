// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package realtime_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/averi/internal/identity"
	"github.com/taibuivan/averi/internal/platform/constants"
	"github.com/taibuivan/averi/internal/realtime"
	"github.com/taibuivan/averi/internal/session"
)

// memoryStore is an in-memory [session.Store] for gateway tests.
type memoryStore struct {
	mu       sync.Mutex
	bindings map[string]*identity.Digest
}

func newMemoryStore() *memoryStore {
	return &memoryStore{bindings: make(map[string]*identity.Digest)}
}

func (store *memoryStore) Get(_ context.Context, id string) (*identity.Digest, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.bindings[id], nil
}

func (store *memoryStore) Set(_ context.Context, id string, digest *identity.Digest, _ time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.bindings[id] = digest
	return nil
}

func (store *memoryStore) Delete(_ context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.bindings, id)
	return nil
}

// dial opens a client connection against the test server, optionally sending
// a session cookie.
func dial(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	options := &websocket.DialOptions{}
	if sessionID != "" {
		header := http.Header{}
		header.Set("Cookie", constants.SessionCookieName+"="+sessionID)
		options.HTTPHeader = header
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, wsURL, options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	return conn
}

// roundTrip sends a frame and reads the reply.
func roundTrip(t *testing.T, conn *websocket.Conn, frame realtime.Envelope) realtime.Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, wsjson.Write(ctx, conn, frame))

	var reply realtime.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &reply))
	return reply
}

func newTestGateway(t *testing.T) (*httptest.Server, *session.Binding) {
	t.Helper()

	binding := session.NewBinding(newMemoryStore(), nil, slog.Default())
	gateway := realtime.NewGateway(binding, slog.Default(), nil)

	server := httptest.NewServer(gateway)
	t.Cleanup(server.Close)

	return server, binding
}

/*
TestGateway_AuthenticatedConnection verifies that a connection carrying a
valid session cookie is greeted by name and reports its identity.
*/
func TestGateway_AuthenticatedConnection(t *testing.T) {
	server, binding := newTestGateway(t)

	digest := &identity.Digest{ID: "user-1", Name: "Ada"}
	sessionID, err := binding.Establish(context.Background(), digest)
	require.NoError(t, err)

	conn := dial(t, server, sessionID)

	pong := roundTrip(t, conn, realtime.Envelope{Type: "ping"})
	assert.Equal(t, "pong", pong.Type)
	assert.Equal(t, "hello, Ada", pong.Message)
	require.NotNil(t, pong.User)
	assert.Equal(t, "user-1", pong.User.ID)

	whoami := roundTrip(t, conn, realtime.Envelope{Type: "whoami"})
	assert.Equal(t, "whoami", whoami.Type)
	require.NotNil(t, whoami.User)
	assert.Equal(t, "Ada", whoami.User.Name)
}

/*
TestGateway_AnonymousConnection verifies that missing and unknown session
cookies degrade to an anonymous connection instead of a rejected upgrade.
*/
func TestGateway_AnonymousConnection(t *testing.T) {
	server, _ := newTestGateway(t)

	tests := []struct {
		name      string
		sessionID string
	}{
		{"no_cookie", ""},
		{"unknown_session", "deadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, server, tt.sessionID)

			pong := roundTrip(t, conn, realtime.Envelope{Type: "ping"})
			assert.Equal(t, "pong", pong.Type)
			assert.Equal(t, "hello, unauthenticated user", pong.Message)
			assert.Nil(t, pong.User)

			whoami := roundTrip(t, conn, realtime.Envelope{Type: "whoami"})
			assert.Equal(t, "anonymous", whoami.Message)
			assert.Nil(t, whoami.User)
		})
	}
}

/*
TestGateway_SharedSessionTruth verifies cross-transport parity: the same
session ID that authenticates HTTP requests authenticates the socket, and a
cleared session stops resolving for new connections.
*/
func TestGateway_SharedSessionTruth(t *testing.T) {
	server, binding := newTestGateway(t)
	ctx := context.Background()

	digest := &identity.Digest{ID: "user-2", Name: "Ben"}
	sessionID, err := binding.Establish(ctx, digest)
	require.NoError(t, err)

	// The signed-cookie form of the same ID resolves identically.
	conn := dial(t, server, "s:"+sessionID+".signature")
	whoami := roundTrip(t, conn, realtime.Envelope{Type: "whoami"})
	require.NotNil(t, whoami.User)
	assert.Equal(t, "user-2", whoami.User.ID)

	// After logout the same cookie yields an anonymous connection.
	require.NoError(t, binding.Clear(ctx, sessionID))

	anonymous := dial(t, server, sessionID)
	whoami = roundTrip(t, anonymous, realtime.Envelope{Type: "whoami"})
	assert.Nil(t, whoami.User)
	assert.Equal(t, "anonymous", whoami.Message)
}

/*
TestGateway_UnsupportedType checks the error frame for unknown operations.
*/
func TestGateway_UnsupportedType(t *testing.T) {
	server, _ := newTestGateway(t)

	conn := dial(t, server, "")
	reply := roundTrip(t, conn, realtime.Envelope{Type: "subscribe"})

	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, reply.Message, "subscribe")
}
