// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/averi/internal/identity"
	"github.com/taibuivan/averi/internal/platform/constants"
	"github.com/taibuivan/averi/internal/platform/ctxkey"
)

// stubBinder is an in-memory [identity.SessionBinder].
type stubBinder struct {
	mu       sync.Mutex
	sessions map[string]*identity.Digest
	nextID   int
}

func newStubBinder() *stubBinder {
	return &stubBinder{sessions: make(map[string]*identity.Digest)}
}

func (binder *stubBinder) Establish(_ context.Context, digest *identity.Digest) (string, error) {
	binder.mu.Lock()
	defer binder.mu.Unlock()
	binder.nextID++
	id := strings.Repeat("a", binder.nextID) // distinct, predictable IDs
	binder.sessions[id] = digest
	return id, nil
}

func (binder *stubBinder) Clear(_ context.Context, rawID string) error {
	binder.mu.Lock()
	defer binder.mu.Unlock()
	delete(binder.sessions, rawID)
	return nil
}

// passthroughAuth satisfies the protected-route wiring without a real
// session middleware.
func passthroughAuth(next http.Handler) http.Handler {
	return next
}

func newTestHandler(t *testing.T) (*identity.Handler, *handlerFixture) {
	t.Helper()
	service, repository, _ := newTestService(testParams)
	binder := newStubBinder()
	fixture := &handlerFixture{service: service, repository: repository, binder: binder}
	return identity.NewHandler(service, binder), fixture
}

// handlerFixture bundles the collaborators behind a handler under test.
type handlerFixture struct {
	service    *identity.Service
	repository *memoryRepository
	binder     *stubBinder
}

/*
TestHandler_Register_Validation walks the field-level validation failures.
*/
func TestHandler_Register_Validation(t *testing.T) {
	handler, _ := newTestHandler(t)
	router := handler.Routes(passthroughAuth)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing_email", `{"name":"A","password":"hunter2hunter2","repeat_password":"hunter2hunter2"}`, "email"},
		{"malformed_email", `{"email":"not-an-email","name":"A","password":"hunter2hunter2","repeat_password":"hunter2hunter2"}`, "email"},
		{"missing_name", `{"email":"a@example.com","password":"hunter2hunter2","repeat_password":"hunter2hunter2"}`, "name"},
		{"short_password", `{"email":"a@example.com","name":"A","password":"short","repeat_password":"short"}`, "password"},
		{"mismatched_repeat", `{"email":"a@example.com","name":"A","password":"hunter2hunter2","repeat_password":"different-value"}`, "repeat_password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(tt.body))
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, request)

			require.Equal(t, http.StatusBadRequest, recorder.Code)

			var envelope struct {
				Code    string `json:"code"`
				Details []struct {
					Field string `json:"field"`
				} `json:"details"`
			}
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
			assert.Equal(t, "VALIDATION_ERROR", envelope.Code)

			found := false
			for _, detail := range envelope.Details {
				if detail.Field == tt.field {
					found = true
				}
			}
			assert.True(t, found, "expected a detail for field %q", tt.field)
		})
	}
}

/*
TestHandler_Register_InvalidJSON rejects a non-JSON body with 400.
*/
func TestHandler_Register_InvalidJSON(t *testing.T) {
	handler, _ := newTestHandler(t)
	router := handler.Routes(passthroughAuth)

	request := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader("not json"))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

/*
TestHandler_LoginFlow registers, confirms, and logs in over HTTP, asserting
the session cookie attributes and the digest payload.
*/
func TestHandler_LoginFlow(t *testing.T) {
	handler, fixture := newTestHandler(t)
	router := handler.Routes(passthroughAuth)

	// ── Register ──
	body := `{"email":"hank@example.com","name":"Hank","password":"hunter2hunter2","repeat_password":"hunter2hunter2"}`
	request := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusCreated, recorder.Code)

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)

	// ── Login before confirmation is rejected ──
	login := `{"email":"hank@example.com","password":"hunter2hunter2"}`
	request = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(login))
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	// ── Confirm via the mailed token ──
	stored, err := fixture.repository.FindByID(context.Background(), created.Data.ID)
	require.NoError(t, err)
	request = httptest.NewRequest(http.MethodGet, "/confirm/"+stored.VerificationToken, nil)
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code)

	// ── Login succeeds and sets the session cookie ──
	request = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(login))
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code)
	fixture.service.Wait()

	var resolved struct {
		Data identity.Digest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resolved))
	assert.Equal(t, created.Data.ID, resolved.Data.ID)
	assert.Equal(t, "Hank", resolved.Data.Name)

	cookies := recorder.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, constants.SessionCookieName, cookie.Name)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)

	// The binder holds the digest under the issued ID.
	fixture.binder.mu.Lock()
	digest, ok := fixture.binder.sessions[cookie.Value]
	fixture.binder.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, created.Data.ID, digest.ID)

	// ── Logout clears the binding and expires the cookie ──
	request = httptest.NewRequest(http.MethodPost, "/logout", nil)
	request.AddCookie(cookie)
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusNoContent, recorder.Code)

	fixture.binder.mu.Lock()
	_, stillThere := fixture.binder.sessions[cookie.Value]
	fixture.binder.mu.Unlock()
	assert.False(t, stillThere)

	expired := recorder.Result().Cookies()
	require.Len(t, expired, 1)
	assert.Less(t, expired[0].MaxAge, 0)
}

/*
TestHandler_Logout_Idempotent confirms logout without a cookie still yields 204.
*/
func TestHandler_Logout_Idempotent(t *testing.T) {
	handler, _ := newTestHandler(t)
	router := handler.Routes(passthroughAuth)

	request := httptest.NewRequest(http.MethodPost, "/logout", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

/*
TestHandler_Me echoes the digest placed in the request context and rejects
requests without one.
*/
func TestHandler_Me(t *testing.T) {
	handler, _ := newTestHandler(t)
	router := handler.Routes(passthroughAuth)

	// Anonymous request: the passthrough middleware does not inject a digest.
	request := httptest.NewRequest(http.MethodGet, "/me", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	// Authenticated request: digest present in the context.
	digest := &identity.Digest{ID: "user-1", Name: "Ivy"}
	request = httptest.NewRequest(http.MethodGet, "/me", nil)
	request = request.WithContext(context.WithValue(request.Context(), ctxkey.KeyIdentity, digest))
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope struct {
		Data identity.Digest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	assert.Equal(t, *digest, envelope.Data)
}
