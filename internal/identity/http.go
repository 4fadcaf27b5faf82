// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/averi/internal/platform/apperr"
	"github.com/taibuivan/averi/internal/platform/constants"
	requestutil "github.com/taibuivan/averi/internal/platform/request"
	"github.com/taibuivan/averi/internal/platform/respond"
	"github.com/taibuivan/averi/internal/platform/validate"
)

// SessionBinder abstracts the session store from the HTTP layer.
//
// Implemented by session.Binding. The indirection keeps the dependency flow
// one-way: identity never imports the session package.
type SessionBinder interface {
	// Establish creates a new session bound to the digest and returns its ID.
	Establish(ctx context.Context, digest *Digest) (string, error)

	// Clear removes the session identified by the raw cookie value.
	Clear(ctx context.Context, rawID string) error
}

// Handler implements the identity HTTP endpoints.
//
// # Scope
//
// This handler manages the account lifecycle entry points (registration,
// email confirmation, login/logout) and the authenticated profile echo.
type Handler struct {
	authService *Service
	sessions    SessionBinder
}

// NewHandler constructs a new [Handler] with its dependencies.
func NewHandler(service *Service, sessions SessionBinder) *Handler {
	return &Handler{authService: service, sessions: sessions}
}

// Routes returns a [chi.Router] configured with identity routes.
//
// # Endpoints
//   - POST /register        : Creates a new unverified account.
//   - GET  /confirm/{token} : Consumes a verification token.
//   - POST /login           : Authenticates and establishes a session cookie.
//   - POST /logout          : Destroys the current session.
//   - GET  /me              : Echoes the authenticated identity digest.
func (handler *Handler) Routes(requireAuth func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()

	router.Post("/register", handler.register)
	router.Get("/confirm/{token}", handler.confirm)
	router.Post("/login", handler.login)
	router.Post("/logout", handler.logout)

	router.Group(func(protected chi.Router) {
		protected.Use(requireAuth)
		protected.Get("/me", handler.me)
	})

	return router
}

// registerRequest represents the JSON payload expected for account creation.
type registerRequest struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	Password       string `json:"password"`
	RepeatPassword string `json:"repeat_password"`
}

// register handles POST /api/v1/auth/register requests.
//
// # Returns
//   - Writes HTTP 201 Created on success with the pending account.
//   - Writes HTTP 400 Bad Request if validation rules fail.
//   - Writes HTTP 409 Conflict if the email is taken.
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input registerRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 2. Boundary Validation ────────────────────────────────────────────

	validator := &validate.Validator{}
	validator.
		Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldName, input.Name).
		MaxLen(FieldName, input.Name, 100).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, constants.MinPasswordLength).
		Equals(FieldRepeatPassword, input.RepeatPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Application Execution ──────────────────────────────────────────

	user, err := handler.authService.Register(request.Context(), RegisterInput{
		Email:    input.Email,
		Name:     input.Name,
		Password: input.Password,
	})

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 4. Presentation Output ────────────────────────────────────────────

	respond.Created(writer, user)
}

// confirm handles GET /api/v1/auth/confirm/{token} requests.
//
// # Returns
//   - Writes HTTP 200 OK when the token verified an account.
//   - Writes HTTP 404 Not Found for unknown or already consumed tokens.
func (handler *Handler) confirm(writer http.ResponseWriter, request *http.Request) {
	token := requestutil.Param(request, "token")
	if token == "" {
		respond.Error(writer, request, apperr.NotFound("Verification token"))
		return
	}

	user, err := handler.authService.Verify(request.Context(), token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// loginRequest represents the JSON payload expected for authentication.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// login handles POST /api/v1/auth/login requests.
//
// # Returns
//   - Writes HTTP 200 OK with the identity digest and sets the session cookie.
//   - Writes HTTP 401 Unauthorized for every credential failure.
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 2. Boundary Validation ────────────────────────────────────────────

	validator := &validate.Validator{}
	validator.
		Required(FieldEmail, input.Email).
		Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Application Execution ──────────────────────────────────────────

	digest, err := handler.authService.Login(request.Context(), LoginInput{
		Email:    input.Email,
		Password: input.Password,
	})

	if err != nil {
		// Returns HTTP 401 without leaking the reason (wrong password vs
		// unknown email vs unverified account).
		respond.Error(writer, request, err)
		return
	}

	// ── 4. Session Establishment ──────────────────────────────────────────

	sessionID, err := handler.sessions.Establish(request.Context(), digest)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	http.SetCookie(writer, sessionCookie(request, sessionID, constants.SessionTTL))

	// ── 5. Presentation Output ────────────────────────────────────────────

	respond.OK(writer, digest)
}

// logout handles POST /api/v1/auth/logout requests.
//
// Logout is idempotent: a missing or unknown cookie still yields 204.
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if cookie, err := request.Cookie(constants.SessionCookieName); err == nil && cookie.Value != "" {
		if err := handler.sessions.Clear(request.Context(), cookie.Value); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	// Expire the cookie regardless of whether a session existed.
	http.SetCookie(writer, sessionCookie(request, "", -time.Hour))

	respond.NoContent(writer)
}

// me handles GET /api/v1/auth/me requests.
//
// The route is guarded by the session middleware, so a digest is always
// present by the time this handler runs.
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	digest := DigestFromContext(request.Context())
	if digest == nil {
		respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
		return
	}

	respond.OK(writer, digest)
}

// sessionCookie builds the session cookie with consistent security attributes.
func sessionCookie(request *http.Request, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   request.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
}
