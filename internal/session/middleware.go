// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"net/http"

	"github.com/taibuivan/averi/internal/identity"
	"github.com/taibuivan/averi/internal/platform/apperr"
	"github.com/taibuivan/averi/internal/platform/constants"
	"github.com/taibuivan/averi/internal/platform/ctxkey"
	"github.com/taibuivan/averi/internal/platform/respond"
)

// Authenticate resolves the session cookie and attaches the identity digest
// to the request context.
//
// # Behavior
//
// Resolution never rejects: a missing cookie, an unknown session, or a store
// fault all continue the request as anonymous. Rejection is the job of
// [RequireAuth] on the routes that need it.
func Authenticate(binding *Binding) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			cookie, err := request.Cookie(constants.SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(writer, request)
				return
			}

			digest := binding.Resolve(request.Context(), cookie.Value)
			if digest == nil {
				next.ServeHTTP(writer, request)
				return
			}

			ctx := context.WithValue(request.Context(), ctxkey.KeyIdentity, digest)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that reach it without a resolved identity.
//
// It must be mounted after [Authenticate] in the middleware chain.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if identity.DigestFromContext(request.Context()) == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}
