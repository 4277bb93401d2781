// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

// Package api exposes the auth service over HTTP/JSON.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/sp-platform/user-service/internal/auth"
	"github.com/sp-platform/user-service/pkg/errutil"
)

// Response messages.
const (
	MsgSignedUp   = "User created successfully"
	MsgLoggedIn   = "User login successfully"
	MsgLoggedOut  = "User logout successfully"
	MsgSession    = "Session is active"
	MsgUnexpected = "An unexpected error occurred"
)

// Envelope wraps every response body.
type Envelope struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	Body      any       `json:"body,omitempty"`
}

type errorMapping struct {
	status  int
	message string
}

// errorTable maps error kinds to HTTP statuses. Invalid input carries its own
// field-level message; every other kind uses the fixed text here.
var errorTable = map[auth.Kind]errorMapping{
	auth.KindInvalidInput:       {http.StatusBadRequest, ""},
	auth.KindConflict:           {http.StatusConflict, "Email is already registered"},
	auth.KindInvalidCredentials: {http.StatusUnauthorized, "Invalid email or password"},
	auth.KindInvalidOrExpired:   {http.StatusUnauthorized, "Session is invalid or expired"},
	auth.KindNotFound:           {http.StatusNotFound, "Session not found"},
	auth.KindInternal:           {http.StatusInternalServerError, MsgUnexpected},
}

// errorResponse returns the status and caller-facing message for err.
func errorResponse(err error) (int, string) {
	kind := auth.KindOf(err)
	m, ok := errorTable[kind]
	if !ok {
		m = errorTable[auth.KindInternal]
	}
	if kind == auth.KindInvalidInput {
		return m.status, validationMessage(err)
	}
	return m.status, m.message
}

func validationMessage(err error) string {
	var verrs auth.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs.Error()
	}
	return "invalid request"
}

func (h *Handler) respond(w http.ResponseWriter, status int, message string, body any) {
	env := Envelope{
		Timestamp: h.now().UTC(),
		Status:    status,
		Message:   message,
		Body:      body,
	}
	if err := writeJSON(w, status, env); err != nil {
		h.logger.Error("failed to write response", "status", status, "error", err)
	}
}

// respondError writes the mapped error envelope. Internal errors are logged in
// full here and never reach the caller.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorResponse(err)
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), h.logger, "request failed", err)
	} else {
		h.logger.DebugContext(r.Context(), "request rejected",
			"status", status,
			"kind", auth.KindOf(err).String(),
		)
	}
	h.respond(w, status, message, nil)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return oops.Code("RESPONSE_ENCODE_FAILED").Wrap(err)
	}
	return nil
}
