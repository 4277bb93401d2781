// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/sp-platform/user-service/internal/auth"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// AuthService is the subset of auth.Service the handlers call.
type AuthService interface {
	SignUp(ctx context.Context, req auth.SignUpRequest) (*auth.Account, error)
	LogIn(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
	LogOut(ctx context.Context, token string) error
	CurrentAccount(ctx context.Context, token string) (*auth.Account, *auth.Session, error)
}

// RequestObserver records finished requests. *observability.Metrics implements it.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

// Handler serves the /user routes.
type Handler struct {
	svc      AuthService
	logger   *slog.Logger
	observer RequestObserver
	now      func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// WithObserver records request metrics through o.
func WithObserver(o RequestObserver) HandlerOption {
	return func(h *Handler) { h.observer = o }
}

// WithClock overrides the envelope timestamp source.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a Handler.
func NewHandler(svc AuthService, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, oops.Code("API_HANDLER_INVALID").Errorf("auth service is required")
	}
	h := &Handler{
		svc:    svc,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		return nil, oops.Code("API_HANDLER_INVALID").Errorf("logger is required")
	}
	return h, nil
}

// Routes returns the routed handler wrapped in the middleware chain.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/signup", h.handleSignUp)
	mux.HandleFunc("POST /user/login", h.handleLogIn)
	mux.HandleFunc("POST /user/logout", h.handleLogOut)
	mux.HandleFunc("GET /user/session", h.handleSession)

	// Middleware that replaces the request must sit outside the ones that read
	// r.Pattern, since the mux sets it on the request it receives.
	var next http.Handler = h.recoverer(mux)
	next = h.metrics(next)
	next = h.accessLog(next)
	next = tracing(next)
	return requestID(next)
}

type signUpBody struct {
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	DOB       *string `json:"dob"`
	Password  string  `json:"password"`
}

type logInBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type logOutBody struct {
	Token string `json:"token"`
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Token     string    `json:"token"`
	AccountID string    `json:"accountId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionResponse is the body of GET /user/session.
type SessionResponse struct {
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body signUpBody
	if err := decodeJSON(w, r, &body, false); err != nil {
		h.respondError(w, r, err)
		return
	}

	req := auth.SignUpRequest{
		Email:     body.Email,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Password:  body.Password,
	}
	if body.DOB != nil && strings.TrimSpace(*body.DOB) != "" {
		dob, ok := parseDate(*body.DOB)
		if !ok {
			verrs := auth.ValidateSignUp(req, h.now())
			verrs = append(verrs, auth.FieldError{Field: "dob", Reason: "must be a date in YYYY-MM-DD format"})
			h.respondError(w, r, oops.Code(auth.CodeInvalidInput).Wrap(verrs))
			return
		}
		req.DateOfBirth = &dob
	}

	if _, err := h.svc.SignUp(r.Context(), req); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, MsgSignedUp, nil)
}

func (h *Handler) handleLogIn(w http.ResponseWriter, r *http.Request) {
	var body logInBody
	if err := decodeJSON(w, r, &body, false); err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := h.svc.LogIn(r.Context(), auth.LoginRequest{Email: body.Email, Password: body.Password})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, MsgLoggedIn, LoginResponse{
		Token:     result.Token,
		AccountID: result.AccountID.String(),
		ExpiresAt: result.ExpiresAt.UTC(),
	})
}

// handleLogOut reads the token from the Authorization header, a JSON body or
// the token query parameter, in that order.
func (h *Handler) handleLogOut(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		var body logOutBody
		if err := decodeJSON(w, r, &body, true); err != nil {
			h.respondError(w, r, err)
			return
		}
		token = body.Token
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	if err := h.svc.LogOut(r.Context(), token); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, MsgLoggedOut, nil)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	account, session, err := h.svc.CurrentAccount(r.Context(), bearerToken(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, MsgSession, SessionResponse{
		AccountID: account.ID.String(),
		Email:     account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
		ExpiresAt: session.ExpiresAt.UTC(),
	})
}

// decodeJSON decodes exactly one JSON object into v. Malformed bodies, unknown
// fields and trailing data become invalid-input errors. With allowEmpty, an absent body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return invalidBody(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after JSON value")
		}
		return invalidBody(err)
	}
	return nil
}

func invalidBody(err error) error {
	reason := "must be valid JSON"
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		reason = "is too large"
	}
	return oops.Code(auth.CodeInvalidInput).
		With("decode_error", err.Error()).
		Wrap(auth.ValidationErrors{{Field: "body", Reason: reason}})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// parseDate accepts YYYY-MM-DD or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
