package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"storeadmin/internal/auth"
	"storeadmin/internal/i18n"
	"storeadmin/internal/logging"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.recordEvent(r, auth.AuditRegister, outcomeFailure, "", "")
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := auth.NormalizeEmail(req.Email)
	account, err := s.Workflow.Register(r.Context(), auth.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Locale:   i18n.LocaleFromRequest(r),
	})

	var verr *auth.ValidationError
	switch {
	case err == nil:
		s.recordEvent(r, auth.AuditRegister, outcomeSuccess, email, account.ID)
		writeMessage(w, http.StatusOK, "OTP sent successfully")
	case errors.Is(err, auth.ErrDomainRestricted):
		s.recordEvent(r, auth.AuditRegister, outcomeFailure, email, "")
		writeMessage(w, http.StatusForbidden, "Access restricted: use an email ending with @"+s.Workflow.AllowedDomain+".")
	case errors.As(err, &verr):
		s.recordEvent(r, auth.AuditRegister, outcomeFailure, email, "")
		writeMessage(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, auth.ErrAlreadyVerified):
		s.recordEvent(r, auth.AuditRegister, outcomeFailure, email, "")
		writeMessage(w, http.StatusBadRequest, "User already exists. Please login.")
	default:
		logging.Error(s.Logger, "register failed", err, "request_id", middleware.GetReqID(r.Context()))
		s.recordEvent(r, auth.AuditRegister, outcomeError, email, "")
		writeMessage(w, http.StatusInternalServerError, "Error sending OTP")
	}
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.recordEvent(r, auth.AuditVerify, outcomeFailure, "", "")
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := auth.NormalizeEmail(req.Email)
	account, token, err := s.Workflow.VerifyOTP(r.Context(), req.Email, req.OTP)
	switch {
	case err == nil:
		auth.SetSessionCookie(w, token, s.Sessions.TTL(), s.Config.CookieSecure)
		s.recordEvent(r, auth.AuditVerify, outcomeSuccess, email, account.ID)
		writeMessage(w, http.StatusOK, "Verified successfully")
	case errors.Is(err, auth.ErrInvalidOTP):
		s.recordEvent(r, auth.AuditVerify, outcomeFailure, email, "")
		writeMessage(w, http.StatusBadRequest, "Invalid or expired OTP")
	default:
		logging.Error(s.Logger, "verify failed", err, "request_id", middleware.GetReqID(r.Context()))
		s.recordEvent(r, auth.AuditVerify, outcomeError, email, "")
		writeMessage(w, http.StatusInternalServerError, "Verification failed")
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.recordEvent(r, auth.AuditLogin, outcomeFailure, "", "")
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := auth.NormalizeEmail(req.Email)
	account, token, err := s.Workflow.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		auth.SetSessionCookie(w, token, s.Sessions.TTL(), s.Config.CookieSecure)
		s.recordEvent(r, auth.AuditLogin, outcomeSuccess, email, account.ID)
		writeMessage(w, http.StatusOK, "Login successful")
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.recordEvent(r, auth.AuditLogin, outcomeFailure, email, "")
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrNotVerified):
		s.recordEvent(r, auth.AuditLogin, outcomeFailure, email, account.ID)
		writeMessage(w, http.StatusForbidden, "Please verify your email first")
	default:
		logging.Error(s.Logger, "login failed", err, "request_id", middleware.GetReqID(r.Context()))
		s.recordEvent(r, auth.AuditLogin, outcomeError, email, "")
		writeMessage(w, http.StatusInternalServerError, "Login failed")
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var userID, email string
	if claims, err := s.Sessions.Parse(auth.SessionToken(r)); err == nil {
		userID, email = claims.UserID, claims.Email
	}

	auth.ClearSessionCookie(w, s.Config.CookieSecure)
	s.recordEvent(r, auth.AuditLogout, outcomeSuccess, email, userID)
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":    claims.UserID,
		"email": claims.Email,
		"name":  claims.Name,
	})
}

// recordEvent counts the event and appends it to the audit trail. Audit
// failures are logged and never change the response.
func (s *Server) recordEvent(r *http.Request, event, outcome, email, userID string) {
	s.Metrics.Record(event, outcome)
	if s.Audit == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
	defer cancel()
	err := s.Audit.Log(ctx, auth.AuditEvent{
		EventType: event,
		Outcome:   outcome,
		Email:     email,
		UserID:    userID,
		IP:        clientIP(r, s.trustedProxies),
		UserAgent: r.UserAgent(),
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logging.Error(s.Logger, "audit write failed", err, "event", event)
	}
}
