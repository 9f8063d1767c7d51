package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	goGuard "github.com/MrEthical07/goGuard"
)

const maxBodyBytes = 8 << 10

// Engine is the part of *goGuard.Engine the handlers call.
type Engine interface {
	RequestReset(ctx context.Context, identifier, callerIP string) error
	ConfirmReset(ctx context.Context, token, newPassword string) error
	Authenticate(ctx context.Context, identifier, password, callerIP string) (goGuard.AuthResult, error)
}

type Handler struct {
	engine   Engine
	validate *validator.Validate
	log      zerolog.Logger
}

func NewHandler(engine Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine:   engine,
		validate: validator.New(),
		log:      log,
	}
}

type resetRequestBody struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
}

type resetConfirmBody struct {
	Token       string `json:"token" validate:"required,max=128"`
	NewPassword string `json:"new_password" validate:"required,max=1024"`
}

type loginBody struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=1024"`
}

// RequestReset serves POST /recovery/request.
func (h *Handler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var body resetRequestBody
	if !h.decode(w, r, &body) {
		writeMessage(w, http.StatusBadRequest, false, msgBadRequest)
		return
	}
	ctx, ip := engineContext(r)

	err := h.engine.RequestReset(ctx, body.Identifier, ip)
	switch {
	case err == nil:
		writeMessage(w, http.StatusOK, true, msgResetRequested)
	case errors.Is(err, goGuard.ErrThrottled):
		writeMessage(w, http.StatusTooManyRequests, false, msgThrottled)
	case errors.Is(err, goGuard.ErrValidation):
		writeMessage(w, http.StatusBadRequest, false, msgBadRequest)
	default:
		h.log.Error().Err(err).Str("request_id", chimid.GetReqID(ctx)).Msg("reset request failed")
		writeMessage(w, http.StatusInternalServerError, false, msgInternal)
	}
}

// ConfirmReset serves POST /recovery/confirm.
func (h *Handler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var body resetConfirmBody
	if !h.decode(w, r, &body) {
		writeMessage(w, http.StatusBadRequest, false, msgResetInvalid)
		return
	}
	ctx, _ := engineContext(r)

	err := h.engine.ConfirmReset(ctx, body.Token, body.NewPassword)
	switch {
	case err == nil:
		writeMessage(w, http.StatusOK, true, msgResetDone)
	case errors.Is(err, goGuard.ErrThrottled):
		writeMessage(w, http.StatusTooManyRequests, false, msgThrottled)
	case errors.Is(err, goGuard.ErrValidation), errors.Is(err, goGuard.ErrInvalidToken):
		writeMessage(w, http.StatusBadRequest, false, msgResetInvalid)
	default:
		h.log.Error().Err(err).Str("request_id", chimid.GetReqID(ctx)).Msg("reset confirm failed")
		writeMessage(w, http.StatusInternalServerError, false, msgInternal)
	}
}

// Login serves POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !h.decode(w, r, &body) {
		writeMessage(w, http.StatusBadRequest, false, msgBadRequest)
		return
	}
	ctx, ip := engineContext(r)

	res, err := h.engine.Authenticate(ctx, body.Identifier, body.Password, ip)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, loginResponse{
			Success:      true,
			SessionID:    res.SessionID,
			SessionToken: res.SessionToken,
			ExpiresAt:    res.ExpiresAt,
		})
	case errors.Is(err, goGuard.ErrThrottled):
		writeMessage(w, http.StatusTooManyRequests, false, msgThrottled)
	case errors.Is(err, goGuard.ErrInvalidCredentials), errors.Is(err, goGuard.ErrValidation):
		writeMessage(w, http.StatusUnauthorized, false, msgBadCredentials)
	default:
		h.log.Error().Err(err).Str("request_id", chimid.GetReqID(ctx)).Msg("login failed")
		writeMessage(w, http.StatusInternalServerError, false, msgInternal)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return false
	}
	return h.validate.Struct(dst) == nil
}

// engineContext attaches the caller IP and request id the engine reads for
// throttling and audit.
func engineContext(r *http.Request) (context.Context, string) {
	ip := clientIP(r)
	ctx := goGuard.WithClientIP(r.Context(), ip)
	if id := chimid.GetReqID(ctx); id != "" {
		ctx = goGuard.WithRequestID(ctx, id)
	}
	return ctx, ip
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
