package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"seshlock/internal/identity/service"
	"seshlock/internal/logging"
	sessiondomain "seshlock/internal/session/domain"
)

const maxBodyBytes = 1 << 20

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Device       string `json:"device"`
}

type userBody struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
}

type sessionResponse struct {
	User userBody `json:"user"`
	*sessiondomain.TokenPair
}

type meResponse struct {
	User                 userBody  `json:"user"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPHandler serves the session endpoints as JSON over HTTP.
type HTTPHandler struct {
	gw     Gateway
	pinger Pinger
	log    logging.Logger
}

// NewHTTPHandler returns an HTTPHandler. pinger and log may be nil.
func NewHTTPHandler(gw Gateway, pinger Pinger, log logging.Logger) *HTTPHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &HTTPHandler{gw: gw, pinger: pinger, log: log}
}

// Router returns the routes:
//
//	POST   /sessions          login
//	POST   /sessions/refresh  rotate a refresh token
//	DELETE /sessions          logout
//	GET    /sessions/me       current principal
//	GET    /healthz           store readiness
func (h *HTTPHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/sessions", h.login).Methods(http.MethodPost)
	r.HandleFunc("/sessions", h.logout).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/refresh", h.refresh).Methods(http.MethodPost)
	r.HandleFunc("/sessions/me", h.me).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	return r
}

func (h *HTTPHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.gw.Login(r.Context(), req.Email, req.Password, req.Device)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(res))
}

func (h *HTTPHandler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.gw.Refresh(r.Context(), req.RefreshToken, req.Device)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(res))
}

func (h *HTTPHandler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.gw.Logout(r.Context(), req.RefreshToken); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPHandler) me(w http.ResponseWriter, r *http.Request) {
	p, err := h.gw.ResolveAccessToken(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	u, err := h.gw.User(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		User:                 userBody{ID: u.ID, Email: u.Email},
		AccessTokenExpiresAt: p.AccessToken.ExpiresAt,
	})
}

func (h *HTTPHandler) health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.log.Warn(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newSessionResponse(res *service.LoginResult) sessionResponse {
	return sessionResponse{User: userBody{Email: res.Email}, TokenPair: res.Pair}
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	msg, ok := publicMessage(err)
	if !ok {
		h.log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, httpStatus(err), errorResponse{Error: msg})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrMissingToken),
		errors.Is(err, service.ErrMalformedToken),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrMissingCredentials),
		errors.Is(err, service.ErrInvalidGrant):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
