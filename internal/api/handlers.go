package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	gwebsocket "github.com/gorilla/websocket" // Alias to avoid name conflict
	"github.com/rs/zerolog"

	"aquacare-relay/internal/auth"
	"aquacare-relay/internal/data"
	"aquacare-relay/internal/logger"
	"aquacare-relay/internal/storage"
	"aquacare-relay/internal/websocket"
)

const (
	indexBanner   = "AQUACARE THE BRIDGE BETWEEN THE GAPS"
	healthMessage = "Server is healthy!"
)

// Devices are not browsers, so any origin is accepted.
var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type APIHandler struct {
	hub            *websocket.Hub
	pipeline       *websocket.Pipeline
	thresholds     storage.ThresholdAdmin
	sensors        storage.SensorStore
	auth           *auth.AuthManager
	pingInterval   time.Duration
	maxMessageSize int64
	log            zerolog.Logger
}

// HandlerConfig lists the collaborators of an APIHandler.
type HandlerConfig struct {
	Hub            *websocket.Hub
	Pipeline       *websocket.Pipeline
	Thresholds     storage.ThresholdAdmin
	Sensors        storage.SensorStore
	Auth           *auth.AuthManager
	PingInterval   time.Duration
	MaxMessageSize int64
}

func NewAPIHandler(cfg HandlerConfig) *APIHandler {
	return &APIHandler{
		hub:            cfg.Hub,
		pipeline:       cfg.Pipeline,
		thresholds:     cfg.Thresholds,
		sensors:        cfg.Sensors,
		auth:           cfg.Auth,
		pingInterval:   cfg.PingInterval,
		maxMessageSize: cfg.MaxMessageSize,
		log:            logger.WithComponent("api"),
	}
}

// HandleWebSocket upgrades a device connection and runs its session on the
// request goroutine until the connection ends.
func (h *APIHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	if h.maxMessageSize > 0 {
		conn.SetReadLimit(h.maxMessageSize)
	}

	session := websocket.NewSession(h.hub, conn, h.pipeline, h.pingInterval)
	session.Run(h.hub.Context())
}

func (h *APIHandler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(indexBanner))
}

func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(healthMessage))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges operator credentials for a bearer token.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role, err := h.auth.AuthenticateUser(req.Username, req.Password)
	if err != nil {
		h.log.Info().Str("username", req.Username).Err(err).Msg("login rejected")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := h.auth.GenerateJWT(req.Username, role)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to issue token")
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// ListThresholds returns the stored bounds per metric; null means none configured.
func (h *APIHandler) ListThresholds(w http.ResponseWriter, r *http.Request) {
	result := make(map[string]*data.Bounds, len(data.Metrics))
	for _, m := range data.Metrics {
		b, found, err := h.thresholds.Bounds(r.Context(), m)
		if err != nil {
			h.log.Error().Err(err).Str("metric", string(m)).Msg("failed to read thresholds")
			writeError(w, http.StatusBadGateway, "threshold store unavailable")
			return
		}
		if found {
			bounds := b
			result[string(m)] = &bounds
		} else {
			result[string(m)] = nil
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// PutThreshold replaces the bounds of one metric. The next message on any
// session is evaluated against them.
func (h *APIHandler) PutThreshold(w http.ResponseWriter, r *http.Request) {
	metric, err := data.ParseMetric(chi.URLParam(r, "metric"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var b data.Bounds
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateBounds(b); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.thresholds.SetBounds(r.Context(), metric, b); err != nil {
		h.log.Error().Err(err).Str("metric", string(metric)).Msg("failed to store thresholds")
		writeError(w, http.StatusBadGateway, "threshold store unavailable")
		return
	}
	h.log.Info().
		Str("metric", string(metric)).
		Float64("min", b.Min).
		Float64("max", b.Max).
		Str("user", auth.Username(r.Context())).
		Msg("thresholds updated")
	writeJSON(w, http.StatusOK, b)
}

// LatestReading returns the last values written by any device.
func (h *APIHandler) LatestReading(w http.ResponseWriter, r *http.Request) {
	latest, err := h.sensors.Latest(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read latest values")
		writeError(w, http.StatusBadGateway, "sensor store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

var errInvertedBounds = errors.New("min must not exceed max")

func validateBounds(b data.Bounds) error {
	if b.Min > b.Max {
		return errInvertedBounds
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
