package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"threat-detector/api/internal/storage"
	"threat-detector/internal/model"
	"threat-detector/internal/pipeline"
	"threat-detector/internal/scoring"
	"threat-detector/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
)

const (
	defaultAlertLimit  = 100
	maxAlertLimit      = 1000
	defaultActionLimit = 100
	maxEventBodyBytes  = 1 << 20
	maxBlockBodyBytes  = 4 << 10

	pingInterval = 30 * time.Second
	pongWait     = 2 * pingInterval
	writeWait    = 10 * time.Second
)

// EventProcessor runs detection for one raw event. *pipeline.Processor
// satisfies it.
type EventProcessor interface {
	Process(ctx context.Context, raw map[string]interface{}) pipeline.Outcome
}

// ModelInfoProvider describes the active scoring model.
type ModelInfoProvider interface {
	ModelInfo() scoring.ModelInfo
}

type Handlers struct {
	store     *storage.Storage
	processor EventProcessor
	models    ModelInfoProvider
	validate  *validator.Validate
	logger    *logrus.Logger
	upgrader  websocket.Upgrader
}

type BlockIPRequest struct {
	IP       string `json:"ip" validate:"required,ip"`
	Reason   string `json:"reason" validate:"max=256"`
	Duration string `json:"duration"`
}

func NewHandlers(store *storage.Storage, processor EventProcessor, models ModelInfoProvider, logger *logrus.Logger) *Handlers {
	return &Handlers{
		store:     store,
		processor: processor,
		models:    models,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				logger.Debugf("WebSocket origin check: %s", r.Header.Get("Origin"))
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts every API endpoint on router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()

	// Events
	api.HandleFunc("/events", h.PostEvent).Methods("POST")

	// Alerts
	api.HandleFunc("/stream/alerts", h.StreamAlerts).Methods("GET")
	api.HandleFunc("/alerts", h.GetAlerts).Methods("GET")
	api.HandleFunc("/alerts", h.ClearAlerts).Methods("DELETE")
	api.HandleFunc("/alerts/{id}", h.GetAlert).Methods("GET")
	api.HandleFunc("/alerts/{id}", h.DeleteAlert).Methods("DELETE")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")

	// Blocking
	api.HandleFunc("/block-ip", h.BlockIP).Methods("POST")
	api.HandleFunc("/blocked-ips", h.GetBlockedIPs).Methods("GET")
	api.HandleFunc("/blocked-ips/{ip}", h.UnblockIP).Methods("DELETE")
	api.HandleFunc("/ip-history/{ip}", h.GetIPHistory).Methods("GET")
	api.HandleFunc("/actions/logs", h.GetActionLogs).Methods("GET")

	// Model
	api.HandleFunc("/model/info", h.GetModelInfo).Methods("GET")

	router.HandleFunc("/health", h.Health).Methods("GET", "OPTIONS")
}

// Events handlers
func (h *Handlers) PostEvent(w http.ResponseWriter, r *http.Request) {
	var raw map[string]interface{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodyBytes)).Decode(&raw); err != nil || raw == nil {
		writeError(w, http.StatusBadRequest, "Request body must be a JSON object")
		return
	}

	out := h.processor.Process(r.Context(), raw)

	if out.Alert == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":        "success",
			"alert_created": false,
			"message":       "Event processed, no threat detected",
			"detection":     out.Result,
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status":        "success",
		"alert_created": true,
		"alert_id":      out.Alert.ID,
		"severity":      out.Alert.Severity,
		"threat_type":   out.Alert.ThreatType,
		"auto_blocked":  out.Blocked,
		"message":       "Threat detected: " + out.Alert.ThreatType,
		"detection":     out.Result,
	})
}

// Alerts handlers
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := storage.AlertFilter{
		IP:         query.Get("ip"),
		ThreatType: query.Get("type"),
		Limit:      parseLimit(query.Get("limit"), defaultAlertLimit, maxAlertLimit),
	}
	if s := query.Get("severity"); s != "" {
		severity, ok := model.ParseSeverity(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid severity: "+s)
			return
		}
		filter.Severity = severity
	}

	alerts := h.store.GetAlerts(filter)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": alerts,
		"total": len(alerts),
	})
}

func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	alert, ok := h.store.GetAlertByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

func (h *Handlers) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if !h.store.DeleteAlert(id) {
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Alert deleted",
	})
}

func (h *Handlers) ClearAlerts(w http.ResponseWriter, r *http.Request) {
	count := h.store.ClearAlerts()
	h.logger.Infof("Cleared %d alerts", count)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Cleared " + strconv.Itoa(count) + " alerts",
		"count":   count,
	})
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetStats())
}

func (h *Handlers) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	filter := storage.AlertFilter{ThreatType: r.URL.Query().Get("type")}
	if s := r.URL.Query().Get("severity"); s != "" {
		severity, ok := model.ParseSeverity(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid severity: "+s)
			return
		}
		filter.Severity = severity
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub := &storage.AlertSubscriber{
		ID:       uuid.NewString(),
		Channel:  make(chan model.Alert, 100),
		Filter:   filter,
		LastSeen: time.Now(),
	}
	h.store.SubscribeAlerts(sub)
	defer h.store.UnsubscribeAlerts(sub)

	h.logger.Infof("Alert stream %s opened from %s", sub.ID, r.RemoteAddr)

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(map[string]string{"type": "connected", "message": "Alert stream established"}); err != nil {
		h.logger.Errorf("Failed to send initial message: %v", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Read messages to detect close and handle pongs.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			h.logger.Debugf("Alert stream %s closed", sub.ID)
			return
		case alert := <-sub.Channel:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(alert); err != nil {
				h.logger.Debugf("WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Debugf("Ping failed: %v", err)
				return
			}
		}
	}
}

// Blocking handlers
func (h *Handlers) BlockIP(w http.ResponseWriter, r *http.Request) {
	var req BlockIPRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBlockBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.IP = strings.TrimSpace(req.IP)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid IP address")
		return
	}

	if req.Reason == "" {
		req.Reason = "Manual block"
	}
	duration, err := utils.ParseBlockDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid duration: "+req.Duration)
		return
	}

	entry := h.store.BlockIP(req.IP, req.Reason, duration, "manual")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "IP " + req.IP + " blocked",
		"block":   entry,
	})
}

func (h *Handlers) GetBlockedIPs(w http.ResponseWriter, r *http.Request) {
	blocked := h.store.GetBlockedIPs()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": blocked,
		"total": len(blocked),
	})
}

func (h *Handlers) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]

	if !h.store.UnblockIP(ip) {
		writeError(w, http.StatusNotFound, "IP is not blocked")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "IP " + ip + " unblocked",
	})
}

func (h *Handlers) GetIPHistory(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	if err := h.validate.Var(ip, "required,ip"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid IP address")
		return
	}

	writeJSON(w, http.StatusOK, h.store.GetIPHistory(ip))
}

func (h *Handlers) GetActionLogs(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), defaultActionLimit, maxAlertLimit)
	logs := h.store.GetActionLogs(limit)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": logs,
		"total": len(logs),
	})
}

// Model and health handlers
func (h *Handlers) GetModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.models.ModelInfo())
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	info := h.models.ModelInfo()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"alerts_count":  h.store.AlertCount(),
		"model_mode":    info.Mode,
		"model_trained": info.Trained,
		"version":       version.Version,
		"revision":      version.Revision,
		"timestamp":     time.Now().UTC(),
	})
}

// Helper functions
func parseLimit(s string, def, max int) int {
	limit, err := strconv.Atoi(s)
	if err != nil || limit < 1 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
