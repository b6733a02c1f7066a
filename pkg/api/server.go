// Package api exposes the emulator control plane over HTTP. Only status
// and lifecycle control cross this surface; frame bytes never do.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/video-system/go-camera-emulator/pkg/eventlog"
)

// DeviceManager is the interface the server drives.
type DeviceManager interface {
	DeviceIDs() []string
	AllStatuses() map[string]interface{}
	StartCapture(id string) error
	StopCapture(id string) error
	SessionID() string
	RecentEvents(n int) []eventlog.Event
}

// ServerConfig holds API server configuration.
type ServerConfig struct {
	Host    string
	Port    int
	Manager DeviceManager
	Logger  *zap.Logger
}

// Server is the HTTP control server.
type Server struct {
	cfg    ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/devices", s.handleDevices)
	mux.HandleFunc("/api/v1/devices/start", s.handleStart)
	mux.HandleFunc("/api/v1/devices/stop", s.handleStop)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: mux,
	}

	return s
}

// Start starts the API server and blocks until it shuts down.
func (s *Server) Start() error {
	s.logger.Info("API server starting", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop shuts the API server down gracefully.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "go-camera-emulator",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session_id":    s.cfg.Manager.SessionID(),
		"devices":       s.cfg.Manager.AllStatuses(),
		"recent_events": s.cfg.Manager.RecentEvents(16),
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"devices": s.cfg.Manager.DeviceIDs(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.handleLifecycle(w, r, s.cfg.Manager.StartCapture)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.handleLifecycle(w, r, s.cfg.Manager.StopCapture)
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request, op func(id string) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}

	if err := op(req.DeviceID); err != nil {
		s.logger.Warn("Lifecycle request failed",
			zap.String("device", req.DeviceID), zap.Error(err))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "device_id": req.DeviceID})
}
