// Package emulator orchestrates a set of emulated camera devices built
// from configuration and exposes their status to the control API.
package emulator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/video-system/go-camera-emulator/pkg/backend"
	"github.com/video-system/go-camera-emulator/pkg/device"
	"github.com/video-system/go-camera-emulator/pkg/eventlog"
)

// Manager owns the emulated devices. It is the "owning service" of each
// device: the devices expect lifecycle calls from a single goroutine, so
// the manager serializes them behind its lifecycle lock. API request
// goroutines go through the manager, never to a device directly.
type Manager struct {
	cfg       *Config
	logger    *zap.Logger
	sessionID string

	devices map[string]*device.Device
	byID    map[string]DeviceConfig
	events  *eventlog.Log

	// lifecycleMu serializes Initialize/StartCapturing/StopCapturing/
	// StartWorker/StopWorker across all devices.
	lifecycleMu sync.Mutex
}

// DeviceStatus is the externally visible state of one device.
type DeviceStatus struct {
	DeviceID        string `json:"device_id"`
	Backend         string `json:"backend"`
	State           string `json:"state"`
	IsCapturing     bool   `json:"is_capturing"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	FrameBufferSize int    `json:"frame_buffer_size"`
	LastFrameTime   int64  `json:"last_frame_time"` // UnixNano, 0 if none
	LastEvent       string `json:"last_event,omitempty"`
}

// NewManager builds devices and their backends from config.
func NewManager(cfg *Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		sessionID: uuid.NewString(),
		devices:   make(map[string]*device.Device),
		byID:      make(map[string]DeviceConfig),
		events:    eventlog.New(256),
	}

	for _, dc := range cfg.Devices {
		if _, exists := m.devices[dc.ID]; exists {
			return nil, fmt.Errorf("duplicate device id %q", dc.ID)
		}

		b, err := backend.New(dc.Backend, backend.Config{
			Source: dc.Source,
			FPS:    dc.FPS,
			Logger: logger.With(zap.String("device", dc.ID)),
		})
		if err != nil {
			return nil, fmt.Errorf("create backend for device %s: %w", dc.ID, err)
		}

		// Configs built programmatically may skip LoadConfig's defaulting;
		// a zero interval lets the device fall back to its own default rate.
		var interval time.Duration
		if dc.FPS > 0 {
			interval = time.Second / time.Duration(dc.FPS)
		}

		dev := device.NewDevice(dc.ID, b, device.Options{
			FrameInterval: interval,
			Owner:         m,
			Logger:        logger,
		})
		m.devices[dc.ID] = dev
		m.byID[dc.ID] = dc
		logger.Info("Device configured",
			zap.String("device", dc.ID),
			zap.String("backend", dc.Backend))
	}

	logger.Info("Emulator session created", zap.String("session_id", m.sessionID))
	return m, nil
}

// Start initializes every device and begins capturing on those marked
// auto-start. Devices that fail to start are logged and skipped; the rest
// keep running.
func (m *Manager) Start() error {
	m.lifecycleMu.Lock()
	for id, dev := range m.devices {
		if err := dev.Initialize(); err != nil {
			m.lifecycleMu.Unlock()
			return fmt.Errorf("initialize device %s: %w", id, err)
		}
	}
	m.lifecycleMu.Unlock()

	for id, dc := range m.byID {
		if !dc.AutoStart {
			continue
		}
		if err := m.StartCapture(id); err != nil {
			m.logger.Warn("Failed to auto-start device",
				zap.String("device", id), zap.Error(err))
		}
	}
	return nil
}

// Stop stops capturing and the worker on every device.
func (m *Manager) Stop() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	for id, dev := range m.devices {
		if err := dev.StopWorker(); err != nil && !errors.Is(err, device.ErrWorkerNotRunning) {
			m.logger.Warn("Failed to stop worker", zap.String("device", id), zap.Error(err))
		}
		if dev.IsCapturing() {
			if err := dev.StopCapturing(); err != nil {
				m.logger.Warn("Failed to stop capture", zap.String("device", id), zap.Error(err))
			}
		}
	}
	m.logger.Info("All devices stopped")
}

// StartCapture starts capturing on one device with its configured geometry
// and then starts the capture worker.
func (m *Manager) StartCapture(id string) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	dev, dc, err := m.lookup(id)
	if err != nil {
		return err
	}

	if err := dev.StartCapturing(dc.Width, dc.Height, m.cfg.PixelFormat()); err != nil {
		return err
	}
	if err := dev.StartWorker(); err != nil {
		// Roll back so the device is not left capturing with no producer.
		if stopErr := dev.StopCapturing(); stopErr != nil {
			m.logger.Error("Failed to roll back capture state",
				zap.String("device", id), zap.Error(stopErr))
		}
		return err
	}
	return nil
}

// StopCapture stops the worker and then capturing on one device.
func (m *Manager) StopCapture(id string) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	dev, _, err := m.lookup(id)
	if err != nil {
		return err
	}

	if err := dev.StopWorker(); err != nil && !errors.Is(err, device.ErrWorkerNotRunning) {
		return err
	}
	return dev.StopCapturing()
}

// Device returns a device by ID.
func (m *Manager) Device(id string) (*device.Device, bool) {
	dev, ok := m.devices[id]
	return dev, ok
}

// DeviceIDs returns all configured device IDs.
func (m *Manager) DeviceIDs() []string {
	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	return ids
}

// SessionID returns the session identifier assigned at startup.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// Status returns the status of one device. It holds the lifecycle lock so
// the state it reports is never mid-transition.
func (m *Manager) Status(id string) (DeviceStatus, bool) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	dev, ok := m.devices[id]
	if !ok {
		return DeviceStatus{}, false
	}

	width, height := dev.Geometry()
	var lastEvent string
	if ev, ok := m.events.Last(id); ok {
		lastEvent = ev.Kind
	}

	return DeviceStatus{
		DeviceID:        id,
		Backend:         m.byID[id].Backend,
		State:           dev.State().String(),
		IsCapturing:     dev.IsCapturing(),
		Width:           width,
		Height:          height,
		FrameBufferSize: dev.FrameBufferSize(),
		LastFrameTime:   dev.CurrentFrameTimestamp(),
		LastEvent:       lastEvent,
	}, true
}

// AllStatuses returns status for all devices (implements api.DeviceManager).
func (m *Manager) AllStatuses() map[string]interface{} {
	statuses := make(map[string]interface{}, len(m.devices))
	for id := range m.devices {
		status, _ := m.Status(id)
		statuses[id] = status
	}
	return statuses
}

// RecentEvents returns up to n recent lifecycle events, newest last.
func (m *Manager) RecentEvents(n int) []eventlog.Event {
	return m.events.Recent(n)
}

// CaptureStarted implements device.Owner.
func (m *Manager) CaptureStarted(id string) {
	m.events.Append(id, "capture_started")
	m.logger.Info("Capture started", zap.String("device", id))
}

// CaptureStopped implements device.Owner.
func (m *Manager) CaptureStopped(id string) {
	m.events.Append(id, "capture_stopped")
	m.logger.Info("Capture stopped", zap.String("device", id))
}

func (m *Manager) lookup(id string) (*device.Device, DeviceConfig, error) {
	dev, ok := m.devices[id]
	if !ok {
		return nil, DeviceConfig{}, fmt.Errorf("unknown device %q", id)
	}
	return dev, m.byID[id], nil
}
