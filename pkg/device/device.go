// Package device implements an emulated physical camera device: a
// lifecycle state machine, a mutex-guarded frame buffer, and a background
// capture worker with cooperative, message-based cancellation. The frame
// bytes themselves come from a pluggable Backend.
package device

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/video-system/go-camera-emulator/pkg/convert"
)

// State is the device lifecycle state.
type State int

const (
	// StateConstructed is the initial state, before Initialize.
	StateConstructed State = iota
	// StateInitialized means the worker object exists but capturing is off.
	StateInitialized
	// StateCapturing means a frame buffer is allocated and the backend has
	// been started; the worker is expected to keep the buffer updated.
	StateCapturing
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateInitialized:
		return "initialized"
	case StateCapturing:
		return "capturing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Owner receives lifecycle notifications from the device. The device keeps
// a non-owning back-reference to it; the owner never drives the device
// through this interface.
type Owner interface {
	CaptureStarted(id string)
	CaptureStopped(id string)
}

// DefaultFrameInterval paces timer-driven backends when no interval is
// configured (30 fps).
const DefaultFrameInterval = time.Second / 30

// Options configures a Device at construction time.
type Options struct {
	// FrameInterval is the worker wait timeout for backends without a
	// data-ready source. Zero selects DefaultFrameInterval.
	FrameInterval time.Duration
	// Owner, when non-nil, is notified of capture start/stop.
	Owner Owner
	// Logger defaults to a no-op logger when nil.
	Logger *zap.Logger
}

// Device emulates one physical camera. Lifecycle operations (Initialize,
// StartCapturing, StopCapturing, StartWorker, StopWorker) must be called
// sequentially from a single owning goroutine; frame reads and the capture
// worker are serialized around the frame buffer by the object lock.
type Device struct {
	id            string
	backend       Backend
	owner         Owner
	logger        *zap.Logger
	frameInterval time.Duration

	// Allocated once by Initialize and reused across capture cycles.
	worker *worker

	// state transitions are single-threaded (owner goroutine only), so the
	// guard predicates read it without the lock.
	state State

	// objectLock guards the frame buffer and timestamp against concurrent
	// access by the capture worker and frame readers.
	objectLock     sync.Mutex
	frame          *FrameBuffer
	frameTimestamp int64 // UnixNano of the newest frame; 0 until one exists
	pixelFormat    PixelFormat
}

// NewDevice creates a device in the constructed state.
func NewDevice(id string, backend Backend, opts Options) *Device {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := opts.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Device{
		id:            id,
		backend:       backend,
		owner:         opts.Owner,
		logger:        logger.With(zap.String("device", id)),
		frameInterval: interval,
	}
}

// ID returns the device identifier.
func (d *Device) ID() string { return d.id }

// IsInitialized reports whether Initialize has completed.
func (d *Device) IsInitialized() bool { return d.state >= StateInitialized }

// IsCapturing reports whether the device is in the capturing state.
func (d *Device) IsCapturing() bool { return d.state == StateCapturing }

// State returns the current lifecycle state.
func (d *Device) State() State { return d.state }

// Initialize allocates the worker object and moves the device to the
// initialized state. Calling it on an already initialized device is a
// benign no-op.
func (d *Device) Initialize() error {
	if d.IsInitialized() {
		d.logger.Warn("Device is already initialized", zap.Stringer("state", d.state))
		return nil
	}

	d.worker = newWorker(d)
	d.state = StateInitialized

	return nil
}

// StartCapturing validates the requested mode, allocates the frame buffer,
// and starts the backend. On backend failure the buffer is released and the
// backend error is returned unchanged, with no state retained.
func (d *Device) StartCapturing(width, height int, format PixelFormat) error {
	if !d.IsInitialized() {
		return fmt.Errorf("%w: device is not initialized", ErrInvalidArgument)
	}
	if d.IsCapturing() {
		return fmt.Errorf("%w: device is already capturing", ErrInvalidArgument)
	}
	if format != PixelFormatYUV420 {
		return fmt.Errorf("%w: unsupported pixel format %q", ErrInvalidArgument, format)
	}
	// Chroma planes are quarter-size, so both dimensions must be even.
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("%w: invalid frame geometry %dx%d", ErrInvalidArgument, width, height)
	}

	frame := NewFrameBuffer(width, height)

	if err := d.backend.StartDevice(width, height, format); err != nil {
		// Nothing retained: the buffer is dropped and the device stays in
		// its previous state.
		return err
	}

	d.objectLock.Lock()
	d.frame = frame
	d.frameTimestamp = 0
	d.pixelFormat = format
	d.objectLock.Unlock()
	d.state = StateCapturing

	d.logger.Info("Capture started",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.String("format", string(format)),
		zap.Int("frame_buffer_size", frame.Size()))

	if d.owner != nil {
		d.owner.CaptureStarted(d.id)
	}
	return nil
}

// StopCapturing stops the backend and, only on its success, releases the
// frame buffer and clears the capturing state. A backend failure leaves the
// buffer and state intact so the caller can retry.
func (d *Device) StopCapturing() error {
	if err := d.backend.StopDevice(); err != nil {
		d.logger.Error("Backend failed to stop, retaining frame buffer", zap.Error(err))
		return err
	}

	d.objectLock.Lock()
	d.frame = nil
	d.frameTimestamp = 0
	d.objectLock.Unlock()
	if d.state == StateCapturing {
		d.state = StateInitialized
	}

	d.logger.Info("Capture stopped")

	if d.owner != nil {
		d.owner.CaptureStopped(d.id)
	}
	return nil
}

// StartWorker starts the background capture worker. The device must be
// initialized first.
func (d *Device) StartWorker() error {
	if !d.IsInitialized() {
		return fmt.Errorf("%w: device is not initialized", ErrInvalidArgument)
	}
	return d.worker.start()
}

// StopWorker requests worker termination over the control channel and
// blocks until the worker has exited. The device must be initialized first.
func (d *Device) StopWorker() error {
	if !d.IsInitialized() {
		return fmt.Errorf("%w: device is not initialized", ErrInvalidArgument)
	}
	return d.worker.stop()
}

// FrameBufferSize returns the byte size of the current frame buffer, or 0
// when capturing is not active. Callers use it to size the destination for
// GetCurrentFrame.
func (d *Device) FrameBufferSize() int {
	d.objectLock.Lock()
	defer d.objectLock.Unlock()
	if d.frame == nil {
		return 0
	}
	return d.frame.Size()
}

// Geometry returns the current frame dimensions, or zeros when capturing is
// not active.
func (d *Device) Geometry() (width, height int) {
	d.objectLock.Lock()
	defer d.objectLock.Unlock()
	if d.frame == nil {
		return 0, 0
	}
	return d.frame.Width(), d.frame.Height()
}

// CurrentFrameTimestamp returns the capture time (UnixNano) of the newest
// frame, or 0 when none has been produced.
func (d *Device) CurrentFrameTimestamp() int64 {
	d.objectLock.Lock()
	defer d.objectLock.Unlock()
	return d.frameTimestamp
}

// GetCurrentFrame copies the newest raw frame into dst, which must hold at
// least FrameBufferSize bytes. It fails with ErrInvalidState until the
// worker has produced a first frame. The copy runs under the object lock,
// so dst never observes a torn frame.
func (d *Device) GetCurrentFrame(dst []byte) error {
	d.objectLock.Lock()
	defer d.objectLock.Unlock()

	if err := d.checkFrameAvailable(); err != nil {
		return err
	}
	if len(dst) < d.frame.Size() {
		return fmt.Errorf("%w: destination is %d bytes, want %d", ErrInvalidArgument, len(dst), d.frame.Size())
	}
	copy(dst, d.frame.data)
	return nil
}

// GetCurrentPreviewFrame converts the newest frame to packed RGB32 and
// writes it into dst, which must hold width*height*4 bytes. Same state
// requirements and tearing guarantees as GetCurrentFrame.
func (d *Device) GetCurrentPreviewFrame(dst []byte) error {
	d.objectLock.Lock()
	defer d.objectLock.Unlock()

	if err := d.checkFrameAvailable(); err != nil {
		return err
	}
	if len(dst) < d.frame.Width()*d.frame.Height()*4 {
		return fmt.Errorf("%w: destination is %d bytes, want %d",
			ErrInvalidArgument, len(dst), d.frame.Width()*d.frame.Height()*4)
	}
	// The emulated framebuffer is never RGB; it is always planar YUV 4:2:0.
	convert.YUV420ToRGB32(d.frame.Y(), d.frame.U(), d.frame.V(), dst, d.frame.Width(), d.frame.Height())
	return nil
}

// checkFrameAvailable must be called with the object lock held.
func (d *Device) checkFrameAvailable() error {
	if !d.IsCapturing() || d.frame == nil {
		return fmt.Errorf("%w: device is not capturing", ErrInvalidState)
	}
	if d.frameTimestamp == 0 {
		return fmt.Errorf("%w: no frame has been produced yet", ErrInvalidState)
	}
	return nil
}

// produceFrame runs one backend frame-production step under the object
// lock. Returning false terminates the worker loop. A worker running
// outside the capturing state (no buffer) idles instead of terminating.
func (d *Device) produceFrame() bool {
	d.objectLock.Lock()
	defer d.objectLock.Unlock()

	if d.frame == nil {
		return true
	}
	if !d.backend.ProduceFrame(d.frame) {
		return false
	}
	d.frameTimestamp = time.Now().UnixNano()
	return true
}
