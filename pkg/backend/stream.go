package backend

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/video-system/go-camera-emulator/pkg/device"
)

func init() {
	Register("stream", func(cfg Config) (device.Backend, error) {
		if cfg.Source == "" {
			return nil, fmt.Errorf("stream backend: source URL is required")
		}
		return NewStream(cfg.Source, cfg.logger()), nil
	})
}

// Stream receives raw planar YUV 4:2:0 frames pushed by a remote producer
// over a WebSocket, one frame per binary message. The newest frame sits in
// a single-slot mailbox: an unconsumed frame is overwritten by the next
// one, never queued. The mailbox signals the capture worker through the
// data-ready channel.
type Stream struct {
	logger *zap.Logger
	url    string

	// ready has capacity 1 and signal semantics; it lives for the whole
	// backend lifetime so the worker can hold it across capture cycles.
	ready chan struct{}

	mu        sync.Mutex
	latest    []byte
	drops     uint64
	frameSize int

	conn       *websocket.Conn
	readerDone chan struct{}
}

// NewStream creates a stream backend for the given ws:// URL.
func NewStream(url string, logger *zap.Logger) *Stream {
	return &Stream{
		logger: logger,
		url:    url,
		ready:  make(chan struct{}, 1),
	}
}

// DataReady returns the channel the reader signals on every received frame.
func (s *Stream) DataReady() <-chan struct{} { return s.ready }

// Drops returns how many unconsumed frames were overwritten in the mailbox.
func (s *Stream) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

// StartDevice dials the producer and starts the read loop.
func (s *Stream) StartDevice(width, height int, format device.PixelFormat) error {
	if format != device.PixelFormatYUV420 {
		return fmt.Errorf("stream backend: unsupported pixel format %q", format)
	}
	if s.conn != nil {
		return fmt.Errorf("stream backend: already connected to %s", s.url)
	}

	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return fmt.Errorf("stream backend: dial %s: %w", s.url, err)
	}

	s.mu.Lock()
	s.latest = nil
	s.frameSize = device.FrameSize(width, height)
	s.mu.Unlock()

	s.conn = conn
	s.readerDone = make(chan struct{})
	go s.readLoop(conn)

	s.logger.Debug("Stream device started", zap.String("url", s.url))
	return nil
}

// StopDevice closes the connection and waits for the read loop to exit.
func (s *Stream) StopDevice() error {
	if s.conn == nil {
		return nil
	}
	s.conn.Close()
	<-s.readerDone
	s.conn = nil

	s.mu.Lock()
	s.latest = nil
	s.mu.Unlock()
	return nil
}

// ProduceFrame moves the newest received frame from the mailbox into the
// device's frame buffer. A spurious wakeup with an empty mailbox is benign.
func (s *Stream) ProduceFrame(fb *device.FrameBuffer) bool {
	s.mu.Lock()
	data := s.latest
	s.latest = nil
	s.mu.Unlock()

	if data == nil {
		return true
	}
	if err := fb.Load(data); err != nil {
		s.logger.Warn("Dropping frame", zap.Error(err))
	}
	return true
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	defer close(s.readerDone)

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			// Includes the deliberate close from StopDevice.
			s.logger.Debug("Stream reader stopped", zap.Error(err))
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}

		s.mu.Lock()
		if len(msg) != s.frameSize {
			s.mu.Unlock()
			s.logger.Warn("Ignoring message with unexpected size",
				zap.Int("size", len(msg)), zap.Int("frame_size", s.frameSize))
			continue
		}
		if s.latest != nil {
			s.drops++
		}
		s.latest = msg
		s.mu.Unlock()

		select {
		case s.ready <- struct{}{}:
		default:
		}
	}
}
