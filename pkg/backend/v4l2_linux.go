//go:build linux

package backend

import (
	"context"
	"fmt"
	"sync"

	v4l2dev "github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"

	"github.com/video-system/go-camera-emulator/pkg/device"
)

// yuv420FourCC is V4L2_PIX_FMT_YUV420 ('YU12'); go4vl v0.0.5 does not
// export a constant for it.
const yuv420FourCC = v4l2.FourCCType(0x32315559)

func init() {
	Register("v4l2", func(cfg Config) (device.Backend, error) {
		if cfg.Source == "" {
			return nil, fmt.Errorf("v4l2 backend: device node is required")
		}
		fps := cfg.FPS
		if fps <= 0 {
			fps = 30
		}
		return NewV4L2(cfg.Source, fps, cfg.logger()), nil
	})
}

// V4L2 captures frames from a real Video4Linux2 device and feeds them to
// the emulated device as if they were generated. The driver's output
// channel is bridged into a single-slot mailbox with overwrite semantics
// so a slow consumer drops frames instead of building a queue.
type V4L2 struct {
	logger *zap.Logger
	path   string
	fps    int

	ready chan struct{}

	mu        sync.Mutex
	latest    []byte
	frameSize int

	dev        *v4l2dev.Device
	cancel     context.CancelFunc
	bridgeDone chan struct{}
}

// NewV4L2 creates a backend capturing from the given device node.
func NewV4L2(path string, fps int, logger *zap.Logger) *V4L2 {
	return &V4L2{
		logger: logger,
		path:   path,
		fps:    fps,
		ready:  make(chan struct{}, 1),
	}
}

// DataReady returns the channel signalled for every frame from the driver.
func (c *V4L2) DataReady() <-chan struct{} { return c.ready }

// StartDevice opens the device node, negotiates planar YUV 4:2:0, and
// starts streaming.
func (c *V4L2) StartDevice(width, height int, format device.PixelFormat) error {
	if format != device.PixelFormatYUV420 {
		return fmt.Errorf("v4l2 backend: unsupported pixel format %q", format)
	}
	if c.dev != nil {
		return fmt.Errorf("v4l2 backend: %s is already streaming", c.path)
	}

	dev, err := v4l2dev.Open(
		c.path,
		v4l2dev.WithPixFormat(v4l2.PixFormat{
			PixelFormat: yuv420FourCC,
			Width:       uint32(width),
			Height:      uint32(height),
			Field:       v4l2.FieldNone,
		}),
		v4l2dev.WithFPS(uint32(c.fps)),
	)
	if err != nil {
		return fmt.Errorf("v4l2 backend: open %s: %w", c.path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(ctx); err != nil {
		cancel()
		dev.Close()
		return fmt.Errorf("v4l2 backend: start %s: %w", c.path, err)
	}

	c.mu.Lock()
	c.latest = nil
	c.frameSize = device.FrameSize(width, height)
	c.mu.Unlock()

	c.dev = dev
	c.cancel = cancel
	c.bridgeDone = make(chan struct{})
	go c.bridge(dev.GetOutput())

	c.logger.Debug("V4L2 device started", zap.String("path", c.path), zap.Int("fps", c.fps))
	return nil
}

// StopDevice stops streaming and closes the device node.
func (c *V4L2) StopDevice() error {
	if c.dev == nil {
		return nil
	}
	c.cancel()
	<-c.bridgeDone
	err := c.dev.Close()
	c.dev = nil

	c.mu.Lock()
	c.latest = nil
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("v4l2 backend: close %s: %w", c.path, err)
	}
	return nil
}

// ProduceFrame moves the newest driver frame from the mailbox into the
// device's frame buffer.
func (c *V4L2) ProduceFrame(fb *device.FrameBuffer) bool {
	c.mu.Lock()
	data := c.latest
	c.latest = nil
	c.mu.Unlock()

	if data == nil {
		return true
	}
	if err := fb.Load(data); err != nil {
		c.logger.Warn("Dropping frame", zap.Error(err))
	}
	return true
}

// bridge copies driver frames into the mailbox and signals the worker.
// Frames are copied because the driver recycles its buffers.
func (c *V4L2) bridge(frames <-chan []byte) {
	defer close(c.bridgeDone)

	for frame := range frames {
		c.mu.Lock()
		if len(frame) != c.frameSize {
			c.mu.Unlock()
			continue
		}
		buf := make([]byte, len(frame))
		copy(buf, frame)
		c.latest = buf
		c.mu.Unlock()

		select {
		case c.ready <- struct{}{}:
		default:
		}
	}
}
