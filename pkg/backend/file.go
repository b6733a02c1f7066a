package backend

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/video-system/go-camera-emulator/pkg/device"
)

func init() {
	Register("file", func(cfg Config) (device.Backend, error) {
		if cfg.Source == "" {
			return nil, fmt.Errorf("file backend: source path is required")
		}
		return NewFile(cfg.Source, cfg.logger()), nil
	})
}

// File plays back raw planar YUV 4:2:0 frames from a file, looping back to
// the first frame after the last one. Timer-driven: the device's frame
// interval paces playback.
type File struct {
	logger *zap.Logger
	path   string

	data      []byte // whole clip, nil while stopped
	frameSize int
	offset    int
}

// NewFile creates a file playback backend for the given raw I420 file.
func NewFile(path string, logger *zap.Logger) *File {
	return &File{logger: logger, path: path}
}

// StartDevice loads the clip and validates that it holds a whole number of
// frames for the requested geometry.
func (f *File) StartDevice(width, height int, format device.PixelFormat) error {
	if format != device.PixelFormatYUV420 {
		return fmt.Errorf("file backend: unsupported pixel format %q", format)
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("file backend: read %s: %w", f.path, err)
	}

	frameSize := device.FrameSize(width, height)
	if len(data) < frameSize || len(data)%frameSize != 0 {
		return fmt.Errorf("file backend: %s is %d bytes, not a multiple of the %d-byte frame size",
			f.path, len(data), frameSize)
	}

	f.data = data
	f.frameSize = frameSize
	f.offset = 0
	f.logger.Debug("File device started",
		zap.String("path", f.path),
		zap.Int("frames", len(data)/frameSize))
	return nil
}

// StopDevice releases the clip.
func (f *File) StopDevice() error {
	f.data = nil
	return nil
}

// ProduceFrame copies the next frame of the clip into the buffer.
func (f *File) ProduceFrame(fb *device.FrameBuffer) bool {
	if f.data == nil {
		return false
	}
	if err := fb.Load(f.data[f.offset : f.offset+f.frameSize]); err != nil {
		// Geometry changed without a restart; unrecoverable for this clip.
		f.logger.Error("Frame size mismatch", zap.Error(err))
		return false
	}
	f.offset = (f.offset + f.frameSize) % len(f.data)
	return true
}
