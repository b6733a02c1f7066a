package backend

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/video-system/go-camera-emulator/pkg/convert"
	"github.com/video-system/go-camera-emulator/pkg/device"
)

func init() {
	Register("fake", func(cfg Config) (device.Backend, error) {
		return NewFake(cfg.logger()), nil
	})
}

const (
	// checkerSize is the edge length of one checkerboard square in pixels.
	checkerSize = 16
	// stripFrames is how many frames each color strip stays on screen.
	stripFrames = 30

	checkerDark   = 0x10
	checkerLight  = 0xEB
	chromaNeutral = 0x80
)

// stripColors cycles red, green, blue across the top strip, precomputed in
// YUV.
var stripColors = makeStripColors()

func makeStripColors() [3][3]uint8 {
	var c [3][3]uint8
	c[0][0], c[0][1], c[0][2] = convert.RGBToYUV(0xFF, 0x00, 0x00)
	c[1][0], c[1][1], c[1][2] = convert.RGBToYUV(0x00, 0xFF, 0x00)
	c[2][0], c[2][1], c[2][2] = convert.RGBToYUV(0x00, 0x00, 0xFF)
	return c
}

// Fake is a synthetic frame source: a scrolling black-and-white
// checkerboard with a solid color strip along the top that cycles through
// red, green, and blue. It needs no real hardware and is timer-driven (the
// device's frame interval paces it).
type Fake struct {
	logger  *zap.Logger
	width   int
	height  int
	started bool
	counter int
}

// NewFake creates a fake backend.
func NewFake(logger *zap.Logger) *Fake {
	return &Fake{logger: logger}
}

// StartDevice records the frame geometry and resets the animation.
func (f *Fake) StartDevice(width, height int, format device.PixelFormat) error {
	if format != device.PixelFormatYUV420 {
		return fmt.Errorf("fake backend: unsupported pixel format %q", format)
	}
	f.width = width
	f.height = height
	f.counter = 0
	f.started = true
	f.logger.Debug("Fake device started", zap.Int("width", width), zap.Int("height", height))
	return nil
}

// StopDevice stops frame generation.
func (f *Fake) StopDevice() error {
	f.started = false
	return nil
}

// ProduceFrame draws the next animation step into the buffer.
func (f *Fake) ProduceFrame(fb *device.FrameBuffer) bool {
	if !f.started {
		return false
	}
	f.counter++
	f.drawCheckerboard(fb)
	f.drawStrip(fb)
	return true
}

func (f *Fake) drawCheckerboard(fb *device.FrameBuffer) {
	y, u, v := fb.Y(), fb.U(), fb.V()
	offset := f.counter % (checkerSize * 2)
	chromaStride := f.width / 2

	for row := 0; row < f.height; row++ {
		for col := 0; col < f.width; col++ {
			luma := uint8(checkerDark)
			if ((col+offset)/checkerSize+row/checkerSize)%2 == 0 {
				luma = checkerLight
			}
			y[row*f.width+col] = luma
		}
	}
	for i := 0; i < f.height/2*chromaStride; i++ {
		u[i] = chromaNeutral
		v[i] = chromaNeutral
	}
}

func (f *Fake) drawStrip(fb *device.FrameBuffer) {
	color := stripColors[(f.counter/stripFrames)%len(stripColors)]
	y, u, v := fb.Y(), fb.U(), fb.V()
	stripHeight := f.height / 8
	chromaStride := f.width / 2

	for row := 0; row < stripHeight; row++ {
		for col := 0; col < f.width; col++ {
			y[row*f.width+col] = color[0]
			ci := (row/2)*chromaStride + col/2
			u[ci] = color[1]
			v[ci] = color[2]
		}
	}
}
