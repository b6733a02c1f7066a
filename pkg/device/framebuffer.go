package device

import "fmt"

// FrameSize returns the byte size of one planar YUV 4:2:0 frame:
// width*height luma bytes plus two width*height/4 chroma planes.
func FrameSize(width, height int) int {
	return width * height * 12 / 8
}

// FrameBuffer is the packed planar storage for one frame. It is owned
// exclusively by the Device: allocated by StartCapturing, released by
// StopCapturing, and written by the capture worker under the device lock.
// The three plane views are derived once from the frame geometry and stay
// valid for the lifetime of the buffer.
type FrameBuffer struct {
	data   []byte
	width  int
	height int
}

// NewFrameBuffer allocates a zeroed frame buffer for the given geometry.
// The Device allocates its own buffer in StartCapturing; standalone buffers
// are useful for backend development and tests.
func NewFrameBuffer(width, height int) *FrameBuffer {
	return &FrameBuffer{
		data:   make([]byte, FrameSize(width, height)),
		width:  width,
		height: height,
	}
}

// Width returns the frame width in pixels.
func (fb *FrameBuffer) Width() int { return fb.width }

// Height returns the frame height in pixels.
func (fb *FrameBuffer) Height() int { return fb.height }

// Size returns the total buffer size in bytes.
func (fb *FrameBuffer) Size() int { return len(fb.data) }

// Y returns the full-resolution luma plane.
func (fb *FrameBuffer) Y() []byte {
	return fb.data[:fb.width*fb.height]
}

// U returns the quarter-size U chroma plane, located directly after the
// luma plane.
func (fb *FrameBuffer) U() []byte {
	luma := fb.width * fb.height
	return fb.data[luma : luma+luma/4]
}

// V returns the quarter-size V chroma plane, located directly after the
// U plane.
func (fb *FrameBuffer) V() []byte {
	luma := fb.width * fb.height
	return fb.data[luma+luma/4 : luma+luma/2]
}

// Load copies one packed I420 frame into the buffer. The source must be
// exactly one frame long.
func (fb *FrameBuffer) Load(src []byte) error {
	if len(src) != len(fb.data) {
		return fmt.Errorf("%w: frame is %d bytes, want %d", ErrInvalidArgument, len(src), len(fb.data))
	}
	copy(fb.data, src)
	return nil
}
