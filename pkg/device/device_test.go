package device

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// testBackend is a scriptable backend: each ProduceFrame fills the whole
// buffer with a single byte value that increments per frame, so readers can
// detect torn frames.
type testBackend struct {
	startErr   error
	stopErr    error
	startCalls int
	stopCalls  int
	frames     int
	maxFrames  int // ProduceFrame returns false after this many (0 = unlimited)
}

func (b *testBackend) StartDevice(width, height int, format PixelFormat) error {
	b.startCalls++
	return b.startErr
}

func (b *testBackend) StopDevice() error {
	b.stopCalls++
	return b.stopErr
}

func (b *testBackend) ProduceFrame(fb *FrameBuffer) bool {
	if b.maxFrames > 0 && b.frames >= b.maxFrames {
		return false
	}
	b.frames++
	fill := byte(b.frames % 251)
	for i := range fb.data {
		fb.data[i] = fill
	}
	return true
}

func newTestDevice(t *testing.T, b Backend) *Device {
	t.Helper()
	return NewDevice("test0", b, Options{FrameInterval: time.Millisecond})
}

func TestFrameBufferLayout(t *testing.T) {
	cases := []struct{ width, height int }{
		{640, 480},
		{320, 240},
		{176, 144},
		{1280, 720},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%dx%d", tc.width, tc.height), func(t *testing.T) {
			if got, want := FrameSize(tc.width, tc.height), tc.width*tc.height*12/8; got != want {
				t.Fatalf("FrameSize = %d, want %d", got, want)
			}

			fb := NewFrameBuffer(tc.width, tc.height)
			luma := tc.width * tc.height
			for i := range fb.Y() {
				fb.Y()[i] = 1
			}
			for i := range fb.U() {
				fb.U()[i] = 2
			}
			for i := range fb.V() {
				fb.V()[i] = 3
			}

			if fb.data[luma-1] != 1 || fb.data[luma] != 2 {
				t.Errorf("U plane does not start at offset %d", luma)
			}
			if fb.data[luma+luma/4-1] != 2 || fb.data[luma+luma/4] != 3 {
				t.Errorf("V plane does not start at offset %d", luma+luma/4)
			}
			if fb.data[len(fb.data)-1] != 3 {
				t.Error("V plane does not end at the buffer end")
			}
		})
	}
}

func TestReadsRequireActiveFrame(t *testing.T) {
	d := newTestDevice(t, &testBackend{})
	dst := make([]byte, FrameSize(640, 480))

	if err := d.GetCurrentFrame(dst); !errors.Is(err, ErrInvalidState) {
		t.Errorf("GetCurrentFrame before Initialize: got %v, want ErrInvalidState", err)
	}

	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := d.StartCapturing(640, 480, PixelFormatYUV420); err != nil {
		t.Fatalf("StartCapturing: %v", err)
	}

	// Capturing, but no frame produced yet.
	if err := d.GetCurrentFrame(dst); !errors.Is(err, ErrInvalidState) {
		t.Errorf("GetCurrentFrame before first frame: got %v, want ErrInvalidState", err)
	}
	preview := make([]byte, 640*480*4)
	if err := d.GetCurrentPreviewFrame(preview); !errors.Is(err, ErrInvalidState) {
		t.Errorf("GetCurrentPreviewFrame before first frame: got %v, want ErrInvalidState", err)
	}

	if !d.produceFrame() {
		t.Fatal("produceFrame returned false")
	}
	if err := d.GetCurrentFrame(dst); err != nil {
		t.Errorf("GetCurrentFrame after first frame: %v", err)
	}
	if err := d.GetCurrentPreviewFrame(preview); err != nil {
		t.Errorf("GetCurrentPreviewFrame after first frame: %v", err)
	}
	if d.CurrentFrameTimestamp() == 0 {
		t.Error("CurrentFrameTimestamp is 0 after a frame was produced")
	}

	if err := d.StopCapturing(); err != nil {
		t.Fatalf("StopCapturing: %v", err)
	}
	if err := d.GetCurrentFrame(dst); !errors.Is(err, ErrInvalidState) {
		t.Errorf("GetCurrentFrame after StopCapturing: got %v, want ErrInvalidState", err)
	}
}

func TestStartCapturingValidation(t *testing.T) {
	b := &testBackend{}
	d := newTestDevice(t, b)

	// Not initialized yet.
	if err := d.StartCapturing(640, 480, PixelFormatYUV420); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("StartCapturing before Initialize: got %v, want ErrInvalidArgument", err)
	}

	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := d.StartCapturing(640, 480, PixelFormat("nv12")); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unsupported format: got %v, want ErrInvalidArgument", err)
	}
	if err := d.StartCapturing(0, 480, PixelFormatYUV420); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero width: got %v, want ErrInvalidArgument", err)
	}
	if err := d.StartCapturing(641, 480, PixelFormatYUV420); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("odd width: got %v, want ErrInvalidArgument", err)
	}

	// Nothing was started and no buffer exists.
	if b.startCalls != 0 {
		t.Errorf("backend started %d times on invalid arguments", b.startCalls)
	}
	if d.IsCapturing() {
		t.Error("device is capturing after rejected StartCapturing")
	}
	if err := d.GetCurrentFrame(make([]byte, FrameSize(640, 480))); !errors.Is(err, ErrInvalidState) {
		t.Errorf("GetCurrentFrame: got %v, want ErrInvalidState", err)
	}
}

func TestStartCapturingBackendFailure(t *testing.T) {
	backendErr := errors.New("device node busy")
	b := &testBackend{startErr: backendErr}
	d := newTestDevice(t, b)

	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	err := d.StartCapturing(640, 480, PixelFormatYUV420)
	if err != backendErr {
		t.Fatalf("StartCapturing: got %v, want the backend error unchanged", err)
	}
	if d.IsCapturing() {
		t.Error("device is capturing after backend start failure")
	}
	if d.FrameBufferSize() != 0 {
		t.Error("frame buffer retained after backend start failure")
	}

	// Device is still usable once the backend recovers.
	b.startErr = nil
	if err := d.StartCapturing(640, 480, PixelFormatYUV420); err != nil {
		t.Fatalf("retried StartCapturing: %v", err)
	}
	if got, want := d.FrameBufferSize(), FrameSize(640, 480); got != want {
		t.Errorf("FrameBufferSize = %d, want %d", got, want)
	}
}

func TestInitializeIdempotent(t *testing.T) {
	d := newTestDevice(t, &testBackend{})

	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	first := d.worker

	if err := d.Initialize(); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if d.worker != first {
		t.Error("second Initialize reallocated the worker")
	}
	if d.State() != StateInitialized {
		t.Errorf("State = %v, want initialized", d.State())
	}
}

func TestStopCapturingRetainsBufferOnBackendFailure(t *testing.T) {
	stopErr := errors.New("backend wedged")
	b := &testBackend{stopErr: stopErr}
	d := newTestDevice(t, b)

	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := d.StartCapturing(320, 240, PixelFormatYUV420); err != nil {
		t.Fatalf("StartCapturing: %v", err)
	}
	if !d.produceFrame() {
		t.Fatal("produceFrame returned false")
	}

	if err := d.StopCapturing(); err != stopErr {
		t.Fatalf("StopCapturing: got %v, want the backend error unchanged", err)
	}

	// Buffer and state survive so the caller can retry.
	if !d.IsCapturing() {
		t.Error("capturing state cleared despite backend stop failure")
	}
	dst := make([]byte, FrameSize(320, 240))
	if err := d.GetCurrentFrame(dst); err != nil {
		t.Errorf("GetCurrentFrame after failed stop: %v", err)
	}

	// Backend recovers; retried stop succeeds and releases the buffer.
	b.stopErr = nil
	if err := d.StopCapturing(); err != nil {
		t.Fatalf("retried StopCapturing: %v", err)
	}
	if d.IsCapturing() {
		t.Error("device still capturing after successful stop")
	}
	if err := d.GetCurrentFrame(dst); !errors.Is(err, ErrInvalidState) {
		t.Errorf("GetCurrentFrame after stop: got %v, want ErrInvalidState", err)
	}
}

func TestGeometryImmutableWhileCapturing(t *testing.T) {
	d := newTestDevice(t, &testBackend{})
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := d.StartCapturing(640, 480, PixelFormatYUV420); err != nil {
		t.Fatalf("StartCapturing: %v", err)
	}

	if err := d.StartCapturing(1280, 720, PixelFormatYUV420); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("StartCapturing while capturing: got %v, want ErrInvalidArgument", err)
	}
	if w, h := d.Geometry(); w != 640 || h != 480 {
		t.Errorf("Geometry = %dx%d, want 640x480", w, h)
	}

	// Geometry changes across a stop/start cycle.
	if err := d.StopCapturing(); err != nil {
		t.Fatalf("StopCapturing: %v", err)
	}
	if err := d.StartCapturing(1280, 720, PixelFormatYUV420); err != nil {
		t.Fatalf("StartCapturing after stop: %v", err)
	}
	if w, h := d.Geometry(); w != 1280 || h != 720 {
		t.Errorf("Geometry = %dx%d, want 1280x720", w, h)
	}
}

func TestFrameDestinationTooSmall(t *testing.T) {
	d := newTestDevice(t, &testBackend{})
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := d.StartCapturing(320, 240, PixelFormatYUV420); err != nil {
		t.Fatalf("StartCapturing: %v", err)
	}
	d.produceFrame()

	if err := d.GetCurrentFrame(make([]byte, 16)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("GetCurrentFrame: got %v, want ErrInvalidArgument", err)
	}
	if err := d.GetCurrentPreviewFrame(make([]byte, 16)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("GetCurrentPreviewFrame: got %v, want ErrInvalidArgument", err)
	}
}

// TestFrameReadsAreNotTorn races GetCurrentFrame against the live capture
// worker. Every observed frame must be uniformly filled with a single byte
// value: a mix of values means a read interleaved with a worker write.
func TestFrameReadsAreNotTorn(t *testing.T) {
	b := &testBackend{}
	d := newTestDevice(t, b)
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := d.StartCapturing(320, 240, PixelFormatYUV420); err != nil {
		t.Fatalf("StartCapturing: %v", err)
	}
	if err := d.StartWorker(); err != nil {
		t.Fatalf("StartWorker: %v", err)
	}
	defer func() {
		if err := d.StopWorker(); err != nil {
			t.Errorf("StopWorker: %v", err)
		}
		if err := d.StopCapturing(); err != nil {
			t.Errorf("StopCapturing: %v", err)
		}
	}()

	dst := make([]byte, FrameSize(320, 240))
	deadline := time.Now().Add(2 * time.Second)
	reads := 0
	for time.Now().Before(deadline) && reads < 500 {
		err := d.GetCurrentFrame(dst)
		if errors.Is(err, ErrInvalidState) {
			continue // worker has not produced the first frame yet
		}
		if err != nil {
			t.Fatalf("GetCurrentFrame: %v", err)
		}
		reads++
		for i, v := range dst {
			if v != dst[0] {
				t.Fatalf("torn frame: byte %d is %#x, byte 0 is %#x", i, v, dst[0])
			}
		}
	}
	if reads == 0 {
		t.Fatal("worker never produced a frame")
	}
	t.Logf("verified %d frame reads", reads)
}
