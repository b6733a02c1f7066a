package device

// PixelFormat identifies a video pixel format.
type PixelFormat string

// PixelFormatYUV420 is planar YUV 4:2:0 (I420): a full-resolution luma
// plane followed by two quarter-size chroma planes (U, then V). It is the
// only format the emulated device captures in.
const PixelFormatYUV420 PixelFormat = "yuv420p"

// Backend is the collaborator that supplies actual frame bytes and device
// start/stop behavior. Implementations correspond to concrete capture
// sources: synthetic pattern generator, raw file playback, remote stream,
// or a real V4L2 device.
//
// ProduceFrame writes one frame into the supplied buffer and returns false
// when the worker loop should terminate (end of stream, unrecoverable
// source error). It is called with the device's object lock held and must
// complete promptly; a ProduceFrame that never returns will hang StopWorker.
type Backend interface {
	StartDevice(width, height int, format PixelFormat) error
	StopDevice() error
	ProduceFrame(fb *FrameBuffer) bool
}

// DataReadySource is implemented by stream-backed backends that can signal
// "new data is ready" to the capture worker. The worker multiplexes this
// channel with its control channel; backends without it are driven by the
// device's frame interval instead.
//
// A closed channel is treated as a fatal source failure and terminates the
// worker loop.
type DataReadySource interface {
	DataReady() <-chan struct{}
}
