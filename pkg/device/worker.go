package device

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// controlMessage is the wire format of the worker control channel. Exactly
// one unsolicited message kind exists; anything else is a protocol
// violation and terminates the worker.
type controlMessage byte

const msgStop controlMessage = 0x73 // 's'

// waitResult is the outcome of one multiplexed wait at the worker's
// suspension point.
type waitResult int

const (
	// waitTimeout: no data and no stop arrived within the timeout.
	waitTimeout waitResult = iota
	// waitReady: the backend's data-ready source fired.
	waitReady
	// waitExit: a stop message arrived on the control channel.
	waitExit
	// waitError: protocol violation or the data source failed; fatal for
	// this activation.
	waitError
)

// worker is the single background task that runs the frame acquisition
// loop. It is allocated once by Initialize and reused across capture
// cycles; the control channel endpoints are created fresh on every start
// and cleared once the task has been joined.
//
// Cancellation is cooperative: a stop request is only observed at the
// wait boundary, never mid-frame.
type worker struct {
	dev *Device

	// control carries stop requests to the loop; nil while not running.
	control chan controlMessage
	// done is closed by the loop goroutine on exit (join point).
	done chan struct{}
}

func newWorker(d *Device) *worker {
	return &worker{dev: d}
}

// start creates fresh control endpoints and launches the loop goroutine.
// The worker never runs concurrently with itself.
func (w *worker) start() error {
	if w.control != nil {
		return fmt.Errorf("%w: worker is already running", ErrInvalidArgument)
	}

	w.control = make(chan controlMessage, 1)
	w.done = make(chan struct{})
	go w.run()

	w.dev.logger.Debug("Capture worker started")
	return nil
}

// stop writes exactly one stop message to the control channel, then blocks
// until the loop goroutine has exited. On successful join both endpoints
// are cleared so a subsequent start can create a fresh pair. A second stop
// without an intervening start fails with ErrWorkerNotRunning.
func (w *worker) stop() error {
	if w.control == nil {
		return ErrWorkerNotRunning
	}

	select {
	case w.control <- msgStop:
	default:
		// A stop message is already pending and unconsumed; report without
		// waiting so the caller can retry.
		return fmt.Errorf("unable to send stop message: control channel is full")
	}

	<-w.done

	w.control = nil
	w.done = nil

	w.dev.logger.Debug("Capture worker stopped")
	return nil
}

// run is the acquisition loop. Each iteration performs one bounded wait
// multiplexing "data ready" and "stop requested", then one frame
// production step. The loop ends on a stop message, a wait failure, or the
// backend signalling termination from ProduceFrame.
func (w *worker) run() {
	defer close(w.done)

	var ready <-chan struct{}
	if src, ok := w.dev.backend.(DataReadySource); ok {
		ready = src.DataReady()
	}

	// Stream-backed devices wait indefinitely for data or stop; timer-driven
	// devices produce a frame on every interval expiry.
	timeout := w.dev.frameInterval
	if ready != nil {
		timeout = 0
	}

	for {
		switch w.wait(ready, timeout) {
		case waitExit:
			w.dev.logger.Debug("Stop message received")
			return
		case waitError:
			return
		case waitTimeout:
			if ready != nil {
				continue
			}
			// Timer tick: fall through and produce the next frame.
		case waitReady:
		}

		if !w.dev.produceFrame() {
			w.dev.logger.Debug("Backend ended frame production")
			return
		}
	}
}

// wait blocks until data is ready, a control message arrives, or the
// timeout expires. A timeout of 0 waits indefinitely. ready may be nil for
// backends without a data-ready source.
func (w *worker) wait(ready <-chan struct{}, timeout time.Duration) waitResult {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case msg, ok := <-w.control:
		if !ok {
			w.dev.logger.Error("Control channel closed unexpectedly")
			return waitError
		}
		if msg != msgStop {
			w.dev.logger.Error("Unknown control message", zap.Uint8("message", uint8(msg)))
			return waitError
		}
		return waitExit

	case <-expired:
		return waitTimeout

	case _, ok := <-ready:
		if !ok {
			w.dev.logger.Error("Backend data source closed")
			return waitError
		}
		return waitReady
	}
}
