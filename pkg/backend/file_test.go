package backend

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/video-system/go-camera-emulator/pkg/device"
)

func writeClip(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.yuv")
	var clip []byte
	for _, f := range frames {
		clip = append(clip, f...)
	}
	if err := os.WriteFile(path, clip, 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	return path
}

func uniformFrame(size int, fill byte) []byte {
	f := make([]byte, size)
	for i := range f {
		f[i] = fill
	}
	return f
}

func TestFilePlaybackLoops(t *testing.T) {
	const w, h = 32, 16
	size := device.FrameSize(w, h)
	path := writeClip(t, uniformFrame(size, 0xAA), uniformFrame(size, 0xBB))

	f := NewFile(path, zap.NewNop())
	if err := f.StartDevice(w, h, device.PixelFormatYUV420); err != nil {
		t.Fatalf("StartDevice: %v", err)
	}

	fb := device.NewFrameBuffer(w, h)
	want := []byte{0xAA, 0xBB, 0xAA, 0xBB, 0xAA}
	for i, fill := range want {
		if !f.ProduceFrame(fb) {
			t.Fatalf("ProduceFrame %d failed", i)
		}
		if !bytes.Equal(fb.Y(), uniformFrame(w*h, fill)) {
			t.Fatalf("frame %d luma = %#x, want uniform %#x", i, fb.Y()[0], fill)
		}
	}

	if err := f.StopDevice(); err != nil {
		t.Fatalf("StopDevice: %v", err)
	}
	if f.ProduceFrame(fb) {
		t.Error("ProduceFrame succeeded after StopDevice")
	}
}

func TestFileStartErrors(t *testing.T) {
	const w, h = 32, 16
	f := NewFile(filepath.Join(t.TempDir(), "missing.yuv"), zap.NewNop())
	if err := f.StartDevice(w, h, device.PixelFormatYUV420); err == nil {
		t.Error("StartDevice succeeded on a missing file")
	}

	// A clip that is not a whole number of frames is rejected.
	truncated := writeClip(t, uniformFrame(device.FrameSize(w, h)-1, 0x00))
	f = NewFile(truncated, zap.NewNop())
	if err := f.StartDevice(w, h, device.PixelFormatYUV420); err == nil {
		t.Error("StartDevice accepted a truncated clip")
	}

	good := writeClip(t, uniformFrame(device.FrameSize(w, h), 0x00))
	f = NewFile(good, zap.NewNop())
	if err := f.StartDevice(w, h, device.PixelFormat("nv12")); err == nil {
		t.Error("StartDevice accepted an unsupported pixel format")
	}
}
