// Package backend provides concrete frame sources for emulated camera
// devices: a synthetic pattern generator, raw file playback, a WebSocket
// stream receiver, and (on Linux) a real V4L2 capture device.
package backend

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/video-system/go-camera-emulator/pkg/device"
)

// Config holds backend construction parameters.
type Config struct {
	// Source identifies the frame origin: a file path for the file backend,
	// a ws:// URL for the stream backend, or a device node like /dev/video0
	// for the v4l2 backend. Unused by the fake backend.
	Source string
	// FPS paces source-side acquisition where the backend controls it.
	// Zero selects a backend-specific default.
	FPS int
	// Logger defaults to a no-op logger when nil.
	Logger *zap.Logger
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Registry holds registered backend factories by type name.
var registry = make(map[string]func(cfg Config) (device.Backend, error))

// Register registers a backend factory under a type name. Backends
// register themselves from init.
func Register(name string, factory func(cfg Config) (device.Backend, error)) {
	registry[name] = factory
}

// New constructs a backend of the named type.
func New(name string, cfg Config) (device.Backend, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend type %q (known: %v)", name, Types())
	}
	return factory(cfg)
}

// Types returns the registered backend type names, sorted.
func Types() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
