// Package eventlog keeps a bounded in-memory ring of device lifecycle
// events. Old entries are overwritten once capacity is reached.
package eventlog

import (
	"sync"
	"time"
)

// Event records one device lifecycle transition.
type Event struct {
	Sequence int       `json:"sequence"`
	DeviceID string    `json:"device_id"`
	Kind     string    `json:"kind"`
	Time     time.Time `json:"time"`
}

// Log is a fixed-capacity event ring. Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Event
	next    int // sequence assigned to the next event
}

// New creates a log that retains the most recent capacity events.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = 64
	}
	return &Log{entries: make([]Event, 0, capacity)}
}

// Append records an event, evicting the oldest entry when full.
func (l *Log) Append(deviceID, kind string) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := Event{
		Sequence: l.next,
		DeviceID: deviceID,
		Kind:     kind,
		Time:     time.Now(),
	}
	l.next++

	if len(l.entries) < cap(l.entries) {
		l.entries = append(l.entries, ev)
	} else {
		copy(l.entries, l.entries[1:])
		l.entries[len(l.entries)-1] = ev
	}
	return ev
}

// Recent returns up to n events, newest last. n <= 0 returns everything
// retained.
func (l *Log) Recent(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Event, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Last returns the most recent event for a device, if any.
func (l *Log) Last(deviceID string) (Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].DeviceID == deviceID {
			return l.entries[i], true
		}
	}
	return Event{}, false
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
