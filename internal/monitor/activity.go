package monitor

import (
	"sync"
	"time"

	"github.com/Micca1978/scadarange/pkg/types"
)

// DefaultLogCapacity is the number of entries a subsystem log retains.
const DefaultLogCapacity = 1000

// ActivityLog keeps the most recent entries of one subsystem in a circular buffer.
// Once full, each append overwrites the oldest entry.
type ActivityLog struct {
	subsystem string
	entries   []types.LogEntry
	capacity  int
	index     int
	count     int
	now       func() time.Time
	sink      func(subsystem string, entry types.LogEntry)
	mu        sync.RWMutex
}

// NewActivityLog creates a log for subsystem holding at most capacity entries.
func NewActivityLog(subsystem string, capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &ActivityLog{
		subsystem: subsystem,
		entries:   make([]types.LogEntry, capacity),
		capacity:  capacity,
		now:       time.Now,
	}
}

// Append records an entry. The sink, if any, is called after the lock is released.
func (l *ActivityLog) Append(eventType, message string) types.LogEntry {
	l.mu.Lock()
	entry := types.LogEntry{
		Timestamp: l.now(),
		Type:      eventType,
		Message:   message,
	}
	l.entries[l.index] = entry
	l.index = (l.index + 1) % l.capacity
	if l.count < l.capacity {
		l.count++
	}
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		sink(l.subsystem, entry)
	}
	return entry
}

// Recent returns up to limit of the newest entries, oldest first.
// A non-positive limit returns everything retained.
func (l *ActivityLog) Recent(limit int) []types.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.LogEntry, n)
	for i := 0; i < n; i++ {
		idx := (l.index - n + i + l.capacity) % l.capacity
		out[i] = l.entries[idx]
	}
	return out
}

// Len returns the number of retained entries.
func (l *ActivityLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// SetSink installs a callback invoked for every appended entry.
func (l *ActivityLog) SetSink(sink func(subsystem string, entry types.LogEntry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// SetClock overrides the timestamp source.
func (l *ActivityLog) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
