// Package transcript keeps the in-session conversation transcript and the
// view synchronisation that keeps it scrolled to the newest message.
//
// [Log] is an append-only buffer of [Entry] values for the current session.
// [Synchronizer] debounces "message received" notifications into at most one
// scroll effect per burst. Neither is persisted.
package transcript

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/voicecanvas/internal/notify"
	"github.com/MrWong99/voicecanvas/internal/observe"
)

// Role identifies the speaker of an [Entry].
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleSystem marks entries produced by the controller itself, such as a
	// rejected tool call.
	RoleSystem Role = "system"
)

// Entry is one transcript message.
type Entry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is the session transcript. It is safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	hub     notify.Hub[Entry]
	metrics *observe.Metrics
}

// NewLog returns an empty Log. A nil m uses [observe.DefaultMetrics].
func NewLog(m *observe.Metrics) *Log {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Log{metrics: m}
}

// Append adds e to the log and returns the new entry count. A zero Timestamp
// is set to the current time.
func (l *Log) Append(e Entry) int {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	n := len(l.entries)
	l.hub.Publish(e)
	l.mu.Unlock()

	l.metrics.RecordTranscriptMessage(context.Background(), string(e.Role))
	return n
}

// Entries returns a copy of all entries in append order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.entries)
}

// Len reports the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Reset drops every entry. Subscribers are not notified.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Subscribe returns a channel that receives the most recently appended entry
// on a latest-wins basis. Readers that need every entry should treat a
// receive as a signal and re-read [Log.Entries].
func (l *Log) Subscribe() (<-chan Entry, func()) {
	return l.hub.Subscribe()
}

// Close closes every subscriber channel.
func (l *Log) Close() {
	l.hub.Close()
}
