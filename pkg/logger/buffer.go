package logger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry captures the interesting attributes of a logrus.Entry.
type Entry struct {
	ID      int          `json:"id"`
	Message string       `json:"message"`
	Time    time.Time    `json:"time"`
	Level   logrus.Level `json:"level"`
}

// Buffer is a fixed-capacity in-memory ring of recent log entries. Attach it as a
// logrus hook to capture the tail of a run for later inspection.
type Buffer struct {
	mu           sync.RWMutex
	ring         []*Entry
	totalEntries int
}

// NewBuffer creates a Buffer holding the most recent capacity entries.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{ring: make([]*Entry, capacity)}
}

// Fire implements the logrus.Hook interface.
func (b *Buffer) Fire(entry *logrus.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := &Entry{
		ID:      b.totalEntries,
		Message: messageAndFields(entry),
		Time:    entry.Time,
		Level:   entry.Level,
	}
	b.ring[b.totalEntries%len(b.ring)] = e
	b.totalEntries++
	return nil
}

// Levels implements the logrus.Hook interface.
func (b *Buffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Len returns the total number of entries ever written to the buffer.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalEntries
}

// Entries returns the retained entries in write order, oldest first.
func (b *Buffer) Entries() []*Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.totalEntries
	if count > len(b.ring) {
		count = len(b.ring)
	}
	out := make([]*Entry, 0, count)
	start := b.totalEntries - count
	for id := start; id < b.totalEntries; id++ {
		out = append(out, b.ring[id%len(b.ring)])
	}
	return out
}

// messageAndFields renders an entry's message followed by its fields in sorted order.
func messageAndFields(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return entry.Message
	}
	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fields := make([]string, 0, len(keys))
	for _, key := range keys {
		fields = append(fields, fmt.Sprintf("%s=%q", key, fmt.Sprintf("%v", entry.Data[key])))
	}
	return entry.Message + "  " + strings.Join(fields, " ")
}
