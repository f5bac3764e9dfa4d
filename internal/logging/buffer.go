package logging

import (
	"strings"
	"sync"
)

// Buffer keeps the most recent log lines in memory for the status API.
// It implements io.Writer and zapcore.WriteSyncer.
type Buffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial string
	dropped uint64
}

func NewBuffer(maxLines int) *Buffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &Buffer{max: maxLines}
}

// Write splits p into lines. A trailing fragment without newline is held
// until the rest of the line arrives.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := b.partial + string(p)
	b.partial = ""
	for {
		i := strings.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		b.appendLineLocked(data[:i])
		data = data[i+1:]
	}
	b.partial = data
	return len(p), nil
}

func (b *Buffer) Sync() error { return nil }

func (b *Buffer) appendLineLocked(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		over := len(b.lines) - b.max
		b.lines = b.lines[over:]
		b.dropped += uint64(over)
	}
}

// Snapshot returns up to tail most recent lines (200 when tail <= 0) and the
// number of lines evicted so far.
func (b *Buffer) Snapshot(tail int) (lines []string, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped = b.dropped
	if tail <= 0 {
		tail = 200
	}
	if tail > len(b.lines) {
		tail = len(b.lines)
	}
	lines = append([]string(nil), b.lines[len(b.lines)-tail:]...)
	return lines, dropped
}

// String joins the retained lines; handy in tests.
func (b *Buffer) String() string {
	lines, _ := b.Snapshot(b.max)
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return sb.String()
}
