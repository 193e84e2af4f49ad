// Package chat keeps the on-screen conversation history.
package chat

import (
	"sync"
	"time"
)

// Line is one displayed chat line.
type Line struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryConfig configures retention.
type HistoryConfig struct {
	// MaxLines is the maximum number of lines to retain (default: 200)
	MaxLines int
	// DefaultSpeaker names lines appended without a speaker id
	DefaultSpeaker string
}

// DefaultHistoryConfig returns sensible defaults.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		MaxLines:       200,
		DefaultSpeaker: "AI",
	}
}

// History is a bounded ring of chat lines. It implements the playback
// queue's HistorySink.
type History struct {
	mu       sync.RWMutex
	lines    []Line
	config   HistoryConfig
	onAppend func(Line)
}

// NewHistory creates a History with the given config.
func NewHistory(config HistoryConfig) *History {
	if config.MaxLines <= 0 {
		config.MaxLines = 200
	}
	if config.DefaultSpeaker == "" {
		config.DefaultSpeaker = "AI"
	}
	return &History{
		lines:  make([]Line, 0, config.MaxLines),
		config: config,
	}
}

// SetOnAppend sets a callback invoked for every appended line (streamed
// to the frontend chat panel).
func (h *History) SetOnAppend(fn func(Line)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAppend = fn
}

// Append records a line, trimming past MaxLines.
func (h *History) Append(speaker, text string) {
	if text == "" {
		return
	}
	if speaker == "" {
		speaker = h.config.DefaultSpeaker
	}

	line := Line{
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	}

	h.mu.Lock()
	h.lines = append(h.lines, line)
	if len(h.lines) > h.config.MaxLines {
		h.lines = h.lines[len(h.lines)-h.config.MaxLines:]
	}
	cb := h.onAppend
	h.mu.Unlock()

	if cb != nil {
		cb(line)
	}
}

// Lines returns a copy of the stored lines.
func (h *History) Lines() []Line {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Line, len(h.lines))
	copy(result, h.lines)
	return result
}

// Count returns the number of stored lines.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.lines)
}

// Clear removes all lines.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = make([]Line, 0, h.config.MaxLines)
}
