package bridge

import (
	"context"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/netixc/agent-avatar-app/internal/chat"
)

// ChatBridge streams chat lines and subtitles to the frontend. It
// implements the playback queue's SubtitleSink; the chat history feeds
// it through its append callback.
type ChatBridge struct {
	ctx     context.Context
	history *chat.History
}

// NewChatBridge creates the chat bridge
func NewChatBridge(history *chat.History) *ChatBridge {
	return &ChatBridge{history: history}
}

// Bind sets the Wails runtime context and starts streaming appended
// lines to the frontend
func (b *ChatBridge) Bind(ctx context.Context) {
	b.ctx = ctx

	b.history.SetOnAppend(func(line chat.Line) {
		if b.ctx != nil {
			runtime.EventsEmit(b.ctx, "chat:line", line)
		}
	})
}

// ShowSubtitle pushes the subtitle for the line about to play
func (b *ChatBridge) ShowSubtitle(text string) {
	if b.ctx == nil {
		return
	}
	runtime.EventsEmit(b.ctx, "subtitle:update", text)
}

// GetHistory returns the stored chat lines
func (b *ChatBridge) GetHistory() []chat.Line {
	return b.history.Lines()
}

// ClearHistory removes all chat lines
func (b *ChatBridge) ClearHistory() {
	b.history.Clear()
}
