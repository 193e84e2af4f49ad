package bridge

import (
	"context"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// ShellMessenger relays hover and context-menu signals to the host
// shell. Only the overlay ("pet") build wires a live messenger; the
// windowed build runs without one and the signals are no-ops.
type ShellMessenger struct {
	ctx         context.Context
	componentID string
}

// NewShellMessenger creates a messenger for the given overlay component.
func NewShellMessenger(componentID string) *ShellMessenger {
	return &ShellMessenger{componentID: componentID}
}

// Bind sets the Wails runtime context
func (s *ShellMessenger) Bind(ctx context.Context) {
	s.ctx = ctx
}

// UpdateHover tells the shell whether the pointer is over the avatar, so
// it can toggle click-through on the transparent window.
func (s *ShellMessenger) UpdateHover(hovering bool) {
	if s.ctx == nil {
		return
	}
	runtime.EventsEmit(s.ctx, "shell:update-component-hover", map[string]any{
		"componentId": s.componentID,
		"hovering":    hovering,
	})
}

// ShowContextMenu asks the shell to open the avatar context menu.
func (s *ShellMessenger) ShowContextMenu() {
	if s.ctx == nil {
		return
	}
	runtime.EventsEmit(s.ctx, "shell:show-context-menu", map[string]any{
		"componentId": s.componentID,
	})
}
