package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/netixc/agent-avatar-app/internal/bus"
	"github.com/netixc/agent-avatar-app/internal/config"
	"github.com/netixc/agent-avatar-app/internal/interaction"
	"github.com/netixc/agent-avatar-app/internal/layout"
	"github.com/netixc/agent-avatar-app/internal/live2d"
	"github.com/netixc/agent-avatar-app/internal/logging"
)

// StageBridge routes frontend stage events (pointer gestures, container
// resizes, character switching) into the core components.
type StageBridge struct {
	ctx        context.Context
	manager    *live2d.Manager
	controller *interaction.Controller
	reconciler *layout.Reconciler
	eventBus   *bus.EventBus
	logger     *logging.Logger

	mu         sync.RWMutex
	characters *config.CharacterFile
	currentID  string
}

// NewStageBridge creates the stage bridge
func NewStageBridge(
	manager *live2d.Manager,
	controller *interaction.Controller,
	reconciler *layout.Reconciler,
	characters *config.CharacterFile,
	eventBus *bus.EventBus,
	logger *logging.Logger,
) *StageBridge {
	return &StageBridge{
		manager:    manager,
		controller: controller,
		reconciler: reconciler,
		characters: characters,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Bind sets the Wails runtime context
func (b *StageBridge) Bind(ctx context.Context) {
	b.ctx = ctx
}

// SetCharacters swaps in a re-parsed character file (hot reload).
func (b *StageBridge) SetCharacters(cf *config.CharacterFile) {
	b.mu.Lock()
	b.characters = cf
	b.mu.Unlock()
}

// PointerDown forwards a pointer-down from the stage canvas
func (b *StageBridge) PointerDown(x, y float64, button int) {
	b.controller.PointerDown(x, y, button)
}

// PointerMove forwards a pointer-move
func (b *StageBridge) PointerMove(x, y float64) {
	b.controller.PointerMove(x, y)
}

// PointerUp forwards a pointer-up
func (b *StageBridge) PointerUp(x, y float64) {
	b.controller.PointerUp(x, y)
}

// PointerUpOutside forwards a pointer-up that landed outside the stage
func (b *StageBridge) PointerUpOutside() {
	b.controller.PointerUpOutside()
}

// HoverEnter forwards pointer-over on the avatar
func (b *StageBridge) HoverEnter() {
	b.controller.HoverEnter()
}

// HoverLeave forwards pointer-out
func (b *StageBridge) HoverLeave() {
	b.controller.HoverLeave()
}

// RightClick forwards a secondary click
func (b *StageBridge) RightClick() {
	b.controller.RightClick()
}

// ContainerResized updates the layout for new stage dimensions
func (b *StageBridge) ContainerResized(width, height float64) {
	b.reconciler.SetContainerSize(width, height)
	b.eventBus.Publish(bus.Event{Type: bus.EventTypeStageResized, Data: map[string]any{
		"width":  width,
		"height": height,
	}})
}

// ListCharacters returns the available character ids
func (b *StageBridge) ListCharacters() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.characters.IDs()
}

// CurrentCharacter returns the id of the loaded character
func (b *StageBridge) CurrentCharacter() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.currentID
}

// SwitchCharacter loads the character with the given id. A load already
// in flight drops the request; the frontend retries once the current
// load settles.
func (b *StageBridge) SwitchCharacter(id string) error {
	b.mu.RLock()
	mc, ok := b.characters.Get(id)
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown character %q", id)
	}

	if err := b.manager.Load(context.Background(), mc); err != nil {
		return err
	}

	b.mu.Lock()
	b.currentID = id
	b.mu.Unlock()
	return nil
}

// ModelReady reports whether a model is loaded and attached
func (b *StageBridge) ModelReady() bool {
	return b.manager.Ready()
}
