// Package interaction binds pointer gestures to the active model.
package interaction

import (
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/netixc/agent-avatar-app/internal/bus"
	"github.com/netixc/agent-avatar-app/internal/config"
	"github.com/netixc/agent-avatar-app/internal/live2d"
	"github.com/netixc/agent-avatar-app/internal/motion"
)

// tapThresholdPx is the displacement at or beyond which a pointer-down
// stops counting as a tap.
const tapThresholdPx = 5.0

// PrimaryButton is the pointer button that starts a drag.
const PrimaryButton = 0

// ShellRelay forwards hover and menu signals to the host shell. Only
// wired in overlay ("pet") mode; a nil relay makes both signals no-ops.
type ShellRelay interface {
	UpdateHover(hovering bool)
	ShowContextMenu()
}

// Controller is the per-model gesture state machine. Pointer events
// arrive from the frontend bridge; taps resolve to a weighted motion
// played at forced priority, drags move the model.
type Controller struct {
	logger   zerolog.Logger
	bus      *bus.EventBus
	selector *motion.Selector
	shell    ShellRelay

	mu          sync.Mutex
	handle      live2d.Handle
	tapMotions  motion.TapMap
	interactive bool

	// Gesture state, reset on every pointer-down/up cycle and destroyed
	// with the model handle.
	dragging bool
	offsetX  float64
	offsetY  float64
	startX   float64
	startY   float64
	isTap    bool
	hovering bool
}

// NewController creates a Controller. shell may be nil outside overlay
// mode.
func NewController(selector *motion.Selector, shell ShellRelay, eventBus *bus.EventBus, logger zerolog.Logger) *Controller {
	return &Controller{
		logger:   logger.With().Str("component", "interaction").Logger(),
		bus:      eventBus,
		selector: selector,
		shell:    shell,
	}
}

// Bind attaches the controller to a newly ready model, discarding any
// gesture state from the previous handle. The lifecycle manager fully
// releases the old handle before this runs, so stale bindings never
// fire.
func (c *Controller) Bind(h live2d.Handle, cfg config.ModelConfig) {
	c.mu.Lock()
	c.handle = h
	c.tapMotions = cfg.TapMotions
	c.interactive = cfg.PointerInteractive
	c.dragging = false
	c.isTap = false
	c.mu.Unlock()
}

// Unbind detaches the controller when the model is released.
func (c *Controller) Unbind() {
	c.mu.Lock()
	c.handle = nil
	c.dragging = false
	c.isTap = false
	c.mu.Unlock()
}

// Dragging reports whether a drag is in progress.
func (c *Controller) Dragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dragging
}

// PointerDown starts a drag and tentatively marks it a tap.
func (c *Controller) PointerDown(x, y float64, button int) {
	if button != PrimaryButton {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil || !c.interactive {
		return
	}

	mx, my := c.handle.Position()
	c.offsetX = x - mx
	c.offsetY = y - my
	c.startX = x
	c.startY = y
	c.dragging = true
	c.isTap = true
}

// PointerMove drags the model; past the tap threshold the gesture stops
// being a tap.
func (c *Controller) PointerMove(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dragging || c.handle == nil {
		return
	}

	c.handle.SetPosition(x-c.offsetX, y-c.offsetY)

	if c.isTap {
		dx := x - c.startX
		dy := y - c.startY
		if math.Hypot(dx, dy) >= tapThresholdPx {
			c.isTap = false
		}
	}
}

// PointerUp ends the gesture; a surviving tap fires a motion at forced
// priority, interrupting whatever is playing.
func (c *Controller) PointerUp(x, y float64) {
	c.mu.Lock()
	if !c.dragging {
		c.mu.Unlock()
		return
	}
	c.dragging = false
	wasTap := c.isTap
	c.isTap = false
	handle := c.handle
	tapMotions := c.tapMotions
	c.mu.Unlock()

	if !wasTap || handle == nil {
		return
	}

	lx, ly := handle.ToLocal(x, y)
	areas := handle.HitTest(lx, ly)
	name, ok := c.selector.ResolveTapMotion(tapMotions, areas)
	if !ok {
		c.logger.Debug().Strs("areas", areas).Msg("Tap resolved to no motion")
		return
	}

	if err := handle.Play(name, motion.PriorityForced); err != nil {
		c.logger.Warn().Err(err).Str("motion", name).Msg("Failed to play tap motion")
		return
	}

	c.logger.Debug().Str("motion", name).Strs("areas", areas).Msg("Tap motion fired")
	c.bus.Publish(bus.Event{Type: bus.EventTypeTapMotion, Data: map[string]any{
		"motion": name,
		"areas":  areas,
	}})
}

// PointerUpOutside cancels the drag without firing a tap motion.
func (c *Controller) PointerUpOutside() {
	c.mu.Lock()
	c.dragging = false
	c.isTap = false
	c.mu.Unlock()
}

// HoverEnter relays pointer-over to the shell in overlay mode.
func (c *Controller) HoverEnter() {
	c.mu.Lock()
	c.hovering = true
	shell := c.shell
	c.mu.Unlock()

	if shell != nil {
		shell.UpdateHover(true)
	}
	c.bus.Publish(bus.Event{Type: bus.EventTypeHoverChange, Data: map[string]any{"hovering": true}})
}

// HoverLeave relays pointer-out unless a drag is in progress; drag takes
// visual priority over the hover signal.
func (c *Controller) HoverLeave() {
	c.mu.Lock()
	c.hovering = false
	dragging := c.dragging
	shell := c.shell
	c.mu.Unlock()

	if dragging {
		return
	}
	if shell != nil {
		shell.UpdateHover(false)
	}
	c.bus.Publish(bus.Event{Type: bus.EventTypeHoverChange, Data: map[string]any{"hovering": false}})
}

// RightClick asks the shell to show the context menu in overlay mode.
func (c *Controller) RightClick() {
	c.mu.Lock()
	shell := c.shell
	c.mu.Unlock()

	if shell != nil {
		shell.ShowContextMenu()
	}
}
