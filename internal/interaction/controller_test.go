package interaction

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netixc/agent-avatar-app/internal/bus"
	"github.com/netixc/agent-avatar-app/internal/config"
	"github.com/netixc/agent-avatar-app/internal/live2d"
	"github.com/netixc/agent-avatar-app/internal/motion"
)

// gestureHandle tracks position changes and played motions.
type gestureHandle struct {
	mu       sync.Mutex
	x, y     float64
	played   []string
	priority motion.Priority
	hits     []string
}

func (h *gestureHandle) Play(name string, p motion.Priority) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.played = append(h.played, name)
	h.priority = p
	return nil
}

func (h *gestureHandle) SetExpression(string) error { return nil }
func (h *gestureHandle) ResetExpression()           {}

func (h *gestureHandle) HitTest(x, y float64) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits
}

func (h *gestureHandle) ToLocal(x, y float64) (float64, float64) { return x, y }
func (h *gestureHandle) Speak([]byte, live2d.SpeakOptions) error { return nil }

func (h *gestureHandle) Position() (float64, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.x, h.y
}

func (h *gestureHandle) SetPosition(x, y float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.x = x
	h.y = y
}

func (h *gestureHandle) Scale() float64      { return 1 }
func (h *gestureHandle) SetScale(s float64)  {}
func (h *gestureHandle) Update(dt float64)   {}
func (h *gestureHandle) RemoveAllListeners() {}
func (h *gestureHandle) Destroy()            {}

func (h *gestureHandle) playedMotions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.played))
	copy(out, h.played)
	return out
}

// recordingShell captures hover and menu relays.
type recordingShell struct {
	mu     sync.Mutex
	hovers []bool
	menus  int
}

func (s *recordingShell) UpdateHover(hovering bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hovers = append(s.hovers, hovering)
}

func (s *recordingShell) ShowContextMenu() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menus++
}

func (s *recordingShell) hoverCalls() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bool, len(s.hovers))
	copy(out, s.hovers)
	return out
}

func newTestController(shell ShellRelay) (*Controller, *gestureHandle) {
	selector := motion.NewSelector(rand.New(rand.NewSource(1)))
	c := NewController(selector, shell, bus.NewEventBus(), zerolog.Nop())
	h := &gestureHandle{x: 100, y: 100, hits: []string{"head"}}
	c.Bind(h, config.ModelConfig{
		PointerInteractive: true,
		TapMotions:         motion.TapMap{"head": {"flick_head": 1.0}},
	})
	return c, h
}

func TestController_TapFiresForcedMotion(t *testing.T) {
	c, h := newTestController(nil)

	c.PointerDown(110, 110, PrimaryButton)
	c.PointerUp(110, 110)

	require.Equal(t, []string{"flick_head"}, h.playedMotions())
	assert.Equal(t, motion.PriorityForced, h.priority)
	assert.False(t, c.Dragging())
}

func TestController_MovementWithinThresholdStaysATap(t *testing.T) {
	c, h := newTestController(nil)

	c.PointerDown(110, 110, PrimaryButton)
	c.PointerMove(113, 113) // hypot(3,3) ≈ 4.24, under the threshold
	c.PointerUp(113, 113)

	assert.Equal(t, []string{"flick_head"}, h.playedMotions())
}

func TestController_MovementAtThresholdCancelsTap(t *testing.T) {
	c, h := newTestController(nil)

	c.PointerDown(110, 110, PrimaryButton)
	c.PointerMove(115, 110) // exactly 5px cancels the tap
	c.PointerUp(115, 110)

	assert.Empty(t, h.playedMotions())
}

func TestController_MovementPastThresholdCancelsTap(t *testing.T) {
	c, h := newTestController(nil)

	c.PointerDown(110, 110, PrimaryButton)
	c.PointerMove(116, 110) // 6px, past the threshold
	c.PointerMove(110, 110) // returning does not restore tap-ness
	c.PointerUp(110, 110)

	assert.Empty(t, h.playedMotions())
}

func TestController_DragMovesModelPreservingGrabOffset(t *testing.T) {
	c, h := newTestController(nil)

	// Grab 10px right/below the model origin.
	c.PointerDown(110, 110, PrimaryButton)
	c.PointerMove(200, 150)

	x, y := h.Position()
	assert.Equal(t, 190.0, x)
	assert.Equal(t, 140.0, y)
}

func TestController_SecondaryButtonDoesNotDrag(t *testing.T) {
	c, _ := newTestController(nil)

	c.PointerDown(110, 110, 2)
	assert.False(t, c.Dragging())
}

func TestController_NonInteractiveModelIgnoresPointer(t *testing.T) {
	selector := motion.NewSelector(rand.New(rand.NewSource(1)))
	c := NewController(selector, nil, bus.NewEventBus(), zerolog.Nop())
	h := &gestureHandle{hits: []string{"head"}}
	c.Bind(h, config.ModelConfig{
		PointerInteractive: false,
		TapMotions:         motion.TapMap{"head": {"flick_head": 1.0}},
	})

	c.PointerDown(10, 10, PrimaryButton)
	c.PointerUp(10, 10)

	assert.False(t, c.Dragging())
	assert.Empty(t, h.playedMotions())
}

func TestController_PointerUpOutsideCancelsWithoutMotion(t *testing.T) {
	c, h := newTestController(nil)

	c.PointerDown(110, 110, PrimaryButton)
	c.PointerUpOutside()

	assert.False(t, c.Dragging())
	assert.Empty(t, h.playedMotions())
}

func TestController_UnboundControllerIgnoresGestures(t *testing.T) {
	c, h := newTestController(nil)
	c.Unbind()

	c.PointerDown(110, 110, PrimaryButton)
	c.PointerUp(110, 110)

	assert.Empty(t, h.playedMotions())
}

func TestController_TapOutsideHitAreasUsesMergedFallback(t *testing.T) {
	c, h := newTestController(nil)
	h.mu.Lock()
	h.hits = nil
	h.mu.Unlock()

	c.PointerDown(110, 110, PrimaryButton)
	c.PointerUp(110, 110)

	// One group only, so the merged fallback still lands on its motion.
	assert.Equal(t, []string{"flick_head"}, h.playedMotions())
}

func TestController_HoverRelaysToShell(t *testing.T) {
	shell := &recordingShell{}
	c, _ := newTestController(shell)

	c.HoverEnter()
	c.HoverLeave()

	assert.Equal(t, []bool{true, false}, shell.hoverCalls())
}

func TestController_HoverLeaveSuppressedWhileDragging(t *testing.T) {
	shell := &recordingShell{}
	c, _ := newTestController(shell)

	c.PointerDown(110, 110, PrimaryButton)
	c.HoverEnter()
	c.HoverLeave() // mid-drag: the shell must keep showing hover

	assert.Equal(t, []bool{true}, shell.hoverCalls())
}

func TestController_RightClickOpensContextMenu(t *testing.T) {
	shell := &recordingShell{}
	c, _ := newTestController(shell)

	c.RightClick()

	shell.mu.Lock()
	defer shell.mu.Unlock()
	assert.Equal(t, 1, shell.menus)
}

func TestController_NilShellIsSafe(t *testing.T) {
	c, _ := newTestController(nil)

	c.HoverEnter()
	c.HoverLeave()
	c.RightClick()
}
