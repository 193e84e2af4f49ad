package webstage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/netixc/agent-avatar-app/internal/live2d"
	"github.com/netixc/agent-avatar-app/internal/motion"
)

// ErrHandleDestroyed is returned by operations on a destroyed handle.
var ErrHandleDestroyed = errors.New("model handle destroyed")

// Event plumbing, swappable in tests.
var (
	eventsEmit = runtime.EventsEmit
	eventsOnce = runtime.EventsOnce
)

// speakListener tracks one in-flight playback: its one-shot event
// registrations and the resolver that fails it on teardown.
type speakListener struct {
	cancelFinish func()
	cancelError  func()
	fail         func(error)
}

// hitArea is one named tap region in model-local coordinates.
type hitArea struct {
	name   string
	x, y   float64
	width  float64
	height float64
}

// Handle is the webview-backed model instance. Transform state is
// authoritative on the Go side and flushed to the frontend once per
// frame; playback and motion commands go out as events.
type Handle struct {
	ctx    context.Context
	id     string
	logger zerolog.Logger

	mu        sync.Mutex
	x, y      float64
	scale     float64
	dirty     bool
	destroyed bool
	hitAreas  []hitArea
	pending   []*speakListener
}

// newHandle builds a handle from the frontend's model-loaded payload.
func newHandle(ctx context.Context, id string, payload map[string]any, logger zerolog.Logger) *Handle {
	h := &Handle{
		ctx:    ctx,
		id:     id,
		scale:  1.0,
		logger: logger.With().Str("model", id).Logger(),
	}

	if areas, ok := payload["hitAreas"].([]interface{}); ok {
		for _, raw := range areas {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name, _ := m["name"].(string)
			if name == "" {
				continue
			}
			h.hitAreas = append(h.hitAreas, hitArea{
				name:   name,
				x:      numField(m, "x"),
				y:      numField(m, "y"),
				width:  numField(m, "width"),
				height: numField(m, "height"),
			})
		}
	}

	return h
}

func numField(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

// ID returns the instance id shared with the frontend.
func (h *Handle) ID() string { return h.id }

// Play starts a motion on the model.
func (h *Handle) Play(motionName string, priority motion.Priority) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrHandleDestroyed
	}
	h.mu.Unlock()

	eventsEmit(h.ctx, "stage:play-motion", map[string]any{
		"id":       h.id,
		"motion":   motionName,
		"priority": int(priority),
	})
	return nil
}

// SetExpression applies a facial expression overlay.
func (h *Handle) SetExpression(id string) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrHandleDestroyed
	}
	h.mu.Unlock()

	eventsEmit(h.ctx, "stage:set-expression", map[string]any{
		"id":         h.id,
		"expression": id,
	})
	return nil
}

// ResetExpression clears any expression overlay.
func (h *Handle) ResetExpression() {
	h.mu.Lock()
	destroyed := h.destroyed
	h.mu.Unlock()
	if destroyed {
		return
	}

	eventsEmit(h.ctx, "stage:reset-expression", map[string]any{"id": h.id})
}

// HitTest reports the named areas containing the model-local point, in
// the order the model defines them (front-most first).
func (h *Handle) HitTest(x, y float64) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var hits []string
	for _, a := range h.hitAreas {
		if x >= a.x && x <= a.x+a.width && y >= a.y && y <= a.y+a.height {
			hits = append(hits, a.name)
		}
	}
	return hits
}

// ToLocal converts stage coordinates to model-local coordinates.
func (h *Handle) ToLocal(x, y float64) (float64, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.scale == 0 {
		return 0, 0
	}
	return (x - h.x) / h.scale, (y - h.y) / h.scale
}

// Speak plays a decoded audio buffer with lip-sync in the frontend.
// Completion and errors come back as one-shot events keyed by task id;
// exactly one of OnFinish or OnError fires, even when the handle is
// torn down mid-playback.
func (h *Handle) Speak(audio []byte, opts live2d.SpeakOptions) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrHandleDestroyed
	}
	h.mu.Unlock()

	if len(audio) == 0 {
		return fmt.Errorf("empty audio buffer")
	}

	taskID := uuid.NewString()
	var once sync.Once

	lst := &speakListener{}
	lst.fail = func(err error) {
		once.Do(func() {
			if opts.OnError != nil {
				opts.OnError(err)
			}
		})
	}

	lst.cancelFinish = eventsOnce(h.ctx, "stage:speak-finished:"+taskID, func(_ ...interface{}) {
		once.Do(func() {
			if opts.OnFinish != nil {
				opts.OnFinish()
			}
		})
		h.dropListener(lst)
	})
	lst.cancelError = eventsOnce(h.ctx, "stage:speak-failed:"+taskID, func(data ...interface{}) {
		payload, _ := firstMap(data)
		msg, _ := payload["error"].(string)
		if msg == "" {
			msg = "audio playback failed"
		}
		lst.fail(errors.New(msg))
		h.dropListener(lst)
	})

	h.mu.Lock()
	h.pending = append(h.pending, lst)
	h.mu.Unlock()

	frames := make([]map[string]any, 0, len(opts.Frames))
	for _, f := range opts.Frames {
		frames = append(frames, map[string]any{
			"atMs":   f.At.Milliseconds(),
			"volume": f.Volume,
		})
	}

	eventsEmit(h.ctx, "stage:speak", map[string]any{
		"id":     h.id,
		"taskId": taskID,
		"audio":  base64.StdEncoding.EncodeToString(audio),
		"frames": frames,
	})
	return nil
}

// dropListener forgets a settled playback registration.
func (h *Handle) dropListener(lst *speakListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.pending {
		if p == lst {
			h.pending = append(h.pending[:i], h.pending[i+1:]...)
			return
		}
	}
}

// Position returns the model's stage position.
func (h *Handle) Position() (float64, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.x, h.y
}

// SetPosition moves the model; the transform flushes on the next frame.
func (h *Handle) SetPosition(x, y float64) {
	h.mu.Lock()
	h.x = x
	h.y = y
	h.dirty = true
	h.mu.Unlock()
}

// Scale returns the model scale.
func (h *Handle) Scale() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scale
}

// SetScale rescales the model; the transform flushes on the next frame.
func (h *Handle) SetScale(s float64) {
	h.mu.Lock()
	h.scale = s
	h.dirty = true
	h.mu.Unlock()
}

// Update flushes a dirty transform to the frontend. Called from the
// surface's frame loop.
func (h *Handle) Update(dt float64) {
	h.mu.Lock()
	if h.destroyed || !h.dirty {
		h.mu.Unlock()
		return
	}
	h.dirty = false
	x, y, scale := h.x, h.y, h.scale
	h.mu.Unlock()

	eventsEmit(h.ctx, "stage:model-transform", map[string]any{
		"id":    h.id,
		"x":     x,
		"y":     y,
		"scale": scale,
	})
}

// RemoveAllListeners cancels every pending one-shot playback listener
// and fails its task with ErrHandleDestroyed, so callers waiting on a
// completion callback are never left hanging.
func (h *Handle) RemoveAllListeners() {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()

	for _, lst := range pending {
		lst.cancelFinish()
		lst.cancelError()
		lst.fail(ErrHandleDestroyed)
	}
}

// Destroy releases the frontend instance and its textures. Idempotent.
func (h *Handle) Destroy() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.destroyed = true
	h.mu.Unlock()

	h.RemoveAllListeners()
	eventsEmit(h.ctx, "stage:destroy-model", map[string]any{"id": h.id})
}
