// Package webstage implements the render-surface and model-loader
// capabilities on top of the webview stage. The actual GPU pipeline and
// model parser live in the frontend; this package drives them over the
// Wails event channel and keeps the Go side authoritative for transform
// and playback state.
package webstage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/netixc/agent-avatar-app/internal/live2d"
)

// frameInterval paces the Go-side animation tick. The webview repaints
// on its own; this tick only advances model state and flushes transforms.
const frameInterval = time.Second / 60

// Surface drives the stage canvas in the webview.
type Surface struct {
	logger zerolog.Logger
	opts   live2d.SurfaceOptions

	mu        sync.Mutex
	ctx       context.Context
	attached  map[string]*Handle
	destroyed bool
	stopTick  func()
}

// NewSurface creates a Surface. It is inert until Bind supplies the
// Wails runtime context.
func NewSurface(opts live2d.SurfaceOptions, logger zerolog.Logger) *Surface {
	return &Surface{
		logger:   logger.With().Str("component", "webstage").Logger(),
		opts:     opts,
		attached: make(map[string]*Handle),
	}
}

// Bind sets the Wails runtime context and tells the frontend to
// initialize the canvas.
func (s *Surface) Bind(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	runtime.EventsEmit(ctx, "stage:create", map[string]any{
		"width":                 s.opts.Width,
		"height":                s.opts.Height,
		"transparentBackground": s.opts.TransparentBackground,
		"devicePixelRatio":      s.opts.DevicePixelRatio,
	})
}

// AddDrawable attaches a model handle to the stage.
func (s *Surface) AddDrawable(h live2d.Handle) {
	wh, ok := h.(*Handle)
	if !ok {
		s.logger.Warn().Msg("AddDrawable called with a foreign handle")
		return
	}

	s.mu.Lock()
	s.attached[wh.id] = wh
	ctx := s.ctx
	s.mu.Unlock()

	if ctx != nil {
		runtime.EventsEmit(ctx, "stage:attach-model", map[string]any{"id": wh.id})
	}
}

// RemoveDrawable detaches a model handle from the stage.
func (s *Surface) RemoveDrawable(h live2d.Handle) {
	wh, ok := h.(*Handle)
	if !ok {
		return
	}

	s.mu.Lock()
	delete(s.attached, wh.id)
	ctx := s.ctx
	s.mu.Unlock()

	if ctx != nil {
		runtime.EventsEmit(ctx, "stage:detach-model", map[string]any{"id": wh.id})
	}
}

// Drawables returns the number of attached handles.
func (s *Surface) Drawables() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attached)
}

// OnEachFrame starts the per-frame callback and returns its stop
// function. The loop runs until stopped or the surface is destroyed.
func (s *Surface) OnEachFrame(fn func(dt float64)) (stop func()) {
	done := make(chan struct{})
	var once sync.Once
	stop = func() { once.Do(func() { close(done) }) }

	s.mu.Lock()
	s.stopTick = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(frameInterval)
		defer ticker.Stop()
		last := time.Now()

		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				dt := now.Sub(last).Seconds()
				last = now
				fn(dt)
			}
		}
	}()

	return stop
}

// Destroy tears the stage down. Idempotent.
func (s *Surface) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	stop := s.stopTick
	ctx := s.ctx
	s.attached = make(map[string]*Handle)
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if ctx != nil {
		runtime.EventsEmit(ctx, "stage:destroy", nil)
	}
}
