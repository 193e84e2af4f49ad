package main

import (
	"context"
	"sync"
	"time"

	"github.com/netixc/agent-avatar-app/internal/live2d"
	"github.com/netixc/agent-avatar-app/internal/logging"
	"github.com/netixc/agent-avatar-app/internal/motion"
	"github.com/netixc/agent-avatar-app/internal/speech"
)

// stubLoader fabricates handles without fetching anything. The handle
// carries one full-model hit area so taps always resolve.
type stubLoader struct {
	logger *logging.Logger
}

func (l *stubLoader) Load(ctx context.Context, url string, opts live2d.LoadOptions) (live2d.Handle, error) {
	l.logger.Info("stub-loader", "Pretending to load model", map[string]interface{}{
		"url": url,
	})
	return &stubHandle{logger: l.logger, scale: 1}, nil
}

// stubSurface satisfies the surface capability with a real frame loop and
// no rendering.
type stubSurface struct {
	mu        sync.Mutex
	drawables int
	destroyed bool
}

func newStubSurface() *stubSurface {
	return &stubSurface{}
}

func (s *stubSurface) AddDrawable(h live2d.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawables++
}

func (s *stubSurface) RemoveDrawable(h live2d.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drawables > 0 {
		s.drawables--
	}
}

func (s *stubSurface) OnEachFrame(fn func(dt float64)) (stop func()) {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(time.Second / 30)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				fn(now.Sub(last).Seconds())
				last = now
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

func (s *stubSurface) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}

// stubHandle simulates playback by sleeping out the viseme timeline.
type stubHandle struct {
	logger *logging.Logger

	mu    sync.Mutex
	x, y  float64
	scale float64
}

func (h *stubHandle) Play(name string, p motion.Priority) error {
	h.logger.Info("stub-model", "Playing motion", map[string]interface{}{
		"motion":   name,
		"priority": int(p),
	})
	return nil
}

func (h *stubHandle) SetExpression(id string) error {
	h.logger.Info("stub-model", "Expression set", map[string]interface{}{"id": id})
	return nil
}

func (h *stubHandle) ResetExpression() {}

func (h *stubHandle) HitTest(x, y float64) []string {
	return []string{"body"}
}

func (h *stubHandle) ToLocal(x, y float64) (float64, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.scale == 0 {
		return 0, 0
	}
	return (x - h.x) / h.scale, (y - h.y) / h.scale
}

func (h *stubHandle) Speak(audio []byte, opts live2d.SpeakOptions) error {
	go func() {
		time.Sleep(speech.TimelineDuration(opts.Frames))
		if opts.OnFinish != nil {
			opts.OnFinish()
		}
	}()
	return nil
}

func (h *stubHandle) Position() (float64, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.x, h.y
}

func (h *stubHandle) SetPosition(x, y float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.x = x
	h.y = y
}

func (h *stubHandle) Scale() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scale
}

func (h *stubHandle) SetScale(s float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scale = s
}

func (h *stubHandle) Update(dt float64)   {}
func (h *stubHandle) RemoveAllListeners() {}
func (h *stubHandle) Destroy()            {}
