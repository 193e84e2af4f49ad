package live2d

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/netixc/agent-avatar-app/internal/bus"
	"github.com/netixc/agent-avatar-app/internal/config"
)

var (
	// ErrNoSurface is returned when Load is called before AttachSurface.
	ErrNoSurface = errors.New("no render surface attached")
	// ErrNoActiveModel signals an operation that needs an attached model.
	ErrNoActiveModel = errors.New("no active model")
)

// Manager owns creation, hot-swap and teardown of the active model
// instance. A new load fully releases the previous handle before the new
// one attaches, so stale listeners and drawables never survive a swap.
type Manager struct {
	loader Loader
	bus    *bus.EventBus
	logger zerolog.Logger

	mu        sync.Mutex
	surface   Surface
	stopFrame func()
	handle    Handle
	modelCfg  config.ModelConfig
	loading   bool
	ready     bool
	released  bool
}

// NewManager creates a Manager. Readiness changes are published on the
// event bus as model.ready / model.released events.
func NewManager(loader Loader, eventBus *bus.EventBus, logger zerolog.Logger) *Manager {
	return &Manager{
		loader: loader,
		bus:    eventBus,
		logger: logger.With().Str("component", "model-lifecycle").Logger(),
	}
}

// AttachSurface initializes the render surface exactly once and starts
// the per-frame redraw loop. Calling it again is a no-op.
func (m *Manager) AttachSurface(s Surface) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.surface != nil {
		m.logger.Debug().Msg("Surface already attached, ignoring")
		return
	}

	m.surface = s
	m.released = false
	m.stopFrame = s.OnEachFrame(m.onFrame)
	m.logger.Info().Msg("Render surface attached")
}

// onFrame advances the active model's animation each render tick.
func (m *Manager) onFrame(dt float64) {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()

	if h != nil {
		h.Update(dt)
	}
}

// Load obtains a model handle for cfg and swaps it in. If a load is
// already in flight the call is dropped, not queued; callers that need a
// later config to apply must re-issue after the first load settles. On
// failure the previous handle stays detached and the stage goes blank
// rather than crashing.
func (m *Manager) Load(ctx context.Context, cfg config.ModelConfig) error {
	m.mu.Lock()
	if m.surface == nil {
		m.mu.Unlock()
		return ErrNoSurface
	}
	if m.loading {
		m.mu.Unlock()
		m.logger.Debug().Str("url", cfg.URL).Msg("Load already in flight, dropping request")
		return nil
	}
	m.loading = true
	m.ready = false
	m.mu.Unlock()

	m.logger.Info().Str("url", cfg.URL).Str("name", cfg.Name).Msg("Loading model")

	handle, err := m.loader.Load(ctx, cfg.URL, LoadOptions{
		AutoHitTest:     true,
		AutoFocus:       true,
		IdleMotionGroup: cfg.IdleMotionGroup,
	})

	m.mu.Lock()
	// The old handle is released whether or not the load succeeded; a
	// failed load leaves the stage blank instead of half-swapped.
	hadHandle := m.handle != nil
	m.releaseHandleLocked()

	if err != nil {
		m.loading = false
		m.mu.Unlock()
		m.logger.Error().Err(err).Str("url", cfg.URL).Msg("Model load failed")
		if hadHandle {
			// Subscribers still hold the destroyed handle; tell them to
			// let go before reporting the failure.
			m.bus.Publish(bus.Event{Type: bus.EventTypeModelReleased, Data: nil})
		}
		m.bus.Publish(bus.Event{Type: bus.EventTypeModelFailed, Data: map[string]any{
			"url":   cfg.URL,
			"error": err.Error(),
		}})
		return err
	}

	if m.released || m.surface == nil {
		// Released while the load was in flight; discard the handle.
		m.loading = false
		m.mu.Unlock()
		m.logger.Warn().Str("url", cfg.URL).Msg("Manager released during load, discarding handle")
		handle.RemoveAllListeners()
		handle.Destroy()
		return nil
	}

	m.surface.AddDrawable(handle)
	m.handle = handle
	m.modelCfg = cfg
	m.loading = false
	m.ready = true
	m.mu.Unlock()

	if cfg.DefaultEmotion != "" {
		if err := handle.SetExpression(cfg.DefaultEmotion); err != nil {
			m.logger.Warn().Err(err).Str("expression", cfg.DefaultEmotion).Msg("Failed to apply default emotion")
		}
	}

	m.logger.Info().Str("name", cfg.Name).Msg("Model ready")
	// Synchronous publish: subscribers (interaction, sizing, speech) must
	// rebind to the new handle before anything else observes readiness.
	m.bus.PublishSync(bus.Event{Type: bus.EventTypeModelReady, Data: map[string]any{
		"handle": handle,
		"config": cfg,
	}})

	return nil
}

// Release tears down the current handle and surface. Safe to call
// multiple times.
func (m *Manager) Release() {
	m.mu.Lock()
	hadHandle := m.handle != nil
	m.releaseHandleLocked()
	if m.stopFrame != nil {
		m.stopFrame()
		m.stopFrame = nil
	}
	if m.surface != nil {
		m.surface.Destroy()
		m.surface = nil
	}
	m.ready = false
	m.released = true
	m.mu.Unlock()

	if hadHandle {
		m.logger.Info().Msg("Model released")
		m.bus.Publish(bus.Event{Type: bus.EventTypeModelReleased, Data: nil})
	}
}

// releaseHandleLocked detaches and destroys the current handle. Caller
// holds m.mu.
func (m *Manager) releaseHandleLocked() {
	if m.handle == nil {
		return
	}
	m.handle.RemoveAllListeners()
	if m.surface != nil {
		m.surface.RemoveDrawable(m.handle)
	}
	m.handle.Destroy()
	m.handle = nil
	m.ready = false
}

// Ready reports whether a model is loaded and attached.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Handle returns the active model handle, if any.
func (m *Manager) Handle() (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle, m.handle != nil
}

// ModelConfig returns the config of the active model, if any.
func (m *Manager) ModelConfig() (config.ModelConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modelCfg, m.handle != nil
}
