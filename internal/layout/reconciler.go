// Package layout recomputes model scale and position for the stage.
package layout

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/netixc/agent-avatar-app/internal/config"
	"github.com/netixc/agent-avatar-app/internal/live2d"
)

// referenceHeight is the container height at which the default scale
// applies unmodified; smaller containers scale the model down
// proportionally.
const referenceHeight = 1000.0

// Reconciler places the active model inside its container. It re-runs
// whenever the model becomes ready, the container resizes, or the
// per-model offsets change; with no model attached it is a no-op.
type Reconciler struct {
	logger       zerolog.Logger
	defaultScale float64

	mu        sync.Mutex
	handle    live2d.Handle
	modelCfg  config.ModelConfig
	container mgl64.Vec2
}

// NewReconciler creates a Reconciler. defaultScale is the stage-level
// scale applied when a model carries no scale hint.
func NewReconciler(defaultScale float64, logger zerolog.Logger) *Reconciler {
	if defaultScale <= 0 {
		defaultScale = 0.5
	}
	return &Reconciler{
		logger:       logger.With().Str("component", "layout").Logger(),
		defaultScale: defaultScale,
	}
}

// SetModel binds the reconciler to a newly ready model and reconciles.
func (r *Reconciler) SetModel(h live2d.Handle, cfg config.ModelConfig) {
	r.mu.Lock()
	r.handle = h
	r.modelCfg = cfg
	r.mu.Unlock()
	r.Reconcile()
}

// ClearModel detaches the reconciler from the released model.
func (r *Reconciler) ClearModel() {
	r.mu.Lock()
	r.handle = nil
	r.mu.Unlock()
}

// SetContainerSize records the stage dimensions and reconciles. In
// overlay mode the caller passes the viewport dimensions.
func (r *Reconciler) SetContainerSize(width, height float64) {
	r.mu.Lock()
	r.container = mgl64.Vec2{width, height}
	r.mu.Unlock()
	r.Reconcile()
}

// SetOffsets updates the per-model pixel offsets and reconciles.
func (r *Reconciler) SetOffsets(xShift, yShift float64) {
	r.mu.Lock()
	r.modelCfg.InitialXShift = xShift
	r.modelCfg.InitialYShift = yShift
	r.mu.Unlock()
	r.Reconcile()
}

// Reconcile recomputes scale and position. Safe to call at any time.
func (r *Reconciler) Reconcile() {
	r.mu.Lock()
	handle := r.handle
	cfg := r.modelCfg
	container := r.container
	r.mu.Unlock()

	if handle == nil {
		return
	}

	scale := cfg.ScaleHint
	if scale <= 0 {
		scale = r.computeDefaultScale(container)
	}

	center := container.Mul(0.5)
	position := center.Add(mgl64.Vec2{cfg.InitialXShift, cfg.InitialYShift})

	handle.SetScale(scale)
	handle.SetPosition(position.X(), position.Y())

	r.logger.Debug().
		Float64("scale", scale).
		Float64("x", position.X()).
		Float64("y", position.Y()).
		Msg("Model layout reconciled")
}

// computeDefaultScale derives a scale from the container dimensions so
// the model stays proportionate on small stages.
func (r *Reconciler) computeDefaultScale(container mgl64.Vec2) float64 {
	h := container.Y()
	if h <= 0 {
		return r.defaultScale
	}
	scale := r.defaultScale * (h / referenceHeight)
	if scale <= 0 {
		scale = r.defaultScale
	}
	return scale
}
