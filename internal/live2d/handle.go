// Package live2d manages the lifecycle of the animated character model.
// The rendering engine and the model asset loader are external
// collaborators consumed through the Surface, Loader and Handle
// capabilities; this package owns which model is attached and when it is
// torn down.
package live2d

import (
	"context"
	"time"

	"github.com/netixc/agent-avatar-app/internal/motion"
)

// SurfaceOptions describe the canvas the surface renders into.
type SurfaceOptions struct {
	Width                 int
	Height                int
	TransparentBackground bool
	DevicePixelRatio      float64
}

// Surface is the hardware-accelerated canvas capability. At most one
// model handle is attached at a time; the per-frame callback keeps
// running until Destroy.
type Surface interface {
	AddDrawable(h Handle)
	RemoveDrawable(h Handle)
	// OnEachFrame registers the frame callback and returns a stop
	// function. dt is the elapsed time since the previous frame.
	OnEachFrame(fn func(dt float64)) (stop func())
	Destroy()
}

// LoadOptions are passed to the model loader.
type LoadOptions struct {
	AutoHitTest     bool
	AutoFocus       bool
	IdleMotionGroup string
}

// Loader asynchronously obtains a model handle from a source URL. It
// fails with an error on fetch or parse problems.
type Loader interface {
	Load(ctx context.Context, url string, opts LoadOptions) (Handle, error)
}

// VolumeFrame is one lip-sync mouth-volume sample on the playback
// timeline.
type VolumeFrame struct {
	At     time.Duration `json:"at"`
	Volume float64       `json:"volume"`
}

// SpeakOptions configure one lip-synced audio playback. Exactly one of
// OnFinish or OnError fires when playback ends.
type SpeakOptions struct {
	Frames   []VolumeFrame
	OnFinish func()
	OnError  func(error)
}

// Handle is the opaque handle to the active animated model instance.
// It is owned exclusively by the Manager; other components hold a
// non-owning reference valid for the handle's current lifetime.
type Handle interface {
	Play(motionName string, priority motion.Priority) error
	SetExpression(id string) error
	ResetExpression()

	// HitTest reports the named hit areas under a model-local point,
	// front-most first.
	HitTest(x, y float64) []string
	// ToLocal converts stage coordinates to model-local coordinates.
	ToLocal(x, y float64) (float64, float64)

	// Speak plays a decoded audio buffer with lip-sync driven by the
	// volume frames. A synchronous error means playback never started.
	Speak(audio []byte, opts SpeakOptions) error

	Position() (x, y float64)
	SetPosition(x, y float64)
	Scale() float64
	SetScale(s float64)

	// Update advances the model's animation state by dt seconds.
	Update(dt float64)

	RemoveAllListeners()
	Destroy()
}
