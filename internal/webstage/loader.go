package webstage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/netixc/agent-avatar-app/internal/live2d"
)

// loadTimeout bounds a single model fetch+parse round trip.
const loadTimeout = 30 * time.Second

// ErrLoadTimeout is returned when the frontend never reports back.
var ErrLoadTimeout = errors.New("model load timed out")

// Loader asks the webview to fetch and parse a model, returning a
// handle once the frontend reports the instance ready.
type Loader struct {
	logger zerolog.Logger

	mu  sync.RWMutex
	ctx context.Context
}

// NewLoader creates a Loader. It is inert until Bind supplies the Wails
// runtime context.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "webstage-loader").Logger(),
	}
}

// Bind sets the Wails runtime context
func (l *Loader) Bind(ctx context.Context) {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()
}

// Load implements live2d.Loader.
func (l *Loader) Load(ctx context.Context, url string, opts live2d.LoadOptions) (live2d.Handle, error) {
	l.mu.RLock()
	rctx := l.ctx
	l.mu.RUnlock()
	if rctx == nil {
		return nil, errors.New("stage not bound")
	}

	id := uuid.NewString()

	type loadResult struct {
		payload map[string]any
		err     error
	}
	resultCh := make(chan loadResult, 1)

	deliver := func(res loadResult) {
		select {
		case resultCh <- res:
		default:
		}
	}

	cancelLoaded := runtime.EventsOnce(rctx, "stage:model-loaded:"+id, func(data ...interface{}) {
		payload, _ := firstMap(data)
		deliver(loadResult{payload: payload})
	})
	cancelFailed := runtime.EventsOnce(rctx, "stage:model-load-failed:"+id, func(data ...interface{}) {
		payload, _ := firstMap(data)
		msg, _ := payload["error"].(string)
		if msg == "" {
			msg = "model load failed"
		}
		deliver(loadResult{err: errors.New(msg)})
	})
	defer cancelLoaded()
	defer cancelFailed()

	runtime.EventsEmit(rctx, "stage:load-model", map[string]any{
		"id":              id,
		"url":             url,
		"autoHitTest":     opts.AutoHitTest,
		"autoFocus":       opts.AutoFocus,
		"idleMotionGroup": opts.IdleMotionGroup,
	})

	timer := time.NewTimer(loadTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", ErrLoadTimeout, url)
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("load %s: %w", url, res.err)
		}
		h := newHandle(rctx, id, res.payload, l.logger)
		l.logger.Info().Str("url", url).Str("model", id).Msg("Model instance loaded")
		return h, nil
	}
}

// firstMap extracts the first argument as a JSON object.
func firstMap(data []interface{}) (map[string]any, bool) {
	if len(data) == 0 {
		return map[string]any{}, false
	}
	m, ok := data[0].(map[string]any)
	if !ok {
		return map[string]any{}, false
	}
	return m, true
}
