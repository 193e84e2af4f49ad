package speech

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/netixc/agent-avatar-app/internal/bus"
	"github.com/netixc/agent-avatar-app/internal/live2d"
)

// SubtitleSink receives the display text of the line about to play.
type SubtitleSink interface {
	ShowSubtitle(text string)
}

// HistorySink records spoken lines in the chat history.
type HistorySink interface {
	Append(speaker, text string)
}

// StartNotifier announces that playback of a line is starting, so a
// paired observer can mirror it. Called at most once per task.
type StartNotifier interface {
	NotifyPlaybackStart(displayText string) error
}

// Queue runs speech tasks strictly one at a time in FIFO order. A task
// resolves only when its audio playback finishes or errors; errors are
// swallowed into resolution so a bad buffer never stalls the queue.
type Queue struct {
	logger   zerolog.Logger
	bus      *bus.EventBus
	subtitle SubtitleSink
	history  HistorySink
	notifier StartNotifier

	mu          sync.Mutex
	pending     []*Task
	running     bool
	interrupted bool
	handle      live2d.Handle
	idleWaiters []chan struct{}
}

// NewQueue creates a playback queue. Sinks and notifier may be nil.
func NewQueue(eventBus *bus.EventBus, logger zerolog.Logger) *Queue {
	return &Queue{
		logger: logger.With().Str("component", "speech-queue").Logger(),
		bus:    eventBus,
	}
}

// SetSinks wires the subtitle and chat-history collaborators.
func (q *Queue) SetSinks(subtitle SubtitleSink, history HistorySink) {
	q.mu.Lock()
	q.subtitle = subtitle
	q.history = history
	q.mu.Unlock()
}

// SetNotifier wires the outbound playback-start notifier.
func (q *Queue) SetNotifier(n StartNotifier) {
	q.mu.Lock()
	q.notifier = n
	q.mu.Unlock()
}

// SetHandle swaps in the model handle the queue drives. Called by the
// wiring layer on every model.ready; a nil handle turns lip-sync and
// expressions into no-ops while text lines keep flowing.
func (q *Queue) SetHandle(h live2d.Handle) {
	q.mu.Lock()
	q.handle = h
	q.mu.Unlock()
}

// SetInterrupted toggles the conversation-interrupted gate. While set,
// new tasks are dropped at enqueue and queued tasks resolve without side
// effects. An already-started playback runs to its own completion.
func (q *Queue) SetInterrupted(v bool) {
	q.mu.Lock()
	q.interrupted = v
	q.mu.Unlock()
	if v {
		q.logger.Info().Msg("Conversation interrupted, dropping queued speech")
	}
}

// Interrupted reports the gate state.
func (q *Queue) Interrupted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.interrupted
}

// Pending returns the number of tasks waiting to run.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Enqueue appends a task and starts the drain if the queue was idle.
// Tasks enqueued while interrupted are silently dropped.
func (q *Queue) Enqueue(t *Task) {
	q.mu.Lock()
	if q.interrupted {
		q.mu.Unlock()
		q.logger.Debug().Str("task", t.ID).Msg("Dropping task, conversation interrupted")
		return
	}
	q.pending = append(q.pending, t)
	start := !q.running
	if start {
		q.running = true
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
}

// WaitForCompletion blocks until the queue is empty and idle. Used to
// gate the playback-complete signal exactly once per synthesis batch.
func (q *Queue) WaitForCompletion(ctx context.Context) error {
	q.mu.Lock()
	if !q.running && len(q.pending) == 0 {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.idleWaiters = append(q.idleWaiters, ch)
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// drain runs tasks until the queue empties, then wakes idle waiters.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			waiters := q.idleWaiters
			q.idleWaiters = nil
			q.mu.Unlock()

			for _, ch := range waiters {
				close(ch)
			}
			q.bus.Publish(bus.Event{Type: bus.EventTypeQueueIdle, Data: nil})
			return
		}
		t := q.pending[0]
		q.pending = q.pending[1:]
		interrupted := q.interrupted
		handle := q.handle
		subtitle := q.subtitle
		history := q.history
		notifier := q.notifier
		q.mu.Unlock()

		q.run(t, interrupted, handle, subtitle, history, notifier)
	}
}

// run executes one task to resolution.
func (q *Queue) run(t *Task, interrupted bool, handle live2d.Handle,
	subtitle SubtitleSink, history HistorySink, notifier StartNotifier) {

	if interrupted {
		q.logger.Debug().Str("task", t.ID).Msg("Skipping task, conversation interrupted")
		return
	}

	if t.DisplayText != "" {
		if history != nil {
			history.Append(t.SpeakerID, t.DisplayText)
		}
		if subtitle != nil {
			subtitle.ShowSubtitle(t.DisplayText)
		}
	}

	if !t.Forwarded && notifier != nil {
		if err := notifier.NotifyPlaybackStart(t.DisplayText); err != nil {
			q.logger.Warn().Err(err).Str("task", t.ID).Msg("Failed to announce playback start")
		}
	}

	if t.ExpressionID != "" && handle != nil {
		if err := handle.SetExpression(t.ExpressionID); err != nil {
			q.logger.Warn().Err(err).Str("expression", t.ExpressionID).Msg("Failed to apply expression")
		}
	}

	q.bus.Publish(bus.Event{Type: bus.EventTypePlaybackStarted, Data: map[string]any{
		"task": t.ID,
		"text": t.DisplayText,
	}})

	if t.Silent() {
		q.logger.Debug().Str("task", t.ID).Msg("Silent line, resolving immediately")
		q.finish(t)
		return
	}

	if handle == nil {
		// No model to lip-sync against; the line was still shown.
		q.logger.Debug().Str("task", t.ID).Msg("No active model, resolving without playback")
		q.finish(t)
		return
	}

	done := make(chan struct{})
	var once sync.Once
	resolve := func() { once.Do(func() { close(done) }) }

	err := handle.Speak(t.Audio, live2d.SpeakOptions{
		Frames: BuildVolumeTimeline(t.VisemeVolumes, t.SliceDuration),
		OnFinish: func() {
			resolve()
		},
		OnError: func(err error) {
			q.logger.Error().Err(err).Str("task", t.ID).Msg("Playback failed, resolving task")
			resolve()
		},
	})
	if err != nil {
		// Synchronous setup failure; surface it, then keep advancing.
		q.logger.Error().Err(err).Str("task", t.ID).Msg("Playback setup failed")
		q.bus.Publish(bus.Event{Type: bus.EventTypePlaybackCompleted, Data: map[string]any{
			"task":  t.ID,
			"error": err.Error(),
		}})
		return
	}

	<-done
	q.finish(t)
}

func (q *Queue) finish(t *Task) {
	q.bus.Publish(bus.Event{Type: bus.EventTypePlaybackCompleted, Data: map[string]any{
		"task": t.ID,
	}})
}
