package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netixc/agent-avatar-app/internal/bus"
	"github.com/netixc/agent-avatar-app/internal/live2d"
	"github.com/netixc/agent-avatar-app/internal/motion"
)

// fakeHandle records Speak calls and lets the test decide when each
// playback resolves. With manual set, playbacks stay pending until
// RemoveAllListeners fails them, matching the real handle's teardown.
type fakeHandle struct {
	mu          sync.Mutex
	spoken      [][]byte
	expressions []string
	speakErr    error
	failWith    error
	concurrent  int
	maxOverlap  int
	hold        time.Duration
	manual      bool
	pending     []live2d.SpeakOptions
}

func (f *fakeHandle) Play(string, motion.Priority) error { return nil }

func (f *fakeHandle) SetExpression(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expressions = append(f.expressions, id)
	return nil
}

func (f *fakeHandle) ResetExpression()                        {}
func (f *fakeHandle) HitTest(x, y float64) []string           { return nil }
func (f *fakeHandle) ToLocal(x, y float64) (float64, float64) { return x, y }
func (f *fakeHandle) Position() (float64, float64)            { return 0, 0 }
func (f *fakeHandle) SetPosition(x, y float64)                {}
func (f *fakeHandle) Scale() float64                          { return 1 }
func (f *fakeHandle) SetScale(s float64)                      {}
func (f *fakeHandle) Update(dt float64)                       {}
func (f *fakeHandle) Destroy() {}

func (f *fakeHandle) RemoveAllListeners() {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, opts := range pending {
		if opts.OnError != nil {
			opts.OnError(errors.New("model handle destroyed"))
		}
	}
}

func (f *fakeHandle) Speak(audio []byte, opts live2d.SpeakOptions) error {
	f.mu.Lock()
	if f.speakErr != nil {
		err := f.speakErr
		f.mu.Unlock()
		return err
	}
	f.spoken = append(f.spoken, audio)
	if f.manual {
		f.pending = append(f.pending, opts)
		f.mu.Unlock()
		return nil
	}
	f.concurrent++
	if f.concurrent > f.maxOverlap {
		f.maxOverlap = f.concurrent
	}
	failWith := f.failWith
	hold := f.hold
	f.mu.Unlock()

	go func() {
		if hold > 0 {
			time.Sleep(hold)
		}
		f.mu.Lock()
		f.concurrent--
		f.mu.Unlock()
		if failWith != nil {
			opts.OnError(failWith)
			return
		}
		opts.OnFinish()
	}()
	return nil
}

func (f *fakeHandle) spokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spoken)
}

// recordingNotifier implements StartNotifier.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) NotifyPlaybackStart(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, text)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// recordingSink implements SubtitleSink and HistorySink.
type recordingSink struct {
	mu        sync.Mutex
	subtitles []string
	history   []string
}

func (s *recordingSink) ShowSubtitle(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subtitles = append(s.subtitles, text)
}

func (s *recordingSink) Append(speaker, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, speaker+": "+text)
}

func newTestQueue() *Queue {
	return NewQueue(bus.NewEventBus(), zerolog.Nop())
}

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.WaitForCompletion(ctx))
}

func TestQueue_PlaysTasksInOrder(t *testing.T) {
	q := newTestQueue()
	h := &fakeHandle{hold: 5 * time.Millisecond}
	q.SetHandle(h)

	first := NewTask([]byte("one"), []float64{0.5}, 20*time.Millisecond)
	second := NewTask([]byte("two"), []float64{0.5}, 20*time.Millisecond)
	third := NewTask([]byte("three"), []float64{0.5}, 20*time.Millisecond)

	q.Enqueue(first)
	q.Enqueue(second)
	q.Enqueue(third)
	waitIdle(t, q)

	require.Equal(t, 3, h.spokenCount())
	assert.Equal(t, []byte("one"), h.spoken[0])
	assert.Equal(t, []byte("two"), h.spoken[1])
	assert.Equal(t, []byte("three"), h.spoken[2])
}

func TestQueue_NeverOverlapsPlayback(t *testing.T) {
	q := newTestQueue()
	h := &fakeHandle{hold: 10 * time.Millisecond}
	q.SetHandle(h)

	for i := 0; i < 5; i++ {
		q.Enqueue(NewTask([]byte{byte(i)}, []float64{1}, 20*time.Millisecond))
	}
	waitIdle(t, q)

	assert.Equal(t, 5, h.spokenCount())
	assert.Equal(t, 1, h.maxOverlap, "two playbacks ran at once")
}

func TestQueue_PlaybackErrorResolvesAndAdvances(t *testing.T) {
	q := newTestQueue()
	h := &fakeHandle{failWith: errors.New("decode failed")}
	q.SetHandle(h)

	q.Enqueue(NewTask([]byte("bad"), []float64{1}, 20*time.Millisecond))
	q.Enqueue(NewTask([]byte("good"), []float64{1}, 20*time.Millisecond))
	waitIdle(t, q)

	// Both tasks ran; the first one's error did not stall the queue.
	assert.Equal(t, 2, h.spokenCount())
}

func TestQueue_SynchronousSpeakErrorAdvances(t *testing.T) {
	q := newTestQueue()
	h := &fakeHandle{speakErr: errors.New("handle destroyed")}
	q.SetHandle(h)

	q.Enqueue(NewTask([]byte("x"), []float64{1}, 20*time.Millisecond))
	waitIdle(t, q)

	assert.Equal(t, 0, q.Pending())
}

func TestQueue_SilentTaskResolvesWithoutSpeak(t *testing.T) {
	q := newTestQueue()
	h := &fakeHandle{}
	q.SetHandle(h)

	task := NewTask(nil, nil, 0)
	task.DisplayText = "thinking..."
	q.Enqueue(task)
	waitIdle(t, q)

	assert.Equal(t, 0, h.spokenCount())
}

func TestQueue_NilHandleStillShowsText(t *testing.T) {
	q := newTestQueue()
	sink := &recordingSink{}
	q.SetSinks(sink, sink)

	task := NewTask([]byte("audio"), []float64{1}, 20*time.Millisecond)
	task.DisplayText = "hello"
	task.SpeakerID = "AI"
	q.Enqueue(task)
	waitIdle(t, q)

	require.Len(t, sink.subtitles, 1)
	assert.Equal(t, "hello", sink.subtitles[0])
	assert.Equal(t, []string{"AI: hello"}, sink.history)
}

func TestQueue_InterruptDropsEnqueues(t *testing.T) {
	q := newTestQueue()
	h := &fakeHandle{}
	q.SetHandle(h)

	q.SetInterrupted(true)
	q.Enqueue(NewTask([]byte("dropped"), []float64{1}, 20*time.Millisecond))

	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, 0, h.spokenCount())
}

func TestQueue_InterruptSkipsQueuedTasks(t *testing.T) {
	q := newTestQueue()
	h := &fakeHandle{hold: 30 * time.Millisecond}
	q.SetHandle(h)

	q.Enqueue(NewTask([]byte("playing"), []float64{1}, 20*time.Millisecond))
	q.Enqueue(NewTask([]byte("queued"), []float64{1}, 20*time.Millisecond))

	// Interrupt while the first task is mid-playback. The in-flight task
	// runs to completion; the queued one is skipped at start.
	time.Sleep(10 * time.Millisecond)
	q.SetInterrupted(true)
	waitIdle(t, q)

	assert.Equal(t, 1, h.spokenCount())
}

func TestQueue_ModelSwapMidPlaybackDrainsQueue(t *testing.T) {
	q := newTestQueue()
	old := &fakeHandle{manual: true}
	q.SetHandle(old)

	q.Enqueue(NewTask([]byte("cut short"), []float64{1}, 20*time.Millisecond))
	require.Eventually(t, func() bool { return old.spokenCount() == 1 },
		time.Second, time.Millisecond, "first task never started")

	// Hot-swap while the first task plays: tearing down the old handle
	// fails its in-flight playback, which must resolve the task instead
	// of wedging the queue.
	old.RemoveAllListeners()
	replacement := &fakeHandle{}
	q.SetHandle(replacement)

	q.Enqueue(NewTask([]byte("after swap"), []float64{1}, 20*time.Millisecond))
	waitIdle(t, q)

	assert.Equal(t, 0, q.Pending())
	require.Equal(t, 1, replacement.spokenCount())
	assert.Equal(t, []byte("after swap"), replacement.spoken[0])
}

func TestQueue_ResumeAcceptsNewTasks(t *testing.T) {
	q := newTestQueue()
	h := &fakeHandle{}
	q.SetHandle(h)

	q.SetInterrupted(true)
	q.Enqueue(NewTask([]byte("dropped"), []float64{1}, 20*time.Millisecond))
	q.SetInterrupted(false)
	q.Enqueue(NewTask([]byte("played"), []float64{1}, 20*time.Millisecond))
	waitIdle(t, q)

	require.Equal(t, 1, h.spokenCount())
	assert.Equal(t, []byte("played"), h.spoken[0])
}

func TestQueue_WaitForCompletionReturnsImmediatelyWhenIdle(t *testing.T) {
	q := newTestQueue()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, q.WaitForCompletion(ctx))
}

func TestQueue_WaitForCompletionHonorsContext(t *testing.T) {
	q := newTestQueue()
	h := &fakeHandle{hold: 500 * time.Millisecond}
	q.SetHandle(h)

	q.Enqueue(NewTask([]byte("slow"), []float64{1}, 20*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.WaitForCompletion(ctx), context.DeadlineExceeded)

	waitIdle(t, q)
}

func TestQueue_NotifiesPlaybackStartOncePerTask(t *testing.T) {
	q := newTestQueue()
	h := &fakeHandle{}
	n := &recordingNotifier{}
	q.SetHandle(h)
	q.SetNotifier(n)

	task := NewTask([]byte("a"), []float64{1}, 20*time.Millisecond)
	task.DisplayText = "line"
	q.Enqueue(task)
	waitIdle(t, q)

	assert.Equal(t, 1, n.count())
}

func TestQueue_ForwardedTaskSkipsStartNotification(t *testing.T) {
	q := newTestQueue()
	h := &fakeHandle{}
	n := &recordingNotifier{}
	q.SetHandle(h)
	q.SetNotifier(n)

	task := NewTask([]byte("a"), []float64{1}, 20*time.Millisecond)
	task.Forwarded = true
	q.Enqueue(task)
	waitIdle(t, q)

	assert.Equal(t, 0, n.count())
}

func TestQueue_AppliesTaskExpression(t *testing.T) {
	q := newTestQueue()
	h := &fakeHandle{}
	q.SetHandle(h)

	task := NewTask([]byte("a"), []float64{1}, 20*time.Millisecond)
	task.ExpressionID = "joy"
	q.Enqueue(task)
	waitIdle(t, q)

	assert.Equal(t, []string{"joy"}, h.expressions)
}
