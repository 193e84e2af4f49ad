package backend

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netixc/agent-avatar-app/internal/bus"
	"github.com/netixc/agent-avatar-app/internal/speech"
)

func newTestClient(url string) *Client {
	return NewClient(&ClientConfig{
		ServerURL:      url,
		Timeout:        2 * time.Second,
		ReconnectDelay: 50 * time.Millisecond,
		MaxReconnects:  1,
	}, bus.NewEventBus(), zerolog.Nop())
}

func TestHandleMessage_AudioPayloadBuildsTask(t *testing.T) {
	c := newTestClient("")

	var got *speech.Task
	c.SetSpeechTaskHandler(func(task *speech.Task) { got = task })

	c.handleMessage(&Message{
		Type:          TypeAudioPayload,
		Audio:         base64.StdEncoding.EncodeToString([]byte("pcm-bytes")),
		Volumes:       []float64{0.1, 0.9},
		SliceLengthMs: 20,
		DisplayText:   "hello there",
		Expression:    "joy",
		SpeakerUID:    "mao",
		Forwarded:     true,
	})

	require.NotNil(t, got)
	assert.Equal(t, []byte("pcm-bytes"), got.Audio)
	assert.Equal(t, []float64{0.1, 0.9}, got.VisemeVolumes)
	assert.Equal(t, 20*time.Millisecond, got.SliceDuration)
	assert.Equal(t, "hello there", got.DisplayText)
	assert.Equal(t, "joy", got.ExpressionID)
	assert.Equal(t, "mao", got.SpeakerID)
	assert.True(t, got.Forwarded)
}

func TestHandleMessage_EmptyAudioIsSilentTask(t *testing.T) {
	c := newTestClient("")

	var got *speech.Task
	c.SetSpeechTaskHandler(func(task *speech.Task) { got = task })

	c.handleMessage(&Message{Type: TypeAudioPayload, DisplayText: "text only"})

	require.NotNil(t, got)
	assert.True(t, got.Silent())
}

func TestHandleMessage_MalformedAudioDropped(t *testing.T) {
	c := newTestClient("")

	called := false
	c.SetSpeechTaskHandler(func(*speech.Task) { called = true })

	c.handleMessage(&Message{Type: TypeAudioPayload, Audio: "not-base64!!!"})

	assert.False(t, called)
}

func TestHandleMessage_ControlFrames(t *testing.T) {
	c := newTestClient("")

	var events []string
	c.SetSynthCompleteHandler(func() { events = append(events, "synth") })
	c.SetInterruptHandlers(
		func() { events = append(events, "interrupt") },
		func() { events = append(events, "resume") },
	)
	c.SetExpressionHandler(func(id string) { events = append(events, "expr:"+id) })

	c.handleMessage(&Message{Type: TypeSynthComplete})
	c.handleMessage(&Message{Type: TypeInterruptSignal})
	c.handleMessage(&Message{Type: TypeConversationStart})
	c.handleMessage(&Message{Type: TypeSetExpression, Expression: "anger"})
	c.handleMessage(&Message{Type: "unknown-frame"})

	assert.Equal(t, []string{"synth", "interrupt", "resume", "expr:anger"}, events)
}

func TestNotify_WhenDisconnected(t *testing.T) {
	c := newTestClient("ws://localhost:1")

	assert.Error(t, c.NotifyPlaybackStart("line"))
	assert.Error(t, c.NotifyPlaybackComplete())
}

func TestClient_ConnectAndExchange(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan Message, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Push one audio frame, then collect whatever the client sends.
		require.NoError(t, conn.WriteJSON(Message{
			Type:        TypeAudioPayload,
			DisplayText: "from server",
		}))

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := newTestClient(wsURL)

	tasks := make(chan *speech.Task, 1)
	c.SetSpeechTaskHandler(func(task *speech.Task) { tasks <- task })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	select {
	case task := <-tasks:
		assert.Equal(t, "from server", task.DisplayText)
	case <-time.After(2 * time.Second):
		t.Fatal("speech task never arrived")
	}

	require.NoError(t, c.NotifyPlaybackStart("line one"))
	require.NoError(t, c.NotifyPlaybackComplete())

	var msgs []Message
	for len(msgs) < 2 {
		select {
		case msg := <-received:
			msgs = append(msgs, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("server received only %d messages", len(msgs))
		}
	}
	assert.Equal(t, TypeAudioPlayStart, msgs[0].Type)
	// The start notification marks itself as an echo.
	assert.True(t, msgs[0].Forwarded)
	assert.Equal(t, TypePlaybackComplete, msgs[1].Type)

	assert.True(t, c.IsConnected())
}
