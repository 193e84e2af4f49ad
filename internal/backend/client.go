package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/netixc/agent-avatar-app/internal/bus"
	"github.com/netixc/agent-avatar-app/internal/speech"
)

// ClientConfig configures the backend conversation client.
type ClientConfig struct {
	ServerURL      string
	Timeout        time.Duration
	ReconnectDelay time.Duration
	MaxReconnects  int
	ClientID       string
}

// Client maintains the websocket conversation channel: inbound speech
// payloads and control frames, outbound playback notifications. It is
// the system's implementation of the outbound conversation messaging
// capability.
type Client struct {
	cfg    *ClientConfig
	logger zerolog.Logger
	bus    *bus.EventBus

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc

	// Callbacks
	onSpeechTask    func(*speech.Task)
	onSynthComplete func()
	onInterrupt     func()
	onResume        func()
	onExpression    func(id string)
}

// NewClient creates a backend client.
func NewClient(cfg *ClientConfig, eventBus *bus.EventBus, logger zerolog.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With().Str("component", "backend").Logger(),
		bus:    eventBus,
	}
}

// SetSpeechTaskHandler sets the callback for inbound speech payloads.
func (c *Client) SetSpeechTaskHandler(fn func(*speech.Task)) {
	c.onSpeechTask = fn
}

// SetSynthCompleteHandler sets the callback for the end-of-batch signal.
func (c *Client) SetSynthCompleteHandler(fn func()) {
	c.onSynthComplete = fn
}

// SetInterruptHandlers sets the callbacks for interrupt and resume
// control frames.
func (c *Client) SetInterruptHandlers(onInterrupt, onResume func()) {
	c.onInterrupt = onInterrupt
	c.onResume = onResume
}

// SetExpressionHandler sets the callback for standalone expression cues.
func (c *Client) SetExpressionHandler(fn func(id string)) {
	c.onExpression = fn
}

// Connect starts the connection loop in the background.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.connectLoop(ctx)
	return nil
}

// Close stops the connection loop and closes the socket.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()
}

// IsConnected returns connection status.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// connectLoop maintains the websocket connection with backoff.
func (c *Client) connectLoop(ctx context.Context) {
	backoff := c.cfg.ReconnectDelay
	maxBackoff := 60 * time.Second
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.runConnection(ctx); err != nil {
			attempts++
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			c.bus.Publish(bus.Event{Type: bus.EventTypeDisconnected, Data: nil})

			if c.cfg.MaxReconnects > 0 && attempts >= c.cfg.MaxReconnects {
				c.logger.Error().Err(err).Int("attempts", attempts).Msg("Giving up on backend connection")
				return
			}
			c.logger.Warn().Err(err).Msg("Backend connection lost, reconnecting...")

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		} else {
			backoff = c.cfg.ReconnectDelay
			attempts = 0
		}
	}
}

// runConnection dials and reads messages until the connection drops.
func (c *Client) runConnection(ctx context.Context) error {
	c.logger.Info().Str("url", c.cfg.ServerURL).Msg("Connecting to backend")

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.Timeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info().Msg("Connected to backend")
	c.bus.Publish(bus.Event{Type: bus.EventTypeConnected, Data: nil})

	// Close the socket when ctx ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		c.handleMessage(&msg)
	}
}

// handleMessage dispatches one inbound frame.
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case TypeAudioPayload:
		task, err := c.buildTask(msg)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed audio payload")
			return
		}
		if c.onSpeechTask != nil {
			c.onSpeechTask(task)
		}

	case TypeSynthComplete:
		if c.onSynthComplete != nil {
			c.onSynthComplete()
		}

	case TypeInterruptSignal:
		c.logger.Info().Msg("Interrupt signal received")
		c.bus.Publish(bus.Event{Type: bus.EventTypeInterrupted, Data: nil})
		if c.onInterrupt != nil {
			c.onInterrupt()
		}

	case TypeConversationStart:
		c.bus.Publish(bus.Event{Type: bus.EventTypeResumed, Data: nil})
		if c.onResume != nil {
			c.onResume()
		}

	case TypeConversationEnd:
		// Informational; the playback-complete gate handles the reply.

	case TypeSetExpression:
		if c.onExpression != nil {
			c.onExpression(msg.Expression)
		}

	default:
		c.logger.Debug().Str("type", msg.Type).Msg("Unknown message type")
	}
}

// buildTask converts an audio payload frame into a speech task.
func (c *Client) buildTask(msg *Message) (*speech.Task, error) {
	var audio []byte
	if msg.Audio != "" {
		decoded, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			return nil, fmt.Errorf("decode audio: %w", err)
		}
		audio = decoded
	}

	slice := time.Duration(msg.SliceLengthMs) * time.Millisecond
	task := speech.NewTask(audio, msg.Volumes, slice)
	task.DisplayText = msg.DisplayText
	task.ExpressionID = msg.Expression
	task.SpeakerID = msg.SpeakerUID
	task.Forwarded = msg.Forwarded
	return task, nil
}

// send writes one frame, guarding the connection.
func (c *Client) send(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(msg)
}

// NotifyPlaybackStart announces that playback of a line is starting so a
// paired process can mirror it. Implements speech.StartNotifier.
func (c *Client) NotifyPlaybackStart(displayText string) error {
	return c.send(&Message{
		Type:        TypeAudioPlayStart,
		DisplayText: displayText,
		Forwarded:   true,
	})
}

// NotifyPlaybackComplete tells the backend the whole synthesis batch has
// finished playing.
func (c *Client) NotifyPlaybackComplete() error {
	return c.send(&Message{Type: TypePlaybackComplete})
}
