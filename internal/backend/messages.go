// Package backend provides the conversation channel to the agent backend.
package backend

// Message type constants for the conversation channel.
const (
	// Inbound
	TypeAudioPayload      = "audio"
	TypeSynthComplete     = "backend-synth-complete"
	TypeInterruptSignal   = "interrupt-signal"
	TypeConversationStart = "conversation-chain-start"
	TypeConversationEnd   = "conversation-chain-end"
	TypeSetExpression     = "set-expression"

	// Outbound
	TypeAudioPlayStart   = "audio-play-start"
	TypePlaybackComplete = "frontend-playback-complete"
)

// Message is one JSON frame on the conversation channel. Field names are
// wire-compatible with the agent backend's runtime.
type Message struct {
	Type          string    `json:"type"`
	Audio         string    `json:"audio,omitempty"` // base64-encoded decoded audio
	Volumes       []float64 `json:"volumes,omitempty"`
	SliceLengthMs int       `json:"slice_length,omitempty"`
	DisplayText   string    `json:"display_text,omitempty"`
	Expression    string    `json:"expression,omitempty"`
	SpeakerUID    string    `json:"speaker_uid,omitempty"`
	Forwarded     bool      `json:"forwarded,omitempty"`
	Text          string    `json:"text,omitempty"`
}
