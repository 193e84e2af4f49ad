// Package speech serializes speech-plus-lipsync playback so lines play
// back-to-back without overlap.
package speech

import (
	"time"

	"github.com/google/uuid"
)

// Task is one speech line: decoded audio plus per-slice viseme volumes
// and the optional text/expression cues that accompany it. Immutable
// once enqueued.
type Task struct {
	ID            string
	Audio         []byte
	VisemeVolumes []float64
	SliceDuration time.Duration
	DisplayText   string
	ExpressionID  string
	SpeakerID     string
	// Forwarded marks an echo of a line another client already
	// announced; forwarded tasks do not re-emit the start notification.
	Forwarded bool
}

// NewTask assigns the task a unique id for log correlation.
func NewTask(audio []byte, volumes []float64, sliceDuration time.Duration) *Task {
	return &Task{
		ID:            uuid.NewString(),
		Audio:         audio,
		VisemeVolumes: volumes,
		SliceDuration: sliceDuration,
	}
}

// Silent reports whether the task carries no audio (a text-only line).
func (t *Task) Silent() bool {
	return len(t.Audio) == 0
}
