package speech

import (
	"time"

	"github.com/netixc/agent-avatar-app/internal/live2d"
)

// BuildVolumeTimeline converts per-slice viseme volumes into timed
// mouth-volume frames for the model's lip-sync API. Frame i lands at
// i*sliceDuration; volumes are clamped to [0,1] and a closing zero frame
// shuts the mouth when playback ends.
func BuildVolumeTimeline(volumes []float64, sliceDuration time.Duration) []live2d.VolumeFrame {
	if len(volumes) == 0 {
		return []live2d.VolumeFrame{{At: 0, Volume: 0}}
	}
	if sliceDuration <= 0 {
		sliceDuration = 20 * time.Millisecond
	}

	frames := make([]live2d.VolumeFrame, 0, len(volumes)+1)
	for i, v := range volumes {
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		frames = append(frames, live2d.VolumeFrame{
			At:     time.Duration(i) * sliceDuration,
			Volume: v,
		})
	}

	frames = append(frames, live2d.VolumeFrame{
		At:     time.Duration(len(volumes)) * sliceDuration,
		Volume: 0,
	})

	return frames
}

// TimelineDuration is the time of the final frame.
func TimelineDuration(frames []live2d.VolumeFrame) time.Duration {
	if len(frames) == 0 {
		return 0
	}
	return frames[len(frames)-1].At
}
