package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Constraints selects which local media kinds to acquire.
type Constraints struct {
	Audio bool
	Video bool
}

// MediaHandle owns acquired local tracks. Release frees the underlying
// sources; the owning session must call it exactly once, on every
// Ended/Failed transition included.
type MediaHandle interface {
	Tracks() []webrtc.TrackLocal
	Release()
}

// MediaCapturer acquires local audio/video. Fails with MediaAccessError
// when a requested kind has no backing device or permission.
type MediaCapturer interface {
	Acquire(ctx context.Context, c Constraints) (MediaHandle, error)
}
