// Package media implements local capture behind core.MediaCapturer.
// Real device pipelines plug in as Sources; the agent ships synthetic ones.
package media

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Banula-Lavindu/Luster-backend/internal/core"
)

var (
	ErrNoAudioSource = errors.New("no audio source configured")
	ErrNoVideoSource = errors.New("no video source configured")
	ErrNothingToOpen = errors.New("constraints select no media kind")
)

// Capturer hands out track handles backed by the configured sources.
type Capturer struct {
	audio Source
	video Source
}

func NewCapturer(audio, video Source) *Capturer {
	return &Capturer{audio: audio, video: video}
}

func (c *Capturer) Acquire(ctx context.Context, cons core.Constraints) (core.MediaHandle, error) {
	if !cons.Audio && !cons.Video {
		return nil, &core.MediaAccessError{Cause: ErrNothingToOpen}
	}

	var sources []Source
	if cons.Audio {
		if c.audio == nil {
			return nil, &core.MediaAccessError{Cause: ErrNoAudioSource}
		}
		sources = append(sources, c.audio)
	}
	if cons.Video {
		if c.video == nil {
			return nil, &core.MediaAccessError{Cause: ErrNoVideoSource}
		}
		sources = append(sources, c.video)
	}

	h := &handle{}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			h.Release()
			return nil, &core.MediaAccessError{Cause: err}
		}
		track, err := webrtc.NewTrackLocalStaticSample(src.Codec(), src.Label(), "luster-call")
		if err != nil {
			h.Release()
			return nil, &core.MediaAccessError{Cause: err}
		}
		stop, err := src.Open(track)
		if err != nil {
			h.Release()
			return nil, &core.MediaAccessError{Cause: err}
		}
		log.Info().Str("module", "media").Str("label", src.Label()).Msg("source opened")
		h.tracks = append(h.tracks, track)
		h.stops = append(h.stops, stop)
	}
	return h, nil
}

// handle owns the opened sources; Release is guarded so a double call
// cannot double-free the underlying resources.
type handle struct {
	tracks []webrtc.TrackLocal
	stops  []func()
	once   sync.Once
}

func (h *handle) Tracks() []webrtc.TrackLocal { return h.tracks }

func (h *handle) Release() {
	h.once.Do(func() {
		for _, stop := range h.stops {
			stop()
		}
		log.Info().Str("module", "media").Int("tracks", len(h.tracks)).Msg("released")
	})
}
