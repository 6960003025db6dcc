package media

import (
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// Source feeds samples into one local track. Open must not block; the
// returned stop function halts the feed and frees the device.
type Source interface {
	Label() string
	Codec() webrtc.RTPCodecCapability
	Open(track *webrtc.TrackLocalStaticSample) (stop func(), err error)
}

// TickerSource writes a fixed payload at a fixed cadence. It stands in for
// a real capture pipeline in the agent binary and in tests.
type TickerSource struct {
	TrackLabel string
	Capability webrtc.RTPCodecCapability
	Interval   time.Duration
	Payload    []byte
}

// SilenceSource is an opus source emitting DTX silence frames at 20ms.
func SilenceSource() *TickerSource {
	return &TickerSource{
		TrackLabel: "audio",
		Capability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		},
		Interval: 20 * time.Millisecond,
		Payload:  []byte{0xf8, 0xff, 0xfe},
	}
}

// TestPatternSource is a VP8 source emitting a tiny fixed payload; it
// exercises the video negotiation path on machines without a camera.
func TestPatternSource() *TickerSource {
	return &TickerSource{
		TrackLabel: "video",
		Capability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		Interval: 33 * time.Millisecond,
		Payload:  []byte{0x10, 0x00, 0x00, 0x9d, 0x01, 0x2a},
	}
}

func (s *TickerSource) Label() string { return s.TrackLabel }

func (s *TickerSource) Codec() webrtc.RTPCodecCapability { return s.Capability }

func (s *TickerSource) Open(track *webrtc.TrackLocalStaticSample) (func(), error) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sample := media.Sample{Data: s.Payload, Duration: s.Interval}
				if err := track.WriteSample(sample); err != nil {
					log.Debug().Err(err).Str("module", "media").Str("label", s.TrackLabel).Msg("write sample")
				}
			}
		}
	}()
	return func() { close(done) }, nil
}
