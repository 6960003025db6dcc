package rtc

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Banula-Lavindu/Luster-backend/internal/core"
	"github.com/Banula-Lavindu/Luster-backend/internal/domain"
)

var errICEFailed = errors.New("ice connection failed")

// Connection adapts one webrtc.PeerConnection to core.MediaConnection.
// Sequencing faults from pion come back wrapped in the core error taxonomy.
type Connection struct {
	pc     *webrtc.PeerConnection
	id     domain.CallID
	cancel context.CancelFunc

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onState func(webrtc.PeerConnectionState)
	onFatal func(error)
}

func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	context.AfterFunc(ctx, func() {
		_ = c.pc.Close()
	})

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("call_id", string(c.id)).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed && c.onFatal != nil {
			c.onFatal(&core.TransportError{Cause: errICEFailed})
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("call_id", string(c.id)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if c.onState != nil {
			c.onState(s)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("call_id", string(c.id)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(track, receiver)
		}
	})

	return nil
}

func (c *Connection) CreateOfferAndSet() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, &core.NegotiationError{Op: "create offer", Cause: err}
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, &core.NegotiationError{Op: "set local offer", Cause: err}
	}
	return c.pc.LocalDescription(), nil
}

func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, &core.NegotiationError{Op: "set remote offer", Cause: err}
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, &core.NegotiationError{Op: "create answer", Cause: err}
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, &core.NegotiationError{Op: "set local answer", Cause: err}
	}
	return c.pc.LocalDescription(), nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(answer); err != nil {
		return &core.NegotiationError{Op: "set remote answer", Cause: err}
	}
	return nil
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	if err := c.pc.AddICECandidate(ci); err != nil {
		return &core.CandidateError{Cause: err}
	}
	return nil
}

// AddLocalTrack attaches a local track to the PeerConnection.
func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

func (c *Connection) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("call_id", string(c.id)).Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Str("call_id", string(c.id)).Msg("closed")
		}
	}
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

// OnTrack sets application-level callback for remote tracks.
func (c *Connection) OnTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.onTrack = fn
}

func (c *Connection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) { c.onState = fn }

// OnFatalError sets application-level callback for unrecoverable faults.
func (c *Connection) OnFatalError(fn func(error)) { c.onFatal = fn }
