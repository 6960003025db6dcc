package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/Banula-Lavindu/Luster-backend/internal/core"
)

// Everything that can move the session forward enters the run loop as one
// of these events: API calls, signaling messages, adapter callbacks and the
// completions of async operations. The loop processes them one at a time,
// so session state is never mutated concurrently.
type event interface {
	event()
}

// evStart: initializeCall was invoked.
type evStart struct{}

// evEnd: endCall was invoked locally.
type evEnd struct{}

// evChannelUp: the signaling dial completed.
type evChannelUp struct {
	conn    core.SignalConnection
	inbound <-chan core.Message
	err     error
}

// evMediaAcquired: local capture completed.
type evMediaAcquired struct {
	handle core.MediaHandle
	err    error
}

// evOfferReady: the local offer was created and installed.
type evOfferReady struct {
	desc *webrtc.SessionDescription
	err  error
}

// evAnswerReady: the remote offer was applied and the local answer created.
type evAnswerReady struct {
	desc *webrtc.SessionDescription
	err  error
}

// evAnswerApplied: the remote answer was applied against our offer.
type evAnswerApplied struct {
	err error
}

// evLocalCandidate: the adapter discovered a local ICE candidate.
type evLocalCandidate struct {
	ci webrtc.ICECandidateInit
}

// evRemoteTrack: a usable remote track arrived.
type evRemoteTrack struct {
	track *webrtc.TrackRemote
}

// evPeerState: the peer connection state moved.
type evPeerState struct {
	state webrtc.PeerConnectionState
}

// evFatal: the adapter reported an unrecoverable fault.
type evFatal struct {
	err error
}

func (evStart) event()          {}
func (evEnd) event()            {}
func (evChannelUp) event()      {}
func (evMediaAcquired) event()  {}
func (evOfferReady) event()     {}
func (evAnswerReady) event()    {}
func (evAnswerApplied) event()  {}
func (evLocalCandidate) event() {}
func (evRemoteTrack) event()    {}
func (evPeerState) event()      {}
func (evFatal) event()          {}
