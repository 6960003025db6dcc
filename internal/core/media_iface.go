package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/Banula-Lavindu/Luster-backend/internal/domain"
)

// MediaConnection wraps the peer transport object for one call.
// Description and candidate sequencing errors come back as NegotiationError
// and CandidateError so the negotiator can tell harmless duplicates from
// structurally invalid sequences.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	// All On* callbacks must be registered before Start.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	// AddLocalTrack attaches a local track prior to or during negotiation.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	// CreateOfferAndSet produces and installs the local offer.
	CreateOfferAndSet() (*webrtc.SessionDescription, error)
	// ApplyOfferAndCreateAnswer installs the remote offer and produces the local answer.
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// ApplyAnswer installs the remote answer against a previously created offer.
	ApplyAnswer(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnConnectionStateChange sets a callback for peer connection state moves.
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	// OnFatalError sets a callback for unrecoverable transport faults.
	OnFatalError(func(error))
}

// MediaFactory constructs one MediaConnection per call session.
type MediaFactory interface {
	NewConnection(id domain.CallID) (MediaConnection, error)
}
