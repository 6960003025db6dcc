package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/Banula-Lavindu/Luster-backend/internal/domain"
)

// Message is the sealed union over the four signaling message kinds.
// A switch over the concrete types is exhaustive; adding a kind means
// touching every consumer at compile time instead of growing a string switch.
type Message interface {
	Call() domain.CallID
	message()
}

// Offer carries the originating side's session description.
type Offer struct {
	CallID domain.CallID
	SDP    string
}

// Answer carries the responding side's session description.
type Answer struct {
	CallID domain.CallID
	SDP    string
}

// Candidate carries one ICE connectivity option, either direction, any time.
type Candidate struct {
	CallID    domain.CallID
	Candidate webrtc.ICECandidateInit
}

// Hangup ends the call. Reason is set by the backend on peer disconnect.
type Hangup struct {
	CallID domain.CallID
	Reason string
}

func (m Offer) Call() domain.CallID     { return m.CallID }
func (m Answer) Call() domain.CallID    { return m.CallID }
func (m Candidate) Call() domain.CallID { return m.CallID }
func (m Hangup) Call() domain.CallID    { return m.CallID }

func (Offer) message()     {}
func (Answer) message()    {}
func (Candidate) message() {}
func (Hangup) message()    {}
