package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/Banula-Lavindu/Luster-backend/internal/core"
	"github.com/Banula-Lavindu/Luster-backend/internal/domain"
)

// Wire envelope, one JSON object per websocket text frame. Field names match
// the backend call endpoint: type, call_id, sdp, candidate, reason.
type envelope struct {
	Type      string         `json:"type"`
	CallID    string         `json:"call_id"`
	SDP       string         `json:"sdp,omitempty"`
	Candidate *candidateJSON `json:"candidate,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

type candidateJSON struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

const (
	typeOffer     = "offer"
	typeAnswer    = "answer"
	typeCandidate = "ice-candidate"
	typeEndCall   = "end-call"
)

// Encode marshals a message into its wire envelope.
func Encode(m core.Message) ([]byte, error) {
	var env envelope
	switch msg := m.(type) {
	case core.Offer:
		env = envelope{Type: typeOffer, CallID: string(msg.CallID), SDP: msg.SDP}
	case core.Answer:
		env = envelope{Type: typeAnswer, CallID: string(msg.CallID), SDP: msg.SDP}
	case core.Candidate:
		env = envelope{Type: typeCandidate, CallID: string(msg.CallID), Candidate: &candidateJSON{
			Candidate:     msg.Candidate.Candidate,
			SDPMid:        msg.Candidate.SDPMid,
			SDPMLineIndex: msg.Candidate.SDPMLineIndex,
		}}
	case core.Hangup:
		env = envelope{Type: typeEndCall, CallID: string(msg.CallID), Reason: msg.Reason}
	default:
		return nil, fmt.Errorf("unencodable message %T", m)
	}
	return json.Marshal(env)
}

// Decode parses one wire envelope into the message union.
func Decode(data []byte) (core.Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bad signal payload: %w", err)
	}
	id := domain.CallID(env.CallID)
	switch env.Type {
	case typeOffer:
		return core.Offer{CallID: id, SDP: env.SDP}, nil
	case typeAnswer:
		return core.Answer{CallID: id, SDP: env.SDP}, nil
	case typeCandidate:
		if env.Candidate == nil {
			return nil, fmt.Errorf("ice-candidate without candidate body")
		}
		return core.Candidate{CallID: id, Candidate: webrtc.ICECandidateInit{
			Candidate:     env.Candidate.Candidate,
			SDPMid:        env.Candidate.SDPMid,
			SDPMLineIndex: env.Candidate.SDPMLineIndex,
		}}, nil
	case typeEndCall:
		return core.Hangup{CallID: id, Reason: env.Reason}, nil
	default:
		return nil, fmt.Errorf("unknown signal type %q", env.Type)
	}
}
