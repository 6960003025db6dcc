// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxCallIDLen = 64

var (
	ErrCallIDEmpty   = errors.New("call id empty")
	ErrCallIDTooLong = errors.New("call id too long")
	ErrTokenEmpty    = errors.New("token empty")
)

// CallID scopes every signaling message to one call; opaque to the client.
type CallID string

// Token authorizes the signaling connection; issued by the backend, opaque here.
type Token string

// Role determines which side originates the offer. Assigned before
// negotiation starts; glare is not arbitrated.
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// State is the negotiation lifecycle of one call session.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateConnected
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateEnded || s == StateFailed }

// Call is the unit of work: one two-party session.
type Call struct {
	ID    CallID
	Token Token
	Video bool
	Role  Role
}

// NewCall validates identifiers up front so adapters never see bad literals.
func NewCall(token Token, id CallID, role Role, video bool) (*Call, error) {
	if len(id) == 0 {
		return nil, ErrCallIDEmpty
	}
	if len(id) > MaxCallIDLen {
		return nil, ErrCallIDTooLong
	}
	if len(token) == 0 {
		return nil, ErrTokenEmpty
	}
	return &Call{ID: id, Token: token, Role: role, Video: video}, nil
}
