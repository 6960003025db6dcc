package core

// Error taxonomy for one call session. Every failure unwinds to a single
// Failed transition in the negotiator; these types carry the cause upward.

// MediaAccessError: device or permission unavailable. Fatal to session start.
type MediaAccessError struct {
	Cause error
}

func (e *MediaAccessError) Error() string { return "media access: " + e.Cause.Error() }
func (e *MediaAccessError) Unwrap() error { return e.Cause }

// NegotiationError: a description was created or applied out of sequence.
type NegotiationError struct {
	Op    string
	Cause error
}

func (e *NegotiationError) Error() string { return "negotiation " + e.Op + ": " + e.Cause.Error() }
func (e *NegotiationError) Unwrap() error { return e.Cause }

// CandidateError: a remote candidate was applied before the remote
// description. Should never surface when the candidate buffer is used.
type CandidateError struct {
	Cause error
}

func (e *CandidateError) Error() string { return "ice candidate: " + e.Cause.Error() }
func (e *CandidateError) Unwrap() error { return e.Cause }

// TransportError: the signaling channel closed or became unreachable.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return "signal transport: " + e.Cause.Error() }
func (e *TransportError) Unwrap() error { return e.Cause }
